// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"

	"github.com/agentscript-lang/agentscript/engine"
	"github.com/agentscript-lang/agentscript/lang/ast"
	"github.com/agentscript-lang/agentscript/mcpclient"
)

// listTools connects every mcp declaration of the script concurrently and
// prints the tools each server offers.
func listTools(cliCtx *cli.Context) error {
	logger, _, err := setup(cliCtx)
	if err != nil {
		return err
	}
	path, err := scriptArg(cliCtx)
	if err != nil {
		return err
	}
	prog, _, err := compileFile(path)
	if err != nil {
		return err
	}

	type serverDecl struct {
		name   string
		config map[string]any
	}
	var decls []serverDecl
	for _, stmt := range prog.Statements {
		decl, ok := stmt.(*ast.ConfigDecl)
		if !ok || decl.Kind != ast.DeclMCP {
			continue
		}
		config, err := literalObject(decl.Config)
		if err != nil {
			return fmt.Errorf("mcp %q: %w", decl.Name, err)
		}
		decls = append(decls, serverDecl{name: decl.Name, config: config})
	}
	if len(decls) == 0 {
		fmt.Println("no mcp declarations in", path)
		return nil
	}

	ctx := context.Background()
	if budget := cliCtx.Duration(timeoutFlag.Name); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	var mu sync.Mutex
	rows := make(map[string][]engine.ToolInfo, len(decls))

	g, gctx := errgroup.WithContext(ctx)
	for _, decl := range decls {
		decl := decl
		g.Go(func() error {
			client, err := mcpclient.Connect(gctx, decl.name, decl.config, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			infos, err := client.ListTools(gctx)
			if err != nil {
				return err
			}
			mu.Lock()
			rows[decl.name] = infos
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Server", "Tool", "Description"})
	for _, name := range names {
		for _, info := range rows[name] {
			table.Append([]string{name, info.Name, info.Description})
		}
	}
	table.Render()
	return nil
}

// literalObject evaluates declaration config entries down to plain values.
// An mcp config describes how to reach a process or endpoint, so only
// literals make sense in it.
func literalObject(entries []ast.ConfigEntry) (map[string]any, error) {
	out := make(map[string]any, len(entries))
	for _, entry := range entries {
		v, err := literalValue(entry.Value)
		if err != nil {
			return nil, err
		}
		out[entry.Key] = v
	}
	return out, nil
}

func literalValue(expr ast.Expression) (any, error) {
	switch e := expr.(type) {
	case *ast.StringLit:
		return e.Value, nil
	case *ast.NumberLit:
		return e.Value, nil
	case *ast.BoolLit:
		return e.Value, nil
	case *ast.NullLit:
		return nil, nil
	case *ast.ArrayLit:
		vals := make([]any, len(e.Elements))
		for i, el := range e.Elements {
			v, err := literalValue(el)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return vals, nil
	case *ast.ObjectLit:
		return literalObject(e.Entries)
	}
	return nil, fmt.Errorf("%s: config value is not a literal", expr.Position())
}
