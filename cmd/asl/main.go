// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command asl is the AgentScript compiler and runner.
//
// Usage:
//
//	asl run   [flags] <script.asl>   compile and execute a script
//	asl build [flags] <script.asl>   compile and print the artifact
//	asl check [flags] <script.asl>   parse and validate only
//	asl tools [flags] <script.asl>   list the tools of the script's mcp servers
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/agentscript-lang/agentscript/engine"
	"github.com/agentscript-lang/agentscript/lang/ast"
	"github.com/agentscript-lang/agentscript/lang/codegen"
	"github.com/agentscript-lang/agentscript/lang/parser"
	"github.com/agentscript-lang/agentscript/lang/validator"
	"github.com/agentscript-lang/agentscript/runtime"
)

const (
	version   = "0.1.0"
	extension = ".asl"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Usage: "log level: debug, info, warn, error",
		Value: "warn",
	}
	timeoutFlag = cli.DurationFlag{
		Name:  "timeout",
		Usage: "execution time budget (0 = unbounded)",
	}
	outputFlag = cli.StringFlag{
		Name:  "o",
		Usage: "output file (default: stdout)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "asl"
	app.Usage = "the AgentScript compiler and runner"
	app.Version = version
	app.Flags = []cli.Flag{configFileFlag, verbosityFlag}
	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "Compile and execute a script",
			ArgsUsage: "<script" + extension + ">",
			Flags:     []cli.Flag{timeoutFlag},
			Action:    runScript,
		},
		{
			Name:      "build",
			Usage:     "Compile a script and print the artifact",
			ArgsUsage: "<script" + extension + ">",
			Flags:     []cli.Flag{outputFlag},
			Action:    buildScript,
		},
		{
			Name:      "check",
			Usage:     "Parse and validate a script without running it",
			ArgsUsage: "<script" + extension + ">",
			Action:    checkScript,
		},
		{
			Name:      "tools",
			Usage:     "Connect the script's mcp servers and list their tools",
			ArgsUsage: "<script" + extension + ">",
			Flags:     []cli.Flag{timeoutFlag},
			Action:    listTools,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// setup applies global flags and the config file; it returns the logger every
// command shares.
func setup(ctx *cli.Context) (*slog.Logger, *aslConfig, error) {
	cfg, err := loadConfig(ctx.GlobalString(configFileFlag.Name))
	if err != nil {
		return nil, nil, err
	}

	level := ctx.GlobalString(verbosityFlag.Name)
	if level == "" && cfg.Log.Level != "" {
		level = cfg.Log.Level
	}
	logger := newLogger(level)
	slog.SetDefault(logger)

	cfg.applyProviderEnv()
	return logger, cfg, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// compileFile runs the parse -> validate -> generate pipeline over the named
// script. Validation warnings go to stderr; any stage error is fatal.
func compileFile(path string) (*ast.Program, *codegen.Artifact, error) {
	if !strings.HasSuffix(path, extension) {
		return nil, nil, fmt.Errorf("%s: scripts must use the %s extension", path, extension)
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	prog, err := parser.Parse(path, string(source))
	if err != nil {
		return nil, nil, err
	}

	v := validator.New()
	if err := v.Validate(prog); err != nil {
		return nil, nil, err
	}
	for _, warning := range v.Warnings() {
		fmt.Fprintln(os.Stderr, color.YellowString("Warning:"), warning)
	}

	art, err := codegen.Generate(prog)
	if err != nil {
		return nil, nil, err
	}
	return prog, art, nil
}

func scriptArg(ctx *cli.Context) (string, error) {
	if ctx.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one script path, got %d arguments", ctx.NArg())
	}
	return ctx.Args().First(), nil
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func runScript(ctx *cli.Context) error {
	logger, cfg, err := setup(ctx)
	if err != nil {
		return err
	}
	path, err := scriptArg(ctx)
	if err != nil {
		return err
	}
	_, art, err := compileFile(path)
	if err != nil {
		return err
	}

	budget := ctx.Duration(timeoutFlag.Name)
	if budget == 0 {
		budget = cfg.Run.Timeout.Duration
	}

	prompter := liner.NewLiner()
	prompter.SetCtrlCAborts(true)
	defer prompter.Close()

	opts := engine.Options{
		Budget: budget,
		Logger: logger,
		Hosts:  &runtime.Hosts{Logger: logger},
		Bridges: engine.Bridges{
			Print: func(values ...any) {
				fmt.Println(values...)
			},
			Log: func(level string, values ...any) {
				fmt.Fprintf(os.Stderr, "[%s] %s", strings.ToUpper(level), fmt.Sprintln(values...))
			},
			Env: runtime.ProcessEnv,
			Input: func(prompt string) (string, error) {
				return prompter.Prompt(prompt + " ")
			},
			AddMessage: func(event map[string]any) {
				logger.Info("script event", "event", event)
			},
		},
	}

	outcome, err := engine.Execute(context.Background(), art.Source, opts)
	if err != nil {
		return describeFailure(err)
	}
	logger.Info("run completed", "run", outcome.RunID, "duration", outcome.Duration)
	return nil
}

// describeFailure prefixes the error with its taxonomy class so scripts
// driving the CLI can tell failure modes apart.
func describeFailure(err error) error {
	switch err.(type) {
	case *engine.TimeoutError:
		return fmt.Errorf("timeout: %w", err)
	case *engine.HostConfigurationError:
		return fmt.Errorf("host configuration: %w", err)
	default:
		return fmt.Errorf("runtime: %w", err)
	}
}

// ---------------------------------------------------------------------------
// build
// ---------------------------------------------------------------------------

func buildScript(ctx *cli.Context) error {
	if _, _, err := setup(ctx); err != nil {
		return err
	}
	path, err := scriptArg(ctx)
	if err != nil {
		return err
	}
	_, art, err := compileFile(path)
	if err != nil {
		return err
	}

	if out := ctx.String(outputFlag.Name); out != "" {
		return os.WriteFile(out, []byte(art.Source), 0644)
	}
	fmt.Print(art.Source)
	return nil
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

func checkScript(ctx *cli.Context) error {
	if _, _, err := setup(ctx); err != nil {
		return err
	}
	path, err := scriptArg(ctx)
	if err != nil {
		return err
	}
	if _, _, err := compileFile(path); err != nil {
		return err
	}
	fmt.Println(color.GreenString("OK"), path)
	return nil
}

// listTools lives in tools.go.
