// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package schema compiles tool parameter type annotations into canonical
// descriptors.
//
// A descriptor is the tool's parameter validation contract: the code
// generator embeds it into the generated artifact, and the agent/tool
// collaborators consume it (for example to derive the JSON Schema handed to
// a model). The compiler itself performs no validation.
package schema

import (
	"sort"

	"github.com/agentscript-lang/agentscript/lang/ast"
)

// Descriptor kinds.
const (
	KindString   = "string"
	KindNumber   = "number"
	KindBoolean  = "boolean"
	KindAny      = "any"
	KindNull     = "null"
	KindArray    = "array"
	KindObject   = "object"
	KindUnion    = "union"
	KindOptional = "optional"
)

// Descriptor is the canonical compiled form of a type annotation.
// Exactly one of Element, Fields, Members, or Inner is set, depending on
// Kind; primitives set none.
type Descriptor struct {
	Kind    string
	Element *Descriptor // array element type
	Fields  []Field     // object fields, source order
	Members []*Descriptor
	Inner   *Descriptor // optional-wrapped type
}

// Field is a named object field descriptor.
type Field struct {
	Name   string
	Schema *Descriptor
}

// Compile recursively compiles a type annotation into its descriptor. A nil
// annotation (an unannotated parameter) compiles to the "any" descriptor.
// Compile operates on parser output and cannot fail: malformed annotations
// are rejected at parse time.
func Compile(t ast.TypeAnnotation) *Descriptor {
	switch t := t.(type) {
	case nil:
		return &Descriptor{Kind: KindAny}

	case *ast.PrimitiveType:
		return &Descriptor{Kind: t.Name}

	case *ast.ArrayType:
		return &Descriptor{Kind: KindArray, Element: Compile(t.Element)}

	case *ast.ObjectType:
		d := &Descriptor{Kind: KindObject}
		for _, f := range t.Fields {
			d.Fields = append(d.Fields, Field{Name: f.Name, Schema: Compile(f.Type)})
		}
		return d

	case *ast.UnionType:
		d := &Descriptor{Kind: KindUnion}
		for _, m := range t.Members {
			d.Members = append(d.Members, Compile(m))
		}
		return d

	case *ast.OptionalType:
		return &Descriptor{Kind: KindOptional, Inner: Compile(t.Inner)}
	}

	// Unknown annotation tags are a programming error, not user input.
	panic("schema: unknown type annotation")
}

// Map renders the descriptor as a plain map, the form it takes inside the
// generated artifact and across the engine's host bridge.
func (d *Descriptor) Map() map[string]any {
	m := map[string]any{"kind": d.Kind}
	switch d.Kind {
	case KindArray:
		m["element"] = d.Element.Map()
	case KindObject:
		fields := make(map[string]any, len(d.Fields))
		order := make([]any, 0, len(d.Fields))
		for _, f := range d.Fields {
			fields[f.Name] = f.Schema.Map()
			order = append(order, f.Name)
		}
		m["fields"] = fields
		m["order"] = order
	case KindUnion:
		members := make([]any, len(d.Members))
		for i, mem := range d.Members {
			members[i] = mem.Map()
		}
		m["members"] = members
	case KindOptional:
		m["inner"] = d.Inner.Map()
	}
	return m
}

// FromMap reconstructs a descriptor from its map form. Unknown or malformed
// input widens to the "any" descriptor rather than failing: the map comes
// from our own artifact, and widening keeps a defect observable without
// crashing the run.
func FromMap(m map[string]any) *Descriptor {
	kind, _ := m["kind"].(string)
	if kind == "" {
		return &Descriptor{Kind: KindAny}
	}
	d := &Descriptor{Kind: kind}
	switch kind {
	case KindArray:
		if em, ok := m["element"].(map[string]any); ok {
			d.Element = FromMap(em)
		} else {
			d.Element = &Descriptor{Kind: KindAny}
		}
	case KindObject:
		fields, _ := m["fields"].(map[string]any)
		names := fieldOrder(m, fields)
		for _, name := range names {
			fm, ok := fields[name].(map[string]any)
			if !ok {
				continue
			}
			d.Fields = append(d.Fields, Field{Name: name, Schema: FromMap(fm)})
		}
	case KindUnion:
		members, _ := m["members"].([]any)
		for _, mem := range members {
			mm, ok := mem.(map[string]any)
			if !ok {
				continue
			}
			d.Members = append(d.Members, FromMap(mm))
		}
	case KindOptional:
		if im, ok := m["inner"].(map[string]any); ok {
			d.Inner = FromMap(im)
		} else {
			d.Inner = &Descriptor{Kind: KindAny}
		}
	}
	return d
}

// fieldOrder recovers object field order from the "order" list, falling back
// to sorted field names when the list is absent.
func fieldOrder(m map[string]any, fields map[string]any) []string {
	if order, ok := m["order"].([]any); ok {
		names := make([]string, 0, len(order))
		for _, o := range order {
			if s, ok := o.(string); ok {
				names = append(names, s)
			}
		}
		if len(names) == len(fields) {
			return names
		}
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JSONSchema converts the descriptor into a JSON Schema fragment suitable
// for a model tool definition.
//
//	string/number/boolean -> {"type": ...}
//	null                  -> {"type": "null"}
//	any                   -> {} (unconstrained)
//	array                 -> {"type": "array", "items": ...}
//	object                -> {"type": "object", "properties": ..., "required": ...}
//	union                 -> {"anyOf": [...]} preserving member order
//	optional(T)           -> schema of T (optionality is expressed by the
//	                         enclosing object omitting the field from "required")
func (d *Descriptor) JSONSchema() map[string]any {
	switch d.Kind {
	case KindString, KindNumber, KindBoolean, KindNull:
		return map[string]any{"type": d.Kind}
	case KindAny:
		return map[string]any{}
	case KindArray:
		return map[string]any{"type": "array", "items": d.Element.JSONSchema()}
	case KindObject:
		props := make(map[string]any, len(d.Fields))
		var required []any
		for _, f := range d.Fields {
			props[f.Name] = f.Schema.JSONSchema()
			if f.Schema.Kind != KindOptional {
				required = append(required, f.Name)
			}
		}
		out := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			out["required"] = required
		}
		return out
	case KindUnion:
		members := make([]any, len(d.Members))
		for i, m := range d.Members {
			members[i] = m.JSONSchema()
		}
		return map[string]any{"anyOf": members}
	case KindOptional:
		return d.Inner.JSONSchema()
	}
	return map[string]any{}
}
