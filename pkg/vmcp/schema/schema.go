// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema generates JSON Schemas for meta-tool inputs and translates
// loosely typed JSON-RPC arguments into typed structs.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Generate builds a JSON Schema object for a Go struct type T.
//
// Field names come from the json tag, descriptions from the description
// tag, and fields without omitempty land in the required array. Supported
// field types are strings, integers, floats, booleans, slices, maps, and
// nested structs; anything else falls back to an untyped object.
func Generate[T any]() map[string]any {
	var zero T
	return schemaForType(reflect.TypeOf(zero))
}

// GenerateRaw is Generate followed by JSON marshaling. It panics on
// marshal failure, which can only happen for types that are broken at
// compile time, so call it from package-level var initialisers.
func GenerateRaw[T any]() json.RawMessage {
	data, err := json.Marshal(Generate[T]())
	if err != nil {
		panic(fmt.Sprintf("schema marshal failed: %v", err))
	}
	return data
}

// Translate converts loosely typed arguments (as decoded from JSON-RPC)
// into the typed struct T via a JSON round trip.
func Translate[T any](input any) (T, error) {
	var result T
	data, err := json.Marshal(input)
	if err != nil {
		return result, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal arguments into %T: %w", result, err)
	}
	return result, nil
}

func schemaForType(t reflect.Type) map[string]any {
	if t == nil {
		return map[string]any{"type": "object"}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return schemaForStruct(t)
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{
			"type":  "array",
			"items": schemaForType(t.Elem()),
		}
	default:
		return map[string]any{"type": "object"}
	}
}

func schemaForStruct(t reflect.Type) map[string]any {
	properties := make(map[string]any)
	var required []string

	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name, optional := parseJSONTag(jsonTag)
		if name == "" {
			name = field.Name
		}

		fieldSchema := schemaForType(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			fieldSchema["description"] = desc
		}
		properties[name] = fieldSchema

		if !optional {
			required = append(required, name)
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func parseJSONTag(tag string) (name string, optional bool) {
	if tag == "" {
		return "", false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, part := range parts[1:] {
		if part == "omitempty" {
			optional = true
		}
	}
	return name, optional
}
