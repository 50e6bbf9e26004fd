// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// luaToGo converts a Lua value into a JSON-serializable Go value. Tables
// with a contiguous integer sequence starting at 1 become slices; all other
// tables become maps with stringified keys. Functions and userdata convert
// to nil since they have no JSON form.
func luaToGo(value lua.LValue) any {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case *lua.LTable:
		return tableToGo(v)
	default:
		return nil
	}
}

func tableToGo(table *lua.LTable) any {
	n := table.MaxN()
	if n > 0 {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			arr = append(arr, luaToGo(table.RawGetInt(i)))
		}
		return arr
	}

	// An empty table is ambiguous; treat it as an object since tool
	// arguments are objects.
	m := make(map[string]any)
	table.ForEach(func(key, val lua.LValue) {
		m[key.String()] = luaToGo(val)
	})
	return m
}

// goToLua converts a Go value (as produced by JSON decoding) into a Lua
// value for the sandboxed code to inspect.
func goToLua(l *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case []any:
		table := l.NewTable()
		for _, item := range v {
			table.Append(goToLua(l, item))
		}
		return table
	case map[string]any:
		table := l.NewTable()
		for key, item := range v {
			l.SetField(table, key, goToLua(l, item))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}
