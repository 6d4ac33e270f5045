//
// Copyright (C) 2020 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

// AttributeError is raised by a member or method access outside the
// compile-time whitelist. It is its own type, rather than a plain
// fmt.Errorf, so policyengine.Analyze can classify it as an evaluation
// error distinct from a loading error.
type AttributeError struct {
	Receiver string
	Name     string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("engine: %q is not an available attribute of %s", e.Name, e.Receiver)
}

// MissingParamError is raised when a rule reads `input.<name>` and the
// caller supplied no policy parameter of that name to Analyze — the
// "missing policy parameter" evaluation error.
type MissingParamError struct {
	Name string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("engine: missing policy parameter %q", e.Name)
}

// messageFields, toolCallFields, and toolOutputFields are the compile-time
// attribute whitelists: trace entities expose only a fixed, documented
// attribute set. Kept as tables rather than a runtime reflect.Value walk
// so the evaluator never dispatches on reflected names.
var messageFields = map[string]bool{"role": true, "content": true, "tool_calls": true, "metadata": true}
var toolCallFields = map[string]bool{"id": true, "function": true, "metadata": true}
var toolOutputFields = map[string]bool{"tool_call_id": true, "content": true, "metadata": true}
var functionFields = map[string]bool{"name": true, "arguments": true}

// stringMethods and dictMethods are the side-effect-free method whitelists
// available to policies.
var stringMethods = map[string]bool{"strip": true, "lower": true, "upper": true, "split": true, "splitlines": true, "join": true, "format": true}
var dictMethods = map[string]bool{"keys": true, "values": true, "items": true, "get": true}

func memberAccess(obj any, name string) (any, error) {
	switch v := obj.(type) {
	case *trace.Message:
		if !messageFields[name] {
			return nil, &AttributeError{"Message", name}
		}
		switch name {
		case "role":
			return v.Role, nil
		case "content":
			return contentValue(v.Content), nil
		case "tool_calls":
			out := make([]any, len(v.ToolCalls))
			for i, c := range v.ToolCalls {
				out[i] = c
			}
			return out, nil
		case "metadata":
			return metadataValue(v.Metadata), nil
		}
	case *trace.ToolCall:
		if !toolCallFields[name] {
			return nil, &AttributeError{"ToolCall", name}
		}
		switch name {
		case "id":
			return v.CallID, nil
		case "function":
			return &v.Function, nil
		case "metadata":
			return metadataValue(v.Metadata), nil
		}
	case *trace.ToolOutput:
		if !toolOutputFields[name] {
			return nil, &AttributeError{"ToolOutput", name}
		}
		switch name {
		case "tool_call_id":
			return v.ToolCallID, nil
		case "content":
			if v.JSON != nil {
				return metadataValue(v.JSON), nil
			}
			return contentValue(v.Content), nil
		case "metadata":
			return metadataValue(v.Metadata), nil
		}
	case *trace.Input:
		// `input.<name>` reads one policy parameter directly; there is
		// no fixed attribute set beyond what the caller passed to Analyze.
		val, ok := v.Params[name]
		if !ok {
			return nil, &MissingParamError{Name: name}
		}
		return normalizeJSONValue(val), nil
	case *trace.Function:
		if !functionFields[name] {
			return nil, &AttributeError{"Function", name}
		}
		switch name {
		case "name":
			return v.Name, nil
		case "arguments":
			return metadataValue(v.Arguments), nil
		}
	case map[string]any:
		val, ok := v[name]
		if !ok {
			return nil, nil
		}
		return normalizeJSONValue(val), nil
	}
	return nil, &AttributeError{fmt.Sprintf("%T", obj), name}
}

// contentValue renders a trace.Content as the engine's value domain: a
// plain string when the message carried simple text, or a list of text
// chunks otherwise, so `in` and string methods both have a natural target.
func contentValue(c trace.Content) any {
	if c.IsNil() {
		return nil
	}
	if c.Text != nil {
		return *c.Text
	}
	chunks := c.Flatten()
	out := make([]any, len(chunks))
	for i, s := range chunks {
		out[i] = s
	}
	return out
}

func metadataValue(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeJSONValue(v)
	}
	return out
}

func normalizeJSONValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = normalizeJSONValue(el)
		}
		return out
	case map[string]any:
		return metadataValue(x)
	default:
		return x
	}
}

func indexAccess(obj, key any) (any, error) {
	switch v := obj.(type) {
	case []any:
		i, ok := asNumber(key)
		if !ok {
			return nil, fmt.Errorf("engine: list index must be a number, got %T", key)
		}
		idx := int(i)
		if idx < 0 || idx >= len(v) {
			return nil, fmt.Errorf("engine: list index %d out of range", idx)
		}
		return v[idx], nil
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("engine: dict key must be a string, got %T", key)
		}
		return v[k], nil
	default:
		return nil, fmt.Errorf("engine: %T is not indexable", obj)
	}
}

func methodCall(recv any, name string, args []any) (any, error) {
	switch v := recv.(type) {
	case string:
		if !stringMethods[name] {
			return nil, &AttributeError{"str", name}
		}
		return stringMethod(v, name, args)
	case map[string]any:
		if !dictMethods[name] {
			return nil, &AttributeError{"dict", name}
		}
		return dictMethod(v, name, args)
	default:
		return nil, &AttributeError{fmt.Sprintf("%T", recv), name}
	}
}

func stringMethod(s, name string, args []any) (any, error) {
	switch name {
	case "strip":
		return strings.TrimSpace(s), nil
	case "lower":
		return strings.ToLower(s), nil
	case "upper":
		return strings.ToUpper(s), nil
	case "split":
		sep := " "
		if len(args) > 0 {
			a, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("engine: split() separator must be a string")
			}
			sep = a
		}
		parts := strings.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	case "splitlines":
		parts := strings.Split(s, "\n")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	case "join":
		if len(args) != 1 {
			return nil, fmt.Errorf("engine: join() requires one argument")
		}
		items, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("engine: join() requires a list argument")
		}
		parts := make([]string, len(items))
		for i, it := range items {
			str, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("engine: join() list elements must be strings")
			}
			parts[i] = str
		}
		return strings.Join(parts, s), nil
	case "format":
		out := s
		for _, a := range args {
			out = strings.Replace(out, "{}", fmt.Sprint(a), 1)
		}
		return out, nil
	default:
		return nil, &AttributeError{"str", name}
	}
}

func dictMethod(d map[string]any, name string, args []any) (any, error) {
	switch name {
	case "keys":
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	case "values":
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = d[k]
		}
		return out, nil
	case "items":
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = []any{k, d[k]}
		}
		return out, nil
	case "get":
		if len(args) < 1 {
			return nil, fmt.Errorf("engine: get() requires at least one argument")
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("engine: get() key must be a string")
		}
		if v, ok := d[key]; ok {
			return v, nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return nil, nil
	default:
		return nil, &AttributeError{"dict", name}
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// evalOperator implements the remaining arithmetic and comparison binary
// operators once both operands are known and neither is one of the
// specially-handled ops (`:=`, `and`, `or`, `is`, `->`, `~>`, `in`,
// `contains_only`) dispatched earlier in evalBinary.
func evalOperator(op ast.BinaryOp, left, right any) (any, error) {
	switch op {
	case ast.OpEq:
		return valuesEqual(left, right), nil
	case ast.OpNEq:
		return !valuesEqual(left, right), nil
	}

	lf, lok := asNumber(left)
	rf, rok := asNumber(right)

	switch op {
	case ast.OpLT, ast.OpGT, ast.OpLE, ast.OpGE:
		if ls, ok := left.(string); ok {
			rs, ok2 := right.(string)
			if !ok2 {
				return nil, fmt.Errorf("engine: cannot compare string to %T", right)
			}
			return compareStrings(op, ls, rs), nil
		}
		if !lok || !rok {
			return nil, fmt.Errorf("engine: cannot compare %T to %T", left, right)
		}
		return compareNumbers(op, lf, rf), nil
	}

	if !lok || !rok {
		return nil, fmt.Errorf("engine: arithmetic operator %q requires numbers, got %T and %T", op, left, right)
	}
	switch op {
	case ast.OpAdd:
		return lf + rf, nil
	case ast.OpSub:
		return lf - rf, nil
	case ast.OpMul:
		return lf * rf, nil
	case ast.OpDiv:
		if rf == 0 {
			return nil, fmt.Errorf("engine: division by zero")
		}
		return lf / rf, nil
	case ast.OpMod:
		if rf == 0 {
			return nil, fmt.Errorf("engine: modulo by zero")
		}
		return float64(int64(lf) % int64(rf)), nil
	case ast.OpPow:
		return powFloat(lf, rf), nil
	default:
		return nil, fmt.Errorf("engine: unhandled binary operator %q", op)
	}
}

func powFloat(base, exp float64) float64 {
	result := 1.0
	n := int(exp)
	neg := n < 0
	if neg {
		n = -n
	}
	for i := 0; i < n; i++ {
		result *= base
	}
	if neg {
		return 1 / result
	}
	return result
}

func compareNumbers(op ast.BinaryOp, a, b float64) bool {
	switch op {
	case ast.OpLT:
		return a < b
	case ast.OpGT:
		return a > b
	case ast.OpLE:
		return a <= b
	case ast.OpGE:
		return a >= b
	default:
		return false
	}
}

func compareStrings(op ast.BinaryOp, a, b string) bool {
	switch op {
	case ast.OpLT:
		return a < b
	case ast.OpGT:
		return a > b
	case ast.OpLE:
		return a <= b
	case ast.OpGE:
		return a >= b
	default:
		return false
	}
}

// valuesEqual compares two engine values for `==`/`in` membership,
// normalizing numeric types the same way core/pattern does so a policy
// number literal (always float64) compares equal to an int-typed trace
// argument value.
func valuesEqual(a, b any) bool {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}
