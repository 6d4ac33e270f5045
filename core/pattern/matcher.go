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

// Package pattern compiles and evaluates semantic patterns:
// `tool:name({key: val, ...}, *)` matched against a trace tool call's
// function name and arguments. Matching walks the ast.PatternNode tree
// built by core/lang/ast's post-parse rewrite directly — there is no
// separate compiled representation.
package pattern

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

// Detector matches a concrete value against one named value domain, e.g.
// EMAIL_ADDRESS or SECRET. Implementations live in core/stdlib so this
// package stays free of any particular detection heuristic.
type Detector interface {
	Detect(v any) bool
}

// Registry maps a `<TYPE_NAME>` value-reference to the Detector that
// decides membership, populated by core/stdlib at engine construction time.
type Registry struct {
	detectors map[string]Detector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{detectors: map[string]Detector{}}
}

// Register binds name to d, overwriting any previous binding.
func (r *Registry) Register(name string, d Detector) {
	r.detectors[name] = d
}

// Get returns the detector bound to name, if any.
func (r *Registry) Get(name string) (Detector, bool) {
	d, ok := r.detectors[name]
	return d, ok
}

// Eval evaluates a constant sub-expression of a pattern down to a
// comparable Go value. The caller supplies this so
// pattern matching can refer to const declarations and simple arithmetic
// without this package depending on the interpreter.
type Eval func(ast.Expr) (any, error)

// MatchToolCall reports whether call satisfies sp: its function name
// matches sp.ToolName (treated as an anchored regex, since a plain literal
// name is a regex that matches only itself) and, if sp.Arg is set, its
// arguments satisfy the argument pattern.
func MatchToolCall(sp *ast.SemanticPattern, call *trace.ToolCall, reg *Registry, eval Eval) (bool, error) {
	if sp.ToolName != "" && sp.ToolName != "*" {
		ok, err := matchRegexString(sp.ToolName, call.Function.Name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if sp.Arg == nil {
		return true, nil
	}
	return MatchNode(sp.Arg, call.Function.Arguments, reg, eval)
}

// MatchNode reports whether value satisfies pn.
func MatchNode(pn ast.PatternNode, value any, reg *Registry, eval Eval) (bool, error) {
	switch n := pn.(type) {
	case *ast.Wildcard:
		return true, nil
	case *ast.ValueRef:
		d, ok := reg.Get(n.TypeName)
		if !ok {
			return false, fmt.Errorf("pattern: unknown value reference <%s>", n.TypeName)
		}
		return d.Detect(value), nil
	case *ast.PatternObject:
		return matchObject(n, value, reg, eval)
	case *ast.PatternList:
		return matchList(n, value, reg, eval)
	case *ast.PatternConst:
		want, err := eval(n.Value)
		if err != nil {
			return false, err
		}
		return matchConst(want, value)
	default:
		return false, fmt.Errorf("pattern: unhandled pattern node %T", pn)
	}
}

// matchObject checks only the keys the pattern names: a missing key fails,
// a key the pattern does not mention is simply unconstrained. Extra
// argument keys never reject a match.
func matchObject(n *ast.PatternObject, value any, reg *Registry, eval Eval) (bool, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return false, nil
	}
	for _, entry := range n.Entries {
		v, present := m[entry.Key]
		if !present {
			return false, nil
		}
		ok, err := MatchNode(entry.Pattern, v, reg, eval)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchList(n *ast.PatternList, value any, reg *Registry, eval Eval) (bool, error) {
	l, ok := value.([]any)
	if !ok {
		return false, nil
	}
	if len(l) != len(n.Elems) {
		return false, nil
	}
	for i, elemPat := range n.Elems {
		ok, err := MatchNode(elemPat, l[i], reg, eval)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchConst(want, got any) (bool, error) {
	if ws, ok := want.(string); ok {
		switch g := got.(type) {
		case string:
			return matchRegexString(ws, g)
		case []any:
			// A string constant matched against chunked content succeeds if
			// any text chunk matches, or if the joined text of all chunks
			// matches as one string.
			var joined strings.Builder
			for _, el := range g {
				s, ok := el.(string)
				if !ok {
					continue
				}
				joined.WriteString(s)
				ok, err := matchRegexString(ws, s)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return matchRegexString(ws, joined.String())
		default:
			return false, nil
		}
	}
	return reflect.DeepEqual(normalizeNumber(want), normalizeNumber(got)), nil
}

// normalizeNumber collapses int/float distinctions so 3 and 3.0 compare
// equal, matching how the JSON-decoded trace and the parsed policy number
// literals may disagree on Go type.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return v
	}
}

// matchRegexString matches pattern against all of s, anchored at both
// ends, with `.` spanning newlines so a pattern can reach across
// multi-line tool content.
func matchRegexString(pattern, s string) (bool, error) {
	re, err := regexp.Compile("(?s)^(?:" + pattern + ")$")
	if err != nil {
		return false, fmt.Errorf("pattern: invalid pattern %q: %w", pattern, err)
	}
	return re.MatchString(s), nil
}
