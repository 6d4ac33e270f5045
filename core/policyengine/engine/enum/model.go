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

// Package enum implements the model-enumeration search: given a
// rule or predicate body (a conjunctive list of clauses) and an input
// trace, discover every variable assignment under which the body is true,
// false, or unknown. It depends on engine.Interpreter to test each
// candidate assignment, so engine cannot import it back; the two packages
// are wired together through the engine.Context.CallPredicate and
// EnumerateQuantifier function fields (see engine/context.go).
package enum

import (
	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

// Model is one fully-bound candidate assignment, together with the marks
// its evaluation collected.
type Model struct {
	Store engine.Store
	Marks []engine.Mark
}

// collectFreeTypedIdents walks body left-to-right collecting every
// *ast.TypedIdentifier encountered, except inside a nested
// ast.QuantifierExpr's own body — that quantifier discovers and enumerates
// its own free variables independently when it runs; recursive expansion
// is scoped per quantifier, not hoisted to the caller. The walk
// deliberately mirrors core/lang/scope's resolver walk so the two stay in
// sync about what counts as a variable-introducing position.
func collectFreeTypedIdents(body []ast.Expr) []*ast.TypedIdentifier {
	var out []*ast.TypedIdentifier
	var walk func(e ast.Expr)
	walk = func(e ast.Expr) {
		switch n := e.(type) {
		case *ast.TypedIdentifier:
			out = append(out, n)
			if n.Domain != nil {
				walk(n.Domain)
			}
		case *ast.BinaryExpr:
			walk(n.Left)
			walk(n.Right)
		case *ast.UnaryExpr:
			walk(n.Operand)
		case *ast.MemberExpr:
			walk(n.Object)
		case *ast.IndexExpr:
			walk(n.Object)
			walk(n.Key)
		case *ast.CallExpr:
			if _, isToolRef := n.Callee.(*ast.ToolRef); !isToolRef {
				walk(n.Callee)
			}
			for _, a := range n.Args {
				walk(a.Value)
			}
		case *ast.ListLiteral:
			for _, el := range n.Elems {
				walk(el)
			}
		case *ast.ObjectLiteral:
			for _, en := range n.Entries {
				walk(en.Value)
			}
		case *ast.ListComp:
			walk(n.Iter)
			walk(n.Elem)
			if n.Cond != nil {
				walk(n.Cond)
			}
		case *ast.Ternary:
			walk(n.Cond)
			walk(n.Then)
			walk(n.Else)
		case *ast.SemanticPattern:
			// constant sub-expressions inside a pattern never bind a
			// typed identifier (the resolver rejects that), so nothing
			// to collect.
		case *ast.QuantifierExpr:
			// opaque: this quantifier enumerates its own body when Eval
			// reaches it.
		default:
			// literal, identifier, tool ref, value ref, wildcard: leaves.
		}
	}
	for _, e := range body {
		walk(e)
	}
	return out
}

// freeTypedIdents returns one TypedIdentifier occurrence per declaration
// in body not yet bound in store, in first-appearance order, preferring
// for each declaration the occurrence that carries an explicit Domain.
func freeTypedIdents(body []ast.Expr, store engine.Store) []*ast.TypedIdentifier {
	occurrences := collectFreeTypedIdents(body)
	chosen := make(map[*ast.Decl]*ast.TypedIdentifier)
	var order []*ast.Decl
	for _, n := range occurrences {
		if _, bound := store[n.Decl]; bound {
			continue
		}
		prev, seen := chosen[n.Decl]
		if !seen {
			chosen[n.Decl] = n
			order = append(order, n.Decl)
			continue
		}
		if prev.Domain == nil && n.Domain != nil {
			chosen[n.Decl] = n
		}
	}
	out := make([]*ast.TypedIdentifier, len(order))
	for i, d := range order {
		out[i] = chosen[d]
	}
	return out
}

// domainFor materializes the candidate set for n: either the evaluated
// "... in E" expression, or every trace event of n's declared kind.
// deferred is true when n's Domain expression depends on a variable not
// yet bound in the current store, meaning the caller should try binding
// another free variable first and come back to this one.
func domainFor(it *engine.Interpreter, n *ast.TypedIdentifier) (candidates []any, deferred bool, err error) {
	if n.Domain != nil {
		v, err := it.Eval(n.Domain)
		if err != nil {
			return nil, false, err
		}
		if engine.IsUnknown(v) {
			return nil, true, nil
		}
		list, ok := v.([]any)
		if !ok {
			return nil, false, nil
		}
		return list, false, nil
	}
	kind, ok := kindForType(n.Type)
	if !ok {
		return nil, false, nil
	}
	events := it.Context().Trace.EventsOf(kind)
	out := make([]any, len(events))
	for i, e := range events {
		out[i] = e
	}
	return out, false, nil
}

func kindForType(typeName string) (trace.Kind, bool) {
	switch typeName {
	case "Message":
		return trace.KindMessage, true
	case "ToolCall":
		return trace.KindToolCall, true
	case "ToolOutput":
		return trace.KindToolOutput, true
	case "Input":
		return trace.KindInput, true
	default:
		return 0, false
	}
}
