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
	"strings"
	"unicode/utf8"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/pattern"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

// Eval evaluates e against its Context and Store under the three-valued
// semantics. Rather than compiling each rule to a closure ahead of
// evaluation, Eval walks the already-typed ast.Expr tree directly on every
// call: each candidate assignment built by model enumeration needs its own
// pass and the tree is cheap to retraverse.
func (it *Interpreter) Eval(e ast.Expr) (any, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return evalLiteral(n), nil

	case *ast.Identifier:
		return it.evalIdentifier(n)

	case *ast.TypedIdentifier:
		return it.evalTypedIdentifier(n)

	case *ast.BinaryExpr:
		return it.evalBinary(n)

	case *ast.UnaryExpr:
		return it.evalUnary(n)

	case *ast.MemberExpr:
		return it.evalMember(n)

	case *ast.IndexExpr:
		return it.evalIndex(n)

	case *ast.CallExpr:
		return it.evalCall(n)

	case *ast.ListLiteral:
		return it.evalListLiteral(n)

	case *ast.ObjectLiteral:
		return it.evalObjectLiteral(n)

	case *ast.ListComp:
		return it.evalListComp(n)

	case *ast.Ternary:
		return it.evalTernary(n)

	case *ast.QuantifierExpr:
		if it.ctx.EnumerateQuantifier == nil {
			return nil, fmt.Errorf("engine: no quantifier enumerator configured")
		}
		return it.ctx.EnumerateQuantifier(it, n)

	case *ast.SemanticPattern:
		return nil, fmt.Errorf("engine: a tool pattern is only valid as the right side of 'is'")

	case *ast.ToolRef:
		return nil, fmt.Errorf("engine: a bare tool: reference is only valid as the right side of 'is'")

	default:
		return nil, fmt.Errorf("engine: unhandled expression kind %T", e)
	}
}

func evalLiteral(n *ast.Literal) any {
	switch n.Kind {
	case ast.LitNumber:
		return n.Num
	case ast.LitString:
		return n.Str
	case ast.LitBool:
		return n.Bool
	default:
		return nil
	}
}

func (it *Interpreter) evalIdentifier(n *ast.Identifier) (any, error) {
	if n.Ref == nil {
		return nil, fmt.Errorf("engine: internal: %q was never resolved", n.Name)
	}
	if v, ok := it.store[n.Ref]; ok {
		return v, nil
	}
	switch n.Ref.Kind {
	case ast.DeclConst:
		return it.Eval(n.Ref.Value)
	case ast.DeclPredicate:
		// A predicate referenced without a call is a value error; callers
		// go through evalCall instead. Surfacing it here keeps Eval total.
		return nil, fmt.Errorf("engine: predicate %q must be called", n.Name)
	default:
		if it.ctx.Globals != nil && n.Ref == it.ctx.Globals.Input {
			if in := it.ctx.Trace.Input(); in != nil {
				return in, nil
			}
		}
		return UnknownValue, nil
	}
}

// evalTypedIdentifier returns the value currently bound to a `(v: T)`
// binder. Model enumeration is responsible for populating it.store before
// Eval ever visits the identifier's later uses; if it hasn't yet, the
// binder's own candidate hasn't been chosen for this branch, which is
// Unknown rather than an error.
func (it *Interpreter) evalTypedIdentifier(n *ast.TypedIdentifier) (any, error) {
	if v, ok := it.store[n.Decl]; ok {
		return v, nil
	}
	return UnknownValue, nil
}

func (it *Interpreter) evalUnary(n *ast.UnaryExpr) (any, error) {
	v, err := it.Eval(n.Operand)
	if err != nil {
		return nil, err
	}
	if IsUnknown(v) {
		return UnknownValue, nil
	}
	switch n.Op {
	case ast.OpNot:
		t, err := ToTrilean(v)
		if err != nil {
			return nil, err
		}
		return trileanToValue(t.Not()), nil
	case ast.OpNeg:
		f, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("engine: '-' requires a number, got %T", v)
		}
		return -f, nil
	default:
		return nil, fmt.Errorf("engine: unhandled unary operator %q", n.Op)
	}
}

// trileanToValue is a local alias kept for readability at call sites in
// this file; see TrileanToValue in trilean.go for the shared
// implementation (also used by core/policyengine/engine/enum).
func trileanToValue(t Trilean) any { return TrileanToValue(t) }

func (it *Interpreter) evalBinary(n *ast.BinaryExpr) (any, error) {
	switch n.Op {
	case ast.OpAssign:
		v, err := it.Eval(n.Right)
		if err != nil {
			return nil, err
		}
		if id, ok := n.Left.(*ast.Identifier); ok && id.Ref != nil {
			it.store[id.Ref] = v
		}
		return NOP, nil

	case ast.OpAnd:
		return it.evalShortCircuit(n.Left, n.Right, true)
	case ast.OpOr:
		return it.evalShortCircuit(n.Left, n.Right, false)

	case ast.OpIs:
		return it.evalIs(n.Left, n.Right)
	}

	left, err := it.Eval(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := it.Eval(n.Right)
	if err != nil {
		return nil, err
	}
	if IsUnknown(left) || IsUnknown(right) {
		return UnknownValue, nil
	}

	switch n.Op {
	case ast.OpFlow:
		return it.evalFlow(left, right)
	case ast.OpSucc:
		return it.evalSucc(left, right)
	case ast.OpIn:
		return it.evalInMarked(n.Right, left, right)
	case ast.OpContainsOnly:
		return it.evalContainsOnly(left, right)
	default:
		return evalOperator(n.Op, left, right)
	}
}

// evalInMarked wraps evalIn to additionally record a character-range mark
// when the match is a substring search whose right operand is a direct
// field access on a trace event — the common `"X" in m.content` shape.
// rightExpr is re-evaluated (cheaply: field access has no side effects)
// only to recover the trace object and field name for the mark; the match
// result itself comes from the already-evaluated left/right values.
func (it *Interpreter) evalInMarked(rightExpr ast.Expr, left, right any) (any, error) {
	ok, err := it.evalIn(left, right)
	if err != nil || ok != true {
		return ok, err
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if !lok || !rok {
		return ok, nil
	}
	mem, isMember := rightExpr.(*ast.MemberExpr)
	if !isMember {
		return ok, nil
	}
	obj, err := it.Eval(mem.Object)
	if err != nil || IsUnknown(obj) {
		return ok, nil
	}
	ev, isEvent := obj.(trace.Event)
	if !isEvent {
		return ok, nil
	}
	// One character-level mark per non-overlapping occurrence.
	for from := 0; from < len(rs); {
		idx := strings.Index(rs[from:], ls)
		if idx < 0 {
			break
		}
		start := from + idx
		charStart := utf8.RuneCountInString(rs[:start])
		it.mark(Mark{Object: ev, Field: mem.Name, Start: charStart, End: charStart + utf8.RuneCountInString(ls)})
		from = start + len(ls)
		if ls == "" {
			break
		}
	}
	return ok, nil
}

// evalShortCircuit implements `and`/`or` with Kleene semantics: the
// short-circuiting branch only fires on a *known* deciding value, since an
// Unknown left operand for `and` still needs the right operand evaluated to
// tell False from Unknown.
func (it *Interpreter) evalShortCircuit(leftExpr, rightExpr ast.Expr, isAnd bool) (any, error) {
	lv, err := it.Eval(leftExpr)
	if err != nil {
		return nil, err
	}
	lt, err := triValue(lv)
	if err != nil {
		return nil, err
	}
	if (isAnd && lt == False) || (!isAnd && lt == True) {
		return trileanToValue(lt), nil
	}

	rv, err := it.Eval(rightExpr)
	if err != nil {
		return nil, err
	}
	rt, err := triValue(rv)
	if err != nil {
		return nil, err
	}
	if isAnd {
		return trileanToValue(lt.And(rt)), nil
	}
	return trileanToValue(lt.Or(rt)), nil
}

func triValue(v any) (Trilean, error) {
	if IsUnknown(v) {
		return Unknown, nil
	}
	return ToTrilean(v)
}

// evalIs implements `is`: identity against None, or a semantic-pattern
// match against a tool call when the right side is a bare tool: reference
// or tool pattern.
func (it *Interpreter) evalIs(leftExpr, rightExpr ast.Expr) (any, error) {
	left, err := it.Eval(leftExpr)
	if err != nil {
		return nil, err
	}
	if IsUnknown(left) {
		return UnknownValue, nil
	}

	switch rn := rightExpr.(type) {
	case *ast.Literal:
		if rn.Kind == ast.LitNone {
			return left == nil, nil
		}
	case *ast.ToolRef:
		sp := &ast.SemanticPattern{ToolName: rn.Name}
		return it.evalPatternMatch(sp, left)
	case *ast.SemanticPattern:
		return it.evalPatternMatch(rn, left)
	case *ast.UnaryExpr:
		if rn.Op == ast.OpNot {
			v, err := it.evalIs(leftExpr, rn.Operand)
			if err != nil {
				return nil, err
			}
			t, err := triValue(v)
			if err != nil {
				return nil, err
			}
			return trileanToValue(t.Not()), nil
		}
	}
	right, err := it.Eval(rightExpr)
	if err != nil {
		return nil, err
	}
	if IsUnknown(right) {
		return UnknownValue, nil
	}
	return left == right, nil
}

func (it *Interpreter) evalPatternMatch(sp *ast.SemanticPattern, left any) (any, error) {
	var call *trace.ToolCall
	switch v := left.(type) {
	case *trace.ToolCall:
		call = v
	case *trace.ToolOutput:
		if v.ToolCall() == nil {
			return false, nil
		}
		call = v.ToolCall()
	default:
		return false, nil
	}
	ok, err := pattern.MatchToolCall(sp, call, it.ctx.Patterns, it.evalConst)
	if err != nil {
		return nil, err
	}
	if ok {
		it.mark(Mark{Object: call, Field: "function.name", Start: -1, End: -1})
	}
	return ok, nil
}

func (it *Interpreter) evalConst(e ast.Expr) (any, error) {
	v, err := it.Eval(e)
	if err != nil {
		return nil, err
	}
	if IsUnknown(v) {
		return nil, fmt.Errorf("engine: pattern constant could not be resolved")
	}
	return v, nil
}

func (it *Interpreter) evalFlow(left, right any) (any, error) {
	a, ok1 := left.(trace.Event)
	b, ok2 := right.(trace.Event)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("engine: '->' requires two trace events")
	}
	ok := it.ctx.Trace.Flow(a, b)
	if ok {
		it.mark(Mark{Object: b, Start: -1, End: -1})
	}
	return ok, nil
}

func (it *Interpreter) evalSucc(left, right any) (any, error) {
	a, ok1 := left.(trace.Event)
	b, ok2 := right.(trace.Event)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("engine: '~>' requires two trace events")
	}
	return it.ctx.Trace.ImmediateSuccessor(a, b), nil
}

// evalIn implements `in`: string-in-string substring search (the mark is
// recorded by evalInMarked), or membership in a list/dict. `<value> in None` is false, never an error
// (Open Question (a)).
func (it *Interpreter) evalIn(left, right any) (any, error) {
	if right == nil {
		return false, nil
	}
	switch rv := right.(type) {
	case string:
		lv, ok := left.(string)
		if !ok {
			return nil, fmt.Errorf("engine: 'in' on a string requires a string left operand")
		}
		if !strings.Contains(rv, lv) {
			return false, nil
		}
		return true, nil
	case []any:
		for _, el := range rv {
			if valuesEqual(left, el) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := left.(string)
		if !ok {
			return false, nil
		}
		_, present := rv[key]
		return present, nil
	default:
		return nil, fmt.Errorf("engine: 'in' is not defined for %T", right)
	}
}

// evalContainsOnly implements `contains_only`: every element of left must
// appear in right (the allowed set), left being a list.
func (it *Interpreter) evalContainsOnly(left, right any) (any, error) {
	lv, ok := left.([]any)
	if !ok {
		return nil, fmt.Errorf("engine: 'contains_only' requires a list left operand")
	}
	rv, ok := right.([]any)
	if !ok {
		return nil, fmt.Errorf("engine: 'contains_only' requires a list right operand")
	}
	for _, el := range lv {
		found := false
		for _, allowed := range rv {
			if valuesEqual(el, allowed) {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

func (it *Interpreter) evalMember(n *ast.MemberExpr) (any, error) {
	obj, err := it.Eval(n.Object)
	if err != nil {
		return nil, err
	}
	if IsUnknown(obj) {
		return UnknownValue, nil
	}
	return memberAccess(obj, n.Name)
}

func (it *Interpreter) evalIndex(n *ast.IndexExpr) (any, error) {
	obj, err := it.Eval(n.Object)
	if err != nil {
		return nil, err
	}
	key, err := it.Eval(n.Key)
	if err != nil {
		return nil, err
	}
	if IsUnknown(obj) || IsUnknown(key) {
		return UnknownValue, nil
	}
	return indexAccess(obj, key)
}

func (it *Interpreter) evalListLiteral(n *ast.ListLiteral) (any, error) {
	out := make([]any, len(n.Elems))
	for i, el := range n.Elems {
		v, err := it.Eval(el)
		if err != nil {
			return nil, err
		}
		if IsUnknown(v) {
			return UnknownValue, nil
		}
		out[i] = v
	}
	return out, nil
}

func (it *Interpreter) evalObjectLiteral(n *ast.ObjectLiteral) (any, error) {
	out := make(map[string]any, len(n.Entries))
	for _, en := range n.Entries {
		v, err := it.Eval(en.Value)
		if err != nil {
			return nil, err
		}
		if IsUnknown(v) {
			return UnknownValue, nil
		}
		out[en.Key] = v
	}
	return out, nil
}

func (it *Interpreter) evalListComp(n *ast.ListComp) (any, error) {
	iter, err := it.Eval(n.Iter)
	if err != nil {
		return nil, err
	}
	items, ok := iter.([]any)
	if !ok {
		if IsUnknown(iter) {
			return UnknownValue, nil
		}
		return nil, fmt.Errorf("engine: list comprehension requires an iterable, got %T", iter)
	}
	var out []any
	for _, item := range items {
		it.store[n.Decl] = item
		if n.Cond != nil {
			cv, err := it.Eval(n.Cond)
			if err != nil {
				return nil, err
			}
			ct, err := triValue(cv)
			if err != nil {
				return nil, err
			}
			if ct != True {
				continue
			}
		}
		ev, err := it.Eval(n.Elem)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	delete(it.store, n.Decl)
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func (it *Interpreter) evalTernary(n *ast.Ternary) (any, error) {
	cv, err := it.Eval(n.Cond)
	if err != nil {
		return nil, err
	}
	ct, err := triValue(cv)
	if err != nil {
		return nil, err
	}
	switch ct {
	case True:
		return it.Eval(n.Then)
	case False:
		return it.Eval(n.Else)
	default:
		return UnknownValue, nil
	}
}

// evalCall dispatches a call expression by the callee's shape: a predicate
// identifier goes through the CallPredicate hook (which itself needs model
// enumeration over the predicate's own body), a plain identifier is looked
// up in the builtins registry, and anything else must be a method call on
// its receiver (`s.split(...)`, `d.get(...)`), handled by evalMethodCall.
func (it *Interpreter) evalCall(n *ast.CallExpr) (any, error) {
	if mem, ok := n.Callee.(*ast.MemberExpr); ok {
		return it.evalMethodCall(mem, n.Args)
	}

	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		v, err := it.Eval(a.Value)
		if err != nil {
			return nil, err
		}
		if IsUnknown(v) {
			return UnknownValue, nil
		}
		args[i] = v
	}

	if id, ok := n.Callee.(*ast.Identifier); ok && id.Ref != nil && id.Ref.Kind == ast.DeclPredicate {
		if it.ctx.CallPredicate == nil {
			return nil, fmt.Errorf("engine: no predicate evaluator configured")
		}
		return it.ctx.CallPredicate(it, id.Ref, args)
	}

	if id, ok := n.Callee.(*ast.Identifier); ok {
		name := id.Name
		if id.Ref != nil && id.Ref.Kind == ast.DeclImport && id.Ref.Symbol != "" {
			// An aliased import (`from M import X as Z`) calls through the
			// imported symbol's registered name, not the local alias.
			name = id.Ref.Symbol
		}
		if fn, ok := it.ctx.Builtins[name]; ok {
			return fn(args)
		}
		return nil, fmt.Errorf("engine: undefined function %q", name)
	}

	return nil, fmt.Errorf("engine: expression is not callable")
}

func (it *Interpreter) evalMethodCall(mem *ast.MemberExpr, callArgs []ast.Arg) (any, error) {
	recv, err := it.Eval(mem.Object)
	if err != nil {
		return nil, err
	}
	if IsUnknown(recv) {
		return UnknownValue, nil
	}
	args := make([]any, len(callArgs))
	for i, a := range callArgs {
		v, err := it.Eval(a.Value)
		if err != nil {
			return nil, err
		}
		if IsUnknown(v) {
			return UnknownValue, nil
		}
		args[i] = v
	}
	return methodCall(recv, mem.Name, args)
}
