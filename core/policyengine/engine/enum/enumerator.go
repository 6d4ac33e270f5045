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

package enum

import (
	"fmt"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/lang/scope"
	"github.com/ipl-lang/ipl-engine/core/pattern"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

// NewContext builds an engine.Context wired to this package's model
// enumeration for predicate calls and quantifier bodies, so callers never
// have to assemble the CallPredicate/EnumerateQuantifier closures
// themselves. This is the only place those two hooks are bound.
func NewContext(tr *trace.Trace, globals *scope.Global, builtins map[string]engine.Builtin, patterns *pattern.Registry) *engine.Context {
	return &engine.Context{
		Trace:               tr,
		Globals:             globals,
		Builtins:            builtins,
		Patterns:            patterns,
		CallPredicate:       callPredicate,
		EnumerateQuantifier: enumerateQuantifier,
	}
}

// CheckFunc is the extra-check hook: called on each fully-bound
// assignment that evaluated true, before it is yielded as a satisfying
// model. Returning false demotes the assignment (it is reported among the
// unknown models instead), letting a caller reject assignments whose
// downstream action could not be evaluated.
type CheckFunc func(Model) (bool, error)

// EnumerateModels runs the model search over body starting from store:
// it discovers every ast.TypedIdentifier free in body (skipping decls
// already bound in store), materializes each one's candidate set in turn,
// and recursively cross-products over them, evaluating the full
// conjunction once every free variable is bound. limit, if >= 0, stops
// adding further candidates at the current level once more than limit true
// models have been collected, short-circuiting bounded `count`
// quantifiers; pass -1 for no limit.
func EnumerateModels(ctx *engine.Context, body []ast.Expr, store engine.Store, limit int) (trueModels, falseModels, unknownModels []Model, err error) {
	return EnumerateModelsChecked(ctx, body, store, limit, nil)
}

// EnumerateModelsChecked is EnumerateModels with an extra-check callback
// applied to every satisfying assignment.
func EnumerateModelsChecked(ctx *engine.Context, body []ast.Expr, store engine.Store, limit int, check CheckFunc) (trueModels, falseModels, unknownModels []Model, err error) {
	frees := freeTypedIdents(body, store)

	// Pick the first free variable whose domain is decidable under the
	// current partial assignment; a `(v: T) in E` whose E still mentions an
	// unbound variable is deferred until that variable has been bound at a
	// deeper level of the search.
	var free *ast.TypedIdentifier
	var candidates []any
	probe := engine.NewInterpreter(ctx, store)
	for _, f := range frees {
		cs, deferred, err := domainFor(probe, f)
		if err != nil {
			return nil, nil, nil, err
		}
		if deferred {
			continue
		}
		free = f
		candidates = cs
		break
	}

	if free == nil {
		t, marks, err := evalConjunction(ctx, body, store)
		if err != nil {
			return nil, nil, nil, err
		}
		m := Model{Store: store.Clone(), Marks: marks}
		switch t {
		case engine.True:
			if check != nil {
				ok, err := check(m)
				if err != nil {
					return nil, nil, nil, err
				}
				if !ok {
					return nil, nil, []Model{m}, nil
				}
			}
			return []Model{m}, nil, nil, nil
		case engine.False:
			return nil, []Model{m}, nil, nil
		default:
			return nil, nil, []Model{m}, nil
		}
	}

	for _, c := range candidates {
		if ctx.Ctx != nil && ctx.Ctx.Err() != nil {
			// Cooperative cancellation: checked at each task boundary
			// in the enumeration driver rather than mid-candidate.
			return trueModels, falseModels, unknownModels, ctx.Ctx.Err()
		}
		child := store.Clone()
		child[free.Decl] = c
		tm, fm, um, err := EnumerateModelsChecked(ctx, body, child, limit, check)
		if err != nil {
			return nil, nil, nil, err
		}
		trueModels = append(trueModels, tm...)
		falseModels = append(falseModels, fm...)
		unknownModels = append(unknownModels, um...)
		if limit >= 0 && len(trueModels) > limit {
			break
		}
	}
	return trueModels, falseModels, unknownModels, nil
}

// evalConjunction evaluates every clause of body in order against one
// Interpreter (so marks accumulate across the whole conjunction),
// combining results with Kleene AND and stopping early once the result is
// already False.
func evalConjunction(ctx *engine.Context, body []ast.Expr, store engine.Store) (engine.Trilean, []engine.Mark, error) {
	it := engine.NewInterpreter(ctx, store)
	result := engine.True
	for _, clause := range body {
		if ctx.Ctx != nil && ctx.Ctx.Err() != nil {
			return engine.False, it.Marks(), ctx.Ctx.Err()
		}
		if _, bare := clause.(*ast.TypedIdentifier); bare {
			// A clause that is nothing but `(v: T)` only introduces the
			// binder (already resolved into store by the caller); it
			// contributes no constraint of its own to the conjunction.
			continue
		}
		v, err := it.Eval(clause)
		if err != nil {
			return engine.False, it.Marks(), err
		}
		if engine.IsNOP(v) {
			continue
		}
		t, err := engine.ToTrilean(v)
		if err != nil {
			return engine.False, it.Marks(), err
		}
		result = result.And(t)
		if result == engine.False {
			break
		}
	}
	return result, it.Marks(), nil
}

// callPredicate implements engine.CallPredicate: bind decl's formal
// parameters to args and search for the first satisfying assignment over
// decl.Body.
func callPredicate(it *engine.Interpreter, decl *ast.Decl, args []any) (any, error) {
	if len(args) != len(decl.Params) {
		return nil, fmt.Errorf("enum: predicate %q called with %d arguments, want %d", decl.Name, len(args), len(decl.Params))
	}
	store := engine.Store{}
	for i, p := range decl.Params {
		store[p] = args[i]
	}
	trueModels, _, unknownModels, err := EnumerateModels(it.Context(), decl.Body, store, 0)
	if err != nil {
		return nil, err
	}
	if len(trueModels) > 0 {
		it.AddMarks(trueModels[0].Marks)
		return true, nil
	}
	if len(unknownModels) > 0 {
		return engine.UnknownValue, nil
	}
	return false, nil
}

// enumerateQuantifier implements engine.EnumerateQuantifier for both
// `forall` and `count(min=a,max=b)` blocks.
func enumerateQuantifier(it *engine.Interpreter, q *ast.QuantifierExpr) (any, error) {
	ctx := it.Context()
	store := it.Store().Clone()

	switch q.Kind {
	case ast.QForall:
		trueModels, falseModels, unknownModels, err := EnumerateModels(ctx, q.Body, store, -1)
		if err != nil {
			return nil, err
		}
		var result engine.Trilean
		switch {
		case len(falseModels) > 0:
			result = engine.False
			it.AddMarks(falseModels[0].Marks)
		case len(unknownModels) > 0:
			result = engine.Unknown
		default:
			result = engine.True
			for _, m := range trueModels {
				it.AddMarks(m.Marks)
			}
		}
		if q.Negated {
			result = result.Not()
		}
		return engine.TrileanToValue(result), nil

	case ast.QCount:
		max := -1
		if q.HasMax {
			max = q.Max
		}
		trueModels, _, unknownModels, err := EnumerateModels(ctx, q.Body, store, max)
		if err != nil {
			return nil, err
		}
		var result engine.Trilean
		if len(unknownModels) > 0 {
			result = engine.Unknown
		} else {
			count := len(trueModels)
			min := 0
			if q.HasMin {
				min = q.Min
			}
			ok := count >= min && (!q.HasMax || count <= q.Max)
			result = engine.BoolTrilean(ok)
		}
		for _, m := range trueModels {
			it.AddMarks(m.Marks)
		}
		if q.Negated {
			result = result.Not()
		}
		return engine.TrileanToValue(result), nil

	default:
		return nil, fmt.Errorf("enum: unhandled quantifier kind %v", q.Kind)
	}
}
