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
	"context"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/lang/scope"
	"github.com/ipl-lang/ipl-engine/core/pattern"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

// Builtin is a registered free function (`len(x)`, `any(xs)`, `match(...)`,
// ...) or predicate-like callable supplied by core/stdlib.
type Builtin func(args []any) (any, error)

// Mark records that evaluating some sub-expression touched a character range of
// one trace object — the raw material the address syntax
// (`messages.<i>.<field>...:<start>-<end>`) localizes from. A Mark with
// Start == End == -1 means "the whole object", used when the match isn't
// string-range-addressable (e.g. a tool pattern match against a dict
// argument).
type Mark struct {
	Object     trace.Event
	Field      string // dotted path within Object, e.g. "function.name"
	Start, End int
}

// CallPredicate invokes a user-defined predicate (an ast.Decl of kind
// DeclPredicate) with already-evaluated argument values, returning its
// three-valued result. EnumerateQuantifier runs the model-enumeration
// search over a QuantifierExpr's body in the current Store,
// returning its combined result and any marks collected along any
// satisfying (or, for `forall`, any violating) assignment.
//
// Both are supplied by the higher-level core/policyengine/engine/enum
// package at Context construction time rather than imported directly: enum
// depends on Interpreter.Eval to test candidate assignments, so engine
// cannot import enum without a cycle; the seam is a function field
// instead of an interface so neither package names the other.
type CallPredicate func(it *Interpreter, decl *ast.Decl, args []any) (any, error)
type EnumerateQuantifier func(it *Interpreter, q *ast.QuantifierExpr) (any, error)

// Context is the read-only environment one Eval call runs under: the trace
// being checked, the policy's resolved globals, the registered builtins and
// semantic-pattern detectors, and the two enumeration hooks above. It is
// shared by every Interpreter evaluating candidate assignments for the same
// rule, so it carries no mutable evaluation state itself (that lives in
// Store).
type Context struct {
	Ctx      context.Context
	Trace    *trace.Trace
	Globals  *scope.Global
	Builtins map[string]Builtin
	Patterns *pattern.Registry

	CallPredicate       CallPredicate
	EnumerateQuantifier EnumerateQuantifier
}

// Store is the mutable variable bindings of one candidate assignment: the
// concrete trace.Event (or other value) bound to each ast.Decl currently in
// play, keyed by declaration identity rather than name so that two
// same-named binders in disjoint scopes never collide.
type Store map[*ast.Decl]any

// Clone returns an independent copy of s, used by model enumeration before
// trying a new candidate binding so that a failed candidate cannot leak a
// partial assignment into a sibling one.
func (s Store) Clone() Store {
	out := make(Store, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Interpreter evaluates one ast.Expr tree against a Context and a Store. It
// holds no state beyond those two references and the marks accumulated
// along the way, so a fresh Interpreter is cheap to create per candidate
// assignment; evaluation must be safe to run concurrently across
// candidates.
type Interpreter struct {
	ctx   *Context
	store Store
	marks []Mark
}

// NewInterpreter returns an Interpreter evaluating against store in ctx.
func NewInterpreter(ctx *Context, store Store) *Interpreter {
	return &Interpreter{ctx: ctx, store: store}
}

// Context returns the evaluation environment, for use by callback hooks
// that need to spin up a child Interpreter (e.g. EnumerateQuantifier).
func (it *Interpreter) Context() *Context { return it.ctx }

// Store returns the current variable bindings.
func (it *Interpreter) Store() Store { return it.store }

// Marks returns every range localization mark collected by this
// Interpreter's Eval calls so far.
func (it *Interpreter) Marks() []Mark { return it.marks }

func (it *Interpreter) mark(m Mark) { it.marks = append(it.marks, m) }

// AddMarks merges marks collected by a sub-evaluation (a predicate call or
// a quantifier's inner enumeration) into it, so ranges propagate to the
// enclosing interpreter when that sub-evaluation unwinds.
func (it *Interpreter) AddMarks(marks []Mark) { it.marks = append(it.marks, marks...) }
