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

// Package scope resolves every ast.Identifier and ast.TypedIdentifier in a
// loaded ast.Policy to the ast.Decl it binds or references, in two passes:
// first every top-level import/const/predicate declaration is collected
// into a Global environment, then each rule and predicate body is walked
// resolving names against a scope chain rooted at that Global.
package scope

import "github.com/ipl-lang/ipl-engine/core/lang/ast"

// Global is the resolved top-level environment of one loaded policy: every
// name a rule body may reference without a local binding.
type Global struct {
	Consts     map[string]*ast.Decl
	Predicates map[string]*ast.Decl
	Imports    map[string]*ast.Decl

	// Input is the implicit declaration behind the reserved `input`
	// identifier: it resolves in every policy without being declared,
	// and the interpreter binds it to the Input pseudo-event wrapping the
	// policy parameters passed to Analyze. A local binder of the same name
	// shadows it like any other global.
	Input *ast.Decl
}

func newGlobal() *Global {
	return &Global{
		Consts:     map[string]*ast.Decl{},
		Predicates: map[string]*ast.Decl{},
		Imports:    map[string]*ast.Decl{},
		Input:      &ast.Decl{Name: "input", Type: "Input", Kind: ast.DeclTyped},
	}
}

// lookup finds name among consts, predicates, imports, and the
// reserved `input` identifier, in that precedence order.
func (g *Global) lookup(name string) (*ast.Decl, bool) {
	if d, ok := g.Consts[name]; ok {
		return d, true
	}
	if d, ok := g.Predicates[name]; ok {
		return d, true
	}
	if d, ok := g.Imports[name]; ok {
		return d, true
	}
	if name == "input" {
		return g.Input, true
	}
	return nil, false
}

// scope is one local lexical level: a rule body, a predicate body, or a
// list-comprehension binder. Lookups fall through to parent, and ultimately
// to Global.
type scope struct {
	parent *scope
	global *Global
	names  map[string]*ast.Decl
}

func newScope(parent *scope, global *Global) *scope {
	return &scope{parent: parent, global: global, names: map[string]*ast.Decl{}}
}

func (s *scope) child() *scope {
	return newScope(s, s.global)
}

// declare binds name to d in this scope level, returning the existing Decl
// instead if name was already bound here (repeated `(x: T)` binders for the
// same free variable resolve to one Decl).
func (s *scope) declare(name string, d *ast.Decl) *ast.Decl {
	if existing, ok := s.names[name]; ok {
		return existing
	}
	s.names[name] = d
	return d
}

// resolve looks up name through the scope chain and finally Global.
func (s *scope) resolve(name string) (*ast.Decl, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if d, ok := cur.names[name]; ok {
			return d, true
		}
	}
	if s.global != nil {
		return s.global.lookup(name)
	}
	return nil, false
}
