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

package ast

// DeclKind classifies how a Decl entered scope.
type DeclKind uint8

// Declaration kinds.
const (
	DeclTyped     DeclKind = iota // (v: T)
	DeclIn                        // (v: T) in E
	DeclAssign                    // v := E
	DeclImport                    // import X / from M import X
	DeclPredicate                 // def name(...): ...
	DeclConst                     // top-level name := E
	DeclParam                     // predicate formal parameter
	DeclComp                      // list-comprehension binder
)

// Decl is a single binding site introduced into a lexical Scope. Identifier
// nodes hold a pointer to the Decl they resolve to; after a successful
// Load, every Identifier.Ref is non-nil.
type Decl struct {
	Name string
	Type string // declared type name, e.g. "ToolCall"; "" if untyped
	Kind DeclKind
	Loc  Location

	// Module/Symbol are set for DeclImport: the external predicate or
	// module this name was bound to.
	Module string
	Symbol string

	// Body is set for DeclPredicate: the predicate's parameter list and
	// expression body.
	Params []*Decl
	Body   []Expr

	// Value is set for DeclConst: the top-level constant's expression.
	Value Expr
}
