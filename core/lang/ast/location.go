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

// Package ast defines the IPL abstract syntax tree. Every node kind is a
// distinct Go struct implementing Node; there is no visitor dispatch keyed
// by runtime type name, only a closed switch over the concrete type.
package ast

import "fmt"

// Location marks a node's origin in the original (pre-indent-rewrite)
// source text.
type Location struct {
	File   string
	Line   int
	Column int
}

// String renders the location as "file:line:col".
func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Node is implemented by every AST node. Loc returns the node's source
// span start; the unexported node() marker means Node can only be
// implemented within this package (a closed sum type).
type Node interface {
	Loc() Location
	node()
}

// base is embedded by every concrete node to supply Loc() and the
// unexported node() marker.
type base struct {
	Location Location
}

func (b base) Loc() Location { return b.Location }
func (base) node()            {}
