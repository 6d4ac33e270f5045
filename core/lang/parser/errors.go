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

// Package parser implements a hand-written recursive-descent parser over
// the INDENT/DEDENT-rewritten token stream produced by core/lang/lexer.
// The AST is a closed sum type pattern-matched during evaluation, and a
// hand-rolled descent parser fits that shape directly.
package parser

import (
	"fmt"
	"strings"
)

// SourceError is one parse-/load-time diagnostic anchored to a source
// position, with enough context to render a caret-annotated window.
type SourceError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e SourceError) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// LoadError aggregates every diagnostic found while loading one policy
// source — parse errors plus, once scope resolution runs, unresolved-name
// and duplicate-declaration errors appended into the same list.
type LoadError struct {
	Errors []SourceError
	Source string // original source text, for caret rendering
}

func (e *LoadError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d error(s) loading policy:\n", len(e.Errors))
	for _, se := range e.Errors {
		sb.WriteString("  " + se.String() + "\n")
	}
	return sb.String()
}

// Pretty renders every error with a caret-annotated window into the
// original source, for verbose diagnostics.
func (e *LoadError) Pretty() string {
	lines := strings.Split(e.Source, "\n")
	var sb strings.Builder
	for _, se := range e.Errors {
		fmt.Fprintf(&sb, "%s\n", se.String())
		if se.Line-1 >= 0 && se.Line-1 < len(lines) {
			src := lines[se.Line-1]
			fmt.Fprintf(&sb, "  %s\n", src)
			col := se.Column
			if col < 1 {
				col = 1
			}
			sb.WriteString("  " + strings.Repeat(" ", col-1) + "^\n")
		}
	}
	return sb.String()
}
