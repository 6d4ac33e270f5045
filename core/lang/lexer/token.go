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

// Package lexer turns IPL source text into a token stream, first rewriting
// indentation into explicit INDENT/DEDENT markers so the grammar
// consumed by core/lang/parser is strictly context-free.
package lexer

// Kind identifies a token's lexical class.
type Kind uint8

// Token kinds.
const (
	EOF Kind = iota
	NEWLINE
	INDENT
	DEDENT
	IDENT
	NUMBER
	STRING
	KEYWORD
	OP
	TOOLREF    // `tool:name`
	VALUEREF   // `<NAME>`
	LPAREN
	RPAREN
	LBRACKET
	RBRACKET
	LBRACE
	RBRACE
	COMMA
	COLON
	DOT
	STAR
)

// Token is one lexical unit, carrying enough of the original-source
// position to anchor AST node Locations.
type Token struct {
	Kind   Kind
	Text   string
	Line   int
	Column int
	File   string
}

var keywords = map[string]bool{
	"raise": true, "if": true, "else": true, "for": true, "in": true,
	"import": true, "from": true, "as": true, "def": true,
	"and": true, "or": true, "not": true, "is": true, "forall": true,
	"count": true, "None": true, "True": true, "False": true,
	"contains_only": true,
}

// IsKeyword reports whether text is a reserved IPL keyword.
func IsKeyword(text string) bool { return keywords[text] }
