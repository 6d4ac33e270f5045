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

// Expr is the subset of Node that evaluates to a value (or NOP/Unknown).
type Expr interface {
	Node
	expr()
}

type exprBase struct{ base }

func (exprBase) expr() {}

// LiteralKind distinguishes the literal's value domain.
type LiteralKind uint8

// Literal kinds.
const (
	LitNumber LiteralKind = iota
	LitString
	LitBool
	LitNone
)

// Literal is a number, string, bool, or none literal.
type Literal struct {
	exprBase
	Kind LiteralKind
	Num  float64
	Str  string
	Bool bool
	// A string literal keeps no record of its source presentation: the
	// parser drops any r/f prefix, and f-strings are not interpolated.
}

// Identifier references a declared name. Ref is nil until scope
// resolution runs; after a successful Load it is always non-nil.
type Identifier struct {
	exprBase
	Name string
	Ref  *Decl
}

// TypedIdentifier is the `(name: Type)` binder pattern: it both declares a
// free variable and, when Domain is set, constrains its candidate set via
// `(v: T) in E`.
type TypedIdentifier struct {
	exprBase
	Name   string
	Type   string
	Domain Expr // non-nil for `(v: T) in E`
	Decl   *Decl
}

// BinaryOp enumerates binary operators, including the IPL-specific `is`,
// `->`, `~>`, `:=`, `in`, and `contains_only`.
type BinaryOp string

// Binary operators.
const (
	OpAdd          BinaryOp = "+"
	OpSub          BinaryOp = "-"
	OpMul          BinaryOp = "*"
	OpDiv          BinaryOp = "/"
	OpMod          BinaryOp = "%"
	OpPow          BinaryOp = "**"
	OpEq           BinaryOp = "=="
	OpNEq          BinaryOp = "!="
	OpLT           BinaryOp = "<"
	OpGT           BinaryOp = ">"
	OpLE           BinaryOp = "<="
	OpGE           BinaryOp = ">="
	OpAnd          BinaryOp = "and"
	OpOr           BinaryOp = "or"
	OpIn           BinaryOp = "in"
	OpContainsOnly BinaryOp = "contains_only"
	OpIs           BinaryOp = "is"
	OpFlow         BinaryOp = "->"
	OpSucc         BinaryOp = "~>"
	OpAssign       BinaryOp = ":="
)

// BinaryExpr applies a BinaryOp to two operands.
type BinaryExpr struct {
	exprBase
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// UnaryOp enumerates unary operators.
type UnaryOp string

// Unary operators.
const (
	OpNot UnaryOp = "not"
	OpNeg UnaryOp = "-"
)

// UnaryExpr applies a UnaryOp to one operand.
type UnaryExpr struct {
	exprBase
	Op      UnaryOp
	Operand Expr
}

// MemberExpr accesses `.Name` on Object.
type MemberExpr struct {
	exprBase
	Object Expr
	Name   string
}

// IndexExpr accesses `Object[Key]`.
type IndexExpr struct {
	exprBase
	Object Expr
	Key    Expr
}

// Arg is one call argument, positional (Name == "") or keyword.
type Arg struct {
	Name  string
	Value Expr
}

// CallExpr invokes Callee with positional and keyword arguments.
type CallExpr struct {
	exprBase
	Callee Expr
	Args   []Arg
}

// ListLiteral is a `[e1, e2, ...]` literal.
type ListLiteral struct {
	exprBase
	Elems []Expr
}

// ObjectEntry is one `key: value` pair of an ObjectLiteral.
type ObjectEntry struct {
	Key   string
	Value Expr
}

// ObjectLiteral is a `{k1: v1, ...}` literal.
type ObjectLiteral struct {
	exprBase
	Entries []ObjectEntry
}

// ListComp is a `[Elem for Var in Iter if Cond]` comprehension. It
// introduces its own lexical scope.
type ListComp struct {
	exprBase
	Elem Expr
	Var  string
	Decl *Decl
	Iter Expr
	Cond Expr // nil if no filter
}

// Ternary is `Then if Cond else Else`.
type Ternary struct {
	exprBase
	Cond Expr
	Then Expr
	Else Expr
}

// ValueRefLiteral is the expression-level form of a `<TYPE_NAME>`
// value-reference, produced by the parser wherever it appears; the
// invariant that it may only occur inside a semantic pattern is checked by
// the scope resolver, not by the grammar.
type ValueRefLiteral struct {
	exprBase
	TypeName string
}

// WildcardLiteral is the expression-level form of a bare `*`, produced by
// the parser wherever it appears; as with ValueRefLiteral, the
// pattern-only-context invariant is enforced during scope resolution.
type WildcardLiteral struct {
	exprBase
}

// ToolRef is a bare `tool:name` reference, matching a tool call (or the
// tool call backing a tool output) by name, with no argument pattern.
type ToolRef struct {
	exprBase
	Name string // may be a regex when used inside a SemanticPattern
}

// PatternNode is the sum type of semantic-pattern sub-matchers:
// Wildcard, ValueRef, a nested PatternObject/PatternList, or a plain Expr
// used as a constant matcher.
type PatternNode interface {
	Node
	pattern()
}

type patternBase struct{ base }

func (patternBase) pattern() {}

// Wildcard is the `*` pattern: always matches.
type Wildcard struct{ patternBase }

// ValueRef is a `<TYPE_NAME>` value-reference pattern, delegating to the
// detector registry.
type ValueRef struct {
	patternBase
	TypeName string
}

// PatternEntry is one `key: pattern` pair inside a PatternObject.
type PatternEntry struct {
	Key     string
	Pattern PatternNode
}

// PatternObject is the `{ key1: P1, ... }` dict-matcher pattern. Keys the
// pattern does not name are unconstrained; a trailing `, *` rest-marker in
// the surface syntax is accepted and carries no additional meaning.
type PatternObject struct {
	patternBase
	Entries []PatternEntry
}

// PatternList is a list-matcher pattern: length must match, elementwise.
type PatternList struct {
	patternBase
	Elems []PatternNode
}

// PatternConst wraps a plain Expr (literal or identifier) used as an
// equality/regex constant matcher.
type PatternConst struct {
	patternBase
	Value Expr
}

// SemanticPattern is `tool:NAME({...}, *)`, compiled from a ToolRef call
// or from a tool-call function call rewritten by RewriteToolCalls.
type SemanticPattern struct {
	exprBase
	ToolName string
	Arg      PatternNode // nil if the pattern has no object argument
}

// QuantifierKind distinguishes `forall` from `count`.
type QuantifierKind uint8

// Quantifier kinds.
const (
	QForall QuantifierKind = iota
	QCount
)

// QuantifierExpr is a `(not)? forall:` or `count(min=a,max=b):` block
// followed by an indented conjunctive body.
type QuantifierExpr struct {
	exprBase
	Kind     QuantifierKind
	Negated  bool
	Min, Max int  // only meaningful for QCount
	HasMin   bool
	HasMax   bool
	Body     []Expr
}
