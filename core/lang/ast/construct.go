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

// Constructors for the node kinds the parser builds. Node's embedded
// base/exprBase/stmtBase/patternBase types are unexported, so a composite
// literal written outside this package cannot set a node's Location;
// these functions can.

func NewLiteral(loc Location, kind LiteralKind, num float64, str string, b bool) *Literal {
	return &Literal{exprBase: exprBase{base{loc}}, Kind: kind, Num: num, Str: str, Bool: b}
}

func NewIdentifier(loc Location, name string) *Identifier {
	return &Identifier{exprBase: exprBase{base{loc}}, Name: name}
}

func NewTypedIdentifier(loc Location, name, typ string, domain Expr) *TypedIdentifier {
	return &TypedIdentifier{exprBase: exprBase{base{loc}}, Name: name, Type: typ, Domain: domain}
}

func NewBinaryExpr(loc Location, op BinaryOp, left, right Expr) *BinaryExpr {
	return &BinaryExpr{exprBase: exprBase{base{loc}}, Op: op, Left: left, Right: right}
}

func NewUnaryExpr(loc Location, op UnaryOp, operand Expr) *UnaryExpr {
	return &UnaryExpr{exprBase: exprBase{base{loc}}, Op: op, Operand: operand}
}

func NewMemberExpr(loc Location, object Expr, name string) *MemberExpr {
	return &MemberExpr{exprBase: exprBase{base{loc}}, Object: object, Name: name}
}

func NewIndexExpr(loc Location, object, key Expr) *IndexExpr {
	return &IndexExpr{exprBase: exprBase{base{loc}}, Object: object, Key: key}
}

func NewCallExpr(loc Location, callee Expr, args []Arg) *CallExpr {
	return &CallExpr{exprBase: exprBase{base{loc}}, Callee: callee, Args: args}
}

func NewListLiteral(loc Location, elems []Expr) *ListLiteral {
	return &ListLiteral{exprBase: exprBase{base{loc}}, Elems: elems}
}

func NewObjectLiteral(loc Location, entries []ObjectEntry) *ObjectLiteral {
	return &ObjectLiteral{exprBase: exprBase{base{loc}}, Entries: entries}
}

func NewListComp(loc Location, elem Expr, varName string, iter, cond Expr) *ListComp {
	return &ListComp{exprBase: exprBase{base{loc}}, Elem: elem, Var: varName, Iter: iter, Cond: cond}
}

func NewTernary(loc Location, cond, then, els Expr) *Ternary {
	return &Ternary{exprBase: exprBase{base{loc}}, Cond: cond, Then: then, Else: els}
}

func NewToolRef(loc Location, name string) *ToolRef {
	return &ToolRef{exprBase: exprBase{base{loc}}, Name: name}
}

func NewValueRefLiteral(loc Location, typeName string) *ValueRefLiteral {
	return &ValueRefLiteral{exprBase: exprBase{base{loc}}, TypeName: typeName}
}

func NewWildcardLiteral(loc Location) *WildcardLiteral {
	return &WildcardLiteral{exprBase: exprBase{base{loc}}}
}

func NewQuantifierExpr(loc Location, kind QuantifierKind, negated bool, min, max int, hasMin, hasMax bool, body []Expr) *QuantifierExpr {
	return &QuantifierExpr{
		exprBase: exprBase{base{loc}},
		Kind:     kind, Negated: negated,
		Min: min, Max: max, HasMin: hasMin, HasMax: hasMax,
		Body: body,
	}
}

func NewRaiseStmt(loc Location, ctor ErrorConstructor, body []Expr) *RaiseStmt {
	return &RaiseStmt{stmtBase: stmtBase{base{loc}}, Error: ctor, Body: body}
}

func NewImportStmt(loc Location, module string, names []ImportName) *ImportStmt {
	return &ImportStmt{stmtBase: stmtBase{base{loc}}, Module: module, Names: names}
}

func NewConstStmt(loc Location, name string, value Expr) *ConstStmt {
	return &ConstStmt{stmtBase: stmtBase{base{loc}}, Name: name, Value: value}
}

func NewPredicateStmt(loc Location, name string, params []TypedIdentifier, body []Expr) *PredicateStmt {
	return &PredicateStmt{stmtBase: stmtBase{base{loc}}, Name: name, Params: params, Body: body}
}
