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

// RewriteToolCalls runs the post-parse transform: every call whose callee
// is a bare ToolRef — `tool:name(obj)` or `tool:name(obj, *)` — is
// rewritten into a SemanticPattern. The rewrite is a standalone tree pass
// rather than inline in the grammar.
func RewriteToolCalls(p *Policy) {
	for _, s := range p.Statements {
		rewriteStmt(s)
	}
}

func rewriteStmt(s Stmt) {
	switch n := s.(type) {
	case *RaiseStmt:
		n.Body = rewriteExprs(n.Body)
		if n.Error.Expr != nil {
			n.Error.Expr = rewriteExpr(n.Error.Expr)
		}
	case *PredicateStmt:
		n.Body = rewriteExprs(n.Body)
	case *ConstStmt:
		n.Value = rewriteExpr(n.Value)
	}
}

func rewriteExprs(es []Expr) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = rewriteExpr(e)
	}
	return out
}

func rewriteExpr(e Expr) Expr {
	switch n := e.(type) {
	case *CallExpr:
		n.Callee = rewriteExpr(n.Callee)
		for i := range n.Args {
			n.Args[i].Value = rewriteExpr(n.Args[i].Value)
		}
		if ref, ok := n.Callee.(*ToolRef); ok {
			return callToPattern(ref, n)
		}
		return n
	case *BinaryExpr:
		n.Left = rewriteExpr(n.Left)
		n.Right = rewriteExpr(n.Right)
		return n
	case *UnaryExpr:
		n.Operand = rewriteExpr(n.Operand)
		return n
	case *MemberExpr:
		n.Object = rewriteExpr(n.Object)
		return n
	case *IndexExpr:
		n.Object = rewriteExpr(n.Object)
		n.Key = rewriteExpr(n.Key)
		return n
	case *ListLiteral:
		for i := range n.Elems {
			n.Elems[i] = rewriteExpr(n.Elems[i])
		}
		return n
	case *ObjectLiteral:
		for i := range n.Entries {
			n.Entries[i].Value = rewriteExpr(n.Entries[i].Value)
		}
		return n
	case *ListComp:
		n.Elem = rewriteExpr(n.Elem)
		n.Iter = rewriteExpr(n.Iter)
		if n.Cond != nil {
			n.Cond = rewriteExpr(n.Cond)
		}
		return n
	case *Ternary:
		n.Cond = rewriteExpr(n.Cond)
		n.Then = rewriteExpr(n.Then)
		n.Else = rewriteExpr(n.Else)
		return n
	case *QuantifierExpr:
		n.Body = rewriteExprs(n.Body)
		return n
	default:
		return e
	}
}

// callToPattern converts `tool:name(arg)` / `tool:name(arg, *)` into a
// SemanticPattern. arg must be an ObjectLiteral, Wildcard identifier `*`,
// or absent (a bare tool-name pattern).
func callToPattern(ref *ToolRef, call *CallExpr) Expr {
	sp := &SemanticPattern{exprBase: exprBase{base{call.Loc()}}, ToolName: ref.Name}
	for _, a := range call.Args {
		if a.Name != "" {
			continue
		}
		pat := exprToPattern(a.Value)
		if _, isWild := pat.(*Wildcard); isWild && sp.Arg != nil {
			// Trailing `, *` rest-marker: unnamed keys are unconstrained
			// either way, so the marker is accepted and dropped.
			continue
		}
		sp.Arg = pat
	}
	return sp
}

// exprToPattern lowers an already-parsed expression into a PatternNode for
// the post-parse tool-call rewrite above; the parser itself never builds
// pattern nodes.
func exprToPattern(e Expr) PatternNode {
	switch n := e.(type) {
	case *ObjectLiteral:
		entries := make([]PatternEntry, 0, len(n.Entries))
		for _, en := range n.Entries {
			entries = append(entries, PatternEntry{Key: en.Key, Pattern: exprToPattern(en.Value)})
		}
		return &PatternObject{patternBase: patternBase{base{n.Loc()}}, Entries: entries}
	case *ListLiteral:
		elems := make([]PatternNode, 0, len(n.Elems))
		for _, el := range n.Elems {
			elems = append(elems, exprToPattern(el))
		}
		return &PatternList{patternBase: patternBase{base{n.Loc()}}, Elems: elems}
	case *WildcardLiteral:
		return &Wildcard{patternBase{base{n.Loc()}}}
	case *ValueRefLiteral:
		return &ValueRef{patternBase: patternBase{base{n.Loc()}}, TypeName: n.TypeName}
	default:
		return &PatternConst{patternBase: patternBase{base{e.Loc()}}, Value: e}
	}
}
