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

package scope

import (
	"fmt"
	"strings"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
)

// Error is one resolution-time diagnostic, shaped like parser.SourceError
// so a caller can merge parse and resolution diagnostics into one report
//.
type Error struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e Error) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// Errors aggregates every diagnostic found while resolving one policy.
type Errors []Error

func (e Errors) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d error(s) resolving policy:\n", len(e))
	for _, d := range e {
		sb.WriteString("  " + d.String() + "\n")
	}
	return sb.String()
}

// Resolve runs two-pass scope resolution over a parsed policy:
// pass one collects every top-level import/const/predicate declaration
// into a Global; pass two walks every const value, predicate body, and
// rule body, linking each ast.Identifier.Ref and ast.TypedIdentifier.Decl
// to the ast.Decl it resolves to. It never aborts early — like the parser,
// it keeps walking to report every diagnostic in one pass.
func Resolve(pol *ast.Policy) (*Global, error) {
	r := &resolver{global: newGlobal(), file: pol.File}
	r.collect(pol)
	r.resolveAll(pol)
	if len(r.errs) > 0 {
		return r.global, Errors(r.errs)
	}
	return r.global, nil
}

type resolver struct {
	global *Global
	file   string
	errs   []Error
}

func (r *resolver) errorf(loc ast.Location, format string, args ...any) {
	r.errs = append(r.errs, Error{loc.File, loc.Line, loc.Column, fmt.Sprintf(format, args...)})
}

// collect is pass one: every name a rule body can see without a local
// binding, gathered before any body is walked so order of declaration
// within the source file does not matter.
func (r *resolver) collect(pol *ast.Policy) {
	for _, s := range pol.Statements {
		switch n := s.(type) {
		case *ast.ImportStmt:
			r.collectImport(n)
		case *ast.ConstStmt:
			d := &ast.Decl{Name: n.Name, Kind: ast.DeclConst, Loc: n.Loc(), Value: n.Value}
			if _, dup := r.global.Consts[n.Name]; dup {
				r.errorf(n.Loc(), "%q is already declared", n.Name)
				continue
			}
			r.global.Consts[n.Name] = d
		case *ast.PredicateStmt:
			params := make([]*ast.Decl, len(n.Params))
			for i := range n.Params {
				pd := &ast.Decl{Name: n.Params[i].Name, Type: n.Params[i].Type, Kind: ast.DeclParam, Loc: n.Loc()}
				n.Params[i].Decl = pd
				params[i] = pd
			}
			d := &ast.Decl{Name: n.Name, Kind: ast.DeclPredicate, Loc: n.Loc(), Params: params, Body: n.Body}
			if _, dup := r.global.Predicates[n.Name]; dup {
				r.errorf(n.Loc(), "predicate %q is already declared", n.Name)
				continue
			}
			r.global.Predicates[n.Name] = d
		}
	}
}

func (r *resolver) collectImport(n *ast.ImportStmt) {
	if len(n.Names) == 0 {
		name := lastSegment(n.Module)
		d := &ast.Decl{Name: name, Kind: ast.DeclImport, Loc: n.Loc(), Module: n.Module}
		if _, dup := r.global.Imports[name]; dup {
			r.errorf(n.Loc(), "%q is already imported", name)
			return
		}
		r.global.Imports[name] = d
		return
	}
	for _, nm := range n.Names {
		d := &ast.Decl{Name: nm.Alias, Kind: ast.DeclImport, Loc: n.Loc(), Module: n.Module, Symbol: nm.Symbol}
		if _, dup := r.global.Imports[nm.Alias]; dup {
			r.errorf(n.Loc(), "%q is already imported", nm.Alias)
			continue
		}
		r.global.Imports[nm.Alias] = d
	}
}

func lastSegment(module string) string {
	parts := strings.Split(module, ".")
	return parts[len(parts)-1]
}

// resolveAll is pass two.
func (r *resolver) resolveAll(pol *ast.Policy) {
	for _, s := range pol.Statements {
		switch n := s.(type) {
		case *ast.ConstStmt:
			r.walkExpr(n.Value, newScope(nil, r.global))
		case *ast.PredicateStmt:
			s := newScope(nil, r.global)
			for i := range n.Params {
				s.declare(n.Params[i].Name, n.Params[i].Decl)
			}
			for _, e := range n.Body {
				r.walkExpr(e, s)
			}
		case *ast.RaiseStmt:
			s := newScope(nil, r.global)
			if n.Error.Expr != nil {
				r.walkExpr(n.Error.Expr, s)
			}
			for _, e := range n.Body {
				r.walkExpr(e, s)
			}
		}
	}
}

func (r *resolver) walkExpr(e ast.Expr, s *scope) {
	switch n := e.(type) {
	case *ast.Literal:
		// leaf
	case *ast.Identifier:
		if d, ok := s.resolve(n.Name); ok {
			n.Ref = d
		} else {
			r.errorf(n.Loc(), "undefined name %q", n.Name)
		}
	case *ast.TypedIdentifier:
		d := s.declare(n.Name, &ast.Decl{Name: n.Name, Type: n.Type, Kind: declKindFor(n), Loc: n.Loc()})
		n.Decl = d
		if n.Domain != nil {
			r.walkExpr(n.Domain, s)
		}
	case *ast.BinaryExpr:
		if n.Op == ast.OpAssign {
			r.walkExpr(n.Right, s)
			if id, ok := n.Left.(*ast.Identifier); ok {
				id.Ref = s.declare(id.Name, &ast.Decl{Name: id.Name, Kind: ast.DeclAssign, Loc: id.Loc()})
			} else {
				r.walkExpr(n.Left, s)
			}
			return
		}
		r.walkExpr(n.Left, s)
		r.walkExpr(n.Right, s)
	case *ast.UnaryExpr:
		r.walkExpr(n.Operand, s)
	case *ast.MemberExpr:
		r.walkExpr(n.Object, s)
	case *ast.IndexExpr:
		r.walkExpr(n.Object, s)
		r.walkExpr(n.Key, s)
	case *ast.CallExpr:
		if _, isToolRef := n.Callee.(*ast.ToolRef); !isToolRef {
			r.walkExpr(n.Callee, s)
		}
		for _, a := range n.Args {
			r.walkExpr(a.Value, s)
		}
	case *ast.ListLiteral:
		for _, el := range n.Elems {
			r.walkExpr(el, s)
		}
	case *ast.ObjectLiteral:
		for _, en := range n.Entries {
			r.walkExpr(en.Value, s)
		}
	case *ast.ListComp:
		r.walkExpr(n.Iter, s)
		child := s.child()
		d := child.declare(n.Var, &ast.Decl{Name: n.Var, Kind: ast.DeclComp, Loc: n.Loc()})
		n.Decl = d
		r.walkExpr(n.Elem, child)
		if n.Cond != nil {
			r.walkExpr(n.Cond, child)
		}
	case *ast.Ternary:
		r.walkExpr(n.Cond, s)
		r.walkExpr(n.Then, s)
		r.walkExpr(n.Else, s)
	case *ast.QuantifierExpr:
		for _, b := range n.Body {
			r.walkExpr(b, s)
		}
	case *ast.ToolRef:
		// leaf: resolved against the trace at evaluation time, not scope.
	case *ast.SemanticPattern:
		if n.Arg != nil {
			r.walkPattern(n.Arg, s)
		}
	case *ast.ValueRefLiteral:
		r.errorf(n.Loc(), "value reference <%s> is only valid inside a tool pattern", n.TypeName)
	case *ast.WildcardLiteral:
		r.errorf(n.Loc(), "wildcard '*' is only valid inside a tool pattern")
	default:
		r.errorf(e.Loc(), "internal: unresolved expression kind %T", e)
	}
}

func declKindFor(n *ast.TypedIdentifier) ast.DeclKind {
	if n.Domain != nil {
		return ast.DeclIn
	}
	return ast.DeclTyped
}

func (r *resolver) walkPattern(pn ast.PatternNode, s *scope) {
	switch n := pn.(type) {
	case *ast.Wildcard:
	case *ast.ValueRef:
	case *ast.PatternObject:
		for _, en := range n.Entries {
			r.walkPattern(en.Pattern, s)
		}
	case *ast.PatternList:
		for _, el := range n.Elems {
			r.walkPattern(el, s)
		}
	case *ast.PatternConst:
		r.walkExpr(n.Value, s)
	default:
		r.errorf(pn.Loc(), "internal: unresolved pattern kind %T", pn)
	}
}
