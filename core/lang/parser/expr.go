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

package parser

import (
	"strconv"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/lang/lexer"
)

// parseExpr is the grammar's expression entry point, implementing the
// precedence ladder: assignment is loosest, atom tightest.
//   atom < power < factor < term < comparison < logical < assignment
func (p *parser) parseExpr() ast.Expr {
	return p.parseAssignment()
}

func (p *parser) parseAssignment() ast.Expr {
	left := p.parseTernary()
	if p.isOp(":=") {
		loc := p.loc()
		p.advance()
		right := p.parseAssignment()
		return ast.NewBinaryExpr(loc, ast.OpAssign, left, right)
	}
	return left
}

func (p *parser) parseTernary() ast.Expr {
	v := p.parseLogicalOr()
	if p.isKeyword("if") {
		loc := p.loc()
		p.advance()
		cond := p.parseLogicalOr()
		if p.isKeyword("else") {
			p.advance()
		} else {
			p.errorf("expected 'else' in conditional expression")
		}
		els := p.parseTernary()
		return ast.NewTernary(loc, cond, v, els)
	}
	return v
}

func (p *parser) parseLogicalOr() ast.Expr {
	left := p.parseLogicalAnd()
	for p.isKeyword("or") {
		loc := p.loc()
		p.advance()
		right := p.parseLogicalAnd()
		left = ast.NewBinaryExpr(loc, ast.OpOr, left, right)
	}
	return left
}

func (p *parser) parseLogicalAnd() ast.Expr {
	left := p.parseComparison()
	for p.isKeyword("and") {
		loc := p.loc()
		p.advance()
		right := p.parseComparison()
		left = ast.NewBinaryExpr(loc, ast.OpAnd, left, right)
	}
	return left
}

func (p *parser) parseComparison() ast.Expr {
	left := p.parseTerm()
	for {
		loc := p.loc()
		switch {
		case p.isOp("=="):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpEq, left, p.parseTerm())
		case p.isOp("!="):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpNEq, left, p.parseTerm())
		case p.isOp("<="):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpLE, left, p.parseTerm())
		case p.isOp(">="):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpGE, left, p.parseTerm())
		case p.isOp("<"):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpLT, left, p.parseTerm())
		case p.isOp(">"):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpGT, left, p.parseTerm())
		case p.isOp("->"):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpFlow, left, p.parseTerm())
		case p.isOp("~>"):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpSucc, left, p.parseTerm())
		case p.isKeyword("in"):
			p.advance()
			right := p.parseTerm()
			if ti, ok := left.(*ast.TypedIdentifier); ok && ti.Domain == nil {
				// `(v: T) in E` is a domain-constrained binder, not a
				// membership test: E becomes v's candidate set and
				// the whole form contributes no constraint of its own.
				ti.Domain = right
			} else {
				left = ast.NewBinaryExpr(loc, ast.OpIn, left, right)
			}
		case p.isKeyword("contains_only"):
			p.advance()
			left = ast.NewBinaryExpr(loc, ast.OpContainsOnly, left, p.parseTerm())
		case p.isKeyword("is"):
			p.advance()
			negated := false
			if p.isKeyword("not") {
				negated = true
				p.advance()
			}
			right := p.parseTerm()
			if negated {
				right = ast.NewUnaryExpr(loc, ast.OpNot, right)
			}
			left = ast.NewBinaryExpr(loc, ast.OpIs, left, right)
		default:
			return left
		}
	}
}

func (p *parser) parseTerm() ast.Expr {
	left := p.parseFactor()
	for p.isOp("+") || p.isOp("-") {
		loc := p.loc()
		op := ast.OpAdd
		if p.cur().Text == "-" {
			op = ast.OpSub
		}
		p.advance()
		left = ast.NewBinaryExpr(loc, op, left, p.parseFactor())
	}
	return left
}

func (p *parser) parseFactor() ast.Expr {
	left := p.parsePower()
	for p.isOp("*") || p.isOp("/") || p.isOp("%") || p.cur().Kind == lexer.STAR {
		loc := p.loc()
		op := ast.OpMul
		switch {
		case p.isOp("/"):
			op = ast.OpDiv
		case p.isOp("%"):
			op = ast.OpMod
		}
		p.advance()
		left = ast.NewBinaryExpr(loc, op, left, p.parsePower())
	}
	return left
}

func (p *parser) parsePower() ast.Expr {
	left := p.parseUnary()
	if p.isOp("**") {
		loc := p.loc()
		p.advance()
		right := p.parsePower()
		return ast.NewBinaryExpr(loc, ast.OpPow, left, right)
	}
	return left
}

func (p *parser) parseUnary() ast.Expr {
	loc := p.loc()
	if p.isKeyword("not") {
		p.advance()
		return ast.NewUnaryExpr(loc, ast.OpNot, p.parseUnary())
	}
	if p.isOp("-") {
		p.advance()
		return ast.NewUnaryExpr(loc, ast.OpNeg, p.parseUnary())
	}
	return p.parsePostfix(p.parseAtom())
}

func (p *parser) parsePostfix(e ast.Expr) ast.Expr {
	for {
		loc := p.loc()
		switch p.cur().Kind {
		case lexer.DOT:
			p.advance()
			name := p.expect(lexer.IDENT, "").Text
			e = ast.NewMemberExpr(loc, e, name)
		case lexer.LPAREN:
			p.advance()
			args := p.parseArgs()
			p.expect(lexer.RPAREN, ")")
			e = ast.NewCallExpr(loc, e, args)
		case lexer.LBRACKET:
			p.advance()
			key := p.parseExpr()
			p.expect(lexer.RBRACKET, "]")
			e = ast.NewIndexExpr(loc, e, key)
		default:
			return e
		}
	}
}

func (p *parser) parseArgs() []ast.Arg {
	var args []ast.Arg
	for p.cur().Kind != lexer.RPAREN && p.cur().Kind != lexer.EOF {
		if p.cur().Kind == lexer.IDENT && p.peekN(1).Kind == lexer.OP && p.peekN(1).Text == "=" {
			name := p.advance().Text
			p.advance() // =
			args = append(args, ast.Arg{Name: name, Value: p.parseExpr()})
		} else {
			args = append(args, ast.Arg{Value: p.parseExpr()})
		}
		if p.cur().Kind == lexer.COMMA {
			p.advance()
			continue
		}
		break
	}
	return args
}

func (p *parser) parseAtom() ast.Expr {
	t := p.cur()
	loc := p.loc()
	switch t.Kind {
	case lexer.NUMBER:
		p.advance()
		v, _ := strconv.ParseFloat(t.Text, 64)
		return ast.NewLiteral(loc, ast.LitNumber, v, "", false)
	case lexer.STRING:
		p.advance()
		return ast.NewLiteral(loc, ast.LitString, 0, t.Text, false)
	case lexer.VALUEREF:
		p.advance()
		return ast.NewValueRefLiteral(loc, t.Text)
	case lexer.STAR:
		p.advance()
		return ast.NewWildcardLiteral(loc)
	case lexer.TOOLREF:
		p.advance()
		return ast.NewToolRef(loc, t.Text)
	case lexer.KEYWORD:
		switch t.Text {
		case "True":
			p.advance()
			return ast.NewLiteral(loc, ast.LitBool, 0, "", true)
		case "False":
			p.advance()
			return ast.NewLiteral(loc, ast.LitBool, 0, "", false)
		case "None":
			p.advance()
			return ast.NewLiteral(loc, ast.LitNone, 0, "", false)
		}
		p.errorf("unexpected keyword '" + t.Text + "'")
		p.advance()
		return ast.NewLiteral(loc, ast.LitNone, 0, "", false)
	case lexer.IDENT:
		p.advance()
		if t.Text == "f" || t.Text == "r" || t.Text == "fr" || t.Text == "rf" {
			if p.cur().Kind == lexer.STRING {
				s := p.advance()
				return ast.NewLiteral(loc, ast.LitString, 0, s.Text, false)
			}
		}
		return ast.NewIdentifier(loc, t.Text)
	case lexer.LPAREN:
		return p.parseParenOrTyped(loc)
	case lexer.LBRACKET:
		return p.parseListOrComprehension(loc)
	case lexer.LBRACE:
		return p.parseObjectLiteral(loc)
	default:
		p.errorf("unexpected token " + describeTok(t))
		p.advance()
		return ast.NewLiteral(loc, ast.LitNone, 0, "", false)
	}
}

func (p *parser) parseParenOrTyped(loc ast.Location) ast.Expr {
	p.advance() // (
	if p.cur().Kind == lexer.IDENT && p.peekN(1).Kind == lexer.COLON {
		name := p.advance().Text
		p.advance() // :
		typ := p.expect(lexer.IDENT, "").Text
		p.expect(lexer.RPAREN, ")")
		return ast.NewTypedIdentifier(loc, name, typ, nil)
	}
	e := p.parseExpr()
	p.expect(lexer.RPAREN, ")")
	return e
}

func (p *parser) parseListOrComprehension(loc ast.Location) ast.Expr {
	p.advance() // [
	if p.cur().Kind == lexer.RBRACKET {
		p.advance()
		return ast.NewListLiteral(loc, nil)
	}
	first := p.parseExpr()
	if p.isKeyword("for") {
		p.advance()
		varName := p.expect(lexer.IDENT, "").Text
		if p.isKeyword("in") {
			p.advance()
		} else {
			p.errorf("expected 'in' in list comprehension")
		}
		iter := p.parseLogicalOr()
		var cond ast.Expr
		if p.isKeyword("if") {
			p.advance()
			cond = p.parseExpr()
		}
		p.expect(lexer.RBRACKET, "]")
		return ast.NewListComp(loc, first, varName, iter, cond)
	}
	elems := []ast.Expr{first}
	for p.cur().Kind == lexer.COMMA {
		p.advance()
		if p.cur().Kind == lexer.RBRACKET {
			break
		}
		elems = append(elems, p.parseExpr())
	}
	p.expect(lexer.RBRACKET, "]")
	return ast.NewListLiteral(loc, elems)
}

func (p *parser) parseObjectLiteral(loc ast.Location) ast.Expr {
	p.advance() // {
	var entries []ast.ObjectEntry
	for p.cur().Kind != lexer.RBRACE && p.cur().Kind != lexer.EOF {
		var key string
		if p.cur().Kind == lexer.STRING {
			key = p.advance().Text
		} else {
			key = p.expect(lexer.IDENT, "").Text
		}
		p.expect(lexer.COLON, ":")
		val := p.parseExpr()
		entries = append(entries, ast.ObjectEntry{Key: key, Value: val})
		if p.cur().Kind == lexer.COMMA {
			p.advance()
			continue
		}
		break
	}
	p.expect(lexer.RBRACE, "}")
	return ast.NewObjectLiteral(loc, entries)
}
