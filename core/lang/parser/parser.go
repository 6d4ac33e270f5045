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
	"strings"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/lang/lexer"
)

// Parse tokenizes and parses one policy source file, returning its AST and
// the post-parse tool-call-to-semantic-pattern rewrite already
// applied. On any syntax error it returns a *LoadError listing every site
// found, rather than aborting on the first one.
func Parse(source, file string) (*ast.Policy, error) {
	toks, err := lexer.Tokenize(source, file)
	if err != nil {
		le := &LoadError{Source: source}
		if le2, ok := err.(*lexer.Error); ok {
			le.Errors = append(le.Errors, SourceError{le2.File, le2.Line, le2.Column, le2.Message})
		} else {
			le.Errors = append(le.Errors, SourceError{file, 1, 1, err.Error()})
		}
		return nil, le
	}
	p := &parser{toks: toks, file: file, source: source}
	pol := p.parsePolicy()
	if len(p.errs) > 0 {
		return nil, &LoadError{Errors: p.errs, Source: source}
	}
	ast.RewriteToolCalls(pol)
	return pol, nil
}

type parser struct {
	toks   []lexer.Token
	pos    int
	file   string
	source string
	errs   []SourceError
}

func (p *parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *parser) peekN(n int) lexer.Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}
func (p *parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) loc() ast.Location {
	t := p.cur()
	return ast.Location{File: p.file, Line: t.Line, Column: t.Column}
}

func (p *parser) errorf(msg string) {
	t := p.cur()
	p.errs = append(p.errs, SourceError{p.file, t.Line, t.Column, msg})
}

func (p *parser) expect(k lexer.Kind, text string) lexer.Token {
	t := p.cur()
	if t.Kind != k {
		p.errorf("expected " + describeKind(k, text) + ", got " + describeTok(t))
		return t
	}
	return p.advance()
}

func describeKind(k lexer.Kind, text string) string {
	if text != "" {
		return "'" + text + "'"
	}
	return "token"
}

func describeTok(t lexer.Token) string {
	if t.Text != "" {
		return "'" + t.Text + "'"
	}
	switch t.Kind {
	case lexer.EOF:
		return "end of file"
	case lexer.NEWLINE:
		return "newline"
	case lexer.INDENT:
		return "indent"
	case lexer.DEDENT:
		return "dedent"
	}
	return "token"
}

func (p *parser) isKeyword(word string) bool {
	t := p.cur()
	return t.Kind == lexer.KEYWORD && t.Text == word
}

func (p *parser) isOp(op string) bool {
	t := p.cur()
	return t.Kind == lexer.OP && t.Text == op
}

func (p *parser) skipNewlines() {
	for p.cur().Kind == lexer.NEWLINE {
		p.advance()
	}
}

// parsePolicy parses the top-level statement list.
func (p *parser) parsePolicy() *ast.Policy {
	pol := &ast.Policy{File: p.file}
	p.skipNewlines()
	for p.cur().Kind != lexer.EOF {
		start := p.pos
		s := p.parseStmt()
		if s != nil {
			pol.Statements = append(pol.Statements, s)
		}
		p.skipNewlines()
		if p.pos == start {
			// Guard against an unconsumed token stalling the loop forever.
			p.errorf("unexpected token " + describeTok(p.cur()))
			p.advance()
		}
	}
	return pol
}

func (p *parser) parseStmt() ast.Stmt {
	loc := p.loc()
	switch {
	case p.isKeyword("raise"):
		return p.parseRaise(loc)
	case p.isKeyword("import"):
		return p.parseImport(loc)
	case p.isKeyword("from"):
		return p.parseFromImport(loc)
	case p.isKeyword("def"):
		p.advance()
		if p.cur().Kind != lexer.IDENT || p.peekN(1).Kind != lexer.LPAREN {
			p.errorf("expected a predicate declaration after 'def'")
			return nil
		}
		return p.parsePredicate(loc)
	case p.cur().Kind == lexer.IDENT && p.peekN(1).Kind == lexer.LPAREN:
		return p.parsePredicate(loc)
	case p.cur().Kind == lexer.IDENT:
		return p.parseConst(loc)
	default:
		p.errorf("expected a statement, got " + describeTok(p.cur()))
		p.advance()
		return nil
	}
}

func (p *parser) parseRaise(loc ast.Location) ast.Stmt {
	p.advance() // raise
	ctor := p.parseErrorConstructor()
	if !p.isKeyword("if") {
		p.errorf("expected 'if' after raise constructor")
	} else {
		p.advance()
	}
	body := p.parseIndentedBody()
	return ast.NewRaiseStmt(loc, ctor, body)
}

func (p *parser) parseErrorConstructor() ast.ErrorConstructor {
	if p.cur().Kind == lexer.STRING {
		return ast.ErrorConstructor{Literal: p.advance().Text}
	}
	e := p.parseExpr()
	return ast.ErrorConstructor{Expr: e}
}

func (p *parser) parseIndentedBody() []ast.Expr {
	if p.cur().Kind != lexer.INDENT {
		p.errorf("expected an indented block")
		return nil
	}
	p.advance()
	var body []ast.Expr
	for p.cur().Kind != lexer.DEDENT && p.cur().Kind != lexer.EOF {
		body = append(body, p.parseBodyLine())
		p.skipNewlines()
	}
	if p.cur().Kind == lexer.DEDENT {
		p.advance()
	} else {
		p.errorf("unterminated indented block")
	}
	return body
}

// parseBodyLine parses one line of a conjunctive body: a plain expression,
// or a quantifier block that itself opens a nested indented body.
func (p *parser) parseBodyLine() ast.Expr {
	loc := p.loc()
	negated := false
	if p.isKeyword("not") && p.peekN(1).Kind == lexer.KEYWORD &&
		(p.peekN(1).Text == "forall" || p.peekN(1).Text == "count") {
		negated = true
		p.advance()
	}
	if p.isKeyword("forall") {
		p.advance()
		if p.cur().Kind == lexer.COLON {
			p.advance()
		}
		body := p.parseIndentedBody()
		return ast.NewQuantifierExpr(loc, ast.QForall, negated, 0, 0, false, false, body)
	}
	if p.isKeyword("count") {
		p.advance()
		min, max, hasMin, hasMax := p.parseCountArgs()
		if p.cur().Kind == lexer.COLON {
			p.advance()
		}
		body := p.parseIndentedBody()
		return ast.NewQuantifierExpr(loc, ast.QCount, negated, min, max, hasMin, hasMax, body)
	}
	return p.parseExpr()
}

func (p *parser) parseCountArgs() (min, max int, hasMin, hasMax bool) {
	if p.cur().Kind != lexer.LPAREN {
		return
	}
	p.advance()
	for p.cur().Kind != lexer.RPAREN && p.cur().Kind != lexer.EOF {
		name := p.expect(lexer.IDENT, "").Text
		if p.isOp("=") {
			p.advance()
		} else {
			p.expect(lexer.OP, "=")
		}
		valTok := p.expect(lexer.NUMBER, "")
		v, _ := strconv.Atoi(valTok.Text)
		switch name {
		case "min":
			min, hasMin = v, true
		case "max":
			max, hasMax = v, true
		}
		if p.cur().Kind == lexer.COMMA {
			p.advance()
		}
	}
	if p.cur().Kind == lexer.RPAREN {
		p.advance()
	}
	return
}

func (p *parser) parseImport(loc ast.Location) ast.Stmt {
	p.advance() // import
	mod := p.parseModulePath()
	return ast.NewImportStmt(loc, mod, nil)
}

func (p *parser) parseFromImport(loc ast.Location) ast.Stmt {
	p.advance() // from
	mod := p.parseModulePath()
	if !p.isKeyword("import") {
		p.errorf("expected 'import' in from-import")
	} else {
		p.advance()
	}
	var names []ast.ImportName
	for {
		sym := p.expect(lexer.IDENT, "").Text
		alias := sym
		if p.isKeyword("as") {
			p.advance()
			alias = p.expect(lexer.IDENT, "").Text
		}
		names = append(names, ast.ImportName{Symbol: sym, Alias: alias})
		if p.cur().Kind == lexer.COMMA {
			p.advance()
			continue
		}
		break
	}
	return ast.NewImportStmt(loc, mod, names)
}

func (p *parser) parseModulePath() string {
	var parts []string
	parts = append(parts, p.expect(lexer.IDENT, "").Text)
	for p.cur().Kind == lexer.DOT {
		p.advance()
		parts = append(parts, p.expect(lexer.IDENT, "").Text)
	}
	return strings.Join(parts, ".")
}

func (p *parser) parsePredicate(loc ast.Location) ast.Stmt {
	name := p.advance().Text
	p.expect(lexer.LPAREN, "(")
	var params []ast.TypedIdentifier
	for p.cur().Kind != lexer.RPAREN && p.cur().Kind != lexer.EOF {
		pname := p.expect(lexer.IDENT, "").Text
		ptype := ""
		if p.cur().Kind == lexer.COLON {
			p.advance()
			ptype = p.expect(lexer.IDENT, "").Text
		}
		params = append(params, *ast.NewTypedIdentifier(p.loc(), pname, ptype, nil))
		if p.cur().Kind == lexer.COMMA {
			p.advance()
		}
	}
	p.expect(lexer.RPAREN, ")")
	body := p.parseIndentedBody()
	return ast.NewPredicateStmt(loc, name, params, body)
}

func (p *parser) parseConst(loc ast.Location) ast.Stmt {
	name := p.advance().Text
	if !p.isOp(":=") {
		p.errorf("expected ':=' after '" + name + "'")
		return nil
	}
	p.advance()
	val := p.parseExpr()
	return ast.NewConstStmt(loc, name, val)
}
