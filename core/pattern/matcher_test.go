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

package pattern

import (
	"strings"
	"testing"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

type containsDetector struct{ substr string }

func (d containsDetector) Detect(v any) bool {
	s, ok := v.(string)
	return ok && strings.Contains(s, d.substr)
}

func literalEval(e ast.Expr) (any, error) {
	lit := e.(*ast.Literal)
	switch lit.Kind {
	case ast.LitString:
		return lit.Str, nil
	case ast.LitNumber:
		return lit.Num, nil
	case ast.LitBool:
		return lit.Bool, nil
	default:
		return nil, nil
	}
}

func strLit(s string) ast.Expr { return ast.NewLiteral(ast.Location{}, ast.LitString, 0, s, false) }

func newCall(name string, args map[string]any) *trace.ToolCall {
	tr, _ := trace.Parse([]byte(`[{"role":"assistant","content":null,"tool_calls":[{"id":"1","type":"function","function":{"name":"`+name+`","arguments":{}}}]}]`), nil)
	call := tr.ToolCalls()[0]
	call.Function.Arguments = args
	return call
}

func TestMatchToolCallByNameOnly(t *testing.T) {
	sp := &ast.SemanticPattern{ToolName: "exec"}
	call := newCall("exec", map[string]any{"command": "ls"})
	ok, err := MatchToolCall(sp, call, NewRegistry(), literalEval)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	call2 := newCall("read_file", nil)
	ok, err = MatchToolCall(sp, call2, NewRegistry(), literalEval)
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}
}

func TestMatchToolCallWithObjectPattern(t *testing.T) {
	obj := &ast.PatternObject{Entries: []ast.PatternEntry{
		{Key: "command", Pattern: &ast.PatternConst{Value: strLit("cat .env")}},
	}}
	sp := &ast.SemanticPattern{ToolName: "exec", Arg: obj}
	call := newCall("exec", map[string]any{"command": "cat .env"})
	ok, err := MatchToolCall(sp, call, NewRegistry(), literalEval)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}

	call2 := newCall("exec", map[string]any{"command": "ls -la"})
	ok, err = MatchToolCall(sp, call2, NewRegistry(), literalEval)
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}
}

func TestMatchToolCallToleratesExtraKeys(t *testing.T) {
	// A pattern constrains only the keys it names; unmentioned argument
	// keys never reject the match.
	obj := &ast.PatternObject{Entries: []ast.PatternEntry{
		{Key: "to", Pattern: &ast.PatternConst{Value: strLit("mike@gmail.com")}},
	}}
	sp := &ast.SemanticPattern{ToolName: "send_email", Arg: obj}
	call := newCall("send_email", map[string]any{
		"to":      "mike@gmail.com",
		"subject": "hello",
		"body":    "sent from my inbox agent",
	})
	ok, err := MatchToolCall(sp, call, NewRegistry(), literalEval)
	if err != nil || !ok {
		t.Fatalf("expected match with extra argument keys, got ok=%v err=%v", ok, err)
	}

	// A named key that is absent still fails.
	call2 := newCall("send_email", map[string]any{"subject": "hello"})
	ok, err = MatchToolCall(sp, call2, NewRegistry(), literalEval)
	if err != nil || ok {
		t.Fatalf("expected missing named key to fail, got ok=%v err=%v", ok, err)
	}
}

func TestMatchConstAgainstJoinedChunks(t *testing.T) {
	// A constant that spans chunk boundaries matches the joined text.
	pat := &ast.PatternConst{Value: strLit("Hello world")}
	ok, err := MatchNode(pat, []any{"Hello ", "world"}, NewRegistry(), literalEval)
	if err != nil || !ok {
		t.Fatalf("expected joined-chunk match, got ok=%v err=%v", ok, err)
	}
}

func TestMatchConstDotSpansNewlines(t *testing.T) {
	pat := &ast.PatternConst{Value: strLit("import os.*")}
	ok, err := MatchNode(pat, "import os\nprint(1)", NewRegistry(), literalEval)
	if err != nil || !ok {
		t.Fatalf("expected '.' to span newlines, got ok=%v err=%v", ok, err)
	}
}

func TestMatchValueRefDelegatesToDetector(t *testing.T) {
	reg := NewRegistry()
	reg.Register("SECRET", containsDetector{substr: "sk-"})
	obj := &ast.PatternObject{Entries: []ast.PatternEntry{
		{Key: "token", Pattern: &ast.ValueRef{TypeName: "SECRET"}},
	}}
	sp := &ast.SemanticPattern{ToolName: "call_api", Arg: obj}
	call := newCall("call_api", map[string]any{"token": "sk-abc123"})
	ok, err := MatchToolCall(sp, call, reg, literalEval)
	if err != nil || !ok {
		t.Fatalf("expected SECRET detector match, got ok=%v err=%v", ok, err)
	}

	call2 := newCall("call_api", map[string]any{"token": "plain-value"})
	ok, err = MatchToolCall(sp, call2, reg, literalEval)
	if err != nil || ok {
		t.Fatalf("expected no match for non-secret token, got ok=%v err=%v", ok, err)
	}
}

func TestMatchListPattern(t *testing.T) {
	lp := &ast.PatternList{Elems: []ast.PatternNode{
		&ast.PatternConst{Value: strLit("a")},
		&ast.Wildcard{},
	}}
	ok, err := MatchNode(lp, []any{"a", "b"}, NewRegistry(), literalEval)
	if err != nil || !ok {
		t.Fatalf("expected list match, got ok=%v err=%v", ok, err)
	}
	ok, err = MatchNode(lp, []any{"a"}, NewRegistry(), literalEval)
	if err != nil || ok {
		t.Fatalf("expected length mismatch to fail, got ok=%v err=%v", ok, err)
	}
}
