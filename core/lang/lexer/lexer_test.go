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

package lexer

import "testing"

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeEmitsIndentDedent(t *testing.T) {
	src := "raise \"x\" if:\n" +
		"    (m: Message)\n" +
		"    m.role == \"user\"\n"
	toks, err := Tokenize(src, "p.ipl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	indents, dedents := 0, 0
	for _, tk := range toks {
		switch tk.Kind {
		case INDENT:
			indents++
		case DEDENT:
			dedents++
		}
	}
	if indents != 1 || dedents != 1 {
		t.Fatalf("expected one INDENT and one DEDENT, got %d/%d", indents, dedents)
	}
	if toks[len(toks)-1].Kind != EOF {
		t.Fatalf("expected trailing EOF, got %v", kinds(toks))
	}
}

func TestTokenizeNestedBlocks(t *testing.T) {
	src := "raise \"x\" if:\n" +
		"    forall:\n" +
		"        (m: Message)\n"
	toks, err := Tokenize(src, "p.ipl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	indents, dedents := 0, 0
	for _, tk := range toks {
		switch tk.Kind {
		case INDENT:
			indents++
		case DEDENT:
			dedents++
		}
	}
	if indents != 2 || dedents != 2 {
		t.Fatalf("expected two INDENT/DEDENT pairs, got %d/%d", indents, dedents)
	}
}

func TestTokenizeToolRefAndValueRef(t *testing.T) {
	toks, err := Tokenize("x := tool:get_url\ny := <EMAIL_ADDRESS>\n", "p.ipl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var toolRef, valueRef *Token
	for i := range toks {
		switch toks[i].Kind {
		case TOOLREF:
			toolRef = &toks[i]
		case VALUEREF:
			valueRef = &toks[i]
		}
	}
	if toolRef == nil || toolRef.Text != "get_url" {
		t.Fatalf("expected TOOLREF get_url, got %+v", toolRef)
	}
	if valueRef == nil || valueRef.Text != "EMAIL_ADDRESS" {
		t.Fatalf("expected VALUEREF EMAIL_ADDRESS, got %+v", valueRef)
	}
}

func TestTokenizePowerOperatorIsSingleToken(t *testing.T) {
	toks, err := Tokenize("x := 2 ** 3\n", "p.ipl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, tk := range toks {
		if tk.Kind == OP && tk.Text == "**" {
			found = true
		}
		if tk.Kind == STAR {
			t.Fatalf("'**' must not lex as two '*' tokens")
		}
	}
	if !found {
		t.Fatalf("expected a single '**' operator token")
	}
}

func TestTokenizeInconsistentDedentIsError(t *testing.T) {
	src := "raise \"x\" if:\n" +
		"        (m: Message)\n" +
		"    m.role\n"
	if _, err := Tokenize(src, "p.ipl"); err == nil {
		t.Fatalf("expected an inconsistent-dedent error")
	}
}

func TestTokenizeTracksOriginalPositions(t *testing.T) {
	src := "raise \"x\" if:\n" +
		"    (m: Message)\n"
	toks, err := Tokenize(src, "p.ipl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tk := range toks {
		if tk.Kind == LPAREN {
			if tk.Line != 2 || tk.Column != 5 {
				t.Fatalf("expected '(' at 2:5 in original coordinates, got %d:%d", tk.Line, tk.Column)
			}
			return
		}
	}
	t.Fatalf("no LPAREN token found")
}
