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

package enum

import (
	"testing"

	"github.com/ipl-lang/ipl-engine/core/lang/ast"
	"github.com/ipl-lang/ipl-engine/core/lang/parser"
	"github.com/ipl-lang/ipl-engine/core/lang/scope"
	"github.com/ipl-lang/ipl-engine/core/pattern"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

func mustParseRaise(t *testing.T, src string) (*ast.RaiseStmt, *scope.Global) {
	t.Helper()
	pol, err := parser.Parse(src, "policy.ipl")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	g, err := scope.Resolve(pol)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	for _, s := range pol.Statements {
		if r, ok := s.(*ast.RaiseStmt); ok {
			return r, g
		}
	}
	t.Fatalf("no raise statement found")
	return nil, nil
}

func twoToolCallTrace(t *testing.T) *trace.Trace {
	t.Helper()
	data := `[
		{"role":"assistant","content":null,"tool_calls":[{"id":"1","type":"function","function":{"name":"exec","arguments":{"command":"ls"}}}]},
		{"role":"assistant","content":null,"tool_calls":[{"id":"2","type":"function","function":{"name":"read_file","arguments":{"path":"x"}}}]}
	]`
	tr, err := trace.Parse([]byte(data), nil)
	if err != nil {
		t.Fatalf("trace parse error: %v", err)
	}
	return tr
}

func TestEnumerateModelsFindsSatisfyingToolCall(t *testing.T) {
	raise, g := mustParseRaise(t, "raise \"oops\" if:\n"+
		"    (call: ToolCall) is tool:exec\n"+
		"    call.function.name == \"exec\"\n")
	tr := twoToolCallTrace(t)
	ctx := NewContext(tr, g, nil, pattern.NewRegistry())

	trueModels, falseModels, unknownModels, err := EnumerateModels(ctx, raise.Body, engine.Store{}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trueModels) != 1 {
		t.Fatalf("expected 1 true model, got %d", len(trueModels))
	}
	if len(falseModels) != 1 {
		t.Fatalf("expected 1 false model, got %d", len(falseModels))
	}
	if len(unknownModels) != 0 {
		t.Fatalf("expected 0 unknown models, got %d", len(unknownModels))
	}

	raiseCallDecl := raise.Body[0].(*ast.BinaryExpr).Left.(*ast.TypedIdentifier).Decl
	bound := trueModels[0].Store[raiseCallDecl].(*trace.ToolCall)
	if bound.Function.Name != "exec" {
		t.Fatalf("expected the satisfying model to bind the exec call, got %q", bound.Function.Name)
	}
}

func TestEnumerateQuantifierForallAllSatisfied(t *testing.T) {
	raise, g := mustParseRaise(t, "raise \"bad\" if:\n"+
		"    forall:\n"+
		"        (m: Message)\n"+
		"        m.role == \"assistant\"\n")
	tr := twoToolCallTrace(t) // both messages are role "assistant"
	ctx := NewContext(tr, g, nil, pattern.NewRegistry())

	result, _, err := evalConjunction(ctx, raise.Body, engine.Store{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != engine.True {
		t.Fatalf("expected forall to hold, got %v", result)
	}
}

func TestEnumerateQuantifierForallViolated(t *testing.T) {
	raise, g := mustParseRaise(t, "raise \"bad\" if:\n"+
		"    forall:\n"+
		"        (m: Message)\n"+
		"        m.role == \"user\"\n")
	tr := twoToolCallTrace(t) // both messages are role "assistant", not "user"
	ctx := NewContext(tr, g, nil, pattern.NewRegistry())

	result, _, err := evalConjunction(ctx, raise.Body, engine.Store{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != engine.False {
		t.Fatalf("expected forall to fail, got %v", result)
	}
}

func TestEnumerateQuantifierCountWithinBounds(t *testing.T) {
	raise, g := mustParseRaise(t, "raise \"bad\" if:\n"+
		"    count(min=1, max=1):\n"+
		"        (c: ToolCall) is tool:exec\n")
	tr := twoToolCallTrace(t) // exactly one tool call is named "exec"
	ctx := NewContext(tr, g, nil, pattern.NewRegistry())

	result, _, err := evalConjunction(ctx, raise.Body, engine.Store{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != engine.True {
		t.Fatalf("expected count(min=1,max=1) to hold, got %v", result)
	}
}

func TestEnumerateModelsCheckedDemotesRejectedAssignments(t *testing.T) {
	raise, g := mustParseRaise(t, "raise \"oops\" if:\n"+
		"    (call: ToolCall)\n"+
		"    call.function.name == \"exec\"\n")
	tr := twoToolCallTrace(t)
	ctx := NewContext(tr, g, nil, pattern.NewRegistry())

	checked := 0
	reject := func(m Model) (bool, error) {
		checked++
		return false, nil
	}
	trueModels, _, unknownModels, err := EnumerateModelsChecked(ctx, raise.Body, engine.Store{}, -1, reject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checked != 1 {
		t.Fatalf("expected the check to run once (one satisfying assignment), ran %d times", checked)
	}
	if len(trueModels) != 0 {
		t.Fatalf("expected a rejecting check to suppress all true models, got %d", len(trueModels))
	}
	if len(unknownModels) != 1 {
		t.Fatalf("expected the rejected assignment among the unknown models, got %d", len(unknownModels))
	}
}

func TestCallPredicateReturnsTrueOnFirstSatisfyingAssignment(t *testing.T) {
	pol, err := parser.Parse("is_exec(call: ToolCall) :=\n"+
		"    call.function.name == \"exec\"\n\n"+
		"raise \"bad\" if:\n"+
		"    (c: ToolCall)\n"+
		"    is_exec(c)\n", "policy.ipl")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	g, err := scope.Resolve(pol)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	var raise *ast.RaiseStmt
	for _, s := range pol.Statements {
		if r, ok := s.(*ast.RaiseStmt); ok {
			raise = r
		}
	}
	tr := twoToolCallTrace(t)
	ctx := NewContext(tr, g, nil, pattern.NewRegistry())

	trueModels, falseModels, _, err := EnumerateModels(ctx, raise.Body, engine.Store{}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trueModels) != 1 {
		t.Fatalf("expected exactly one tool call to satisfy is_exec, got %d", len(trueModels))
	}
	if len(falseModels) != 1 {
		t.Fatalf("expected exactly one tool call to fail is_exec, got %d", len(falseModels))
	}
}
