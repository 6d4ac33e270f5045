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

package policyengine

import (
	"context"
	"errors"
	"os"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/ipl-lang/ipl-engine/core/policyengine/config"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

func TestMain(m *testing.M) {
	logger.InitLoggers(logger.TRACE)
	os.Exit(m.Run())
}

func rangeAddresses(rs []Range) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Address()
	}
	sort.Strings(out)
	return out
}

func mustLoad(t *testing.T, src string) *Policy {
	t.Helper()
	p, err := Load(src, "policy.ipl")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	return p
}

func mustTrace(t *testing.T, jsonData string) *trace.Trace {
	t.Helper()
	tr, err := trace.Parse([]byte(jsonData), nil)
	if err != nil {
		t.Fatalf("trace parse error: %v", err)
	}
	return tr
}

// A substring content match reports a localized character range.
func TestAnalyzeReportsContentRange(t *testing.T) {
	p := mustLoad(t, "raise \"hit\" if:\n"+
		"    (m: Message)\n"+
		"    m.role == \"assistant\"\n"+
		"    \"X\" in m.content\n")
	tr := mustTrace(t, `[{"role":"assistant","content":"Hello, X"}]`)

	res, err := p.Analyze(context.Background(), tr, nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %d", len(res.Errors))
	}
	// The character range from the substring match, plus the object-level
	// range for the bound message itself.
	want := []string{"messages.0", "messages.0.content:7-8"}
	if diff := cmp.Diff(want, rangeAddresses(res.Errors[0].Ranges)); diff != "" {
		t.Fatalf("range addresses mismatch (-want +got):\n%s", diff)
	}
}

// `->` is sequential precedence, not content containment —
// a "something" call followed (anywhere later in the trace) by a
// "something_else" call satisfies the flow constraint.
func TestAnalyzeSequencedToolCallFlow(t *testing.T) {
	p := mustLoad(t, "raise \"bad\" if:\n"+
		"    (c1: ToolCall) -> (c2: ToolCall)\n"+
		"    c1 is tool:something({x: 2})\n"+
		"    c2 is tool:something_else({x: 10})\n")
	tr := mustTrace(t, `[
		{"role":"system","content":"sys"},
		{"role":"user","content":"hi"},
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"something","arguments":{"x":2}}}
		]},
		{"role":"tool","tool_call_id":"c1","content":"ok"},
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"c2","type":"function","function":{"name":"something_else","arguments":{"x":10}}}
		]},
		{"role":"tool","tool_call_id":"c2","content":"ok"}
	]`)

	res, err := p.Analyze(context.Background(), tr, nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %d", len(res.Errors))
	}
}

// A get_url call flowing into a run_python call that
// imports "os" fires exactly one error, exercising -> together with a
// predicate over the called function's arguments.
func TestAnalyzeUnsafeCodeAfterURLFlow(t *testing.T) {
	p := mustLoad(t, "imports_os(call: ToolCall) :=\n"+
		"    \"os\" in call.function.arguments.code\n\n"+
		"raise \"bad\" if:\n"+
		"    (c1: ToolCall) -> (c2: ToolCall)\n"+
		"    c1 is tool:get_url\n"+
		"    c2 is tool:run_python\n"+
		"    imports_os(c2)\n")
	tr := mustTrace(t, `[
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"get_url","arguments":{"url":"http://x"}}}
		]},
		{"role":"tool","tool_call_id":"c1","content":"<html/>"},
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"c2","type":"function","function":{"name":"run_python","arguments":{"code":"import os\nprint(1)"}}}
		]},
		{"role":"tool","tool_call_id":"c2","content":"1"}
	]`)

	res, err := p.Analyze(context.Background(), tr, nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %d", len(res.Errors))
	}
}

// A tool pattern constrains only the argument keys it names: a send_email
// call carrying subject and body still matches a pattern that pins only
// the recipient.
func TestAnalyzeToolPatternToleratesUnmentionedArguments(t *testing.T) {
	p := mustLoad(t, "raise \"sent\" if:\n"+
		"    (c: ToolCall)\n"+
		"    c is tool:send_email({to: \"mike@gmail.com\"})\n")
	tr := mustTrace(t, `[
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"send_email","arguments":{
				"to":"mike@gmail.com",
				"subject":"hello",
				"body":"sent from my inbox agent"
			}}}
		]}
	]`)

	res, err := p.Analyze(context.Background(), tr, nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected exactly one error despite unmentioned subject/body keys, got %d", len(res.Errors))
	}
}

// Immediate-successor pairs within a trace of alternating
// roles fire exactly once per adjacent (user, assistant) pair, not once
// per every ordered pair.
func TestAnalyzeImmediateSuccessorCountsAdjacentPairsOnly(t *testing.T) {
	p := mustLoad(t, "raise \"bad\" if:\n"+
		"    (m1: Message) ~> (m2: Message)\n"+
		"    m1.role == \"user\"\n"+
		"    m2.role == \"assistant\"\n")
	tr := mustTrace(t, `[
		{"role":"user","content":"hi"},
		{"role":"assistant","content":"hello"},
		{"role":"user","content":"again"},
		{"role":"assistant","content":"ok"}
	]`)

	res, err := p.Analyze(context.Background(), tr, nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected exactly two errors, got %d", len(res.Errors))
	}
}

// A count quantifier only fires within its declared bounds.
func TestAnalyzeCountQuantifierBounds(t *testing.T) {
	policy := "raise \"bad\" if:\n" +
		"    count(min=2, max=4):\n" +
		"        (t: ToolCall)\n" +
		"        t is tool:get_inbox\n"

	twoCalls := `[{"role":"assistant","content":null,"tool_calls":[
		{"id":"1","type":"function","function":{"name":"get_inbox","arguments":{}}},
		{"id":"2","type":"function","function":{"name":"get_inbox","arguments":{}}}
	]}]`
	oneCall := `[{"role":"assistant","content":null,"tool_calls":[
		{"id":"1","type":"function","function":{"name":"get_inbox","arguments":{}}}
	]}]`

	p := mustLoad(t, policy)

	res, err := p.Analyze(context.Background(), mustTrace(t, twoCalls), nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one error with 2 matching calls, got %d", len(res.Errors))
	}

	p2 := mustLoad(t, policy)
	res2, err := p2.Analyze(context.Background(), mustTrace(t, oneCall), nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res2.Errors) != 0 {
		t.Fatalf("expected no error with only 1 matching call, got %d", len(res2.Errors))
	}
}

// Incremental dedup: analyzing a growing trace twice yields exactly
// the new keys on the second call.
func TestFilterNewDeduplicatesAcrossCalls(t *testing.T) {
	p := mustLoad(t, "raise \"bad\" if:\n"+
		"    (m: Message)\n"+
		"    \"A\" in m.content\n")

	t1 := mustTrace(t, `[{"role":"assistant","content":"Hello A!"}]`)
	res1, err := p.Analyze(context.Background(), t1, nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	filtered1 := p.FilterNew(res1)
	if len(filtered1.Errors) != 1 {
		t.Fatalf("expected 1 new error on first call, got %d", len(filtered1.Errors))
	}

	t2 := mustTrace(t, `[{"role":"assistant","content":"Hello A!"},{"role":"assistant","content":"Bye A!"}]`)
	res2, err := p.Analyze(context.Background(), t2, nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	filtered2 := p.FilterNew(res2)
	if len(filtered2.Errors) != 1 {
		t.Fatalf("expected exactly 1 new error on second call, got %d", len(filtered2.Errors))
	}
}

// Pending-events filter: two earlier
// violations in the past prefix, three pending messages of which the
// first and third violate the rule.
func TestAnalyzePendingFiltersToNewEvents(t *testing.T) {
	p := mustLoad(t, "raise \"bad\" if:\n"+
		"    (m: Message)\n"+
		"    \"A\" in m.content\n")

	past := []byte(`[{"role":"assistant","content":"A here"},{"role":"assistant","content":"A there"}]`)
	pending := []byte(`[{"role":"assistant","content":"Hello A!"},{"role":"assistant","content":"Hello BC!"},{"role":"assistant","content":"Bye A!"}]`)

	res, err := p.AnalyzePending(context.Background(), past, pending, nil)
	if err != nil {
		t.Fatalf("analyze_pending error: %v", err)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected exactly 2 errors touching pending events, got %d", len(res.Errors))
	}
}

// The reserved parameter name "data" is forbidden.
func TestAnalyzeRejectsReservedDataParameter(t *testing.T) {
	p := mustLoad(t, "raise \"bad\" if:\n"+
		"    (m: Message)\n"+
		"    m.role == \"user\"\n")
	tr := mustTrace(t, `[{"role":"user","content":"hi"}]`)

	_, err := p.Analyze(context.Background(), tr, map[string]any{"data": 1.0})
	if err == nil {
		t.Fatalf("expected an error for a reserved 'data' policy parameter")
	}
}

// Policy parameters are exposed to rules through the reserved `input`
// identifier.
func TestAnalyzeExposesInputParameters(t *testing.T) {
	p := mustLoad(t, "raise \"over\" if:\n"+
		"    (m: Message)\n"+
		"    input.threshold < 5\n")
	tr, err := trace.Parse([]byte(`[{"role":"user","content":"hi"}]`), map[string]any{"threshold": 3.0})
	if err != nil {
		t.Fatalf("trace parse error: %v", err)
	}

	res, err := p.Analyze(context.Background(), tr, map[string]any{"threshold": 3.0})
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one error with threshold below bound, got %d", len(res.Errors))
	}
}

// Reading an unsupplied policy parameter is an evaluation error, not a
// silent false.
func TestAnalyzeMissingPolicyParameterIsEvaluationError(t *testing.T) {
	p := mustLoad(t, "raise \"over\" if:\n"+
		"    (m: Message)\n"+
		"    input.threshold < 5\n")
	tr := mustTrace(t, `[{"role":"user","content":"hi"}]`)

	_, err := p.Analyze(context.Background(), tr, nil)
	if err == nil {
		t.Fatalf("expected a missing-policy-parameter error")
	}
	var mpe *engine.MissingParamError
	if !errors.As(err, &mpe) || mpe.Name != "threshold" {
		t.Fatalf("expected MissingParamError for \"threshold\", got %v", err)
	}
}

// Accessing an attribute outside a trace entity's whitelist is a
// specific evaluation error.
func TestAnalyzeAttributeOutsideWhitelistIsEvaluationError(t *testing.T) {
	p := mustLoad(t, "raise \"bad\" if:\n"+
		"    (m: Message)\n"+
		"    m.secret == 1\n")
	tr := mustTrace(t, `[{"role":"user","content":"hi"}]`)

	_, err := p.Analyze(context.Background(), tr, nil)
	if err == nil {
		t.Fatalf("expected an attribute-access error")
	}
	var ae *engine.AttributeError
	if !errors.As(err, &ae) || ae.Name != "secret" {
		t.Fatalf("expected AttributeError for \"secret\", got %v", err)
	}
}

// A `(v: T) in E` binder draws its candidate set from E, even
// when E depends on a variable bound later in the search than v's first
// appearance.
func TestAnalyzeDomainConstrainedBinder(t *testing.T) {
	p := mustLoad(t, "raise \"bad\" if:\n"+
		"    (m: Message)\n"+
		"    (c: ToolCall) in m.tool_calls\n"+
		"    c is tool:exec\n")
	tr := mustTrace(t, `[
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"1","type":"function","function":{"name":"exec","arguments":{}}}
		]},
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"2","type":"function","function":{"name":"read_file","arguments":{}}}
		]}
	]`)

	res, err := p.Analyze(context.Background(), tr, nil)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one error for the exec call bound through its message, got %d", len(res.Errors))
	}
}

// RaiseUnhandled converts a non-empty errors list into an error
// return.
func TestAnalyzeRaiseUnhandledConvertsViolationsToError(t *testing.T) {
	cfg := config.Default()
	cfg.RaiseUnhandled = true
	p, err := Load("raise \"bad\" if:\n"+
		"    (m: Message)\n"+
		"    m.role == \"user\"\n", "policy.ipl", WithConfig(cfg))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	tr := mustTrace(t, `[{"role":"user","content":"hi"}]`)

	res, err := p.Analyze(context.Background(), tr, nil)
	var ue *UnhandledError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnhandledError, got %v", err)
	}
	if res == nil || len(ue.Result.Errors) != 1 {
		t.Fatalf("expected the result to carry the single violation")
	}
}

// Address round-trip: ParseAddress(r.Address()) == r aside from
// object_id.
func TestAddressRoundTrips(t *testing.T) {
	addr := "messages.2.tool_calls.0.function.name:0-3"
	r, err := ParseAddress(addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Address() != addr {
		t.Fatalf("expected round-trip to %q, got %q", addr, r.Address())
	}
}

// An address, which numbers messages and tool outputs separately
// from each other, must still resolve against the real flat wire-format
// JSON array that interleaves them.
func TestValueAtAddressResolvesAgainstWireArray(t *testing.T) {
	raw := []byte(`[
		{"role":"user","content":"hi"},
		{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"get_url","arguments":{}}}
		]},
		{"role":"tool","tool_call_id":"c1","content":"ok"},
		{"role":"assistant","content":"done"}
	]`)

	v, err := ValueAtAddress(raw, "messages.1.tool_calls.0.function.name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "get_url" {
		t.Fatalf("expected \"get_url\", got %q", v.String())
	}

	v, err = ValueAtAddress(raw, "tool_outputs.0.content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "ok" {
		t.Fatalf("expected \"ok\", got %q", v.String())
	}

	v, err = ValueAtAddress(raw, "messages.2.content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "done" {
		t.Fatalf("expected \"done\", got %q", v.String())
	}
}
