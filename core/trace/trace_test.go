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

package trace

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleTrace = `[
  {"role": "system", "content": "be nice"},
  {"role": "user", "content": "hello"},
  {"role": "assistant", "content": null, "tool_calls": [
    {"id": "c1", "type": "function", "function": {"name": "something", "arguments": {"x": 2}}}
  ]},
  {"role": "tool", "tool_call_id": "c1", "content": "ok"},
  {"role": "assistant", "content": "Hello, X", "tool_calls": [
    {"id": "c2", "type": "function", "function": {"name": "something_else", "arguments": {"x": 10}}}
  ]},
  {"role": "tool", "tool_call_id": "c2", "content": "done"}
]`

func TestParseAssignsMonotonicIndices(t *testing.T) {
	tr, err := Parse([]byte(sampleTrace), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	seen := map[int]bool{}
	for i, e := range tr.Events() {
		if e.Index() != i {
			t.Fatalf("event %d has index %d, want %d", i, e.Index(), i)
		}
		if seen[e.Index()] {
			t.Fatalf("duplicate index %d", e.Index())
		}
		seen[e.Index()] = true
	}
}

func TestToolOutputLinksByID(t *testing.T) {
	tr, err := Parse([]byte(sampleTrace), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tr.ToolOutputs()) != 2 {
		t.Fatalf("got %d outputs, want 2", len(tr.ToolOutputs()))
	}
	out := tr.ToolOutputs()[0]
	if out.ToolCall() == nil || out.ToolCall().Function.Name != "something" {
		t.Fatalf("output not linked to its call: %+v", out.ToolCall())
	}
}

func TestToolOutputFallsBackToNearestUnmatchedCall(t *testing.T) {
	src := `[
	  {"role": "assistant", "content": null, "tool_calls": [
	    {"type": "function", "function": {"name": "f", "arguments": {}}}
	  ]},
	  {"role": "tool", "content": "result"}
	]`
	tr, err := Parse([]byte(src), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := tr.ToolOutputs()[0]
	if out.ToolCall() == nil || out.ToolCall().Function.Name != "f" {
		t.Fatalf("expected fallback linkage to unmatched call, got %+v", out.ToolCall())
	}
}

func TestToolOutputAcceptsObjectContent(t *testing.T) {
	src := `[
	  {"role": "assistant", "content": null, "tool_calls": [
	    {"id": "c1", "type": "function", "function": {"name": "f", "arguments": {}}}
	  ]},
	  {"role": "tool", "tool_call_id": "c1", "content": {"result": 1}}
	]`
	tr, err := Parse([]byte(src), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := tr.ToolOutputs()[0]
	want := map[string]any{"result": float64(1)}
	if diff := cmp.Diff(want, out.JSON); diff != "" {
		t.Fatalf("ToolOutput.JSON mismatch (-want +got):\n%s", diff)
	}
}

func TestImmediateSuccessor(t *testing.T) {
	src := `[{"role":"user","content":"a"},{"role":"assistant","content":"b"},{"role":"user","content":"c"},{"role":"assistant","content":"d"}]`
	tr, err := Parse([]byte(src), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msgs := tr.Messages()
	if !tr.ImmediateSuccessor(msgs[0], msgs[1]) {
		t.Fatalf("expected msgs[0] ~> msgs[1]")
	}
	if tr.ImmediateSuccessor(msgs[0], msgs[2]) {
		t.Fatalf("did not expect msgs[0] ~> msgs[2]")
	}
}

func TestFlowIsSequentialPrecedence(t *testing.T) {
	// Mirrors Dataflow.has_flow in the original analyzer: flow is "precedes
	// in the trace," not a content- or call/output-specific relation, so it
	// holds between any earlier event and any later one, not just a tool
	// output and the call that happens to quote its text back.
	src := `[
	  {"role": "assistant", "content": null, "tool_calls": [
	    {"id": "c1", "type": "function", "function": {"name": "get_url", "arguments": {}}}
	  ]},
	  {"role": "tool", "tool_call_id": "c1", "content": "unrelated text"},
	  {"role": "assistant", "content": null, "tool_calls": [
	    {"id": "c2", "type": "function", "function": {"name": "run_python", "arguments": {"code": "import os\nprint(1)"}}}
	  ]}
	]`
	tr, err := Parse([]byte(src), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := tr.ToolOutputs()[0]
	callGetURL := tr.ToolCalls()[0]
	callRunPython := tr.ToolCalls()[1]

	if !tr.Flow(out, callRunPython) {
		t.Fatalf("expected flow from the earlier tool output to the later call, regardless of content")
	}
	if !tr.Flow(callGetURL, callRunPython) {
		t.Fatalf("expected flow from get_url to run_python")
	}
	if tr.Flow(callRunPython, callGetURL) {
		t.Fatalf("did not expect flow from a later event back to an earlier one")
	}
}
