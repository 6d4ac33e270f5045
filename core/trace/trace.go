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

// Package trace implements the parsed representation of agent traces: the
// flattened sequence of messages, tool calls and tool outputs that rules are
// evaluated against.
package trace

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the dynamic type of a trace event.
type Kind uint8

// Event kinds.
const (
	KindMessage Kind = iota
	KindToolCall
	KindToolOutput
	KindInput
)

// String returns the kind's declared-type name as used in `(v: T)` bindings.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "Message"
	case KindToolCall:
		return "ToolCall"
	case KindToolOutput:
		return "ToolOutput"
	case KindInput:
		return "Input"
	default:
		return "Unknown"
	}
}

// ObjectID is the identity of a trace object, distinct from its value.
// It is never reused within one Trace.
type ObjectID uint64

// ContentChunk is one element of a multi-part message content list.
type ContentChunk struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"-"`
}

// Content is either a plain string, nil, or an ordered list of chunks.
type Content struct {
	Text   *string
	Chunks []ContentChunk
}

// IsNil reports whether the message carried no content at all.
func (c Content) IsNil() bool { return c.Text == nil && c.Chunks == nil }

// Flatten returns every text-bearing string that makes up the content, in
// order, so string-matching operators can scan them one at a time.
func (c Content) Flatten() []string {
	if c.Text != nil {
		return []string{*c.Text}
	}
	out := make([]string, 0, len(c.Chunks))
	for _, ch := range c.Chunks {
		if ch.Type == "text" {
			out = append(out, ch.Text)
		}
	}
	return out
}

// Function is the callee descriptor of a tool call.
type Function struct {
	Name      string
	Arguments map[string]any
}

// Message is a system/user/assistant turn.
type Message struct {
	id        ObjectID
	index     int
	Role      string
	Content   Content
	ToolCalls []*ToolCall
	Metadata  map[string]any
}

// ID returns the message's stable object identity.
func (m *Message) ID() ObjectID { return m.id }

// Index returns the message's 0-based position in the flattened event list.
func (m *Message) Index() int { return m.index }

// Kind implements Event.
func (m *Message) Kind() Kind { return KindMessage }

// ToolCall is a single function invocation requested by an assistant turn.
type ToolCall struct {
	id        ObjectID
	index     int
	CallID    string
	Function  Function
	Metadata  map[string]any
	parent    *Message
	outputIdx int // trace index of the matched ToolOutput, or -1
}

// ID returns the tool call's stable object identity.
func (t *ToolCall) ID() ObjectID { return t.id }

// Index returns the tool call's 0-based position in the flattened event list.
func (t *ToolCall) Index() int { return t.index }

// Kind implements Event.
func (t *ToolCall) Kind() Kind { return KindToolCall }

// ToolOutput is the result of a previously requested tool call.
type ToolOutput struct {
	id         ObjectID
	index      int
	ToolCallID string
	Content    Content
	JSON       map[string]any // set when content arrived as a JSON object
	Metadata   map[string]any
	call       *ToolCall // weak: resolved at parse time, never owning
}

// ID returns the tool output's stable object identity.
func (o *ToolOutput) ID() ObjectID { return o.id }

// Index returns the tool output's 0-based position in the flattened event list.
func (o *ToolOutput) Index() int { return o.index }

// Kind implements Event.
func (o *ToolOutput) Kind() Kind { return KindToolOutput }

// ToolCall returns the tool call this output resolves to, or nil.
func (o *ToolOutput) ToolCall() *ToolCall { return o.call }

// Input is the pseudo-event wrapping the policy_parameters passed to
// Analyze, so that `(x: Input)` domains can be enumerated like any other
// trace-typed variable.
type Input struct {
	id     ObjectID
	index  int
	Params map[string]any
}

// ID returns the input pseudo-event's stable object identity.
func (i *Input) ID() ObjectID { return i.id }

// Index returns the input pseudo-event's position (always -1; it is not part
// of the flattened event list proper).
func (i *Input) Index() int { return i.index }

// Kind implements Event.
func (i *Input) Kind() Kind { return KindInput }

// Event is the common interface implemented by every trace entity that can
// be bound to a typed identifier.
type Event interface {
	ID() ObjectID
	Index() int
	Kind() Kind
}

// Trace is an ordered, immutable sequence of events, built once per
// analysis.
type Trace struct {
	events   []Event
	messages []*Message
	calls    []*ToolCall
	outputs  []*ToolOutput
	input    *Input
	byID     map[ObjectID]Event
	nextID   ObjectID
}

// Events returns the flattened event list in trace order.
func (t *Trace) Events() []Event { return t.events }

// Messages returns every message event in trace order.
func (t *Trace) Messages() []*Message { return t.messages }

// ToolCalls returns every tool-call event in trace order.
func (t *Trace) ToolCalls() []*ToolCall { return t.calls }

// ToolOutputs returns every tool-output event in trace order.
func (t *Trace) ToolOutputs() []*ToolOutput { return t.outputs }

// Input returns the pseudo-event wrapping policy parameters.
func (t *Trace) Input() *Input { return t.input }

// ByID resolves a previously issued ObjectID back to its event.
func (t *Trace) ByID(id ObjectID) (Event, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// EventsOf returns every event of the given declared kind, in trace order.
// Used by model enumeration to materialize a default domain when a
// `(v: T)` binding supplies no explicit "... in E" candidate set.
func (t *Trace) EventsOf(k Kind) []Event {
	switch k {
	case KindMessage:
		out := make([]Event, len(t.messages))
		for i, m := range t.messages {
			out[i] = m
		}
		return out
	case KindToolCall:
		out := make([]Event, len(t.calls))
		for i, c := range t.calls {
			out[i] = c
		}
		return out
	case KindToolOutput:
		out := make([]Event, len(t.outputs))
		for i, o := range t.outputs {
			out[i] = o
		}
		return out
	case KindInput:
		if t.input == nil {
			return nil
		}
		return []Event{t.input}
	default:
		return nil
	}
}

func (t *Trace) newID() ObjectID {
	t.nextID++
	return t.nextID
}

// rawEvent mirrors the JSON wire shape before typing.
type rawEvent struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []rawToolCall   `json:"tool_calls"`
	ToolCallID string          `json:"tool_call_id"`
	Metadata   map[string]any  `json:"metadata"`
}

type rawToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function rawFunction    `json:"function"`
	Metadata map[string]any `json:"metadata"`
}

type rawFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type rawChunk struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

// ConcatJSON concatenates two JSON event arrays into one, returning the
// combined document and the flattened trace index the second array's first
// event will occupy once parsed, the "first pending index" the
// pending-events filter needs. Used by policyengine.Policy.AnalyzePending
// to build one trace out of a past-events prefix and a pending-events
// suffix. The boundary is counted in flattened event-list positions, not
// raw JSON array entries: a message with N inline tool calls contributes
// 1 + N flattened events, same as Parse.
func ConcatJSON(past, pending []byte) ([]byte, int, error) {
	var pastEvents, pendingEvents []json.RawMessage
	if err := json.Unmarshal(past, &pastEvents); err != nil {
		return nil, 0, fmt.Errorf("trace: invalid past_events: %w", err)
	}
	if err := json.Unmarshal(pending, &pendingEvents); err != nil {
		return nil, 0, fmt.Errorf("trace: invalid pending_events: %w", err)
	}
	firstPending, err := countFlattenedEvents(pastEvents)
	if err != nil {
		return nil, 0, err
	}
	combined, err := json.Marshal(append(pastEvents, pendingEvents...))
	if err != nil {
		return nil, 0, fmt.Errorf("trace: combining events: %w", err)
	}
	return combined, firstPending, nil
}

// countFlattenedEvents mirrors Parse's event-list bookkeeping without
// building a full Trace: every message contributes one event plus one per
// inline tool call, every tool-role entry contributes one event.
func countFlattenedEvents(events []json.RawMessage) (int, error) {
	var shape struct {
		Role      string            `json:"role"`
		ToolCalls []json.RawMessage `json:"tool_calls"`
	}
	n := 0
	for _, raw := range events {
		shape.Role, shape.ToolCalls = "", nil
		if err := json.Unmarshal(raw, &shape); err != nil {
			return 0, fmt.Errorf("trace: invalid event: %w", err)
		}
		if shape.Role == "tool" {
			n++
			continue
		}
		n += 1 + len(shape.ToolCalls)
	}
	return n, nil
}

// Parse builds a Trace from the JSON array wire format. policyParams is
// exposed to rules as the Input pseudo-event behind the reserved `input`
// identifier; nil is treated as an empty parameter set.
func Parse(data []byte, policyParams map[string]any) (*Trace, error) {
	var raws []rawEvent
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("trace: invalid input: %w", err)
	}

	t := &Trace{byID: make(map[ObjectID]Event)}

	for _, re := range raws {
		if re.Role == "tool" {
			out, err := t.newToolOutput(re)
			if err != nil {
				return nil, err
			}
			if out.call == nil && out.ToolCallID == "" {
				// No id to match on: fall back to the nearest prior call
				// that has no output yet. Order-dependent as specified.
				for i := len(t.calls) - 1; i >= 0; i-- {
					if t.calls[i].outputIdx < 0 {
						out.call = t.calls[i]
						t.calls[i].outputIdx = out.index
						break
					}
				}
			}
			continue
		}

		content, err := parseContent(re.Content)
		if err != nil {
			return nil, err
		}
		m := &Message{
			id:       t.newID(),
			index:    len(t.events),
			Role:     re.Role,
			Content:  content,
			Metadata: re.Metadata,
		}
		t.events = append(t.events, m)
		t.messages = append(t.messages, m)
		t.byID[m.ID()] = m

		for _, rc := range re.ToolCalls {
			args := map[string]any{}
			if len(rc.Function.Arguments) > 0 {
				// Arguments may arrive pre-parsed (a JSON object) or as a
				// JSON-encoded string; both are normalized to a map here.
				if err := json.Unmarshal(rc.Function.Arguments, &args); err != nil {
					var asString string
					if err2 := json.Unmarshal(rc.Function.Arguments, &asString); err2 == nil {
						args = map[string]any{}
						_ = json.Unmarshal([]byte(asString), &args)
					}
				}
			}
			call := &ToolCall{
				id:     t.newID(),
				index:  len(t.events),
				CallID: rc.ID,
				Function: Function{
					Name:      rc.Function.Name,
					Arguments: args,
				},
				Metadata:  rc.Metadata,
				parent:    m,
				outputIdx: -1,
			}
			t.events = append(t.events, call)
			t.calls = append(t.calls, call)
			t.byID[call.ID()] = call
			m.ToolCalls = append(m.ToolCalls, call)
		}
	}

	if policyParams == nil {
		policyParams = map[string]any{}
	}
	t.input = &Input{id: t.newID(), index: -1, Params: policyParams}
	t.byID[t.input.ID()] = t.input

	return t, nil
}

func (t *Trace) newToolOutput(re rawEvent) (*ToolOutput, error) {
	// Tool-output content may arrive as a literal JSON object, not just a
	// string or a chunk list: try that shape first.
	var asObject map[string]any
	var content Content
	if json.Unmarshal(re.Content, &asObject) == nil && asObject != nil {
		content = Content{}
	} else {
		var err error
		content, err = parseContent(re.Content)
		if err != nil {
			return nil, err
		}
	}
	out := &ToolOutput{
		id:         t.newID(),
		index:      len(t.events),
		ToolCallID: re.ToolCallID,
		Content:    content,
		Metadata:   re.Metadata,
	}
	if asObject != nil {
		out.JSON = asObject
	} else if len(content.Chunks) == 0 && content.Text != nil {
		var asJSON map[string]any
		if json.Unmarshal([]byte(*content.Text), &asJSON) == nil {
			out.JSON = asJSON
		}
	}
	if re.ToolCallID != "" {
		for _, c := range t.calls {
			if c.CallID == re.ToolCallID {
				out.call = c
				c.outputIdx = out.index
				break
			}
		}
	}
	t.events = append(t.events, out)
	t.outputs = append(t.outputs, out)
	t.byID[out.ID()] = out
	return out, nil
}

func parseContent(raw json.RawMessage) (Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Content{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Content{Text: &s}, nil
	}
	var chunks []rawChunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return Content{}, fmt.Errorf("trace: invalid content: %w", err)
	}
	out := make([]ContentChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, ContentChunk{Type: c.Type, Text: c.Text, ImageURL: c.ImageURL.URL})
	}
	return Content{Chunks: out}, nil
}
