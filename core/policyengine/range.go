//
// Copyright (C) 2020 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
// Andreas Schade <san@zurich.ibm.com>
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
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ipl-lang/ipl-engine/core/policyengine/engine"
	"github.com/ipl-lang/ipl-engine/core/trace"
)

// Range is a localized character range of the address syntax:
// `messages.<i>.<field>...` optionally followed by `:<start>-<end>`.
type Range struct {
	ObjectID   trace.ObjectID
	Path       string
	Start, End int // -1, -1 when the range addresses a whole object

	// objectIndex is the trace index of ObjectID, cached at localization
	// time so ErrorRecord.ObjectIndices (feeding the pending-events filter)
	// never has to re-resolve it through the trace.
	objectIndex int
}

// HasOffsets reports whether the range carries a character span rather than
// addressing a whole object.
func (r Range) HasOffsets() bool { return r.Start >= 0 && r.End >= 0 }

// Address renders r as a dotted-path address, e.g.
// "messages.2.tool_calls.0.function.name:0-3".
func (r Range) Address() string {
	if !r.HasOffsets() {
		return r.Path
	}
	return fmt.Sprintf("%s:%d-%d", r.Path, r.Start, r.End)
}

// ParseAddress parses an address produced by Address back into a Range
// missing only its ObjectID (the object identity does not round-trip
// through the address string, only its path does).
func ParseAddress(addr string) (Range, error) {
	path, start, end, hasOffsets := addr, -1, -1, false
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		rangePart := addr[i+1:]
		if s, e, ok := parseOffsets(rangePart); ok {
			path, start, end, hasOffsets = addr[:i], s, e, true
		}
	}
	if path == "" {
		return Range{}, fmt.Errorf("policyengine: empty address")
	}
	if !hasOffsets {
		start, end = -1, -1
	}
	return Range{Path: path, Start: start, End: end, objectIndex: -1}, nil
}

// ValueAtAddress resolves an address against a raw trace JSON document
// (a single flat array mixing message and tool-output events) using gjson.
// The address namespace numbers messages and tool outputs separately
// (`messages.<i>`, `tool_outputs.<i>`), which does not line up with either
// event's position in that flat array, so the leading `messages.<i>` /
// `tool_outputs.<i>` segment is first translated into the matching raw
// array index before the rest of the path is handed to gjson.
func ValueAtAddress(raw []byte, addr string) (gjson.Result, error) {
	r, err := ParseAddress(addr)
	if err != nil {
		return gjson.Result{}, err
	}
	gjsonPath, err := wireArrayPath(raw, r.Path)
	if err != nil {
		return gjson.Result{}, err
	}
	v := gjson.GetBytes(raw, gjsonPath)
	if !v.Exists() {
		return gjson.Result{}, fmt.Errorf("policyengine: no value at address %q", addr)
	}
	return v, nil
}

// wireArrayPath translates an address-syntax path's leading
// "messages.<i>" or "tool_outputs.<i>" segment into the raw array index of
// the i-th event of that kind (role != "tool" for messages, role == "tool"
// for tool outputs), leaving the remaining segments untouched.
func wireArrayPath(raw []byte, path string) (string, error) {
	segments := strings.Split(path, ".")
	if len(segments) < 2 {
		return "", fmt.Errorf("policyengine: address %q has no wire-array-resolvable index", path)
	}
	kind := segments[0]
	var wantToolRole bool
	switch kind {
	case "messages":
		wantToolRole = false
	case "tool_outputs":
		wantToolRole = true
	default:
		return "", fmt.Errorf("policyengine: address %q is not resolvable against the wire JSON array", path)
	}
	want, err := strconv.Atoi(segments[1])
	if err != nil {
		return "", fmt.Errorf("policyengine: address %q has a non-numeric index: %w", path, err)
	}

	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return "", fmt.Errorf("policyengine: trace JSON is not an array")
	}
	arrPos, count := -1, 0
	for i, el := range parsed.Array() {
		isTool := el.Get("role").String() == "tool"
		if isTool != wantToolRole {
			continue
		}
		if count == want {
			arrPos = i
			break
		}
		count++
	}
	if arrPos < 0 {
		return "", fmt.Errorf("policyengine: no %s event at index %d", kind, want)
	}

	rest := segments[2:]
	if len(rest) == 0 {
		return strconv.Itoa(arrPos), nil
	}
	return strconv.Itoa(arrPos) + "." + strings.Join(rest, "."), nil
}

func parseOffsets(s string) (int, int, bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(parts[0])
	end, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}

// localizer converts object-id-based engine.Marks into the dotted-path
// Ranges (`messages.<i>...`, `tool_outputs.<i>...`) by walking the trace
// once and indexing every object's path by its ObjectID. These paths are
// the address-syntax namespace, which numbers messages and tool outputs
// separately from each other — not a literal gjson path into the flat
// wire-format array; see ValueAtAddress for the translation between the
// two.
type localizer struct {
	paths map[trace.ObjectID]string
}

func newLocalizer(tr *trace.Trace) *localizer {
	l := &localizer{paths: make(map[trace.ObjectID]string)}
	for i, m := range tr.Messages() {
		l.paths[m.ID()] = fmt.Sprintf("messages.%d", i)
		for j, c := range m.ToolCalls {
			l.paths[c.ID()] = fmt.Sprintf("messages.%d.tool_calls.%d", i, j)
		}
	}
	for i, o := range tr.ToolOutputs() {
		l.paths[o.ID()] = fmt.Sprintf("tool_outputs.%d", i)
	}
	if in := tr.Input(); in != nil {
		l.paths[in.ID()] = "input"
	}
	return l
}

// Localize converts one engine.Mark into a Range. A Field of "" addresses
// the bare object path; a non-empty Field is appended as a further dotted
// segment (e.g. "function.name").
func (l *localizer) Localize(m engine.Mark) (Range, bool) {
	base, ok := l.paths[m.Object.ID()]
	if !ok {
		return Range{}, false
	}
	path := base
	if m.Field != "" {
		path = base + "." + m.Field
	}
	start, end := m.Start, m.End
	if start < 0 || end < 0 {
		start, end = -1, -1
	}
	return Range{ObjectID: m.Object.ID(), Path: path, Start: start, End: end, objectIndex: m.Object.Index()}, true
}
