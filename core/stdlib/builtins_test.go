//
// Copyright (C) 2020 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
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

package stdlib

import (
	"testing"

	"github.com/ipl-lang/ipl-engine/core/pattern"
)

func TestLenAcrossValueKinds(t *testing.T) {
	b := Builtins()
	cases := []struct {
		arg  any
		want float64
	}{
		{"héllo", 5},
		{[]any{1.0, 2.0}, 2},
		{map[string]any{"a": 1.0}, 1},
	}
	for _, c := range cases {
		got, err := b["len"]([]any{c.arg})
		if err != nil {
			t.Fatalf("len(%v): %v", c.arg, err)
		}
		if got != c.want {
			t.Fatalf("len(%v) = %v, want %v", c.arg, got, c.want)
		}
	}
	if _, err := b["len"]([]any{1.0}); err == nil {
		t.Fatalf("expected len() of a number to error")
	}
}

func TestAnyAllOverBoolLists(t *testing.T) {
	b := Builtins()
	got, err := b["any"]([]any{[]any{false, true}})
	if err != nil || got != true {
		t.Fatalf("any([false,true]) = %v, %v", got, err)
	}
	got, err = b["all"]([]any{[]any{true, false}})
	if err != nil || got != false {
		t.Fatalf("all([true,false]) = %v, %v", got, err)
	}
}

func TestMatchAndFind(t *testing.T) {
	b := Builtins()
	got, err := b["match"]([]any{"import os", `\bimport\s+os\b`})
	if err != nil || got != true {
		t.Fatalf("match = %v, %v", got, err)
	}
	got, err = b["find"]([]any{"call me at x123", `x\d+`})
	if err != nil || got != "x123" {
		t.Fatalf("find = %v, %v", got, err)
	}
	got, err = b["find"]([]any{"nothing here", `x\d+`})
	if err != nil || got != nil {
		t.Fatalf("find with no match = %v, %v", got, err)
	}
}

func TestRegisterDetectors(t *testing.T) {
	reg := pattern.NewRegistry()
	RegisterDetectors(reg, func(v any) bool { return v == "blocked" })

	email, ok := reg.Get("EMAIL_ADDRESS")
	if !ok || !email.Detect("a@example.com") || email.Detect("not an address") {
		t.Fatalf("EMAIL_ADDRESS detector misbehaved")
	}
	secret, ok := reg.Get("SECRET")
	if !ok || !secret.Detect("api_key: abc123") {
		t.Fatalf("SECRET detector misbehaved")
	}
	moderated, ok := reg.Get("MODERATED")
	if !ok || !moderated.Detect("blocked") || moderated.Detect("fine") {
		t.Fatalf("MODERATED detector did not defer to the injected predicate")
	}
}
