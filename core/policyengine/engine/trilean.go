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

// Package engine implements the three-valued rule evaluation engine:
// interpreter, operator semantics, and the evaluation context a rule body
// runs under. Evaluation is a closed type switch over ast.Expr trees; no
// generated listeners or reflection.
package engine

import "fmt"

// Trilean is the engine's three-valued boolean: distinct from
// Option<bool> because Unknown has its own combinator laws (Kleene logic),
// not "no value".
type Trilean uint8

// Trilean values.
const (
	False Trilean = iota
	True
	Unknown
)

// String renders a Trilean for diagnostics and test failure messages.
func (t Trilean) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// BoolTrilean converts a concrete boolean into its Trilean.
func BoolTrilean(b bool) Trilean {
	if b {
		return True
	}
	return False
}

// And computes Kleene conjunction: any False makes the whole False; absent
// that, any Unknown makes the whole Unknown; otherwise True.
func (t Trilean) And(o Trilean) Trilean {
	if t == False || o == False {
		return False
	}
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return True
}

// Or computes Kleene disjunction: any True makes the whole True; absent
// that, any Unknown makes the whole Unknown; otherwise False.
func (t Trilean) Or(o Trilean) Trilean {
	if t == True || o == True {
		return True
	}
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return False
}

// Not negates True/False and leaves Unknown untouched.
func (t Trilean) Not() Trilean {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// TrileanToValue renders a Trilean back into Eval's value domain: concrete
// booleans stay concrete, Unknown becomes the Unknown sentinel so it
// continues to propagate through any enclosing expression untouched.
// Shared by the interpreter's own operators and by core/policyengine/engine/enum's
// quantifier evaluation, which produces a Trilean and must hand Eval's
// caller back a value of the same shape Eval always returns.
func TrileanToValue(t Trilean) any {
	if t == Unknown {
		return UnknownValue
	}
	return t == True
}

// nopSentinel and unknownSentinel are the two non-value results an
// expression can produce: NOP for `:=` bindings, and Unknown for a
// not-yet-bound sub-expression. They are distinct singleton types so a type switch tells
// them apart from any concrete policy value (including Go's nil, which
// represents the `None` literal).
type nopSentinel struct{}
type unknownSentinel struct{}

func (nopSentinel) String() string     { return "NOP" }
func (unknownSentinel) String() string { return "Unknown" }

// NOP is the result of a `:=` binding expression.
var NOP = nopSentinel{}

// UnknownValue is the value-level form of Unknown: a sub-expression whose
// truth or value depends on a variable not yet bound for the current
// candidate assignment.
var UnknownValue = unknownSentinel{}

// IsUnknown reports whether v is the Unknown sentinel.
func IsUnknown(v any) bool {
	_, ok := v.(unknownSentinel)
	return ok
}

// IsNOP reports whether v is the NOP sentinel.
func IsNOP(v any) bool {
	_, ok := v.(nopSentinel)
	return ok
}

// ToTrilean interprets a value produced by Eval in a boolean context. A
// concrete non-bool value in a boolean context is an evaluation error,
// distinct from Unknown.
func ToTrilean(v any) (Trilean, error) {
	switch x := v.(type) {
	case bool:
		return BoolTrilean(x), nil
	case unknownSentinel:
		return Unknown, nil
	case nopSentinel:
		return True, nil // a `:=` binding contributes no constraint to its conjunction
	default:
		return False, fmt.Errorf("engine: expected a boolean, got %T", v)
	}
}
