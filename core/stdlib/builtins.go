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
	"fmt"
	"regexp"

	"github.com/ipl-lang/ipl-engine/core/pattern"
	"github.com/ipl-lang/ipl-engine/core/policyengine/engine"
)

// Builtins returns the free functions exposed to every policy by name,
// a small library of helpers available inside rule bodies and list
// comprehensions (len, any/all over a bound list, min/max, match/find).
func Builtins() map[string]engine.Builtin {
	return map[string]engine.Builtin{
		"len":   lenFn,
		"any":   anyFn,
		"all":   allFn,
		"min":   minFn,
		"max":   maxFn,
		"match": matchFn,
		"find":  findFn,
	}
}

// RegisterDetectors populates reg with the stand-in value-reference
// detectors. moderated, if non-nil, backs <MODERATED>; a nil value
// leaves that detector always-false.
func RegisterDetectors(reg *pattern.Registry, moderated func(v any) bool) {
	reg.Register("EMAIL_ADDRESS", EmailAddress())
	reg.Register("PHONE_NUMBER", PhoneNumber())
	reg.Register("SECRET", Secret())
	reg.Register("MODERATED", Moderated(moderated))
}

func lenFn(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("stdlib: len() takes exactly one argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case string:
		return float64(len([]rune(v))), nil
	case []any:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	default:
		return nil, fmt.Errorf("stdlib: len() unsupported for %T", v)
	}
}

func asBoolList(v any) ([]bool, error) {
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("stdlib: expected a list, got %T", v)
	}
	out := make([]bool, len(l))
	for i, e := range l {
		b, ok := e.(bool)
		if !ok {
			return nil, fmt.Errorf("stdlib: expected a list of booleans, element %d is %T", i, e)
		}
		out[i] = b
	}
	return out, nil
}

func anyFn(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("stdlib: any() takes exactly one argument, got %d", len(args))
	}
	bs, err := asBoolList(args[0])
	if err != nil {
		return nil, err
	}
	for _, b := range bs {
		if b {
			return true, nil
		}
	}
	return false, nil
}

func allFn(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("stdlib: all() takes exactly one argument, got %d", len(args))
	}
	bs, err := asBoolList(args[0])
	if err != nil {
		return nil, err
	}
	for _, b := range bs {
		if !b {
			return false, nil
		}
	}
	return true, nil
}

func asNumberList(v any) ([]float64, error) {
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("stdlib: expected a list, got %T", v)
	}
	out := make([]float64, len(l))
	for i, e := range l {
		switch n := e.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		default:
			return nil, fmt.Errorf("stdlib: expected a list of numbers, element %d is %T", i, e)
		}
	}
	return out, nil
}

func minFn(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("stdlib: min() takes exactly one argument, got %d", len(args))
	}
	ns, err := asNumberList(args[0])
	if err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, fmt.Errorf("stdlib: min() of an empty list")
	}
	m := ns[0]
	for _, n := range ns[1:] {
		if n < m {
			m = n
		}
	}
	return m, nil
}

func maxFn(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("stdlib: max() takes exactly one argument, got %d", len(args))
	}
	ns, err := asNumberList(args[0])
	if err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, fmt.Errorf("stdlib: max() of an empty list")
	}
	m := ns[0]
	for _, n := range ns[1:] {
		if n > m {
			m = n
		}
	}
	return m, nil
}

func matchFn(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("stdlib: match() takes exactly two arguments, got %d", len(args))
	}
	s, ok := args[0].(string)
	pat, ok2 := args[1].(string)
	if !ok || !ok2 {
		return nil, fmt.Errorf("stdlib: match() expects (string, string) arguments")
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("stdlib: match(): invalid pattern %q: %w", pat, err)
	}
	return re.MatchString(s), nil
}

func findFn(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("stdlib: find() takes exactly two arguments, got %d", len(args))
	}
	s, ok := args[0].(string)
	pat, ok2 := args[1].(string)
	if !ok || !ok2 {
		return nil, fmt.Errorf("stdlib: find() expects (string, string) arguments")
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("stdlib: find(): invalid pattern %q: %w", pat, err)
	}
	m := re.FindString(s)
	if m == "" && !re.MatchString(s) {
		return nil, nil
	}
	return m, nil
}
