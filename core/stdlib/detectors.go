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

// Package stdlib supplies the engine's built-in free functions
// (core/policyengine/engine.Builtin) and a small set of value-reference
// detectors (core/pattern.Detector) good enough to exercise the matcher
// and interpreter end to end. The detector *library* itself — real PII/NER
// models, OCR, moderation classifiers — is explicitly out of scope;
// what's here are regex-backed stand-ins plus a hook for an injected
// external predicate.
package stdlib

import "regexp"

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d().\-\s]{7,}\d`)
	secretRe = regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*\S+`)
)

// regexDetector implements pattern.Detector over a compiled regular
// expression, matched against the string form of v (non-strings never
// match — these detectors only ever apply to textual content).
type regexDetector struct {
	re *regexp.Regexp
}

func (d regexDetector) Detect(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return d.re.MatchString(s)
}

// EmailAddress backs the `<EMAIL_ADDRESS>` value reference.
func EmailAddress() regexDetector { return regexDetector{emailRe} }

// PhoneNumber backs the `<PHONE_NUMBER>` value reference.
func PhoneNumber() regexDetector { return regexDetector{phoneRe} }

// Secret backs the `<SECRET>` value reference: a coarse "looks like a
// credential" heuristic, not a real secret scanner.
func Secret() regexDetector { return regexDetector{secretRe} }

// ModeratedDetector backs the `<MODERATED>` value reference by deferring
// entirely to an injected predicate (e.g. a real moderation classifier
// wired in by the embedding application) rather than any heuristic of its
// own. A nil Predicate makes every Detect call report false.
type ModeratedDetector struct {
	Predicate func(v any) bool
}

// Detect implements pattern.Detector.
func (d ModeratedDetector) Detect(v any) bool {
	if d.Predicate == nil {
		return false
	}
	return d.Predicate(v)
}

// Moderated returns a ModeratedDetector deferring to predicate.
func Moderated(predicate func(v any) bool) ModeratedDetector {
	return ModeratedDetector{Predicate: predicate}
}
