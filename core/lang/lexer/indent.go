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

import "strings"

// logicalLine is one non-blank, non-comment source line with its leading
// whitespace measured in indent-step units rather than raw characters.
type logicalLine struct {
	text    string // content after leading whitespace, right-trimmed
	indent  int    // indentation in units of the file's minimum indent step
	lineNo  int    // 1-based original line number
	colBase int     // column (1-based) at which text starts
}

// splitLines scans raw source into logicalLines, computing each line's
// indentation level in units of the file's minimum non-zero indent step
//. Blank lines and full-line comments are dropped; they
// contribute nothing to the token stream.
func splitLines(source string) []logicalLine {
	raw := strings.Split(source, "\n")
	minStep := 0
	widths := make([]int, len(raw))
	for i, l := range raw {
		trimmed := strings.TrimRight(l, " \t\r")
		content := strings.TrimLeft(trimmed, " \t")
		if content == "" || strings.HasPrefix(content, "#") {
			widths[i] = -1
			continue
		}
		w := len(trimmed) - len(content)
		widths[i] = w
		if w > 0 && (minStep == 0 || w < minStep) {
			minStep = w
		}
	}
	if minStep == 0 {
		minStep = 1
	}

	var out []logicalLine
	for i, l := range raw {
		if widths[i] < 0 {
			continue
		}
		trimmed := strings.TrimRight(l, " \t\r")
		content := strings.TrimLeft(trimmed, " \t")
		level := widths[i] / minStep
		if widths[i]%minStep != 0 {
			// Indentation that isn't a multiple of the step still rounds
			// down to the nearest enclosing level rather than erroring
			// here; the parser will reject a structurally invalid nesting
			// when it fails to find a matching block.
			level = widths[i] / minStep
		}
		out = append(out, logicalLine{
			text:    content,
			indent:  level,
			lineNo:  i + 1,
			colBase: widths[i] + 1,
		})
	}
	return out
}

// endsBlock reports whether a logical line's trailing punctuation opens an
// indented block (a trailing `:` or `:=` with nothing meaningful after
// it triggers INDENT on the following, deeper line).
func endsBlock(text string) bool {
	t := strings.TrimRight(text, " \t")
	return strings.HasSuffix(t, ":") || strings.HasSuffix(t, ":=")
}
