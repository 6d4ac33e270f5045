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

// Flow reports whether a precedes b in the flattened event list (the `->`
// operator). Every event's edge-set is "everything before it," so flow is
// plain sequential precedence, not a content- or call/output-specific
// relation.
func (t *Trace) Flow(a, b Event) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Index() < b.Index()
}

// ImmediateSuccessor reports whether b is the immediately next event after
// a in the flattened event list (the `~>` operator).
func (t *Trace) ImmediateSuccessor(a, b Event) bool {
	if a == nil || b == nil {
		return false
	}
	return b.Index() == a.Index()+1
}
