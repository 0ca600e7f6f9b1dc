// Copyright 2025 Kadir Pekel
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

package llm

import (
	"encoding/json"
	"strings"
)

// repairJSON attempts to parse raw as a JSON object. On failure it
// applies three fixes in order (spec §4.5): close an unpaired quote,
// close unmatched '{', close unmatched '['. It returns the parsed
// object and whether parsing (directly or after repair) succeeded.
//
// A valid JSON string passed through unmodified returns
// byte-identical behavior: json.Unmarshal succeeds on the first try
// and no repair text is appended (spec §8's idempotence property).
func repairJSON(raw string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, true
	}

	repaired := applyRepair(raw)
	if err := json.Unmarshal([]byte(repaired), &out); err == nil {
		return out, true
	}
	return nil, false
}

func applyRepair(raw string) string {
	s := raw

	if hasUnpairedQuote(s) {
		s += `"`
	}

	openBraces := strings.Count(s, "{") - strings.Count(s, "}")
	for i := 0; i < openBraces; i++ {
		s += "}"
	}

	openBrackets := strings.Count(s, "[") - strings.Count(s, "]")
	for i := 0; i < openBrackets; i++ {
		s += "]"
	}

	return s
}

// hasUnpairedQuote counts unescaped double quotes; an odd count means
// the string ends mid-literal.
func hasUnpairedQuote(s string) bool {
	count := 0
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '"' {
			count++
		}
	}
	return count%2 == 1
}
