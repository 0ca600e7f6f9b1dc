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

package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertImageReference_SmartInsertsBeforeConclusion(t *testing.T) {
	doc := "# Title\n\nSome body text.\n\n## Conclusion\n\nWrap up.\n"
	out := insertImageReference(doc, "outputs/plots/plot_1.png", "figure 1", "smart")

	idxImage := indexOf(out, "![figure 1](outputs/plots/plot_1.png)")
	idxConclusion := indexOf(out, "## Conclusion")
	assert.Greater(t, idxImage, -1)
	assert.Greater(t, idxConclusion, -1)
	assert.Less(t, idxImage, idxConclusion)
}

func TestInsertImageReference_SmartAppendsWhenNoConclusion(t *testing.T) {
	doc := "# Title\n\nSome body text.\n"
	out := insertImageReference(doc, "outputs/plots/plot_1.png", "figure 1", "smart")

	assert.Contains(t, out, "Some body text.")
	assert.True(t, indexOf(out, "Some body text.") < indexOf(out, "![figure 1]"))
}

func TestInsertImageReference_Beginning(t *testing.T) {
	doc := "# Title\n\nBody.\n"
	out := insertImageReference(doc, "outputs/plots/plot_1.png", "fig", "beginning")

	assert.True(t, indexOf(out, "![fig]") < indexOf(out, "# Title"))
}

func TestInsertImageReference_End(t *testing.T) {
	doc := "# Title\n\nBody.\n"
	out := insertImageReference(doc, "outputs/plots/plot_1.png", "fig", "end")

	assert.True(t, indexOf(out, "Body.") < indexOf(out, "![fig]"))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
