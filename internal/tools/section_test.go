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

const sampleDoc = `# Title

Intro text.

## Methods

Old methods text.

## Results

Old results text.

### Sub Result

Nested content.

## Discussion

Closing thoughts.
`

func TestUpdateSection_ReplacesBodyUpToNextHeadingOfSameOrLowerLevel(t *testing.T) {
	out := updateSection(sampleDoc, "Methods", "New methods text.")

	assert.Contains(t, out, "## Methods\n\nNew methods text.\n\n## Results")
	assert.Contains(t, out, "Old results text.")
	assert.NotContains(t, out, "Old methods text.")
}

func TestUpdateSection_ReplacesThroughNestedSubheadings(t *testing.T) {
	// A nested "### Sub Result" has a higher level number (3) than the
	// "## Results" heading being updated (2), so it is not a boundary:
	// the whole body, nested subsections included, is replaced.
	out := updateSection(sampleDoc, "Results", "Replacement results.")

	assert.Contains(t, out, "## Results\n\nReplacement results.\n\n## Discussion")
	assert.NotContains(t, out, "### Sub Result")
	assert.NotContains(t, out, "Nested content.")
}

func TestUpdateSection_CaseInsensitiveSubstringMatch(t *testing.T) {
	out := updateSection(sampleDoc, "discussion", "Updated closing.")
	assert.Contains(t, out, "## Discussion\n\nUpdated closing.\n")
}

func TestUpdateSection_AppendsWhenHeadingNotFound(t *testing.T) {
	out := updateSection(sampleDoc, "Acknowledgments", "Thanks to everyone.")

	assert.Contains(t, out, "# **Acknowledgments**")
	assert.Contains(t, out, "Thanks to everyone.")
}

func TestUpdateSection_EmptyDocumentAppendsOnly(t *testing.T) {
	out := updateSection("", "Intro", "Body text.")
	assert.Equal(t, "# **Intro**\n\nBody text.\n", out)
}

func TestSectionBody_ReturnsTrimmedBody(t *testing.T) {
	body, found := sectionBody(sampleDoc, "Methods")
	assert.True(t, found)
	assert.Equal(t, "Old methods text.", body)
}

func TestSectionBody_NotFound(t *testing.T) {
	_, found := sectionBody(sampleDoc, "Nonexistent")
	assert.False(t, found)
}

func TestRenameHeading_PreservesLevel(t *testing.T) {
	out, ok := renameHeading(sampleDoc, "Methods", "Materials and Methods")
	assert.True(t, ok)
	assert.Contains(t, out, "## Materials and Methods")
	assert.NotContains(t, out, "## Methods\n")
}

func TestRenameHeading_NotFound(t *testing.T) {
	_, ok := renameHeading(sampleDoc, "Nonexistent", "X")
	assert.False(t, ok)
}

func TestHeadingLevel(t *testing.T) {
	assert.Equal(t, 1, headingLevel("# Title"))
	assert.Equal(t, 3, headingLevel("### Sub"))
	assert.Equal(t, 0, headingLevel("not a heading"))
	assert.Equal(t, 0, headingLevel("#nospace"))
}

func TestBuildOutline(t *testing.T) {
	outline := buildOutline(sampleDoc)
	assert.Len(t, outline, 5)
	assert.Equal(t, "Title", outline[0].Title)
	assert.Equal(t, 1, outline[0].Level)
	assert.Equal(t, "Sub Result", outline[3].Title)
	assert.Equal(t, 3, outline[3].Level)
}
