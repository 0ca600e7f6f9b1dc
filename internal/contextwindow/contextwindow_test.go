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

package contextwindow

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
)

func TestEstimateTokens_MinimumOne(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
}

func TestEstimateTokens_CJKCountsPerCodePoint(t *testing.T) {
	cjkOnly := EstimateTokens("论文写作助手")
	assert.Equal(t, 6, cjkOnly)
}

func TestEstimateTokens_EnglishDividedByFour(t *testing.T) {
	// 16 ascii bytes / 4 = 4
	assert.Equal(t, 4, EstimateTokens("0123456789abcdef"))
}

func buildMessages(n int) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: "you are a helpful paper assistant"}}
	for i := 0; i < n; i++ {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("question about regression analysis number %d", i)})
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf("answer covering regression diagnostics iteration %d", i)})
	}
	return msgs
}

func TestShouldCompress_MessageCapTrigger(t *testing.T) {
	limits := Limits{TokenCap: 1_000_000, MessageCap: 10}
	msgs := buildMessages(10)
	assert.True(t, ShouldCompress(msgs, limits))
}

func TestShouldCompress_BelowCaps(t *testing.T) {
	limits := DefaultLimits()
	msgs := buildMessages(3)
	assert.False(t, ShouldCompress(msgs, limits))
}

func TestCompress_PreservesSystemMessageFirst(t *testing.T) {
	limits := Limits{TokenCap: 50, MessageCap: 10}
	msgs := buildMessages(20)

	out, dropped := Compress(msgs, limits)

	require.NotEmpty(t, out)
	assert.Equal(t, llm.RoleSystem, out[0].Role)
	assert.Equal(t, msgs[0].Content, out[0].Content)
	assert.NotEmpty(t, dropped)
}

func TestCompress_BoundedLength(t *testing.T) {
	limits := Limits{TokenCap: 50, MessageCap: 10}
	n := 30
	msgs := buildMessages(n)

	out, _ := Compress(msgs, limits)

	rest := len(msgs) - 1
	usage := math.Max(float64(EstimateMessages(msgs))/float64(limits.TokenCap), float64(len(msgs))/float64(limits.MessageCap))
	ratio := retentionRatio[chooseStrategy(usage)]
	maxLen := int(math.Ceil(float64(rest)*ratio)) + 2

	assert.LessOrEqual(t, len(out), maxLen)
}

func TestCompress_SummaryMessageCarriesMarker(t *testing.T) {
	limits := Limits{TokenCap: 30, MessageCap: 6}
	msgs := buildMessages(10)

	out, _ := Compress(msgs, limits)

	found := false
	for _, m := range out {
		if m.Role == llm.RoleSystem && len(m.Content) > 0 && m.Content != msgs[0].Content {
			assert.Contains(t, m.Content, "[上下文摘要]")
			found = true
		}
	}
	assert.True(t, found, "expected a synthetic summary message in compressed output")
}

func TestCompress_NoOpWhenUnderCaps(t *testing.T) {
	limits := DefaultLimits()
	msgs := buildMessages(2)

	out, dropped := Compress(msgs, limits)

	assert.Equal(t, msgs, out)
	assert.Nil(t, dropped)
}
