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

// Package contextwindow implements the Context Manager (spec §4.10):
// token estimation, sliding-window compression, and a deterministic
// text summary — no LLM call involved.
package contextwindow

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
)

// Limits bounds when compression triggers.
type Limits struct {
	TokenCap   int
	MessageCap int
}

// DefaultLimits matches spec.md's stated defaults.
func DefaultLimits() Limits {
	return Limits{TokenCap: 20000, MessageCap: 50}
}

// EstimateTokens implements spec §4.10's estimator: english bytes/4 +
// cjk code points + other bytes/4, minimum 1.
func EstimateTokens(text string) int {
	var englishBytes, otherBytes, cjkPoints int
	for _, r := range text {
		switch {
		case isCJK(r):
			cjkPoints++
		case r < 128:
			englishBytes += utf8Len(r)
		default:
			otherBytes += utf8Len(r)
		}
	}
	total := englishBytes/4 + cjkPoints + otherBytes/4
	if total < 1 {
		return 1
	}
	return total
}

func utf8Len(r rune) int {
	switch {
	case r < 0x80:
		return 1
	case r < 0x800:
		return 2
	case r < 0x10000:
		return 3
	default:
		return 4
	}
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// EstimateMessages sums EstimateTokens over every message's content.
func EstimateMessages(msgs []llm.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}

// Strategy names a retention ratio tier.
type Strategy string

const (
	StrategyLow    Strategy = "low"
	StrategyMedium Strategy = "medium"
	StrategyHigh   Strategy = "high"
)

var retentionRatio = map[Strategy]float64{
	StrategyLow:    0.7,
	StrategyMedium: 0.5,
	StrategyHigh:   0.3,
}

// chooseStrategy picks a retention tier from a usage ratio (spec
// §4.10): >0.8 -> high, >0.6 -> medium, else low.
func chooseStrategy(usage float64) Strategy {
	switch {
	case usage > 0.8:
		return StrategyHigh
	case usage > 0.6:
		return StrategyMedium
	default:
		return StrategyLow
	}
}

// ShouldCompress reports whether msgs exceeds either configured cap.
func ShouldCompress(msgs []llm.Message, limits Limits) bool {
	return EstimateMessages(msgs) > limits.TokenCap || len(msgs) > limits.MessageCap
}

// Record describes one message dropped from the window by Compress,
// for telemetry.
type Record struct {
	Role    llm.Role
	Content string
}

// Compress retains the leading system message (if any) and the most
// recent ceil(N*ratio) messages, replacing everything in between with
// one synthetic system message carrying a deterministic summary. When
// msgs exceeds neither cap, it is returned unchanged.
func Compress(msgs []llm.Message, limits Limits) ([]llm.Message, []Record) {
	if len(msgs) == 0 || !ShouldCompress(msgs, limits) {
		return msgs, nil
	}

	usage := math.Max(
		float64(EstimateMessages(msgs))/float64(limits.TokenCap),
		float64(len(msgs))/float64(limits.MessageCap),
	)
	ratio := retentionRatio[chooseStrategy(usage)]

	startIdx := 0
	var system *llm.Message
	if msgs[0].Role == llm.RoleSystem {
		system = &msgs[0]
		startIdx = 1
	}

	rest := msgs[startIdx:]
	keep := int(math.Ceil(float64(len(rest)) * ratio))
	if keep >= len(rest) {
		return msgs, nil
	}
	if keep < 0 {
		keep = 0
	}

	cutoff := len(rest) - keep
	middle := rest[:cutoff]
	tail := rest[cutoff:]

	var dropped []Record
	for _, m := range middle {
		dropped = append(dropped, Record{Role: m.Role, Content: m.Content})
	}

	summary := summarize(middle)
	summaryMsg := llm.Message{Role: llm.RoleSystem, Content: "[上下文摘要] " + summary}

	out := make([]llm.Message, 0, 2+len(tail))
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, summaryMsg)
	out = append(out, tail...)
	return out, dropped
}

// summarize builds the deterministic text construction specified in
// spec §4.10: "user asked about <keywords>; assistant covered
// <concepts>; N questions total". No LLM call is involved.
func summarize(msgs []llm.Message) string {
	userWords := map[string]int{}
	assistantWords := map[string]int{}
	questionCount := 0

	for _, m := range msgs {
		words := tokenizeWords(m.Content)
		switch m.Role {
		case llm.RoleUser:
			questionCount++
			for _, w := range words {
				userWords[w]++
			}
		case llm.RoleAssistant:
			for _, w := range words {
				assistantWords[w]++
			}
		}
	}

	userTop := topKeywords(userWords, 5)
	assistantTop := topKeywords(assistantWords, 5)

	return fmt.Sprintf(
		"user asked about %s; assistant covered %s; %d questions total",
		strings.Join(userTop, ", "), strings.Join(assistantTop, ", "), questionCount,
	)
}

func tokenizeWords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !isCJK(r)
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

func topKeywords(counts map[string]int, n int) []string {
	type kv struct {
		word  string
		count int
	}
	list := make([]kv, 0, len(counts))
	for w, c := range counts {
		list = append(list, kv{w, c})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].word < list[j].word
	})
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, kv := range list {
		out[i] = kv.word
	}
	if len(out) == 0 {
		return []string{"various topics"}
	}
	return out
}
