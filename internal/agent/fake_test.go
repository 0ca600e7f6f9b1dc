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

package agent

import (
	"context"
	"encoding/json"

	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
)

// scriptedTurn is one canned response a fakeProvider hands back on a
// successive Stream/Complete call.
type scriptedTurn struct {
	content   string
	toolCalls []struct {
		id   string
		name string
		args map[string]any
	}
}

// fakeProvider is a minimal llm.RawProvider driven by a fixed script,
// one entry consumed per call, so tests can assert the agent loop's
// dispatch/termination behavior without a real provider SDK.
type fakeProvider struct {
	turns []scriptedTurn
	calls int
}

func (p *fakeProvider) Name() string          { return "fake" }
func (p *fakeProvider) Provider() llm.Provider { return llm.ProviderOpenAI }

func (p *fakeProvider) next() scriptedTurn {
	if p.calls >= len(p.turns) {
		return scriptedTurn{}
	}
	t := p.turns[p.calls]
	p.calls++
	return t
}

func (p *fakeProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.RawDelta, <-chan error) {
	deltas := make(chan llm.RawDelta, 8)
	errs := make(chan error, 1)

	turn := p.next()
	if turn.content != "" {
		deltas <- llm.RawDelta{ContentDelta: turn.content}
	}
	for i, tc := range turn.toolCalls {
		argsBytes, _ := json.Marshal(tc.args)
		deltas <- llm.RawDelta{ToolCallDelta: &llm.ToolCallDelta{Index: i, ID: tc.id, Name: tc.name, ArgumentsFragment: string(argsBytes)}}
	}
	close(deltas)
	errs <- nil
	close(errs)
	return deltas, errs
}

// Complete is never exercised by these tests (none call Client.Sync),
// but must be implemented for fakeProvider to satisfy RawProvider.
func (p *fakeProvider) Complete(ctx context.Context, req *llm.Request) (string, []llm.RawToolCall, error) {
	turn := p.next()
	calls := make([]llm.RawToolCall, 0, len(turn.toolCalls))
	for _, tc := range turn.toolCalls {
		argsBytes, _ := json.Marshal(tc.args)
		calls = append(calls, llm.RawToolCall{ID: tc.id, Name: tc.name, ArgumentsRaw: string(argsBytes)})
	}
	return turn.content, calls, nil
}
