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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
)

func TestWriterAgent_Run_LatexModeNeverCallsLLM(t *testing.T) {
	ws := newTestWorkspace(t)
	a, err := NewWriterAgent(nil, ws, OutputLatex, 100)
	require.NoError(t, err)

	out := a.Run(context.Background(), newTestSink(), "write the intro")
	assert.Equal(t, writerAgentLatexUnsupportedMessage, out)
}

func TestWriterAgent_Run_MarkdownModeStopsOnToolFreeTurn(t *testing.T) {
	ws := newTestWorkspace(t)
	provider := &fakeProvider{turns: []scriptedTurn{
		{content: "Introduction drafted."},
	}}
	a, err := NewWriterAgent(llm.New(provider), ws, OutputMarkdown, 100)
	require.NoError(t, err)

	out := a.Run(context.Background(), newTestSink(), "write the intro")
	assert.Equal(t, "Introduction drafted.", out)
	assert.Equal(t, 1, provider.calls)
}

func TestWriterAgent_Run_WordModeDispatchesGetDocumentTextFirst(t *testing.T) {
	ws := newTestWorkspace(t)
	provider := &fakeProvider{turns: []scriptedTurn{
		{toolCalls: []struct {
			id   string
			name string
			args map[string]any
		}{{id: "call-1", name: "get_document_text", args: map[string]any{}}}},
		{content: "Document grounded and edited."},
	}}
	a, err := NewWriterAgent(llm.New(provider), ws, OutputWord, 100)
	require.NoError(t, err)

	out := a.Run(context.Background(), newTestSink(), "add a methods section")
	assert.Equal(t, "Document grounded and edited.", out)
	assert.Equal(t, 2, provider.calls)
}
