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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songhahaha66/PaperAgent-sub000/internal/chatlog"
	"github.com/songhahaha66/PaperAgent-sub000/internal/config"
	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
	"github.com/songhahaha66/PaperAgent-sub000/internal/sandbox"
)

func newTestChatLog(t *testing.T) *chatlog.ChatLog {
	t.Helper()
	log, err := chatlog.Open(filepath.Join(t.TempDir(), "chat_history.json"), "work1")
	require.NoError(t, err)
	return log
}

func TestComposeSystemPrompt_TemplateAndOutputModeSuffixes(t *testing.T) {
	md := composeSystemPrompt(false, OutputMarkdown)
	assert.Contains(t, md, mainAgentBasePrompt)
	assert.Contains(t, md, markdownPromptSuffix)
	assert.NotContains(t, md, templatePromptSuffix)

	withTemplate := composeSystemPrompt(true, OutputWord)
	assert.Contains(t, withTemplate, templatePromptSuffix)
	assert.Contains(t, withTemplate, wordPromptSuffix)
}

func TestNewMainAgent_CopiesTemplateOnFirstUse(t *testing.T) {
	ws := newTestWorkspace(t)
	templateDir := t.TempDir()
	templatePath := filepath.Join(templateDir, "template.md")
	require.NoError(t, os.WriteFile(templatePath, []byte("# Template Title\n"), 0o644))

	provider := &fakeProvider{}
	log := newTestChatLog(t)
	a, err := New(Config{
		PlannerClient: llm.New(provider),
		CodeClient:    llm.New(provider),
		Workspace:     ws,
		Sandbox:       sandbox.New(ws, sandbox.Config{}),
		ChatLog:       log,
		Limits:        config.DefaultLimits(),
		OutputMode:    OutputMarkdown,
		TemplatePath:  templatePath,
	})
	require.NoError(t, err)
	require.NotNil(t, a)

	content, err := ws.Read("paper.md")
	require.NoError(t, err)
	assert.Contains(t, content.Text, "Template Title")
}

func TestMainAgent_Run_ReplayDetectionSkipsDuplicateUserMessage(t *testing.T) {
	ws := newTestWorkspace(t)
	provider := &fakeProvider{turns: []scriptedTurn{{content: "first answer"}}}
	log := newTestChatLog(t)
	a, err := New(Config{
		PlannerClient: llm.New(provider),
		CodeClient:    llm.New(provider),
		Workspace:     ws,
		Sandbox:       sandbox.New(ws, sandbox.Config{}),
		ChatLog:       log,
		Limits:        config.DefaultLimits(),
		OutputMode:    OutputMarkdown,
	})
	require.NoError(t, err)

	sink := newTestSink()
	require.NoError(t, a.Run(context.Background(), sink, "what is the capital of France?"))
	assert.Equal(t, 1, provider.calls)

	// Identical user message again: treated as replay, no new LLM call.
	require.NoError(t, a.Run(context.Background(), sink, "what is the capital of France?"))
	assert.Equal(t, 1, provider.calls)
}

func TestMainAgent_Run_CancelledContextReturnsErrorWithoutFinalize(t *testing.T) {
	ws := newTestWorkspace(t)
	provider := &fakeProvider{turns: []scriptedTurn{{content: "should not be reached"}}}
	log := newTestChatLog(t)
	a, err := New(Config{
		PlannerClient: llm.New(provider),
		CodeClient:    llm.New(provider),
		Workspace:     ws,
		Sandbox:       sandbox.New(ws, sandbox.Config{}),
		ChatLog:       log,
		Limits:        config.DefaultLimits(),
		OutputMode:    OutputMarkdown,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.Run(ctx, newTestSink(), "anything")
	assert.Error(t, err)
	assert.Equal(t, 0, provider.calls)
}
