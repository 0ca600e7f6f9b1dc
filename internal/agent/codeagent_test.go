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
	"github.com/songhahaha66/PaperAgent-sub000/internal/sandbox"
	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "work1")
	require.NoError(t, err)
	return ws
}

func newTestSink() streambus.Sink {
	return streambus.NewPersistentBus(streambus.NullTransport{}, nil)
}

func TestCodeAgent_Run_StopsOnToolFreeTurn(t *testing.T) {
	ws := newTestWorkspace(t)
	sb := sandbox.New(ws, sandbox.Config{})
	provider := &fakeProvider{turns: []scriptedTurn{
		{content: "analysis complete, no further action needed"},
	}}
	a, err := NewCodeAgent(llm.New(provider), ws, sb, 50)
	require.NoError(t, err)

	out := a.Run(context.Background(), newTestSink(), "compute the mean of [1,2,3]")
	assert.Equal(t, "analysis complete, no further action needed", out)
	assert.Equal(t, 1, provider.calls)
}

func TestCodeAgent_Run_RespectsMaxTurnsCap(t *testing.T) {
	ws := newTestWorkspace(t)
	sb := sandbox.New(ws, sandbox.Config{})
	loopingTurn := scriptedTurn{toolCalls: []struct {
		id   string
		name string
		args map[string]any
	}{{id: "call-1", name: "nonexistent_tool", args: map[string]any{}}}}
	provider := &fakeProvider{turns: []scriptedTurn{loopingTurn, loopingTurn, loopingTurn}}
	a, err := NewCodeAgent(llm.New(provider), ws, sb, 3)
	require.NoError(t, err)

	out := a.Run(context.Background(), newTestSink(), "do something unbounded")
	assert.Contains(t, out, "未知工具")
	assert.Equal(t, 3, provider.calls)
}

func TestCodeAgent_Run_CancelledContextReturnsImmediately(t *testing.T) {
	ws := newTestWorkspace(t)
	sb := sandbox.New(ws, sandbox.Config{})
	provider := &fakeProvider{turns: []scriptedTurn{{content: "should not be reached"}}}
	a, err := NewCodeAgent(llm.New(provider), ws, sb, 50)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := a.Run(ctx, newTestSink(), "anything")
	assert.Equal(t, "任务已取消", out)
	assert.Equal(t, 0, provider.calls)
}
