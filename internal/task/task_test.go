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

package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_RefusesSecondNonTerminalTask(t *testing.T) {
	s := New(Config{})
	first, err := s.Create("work-1", "user-1", "question")
	require.NoError(t, err)
	require.Equal(t, StatusPending, first.Status)

	_, err = s.Create("work-1", "user-1", "another question")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestCreate_AllowedAfterTerminal(t *testing.T) {
	s := New(Config{})
	first, err := s.Create("work-1", "user-1", "question")
	require.NoError(t, err)
	s.Start(context.Background(), first)
	s.Complete(first)

	second, err := s.Create("work-1", "user-1", "question 2")
	require.NoError(t, err)
	assert.NotEqual(t, first.TaskID, second.TaskID)
}

func TestFinish_IsOneWay(t *testing.T) {
	s := New(Config{})
	tk, err := s.Create("work-1", "user-1", "q")
	require.NoError(t, err)
	s.Start(context.Background(), tk)
	s.Complete(tk)
	endedAt := tk.EndedAt

	s.Fail(tk, assert.AnError)
	assert.Equal(t, StatusCompleted, tk.Status)
	assert.Equal(t, endedAt, tk.EndedAt)
}

func TestCancel_StopsBoundContext(t *testing.T) {
	s := New(Config{})
	tk, err := s.Create("work-1", "user-1", "q")
	require.NoError(t, err)
	ctx := s.Start(context.Background(), tk)

	s.Cancel(tk)
	assert.Equal(t, StatusCancelled, tk.Status)
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected bound context to be cancelled")
	}
}

func TestAppend_DropsOldestOnOverflow(t *testing.T) {
	tk := &Task{cap: 2}
	tk.Append(Output{Kind: OutputContent, Content: "a"})
	tk.Append(Output{Kind: OutputContent, Content: "b"})
	tk.Append(Output{Kind: OutputContent, Content: "c"})

	snap := tk.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Content)
	assert.Equal(t, "c", snap[1].Content)
}

func TestCurrent_ReportsExistingRecord(t *testing.T) {
	s := New(Config{})
	_, ok := s.Current("work-missing")
	assert.False(t, ok)

	created, err := s.Create("work-1", "user-1", "q")
	require.NoError(t, err)
	got, ok := s.Current("work-1")
	require.True(t, ok)
	assert.Equal(t, created.TaskID, got.TaskID)
}
