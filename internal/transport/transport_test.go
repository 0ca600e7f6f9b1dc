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

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songhahaha66/PaperAgent-sub000/internal/chatlog"
	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/task"
)

// fakeConn is an in-memory Conn: inbound frames are fed via in, and
// every outbound WriteJSON call is appended to out. ReadJSON blocks
// until a frame is queued or in is closed (returning io.EOF-shaped
// error via errClosed).
type fakeConn struct {
	in     chan ClientFrame
	mu     sync.Mutex
	out    []ServerFrame
	closed bool
}

var errClosed = errors.New("fakeConn: closed")

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan ClientFrame, 16)}
}

func (c *fakeConn) push(f ClientFrame) { c.in <- f }

func (c *fakeConn) ReadJSON(v any) error {
	f, ok := <-c.in
	if !ok {
		return errClosed
	}
	raw, _ := json.Marshal(f)
	return json.Unmarshal(raw, v)
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, _ := json.Marshal(v)
	var sf ServerFrame
	_ = json.Unmarshal(raw, &sf)
	c.out = append(c.out, sf)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
	return nil
}

func (c *fakeConn) frames() []ServerFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServerFrame, len(c.out))
	copy(out, c.out)
	return out
}

type staticAuth struct {
	userID string
	err    error
}

func (a staticAuth) Authenticate(context.Context, string, string) (string, error) {
	return a.userID, a.err
}

func newTestChatLog(t *testing.T) *chatlog.ChatLog {
	t.Helper()
	log, err := chatlog.Open(filepath.Join(t.TempDir(), "chat_history.json"), "work-1")
	require.NoError(t, err)
	return log
}

func TestServe_AuthFailureClosesConnection(t *testing.T) {
	h := &Handler{WorkID: "work-1", Supervisor: task.New(task.Config{}), Auth: staticAuth{err: errors.New("bad token")}}
	conn := newFakeConn()
	conn.push(ClientFrame{Token: "bad"})

	err := h.Serve(context.Background(), conn)
	require.Error(t, err)

	frames := conn.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, typeError, frames[0].Type)
}

func TestServe_QuickToolFreeTurn(t *testing.T) {
	h := &Handler{
		WorkID:     "work-1",
		Supervisor: task.New(task.Config{}),
		Auth:       staticAuth{userID: "user-1"},
		ChatLog:    newTestChatLog(t),
		Runner: func(ctx context.Context, userID string, sink streambus.Sink, userMessage, model string) error {
			sink.Token("Hello")
			sink.Finalize()
			return nil
		},
	}
	conn := newFakeConn()
	conn.push(ClientFrame{Token: "tok"})
	conn.push(ClientFrame{Problem: "Hi"})

	done := make(chan error, 1)
	go func() { done <- h.Serve(context.Background(), conn) }()

	waitForFrames(t, conn, 4)
	conn.Close()
	<-done

	frames := conn.frames()
	require.GreaterOrEqual(t, len(frames), 4)
	assert.Equal(t, typeAuthSuccess, frames[0].Type)
	assert.Equal(t, typeStart, frames[1].Type)
	assert.Equal(t, typeContent, frames[2].Type)
	assert.Equal(t, "Hello", frames[2].Content)
	assert.Equal(t, typeComplete, frames[3].Type)
}

func TestServe_SecondConcurrentTurnIsRejected(t *testing.T) {
	sup := task.New(task.Config{})
	release := make(chan struct{})
	runnerCalls := 0
	var mu sync.Mutex

	h := &Handler{
		WorkID:     "work-1",
		Supervisor: sup,
		Auth:       staticAuth{userID: "user-1"},
		ChatLog:    newTestChatLog(t),
		Runner: func(ctx context.Context, userID string, sink streambus.Sink, userMessage, model string) error {
			mu.Lock()
			runnerCalls++
			mu.Unlock()
			<-release
			sink.Finalize()
			return nil
		},
	}

	// Both connections complete their handshake (and, in particular,
	// their Supervisor.Current reconnect check, which finds nothing
	// yet) before either submits a problem, so neither takes the
	// reconnect/replay path below: this isolates the race to the
	// Supervisor.Create call inside runTurn.
	conn1 := newFakeConn()
	conn1.push(ClientFrame{Token: "tok"})
	done1 := make(chan error, 1)
	go func() { done1 <- h.Serve(context.Background(), conn1) }()
	waitForFrames(t, conn1, 1) // auth_success

	h2 := &Handler{WorkID: "work-1", Supervisor: sup, Auth: staticAuth{userID: "user-1"}, ChatLog: h.ChatLog, Runner: h.Runner}
	conn2 := newFakeConn()
	conn2.push(ClientFrame{Token: "tok"})
	done2 := make(chan error, 1)
	go func() { done2 <- h2.Serve(context.Background(), conn2) }()
	waitForFrames(t, conn2, 1) // auth_success

	conn1.push(ClientFrame{Problem: "first"})
	waitForFrames(t, conn1, 2) // auth_success, start

	conn2.push(ClientFrame{Problem: "second"})
	waitForFrames(t, conn2, 2) // auth_success, error
	conn2.Close()
	<-done2

	frames2 := conn2.frames()
	require.Len(t, frames2, 2)
	assert.Equal(t, typeError, frames2[1].Type)

	close(release)
	waitForFrames(t, conn1, 3)
	conn1.Close()
	<-done1

	mu.Lock()
	assert.Equal(t, 1, runnerCalls)
	mu.Unlock()
}

func TestServe_ReconnectReplaysBufferedEvents(t *testing.T) {
	sup := task.New(task.Config{})
	started := make(chan struct{})
	release := make(chan struct{})

	h := &Handler{
		WorkID:     "work-1",
		Supervisor: sup,
		Auth:       staticAuth{userID: "user-1"},
		ChatLog:    newTestChatLog(t),
		Runner: func(ctx context.Context, userID string, sink streambus.Sink, userMessage, model string) error {
			sink.Token("first")
			sink.Token("second")
			close(started)
			<-release
			sink.Finalize()
			return nil
		},
	}

	conn1 := newFakeConn()
	conn1.push(ClientFrame{Token: "tok"})
	conn1.push(ClientFrame{Problem: "go"})
	done1 := make(chan error, 1)
	go func() { done1 <- h.Serve(context.Background(), conn1) }()

	<-started
	waitForFrames(t, conn1, 4) // auth_success, start, first, second
	conn1.Close()

	h2 := &Handler{WorkID: "work-1", Supervisor: sup, Auth: staticAuth{userID: "user-1"}, ChatLog: h.ChatLog, Runner: h.Runner}
	conn2 := newFakeConn()
	conn2.push(ClientFrame{Token: "tok"})
	done2 := make(chan error, 1)
	go func() { done2 <- h2.Serve(context.Background(), conn2) }()

	waitForFrames(t, conn2, 5) // auth_success, reconnect, first, second, reconnect_complete
	close(release)
	waitForFrames(t, conn2, 6) // + complete
	conn2.Close()
	<-done2
	<-done1

	frames := conn2.frames()
	require.Len(t, frames, 6)
	assert.Equal(t, typeAuthSuccess, frames[0].Type)
	assert.Equal(t, typeReconnect, frames[1].Type)
	assert.Equal(t, "first", frames[2].Content)
	assert.Equal(t, "second", frames[3].Content)
	assert.Equal(t, typeReconnectComplete, frames[4].Type)
	assert.Equal(t, typeComplete, frames[5].Type)
}

func TestRegistry_NewerAttachClosesOlder(t *testing.T) {
	reg := NewRegistry()
	conn1 := newFakeConn()
	conn2 := newFakeConn()

	release1 := reg.Attach("work-1", conn1)
	assert.False(t, conn1.closed)

	release2 := reg.Attach("work-1", conn2)
	assert.True(t, conn1.closed)
	assert.False(t, conn2.closed)

	// conn1's own cleanup runs after it has already been superseded, so
	// it must not evict conn2's slot.
	release1()
	reg.mu.Lock()
	_, stillAttached := reg.conns["work-1"]
	reg.mu.Unlock()
	assert.True(t, stillAttached)

	release2()
	reg.mu.Lock()
	_, stillAttached = reg.conns["work-1"]
	reg.mu.Unlock()
	assert.False(t, stillAttached)
}

func TestServe_NewerAttachClosesOlderConnection(t *testing.T) {
	sup := task.New(task.Config{})
	reg := NewRegistry()
	chatLog := newTestChatLog(t)

	h1 := &Handler{WorkID: "work-1", Supervisor: sup, Registry: reg, Auth: staticAuth{userID: "user-1"}, ChatLog: chatLog}
	conn1 := newFakeConn()
	conn1.push(ClientFrame{Token: "tok"})
	done1 := make(chan error, 1)
	go func() { done1 <- h1.Serve(context.Background(), conn1) }()
	waitForFrames(t, conn1, 1) // auth_success

	h2 := &Handler{WorkID: "work-1", Supervisor: sup, Registry: reg, Auth: staticAuth{userID: "user-1"}, ChatLog: chatLog}
	conn2 := newFakeConn()
	conn2.push(ClientFrame{Token: "tok"})
	done2 := make(chan error, 1)
	go func() { done2 <- h2.Serve(context.Background(), conn2) }()
	waitForFrames(t, conn2, 1) // auth_success

	select {
	case <-done1:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the superseded connection's Serve call to return")
	}
	assert.True(t, conn1.closed)

	conn2.Close()
	<-done2
}

func waitForFrames(t *testing.T, conn *fakeConn, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if len(conn.frames()) >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatal(fmt.Sprintf("timed out waiting for %d frames, got %d", n, len(conn.frames())))
		case <-time.After(5 * time.Millisecond):
		}
	}
}
