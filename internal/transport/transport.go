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

// Package transport implements the wire side of the per-work
// bidirectional stream (spec §4.12): auth handshake, turn frames,
// heartbeats, and reconnect replay, sitting on top of the Task
// Supervisor (internal/task).
//
// The wire shape mirrors the websocket gateways in the retrieval
// pack — win30221-genesis's pkg/channels/web (an upgrader plus a
// per-connection read/write pair) and vanducng-goclaw's
// internal/gateway (a Server threaded through explicit fields rather
// than package-level state, per spec §9's "no hidden process-wide
// mutable state" design note) — adapted to this spec's fixed frame
// catalog instead of either pack repo's open-ended method router.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/songhahaha66/PaperAgent-sub000/internal/chatlog"
	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/task"
)

// ClientFrame is the shape of every client→server message (spec §6).
// Exactly one of Token (handshake), Problem (turn), or Type == "ping"
// is populated per frame.
type ClientFrame struct {
	Token   string `json:"token,omitempty"`
	Problem string `json:"problem,omitempty"`
	Model   string `json:"model,omitempty"`
	Type    string `json:"type,omitempty"`
}

// ServerFrame is the shape of every server→client message (spec §6).
type ServerFrame struct {
	Type    string        `json:"type"`
	Message string        `json:"message,omitempty"`
	TaskID  string        `json:"task_id,omitempty"`
	Content string        `json:"content,omitempty"`
	Block   *chatlog.Card `json:"block,omitempty"`
}

const (
	typeAuthSuccess       = "auth_success"
	typeError             = "error"
	typeReconnect         = "reconnect"
	typeContent           = "content"
	typeJSONBlock         = "json_block"
	typeReconnectComplete = "reconnect_complete"
	typeStart             = "start"
	typeComplete          = "complete"
	typePong              = "pong"
)

// Conn is the minimal bidirectional JSON-framed connection a Handler
// drives. *websocket.Conn satisfies this directly; tests use an
// in-memory fake.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Registry tracks the single connection currently attached to each
// work_id, so a newer attach can force the older one closed (spec.md
// line 295: "when a new transport attaches while the old one is still
// attached (race), the newer connection wins and the older is
// closed"). One Registry is shared across every Handler for a process,
// the same way one Supervisor is (spec §9's "no hidden process-wide
// mutable state" applies to explicit shared fields, not to having no
// shared state at all).
type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Attach registers conn as the current connection for workID, closing
// and evicting whatever connection previously held that slot. It
// returns a release func the caller must call once its own connection
// ends, which only clears the slot if conn is still the occupant (so
// an already-superseded connection's deferred cleanup can't evict the
// newer one that replaced it).
func (r *Registry) Attach(workID string, conn Conn) (release func()) {
	r.mu.Lock()
	if prev, ok := r.conns[workID]; ok && prev != conn {
		_ = prev.Close()
	}
	r.conns[workID] = conn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.conns[workID] == conn {
			delete(r.conns, workID)
		}
		r.mu.Unlock()
	}
}

// Authenticator validates the handshake token and resolves the
// calling user id. Out of scope per spec §1 ("HTTP authentication ...
// treated as external collaborators"); this is the narrow interface
// the Transport Adapter consumes.
type Authenticator interface {
	Authenticate(ctx context.Context, workID, token string) (userID string, err error)
}

// Runner drives one user turn to completion against sink, returning
// once the Main Agent's loop exits (spec §4.9). Handler supplies a
// sink whose Transport fans into the Task's event log/subscribers
// rather than directly at the connection, so the turn survives a
// disconnect (spec §4.12.6). userID is the Authenticator's resolved
// identity, since the per-(user, role) LLM configuration (spec
// §4.5/§6) is selected from it.
type Runner func(ctx context.Context, userID string, sink streambus.Sink, userMessage, model string) error

// Handler serves one attached connection for one work_id against a
// shared Supervisor (spec §4.11/§4.12). One Handler is constructed per
// work by the out-of-scope HTTP/WebSocket layer named in spec §1.
type Handler struct {
	WorkID     string
	Supervisor *task.Supervisor
	Auth       Authenticator
	Runner     Runner
	ChatLog    *chatlog.ChatLog

	// Registry, if non-nil, enforces the newer-connection-wins rule
	// for WorkID (spec.md:295). Tests that only ever attach one
	// connection per work_id may leave this nil.
	Registry *Registry
}

// taskTransport adapts a *task.Task to streambus.Transport: every
// Token/Card the Main Agent emits is appended to the task's event log
// (and fanned out to whatever connections are currently subscribed),
// rather than written to one specific websocket.
type taskTransport struct{ t *task.Task }

func (tt taskTransport) SendContent(text string) {
	tt.t.Append(task.Output{Kind: task.OutputContent, Content: text})
}

func (tt taskTransport) SendJSONBlock(card chatlog.Card) {
	tt.t.Append(task.Output{Kind: task.OutputJSONBlock, Block: card})
}

// Serve drives the full protocol for one connection (spec §4.12):
// handshake, optional reconnect replay, then an alternation of turns
// and heartbeats until the connection closes or ctx is cancelled.
func (h *Handler) Serve(ctx context.Context, conn Conn) error {
	defer conn.Close()

	var first ClientFrame
	if err := conn.ReadJSON(&first); err != nil {
		return fmt.Errorf("transport: read handshake: %w", err)
	}
	userID, err := h.Auth.Authenticate(ctx, h.WorkID, first.Token)
	if err != nil {
		_ = conn.WriteJSON(ServerFrame{Type: typeError, Message: "认证失败"})
		return fmt.Errorf("transport: authenticate: %w", err)
	}
	if err := conn.WriteJSON(ServerFrame{Type: typeAuthSuccess}); err != nil {
		return fmt.Errorf("transport: write auth_success: %w", err)
	}

	if h.Registry != nil {
		release := h.Registry.Attach(h.WorkID, conn)
		defer release()
	}

	if tsk, ok := h.Supervisor.Current(h.WorkID); ok && !tsk.Status.IsTerminal() {
		if err := conn.WriteJSON(ServerFrame{Type: typeReconnect, TaskID: tsk.TaskID}); err != nil {
			return fmt.Errorf("transport: write reconnect: %w", err)
		}
		announceReconnectComplete := func() error {
			return conn.WriteJSON(ServerFrame{Type: typeReconnectComplete})
		}
		if err := h.streamUntilDone(conn, tsk, announceReconnectComplete); err != nil {
			return err
		}
		if err := writeTerminalFrame(conn, tsk); err != nil {
			return err
		}
		return h.liveLoop(ctx, conn, userID)
	}

	return h.liveLoop(ctx, conn, userID)
}

func writeOutput(conn Conn, out task.Output) error {
	switch out.Kind {
	case task.OutputContent:
		return conn.WriteJSON(ServerFrame{Type: typeContent, Content: out.Content})
	case task.OutputJSONBlock:
		card := out.Block
		return conn.WriteJSON(ServerFrame{Type: typeJSONBlock, Block: &card})
	default:
		return nil
	}
}

// liveLoop reads client frames and reacts to ping/problem (spec
// §4.12.4/.5), once any reconnect replay has already completed.
func (h *Handler) liveLoop(ctx context.Context, conn Conn, userID string) error {
	for {
		var frame ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}

		switch {
		case frame.Type == "ping":
			if err := conn.WriteJSON(ServerFrame{Type: typePong}); err != nil {
				return err
			}
		case frame.Problem != "":
			if err := h.runTurn(ctx, conn, userID, frame.Problem, frame.Model); err != nil {
				return err
			}
		}
	}
}

// runTurn enforces the exactly-one-active-task rule at Create time
// (spec §4.12's "server responds with an error and does not start a
// new task"), then runs the turn to completion, streaming its events
// live to conn as they are produced.
func (h *Handler) runTurn(ctx context.Context, conn Conn, userID, problem, model string) error {
	tsk, err := h.Supervisor.Create(h.WorkID, userID, problem)
	if err != nil {
		return conn.WriteJSON(ServerFrame{Type: typeError, Message: "当前有任务正在执行，请等待完成"})
	}

	if err := conn.WriteJSON(ServerFrame{Type: typeStart}); err != nil {
		return err
	}

	runCtx := h.Supervisor.Start(ctx, tsk)
	sink := streambus.NewPersistentBus(taskTransport{t: tsk}, h.ChatLog)

	// The runner goroutine drives tsk to a terminal state on its own
	// timeline, closing tsk.Done(); streamUntilDone below only depends
	// on that closing, not on this function's own control flow, so the
	// two run concurrently instead of deadlocking on each other.
	done := make(chan struct{})
	go func() {
		defer close(done)
		runErr := h.Runner(runCtx, userID, sink, problem, model)
		switch {
		case runErr == nil:
			h.Supervisor.Complete(tsk)
		case runCtx.Err() == context.Canceled:
			h.Supervisor.Cancel(tsk)
		default:
			h.Supervisor.Fail(tsk, runErr)
		}
	}()

	streamErr := h.streamUntilDone(conn, tsk, nil)
	<-done

	if streamErr != nil {
		return streamErr
	}
	return writeTerminalFrame(conn, tsk)
}

// writeTerminalFrame sends the one frame that announces tsk's terminal
// outcome to conn, whether conn drove the turn itself or only attached
// via reconnect replay while it ran (spec §4.12.3/.5): both cases end
// with the same {complete}/{error} the client sees.
func writeTerminalFrame(conn Conn, tsk *task.Task) error {
	switch tsk.Status {
	case task.StatusCompleted:
		return conn.WriteJSON(ServerFrame{Type: typeComplete})
	case task.StatusFailed:
		msg := ""
		if tsk.Err != nil {
			msg = tsk.Err.Error()
		}
		return conn.WriteJSON(ServerFrame{Type: typeError, Message: msg})
	case task.StatusCancelled:
		return conn.WriteJSON(ServerFrame{Type: typeError, Message: "任务已取消"})
	default:
		return nil
	}
}

// streamUntilDone forwards tsk's buffered-then-live events to conn in
// order until tsk reaches a terminal state (spec §5's "within a
// single work, all Stream Bus events are delivered to the transport
// in the order the agent produced them"). If onSnapshotDone is
// non-nil it runs once, immediately after the buffered snapshot has
// been written and before any live event — used by the reconnect path
// to emit {reconnect_complete} at exactly that point (spec §4.12.3).
func (h *Handler) streamUntilDone(conn Conn, tsk *task.Task, onSnapshotDone func() error) error {
	snapshot, live, unsubscribe := tsk.SubscribeFromStart()
	defer unsubscribe()

	for _, out := range snapshot {
		if err := writeOutput(conn, out); err != nil {
			return err
		}
	}
	if onSnapshotDone != nil {
		if err := onSnapshotDone(); err != nil {
			return err
		}
	}

	done := tsk.Done()
	for {
		select {
		case out, ok := <-live:
			if !ok {
				return nil
			}
			if err := writeOutput(conn, out); err != nil {
				return err
			}
		case <-done:
			// Drain whatever arrived between the last select and
			// Done() closing, then return.
			for {
				select {
				case out := <-live:
					if err := writeOutput(conn, out); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}
