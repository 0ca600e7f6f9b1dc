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

// Package task implements the per-work task supervisor (spec §4.11):
// exactly one in-flight Task per work_id, a bounded ordered event log
// for reconnect replay, and a state machine with one-way transitions.
//
// The registry shape mirrors hector's pkg/agent task bookkeeping (a
// mutex-guarded map keyed by id, cf. TaskAwaiter's `waiting` map in
// pkg/agent/task_awaiter.go), collapsed from hector's general A2A task
// protocol to this spec's narrower five-state machine.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/songhahaha66/PaperAgent-sub000/internal/chatlog"
	"github.com/songhahaha66/PaperAgent-sub000/internal/logging"
)

// Status is a Task's place in the state machine (spec §4.11).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether s has no further legal transitions other
// than a fresh Create superseding the record.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// OutputKind discriminates the two event shapes buffered in a Task's
// event log (spec §3's Task.outputs).
type OutputKind string

const (
	OutputContent   OutputKind = "content"
	OutputJSONBlock OutputKind = "json_block"
)

// Output is one buffered event, replayed verbatim to a reconnecting
// transport (spec §4.11/§4.12).
type Output struct {
	Kind      OutputKind
	Content   string
	Block     chatlog.Card
	Timestamp time.Time
}

// Task is the per-work_id record described in spec §3.
type Task struct {
	TaskID    string
	WorkID    string
	UserID    string
	Question  string
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	Err       error

	mu          sync.Mutex
	outputs     []Output
	cap         int
	subscribers map[int]chan Output
	nextSub     int
	done        chan struct{}

	cancel context.CancelFunc
}

// These are the Task Supervisor metrics named in SPEC_FULL's
// domain-stack table; the Sandbox counter lives in internal/sandbox.
var (
	tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paperforge_tasks_total",
		Help: "Total tasks, labeled by terminal status.",
	}, []string{"status"})
	taskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paperforge_task_duration_seconds",
		Help:    "Task wall-clock duration from running to terminal.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(tasksTotal, taskDuration)
}

// Append adds one event to the task's bounded event log, dropping the
// oldest entry on overflow (spec §4.11's "overflow policy is
// drop-oldest"), and fans it out to every live subscriber. A
// subscriber whose channel is full is skipped rather than blocked —
// it will pick up the gap from a fresh Snapshot/Subscribe pair on its
// next reconnect, matching the "buffered until reconnect" semantics
// of spec §4.12.6.
func (t *Task) Append(out Output) {
	t.mu.Lock()
	t.outputs = append(t.outputs, out)
	if len(t.outputs) > t.cap {
		t.outputs = t.outputs[len(t.outputs)-t.cap:]
	}
	subs := make([]chan Output, 0, len(t.subscribers))
	for _, ch := range t.subscribers {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- out:
		default:
		}
	}
}

// Snapshot returns a copy of the buffered event log in order, for
// reconnect replay (spec §4.11/§4.12.3).
func (t *Task) Snapshot() []Output {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Output, len(t.outputs))
	copy(out, t.outputs)
	return out
}

// SubscribeFromStart atomically takes a copy of everything buffered
// so far plus a channel of everything appended from this instant on,
// so a caller that replays the snapshot then drains the channel sees
// every event exactly once with no gap or duplicate (spec §4.12.3's
// "replay is from the beginning of the buffered task" followed by
// live streaming). The returned unsubscribe func must be called once
// the caller stops draining.
func (t *Task) SubscribeFromStart() (snapshot []Output, live <-chan Output, unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot = make([]Output, len(t.outputs))
	copy(snapshot, t.outputs)

	if t.subscribers == nil {
		t.subscribers = map[int]chan Output{}
	}
	id := t.nextSub
	t.nextSub++
	ch := make(chan Output, 256)
	t.subscribers[id] = ch

	return snapshot, ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(c)
		}
	}
}

// Done returns a channel closed once the task reaches a terminal
// state, so an attached transport's live-streaming loop knows when to
// stop waiting for further events.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		t.done = make(chan struct{})
	}
	return t.done
}

// Supervisor enforces "at most one Task per work in a non-terminal
// state" (spec §4.11) and owns the per-work Task registry.
type Supervisor struct {
	mu          sync.Mutex
	tasks       map[string]*Task
	eventLogCap int
	taskTimeout time.Duration
}

// Config configures a Supervisor's numeric knobs.
type Config struct {
	EventLogCapacity int
	TaskTimeout      time.Duration
}

// New returns an empty Supervisor.
func New(cfg Config) *Supervisor {
	if cfg.EventLogCapacity <= 0 {
		cfg.EventLogCapacity = 2000
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Minute
	}
	return &Supervisor{tasks: map[string]*Task{}, eventLogCap: cfg.EventLogCapacity, taskTimeout: cfg.TaskTimeout}
}

// ErrAlreadyRunning is returned by Create when the work already has a
// non-terminal task.
var ErrAlreadyRunning = fmt.Errorf("task: a task is already running for this work")

// Current returns the work's current Task record, if any (terminal or
// not); used by reconnect to decide whether to replay (spec §4.12.3).
func (s *Supervisor) Current(workID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[workID]
	return t, ok
}

// Create replaces the work's Task record with a fresh pending Task,
// refusing if a non-terminal Task already exists (spec §4.11's
// "exactly one transition-to-running is allowed at any time per
// work", enforced here at creation so the transport layer can reject
// the second `problem` frame per spec §4.12's exactly-one-active-task
// rule).
func (s *Supervisor) Create(workID, userID, question string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[workID]; ok && !existing.Status.IsTerminal() {
		return nil, ErrAlreadyRunning
	}

	t := &Task{
		TaskID:   uuid.NewString(),
		WorkID:   workID,
		UserID:   userID,
		Question: question,
		Status:   StatusPending,
		cap:      s.eventLogCap,
	}
	s.tasks[workID] = t
	return t, nil
}

// Start transitions t to running and returns a context bound to the
// supervisor's task timeout, cancellable both by timeout and by a
// later Cancel call.
func (s *Supervisor) Start(ctx context.Context, t *Task) context.Context {
	runCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	t.mu.Lock()
	t.Status = StatusRunning
	t.StartedAt = time.Now()
	t.cancel = cancel
	t.mu.Unlock()
	return runCtx
}

// Complete transitions t to completed.
func (s *Supervisor) Complete(t *Task) { s.finish(t, StatusCompleted, nil) }

// Fail transitions t to failed with err.
func (s *Supervisor) Fail(t *Task, err error) { s.finish(t, StatusFailed, err) }

// Cancel signals the task's bound context, then immediately marks it
// cancelled. Calling Cancel is what distinguishes a cooperative
// shutdown from a loop-detected timeout/error: Complete/Fail/Cancel
// are mutually exclusive and whichever reaches finish() first wins,
// since terminal transitions are one-way (spec §4.11).
func (s *Supervisor) Cancel(t *Task) {
	t.mu.Lock()
	cancel := t.cancel
	already := t.Status.IsTerminal()
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if !already {
		s.finish(t, StatusCancelled, nil)
	}
}

func (s *Supervisor) finish(t *Task, status Status, err error) {
	t.mu.Lock()
	if t.Status.IsTerminal() {
		t.mu.Unlock()
		return
	}
	t.Status = status
	t.EndedAt = time.Now()
	t.Err = err
	started := t.StartedAt
	if t.done == nil {
		t.done = make(chan struct{})
	}
	close(t.done)
	t.mu.Unlock()

	tasksTotal.WithLabelValues(string(status)).Inc()
	if !started.IsZero() {
		taskDuration.Observe(t.EndedAt.Sub(started).Seconds())
	}
	logging.Get().Info("task: transitioned to terminal state", "work_id", t.WorkID, "task_id", t.TaskID, "status", status, "error", err)
}
