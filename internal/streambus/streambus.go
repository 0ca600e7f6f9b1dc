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

// Package streambus is the emission-side API agents call: Token,
// Card, SetRole, Finalize. It fuses two concerns by design —
// transport delivery and in-memory accumulation for persistence
// (spec §4.4).
//
// Sub-agent isolation is achieved by wrapping, not inheriting: a
// ForwardingSink wraps a parent Sink and a tag, rather than a
// CodeAgentSink extending a base sink (spec §9's design note). Both
// Sink implementations satisfy the same Sink interface, so the Main
// Agent and each sub-agent are parametrized over Sink uniformly.
package streambus

import (
	"fmt"

	"github.com/songhahaha66/PaperAgent-sub000/internal/chatlog"
	"github.com/songhahaha66/PaperAgent-sub000/internal/logging"
)

// Sink is the capability agents consume to emit streamed output.
type Sink interface {
	// Token forwards one streaming content fragment.
	Token(text string)
	// Card emits one structured event.
	Card(cardType string, data any)
	// SetRole sets the role of the message currently being
	// accumulated (default "assistant").
	SetRole(role chatlog.Role)
	// Finalize ends the current message, triggering persistence.
	Finalize()
}

// Transport is the live-delivery side a Sink forwards to. Delivery
// must be non-blocking relative to the caller; if the client has
// disconnected, calls degrade silently (spec §4.4).
type Transport interface {
	SendContent(text string)
	SendJSONBlock(card chatlog.Card)
}

// NullTransport discards everything; useful when no client is
// attached yet (sub-agents always forward to a parent Sink, never
// this).
type NullTransport struct{}

func (NullTransport) SendContent(string)         {}
func (NullTransport) SendJSONBlock(chatlog.Card) {}

// PersistentBus wraps a Transport and a ChatLog reference: it
// buffers content/cards for final persistence while forwarding every
// event live.
type PersistentBus struct {
	transport Transport
	log       *chatlog.ChatLog

	role    chatlog.Role
	content []string
	cards   []chatlog.Card

	// OnEvent is an optional observer invoked for every Token/Card,
	// used by the Task Supervisor to append to its replay log
	// synchronously with the live delivery path (spec §4.11).
	OnEvent func(kind string, content string, card chatlog.Card)
}

// NewPersistentBus constructs a top-level Sink for the Main Agent.
func NewPersistentBus(transport Transport, log *chatlog.ChatLog) *PersistentBus {
	if transport == nil {
		transport = NullTransport{}
	}
	return &PersistentBus{transport: transport, log: log, role: chatlog.RoleAssistant}
}

func (b *PersistentBus) Token(text string) {
	b.content = append(b.content, text)
	safeSend(func() { b.transport.SendContent(text) })
	if b.OnEvent != nil {
		b.OnEvent("content", text, chatlog.Card{})
	}
}

func (b *PersistentBus) Card(cardType string, data any) {
	card := chatlog.Card{Type: cardType, Data: data}
	b.cards = append(b.cards, card)
	safeSend(func() { b.transport.SendJSONBlock(card) })
	if b.OnEvent != nil {
		b.OnEvent("json_block", "", card)
	}
}

func (b *PersistentBus) SetRole(role chatlog.Role) { b.role = role }

// Finalize persists the accumulated turn as one Chat Log message: a
// json_card message if any cards were seen, otherwise plain text
// (spec §4.4/§4.9). Buffers are reset regardless of outcome.
func (b *PersistentBus) Finalize() {
	defer func() {
		b.content = nil
		b.cards = nil
	}()
	text := joinContent(b.content)
	if b.log == nil {
		return
	}
	var err error
	if len(b.cards) > 0 {
		_, err = b.log.AppendCard(b.role, text, b.cards, nil)
	} else if text != "" {
		_, err = b.log.Append(b.role, text, nil)
	}
	if err != nil {
		logging.Get().Error("streambus: finalize failed", "error", err)
	}
}

func joinContent(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return string(buf)
}

func safeSend(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get().Warn("streambus: transport send recovered from panic", "recover", fmt.Sprint(r))
		}
	}()
	fn()
}

// ForwardingSink wraps a parent Sink and a tag. Every event is
// prefixed with "<tag>_" on its Card type; Token frames are either
// coalesced into the sub-agent's completion card or forwarded as
// parent Tokens prefixed with "[<tag>] " (spec §4.4).
//
// Finalize never writes to the Chat Log directly — only the
// top-level planner's PersistentBus does that.
type ForwardingSink struct {
	parent Sink
	tag    string

	coalesceTokens bool
	buffered       []string
	role           chatlog.Role
}

// NewForwardingSink wraps parent for a sub-agent named tag (e.g.
// "code_agent", "writer_agent"). When coalesceTokens is true, Token
// frames accumulate into the sub-agent's completion card rather than
// surfacing as individual parent Tokens.
func NewForwardingSink(parent Sink, tag string, coalesceTokens bool) *ForwardingSink {
	return &ForwardingSink{parent: parent, tag: tag, coalesceTokens: coalesceTokens, role: chatlog.RoleAssistant}
}

func (f *ForwardingSink) Token(text string) {
	if f.coalesceTokens {
		f.buffered = append(f.buffered, text)
		return
	}
	f.parent.Token(fmt.Sprintf("[%s] %s", f.tag, text))
}

func (f *ForwardingSink) Card(cardType string, data any) {
	f.parent.Card(f.tag+"_"+cardType, data)
}

func (f *ForwardingSink) SetRole(role chatlog.Role) { f.role = role }

// Finalize emits one completion card to the parent summarizing
// buffered tokens, and resets internal state. It intentionally does
// not persist to any Chat Log.
func (f *ForwardingSink) Finalize() {
	text := joinContent(f.buffered)
	f.buffered = nil
	f.parent.Card(f.tag+"_result", map[string]any{"output": text})
}
