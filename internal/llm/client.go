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

package llm

import (
	"context"
	"sort"

	"github.com/songhahaha66/PaperAgent-sub000/internal/logging"
)

// RawDelta is one fragment emitted by a provider adapter mid-stream.
type RawDelta struct {
	ContentDelta  string
	ToolCallDelta *ToolCallDelta
}

// ToolCallDelta is an incremental fragment of one tool call. ID and
// Name are populated once, on the delta that first announces the
// call; ArgumentsFragment accumulates across every delta sharing the
// same Index.
type ToolCallDelta struct {
	Index             int
	ID                string
	Name              string
	ArgumentsFragment string
}

// RawProvider is the low-level adapter a Client wraps. Providers only
// emit text/argument fragments; all tool-call accumulation, JSON
// repair, and ordering guarantees live in Client, matching the "LLM
// Client: unified wrapper ... normalizes tool-call deltas" role in
// spec §4.5's component table.
type RawProvider interface {
	Name() string
	Provider() Provider
	// Stream yields RawDeltas in arrival order, followed by a nil
	// error and no more sends once the provider's turn is complete.
	Stream(ctx context.Context, req *Request) (<-chan RawDelta, <-chan error)
	// Complete is the non-streaming call used by Sync.
	Complete(ctx context.Context, req *Request) (content string, toolCalls []RawToolCall, err error)
}

// RawToolCall is a provider's non-streaming tool call report, with
// Arguments still a raw JSON string pending repair.
type RawToolCall struct {
	ID           string
	Name         string
	ArgumentsRaw string
}

// Client is the uniform entry point the Main/Code/Writer agent loops
// use. It wraps exactly one RawProvider, bound per (user, role) by
// the caller.
type Client struct {
	provider RawProvider
}

// New wraps a provider adapter.
func New(provider RawProvider) *Client {
	return &Client{provider: provider}
}

func (c *Client) Name() string       { return c.provider.Name() }
func (c *Client) Provider() Provider { return c.provider.Provider() }

// TokenSink receives streamed content fragments in arrival order.
// Stream forwards to it exactly as specified in spec §4.5's ordering
// guarantee.
type TokenSink func(text string)

// accumulator tracks one in-flight tool call's fragments, keyed by
// stream index.
type accumulator struct {
	id   string
	name string
	args string
}

// Stream drives the provider in streaming mode, forwarding content
// tokens to onToken as they arrive, and returns the final assistant
// content plus the accepted tool calls once the provider's turn ends.
func (c *Client) Stream(ctx context.Context, req *Request, onToken TokenSink) (string, []ToolCall, error) {
	deltas, errs := c.provider.Stream(ctx, req)

	var content []byte
	acc := map[int]*accumulator{}
	var order []int

	drain := func() {
		for d := range deltas {
			if d.ContentDelta != "" {
				content = append(content, d.ContentDelta...)
				if onToken != nil {
					onToken(d.ContentDelta)
				}
			}
			if d.ToolCallDelta != nil {
				td := d.ToolCallDelta
				a, ok := acc[td.Index]
				if !ok {
					a = &accumulator{}
					acc[td.Index] = a
					order = append(order, td.Index)
				}
				if td.ID != "" {
					a.id = td.ID
				}
				if td.Name != "" {
					a.name = td.Name
				}
				a.args += td.ArgumentsFragment
			}
		}
	}
	drain()

	select {
	case err := <-errs:
		if err != nil {
			return string(content), nil, err
		}
	default:
	}

	sort.Ints(order)
	calls := make([]ToolCall, 0, len(order))
	for _, idx := range order {
		a := acc[idx]
		args, ok := repairJSON(a.args)
		if !ok {
			logging.Get().Warn("llm: dropping tool call with unparseable arguments", "name", a.name, "id", a.id)
			continue
		}
		calls = append(calls, ToolCall{ID: a.id, Name: a.name, Arguments: args})
	}
	return string(content), calls, nil
}

// Sync drives the provider without streaming, for callers that don't
// want progress surfaced (e.g. title generation).
func (c *Client) Sync(ctx context.Context, req *Request) (string, []ToolCall, error) {
	content, raw, err := c.provider.Complete(ctx, req)
	if err != nil {
		return "", nil, err
	}
	calls := make([]ToolCall, 0, len(raw))
	for _, rc := range raw {
		args, ok := repairJSON(rc.ArgumentsRaw)
		if !ok {
			logging.Get().Warn("llm: dropping tool call with unparseable arguments", "name", rc.Name, "id", rc.ID)
			continue
		}
		calls = append(calls, ToolCall{ID: rc.ID, Name: rc.Name, Arguments: args})
	}
	return content, calls, nil
}
