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

// Package tool defines the planner-facing tool contract (spec §4.6):
// an async function tool(args) -> string, where the returned string
// is fed back to the LLM as a tool message. Tools never raise to the
// planner — errors are stringified by the implementation itself.
package tool

import (
	"context"

	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

// Context carries the capabilities a tool needs: the work's
// workspace, its Sink for progress cards, and the inbound
// cancellation signal. This is the capability model named in spec §9
// that breaks the tool/agent cyclic dependency — tools reference
// these capabilities only, never an agent type.
type Context struct {
	context.Context
	Workspace *workspace.Workspace
	Sink      streambus.Sink
}

// Tool is the base interface every catalog entry satisfies.
type Tool interface {
	Name() string
	Description() string
}

// CallableTool executes synchronously and returns a human-readable
// report string; that string is what is fed back to the LLM. No
// separate typed result payload is returned.
type CallableTool interface {
	Tool
	Call(ctx Context, args map[string]any) (report string)
	Schema() map[string]any
}

// Catalog is a fixed, tagged-variant set of tools resolved by name
// (spec §9: "use a tagged-variant enumeration ... Do not use
// reflection").
type Catalog struct {
	byName map[string]CallableTool
	order  []string
}

// NewCatalog builds a Catalog from an explicit tool list.
func NewCatalog(tools ...CallableTool) *Catalog {
	c := &Catalog{byName: make(map[string]CallableTool, len(tools))}
	for _, t := range tools {
		c.byName[t.Name()] = t
		c.order = append(c.order, t.Name())
	}
	return c
}

// Lookup returns the tool registered under name, and whether it was
// found. An unknown name is the caller's cue to synthesize a
// structured failure result (spec §4.6).
func (c *Catalog) Lookup(name string) (CallableTool, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Names returns tool names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// All returns every tool in registration order, for callers that need
// to merge one Catalog's contents into a larger one (e.g. the Main
// Agent layering CodeAgent/WriterAgent on top of tools.PlannerCatalog).
func (c *Catalog) All() []CallableTool {
	out := make([]CallableTool, len(c.order))
	for i, name := range c.order {
		out[i] = c.byName[name]
	}
	return out
}

// Definitions returns the {name, description, schema} triples the
// LLM Client needs to advertise tools to the provider.
type Definition struct {
	Name        string
	Description string
	Schema      map[string]any
}

func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		t := c.byName[name]
		out = append(out, Definition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}
