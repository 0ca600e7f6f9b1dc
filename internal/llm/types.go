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

// Package llm presents one uniform interface over several provider
// SDKs (spec §4.5): streaming chat-with-tools and a non-streaming
// variant, with tool-call delta accumulation and JSON-repair.
//
// Client.Stream/Client.Sync play the role hector's pkg/model.LLM
// interface plays for its agents: one type every caller programs
// against, with RawProvider (openai.go/anthropic.go) as the
// swappable implementation underneath — mirroring hector's
// per-vendor pkg/model/<provider> adapters behind one model.LLM.
package llm

// Provider identifies which vendor API a Client talks to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
)

// Role mirrors chatlog.Role but stays independent so this package has
// no dependency on persistence concerns.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one LLM-facing conversation record (spec §3's
// "Conversation").
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // only set on assistant messages
	ToolCallID string     // only set on role=tool messages
}

// ToolCall is an accepted, fully-parsed tool invocation request.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes one callable tool to the provider.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// GenerateConfig holds generation knobs. Nil fields take the
// provider's defaults.
type GenerateConfig struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// Request is the input to Client.Stream/Client.Sync.
type Request struct {
	SystemInstruction string
	Messages          []Message
	Tools             []ToolDefinition
	Config            *GenerateConfig
}

