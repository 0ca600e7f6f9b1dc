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

	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
	"github.com/songhahaha66/PaperAgent-sub000/internal/sandbox"
	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tools"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

const codeAgentSystemPrompt = `You are the Code Agent, a focused Python execution assistant working inside one paper's sandboxed workspace.

Given a task, generate Python code, execute it with save_and_execute or execute_code, inspect stdout/stderr, and revise the code until it runs successfully and produces the requested result. Prefer save_and_execute when the code is worth keeping around; use execute_code for quick one-off checks. When the task is complete, reply with a concise summary of what was produced, including any files written under outputs/, and stop calling tools.`

// CodeAgent is the ReAct loop bound to the Sandbox tool set (spec
// §4.7), grounded on the turn-call-inspect-revise shape of hector's
// pkg/reasoning.ChainOfThoughtStrategy, adapted onto this module's
// simpler Client.Stream/tool.Catalog pair instead of hector's
// iter.Seq2 event-stream abstraction.
type CodeAgent struct {
	client   *llm.Client
	catalog  *tool.Catalog
	ws       *workspace.Workspace
	maxTurns int
}

// NewCodeAgent builds a Code Agent bound to sb's workspace.
func NewCodeAgent(client *llm.Client, ws *workspace.Workspace, sb *sandbox.Sandbox, maxTurns int) (*CodeAgent, error) {
	catalog, err := tools.CodeAgentCatalog(sb)
	if err != nil {
		return nil, err
	}
	return &CodeAgent{client: client, catalog: catalog, ws: ws, maxTurns: maxTurns}, nil
}

// Run drives the loop to completion against taskPrompt, reporting
// progress on a forwarding sink tagged "code_agent" (spec §4.7's
// code_agent_tool_call/code_agent_tool_result card pairs), and returns
// the delivered output text.
func (a *CodeAgent) Run(ctx context.Context, parent streambus.Sink, taskPrompt string) string {
	sink := streambus.NewForwardingSink(parent, "code_agent", true)
	defer sink.Finalize()
	sink.Card("start", map[string]any{"task": taskPrompt})

	conversation := []llm.Message{{Role: llm.RoleUser, Content: taskPrompt}}
	defs := a.catalog.Definitions()
	toolDefs := toLLMToolDefinitions(defs)

	var lastToolResult string
	for turn := 0; turn < a.maxTurns; turn++ {
		if ctx.Err() != nil {
			return "任务已取消"
		}

		req := &llm.Request{
			SystemInstruction: codeAgentSystemPrompt,
			Messages:          conversation,
			Tools:             toolDefs,
		}
		content, calls, err := a.client.Stream(ctx, req, sink.Token)
		if err != nil {
			sink.Card("error", map[string]any{"message": err.Error()})
			return "Code Agent 调用模型失败: " + err.Error()
		}
		conversation = append(conversation, llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls})

		if len(calls) == 0 {
			return content
		}

		for _, call := range calls {
			if ctx.Err() != nil {
				return "任务已取消"
			}
			sink.Card("tool_call", map[string]any{"name": call.Name, "arguments": call.Arguments})
			result := dispatchCatalogTool(a.catalog, tool.Context{Context: ctx, Workspace: a.ws, Sink: sink}, call)
			sink.Card("tool_result", map[string]any{"name": call.Name, "result": result})
			lastToolResult = result
			conversation = append(conversation, llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: call.ID})
		}
	}
	return lastToolResult
}
