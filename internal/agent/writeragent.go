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
	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tools"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

// OutputMode is the work's document format, set by the external CRUD
// layer and read-only to the core (spec §3).
type OutputMode string

const (
	OutputMarkdown OutputMode = "markdown"
	OutputWord     OutputMode = "word"
	OutputLatex    OutputMode = "latex"
)

const writerAgentMarkdownPrompt = `You are the Writer Agent, responsible for drafting and revising paper content in Markdown.

Use writemd to write or modify paper.md, and update_template for section-level updates against an uploaded template. Produce complete, well-formatted prose for the requested section or instruction. When finished, reply with a brief summary of what was written and stop calling tools.`

const writerAgentWordPrompt = `You are the Writer Agent, responsible for drafting and revising the paper as a Word document (paper.docx).

Before making any changes, call get_document_text to ground your edits in the document's current contents. Then use add_heading, add_paragraph, add_table, add_picture, format_text, search_and_replace, and the other document tools to carry out the instruction. When finished, reply with a brief summary of what was written and stop calling tools.`

// writerAgentLatexUnsupportedMessage is returned without ever calling
// the LLM, matching spec §4.8: "the agent returns a message
// indicating latex mode is not supported and should not have been
// dispatched."
const writerAgentLatexUnsupportedMessage = "latex 输出模式暂不支持 Writer Agent，不应调度到此处。"

// WriterAgent executes one high-level writing instruction with a
// format-specific tool set (spec §4.8).
type WriterAgent struct {
	client     *llm.Client
	catalog    *tool.Catalog
	ws         *workspace.Workspace
	maxTurns   int
	outputMode OutputMode
	systemMsg  string
}

// NewWriterAgent builds a Writer Agent for outputMode. For
// OutputLatex, the returned agent's Run short-circuits without
// constructing a tool catalog or calling the LLM.
func NewWriterAgent(client *llm.Client, ws *workspace.Workspace, outputMode OutputMode, maxTurns int) (*WriterAgent, error) {
	a := &WriterAgent{client: client, ws: ws, maxTurns: maxTurns, outputMode: outputMode}

	switch outputMode {
	case OutputWord:
		catalog, err := tools.WriterWordCatalog(ws)
		if err != nil {
			return nil, err
		}
		a.catalog = catalog
		a.systemMsg = writerAgentWordPrompt
	case OutputLatex:
		// No catalog, no system prompt: Run never calls the LLM.
	default:
		catalog, err := tools.WriterMarkdownCatalog(ws)
		if err != nil {
			return nil, err
		}
		a.catalog = catalog
		a.systemMsg = writerAgentMarkdownPrompt
	}
	return a, nil
}

// Run drives the loop to completion against instruction, reporting
// progress on a forwarding sink tagged "writer_agent", and returns the
// delivered output text.
func (a *WriterAgent) Run(ctx context.Context, parent streambus.Sink, instruction string) string {
	if a.outputMode == OutputLatex {
		return writerAgentLatexUnsupportedMessage
	}

	sink := streambus.NewForwardingSink(parent, "writer_agent", true)
	defer sink.Finalize()
	sink.Card("start", map[string]any{"instruction": instruction})

	conversation := []llm.Message{{Role: llm.RoleUser, Content: instruction}}
	toolDefs := toLLMToolDefinitions(a.catalog.Definitions())

	var lastToolResult string
	for turn := 0; turn < a.maxTurns; turn++ {
		if ctx.Err() != nil {
			return "任务已取消"
		}

		req := &llm.Request{
			SystemInstruction: a.systemMsg,
			Messages:          conversation,
			Tools:             toolDefs,
		}
		content, calls, err := a.client.Stream(ctx, req, sink.Token)
		if err != nil {
			sink.Card("error", map[string]any{"message": err.Error()})
			return "Writer Agent 调用模型失败: " + err.Error()
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
