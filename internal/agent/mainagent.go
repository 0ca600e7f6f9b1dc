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

// Package agent implements the three-tier agent hierarchy named in
// spec §1: the Main Agent planner loop (§4.9), and its two sub-agents,
// the Code Agent (§4.7) and the Writer Agent (§4.8). The hierarchy
// mirrors the role hector's Agent/SubAgents tree plays, collapsed to a
// fixed three-tier shape instead of hector's general N-ary delegation
// graph, and driven by this module's simpler llm.Client.Stream loop
// instead of hector's iter.Seq2 event-stream runner.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/songhahaha66/PaperAgent-sub000/internal/chatlog"
	"github.com/songhahaha66/PaperAgent-sub000/internal/config"
	"github.com/songhahaha66/PaperAgent-sub000/internal/contextwindow"
	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
	"github.com/songhahaha66/PaperAgent-sub000/internal/logging"
	"github.com/songhahaha66/PaperAgent-sub000/internal/sandbox"
	"github.com/songhahaha66/PaperAgent-sub000/internal/streambus"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool/functiontool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tools"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

const mainAgentBasePrompt = `You are PaperForge's Main assistant, the top-level planner for a research-paper generation workspace.

You can explore the workspace, read uploaded attachments, insert figures, and edit the paper directly with small, targeted tool calls. For anything that requires running code or substantial drafting, delegate instead of doing it yourself:
- CodeAgent(task_prompt): delegate a data-analysis or computation task to a sandboxed Python sub-agent.
- WriterAgent(instruction): delegate a drafting task for a specific section or writing instruction.

Work iteratively. When you have nothing further to do, stop calling tools and reply with your final answer.`

const templatePromptSuffix = "\n\nThis work is based on an uploaded template. analyze_template, get_section_content, update_section_content, add_section, and rename_section_title are available for structured, heading-aware edits against paper.md; prefer them over a raw writemd section_update when the template's existing structure applies."

const markdownPromptSuffix = "\n\nThe paper is authored as paper.md."
const wordPromptSuffix = "\n\nThe paper is authored as paper.docx; delegate Word edits to WriterAgent, which carries the document-editing tool set."
const latexPromptSuffix = "\n\nThe paper is authored as LaTeX; delegate writing to WriterAgent, which is not yet able to act in latex mode and will say so if invoked."

// Config are the dependencies and per-work settings a MainAgent is
// built from. PlannerClient, CodeClient are required; WriterClient is
// nil when "a separate writer role is configured" (spec §4.6) is
// false for this user, in which case the WriterAgent tool is omitted
// from the catalog entirely.
type Config struct {
	PlannerClient *llm.Client
	CodeClient    *llm.Client
	WriterClient  *llm.Client

	Workspace *workspace.Workspace
	Sandbox   *sandbox.Sandbox
	ChatLog   *chatlog.ChatLog
	Limits    config.LimitsConfig

	OutputMode OutputMode
	// TemplatePath, if non-empty, is the source template file copied
	// to paper.md on first use (spec §4.9's Initialization step).
	TemplatePath string
}

// MainAgent is the top-level planner loop (spec §4.9).
type MainAgent struct {
	client  *llm.Client
	ws      *workspace.Workspace
	log     *chatlog.ChatLog
	limits  config.LimitsConfig
	catalog *tool.Catalog

	codeClient   *llm.Client
	writerClient *llm.Client
	sandbox      *sandbox.Sandbox
	outputMode   OutputMode

	systemPrompt string
}

// New builds a MainAgent, copying the template into paper.md on first
// use and binding the full tool catalog (spec §4.9's Initialization).
func New(cfg Config) (*MainAgent, error) {
	if cfg.PlannerClient == nil || cfg.CodeClient == nil {
		return nil, errors.New("agent: PlannerClient and CodeClient are required")
	}
	hasTemplate := cfg.TemplatePath != ""
	if hasTemplate {
		if err := copyTemplateIfAbsent(cfg.Workspace, cfg.TemplatePath); err != nil {
			return nil, err
		}
	}

	planner, err := tools.PlannerCatalog(cfg.Workspace, hasTemplate)
	if err != nil {
		return nil, err
	}

	a := &MainAgent{
		client:       cfg.PlannerClient,
		ws:           cfg.Workspace,
		log:          cfg.ChatLog,
		limits:       cfg.Limits,
		codeClient:   cfg.CodeClient,
		writerClient: cfg.WriterClient,
		sandbox:      cfg.Sandbox,
		outputMode:   cfg.OutputMode,
	}

	full := planner.All()
	codeAgentTool, err := a.buildCodeAgentTool()
	if err != nil {
		return nil, err
	}
	full = append(full, codeAgentTool)
	if cfg.WriterClient != nil {
		writerAgentTool, err := a.buildWriterAgentTool()
		if err != nil {
			return nil, err
		}
		full = append(full, writerAgentTool)
	}
	a.catalog = tool.NewCatalog(full...)
	a.systemPrompt = composeSystemPrompt(hasTemplate, cfg.OutputMode)
	return a, nil
}

func composeSystemPrompt(hasTemplate bool, mode OutputMode) string {
	prompt := mainAgentBasePrompt
	if hasTemplate {
		prompt += templatePromptSuffix
	}
	switch mode {
	case OutputWord:
		prompt += wordPromptSuffix
	case OutputLatex:
		prompt += latexPromptSuffix
	default:
		prompt += markdownPromptSuffix
	}
	return prompt
}

func copyTemplateIfAbsent(ws *workspace.Workspace, templatePath string) error {
	if _, err := ws.Info(workspace.FilePaperMD); err == nil {
		return nil
	}
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("agent: read template %s: %w", templatePath, err)
	}
	return ws.Write(workspace.FilePaperMD, string(data))
}

// codeAgentArgs are the arguments for the CodeAgent catalog entry.
type codeAgentArgs struct {
	TaskPrompt string `json:"task_prompt" jsonschema:"required,description=Natural-language description of the computation or analysis to perform"`
}

func (a *MainAgent) buildCodeAgentTool() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "CodeAgent", Description: "Delegate a data-analysis or computation task to a sandboxed Python sub-agent."},
		func(ctx tool.Context, args codeAgentArgs) string {
			sub, err := NewCodeAgent(a.codeClient, a.ws, a.sandbox, a.limits.CodeAgentMaxTurns)
			if err != nil {
				return fmt.Sprintf("CodeAgent 初始化失败: %v", err)
			}
			return sub.Run(ctx.Context, ctx.Sink, args.TaskPrompt)
		},
	)
}

// writerAgentArgs are the arguments for the WriterAgent catalog entry.
type writerAgentArgs struct {
	Instruction string `json:"instruction" jsonschema:"required,description=High-level writing instruction, e.g. 'write the Introduction section'"`
}

func (a *MainAgent) buildWriterAgentTool() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "WriterAgent", Description: "Delegate a drafting task for a specific section or document-level writing instruction."},
		func(ctx tool.Context, args writerAgentArgs) string {
			sub, err := NewWriterAgent(a.writerClient, a.ws, a.outputMode, a.limits.WriterAgentMaxTurns)
			if err != nil {
				return fmt.Sprintf("WriterAgent 初始化失败: %v", err)
			}
			return sub.Run(ctx.Context, ctx.Sink, args.Instruction)
		},
	)
}

// loadConversation reconstructs the canonical conversation (spec §3):
// Chat Log messages filtered to user/assistant, oldest first.
func loadConversation(log *chatlog.ChatLog) []llm.Message {
	msgs := log.GetMessages(0)
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case chatlog.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case chatlog.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		}
	}
	return out
}

// Run drives one user turn through the planner loop (spec §4.9).
// Cancellation is observed at every LLM call boundary and between
// tool calls; a cancelled run does not call sink.Finalize, so no
// assistant message is written to the Chat Log for it.
func (a *MainAgent) Run(ctx context.Context, sink streambus.Sink, userMessage string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Step 2: replay detection against the most recent user message.
	if last, ok := a.log.LastUserMessage(); ok && last.Content == userMessage {
		return nil
	}

	conversation := loadConversation(a.log)

	// Step 1: context-size check, compressed in place if needed.
	limits := contextwindow.Limits{TokenCap: a.limits.ContextTokenCap, MessageCap: a.limits.ContextMessageCap}
	if contextwindow.ShouldCompress(conversation, limits) {
		compressed, records := contextwindow.Compress(conversation, limits)
		conversation = compressed
		logging.Get().Info("agent: compressed conversation", "dropped_records", len(records))
	}

	// Step 3: persist before the LLM call so a mid-turn crash still
	// preserves the question.
	if _, err := a.log.Append(chatlog.RoleUser, userMessage, nil); err != nil {
		return fmt.Errorf("agent: persist user message: %w", err)
	}
	conversation = append(conversation, llm.Message{Role: llm.RoleUser, Content: userMessage})

	toolDefs := toLLMToolDefinitions(a.catalog.Definitions())

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req := &llm.Request{
			SystemInstruction: a.systemPrompt,
			Messages:          conversation,
			Tools:             toolDefs,
		}
		content, calls, err := a.client.Stream(ctx, req, sink.Token)
		if err != nil {
			return fmt.Errorf("agent: llm stream: %w", err)
		}
		conversation = append(conversation, llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls})

		if len(calls) == 0 {
			sink.Finalize()
			return nil
		}

		// CodeAgent/WriterAgent and other mutating calls are
		// serialized against each other in call order; consecutive
		// read-only calls in the same turn fan out concurrently
		// (dispatchTurn, spec §4.9 step 6).
		results := dispatchTurn(a.catalog, tool.Context{Context: ctx, Workspace: a.ws, Sink: sink}, calls)
		for i, call := range calls {
			conversation = append(conversation, llm.Message{Role: llm.RoleTool, Content: results[i], ToolCallID: call.ID})
		}
	}
}
