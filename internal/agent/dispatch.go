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
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/songhahaha66/PaperAgent-sub000/internal/llm"
	"github.com/songhahaha66/PaperAgent-sub000/internal/logging"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
)

// readOnlyTools are the catalog entries spec §4.9 step 6 permits to
// run concurrently within one planner turn: queries that never touch
// paper.md/paper.docx. CodeAgent, WriterAgent, and every writing tool
// are absent from this set and always dispatch serially, in call
// order, against each other.
var readOnlyTools = map[string]bool{
	"tree":                  true,
	"list_attachments":      true,
	"read_attachment":       true,
	"get_attachment_info":   true,
	"search_attachments":    true,
	"list_output_images":    true,
	"get_latest_image_info": true,
	"get_section_content":   true,
	"analyze_template":      true,
	"get_document_text":     true,
	"find_text_in_document": true,
}

// toLLMToolDefinitions adapts a tool.Catalog's definitions to the
// shape llm.Request expects.
func toLLMToolDefinitions(defs []tool.Definition) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{Name: d.Name, Description: d.Description, Schema: d.Schema}
	}
	return out
}

// argParseFailurePrefixes are the functiontool-level failure strings
// (internal/tool/functiontool.functionTool.Call) that indicate the
// call never reached the underlying tool function.
var argParseFailurePrefixes = []string{"参数编码失败", "参数解析失败", "参数校验失败"}

func looksLikeArgParseFailure(report string) bool {
	for _, prefix := range argParseFailurePrefixes {
		if strings.HasPrefix(report, prefix) {
			return true
		}
	}
	return false
}

// dispatchCatalogTool looks up and invokes one LLM-emitted tool call
// against catalog, applying the one-retry rule from spec §4.9 step 6:
// an argument-parse failure is retried once before its result is
// accepted and fed back to the LLM. An unrecognized tool name produces
// a structured failure result instead of a panic (spec §3).
func dispatchCatalogTool(catalog *tool.Catalog, ctx tool.Context, call llm.ToolCall) string {
	t, ok := catalog.Lookup(call.Name)
	if !ok {
		return fmt.Sprintf("未知工具: %s", call.Name)
	}
	report := t.Call(ctx, call.Arguments)
	if looksLikeArgParseFailure(report) {
		logging.Get().Warn("agent: tool call argument parse failure, retrying once", "tool", call.Name)
		report = t.Call(ctx, call.Arguments)
	}
	return report
}

// dispatchTurn runs one LLM turn's tool calls against catalog,
// preserving call order in the returned results but running maximal
// runs of consecutive read-only calls concurrently via errgroup (spec
// §4.9 step 6: "simpler read-only tools may run in parallel"). Any
// call outside readOnlyTools — including CodeAgent/WriterAgent and
// every writing tool — breaks the run and dispatches alone, so two
// mutating calls are never in flight at once. Once base.Context is
// cancelled, no further call is started and every remaining result is
// "任务已取消".
func dispatchTurn(catalog *tool.Catalog, base tool.Context, calls []llm.ToolCall) []string {
	results := make([]string, len(calls))
	for i := 0; i < len(calls); {
		if base.Context.Err() != nil {
			for ; i < len(calls); i++ {
				results[i] = "任务已取消"
			}
			break
		}
		if !readOnlyTools[calls[i].Name] {
			results[i] = dispatchCatalogTool(catalog, base, calls[i])
			i++
			continue
		}
		j := i
		for j < len(calls) && readOnlyTools[calls[j].Name] {
			j++
		}
		g, gctx := errgroup.WithContext(base.Context)
		for k := i; k < j; k++ {
			k := k
			g.Go(func() error {
				tctx := base
				tctx.Context = gctx
				results[k] = dispatchCatalogTool(catalog, tctx, calls[k])
				return nil
			})
		}
		_ = g.Wait()
		i = j
	}
	return results
}
