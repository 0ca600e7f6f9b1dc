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

package tools

import (
	"fmt"
	"strings"

	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool/functiontool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

// WritemdArgs are the arguments for the writemd planner tool.
type WritemdArgs struct {
	Filename string `json:"filename" jsonschema:"required,description=Markdown file path relative to the workspace root"`
	Content  string `json:"content" jsonschema:"required,description=Content to write or merge"`
	Mode     string `json:"mode,omitempty" jsonschema:"description=One of overwrite,append,modify,insert,smart_replace,section_update; default=overwrite"`
	Section  string `json:"section,omitempty" jsonschema:"description=Required when mode=section_update: the heading text to update"`
}

// NewWritemd builds the writemd tool (spec §4.6).
func NewWritemd(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name: "writemd",
			Description: "Write or modify a markdown file in the workspace root. mode is one of " +
				"overwrite, append, modify, insert, smart_replace, section_update.",
		},
		func(ctx tool.Context, args WritemdArgs) string {
			result := writemdImpl(ws, args)
			ctx.Sink.Card("writemd_result", map[string]any{"filename": args.Filename, "mode": args.Mode, "result": result})
			return result
		},
	)
}

func writemdImpl(ws *workspace.Workspace, args WritemdArgs) string {
	mode := args.Mode
	if mode == "" {
		mode = "overwrite"
	}

	existing := ""
	if res, err := ws.Read(args.Filename); err == nil {
		existing = res.Text
	}

	var next string
	switch mode {
	case "overwrite", "modify", "smart_replace":
		next = args.Content
	case "append":
		if existing == "" {
			next = args.Content
		} else {
			next = strings.TrimRight(existing, "\n") + "\n\n" + args.Content
		}
	case "insert":
		if existing == "" {
			next = args.Content
		} else {
			next = args.Content + "\n\n" + strings.TrimLeft(existing, "\n")
		}
	case "section_update":
		if strings.TrimSpace(args.Section) == "" {
			return "section_update 模式需要提供 section 参数"
		}
		next = updateSection(existing, args.Section, args.Content)
	default:
		return fmt.Sprintf("未知的写入模式: %s", mode)
	}

	if err := ws.Write(args.Filename, next); err != nil {
		return fmt.Sprintf("写入 %s 失败: %v", args.Filename, err)
	}
	return fmt.Sprintf("已写入 %s（模式: %s，%d 字节）", args.Filename, mode, len(next))
}

// UpdateTemplateArgs are the arguments for update_template. spec §4.6
// resolves the source's ambiguity over whether section is required by
// requiring it.
type UpdateTemplateArgs struct {
	TemplateName string `json:"template_name" jsonschema:"required,description=Paper file to update, typically paper.md"`
	Content      string `json:"content" jsonschema:"required,description=New content for the section"`
	Section      string `json:"section" jsonschema:"required,description=Heading text identifying the section to update"`
}

// NewUpdateTemplate builds the update_template tool.
func NewUpdateTemplate(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "update_template",
			Description: "Section-level update of a paper file. Requires a non-empty section.",
		},
		func(ctx tool.Context, args UpdateTemplateArgs) string {
			target := args.TemplateName
			if target == "" {
				target = workspace.FilePaperMD
			}
			existing := ""
			if res, err := ws.Read(target); err == nil {
				existing = res.Text
			}
			next := updateSection(existing, args.Section, args.Content)
			if err := ws.Write(target, next); err != nil {
				return fmt.Sprintf("更新 %s 失败: %v", target, err)
			}
			return fmt.Sprintf("已更新 %s 中的章节「%s」", target, args.Section)
		},
		func(args UpdateTemplateArgs) error {
			if strings.TrimSpace(args.Section) == "" {
				return fmt.Errorf("section 参数不能为空")
			}
			return nil
		},
	)
}

// TreeArgs are the arguments for the tree tool.
type TreeArgs struct {
	Directory string `json:"directory,omitempty" jsonschema:"description=Subdirectory to render, relative to the workspace root; defaults to the root"`
}

// NewTree builds the tree tool: a recursive ascii listing of the
// workspace (spec §4.6).
func NewTree(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "tree",
			Description: "Render a recursive ascii tree of the workspace (or a subdirectory of it).",
		},
		func(ctx tool.Context, args TreeArgs) string {
			abs, err := ws.Resolve(args.Directory)
			if err != nil {
				return fmt.Sprintf("无效目录: %v", err)
			}
			var b strings.Builder
			b.WriteString(".\n")
			if err := renderTree(&b, abs, ""); err != nil {
				return fmt.Sprintf("生成目录树失败: %v", err)
			}
			result := b.String()
			ctx.Sink.Card("tree_result", map[string]any{"directory": args.Directory, "result": result})
			return result
		},
	)
}
