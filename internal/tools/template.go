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

	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool/functiontool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

func readPaper(ws *workspace.Workspace) string {
	if res, err := ws.Read(workspace.FilePaperMD); err == nil {
		return res.Text
	}
	return ""
}

// NewAnalyzeTemplate builds the analyze_template tool: it reports the
// heading outline of paper.md, available only when the work uses a
// template (spec §4.6).
func NewAnalyzeTemplate(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "analyze_template",
			Description: "Report the heading structure of the current paper.md template.",
		},
		func(ctx tool.Context, args struct{}) string {
			doc := readPaper(ws)
			if doc == "" {
				return "paper.md 不存在或为空"
			}
			return formatOutline(buildOutline(doc))
		},
	)
}

// GetSectionContentArgs names the section to read.
type GetSectionContentArgs struct {
	SectionTitle string `json:"section_title" jsonschema:"required,description=Heading text identifying the section"`
}

// NewGetSectionContent builds the get_section_content tool.
func NewGetSectionContent(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "get_section_content",
			Description: "Return the body text of the first heading whose title contains section_title.",
		},
		func(ctx tool.Context, args GetSectionContentArgs) string {
			body, found := sectionBody(readPaper(ws), args.SectionTitle)
			if !found {
				return fmt.Sprintf("未找到章节「%s」", args.SectionTitle)
			}
			if body == "" {
				return fmt.Sprintf("章节「%s」当前为空", args.SectionTitle)
			}
			return body
		},
	)
}

// UpdateSectionContentArgs are the arguments for update_section_content.
type UpdateSectionContentArgs struct {
	SectionTitle string `json:"section_title" jsonschema:"required,description=Heading text identifying the section to update"`
	NewContent   string `json:"new_content" jsonschema:"required,description=Replacement body text for the section"`
	Mode         string `json:"mode,omitempty" jsonschema:"description=Reserved for future modes; currently always replaces the section body"`
}

// NewUpdateSectionContent builds the update_section_content tool,
// applying the same algorithm as update_template (spec §4.6).
func NewUpdateSectionContent(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "update_section_content",
			Description: "Replace a section's body by heading title, using the shared section-update algorithm.",
		},
		func(ctx tool.Context, args UpdateSectionContentArgs) string {
			next := updateSection(readPaper(ws), args.SectionTitle, args.NewContent)
			if err := ws.Write(workspace.FilePaperMD, next); err != nil {
				return fmt.Sprintf("更新章节失败: %v", err)
			}
			return fmt.Sprintf("已更新章节「%s」", args.SectionTitle)
		},
	)
}

// AddSectionArgs are the arguments for add_section.
type AddSectionArgs struct {
	SectionTitle string `json:"section_title" jsonschema:"required,description=Title of the new top-level heading"`
	Content      string `json:"content,omitempty" jsonschema:"description=Initial body text for the new section"`
}

// NewAddSection builds the add_section tool: appends a new heading
// and body at end-of-file, reusing updateSection's not-found branch.
func NewAddSection(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "add_section",
			Description: "Append a new top-level section to paper.md.",
		},
		func(ctx tool.Context, args AddSectionArgs) string {
			doc := readPaper(ws)
			if _, found := sectionBody(doc, args.SectionTitle); found {
				return fmt.Sprintf("章节「%s」已存在，请使用 update_section_content", args.SectionTitle)
			}
			next := updateSection(doc, args.SectionTitle, args.Content)
			if err := ws.Write(workspace.FilePaperMD, next); err != nil {
				return fmt.Sprintf("添加章节失败: %v", err)
			}
			return fmt.Sprintf("已添加章节「%s」", args.SectionTitle)
		},
	)
}

// RenameSectionTitleArgs are the arguments for rename_section_title.
type RenameSectionTitleArgs struct {
	OldTitle string `json:"old_title" jsonschema:"required,description=Current heading text"`
	NewTitle string `json:"new_title" jsonschema:"required,description=Replacement heading text"`
}

// NewRenameSectionTitle builds the rename_section_title tool.
func NewRenameSectionTitle(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "rename_section_title",
			Description: "Rename a section's heading text in place, keeping its body and level.",
		},
		func(ctx tool.Context, args RenameSectionTitleArgs) string {
			doc := readPaper(ws)
			next, ok := renameHeading(doc, args.OldTitle, args.NewTitle)
			if !ok {
				return fmt.Sprintf("未找到章节「%s」", args.OldTitle)
			}
			if err := ws.Write(workspace.FilePaperMD, next); err != nil {
				return fmt.Sprintf("重命名章节失败: %v", err)
			}
			return fmt.Sprintf("已将「%s」重命名为「%s」", args.OldTitle, args.NewTitle)
		},
	)
}
