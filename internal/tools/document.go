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

// Word document editing tools for the Writer Agent's "word" output
// mode (spec §4.8). All operations target <workspace>/paper.docx and
// go through docxEditor, the thin raw-XML layer built on
// nguyenthenguyen/docx (the same library internal/workspace's
// mdexport.go uses for auto-export).
package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool/functiontool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

// cardWordToolCall and cardWordDocumentSaved mirror the original source's word_tool_call
// (_examples/original_source/backend/ai_system/core_tools/word_tools.py:126-219)
// and its matching word_document_saved emitted once an edit is
// persisted to paper.docx (spec §3's card catalog).
const (
	cardWordToolCall      = "word_tool_call"
	cardWordDocumentSaved = "word_document_saved"
)

func docxPath(ws *workspace.Workspace) string {
	return filepath.Join(ws.Root(), workspace.FilePaperDocx)
}

// remediation maps an error substring to a hint appended to the
// report returned to the planner (spec §4.8: "an operation-specific
// remediation hint selected from a small table keyed on error
// substrings").
var remediation = []struct {
	substr string
	hint   string
}{
	{"no such file", "请先调用 create_document 创建文档"},
	{"未找到", "请先调用 get_document_text 核对当前内容"},
	{"创建文档失败", "检查文档模板路径（PA_DOCX_TEMPLATE）是否正确配置"},
}

func withHint(err error) string {
	msg := err.Error()
	for _, r := range remediation {
		if strings.Contains(msg, r.substr) {
			return fmt.Sprintf("%s（建议：%s）", msg, r.hint)
		}
	}
	return msg
}

// NewCreateDocument builds create_document: ensures paper.docx exists,
// starting from the blank template if it does not.
func NewCreateDocument(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "create_document",
			Description: "Create paper.docx in the workspace if it does not already exist.",
		},
		func(ctx tool.Context, args struct{}) string {
			ctx.Sink.Card(cardWordToolCall, map[string]any{"tool": "create_document"})
			path := docxPath(ws)
			ed, err := openDocxEditor(path, true)
			if err != nil {
				return withHint(err)
			}
			if err := ed.save(); err != nil {
				return withHint(fmt.Errorf("保存文档失败: %w", err))
			}
			ctx.Sink.Card(cardWordDocumentSaved, map[string]any{"tool": "create_document"})
			return "已创建/确认 paper.docx"
		},
	)
}

// AddHeadingArgs are the arguments for add_heading.
type AddHeadingArgs struct {
	Text  string `json:"text" jsonschema:"required,description=Heading text"`
	Level int    `json:"level,omitempty" jsonschema:"description=Heading level 1-9; default 1"`
}

// NewAddHeading builds add_heading.
func NewAddHeading(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "add_heading", Description: "Append a heading paragraph to paper.docx."},
		func(ctx tool.Context, args AddHeadingArgs) string {
			level := args.Level
			if level == 0 {
				level = 1
			}
			return mutateDocument(ctx, ws, "add_heading", func(ed *docxEditor) string {
				ed.appendBody(paragraphXML(headingStyle(level), args.Text))
				return fmt.Sprintf("已添加标题（H%d）：%s", level, args.Text)
			})
		},
	)
}

// AddParagraphArgs are the arguments for add_paragraph.
type AddParagraphArgs struct {
	Text string `json:"text" jsonschema:"required,description=Paragraph text"`
}

// NewAddParagraph builds add_paragraph.
func NewAddParagraph(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "add_paragraph", Description: "Append a plain paragraph to paper.docx."},
		func(ctx tool.Context, args AddParagraphArgs) string {
			return mutateDocument(ctx, ws, "add_paragraph", func(ed *docxEditor) string {
				ed.appendBody(paragraphXML("", args.Text))
				return "已添加段落"
			})
		},
	)
}

// AddTableArgs are the arguments for add_table.
type AddTableArgs struct {
	Rows [][]string `json:"rows" jsonschema:"required,description=Table rows, each a list of cell strings"`
}

// NewAddTable builds add_table.
func NewAddTable(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "add_table", Description: "Append a simple grid table to paper.docx."},
		func(ctx tool.Context, args AddTableArgs) string {
			if len(args.Rows) == 0 {
				return "rows 不能为空"
			}
			return mutateDocument(ctx, ws, "add_table", func(ed *docxEditor) string {
				ed.appendBody(tableXML(args.Rows))
				return fmt.Sprintf("已添加表格（%d 行）", len(args.Rows))
			})
		},
	)
}

// AddTableRowArgs are the arguments for the supplemented add_table_row
// tool (not in the distilled catalog; see SPEC_FULL.md).
type AddTableRowArgs struct {
	Cells []string `json:"cells" jsonschema:"required,description=Cell text for the new row"`
}

// NewAddTableRow builds add_table_row: appends a standalone
// single-row table, since nguyenthenguyen/docx exposes no table
// lookup API to append into an existing one.
func NewAddTableRow(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "add_table_row", Description: "Append a new single-row table to paper.docx."},
		func(ctx tool.Context, args AddTableRowArgs) string {
			return mutateDocument(ctx, ws, "add_table_row", func(ed *docxEditor) string {
				ed.appendBody(tableXML([][]string{args.Cells}))
				return "已添加表格行"
			})
		},
	)
}

// SetCellTextArgs are the arguments for the supplemented
// set_cell_text tool: a text-level search and replace of the first
// exact occurrence of old_text in the document. The match is not
// restricted to table cells.
type SetCellTextArgs struct {
	OldText string `json:"old_text" jsonschema:"required,description=Existing cell text to find"`
	NewText string `json:"new_text" jsonschema:"required,description=Replacement cell text"`
}

// NewSetCellText builds set_cell_text.
func NewSetCellText(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "set_cell_text", Description: "Replace a table cell's text by exact match."},
		func(ctx tool.Context, args SetCellTextArgs) string {
			return mutateDocument(ctx, ws, "set_cell_text", func(ed *docxEditor) string {
				if err := ed.doc.Replace(args.OldText, args.NewText, 1); err != nil {
					return fmt.Sprintf("替换单元格内容失败: %v", err)
				}
				return fmt.Sprintf("已将单元格内容由「%s」改为「%s」", args.OldText, args.NewText)
			})
		},
	)
}

// AddCommentArgs are the arguments for the supplemented add_comment
// tool. nguyenthenguyen/docx has no comments-part writer, so this
// appends a visibly marked inline annotation instead of a true OOXML
// comment reference.
type AddCommentArgs struct {
	AnchorText string `json:"anchor_text" jsonschema:"required,description=Text the comment should appear after"`
	Comment    string `json:"comment" jsonschema:"required,description=Comment text"`
}

// NewAddComment builds add_comment.
func NewAddComment(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "add_comment", Description: "Append an inline annotation after the first paragraph containing anchor_text."},
		func(ctx tool.Context, args AddCommentArgs) string {
			return mutateDocument(ctx, ws, "add_comment", func(ed *docxEditor) string {
				content := ed.doc.GetContent()
				hits := findParagraphsContaining(content, args.AnchorText)
				if len(hits) == 0 {
					return fmt.Sprintf("未找到包含「%s」的段落", args.AnchorText)
				}
				note := paragraphXML("", fmt.Sprintf("[批注: %s]", args.Comment))
				updated := strings.Replace(content, hits[0], hits[0]+note, 1)
				ed.doc.SetContent(updated)
				return "已添加批注"
			})
		},
	)
}

// NewAddPicture builds add_picture. nguyenthenguyen/docx can only
// swap an existing image reference (ReplaceImage), so a newly added
// picture is represented by placeholder text noting the resolved
// workspace path; faithful inline image insertion would need a
// richer OOXML media writer than this library exposes.
type AddPictureArgs struct {
	Path   string `json:"path" jsonschema:"required,description=Image path, resolved against the workspace root"`
	Width  int    `json:"width,omitempty" jsonschema:"description=Display width in pixels (advisory)"`
	Height int    `json:"height,omitempty" jsonschema:"description=Display height in pixels (advisory)"`
}

func NewAddPicture(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "add_picture", Description: "Insert a reference to a workspace image into paper.docx."},
		func(ctx tool.Context, args AddPictureArgs) string {
			abs, err := ws.Resolve(args.Path)
			if err != nil {
				return fmt.Sprintf("无效的图片路径: %v", err)
			}
			return mutateDocument(ctx, ws, "add_picture", func(ed *docxEditor) string {
				ed.appendBody(paragraphXML("", fmt.Sprintf("[图片: %s]", abs)))
				return fmt.Sprintf("已插入图片引用: %s", args.Path)
			})
		},
	)
}

// NewAddPageBreak builds add_page_break.
func NewAddPageBreak(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "add_page_break", Description: "Insert a page break into paper.docx."},
		func(ctx tool.Context, args struct{}) string {
			return mutateDocument(ctx, ws, "add_page_break", func(ed *docxEditor) string {
				ed.appendBody(pageBreakXML())
				return "已插入分页符"
			})
		},
	)
}

// NewGetDocumentText builds get_document_text. Spec §4.8 instructs
// the Writer Agent's system prompt to call this before any Word edit
// so it grounds changes in current content.
func NewGetDocumentText(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "get_document_text", Description: "Return the plain text currently in paper.docx."},
		func(ctx tool.Context, args struct{}) string {
			ed, err := openDocxEditor(docxPath(ws), false)
			if err != nil {
				return withHint(err)
			}
			defer ed.replace.Close()
			text := plainDocText(ed.doc.GetContent())
			if text == "" {
				return "(文档为空)"
			}
			return text
		},
	)
}

// FindTextInDocumentArgs are the arguments for find_text_in_document.
type FindTextInDocumentArgs struct {
	Query string `json:"query" jsonschema:"required,description=Text to search for"`
}

// NewFindTextInDocument builds find_text_in_document.
func NewFindTextInDocument(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "find_text_in_document", Description: "Return paragraphs in paper.docx containing query."},
		func(ctx tool.Context, args FindTextInDocumentArgs) string {
			ed, err := openDocxEditor(docxPath(ws), false)
			if err != nil {
				return withHint(err)
			}
			defer ed.replace.Close()
			hits := findParagraphsContaining(ed.doc.GetContent(), args.Query)
			if len(hits) == 0 {
				return fmt.Sprintf("未找到「%s」", args.Query)
			}
			var out []string
			for _, h := range hits {
				out = append(out, plainDocText(h))
			}
			return fmt.Sprintf("找到 %d 处匹配:\n%s", len(hits), strings.Join(out, "\n---\n"))
		},
	)
}

// FormatTextArgs are the arguments for format_text. Given
// nguyenthenguyen/docx has no run-property API, formatting is applied
// by rewriting the target run(s) with explicit rPr markup.
type FormatTextArgs struct {
	Target    string `json:"target" jsonschema:"required,description=Exact text of the run to format"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
}

func NewFormatText(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "format_text", Description: "Apply bold/italic/underline to the first run matching target text."},
		func(ctx tool.Context, args FormatTextArgs) string {
			return mutateDocument(ctx, ws, "format_text", func(ed *docxEditor) string {
				content := ed.doc.GetContent()
				runText := fmt.Sprintf(`<w:t xml:space="preserve">%s</w:t>`, escapeXML(args.Target))
				if !strings.Contains(content, runText) {
					return fmt.Sprintf("未找到文本「%s」", args.Target)
				}
				var props strings.Builder
				props.WriteString("<w:rPr>")
				if args.Bold {
					props.WriteString("<w:b/>")
				}
				if args.Italic {
					props.WriteString("<w:i/>")
				}
				if args.Underline {
					props.WriteString(`<w:u w:val="single"/>`)
				}
				props.WriteString("</w:rPr>")
				formatted := fmt.Sprintf(`<w:r>%s%s</w:r>`, props.String(), runText)
				plain := fmt.Sprintf(`<w:r>%s</w:r>`, runText)
				content = strings.Replace(content, plain, formatted, 1)
				ed.doc.SetContent(content)
				return fmt.Sprintf("已格式化文本「%s」", args.Target)
			})
		},
	)
}

// SearchAndReplaceArgs are the arguments for search_and_replace.
type SearchAndReplaceArgs struct {
	OldText string `json:"old_text" jsonschema:"required,description=Text to find"`
	NewText string `json:"new_text" jsonschema:"required,description=Replacement text"`
}

func NewSearchAndReplace(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "search_and_replace", Description: "Replace every occurrence of old_text with new_text in paper.docx."},
		func(ctx tool.Context, args SearchAndReplaceArgs) string {
			return mutateDocument(ctx, ws, "search_and_replace", func(ed *docxEditor) string {
				if err := ed.doc.Replace(args.OldText, args.NewText, -1); err != nil {
					return fmt.Sprintf("替换失败: %v", err)
				}
				return fmt.Sprintf("已将「%s」替换为「%s」", args.OldText, args.NewText)
			})
		},
	)
}

// DeleteParagraphArgs are the arguments for delete_paragraph.
type DeleteParagraphArgs struct {
	Text string `json:"text" jsonschema:"required,description=Text identifying the paragraph to delete"`
}

func NewDeleteParagraph(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "delete_paragraph", Description: "Delete the first paragraph in paper.docx containing text."},
		func(ctx tool.Context, args DeleteParagraphArgs) string {
			return mutateDocument(ctx, ws, "delete_paragraph", func(ed *docxEditor) string {
				content := ed.doc.GetContent()
				hits := findParagraphsContaining(content, args.Text)
				if len(hits) == 0 {
					return fmt.Sprintf("未找到包含「%s」的段落", args.Text)
				}
				ed.doc.SetContent(strings.Replace(content, hits[0], "", 1))
				return "已删除段落"
			})
		},
	)
}

// mutateDocument opens paper.docx, applies fn, saves, and maps any
// open/save error through the remediation-hint table. It reports
// word_tool_call before the edit and word_document_saved once it is
// durably written, so the transport stream carries the same
// before/after pair the original Word tools emit around every
// document operation.
func mutateDocument(ctx tool.Context, ws *workspace.Workspace, opName string, fn func(*docxEditor) string) string {
	ctx.Sink.Card(cardWordToolCall, map[string]any{"tool": opName})
	ed, err := openDocxEditor(docxPath(ws), false)
	if err != nil {
		return withHint(err)
	}
	result := fn(ed)
	if err := ed.save(); err != nil {
		return withHint(fmt.Errorf("保存文档失败: %w", err))
	}
	ctx.Sink.Card(cardWordDocumentSaved, map[string]any{"tool": opName})
	return result
}
