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

// Read-only queries against attachment/ (spec §4.6). read_attachment
// dispatches on extension the same way internal/workspace.Classify
// buckets files, but goes one step further: each binary type gets a
// format-specific extraction, grounded on hector's
// pkg/rag/native_parsers.go (docx via nguyenthenguyen/docx,
// excel via excelize, pdf via ledongthuc/pdf).
package tools

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool/functiontool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

const maxPDFPages = 10

// NewListAttachments builds list_attachments.
func NewListAttachments(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "list_attachments", Description: "List every file under attachment/."},
		func(ctx tool.Context, args struct{}) string {
			cat, err := ws.ListByCategory()
			if err != nil {
				return fmt.Sprintf("列出附件失败: %v", err)
			}
			if len(cat.Attachments) == 0 {
				return "没有附件"
			}
			var b strings.Builder
			for _, e := range cat.Attachments {
				fmt.Fprintf(&b, "%s (%d bytes)\n", e.Path, e.Size)
			}
			return b.String()
		},
	)
}

// ReadAttachmentArgs are the arguments for read_attachment.
type ReadAttachmentArgs struct {
	Path string `json:"path" jsonschema:"required,description=Attachment path relative to attachment/"`
}

func attachmentRel(path string) string {
	if strings.HasPrefix(path, workspace.DirAttachment+"/") {
		return path
	}
	return filepath.Join(workspace.DirAttachment, path)
}

// NewReadAttachment builds read_attachment.
func NewReadAttachment(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name: "read_attachment",
			Description: "Read an attachment's content: text files verbatim, csv/excel as a tabular " +
				"summary, docx as extracted paragraphs, pdf page-by-page (up to 10 pages).",
		},
		func(ctx tool.Context, args ReadAttachmentArgs) string {
			rel := attachmentRel(args.Path)
			abs, err := ws.Resolve(rel)
			if err != nil {
				return fmt.Sprintf("无效路径: %v", err)
			}
			ext := strings.ToLower(filepath.Ext(abs))
			switch ext {
			case ".csv", ".xlsx", ".xls":
				return readTabular(abs, ext)
			case ".docx":
				return readDocxText(abs)
			case ".pdf":
				return readPDFText(abs)
			default:
				res, err := ws.Read(rel)
				if err != nil {
					return fmt.Sprintf("读取附件失败: %v", err)
				}
				if res.Kind != workspace.KindText {
					return res.Message
				}
				return res.Text
			}
		},
	)
}

func readTabular(path, ext string) string {
	if ext == ".csv" {
		return readCSVPreview(path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Sprintf("读取 Excel 失败: %v", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "工作表「%s」（%d 行）\n", sheet, len(rows))
		limit := len(rows)
		if limit > 20 {
			limit = 20
		}
		for _, row := range rows[:limit] {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
		if len(rows) > 20 {
			fmt.Fprintf(&b, "... 还有 %d 行未显示\n", len(rows)-20)
		}
	}
	return b.String()
}

// readCSVPreview renders up to 20 rows of a csv file as a
// pipe-separated tabular summary, matching the excel path's format.
func readCSVPreview(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("读取 CSV 失败: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Sprintf("解析 CSV 失败: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CSV（%d 行）\n", len(rows))
	limit := len(rows)
	if limit > 20 {
		limit = 20
	}
	for _, row := range rows[:limit] {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	if len(rows) > 20 {
		fmt.Fprintf(&b, "... 还有 %d 行未显示\n", len(rows)-20)
	}
	return b.String()
}

func readDocxText(path string) string {
	ed, err := openDocxEditor(path, false)
	if err != nil {
		return fmt.Sprintf("读取 Word 文档失败: %v", err)
	}
	defer ed.replace.Close()
	text := plainDocText(ed.doc.GetContent())
	if text == "" {
		return "(文档为空)"
	}
	return text
}

func readPDFText(path string) string {
	f, r, err := pdf.Open(path)
	if err != nil {
		return fmt.Sprintf("读取 PDF 失败: %v", err)
	}
	defer f.Close()

	total := r.NumPage()
	limit := total
	if limit > maxPDFPages {
		limit = maxPDFPages
	}
	var b strings.Builder
	for i := 1; i <= limit; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "--- 第 %d 页 ---\n%s\n", i, text)
	}
	if total > maxPDFPages {
		fmt.Fprintf(&b, "(共 %d 页，仅显示前 %d 页)\n", total, maxPDFPages)
	}
	return b.String()
}

// GetAttachmentInfoArgs are the arguments for get_attachment_info.
type GetAttachmentInfoArgs struct {
	Path string `json:"path" jsonschema:"required,description=Attachment path relative to attachment/"`
}

func NewGetAttachmentInfo(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "get_attachment_info", Description: "Return size and kind metadata for an attachment."},
		func(ctx tool.Context, args GetAttachmentInfoArgs) string {
			rel := attachmentRel(args.Path)
			info, err := ws.Info(rel)
			if err != nil {
				return fmt.Sprintf("获取附件信息失败: %v", err)
			}
			return fmt.Sprintf("%s：%d 字节，类型 %s，修改时间 %s",
				args.Path, info.Size(), workspace.Classify(rel), info.ModTime().Format("2006-01-02 15:04:05"))
		},
	)
}

// SearchAttachmentsArgs are the arguments for search_attachments.
type SearchAttachmentsArgs struct {
	Keyword  string `json:"keyword" jsonschema:"required,description=Substring to match against file names"`
	FileType string `json:"file_type,omitempty" jsonschema:"description=Optional extension filter, e.g. .pdf"`
}

func NewSearchAttachments(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "search_attachments", Description: "Search attachment/ by filename keyword and optional extension."},
		func(ctx tool.Context, args SearchAttachmentsArgs) string {
			cat, err := ws.ListByCategory()
			if err != nil {
				return fmt.Sprintf("搜索附件失败: %v", err)
			}
			needle := strings.ToLower(args.Keyword)
			wantExt := strings.ToLower(args.FileType)
			var hits []string
			for _, e := range cat.Attachments {
				if wantExt != "" && strings.ToLower(filepath.Ext(e.Path)) != wantExt {
					continue
				}
				if strings.Contains(strings.ToLower(e.Path), needle) {
					hits = append(hits, e.Path)
				}
			}
			if len(hits) == 0 {
				return "没有匹配的附件"
			}
			return strings.Join(hits, "\n")
		},
	)
}
