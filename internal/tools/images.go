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

// Image discovery/insertion helpers (spec §4.6): locate images the
// Code Agent produced under outputs/ and splice markdown image
// references into paper.md.
package tools

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool/functiontool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

type imageEntry struct {
	relPath string
	modTime int64
}

func listOutputImages(ws *workspace.Workspace) ([]imageEntry, error) {
	cat, err := ws.ListByCategory()
	if err != nil {
		return nil, err
	}
	var out []imageEntry
	for _, e := range cat.Outputs {
		if workspace.Classify(e.Path) == workspace.KindImage {
			out = append(out, imageEntry{relPath: e.Path, modTime: e.ModTime.Unix()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].modTime > out[j].modTime })
	return out, nil
}

// NewListOutputImages builds list_output_images.
func NewListOutputImages(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "list_output_images", Description: "List images under outputs/, most recent first."},
		func(ctx tool.Context, args struct{}) string {
			images, err := listOutputImages(ws)
			if err != nil {
				return fmt.Sprintf("列出图片失败: %v", err)
			}
			if len(images) == 0 {
				return "没有输出图片"
			}
			var b strings.Builder
			for _, img := range images {
				b.WriteString(img.relPath)
				b.WriteString("\n")
			}
			return b.String()
		},
	)
}

// NewGetLatestImageInfo builds get_latest_image_info.
func NewGetLatestImageInfo(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "get_latest_image_info", Description: "Return the path of the most recently modified output image."},
		func(ctx tool.Context, args struct{}) string {
			images, err := listOutputImages(ws)
			if err != nil {
				return fmt.Sprintf("查询最新图片失败: %v", err)
			}
			if len(images) == 0 {
				return "没有输出图片"
			}
			return images[0].relPath
		},
	)
}

// conclusionHeadings are the section titles that "smart" positioning
// inserts before (spec §4.6: "a recognized conclusion/references/
// acknowledgment heading").
var conclusionHeadings = []string{"conclusion", "结论", "references", "参考文献", "acknowledgment", "acknowledgement", "致谢"}

// smartInsertIndex returns the line index at which to insert an image
// under "smart" positioning: before the first recognized trailing
// heading, else after the last non-blank, non-heading line (or at the
// end of the document when every non-blank line is a heading).
func smartInsertIndex(lines []string) int {
	for i, line := range lines {
		if headingLevel(line) == 0 {
			continue
		}
		text := strings.ToLower(headingText(line))
		for _, h := range conclusionHeadings {
			if strings.Contains(text, h) {
				return i
			}
		}
	}
	last := len(lines)
	for last > 0 && strings.TrimSpace(lines[last-1]) == "" {
		last--
	}
	end := last
	for last > 0 && (strings.TrimSpace(lines[last-1]) == "" || headingLevel(lines[last-1]) > 0) {
		last--
	}
	if last == 0 {
		return end
	}
	return last
}

func insertImageReference(doc, relPath, description, position string) string {
	ref := fmt.Sprintf("![%s](%s)", description, filepath.ToSlash(relPath))
	lines := strings.Split(doc, "\n")

	var idx int
	switch position {
	case "beginning":
		idx = 0
	case "end":
		idx = len(lines)
	default: // "smart"
		idx = smartInsertIndex(lines)
	}

	var out []string
	out = append(out, lines[:idx]...)
	out = append(out, "", ref, "")
	out = append(out, lines[idx:]...)
	return strings.Join(out, "\n")
}

// InsertLatestImageArgs are the arguments for insert_latest_image.
type InsertLatestImageArgs struct {
	TargetFile  string `json:"target_file,omitempty" jsonschema:"description=Markdown file to insert into; default paper.md"`
	Description string `json:"description,omitempty" jsonschema:"description=Alt text for the image"`
	Position    string `json:"position,omitempty" jsonschema:"description=One of smart,end,beginning; default smart"`
}

// NewInsertLatestImage builds insert_latest_image.
func NewInsertLatestImage(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "insert_latest_image",
			Description: "Insert the most recently modified output image into target_file as a markdown image reference.",
		},
		func(ctx tool.Context, args InsertLatestImageArgs) string {
			images, err := listOutputImages(ws)
			if err != nil {
				return fmt.Sprintf("查找图片失败: %v", err)
			}
			if len(images) == 0 {
				return "没有可插入的输出图片"
			}
			return insertImage(ws, images[0].relPath, args.TargetFile, args.Description, args.Position)
		},
	)
}

// InsertImageByNameArgs are the arguments for insert_image_by_name.
type InsertImageByNameArgs struct {
	Name        string `json:"name" jsonschema:"required,description=Image filename under outputs/"`
	TargetFile  string `json:"target_file,omitempty" jsonschema:"description=Markdown file to insert into; default paper.md"`
	Description string `json:"description,omitempty" jsonschema:"description=Alt text for the image"`
}

// NewInsertImageByName builds insert_image_by_name.
func NewInsertImageByName(ws *workspace.Workspace) (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: "insert_image_by_name", Description: "Insert a named output image into target_file by markdown reference."},
		func(ctx tool.Context, args InsertImageByNameArgs) string {
			images, err := listOutputImages(ws)
			if err != nil {
				return fmt.Sprintf("查找图片失败: %v", err)
			}
			for _, img := range images {
				if filepath.Base(img.relPath) == args.Name {
					return insertImage(ws, img.relPath, args.TargetFile, args.Description, "smart")
				}
			}
			return fmt.Sprintf("未找到图片: %s", args.Name)
		},
	)
}

func insertImage(ws *workspace.Workspace, relPath, targetFile, description, position string) string {
	if targetFile == "" {
		targetFile = workspace.FilePaperMD
	}
	if description == "" {
		description = strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	}
	if position == "" {
		position = "smart"
	}

	existing := ""
	if res, err := ws.Read(targetFile); err == nil {
		existing = res.Text
	}
	next := insertImageReference(existing, relPath, description, position)
	if err := ws.Write(targetFile, next); err != nil {
		return fmt.Sprintf("插入图片失败: %v", err)
	}
	return fmt.Sprintf("已将 %s 插入 %s（位置: %s）", relPath, targetFile, position)
}
