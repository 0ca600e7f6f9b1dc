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

	"github.com/songhahaha66/PaperAgent-sub000/internal/sandbox"
	"github.com/songhahaha66/PaperAgent-sub000/internal/tool"
	"github.com/songhahaha66/PaperAgent-sub000/internal/workspace"
)

// build runs each constructor and fails fast on the first error —
// every constructor here can only fail on a malformed jsonschema
// reflection, which is a programming error, not a runtime condition.
func build(ctors ...func() (tool.CallableTool, error)) ([]tool.CallableTool, error) {
	out := make([]tool.CallableTool, 0, len(ctors))
	for _, ctor := range ctors {
		t, err := ctor()
		if err != nil {
			return nil, fmt.Errorf("tools: build catalog: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// PlannerCatalog builds the Main Agent's tool catalog (spec §4.6):
// the full markdown/template/tree/attachment/image surface. CodeAgent
// and WriterAgent entries are layered on by the caller (internal/agent)
// since they close over agent instances, not plain functions.
func PlannerCatalog(ws *workspace.Workspace, hasTemplate bool) (*tool.Catalog, error) {
	ctors := []func() (tool.CallableTool, error){
		func() (tool.CallableTool, error) { return NewWritemd(ws) },
		func() (tool.CallableTool, error) { return NewUpdateTemplate(ws) },
		func() (tool.CallableTool, error) { return NewTree(ws) },
		func() (tool.CallableTool, error) { return NewListAttachments(ws) },
		func() (tool.CallableTool, error) { return NewReadAttachment(ws) },
		func() (tool.CallableTool, error) { return NewGetAttachmentInfo(ws) },
		func() (tool.CallableTool, error) { return NewSearchAttachments(ws) },
		func() (tool.CallableTool, error) { return NewInsertLatestImage(ws) },
		func() (tool.CallableTool, error) { return NewListOutputImages(ws) },
		func() (tool.CallableTool, error) { return NewInsertImageByName(ws) },
		func() (tool.CallableTool, error) { return NewGetLatestImageInfo(ws) },
	}
	if hasTemplate {
		ctors = append(ctors,
			func() (tool.CallableTool, error) { return NewAnalyzeTemplate(ws) },
			func() (tool.CallableTool, error) { return NewGetSectionContent(ws) },
			func() (tool.CallableTool, error) { return NewUpdateSectionContent(ws) },
			func() (tool.CallableTool, error) { return NewAddSection(ws) },
			func() (tool.CallableTool, error) { return NewRenameSectionTitle(ws) },
		)
	}
	list, err := build(ctors...)
	if err != nil {
		return nil, err
	}
	return tool.NewCatalog(list...), nil
}

// CodeAgentCatalog builds the Code Agent's Sandbox tool catalog (spec
// §4.7).
func CodeAgentCatalog(sb *sandbox.Sandbox) (*tool.Catalog, error) {
	list, err := build(
		func() (tool.CallableTool, error) { return NewSaveAndExecute(sb) },
		func() (tool.CallableTool, error) { return NewExecuteCode(sb) },
		func() (tool.CallableTool, error) { return NewExecuteFile(sb) },
		func() (tool.CallableTool, error) { return NewEditCodeFile(sb) },
		func() (tool.CallableTool, error) { return NewListCodeFiles(sb) },
	)
	if err != nil {
		return nil, err
	}
	return tool.NewCatalog(list...), nil
}

// WriterMarkdownCatalog builds the Writer Agent's tool set for
// output_mode=markdown (spec §4.8).
func WriterMarkdownCatalog(ws *workspace.Workspace) (*tool.Catalog, error) {
	list, err := build(
		func() (tool.CallableTool, error) { return NewWritemd(ws) },
		func() (tool.CallableTool, error) { return NewUpdateTemplate(ws) },
	)
	if err != nil {
		return nil, err
	}
	return tool.NewCatalog(list...), nil
}

// WriterWordCatalog builds the Writer Agent's tool set for
// output_mode=word (spec §4.8).
func WriterWordCatalog(ws *workspace.Workspace) (*tool.Catalog, error) {
	list, err := build(
		func() (tool.CallableTool, error) { return NewCreateDocument(ws) },
		func() (tool.CallableTool, error) { return NewAddHeading(ws) },
		func() (tool.CallableTool, error) { return NewAddParagraph(ws) },
		func() (tool.CallableTool, error) { return NewAddTable(ws) },
		func() (tool.CallableTool, error) { return NewAddTableRow(ws) },
		func() (tool.CallableTool, error) { return NewSetCellText(ws) },
		func() (tool.CallableTool, error) { return NewAddComment(ws) },
		func() (tool.CallableTool, error) { return NewAddPicture(ws) },
		func() (tool.CallableTool, error) { return NewAddPageBreak(ws) },
		func() (tool.CallableTool, error) { return NewGetDocumentText(ws) },
		func() (tool.CallableTool, error) { return NewFindTextInDocument(ws) },
		func() (tool.CallableTool, error) { return NewFormatText(ws) },
		func() (tool.CallableTool, error) { return NewSearchAndReplace(ws) },
		func() (tool.CallableTool, error) { return NewDeleteParagraph(ws) },
	)
	if err != nil {
		return nil, err
	}
	return tool.NewCatalog(list...), nil
}
