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

package workspace

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// renderDocxFromMarkdown implements the auto-export named in spec
// §4.2/§9: heading levels 1-5, paragraphs, and stripped inline
// emphasis. This is intentionally not a full Markdown renderer — more
// sophisticated conversion is explicitly out of scope.
func (w *Workspace) renderDocxFromMarkdown() ([]byte, error) {
	src, err := os.ReadFile(filepath.Join(w.root, FilePaperMD))
	if err != nil {
		return nil, err
	}

	// Start from an empty docx template shipped alongside the binary;
	// if unavailable, fall back to building paragraphs in-memory is
	// not supported by nguyenthenguyen/docx, so we require a template.
	templatePath := os.Getenv("PA_DOCX_TEMPLATE")
	if templatePath == "" {
		templatePath = filepath.Join(filepath.Dir(w.root), "..", "templates", "blank.docx")
	}
	doc, err := docx.ReadDocxFile(templatePath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	editable := doc.Editable()

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	var out strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			out.WriteString(strings.Repeat("#", node.Level) + " " + plainText(node, src) + "\n\n")
		case *ast.Paragraph:
			out.WriteString(stripInlineEmphasis(plainText(node, src)) + "\n\n")
		}
		return ast.WalkContinue, nil
	})

	editable.Replace("{{CONTENT}}", out.String(), -1)
	var buf bytes.Buffer
	if err := editable.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
		} else {
			b.WriteString(plainText(c, src))
		}
	}
	return b.String()
}

// stripInlineEmphasis removes *, **, backtick, and link-bracket
// markers, matching the "more sophisticated conversion is out of
// scope" note in spec §9.
func stripInlineEmphasis(s string) string {
	replacer := strings.NewReplacer(
		"**", "", "*", "", "`", "", "[", "", "]", "",
	)
	return replacer.Replace(s)
}
