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
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// docxEditor operates directly on a paper.docx's document.xml body,
// since nguyenthenguyen/docx exposes only template-style placeholder
// replacement plus raw GetContent/SetContent — there is no structured
// paragraph/table builder API. Every Writer Agent Word tool (spec
// §4.8) goes through this thin layer.
type docxEditor struct {
	path    string
	replace *docx.ReplaceDocx
	doc     *docx.Docx
}

var sectPrPattern = regexp.MustCompile(`(?s)(<w:sectPr.*?</w:sectPr>)\s*</w:body>`)

// blankDocxTemplate is the starting point for create_document. When
// PA_DOCX_TEMPLATE is set it is the same file the auto-export path
// uses (internal/workspace's renderDocxFromMarkdown); otherwise it is
// templates/blank.docx relative to the working directory, which is not
// the auto-export's fallback path.
func blankDocxTemplate() string {
	if p := os.Getenv("PA_DOCX_TEMPLATE"); p != "" {
		return p
	}
	return "templates/blank.docx"
}

func openDocxEditor(path string, createIfMissing bool) (*docxEditor, error) {
	if _, err := os.Stat(path); err != nil {
		if !createIfMissing {
			return nil, fmt.Errorf("打开文档失败: %w", err)
		}
		rd, err := docx.ReadDocxFile(blankDocxTemplate())
		if err != nil {
			return nil, fmt.Errorf("从模板创建文档失败: %w", err)
		}
		return &docxEditor{path: path, replace: rd, doc: rd.Editable()}, nil
	}
	rd, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开文档失败: %w", err)
	}
	return &docxEditor{path: path, replace: rd, doc: rd.Editable()}, nil
}

func (e *docxEditor) save() error {
	defer e.replace.Close()
	return e.doc.WriteToFile(e.path)
}

// appendBody inserts raw OOXML xml immediately before the body's
// trailing <w:sectPr> element, so the section properties (page
// size/margins) stay last, or before </w:body> when no sectPr is
// present.
func (e *docxEditor) appendBody(xml string) {
	content := e.doc.GetContent()
	if sectPrPattern.MatchString(content) {
		content = sectPrPattern.ReplaceAllString(content, xml+"$1</w:body>")
	} else {
		content = strings.Replace(content, "</w:body>", xml+"</w:body>", 1)
	}
	e.doc.SetContent(content)
}

func escapeXML(s string) string {
	return html.EscapeString(s)
}

func paragraphXML(style, text string) string {
	styleTag := ""
	if style != "" {
		styleTag = fmt.Sprintf(`<w:pPr><w:pStyle w:val="%s"/></w:pPr>`, style)
	}
	return fmt.Sprintf(`<w:p>%s<w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, styleTag, escapeXML(text))
}

func headingStyle(level int) string {
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	return fmt.Sprintf("Heading%d", level)
}

func pageBreakXML() string {
	return `<w:p><w:r><w:br w:type="page"/></w:r></w:p>`
}

// tableXML renders rows (each a slice of cell strings) as a simple
// OOXML table with uniform column widths.
func tableXML(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/></w:tblPr>`)
	for _, row := range rows {
		b.WriteString(`<w:tr>`)
		for _, cell := range row {
			b.WriteString(fmt.Sprintf(`<w:tc><w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p></w:tc>`, escapeXML(cell)))
		}
		b.WriteString(`</w:tr>`)
	}
	b.WriteString(`</w:tbl>`)
	return b.String()
}

var (
	tagPattern  = regexp.MustCompile(`(?s)<[^>]+>`)
	textPattern = regexp.MustCompile(`(?s)<w:t[^>]*>(.*?)</w:t>`)
	paraPattern = regexp.MustCompile(`(?s)<w:p\b.*?</w:p>`)
)

// plainDocText extracts all <w:t> run text from xml, concatenated with
// paragraph breaks.
func plainDocText(xml string) string {
	matches := paraPattern.FindAllString(xml, -1)
	var paras []string
	for _, p := range matches {
		texts := textPattern.FindAllStringSubmatch(p, -1)
		var b strings.Builder
		for _, t := range texts {
			b.WriteString(html.UnescapeString(t[1]))
		}
		paras = append(paras, b.String())
	}
	return strings.Join(paras, "\n")
}

// findParagraphsContaining returns the raw XML of every paragraph
// whose extracted text contains needle (case-insensitive).
func findParagraphsContaining(xml, needle string) []string {
	needle = strings.ToLower(needle)
	var out []string
	for _, p := range paraPattern.FindAllString(xml, -1) {
		var b strings.Builder
		for _, t := range textPattern.FindAllStringSubmatch(p, -1) {
			b.WriteString(html.UnescapeString(t[1]))
		}
		if strings.Contains(strings.ToLower(b.String()), needle) {
			out = append(out, p)
		}
	}
	return out
}
