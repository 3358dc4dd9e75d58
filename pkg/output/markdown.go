package output

import (
	"bytes"
	"html/template"
	"path"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

const markdownExtensions = parser.CommonExtensions | parser.AutoHeadingIDs

// markdownToHTML renders a document body. Relative links to other Markdown
// documents are pointed at their rendered pages.
func markdownToHTML(text string) template.HTML {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// parsers keep state between calls
	doc := markdown.Parse([]byte(text), parser.NewWithExtensions(markdownExtensions))

	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if link, ok := node.(*ast.Link); ok && entering {
			link.Destination = []byte(rewriteLink(string(link.Destination)))
		}
		return ast.GoToNext
	})

	out := markdown.Render(doc, html.NewRenderer(html.RendererOptions{}))
	return template.HTML(bytes.TrimSpace(out))
}

// rewriteLink points relative links to Markdown documents at their rendered page
func rewriteLink(target string) string {
	if strings.Contains(target, "://") || strings.HasPrefix(target, "#") {
		return target
	}
	anchor := ""
	if i := strings.Index(target, "#"); i >= 0 {
		target, anchor = target[:i], target[i:]
	}
	if path.Ext(target) == ".md" {
		target = strings.TrimSuffix(target, ".md") + ".html"
	}
	return target + anchor
}
