package output

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/quire/pkg/markup"
	"github.com/platinummonkey/quire/pkg/models"
	"github.com/platinummonkey/quire/pkg/strutil"
)

const (
	// IndexURL is the output path of the project index page
	IndexURL = "index.html"

	templateIndex    = "index"
	templateDocument = "document"

	defaultCacheSize = 256
)

// DefaultTheme renders one HTML page per document plus an index
type DefaultTheme struct {
	template *template.Template
	cache    *lru.Cache[string, template.HTML]
}

// NewDefaultTheme creates the default theme
func NewDefaultTheme() (*DefaultTheme, error) {
	cache, err := lru.New[string, template.HTML](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown cache: %w", err)
	}

	tmpl := template.Must(template.New("page").Parse(pageTemplate))

	return &DefaultTheme{
		template: tmpl,
		cache:    cache,
	}, nil
}

// URLs implements Theme.URLs
func (t *DefaultTheme) URLs(project *models.Project) ([]URLMapping, error) {
	urls := make([]URLMapping, 0, len(project.Documents)+1)
	urls = append(urls, URLMapping{URL: IndexURL, Template: templateIndex})

	for _, doc := range project.Documents {
		urls = append(urls, URLMapping{
			URL:      doc.Slug() + ".html",
			Model:    doc,
			Template: templateDocument,
		})
	}

	return urls, nil
}

// Navigation implements Theme.Navigation. Documents at the root become direct
// children; documents in a directory are grouped under an item for it.
func (t *DefaultTheme) Navigation(project *models.Project) (*NavigationItem, error) {
	root := &NavigationItem{Text: project.Name, Path: IndexURL}
	groups := make(map[string]*NavigationItem)

	for _, doc := range project.Documents {
		item := &NavigationItem{Text: doc.Title, Path: doc.Slug() + ".html"}

		dir := doc.Dir()
		if dir == "" {
			root.Children = append(root.Children, item)
			continue
		}

		group, ok := groups[dir]
		if !ok {
			group = &NavigationItem{Text: strutil.CamelToTitleCase(path.Base(dir))}
			groups[dir] = group
			root.Children = append(root.Children, group)
		}
		group.Children = append(group.Children, item)
	}

	return root, nil
}

type pageData struct {
	Title      string
	Project    string
	Base       string
	Navigation template.HTML
	Body       template.HTML
}

// Render implements Theme.Render
func (t *DefaultTheme) Render(page *PageEvent) (string, error) {
	base := strings.Repeat("../", strings.Count(page.URL, "/"))

	var body template.HTML
	switch page.Template {
	case templateDocument:
		if page.Model == nil {
			return "", fmt.Errorf("document page %s has no model", page.URL)
		}
		body = t.markdown(page.Model.Content)
	case templateIndex:
		body = t.indexBody(page.Project, base)
	default:
		return "", fmt.Errorf("unknown template: %s", page.Template)
	}

	data := pageData{
		Title:      page.Title(),
		Project:    page.Project.Name,
		Base:       base,
		Navigation: navigationHTML(page.Navigation, base, page.URL),
		Body:       body,
	}

	var buf bytes.Buffer
	if err := t.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// markdown converts content, reusing earlier conversions of identical text
func (t *DefaultTheme) markdown(content string) template.HTML {
	sum := sha256.Sum256([]byte(content))
	key := hex.EncodeToString(sum[:])

	if html, ok := t.cache.Get(key); ok {
		return html
	}

	html := markdownToHTML(content)
	t.cache.Add(key, html)
	return html
}

func (t *DefaultTheme) indexBody(project *models.Project, base string) template.HTML {
	list := markup.New("ul").WithAttr("class", "documents")
	for _, doc := range project.Documents {
		list.Append(markup.New("li",
			markup.Text("a", doc.Title).WithAttr("href", base+doc.Slug()+".html"),
		))
	}

	heading := markup.Text("h1", project.Name)
	return template.HTML(markup.Serialize(heading) + "\n" + markup.Serialize(list))
}

// navigationHTML renders the navigation tree as nested lists
func navigationHTML(root *NavigationItem, base, current string) template.HTML {
	if root == nil {
		return ""
	}
	return template.HTML(markup.Serialize(navigationElement(root, base, current)))
}

func navigationElement(item *NavigationItem, base, current string) *markup.Element {
	var label *markup.Element
	if item.Path != "" {
		label = markup.Text("a", item.Text).WithAttr("href", base+item.Path)
		if item.Path == current {
			label.WithAttr("class", "current")
		}
	} else {
		label = markup.Text("span", item.Text)
	}

	li := markup.New("li", label)
	if len(item.Children) > 0 {
		list := markup.New("ul")
		for _, child := range item.Children {
			list.Append(navigationElement(child, base, current))
		}
		li.Append(list)
	}

	return markup.New("ul", li)
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{ .Title }} - {{ .Project }}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            display: flex;
            margin: 0;
        }
        nav {
            width: 260px;
            padding: 20px;
            background: #f5f5f5;
            min-height: 100vh;
        }
        nav ul {
            list-style: none;
            padding-left: 12px;
        }
        nav a.current {
            font-weight: 600;
        }
        main {
            max-width: 900px;
            padding: 20px 40px;
        }
        pre {
            background: #2c3e50;
            color: #ecf0f1;
            padding: 12px;
            overflow-x: auto;
        }
    </style>
</head>
<body>
    <nav>
{{ .Navigation }}
    </nav>
    <main>
{{ .Body }}
    </main>
</body>
</html>
`
