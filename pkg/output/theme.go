// Package output renders a project through a Theme and writes the pages to a Sink.
//
// The Renderer triggers named events on the host's dispatcher so that plugins
// can observe or modify the output:
//
//	beginRender  *RenderEvent  before any page
//	beginPage    *PageEvent    before a page is rendered
//	endPage      *PageEvent    after rendering, Contents may be modified
//	endRender    *RenderEvent  after every page was written
package output

import (
	"time"

	"github.com/platinummonkey/quire/pkg/models"
)

// Event names triggered by the Renderer
const (
	EventBeginRender = "beginRender"
	EventBeginPage   = "beginPage"
	EventEndPage     = "endPage"
	EventEndRender   = "endRender"
)

// Theme maps a project to output pages and renders them
type Theme interface {
	// URLs returns the pages to render for the project
	URLs(project *models.Project) ([]URLMapping, error)
	// Navigation returns the root of the navigation tree
	Navigation(project *models.Project) (*NavigationItem, error)
	// Render produces the contents of one page
	Render(page *PageEvent) (string, error)
}

// URLMapping ties an output path to the model and template rendering it
type URLMapping struct {
	URL      string
	Model    *models.Document // nil for the project index
	Template string
}

// NavigationItem is a node of the navigation tree
type NavigationItem struct {
	Text     string
	Path     string
	Children []*NavigationItem
}

// RenderEvent is the payload of beginRender and endRender
type RenderEvent struct {
	RunID   string
	Project *models.Project
	URLs    []URLMapping
	Sink    Sink
}

// PageEvent is the payload of beginPage and endPage
type PageEvent struct {
	Project    *models.Project
	URL        string
	Model      *models.Document
	Template   string
	Navigation *NavigationItem
	Contents   string
}

// Title returns the page title
func (p *PageEvent) Title() string {
	if p.Model != nil {
		return p.Model.Title
	}
	return p.Project.Name
}

// LastModified returns the modification time of the page's source. The index
// takes the newest document time.
func (p *PageEvent) LastModified() time.Time {
	if p.Model != nil {
		return p.Model.Modified
	}
	return LatestModified(p.Project)
}

// LatestModified returns the newest document modification time
func LatestModified(project *models.Project) time.Time {
	var latest time.Time
	for _, doc := range project.Documents {
		if doc.Modified.After(latest) {
			latest = doc.Modified
		}
	}
	return latest
}
