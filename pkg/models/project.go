// Package models holds the project model handed to the renderer.
package models

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/quire/pkg/strutil"
)

// Document is one source Markdown file
type Document struct {
	Title    string
	Path     string // slash separated, relative to the project root
	Content  string
	Modified time.Time
}

// Slug returns the document path without its extension
func (d *Document) Slug() string {
	return strings.TrimSuffix(d.Path, path.Ext(d.Path))
}

// Dir returns the slash separated directory of the document, "" at the root
func (d *Document) Dir() string {
	dir := path.Dir(d.Path)
	if dir == "." {
		return ""
	}
	return dir
}

// Project is the set of documents rendered in one run
type Project struct {
	Name      string
	Root      string
	Documents []*Document
}

// LoadProject reads every .md file under root. Hidden files and directories
// are skipped. Documents are sorted by path.
func LoadProject(root, name string) (*Project, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input is not a directory: %s", root)
	}

	project := &Project{Name: name, Root: root}
	if project.Name == "" {
		project.Name = strutil.CamelToTitleCase(filepath.Base(root))
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(p) != ".md" {
			return nil
		}

		doc, err := loadDocument(root, p)
		if err != nil {
			return err
		}
		project.Documents = append(project.Documents, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	sort.Slice(project.Documents, func(i, j int) bool {
		return project.Documents[i].Path < project.Documents[j].Path
	})

	return project, nil
}

func loadDocument(root, p string) (*Document, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}

	rel, err := filepath.Rel(root, p)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)
	content := string(data)

	return &Document{
		Title:    TitleFor(rel, content),
		Path:     rel,
		Content:  content,
		Modified: info.ModTime().UTC(),
	}, nil
}

// TitleFor returns the first level-one heading of content, or a title
// derived from the file name
func TitleFor(rel, content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}

	base := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = strutil.CamelToTitleCase(w)
	}
	return strings.Join(words, " ")
}
