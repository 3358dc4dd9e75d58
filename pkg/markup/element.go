// Package markup serializes element trees into indented, escaped markup.
//
// An Element holds either child elements or text, never both: New builds a
// container element and Text builds a text element. Tag and attribute names
// are written verbatim and must already be valid identifiers; attribute
// values and text are always escaped.
//
//	root := markup.New("urlset",
//		markup.Text("loc", "https://example.com/?a=1&b=2"),
//	).WithAttr("xmlns", "http://www.sitemaps.org/schemas/sitemap/0.9")
//
//	out := markup.Serialize(root)
package markup

// Attr is a single attribute
type Attr struct {
	Name  string
	Value string
}

// Element is a node of a markup tree
type Element struct {
	Tag   string
	Attrs []Attr

	children []*Element
	text     string
	isText   bool
}

// New creates an element whose content is the given children. With no
// children it still renders as an open/close pair on two lines.
func New(tag string, children ...*Element) *Element {
	return &Element{
		Tag:      tag,
		children: children,
	}
}

// Text creates an element whose content is a single text value
func Text(tag, text string) *Element {
	return &Element{
		Tag:    tag,
		text:   text,
		isText: true,
	}
}

// WithAttr sets an attribute and returns the element. Setting an existing
// name replaces its value without moving it.
func (e *Element) WithAttr(name, value string) *Element {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

// Attr returns the value of an attribute
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Append adds children to a container element. It panics on a text element.
func (e *Element) Append(children ...*Element) *Element {
	if e.isText {
		panic("markup: cannot append children to text element <" + e.Tag + ">")
	}
	e.children = append(e.children, children...)
	return e
}

// Children returns the child elements; nil for text elements
func (e *Element) Children() []*Element {
	return e.children
}

// Content returns the text of a text element
func (e *Element) Content() (string, bool) {
	return e.text, e.isText
}
