package markup

import "strings"

// DefaultIndent is one tab
const DefaultIndent = "\t"

// Serialize renders the tree rooted at root, indenting with tabs
func Serialize(root *Element) string {
	return SerializeIndent(root, DefaultIndent)
}

// SerializeIndent renders the tree rooted at root using indent once per
// nesting level. The root's opening tag has no indentation.
func SerializeIndent(root *Element, indent string) string {
	if root == nil {
		return ""
	}

	var b strings.Builder
	writeElement(&b, root, indent, 0)
	return b.String()
}

func writeElement(b *strings.Builder, e *Element, indent string, depth int) {
	b.WriteByte('<')
	b.WriteString(e.Tag)
	for _, a := range e.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(Escape(a.Value))
		b.WriteByte('"')
	}
	b.WriteByte('>')

	if e.isText {
		b.WriteString(Escape(e.text))
	} else {
		b.WriteByte('\n')
		for _, child := range e.children {
			if child == nil {
				continue
			}
			writeIndent(b, indent, depth+1)
			writeElement(b, child, indent, depth+1)
			b.WriteByte('\n')
		}
		writeIndent(b, indent, depth)
	}

	b.WriteString("</")
	b.WriteString(e.Tag)
	b.WriteByte('>')
}

func writeIndent(b *strings.Builder, indent string, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString(indent)
	}
}
