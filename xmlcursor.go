package igd

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

type xmlNode struct {
	name     string
	text     strings.Builder
	children []*xmlNode
}

// Cursor is a read-only position in a parsed XML document. The zero Cursor
// points at nothing; navigating from it yields more empty cursors.
type Cursor struct {
	n *xmlNode
}

// parseDocument parses body into a tree and returns a cursor at the document
// root, whose children are the top-level elements. Element names are
// matched by local name; namespace prefixes are ignored.
func parseDocument(body []byte) (Cursor, error) {
	if !utf8.Valid(body) {
		return Cursor{}, decodeErr("body is not valid utf-8", nil)
	}
	root := &xmlNode{}
	stack := []*xmlNode{root}
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Cursor{}, decodeErr("malformed xml", err)
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			child := &xmlNode{name: t.Name.Local}
			top.children = append(top.children, child)
			stack = append(stack, child)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			top.text.Write(t)
		}
	}
	if len(stack) != 1 || len(root.children) == 0 {
		return Cursor{}, decodeErr("malformed xml", io.ErrUnexpectedEOF)
	}
	return Cursor{n: root}, nil
}

// Exists reports whether the cursor points at an element.
func (c Cursor) Exists() bool {
	return c.n != nil
}

// Descend returns a cursor at the first direct child named tag.
func (c Cursor) Descend(tag string) Cursor {
	if c.n == nil {
		return Cursor{}
	}
	for _, child := range c.n.children {
		if child.name == tag {
			return Cursor{n: child}
		}
	}
	return Cursor{}
}

// Path descends through tags in order.
func (c Cursor) Path(tags ...string) Cursor {
	for _, tag := range tags {
		c = c.Descend(tag)
	}
	return c
}

// Descendants returns every element named tag below the cursor, in document
// order.
func (c Cursor) Descendants(tag string) []Cursor {
	if c.n == nil {
		return nil
	}
	var out []Cursor
	var walk func(n *xmlNode)
	walk = func(n *xmlNode) {
		for _, child := range n.children {
			if child.name == tag {
				out = append(out, Cursor{n: child})
			}
			walk(child)
		}
	}
	walk(c.n)
	return out
}

// Text returns the element's own character data with surrounding whitespace
// removed. ok is false when the cursor is empty or there is no text.
func (c Cursor) Text() (text string, ok bool) {
	if c.n == nil {
		return "", false
	}
	text = strings.TrimSpace(c.n.text.String())
	return text, text != ""
}
