package memdom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/booster/dom"
)

// Element wraps one html.Node of a Document.
type Element struct {
	doc *Document
	n   *html.Node
}

func (e *Element) TagName() string   { return strings.ToUpper(e.n.Data) }
func (e *Element) ID() string        { return attr(e.n, "id") }
func (e *Element) ClassName() string { return attr(e.n, "class") }

func (e *Element) HasAttribute(name string) bool {
	name = strings.ToLower(name)
	for _, a := range e.n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// Attribute returns the attribute value, or "".
func (e *Element) Attribute(name string) string { return attr(e.n, strings.ToLower(name)) }

func (e *Element) SetAttribute(name, value string) error {
	name = strings.ToLower(name)
	for i, a := range e.n.Attr {
		if a.Key == name {
			e.n.Attr[i].Val = value
			return nil
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

func (e *Element) RemoveAttribute(name string) error {
	name = strings.ToLower(name)
	for i, a := range e.n.Attr {
		if a.Key == name {
			e.n.Attr = append(e.n.Attr[:i], e.n.Attr[i+1:]...)
			return nil
		}
	}
	return nil
}

type declaration struct {
	name      string
	value     string
	important bool
}

func (e *Element) declarations() []declaration {
	var out []declaration
	for _, part := range strings.Split(attr(e.n, "style"), ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		important := false
		if v, found := strings.CutSuffix(value, "!important"); found {
			value = strings.TrimSpace(v)
			important = true
		}
		if name != "" {
			out = append(out, declaration{name: name, value: value, important: important})
		}
	}
	return out
}

func (e *Element) SetStyleProperty(name, value string, important bool) error {
	name = strings.ToLower(name)
	decls := e.declarations()
	replaced := false
	for i := range decls {
		if decls[i].name == name {
			decls[i].value, decls[i].important = value, important
			replaced = true
		}
	}
	if !replaced {
		decls = append(decls, declaration{name: name, value: value, important: important})
	}

	var b strings.Builder
	for _, d := range decls {
		b.WriteString(d.name)
		b.WriteString(": ")
		b.WriteString(d.value)
		if d.important {
			b.WriteString(" !important")
		}
		b.WriteString("; ")
	}
	return e.SetAttribute("style", strings.TrimSpace(b.String()))
}

func (e *Element) StyleProperty(name string) string {
	name = strings.ToLower(name)
	for _, d := range e.declarations() {
		if d.name == name {
			return d.value
		}
	}
	return ""
}

// StyleImportant reports whether the inline property carries !important.
func (e *Element) StyleImportant(name string) bool {
	name = strings.ToLower(name)
	for _, d := range e.declarations() {
		if d.name == name {
			return d.important
		}
	}
	return false
}

func (e *Element) SetTextContent(text string) error {
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return nil
}

// TextContent returns the concatenated text of the element.
func (e *Element) TextContent() string { return textContent(e.n) }

func (e *Element) AppendChild(child dom.Element) error {
	c := node(child)
	if c == nil {
		return fmt.Errorf("memdom: foreign element")
	}
	if c.Parent != nil {
		c.Parent.RemoveChild(c)
	}
	e.n.AppendChild(c)
	return nil
}

func (e *Element) Remove() error {
	if e.n.Parent == nil {
		return nil
	}
	e.n.Parent.RemoveChild(e.n)
	return nil
}

// Attached reports whether the element is part of its document.
func (e *Element) Attached() bool { return e.doc.attached(e.n) }

func (e *Element) BoundingClientRect() (dom.Rect, error) {
	if !e.doc.attached(e.n) {
		return dom.Rect{}, dom.ErrDetached
	}
	return e.doc.rects[e.n], nil
}

func (e *Element) Contains(other dom.Element) bool {
	o := node(other)
	for p := o; p != nil; p = p.Parent {
		if p == e.n {
			return true
		}
	}
	return false
}

func (e *Element) Equal(other dom.Element) bool {
	o := node(other)
	return o != nil && o == e.n
}

func (e *Element) OuterHTML() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, e.n); err != nil {
		return "", fmt.Errorf("memdom: render: %w", err)
	}
	return buf.String(), nil
}
