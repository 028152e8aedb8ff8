package roddom

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/booster/dom"
)

// Element is a node of a live page.
type Element struct {
	doc *Document
	el  *rod.Element
}

var _ dom.Element = (*Element)(nil)

// Rod returns the underlying rod element.
func (e *Element) Rod() *rod.Element { return e.el }

func (e *Element) str(js string, args ...any) string {
	res, err := e.el.Eval(js, args...)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *Element) call(what, js string, args ...any) error {
	if _, err := e.el.Eval(js, args...); err != nil {
		return fmt.Errorf("roddom: %s: %w", what, err)
	}
	return nil
}

func (e *Element) TagName() string { return e.str(`() => this.tagName`) }
func (e *Element) ID() string      { return e.str(`() => this.id`) }

// ClassName is empty for elements whose className is not a string (SVG).
func (e *Element) ClassName() string {
	return e.str(`() => typeof this.className === "string" ? this.className : ""`)
}

func (e *Element) HasAttribute(name string) bool {
	v, err := e.el.Attribute(name)
	return err == nil && v != nil
}

func (e *Element) SetAttribute(name, value string) error {
	return e.call("set attribute", `(n, v) => this.setAttribute(n, v)`, name, value)
}

func (e *Element) RemoveAttribute(name string) error {
	return e.call("remove attribute", `(n) => this.removeAttribute(n)`, name)
}

func (e *Element) SetStyleProperty(name, value string, important bool) error {
	priority := ""
	if important {
		priority = "important"
	}
	return e.call("set style", `(n, v, p) => this.style.setProperty(n, v, p)`, name, value, priority)
}

func (e *Element) StyleProperty(name string) string {
	return e.str(`(n) => this.style.getPropertyValue(n)`, name)
}

func (e *Element) SetTextContent(text string) error {
	return e.call("set text", `(t) => { this.textContent = t; }`, text)
}

func (e *Element) AppendChild(child dom.Element) error {
	c, ok := child.(*Element)
	if !ok || c == nil {
		return fmt.Errorf("roddom: append: foreign element %T", child)
	}
	return e.call("append", `(c) => { this.appendChild(c); }`, c.el.Object)
}

func (e *Element) Remove() error {
	if err := e.el.Remove(); err != nil {
		return fmt.Errorf("roddom: remove: %w", err)
	}
	return nil
}

func (e *Element) BoundingClientRect() (dom.Rect, error) {
	res, err := e.el.Eval(`() => {
		if (!this.isConnected) return null;
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	}`)
	if err != nil {
		return dom.Rect{}, fmt.Errorf("roddom: rect: %w", err)
	}
	if res.Value.Nil() {
		return dom.Rect{}, dom.ErrDetached
	}
	v := res.Value
	return dom.Rect{X: v.Get("x").Num(), Y: v.Get("y").Num(), Width: v.Get("width").Num(), Height: v.Get("height").Num()}, nil
}

func (e *Element) Contains(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	res, err := e.el.Eval(`(o) => this.contains(o)`, o.el.Object)
	return err == nil && res.Value.Bool()
}

func (e *Element) Equal(other dom.Element) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	if o == e || o.el.Object.ObjectID == e.el.Object.ObjectID {
		return true
	}
	res, err := e.el.Eval(`(o) => this === o`, o.el.Object)
	return err == nil && res.Value.Bool()
}

func (e *Element) OuterHTML() (string, error) {
	html, err := e.el.HTML()
	if err != nil {
		return "", fmt.Errorf("roddom: outer html: %w", err)
	}
	return html, nil
}
