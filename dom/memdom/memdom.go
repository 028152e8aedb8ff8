// Package memdom is an in-memory dom.Document backed by golang.org/x/net/html.
// Geometry and scrolling are set explicitly, and pointer events are
// dispatched synchronously by the test driving it.
package memdom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/booster/dom"
)

// Document is an in-memory page.
type Document struct {
	url     string
	root    *html.Node
	rects   map[*html.Node]dom.Rect
	scrollX float64
	scrollY float64

	listeners []*listener
	page      map[dom.EventType][]func(dom.Event)
}

type listener struct {
	typ     dom.EventType
	fn      dom.Listener
	opts    dom.ListenerOptions
	removed bool
}

// Parse builds a Document from markup.
func Parse(url, markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	return &Document{
		url:   url,
		root:  root,
		rects: make(map[*html.Node]dom.Rect),
		page:  make(map[dom.EventType][]func(dom.Event)),
	}, nil
}

// MustParse is Parse for fixed test markup.
func MustParse(url, markup string) *Document {
	d, err := Parse(url, markup)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) URL() string { return d.url }

func (d *Document) Root() dom.Element {
	if n := d.documentElement(); n != nil {
		return d.wrap(n)
	}
	return nil
}

func (d *Document) Body() dom.Element { return d.child(atom.Body) }
func (d *Document) Head() dom.Element { return d.child(atom.Head) }

func (d *Document) CreateElement(tag string) (dom.Element, error) {
	tag = strings.ToLower(tag)
	if tag == "" {
		return nil, fmt.Errorf("memdom: empty tag")
	}
	return d.wrap(&html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}), nil
}

func (d *Document) AddEventListener(typ dom.EventType, l dom.Listener, opts dom.ListenerOptions) (func(), error) {
	ln := &listener{typ: typ, fn: l, opts: opts}
	d.listeners = append(d.listeners, ln)
	return func() {
		if ln.removed {
			return
		}
		ln.removed = true
		for i, x := range d.listeners {
			if x == ln {
				d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
				break
			}
		}
	}, nil
}

func (d *Document) ScrollOffset() (float64, float64) { return d.scrollX, d.scrollY }

// SetScroll sets the scroll offset.
func (d *Document) SetScroll(x, y float64) {
	d.scrollX, d.scrollY = x, y
}

// SetRect sets the bounding box el reports.
func (d *Document) SetRect(el dom.Element, r dom.Rect) {
	d.rects[node(el)] = r
}

// ListenerCount returns the number of attached document listeners of typ.
func (d *Document) ListenerCount(typ dom.EventType) int {
	n := 0
	for _, l := range d.listeners {
		if l.typ == typ {
			n++
		}
	}
	return n
}

// OnPage registers a handler standing in for the page's own script. It
// runs between capture and bubble listeners unless an intercepting
// listener stopped the event.
func (d *Document) OnPage(typ dom.EventType, fn func(dom.Event)) {
	d.page[typ] = append(d.page[typ], fn)
}

// Hover fires PointerEnter on el.
func (d *Document) Hover(el dom.Element) {
	d.Dispatch(dom.Event{Type: dom.PointerEnter, Target: el})
}

// Leave fires PointerLeave on el; related is where the pointer went, or nil.
func (d *Document) Leave(el, related dom.Element) {
	d.Dispatch(dom.Event{Type: dom.PointerLeave, Target: el, Related: related})
}

// Click fires Click on el and reports whether the page's default action
// would run.
func (d *Document) Click(el dom.Element) bool {
	return d.Dispatch(dom.Event{Type: dom.Click, Target: el})
}

// Dispatch delivers ev to document listeners and page handlers. It
// reports false if an intercepting listener prevented the default action.
// An intercepting listener also stops every listener after it, like
// stopImmediatePropagation in a browser.
func (d *Document) Dispatch(ev dom.Event) bool {
	snapshot := append([]*listener(nil), d.listeners...)
	intercepted := false

	run := func(capture bool) {
		for _, l := range snapshot {
			if l.removed || l.typ != ev.Type || l.opts.Capture != capture {
				continue
			}
			l.fn(ev)
			if l.opts.Intercept {
				intercepted = true
				return
			}
		}
	}

	run(true)
	if intercepted {
		return false
	}
	for _, fn := range d.page[ev.Type] {
		fn(ev)
	}
	run(false)
	return !intercepted
}

// GetElementByID returns the first element with the id, or nil.
func (d *Document) GetElementByID(id string) dom.Element {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return d.wrap(found)
}

// ElementsByTag returns every element with the tag in document order.
func (d *Document) ElementsByTag(tag string) []dom.Element {
	var out []dom.Element
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, d.wrap(n))
		}
		return true
	})
	return out
}

// StyleTexts returns the text of every <style> element in document order.
func (d *Document) StyleTexts() []string {
	var out []string
	for _, el := range d.ElementsByTag("style") {
		out = append(out, textContent(node(el)))
	}
	return out
}

// HTML renders the whole document.
func (d *Document) HTML() string {
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

func (d *Document) documentElement() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func (d *Document) child(a atom.Atom) dom.Element {
	de := d.documentElement()
	if de == nil {
		return nil
	}
	for c := de.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return d.wrap(c)
		}
	}
	return nil
}

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{doc: d, n: n}
}

func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

func node(el dom.Element) *html.Node {
	if e, ok := el.(*Element); ok && e != nil {
		return e.n
	}
	return nil
}
