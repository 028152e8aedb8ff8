// Package roddom implements dom.Document over a Chrome tab driven by rod.
//
// Element operations are small functions evaluated on the element's remote
// object. Document listeners are registered by an injected script that
// forwards events through a Runtime binding; the Go side parses them on
// rod's event goroutine and posts dispatch to the document's execution
// context, so listeners run there like every other document operation.
package roddom

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/booster/dom"
)

//go:embed events.js
var eventsJS string

const bindingName = "__boost_binding"

// Poster schedules work on the document's execution context.
type Poster interface {
	Post(fn func()) bool
}

// Options configure a Document.
type Options struct {
	Logger *slog.Logger
	// OnNavigate is posted to the execution context when the main frame
	// navigates. Listeners registered before are gone at that point.
	OnNavigate func(url string)
}

type listener struct {
	typ dom.EventType
	fn  dom.Listener
}

// Document is a live Chrome page.
type Document struct {
	page   *rod.Page
	loop   Poster
	logger *slog.Logger
	onNav  func(string)

	mu        sync.Mutex
	listeners map[int]listener
	nextID    int

	cancel context.CancelFunc
	done   chan struct{}
}

var _ dom.Document = (*Document)(nil)

// New installs the event bridge on page and starts forwarding its events
// to loop. Close stops forwarding; it does not close the page.
func New(ctx context.Context, page *rod.Page, loop Poster, opts Options) (*Document, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	d := &Document{
		page:      page,
		loop:      loop,
		logger:    opts.Logger,
		onNav:     opts.OnNavigate,
		listeners: make(map[int]listener),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if err := (proto.PageEnable{}).Call(page); err != nil {
		cancel()
		return nil, fmt.Errorf("roddom: enable page domain: %w", err)
	}
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		d.logger.Warn("roddom: addBinding failed (may already exist)", "error", err)
	}
	if _, err := page.EvalOnNewDocument("(" + eventsJS + ")()"); err != nil {
		cancel()
		return nil, fmt.Errorf("roddom: install script: %w", err)
	}

	wait := page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			d.onBinding(e.Payload)
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			d.onNavigate(e.Frame.URL)
		},
	)
	go func() {
		defer close(d.done)
		wait()
	}()

	// The current document predates EvalOnNewDocument.
	if _, err := page.Eval(eventsJS); err != nil {
		d.Close()
		return nil, fmt.Errorf("roddom: inject script: %w", err)
	}
	return d, nil
}

// Page returns the underlying rod page.
func (d *Document) Page() *rod.Page { return d.page }

// Close stops event forwarding.
func (d *Document) Close() {
	d.cancel()
	<-d.done
}

func (d *Document) onBinding(payload string) {
	ev, err := parseBinding(payload)
	if err != nil {
		d.logger.Debug("roddom: bad binding payload", "error", err)
		return
	}
	d.mu.Lock()
	l, ok := d.listeners[ev.Listener]
	d.mu.Unlock()
	if !ok {
		return
	}
	d.loop.Post(func() {
		d.mu.Lock()
		_, still := d.listeners[ev.Listener]
		d.mu.Unlock()
		if !still {
			return
		}
		out := dom.Event{Type: l.typ}
		if ev.Target != 0 {
			out.Target = d.take(ev.Target)
		}
		if ev.Related != 0 {
			out.Related = d.take(ev.Related)
		}
		l.fn(out)
	})
}

func (d *Document) onNavigate(url string) {
	d.mu.Lock()
	clear(d.listeners)
	d.mu.Unlock()
	d.logger.Debug("roddom: main frame navigated", "url", url)
	if d.onNav != nil {
		d.loop.Post(func() { d.onNav(url) })
	}
}

// take resolves a script element reference. A reference that no longer
// resolves yields a nil Element.
func (d *Document) take(ref int) dom.Element {
	el, err := d.elementByJS(`(r) => window.__boost ? window.__boost.take(r) : null`, ref)
	if err != nil {
		d.logger.Debug("roddom: resolve event target", "ref", ref, "error", err)
		return nil
	}
	if el == nil {
		return nil
	}
	return el
}

// elementByJS evaluates js and wraps the resulting node. A null result
// returns (nil, nil).
func (d *Document) elementByJS(js string, args ...any) (*Element, error) {
	res, err := d.page.Evaluate(rod.Eval(js, args...).ByObject())
	if err != nil {
		return nil, err
	}
	if res.ObjectID == "" || res.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil, nil
	}
	el, err := d.page.ElementFromObject(res)
	if err != nil {
		return nil, err
	}
	return &Element{doc: d, el: el}, nil
}

// element converts a possibly nil *Element without producing a typed nil.
func element(el *Element, err error) dom.Element {
	if err != nil || el == nil {
		return nil
	}
	return el
}

func (d *Document) URL() string {
	res, err := d.page.Eval(`() => location.href`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (d *Document) Root() dom.Element {
	return element(d.elementByJS(`() => document.documentElement`))
}

func (d *Document) Body() dom.Element {
	return element(d.elementByJS(`() => document.body`))
}

func (d *Document) Head() dom.Element {
	return element(d.elementByJS(`() => document.head`))
}

func (d *Document) CreateElement(tag string) (dom.Element, error) {
	el, err := d.elementByJS(`(t) => document.createElement(t)`, tag)
	if err != nil {
		return nil, fmt.Errorf("roddom: create %s: %w", tag, err)
	}
	if el == nil {
		return nil, fmt.Errorf("roddom: create %s: no element", tag)
	}
	return el, nil
}

func (d *Document) AddEventListener(typ dom.EventType, fn dom.Listener, opts dom.ListenerOptions) (func(), error) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners[id] = listener{typ: typ, fn: fn}
	d.mu.Unlock()

	_, err := d.page.Eval(`(id, type, capture, intercept) => window.__boost.listen(id, type, capture, intercept)`,
		id, string(typ), opts.Capture, opts.Intercept)
	if err != nil {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
		return nil, fmt.Errorf("roddom: listen %s: %w", typ, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
			if _, err := d.page.Eval(`(id) => window.__boost && window.__boost.unlisten(id)`, id); err != nil {
				d.logger.Debug("roddom: unlisten failed", "type", typ, "error", err)
			}
		})
	}, nil
}

func (d *Document) ScrollOffset() (x, y float64) {
	res, err := d.page.Eval(`() => ({x: window.scrollX, y: window.scrollY})`)
	if err != nil {
		return 0, 0
	}
	return res.Value.Get("x").Num(), res.Value.Get("y").Num()
}

// bindingEvent is the JSON the page script forwards.
type bindingEvent struct {
	Listener int    `json:"listener"`
	Type     string `json:"type"`
	Target   int    `json:"target"`
	Related  int    `json:"related"`
}

func parseBinding(payload string) (bindingEvent, error) {
	var ev bindingEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	if ev.Listener <= 0 {
		return ev, fmt.Errorf("missing listener id")
	}
	return ev, nil
}
