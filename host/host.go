// Package host keeps the registry of documents boost controls. Each
// document runs on its own event loop with its own channel port; the
// controller reaches it through a Target and hears it through the hub it
// registered with the host.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/booster/agent"
	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/dom"
	"github.com/hazyhaar/booster/dom/roddom"
	"github.com/hazyhaar/booster/eventloop"
	"github.com/hazyhaar/booster/idgen"
	"github.com/hazyhaar/booster/internal/browser"
)

// ErrDocumentNotFound is returned for an unknown document id, or by Active
// when no document is active.
var ErrDocumentNotFound = errors.New("host: document not found")

// ActiveID is the alias Get resolves to the active document.
const ActiveID = "active"

// ErrClosed is returned once the host has shut down.
var ErrClosed = errors.New("host: closed")

// Options configure a Host.
type Options struct {
	Logger *slog.Logger
	// Hub receives every message documents send, typically the
	// controller's port.
	Hub channel.Deliverer
	// Agent is the template for the agents the host creates. DocumentID
	// and Logger are set per document.
	Agent agent.Options
	// Browser opens tabs for Open and Adopt. Nil disables both.
	Browser *browser.Manager
	// IDs generates document ids. Default idgen.Document.
	IDs idgen.Generator
	// OnClose is called after a document is closed.
	OnClose func(d *Document)
}

// Host is the document registry.
type Host struct {
	ctx    context.Context
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	docs   map[string]*Document
	order  []string
	active string
	closed bool
}

// New creates a Host. Document loops stop when ctx is cancelled.
func New(ctx context.Context, opts Options) *Host {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IDs == nil {
		opts.IDs = idgen.Document
	}
	return &Host{
		ctx:    ctx,
		opts:   opts,
		logger: opts.Logger,
		docs:   make(map[string]*Document),
	}
}

// Attach hosts doc. The first attached document becomes active.
func (h *Host) Attach(doc dom.Document) (*Document, error) {
	id := h.opts.IDs()
	loop := eventloop.New("doc:"+id, h.logger)
	return h.register(newDocument(id, doc, loop, h.opts.Hub, h.opts.Agent, h.logger))
}

func (h *Host) register(d *Document) (*Document, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		d.loop.Close()
		if d.release != nil {
			d.release()
		}
		return nil, ErrClosed
	}
	h.docs[d.id] = d
	h.order = append(h.order, d.id)
	if h.active == "" {
		h.active = d.id
	}
	h.mu.Unlock()

	go d.loop.Run(h.ctx)
	h.logger.Info("host: document attached", "document", d.id)
	return d, nil
}

// Open opens url in a new browser tab and hosts it.
func (h *Host) Open(ctx context.Context, url string) (*Document, error) {
	if h.opts.Browser == nil {
		return nil, fmt.Errorf("host: open %s: no browser", url)
	}
	page, err := h.opts.Browser.OpenTab(ctx, url)
	if err != nil {
		return nil, err
	}
	d, err := h.attachPage(page, true)
	if err != nil {
		page.Close()
		return nil, err
	}
	return d, nil
}

// Adopt hosts every page already open in the browser. Adopted pages are
// left open when their document is closed.
func (h *Host) Adopt() ([]*Document, error) {
	if h.opts.Browser == nil {
		return nil, fmt.Errorf("host: adopt: no browser")
	}
	pages, err := h.opts.Browser.Pages()
	if err != nil {
		return nil, err
	}
	var out []*Document
	for _, p := range pages {
		d, err := h.attachPage(p, false)
		if err != nil {
			h.logger.Warn("host: adopt page failed", "target", p.TargetID, "error", err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (h *Host) attachPage(page *rod.Page, owned bool) (*Document, error) {
	id := h.opts.IDs()
	loop := eventloop.New("doc:"+id, h.logger)

	var d *Document
	rd, err := roddom.New(h.ctx, page, loop, roddom.Options{
		Logger:     h.logger.With("document", id),
		OnNavigate: func(url string) { d.navigated(url) },
	})
	if err != nil {
		return nil, fmt.Errorf("host: attach page: %w", err)
	}
	d = newDocument(id, rd, loop, h.opts.Hub, h.opts.Agent, h.logger)
	d.release = func() {
		rd.Close()
		if owned {
			if err := page.Close(); err != nil {
				h.logger.Debug("host: close page", "document", id, "error", err)
			}
		}
	}
	return h.register(d)
}

// Get returns the document with id. ActiveID names the active document.
func (h *Host) Get(id string) (*Document, error) {
	if id == ActiveID {
		return h.Active()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return d, nil
}

// List returns every document in attach order.
func (h *Host) List() []*Document {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Document, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.docs[id])
	}
	return out
}

// Active returns the active document.
func (h *Host) Active() (*Document, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.docs[h.active]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return d, nil
}

// IsActive reports whether id is the active document.
func (h *Host) IsActive(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active == id
}

// SetActive makes id the active document.
func (h *Host) SetActive(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	h.active = id
	return nil
}

// Close closes one document. If it was active, the most recently attached
// remaining document becomes active.
func (h *Host) Close(ctx context.Context, id string) error {
	h.mu.Lock()
	d, ok := h.docs[id]
	if !ok {
		h.mu.Unlock()
		return ErrDocumentNotFound
	}
	delete(h.docs, id)
	h.order = slices.DeleteFunc(h.order, func(s string) bool { return s == id })
	if h.active == id {
		h.active = ""
		if n := len(h.order); n > 0 {
			h.active = h.order[n-1]
		}
	}
	h.mu.Unlock()

	d.close(ctx)
	if h.opts.OnClose != nil {
		h.opts.OnClose(d)
	}
	h.logger.Info("host: document closed", "document", id)
	return nil
}

// Shutdown closes every document and refuses new ones.
func (h *Host) Shutdown(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	ids := slices.Clone(h.order)
	h.mu.Unlock()

	for _, id := range ids {
		if err := h.Close(ctx, id); err != nil && !errors.Is(err, ErrDocumentNotFound) {
			h.logger.Warn("host: close failed", "document", id, "error", err)
		}
	}
}
