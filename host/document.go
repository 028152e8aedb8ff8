package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/booster/agent"
	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/dom"
	"github.com/hazyhaar/booster/eventloop"
)

// Document is one hosted document: its execution context, the
// document-side port, the fanout towards controllers and the
// controller-side target. The agent is created on the first inbound
// message and dropped when the document navigates away.
type Document struct {
	id        string
	createdAt time.Time
	loop      *eventloop.Loop
	doc       dom.Document
	port      *channel.Port
	out       *channel.Fanout
	target    *channel.Target
	logger    *slog.Logger
	agentOpts agent.Options
	release   func()

	// agent is owned by the loop.
	agent *agent.Agent

	closeOnce sync.Once
}

func newDocument(id string, doc dom.Document, loop *eventloop.Loop, hub channel.Deliverer, opts agent.Options, logger *slog.Logger) *Document {
	d := &Document{
		id:        id,
		createdAt: time.Now(),
		loop:      loop,
		doc:       doc,
		port:      channel.NewPort(id, loop, logger),
		out:       channel.NewFanout(),
		logger:    logger.With("document", id),
		agentOpts: opts,
	}
	if hub != nil {
		d.out.Add(hub)
	}
	d.port.Connect(d.out)
	d.target = channel.NewTarget(id, channel.ControllerSource, d.port, logger)
	d.port.OnFirstMessage(d.installAgent)
	return d
}

// installAgent runs on the loop right before the first inbound message of
// the current page is dispatched.
func (d *Document) installAgent() {
	opts := d.agentOpts
	opts.DocumentID = d.id
	opts.Logger = d.logger
	d.agent = agent.New(d.doc, d.port, d.loop, opts)
	d.agent.Install()
}

// navigated runs on the loop when the page behind the document is
// replaced. The old agent's listeners died with the page.
func (d *Document) navigated(url string) {
	if d.agent != nil {
		d.agent.Close()
		d.agent = nil
	}
	d.port.Reset()
	d.logger.Info("host: document navigated", "url", url)
}

// ID returns the document id, also the Source of its messages.
func (d *Document) ID() string { return d.id }

// Sender is the controller's view of the document.
func (d *Document) Sender() channel.Sender { return d.target }

// Port is the document-side endpoint; remote controllers deliver to it.
func (d *Document) Port() *channel.Port { return d.port }

// Outbound is the fanout the document's messages go to.
func (d *Document) Outbound() *channel.Fanout { return d.out }

// Do runs fn on the document's execution context and waits for it.
func (d *Document) Do(ctx context.Context, fn func(doc dom.Document)) error {
	return d.loop.Do(ctx, func() { fn(d.doc) })
}

// Info describes a hosted document.
type Info struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	Agent     *agent.Snapshot `json:"agent,omitempty"`
}

// Info reads the document's URL and agent state on its loop.
func (d *Document) Info(ctx context.Context) (Info, error) {
	info := Info{ID: d.id, CreatedAt: d.createdAt}
	err := d.loop.Do(ctx, func() {
		info.URL = d.doc.URL()
		if d.agent != nil {
			snap := d.agent.Snapshot()
			info.Agent = &snap
		}
	})
	return info, err
}

// close tears the document down: the agent removes its overlay and
// listeners, the port refuses further messages and the loop stops.
//
// If the loop already stopped (the host context was cancelled first),
// nothing drives it any more and the agent is closed on the caller's
// goroutine, so a page left open does not keep the zapper's listeners.
func (d *Document) close(ctx context.Context) {
	d.closeOnce.Do(func() {
		closeAgent := func() {
			if d.agent != nil {
				d.agent.Close()
			}
		}
		switch err := d.loop.Do(ctx, closeAgent); {
		case errors.Is(err, eventloop.ErrClosed):
			closeAgent()
		case err != nil:
			d.logger.Debug("host: agent close skipped", "error", err)
		}
		d.port.Close()
		d.loop.Close()
		if d.release != nil {
			d.release()
		}
	})
}
