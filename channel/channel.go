// Package channel is the message transport between a controller and a
// document agent. It is fire-and-forget and at-most-once: Send never
// reports failure, and a message addressed to a torn-down endpoint is
// dropped. Messages sent through one endpoint in one direction arrive in
// send order.
//
// A Port is one side of a channel. Inbound messages are dispatched on the
// Port's execution context (an eventloop.Loop), one at a time, to every
// handler registered for the message name. The Port does not deduplicate
// handlers: callers that must register once guard that themselves.
package channel

import (
	"log/slog"
	"sync"

	"github.com/hazyhaar/booster/message"
)

// ControllerSource is the Source stamped on messages sent by a controller.
const ControllerSource = "controller"

// Handler receives one inbound message.
type Handler func(msg message.Message)

// Sender sends named messages to the other side.
type Sender interface {
	Send(name message.Name, payload any)
}

// Subscriber registers handlers for inbound messages.
type Subscriber interface {
	OnMessage(name message.Name, h Handler)
}

// Endpoint is both sides of the contract for one endpoint.
type Endpoint interface {
	Sender
	Subscriber
}

// Deliverer accepts a message for asynchronous processing. It reports
// false when the receiving side is gone.
type Deliverer interface {
	Deliver(msg message.Message) bool
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(msg message.Message) bool

func (f DelivererFunc) Deliver(msg message.Message) bool { return f(msg) }

// Poster runs tasks on a single-threaded execution context.
type Poster interface {
	Post(fn func()) bool
}

// Port is one endpoint of a channel.
type Port struct {
	source string
	loop   Poster
	logger *slog.Logger

	mu       sync.Mutex
	peer     Deliverer
	handlers map[message.Name][]Handler
	firstFn  func()
	armed    bool
	closed   bool
}

// NewPort creates a Port whose handlers run on loop. source is stamped on
// every outbound message.
func NewPort(source string, loop Poster, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.Default()
	}
	return &Port{
		source:   source,
		loop:     loop,
		logger:   logger,
		handlers: make(map[message.Name][]Handler),
	}
}

// Source returns the identity stamped on outbound messages.
func (p *Port) Source() string { return p.source }

// Connect sets where Send delivers.
func (p *Port) Connect(peer Deliverer) {
	p.mu.Lock()
	p.peer = peer
	p.mu.Unlock()
}

// Send delivers a message to the connected peer. Without a peer, or once
// the port is closed, the message is dropped.
func (p *Port) Send(name message.Name, payload any) {
	p.mu.Lock()
	peer, closed := p.peer, p.closed
	p.mu.Unlock()
	if closed {
		p.logger.Debug("channel: port closed, message dropped", "source", p.source, "name", name)
		return
	}
	send(peer, p.source, name, payload, p.logger)
}

// OnMessage appends h to the handlers for name.
func (p *Port) OnMessage(name message.Name, h Handler) {
	p.mu.Lock()
	p.handlers[name] = append(p.handlers[name], h)
	p.mu.Unlock()
}

// HandlerCount returns how many handlers are registered for name.
func (p *Port) HandlerCount(name message.Name) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers[name])
}

// OnFirstMessage arranges for fn to run on the port's loop exactly once,
// right before the first inbound message is dispatched.
func (p *Port) OnFirstMessage(fn func()) {
	p.mu.Lock()
	p.firstFn = fn
	p.armed = fn != nil
	p.mu.Unlock()
}

// Deliver queues an inbound message for dispatch on the port's loop.
func (p *Port) Deliver(msg message.Message) bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return false
	}
	return p.loop.Post(func() { p.dispatch(msg) })
}

// Reset drops every handler and re-arms the first-message hook. Used when
// the document behind the port is replaced.
func (p *Port) Reset() {
	p.mu.Lock()
	p.handlers = make(map[message.Name][]Handler)
	p.armed = p.firstFn != nil
	p.mu.Unlock()
}

// Close detaches the port: inbound messages are refused and outbound ones
// dropped.
func (p *Port) Close() {
	p.mu.Lock()
	p.closed = true
	p.handlers = make(map[message.Name][]Handler)
	p.peer = nil
	p.mu.Unlock()
}

func (p *Port) dispatch(msg message.Message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var first func()
	if p.armed {
		first = p.firstFn
		p.armed = false
	}
	p.mu.Unlock()

	if first != nil {
		first()
	}

	p.mu.Lock()
	hs := append([]Handler(nil), p.handlers[msg.Name]...)
	p.mu.Unlock()

	if len(hs) == 0 {
		p.logger.Debug("channel: no handler", "source", p.source, "name", msg.Name)
		return
	}
	for _, h := range hs {
		h(msg)
	}
}

// Target is a send-only endpoint bound to one peer, e.g. the controller's
// view of a single document.
type Target struct {
	id     string
	source string
	to     Deliverer
	logger *slog.Logger
}

// NewTarget creates a Target delivering to to. id names the peer.
func NewTarget(id, source string, to Deliverer, logger *slog.Logger) *Target {
	if logger == nil {
		logger = slog.Default()
	}
	return &Target{id: id, source: source, to: to, logger: logger}
}

// ID returns the peer's identity.
func (t *Target) ID() string { return t.id }

// Send delivers a message to the peer, dropping it if the peer is gone.
func (t *Target) Send(name message.Name, payload any) {
	send(t.to, t.source, name, payload, t.logger)
}

func send(peer Deliverer, source string, name message.Name, payload any, logger *slog.Logger) {
	if peer == nil {
		logger.Debug("channel: no peer, message dropped", "source", source, "name", name)
		return
	}
	msg, err := message.New(name, source, payload)
	if err != nil {
		logger.Debug("channel: message dropped", "source", source, "name", name, "error", err)
		return
	}
	if !peer.Deliver(msg) {
		logger.Debug("channel: peer gone, message dropped", "source", source, "name", name)
	}
}

// Fanout delivers every message to a changing set of peers. It reports
// success if at least one peer accepted the message.
type Fanout struct {
	mu    sync.RWMutex
	peers map[uint64]Deliverer
	next  uint64
}

// NewFanout creates a Fanout with initial peers.
func NewFanout(peers ...Deliverer) *Fanout {
	f := &Fanout{peers: make(map[uint64]Deliverer)}
	for _, p := range peers {
		f.Add(p)
	}
	return f
}

// Add attaches d and returns a function that detaches it.
func (f *Fanout) Add(d Deliverer) (remove func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.peers[id] = d
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.peers, id)
		f.mu.Unlock()
	}
}

// Len returns the number of attached peers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.peers)
}

func (f *Fanout) Deliver(msg message.Message) bool {
	f.mu.RLock()
	peers := make([]Deliverer, 0, len(f.peers))
	for _, p := range f.peers {
		peers = append(peers, p)
	}
	f.mu.RUnlock()

	delivered := false
	for _, p := range peers {
		if p.Deliver(msg) {
			delivered = true
		}
	}
	return delivered
}
