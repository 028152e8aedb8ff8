package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hazyhaar/booster/message"
)

const (
	peerQueue    = 256
	writeTimeout = 5 * time.Second
)

// Peer is a websocket connection seen as a Deliverer. Outbound messages
// are queued and written by a single goroutine, so Deliver never blocks
// the caller's loop. A full queue drops the message.
type Peer struct {
	conn   *websocket.Conn
	codec  Codec
	logger *slog.Logger

	out  chan outbound
	done chan struct{}
	once sync.Once
}

// outbound is one writer queue item: a message, or a flush marker closed
// once everything queued before it has been written.
type outbound struct {
	msg     message.Message
	flushed chan struct{}
}

// NewPeer wraps conn and starts its writer. The writer stops when ctx ends
// or Close is called.
func NewPeer(ctx context.Context, conn *websocket.Conn, codec Codec, logger *slog.Logger) *Peer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Peer{
		conn:   conn,
		codec:  codec,
		logger: logger,
		out:    make(chan outbound, peerQueue),
		done:   make(chan struct{}),
	}
	go p.writeLoop(ctx)
	return p
}

// Deliver queues msg for writing.
func (p *Peer) Deliver(msg message.Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- outbound{msg: msg}:
		return true
	default:
		p.logger.Warn("channel: peer queue full, message dropped", "name", msg.Name)
		return false
	}
}

// ReadLoop decodes inbound frames and hands them to into, in arrival
// order, until the connection ends. A normal close returns nil.
// Undecodable frames are skipped.
func (p *Peer) ReadLoop(ctx context.Context, into Deliverer) error {
	defer p.stop()
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("channel: read: %w", err)
		}
		msg, err := p.codec.Unmarshal(data)
		if err != nil {
			p.logger.Debug("channel: frame skipped", "error", err)
			continue
		}
		if !into.Deliver(msg) {
			p.logger.Debug("channel: inbound message dropped", "name", msg.Name, "source", msg.Source)
		}
	}
}

// Close waits briefly for queued messages to be written, then closes the
// connection normally.
func (p *Peer) Close() error {
	timeout := time.NewTimer(writeTimeout)
	defer timeout.Stop()
	flushed := make(chan struct{})
	select {
	case p.out <- outbound{flushed: flushed}:
		select {
		case <-flushed:
		case <-p.done:
		case <-timeout.C:
		}
	case <-p.done:
	case <-timeout.C:
	}
	p.stop()
	return p.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (p *Peer) stop() {
	p.once.Do(func() { close(p.done) })
}

func (p *Peer) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.stop()
			return
		case <-p.done:
			return
		case item := <-p.out:
			if item.flushed != nil {
				close(item.flushed)
				continue
			}
			if err := p.write(ctx, item.msg); err != nil {
				p.logger.Debug("channel: write failed", "name", item.msg.Name, "error", err)
				p.stop()
				return
			}
		}
	}
}

func (p *Peer) write(ctx context.Context, msg message.Message) error {
	data, err := p.codec.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return p.conn.Write(wctx, p.codec.MessageType(), data)
}

// Bridge serves one accepted websocket connection: inbound commands are
// delivered to in, and the connection is attached to out until it closes.
// Frames carrying document signals are dropped; only the document emits
// those.
func Bridge(ctx context.Context, conn *websocket.Conn, codec Codec, in Deliverer, out *Fanout, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	peer := NewPeer(ctx, conn, codec, logger)
	remove := out.Add(peer)
	defer remove()

	return peer.ReadLoop(ctx, DelivererFunc(func(msg message.Message) bool {
		if !msg.Name.IsCommand() {
			return false
		}
		return in.Deliver(msg)
	}))
}

// Remote is a controller-side endpoint reached over a websocket.
type Remote struct {
	peer   *Peer
	codec  Codec
	cancel context.CancelFunc
	done   chan error
	logger *slog.Logger
}

// DialOptions configures Dial.
type DialOptions struct {
	Codec  Codec
	Header http.Header
	Logger *slog.Logger
}

// Dial connects to a boost channel endpoint. Inbound messages are
// delivered to into.
func Dial(ctx context.Context, url string, into Deliverer, opts DialOptions) (*Remote, error) {
	codec := opts.Codec
	if codec == nil {
		codec = JSON
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{codec.Subprotocol()},
		HTTPHeader:   opts.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("channel: dial %s: %w", url, err)
	}
	if negotiated, ok := CodecFor(conn.Subprotocol()); ok {
		codec = negotiated
	}

	rctx, cancel := context.WithCancel(context.Background())
	r := &Remote{
		peer:   NewPeer(rctx, conn, codec, logger),
		codec:  codec,
		cancel: cancel,
		done:   make(chan error, 1),
		logger: logger,
	}
	go func() {
		r.done <- r.peer.ReadLoop(rctx, into)
	}()
	return r, nil
}

// Codec returns the negotiated codec.
func (r *Remote) Codec() Codec { return r.codec }

// Send delivers a command to the remote document.
func (r *Remote) Send(name message.Name, payload any) {
	send(r.peer, ControllerSource, name, payload, r.logger)
}

// Done yields the read loop's result once the connection ends.
func (r *Remote) Done() <-chan error { return r.done }

// Close ends the connection.
func (r *Remote) Close() error {
	err := r.peer.Close()
	r.cancel()
	return err
}
