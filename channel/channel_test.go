package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hazyhaar/booster/eventloop"
	"github.com/hazyhaar/booster/message"
)

func startLoop(t *testing.T, name string) *eventloop.Loop {
	t.Helper()
	l := eventloop.New(name, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l
}

func barrier(t *testing.T, l *eventloop.Loop) {
	t.Helper()
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
}

func TestPort_OrderPreserved(t *testing.T) {
	docLoop := startLoop(t, "doc")
	doc := NewPort("doc", docLoop, nil)
	ctrl := NewTarget("doc", ControllerSource, doc, nil)

	var got []string
	doc.OnMessage(message.SetBackground, func(m message.Message) {
		var p message.BackgroundPayload
		if m.Decode(&p) {
			got = append(got, p.Color)
		}
	})

	want := []string{"#FFFFFF", "#FFFFCC", "", "#000000"}
	for _, c := range want {
		ctrl.Send(message.SetBackground, message.BackgroundPayload{Color: c})
	}
	barrier(t, docLoop)

	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("order: got %v, want %v", got, want)
	}
}

func TestPort_SourceStamped(t *testing.T) {
	ctrlLoop := startLoop(t, "ctrl")
	hub := NewPort(ControllerSource, ctrlLoop, nil)
	docLoop := startLoop(t, "doc")
	doc := NewPort("doc-7", docLoop, nil)
	doc.Connect(hub)

	var source string
	hub.OnMessage(message.ReplyScale, func(m message.Message) { source = m.Source })
	docLoop.Post(func() { doc.Send(message.ReplyScale, message.Scale(1)) })
	barrier(t, docLoop)
	barrier(t, ctrlLoop)

	if source != "doc-7" {
		t.Fatalf("source: got %q, want %q", source, "doc-7")
	}
}

func TestPort_DuplicateHandlersBothRun(t *testing.T) {
	l := startLoop(t, "doc")
	p := NewPort("doc", l, nil)

	n := 0
	p.OnMessage(message.ToggleAttribute, func(message.Message) { n++ })
	p.OnMessage(message.ToggleAttribute, func(message.Message) { n++ })
	p.Deliver(message.Message{Name: message.ToggleAttribute})
	barrier(t, l)

	if n != 2 {
		t.Fatalf("handler runs: got %d, want 2", n)
	}
	if c := p.HandlerCount(message.ToggleAttribute); c != 2 {
		t.Fatalf("HandlerCount: got %d, want 2", c)
	}
}

func TestPort_DropAfterClose(t *testing.T) {
	l := startLoop(t, "doc")
	p := NewPort("doc", l, nil)
	p.OnMessage(message.ToggleAttribute, func(message.Message) { t.Error("handler ran after close") })
	p.Close()

	if p.Deliver(message.Message{Name: message.ToggleAttribute}) {
		t.Fatal("Deliver to a closed port should report false")
	}
	NewTarget("doc", ControllerSource, p, nil).Send(message.ToggleAttribute, nil)
	barrier(t, l)
}

func TestPort_FirstMessageHookOnce(t *testing.T) {
	l := startLoop(t, "doc")
	p := NewPort("doc", l, nil)

	installs := 0
	p.OnFirstMessage(func() {
		installs++
		p.OnMessage(message.ToggleAttribute, func(message.Message) {})
	})
	for i := 0; i < 3; i++ {
		p.Deliver(message.Message{Name: message.ToggleAttribute})
	}
	barrier(t, l)
	if installs != 1 {
		t.Fatalf("installs: got %d, want 1", installs)
	}

	p.Reset()
	p.Deliver(message.Message{Name: message.ToggleAttribute})
	barrier(t, l)
	if installs != 2 {
		t.Fatalf("installs after Reset: got %d, want 2", installs)
	}
	if c := p.HandlerCount(message.ToggleAttribute); c != 1 {
		t.Fatalf("HandlerCount after Reset: got %d, want 1", c)
	}
}

func TestFanout(t *testing.T) {
	var mu sync.Mutex
	var a, b int
	f := NewFanout(DelivererFunc(func(message.Message) bool {
		mu.Lock()
		a++
		mu.Unlock()
		return true
	}))
	remove := f.Add(DelivererFunc(func(message.Message) bool {
		mu.Lock()
		b++
		mu.Unlock()
		return false
	}))

	if !f.Deliver(message.Message{Name: message.Ready}) {
		t.Fatal("fanout with one accepting peer should report true")
	}
	remove()
	f.Deliver(message.Message{Name: message.Ready})

	if a != 2 || b != 1 {
		t.Fatalf("deliveries: got a=%d b=%d, want a=2 b=1", a, b)
	}
	if f.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", f.Len())
	}
}

func TestCodecs(t *testing.T) {
	in, err := message.New(message.SetScale, ControllerSource, message.Scale(1.1))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []Codec{JSON, CBOR} {
		data, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("%s: marshal: %v", c.Subprotocol(), err)
		}
		out, err := c.Unmarshal(data)
		if err != nil {
			t.Fatalf("%s: unmarshal: %v", c.Subprotocol(), err)
		}
		var p message.ScalePayload
		if out.Name != in.Name || out.Source != in.Source || !out.Decode(&p) || *p.Scale != 1.1 {
			t.Fatalf("%s: got %+v", c.Subprotocol(), out)
		}
	}

	if _, err := JSON.Unmarshal([]byte(`{"source":"x"}`)); err == nil {
		t.Fatal("frame without name should not decode")
	}
	if _, ok := CodecFor("boost.v9"); ok {
		t.Fatal("unknown subprotocol should not resolve")
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Fatal("unknown codec name should fail")
	}
}

func TestWebsocketBridge(t *testing.T) {
	for _, codec := range []Codec{JSON, CBOR} {
		t.Run(codec.Subprotocol(), func(t *testing.T) {
			docLoop := startLoop(t, "doc")
			doc := NewPort("doc-1", docLoop, nil)
			out := NewFanout()
			doc.Connect(out)

			// Echo every toggle back as a scale reply.
			doc.OnMessage(message.ToggleAttribute, func(message.Message) {
				doc.Send(message.ReplyScale, message.Scale(1.2))
			})
			var spoofed atomic.Bool
			doc.OnMessage(message.Ready, func(message.Message) { spoofed.Store(true) })

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: Subprotocols()})
				if err != nil {
					return
				}
				c, _ := CodecFor(conn.Subprotocol())
				_ = Bridge(r.Context(), conn, c, doc, out, nil)
			}))
			defer srv.Close()

			replies := make(chan message.Message, 1)
			url := "ws" + strings.TrimPrefix(srv.URL, "http")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			remote, err := Dial(ctx, url, DelivererFunc(func(m message.Message) bool {
				select {
				case replies <- m:
				default:
				}
				return true
			}), DialOptions{Codec: codec})
			if err != nil {
				t.Fatal(err)
			}
			defer remote.Close()
			if remote.Codec().Subprotocol() != codec.Subprotocol() {
				t.Fatalf("negotiated %q, want %q", remote.Codec().Subprotocol(), codec.Subprotocol())
			}

			// Document signals from a remote controller never reach the
			// document.
			remote.Send(message.Ready, message.ReadyPayload{URL: "spoof"})

			// The bridge attaches the peer asynchronously; resend until it
			// is in the fanout.
			deadline := time.After(5 * time.Second)
			tick := time.NewTicker(20 * time.Millisecond)
			defer tick.Stop()
			for {
				remote.Send(message.ToggleAttribute, nil)
				select {
				case m := <-replies:
					var p message.ScalePayload
					if m.Name != message.ReplyScale || m.Source != "doc-1" || !m.Decode(&p) || *p.Scale != 1.2 {
						t.Fatalf("reply: got %+v", m)
					}
					if spoofed.Load() {
						t.Fatal("signal frame from the remote reached the document")
					}
					return
				case <-tick.C:
				case <-deadline:
					t.Fatal("no reply over websocket")
				}
			}
		})
	}
}

func TestPeer_CloseFlushesQueue(t *testing.T) {
	got := make(chan int, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: Subprotocols()})
		if err != nil {
			return
		}
		n := 0
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				break
			}
			n++
		}
		got <- n
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		Subprotocols: []string{JSON.Subprotocol()},
	})
	if err != nil {
		t.Fatal(err)
	}
	peer := NewPeer(ctx, conn, JSON, nil)

	const sent = 100
	for i := 0; i < sent; i++ {
		msg, _ := message.New(message.ReplyScale, "doc-1", message.Scale(1))
		if !peer.Deliver(msg) {
			t.Fatalf("Deliver %d refused", i)
		}
	}
	if err := peer.Close(); err != nil {
		t.Logf("Close: %v", err)
	}
	if peer.Deliver(message.Message{Name: message.Ready}) {
		t.Fatal("Deliver after Close accepted")
	}

	select {
	case n := <-got:
		if n != sent {
			t.Fatalf("server read %d messages, want %d", n, sent)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the close")
	}
}
