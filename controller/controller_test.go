package controller

import (
	"encoding/json"
	"testing"

	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/message"
	"github.com/hazyhaar/booster/zapper"
)

type fakeHub struct {
	handlers map[message.Name][]channel.Handler
}

func newFakeHub() *fakeHub {
	return &fakeHub{handlers: make(map[message.Name][]channel.Handler)}
}

func (h *fakeHub) OnMessage(name message.Name, fn channel.Handler) {
	h.handlers[name] = append(h.handlers[name], fn)
}

func (h *fakeHub) reply(name message.Name, source string, payload any) {
	msg, _ := message.New(name, source, payload)
	for _, fn := range h.handlers[name] {
		fn(msg)
	}
}

type recorder struct {
	sent []message.Message
}

func (r *recorder) Send(name message.Name, payload any) {
	msg, _ := message.New(name, channel.ControllerSource, payload)
	r.sent = append(r.sent, msg)
}

func (r *recorder) names() []message.Name {
	var out []message.Name
	for _, m := range r.sent {
		out = append(out, m.Name)
	}
	return out
}

type fakeDisplay struct {
	scales []float64
	ready  []string
	probes []message.ProbePayload
}

func (d *fakeDisplay) ScaleChanged(_ string, s float64) { d.scales = append(d.scales, s) }
func (d *fakeDisplay) DocumentReady(src, _ string) { d.ready = append(d.ready, src) }
func (d *fakeDisplay) ElementProbed(_ string, p message.ProbePayload) { d.probes = append(d.probes, p) }

func TestController_ListenersInstalledOnce(t *testing.T) {
	hub := newFakeHub()
	c := New(hub, Options{})
	doc := &recorder{}

	for i := 0; i < 7; i++ {
		c.Invoke(doc)
		c.RequestScale(doc)
	}
	for _, name := range []message.Name{message.ReplyScale, message.Ready, message.ElementProbed} {
		if n := len(hub.handlers[name]); n != 1 {
			t.Fatalf("%s listeners: got %d, want 1", name, n)
		}
	}
	want := []message.Name{message.Install, message.RequestScale, message.RequestScale}
	got := doc.names()[:3]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent: got %v", doc.names())
		}
	}
}

func TestController_ScaleReplyUpdatesDisplay(t *testing.T) {
	hub := newFakeHub()
	disp := &fakeDisplay{}
	c := New(hub, Options{Display: disp})
	c.Invoke(&recorder{})

	if c.LastKnownScale() != 1.0 {
		t.Fatalf("initial scale: %v", c.LastKnownScale())
	}
	hub.reply(message.ReplyScale, "doc-1", message.Scale(1.3))
	hub.reply(message.ReplyScale, "doc-2", message.Scale(0.95))
	hub.reply(message.ReplyScale, "doc-2", json.RawMessage(`{"scale":"x"}`))

	if c.LastKnownScale() != 0.95 {
		t.Fatalf("last known scale: %v", c.LastKnownScale())
	}
	if len(disp.scales) != 2 {
		t.Fatalf("display updates: %v", disp.scales)
	}
	if p := c.Status().ScalePercent; p != 95 {
		t.Fatalf("percent: %d", p)
	}

	hub.reply(message.Ready, "doc-1", message.ReadyPayload{URL: "u"})
	hub.reply(message.Ready, "doc-2", message.ReadyPayload{URL: "v"})
	if len(disp.ready) != 2 {
		t.Fatalf("ready: %v", disp.ready)
	}
}

func TestController_AdjustScaleClamped(t *testing.T) {
	hub := newFakeHub()
	c := New(hub, Options{})
	doc := &recorder{}

	if got := c.AdjustScale(doc, 0.1); got != 1.1 {
		t.Fatalf("adjust: got %v, want 1.1", got)
	}
	if got := c.AdjustScale(doc, 5); got != 1.5 {
		t.Fatalf("adjust up: got %v, want 1.5", got)
	}
	if got := c.AdjustScale(doc, -5); got != 0.9 {
		t.Fatalf("adjust down: got %v, want 0.9", got)
	}

	var p message.ScalePayload
	last := doc.sent[len(doc.sent)-2]
	if last.Name != message.SetScale || !last.Decode(&p) || *p.Scale != 0.9 {
		t.Fatalf("sent %s %s", last.Name, last.Data)
	}
	if doc.sent[len(doc.sent)-1].Name != message.RequestScale {
		t.Fatal("SetScale should be followed by RequestScale")
	}
}

func TestController_EmptyValuesNotSent(t *testing.T) {
	c := New(newFakeHub(), Options{})
	doc := &recorder{}
	c.SetFontFamily(doc, "")
	c.SetBackground(doc, "")
	if len(doc.sent) != 0 {
		t.Fatalf("sent %v", doc.names())
	}
}

func TestController_EscapeLatch(t *testing.T) {
	c := New(newFakeHub(), Options{Mode: zapper.ByClass})
	a, b := &recorder{}, &recorder{}

	if c.Escape(a) {
		t.Fatal("escape without a session should send nothing")
	}
	c.ActivateHide(a)
	var hp message.HidePayload
	if !a.sent[0].Decode(&hp) || hp.Mode != "class" {
		t.Fatalf("hide payload: %s", a.sent[0].Data)
	}

	if c.Escape(b) {
		t.Fatal("escape on another document should send nothing")
	}
	if !c.Escape(a) || c.Escape(a) {
		t.Fatal("escape should deactivate exactly once")
	}
	if got := a.names(); len(got) != 2 || got[1] != message.DeactivateHide {
		t.Fatalf("sent: %v", got)
	}
}

func TestController_Mode(t *testing.T) {
	c := New(newFakeHub(), Options{})
	if c.Mode() != zapper.ByID {
		t.Fatal("default mode should be id")
	}
	if c.ToggleMode() != zapper.ByClass || c.Status().Mode != "class" {
		t.Fatal("toggle to class")
	}
	c.SetMode(zapper.ByID)
	if c.Mode() != zapper.ByID {
		t.Fatal("SetMode")
	}
}

func TestController_ProbeForwarded(t *testing.T) {
	hub := newFakeHub()
	disp := &fakeDisplay{}
	c := New(hub, Options{Display: disp})
	doc := &recorder{}
	c.ProbeElement(doc)
	hub.reply(message.ElementProbed, "doc-1", message.ProbePayload{Tag: "DIV", ID: "x"})

	if doc.names()[0] != message.ActivateElementProbe {
		t.Fatalf("sent: %v", doc.names())
	}
	if len(disp.probes) != 1 || disp.probes[0].ID != "x" {
		t.Fatalf("probes: %+v", disp.probes)
	}
}
