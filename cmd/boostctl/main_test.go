package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/controller"
	"github.com/hazyhaar/booster/message"
)

func TestChannelURL(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:8787":      "ws://127.0.0.1:8787/documents/active/channel",
		"https://boost.example/api/": "wss://boost.example/api/documents/active/channel",
		"ws://h:1":                   "ws://h:1/documents/active/channel",
	}
	for in, want := range cases {
		got, err := channelURL(in, "active")
		if err != nil || got != want {
			t.Errorf("channelURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := channelURL("ftp://x", "active"); err == nil {
		t.Error("ftp scheme should fail")
	}
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		want replCommand
		ok   bool
	}{
		{"", replCommand{}, false},
		{"  # comment", replCommand{}, false},
		{"+", replCommand{name: "step", arg: "1"}, true},
		{"-", replCommand{name: "step", arg: "-1"}, true},
		{"ESC", replCommand{name: "esc"}, true},
		{"font Georgia, serif", replCommand{name: "font", arg: "Georgia, serif"}, true},
		{"bg  #FFFFCC ", replCommand{name: "bg", arg: "#FFFFCC"}, true},
	}
	for _, c := range cases {
		got, ok := parseLine(c.line)
		if ok != c.ok || got != c.want {
			t.Errorf("parseLine(%q) = %+v, %v", c.line, got, ok)
		}
	}
}

type hub struct{}

func (hub) OnMessage(message.Name, channel.Handler) {}

type sink struct{ names []message.Name }

func (s *sink) Send(name message.Name, _ any) { s.names = append(s.names, name) }

func TestApply(t *testing.T) {
	c := controller.New(hub{}, controller.Options{})
	doc := &sink{}
	var out bytes.Buffer

	lines := []string{"zap class", "esc", "esc", "+", "mode", "font", "scale x", "status", "bogus"}
	for _, l := range lines {
		cmd, _ := parseLine(l)
		if !apply(c, doc, cmd, &out) {
			t.Fatalf("%q ended the repl", l)
		}
	}
	cmd, _ := parseLine("quit")
	if apply(c, doc, cmd, &out) {
		t.Fatal("quit should end the repl")
	}

	want := []message.Name{message.ActivateHide, message.DeactivateHide, message.SetScale, message.RequestScale}
	if len(doc.names) != len(want) {
		t.Fatalf("sent %v, want %v", doc.names, want)
	}
	for i := range want {
		if doc.names[i] != want[i] {
			t.Fatalf("sent %v, want %v", doc.names, want)
		}
	}
	text := out.String()
	for _, frag := range []string{"mode id", "scale:", "scale 100% mode id", `unknown command "bogus"`} {
		if !strings.Contains(text, frag) {
			t.Errorf("output lacks %q:\n%s", frag, text)
		}
	}
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	events := make(chan event, 1)
	p := printer{out: &out, events: events}

	p.ScaleChanged("d1", 1.1)
	p.ScaleChanged("d1", 1.2) // channel full: dropped, not blocking
	p.ElementProbed("d1", message.ProbePayload{Tag: "DIV", ID: "x", Classes: []string{"a", "b"}, Markdown: "hello\nworld"})

	if ev := <-events; ev.kind != evScale || ev.doc != "d1" {
		t.Fatalf("event: %+v", ev)
	}
	want := "d1 scale 110%\nd1 scale 120%\nd1 probed <div id=\"x\" class=\"a b\">\n    hello\n    world\n"
	if out.String() != want {
		t.Fatalf("output:\n%s", out.String())
	}
}
