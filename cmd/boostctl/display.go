package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/booster/controller"
	"github.com/hazyhaar/booster/message"
)

type eventKind int

const (
	evScale eventKind = iota
	evReady
	evProbe
)

type event struct {
	kind eventKind
	doc  string
}

// printer is the terminal Display. It runs on the controller loop and
// never blocks it: events nobody waits for are dropped.
type printer struct {
	out    io.Writer
	events chan<- event
}

var _ controller.Display = printer{}

func (p printer) notify(ev event) {
	select {
	case p.events <- ev:
	default:
	}
}

func (p printer) ScaleChanged(source string, scale float64) {
	fmt.Fprintf(p.out, "%s scale %d%%\n", source, controller.Percent(scale))
	p.notify(event{kind: evScale, doc: source})
}

func (p printer) DocumentReady(source, url string) {
	fmt.Fprintf(p.out, "%s ready %s\n", source, url)
	p.notify(event{kind: evReady, doc: source})
}

func (p printer) ElementProbed(source string, pr message.ProbePayload) {
	fmt.Fprintf(p.out, "%s probed <%s id=%q class=%q>\n", source, strings.ToLower(pr.Tag), pr.ID, strings.Join(pr.Classes, " "))
	if pr.Markdown != "" {
		fmt.Fprintln(p.out, indent(pr.Markdown, "    "))
	}
	p.notify(event{kind: evProbe, doc: source})
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
