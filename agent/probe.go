package agent

import (
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/booster/dom"
	"github.com/hazyhaar/booster/message"
)

// excerptLimit bounds the html and markdown carried by ElementProbed.
const excerptLimit = 2048

var (
	probePolicy = bluemonday.UGCPolicy()
	probeMD     = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// activateProbe arms a one-shot click listener reporting what was clicked.
// Re-arming while armed does nothing.
func (a *Agent) activateProbe(message.Message) Outcome {
	if a.probeStop != nil {
		return Ignored
	}
	remove, err := a.doc.AddEventListener(dom.Click, a.onProbeClick, dom.ListenerOptions{Capture: true})
	if err != nil {
		a.logger.Debug("agent: probe not armed", "error", err)
		return Unavailable
	}
	a.probeStop = remove
	a.logger.Debug("agent: element probe armed")
	return Applied
}

func (a *Agent) stopProbe() {
	if a.probeStop != nil {
		a.probeStop()
		a.probeStop = nil
	}
}

func (a *Agent) onProbeClick(ev dom.Event) {
	if a.probeStop == nil || a.closed {
		return
	}
	a.stopProbe()
	if ev.Target == nil {
		return
	}
	p := describe(ev.Target)
	a.logger.Info("agent: element probed", "tag", p.Tag, "id", p.ID, "classes", strings.Join(p.Classes, " "))
	a.port.Send(message.ElementProbed, p)
}

func describe(el dom.Element) message.ProbePayload {
	p := message.ProbePayload{
		Tag:     el.TagName(),
		ID:      el.ID(),
		Classes: strings.Fields(el.ClassName()),
	}
	raw, err := el.OuterHTML()
	if err != nil {
		return p
	}
	clean := probePolicy.Sanitize(raw)
	p.HTML = truncate(clean, excerptLimit)
	if md, err := probeMD.ConvertString(clean); err == nil {
		p.Markdown = truncate(strings.TrimSpace(md), excerptLimit)
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
