// Package agent implements the document-resident side of boost: it owns
// per-document state (marker attribute, background, font, scale, zapper
// session), reacts to commands arriving on the document's channel endpoint
// by mutating the document, and answers scale queries.
//
// An Agent is not safe for concurrent use. Every method, every channel
// handler and every DOM listener runs on the document's execution context.
package agent

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/dom"
	"github.com/hazyhaar/booster/message"
	"github.com/hazyhaar/booster/zapper"
)

// Scheduler runs fn on the document's execution context after d.
type Scheduler interface {
	After(d time.Duration, fn func()) *time.Timer
}

// Outcome classifies how a command was handled.
type Outcome string

const (
	Applied     Outcome = "applied"
	Ignored     Outcome = "ignored"     // malformed or empty payload, or a no-op
	Unavailable Outcome = "unavailable" // the document part it needs is missing
)

// Record is one handled command.
type Record struct {
	DocumentID string
	URL        string
	Name       message.Name
	Payload    json.RawMessage
	Outcome    Outcome
}

// Recorder receives a Record for every handled command.
type Recorder interface {
	Record(r Record)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(r Record)

func (f RecorderFunc) Record(r Record) { f(r) }

// Options configure an Agent.
type Options struct {
	Logger     *slog.Logger
	DocumentID string
	// LeaveDelay debounces overlay removal after the pointer leaves an
	// element. Default 50ms.
	LeaveDelay time.Duration
	// OverlayBackground and OverlayBorder style the hover overlay.
	OverlayBackground string
	OverlayBorder     string
	// MarkerAttribute is toggled on the document root. Default "boosterseat".
	MarkerAttribute string
	Recorder        Recorder
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.LeaveDelay <= 0 {
		o.LeaveDelay = 50 * time.Millisecond
	}
	if o.OverlayBackground == "" {
		o.OverlayBackground = "rgba(173, 216, 230, 0.2)"
	}
	if o.OverlayBorder == "" {
		o.OverlayBorder = "2px solid #007bff"
	}
	if o.MarkerAttribute == "" {
		o.MarkerAttribute = "boosterseat"
	}
}

// Agent is the DocumentAgent of one document.
type Agent struct {
	doc    dom.Document
	port   channel.Endpoint
	sched  Scheduler
	opts   Options
	logger *slog.Logger

	installed     bool
	closed        bool
	attributeFlag bool
	background    string
	font          string
	fontStyle     dom.Element
	hideRules     map[string]dom.Element
	hideOrder     []string

	zap       zapper.State
	overlay   dom.Element
	detach    []func()
	probeStop func()
}

// New creates an Agent for doc talking over port. Nothing is attached
// until Install.
func New(doc dom.Document, port channel.Endpoint, sched Scheduler, opts Options) *Agent {
	opts.defaults()
	return &Agent{
		doc:       doc,
		port:      port,
		sched:     sched,
		opts:      opts,
		logger:    opts.Logger.With("document", opts.DocumentID),
		hideRules: make(map[string]dom.Element),
	}
}

// Install attaches every command handler to the port and then signals
// Ready. It runs at most once per Agent; later calls do nothing.
func (a *Agent) Install() {
	if a.installed || a.closed {
		return
	}
	a.installed = true

	a.handle(message.Install, func(message.Message) Outcome { return Applied })
	a.handle(message.ToggleAttribute, a.toggleAttribute)
	a.handle(message.SetBackground, a.setBackground)
	a.handle(message.ActivateElementProbe, a.activateProbe)
	a.handle(message.SetFontFamily, a.setFontFamily)
	a.handle(message.SetScale, a.setScale)
	a.handle(message.RequestScale, a.requestScale)
	a.handle(message.ActivateHide, a.activateHide)
	a.handle(message.DeactivateHide, a.deactivateHide)

	a.port.Send(message.Ready, message.ReadyPayload{URL: a.doc.URL()})
	a.logger.Debug("agent: installed", "url", a.doc.URL())
}

// Installed reports whether Install has run.
func (a *Agent) Installed() bool { return a.installed }

// Close ends the zapper session and the element probe. The agent ignores
// every later command.
func (a *Agent) Close() {
	if a.closed {
		return
	}
	a.step(zapper.Deactivate{}, nil)
	a.stopProbe()
	a.closed = true
}

func (a *Agent) handle(name message.Name, fn func(message.Message) Outcome) {
	a.port.OnMessage(name, func(msg message.Message) {
		if a.closed {
			return
		}
		outcome := fn(msg)
		a.logger.Debug("agent: command handled", "name", name, "outcome", outcome)
		if a.opts.Recorder != nil {
			a.opts.Recorder.Record(Record{
				DocumentID: a.opts.DocumentID,
				URL:        a.doc.URL(),
				Name:       name,
				Payload:    msg.Data,
				Outcome:    outcome,
			})
		}
	})
}

func (a *Agent) toggleAttribute(message.Message) Outcome {
	root := a.doc.Root()
	if root == nil {
		return Unavailable
	}
	name := a.opts.MarkerAttribute
	var err error
	if root.HasAttribute(name) {
		err = root.RemoveAttribute(name)
	} else {
		err = root.SetAttribute(name, "true")
	}
	if err != nil {
		a.logger.Debug("agent: toggle attribute failed", "error", err)
		return Unavailable
	}
	a.attributeFlag = root.HasAttribute(name)
	return Applied
}

func (a *Agent) setBackground(msg message.Message) Outcome {
	var p message.BackgroundPayload
	if !msg.Decode(&p) || p.Color == "" || !safeValue(p.Color) {
		return Ignored
	}
	body := a.doc.Body()
	if body == nil {
		return Unavailable
	}
	if err := body.SetStyleProperty("background-color", p.Color, true); err != nil {
		a.logger.Debug("agent: set background failed", "error", err)
		return Unavailable
	}
	a.background = p.Color
	return Applied
}

func (a *Agent) setFontFamily(msg message.Message) Outcome {
	var p message.FontPayload
	if !msg.Decode(&p) || p.FontFamily == "" || !safeValue(p.FontFamily) {
		return Ignored
	}
	el, err := a.injectStyle("font", fontRule(p.FontFamily))
	if err != nil {
		a.logger.Debug("agent: set font failed", "error", err)
		return Unavailable
	}
	if a.fontStyle != nil {
		_ = a.fontStyle.Remove()
	}
	a.fontStyle = el
	a.font = p.FontFamily
	return Applied
}

func (a *Agent) setScale(msg message.Message) Outcome {
	var p message.ScalePayload
	if !msg.Decode(&p) || p.Scale == nil || !finite(*p.Scale) {
		return Ignored
	}
	root := a.doc.Root()
	if root == nil {
		return Unavailable
	}
	if err := root.SetStyleProperty("transform", scaleTransform(*p.Scale), true); err != nil {
		a.logger.Debug("agent: set scale failed", "error", err)
		return Unavailable
	}
	if err := root.SetStyleProperty("transform-origin", "top center", true); err != nil {
		a.logger.Debug("agent: set transform origin failed", "error", err)
	}
	return Applied
}

func (a *Agent) requestScale(message.Message) Outcome {
	scale := a.Scale()
	a.port.Send(message.ReplyScale, message.Scale(scale))
	if a.doc.Root() == nil {
		return Unavailable
	}
	return Applied
}

// Scale recovers the scale currently applied to the document root, 1.0
// when there is none.
func (a *Agent) Scale() float64 {
	root := a.doc.Root()
	if root == nil {
		return 1.0
	}
	return parseScale(root.StyleProperty("transform"))
}

func (a *Agent) activateHide(msg message.Message) Outcome {
	if a.zap.Active {
		return Ignored
	}
	var p message.HidePayload
	msg.Decode(&p)
	a.step(zapper.Activate{Mode: zapper.ParseMode(p.Mode)}, nil)
	if !a.zap.Active {
		return Unavailable
	}
	return Applied
}

func (a *Agent) deactivateHide(message.Message) Outcome {
	if !a.zap.Active {
		return Ignored
	}
	a.step(zapper.Deactivate{}, nil)
	return Applied
}

// Snapshot is a read-only view of an agent's state.
type Snapshot struct {
	Installed     bool     `json:"installed"`
	AttributeFlag bool     `json:"attribute_flag"`
	Background    string   `json:"background,omitempty"`
	Font          string   `json:"font,omitempty"`
	Scale         float64  `json:"scale"`
	ZapperActive  bool     `json:"zapper_active"`
	ZapperMode    string   `json:"zapper_mode"`
	Overlay       bool     `json:"overlay"`
	HideRules     []string `json:"hide_rules,omitempty"`
	ProbeArmed    bool     `json:"probe_armed"`
}

// Snapshot returns the agent's current state.
func (a *Agent) Snapshot() Snapshot {
	return Snapshot{
		Installed:     a.installed,
		AttributeFlag: a.attributeFlag,
		Background:    a.background,
		Font:          a.font,
		Scale:         a.Scale(),
		ZapperActive:  a.zap.Active,
		ZapperMode:    a.zap.Mode.String(),
		Overlay:       a.overlay != nil,
		HideRules:     append([]string(nil), a.hideOrder...),
		ProbeArmed:    a.probeStop != nil,
	}
}
