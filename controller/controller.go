// Package controller is the privileged side of boost. It turns operator
// actions into commands sent to a document's channel endpoint and consumes
// the replies coming back on its hub.
//
// Reply listeners (ready, scale, probe) are installed on the hub at most
// once per Controller, however many times an action is invoked. The
// controller never waits for a reply: the scale it displays is whatever
// the last ReplyScale said.
package controller

import (
	"log/slog"
	"math"
	"sync"

	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/message"
	"github.com/hazyhaar/booster/zapper"
)

// Display is the surface showing document state to the operator.
type Display interface {
	ScaleChanged(source string, scale float64)
	DocumentReady(source, url string)
	ElementProbed(source string, p message.ProbePayload)
}

// Options configure a Controller.
type Options struct {
	Logger  *slog.Logger
	Display Display
	// ScaleMin and ScaleMax bound AdjustScale. Defaults 0.9 and 1.5.
	ScaleMin float64
	ScaleMax float64
	// ScaleStep is the AdjustScale increment presets refer to. Default 0.1.
	ScaleStep float64
	Mode      zapper.Mode
	Colors    []string
	Fonts     []string
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ScaleMin <= 0 {
		o.ScaleMin = 0.9
	}
	if o.ScaleMax <= 0 {
		o.ScaleMax = 1.5
	}
	if o.ScaleMax < o.ScaleMin {
		o.ScaleMin, o.ScaleMax = o.ScaleMax, o.ScaleMin
	}
	if o.ScaleStep <= 0 {
		o.ScaleStep = 0.1
	}
	if len(o.Colors) == 0 {
		o.Colors = []string{"#FFFFFF", "#FFFFCC"}
	}
	if len(o.Fonts) == 0 {
		o.Fonts = DefaultFonts
	}
}

// DefaultFonts is the font palette offered when none is configured.
var DefaultFonts = []string{
	"Arial, sans-serif",
	"Verdana, sans-serif",
	"Tahoma, sans-serif",
	"Georgia, serif",
	`"Times New Roman", serif`,
	`"Courier New", monospace`,
	`"Lucida Console", monospace`,
	"Impact, sans-serif",
	`"Palatino Linotype", serif`,
	`"Trebuchet MS", sans-serif`,
	`"Arial Black", sans-serif`,
	`"Comic Sans MS", cursive`,
	"cursive",
	"fantasy",
	"system-ui",
	`-apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif`,
	"sans-serif",
	"serif",
}

// Controller issues commands and tracks replies.
type Controller struct {
	hub    channel.Subscriber
	opts   Options
	logger *slog.Logger

	mu             sync.Mutex
	readyListener  bool
	scaleListener  bool
	probeListener  bool
	lastKnownScale float64
	mode           zapper.Mode
	escape         map[channel.Sender]bool
}

// New creates a Controller whose reply listeners live on hub.
func New(hub channel.Subscriber, opts Options) *Controller {
	opts.defaults()
	return &Controller{
		hub:            hub,
		opts:           opts,
		logger:         opts.Logger,
		lastKnownScale: 1.0,
		mode:           opts.Mode,
		escape:         make(map[channel.Sender]bool),
	}
}

// Invoke is the control action: it makes sure the reply listeners exist,
// triggers installation on the document and asks for its scale.
func (c *Controller) Invoke(t channel.Sender) {
	c.installListeners()
	t.Send(message.Install, nil)
	t.Send(message.RequestScale, nil)
}

func (c *Controller) installListeners() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readyListener {
		c.readyListener = true
		c.hub.OnMessage(message.Ready, c.onReady)
	}
	if !c.scaleListener {
		c.scaleListener = true
		c.hub.OnMessage(message.ReplyScale, c.onReplyScale)
	}
	if !c.probeListener {
		c.probeListener = true
		c.hub.OnMessage(message.ElementProbed, c.onProbed)
	}
}

func (c *Controller) onReady(msg message.Message) {
	var p message.ReadyPayload
	msg.Decode(&p)
	c.logger.Info("controller: document ready", "source", msg.Source, "url", p.URL)
	if c.opts.Display != nil {
		c.opts.Display.DocumentReady(msg.Source, p.URL)
	}
}

func (c *Controller) onReplyScale(msg message.Message) {
	var p message.ScalePayload
	if !msg.Decode(&p) || p.Scale == nil || math.IsNaN(*p.Scale) || math.IsInf(*p.Scale, 0) {
		c.logger.Debug("controller: malformed scale reply", "source", msg.Source)
		return
	}
	c.mu.Lock()
	c.lastKnownScale = *p.Scale
	c.mu.Unlock()
	c.logger.Debug("controller: scale reply", "source", msg.Source, "scale", *p.Scale)
	if c.opts.Display != nil {
		c.opts.Display.ScaleChanged(msg.Source, *p.Scale)
	}
}

func (c *Controller) onProbed(msg message.Message) {
	var p message.ProbePayload
	if !msg.Decode(&p) {
		return
	}
	if c.opts.Display != nil {
		c.opts.Display.ElementProbed(msg.Source, p)
	}
}

// ToggleAttribute flips the document's marker attribute.
func (c *Controller) ToggleAttribute(t channel.Sender) {
	t.Send(message.ToggleAttribute, nil)
}

// SetBackground overrides the body background. An empty colour means
// "leave it as is" and sends nothing.
func (c *Controller) SetBackground(t channel.Sender, color string) {
	if color == "" {
		return
	}
	t.Send(message.SetBackground, message.BackgroundPayload{Color: color})
}

// ProbeElement arms the document's one-shot element probe.
func (c *Controller) ProbeElement(t channel.Sender) {
	c.installListeners()
	t.Send(message.ActivateElementProbe, nil)
}

// SetFontFamily forces a font family. An empty family is never sent.
func (c *Controller) SetFontFamily(t channel.Sender, family string) {
	if family == "" {
		return
	}
	t.Send(message.SetFontFamily, message.FontPayload{FontFamily: family})
}

// SetScale applies scale and asks for the result.
func (c *Controller) SetScale(t channel.Sender, scale float64) {
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return
	}
	c.installListeners()
	t.Send(message.SetScale, message.Scale(scale))
	t.Send(message.RequestScale, nil)
}

// AdjustScale moves the last known scale by delta, clamped to the
// configured bounds, and applies it. It returns the scale sent.
func (c *Controller) AdjustScale(t channel.Sender, delta float64) float64 {
	c.mu.Lock()
	next := clamp(c.lastKnownScale+delta, c.opts.ScaleMin, c.opts.ScaleMax)
	c.mu.Unlock()
	next = math.Round(next*1000) / 1000
	c.SetScale(t, next)
	return next
}

// ScaleStep returns the configured adjustment step.
func (c *Controller) ScaleStep() float64 { return c.opts.ScaleStep }

// RequestScale asks the document for its scale.
func (c *Controller) RequestScale(t channel.Sender) {
	c.installListeners()
	t.Send(message.RequestScale, nil)
}

// ActivateHide starts a zapper session in the current mode and arms the
// escape latch for t.
func (c *Controller) ActivateHide(t channel.Sender) {
	c.mu.Lock()
	mode := c.mode
	c.escape[t] = true
	c.mu.Unlock()
	t.Send(message.ActivateHide, message.HidePayload{Mode: mode.String()})
}

// DeactivateHide ends the zapper session on t.
func (c *Controller) DeactivateHide(t channel.Sender) {
	c.mu.Lock()
	delete(c.escape, t)
	c.mu.Unlock()
	t.Send(message.DeactivateHide, nil)
}

// Escape forwards the escape condition: if a zapper session was started on
// t, it is deactivated. It reports whether anything was sent.
func (c *Controller) Escape(t channel.Sender) bool {
	c.mu.Lock()
	armed := c.escape[t]
	c.mu.Unlock()
	if !armed {
		return false
	}
	c.DeactivateHide(t)
	return true
}

// Forget drops per-target state for t, e.g. once its document is closed.
func (c *Controller) Forget(t channel.Sender) {
	c.mu.Lock()
	delete(c.escape, t)
	c.mu.Unlock()
}

// Mode returns the zapper mode sent with the next ActivateHide.
func (c *Controller) Mode() zapper.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode sets the zapper mode.
func (c *Controller) SetMode(m zapper.Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}

// ToggleMode switches between id and class mode and returns the new mode.
func (c *Controller) ToggleMode() zapper.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = c.mode.Toggle()
	return c.mode
}

// LastKnownScale is the scale from the most recent reply, 1.0 before any.
func (c *Controller) LastKnownScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnownScale
}

// Status summarises the controller for display.
type Status struct {
	LastKnownScale float64  `json:"last_known_scale"`
	ScalePercent   int      `json:"scale_percent"`
	Mode           string   `json:"mode"`
	ScaleMin       float64  `json:"scale_min"`
	ScaleMax       float64  `json:"scale_max"`
	Colors         []string `json:"colors"`
	Fonts          []string `json:"fonts"`
}

// Status returns the controller's current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		LastKnownScale: c.lastKnownScale,
		ScalePercent:   Percent(c.lastKnownScale),
		Mode:           c.mode.String(),
		ScaleMin:       c.opts.ScaleMin,
		ScaleMax:       c.opts.ScaleMax,
		Colors:         append([]string(nil), c.opts.Colors...),
		Fonts:          append([]string(nil), c.opts.Fonts...),
	}
}

// Percent renders a scale factor as a rounded percentage.
func Percent(scale float64) int {
	return int(math.Round(scale * 100))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
