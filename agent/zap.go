package agent

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hazyhaar/booster/dom"
	"github.com/hazyhaar/booster/zapper"
)

var errNoBody = errors.New("agent: document has no body")

// step feeds ev to the zapper machine and carries out its effects.
// clicked is the element a Click event fired on.
func (a *Agent) step(ev zapper.Event, clicked dom.Element) {
	next, effects := zapper.Step(a.zap, ev)
	a.zap = next
	for _, fx := range effects {
		a.apply(fx, clicked)
	}
}

func (a *Agent) apply(fx zapper.Effect, clicked dom.Element) {
	switch fx := fx.(type) {
	case zapper.AttachListeners:
		if err := a.attachZapper(); err != nil {
			a.logger.Debug("agent: zapper not activated", "error", err)
			a.zap.Active = false
		}

	case zapper.DetachListeners:
		for _, remove := range a.detach {
			remove()
		}
		a.detach = nil
		a.logger.Debug("agent: zapper deactivated")

	case zapper.RemoveOverlay:
		if a.overlay != nil {
			_ = a.overlay.Remove()
			a.overlay = nil
		}

	case zapper.ShowOverlay:
		el, err := a.createOverlay(fx.Box)
		if err != nil {
			a.logger.Debug("agent: overlay not shown", "error", err)
			a.zap.Overlay = 0
			return
		}
		a.overlay = el

	case zapper.ScheduleLeaveCheck:
		gen := fx.Overlay
		a.sched.After(a.opts.LeaveDelay, func() {
			if a.closed {
				return
			}
			a.step(zapper.LeaveElapsed{Overlay: gen}, nil)
		})

	case zapper.InjectHideRule:
		a.injectHideRule(fx.Selector, clicked)

	case zapper.HideInline:
		a.hideInline(clicked)
	}
}

// attachZapper registers the zapper's listeners. If any fails, the ones
// already attached are removed again.
func (a *Agent) attachZapper() error {
	capture := dom.ListenerOptions{Capture: true}
	listeners := []struct {
		typ  dom.EventType
		fn   dom.Listener
		opts dom.ListenerOptions
	}{
		{dom.PointerEnter, a.onPointerEnter, capture},
		{dom.PointerLeave, a.onPointerLeave, capture},
		{dom.Click, a.onClick, dom.ListenerOptions{Capture: true, Intercept: true}},
	}
	for _, l := range listeners {
		remove, err := a.doc.AddEventListener(l.typ, l.fn, l.opts)
		if err != nil {
			for _, undo := range a.detach {
				undo()
			}
			a.detach = nil
			return fmt.Errorf("agent: %s listener: %w", l.typ, err)
		}
		a.detach = append(a.detach, remove)
	}
	a.logger.Debug("agent: zapper activated", "mode", a.zap.Mode)
	return nil
}

func (a *Agent) onPointerEnter(ev dom.Event) {
	if !a.zap.Active || a.closed {
		return
	}
	x, y := a.doc.ScrollOffset()
	a.step(zapper.PointerEnter{Target: a.target(ev.Target), ScrollX: x, ScrollY: y}, nil)
}

func (a *Agent) onPointerLeave(ev dom.Event) {
	if !a.zap.Active || a.closed {
		return
	}
	left := ev.Target == nil || ev.Related == nil || !ev.Target.Contains(ev.Related)
	a.step(zapper.PointerLeave{LeftSubtree: left}, nil)
}

func (a *Agent) onClick(ev dom.Event) {
	if !a.zap.Active || a.closed {
		return
	}
	t := a.target(ev.Target)
	a.logger.Debug("agent: element clicked to hide", "id", t.ID, "class", t.ClassName)
	a.step(zapper.Click{Target: t}, ev.Target)
}

// target classifies el for the zapper machine. Without a body no overlay
// can be shown, so the geometry is left out.
func (a *Agent) target(el dom.Element) zapper.Target {
	if el == nil {
		return zapper.Target{Kind: zapper.KindNone}
	}
	if a.overlay != nil && a.overlay.Equal(el) {
		return zapper.Target{Kind: zapper.KindOverlay}
	}
	if root := a.doc.Root(); root != nil && root.Equal(el) {
		return zapper.Target{Kind: zapper.KindRoot}
	}
	body := a.doc.Body()
	if body != nil && body.Equal(el) {
		return zapper.Target{Kind: zapper.KindBody}
	}
	t := zapper.Target{Kind: zapper.KindElement, ID: el.ID(), ClassName: el.ClassName()}
	if body != nil {
		if r, err := el.BoundingClientRect(); err == nil {
			t.Rect, t.HasRect = r, true
		}
	}
	return t
}

func px(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + "px"
}

func (a *Agent) createOverlay(box zapper.Box) (dom.Element, error) {
	body := a.doc.Body()
	if body == nil {
		return nil, errNoBody
	}
	el, err := a.doc.CreateElement("div")
	if err != nil {
		return nil, err
	}
	props := [][2]string{
		{"position", "fixed"},
		{"top", px(box.Top)},
		{"left", px(box.Left)},
		{"width", px(box.Width)},
		{"height", px(box.Height)},
		{"background-color", a.opts.OverlayBackground},
		{"z-index", "2147483647"},
		{"pointer-events", "none"},
		{"box-sizing", "border-box"},
		{"border", a.opts.OverlayBorder},
	}
	for _, p := range props {
		if err := el.SetStyleProperty(p[0], p[1], false); err != nil {
			return nil, err
		}
	}
	if err := el.SetAttribute(boostAttr, "overlay"); err != nil {
		return nil, err
	}
	if err := body.AppendChild(el); err != nil {
		return nil, err
	}
	return el, nil
}

func (a *Agent) injectHideRule(selector string, clicked dom.Element) {
	if _, ok := a.hideRules[selector]; ok {
		a.logger.Debug("agent: hide rule already present", "selector", selector)
		return
	}
	el, err := a.injectStyle("hide", zapper.HideRule(selector))
	if err != nil {
		a.logger.Debug("agent: hide rule not injected, hiding inline", "selector", selector, "error", err)
		a.hideInline(clicked)
		return
	}
	a.hideRules[selector] = el
	a.hideOrder = append(a.hideOrder, selector)
	a.logger.Info("agent: element hidden", "selector", selector)
}

func (a *Agent) hideInline(el dom.Element) {
	if el == nil {
		return
	}
	if err := el.SetStyleProperty("display", "none", true); err != nil {
		a.logger.Debug("agent: inline hide failed", "error", err)
		return
	}
	a.logger.Info("agent: element hidden inline", "tag", el.TagName())
}
