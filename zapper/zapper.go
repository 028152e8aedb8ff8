// Package zapper is the hover-to-highlight, click-to-hide state machine.
//
// Step is a pure function: it takes the current State and one Event and
// returns the next State plus the Effects the caller must carry out against
// the document. It never touches the document itself, so every transition,
// including the cancellation races, is testable without a DOM.
package zapper

import (
	"strings"

	"github.com/hazyhaar/booster/dom"
)

// Mode selects how a clicked element is turned into a hide selector.
type Mode int

const (
	ByID Mode = iota
	ByClass
)

// ParseMode maps "class" or "ByClass" (any case) to ByClass; anything else
// is ByID.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "class", "byclass":
		return ByClass
	}
	return ByID
}

func (m Mode) String() string {
	if m == ByClass {
		return "class"
	}
	return "id"
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ByClass {
		return ByID
	}
	return ByClass
}

// Kind classifies an event target.
type Kind int

const (
	KindElement Kind = iota
	KindRoot
	KindBody
	KindOverlay
	KindNone // not an element, or gone
)

// Target describes the element an event fired on, as far as the machine
// needs to know it.
type Target struct {
	Kind      Kind
	ID        string
	ClassName string
	Rect      dom.Rect
	// HasRect is false when the geometry could not be read.
	HasRect bool
}

// State of one document's session. The zero value is Inactive.
type State struct {
	Active bool
	Mode   Mode
	// Overlay is the generation of the live overlay, 0 when there is none.
	Overlay uint64
	gen     uint64
}

// Event is an input to Step.
type Event interface{ event() }

type (
	Activate     struct{ Mode Mode }
	Deactivate   struct{}
	PointerEnter struct {
		Target           Target
		ScrollX, ScrollY float64
	}
	// PointerLeave fires when the pointer leaves an element. LeftSubtree
	// is false when it only moved into a descendant.
	PointerLeave struct{ LeftSubtree bool }
	// LeaveElapsed is the debounced follow-up of a PointerLeave.
	LeaveElapsed struct{ Overlay uint64 }
	Click        struct{ Target Target }
)

func (Activate) event()     {}
func (Deactivate) event()   {}
func (PointerEnter) event() {}
func (PointerLeave) event() {}
func (LeaveElapsed) event() {}
func (Click) event()        {}

// Effect is an instruction to the document side.
type Effect interface{ effect() }

// Box is an overlay's position and size in overlay coordinates.
type Box struct {
	Top, Left, Width, Height float64
}

type (
	AttachListeners struct{}
	DetachListeners struct{}
	RemoveOverlay   struct{ Overlay uint64 }
	ShowOverlay     struct {
		Overlay uint64
		Box     Box
	}
	ScheduleLeaveCheck struct{ Overlay uint64 }
	InjectHideRule     struct{ Selector string }
	// HideInline hides the clicked element itself.
	HideInline struct{}
)

func (AttachListeners) effect()    {}
func (DetachListeners) effect()    {}
func (RemoveOverlay) effect()      {}
func (ShowOverlay) effect()        {}
func (ScheduleLeaveCheck) effect() {}
func (InjectHideRule) effect()     {}
func (HideInline) effect()         {}

// Step applies ev to s.
func Step(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case Activate:
		if s.Active {
			return s, nil
		}
		s.Active = true
		s.Mode = ev.Mode
		return s, []Effect{AttachListeners{}}

	case Deactivate:
		if !s.Active {
			return s, nil
		}
		var fx []Effect
		s, fx = dropOverlay(s, fx)
		s.Active = false
		return s, append(fx, DetachListeners{})

	case PointerEnter:
		if !s.Active {
			return s, nil
		}
		var fx []Effect
		s, fx = dropOverlay(s, fx)
		t := ev.Target
		if t.Kind != KindElement || !t.HasRect {
			return s, fx
		}
		s.gen++
		s.Overlay = s.gen
		return s, append(fx, ShowOverlay{
			Overlay: s.Overlay,
			Box: Box{
				Top:    t.Rect.Y + ev.ScrollY,
				Left:   t.Rect.X + ev.ScrollX,
				Width:  t.Rect.Width,
				Height: t.Rect.Height,
			},
		})

	case PointerLeave:
		if !s.Active || s.Overlay == 0 || !ev.LeftSubtree {
			return s, nil
		}
		return s, []Effect{ScheduleLeaveCheck{Overlay: s.Overlay}}

	case LeaveElapsed:
		if !s.Active || s.Overlay == 0 || s.Overlay != ev.Overlay {
			return s, nil
		}
		return dropOverlay(s, nil)

	case Click:
		if !s.Active {
			return s, nil
		}
		var fx []Effect
		s, fx = dropOverlay(s, fx)
		if ev.Target.Kind != KindElement {
			return s, fx
		}
		if sel, ok := Selector(s.Mode, ev.Target); ok {
			return s, append(fx, InjectHideRule{Selector: sel})
		}
		return s, append(fx, HideInline{})
	}
	return s, nil
}

func dropOverlay(s State, fx []Effect) (State, []Effect) {
	if s.Overlay == 0 {
		return s, fx
	}
	fx = append(fx, RemoveOverlay{Overlay: s.Overlay})
	s.Overlay = 0
	return s, fx
}

// Selector derives the hide selector for t under mode. It reports false
// when the element lacks the attribute the mode needs.
func Selector(mode Mode, t Target) (string, bool) {
	switch mode {
	case ByClass:
		classes := strings.Fields(t.ClassName)
		if len(classes) == 0 {
			return "", false
		}
		return "." + EscapeIdent(classes[0]), true
	default:
		if t.ID == "" {
			return "", false
		}
		return "#" + EscapeIdent(t.ID), true
	}
}

// HideRule is the style rule hiding everything matched by selector.
func HideRule(selector string) string {
	return selector + " { display: none !important; }"
}
