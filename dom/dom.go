// Package dom is the narrow view of a rendered document that a boost agent
// needs: query the root, body and head, create and style elements, listen
// for pointer events, and read geometry. Implementations back it with a
// live browser tab (roddom) or an in-memory tree (memdom).
//
// All methods must be called from the document's execution context.
package dom

import "errors"

// ErrDetached is returned when an operation targets an element that is no
// longer part of its document.
var ErrDetached = errors.New("dom: element detached")

// Rect is a viewport-relative bounding box.
type Rect struct {
	X, Y, Width, Height float64
}

// Top returns the top edge.
func (r Rect) Top() float64 { return r.Y }

// Left returns the left edge.
func (r Rect) Left() float64 { return r.X }

// EventType names a pointer event.
type EventType string

const (
	PointerEnter EventType = "mouseover"
	PointerLeave EventType = "mouseout"
	Click        EventType = "click"
)

// Event is a pointer event delivered to a listener.
type Event struct {
	Type EventType
	// Target is the element the event fired on. Nil for events whose
	// target is not an element.
	Target Element
	// Related is the element the pointer moved to on PointerLeave, nil
	// when it left the document.
	Related Element
}

// Listener receives events.
type Listener func(ev Event)

// ListenerOptions control how a listener is attached.
type ListenerOptions struct {
	// Capture registers the listener on the capture phase.
	Capture bool
	// Intercept suppresses the page's default action for the event and
	// stops it from reaching the page's own handlers.
	Intercept bool
}

// Document is one rendered page.
type Document interface {
	URL() string
	Root() Element
	// Body and Head return nil when the document has none.
	Body() Element
	Head() Element
	CreateElement(tag string) (Element, error)
	// AddEventListener attaches l at document level and returns a function
	// that detaches it.
	AddEventListener(typ EventType, l Listener, opts ListenerOptions) (remove func(), err error)
	ScrollOffset() (x, y float64)
}

// Element is a node of a Document.
type Element interface {
	TagName() string
	ID() string
	ClassName() string
	HasAttribute(name string) bool
	SetAttribute(name, value string) error
	RemoveAttribute(name string) error
	SetStyleProperty(name, value string, important bool) error
	StyleProperty(name string) string
	SetTextContent(text string) error
	AppendChild(child Element) error
	Remove() error
	BoundingClientRect() (Rect, error)
	// Contains reports whether other is this element or a descendant.
	Contains(other Element) bool
	Equal(other Element) bool
	OuterHTML() (string, error)
}
