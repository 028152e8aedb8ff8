// Package message defines the wire contract between a controller and a
// document agent. Every exchange is a named Message carrying a JSON payload;
// each command name has exactly one payload type declared here.
//
// Decoding is lenient: a payload that does not match its type is reported
// as not ok and the receiver ignores the command.
package message

import (
	"encoding/json"
	"fmt"
)

// Name identifies a message on the channel.
type Name string

const (
	// Controller → document commands.
	Install              Name = "boost:install"              // installation trigger, no payload
	ToggleAttribute      Name = "boost:toggleAttribute"      // no payload
	SetBackground        Name = "boost:setBackground"        // BackgroundPayload
	ActivateElementProbe Name = "boost:activateElementProbe" // no payload
	SetFontFamily        Name = "boost:setFontFamily"        // FontPayload
	SetScale             Name = "boost:setScale"             // ScalePayload
	RequestScale         Name = "boost:requestScale"         // no payload
	ActivateHide         Name = "boost:activateHide"         // HidePayload
	DeactivateHide       Name = "boost:deactivateHide"       // no payload

	// Document → controller signals.
	Ready         Name = "boost:ready"         // ReadyPayload, once per document after installation
	ReplyScale    Name = "boost:replyScale"    // ScalePayload
	ElementProbed Name = "boost:elementProbed" // ProbePayload
)

// Commands lists every controller → document message in handler order.
var Commands = []Name{
	Install,
	ToggleAttribute,
	SetBackground,
	ActivateElementProbe,
	SetFontFamily,
	SetScale,
	RequestScale,
	ActivateHide,
	DeactivateHide,
}

// IsCommand reports whether n is sent by a controller to a document.
func (n Name) IsCommand() bool {
	for _, c := range Commands {
		if c == n {
			return true
		}
	}
	return false
}

// Message is the unit carried by a channel.
type Message struct {
	Name   Name            `json:"name" cbor:"name"`
	Source string          `json:"source,omitempty" cbor:"source,omitempty"` // sending endpoint (document id or "controller")
	Data   json.RawMessage `json:"data,omitempty" cbor:"data,omitempty"`
}

// New builds a Message, marshalling payload to JSON. A nil payload
// produces an empty data field.
func New(name Name, source string, payload any) (Message, error) {
	msg := Message{Name: name, Source: source}
	if payload == nil {
		return msg, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		msg.Data = raw
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("message: marshal %s: %w", name, err)
	}
	msg.Data = data
	return msg, nil
}

// Decode unmarshals the payload into v. It reports false for an absent
// payload or one that does not fit v.
func (m Message) Decode(v any) bool {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return false
	}
	return json.Unmarshal(m.Data, v) == nil
}

// BackgroundPayload carries SetBackground.
type BackgroundPayload struct {
	Color string `json:"color"`
}

// FontPayload carries SetFontFamily.
type FontPayload struct {
	FontFamily string `json:"fontFamily"`
}

// ScalePayload carries SetScale and ReplyScale. Scale is a pointer so a
// missing field is told apart from zero.
type ScalePayload struct {
	Scale *float64 `json:"scale"`
}

// Scale wraps s in a ScalePayload.
func Scale(s float64) ScalePayload {
	return ScalePayload{Scale: &s}
}

// HidePayload carries ActivateHide. Mode is "id" or "class" ("ById" and
// "ByClass" are accepted too); empty means id.
type HidePayload struct {
	Mode string `json:"mode,omitempty"`
}

// ReadyPayload carries Ready.
type ReadyPayload struct {
	URL string `json:"url,omitempty"`
}

// ProbePayload carries ElementProbed: what the operator clicked while the
// element probe was armed.
type ProbePayload struct {
	Tag      string   `json:"tag"`
	ID       string   `json:"id,omitempty"`
	Classes  []string `json:"classes,omitempty"`
	HTML     string   `json:"html,omitempty"`     // sanitised outerHTML excerpt
	Markdown string   `json:"markdown,omitempty"` // excerpt rendered as markdown
}
