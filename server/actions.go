package server

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/booster/controller"
	"github.com/hazyhaar/booster/host"
	"github.com/hazyhaar/booster/zapper"
)

// Command names accepted by the command endpoint and the boost_command tool.
const (
	CmdInvoke          = "invoke"
	CmdToggleAttribute = "toggle-attribute"
	CmdBackground      = "background"
	CmdProbe           = "probe"
	CmdFont            = "font"
	CmdScale           = "scale"
	CmdAdjustScale     = "adjust-scale"
	CmdRequestScale    = "request-scale"
	CmdHide            = "hide"
	CmdUnhide          = "unhide"
	CmdEscape          = "escape"
	CmdMode            = "mode"
)

// Commands lists every command name.
var Commands = []string{
	CmdInvoke, CmdToggleAttribute, CmdBackground, CmdProbe, CmdFont, CmdScale,
	CmdAdjustScale, CmdRequestScale, CmdHide, CmdUnhide, CmdEscape, CmdMode,
}

var (
	errUnknownCommand = errors.New("unknown command")
	errInvalidArgs    = errors.New("invalid arguments")
)

// Args carries the optional parameters of a command.
type Args struct {
	Color string   `json:"color,omitempty"`
	Font  string   `json:"font,omitempty"`
	Scale *float64 `json:"scale,omitempty"`
	Delta *float64 `json:"delta,omitempty"`
	Mode  string   `json:"mode,omitempty"`
}

// Result is what a command reports back. Commands are fire-and-forget, so
// it describes what was sent, not what the document did.
type Result struct {
	Document    string   `json:"document"`
	Command     string   `json:"command"`
	Scale       *float64 `json:"scale,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Deactivated *bool    `json:"deactivated,omitempty"`
}

// run executes one controller action against d.
func run(c *controller.Controller, d *host.Document, command string, a Args) (Result, error) {
	t := d.Sender()
	res := Result{Document: d.ID(), Command: command}

	switch command {
	case CmdInvoke:
		c.Invoke(t)
	case CmdToggleAttribute:
		c.ToggleAttribute(t)
	case CmdBackground:
		if a.Color == "" {
			return res, fmt.Errorf("%w: color is required", errInvalidArgs)
		}
		c.SetBackground(t, a.Color)
	case CmdProbe:
		c.ProbeElement(t)
	case CmdFont:
		if a.Font == "" {
			return res, fmt.Errorf("%w: font is required", errInvalidArgs)
		}
		c.SetFontFamily(t, a.Font)
	case CmdScale:
		if a.Scale == nil {
			return res, fmt.Errorf("%w: scale is required", errInvalidArgs)
		}
		c.SetScale(t, *a.Scale)
		res.Scale = a.Scale
	case CmdAdjustScale:
		delta := c.ScaleStep()
		if a.Delta != nil {
			delta = *a.Delta
		}
		next := c.AdjustScale(t, delta)
		res.Scale = &next
	case CmdRequestScale:
		c.RequestScale(t)
	case CmdHide:
		if a.Mode != "" {
			c.SetMode(zapper.ParseMode(a.Mode))
		}
		c.ActivateHide(t)
		res.Mode = c.Mode().String()
	case CmdUnhide:
		c.DeactivateHide(t)
	case CmdEscape:
		ok := c.Escape(t)
		res.Deactivated = &ok
	case CmdMode:
		if a.Mode != "" {
			c.SetMode(zapper.ParseMode(a.Mode))
		} else {
			c.ToggleMode()
		}
		res.Mode = c.Mode().String()
	default:
		return res, fmt.Errorf("%w: %q", errUnknownCommand, command)
	}
	return res, nil
}
