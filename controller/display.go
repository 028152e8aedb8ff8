package controller

import (
	"log/slog"
	"strings"

	"github.com/hazyhaar/booster/message"
)

// LogDisplay writes display updates to a logger. It stands in for a
// control surface in headless deployments.
type LogDisplay struct {
	Logger *slog.Logger
}

func (d LogDisplay) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d LogDisplay) ScaleChanged(source string, scale float64) {
	d.logger().Info("display: scale", "document", source, "percent", Percent(scale))
}

func (d LogDisplay) DocumentReady(source, url string) {
	d.logger().Info("display: ready", "document", source, "url", url)
}

func (d LogDisplay) ElementProbed(source string, p message.ProbePayload) {
	d.logger().Info("display: element probed", "document", source,
		"tag", p.Tag, "id", p.ID, "classes", strings.Join(p.Classes, " "))
}

// Displays fans display updates out to several surfaces.
type Displays []Display

func (ds Displays) ScaleChanged(source string, scale float64) {
	for _, d := range ds {
		d.ScaleChanged(source, scale)
	}
}

func (ds Displays) DocumentReady(source, url string) {
	for _, d := range ds {
		d.DocumentReady(source, url)
	}
}

func (ds Displays) ElementProbed(source string, p message.ProbePayload) {
	for _, d := range ds {
		d.ElementProbed(source, p)
	}
}
