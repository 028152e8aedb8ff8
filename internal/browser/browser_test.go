package browser

import (
	"context"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeHeadful, "headful": ModeHeadful, "headless": ModeHeadless, "xvfb": ModeXvfb} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("kiosk"); err == nil {
		t.Fatal("unknown mode should fail")
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.Mode != ModeHeadful || m.cfg.XvfbDisplay != ":99" || m.cfg.NavigateTimeout != 30*time.Second {
		t.Fatalf("defaults: %+v", m.cfg)
	}
	if m.cfg.Logger == nil {
		t.Fatal("logger default")
	}
	if m.Remote() {
		t.Fatal("no remote configured")
	}
}

func TestShouldBlock(t *testing.T) {
	set := blockSetOf([]string{"Images", " fonts", "media"})
	cases := map[string]bool{
		"Image":      true,
		"Font":       true,
		"Media":      true,
		"Stylesheet": false,
		"Document":   false,
		"Script":     false,
	}
	for typ, want := range cases {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%s) = %v, want %v", typ, got, want)
		}
	}
}

func TestManager_NotStarted(t *testing.T) {
	m := NewManager(Config{})
	if m.Browser() != nil {
		t.Fatal("browser before Start")
	}
	if _, err := m.OpenTab(context.Background(), "https://example.com"); err == nil {
		t.Fatal("OpenTab without a browser should fail")
	}
	if _, err := m.Pages(); err == nil {
		t.Fatal("Pages without a browser should fail")
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(context.Background()); err == nil {
		t.Fatal("Start after Close should fail")
	}
}

func TestXvfbSocket(t *testing.T) {
	for display, want := range map[string]string{
		":99":  "/tmp/.X11-unix/X99",
		":1.0": "/tmp/.X11-unix/X1",
		"7":    "/tmp/.X11-unix/X7",
	} {
		if got := xvfbSocket(display); got != want {
			t.Errorf("xvfbSocket(%q) = %q, want %q", display, got, want)
		}
	}
}
