package main

import (
	"flag"
	"log/slog"
	"testing"
)

func TestURLListFlag(t *testing.T) {
	var urls urlList
	fs := flag.NewFlagSet("boostd", flag.ContinueOnError)
	fs.Var(&urls, "url", "")
	if err := fs.Parse([]string{"-url", "https://a.test/", "-url", "https://b.test/"}); err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || urls.String() != "https://a.test/,https://b.test/" {
		t.Fatalf("urls: %v", urls)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	} {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
