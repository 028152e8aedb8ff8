package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8787" || cfg.Browser.Mode != "headful" || cfg.Browser.XvfbDisplay != ":99" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Agent.LeaveDelay != 50*time.Millisecond || cfg.Agent.MarkerAttribute != "boosterseat" {
		t.Fatalf("agent defaults: %+v", cfg.Agent)
	}
	if cfg.Controller.ScaleMin != 0.9 || cfg.Controller.ScaleMax != 1.5 || cfg.Controller.ScaleStep != 0.1 {
		t.Fatalf("controller defaults: %+v", cfg.Controller)
	}
	if len(cfg.Controller.Colors) != 2 {
		t.Fatalf("colors: %v", cfg.Controller.Colors)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "boost.yaml", `
log_level: debug
server:
  addr: "127.0.0.1:9000"
  allowed_origins: ["localhost:*"]
browser:
  mode: xvfb
  start_urls: ["https://example.com"]
agent:
  leave_delay: 120ms
controller:
  mode: class
  scale_max: 2
  fonts: ["Georgia"]
journal:
  path: /tmp/boost.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.LogLevel != "debug" {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if cfg.Browser.Mode != "xvfb" || len(cfg.Browser.StartURLs) != 1 {
		t.Fatalf("browser: %+v", cfg.Browser)
	}
	if cfg.Agent.LeaveDelay != 120*time.Millisecond {
		t.Fatalf("leave delay: %v", cfg.Agent.LeaveDelay)
	}
	if cfg.Controller.Mode != "class" || cfg.Controller.ScaleMax != 2 || cfg.Controller.ScaleMin != 0.9 {
		t.Fatalf("controller: %+v", cfg.Controller)
	}
	if cfg.Journal.Path != "/tmp/boost.db" {
		t.Fatalf("journal: %+v", cfg.Journal)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOOST_ADDR", ":7000")
	t.Setenv("BOOST_JOURNAL", "env.db")
	path := writeFile(t, "boost.yaml", "server:\n  addr: \":9000\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7000" || cfg.Journal.Path != "env.db" {
		t.Fatalf("env overrides: addr=%q journal=%q", cfg.Server.Addr, cfg.Journal.Path)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"mode":  "browser:\n  mode: kiosk\n",
		"zap":   "controller:\n  mode: tag\n",
		"scale": "controller:\n  scale_min: 2\n  scale_max: 1\n",
		"auth":  "server:\n  auth:\n    user: admin\n",
		"yaml":  "server: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "bad.yaml", body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env: %v", err)
	}

	t.Setenv("BOOST_LOG_LEVEL", "")
	os.Unsetenv("BOOST_LOG_LEVEL")
	path := writeFile(t, ".env", "BOOST_LOG_LEVEL=warn\n")
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level from .env: %q", cfg.LogLevel)
	}
}
