// Package config loads boostd configuration from a YAML file, an optional
// .env file and BOOST_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level boostd configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Browser    BrowserConfig    `yaml:"browser"`
	Agent      AgentConfig      `yaml:"agent"`
	Controller ControllerConfig `yaml:"controller"`
	Journal    JournalConfig    `yaml:"journal"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr           string     `yaml:"addr"`
	Auth           AuthConfig `yaml:"auth"`
	AllowedOrigins []string   `yaml:"allowed_origins"`
}

// AuthConfig enables HTTP basic auth when User is set. PasswordHash is a
// bcrypt hash.
type AuthConfig struct {
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"`
}

// Enabled reports whether basic auth is configured.
func (a AuthConfig) Enabled() bool { return a.User != "" }

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	// Remote is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local one.
	Remote string `yaml:"remote"`
	// Mode is headful | headless | xvfb.
	Mode             string        `yaml:"mode"`
	DisableStealth   bool          `yaml:"disable_stealth"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	Adopt            bool          `yaml:"adopt"` // attach to pages already open in a remote browser
	StartURLs        []string      `yaml:"start_urls"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// AgentConfig tunes document agents.
type AgentConfig struct {
	LeaveDelay        time.Duration `yaml:"leave_delay"`
	OverlayBackground string        `yaml:"overlay_background"`
	OverlayBorder     string        `yaml:"overlay_border"`
	MarkerAttribute   string        `yaml:"marker_attribute"`
}

// ControllerConfig tunes the controller and its presets.
type ControllerConfig struct {
	Mode      string   `yaml:"mode"` // id | class
	ScaleMin  float64  `yaml:"scale_min"`
	ScaleMax  float64  `yaml:"scale_max"`
	ScaleStep float64  `yaml:"scale_step"`
	Colors    []string `yaml:"colors"`
	Fonts     []string `yaml:"fonts"`
}

// JournalConfig locates the command journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML file at path (none when path is empty), applies
// defaults and then environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads environment variables from files (default ".env").
// Missing files are not an error; variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Addr, "BOOST_ADDR")
	set(&c.LogLevel, "BOOST_LOG_LEVEL")
	set(&c.Browser.Remote, "BOOST_BROWSER_REMOTE")
	set(&c.Journal.Path, "BOOST_JOURNAL")
	set(&c.Server.Auth.User, "BOOST_AUTH_USER")
	set(&c.Server.Auth.PasswordHash, "BOOST_AUTH_HASH")
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8787"
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headful"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Agent.LeaveDelay <= 0 {
		c.Agent.LeaveDelay = 50 * time.Millisecond
	}
	if c.Agent.OverlayBackground == "" {
		c.Agent.OverlayBackground = "rgba(173, 216, 230, 0.2)"
	}
	if c.Agent.OverlayBorder == "" {
		c.Agent.OverlayBorder = "2px solid #007bff"
	}
	if c.Agent.MarkerAttribute == "" {
		c.Agent.MarkerAttribute = "boosterseat"
	}
	if c.Controller.Mode == "" {
		c.Controller.Mode = "id"
	}
	if c.Controller.ScaleMin <= 0 {
		c.Controller.ScaleMin = 0.9
	}
	if c.Controller.ScaleMax <= 0 {
		c.Controller.ScaleMax = 1.5
	}
	if c.Controller.ScaleStep <= 0 {
		c.Controller.ScaleStep = 0.1
	}
	if len(c.Controller.Colors) == 0 {
		c.Controller.Colors = []string{"#FFFFFF", "#FFFFCC"}
	}
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "headful", "headless", "xvfb":
	default:
		return fmt.Errorf("config: browser.mode %q: want headful, headless or xvfb", c.Browser.Mode)
	}
	switch strings.ToLower(c.Controller.Mode) {
	case "id", "class", "byid", "byclass":
	default:
		return fmt.Errorf("config: controller.mode %q: want id or class", c.Controller.Mode)
	}
	if c.Controller.ScaleMin > c.Controller.ScaleMax {
		return fmt.Errorf("config: controller.scale_min %v exceeds scale_max %v",
			c.Controller.ScaleMin, c.Controller.ScaleMax)
	}
	if c.Server.Auth.Enabled() && c.Server.Auth.PasswordHash == "" {
		return fmt.Errorf("config: server.auth.user set without password_hash")
	}
	return nil
}
