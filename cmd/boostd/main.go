// Command boostd is the boost daemon: it drives a Chrome instance, hosts
// the documents open in it and exposes the controller over HTTP,
// websocket and MCP.
//
// Usage:
//
//	boostd -config boost.yaml
//	boostd -url https://example.com -url https://example.org
//	echo -n secret | boostd -hash-password
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/booster/agent"
	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/controller"
	"github.com/hazyhaar/booster/eventloop"
	"github.com/hazyhaar/booster/host"
	"github.com/hazyhaar/booster/internal/browser"
	"github.com/hazyhaar/booster/internal/config"
	"github.com/hazyhaar/booster/journal"
	"github.com/hazyhaar/booster/server"
	"github.com/hazyhaar/booster/zapper"
)

var version = "dev"

type urlList []string

func (u *urlList) String() string     { return strings.Join(*u, ",") }
func (u *urlList) Set(s string) error { *u = append(*u, s); return nil }

func main() {
	configPath := flag.String("config", "", "path to boost.yaml config file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	hashPassword := flag.Bool("hash-password", false, "read a password on stdin, print its bcrypt hash and exit")
	var urls urlList
	flag.Var(&urls, "url", "open a URL at startup (repeatable)")
	flag.Parse()

	if *hashPassword {
		if err := printHash(); err != nil {
			fmt.Fprintln(os.Stderr, "boostd:", err)
			os.Exit(1)
		}
		return
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "boostd:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "boostd:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	cfg.Browser.StartURLs = append(cfg.Browser.StartURLs, urls...)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("boostd: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printHash() error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimRight(line, "\r\n")), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return err
		}
		defer j.Close()
		jrnl = j
	}

	// Controller: its reply listeners live on the hub port, on their own loop.
	hubLoop := eventloop.New("controller", logger)
	go hubLoop.Run(ctx)
	defer hubLoop.Close()
	hub := channel.NewPort(channel.ControllerSource, hubLoop, logger)
	ctrl := controller.New(hub, controller.Options{
		Logger:    logger,
		Display:   controller.LogDisplay{Logger: logger},
		ScaleMin:  cfg.Controller.ScaleMin,
		ScaleMax:  cfg.Controller.ScaleMax,
		ScaleStep: cfg.Controller.ScaleStep,
		Mode:      zapper.ParseMode(cfg.Controller.Mode),
		Colors:    cfg.Controller.Colors,
		Fonts:     cfg.Controller.Fonts,
	})

	mode, err := browser.ParseMode(cfg.Browser.Mode)
	if err != nil {
		return err
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Mode:             mode,
		Stealth:          !cfg.Browser.DisableStealth,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		Logger:           logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	agentOpts := agent.Options{
		LeaveDelay:        cfg.Agent.LeaveDelay,
		OverlayBackground: cfg.Agent.OverlayBackground,
		OverlayBorder:     cfg.Agent.OverlayBorder,
		MarkerAttribute:   cfg.Agent.MarkerAttribute,
	}
	if jrnl != nil {
		agentOpts.Recorder = jrnl.Recorder()
	}
	h := host.New(ctx, host.Options{
		Logger:  logger,
		Hub:     hub,
		Agent:   agentOpts,
		Browser: mgr,
		OnClose: func(d *host.Document) { ctrl.Forget(d.Sender()) },
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Shutdown(sctx)
	}()

	if cfg.Browser.Adopt {
		docs, err := h.Adopt()
		if err != nil {
			logger.Warn("boostd: adopt failed", "error", err)
		}
		logger.Info("boostd: adopted pages", "count", len(docs))
	}
	for _, u := range cfg.Browser.StartURLs {
		if _, err := h.Open(ctx, u); err != nil {
			logger.Warn("boostd: open failed", "url", u, "error", err)
		}
	}

	srv := server.New(server.Options{
		Logger:         logger,
		Host:           h,
		Controller:     ctrl,
		Journal:        jrnl,
		AuthUser:       cfg.Server.Auth.User,
		AuthHash:       cfg.Server.Auth.PasswordHash,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Version:        version,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("boostd: listening", "addr", cfg.Server.Addr, "auth", cfg.Server.Auth.Enabled())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("boostd: serve: %w", err)
	}
	logger.Info("boostd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("boostd: shutdown", "error", err)
	}
	return nil
}
