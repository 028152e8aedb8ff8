// Command boostctl is a remote boost controller. It connects to a boostd
// document channel over websocket, runs a controller locally and prints
// what the document reports back.
//
// Usage:
//
//	boostctl [flags] invoke | toggle | bg <color> | font <family> | scale <x>
//	boostctl [flags] adjust <delta> | zap | unzap | probe | watch | repl
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/controller"
	"github.com/hazyhaar/booster/eventloop"
	"github.com/hazyhaar/booster/zapper"
)

type options struct {
	server   string
	doc      string
	codec    string
	user     string
	password string
	mode     string
	wait     time.Duration
	logLevel string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "boostctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var o options
	fs := pflag.NewFlagSet("boostctl", pflag.ContinueOnError)
	fs.StringVar(&o.server, "server", envOr("BOOST_SERVER", "http://127.0.0.1:8787"), "boostd base URL")
	fs.StringVar(&o.doc, "doc", "active", "document id")
	fs.StringVar(&o.codec, "codec", "json", "channel codec: json or cbor")
	fs.StringVar(&o.user, "user", os.Getenv("BOOST_USER"), "basic auth user")
	fs.StringVar(&o.password, "password", os.Getenv("BOOST_PASSWORD"), "basic auth password")
	fs.StringVar(&o.mode, "mode", "id", "zapper mode: id or class")
	fs.DurationVar(&o.wait, "wait", 2*time.Second, "how long to wait for the document's reply")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.Usage = func() { printHelp(fs) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	args := fs.Args()
	if len(args) == 0 {
		printHelp(fs)
		return errors.New("missing command")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := connect(ctx, o, logger)
	if err != nil {
		return err
	}
	defer s.close()
	return s.exec(ctx, args[0], args[1:])
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `boostctl controls a document hosted by boostd.

Usage: boostctl [flags] <command> [arg]

Commands:
  invoke          install the agent and report the current scale
  toggle          toggle the marker attribute on the document root
  bg <color>      set the page background
  font <family>   override the page font family
  scale <x>       set the zoom factor
  adjust <delta>  change the zoom factor relative to the current one
  zap | unzap     start or stop the element hider
  probe           report the next clicked element
  watch           print what the document reports until interrupted
  repl            read commands from stdin ("esc" ends a zap session)

Flags:
%s`, fs.FlagUsages())
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// session is one connected controller.
type session struct {
	ctrl   *controller.Controller
	remote *channel.Remote
	loop   *eventloop.Loop
	events chan event
	out    io.Writer
	opts   options
}

func connect(ctx context.Context, o options, logger *slog.Logger) (*session, error) {
	codec, err := channel.CodecByName(o.codec)
	if err != nil {
		return nil, err
	}
	wsURL, err := channelURL(o.server, o.doc)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if o.user != "" {
		token := base64.StdEncoding.EncodeToString([]byte(o.user + ":" + o.password))
		header.Set("Authorization", "Basic "+token)
	}

	loop := eventloop.New("controller", logger)
	go loop.Run(ctx)
	hub := channel.NewPort(channel.ControllerSource, loop, logger)

	events := make(chan event, 64)
	ctrl := controller.New(hub, controller.Options{
		Logger:  logger,
		Display: printer{out: os.Stdout, events: events},
		Mode:    zapper.ParseMode(o.mode),
	})

	remote, err := channel.Dial(ctx, wsURL, hub, channel.DialOptions{Codec: codec, Header: header, Logger: logger})
	if err != nil {
		loop.Close()
		return nil, err
	}
	return &session{ctrl: ctrl, remote: remote, loop: loop, events: events, out: os.Stdout, opts: o}, nil
}

func (s *session) close() {
	s.remote.Close()
	s.loop.Close()
}

// channelURL maps the server base URL to the document channel endpoint.
func channelURL(server, doc string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("--server: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("--server: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/documents/" + url.PathEscape(doc) + "/channel"
	return u.String(), nil
}

func (s *session) exec(ctx context.Context, cmd string, args []string) error {
	t := s.remote
	switch cmd {
	case "invoke":
		s.ctrl.Invoke(t)
		return s.await(ctx, evScale)
	case "toggle":
		s.ctrl.ToggleAttribute(t)
	case "bg":
		v, err := arg(cmd, args)
		if err != nil {
			return err
		}
		s.ctrl.SetBackground(t, v)
	case "font":
		if len(args) == 0 {
			return errors.New("font: missing family")
		}
		s.ctrl.SetFontFamily(t, strings.Join(args, " "))
	case "scale":
		v, err := floatArg(cmd, args)
		if err != nil {
			return err
		}
		s.ctrl.SetScale(t, v)
		return s.await(ctx, evScale)
	case "adjust":
		v, err := floatArg(cmd, args)
		if err != nil {
			return err
		}
		// The local controller starts at 1.0; learn the real scale first.
		s.ctrl.RequestScale(t)
		if err := s.await(ctx, evScale); err != nil {
			return err
		}
		s.ctrl.AdjustScale(t, v)
		return s.await(ctx, evScale)
	case "zap":
		s.ctrl.ActivateHide(t)
	case "unzap":
		s.ctrl.DeactivateHide(t)
	case "probe":
		s.ctrl.ProbeElement(t)
		return s.watch(ctx)
	case "watch":
		s.ctrl.Invoke(t)
		return s.watch(ctx)
	case "repl":
		return s.repl(ctx, os.Stdin)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func arg(cmd string, args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", fmt.Errorf("%s: expects one argument", cmd)
	}
	return args[0], nil
}

func floatArg(cmd string, args []string) (float64, error) {
	s, err := arg(cmd, args)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	return v, nil
}

// await waits for an event of kind k, at most --wait.
func (s *session) await(ctx context.Context, k eventKind) error {
	timer := time.NewTimer(s.opts.wait)
	defer timer.Stop()
	for {
		select {
		case ev := <-s.events:
			if ev.kind == k {
				return nil
			}
		case err := <-s.remote.Done():
			return connectionEnded(err)
		case <-timer.C:
			return fmt.Errorf("no reply within %s", s.opts.wait)
		case <-ctx.Done():
			return nil
		}
	}
}

// watch prints until interrupted or the connection ends.
func (s *session) watch(ctx context.Context) error {
	for {
		select {
		case <-s.events:
		case err := <-s.remote.Done():
			return connectionEnded(err)
		case <-ctx.Done():
			return nil
		}
	}
}

func connectionEnded(err error) error {
	if err != nil {
		return fmt.Errorf("connection ended: %w", err)
	}
	return errors.New("connection closed by server")
}
