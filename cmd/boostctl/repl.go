package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/controller"
	"github.com/hazyhaar/booster/zapper"
)

// replCommand is one parsed repl line.
type replCommand struct {
	name string
	arg  string
}

// parseLine splits a repl line into a command and its argument. "+" and
// "-" are shorthands for adjusting the scale by one step.
func parseLine(line string) (replCommand, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return replCommand{}, false
	}
	switch line {
	case "+":
		return replCommand{name: "step", arg: "1"}, true
	case "-":
		return replCommand{name: "step", arg: "-1"}, true
	}
	name, arg, _ := strings.Cut(line, " ")
	return replCommand{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

// apply runs one repl command. It returns false when the repl should end.
func apply(c *controller.Controller, t channel.Sender, cmd replCommand, out io.Writer) bool {
	switch cmd.name {
	case "quit", "exit":
		return false
	case "invoke":
		c.Invoke(t)
	case "toggle":
		c.ToggleAttribute(t)
	case "bg":
		c.SetBackground(t, cmd.arg)
	case "font":
		c.SetFontFamily(t, cmd.arg)
	case "scale":
		v, err := strconv.ParseFloat(cmd.arg, 64)
		if err != nil {
			fmt.Fprintf(out, "scale: %v\n", err)
			break
		}
		c.SetScale(t, v)
	case "adjust":
		v, err := strconv.ParseFloat(cmd.arg, 64)
		if err != nil {
			fmt.Fprintf(out, "adjust: %v\n", err)
			break
		}
		c.AdjustScale(t, v)
	case "step":
		n, _ := strconv.ParseFloat(cmd.arg, 64)
		c.AdjustScale(t, n*c.ScaleStep())
	case "zap":
		if cmd.arg != "" {
			c.SetMode(zapper.ParseMode(cmd.arg))
		}
		c.ActivateHide(t)
	case "unzap":
		c.DeactivateHide(t)
	case "esc":
		c.Escape(t)
	case "mode":
		if cmd.arg != "" {
			c.SetMode(zapper.ParseMode(cmd.arg))
		} else {
			c.ToggleMode()
		}
		fmt.Fprintf(out, "mode %s\n", c.Mode())
	case "probe":
		c.ProbeElement(t)
	case "status":
		st := c.Status()
		fmt.Fprintf(out, "scale %d%% mode %s\n", st.ScalePercent, st.Mode)
	default:
		fmt.Fprintf(out, "unknown command %q\n", cmd.name)
	}
	return true
}

func (s *session) repl(ctx context.Context, in io.Reader) error {
	s.ctrl.Invoke(s.remote)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, ok := parseLine(line)
			if !ok {
				continue
			}
			if !apply(s.ctrl, s.remote, cmd, s.out) {
				return nil
			}
		case <-s.events:
		case err := <-s.remote.Done():
			return connectionEnded(err)
		case <-ctx.Done():
			return nil
		}
	}
}
