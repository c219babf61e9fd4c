// Package daemon implements a line-oriented control protocol for scripting
// the strip from another process over stdin/stdout.
//
// Each input line is one command. Success prints "OK" on the output stream;
// failure prints "ERR <reason>" on the error stream.
package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownCommand is returned for an unrecognised command name.
var ErrUnknownCommand = errors.New("unknown command")

// Light is the controller surface the daemon drives.
type Light interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	SetColor(ctx context.Context, r, g, b int) error
	SetBrightness(ctx context.Context, pct int) error
	SetColorTemperature(ctx context.Context, kelvin int) error
	SetEffect(ctx context.Context, name string) error
	SetEffectSpeed(ctx context.Context, pct int) error
}

// Command is one parsed input line.
type Command struct {
	Name string
	Args []int
	Text string // effect name for set_effect
}

// argCount is the number of numeric arguments each command takes.
var argCount = map[string]int{
	"set_color":      3,
	"set_brightness": 1,
	"set_speed":      1,
	"set_temp":       1,
}

// ParseCommand parses "name" or "name:args". Numeric arguments are comma separated.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, errors.New("no command given")
	}
	name, arg, hasArg := strings.Cut(line, ":")
	cmd := Command{Name: strings.TrimSpace(name)}
	arg = strings.TrimSpace(arg)

	want := argCount[cmd.Name]
	switch cmd.Name {
	case "power_on", "power_off":
		return cmd, nil
	case "set_color", "set_brightness", "set_speed", "set_temp":
	case "set_effect":
		if !hasArg || arg == "" {
			return Command{}, errors.New("set_effect needs an effect name")
		}
		cmd.Text = arg
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}

	if !hasArg || arg == "" {
		return Command{}, fmt.Errorf("%s needs %d argument(s)", cmd.Name, want)
	}
	parts := strings.Split(arg, ",")
	if len(parts) != want {
		if cmd.Name == "set_color" {
			return Command{}, errors.New("invalid color format, use R,G,B (e.g. 255,0,0 for red)")
		}
		return Command{}, fmt.Errorf("%s needs %d argument(s), got %d", cmd.Name, want, len(parts))
	}
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Command{}, fmt.Errorf("%s: invalid number %q", cmd.Name, strings.TrimSpace(p))
		}
		cmd.Args = append(cmd.Args, n)
	}
	return cmd, nil
}

type Server struct {
	light Light

	// CommandTimeout bounds a single command. Zero means no limit.
	CommandTimeout time.Duration
}

func NewServer(light Light) *Server {
	return &Server{light: light}
}

// Exec runs one command against the light. A command missing its
// arguments is rejected without touching the light.
func (s *Server) Exec(ctx context.Context, cmd Command) error {
	if s.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CommandTimeout)
		defer cancel()
	}
	if want := argCount[cmd.Name]; len(cmd.Args) < want {
		return fmt.Errorf("%s needs %d argument(s), got %d", cmd.Name, want, len(cmd.Args))
	}
	switch cmd.Name {
	case "power_on":
		return s.light.PowerOn(ctx)
	case "power_off":
		return s.light.PowerOff(ctx)
	case "set_color":
		return s.light.SetColor(ctx, cmd.Args[0], cmd.Args[1], cmd.Args[2])
	case "set_brightness":
		return s.light.SetBrightness(ctx, cmd.Args[0])
	case "set_speed":
		return s.light.SetEffectSpeed(ctx, cmd.Args[0])
	case "set_temp":
		return s.light.SetColorTemperature(ctx, cmd.Args[0])
	case "set_effect":
		return s.light.SetEffect(ctx, cmd.Text)
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
}

// Serve reads commands from in until EOF or ctx is done. Blank lines are
// skipped. Command failures are reported to errOut and do not stop the loop.
func (s *Server) Serve(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return ctx.Err()
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := s.handle(ctx, line, out, errOut); err != nil {
				return err
			}
		}
	}
}

// handle runs one line and writes the reply. Only write failures are returned.
func (s *Server) handle(ctx context.Context, line string, out, errOut io.Writer) error {
	cmd, err := ParseCommand(line)
	if err == nil {
		err = s.Exec(ctx, cmd)
	}
	if err != nil {
		slog.Warn("[DAEMON] command failed", "line", line, "error", err)
		_, werr := fmt.Fprintf(errOut, "ERR %s\n", err)
		return werr
	}
	slog.Debug("[DAEMON] command ok", "command", cmd.Name)
	_, werr := fmt.Fprintln(out, "OK")
	return werr
}
