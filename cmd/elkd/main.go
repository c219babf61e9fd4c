// Command elkd keeps a connection to one LED strip open and executes
// commands read line by line from stdin.
//
// Usage:
//
//	elkd [--config path] [--variant name] <address>
//
// Commands: power_on, power_off, set_color:R,G,B, set_brightness:N,
// set_effect:NAME, set_speed:N, set_temp:K. Each prints "OK" on stdout or
// "ERR <reason>" on stderr. A single "OK" is printed once connected.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/elkctl/internal/ble"
	"github.com/chaz8081/elkctl/internal/ble/protocol"
	"github.com/chaz8081/elkctl/internal/config"
	"github.com/chaz8081/elkctl/internal/daemon"
)

const usage = "Usage: elkd [--config path] [--variant name] <id/mac address>"

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/elkctl/config.yaml)")
	variant := flag.String("variant", "", "fallback variant for unrecognised devices")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	timeout := flag.Duration("timeout", 30*time.Second, "per-command timeout, including reconnects")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(*logLevel),
	})))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "ERR config: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.Device.Address = flag.Arg(0)
	if *variant != "" {
		cfg.Device.Variant = *variant
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ERR config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newController(cfg)
	if err := c.ConnectWithRetry(ctx, cfg.Device.ReconnectMax); err != nil {
		fmt.Fprintf(os.Stderr, "ERR %v\n", err)
		os.Exit(1)
	}
	light := c.Resilient(cfg.Device.ReconnectMax)
	defer func() { _ = light.Close() }()

	fmt.Println("OK")

	srv := daemon.NewServer(light)
	srv.CommandTimeout = *timeout
	if err := srv.Serve(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "ERR %v\n", err)
		os.Exit(1)
	}
}

func newController(cfg *config.Config) *ble.Controller {
	fallback, _ := protocol.ParseVariant(cfg.Device.Variant)

	topts := ble.DefaultTransportOptions()
	topts.Address = cfg.Device.Address
	topts.FallbackVariant = fallback
	topts.ScanTimeout = cfg.Device.ScanTimeout
	topts.CommandDelay = cfg.Device.CommandDelay

	copts := ble.DefaultControllerOptions()
	copts.FallbackVariant = fallback
	copts.SkipTimeSync = !cfg.Device.SyncTime

	return ble.NewController(ble.NewBLETransport(ble.NewBluetoothAdapter(), topts), copts)
}
