// Command elkctl controls ELK-BLEDOM family Bluetooth LED strips.
//
// Usage:
//
//	elkctl on
//	elkctl color --red 255 --green 64 --blue 0
//	elkctl effect --effect rainbow --speed 50
//	elkctl audio --mode beat_effects
//	elkctl mqtt
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/elkctl/internal/ble"
	"github.com/chaz8081/elkctl/internal/ble/protocol"
	"github.com/chaz8081/elkctl/internal/config"
)

var (
	cfg *config.Config

	flagConfig   string
	flagAddress  string
	flagVariant  string
	flagLogLevel string

	app = &cobra.Command{
		Use:           `elkctl`,
		Short:         "Control ELK-BLEDOM Bluetooth LED strips",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			return setup()
		},
	}
)

func init() {
	app.PersistentFlags().StringVarP(&flagConfig, `config`, `c`, "", `path to config file (default: ~/.config/elkctl/config.yaml)`)
	app.PersistentFlags().StringVarP(&flagAddress, `address`, `a`, "", `device MAC address (CoreBluetooth UUID on macOS)`)
	app.PersistentFlags().StringVar(&flagVariant, `variant`, "", `fallback variant for unrecognised devices: elk-ble, ledble, melk, elk-bulb, elk-lampl`)
	app.PersistentFlags().StringVarP(&flagLogLevel, `log-level`, `L`, "", `log level, one of: [debug,info,warn,error]`)
}

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and installs the logger.
func setup() error {
	var err error
	cfg, err = loadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if flagAddress != "" {
		cfg.Device.Address = flagAddress
	}
	if flagVariant != "" {
		cfg.Device.Variant = flagVariant
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		c, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return c, nil
	}
	return config.Default(), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newController builds a disconnected controller from cfg.
func newController() *ble.Controller {
	fallback := protocol.VariantUnknown
	if cfg.Device.Variant != "" {
		// Validate has already accepted the name.
		fallback, _ = protocol.ParseVariant(cfg.Device.Variant)
	}

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

// withController connects, runs fn and closes the session.
func withController(fn func(ctx context.Context, c *ble.Controller) error) error {
	ctx, stop := signalContext()
	defer stop()

	c := newController()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Warn("[BLE] close failed", "error", err)
		}
	}()
	return fn(ctx, c)
}

// printBanner displays the connected device summary.
func printBanner(c *ble.Controller) {
	id, _ := c.Identity()
	fmt.Println("=== elkctl ===")
	fmt.Printf("  Device:  %s (%s)\n", id.Name, id.Address)
	fmt.Printf("  Variant: %s\n", c.Variant())
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("==============")
}
