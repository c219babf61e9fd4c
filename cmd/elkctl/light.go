package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chaz8081/elkctl/internal/ble"
	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

var (
	flagRed, flagGreen, flagBlue int
	flagLevel                    int
	flagKelvin                   int
	flagEffect                   string
	flagSpeed                    int

	cmdOn = &cobra.Command{
		Use:   `on`,
		Short: "Turn the strip on",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			return c.PowerOn(ctx)
		}),
	}

	cmdOff = &cobra.Command{
		Use:   `off`,
		Short: "Turn the strip off",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			return c.PowerOff(ctx)
		}),
	}

	cmdRed   = presetColor(`red`, 255, 0, 0)
	cmdGreen = presetColor(`green`, 0, 255, 0)
	cmdBlue  = presetColor(`blue`, 0, 0, 255)
	cmdWhite = presetColor(`white`, 255, 255, 255)

	cmdRainbow = &cobra.Command{
		Use:   `rainbow`,
		Short: "Start the rainbow crossfade effect",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			if err := c.PowerOn(ctx); err != nil {
				return err
			}
			return c.SetEffect(ctx, "rainbow")
		}),
	}

	cmdColor = &cobra.Command{
		Use:   `color`,
		Short: "Set a custom RGB color",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			return c.SetColor(ctx, flagRed, flagGreen, flagBlue)
		}),
	}

	cmdBrightness = &cobra.Command{
		Use:   `brightness`,
		Short: "Set brightness (0-100)",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			return c.SetBrightness(ctx, flagLevel)
		}),
	}

	cmdColorTemp = &cobra.Command{
		Use:   `color-temp`,
		Short: "Set white color temperature in Kelvin (2700-6500)",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			return c.SetColorTemperature(ctx, flagKelvin)
		}),
	}

	cmdEffect = &cobra.Command{
		Use:   `effect`,
		Short: "Start a built-in effect (see 'elkctl effects')",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			if err := c.SetEffect(ctx, flagEffect); err != nil {
				return err
			}
			return c.SetEffectSpeed(ctx, flagSpeed)
		}),
	}

	cmdEffects = &cobra.Command{
		Use:   `effects`,
		Short: "List built-in effects",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(c *cobra.Command, args []string) {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME")
			for _, e := range protocol.Effects() {
				fmt.Fprintf(w, "%#02x\t%s\n", e.Code, e.Name)
			}
			w.Flush()
			fmt.Println("\nAliases: rainbow, jump, jump_all, crossfade_rgb, blink")
		},
	}

	cmdRaw = &cobra.Command{
		Use:   `raw <op> <sub> [a1] [a2] [a3]`,
		Short: "Send a raw command frame (hex or decimal bytes)",
		Args:  cobra.RangeArgs(2, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			var b [5]byte
			for i, a := range args {
				n, err := strconv.ParseUint(a, 0, 8)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				b[i] = byte(n)
			}
			return withController(func(ctx context.Context, c *ble.Controller) error {
				return c.SendGeneric(ctx, b[0], b[1], b[2], b[3], b[4])
			})
		},
	}
)

func init() {
	cmdColor.Flags().IntVarP(&flagRed, `red`, `r`, 255, `red value (0-255)`)
	cmdColor.Flags().IntVarP(&flagGreen, `green`, `g`, 255, `green value (0-255)`)
	cmdColor.Flags().IntVarP(&flagBlue, `blue`, `b`, 255, `blue value (0-255)`)
	cmdBrightness.Flags().IntVarP(&flagLevel, `level`, `l`, 100, `brightness level (0-100)`)
	cmdColorTemp.Flags().IntVarP(&flagKelvin, `kelvin`, `k`, 4000, `color temperature in Kelvin (2700-6500)`)
	cmdEffect.Flags().StringVarP(&flagEffect, `effect`, `e`, `rainbow`, `effect name or alias`)
	cmdEffect.Flags().IntVarP(&flagSpeed, `speed`, `s`, 50, `effect speed (0-100)`)

	app.AddCommand(cmdOn, cmdOff, cmdRed, cmdGreen, cmdBlue, cmdWhite, cmdRainbow,
		cmdColor, cmdBrightness, cmdColorTemp, cmdEffect, cmdEffects, cmdRaw)
}

// run adapts a controller action to a cobra RunE.
func run(fn func(ctx context.Context, c *ble.Controller) error) func(*cobra.Command, []string) error {
	return func(*cobra.Command, []string) error {
		return withController(fn)
	}
}

// presetColor powers the strip on and sets a fixed color.
func presetColor(name string, r, g, b int) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Set the strip to %s", name),
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			if err := c.PowerOn(ctx); err != nil {
				return err
			}
			return c.SetColor(ctx, r, g, b)
		}),
	}
}
