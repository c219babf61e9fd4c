package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/elkctl/internal/ble"
)

// demoLight is the subset of the controller the demo uses.
type demoLight interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	SetColor(ctx context.Context, r, g, b int) error
	SetBrightness(ctx context.Context, pct int) error
	SetColorTemperature(ctx context.Context, kelvin int) error
	SetEffect(ctx context.Context, name string) error
	SetEffectSpeed(ctx context.Context, pct int) error
}

type demoStep struct {
	name  string
	run   func(ctx context.Context, l demoLight) error
	pause bool // wait the step interval afterwards
}

var demoSteps = []demoStep{
	{"turning off", func(ctx context.Context, l demoLight) error { return l.PowerOff(ctx) }, true},
	{"turning on", func(ctx context.Context, l demoLight) error { return l.PowerOn(ctx) }, true},
	{"red", func(ctx context.Context, l demoLight) error { return l.SetColor(ctx, 255, 0, 0) }, true},
	{"green", func(ctx context.Context, l demoLight) error { return l.SetColor(ctx, 0, 255, 0) }, true},
	{"blue", func(ctx context.Context, l demoLight) error { return l.SetColor(ctx, 0, 0, 255) }, true},
	{"brightness 50%", func(ctx context.Context, l demoLight) error { return l.SetBrightness(ctx, 50) }, true},
	{"brightness 100%", func(ctx context.Context, l demoLight) error { return l.SetBrightness(ctx, 100) }, true},
	{"warm white (2700K)", func(ctx context.Context, l demoLight) error { return l.SetColorTemperature(ctx, 2700) }, true},
	{"cool white (6500K)", func(ctx context.Context, l demoLight) error { return l.SetColorTemperature(ctx, 6500) }, true},
	{"rainbow crossfade", func(ctx context.Context, l demoLight) error { return l.SetEffect(ctx, "rainbow") }, true},
	{"RGB jump", func(ctx context.Context, l demoLight) error { return l.SetEffect(ctx, "jump") }, true},
	{"RGB blink", func(ctx context.Context, l demoLight) error { return l.SetEffect(ctx, "blink") }, true},
	{"effect speed slow (20)", func(ctx context.Context, l demoLight) error { return l.SetEffectSpeed(ctx, 20) }, true},
	{"effect speed fast (80)", func(ctx context.Context, l demoLight) error { return l.SetEffectSpeed(ctx, 80) }, true},
	{"static white", func(ctx context.Context, l demoLight) error { return l.SetColor(ctx, 255, 255, 255) }, false},
	{"turning off", func(ctx context.Context, l demoLight) error { return l.PowerOff(ctx) }, false},
}

var (
	flagDemoStep time.Duration

	cmdDemo = &cobra.Command{
		Use:   `demo`,
		Short: "Walk through colors, brightness, white temperatures and effects",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *ble.Controller) error {
			printBanner(c)
			return runDemo(ctx, c, flagDemoStep)
		}),
	}
)

func init() {
	cmdDemo.Flags().DurationVarP(&flagDemoStep, `step`, `s`, 5*time.Second, `duration of each demo step`)
	app.AddCommand(cmdDemo)
}

// runDemo plays demoSteps, pausing step between them. The final white step
// holds for one second before the strip is switched off.
func runDemo(ctx context.Context, l demoLight, step time.Duration) error {
	slog.Info("running demo", "step", step)
	for i, s := range demoSteps {
		slog.Info("demo", "step", s.name)
		if err := s.run(ctx, l); err != nil {
			return err
		}
		wait := step
		if !s.pause {
			wait = min(step, time.Second)
			if i == len(demoSteps)-1 {
				wait = 0
			}
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	slog.Info("demo completed")
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
