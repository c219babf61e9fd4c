package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

// Mode selects how analysis results drive the light.
type Mode int

const (
	// ModeFrequencyColor maps bass, mid and high energy to red, green and blue.
	ModeFrequencyColor Mode = iota
	// ModeEnergyBrightness shows the dominant band's color at a brightness
	// that follows overall energy.
	ModeEnergyBrightness
	// ModeBeatEffects starts a crossfade effect in the band that beats.
	ModeBeatEffects
)

var modeNames = [...]string{"frequency_color", "energy_brightness", "beat_effects"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode maps a mode name ("frequency_color", "energy-brightness", ...) to a Mode.
func ParseMode(s string) (Mode, error) {
	s = strings.ReplaceAll(strings.ToLower(s), "-", "_")
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown visualization mode %q", s)
}

// Settings tune the visualization.
type Settings struct {
	Mode           Mode
	Range          Range   // band whose energy drives brightness
	Sensitivity    float64 // (0, 1]
	UpdateInterval time.Duration
}

// DefaultSettings returns the stock visualization settings.
func DefaultSettings() Settings {
	return Settings{
		Mode:           ModeFrequencyColor,
		Range:          RangeFull,
		Sensitivity:    0.7,
		UpdateInterval: 50 * time.Millisecond,
	}
}

// Output is the light state for one update. Effect is a protocol effect
// code; zero means show the static color.
type Output struct {
	R, G, B    uint8
	Brightness int
	Effect     byte
}

var (
	effectCrossfadeRed   = mustEffect("crossfade_red")
	effectCrossfadeGreen = mustEffect("crossfade_green")
	effectCrossfadeBlue  = mustEffect("crossfade_blue")
)

func mustEffect(name string) byte {
	code, err := protocol.LookupEffect(name)
	if err != nil {
		panic(err)
	}
	return code
}

// Render computes the light state for l. It is a pure function of its inputs.
func Render(s Settings, l Levels) Output {
	bass, mid, high := l.Energy[RangeBass], l.Energy[RangeMid], l.Energy[RangeHigh]
	drive := l.Energy[s.Range]

	switch s.Mode {
	case ModeEnergyBrightness:
		out := Output{R: 255, G: 255, B: 255}
		switch {
		case bass > mid && bass > high && bass > 0.1:
			out = Output{R: 255}
		case mid > bass && mid > high && mid > 0.1:
			out = Output{G: 255}
		case high > bass && high > mid && high > 0.1:
			out = Output{B: 255}
		}
		out.Brightness = percent(drive, s.Sensitivity, 5)
		return out

	case ModeBeatEffects:
		var out Output
		switch {
		case l.Beat[RangeBass]:
			out = Output{R: 255, Effect: effectCrossfadeRed}
		case l.Beat[RangeMid]:
			out = Output{G: 255, Effect: effectCrossfadeGreen}
		case l.Beat[RangeHigh]:
			out = Output{B: 255, Effect: effectCrossfadeBlue}
		default:
			out = Output{R: 255, G: 255, B: 255}
		}
		out.Brightness = percent(drive, s.Sensitivity, 20)
		return out

	default:
		out := Output{
			R:          channel(bass, s.Sensitivity),
			G:          channel(mid, s.Sensitivity),
			B:          channel(high, s.Sensitivity),
			Brightness: 100,
		}
		// Keep the strip visibly lit while there is sound.
		if l.Energy[RangeFull] > 0.05 {
			out.R, out.G, out.B = max(out.R, 10), max(out.G, 10), max(out.B, 10)
		}
		return out
	}
}

func channel(energy, sensitivity float64) uint8 {
	return uint8(clampFloat(energy*255*sensitivity, 0, 255))
}

func percent(energy, sensitivity float64, floor int) int {
	return int(clampFloat(energy*100*sensitivity, float64(floor), 100))
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// Light is the subset of the LED controller the visualizer drives.
type Light interface {
	PowerOn(ctx context.Context) error
	SetColor(ctx context.Context, r, g, b int) error
	SetBrightness(ctx context.Context, pct int) error
	SetEffectCode(ctx context.Context, code byte) error
}

// Visualizer feeds a Source through an Analyzer and drives a Light.
type Visualizer struct {
	settings Settings
	analyzer *Analyzer
	light    Light
	now      func() time.Time

	// OnUpdate, when set, observes every rendered update (used by the level meter).
	OnUpdate func(Levels, Output)

	last    Output
	applied bool
}

// NewVisualizer validates settings and builds an analyzer for src's rate.
func NewVisualizer(s Settings, sampleRate uint32, light Light) (*Visualizer, error) {
	if s.Sensitivity <= 0 || s.Sensitivity > 1 {
		return nil, fmt.Errorf("sensitivity must be in (0, 1], got %v", s.Sensitivity)
	}
	if s.UpdateInterval <= 0 {
		return nil, fmt.Errorf("update interval must be > 0")
	}
	a, err := NewAnalyzer(sampleRate, 0)
	if err != nil {
		return nil, err
	}
	return &Visualizer{settings: s, analyzer: a, light: light, now: time.Now}, nil
}

// Run consumes src until it is exhausted or ctx is done. Light errors end
// the run. A nil light renders without sending anything.
func (v *Visualizer) Run(ctx context.Context, src Source) error {
	blocks, err := src.Stream(ctx)
	if err != nil {
		return fmt.Errorf("starting audio source: %w", err)
	}

	if v.light != nil {
		if err := v.light.PowerOn(ctx); err != nil {
			return fmt.Errorf("powering on: %w", err)
		}
	}

	slog.Info("[AUDIO] visualization started", "mode", v.settings.Mode, "range", v.settings.Range,
		"sensitivity", v.settings.Sensitivity, "interval", v.settings.UpdateInterval)

	ticker := time.NewTicker(v.settings.UpdateInterval)
	defer ticker.Stop()

	updates := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case block, ok := <-blocks:
			if !ok {
				slog.Info("[AUDIO] source finished", "updates", updates)
				_, err := v.Step(ctx)
				return err
			}
			v.analyzer.Write(block)
		case <-ticker.C:
			applied, err := v.Step(ctx)
			if err != nil {
				return err
			}
			if applied {
				updates++
			}
		}
	}
}

// Step analyzes the current window and applies the rendered output.
// It reports whether an update was produced.
func (v *Visualizer) Step(ctx context.Context) (bool, error) {
	if !v.analyzer.Analyze(v.now()) {
		return false, nil
	}
	levels := v.analyzer.Levels()
	out := Render(v.settings, levels)
	if v.OnUpdate != nil {
		v.OnUpdate(levels, out)
	}
	if v.light != nil {
		if err := v.apply(ctx, out); err != nil {
			return false, err
		}
	}
	slog.Debug("[AUDIO] update", "bass", levels.Energy[RangeBass], "mid", levels.Energy[RangeMid],
		"high", levels.Energy[RangeHigh], "bpm", levels.BPM, "r", out.R, "g", out.G, "b", out.B,
		"brightness", out.Brightness, "effect", out.Effect)
	return true, nil
}

// apply sends only what changed since the previous update.
func (v *Visualizer) apply(ctx context.Context, out Output) error {
	first := !v.applied
	if out.Effect != 0 {
		if first || out.Effect != v.last.Effect {
			if err := v.light.SetEffectCode(ctx, out.Effect); err != nil {
				return fmt.Errorf("setting effect: %w", err)
			}
		}
	} else if first || v.last.Effect != 0 || out.R != v.last.R || out.G != v.last.G || out.B != v.last.B {
		if err := v.light.SetColor(ctx, int(out.R), int(out.G), int(out.B)); err != nil {
			return fmt.Errorf("setting color: %w", err)
		}
	}
	if first || out.Brightness != v.last.Brightness {
		if err := v.light.SetBrightness(ctx, out.Brightness); err != nil {
			return fmt.Errorf("setting brightness: %w", err)
		}
	}
	v.last = out
	v.applied = true
	return nil
}
