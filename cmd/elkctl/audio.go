package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/elkctl/internal/audio"
)

var (
	flagAudioMode        string
	flagAudioRange       string
	flagAudioSensitivity int
	flagAudioInterval    time.Duration
	flagAudioMeter       bool
	flagAudioWav         string
	flagAudioRealtime    bool

	cmdAudio = &cobra.Command{
		Use:   `audio`,
		Short: "Drive the strip from live audio or a WAV file",
		Long: `Analyze audio and map it onto the strip.

Modes:
  frequency_color    bass, mid and high energy drive red, green and blue
  energy_brightness  dominant band picks the color, energy drives brightness
  beat_effects       beats start a crossfade in the band that hit

With --meter nothing is sent to the strip; band levels are printed instead.`,
		Args: cobra.NoArgs,
		RunE: runAudio,
	}
)

func init() {
	cmdAudio.Flags().StringVarP(&flagAudioMode, `mode`, `m`, "", `visualization mode (default from config)`)
	cmdAudio.Flags().StringVarP(&flagAudioRange, `range`, `r`, "", `frequency range driving brightness: bass, mid, high, full`)
	cmdAudio.Flags().IntVarP(&flagAudioSensitivity, `sensitivity`, `s`, 0, `sensitivity 1-100 (default from config)`)
	cmdAudio.Flags().DurationVarP(&flagAudioInterval, `interval`, `i`, 0, `update interval (default from config)`)
	cmdAudio.Flags().BoolVarP(&flagAudioMeter, `meter`, `t`, false, `print audio levels only, do not control the strip`)
	cmdAudio.Flags().StringVarP(&flagAudioWav, `wav`, `w`, "", `analyze a WAV file instead of the microphone`)
	cmdAudio.Flags().BoolVar(&flagAudioRealtime, `realtime`, true, `play WAV files at playback speed`)
	app.AddCommand(cmdAudio)
}

// audioSettings merges config defaults with command line overrides.
func audioSettings() (audio.Settings, error) {
	s := audio.DefaultSettings()

	mode := cfg.Audio.Mode
	if flagAudioMode != "" {
		mode = flagAudioMode
	}
	m, err := audio.ParseMode(mode)
	if err != nil {
		return s, err
	}
	s.Mode = m

	rng := cfg.Audio.Range
	if flagAudioRange != "" {
		rng = flagAudioRange
	}
	r, err := audio.ParseRange(rng)
	if err != nil {
		return s, err
	}
	s.Range = r

	s.Sensitivity = cfg.Audio.Sensitivity
	if flagAudioSensitivity != 0 {
		if flagAudioSensitivity < 1 || flagAudioSensitivity > 100 {
			return s, fmt.Errorf("sensitivity must be between 1 and 100, got %d", flagAudioSensitivity)
		}
		s.Sensitivity = float64(flagAudioSensitivity) / 100
	}

	s.UpdateInterval = cfg.Audio.UpdateInterval
	if flagAudioInterval != 0 {
		s.UpdateInterval = flagAudioInterval
	}
	return s, nil
}

// openSource returns the WAV file or microphone source and its cleanup.
func openSource() (audio.Source, func(), error) {
	if flagAudioWav != "" {
		w, err := audio.LoadWav(flagAudioWav)
		if err != nil {
			return nil, nil, err
		}
		w.Realtime = flagAudioRealtime
		slog.Info("[AUDIO] wav loaded", "path", flagAudioWav, "rate", w.SampleRate(), "duration", w.Duration().Round(time.Millisecond))
		return w, func() {}, nil
	}

	rec, err := audio.NewRecorder(cfg.Audio.SampleRate, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("%w\n\nEnsure microphone access is granted to this terminal", err)
	}
	return rec, func() { _ = rec.Close() }, nil
}

func runAudio(*cobra.Command, []string) error {
	settings, err := audioSettings()
	if err != nil {
		return err
	}
	src, closeSrc, err := openSource()
	if err != nil {
		return err
	}
	defer closeSrc()

	ctx, stop := signalContext()
	defer stop()

	if flagAudioMeter {
		v, err := audio.NewVisualizer(settings, src.SampleRate(), nil)
		if err != nil {
			return err
		}
		v.OnUpdate = printMeter
		fmt.Println("Meter mode. Press Ctrl+C to exit.")
		err = v.Run(ctx, src)
		fmt.Println()
		return err
	}

	c := newController()
	if err := c.ConnectWithRetry(ctx, cfg.Device.ReconnectMax); err != nil {
		return err
	}
	printBanner(c)
	light := c.Resilient(cfg.Device.ReconnectMax)
	defer func() { _ = light.Close() }()

	v, err := audio.NewVisualizer(settings, src.SampleRate(), light)
	if err != nil {
		return err
	}
	fmt.Println("Visualizing. Press Ctrl+C to exit.")
	err = v.Run(ctx, src)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// Leave the strip dark like a stopped player.
	offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if offErr := light.PowerOff(offCtx); offErr != nil {
		slog.Warn("[AUDIO] power off failed", "error", offErr)
	}
	return err
}

// printMeter renders one line of band level bars.
func printMeter(l audio.Levels, _ audio.Output) {
	bar := func(e float64) string {
		return strings.Repeat("█", int(e*30))
	}
	fmt.Fprintf(os.Stdout, "\rBass: %-30s | Mid: %-30s | High: %-30s | %5.1f BPM",
		bar(l.Energy[audio.RangeBass]), bar(l.Energy[audio.RangeMid]), bar(l.Energy[audio.RangeHigh]), l.BPM)
}
