package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig `yaml:"device"`
	MQTT     MQTTConfig   `yaml:"mqtt"`
	Audio    AudioConfig  `yaml:"audio"`
	LogLevel string       `yaml:"log_level"`
}

// DeviceConfig selects and paces the LED controller.
type DeviceConfig struct {
	Address      string        `yaml:"address"` // MAC (Linux) or CoreBluetooth UUID (macOS); empty = first compatible
	Variant      string        `yaml:"variant"` // fallback when the advertised name is unrecognised
	ScanTimeout  time.Duration `yaml:"scan_timeout"`
	CommandDelay time.Duration `yaml:"command_delay"` // 0 = per-variant default
	SyncTime     bool          `yaml:"sync_time"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// MQTTConfig holds broker settings for the MQTT bridge.
type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	BaseTopic string `yaml:"base_topic"`
	QoS       byte   `yaml:"qos"`
}

// AudioConfig holds capture and visualization settings.
type AudioConfig struct {
	SampleRate     uint32        `yaml:"sample_rate"`
	Mode           string        `yaml:"mode"`  // "frequency_color", "energy_brightness" or "beat_effects"
	Range          string        `yaml:"range"` // "bass", "mid", "high" or "full"
	Sensitivity    float64       `yaml:"sensitivity"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "elkctl")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ScanTimeout:  10 * time.Second,
			SyncTime:     true,
			ReconnectMax: 30 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:    "tcp://localhost:1883",
			ClientID:  "elkctl",
			BaseTopic: "elkctl/strip",
			QoS:       1,
		},
		Audio: AudioConfig{
			SampleRate:     44100,
			Mode:           "frequency_color",
			Range:          "full",
			Sensitivity:    0.7,
			UpdateInterval: 50 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.MQTT.BaseTopic = strings.TrimRight(cfg.MQTT.BaseTopic, "/")

	return cfg, nil
}

const defaultHeader = `# elkctl configuration
# device.address pins a controller; leave empty to use the first compatible one.
# device.variant is used when the advertised name is not recognised
# (elk-ble, ledble, melk, elk-bulb, elk-lampl).
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything when the file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if path == "config.yaml" {
		return "", errors.New("cannot determine home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(c.Device.Variant)) {
	case "", "elkble", "ledble", "melk", "elkbulb", "elklampl":
	default:
		return fmt.Errorf("device.variant must be elk-ble, ledble, melk, elk-bulb or elk-lampl, got %q", c.Device.Variant)
	}

	if c.Device.ScanTimeout <= 0 {
		return fmt.Errorf("device.scan_timeout must be > 0")
	}

	if c.Device.CommandDelay < 0 {
		return fmt.Errorf("device.command_delay must be >= 0")
	}

	if c.Device.ReconnectMax <= 0 {
		return fmt.Errorf("device.reconnect_max must be > 0")
	}

	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must not be empty")
	}

	if c.MQTT.BaseTopic == "" || strings.ContainsAny(c.MQTT.BaseTopic, "#+") {
		return fmt.Errorf("mqtt.base_topic must be a non-empty topic without wildcards, got %q", c.MQTT.BaseTopic)
	}

	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	switch c.Audio.Mode {
	case "frequency_color", "energy_brightness", "beat_effects":
	default:
		return fmt.Errorf("audio.mode must be frequency_color, energy_brightness or beat_effects, got %q", c.Audio.Mode)
	}

	switch c.Audio.Range {
	case "bass", "mid", "high", "full":
	default:
		return fmt.Errorf("audio.range must be bass, mid, high or full, got %q", c.Audio.Range)
	}

	if c.Audio.Sensitivity <= 0 || c.Audio.Sensitivity > 1 {
		return fmt.Errorf("audio.sensitivity must be in (0, 1], got %v", c.Audio.Sensitivity)
	}

	if c.Audio.UpdateInterval <= 0 {
		return fmt.Errorf("audio.update_interval must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
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

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
