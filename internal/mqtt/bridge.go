// Package mqttbridge exposes the LED controller on an MQTT broker.
//
// Commands arrive on <base>/set/<field> as {"value": ...} payloads. The last
// commanded state is published, retained, on <base>/state and the bridge's
// liveness on <base>/availability.
package mqttbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"

	queueSize             = 32
	defaultCommandTimeout = 30 * time.Second
)

// Light is the controller surface the bridge drives.
type Light interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	SetColor(ctx context.Context, r, g, b int) error
	SetBrightness(ctx context.Context, pct int) error
	SetColorTemperature(ctx context.Context, kelvin int) error
	SetEffect(ctx context.Context, name string) error
	SetEffectSpeed(ctx context.Context, pct int) error
}

type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	BaseTopic string
	QoS       byte

	// CommandTimeout bounds one command, including any reconnect.
	CommandTimeout time.Duration
}

// State is the last successfully commanded light state. Nil fields have
// never been set through the bridge.
type State struct {
	Power       *string `json:"power,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	Color       *RGB    `json:"color,omitempty"`
	Brightness  *int    `json:"brightness,omitempty"`
	ColorTemp   *int    `json:"color_temp,omitempty"`
	Effect      *string `json:"effect,omitempty"`
	EffectSpeed *int    `json:"effect_speed,omitempty"`
}

type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type command struct {
	field   string
	payload []byte
}

type Bridge struct {
	light Light
	cfg   Config

	newClient func(*mqtt.ClientOptions) mqtt.Client
	client    mqtt.Client
	queue     chan command

	mu    sync.Mutex
	state State
}

// New validates cfg and fills defaults.
func New(light Light, cfg Config) (*Bridge, error) {
	if light == nil {
		return nil, errors.New("mqtt: light is required")
	}
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "elkctl"
	}
	cfg.BaseTopic = strings.TrimRight(cfg.BaseTopic, "/")
	if cfg.BaseTopic == "" {
		return nil, errors.New("mqtt: BaseTopic is required")
	}
	if strings.ContainsAny(cfg.BaseTopic, "+#") {
		return nil, fmt.Errorf("mqtt: BaseTopic %q must not contain wildcards", cfg.BaseTopic)
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	return &Bridge{
		light:     light,
		cfg:       cfg,
		newClient: mqtt.NewClient,
		queue:     make(chan command, queueSize),
	}, nil
}

// Run connects to the broker and applies commands until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2*time.Second).
		SetWill(b.topic("availability"), availabilityOffline, b.cfg.QoS, true)

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.OnConnect = b.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("[MQTT] connection lost", "error", err)
	}

	b.client = b.newClient(opts)
	tok := b.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	slog.Info("[MQTT] connected", "broker", b.cfg.BrokerURL, "base", b.cfg.BaseTopic)

	for {
		select {
		case <-ctx.Done():
			b.client.Publish(b.topic("availability"), b.cfg.QoS, true, availabilityOffline).Wait()
			b.client.Disconnect(250)
			return ctx.Err()

		case cmd := <-b.queue:
			cctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
			err := b.apply(cctx, cmd)
			cancel()
			if err != nil {
				slog.Warn("[MQTT] command failed", "field", cmd.field, "error", err)
				continue
			}
			b.publishState()
		}
	}
}

// onConnect subscribes to commands and announces availability. It runs on
// every (re)connect.
func (b *Bridge) onConnect(cl mqtt.Client) {
	tok := cl.Subscribe(b.topic("set/+"), b.cfg.QoS, b.onMessage)
	tok.Wait()
	if err := tok.Error(); err != nil {
		slog.Error("[MQTT] subscribe failed", "error", err)
		return
	}
	cl.Publish(b.topic("availability"), b.cfg.QoS, true, availabilityOnline)
	b.publishStateTo(cl)
}

// onMessage queues commands for Run. It never blocks the paho router.
func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	prefix := b.cfg.BaseTopic + "/set/"
	if !strings.HasPrefix(msg.Topic(), prefix) {
		return
	}
	cmd := command{
		field:   strings.TrimPrefix(msg.Topic(), prefix),
		payload: append([]byte(nil), msg.Payload()...),
	}
	select {
	case b.queue <- cmd:
	default:
		slog.Warn("[MQTT] command queue full, dropping", "field", cmd.field)
	}
}

// apply decodes one command, sends it to the light and records the new state.
func (b *Bridge) apply(ctx context.Context, cmd command) error {
	switch cmd.field {
	case "power":
		on, err := decodeValueStrict[bool](cmd.payload)
		if err != nil {
			return err
		}
		if on {
			err = b.light.PowerOn(ctx)
		} else {
			err = b.light.PowerOff(ctx)
		}
		if err != nil {
			return err
		}
		b.update(func(s *State) { s.Power = ptr(onOff(on)) })

	case "color":
		c, err := decodeValueStrict[RGB](cmd.payload)
		if err != nil {
			return err
		}
		if err := b.light.SetColor(ctx, c.R, c.G, c.B); err != nil {
			return err
		}
		b.update(func(s *State) { s.Mode, s.Color = "color", &c })

	case "brightness":
		v, err := decodeValueStrict[int](cmd.payload)
		if err != nil {
			return err
		}
		if err := b.light.SetBrightness(ctx, v); err != nil {
			return err
		}
		b.update(func(s *State) { s.Brightness = &v })

	case "color_temp":
		v, err := decodeValueStrict[int](cmd.payload)
		if err != nil {
			return err
		}
		if err := b.light.SetColorTemperature(ctx, v); err != nil {
			return err
		}
		b.update(func(s *State) { s.Mode, s.ColorTemp = "white", &v })

	case "effect":
		name, err := decodeValueStrict[string](cmd.payload)
		if err != nil {
			return err
		}
		if err := b.light.SetEffect(ctx, name); err != nil {
			return err
		}
		b.update(func(s *State) { s.Mode, s.Effect = "effect", &name })

	case "effect_speed":
		v, err := decodeValueStrict[int](cmd.payload)
		if err != nil {
			return err
		}
		if err := b.light.SetEffectSpeed(ctx, v); err != nil {
			return err
		}
		b.update(func(s *State) { s.EffectSpeed = &v })

	default:
		return fmt.Errorf("unknown field %q", cmd.field)
	}
	slog.Debug("[MQTT] applied", "field", cmd.field)
	return nil
}

func (b *Bridge) update(fn func(*State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.state)
}

// State returns a copy of the last commanded state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) publishState() {
	if b.client != nil {
		b.publishStateTo(b.client)
	}
}

func (b *Bridge) publishStateTo(cl mqtt.Client) {
	s := b.State()
	payload, err := json.Marshal(s)
	if err != nil {
		slog.Error("[MQTT] encoding state", "error", err)
		return
	}
	cl.Publish(b.topic("state"), b.cfg.QoS, true, payload)
}

func (b *Bridge) topic(suffix string) string {
	return b.cfg.BaseTopic + "/" + suffix
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func ptr[T any](v T) *T { return &v }

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
