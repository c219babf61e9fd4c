package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

// State is the session state of a Controller.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// ControllerOptions configures the Controller behavior.
type ControllerOptions struct {
	// FallbackVariant is used when the device name is not recognised.
	// VariantUnknown makes Connect fail with protocol.ErrUnknownDevice instead.
	FallbackVariant protocol.Variant
	// SkipTimeSync disables the clock sync sent after connecting.
	SkipTimeSync bool
	// Now supplies wall-clock time for sync; defaults to time.Now.
	Now func() time.Time
}

// DefaultControllerOptions returns sensible defaults.
func DefaultControllerOptions() ControllerOptions {
	return ControllerOptions{Now: time.Now}
}

// Controller is the command facade for one LED strip. Writes are serialized:
// at most one frame is outstanding at a time.
type Controller struct {
	transport Transport
	opts      ControllerOptions

	mu      sync.Mutex
	state   State
	handle  DeviceHandle
	variant protocol.Variant
}

// NewController creates a disconnected Controller.
// Panics if transport is nil (programmer error).
func NewController(transport Transport, opts ControllerOptions) *Controller {
	if transport == nil {
		panic("ble: NewController called with nil transport")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{transport: transport, opts: opts}
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Variant returns the variant detected by Connect, or VariantUnknown.
func (c *Controller) Variant() protocol.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variant
}

// Identity returns the connected device's identity.
func (c *Controller) Identity() (protocol.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return protocol.Identity{}, false
	}
	return c.handle.Identity(), true
}

// Connect discovers a device, resolves its variant and synchronizes its clock.
// A failed clock sync is logged and does not fail Connect.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConnected {
		return nil
	}

	h, err := c.transport.FindDevice(ctx)
	if err != nil {
		return fmt.Errorf("ble: find device: %w", err)
	}

	id := h.Identity()
	v, err := protocol.ResolveVariant(id)
	if err != nil {
		if !c.opts.FallbackVariant.Valid() {
			_ = c.transport.Release(h)
			return fmt.Errorf("ble: resolve variant: %w", err)
		}
		v = c.opts.FallbackVariant
		slog.Warn("[BLE] unknown device, using fallback variant", "name", id.Name, "variant", v)
	}

	// A cancellation that raced with discovery must not leave a half-open session.
	if err := ctx.Err(); err != nil {
		_ = c.transport.Release(h)
		return fmt.Errorf("ble: connect: %w", err)
	}

	c.handle = h
	c.variant = v
	c.state = StateConnected
	slog.Info("[BLE] session ready", "name", id.Name, "mac", id.Address, "variant", v)

	layout, _ := protocol.LayoutFor(v)
	if layout.TimeSync && !c.opts.SkipTimeSync {
		f, err := protocol.TimeSyncFrom(v, c.opts.Now())
		if err == nil {
			// The session stays up; the next command finds out if the link is gone.
			err = c.transport.WriteFrame(ctx, h, f)
		}
		if err != nil {
			slog.Warn("[BLE] time sync failed", "error", err)
		}
	}
	return nil
}

// Close ends the session. It is safe to call on a disconnected Controller.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *Controller) disconnectLocked() error {
	if c.handle == nil {
		c.state = StateDisconnected
		return nil
	}
	h := c.handle
	c.handle = nil
	c.state = StateDisconnected
	if err := c.transport.Release(h); err != nil {
		return fmt.Errorf("ble: release device: %w", err)
	}
	return nil
}

// send encodes with enc and writes the frame. Encoding errors never reach the transport.
func (c *Controller) send(ctx context.Context, what string, enc func(protocol.Variant) (protocol.Frame, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, what, enc)
}

func (c *Controller) sendLocked(ctx context.Context, what string, enc func(protocol.Variant) (protocol.Frame, error)) error {
	if c.state != StateConnected {
		return fmt.Errorf("ble: %s: %w", what, ErrNotConnected)
	}
	f, err := enc(c.variant)
	if err != nil {
		return fmt.Errorf("ble: %s: %w", what, err)
	}
	if err := c.transport.WriteFrame(ctx, c.handle, f); err != nil {
		slog.Warn("[BLE] write failed, closing session", "command", what, "error", err)
		_ = c.disconnectLocked()
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("ble: %s: %w: %w", what, err, ctxErr)
		}
		return fmt.Errorf("ble: %s: %w", what, err)
	}
	slog.Debug("[BLE] sent", "command", what, "frame", f.String())
	return nil
}

// PowerOn switches the strip on.
func (c *Controller) PowerOn(ctx context.Context) error {
	return c.send(ctx, "power on", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodePower(v, true)
	})
}

// PowerOff switches the strip off.
func (c *Controller) PowerOff(ctx context.Context) error {
	return c.send(ctx, "power off", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodePower(v, false)
	})
}

// SetColor sets a static RGB color. Each channel must be within [0, 255].
func (c *Controller) SetColor(ctx context.Context, r, g, b int) error {
	return c.send(ctx, "set color", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodeColor(v, r, g, b)
	})
}

// SetBrightness sets brightness in percent [0, 100].
func (c *Controller) SetBrightness(ctx context.Context, pct int) error {
	return c.send(ctx, "set brightness", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodeBrightness(v, pct)
	})
}

// SetColorTemperature switches to white mode at the given Kelvin value.
func (c *Controller) SetColorTemperature(ctx context.Context, kelvin int) error {
	return c.send(ctx, "set color temperature", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodeColorTemperature(v, kelvin)
	})
}

// SetEffect starts a built-in effect by name (see protocol.Effects).
func (c *Controller) SetEffect(ctx context.Context, name string) error {
	code, err := protocol.LookupEffect(name)
	if err != nil {
		return fmt.Errorf("ble: set effect: %w", err)
	}
	return c.SetEffectCode(ctx, code)
}

// SetEffectCode starts a built-in effect by protocol code.
func (c *Controller) SetEffectCode(ctx context.Context, code byte) error {
	return c.send(ctx, "set effect", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodeEffect(v, code)
	})
}

// SetEffectSpeed sets effect speed in percent [0, 100]; higher is faster.
func (c *Controller) SetEffectSpeed(ctx context.Context, pct int) error {
	return c.send(ctx, "set effect speed", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodeEffectSpeed(v, pct)
	})
}

// SetScheduleOn programs the device to switch on at hour:minute on days.
func (c *Controller) SetScheduleOn(ctx context.Context, days protocol.Days, hour, minute int, enabled bool) error {
	return c.setSchedule(ctx, protocol.Schedule{
		Direction: protocol.DirectionOn,
		Days:      days,
		Hour:      hour,
		Minute:    minute,
		Enabled:   enabled,
	})
}

// SetScheduleOff programs the device to switch off at hour:minute on days.
func (c *Controller) SetScheduleOff(ctx context.Context, days protocol.Days, hour, minute int, enabled bool) error {
	return c.setSchedule(ctx, protocol.Schedule{
		Direction: protocol.DirectionOff,
		Days:      days,
		Hour:      hour,
		Minute:    minute,
		Enabled:   enabled,
	})
}

func (c *Controller) setSchedule(ctx context.Context, s protocol.Schedule) error {
	return c.send(ctx, "set schedule "+s.Direction.String(), func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodeSchedule(v, s)
	})
}

// SetCustomTime sets the device clock. dayOfWeek runs from 1 (Monday) to 7 (Sunday).
func (c *Controller) SetCustomTime(ctx context.Context, hour, minute, second, dayOfWeek int) error {
	return c.send(ctx, "set time", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodeTimeSync(v, hour, minute, second, dayOfWeek)
	})
}

// SyncTime sets the device clock from the configured clock.
func (c *Controller) SyncTime(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncTimeLocked(ctx, c.opts.Now())
}

func (c *Controller) syncTimeLocked(ctx context.Context, now time.Time) error {
	return c.sendLocked(ctx, "sync time", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.TimeSyncFrom(v, now)
	})
}

// SendGeneric writes a raw command frame, for probing undocumented opcodes.
func (c *Controller) SendGeneric(ctx context.Context, op, sub, a1, a2, a3 byte) error {
	return c.send(ctx, "generic command", func(v protocol.Variant) (protocol.Frame, error) {
		return protocol.EncodeGeneric(v, op, sub, a1, a2, a3)
	})
}
