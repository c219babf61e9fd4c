package ble

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

// DefaultReconnectMax caps the delay between reconnect attempts.
const DefaultReconnectMax = 30 * time.Second

// backoffDelay returns the reconnection delay for attempt n, capped at maxDelay.
func backoffDelay(attempt int, maxDelay time.Duration) time.Duration {
	if attempt > 30 {
		return maxDelay
	}
	return min(time.Duration(1<<uint(attempt))*time.Second, maxDelay)
}

// ConnectWithRetry calls Connect until it succeeds or ctx is done. The first
// attempt is immediate; later attempts back off exponentially up to maxDelay.
// An unrecognised device is not retried.
func (c *Controller) ConnectWithRetry(ctx context.Context, maxDelay time.Duration) error {
	if maxDelay <= 0 {
		maxDelay = DefaultReconnectMax
	}
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, maxDelay)
			slog.Info("[BLE] reconnect backoff", "attempt", attempt+1, "delay", delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := c.Connect(ctx)
		if err == nil {
			if attempt > 0 {
				slog.Info("[BLE] reconnected", "attempts", attempt+1)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, protocol.ErrUnknownDevice) {
			return err
		}
		slog.Warn("[BLE] connect failed", "error", err, "attempt", attempt+1)
	}
}

// Do runs fn against the Controller, reconnecting first when the session is
// down. A failed command is retried once after reconnecting.
func (c *Controller) Do(ctx context.Context, maxDelay time.Duration, fn func(context.Context, *Controller) error) error {
	if c.State() != StateConnected {
		if err := c.ConnectWithRetry(ctx, maxDelay); err != nil {
			return err
		}
	}
	err := fn(ctx, c)
	if err == nil || !errors.Is(err, ErrTransport) || ctx.Err() != nil {
		return err
	}
	slog.Warn("[BLE] command failed, reconnecting", "error", err)
	if err := c.ConnectWithRetry(ctx, maxDelay); err != nil {
		return err
	}
	return fn(ctx, c)
}

// Resilient runs each command through Do, so long-running callers survive a
// dropped link.
type Resilient struct {
	c        *Controller
	maxDelay time.Duration
}

// Resilient wraps c with reconnect handling capped at maxDelay.
func (c *Controller) Resilient(maxDelay time.Duration) *Resilient {
	return &Resilient{c: c, maxDelay: maxDelay}
}

// Controller returns the wrapped controller.
func (r *Resilient) Controller() *Controller { return r.c }

func (r *Resilient) do(ctx context.Context, fn func(context.Context, *Controller) error) error {
	return r.c.Do(ctx, r.maxDelay, fn)
}

func (r *Resilient) PowerOn(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context, c *Controller) error { return c.PowerOn(ctx) })
}

func (r *Resilient) PowerOff(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context, c *Controller) error { return c.PowerOff(ctx) })
}

func (r *Resilient) SetColor(ctx context.Context, red, green, blue int) error {
	return r.do(ctx, func(ctx context.Context, c *Controller) error { return c.SetColor(ctx, red, green, blue) })
}

func (r *Resilient) SetBrightness(ctx context.Context, pct int) error {
	return r.do(ctx, func(ctx context.Context, c *Controller) error { return c.SetBrightness(ctx, pct) })
}

func (r *Resilient) SetColorTemperature(ctx context.Context, kelvin int) error {
	return r.do(ctx, func(ctx context.Context, c *Controller) error { return c.SetColorTemperature(ctx, kelvin) })
}

func (r *Resilient) SetEffect(ctx context.Context, name string) error {
	return r.do(ctx, func(ctx context.Context, c *Controller) error { return c.SetEffect(ctx, name) })
}

func (r *Resilient) SetEffectCode(ctx context.Context, code byte) error {
	return r.do(ctx, func(ctx context.Context, c *Controller) error { return c.SetEffectCode(ctx, code) })
}

func (r *Resilient) SetEffectSpeed(ctx context.Context, pct int) error {
	return r.do(ctx, func(ctx context.Context, c *Controller) error { return c.SetEffectSpeed(ctx, pct) })
}

// Close ends the session.
func (r *Resilient) Close() error { return r.c.Close() }
