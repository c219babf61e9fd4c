package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

func TestReconnectBackoff(t *testing.T) {
	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second, // still capped
	}

	for i, want := range delays {
		got := backoffDelay(i, 30*time.Second)
		if got != want {
			t.Errorf("backoffDelay(%d, 30s) = %v, want %v", i, got, want)
		}
	}
	if got := backoffDelay(100, 30*time.Second); got != 30*time.Second {
		t.Errorf("backoffDelay(100, 30s) = %v, want 30s", got)
	}
	if got := backoffDelay(3, 5*time.Second); got != 5*time.Second {
		t.Errorf("backoffDelay(3, 5s) = %v, want 5s", got)
	}
}

func TestConnectWithRetryFirstAttempt(t *testing.T) {
	tr := newFakeTransport("ELK-BLE")
	c := NewController(tr, ControllerOptions{SkipTimeSync: true})

	if err := c.ConnectWithRetry(context.Background(), time.Second); err != nil {
		t.Fatalf("ConnectWithRetry() error = %v", err)
	}
	if tr.finds != 1 {
		t.Errorf("FindDevice called %d times, want 1", tr.finds)
	}
}

func TestConnectWithRetryStopsOnCancel(t *testing.T) {
	tr := newFakeTransport("ELK-BLE")
	tr.findErr = ErrDiscovery
	c := NewController(tr, ControllerOptions{SkipTimeSync: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.ConnectWithRetry(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ConnectWithRetry() error = %v, want DeadlineExceeded", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
}

func TestConnectWithRetryUnknownDeviceIsFinal(t *testing.T) {
	tr := newFakeTransport("Mystery Lamp")
	c := NewController(tr, ControllerOptions{SkipTimeSync: true})

	err := c.ConnectWithRetry(context.Background(), time.Minute)
	if !errors.Is(err, protocol.ErrUnknownDevice) {
		t.Fatalf("ConnectWithRetry() error = %v, want ErrUnknownDevice", err)
	}
	if tr.finds != 1 {
		t.Errorf("FindDevice called %d times, want 1", tr.finds)
	}
}

func TestDoReconnectsAfterDrop(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "ELK-BLE", MAC: "AA:BB:CC:DD:EE:FF"}})
	tr := NewBLETransport(adapter, fastTransportOpts())
	c := NewController(tr, ControllerOptions{SkipTimeSync: true})
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first := adapter.latestConnection()
	first.SimulateDisconnect()

	err := c.Do(ctx, time.Second, func(ctx context.Context, c *Controller) error {
		return c.PowerOn(ctx)
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	second := adapter.latestConnection()
	if second == first {
		t.Fatal("expected a fresh connection after the drop")
	}
	if n := len(second.writeChar.written()); n != 1 {
		t.Errorf("fresh connection got %d writes, want 1", n)
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %s, want connected", c.State())
	}
}

func TestDoConnectsWhenDisconnected(t *testing.T) {
	tr := newFakeTransport("ELK-BLE")
	c := NewController(tr, ControllerOptions{SkipTimeSync: true})

	err := c.Do(context.Background(), time.Second, func(ctx context.Context, c *Controller) error {
		return c.SetBrightness(ctx, 10)
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if n := len(tr.sent()); n != 1 {
		t.Errorf("got %d frames, want 1", n)
	}
}

func TestDoDoesNotRetryInvalidInput(t *testing.T) {
	c, tr := connectedController(t, "ELK-BLE", ControllerOptions{})

	err := c.Do(context.Background(), time.Second, func(ctx context.Context, c *Controller) error {
		return c.SetBrightness(ctx, 500)
	})
	if !errors.Is(err, protocol.ErrInvalidInput) {
		t.Errorf("Do() error = %v, want ErrInvalidInput", err)
	}
	if tr.finds != 1 {
		t.Errorf("FindDevice called %d times, want 1", tr.finds)
	}
}

func TestResilientConnectsOnDemand(t *testing.T) {
	tr := newFakeTransport("ELK-BLE")
	r := NewController(tr, ControllerOptions{SkipTimeSync: true}).Resilient(time.Second)
	ctx := context.Background()

	if err := r.SetColor(ctx, 255, 0, 0); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}
	if err := r.SetEffect(ctx, "rainbow"); err != nil {
		t.Fatalf("SetEffect() error = %v", err)
	}
	if r.Controller().State() != StateConnected {
		t.Errorf("State() = %s, want connected", r.Controller().State())
	}
	if tr.finds != 1 {
		t.Errorf("FindDevice called %d times, want 1", tr.finds)
	}
	if n := len(tr.sent()); n != 2 {
		t.Errorf("got %d frames, want 2", n)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if r.Controller().State() != StateDisconnected {
		t.Errorf("State() after Close = %s, want disconnected", r.Controller().State())
	}
}

func TestResilientRetriesAfterWriteFailure(t *testing.T) {
	tr := newFakeTransport("ELK-BLE")
	tr.writeErr = func(n int) error {
		if n == 0 {
			return ErrTransport
		}
		return nil
	}
	r := NewController(tr, ControllerOptions{SkipTimeSync: true}).Resilient(time.Second)

	if err := r.PowerOff(context.Background()); err != nil {
		t.Fatalf("PowerOff() error = %v", err)
	}
	if tr.finds != 2 {
		t.Errorf("FindDevice called %d times, want 2", tr.finds)
	}
	if n := len(tr.sent()); n != 2 {
		t.Errorf("got %d frames, want 2 (failed + retried)", n)
	}
}
