package ble

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

type fakeHandle struct{ id protocol.Identity }

func (h *fakeHandle) Identity() protocol.Identity { return h.id }

// fakeTransport records frames instead of talking to a radio.
type fakeTransport struct {
	mu       sync.Mutex
	id       protocol.Identity
	findErr  error
	writeErr func(n int) error // called with the 0-based write index
	frames   []protocol.Frame
	finds    int
	releases int
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{id: protocol.Identity{Name: name, Address: "AA:BB:CC:DD:EE:FF"}}
}

func (t *fakeTransport) FindDevice(ctx context.Context) (DeviceHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finds++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.findErr != nil {
		return nil, t.findErr
	}
	return &fakeHandle{id: t.id}, nil
}

func (t *fakeTransport) WriteFrame(ctx context.Context, _ DeviceHandle, f protocol.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrTransport, err)
	}
	if t.writeErr != nil {
		if err := t.writeErr(len(t.frames)); err != nil {
			t.frames = append(t.frames, protocol.Frame{})
			return err
		}
	}
	t.frames = append(t.frames, f)
	return nil
}

func (t *fakeTransport) Release(DeviceHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releases++
	return nil
}

func (t *fakeTransport) sent() []protocol.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Frame, len(t.frames))
	copy(out, t.frames)
	return out
}

func fixedClock() time.Time {
	// Tuesday 2026-10-20 07:15:42.
	return time.Date(2026, time.October, 20, 7, 15, 42, 0, time.UTC)
}

func connectedController(t *testing.T, name string, opts ControllerOptions) (*Controller, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport(name)
	opts.SkipTimeSync = true
	c := NewController(tr, opts)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c, tr
}

func TestNewControllerPanicsOnNilTransport(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewController(nil) should panic")
		}
	}()
	NewController(nil, DefaultControllerOptions())
}

func TestControllerStartsDisconnected(t *testing.T) {
	c := NewController(newFakeTransport("ELK-BLE"), DefaultControllerOptions())
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
	if c.Variant() != protocol.VariantUnknown {
		t.Errorf("Variant() = %s, want unknown", c.Variant())
	}
	if err := c.PowerOn(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PowerOn() error = %v, want ErrNotConnected", err)
	}
}

func TestConnectResolvesVariantAndSyncsTime(t *testing.T) {
	tr := newFakeTransport("ELK-BLEDOM")
	c := NewController(tr, ControllerOptions{Now: fixedClock})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %s, want connected", c.State())
	}
	if c.Variant() != protocol.VariantElkBle {
		t.Errorf("Variant() = %s, want ELK-BLE", c.Variant())
	}

	frames := tr.sent()
	if len(frames) != 1 {
		t.Fatalf("got %d frames after Connect, want 1 time sync", len(frames))
	}
	want := []byte{0x7e, 0x00, 0x83, 7, 15, 42, 2, 0x00, 0xef}
	if !bytes.Equal(frames[0].Bytes(), want) {
		t.Errorf("sync frame = % x, want % x", frames[0].Bytes(), want)
	}
}

func TestConnectSkipsTimeSyncForMelk(t *testing.T) {
	tr := newFakeTransport("MELK-OA10")
	c := NewController(tr, ControllerOptions{Now: fixedClock})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if n := len(tr.sent()); n != 0 {
		t.Errorf("got %d frames after Connect, want 0", n)
	}
}

func TestConnectTimeSyncFailureIsNotFatal(t *testing.T) {
	tr := newFakeTransport("ELK-BLEDOM")
	tr.writeErr = func(n int) error {
		if n == 0 {
			return ErrTransport
		}
		return nil
	}
	c := NewController(tr, ControllerOptions{Now: fixedClock})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v, want nil despite failed sync", err)
	}
	if got := c.State(); got != StateConnected {
		t.Fatalf("State() = %v, want %v", got, StateConnected)
	}
	if err := c.PowerOn(context.Background()); err != nil {
		t.Fatalf("PowerOn() after failed sync error = %v", err)
	}
	sent := tr.sent()
	if len(sent) != 2 {
		t.Fatalf("got %d writes, want the failed sync then power on", len(sent))
	}
	want, _ := protocol.EncodePower(protocol.VariantElkBle, true)
	if sent[1] != want {
		t.Errorf("frame = %s, want %s", sent[1], want)
	}
	if tr.releases != 0 {
		t.Errorf("releases = %d, want 0", tr.releases)
	}
}

func TestConnectUnknownDevice(t *testing.T) {
	tr := newFakeTransport("Mystery Lamp")
	c := NewController(tr, DefaultControllerOptions())

	err := c.Connect(context.Background())
	if !errors.Is(err, protocol.ErrUnknownDevice) {
		t.Fatalf("Connect() error = %v, want ErrUnknownDevice", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
	if tr.releases != 1 {
		t.Errorf("releases = %d, want 1", tr.releases)
	}
}

func TestConnectFallbackVariant(t *testing.T) {
	tr := newFakeTransport("Mystery Lamp")
	c := NewController(tr, ControllerOptions{FallbackVariant: protocol.VariantLedBle, SkipTimeSync: true})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if c.Variant() != protocol.VariantLedBle {
		t.Errorf("Variant() = %s, want LEDBLE", c.Variant())
	}
}

func TestConnectDiscoveryError(t *testing.T) {
	tr := newFakeTransport("ELK-BLE")
	tr.findErr = ErrDiscovery
	c := NewController(tr, DefaultControllerOptions())

	if err := c.Connect(context.Background()); !errors.Is(err, ErrDiscovery) {
		t.Errorf("Connect() error = %v, want ErrDiscovery", err)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	c, tr := connectedController(t, "ELK-BLE", ControllerOptions{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if tr.finds != 1 {
		t.Errorf("FindDevice called %d times, want 1", tr.finds)
	}
}

func TestControllerCommands(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Controller) error
		want []byte
	}{
		{"power on", func(c *Controller) error { return c.PowerOn(context.Background()) },
			[]byte{0x7e, 0x00, 0x04, 0xf0, 0x00, 0x01, 0xff, 0x00, 0xef}},
		{"power off", func(c *Controller) error { return c.PowerOff(context.Background()) },
			[]byte{0x7e, 0x00, 0x04, 0x00, 0x00, 0x00, 0xff, 0x00, 0xef}},
		{"color", func(c *Controller) error { return c.SetColor(context.Background(), 255, 128, 0) },
			[]byte{0x7e, 0x00, 0x05, 0x03, 0xff, 0x80, 0x00, 0x00, 0xef}},
		{"brightness", func(c *Controller) error { return c.SetBrightness(context.Background(), 50) },
			[]byte{0x7e, 0x00, 0x01, 0x32, 0x00, 0x00, 0x00, 0x00, 0xef}},
		{"effect by name", func(c *Controller) error { return c.SetEffect(context.Background(), "rainbow") },
			[]byte{0x7e, 0x00, 0x03, 0x8a, 0x03, 0x00, 0x00, 0x00, 0xef}},
		{"effect speed", func(c *Controller) error { return c.SetEffectSpeed(context.Background(), 30) },
			[]byte{0x7e, 0x00, 0x02, 0x1e, 0x00, 0x00, 0x00, 0x00, 0xef}},
		{"schedule on", func(c *Controller) error {
			return c.SetScheduleOn(context.Background(), protocol.Monday|protocol.Thursday, 8, 30, true)
		}, []byte{0x7e, 0x00, 0x82, 0x08, 0x1e, 0x00, 0x00, 0x89, 0xef}},
		{"custom time", func(c *Controller) error { return c.SetCustomTime(context.Background(), 23, 59, 0, 7) },
			[]byte{0x7e, 0x00, 0x83, 0x17, 0x3b, 0x00, 0x07, 0x00, 0xef}},
		{"generic", func(c *Controller) error { return c.SendGeneric(context.Background(), 0x07, 0x01, 0x02, 0x03, 0x04) },
			[]byte{0x7e, 0x00, 0x07, 0x01, 0x02, 0x03, 0x04, 0x00, 0xef}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, tr := connectedController(t, "ELK-BLEDOM", ControllerOptions{})
			if err := tt.run(c); err != nil {
				t.Fatalf("error = %v", err)
			}
			frames := tr.sent()
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			if !bytes.Equal(frames[0].Bytes(), tt.want) {
				t.Errorf("frame = % x, want % x", frames[0].Bytes(), tt.want)
			}
		})
	}
}

func TestControllerColorThenBrightness(t *testing.T) {
	c, tr := connectedController(t, "ELK-BLE", ControllerOptions{})
	ctx := context.Background()

	if err := c.SetColor(ctx, 0, 0, 255); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}
	if err := c.SetBrightness(ctx, 100); err != nil {
		t.Fatalf("SetBrightness() error = %v", err)
	}

	frames := tr.sent()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Opcode() != protocol.OpColor || frames[1].Opcode() != protocol.OpBrightness {
		t.Errorf("opcodes = %#02x %#02x, want color then brightness", frames[0].Opcode(), frames[1].Opcode())
	}
}

func TestControllerInvalidInputNeverReachesTransport(t *testing.T) {
	c, tr := connectedController(t, "ELK-BLE", ControllerOptions{})
	ctx := context.Background()

	checks := []error{
		c.SetColor(ctx, 256, 0, 0),
		c.SetBrightness(ctx, 101),
		c.SetColorTemperature(ctx, 1000),
		c.SetEffectSpeed(ctx, -1),
		c.SetScheduleOff(ctx, protocol.AllDays, 24, 0, true),
		c.SetCustomTime(ctx, 12, 0, 0, 0),
	}
	for i, err := range checks {
		if !errors.Is(err, protocol.ErrInvalidInput) {
			t.Errorf("check %d: error = %v, want ErrInvalidInput", i, err)
		}
	}
	if err := c.SetEffect(ctx, "disco"); !errors.Is(err, protocol.ErrUnknownEffect) {
		t.Errorf("SetEffect(disco) error = %v, want ErrUnknownEffect", err)
	}
	if err := c.SetEffectCode(ctx, 0x10); !errors.Is(err, protocol.ErrUnknownEffect) {
		t.Errorf("SetEffectCode(0x10) error = %v, want ErrUnknownEffect", err)
	}
	if n := len(tr.sent()); n != 0 {
		t.Errorf("transport got %d frames, want 0", n)
	}
	if c.State() != StateConnected {
		t.Error("invalid input should not end the session")
	}
}

func TestControllerWriteFailureDisconnects(t *testing.T) {
	c, tr := connectedController(t, "ELK-BLE", ControllerOptions{})
	tr.writeErr = func(int) error { return ErrTransport }

	if err := c.PowerOn(context.Background()); !errors.Is(err, ErrTransport) {
		t.Fatalf("PowerOn() error = %v, want ErrTransport", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
	if tr.releases != 1 {
		t.Errorf("releases = %d, want 1", tr.releases)
	}
	if err := c.PowerOff(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PowerOff() error = %v, want ErrNotConnected", err)
	}
}

func TestControllerCancelledCommand(t *testing.T) {
	c, _ := connectedController(t, "ELK-BLE", ControllerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.SetColor(ctx, 1, 2, 3)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("SetColor() error = %v, want context.Canceled", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected after cancellation", c.State())
	}
}

func TestControllerLedBleInvertsSpeed(t *testing.T) {
	c, tr := connectedController(t, "LEDBLE-77", ControllerOptions{})
	if err := c.SetEffectSpeed(context.Background(), 30); err != nil {
		t.Fatalf("SetEffectSpeed() error = %v", err)
	}
	if got := tr.sent()[0].Payload()[0]; got != 70 {
		t.Errorf("speed byte = %d, want 70", got)
	}
}

func TestControllerClose(t *testing.T) {
	c, tr := connectedController(t, "ELK-BLE", ControllerOptions{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.State() != StateDisconnected || tr.releases != 1 {
		t.Errorf("after Close: state=%s releases=%d", c.State(), tr.releases)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if tr.releases != 1 {
		t.Errorf("second Close released again: %d", tr.releases)
	}
}

func TestControllerSerializesWrites(t *testing.T) {
	c, tr := connectedController(t, "ELK-BLE", ControllerOptions{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.SetBrightness(context.Background(), i)
		}(i)
	}
	wg.Wait()
	if n := len(tr.sent()); n != 20 {
		t.Errorf("got %d frames, want 20", n)
	}
}

func TestControllerOverBLETransport(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "ELK-BLEDOM", MAC: "AA:BB:CC:DD:EE:FF"}})
	tr := NewBLETransport(adapter, fastTransportOpts())
	c := NewController(tr, ControllerOptions{Now: fixedClock})

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.SetScheduleOn(ctx, protocol.Monday|protocol.Thursday, 8, 30, true); err != nil {
		t.Fatalf("SetScheduleOn() error = %v", err)
	}

	writes := adapter.latestConnection().writeChar.written()
	if len(writes) != 2 {
		t.Fatalf("got %d writes, want time sync + schedule", len(writes))
	}
	if writes[0][2] != protocol.OpTimeSync {
		t.Errorf("first write opcode = %#02x, want time sync", writes[0][2])
	}
	want := []byte{0x7e, 0x00, 0x82, 0x08, 0x1e, 0x00, 0x00, 0x89, 0xef}
	if !bytes.Equal(writes[1], want) {
		t.Errorf("schedule write = % x, want % x", writes[1], want)
	}
	if writes[1][7]&protocol.DayMask != 0b0001001 {
		t.Errorf("day bits = %07b, want 0001001", writes[1][7]&protocol.DayMask)
	}

	adapter.latestConnection().SimulateDisconnect()
	if err := c.PowerOff(ctx); !errors.Is(err, ErrTransport) {
		t.Errorf("PowerOff() after drop error = %v, want ErrTransport", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
}
