package ble

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

func fastTransportOpts() TransportOptions {
	return TransportOptions{ScanTimeout: 50 * time.Millisecond, CommandDelay: time.Millisecond}
}

func TestFindDeviceByName(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "Headphones", MAC: "11:11:11:11:11:11", RSSI: -70},
		{Name: "ELK-BLEDOM", MAC: "AA:BB:CC:DD:EE:FF", RSSI: -45},
	})
	tr := NewBLETransport(adapter, fastTransportOpts())

	h, err := tr.FindDevice(context.Background())
	if err != nil {
		t.Fatalf("FindDevice() error = %v", err)
	}
	id := h.Identity()
	if id.Name != "ELK-BLEDOM" || id.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Identity() = %+v, want ELK-BLEDOM at AA:BB:CC:DD:EE:FF", id)
	}
	if len(adapter.connectTo) != 1 || adapter.connectTo[0] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("connected to %v, want only AA:BB:CC:DD:EE:FF", adapter.connectTo)
	}
}

func TestFindDeviceByAddress(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "ELK-BLEDOM", MAC: "AA:AA:AA:AA:AA:AA"},
		{Name: "", MAC: "BB:BB:BB:BB:BB:BB"},
	})
	opts := fastTransportOpts()
	opts.Address = "bb:bb:bb:bb:bb:bb"
	tr := NewBLETransport(adapter, opts)

	h, err := tr.FindDevice(context.Background())
	if err != nil {
		t.Fatalf("FindDevice() error = %v", err)
	}
	if got := h.Identity().Address; got != "BB:BB:BB:BB:BB:BB" {
		t.Errorf("Address = %q, want BB:BB:BB:BB:BB:BB", got)
	}
}

func TestFindDeviceUsesLedBleLayout(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "LEDBLE-1234", MAC: "AA:BB:CC:DD:EE:FF"}})
	tr := NewBLETransport(adapter, fastTransportOpts())

	if _, err := tr.FindDevice(context.Background()); err != nil {
		t.Fatalf("FindDevice() error = %v", err)
	}
	l, _ := protocol.LayoutFor(protocol.VariantLedBle)
	want := l.ServiceUUID.String() + "/" + l.WriteUUID.String()
	got := adapter.latestConnection().discovered
	if len(got) != 1 || got[0] != want {
		t.Errorf("discovered %v, want [%s]", got, want)
	}
}

func TestFindDeviceNoMatchTimesOut(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "Speaker", MAC: "11:11:11:11:11:11"}})
	tr := NewBLETransport(adapter, fastTransportOpts())

	_, err := tr.FindDevice(context.Background())
	if !errors.Is(err, ErrDiscovery) {
		t.Fatalf("FindDevice() error = %v, want ErrDiscovery", err)
	}
	if !strings.Contains(err.Error(), "no compatible device") {
		t.Errorf("error = %q, want mention of no compatible device", err)
	}
}

func TestFindDeviceCancelled(t *testing.T) {
	adapter := newMockAdapter(nil)
	tr := NewBLETransport(adapter, TransportOptions{ScanTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.FindDevice(ctx)
	if !errors.Is(err, ErrDiscovery) || !errors.Is(err, context.Canceled) {
		t.Errorf("FindDevice() error = %v, want ErrDiscovery wrapping context.Canceled", err)
	}
}

func TestFindDeviceEnableError(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.enableErr = errors.New("bluetooth off")
	tr := NewBLETransport(adapter, fastTransportOpts())

	if _, err := tr.FindDevice(context.Background()); !errors.Is(err, ErrDiscovery) {
		t.Errorf("FindDevice() error = %v, want ErrDiscovery", err)
	}
}

func TestFindDeviceConnectError(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "MELK-OA10", MAC: "AA:BB:CC:DD:EE:FF"}})
	adapter.connectErr = errors.New("le-connection-abort-by-local")
	tr := NewBLETransport(adapter, fastTransportOpts())

	if _, err := tr.FindDevice(context.Background()); !errors.Is(err, ErrDiscovery) {
		t.Errorf("FindDevice() error = %v, want ErrDiscovery", err)
	}
}

func TestWriteFrameDeliversBytes(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "ELK-BLE", MAC: "AA:BB:CC:DD:EE:FF"}})
	tr := NewBLETransport(adapter, fastTransportOpts())
	h, err := tr.FindDevice(context.Background())
	if err != nil {
		t.Fatalf("FindDevice() error = %v", err)
	}

	f, _ := protocol.EncodeColor(protocol.VariantElkBle, 255, 0, 0)
	if err := tr.WriteFrame(context.Background(), h, f); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	writes := adapter.latestConnection().writeChar.written()
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(writes))
	}
	want := []byte{0x7e, 0x00, 0x05, 0x03, 0xff, 0x00, 0x00, 0x00, 0xef}
	if !bytes.Equal(writes[0], want) {
		t.Errorf("wrote % x, want % x", writes[0], want)
	}
}

func TestWriteFramePacing(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "ELK-BLE", MAC: "AA:BB:CC:DD:EE:FF"}})
	opts := fastTransportOpts()
	opts.CommandDelay = 20 * time.Millisecond
	tr := NewBLETransport(adapter, opts)
	h, _ := tr.FindDevice(context.Background())

	f, _ := protocol.EncodePower(protocol.VariantElkBle, true)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := tr.WriteFrame(context.Background(), h, f); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}
	// The first write is immediate; the next two wait for the spacing.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("3 writes took %v, want >= 40ms of spacing", elapsed)
	}
}

func TestWriteFramePacingHonoursCancel(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "ELK-BLE", MAC: "AA:BB:CC:DD:EE:FF"}})
	opts := fastTransportOpts()
	opts.CommandDelay = time.Hour
	tr := NewBLETransport(adapter, opts)
	h, _ := tr.FindDevice(context.Background())

	f, _ := protocol.EncodePower(protocol.VariantElkBle, true)
	if err := tr.WriteFrame(context.Background(), h, f); err != nil {
		t.Fatalf("first WriteFrame() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tr.WriteFrame(ctx, h, f)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WriteFrame() error = %v, want ErrTransport wrapping DeadlineExceeded", err)
	}
	if n := len(adapter.latestConnection().writeChar.written()); n != 1 {
		t.Errorf("got %d writes, want 1", n)
	}
}

func TestWriteFrameAfterDisconnect(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "ELK-BLE", MAC: "AA:BB:CC:DD:EE:FF"}})
	tr := NewBLETransport(adapter, fastTransportOpts())
	h, _ := tr.FindDevice(context.Background())

	adapter.latestConnection().SimulateDisconnect()

	f, _ := protocol.EncodePower(protocol.VariantElkBle, false)
	err := tr.WriteFrame(context.Background(), h, f)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, ErrNotConnected) {
		t.Errorf("WriteFrame() error = %v, want ErrTransport wrapping ErrNotConnected", err)
	}
}

func TestWriteFrameCharacteristicError(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "ELK-BLE", MAC: "AA:BB:CC:DD:EE:FF"}})
	tr := NewBLETransport(adapter, fastTransportOpts())
	h, _ := tr.FindDevice(context.Background())
	adapter.latestConnection().writeChar.failWith(errors.New("att error"))

	f, _ := protocol.EncodePower(protocol.VariantElkBle, false)
	if err := tr.WriteFrame(context.Background(), h, f); !errors.Is(err, ErrTransport) {
		t.Errorf("WriteFrame() error = %v, want ErrTransport", err)
	}
}

func TestReleaseDisconnects(t *testing.T) {
	adapter := newMockAdapter([]Device{{Name: "ELK-BLE", MAC: "AA:BB:CC:DD:EE:FF"}})
	tr := NewBLETransport(adapter, fastTransportOpts())
	h, _ := tr.FindDevice(context.Background())

	if err := tr.Release(h); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !adapter.latestConnection().isDisconnected() {
		t.Error("connection should be disconnected after Release")
	}
	f, _ := protocol.EncodePower(protocol.VariantElkBle, true)
	if err := tr.WriteFrame(context.Background(), h, f); !errors.Is(err, ErrNotConnected) {
		t.Errorf("WriteFrame() after Release error = %v, want ErrNotConnected", err)
	}
}
