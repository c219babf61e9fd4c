package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

var (
	// ErrDiscovery marks failures to find or connect to a device.
	ErrDiscovery = errors.New("discovery failed")
	// ErrTransport marks failures to deliver a frame.
	ErrTransport = errors.New("transport write failed")
	// ErrNotConnected is returned for commands issued without a live session.
	ErrNotConnected = errors.New("not connected")
)

// DeviceHandle is a connected peripheral as returned by Transport.FindDevice.
type DeviceHandle interface {
	Identity() protocol.Identity
}

// Transport is everything the Controller needs from the radio side.
type Transport interface {
	// FindDevice discovers and connects to the first compatible peripheral.
	FindDevice(ctx context.Context) (DeviceHandle, error)
	// WriteFrame performs one best-effort write of f to the command characteristic.
	WriteFrame(ctx context.Context, h DeviceHandle, f protocol.Frame) error
	// Release disconnects h.
	Release(h DeviceHandle) error
}

// TransportOptions configures BLETransport.
type TransportOptions struct {
	Address         string           // connect only to this MAC/UUID; any compatible device if empty
	FallbackVariant protocol.Variant // layout used when the advertised name is not recognised
	ScanTimeout     time.Duration    // default 10s
	CommandDelay    time.Duration    // overrides the per-variant spacing when > 0
}

// DefaultTransportOptions returns sensible defaults.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		ScanTimeout: 10 * time.Second,
	}
}

// BLETransport implements Transport on top of an Adapter.
type BLETransport struct {
	adapter Adapter
	opts    TransportOptions
}

// NewBLETransport creates a transport. The adapter is enabled lazily on FindDevice.
func NewBLETransport(adapter Adapter, opts TransportOptions) *BLETransport {
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 10 * time.Second
	}
	return &BLETransport{adapter: adapter, opts: opts}
}

var _ Transport = (*BLETransport)(nil)

// bleHandle is the DeviceHandle produced by BLETransport.
type bleHandle struct {
	id    protocol.Identity
	delay time.Duration
	conn  Connection
	char  Characteristic

	mu        sync.Mutex
	lastWrite time.Time
	dropped   bool
}

func (h *bleHandle) Identity() protocol.Identity { return h.id }

func (h *bleHandle) isDropped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// matches reports whether d is the device we are looking for.
func (t *BLETransport) matches(d Device) bool {
	if t.opts.Address != "" {
		return strings.EqualFold(d.MAC, t.opts.Address)
	}
	_, err := protocol.ResolveVariant(protocol.Identity{Name: d.Name, Address: d.MAC})
	return err == nil
}

func (t *BLETransport) FindDevice(ctx context.Context) (DeviceHandle, error) {
	if err := t.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable adapter: %w", ErrDiscovery, err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, t.opts.ScanTimeout)
	defer cancel()

	slog.Info("[BLE] scanning", "timeout", t.opts.ScanTimeout, "address", t.opts.Address)
	var target *Device
	err := t.adapter.Scan(scanCtx, func(d Device) bool {
		slog.Debug("[BLE] found peripheral", "name", d.Name, "mac", d.MAC, "rssi", d.RSSI)
		if !t.matches(d) {
			return false
		}
		found := d
		target = &found
		return true
	})
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, ctx.Err())
	}
	if target == nil {
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
		}
		return nil, fmt.Errorf("%w: no compatible device found within %s", ErrDiscovery, t.opts.ScanTimeout)
	}

	id := protocol.Identity{Name: target.Name, Address: target.MAC}
	layout, err := t.layoutFor(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	slog.Info("[BLE] connecting", "name", id.Name, "mac", id.Address)
	conn, err := t.adapter.Connect(ctx, target.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	char, err := conn.DiscoverCharacteristic(layout.ServiceUUID.String(), layout.WriteUUID.String())
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("%w: discover write characteristic: %w", ErrDiscovery, err)
	}

	h := &bleHandle{id: id, conn: conn, char: char, delay: layout.CommandDelay}
	if t.opts.CommandDelay > 0 {
		h.delay = t.opts.CommandDelay
	}
	conn.OnDisconnect(func() {
		slog.Warn("[BLE] disconnected", "mac", id.Address)
		h.mu.Lock()
		h.dropped = true
		h.mu.Unlock()
	})

	slog.Info("[BLE] connected", "name", id.Name, "mac", id.Address)
	return h, nil
}

// layoutFor picks the characteristic layout for id, falling back to the
// configured variant and then to the common fff0/fff3 layout.
func (t *BLETransport) layoutFor(id protocol.Identity) (protocol.Layout, error) {
	v, err := protocol.ResolveVariant(id)
	if err != nil {
		v = t.opts.FallbackVariant
		if !v.Valid() {
			v = protocol.VariantElkBle
		}
		slog.Warn("[BLE] unrecognised device name, using fallback layout", "name", id.Name, "layout", v)
	}
	return protocol.LayoutFor(v)
}

func (t *BLETransport) WriteFrame(ctx context.Context, dh DeviceHandle, f protocol.Frame) error {
	h, ok := dh.(*bleHandle)
	if !ok {
		return fmt.Errorf("%w: foreign device handle %T", ErrTransport, dh)
	}
	if h.isDropped() {
		return fmt.Errorf("%w: %w", ErrTransport, ErrNotConnected)
	}

	if err := h.pace(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	slog.Debug("[BLE] write", "frame", f.String())
	err := h.char.Write(f.Bytes())

	h.mu.Lock()
	h.lastWrite = time.Now()
	h.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// pace waits until the variant's minimum command spacing has elapsed.
func (h *bleHandle) pace(ctx context.Context) error {
	h.mu.Lock()
	wait := h.delay - time.Since(h.lastWrite)
	h.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *BLETransport) Release(dh DeviceHandle) error {
	h, ok := dh.(*bleHandle)
	if !ok || h == nil {
		return nil
	}
	h.mu.Lock()
	h.dropped = true
	h.mu.Unlock()
	return h.conn.Disconnect()
}
