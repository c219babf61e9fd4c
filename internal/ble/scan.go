package ble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

// Discovered is an advertised peripheral and the variant its name resolves to.
type Discovered struct {
	Device
	Variant protocol.Variant // VariantUnknown when the name is not recognised
}

// Compatible reports whether the name matched a supported variant.
func (d Discovered) Compatible() bool { return d.Variant.Valid() }

// ScanForDevices lists every peripheral seen within timeout, strongest signal first.
func ScanForDevices(ctx context.Context, adapter Adapter, timeout time.Duration) ([]Discovered, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[string]int)
	var out []Discovered
	err := adapter.Scan(scanCtx, func(d Device) bool {
		v, _ := protocol.ResolveVariant(protocol.Identity{Name: d.Name, Address: d.MAC})
		if i, ok := seen[d.MAC]; ok {
			out[i] = Discovered{Device: d, Variant: v}
			return false
		}
		seen[d.MAC] = len(out)
		out = append(out, Discovered{Device: d, Variant: v})
		return false
	})
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ble: scan: %w", ctx.Err())
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].RSSI > out[j].RSSI })
	return out, nil
}

// ProbeResult names the characteristic layout a peripheral exposes.
type ProbeResult struct {
	MAC     string
	Layout  protocol.Variant // first variant whose write characteristic was found
	Service string
	Write   string
}

// Probe connects to mac and tries each known write characteristic. It is a
// diagnostic for devices whose advertised name is not recognised.
func Probe(ctx context.Context, adapter Adapter, mac string, timeout time.Duration) (*ProbeResult, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := adapter.Connect(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("ble: connect for probe: %w", err)
	}
	defer func() { _ = conn.Disconnect() }()

	tried := make(map[string]bool)
	for _, v := range protocol.Variants() {
		l, err := protocol.LayoutFor(v)
		if err != nil {
			continue
		}
		svc, char := l.ServiceUUID.String(), l.WriteUUID.String()
		if tried[svc+char] {
			continue
		}
		tried[svc+char] = true
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ble: probe: %w", ctx.Err())
		}
		if _, err := conn.DiscoverCharacteristic(svc, char); err == nil {
			return &ProbeResult{MAC: mac, Layout: v, Service: svc, Write: char}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s exposes no known write characteristic", ErrDiscovery, mac)
}
