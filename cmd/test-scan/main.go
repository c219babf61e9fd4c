// Command test-scan is a manual check for Bluetooth discovery. It lists
// nearby peripherals and marks the ones elkctl can drive.
// Press Ctrl+C to stop early.
//
// Usage:
//
//	go run ./cmd/test-scan [--timeout 10s] [--probe AA:BB:CC:DD:EE:FF]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/elkctl/internal/ble"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan")
	probe := flag.String("probe", "", "connect to this address and report its characteristic layout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewBluetoothAdapter()

	if *probe != "" {
		fmt.Printf("Probing %s...\n", *probe)
		res, err := ble.Probe(ctx, adapter, *probe, *timeout)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Probe failed:", err)
			os.Exit(1)
		}
		fmt.Printf("Layout:  %s\n", res.Layout)
		fmt.Printf("Service: %s\n", res.Service)
		fmt.Printf("Write:   %s\n", res.Write)
		return
	}

	fmt.Printf("Scanning for %s...\n", *timeout)
	devices, err := ble.ScanForDevices(ctx, adapter, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Scan failed:", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return
	}
	for _, d := range devices {
		mark := " "
		if d.Compatible() {
			mark = "*"
		}
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%s %-20s %-40s %4d dBm  %s\n", mark, name, d.MAC, d.RSSI, d.Variant)
	}
	fmt.Println("\n* = supported")
}
