package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Variant identifies one member of the ELK-BLEDOM controller family.
type Variant int

const (
	VariantUnknown Variant = iota
	VariantElkBle
	VariantLedBle
	VariantMelk
	VariantElkBulb
	VariantElkLampl
)

func (v Variant) String() string {
	switch v {
	case VariantElkBle:
		return "ELK-BLE"
	case VariantLedBle:
		return "LEDBLE"
	case VariantMelk:
		return "MELK"
	case VariantElkBulb:
		return "ELK-BULB"
	case VariantElkLampl:
		return "ELK-LAMPL"
	default:
		return "unknown"
	}
}

// Valid reports whether v names a supported variant.
func (v Variant) Valid() bool {
	_, ok := layouts[v]
	return ok
}

// ParseVariant maps a configured variant name ("elk-ble", "ledble", ...) to a Variant.
// Matching ignores case, dashes and underscores.
func ParseVariant(s string) (Variant, error) {
	key := normalizeName(s)
	for _, v := range variantOrder {
		if normalizeName(v.String()) == key {
			return v, nil
		}
	}
	return VariantUnknown, fmt.Errorf("protocol: %w: variant %q", ErrUnknownDevice, s)
}

// Identity is what discovery can tell us about a peripheral.
type Identity struct {
	Name    string // advertised local name
	Address string // MAC address, or CoreBluetooth UUID on macOS
}

// Layout holds the per-variant constants the frame codec needs.
type Layout struct {
	ServiceUUID uuid.UUID
	WriteUUID   uuid.UUID
	ReadUUID    uuid.UUID

	Header     [2]byte
	Terminator byte

	PowerOn  [payloadLen]byte
	PowerOff [payloadLen]byte

	BrightnessMax  uint8 // native brightness scale, 100 on every known variant
	SpeedMax       uint8 // native effect speed scale
	InvertSpeed    bool  // firmware treats a higher speed byte as slower
	MinKelvin      int
	MaxKelvin      int
	TemperatureMax uint8 // code emitted for MaxKelvin

	TimeSync     bool          // accepts clock sync frames
	CommandDelay time.Duration // minimum spacing between writes
}

var (
	serviceFFF0 = uuid.MustParse("0000fff0-0000-1000-8000-00805f9b34fb")
	charFFF3    = uuid.MustParse("0000fff3-0000-1000-8000-00805f9b34fb")
	charFFF4    = uuid.MustParse("0000fff4-0000-1000-8000-00805f9b34fb")
	serviceFFE0 = uuid.MustParse("0000ffe0-0000-1000-8000-00805f9b34fb")
	charFFE1    = uuid.MustParse("0000ffe1-0000-1000-8000-00805f9b34fb")
	charFFE2    = uuid.MustParse("0000ffe2-0000-1000-8000-00805f9b34fb")
)

var (
	powerOnElk = [payloadLen]byte{0xf0, 0x00, 0x01, 0xff, 0x00}
	powerOn    = [payloadLen]byte{0x01, 0x00, 0x00, 0x00, 0x00}
	powerOff   = [payloadLen]byte{0x00, 0x00, 0x00, 0xff, 0x00}
)

// baseLayout is shared by every variant; entries below override what differs.
var baseLayout = Layout{
	ServiceUUID:    serviceFFF0,
	WriteUUID:      charFFF3,
	ReadUUID:       charFFF4,
	Header:         [2]byte{0x7e, 0x00},
	Terminator:     0xef,
	PowerOn:        powerOn,
	PowerOff:       powerOff,
	BrightnessMax:  100,
	SpeedMax:       100,
	MinKelvin:      2700,
	MaxKelvin:      6500,
	TemperatureMax: 0xff,
	CommandDelay:   15 * time.Millisecond,
}

var layouts = map[Variant]Layout{
	VariantElkBle: with(baseLayout, func(l *Layout) {
		l.PowerOn = powerOnElk
		l.TimeSync = true
	}),
	VariantLedBle: with(baseLayout, func(l *Layout) {
		l.ServiceUUID = serviceFFE0
		l.WriteUUID = charFFE1
		l.ReadUUID = charFFE2
		l.InvertSpeed = true
	}),
	VariantMelk: baseLayout,
	VariantElkBulb: with(baseLayout, func(l *Layout) {
		l.TimeSync = true
	}),
	VariantElkLampl: with(baseLayout, func(l *Layout) {
		l.TimeSync = true
	}),
}

func with(l Layout, fn func(*Layout)) Layout {
	fn(&l)
	return l
}

// variantOrder is the name-matching priority. "ELK-BLE" also covers "ELK-BLEDOM".
var variantOrder = []Variant{
	VariantElkBle,
	VariantLedBle,
	VariantMelk,
	VariantElkBulb,
	VariantElkLampl,
}

// Variants lists the supported variants in name-matching order.
func Variants() []Variant {
	return append([]Variant(nil), variantOrder...)
}

// LayoutFor returns the frame layout of v. Unknown variants report ErrUnknownDevice.
func LayoutFor(v Variant) (Layout, error) {
	l, ok := layouts[v]
	if !ok {
		return Layout{}, fmt.Errorf("protocol: %w: no layout for variant %d", ErrUnknownDevice, int(v))
	}
	return l, nil
}

// ResolveVariant classifies a discovered peripheral by case-insensitive
// substring match of its advertised name. The first fragment in priority
// order wins.
func ResolveVariant(id Identity) (Variant, error) {
	name := strings.ToUpper(id.Name)
	if name != "" {
		for _, v := range variantOrder {
			if strings.Contains(name, v.String()) {
				return v, nil
			}
		}
	}
	return VariantUnknown, fmt.Errorf("protocol: %w: %q", ErrUnknownDevice, id.Name)
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}
