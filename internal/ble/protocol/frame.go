// Package protocol encodes commands for ELK-BLEDOM family BLE LED controllers.
//
// Every command is a fixed 9-byte frame written to a single GATT
// characteristic:
//
//	[0..1] header     (per variant, 7e 00)
//	[2]    opcode
//	[3..7] payload    (five bytes, zero padded)
//	[8]    terminator (per variant, ef)
//
// The device never acknowledges a frame. All functions in this package are
// pure and safe for concurrent use.
package protocol

import "fmt"

const (
	// FrameLen is the length of every frame on the wire.
	FrameLen   = 9
	payloadLen = 5
)

// Opcodes.
const (
	OpBrightness  byte = 0x01
	OpEffectSpeed byte = 0x02
	OpEffect      byte = 0x03
	OpPower       byte = 0x04
	OpColor       byte = 0x05
	OpSchedule    byte = 0x82
	OpTimeSync    byte = 0x83
)

// Sub-commands of OpColor and OpEffect.
const (
	colorModeTemperature byte = 0x02
	colorModeRGB         byte = 0x03
	effectModeBuiltin    byte = 0x03
)

const scheduleEnabledBit byte = 0x80

// Frame is a single encoded command.
type Frame [FrameLen]byte

// Bytes returns the frame as a slice suitable for a characteristic write.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameLen)
	copy(b, f[:])
	return b
}

// Opcode returns the command byte.
func (f Frame) Opcode() byte {
	return f[2]
}

// Payload returns the five payload bytes.
func (f Frame) Payload() [payloadLen]byte {
	var p [payloadLen]byte
	copy(p[:], f[3:3+payloadLen])
	return p
}

func (f Frame) String() string {
	return fmt.Sprintf("% x", f[:])
}

func newFrame(l Layout, op byte, payload ...byte) Frame {
	var f Frame
	f[0], f[1] = l.Header[0], l.Header[1]
	f[2] = op
	copy(f[3:3+payloadLen], payload)
	f[FrameLen-1] = l.Terminator
	return f
}

// Verify checks that f carries the header and terminator of variant v.
func Verify(v Variant, f Frame) error {
	l, err := LayoutFor(v)
	if err != nil {
		return err
	}
	if f[0] != l.Header[0] || f[1] != l.Header[1] {
		return fmt.Errorf("protocol: bad header % x for %s", f[:2], v)
	}
	if f[FrameLen-1] != l.Terminator {
		return fmt.Errorf("protocol: bad terminator %#02x for %s", f[FrameLen-1], v)
	}
	return nil
}
