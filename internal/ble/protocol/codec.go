package protocol

import (
	"fmt"
	"time"
)

// EncodePower builds the power on/off frame. The on payload differs between variants.
func EncodePower(v Variant, on bool) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	if on {
		return newFrame(l, OpPower, l.PowerOn[:]...), nil
	}
	return newFrame(l, OpPower, l.PowerOff[:]...), nil
}

// EncodeColor builds a static RGB color frame. Channels are sent unscaled.
//
//	op 05 | 03 r g b 00
func EncodeColor(v Variant, r, g, b int) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	for _, ch := range []struct {
		name string
		val  int
	}{{"red", r}, {"green", g}, {"blue", b}} {
		if err := checkRange(ch.name, ch.val, 0, 255); err != nil {
			return Frame{}, err
		}
	}
	return newFrame(l, OpColor, colorModeRGB, byte(r), byte(g), byte(b)), nil
}

// EncodeBrightness builds a brightness frame from a percentage.
//
//	op 01 | level 00 00 00 00
func EncodeBrightness(v Variant, pct int) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	if err := checkRange("brightness", pct, 0, 100); err != nil {
		return Frame{}, err
	}
	return newFrame(l, OpBrightness, scalePercent(pct, l.BrightnessMax)), nil
}

// EncodeColorTemperature builds a white-mode frame. The Kelvin value maps
// linearly onto [0, TemperatureMax]; the following byte carries the complement.
//
//	op 05 | 02 code max-code 00 00
func EncodeColorTemperature(v Variant, kelvin int) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	if err := checkRange("color temperature", kelvin, l.MinKelvin, l.MaxKelvin); err != nil {
		return Frame{}, err
	}
	code := TemperatureCode(l, kelvin)
	return newFrame(l, OpColor, colorModeTemperature, code, l.TemperatureMax-code), nil
}

// TemperatureCode maps an in-range Kelvin value to the device code, rounding half up.
func TemperatureCode(l Layout, kelvin int) byte {
	span := l.MaxKelvin - l.MinKelvin
	if span <= 0 {
		return 0
	}
	n := (kelvin - l.MinKelvin) * int(l.TemperatureMax)
	code := (2*n + span) / (2 * span)
	return byte(clamp(code, 0, int(l.TemperatureMax)))
}

// EncodeEffect builds a frame starting a built-in effect. Look codes up with LookupEffect.
//
//	op 03 | code 03 00 00 00
func EncodeEffect(v Variant, code byte) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	if _, ok := EffectName(code); !ok {
		return Frame{}, fmt.Errorf("protocol: %w: code %#02x", ErrUnknownEffect, code)
	}
	return newFrame(l, OpEffect, code, effectModeBuiltin), nil
}

// EncodeEffectSpeed builds an effect speed frame from a percentage.
// Variants with InvertSpeed receive SpeedMax minus the scaled value.
//
//	op 02 | speed 00 00 00 00
func EncodeEffectSpeed(v Variant, pct int) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	if err := checkRange("effect speed", pct, 0, 100); err != nil {
		return Frame{}, err
	}
	speed := scalePercent(pct, l.SpeedMax)
	if l.InvertSpeed {
		speed = l.SpeedMax - speed
	}
	return newFrame(l, OpEffectSpeed, speed), nil
}

// EncodeSchedule builds an on/off timer frame. The enabled flag is the high
// bit of the day byte, so the weekday bitmask is that byte masked with DayMask.
//
//	op 82 | hour minute 00 direction days|enabled
func EncodeSchedule(v Variant, s Schedule) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	if err := checkRange("hour", s.Hour, 0, 23); err != nil {
		return Frame{}, err
	}
	if err := checkRange("minute", s.Minute, 0, 59); err != nil {
		return Frame{}, err
	}
	if s.Days.Byte()&^DayMask != 0 {
		return Frame{}, fmt.Errorf("protocol: %w: day mask %#02x", ErrInvalidInput, s.Days.Byte())
	}
	if s.Direction != DirectionOn && s.Direction != DirectionOff {
		return Frame{}, fmt.Errorf("protocol: %w: direction %d", ErrInvalidInput, s.Direction)
	}
	days := s.Days.Byte()
	if s.Enabled {
		days |= scheduleEnabledBit
	}
	return newFrame(l, OpSchedule, byte(s.Hour), byte(s.Minute), 0x00, byte(s.Direction), days), nil
}

// EncodeTimeSync builds a clock frame. dayOfWeek runs from 1 (Monday) to 7 (Sunday).
//
//	op 83 | hour minute second dow 00
func EncodeTimeSync(v Variant, hour, minute, second, dayOfWeek int) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	if err := checkRange("hour", hour, 0, 23); err != nil {
		return Frame{}, err
	}
	if err := checkRange("minute", minute, 0, 59); err != nil {
		return Frame{}, err
	}
	if err := checkRange("second", second, 0, 59); err != nil {
		return Frame{}, err
	}
	if err := checkRange("day of week", dayOfWeek, 1, 7); err != nil {
		return Frame{}, err
	}
	return newFrame(l, OpTimeSync, byte(hour), byte(minute), byte(second), byte(dayOfWeek)), nil
}

// TimeSyncFrom encodes the wall clock reading t.
func TimeSyncFrom(v Variant, t time.Time) (Frame, error) {
	return EncodeTimeSync(v, t.Hour(), t.Minute(), t.Second(), ISOWeekday(t.Weekday()))
}

// ISOWeekday converts a time.Weekday to 1 (Monday) .. 7 (Sunday).
func ISOWeekday(d time.Weekday) int {
	return (int(d)+6)%7 + 1
}

// EncodeGeneric builds an arbitrary frame for experimenting with undocumented opcodes.
//
//	op | sub a1 a2 a3 00
func EncodeGeneric(v Variant, op, sub, a1, a2, a3 byte) (Frame, error) {
	l, err := LayoutFor(v)
	if err != nil {
		return Frame{}, err
	}
	return newFrame(l, op, sub, a1, a2, a3), nil
}

// scalePercent maps pct in [0,100] onto [0,scale], rounding half up.
func scalePercent(pct int, scale uint8) byte {
	return byte((2*pct*int(scale) + 100) / 200)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
