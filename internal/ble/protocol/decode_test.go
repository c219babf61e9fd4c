package protocol

import "fmt"

// decoded is the inverse of the Encode* functions, used to check round trips.
type decoded struct {
	Op         byte
	On         bool
	R, G, B    int
	Level      int // brightness or speed, as the device byte
	TempCode   byte
	EffectCode byte
	Schedule   Schedule
	Clock      [4]int
}

func decode(v Variant, f Frame) (decoded, error) {
	if err := Verify(v, f); err != nil {
		return decoded{}, err
	}
	l, _ := LayoutFor(v)
	p := f.Payload()
	d := decoded{Op: f.Opcode()}
	switch d.Op {
	case OpPower:
		switch p {
		case l.PowerOn:
			d.On = true
		case l.PowerOff:
		default:
			return d, fmt.Errorf("unexpected power payload % x", p)
		}
	case OpColor:
		switch p[0] {
		case colorModeRGB:
			d.R, d.G, d.B = int(p[1]), int(p[2]), int(p[3])
		case colorModeTemperature:
			d.TempCode = p[1]
		default:
			return d, fmt.Errorf("unexpected color mode %#02x", p[0])
		}
	case OpBrightness:
		d.Level = int(p[0])
	case OpEffectSpeed:
		d.Level = int(p[0])
		if l.InvertSpeed {
			d.Level = int(l.SpeedMax) - d.Level
		}
	case OpEffect:
		d.EffectCode = p[0]
	case OpSchedule:
		d.Schedule = Schedule{
			Hour:      int(p[0]),
			Minute:    int(p[1]),
			Direction: Direction(p[3]),
			Days:      Days(p[4] & DayMask),
			Enabled:   p[4]&scheduleEnabledBit != 0,
		}
	case OpTimeSync:
		d.Clock = [4]int{int(p[0]), int(p[1]), int(p[2]), int(p[3])}
	default:
		return d, fmt.Errorf("unknown opcode %#02x", d.Op)
	}
	return d, nil
}
