package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Days is a weekday bitmask as the firmware stores it.
//
// Bit order is fixed: bit0 = Monday through bit6 = Sunday. Note this is not
// time.Weekday order, which starts at Sunday.
type Days uint8

const (
	Monday Days = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

const (
	NoDays      Days = 0
	WeekDays         = Monday | Tuesday | Wednesday | Thursday | Friday
	WeekendDays      = Saturday | Sunday
	AllDays          = WeekDays | WeekendDays

	// DayMask covers the seven valid day bits.
	DayMask = byte(AllDays)
)

var dayNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// DayOf maps a time.Weekday to its bit.
func DayOf(d time.Weekday) Days {
	return Days(1) << ((uint(d) + 6) % 7)
}

// DaysOf returns the union of the given weekdays.
func DaysOf(days ...time.Weekday) Days {
	var out Days
	for _, d := range days {
		out |= DayOf(d)
	}
	return out
}

// Has reports whether every day in other is set in d.
func (d Days) Has(other Days) bool {
	return d&other == other
}

// Byte returns the encoded bitmask.
func (d Days) Byte() byte {
	return byte(d)
}

func (d Days) String() string {
	switch d {
	case NoDays:
		return "none"
	case AllDays:
		return "all"
	case WeekDays:
		return "weekdays"
	case WeekendDays:
		return "weekend"
	}
	var parts []string
	for i, name := range dayNames {
		if d&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseDays parses a comma separated list of day names and aliases,
// e.g. "mon,thu" or "weekdays,sun".
func ParseDays(s string) (Days, error) {
	var out Days
	for _, part := range strings.Split(s, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		switch p {
		case "":
			continue
		case "all":
			out |= AllDays
		case "weekdays":
			out |= WeekDays
		case "weekend":
			out |= WeekendDays
		case "none":
		default:
			found := false
			for i, name := range dayNames {
				if p == name || p == fullDayNames[i] {
					out |= 1 << i
					found = true
					break
				}
			}
			if !found {
				return NoDays, fmt.Errorf("protocol: %w: day %q", ErrInvalidInput, part)
			}
		}
	}
	return out, nil
}

var fullDayNames = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Direction selects whether a schedule switches the strip on or off.
type Direction byte

const (
	DirectionOn  Direction = 0x00
	DirectionOff Direction = 0x01
)

func (d Direction) String() string {
	if d == DirectionOff {
		return "off"
	}
	return "on"
}

// Schedule is a single timer slot. The device keeps one slot per direction.
type Schedule struct {
	Direction Direction
	Days      Days
	Hour      int
	Minute    int
	Enabled   bool
}
