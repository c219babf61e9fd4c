package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownDevice = errors.New("unknown device")
	ErrUnknownEffect = errors.New("unknown effect")
)

// RangeError reports a numeric argument outside its accepted bounds.
// It matches ErrInvalidInput under errors.Is.
type RangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("protocol: %s %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrInvalidInput
}

// checkRange returns a *RangeError when v is outside [lo, hi].
func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &RangeError{Field: field, Value: v, Min: lo, Max: hi}
	}
	return nil
}
