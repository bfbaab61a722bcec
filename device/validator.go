// Package device implements the per-device read algorithm (Device Reader)
// and the pure range/percentage policy (Validator).
package device

import "fmt"

// Validator applies the configured [min, max] range policy to a raw
// register value and derives its percentage. It holds no mutable state.
type Validator struct {
	Min, Max int
}

// NewValidator builds a Validator for the given inclusive range.
func NewValidator(min, max int) Validator {
	return Validator{Min: min, Max: max}
}

// Validate returns the floor-rounded percentage in [0,100] for value, or
// an error describing why value falls outside [Min, Max]. Percentage is
// computed assuming value is already known to be in range.
func (v Validator) Validate(value uint16) (int, error) {
	iv := int(value)
	if iv < v.Min || iv > v.Max {
		return 0, fmt.Errorf("value out of range: %d (range: %d-%d)", iv, v.Min, v.Max)
	}
	if v.Max == 0 {
		return 0, nil
	}
	return iv * 100 / v.Max, nil
}
