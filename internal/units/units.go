// Package units provides shared constants and validation for speed units
package units

import (
	"fmt"
	"math"
)

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Metrics are accumulated and stored in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Label renders the unit for axis and legend text.
func Label(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}

// FormatSpeedRange renders a half-open speed bucket [lo, hi) in the
// target units, e.g. "0.5-2.0 m/s". An infinite upper bound renders as
// "0.5+ m/s".
func FormatSpeedRange(loMPS, hiMPS float64, targetUnits string) string {
	lo := ConvertSpeed(loMPS, targetUnits)
	if math.IsInf(hiMPS, 1) {
		return fmt.Sprintf("%.1f+ %s", lo, Label(targetUnits))
	}
	hi := ConvertSpeed(hiMPS, targetUnits)
	return fmt.Sprintf("%.1f-%.1f %s", lo, hi, Label(targetUnits))
}
