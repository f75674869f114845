// Package units converts tracker speeds for display. Every velocity in the
// bridge is in metres per second.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Speed units accepted on the command line.
const (
	MPS  = "mps"
	KMPH = "kmph"
	MPH  = "mph"
)

var perMPS = map[string]float64{
	MPS:  1,
	KMPH: 3.6,
	MPH:  2.23694,
}

// ParseSpeedUnit normalises a unit name. "kph" is accepted for KMPH.
func ParseSpeedUnit(s string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(s))
	if u == "kph" {
		u = KMPH
	}
	if _, ok := perMPS[u]; !ok {
		return "", fmt.Errorf("unknown speed unit %q (want mps, kmph or mph)", s)
	}
	return u, nil
}

// ConvertSpeed converts metres per second to unit. Unknown units leave the
// value in metres per second.
func ConvertSpeed(mps float64, unit string) float64 {
	if f, ok := perMPS[unit]; ok {
		return mps * f
	}
	return mps
}

// Speed is the magnitude of a velocity vector, converted to unit.
func Speed(v [3]float64, unit string) float64 {
	return ConvertSpeed(math.Sqrt(v[0]*v[0]+v[1]*v[1]+v[2]*v[2]), unit)
}
