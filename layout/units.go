package layout

import (
	"strconv"
	"strings"
)

// This file defines unit-safe length parsing and the pixel/point bridge used by
// the canvas backend.
//
// The raster surface runs at one dot per canvas unit, so a canvas "millimetre"
// is exactly one output pixel. Font faces are still sized in points, where
// 1pt = 0.352777 canvas units.

// Unit represents the original unit of a length value as written in a template.
type Unit int

const (
	UnitPX Unit = iota // pixels (default)
	UnitPT             // CSS points, 96/72 px
	UnitIN             // inches, 96 px
	UnitCM             // centimeters
	UnitMM             // millimeters
)

// Conversion constants between canvas units and font points.
const (
	PtToUnit = 0.352777
	UnitToPt = 1.0 / PtToUnit
)

const cssDPI = 96.0

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// ToPX converts the length to output pixels at 96 dpi.
func (l Length) ToPX() float64 {
	switch l.Unit {
	case UnitPT:
		return l.Value * cssDPI / 72
	case UnitIN:
		return l.Value * cssDPI
	case UnitCM:
		return l.Value * cssDPI / 2.54
	case UnitMM:
		return l.Value * cssDPI / 25.4
	default:
		return l.Value
	}
}

// ParseLength parses a length string such as "20", "20px" or "12pt".
// The second result is false when the number cannot be parsed.
func ParseLength(value string) (Length, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, false
	}
	unit := UnitPX
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"px", UnitPX}, {"pt", UnitPT}, {"in", UnitIN}, {"cm", UnitCM}, {"mm", UnitMM}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}, false
	}
	return Length{Value: f, Unit: unit}, true
}

// FontPoints converts a pixel font size to the point size a canvas face expects
// so that one em spans fontSize output pixels.
func FontPoints(px float64) float64 { return px * UnitToPt }
