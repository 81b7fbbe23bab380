package exposition

import (
	"strings"
)

// Prefix is the leading component of every exported metric name.
const Prefix = "signalk"

// Knot conversion factors.
const (
	MetersPerSecondToKnots   = 1.94384
	KilometersPerHourToKnots = 0.539957
)

const unitKnots = "knots"

// Name is a metric name before rendering: path segments plus an optional
// unit token.
type Name struct {
	Path []string
	Unit string
}

// UnitToken turns a SignalK unit string into a name-safe token
// ("m/s" -> "m_per_s").
func UnitToken(units string) string {
	units = strings.ReplaceAll(units, "/", "_per_")
	return strings.ReplaceAll(units, " ", "_")
}

// String joins the name as signalk_<path>[_<unit>], lower-cased, with every
// byte outside [a-z0-9_] mapped to '_'.
func (n Name) String() string {
	parts := make([]string, 0, len(n.Path)+2)
	parts = append(parts, Prefix)
	parts = append(parts, n.Path...)
	if n.Unit != "" {
		parts = append(parts, n.Unit)
	}
	return sanitize(strings.ToLower(strings.Join(parts, "_")))
}

// IsSpeed reports whether the speed-to-knots rule applies to n.
func (n Name) IsSpeed() bool {
	return strings.Contains(n.String(), "speed")
}

// ToKnots rewrites a velocity unit token to knots and converts v to match.
// Units already in knots are only renamed. Any other unit is returned as is,
// so applying ToKnots twice is the same as applying it once.
func (n Name) ToKnots(v float64) (Name, float64) {
	switch strings.ToLower(n.Unit) {
	case "m_per_s", "m_s":
		v *= MetersPerSecondToKnots
	case "km_per_h", "km_h":
		v *= KilometersPerHourToKnots
	case "kn", unitKnots:
	default:
		return n, v
	}
	return Name{Path: n.Path, Unit: unitKnots}, v
}

func sanitize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			b[i] = '_'
		}
	}
	return string(b)
}
