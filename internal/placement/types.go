package placement

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// #region coordinate

// Coordinate is a planar position in millimeters. Z is always 0.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// String renders the canonical "[x, y, 0]" form.
func (c Coordinate) String() string {
	return fmt.Sprintf("[%d, %d, 0]", c.X, c.Y)
}

// Distance is the planar Euclidean distance in millimeters.
func (c Coordinate) Distance(o Coordinate) float64 {
	return math.Hypot(float64(c.X-o.X), float64(c.Y-o.Y))
}

// ErrNoCoordinate means the text holds no coordinate-shaped group.
var ErrNoCoordinate = errors.New("no coordinate")

const coordNum = `(-?\d+(?:\.\d+)?)\s*(mm|m)?`

var reCoordinate = regexp.MustCompile(`\[\s*` + coordNum + `\s*,\s*` + coordNum + `\s*(?:,\s*` + coordNum + `\s*)?\]`)

// ParseCoordinate reads the first "[x, y]" or "[x, y, z]" group in s. Values
// are millimeters unless marked "m". The vertical component is discarded.
func ParseCoordinate(s string) (Coordinate, error) {
	m := reCoordinate.FindStringSubmatch(s)
	if m == nil {
		return Coordinate{}, fmt.Errorf("%w in %q", ErrNoCoordinate, s)
	}
	x, err := millimeters(m[1], m[2])
	if err != nil {
		return Coordinate{}, err
	}
	y, err := millimeters(m[3], m[4])
	if err != nil {
		return Coordinate{}, err
	}
	return Coordinate{X: x, Y: y}, nil
}

func millimeters(num, unit string) (int, error) {
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", num, err)
	}
	if unit == "m" {
		v *= 1000
	}
	return int(math.Trunc(v)), nil
}

// #endregion coordinate

// #region orientation

var (
	reDegrees = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	faces     = []struct {
		word    string
		degrees float64
	}{
		{"front", 0}, {"left", 90}, {"back", 180}, {"right", 270},
	}
)

// ParseOrientation reads an angle in degrees, counter-clockwise from +x, or
// a symbolic facing ("faces left" is 90). Empty text is the default 0. The
// result is in [0, 360).
func ParseOrientation(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	if m := reDegrees.FindString(s); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, err
		}
		return wrapDegrees(v), nil
	}
	for _, f := range faces {
		if strings.Contains(s, f.word) {
			return f.degrees, nil
		}
	}
	return 0, fmt.Errorf("unrecognized orientation %q", s)
}

func wrapDegrees(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	return v
}

// #endregion orientation

// #region entry

// Entry is one named placement as exchanged with the oracle. Position and
// orientation keep the oracle's text; Coordinate parses on demand.
type Entry struct {
	Name        string `json:"name"`
	Position    string `json:"position"`
	Orientation string `json:"orientation,omitempty"`
}

// Coordinate parses the entry position.
func (e Entry) Coordinate() (Coordinate, error) {
	return ParseCoordinate(e.Position)
}

// Range bounds freshly assigned x and y values.
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// DefaultRange is used when the description gives no extent.
var DefaultRange = Range{Min: -5000, Max: 5000}

// MinSeparation is the required distance between occupied objects.
const MinSeparation = 1000.0

// #endregion entry
