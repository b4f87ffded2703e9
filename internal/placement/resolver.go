package placement

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
)

// #region merge

// Filter decides whether a named entry may enter a placement.
type Filter func(name string) bool

// Merge folds sources into one name-keyed placement in the order given. A
// later source's entry for a name replaces any earlier one (last write wins);
// the output keeps the order in which names were first seen. Entries rejected
// by keep are dropped before insertion. A nil keep admits everything.
func Merge(keep Filter, sources ...[]Entry) []Entry {
	index := make(map[string]int)
	var out []Entry
	for _, src := range sources {
		for _, e := range src {
			if keep != nil && !keep(e.Name) {
				continue
			}
			if i, ok := index[e.Name]; ok {
				out[i] = e
				continue
			}
			index[e.Name] = len(out)
			out = append(out, e)
		}
	}
	return out
}

// SingleGuarding keeps the first Guarding entry and drops every later one.
// dropped lists the removed names in order.
func SingleGuarding(entries []Entry) (kept []Entry, dropped []string) {
	seen := false
	for _, e := range entries {
		if catalog.IsGuarding(e.Name) {
			if seen {
				dropped = append(dropped, e.Name)
				continue
			}
			seen = true
		}
		kept = append(kept, e)
	}
	return kept, dropped
}

// Missing lists names that have no entry in placed, in input order.
func Missing(names []string, placed []Entry) []string {
	have := make(map[string]bool, len(placed))
	for _, e := range placed {
		have[e.Name] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, n := range names {
		if !have[n] && !seen[n] {
			out = append(out, n)
			seen[n] = true
		}
	}
	return out
}

// #endregion merge

// #region assign

// gridStep spaces candidate positions so neighbours clear MinSeparation.
const gridStep = 1500

// AssignMissing places every name in names that is not already in placed.
// New positions lie inside r, keep more than MinSeparation from every
// occupied coordinate and from each other, and are chosen deterministically
// nearest the origin first. Guarding is not occupied: it goes to the centroid
// of the occupied coordinates. At most one Guarding is placed, none when
// placed already holds one; the rest are returned in skipped. Names that
// cannot be fitted are returned in unplaced.
func AssignMissing(names []string, placed []Entry, r Range) (assigned []Entry, unplaced, skipped []string) {
	if r.Max <= r.Min {
		r = DefaultRange
	}
	var occupied []Coordinate
	guarded := false
	for _, e := range placed {
		if catalog.IsGuarding(e.Name) {
			guarded = true
			continue
		}
		if c, err := e.Coordinate(); err == nil {
			occupied = append(occupied, c)
		}
	}

	candidates := grid(r)
	guard := ""
	for _, name := range Missing(names, placed) {
		if catalog.IsGuarding(name) {
			if guarded || guard != "" {
				skipped = append(skipped, name)
			} else {
				guard = name
			}
			continue
		}
		c, ok := firstFree(candidates, occupied)
		if !ok {
			unplaced = append(unplaced, name)
			continue
		}
		occupied = append(occupied, c)
		assigned = append(assigned, Entry{Name: name, Position: c.String(), Orientation: "0"})
	}
	if guard != "" {
		assigned = append(assigned, Entry{Name: guard, Position: centroid(occupied).String(), Orientation: "0"})
	}
	return assigned, unplaced, skipped
}

// axis lists grid values in r, anchored at 0 when r contains it.
func axis(r Range) []int {
	anchor := r.Min
	if r.Min <= 0 && r.Max >= 0 {
		anchor = 0
	}
	var vals []int
	for v := anchor; v >= r.Min; v -= gridStep {
		vals = append(vals, v)
	}
	for v := anchor + gridStep; v <= r.Max; v += gridStep {
		vals = append(vals, v)
	}
	return vals
}

func grid(r Range) []Coordinate {
	vals := axis(r)
	var out []Coordinate
	for _, x := range vals {
		for _, y := range vals {
			out = append(out, Coordinate{X: x, Y: y})
		}
	}
	origin := Coordinate{}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Distance(origin), out[j].Distance(origin)
		if di != dj {
			return di < dj
		}
		if out[i].X != out[j].X {
			return out[i].X > out[j].X
		}
		return out[i].Y > out[j].Y
	})
	return out
}

func firstFree(candidates, occupied []Coordinate) (Coordinate, bool) {
next:
	for _, c := range candidates {
		for _, o := range occupied {
			if c.Distance(o) <= MinSeparation {
				continue next
			}
		}
		return c, true
	}
	return Coordinate{}, false
}

func centroid(cs []Coordinate) Coordinate {
	if len(cs) == 0 {
		return Coordinate{}
	}
	var sx, sy float64
	for _, c := range cs {
		sx += float64(c.X)
		sy += float64(c.Y)
	}
	n := float64(len(cs))
	return Coordinate{X: int(math.Round(sx / n)), Y: int(math.Round(sy / n))}
}

// #endregion assign

// #region overlaps

// Overlap is a pair of occupied objects closer than the separation limit.
type Overlap struct {
	A        string  `json:"a"`
	B        string  `json:"b"`
	Distance float64 `json:"distance"`
}

// Overlaps reports every pair of non-Guarding entries within minDist of each
// other. Entries without a parseable position are skipped.
func Overlaps(entries []Entry, minDist float64) []Overlap {
	type point struct {
		name string
		c    Coordinate
	}
	var pts []point
	for _, e := range entries {
		if catalog.IsGuarding(e.Name) {
			continue
		}
		if c, err := e.Coordinate(); err == nil {
			pts = append(pts, point{e.Name, c})
		}
	}
	var out []Overlap
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			if d := pts[i].c.Distance(pts[j].c); d <= minDist {
				out = append(out, Overlap{A: pts[i].name, B: pts[j].name, Distance: d})
			}
		}
	}
	return out
}

// #endregion overlaps
