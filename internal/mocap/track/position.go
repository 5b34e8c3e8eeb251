package track

import "math"

// Position is a per-tick position estimate for one marker: a 2D pixel
// coordinate plus a visibility flag. The zero value is the explicit
// "no estimate" sentinel. Positions are created fresh each tick by the
// estimators and discarded at tick end; they are never carried across
// ticks.
type Position struct {
	X, Y    int
	Visible bool

	valid bool
}

// At returns a non-empty position.
func At(x, y int, visible bool) Position {
	return Position{X: x, Y: y, Visible: visible, valid: true}
}

// Empty returns the "no measurement this tick" sentinel.
func Empty() Position { return Position{} }

// IsEmpty reports whether the position carries no estimate.
func (p Position) IsEmpty() bool { return !p.valid }

// Equal reports whether two positions are equal: both empty, or both at
// identical coordinates. Visibility is ignored.
func (p Position) Equal(q Position) bool {
	if p.IsEmpty() || q.IsEmpty() {
		return p.IsEmpty() && q.IsEmpty()
	}
	return p.X == q.X && p.Y == q.Y
}

// DistanceTo returns the Euclidean distance from the position to (x, y).
// The distance from an empty position is +Inf.
func (p Position) DistanceTo(x, y int) float64 {
	if p.IsEmpty() {
		return math.Inf(1)
	}
	dx := float64(p.X - x)
	dy := float64(p.Y - y)
	return math.Hypot(dx, dy)
}

// Clamp restricts the position to [0, maxX] × [0, maxY]. Clamping an
// empty position is a no-op.
func (p Position) Clamp(maxX, maxY int) Position {
	if p.IsEmpty() {
		return p
	}
	if p.X < 0 {
		p.X = 0
	} else if p.X > maxX {
		p.X = maxX
	}
	if p.Y < 0 {
		p.Y = 0
	} else if p.Y > maxY {
		p.Y = maxY
	}
	return p
}
