// Package markers holds the named, ordered sets of trackable points that
// the fusion engine updates every tick. A Set owns its Markers; marker
// indices are stable for the lifetime of the set and are the identity used
// for optical-flow correlation and overlap checks. Sets may be backed by a
// Store segment so a supervisor can read worker-written positions.
package markers

import (
	"fmt"
	"image"
	"math"
)

// Marker is a single trackable point: crop-local position, visibility from
// the last tick, a static flag, and a private Kalman filter state. Static
// markers keep their position across ticks unless explicitly repositioned.
type Marker struct {
	Name   string
	Static bool

	x, y    int
	visible bool

	filter *PointFilter
}

// Pos returns the marker's current crop-local position.
func (m *Marker) Pos() (x, y int) { return m.x, m.y }

// Point returns the current position as an image.Point.
func (m *Marker) Point() image.Point { return image.Pt(m.x, m.y) }

// Visible reports whether the marker had a measurement on the last tick.
func (m *Marker) Visible() bool { return m.visible }

// SetPos repositions the marker. Valid for static markers too: this is the
// explicit external repositioning path.
func (m *Marker) SetPos(x, y int) {
	m.x, m.y = x, y
}

// SetVisible updates the marker's visibility flag.
func (m *Marker) SetVisible(v bool) { m.visible = v }

// InitFilter seeds the marker's Kalman state from its current position,
// replacing any previous filter state.
func (m *Marker) InitFilter() {
	m.filter = NewPointFilter(float64(m.x), float64(m.y))
}

// Predict advances the marker's Kalman state one tick and returns the
// rounded predicted position. The filter is seeded lazily from the current
// position if InitFilter was never called.
func (m *Marker) Predict() image.Point {
	if m.filter == nil {
		m.InitFilter()
	}
	x, y := m.filter.Predict()
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

// Correct feeds a measured position into the marker's Kalman state.
func (m *Marker) Correct(x, y int) {
	if m.filter == nil {
		m.InitFilter()
	}
	m.filter.Correct(float64(x), float64(y))
}

// GlobalPosition is a marker position reported in full-frame coordinates,
// with the owning set's crop offset applied.
type GlobalPosition struct {
	Name    string
	X, Y    int
	Visible bool
}

// Set is a named ordered sequence of markers belonging to one crop.
type Set struct {
	Name string

	markers          []*Marker
	offsetX, offsetY int

	seg *Segment // optional shared backing
}

// NewSet creates a set with one marker per name, all at (0, 0).
func NewSet(name string, markerNames []string) *Set {
	s := &Set{Name: name, markers: make([]*Marker, len(markerNames))}
	for i, n := range markerNames {
		s.markers[i] = &Marker{Name: n}
	}
	return s
}

// Len returns the number of markers in the set.
func (s *Set) Len() int { return len(s.markers) }

// At returns the marker at index i.
func (s *Set) At(i int) *Marker { return s.markers[i] }

// Markers returns the underlying marker slice in stable index order.
func (s *Set) Markers() []*Marker { return s.markers }

// SetPositions assigns an initial position to every marker, in index order.
func (s *Set) SetPositions(positions []image.Point) error {
	if len(positions) != len(s.markers) {
		return fmt.Errorf("set %s: %d positions for %d markers: %w",
			s.Name, len(positions), len(s.markers), ErrCountMismatch)
	}
	for i, p := range positions {
		s.markers[i].SetPos(p.X, p.Y)
	}
	s.publish()
	return nil
}

// SetOffset records the crop-to-global translation applied when reporting
// positions upward. The stored per-crop positions are never mutated by it.
func (s *Set) SetOffset(x, y int) {
	s.offsetX, s.offsetY = x, y
}

// Offset returns the crop-to-global translation.
func (s *Set) Offset() (x, y int) { return s.offsetX, s.offsetY }

// InitFilters seeds every marker's Kalman state from its current position.
func (s *Set) InitFilters() {
	for _, m := range s.markers {
		m.InitFilter()
	}
}

// Points returns the current crop-local positions in index order.
func (s *Set) Points() []image.Point {
	pts := make([]image.Point, len(s.markers))
	for i, m := range s.markers {
		pts[i] = m.Point()
	}
	return pts
}

// GlobalPositions reports every marker in full-frame coordinates with the
// crop offset applied.
func (s *Set) GlobalPositions() []GlobalPosition {
	out := make([]GlobalPosition, len(s.markers))
	for i, m := range s.markers {
		out[i] = GlobalPosition{
			Name:    m.Name,
			X:       m.x + s.offsetX,
			Y:       m.y + s.offsetY,
			Visible: m.visible,
		}
	}
	return out
}

// Reliability returns the fraction of markers visible on the last tick.
func (s *Set) Reliability() float64 {
	if len(s.markers) == 0 {
		return 0
	}
	visible := 0
	for _, m := range s.markers {
		if m.visible {
			visible++
		}
	}
	return float64(visible) / float64(len(s.markers))
}

// Bind attaches the set to a shared Store segment and writes the current
// positions through. The segment must hold exactly one slot group per
// marker.
func (s *Set) Bind(seg *Segment) error {
	if seg.Len() != len(s.markers) {
		return fmt.Errorf("set %s: segment holds %d markers, set has %d: %w",
			s.Name, seg.Len(), len(s.markers), ErrCountMismatch)
	}
	s.seg = seg
	s.publish()
	return nil
}

// Publish writes the current marker positions through to the shared
// segment, if any. Called by the owning worker after each tick so the
// supervisor can read results after the join.
func (s *Set) Publish() {
	s.publish()
}

func (s *Set) publish() {
	if s.seg == nil {
		return
	}
	for i, m := range s.markers {
		s.seg.Put(i, m.x, m.y, m.visible)
	}
}
