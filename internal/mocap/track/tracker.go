package track

import (
	"fmt"
	"image"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/flow"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/markers"
)

// DefaultDelta is the default maximum pixel distance for associating a
// blob with an estimator's anchor point.
const DefaultDelta = 8

// Config selects the estimators and the blob match radius for a tracker.
type Config struct {
	Naive       bool
	OpticalFlow bool
	Kalman      bool
	Delta       int // blob match radius; 0 selects DefaultDelta
}

// DefaultConfig mirrors the usual capture setup: optical flow and Kalman
// enabled, naive search off.
func DefaultConfig() Config {
	return Config{OpticalFlow: true, Kalman: true, Delta: DefaultDelta}
}

// Tracker is the per-crop fusion engine. Each tick it runs the enabled
// estimators for every marker, merges their candidates, resolves
// marker-to-marker overlap, clamps to the crop bounds, and corrects each
// marker's Kalman state.
type Tracker struct {
	set        *markers.Set
	fl         *flow.Flow // nil when the flow estimator is disabled
	estimators []estimator
	kalman     bool
	delta      int

	blobs     []image.Point
	positions []Position
	estimated [][]Position
}

// New builds a tracker over the given marker set. fl may be nil only when
// cfg.OpticalFlow is false; when Kalman is enabled the set's filters are
// seeded from the current marker positions.
func New(set *markers.Set, fl *flow.Flow, cfg Config) (*Tracker, error) {
	if cfg.OpticalFlow && fl == nil {
		return nil, fmt.Errorf("track: optical flow enabled without a flow adapter")
	}
	if cfg.OpticalFlow && fl.Len() != set.Len() {
		return nil, fmt.Errorf("track: flow tracks %d points, set %s has %d markers: %w",
			fl.Len(), set.Name, set.Len(), markers.ErrCountMismatch)
	}

	delta := cfg.Delta
	if delta == 0 {
		delta = DefaultDelta
	}

	t := &Tracker{
		set:    set,
		kalman: cfg.Kalman,
		delta:  delta,
	}
	// Estimator order is fixed: naive, optical flow, Kalman.
	if cfg.Naive {
		t.estimators = append(t.estimators, naiveEstimator{})
	}
	if cfg.OpticalFlow {
		t.fl = fl
		t.estimators = append(t.estimators, flowEstimator{fl: fl})
	}
	if cfg.Kalman {
		set.InitFilters()
		t.estimators = append(t.estimators, kalmanEstimator{})
	}
	return t, nil
}

// Set returns the marker set the tracker updates.
func (t *Tracker) Set() *markers.Set { return t.set }

// Flow returns the tracker's flow adapter, or nil when disabled.
func (t *Tracker) Flow() *flow.Flow { return t.fl }

// Track runs one tick of fusion: the frame supplies the crop-local
// coordinate bounds for clamping (and feeds the flow adapter), blobs is
// the list of blob centers detected in the current filtered frame. Both
// returned slices are exactly set.Len() long and index-aligned with the
// marker set. Blob coordinates are passed through uninterpreted;
// validating them is the blob detector's responsibility.
//
// The only returned error is a marker-count mismatch between the flow
// adapter and the set, which aborts the tick.
func (t *Tracker) Track(gray *image.Gray, blobs []image.Point) ([]Position, [][]Position, error) {
	t.blobs = blobs
	t.positions = make([]Position, t.set.Len())
	t.estimated = make([][]Position, t.set.Len())

	if t.fl != nil {
		results := t.fl.Update(gray)
		if len(results) != t.set.Len() {
			return nil, nil, fmt.Errorf("track: flow returned %d results for %d markers: %w",
				len(results), t.set.Len(), markers.ErrCountMismatch)
		}
	}

	for i, m := range t.set.Markers() {
		t.trackMarker(i, m)
	}

	t.resolveOverlaps()
	t.clampToBounds(gray.Bounds())
	t.correctFilters()

	return t.positions, t.estimated, nil
}

// trackMarker generates and merges the candidates for one marker. Static
// markers short-circuit to their fixed position with an empty diagnostics
// list.
func (t *Tracker) trackMarker(index int, m *markers.Marker) {
	if m.Static {
		x, y := m.Pos()
		t.positions[index] = At(x, y, true)
		t.estimated[index] = []Position{}
		return
	}

	est := make([]Position, 0, 2*len(t.estimators))
	for _, e := range t.estimators {
		anchor, ok := e.anchor(index, m)
		if !ok {
			continue
		}
		est = append(est, At(anchor.X, anchor.Y, false))
		if blob, found := closestBlob(anchor, t.blobs, t.delta); found {
			est = append(est, At(blob.X, blob.Y, true))
		}
	}
	t.estimated[index] = est
	t.positions[index] = merge(est)
}

// closestBlob returns the blob minimizing the Euclidean distance to the
// anchor, provided it lies within delta. Ties are broken by blob list
// order: the first blob at the minimum distance wins.
func closestBlob(anchor image.Point, blobs []image.Point, delta int) (image.Point, bool) {
	best := image.Point{}
	bestDist := -1.0
	for _, b := range blobs {
		d := At(b.X, b.Y, false).DistanceTo(anchor.X, anchor.Y)
		if bestDist < 0 || d < bestDist {
			best = b
			bestDist = d
		}
	}
	if bestDist < 0 || bestDist > float64(delta) {
		return image.Point{}, false
	}
	return best, true
}

// merge averages the coordinates of the visible candidates (integer
// average). Zero visible candidates yield the Empty sentinel.
func merge(candidates []Position) Position {
	sumX, sumY, visible := 0, 0, 0
	for _, c := range candidates {
		if !c.Visible {
			continue
		}
		sumX += c.X
		sumY += c.Y
		visible++
	}
	if visible == 0 {
		return Empty()
	}
	return At(sumX/visible, sumY/visible, true)
}

// resolveOverlaps disambiguates markers whose merged positions coincide.
// For every coordinate-equal pair, the marker that moved further from its
// own pre-tick position loses the contested blob and reverts to its
// previous position. Equal displacements resolve in favor of the lower
// index: the lower index keeps the contested position.
func (t *Tracker) resolveOverlaps() {
	n := len(t.positions)
	for i := 0; i < n; i++ {
		if t.positions[i].IsEmpty() {
			continue
		}
		for j := i + 1; j < n; j++ {
			if t.positions[i].Equal(t.positions[j]) {
				t.resolvePair(i, j)
			}
		}
	}
}

func (t *Tracker) resolvePair(i, j int) {
	xi, yi := t.set.At(i).Pos()
	xj, yj := t.set.At(j).Pos()
	di := t.positions[i].DistanceTo(xi, yi)
	dj := t.positions[j].DistanceTo(xj, yj)

	if di <= dj {
		t.positions[j] = At(xj, yj, t.positions[j].Visible)
	} else {
		t.positions[i] = At(xi, yi, t.positions[i].Visible)
	}
}

// clampToBounds restricts every non-empty merged position to the crop
// area. Positions are clamped per axis, never rejected.
func (t *Tracker) clampToBounds(bounds image.Rectangle) {
	maxX := bounds.Dx() - 1
	maxY := bounds.Dy() - 1
	for i := range t.positions {
		t.positions[i] = t.positions[i].Clamp(maxX, maxY)
	}
}

// correctFilters feeds each non-static marker's final position into its
// Kalman filter. Markers without a measurement this tick skip correction:
// their filter state persists unchanged, coasting on prediction until the
// next successful correction.
func (t *Tracker) correctFilters() {
	if !t.kalman {
		return
	}
	for i, m := range t.set.Markers() {
		if m.Static || t.positions[i].IsEmpty() {
			continue
		}
		m.Correct(t.positions[i].X, t.positions[i].Y)
	}
}

// Apply writes final tick positions back to the marker set: non-empty
// positions reposition their marker and mark it visible, empty positions
// leave the marker at its last known position and mark it not visible.
// A count mismatch is a fatal precondition violation and aborts the tick.
func Apply(set *markers.Set, positions []Position) error {
	if len(positions) != set.Len() {
		return fmt.Errorf("track: applying %d positions to set %s of %d markers: %w",
			len(positions), set.Name, set.Len(), markers.ErrCountMismatch)
	}
	for i, p := range positions {
		m := set.At(i)
		if p.IsEmpty() {
			m.SetVisible(false)
			continue
		}
		m.SetPos(p.X, p.Y)
		m.SetVisible(p.Visible)
	}
	return nil
}
