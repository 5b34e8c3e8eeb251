package track

import (
	"image"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/flow"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/markers"
)

// estimator proposes an un-refined anchor point for one marker. The
// tracker then searches for a blob near that anchor. Estimators are a
// fixed set of variants selected by configuration and run in a fixed
// order; they never see each other's output.
type estimator interface {
	// anchor returns the estimator's anchor for the marker at the given
	// index, or ok=false when the estimator has no candidate this tick.
	anchor(index int, m *markers.Marker) (p image.Point, ok bool)
}

// naiveEstimator anchors at the marker's current position.
type naiveEstimator struct{}

func (naiveEstimator) anchor(_ int, m *markers.Marker) (image.Point, bool) {
	return m.Point(), true
}

// flowEstimator anchors at the optical-flow-reported point for the marker
// index. A failed flow status yields no candidate but does not block the
// other estimators.
type flowEstimator struct {
	fl *flow.Flow
}

func (e flowEstimator) anchor(index int, _ *markers.Marker) (image.Point, bool) {
	r := e.fl.At(index)
	return r.Point, r.Found
}

// kalmanEstimator anchors at the marker's Kalman prediction. Calling it
// advances the marker's filter one tick.
type kalmanEstimator struct{}

func (kalmanEstimator) anchor(_ int, m *markers.Marker) (image.Point, bool) {
	return m.Predict(), true
}
