// Package flow adapts an external optical-flow computation for the fusion
// engine. The adapter owns the per-marker reference points and the previous
// frame; the actual flow computation is a capability behind the Computer
// interface, with a block-matching implementation as the default.
package flow

import (
	"fmt"
	"image"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/markers"
)

// Result is one tracked point's outcome for a tick: the new position, a
// status flag indicating whether the point was found in the current frame,
// and the residual match error. The error is surfaced for diagnostics only
// and is never used to gate acceptance: any Found result is consumed.
type Result struct {
	Point image.Point
	Found bool
	Err   float64
}

// Computer performs the flow computation between two frames for a fixed
// set of points. Implementations must return exactly one Result per input
// point, index-aligned.
type Computer interface {
	Flow(prev, next *image.Gray, points []image.Point) []Result
}

// Flow tracks an ordered set of reference points, index-aligned with a
// marker set, across consecutive grayscale frames.
type Flow struct {
	comp    Computer
	prev    *image.Gray
	points  []image.Point
	results []Result
}

// New creates an adapter from the initial frame and the initial tracked
// points. A nil Computer selects the default block matcher.
func New(initial *image.Gray, points []image.Point, comp Computer) *Flow {
	if comp == nil {
		comp = DefaultBlockMatcher()
	}
	pts := make([]image.Point, len(points))
	copy(pts, points)
	return &Flow{comp: comp, prev: initial, points: pts}
}

// Len returns the number of tracked points.
func (f *Flow) Len() int { return len(f.points) }

// Update runs the flow computation against the new frame. Called once per
// tick before per-marker tracking. Points found in the new frame become the
// reference points for the next tick unless Seed replaces them first.
func (f *Flow) Update(next *image.Gray) []Result {
	f.results = f.comp.Flow(f.prev, next, f.points)
	for i, r := range f.results {
		if r.Found {
			f.points[i] = r.Point
		}
	}
	f.prev = next
	return f.results
}

// At returns the last Update result for the marker at index i.
func (f *Flow) At(i int) Result {
	if f.results == nil {
		return Result{Point: f.points[i]}
	}
	return f.results[i]
}

// Seed replaces the reference points, index-aligned with the marker set.
// The tracking pipeline calls this after each tick with the final merged
// positions so flow drift does not accumulate over long sequences.
func (f *Flow) Seed(points []image.Point) error {
	if len(points) != len(f.points) {
		return fmt.Errorf("flow: seeding %d points over %d tracked: %w",
			len(points), len(f.points), markers.ErrCountMismatch)
	}
	copy(f.points, points)
	return nil
}
