package track

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/flow"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/markers"
	"github.com/Kael-Facon/rgbd-mocap/internal/testutil"
)

func newSet(t *testing.T, positions ...image.Point) *markers.Set {
	t.Helper()
	names := make([]string, len(positions))
	for i := range positions {
		names[i] = string(rune('a' + i))
	}
	s := markers.NewSet("test", names)
	require.NoError(t, s.SetPositions(positions))
	return s
}

func naiveTracker(t *testing.T, set *markers.Set, delta int) *Tracker {
	t.Helper()
	tr, err := New(set, nil, Config{Naive: true, Delta: delta})
	require.NoError(t, err)
	return tr
}

func TestTrackOutputLengthsMatchSet(t *testing.T) {
	t.Parallel()

	set := newSet(t, image.Pt(10, 10), image.Pt(30, 30), image.Pt(60, 60))
	tr := naiveTracker(t, set, DefaultDelta)

	gray := testutil.GrayImage(100, 100, 0)
	positions, estimated, err := tr.Track(gray, []image.Point{{X: 11, Y: 10}})
	require.NoError(t, err)

	assert.Len(t, positions, set.Len())
	assert.Len(t, estimated, set.Len())
}

func TestStaticMarkerShortCircuits(t *testing.T) {
	t.Parallel()

	set := newSet(t, image.Pt(25, 25))
	set.At(0).Static = true
	tr := naiveTracker(t, set, 50)

	gray := testutil.GrayImage(100, 100, 0)
	// A blob right next to the static marker must not move it.
	positions, estimated, err := tr.Track(gray, []image.Point{{X: 27, Y: 26}})
	require.NoError(t, err)

	assert.Equal(t, At(25, 25, true), positions[0])
	assert.Empty(t, estimated[0])
}

func TestNoEstimatorsYieldsEmpty(t *testing.T) {
	t.Parallel()

	set := newSet(t, image.Pt(10, 10))
	tr, err := New(set, nil, Config{})
	require.NoError(t, err)

	gray := testutil.GrayImage(100, 100, 0)
	positions, estimated, err := tr.Track(gray, []image.Point{{X: 10, Y: 10}})
	require.NoError(t, err)

	assert.True(t, positions[0].IsEmpty())
	assert.Empty(t, estimated[0])
}

func TestMergeIdempotence(t *testing.T) {
	t.Parallel()

	merged := merge([]Position{At(12, 11, true)})
	assert.Equal(t, At(12, 11, true), merged)
}

func TestMergeAveragesVisibleOnly(t *testing.T) {
	t.Parallel()

	merged := merge([]Position{
		At(10, 10, false), // reference entry, not counted
		At(12, 11, true),
		At(14, 13, true),
	})
	assert.Equal(t, At(13, 12, true), merged)

	assert.True(t, merge([]Position{At(5, 5, false)}).IsEmpty())
	assert.True(t, merge(nil).IsEmpty())
}

func TestNaiveSingleBlobScenario(t *testing.T) {
	t.Parallel()

	// One non-static marker at (10,10), naive-only, DELTA=8, blob at
	// (12,11): the output position is the blob, visible.
	set := newSet(t, image.Pt(10, 10))
	tr := naiveTracker(t, set, 8)

	gray := testutil.GrayImage(100, 100, 0)
	positions, estimated, err := tr.Track(gray, []image.Point{{X: 12, Y: 11}})
	require.NoError(t, err)

	assert.Equal(t, At(12, 11, true), positions[0])

	want := []Position{At(10, 10, false), At(12, 11, true)}
	if diff := cmp.Diff(want, estimated[0], cmpopts.EquateComparable(Position{})); diff != "" {
		t.Errorf("estimated mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, Apply(set, positions))
	x, y := set.At(0).Pos()
	assert.Equal(t, 12, x)
	assert.Equal(t, 11, y)
	assert.True(t, set.At(0).Visible())
}

func TestNoBlobsLeavesMarkerInPlace(t *testing.T) {
	t.Parallel()

	set := newSet(t, image.Pt(10, 10))
	tr := naiveTracker(t, set, 8)

	gray := testutil.GrayImage(100, 100, 0)
	positions, _, err := tr.Track(gray, nil)
	require.NoError(t, err)

	assert.True(t, positions[0].IsEmpty())

	require.NoError(t, Apply(set, positions))
	x, y := set.At(0).Pos()
	assert.Equal(t, 10, x)
	assert.Equal(t, 10, y)
	assert.False(t, set.At(0).Visible())
}

func TestBlobOutsideDeltaIgnored(t *testing.T) {
	t.Parallel()

	set := newSet(t, image.Pt(10, 10))
	tr := naiveTracker(t, set, 8)

	gray := testutil.GrayImage(100, 100, 0)
	positions, estimated, err := tr.Track(gray, []image.Point{{X: 40, Y: 40}})
	require.NoError(t, err)

	assert.True(t, positions[0].IsEmpty())
	// Only the reference entry remains in the diagnostics.
	require.Len(t, estimated[0], 1)
	assert.False(t, estimated[0][0].Visible)
}

func TestClosestBlobDeterminism(t *testing.T) {
	t.Parallel()

	anchor := image.Pt(10, 10)

	t.Run("picks minimum distance", func(t *testing.T) {
		t.Parallel()
		b, ok := closestBlob(anchor, []image.Point{{X: 16, Y: 10}, {X: 12, Y: 10}}, 8)
		require.True(t, ok)
		assert.Equal(t, image.Pt(12, 10), b)
	})

	t.Run("ties break by list order", func(t *testing.T) {
		t.Parallel()
		b, ok := closestBlob(anchor, []image.Point{{X: 13, Y: 10}, {X: 7, Y: 10}}, 8)
		require.True(t, ok)
		assert.Equal(t, image.Pt(13, 10), b)
	})
}

func TestOverlapResolution(t *testing.T) {
	t.Parallel()

	t.Run("larger displacement reverts", func(t *testing.T) {
		t.Parallel()
		// Both markers merge to (50,50). A was at (48,49), B at (10,10):
		// A keeps the contested position, B reverts.
		set := newSet(t, image.Pt(48, 49), image.Pt(10, 10))
		tr := naiveTracker(t, set, 60)

		gray := testutil.GrayImage(100, 100, 0)
		positions, _, err := tr.Track(gray, []image.Point{{X: 50, Y: 50}})
		require.NoError(t, err)

		assert.Equal(t, At(50, 50, true), positions[0])
		assert.Equal(t, At(10, 10, true), positions[1])
	})

	t.Run("equal displacement keeps lower index", func(t *testing.T) {
		t.Parallel()
		// Symmetric setup: both markers are 2 px from the contested blob.
		set := newSet(t, image.Pt(48, 50), image.Pt(52, 50))
		tr := naiveTracker(t, set, 10)

		gray := testutil.GrayImage(100, 100, 0)
		positions, _, err := tr.Track(gray, []image.Point{{X: 50, Y: 50}})
		require.NoError(t, err)

		assert.Equal(t, At(50, 50, true), positions[0])
		assert.Equal(t, At(52, 50, true), positions[1])
	})
}

func TestBoundsClampInsideTrack(t *testing.T) {
	t.Parallel()

	// A blob outside the crop is passed through uninterpreted, merged,
	// then clamped to the crop area.
	set := newSet(t, image.Pt(10, 10))
	tr := naiveTracker(t, set, 1000)

	gray := testutil.GrayImage(100, 100, 0)
	positions, _, err := tr.Track(gray, []image.Point{{X: -3, Y: 700}})
	require.NoError(t, err)

	assert.Equal(t, At(0, 99, true), positions[0])
}

func TestFlowEstimatorConsultedOnlyWhenFound(t *testing.T) {
	t.Parallel()

	f0 := testutil.GrayImage(100, 100, 0)
	f1 := testutil.GrayImage(100, 100, 0)
	testutil.DrawSquare(f0, 30, 30, 2, 255)
	testutil.DrawSquare(f1, 34, 30, 2, 255)

	set := newSet(t, image.Pt(30, 30))
	fl := flow.New(f0, set.Points(), nil)
	tr, err := New(set, fl, Config{OpticalFlow: true, Delta: 8})
	require.NoError(t, err)

	positions, estimated, err := tr.Track(f1, []image.Point{{X: 34, Y: 30}})
	require.NoError(t, err)

	// The flow anchor lands on the moved square and the blob refines it.
	assert.Equal(t, At(34, 30, true), positions[0])
	require.Len(t, estimated[0], 2)
	assert.Equal(t, At(34, 30, false), estimated[0][0])

	// A point whose patch falls outside the frame reports not-found, so
	// the flow estimator contributes nothing.
	edge := newSet(t, image.Pt(0, 0))
	fl2 := flow.New(testutil.GrayImage(100, 100, 0), edge.Points(), nil)
	tr2, err := New(edge, fl2, Config{OpticalFlow: true, Delta: 8})
	require.NoError(t, err)

	positions, estimated, err = tr2.Track(testutil.GrayImage(100, 100, 0), []image.Point{{X: 1, Y: 1}})
	require.NoError(t, err)
	assert.True(t, positions[0].IsEmpty())
	assert.Empty(t, estimated[0])
}

func TestKalmanEstimatorAnchorsAtPrediction(t *testing.T) {
	t.Parallel()

	set := newSet(t, image.Pt(20, 20))
	tr, err := New(set, nil, Config{Kalman: true, Delta: 8})
	require.NoError(t, err)

	gray := testutil.GrayImage(100, 100, 0)

	// First tick: prediction sits at the seed position, the blob at
	// (24,20) is inside DELTA and becomes the measurement.
	positions, estimated, err := tr.Track(gray, []image.Point{{X: 24, Y: 20}})
	require.NoError(t, err)
	assert.Equal(t, At(24, 20, true), positions[0])
	require.Len(t, estimated[0], 2)
	assert.Equal(t, At(20, 20, false), estimated[0][0])
	require.NoError(t, Apply(set, positions))

	// Second tick without blobs: no measurement, marker stays put and the
	// filter coasts.
	positions, _, err = tr.Track(gray, nil)
	require.NoError(t, err)
	assert.True(t, positions[0].IsEmpty())
}

func TestApplyCountMismatch(t *testing.T) {
	t.Parallel()

	set := newSet(t, image.Pt(1, 1), image.Pt(2, 2))
	err := Apply(set, []Position{At(3, 3, true)})
	require.Error(t, err)
	assert.ErrorIs(t, err, markers.ErrCountMismatch)
}

func TestNewRejectsFlowSetMismatch(t *testing.T) {
	t.Parallel()

	set := newSet(t, image.Pt(10, 10), image.Pt(20, 20))
	fl := flow.New(testutil.GrayImage(64, 64, 0), []image.Point{{X: 10, Y: 10}}, nil)

	_, err := New(set, fl, Config{OpticalFlow: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, markers.ErrCountMismatch)
}
