package flow

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/markers"
	"github.com/Kael-Facon/rgbd-mocap/internal/testutil"
)

func TestBlockMatcherFindsTranslatedPatch(t *testing.T) {
	t.Parallel()

	prev := testutil.GrayImage(64, 64, 0)
	next := testutil.GrayImage(64, 64, 0)
	testutil.DrawSquare(prev, 20, 20, 2, 255)
	testutil.DrawSquare(next, 26, 23, 2, 255)

	bm := DefaultBlockMatcher()
	results := bm.Flow(prev, next, []image.Point{{X: 20, Y: 20}})
	require.Len(t, results, 1)

	assert.True(t, results[0].Found)
	assert.Equal(t, image.Pt(26, 23), results[0].Point)
	assert.InDelta(t, 0, results[0].Err, 1e-9)
}

func TestBlockMatcherPointNearEdgeNotFound(t *testing.T) {
	t.Parallel()

	prev := testutil.GrayImage(32, 32, 0)
	next := testutil.GrayImage(32, 32, 0)

	bm := DefaultBlockMatcher()
	results := bm.Flow(prev, next, []image.Point{{X: 1, Y: 1}})
	require.Len(t, results, 1)

	assert.False(t, results[0].Found)
	assert.Equal(t, image.Pt(1, 1), results[0].Point)
}

func TestFlowUpdateAdvancesReferencePoints(t *testing.T) {
	t.Parallel()

	f0 := testutil.GrayImage(64, 64, 0)
	f1 := testutil.GrayImage(64, 64, 0)
	f2 := testutil.GrayImage(64, 64, 0)
	testutil.DrawSquare(f0, 20, 20, 2, 255)
	testutil.DrawSquare(f1, 24, 20, 2, 255)
	testutil.DrawSquare(f2, 28, 20, 2, 255)

	fl := New(f0, []image.Point{{X: 20, Y: 20}}, nil)
	require.Equal(t, 1, fl.Len())

	fl.Update(f1)
	assert.Equal(t, image.Pt(24, 20), fl.At(0).Point)

	// The found point became the reference, so the next step only needs
	// to cover the remaining displacement.
	fl.Update(f2)
	assert.Equal(t, image.Pt(28, 20), fl.At(0).Point)
}

func TestFlowSeed(t *testing.T) {
	t.Parallel()

	t.Run("replaces reference points", func(t *testing.T) {
		t.Parallel()
		f0 := testutil.GrayImage(64, 64, 0)
		f1 := testutil.GrayImage(64, 64, 0)
		testutil.DrawSquare(f0, 40, 40, 2, 255)
		testutil.DrawSquare(f1, 43, 40, 2, 255)

		fl := New(testutil.GrayImage(64, 64, 0), []image.Point{{X: 10, Y: 10}}, nil)
		require.NoError(t, fl.Seed([]image.Point{{X: 40, Y: 40}}))

		fl.prev = f0
		fl.Update(f1)
		assert.Equal(t, image.Pt(43, 40), fl.At(0).Point)
	})

	t.Run("count mismatch is fatal", func(t *testing.T) {
		t.Parallel()
		fl := New(testutil.GrayImage(8, 8, 0), []image.Point{{X: 4, Y: 4}}, nil)
		err := fl.Seed([]image.Point{{X: 1, Y: 1}, {X: 2, Y: 2}})
		assert.ErrorIs(t, err, markers.ErrCountMismatch)
	})
}
