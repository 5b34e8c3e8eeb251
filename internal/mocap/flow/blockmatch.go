package flow

import "image"

// BlockMatcher is the default Computer: an exhaustive sum-of-absolute-
// differences patch search. For each reference point it compares the
// surrounding patch in the previous frame against every candidate position
// within the search window in the next frame and reports the best match.
//
// A point is Found when its patch lies fully inside both frames; the match
// error is reported but deliberately not thresholded (acceptance gating is
// the caller's decision, and the fusion engine accepts any Found result).
type BlockMatcher struct {
	PatchRadius  int // half-width of the compared patch
	SearchRadius int // maximum displacement searched per axis
}

// DefaultBlockMatcher returns a matcher sized for small fiducial markers:
// a 9×9 patch searched over ±12 px.
func DefaultBlockMatcher() *BlockMatcher {
	return &BlockMatcher{PatchRadius: 4, SearchRadius: 12}
}

// Flow implements Computer.
func (bm *BlockMatcher) Flow(prev, next *image.Gray, points []image.Point) []Result {
	results := make([]Result, len(points))
	for i, p := range points {
		results[i] = bm.match(prev, next, p)
	}
	return results
}

func (bm *BlockMatcher) match(prev, next *image.Gray, p image.Point) Result {
	if !patchInside(prev.Bounds(), p, bm.PatchRadius) {
		return Result{Point: p}
	}

	best := p
	bestCost := -1.0
	for dy := -bm.SearchRadius; dy <= bm.SearchRadius; dy++ {
		for dx := -bm.SearchRadius; dx <= bm.SearchRadius; dx++ {
			c := image.Pt(p.X+dx, p.Y+dy)
			if !patchInside(next.Bounds(), c, bm.PatchRadius) {
				continue
			}
			cost := bm.patchCost(prev, next, p, c)
			if bestCost < 0 || cost < bestCost {
				best = c
				bestCost = cost
			}
		}
	}
	if bestCost < 0 {
		// No candidate patch fit inside the next frame.
		return Result{Point: p}
	}
	return Result{Point: best, Found: true, Err: bestCost}
}

// patchCost is the mean absolute difference between the patch around a in
// prev and the patch around b in next.
func (bm *BlockMatcher) patchCost(prev, next *image.Gray, a, b image.Point) float64 {
	r := bm.PatchRadius
	sum := 0
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			pa := prev.GrayAt(a.X+dx, a.Y+dy).Y
			pb := next.GrayAt(b.X+dx, b.Y+dy).Y
			d := int(pa) - int(pb)
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	n := (2*r + 1) * (2*r + 1)
	return float64(sum) / float64(n)
}

func patchInside(b image.Rectangle, p image.Point, r int) bool {
	return p.X-r >= b.Min.X && p.Y-r >= b.Min.Y && p.X+r < b.Max.X && p.Y+r < b.Max.Y
}
