package crop

import "image"

// Detect returns the centroids of connected foreground components in a
// binary image, filtered by area. Components are discovered in row-major
// scan order, which fixes the blob list order consumed by the tracker's
// tie-break. 4-connectivity.
func Detect(bin *image.Gray, minArea, maxArea int) []image.Point {
	b := bin.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)
	var blobs []image.Point

	stack := make([]image.Point, 0, 64)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || bin.GrayAt(b.Min.X+x, b.Min.Y+y).Y == 0 {
				continue
			}

			// Flood-fill one component, accumulating its centroid.
			area, sumX, sumY := 0, 0, 0
			stack = append(stack[:0], image.Pt(x, y))
			visited[y*w+x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				area++
				sumX += p.X
				sumY += p.Y
				for _, n := range [4]image.Point{
					{X: p.X + 1, Y: p.Y}, {X: p.X - 1, Y: p.Y},
					{X: p.X, Y: p.Y + 1}, {X: p.X, Y: p.Y - 1},
				} {
					if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h {
						continue
					}
					if visited[n.Y*w+n.X] || bin.GrayAt(b.Min.X+n.X, b.Min.Y+n.Y).Y == 0 {
						continue
					}
					visited[n.Y*w+n.X] = true
					stack = append(stack, n)
				}
			}

			if area >= minArea && (maxArea <= 0 || area <= maxArea) {
				blobs = append(blobs, image.Pt(sumX/area, sumY/area))
			}
		}
	}
	return blobs
}
