// Package testutil provides shared test fixtures.
//
// This package centralises common image fixtures to reduce code
// duplication across test files and improve test maintainability.
package testutil

import (
	"image"
	"image/color"
)

// GrayImage builds a w×h grayscale image filled with the given value.
func GrayImage(w, h int, fill uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return img
}

// DrawSquare paints a filled axis-aligned square of the given half-size
// centred at (cx, cy), clipped to the image bounds. Used to synthesise
// marker blobs in detector and tracking tests.
func DrawSquare(img *image.Gray, cx, cy, half int, value uint8) {
	b := img.Bounds()
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			if image.Pt(x, y).In(b) {
				img.SetGray(x, y, color.Gray{Y: value})
			}
		}
	}
}
