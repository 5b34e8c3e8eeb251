// Package crop binds a rectangular region of interest, its marker set,
// and the blob-filter pipeline that feeds the fusion engine.
package crop

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// FilterParams configures the per-crop filter pipeline and blob detector.
// Constructed once per crop and immutable thereafter.
type FilterParams struct {
	// Brightness band: pixels whose luma falls inside
	// [MinThreshold, MaxThreshold] are foreground.
	MinThreshold int
	MaxThreshold int
	// DarkBlobs inverts the polarity: pixels inside the band become
	// background instead.
	DarkBlobs bool
	// Connected-component area bounds, in pixels.
	MinArea int
	MaxArea int
	// Gaussian blur sigma applied before thresholding; 0 disables.
	BlurSigma float64
}

// DefaultFilterParams matches the usual capture setup for retroreflective
// markers under IR illumination.
func DefaultFilterParams() FilterParams {
	return FilterParams{
		MinThreshold: 150,
		MaxThreshold: 220,
		MinArea:      1,
		MaxArea:      5000,
	}
}

// Filter turns a crop-local grayscale image into the binary image handed
// to the blob detector.
type Filter struct {
	params FilterParams
}

// NewFilter builds the filter pipeline for one crop.
func NewFilter(params FilterParams) *Filter {
	return &Filter{params: params}
}

// Apply runs the pipeline: optional Gaussian blur, then the brightness
// band threshold. Foreground pixels come out 255, background 0.
func (f *Filter) Apply(gray *image.Gray) *image.Gray {
	src := gray
	if f.params.BlurSigma > 0 {
		src = toGray(imaging.Blur(gray, f.params.BlurSigma))
	}

	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			inside := v >= f.params.MinThreshold && v <= f.params.MaxThreshold
			if inside != f.params.DarkBlobs {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
