package frames

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
)

// Loader produces color/depth frame pairs by index. A load failure skips
// the tick at the call site; the loader itself performs no retries.
type Loader interface {
	Load(index int) (*Frame, error)
}

// DirLoader reads color_<i>.png / depth_<i>.png pairs from a directory.
// Both images are rotated 180° on load to undo the capture orientation
// of the recording rig.
type DirLoader struct {
	Dir string
}

// Load implements Loader.
func (l *DirLoader) Load(index int) (*Frame, error) {
	colorPath := filepath.Join(l.Dir, fmt.Sprintf("color_%d.png", index))

	colorImg, err := imaging.Open(colorPath)
	if err != nil {
		return nil, fmt.Errorf("frames: load color %d: %w", index, err)
	}
	colorImg = imaging.Rotate180(colorImg)

	depthImg, err := l.loadDepthPair(index)
	if err != nil {
		return nil, fmt.Errorf("frames: load depth %d: %w", index, err)
	}

	b := colorImg.Bounds()
	fr := NewFrame(b.Dx(), b.Dy())
	if err := fr.SetImages(colorImg, depthImg); err != nil {
		return nil, err
	}
	return fr, nil
}

// loadDepthPair locates the depth image for a frame index. Recording
// rigs export depth as 16-bit PNG or 16-bit TIFF depending on the
// capture tool; both are accepted, PNG preferred.
func (l *DirLoader) loadDepthPair(index int) (*image.Gray16, error) {
	pngPath := filepath.Join(l.Dir, fmt.Sprintf("depth_%d.png", index))
	if _, err := os.Stat(pngPath); err == nil {
		return loadDepth(pngPath, png.Decode)
	}
	return loadDepth(filepath.Join(l.Dir, fmt.Sprintf("depth_%d.tiff", index)), tiff.Decode)
}

// loadDepth decodes a 16-bit grayscale image and rotates it 180° without
// going through an 8-bit intermediate (imaging would flatten Gray16).
func loadDepth(path string, decode func(io.Reader) (image.Image, error)) (*image.Gray16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := decode(f)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	out := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// Rotate 180°: (x, y) samples the opposite corner.
			sx := b.Max.X - 1 - x
			sy := b.Max.Y - 1 - y
			g, _, _, _ := img.At(sx, sy).RGBA()
			out.SetGray16(x, y, color.Gray16{Y: uint16(g)})
		}
	}
	return out, nil
}
