// Package camera converts tracked pixel positions into metric camera-space
// coordinates using the depth stream and the RGBD camera's intrinsic model.
package camera

import (
	"fmt"
	"math"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/frames"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/markers"
)

// Distortion model names accepted by Intrinsics.
const (
	ModelNone         = "none"
	ModelBrownConrady = "brown_conrady"
)

// Intrinsics describes the pinhole model of one camera stream: focal
// lengths and principal point in pixels, plus the distortion coefficients
// [k1, k2, p1, p2, k3].
type Intrinsics struct {
	Width, Height int
	Fx, Fy        float64
	Ppx, Ppy      float64
	Coeffs        [5]float64
	Model         string
}

// Validate rejects intrinsics that cannot be inverted.
func (in Intrinsics) Validate() error {
	if in.Fx == 0 || in.Fy == 0 {
		return fmt.Errorf("camera: zero focal length in intrinsics")
	}
	switch in.Model {
	case "", ModelNone, ModelBrownConrady:
		return nil
	}
	return fmt.Errorf("camera: unknown distortion model %q", in.Model)
}

// Position3D is one marker's metric position in the camera frame, meters.
// Markers that were not visible on the tick carry a zero position with
// Visible false.
type Position3D struct {
	Name    string
	X, Y, Z float64
	Visible bool
}

// Converter maps between pixel and metric coordinates for one recording.
type Converter struct {
	in    Intrinsics
	scale float64 // meters per raw depth unit
}

// NewConverter builds a converter. depthScale is the meters-per-unit
// factor of the raw depth samples; 0 selects the usual 1 mm scale.
func NewConverter(in Intrinsics, depthScale float64) (*Converter, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if depthScale == 0 {
		depthScale = 0.001
	}
	return &Converter{in: in, scale: depthScale}, nil
}

// ToMeters deprojects every visible marker position using the depth sample
// under it. A zero depth sample makes the marker not visible in the
// output: the pixel carried no range information this tick.
func (c *Converter) ToMeters(positions []markers.GlobalPosition, depth frames.Source) []Position3D {
	out := make([]Position3D, len(positions))
	for i, p := range positions {
		out[i] = Position3D{Name: p.Name}
		if !p.Visible {
			continue
		}
		raw := depth.DepthAt(p.X, p.Y)
		if raw == 0 {
			continue
		}
		x, y, z := c.Deproject(float64(p.X), float64(p.Y), float64(raw)*c.scale)
		out[i] = Position3D{Name: p.Name, X: x, Y: y, Z: z, Visible: true}
	}
	return out
}

// Deproject maps a pixel plus metric depth to camera-space meters.
func (c *Converter) Deproject(px, py, depth float64) (x, y, z float64) {
	nx := (px - c.in.Ppx) / c.in.Fx
	ny := (py - c.in.Ppy) / c.in.Fy
	if c.in.Model == ModelBrownConrady {
		nx, ny = c.undistort(nx, ny)
	}
	return nx * depth, ny * depth, depth
}

// Project maps a camera-space point back to pixel coordinates. Points at
// or behind the camera plane project to NaN.
func (c *Converter) Project(x, y, z float64) (px, py float64) {
	if z <= 0 {
		return math.NaN(), math.NaN()
	}
	nx := x / z
	ny := y / z
	if c.in.Model == ModelBrownConrady {
		nx, ny = c.distort(nx, ny)
	}
	return nx*c.in.Fx + c.in.Ppx, ny*c.in.Fy + c.in.Ppy
}

// distort applies the Brown-Conrady forward model to normalized
// coordinates.
func (c *Converter) distort(x, y float64) (dx, dy float64) {
	k1, k2, p1, p2, k3 := c.in.Coeffs[0], c.in.Coeffs[1], c.in.Coeffs[2], c.in.Coeffs[3], c.in.Coeffs[4]
	r2 := x*x + y*y
	f := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
	dx = x*f + 2*p1*x*y + p2*(r2+2*x*x)
	dy = y*f + p1*(r2+2*y*y) + 2*p2*x*y
	return dx, dy
}

// undistort inverts the forward model by fixed-point iteration. Ten
// rounds is enough for the small coefficients of RGBD modules.
func (c *Converter) undistort(x, y float64) (ux, uy float64) {
	ux, uy = x, y
	for i := 0; i < 10; i++ {
		dx, dy := c.distort(ux, uy)
		ux -= dx - x
		uy -= dy - y
	}
	return ux, uy
}
