package crop

import (
	"fmt"
	"image"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/flow"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/frames"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/markers"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/track"
)

// Crop owns one region of interest: its area in full-frame coordinates,
// the marker set living inside it, the filter pipeline, and the fusion
// engine. Each worker runs exactly one Crop.
type Crop struct {
	Name string

	area    image.Rectangle
	src     frames.Source
	set     *markers.Set
	filter  *Filter
	params  FilterParams
	tracker *track.Tracker
}

// Result is one tick's output for a crop, kept for diagnostics and
// overlays. Positions and Estimated are index-aligned with the marker
// set.
type Result struct {
	Blobs     []image.Point
	Positions []track.Position
	Estimated [][]track.Position
}

// New binds a crop area to its marker set and builds the fusion engine
// over it. The set's offset is taken from the area origin; marker
// positions are interpreted crop-local. When optical flow is enabled the
// adapter is seeded from the source's current frame content.
func New(name string, area image.Rectangle, src frames.Source, set *markers.Set,
	params FilterParams, cfg track.Config) (*Crop, error) {

	if !area.In(src.Bounds()) {
		return nil, fmt.Errorf("crop %s: area %v outside frame %v", name, area, src.Bounds())
	}
	set.SetOffset(area.Min.X, area.Min.Y)

	var fl *flow.Flow
	if cfg.OpticalFlow {
		fl = flow.New(src.Gray(area), set.Points(), nil)
	}
	tracker, err := track.New(set, fl, cfg)
	if err != nil {
		return nil, fmt.Errorf("crop %s: %w", name, err)
	}

	return &Crop{
		Name:    name,
		area:    area,
		src:     src,
		set:     set,
		filter:  NewFilter(params),
		params:  params,
		tracker: tracker,
	}, nil
}

// Area returns the crop's region in full-frame coordinates.
func (c *Crop) Area() image.Rectangle { return c.area }

// Set returns the crop's marker set.
func (c *Crop) Set() *markers.Set { return c.set }

// Track runs one tick against the source's current frame: extract the
// crop-local grayscale image, filter, detect blobs, fuse, write the
// final positions back to the set, and re-seed the flow references from
// the applied positions. The set is published to its shared segment at
// the end so the supervisor observes a consistent tick.
func (c *Crop) Track() (Result, error) {
	gray := c.src.Gray(c.area)
	bin := c.filter.Apply(gray)
	blobs := Detect(bin, c.params.MinArea, c.params.MaxArea)

	positions, estimated, err := c.tracker.Track(gray, blobs)
	if err != nil {
		return Result{}, fmt.Errorf("crop %s: %w", c.Name, err)
	}
	if err := track.Apply(c.set, positions); err != nil {
		return Result{}, fmt.Errorf("crop %s: %w", c.Name, err)
	}

	if fl := c.tracker.Flow(); fl != nil {
		if err := fl.Seed(c.set.Points()); err != nil {
			return Result{}, fmt.Errorf("crop %s: %w", c.Name, err)
		}
	}
	c.set.Publish()

	return Result{Blobs: blobs, Positions: positions, Estimated: estimated}, nil
}
