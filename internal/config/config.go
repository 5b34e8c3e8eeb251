// Package config loads and validates the recording configuration: the
// frame sequence location, the tracking strategy toggles, and every crop
// with its markers and filter tuning. JSON and YAML are both accepted,
// chosen by file extension.
package config

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/camera"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/crop"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/pipeline"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/track"
	"github.com/Kael-Facon/rgbd-mocap/internal/monitoring"
)

// Config is the root recording configuration.
type Config struct {
	// Directory holding the color_<i>.png / depth_<i>.png pairs.
	Directory string `json:"directory" yaml:"directory" validate:"required"`

	StartIndex int `json:"start_index" yaml:"start_index" validate:"gte=0"`
	EndIndex   int `json:"end_index" yaml:"end_index" validate:"gtfield=StartIndex"`

	Tracking Tracking `json:"tracking" yaml:"tracking"`
	Crops    []Crop   `json:"crops" yaml:"crops" validate:"required,min=1,dive"`

	// Camera enables metric output when present.
	Camera *Camera `json:"camera,omitempty" yaml:"camera,omitempty"`
}

// Tracking selects the estimator strategies shared by every crop.
type Tracking struct {
	Naive       bool `json:"naive" yaml:"naive"`
	OpticalFlow bool `json:"optical_flow" yaml:"optical_flow"`
	Kalman      bool `json:"kalman" yaml:"kalman"`
	// Delta is the blob match radius in pixels; 0 selects the default.
	Delta int `json:"delta" yaml:"delta" validate:"gte=0"`
}

// Crop is one region of interest. Area is [x0, y0, x1, y1] in full-frame
// coordinates; marker positions are crop-local.
type Crop struct {
	Name    string   `json:"name" yaml:"name" validate:"required"`
	Area    [4]int   `json:"area" yaml:"area"`
	Markers []Marker `json:"markers" yaml:"markers" validate:"required,min=1,dive"`
	Filters Filters  `json:"filters" yaml:"filters"`
}

// Marker is one tracked point inside a crop.
type Marker struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Pos    [2]int `json:"pos" yaml:"pos"`
	Static bool   `json:"static" yaml:"static"`
}

// Filters is the per-crop filter and blob detector tuning. Zero values
// take the package defaults.
type Filters struct {
	MinThreshold *int    `json:"min_threshold,omitempty" yaml:"min_threshold,omitempty"`
	MaxThreshold *int    `json:"max_threshold,omitempty" yaml:"max_threshold,omitempty"`
	DarkBlobs    bool    `json:"dark_blobs" yaml:"dark_blobs"`
	MinArea      *int    `json:"min_area,omitempty" yaml:"min_area,omitempty"`
	MaxArea      *int    `json:"max_area,omitempty" yaml:"max_area,omitempty"`
	BlurSigma    float64 `json:"blur_sigma" yaml:"blur_sigma" validate:"gte=0"`
}

// Camera carries the depth stream intrinsics of the recording.
type Camera struct {
	Width      int        `json:"width" yaml:"width" validate:"gt=0"`
	Height     int        `json:"height" yaml:"height" validate:"gt=0"`
	Fx         float64    `json:"fx" yaml:"fx" validate:"ne=0"`
	Fy         float64    `json:"fy" yaml:"fy" validate:"ne=0"`
	Ppx        float64    `json:"ppx" yaml:"ppx"`
	Ppy        float64    `json:"ppy" yaml:"ppy"`
	Coeffs     [5]float64 `json:"coeffs" yaml:"coeffs"`
	Model      string     `json:"model" yaml:"model"`
	DepthScale float64    `json:"depth_scale" yaml:"depth_scale" validate:"gte=0"`
}

// Load reads, parses, and validates a configuration file. .yaml and .yml
// parse as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	total := 0
	for _, cr := range cfg.Crops {
		total += len(cr.Markers)
	}
	monitoring.Logf("config: %s: %d crops, %d markers, frames [%d, %d)",
		path, len(cfg.Crops), total, cfg.StartIndex, cfg.EndIndex)
	return &cfg, nil
}

// Validate checks structural constraints and the cross-field rules the
// struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	for _, cr := range c.Crops {
		if cr.Area[2] <= cr.Area[0] || cr.Area[3] <= cr.Area[1] {
			return fmt.Errorf("crop %s: degenerate area %v", cr.Name, cr.Area)
		}
		f := cr.Filters.Params()
		if f.MaxThreshold < f.MinThreshold {
			return fmt.Errorf("crop %s: max_threshold %d below min_threshold %d",
				cr.Name, f.MaxThreshold, f.MinThreshold)
		}
	}
	return nil
}

// TrackConfig maps the tracking toggles to the fusion engine config.
func (c *Config) TrackConfig() track.Config {
	return track.Config{
		Naive:       c.Tracking.Naive,
		OpticalFlow: c.Tracking.OpticalFlow,
		Kalman:      c.Tracking.Kalman,
		Delta:       c.Tracking.Delta,
	}
}

// CropSpecs maps the crop declarations to pipeline specs.
func (c *Config) CropSpecs() []pipeline.CropSpec {
	specs := make([]pipeline.CropSpec, len(c.Crops))
	for i, cr := range c.Crops {
		spec := pipeline.CropSpec{
			Name:   cr.Name,
			Area:   image.Rect(cr.Area[0], cr.Area[1], cr.Area[2], cr.Area[3]),
			Filter: cr.Filters.Params(),
		}
		for _, m := range cr.Markers {
			spec.Markers = append(spec.Markers, pipeline.MarkerSpec{
				Name: m.Name, X: m.Pos[0], Y: m.Pos[1], Static: m.Static,
			})
		}
		specs[i] = spec
	}
	return specs
}

// Converter builds the metric converter, or nil when no camera block is
// configured.
func (c *Config) Converter() (*camera.Converter, error) {
	if c.Camera == nil {
		return nil, nil
	}
	return camera.NewConverter(camera.Intrinsics{
		Width: c.Camera.Width, Height: c.Camera.Height,
		Fx: c.Camera.Fx, Fy: c.Camera.Fy,
		Ppx: c.Camera.Ppx, Ppy: c.Camera.Ppy,
		Coeffs: c.Camera.Coeffs,
		Model:  c.Camera.Model,
	}, c.Camera.DepthScale)
}

// Params resolves the filter tuning, falling back to the defaults for
// any omitted field.
func (f Filters) Params() crop.FilterParams {
	p := crop.DefaultFilterParams()
	if f.MinThreshold != nil {
		p.MinThreshold = *f.MinThreshold
	}
	if f.MaxThreshold != nil {
		p.MaxThreshold = *f.MaxThreshold
	}
	if f.MinArea != nil {
		p.MinArea = *f.MinArea
	}
	if f.MaxArea != nil {
		p.MaxArea = *f.MaxArea
	}
	p.DarkBlobs = f.DarkBlobs
	p.BlurSigma = f.BlurSigma
	return p
}
