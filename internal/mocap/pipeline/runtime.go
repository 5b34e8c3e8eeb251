package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/camera"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/crop"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/frames"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/markers"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/track"
)

// MarkerSpec places one marker inside a crop. Coordinates are crop-local.
type MarkerSpec struct {
	Name   string
	X, Y   int
	Static bool
}

// CropSpec declares one region of interest and the markers it owns.
type CropSpec struct {
	Name    string
	Area    image.Rectangle
	Markers []MarkerSpec
	Filter  crop.FilterParams
}

// Tick is one frame's tracking output, handed to the Sink after every
// completed tick. Positions concatenates every crop's markers in crop
// declaration order; Metric is nil when no converter is configured.
type Tick struct {
	Index     int
	Positions []markers.GlobalPosition
	Metric    []camera.Position3D
	Crops     []crop.Result
}

// Sink observes completed ticks. Called from the supervisor goroutine,
// strictly in frame order.
type Sink func(Tick)

// Options configures a tracking session over a recorded sequence.
type Options struct {
	Loader     frames.Loader
	Start, End int // frame index range, End exclusive
	Tracking   track.Config
	Crops      []CropSpec
	Converter  *camera.Converter // optional metric conversion
	Sink       Sink              // optional per-tick observer
}

// Stats summarizes a finished run.
type Stats struct {
	Ticks   int // frames tracked
	Skipped int // frames dropped because their load failed

	AvgLoad    time.Duration // frame pair load, overlapped with compute
	AvgCompute time.Duration // dispatch to join
	AvgTotal   time.Duration // full tick wall time
}

// cropJob adapts a Crop to the worker pool. The result is written by the
// worker and read by the supervisor only after the completion handshake.
type cropJob struct {
	crop *crop.Crop
	res  crop.Result
}

func (j *cropJob) Name() string { return j.crop.Name }

func (j *cropJob) Run(tick uint64) error {
	res, err := j.crop.Track()
	if err != nil {
		return err
	}
	j.res = res
	return nil
}

// Session owns a run: the shared frame buffer, the marker arena, the
// per-crop workers, and the supervisor loop that drives them.
type Session struct {
	ID uuid.UUID

	opts   Options
	shared *frames.Shared
	store  *markers.Store
	jobs   []*cropJob
}

// NewSession loads the first frame of the sequence to size the shared
// buffers, then wires every crop: marker set, arena segment, filter
// pipeline, and fusion engine.
func NewSession(opts Options) (*Session, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("pipeline: no frame loader")
	}
	if len(opts.Crops) == 0 {
		return nil, fmt.Errorf("pipeline: no crops configured")
	}
	if opts.End <= opts.Start {
		return nil, fmt.Errorf("pipeline: empty frame range [%d, %d)", opts.Start, opts.End)
	}

	first, err := opts.Loader.Load(opts.Start)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load first frame %d: %w", opts.Start, err)
	}

	s := &Session{
		ID:     uuid.New(),
		opts:   opts,
		shared: frames.NewShared(first.W, first.H),
	}
	if err := s.shared.Publish(first); err != nil {
		return nil, err
	}

	total := 0
	for _, cs := range opts.Crops {
		total += len(cs.Markers)
	}
	s.store = markers.NewStore(total)

	for _, cs := range opts.Crops {
		names := make([]string, len(cs.Markers))
		points := make([]image.Point, len(cs.Markers))
		for i, ms := range cs.Markers {
			names[i] = ms.Name
			points[i] = image.Pt(ms.X, ms.Y)
		}

		set := markers.NewSet(cs.Name, names)
		if err := set.SetPositions(points); err != nil {
			return nil, fmt.Errorf("pipeline: crop %s: %w", cs.Name, err)
		}
		for i, ms := range cs.Markers {
			set.At(i).Static = ms.Static
		}

		seg, err := s.store.Allocate(len(cs.Markers))
		if err != nil {
			return nil, fmt.Errorf("pipeline: crop %s: %w", cs.Name, err)
		}
		if err := set.Bind(seg); err != nil {
			return nil, fmt.Errorf("pipeline: crop %s: %w", cs.Name, err)
		}

		c, err := crop.New(cs.Name, cs.Area, s.shared, set, cs.Filter, opts.Tracking)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		s.jobs = append(s.jobs, &cropJob{crop: c})
	}

	diagf("session %s: %d crops, %d markers, frames [%d, %d)",
		s.ID, len(s.jobs), total, opts.Start, opts.End)
	return s, nil
}

// Crops returns the session's crops in declaration order.
func (s *Session) Crops() []*crop.Crop {
	out := make([]*crop.Crop, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.crop
	}
	return out
}

// Run drives the sequence to completion. Each iteration dispatches the
// current frame to the workers, loads the next frame pair while they
// compute, joins, reports the tick, and publishes the next frame. A
// failed load skips that frame: the workers never see it and marker
// state carries over to the next frame that does load.
func (s *Session) Run(ctx context.Context) (Stats, error) {
	handler := NewHandler(s.handlerJobs())
	defer handler.End()

	var stats Stats
	var totalLoad, totalCompute, totalWall time.Duration
	loads := 0

	published := true // NewSession published the first frame
	for index := s.opts.Start; index < s.opts.End; index++ {
		if err := ctx.Err(); err != nil {
			return s.finish(stats, totalLoad, totalCompute, totalWall, loads), err
		}
		tickStart := time.Now()

		dispatched := false
		if published {
			if err := handler.Send(uint64(index)); err != nil {
				return s.finish(stats, totalLoad, totalCompute, totalWall, loads), err
			}
			dispatched = true
		}

		// Load the next frame pair while the workers track the current
		// one.
		var nextFrame *frames.Frame
		var loadErr error
		if index+1 < s.opts.End {
			loadStart := time.Now()
			nextFrame, loadErr = s.opts.Loader.Load(index + 1)
			totalLoad += time.Since(loadStart)
			loads++
		}

		if dispatched {
			if err := handler.Receive(); err != nil {
				return s.finish(stats, totalLoad, totalCompute, totalWall, loads), err
			}
			totalCompute += time.Since(tickStart)
			stats.Ticks++
			s.report(index)
		} else {
			stats.Skipped++
		}

		if index+1 < s.opts.End {
			if loadErr != nil {
				opsf("session %s: load frame %d: %v, skipping", s.ID, index+1, loadErr)
				published = false
			} else if err := s.shared.Publish(nextFrame); err != nil {
				return s.finish(stats, totalLoad, totalCompute, totalWall, loads), err
			} else {
				published = true
			}
		}
		totalWall += time.Since(tickStart)
	}

	stats = s.finish(stats, totalLoad, totalCompute, totalWall, loads)
	diagf("session %s: done, %d ticks, %d skipped, avg %s/tick",
		s.ID, stats.Ticks, stats.Skipped, stats.AvgTotal)
	return stats, nil
}

// report assembles one tick's output and hands it to the sink.
func (s *Session) report(index int) {
	tick := Tick{Index: index, Crops: make([]crop.Result, len(s.jobs))}
	for i, j := range s.jobs {
		tick.Crops[i] = j.res
		tick.Positions = append(tick.Positions, j.crop.Set().GlobalPositions()...)
		tracef("session %s: tick %d crop %s reliability %.2f",
			s.ID, index, j.crop.Name, j.crop.Set().Reliability())
	}
	if s.opts.Converter != nil {
		tick.Metric = s.opts.Converter.ToMeters(tick.Positions, s.shared)
	}
	if s.opts.Sink != nil {
		s.opts.Sink(tick)
	}
}

func (s *Session) handlerJobs() []Job {
	jobs := make([]Job, len(s.jobs))
	for i, j := range s.jobs {
		jobs[i] = j
	}
	return jobs
}

func (s *Session) finish(stats Stats, load, compute, wall time.Duration, loads int) Stats {
	if loads > 0 {
		stats.AvgLoad = load / time.Duration(loads)
	}
	if stats.Ticks > 0 {
		stats.AvgCompute = compute / time.Duration(stats.Ticks)
	}
	if n := stats.Ticks + stats.Skipped; n > 0 {
		stats.AvgTotal = wall / time.Duration(n)
	}
	return stats
}
