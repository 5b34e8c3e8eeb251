// Package pipeline provides orchestration for the marker tracking run.
//
// It owns the worker pool that executes per-crop tracking jobs, the
// shared frame and marker memory those workers read and write, and the
// supervisor loop that overlaps loading the next frame pair with
// tracking the current one. The pipeline does not own tracking logic;
// it delegates to the crop and track packages.
package pipeline
