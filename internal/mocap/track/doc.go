// Package track owns the per-marker tracking and fusion engine.
//
// Responsibilities: candidate generation from the enabled estimators
// (nearest-blob, optical-flow-corrected, Kalman-prediction-corrected),
// candidate merging, inter-marker overlap resolution, bounds clamping,
// and Kalman correction of the marker filters.
// Key types: Position, Tracker.
//
// Dependency rule: track may depend on markers and flow, but never on
// crop or pipeline. No image I/O or blob detection is allowed in this
// package; blobs arrive pre-detected and are passed through
// uninterpreted.
package track
