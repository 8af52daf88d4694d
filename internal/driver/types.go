package driver

import (
	"context"
	"errors"
	"time"

	"github.com/terravision/gaze-calibration/internal/calibration"
	"github.com/terravision/gaze-calibration/internal/eval"
	"github.com/terravision/gaze-calibration/internal/gate"
)

// ErrNoSamples is returned when a target collected no usable gaze.
var ErrNoSamples = errors.New("no gaze samples collected")

// #region sources
// GazeSample is one raw screen-space gaze estimate.
type GazeSample struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Point returns the sample position.
func (g GazeSample) Point() calibration.Point {
	return calibration.Point{X: g.X, Y: g.Y}
}

// GazeSource delivers raw gaze samples to subscribers until they unsubscribe.
// Callbacks must not block.
type GazeSource interface {
	Subscribe(fn func(GazeSample)) (unsubscribe func())
}

// TargetPresenter shows calibration targets to the user.
type TargetPresenter interface {
	// Present shows target and blocks until the user confirms it.
	Present(ctx context.Context, index, total int, target calibration.Point) error
	// Announce shows or speaks a status message.
	Announce(msg string)
}

// #endregion sources

// #region options
// Options tunes how gaze is gathered for each target.
type Options struct {
	SampleWindow    time.Duration // max time spent collecting one target
	SamplesPerPoint int           // stop early once this many samples arrive
	MaxAttempts     int           // presentations of a silent target before skipping it
}

// DefaultOptions returns the collection settings used by the calibration UI.
func DefaultOptions() Options {
	return Options{
		SampleWindow:    1200 * time.Millisecond,
		SamplesPerPoint: 12,
		MaxAttempts:     3,
	}
}

// DefaultTargets returns the 3x3 grid at 15%, 50% and 85% of the stage,
// row by row from the top left.
func DefaultTargets(width, height float64) []calibration.Point {
	fractions := []float64{0.15, 0.5, 0.85}
	targets := make([]calibration.Point, 0, 9)
	for _, fy := range fractions {
		for _, fx := range fractions {
			targets = append(targets, calibration.Point{X: width * fx, Y: height * fy})
		}
	}
	return targets
}

// #endregion options

// #region results
// SampleOutcome reports what happened to one offered sample.
type SampleOutcome struct {
	Gate      gate.GateDecision
	Update    *calibration.UpdateResult // nil when the gate rejected the sample
	VersionID string                    // set when the model was persisted
}

// Committed reports whether the model absorbed the sample.
func (o SampleOutcome) Committed() bool {
	return o.Update != nil && o.Update.Committed()
}

// Status summarizes the live model.
type Status struct {
	StorageKey    string              `json:"storage_key"`
	Ready         bool                `json:"ready"`
	SampleCount   int                 `json:"sample_count"`
	ErrorEstimate float64             `json:"error_estimate"`
	Warning       bool                `json:"warning"`
	Weights       calibration.Weights `json:"weights"`
}

// PassResult is the outcome of one guided calibration pass.
type PassResult struct {
	Points   []eval.PointResult
	Outcomes []SampleOutcome
	Skipped  int
	Eval     eval.EvalResult
}

// #endregion results
