package eval

import "github.com/terravision/gaze-calibration/internal/calibration"

// #region eval-config
// EvalConfig holds thresholds for validating a finished calibration pass.
type EvalConfig struct {
	WarnThreshold  float64 // px; rms error above this marks the pass as not clean
	PointThreshold float64 // px; a point counts as accurate below this residual
	MinAccuracy    float64 // percent of accurate points required
	MinPoints      int     // points with samples required
}

// DefaultEvalConfig returns the thresholds used by the calibration UI.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		WarnThreshold:  65,
		PointThreshold: 50,
		MinAccuracy:    60,
		MinPoints:      7,
	}
}

// #endregion eval-config

// #region inputs
// PointResult is the averaged raw gaze gathered for one calibration target.
type PointResult struct {
	Target  calibration.Point
	Gaze    calibration.Point // averaged raw gaze, before correction
	Samples int               // gaze samples averaged; 0 means the point was skipped
}

// Model is the part of the calibration model the harness reads.
type Model interface {
	IsReady() bool
	Transform(raw calibration.Point) calibration.Point
	ErrorEstimate() float64
}

// #endregion inputs

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of pass validation.
type EvalResult struct {
	Passed      bool
	Clean       bool // rms error under WarnThreshold
	Accuracy    float64
	RMSError    float64
	Points      int
	PointErrors []float64 // corrected residual per measured point, in input order
	Metrics     []EvalMetric
	Reason      string
}

// #endregion eval-result
