package gate

import "github.com/terravision/gaze-calibration/internal/calibration"

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoLowConfidence   VetoType = "low_confidence"
	VetoNonFinite       VetoType = "non_finite"
	VetoTargetOffscreen VetoType = "target_offscreen"
	VetoOutlier         VetoType = "outlier"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region sample
// Sample is one raw/target pair offered for calibration.
type Sample struct {
	Raw        calibration.Point
	Target     calibration.Point
	Confidence float64
}

// Predictor is the slice of the calibration model the gate reads.
type Predictor interface {
	IsReady() bool
	Predict(raw calibration.Point) calibration.Point
}

// #endregion sample

// #region gate-config
// GateConfig holds thresholds for sample admission.
type GateConfig struct {
	MinConfidence float64 // estimator confidence below this is dropped
	ScreenWidth   float64 // targets must lie inside [0,width]x[0,height]
	ScreenHeight  float64
	MaxResidual   float64 // px; 0 disables the outlier check
}

// DefaultGateConfig returns the defaults used by the calibration UI.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinConfidence: 0.45,
		ScreenWidth:   1920,
		ScreenHeight:  1080,
		MaxResidual:   0,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
	Residual    float64      // distance between current prediction and target, for logging
}

// #endregion gate-decision
