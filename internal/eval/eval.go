package eval

import (
	"fmt"
	"math"
)

// #region eval-harness
// EvalHarness validates a calibration pass after the model has been fitted.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run scores the corrected gaze of every measured point against its target.
// The rms check is informational; it sets Clean but never fails the pass.
func (h *EvalHarness) Run(model Model, points []PointResult) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	var errs []float64
	accurate := 0
	for _, p := range points {
		if p.Samples <= 0 {
			continue
		}
		corrected := model.Transform(p.Gaze)
		d := math.Hypot(corrected.X-p.Target.X, corrected.Y-p.Target.Y)
		errs = append(errs, d)
		if d < h.config.PointThreshold {
			accurate++
		}
	}

	// 1. Enough measured points
	count := len(errs)
	countPass := count >= h.config.MinPoints
	metrics = append(metrics, EvalMetric{Name: "point_count", Value: float64(count), Pass: countPass})
	if !countPass {
		failReasons = append(failReasons, fmt.Sprintf("%d points measured, need %d", count, h.config.MinPoints))
	}

	// 2. Share of accurate points
	var accuracy float64
	if count > 0 {
		accuracy = 100 * float64(accurate) / float64(count)
	}
	accuracyPass := accuracy >= h.config.MinAccuracy
	metrics = append(metrics, EvalMetric{Name: "accuracy", Value: accuracy, Pass: accuracyPass})
	if !accuracyPass {
		failReasons = append(failReasons, fmt.Sprintf("accuracy %.0f%% below %.0f%%", accuracy, h.config.MinAccuracy))
	}

	// 3. Model must have enough samples to correct anything
	ready := model.IsReady()
	metrics = append(metrics, EvalMetric{Name: "model_ready", Value: boolValue(ready), Pass: ready})
	if !ready {
		failReasons = append(failReasons, "model not ready")
	}

	// 4. Running error estimate, informational only
	rms := model.ErrorEstimate()
	clean := rms < h.config.WarnThreshold
	metrics = append(metrics, EvalMetric{Name: "rms_error", Value: rms, Pass: clean})

	passed := len(failReasons) == 0
	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	} else if !clean {
		reason = fmt.Sprintf("passed with warning: rms error %.1fpx above %.0fpx", rms, h.config.WarnThreshold)
	}

	return EvalResult{
		Passed:      passed,
		Clean:       clean,
		Accuracy:    accuracy,
		RMSError:    rms,
		Points:      count,
		PointErrors: errs,
		Metrics:     metrics,
		Reason:      reason,
	}
}

// #endregion eval-harness

// #region helpers
func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
