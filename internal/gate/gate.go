package gate

import (
	"fmt"
	"math"
)

// #region gate
// Gate decides whether a sample may reach the calibration model.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Config returns the thresholds the gate was built with.
func (g *Gate) Config() GateConfig {
	return g.config
}

// Evaluate runs every hard veto against the sample. A nil model skips the
// outlier check.
func (g *Gate) Evaluate(model Predictor, s Sample) GateDecision {
	var vetoes []VetoSignal

	// 1. Estimator confidence
	if !(s.Confidence >= g.config.MinConfidence) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoLowConfidence,
			Reason: fmt.Sprintf("confidence %.2f below %.2f", s.Confidence, g.config.MinConfidence),
		})
	}

	// 2. Coordinates must be real numbers
	finite := isFinite(s.Raw.X) && isFinite(s.Raw.Y) && isFinite(s.Target.X) && isFinite(s.Target.Y)
	if !finite {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNonFinite,
			Reason: "sample contains non-finite coordinates",
		})
	}

	// 3. Target has to be somewhere the user could look
	if finite && g.config.ScreenWidth > 0 && g.config.ScreenHeight > 0 {
		t := s.Target
		if t.X < 0 || t.Y < 0 || t.X > g.config.ScreenWidth || t.Y > g.config.ScreenHeight {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoTargetOffscreen,
				Reason: fmt.Sprintf("target (%.0f,%.0f) outside %.0fx%.0f stage", t.X, t.Y, g.config.ScreenWidth, g.config.ScreenHeight),
			})
		}
	}

	// 4. Residual against the current fit, only once the fit means something
	var residual float64
	if finite && model != nil && model.IsReady() {
		p := model.Predict(s.Raw)
		residual = math.Hypot(p.X-s.Target.X, p.Y-s.Target.Y)
		if g.config.MaxResidual > 0 && residual > g.config.MaxResidual {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoOutlier,
				Reason: fmt.Sprintf("residual %.1fpx exceeds %.1fpx", residual, g.config.MaxResidual),
			})
		}
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			Residual:    residual,
		}
	}

	return GateDecision{
		Action:   "commit",
		Reason:   fmt.Sprintf("passed gate: residual=%.2fpx", residual),
		Residual: residual,
	}
}

// #endregion gate

// #region helpers
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// #endregion helpers
