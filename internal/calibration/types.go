package calibration

import (
	"errors"
	"math"
)

// #region errors
var (
	// ErrMalformedSample reports a sample with missing or non-finite coordinates.
	ErrMalformedSample = errors.New("malformed calibration sample")
	// ErrSingularSystem reports a normal-equations matrix too close to singular to invert.
	ErrSingularSystem = errors.New("singular calibration system")
)

// #endregion errors

// #region point
// Point is a screen-space coordinate, in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) finite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// #endregion point

// #region weights
// Weights is the affine correction mapping [rawX, rawY, 1] to [correctedX, correctedY].
// Row i holds the coefficients of feature i for both outputs.
type Weights [3][2]float64

// IdentityWeights predicts corrected == raw.
func IdentityWeights() Weights {
	return Weights{
		{1, 0},
		{0, 1},
		{0, 0},
	}
}

// Apply maps a raw point through the affine correction.
func (w Weights) Apply(p Point) Point {
	f := [3]float64{p.X, p.Y, 1}
	var out [2]float64
	for k := 0; k < 2; k++ {
		for i := 0; i < 3; i++ {
			out[k] += w[i][k] * f[i]
		}
	}
	return Point{X: out[0], Y: out[1]}
}

func (w Weights) finite() bool {
	for i := range w {
		for k := range w[i] {
			if !isFinite(w[i][k]) {
				return false
			}
		}
	}
	return true
}

// #endregion weights

// #region config
// Config holds the hyperparameters of a calibration model.
// Zero-valued fields take the DefaultConfig value.
type Config struct {
	Regularization float64 // ridge term added to the diagonal at solve time (default 1e-3)
	Decay          float64 // per-update forgetting factor in (0,1] (default 0.995)
	MinSamples     int     // accepted updates before the model is ready (default 6)
	HistorySize    int     // residuals kept for the RMS error estimate (default 25)
}

// DefaultConfig returns the stock calibration hyperparameters.
func DefaultConfig() Config {
	return Config{
		Regularization: 1e-3,
		Decay:          0.995,
		MinSamples:     6,
		HistorySize:    25,
	}
}

// normalized replaces unset or out-of-range fields with defaults.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if !(c.Regularization > 0) || math.IsInf(c.Regularization, 0) {
		c.Regularization = def.Regularization
	}
	if !(c.Decay > 0 && c.Decay <= 1) {
		c.Decay = def.Decay
	}
	if c.MinSamples <= 0 {
		c.MinSamples = def.MinSamples
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	return c
}

// #endregion config

// #region decision
// Decision records what an update did with its sample.
type Decision struct {
	Action string // "commit" | "reject" | "no_op"
	Reason string
}

// Metrics captures telemetry from a single update.
type Metrics struct {
	Determinant   float64 // determinant of the regularized system (0 when not solved)
	Residual      float64 // distance between the new prediction and the target
	SampleCount   int
	ErrorEstimate float64
}

// UpdateResult bundles everything returned by Update.
type UpdateResult struct {
	Decision Decision
	Metrics  Metrics
}

// Committed reports whether the update changed the weights.
func (r UpdateResult) Committed() bool {
	return r.Decision.Action == "commit"
}

// #endregion decision

// #region state
// State is a deep copy of every field of a model, as persisted.
type State struct {
	Regularization float64
	Decay          float64
	MinSamples     int
	HistorySize    int
	SampleCount    int
	XtX            [3][3]float64
	XtY            [3][2]float64
	Weights        Weights
	ErrorHistory   []float64
}

// ErrorEstimate is the RMS of the snapshot's error history.
func (s State) ErrorEstimate() float64 {
	return rms(s.ErrorHistory)
}

// #endregion state
