package calibration

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
)

// #region model
// Model is an online ridge regression from raw gaze estimates to screen coordinates.
// Statistics are decayed before every sample so the fit follows slow drift.
//
// Update and Reset are serialized by a write lock; all reads share a read lock.
type Model struct {
	mu     sync.RWMutex
	logger *log.Logger

	cfg          Config
	sampleCount  int
	xtx          mat3
	xty          [3][2]float64
	weights      Weights
	errorHistory []float64
}

// NewModel creates an untrained model. Zero-valued config fields take defaults.
func NewModel(cfg Config) *Model {
	m := &Model{cfg: cfg.normalized()}
	m.resetLocked()
	return m
}

// SetLogger replaces the logger used for warnings. nil restores log.Default().
func (m *Model) SetLogger(l *log.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = l
}

func (m *Model) warnf(format string, args ...any) {
	l := m.logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

// #endregion model

// #region reset
// Reset discards all accumulated samples. XtX and XtY go back to zero: the ridge
// term lives only in the solve step.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Model) resetLocked() {
	m.sampleCount = 0
	m.xtx = mat3{}
	m.xty = [3][2]float64{}
	m.weights = IdentityWeights()
	m.errorHistory = make([]float64, 0, m.cfg.HistorySize)
}

// #endregion reset

// #region queries
// IsReady reports whether enough samples were accepted to trust predictions.
func (m *Model) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sampleCount >= m.cfg.MinSamples
}

// SampleCount returns the number of accepted updates since the last reset.
func (m *Model) SampleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sampleCount
}

// Config returns the hyperparameters in effect.
func (m *Model) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Weights returns the current affine correction.
func (m *Model) Weights() Weights {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weights
}

// ErrorEstimate returns the RMS of the recent residuals, or 0 with no history.
func (m *Model) ErrorEstimate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorEstimateLocked()
}

func (m *Model) errorEstimateLocked() float64 {
	return rms(m.errorHistory)
}

func rms(history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	var sumSq float64
	for _, e := range history {
		sumSq += e * e
	}
	return math.Sqrt(sumSq / float64(len(history)))
}

// Snapshot returns a deep copy of the model state.
func (m *Model) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := make([]float64, len(m.errorHistory))
	copy(history, m.errorHistory)
	return State{
		Regularization: m.cfg.Regularization,
		Decay:          m.cfg.Decay,
		MinSamples:     m.cfg.MinSamples,
		HistorySize:    m.cfg.HistorySize,
		SampleCount:    m.sampleCount,
		XtX:            m.xtx,
		XtY:            m.xty,
		Weights:        m.weights,
		ErrorHistory:   history,
	}
}

// #endregion queries

// #region predict
// Predict applies the current weights to raw, whether or not the model is ready.
func (m *Model) Predict(raw Point) Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weights.Apply(raw)
}

// PredictPoint is Predict for optional input; nil yields the origin.
func (m *Model) PredictPoint(raw *Point) Point {
	if raw == nil {
		return Point{}
	}
	return m.Predict(*raw)
}

// Transform corrects raw once the model is ready and passes it through otherwise.
func (m *Model) Transform(raw Point) Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sampleCount < m.cfg.MinSamples {
		return raw
	}
	return m.weights.Apply(raw)
}

// #endregion predict

// #region update
// Update folds one (raw, target) pair into the regression and re-solves the weights.
// Malformed samples are ignored and a singular system keeps the previous weights;
// neither is reported as an error.
func (m *Model) Update(raw, target Point) UpdateResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.apply(raw, target)
	if errors.Is(err, ErrSingularSystem) {
		m.warnf("calibration: %v (det=%.3g), keeping previous weights", err, result.Metrics.Determinant)
	}
	return result
}

// UpdatePoints is Update for optional input; a nil point makes the call a no-op.
func (m *Model) UpdatePoints(raw, target *Point) UpdateResult {
	if raw == nil || target == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.noOpLocked("missing point")
	}
	return m.Update(*raw, *target)
}

func (m *Model) apply(raw, target Point) (UpdateResult, error) {
	if !raw.finite() || !target.finite() {
		return m.noOpLocked("non-finite coordinates"), ErrMalformedSample
	}

	f := [3]float64{raw.X, raw.Y, 1}
	t := [2]float64{target.X, target.Y}

	// 1. Decay and accumulate into copies so an overflow cannot corrupt state.
	xtx := m.xtx
	xty := m.xty
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			xtx[i][j] = xtx[i][j]*m.cfg.Decay + f[i]*f[j]
		}
		for k := 0; k < 2; k++ {
			xty[i][k] = xty[i][k]*m.cfg.Decay + f[i]*t[k]
		}
	}
	if !xtx.finite() || !finite32(xty) {
		return m.noOpLocked("accumulated statistics overflow"), ErrMalformedSample
	}
	m.xtx = xtx
	m.xty = xty

	// 2. Ridge on the solve copy only.
	regularized := xtx
	for i := 0; i < 3; i++ {
		regularized[i][i] += m.cfg.Regularization
	}

	inv, det, ok := invert3(regularized)
	if !ok {
		return m.rejectLocked(det), ErrSingularSystem
	}
	weights := solve(inv, xty)
	if !weights.finite() {
		return m.rejectLocked(det), ErrSingularSystem
	}

	// 3. Commit weights and record the residual at the same raw input.
	m.weights = weights
	m.sampleCount++

	prediction := m.weights.Apply(raw)
	residual := math.Hypot(prediction.X-target.X, prediction.Y-target.Y)
	m.pushError(residual)

	return UpdateResult{
		Decision: Decision{
			Action: "commit",
			Reason: fmt.Sprintf("sample %d accepted, residual %.2fpx", m.sampleCount, residual),
		},
		Metrics: Metrics{
			Determinant:   det,
			Residual:      residual,
			SampleCount:   m.sampleCount,
			ErrorEstimate: m.errorEstimateLocked(),
		},
	}, nil
}

func (m *Model) pushError(v float64) {
	if !isFinite(v) {
		return
	}
	m.errorHistory = append(m.errorHistory, v)
	if over := len(m.errorHistory) - m.cfg.HistorySize; over > 0 {
		m.errorHistory = append(m.errorHistory[:0], m.errorHistory[over:]...)
	}
}

func (m *Model) noOpLocked(reason string) UpdateResult {
	return UpdateResult{
		Decision: Decision{Action: "no_op", Reason: reason},
		Metrics: Metrics{
			SampleCount:   m.sampleCount,
			ErrorEstimate: m.errorEstimateLocked(),
		},
	}
}

func (m *Model) rejectLocked(det float64) UpdateResult {
	return UpdateResult{
		Decision: Decision{
			Action: "reject",
			Reason: fmt.Sprintf("singular system: |det| %.3g below %.0e", math.Abs(det), singularEpsilon),
		},
		Metrics: Metrics{
			Determinant:   det,
			SampleCount:   m.sampleCount,
			ErrorEstimate: m.errorEstimateLocked(),
		},
	}
}

// #endregion update
