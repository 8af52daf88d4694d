package calibration

import (
	"math"
	"reflect"
	"sync"
	"testing"
)

// #region helpers
// grid returns a 3x3 grid of raw points spread over a 1920x1080 screen.
func grid() []Point {
	var pts []Point
	for _, fy := range []float64{0.15, 0.5, 0.85} {
		for _, fx := range []float64{0.15, 0.5, 0.85} {
			pts = append(pts, Point{X: fx * 1920, Y: fy * 1080})
		}
	}
	return pts
}

// affine is a known raw -> target mapping used to generate noise-free samples.
func affine(p Point) Point {
	return Point{
		X: 1.1*p.X + 0.05*p.Y + 20,
		Y: -0.03*p.X + 0.95*p.Y - 15,
	}
}

func shifted(dx, dy float64) func(Point) Point {
	return func(p Point) Point { return Point{X: p.X + dx, Y: p.Y + dy} }
}

func train(m *Model, passes int, fn func(Point) Point) {
	for n := 0; n < passes; n++ {
		for _, p := range grid() {
			m.Update(p, fn(p))
		}
	}
}

func near(a, b Point, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol
}

func finitePoint(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// #endregion helpers

// #region construction-tests
func TestNewModel_Defaults(t *testing.T) {
	m := NewModel(Config{})
	cfg := m.Config()
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults %+v, got %+v", DefaultConfig(), cfg)
	}
	if m.IsReady() {
		t.Fatal("fresh model should not be ready")
	}
	if m.ErrorEstimate() != 0 {
		t.Fatalf("expected zero error estimate, got %f", m.ErrorEstimate())
	}
	if m.Weights() != IdentityWeights() {
		t.Fatalf("expected identity weights, got %v", m.Weights())
	}
}

func TestNewModel_OutOfRangeDecayFallsBack(t *testing.T) {
	m := NewModel(Config{Decay: 1.5, Regularization: -1})
	cfg := m.Config()
	if cfg.Decay != 0.995 {
		t.Errorf("expected default decay, got %f", cfg.Decay)
	}
	if cfg.Regularization != 1e-3 {
		t.Errorf("expected default regularization, got %g", cfg.Regularization)
	}
}

func TestPredict_IdentityBeforeTraining(t *testing.T) {
	m := NewModel(DefaultConfig())
	for _, p := range []Point{{0, 0}, {123.5, -7}, {1919, 1079}, {-4000.25, 1e6}} {
		got := m.Predict(p)
		if got != p {
			t.Fatalf("expected identity for %v, got %v", p, got)
		}
	}
}

func TestPredictPoint_Nil(t *testing.T) {
	m := NewModel(DefaultConfig())
	if got := m.PredictPoint(nil); got != (Point{}) {
		t.Fatalf("expected origin for nil input, got %v", got)
	}
	p := Point{X: 3, Y: 4}
	if got := m.PredictPoint(&p); got != p {
		t.Fatalf("expected %v, got %v", p, got)
	}
}

// #endregion construction-tests

// #region update-tests
func TestUpdate_ReadinessThreshold(t *testing.T) {
	m := NewModel(DefaultConfig())
	pts := grid()

	for i := 0; i < 5; i++ {
		r := m.Update(pts[i], affine(pts[i]))
		if !r.Committed() {
			t.Fatalf("update %d: expected commit, got %s: %s", i, r.Decision.Action, r.Decision.Reason)
		}
	}
	if m.IsReady() {
		t.Fatal("should not be ready after 5 samples")
	}
	if m.SampleCount() != 5 {
		t.Fatalf("expected 5 samples, got %d", m.SampleCount())
	}

	m.Update(pts[5], affine(pts[5]))
	if !m.IsReady() {
		t.Fatal("should be ready after 6 samples")
	}
}

func TestUpdate_ConvergesToAffineMap(t *testing.T) {
	m := NewModel(Config{Regularization: 1e-6, Decay: 1})
	train(m, 20, affine)

	heldOut := []Point{{300, 300}, {1000, 700}, {1500, 200}, {960, 540}}
	for _, p := range heldOut {
		got := m.Predict(p)
		want := affine(p)
		if !near(got, want, 0.01) {
			t.Fatalf("held-out %v: expected %v, got %v", p, want, got)
		}
	}
	if e := m.ErrorEstimate(); e > 0.01 {
		t.Fatalf("expected error estimate near 0, got %f", e)
	}
}

func TestUpdate_ErrorEstimateTrendsDown(t *testing.T) {
	m := NewModel(Config{Regularization: 1e-6, Decay: 1, HistorySize: 9})
	noisy := func(p Point) Point {
		q := affine(p)
		// deterministic jitter that averages out over the grid
		q.X += 6 * math.Sin(p.X)
		q.Y += 6 * math.Cos(p.Y)
		return q
	}
	train(m, 1, noisy)
	early := m.ErrorEstimate()
	train(m, 30, affine)
	late := m.ErrorEstimate()
	if !(late < early) {
		t.Fatalf("expected error estimate to drop, early=%f late=%f", early, late)
	}
}

func TestUpdate_MatchesBatchFit(t *testing.T) {
	const reg = 1e-3
	m := NewModel(Config{Regularization: reg, Decay: 1})

	var samples []Sample
	for n := 0; n < 4; n++ {
		for _, p := range grid() {
			target := affine(p)
			target.X += float64(n) // small pass-to-pass disagreement
			samples = append(samples, Sample{Raw: p, Target: target})
			m.Update(p, target)
		}
	}

	batch, err := FitBatch(samples, reg)
	if err != nil {
		t.Fatalf("FitBatch: %v", err)
	}
	for _, p := range grid() {
		online := m.Predict(p)
		offline := batch.Apply(p)
		if !near(online, offline, 1e-4) {
			t.Fatalf("online %v differs from batch %v at %v", online, offline, p)
		}
	}
}

func TestUpdate_DecayForgetsOldSamples(t *testing.T) {
	a := shifted(50, 50)
	b := shifted(-50, -50)

	forgetting := NewModel(Config{Decay: 0.9})
	train(forgetting, 10, a)
	train(forgetting, 30, b)

	remembering := NewModel(Config{Decay: 1})
	train(remembering, 10, a)
	train(remembering, 30, b)

	probe := Point{X: 800, Y: 400}
	want := b(probe)

	if got := forgetting.Predict(probe); !near(got, want, 0.5) {
		t.Fatalf("decaying model should follow the newer map: want %v, got %v", want, got)
	}
	if got := remembering.Predict(probe); near(got, want, 10) {
		t.Fatalf("non-decaying model should still average in the old map, got %v", got)
	}
}

func TestUpdate_MalformedInputIsNoOp(t *testing.T) {
	m := NewModel(DefaultConfig())
	train(m, 1, affine)
	before := m.Snapshot()

	cases := []struct {
		name   string
		raw    Point
		target Point
	}{
		{"nan raw x", Point{X: math.NaN(), Y: 10}, Point{X: 1, Y: 1}},
		{"inf raw y", Point{X: 10, Y: math.Inf(1)}, Point{X: 1, Y: 1}},
		{"nan target", Point{X: 10, Y: 10}, Point{X: 1, Y: math.NaN()}},
		{"overflow", Point{X: 1e200, Y: 1e200}, Point{X: 1, Y: 1}},
	}
	for _, c := range cases {
		r := m.Update(c.raw, c.target)
		if r.Decision.Action != "no_op" {
			t.Errorf("%s: expected no_op, got %s", c.name, r.Decision.Action)
		}
		if after := m.Snapshot(); !reflect.DeepEqual(before, after) {
			t.Fatalf("%s: state changed", c.name)
		}
	}

	valid := Point{X: 10, Y: 10}
	if r := m.UpdatePoints(&valid, nil); r.Decision.Action != "no_op" {
		t.Errorf("nil target: expected no_op, got %s", r.Decision.Action)
	}
	if r := m.UpdatePoints(nil, &valid); r.Decision.Action != "no_op" {
		t.Errorf("nil raw: expected no_op, got %s", r.Decision.Action)
	}
	if after := m.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatal("nil points changed state")
	}
}

// A singular solve keeps the weights and does not advance sampleCount or the
// error history, while XtX/XtY still absorb the sample.
func TestUpdate_SingularSystemKeepsWeights(t *testing.T) {
	m := NewModel(Config{Regularization: 1e-12})

	r := m.Update(Point{X: 0, Y: 0}, Point{X: 3, Y: 4})
	if r.Decision.Action != "reject" {
		t.Fatalf("expected reject, got %s: %s", r.Decision.Action, r.Decision.Reason)
	}
	s := m.Snapshot()
	if s.SampleCount != 0 {
		t.Fatalf("expected sampleCount 0, got %d", s.SampleCount)
	}
	if len(s.ErrorHistory) != 0 {
		t.Fatalf("expected empty error history, got %v", s.ErrorHistory)
	}
	if s.Weights != IdentityWeights() {
		t.Fatalf("expected identity weights retained, got %v", s.Weights)
	}
	if s.XtX[2][2] != 1 {
		t.Fatalf("expected XtX to track the sample, got %v", s.XtX)
	}
	if s.XtY[2][0] != 3 || s.XtY[2][1] != 4 {
		t.Fatalf("expected XtY to track the sample, got %v", s.XtY)
	}
}

func TestUpdate_RepeatedPointStaysFinite(t *testing.T) {
	m := NewModel(DefaultConfig())
	for i := 0; i < 50; i++ {
		m.Update(Point{X: 5, Y: 5}, Point{X: 10, Y: 10})
	}
	for _, p := range []Point{{5, 5}, {0, 0}, {1920, 1080}, {-300, 50}} {
		if got := m.Predict(p); !finitePoint(got) {
			t.Fatalf("prediction at %v not finite: %v", p, got)
		}
	}
	if e := m.ErrorEstimate(); math.IsNaN(e) || math.IsInf(e, 0) {
		t.Fatalf("error estimate not finite: %f", e)
	}
}

func TestUpdate_ErrorHistoryBounded(t *testing.T) {
	m := NewModel(Config{HistorySize: 3})
	train(m, 2, affine)
	if n := len(m.Snapshot().ErrorHistory); n != 3 {
		t.Fatalf("expected 3 residuals, got %d", n)
	}
}

func TestUpdate_MetricsReported(t *testing.T) {
	m := NewModel(DefaultConfig())
	r := m.Update(Point{X: 100, Y: 200}, Point{X: 110, Y: 190})
	if r.Metrics.SampleCount != 1 {
		t.Errorf("expected sample count 1, got %d", r.Metrics.SampleCount)
	}
	if r.Metrics.Determinant == 0 {
		t.Error("expected non-zero determinant")
	}
	if math.Abs(r.Metrics.ErrorEstimate-r.Metrics.Residual) > 1e-12 {
		t.Errorf("single residual RMS should equal the residual: %f vs %f", r.Metrics.ErrorEstimate, r.Metrics.Residual)
	}
}

// #endregion update-tests

// #region reset-transform-tests
func TestReset_Idempotent(t *testing.T) {
	m := NewModel(DefaultConfig())
	train(m, 2, affine)

	m.Reset()
	once := m.Snapshot()
	m.Reset()
	twice := m.Snapshot()

	if !reflect.DeepEqual(once, twice) {
		t.Fatal("second reset changed state")
	}
	if !reflect.DeepEqual(once, NewModel(DefaultConfig()).Snapshot()) {
		t.Fatal("reset state differs from a fresh model")
	}
	if m.IsReady() {
		t.Fatal("should not be ready after reset")
	}
	p := Point{X: 42, Y: 24}
	if got := m.Predict(p); got != p {
		t.Fatalf("expected identity after reset, got %v", got)
	}
}

func TestTransform_PassThroughUntilReady(t *testing.T) {
	m := NewModel(DefaultConfig())
	probe := Point{X: 500, Y: 500}

	m.Update(grid()[0], shifted(30, 0)(grid()[0]))
	if got := m.Transform(probe); got != probe {
		t.Fatalf("untrained transform should pass through, got %v", got)
	}

	train(m, 1, shifted(30, 0))
	if !m.IsReady() {
		t.Fatal("expected ready")
	}
	if got, want := m.Transform(probe), m.Predict(probe); got != want {
		t.Fatalf("ready transform should predict: want %v, got %v", want, got)
	}
}

// #endregion reset-transform-tests

// #region concurrency-tests
func TestModel_ConcurrentAccess(t *testing.T) {
	m := NewModel(DefaultConfig())
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			train(m, 5, affine)
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if p := m.Transform(Point{X: 10, Y: 20}); !finitePoint(p) {
					t.Errorf("non-finite transform %v", p)
					return
				}
				m.ErrorEstimate()
			}
		}()
	}
	wg.Wait()
	if m.SampleCount() != 4*5*9 {
		t.Fatalf("expected %d samples, got %d", 4*5*9, m.SampleCount())
	}
}

// #endregion concurrency-tests
