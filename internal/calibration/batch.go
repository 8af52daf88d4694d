package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sample is one calibration observation: where the estimator said the user looked,
// and where the target actually was.
type Sample struct {
	Raw    Point `json:"raw"`
	Target Point `json:"target"`
}

// FitBatch solves the ridge normal equations (XᵀX + λI) W = XᵀY over all finite samples
// at once, without decay. An online model with Decay 1 and the same regularization
// converges to the same weights.
func FitBatch(samples []Sample, regularization float64) (Weights, error) {
	rows := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Raw.finite() && s.Target.finite() {
			rows = append(rows, s)
		}
	}
	if len(rows) == 0 {
		return IdentityWeights(), fmt.Errorf("fit batch: %w: no finite samples", ErrMalformedSample)
	}

	x := mat.NewDense(len(rows), 3, nil)
	y := mat.NewDense(len(rows), 2, nil)
	for i, s := range rows {
		x.SetRow(i, []float64{s.Raw.X, s.Raw.Y, 1})
		y.SetRow(i, []float64{s.Target.X, s.Target.Y})
	}

	var a mat.Dense
	a.Mul(x.T(), x)
	for i := 0; i < 3; i++ {
		a.Set(i, i, a.At(i, i)+regularization)
	}
	if d := mat.Det(&a); !isFinite(d) || math.Abs(d) < singularEpsilon {
		return IdentityWeights(), fmt.Errorf("fit batch: %w (det=%.3g)", ErrSingularSystem, d)
	}

	var b mat.Dense
	b.Mul(x.T(), y)

	var w mat.Dense
	if err := w.Solve(&a, &b); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return IdentityWeights(), fmt.Errorf("fit batch: %w: %v", ErrSingularSystem, err)
		}
		return IdentityWeights(), fmt.Errorf("fit batch: %w", err)
	}

	var out Weights
	for i := 0; i < 3; i++ {
		for k := 0; k < 2; k++ {
			out[i][k] = w.At(i, k)
		}
	}
	return out, nil
}
