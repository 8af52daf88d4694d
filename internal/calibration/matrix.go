package calibration

import "math"

// singularEpsilon is the smallest |det| accepted when inverting the normal equations.
const singularEpsilon = 1e-9

type mat3 [3][3]float64

// invert3 inverts m with the closed-form adjugate. ok is false when |det| < singularEpsilon
// or the determinant is not finite.
func invert3(m mat3) (inv mat3, det float64, ok bool) {
	a, b, c := m[0], m[1], m[2]
	det = a[0]*(b[1]*c[2]-b[2]*c[1]) -
		a[1]*(b[0]*c[2]-b[2]*c[0]) +
		a[2]*(b[0]*c[1]-b[1]*c[0])

	if !isFinite(det) || math.Abs(det) < singularEpsilon {
		return mat3{}, det, false
	}

	invDet := 1 / det
	inv = mat3{
		{
			(b[1]*c[2] - b[2]*c[1]) * invDet,
			(a[2]*c[1] - a[1]*c[2]) * invDet,
			(a[1]*b[2] - a[2]*b[1]) * invDet,
		},
		{
			(b[2]*c[0] - b[0]*c[2]) * invDet,
			(a[0]*c[2] - a[2]*c[0]) * invDet,
			(a[2]*b[0] - a[0]*b[2]) * invDet,
		},
		{
			(b[0]*c[1] - b[1]*c[0]) * invDet,
			(a[1]*c[0] - a[0]*c[1]) * invDet,
			(a[0]*b[1] - a[1]*b[0]) * invDet,
		},
	}
	return inv, det, true
}

// solve returns inv · xty.
func solve(inv mat3, xty [3][2]float64) Weights {
	var w Weights
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			if inv[i][k] == 0 {
				continue
			}
			for j := 0; j < 2; j++ {
				w[i][j] += inv[i][k] * xty[k][j]
			}
		}
	}
	return w
}

func (m mat3) finite() bool {
	for i := range m {
		for j := range m[i] {
			if !isFinite(m[i][j]) {
				return false
			}
		}
	}
	return true
}

func finite32(m [3][2]float64) bool {
	return Weights(m).finite()
}
