package smile

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/meenmo/volsurf/volerr"
)

const (
	degenerateCoefficient = 1e-14
	imaginaryTolerance    = 1e-10
)

// CalibrateSABRATM returns the alpha for which the ATM Hagan volatility
// equals atmVol, given beta, rho, nu and expiry. Multiplying the ATM
// expansion by F^(1-β) gives a cubic in alpha; the smallest positive real
// root is returned.
func CalibrateSABRATM(atmVol, forward, t, beta, rho, nu float64) (float64, error) {
	if !(atmVol > 0) || !(forward > 0) || !(t >= 0) {
		return 0, volerr.Construction("CalibrateSABRATM: need atmVol>0, forward>0, t>=0; got %v, %v, %v", atmVol, forward, t)
	}
	if _, err := NewSABRFormulaData(0, beta, rho, nu); err != nil {
		return 0, err
	}

	beta1 := 1 - beta
	f1 := math.Pow(forward, beta1)
	a3 := t * beta1 * beta1 / (24 * f1 * f1)
	a2 := t * rho * beta * nu / (4 * f1)
	a1 := 1 + t*nu*nu*(2-3*rho*rho)/24
	a0 := -atmVol * f1

	var roots []float64
	switch {
	case math.Abs(a3) > degenerateCoefficient*math.Abs(a1):
		var err error
		if roots, err = cubicRoots(a3, a2, a1, a0); err != nil {
			return 0, err
		}
	case math.Abs(a2) > degenerateCoefficient*math.Abs(a1):
		roots = quadraticRoots(a2, a1, a0)
	case a1 != 0:
		roots = []float64{-a0 / a1}
	}

	alpha := math.Inf(1)
	for _, r := range roots {
		if r > 0 && r < alpha {
			alpha = r
		}
	}
	if math.IsInf(alpha, 1) {
		return 0, volerr.Domain("CalibrateSABRATM: no positive real alpha for atmVol=%v forward=%v t=%v beta=%v rho=%v nu=%v",
			atmVol, forward, t, beta, rho, nu)
	}
	return alpha, nil
}

// cubicRoots returns the real roots of a3x³+a2x²+a1x+a0 from the
// eigenvalues of its companion matrix.
func cubicRoots(a3, a2, a1, a0 float64) ([]float64, error) {
	companion := mat.NewDense(3, 3, []float64{
		-a2 / a3, -a1 / a3, -a0 / a3,
		1, 0, 0,
		0, 1, 0,
	})
	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return nil, volerr.Numeric("CalibrateSABRATM: eigen decomposition of companion matrix failed")
	}
	var roots []float64
	for _, v := range eig.Values(nil) {
		if math.Abs(imag(v)) <= imaginaryTolerance*math.Max(1, cmplx.Abs(v)) {
			roots = append(roots, real(v))
		}
	}
	return roots, nil
}

func quadraticRoots(a, b, c float64) []float64 {
	disc := b*b - 4*a*c
	if disc < 0 {
		return nil
	}
	q := -0.5 * (b + math.Copysign(math.Sqrt(disc), b))
	roots := []float64{q / a}
	if q != 0 {
		roots = append(roots, c/q)
	}
	return roots
}
