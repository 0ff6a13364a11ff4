package rootfind

import (
	"math"

	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/volerr"
)

const machineEpsilon = 2.220446049250313e-16

// Brent is the van Wijngaarden-Dekker-Brent method: inverse quadratic
// interpolation safeguarded by bisection.
type Brent struct {
	Tolerance     float64
	MaxIterations int
}

// NewBrent reads tolerance and iteration cap from cfg.
func NewBrent(cfg config.Config) Brent {
	return Brent{Tolerance: cfg.RootTolerance, MaxIterations: cfg.MaxRootIterations}
}

func (br Brent) Root(f Func, lower, upper float64) (float64, error) {
	fa, fb, err := checkBracket(f, lower, upper)
	if err != nil {
		return 0, err
	}
	a, b := lower, upper
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}

	c, fc := b, fb
	d := b - a
	e := d
	for iter := 0; iter < br.MaxIterations; iter++ {
		if (fb > 0 && fc > 0) || (fb < 0 && fc < 0) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tol1 := 2*machineEpsilon*math.Abs(b) + 0.5*br.Tolerance
		xm := 0.5 * (c - b)
		if math.Abs(xm) <= tol1 || fb == 0 {
			return b, nil
		}

		if math.Abs(e) >= tol1 && math.Abs(fa) > math.Abs(fb) {
			var p, q float64
			s := fb / fa
			if a == c {
				p = 2 * xm * s
				q = 1 - s
			} else {
				q = fa / fc
				r := fb / fc
				p = s * (2*xm*q*(q-r) - (b-a)*(r-1))
				q = (q - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			}
			p = math.Abs(p)
			if 2*p < math.Min(3*xm*q-math.Abs(tol1*q), math.Abs(e*q)) {
				e = d
				d = p / q
			} else {
				d = xm
				e = d
			}
		} else {
			d = xm
			e = d
		}

		a, fa = b, fb
		if math.Abs(d) > tol1 {
			b += d
		} else {
			b += math.Copysign(tol1, xm)
		}
		if fb, err = f(b); err != nil {
			return 0, err
		}
	}
	return 0, volerr.Convergence("Brent: no convergence after %d iterations", br.MaxIterations)
}
