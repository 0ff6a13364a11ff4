package rootfind

import (
	"math"

	"github.com/meenmo/volsurf/volerr"
)

// Bisection halves the bracket until it is narrower than Tolerance.
type Bisection struct {
	Tolerance     float64
	MaxIterations int
}

func (b Bisection) Root(f Func, lower, upper float64) (float64, error) {
	fl, fu, err := checkBracket(f, lower, upper)
	if err != nil {
		return 0, err
	}
	if fl == 0 {
		return lower, nil
	}
	if fu == 0 {
		return upper, nil
	}

	for iter := 0; iter < b.MaxIterations; iter++ {
		mid := 0.5 * (lower + upper)
		if math.Abs(upper-lower) < b.Tolerance {
			return mid, nil
		}
		fm, err := f(mid)
		if err != nil {
			return 0, err
		}
		if fm == 0 {
			return mid, nil
		}
		if (fm < 0) == (fl < 0) {
			lower, fl = mid, fm
		} else {
			upper = mid
		}
	}
	return 0, volerr.Convergence("Bisection: no convergence after %d iterations", b.MaxIterations)
}
