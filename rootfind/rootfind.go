// Package rootfind holds the one-dimensional bracketing and root-finding
// routines used by the surface converter and Black inversion. Every loop
// has a hard iteration cap.
package rootfind

import (
	"math"

	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/volerr"
)

// Func is a scalar function whose evaluation may fail, for example when it
// reads a surface outside its domain.
type Func func(x float64) (float64, error)

// Finder locates a root inside a bracket [lower, upper].
type Finder interface {
	Root(f Func, lower, upper float64) (float64, error)
}

// Bracketer expands an initial interval geometrically until the function
// changes sign, never leaving [min, max].
type Bracketer struct {
	Growth      float64
	MaxAttempts int
}

// NewBracketer reads the bracketing policy from cfg.
func NewBracketer(cfg config.Config) Bracketer {
	return Bracketer{Growth: cfg.BracketGrowth, MaxAttempts: cfg.BracketMaxAttempts}
}

// Bracket returns (lo, hi) with f(lo) and f(hi) of opposite sign (or one
// of them zero). It fails with volerr.ErrDomain when no sign change is
// found within MaxAttempts expansions or the limits are reached.
func (b Bracketer) Bracket(f Func, lower, upper, min, max float64) (float64, float64, error) {
	if lower > upper {
		lower, upper = upper, lower
	}
	lower = math.Max(lower, min)
	upper = math.Min(upper, max)
	if lower == upper {
		return 0, 0, volerr.Domain("Bracket: empty interval at %v", lower)
	}

	f1, err := f(lower)
	if err != nil {
		return 0, 0, err
	}
	f2, err := f(upper)
	if err != nil {
		return 0, 0, err
	}

	for attempt := 0; attempt < b.MaxAttempts; attempt++ {
		if f1*f2 <= 0 {
			return lower, upper, nil
		}
		if lower == min && upper == max {
			break
		}
		// Expand on the side whose value is closer to zero, unless it is pinned.
		if (math.Abs(f1) < math.Abs(f2) && lower > min) || upper == max {
			lower = math.Max(lower+b.Growth*(lower-upper), min)
			if f1, err = f(lower); err != nil {
				return 0, 0, err
			}
		} else {
			upper = math.Min(upper+b.Growth*(upper-lower), max)
			if f2, err = f(upper); err != nil {
				return 0, 0, err
			}
		}
	}
	if f1*f2 <= 0 {
		return lower, upper, nil
	}
	return 0, 0, volerr.Domain("Bracket: no sign change in [%v, %v]", lower, upper)
}

// checkBracket evaluates both ends and rejects a non-bracketing pair.
func checkBracket(f Func, lower, upper float64) (float64, float64, error) {
	fl, err := f(lower)
	if err != nil {
		return 0, 0, err
	}
	fu, err := f(upper)
	if err != nil {
		return 0, 0, err
	}
	if fl*fu > 0 {
		return 0, 0, volerr.Domain("root not bracketed by [%v, %v] (f=%v, %v)", lower, upper, fl, fu)
	}
	return fl, fu, nil
}
