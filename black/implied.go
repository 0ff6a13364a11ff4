package black

import (
	"math"

	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/rootfind"
	"github.com/meenmo/volsurf/volerr"
)

const (
	defaultVolGuess = 0.3
	maxVolChange    = 0.5
	maxBracketVol   = 1e3
)

// ImpliedVolSolver inverts the Black formula with a bracketed Newton
// iteration that falls back to bisection when vega vanishes or the
// iteration budget runs out.
type ImpliedVolSolver struct {
	Tolerance     float64
	MaxIterations int
	bracketer     rootfind.Bracketer
	bisection     rootfind.Bisection
}

// NewImpliedVolSolver reads tolerances from cfg.
func NewImpliedVolSolver(cfg config.Config) ImpliedVolSolver {
	return ImpliedVolSolver{
		Tolerance:     cfg.ImpliedVolTolerance,
		MaxIterations: cfg.ImpliedVolMaxIterations,
		bracketer:     rootfind.NewBracketer(cfg),
		bisection:     rootfind.Bisection{Tolerance: cfg.ImpliedVolTolerance, MaxIterations: cfg.MaxRootIterations},
	}
}

// ImpliedVolatility returns the Black volatility of a forward option price.
// The time value (price less intrinsic) is inverted through its
// out-of-the-money counterpart.
func (s ImpliedVolSolver) ImpliedVolatility(price, forward, strike, t float64, isCall bool) (float64, error) {
	if !(price > 0) || !(forward > 0) || !(strike > 0) || !(t >= 0) ||
		math.IsInf(forward, 0) || math.IsInf(strike, 0) || math.IsInf(t, 0) {
		return 0, volerr.Domain("ImpliedVolatility: invalid inputs price=%v forward=%v strike=%v t=%v", price, forward, strike, t)
	}
	sign := 1.0
	if !isCall {
		sign = -1
	}
	intrinsic := math.Max(0, sign*(forward-strike))
	return s.ImpliedVolatilityOTM(price-intrinsic, forward, strike, t, defaultVolGuess)
}

// ImpliedVolatilityOTM inverts an out-of-the-money price: a call for
// strike >= forward and a put otherwise.
func (s ImpliedVolSolver) ImpliedVolatilityOTM(otmPrice, forward, strike, t, volGuess float64) (float64, error) {
	if !(otmPrice >= 0) || !(forward >= 0) || !(strike >= 0) || !(t >= 0) || !(volGuess >= 0) ||
		math.IsInf(otmPrice, 0) || math.IsInf(volGuess, 0) {
		return 0, volerr.Domain("ImpliedVolatilityOTM: invalid inputs price=%v forward=%v strike=%v t=%v", otmPrice, forward, strike, t)
	}
	if otmPrice == 0 {
		return 0, nil
	}
	if otmPrice >= math.Min(forward, strike) {
		return 0, volerr.Domain("ImpliedVolatilityOTM: price %v exceeds upper bound %v", otmPrice, math.Min(forward, strike))
	}
	if forward == strike {
		return Normal.Quantile(0.5*(otmPrice/forward+1)) * 2 / math.Sqrt(t), nil
	}

	isCall := strike >= forward
	priceDiff := func(vol float64) (float64, error) {
		return Price(forward, strike, t, vol, isCall) - otmPrice, nil
	}

	change := math.Min(volGuess, 0.1)
	lower, upper, err := s.bracketer.Bracket(priceDiff, volGuess-change, volGuess+change, 0, maxBracketVol)
	if err != nil {
		return 0, volerr.Domain("ImpliedVolatilityOTM: no implied volatility for price %v: %v", otmPrice, err)
	}

	sigma := 0.5 * (lower + upper)
	step := func() (float64, bool) {
		v := Vega(forward, strike, t, sigma)
		if v == 0 || math.IsNaN(v) {
			return 0, false
		}
		diff := Price(forward, strike, t, sigma, isCall) - otmPrice
		if diff > 0 {
			upper = sigma
		} else {
			lower = sigma
		}
		trial := -diff / v
		if trial > 0 {
			return math.Min(maxVolChange, math.Min(trial, upper-sigma)), true
		}
		return math.Max(-maxVolChange, math.Max(trial, lower-sigma)), true
	}

	change, ok := step()
	for iter := 0; ok && math.Abs(change) > s.Tolerance; iter++ {
		if iter >= s.MaxIterations {
			ok = false
			break
		}
		sigma += change
		change, ok = step()
	}
	if !ok {
		return s.bisection.Root(priceDiff, lower, upper)
	}
	return sigma + change, nil
}
