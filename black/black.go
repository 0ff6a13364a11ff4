// Package black implements the Black (forward) option formula and its
// inversions: forward delta, vega, strike for a delta, implied volatility.
package black

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/volsurf/volerr"
)

const (
	large = 1e13
	small = 1e-13
)

// Normal is the standard normal distribution shared by the volatility packages.
var Normal = distuv.UnitNormal

// D1 returns ln(F/K)/(σ√t) + σ√t/2. At the money, or for an exploding
// σ√t, the log term is dropped.
func D1(forward, strike, t, vol float64) float64 {
	sigmaRootT := vol * math.Sqrt(t)
	if math.Abs(forward-strike) < small || sigmaRootT > large {
		return 0.5 * sigmaRootT
	}
	return math.Log(forward/strike)/sigmaRootT + 0.5*sigmaRootT
}

// Price is the forward (undiscounted) Black price.
func Price(forward, strike, t, vol float64, isCall bool) float64 {
	sign := 1.0
	if !isCall {
		sign = -1
	}
	if forward > large && strike > large {
		if isCall {
			if forward >= strike {
				return forward
			}
			return 0
		}
		if strike >= forward {
			return strike
		}
		return 0
	}

	sigmaRootT := vol * math.Sqrt(t)
	if math.IsNaN(sigmaRootT) {
		sigmaRootT = 1
	}
	if sigmaRootT < small {
		return math.Max(sign*(forward-strike), 0)
	}

	d1 := D1(forward, strike, t, vol)
	d2 := d1 - sigmaRootT

	nF := Normal.CDF(sign * d1)
	nS := Normal.CDF(sign * d2)
	first, second := 0.0, 0.0
	if nF != 0 {
		first = forward * nF
	}
	if nS != 0 {
		second = strike * nS
	}
	return math.Max(0, sign*(first-second))
}

// ForwardDelta is ∂price/∂F: N(d1) for a call and N(d1)-1 for a put.
func ForwardDelta(forward, strike, t, vol float64, isCall bool) float64 {
	sign := 1.0
	if !isCall {
		sign = -1
	}
	if vol*math.Sqrt(t) < small {
		callDelta := 0.0
		switch {
		case forward > strike:
			callDelta = 1
		case forward == strike:
			callDelta = 0.5
		}
		if isCall {
			return callDelta
		}
		return callDelta - 1
	}
	return sign * Normal.CDF(sign*D1(forward, strike, t, vol))
}

// Vega is ∂price/∂σ = F√t φ(d1).
func Vega(forward, strike, t, vol float64) float64 {
	rootT := math.Sqrt(t)
	if vol*rootT < small {
		return 0
	}
	return forward * rootT * Normal.Prob(D1(forward, strike, t, vol))
}

// StrikeForDelta inverts ForwardDelta: K = F exp(-d1 σ√t + σ²t/2) with
// d1 = ±N⁻¹(±δ). Call deltas must lie in (0,1), put deltas in (-1,0).
func StrikeForDelta(forward, delta, t, vol float64, isCall bool) (float64, error) {
	if isCall && !(delta > 0 && delta < 1) || !isCall && !(delta > -1 && delta < 0) {
		return 0, volerr.Domain("StrikeForDelta: delta %v out of range (call=%v)", delta, isCall)
	}
	if !(forward >= 0) || !(t >= 0) || !(vol >= 0) {
		return 0, volerr.Domain("StrikeForDelta: invalid forward %v, t %v or vol %v", forward, t, vol)
	}
	sign := 1.0
	if !isCall {
		sign = -1
	}
	d1 := sign * Normal.Quantile(sign*delta)
	sigmaSqT := vol * vol * t
	return forward * math.Exp(-d1*math.Sqrt(sigmaSqT)+0.5*sigmaSqT), nil
}
