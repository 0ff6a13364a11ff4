// Package mixedlognormal prices under a weighted mixture of log-normal
// components. The resulting price, implied-volatility and local-volatility
// surfaces are arbitrage free by construction and serve as reference data.
package mixedlognormal

import (
	"log/slog"
	"math"

	"github.com/meenmo/volsurf/black"
	"github.com/meenmo/volsurf/blackvol"
	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/forward"
	"github.com/meenmo/volsurf/surface"
	"github.com/meenmo/volsurf/volerr"
)

const (
	weightSumTolerance = 1e-10
	millsAsymptotic    = -8.0
)

var halfLog2Pi = 0.5 * math.Log(2*math.Pi)

// Model is a mixture of components i with weight w_i, volatility σ_i and
// drift μ_i. Component forwards are F_i(t) = F(t)·e^{μ_i t}/Σ_j w_j e^{μ_j t}
// so that the mixture reprices the forward.
type Model struct {
	weights []float64
	sigmas  []float64
	drifts  []float64
	largest int
	minTime float64
	solver  black.ImpliedVolSolver
	logger  *slog.Logger
}

// New validates positive weights summing to one and positive volatilities.
// A nil drifts slice means no relative drift.
func New(cfg config.Config, weights, sigmas, drifts []float64) (*Model, error) {
	n := len(weights)
	if drifts == nil {
		drifts = make([]float64, n)
	}
	if n == 0 || len(sigmas) != n || len(drifts) != n {
		return nil, volerr.Construction("mixedlognormal.New: %d weights, %d sigmas, %d drifts", n, len(sigmas), len(drifts))
	}
	sum := 0.0
	largest := 0
	for i := range n {
		if !(weights[i] > 0) || !(sigmas[i] > 0) || math.IsInf(sigmas[i], 0) || math.IsNaN(drifts[i]) || math.IsInf(drifts[i], 0) {
			return nil, volerr.Construction("mixedlognormal.New: component %d has weight %v sigma %v drift %v", i, weights[i], sigmas[i], drifts[i])
		}
		sum += weights[i]
		if weights[i] > weights[largest] {
			largest = i
		}
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return nil, volerr.Construction("mixedlognormal.New: weights sum to %v", sum)
	}
	return &Model{
		weights: append([]float64(nil), weights...),
		sigmas:  append([]float64(nil), sigmas...),
		drifts:  append([]float64(nil), drifts...),
		largest: largest,
		minTime: cfg.MinTime,
		solver:  black.NewImpliedVolSolver(cfg),
		logger:  slog.Default(),
	}, nil
}

// WithLogger returns a copy logging to l.
func (m *Model) WithLogger(l *slog.Logger) *Model {
	c := *m
	c.logger = l
	return &c
}

// driftScale returns ln Σ_j w_j e^{μ_j t} and the weighted mean drift at t.
func (m *Model) driftScale(t float64) (lnNorm, meanDrift float64) {
	norm, weighted := 0.0, 0.0
	for i, w := range m.weights {
		e := w * math.Exp(m.drifts[i]*t)
		norm += e
		weighted += e * m.drifts[i]
	}
	return math.Log(norm), weighted / norm
}

// ComponentForwards returns F_i(t) given the mixture forward f.
func (m *Model) ComponentForwards(f, t float64) []float64 {
	lnNorm, _ := m.driftScale(t)
	out := make([]float64, len(m.weights))
	for i := range out {
		out[i] = f * math.Exp(m.drifts[i]*t-lnNorm)
	}
	return out
}

// Price is the undiscounted out-of-the-money price: a call for k >= f and
// a put otherwise.
func (m *Model) Price(f, k, t float64) float64 {
	isCall := k >= f
	price := 0.0
	for i, fi := range m.ComponentForwards(f, t) {
		price += m.weights[i] * black.Price(fi, k, t, m.sigmas[i], isCall)
	}
	return price
}

func checkQuery(fn string, t, k float64) error {
	if !(t > 0) || math.IsInf(t, 0) || !(k > 0) || math.IsInf(k, 0) {
		return volerr.Domain("%s: need t>0 and k>0, got t=%v k=%v", fn, t, k)
	}
	return nil
}

// PriceSurface is the out-of-the-money price by (t, absolute strike).
func (m *Model) PriceSurface(fc forward.Curve) (surface.Surface, error) {
	if fc == nil {
		return nil, volerr.Construction("PriceSurface: nil forward curve")
	}
	return surface.Func(func(t, k float64) (float64, error) {
		if err := checkQuery("PriceSurface", t, k); err != nil {
			return 0, err
		}
		return m.Price(fc.Forward(t), k, t), nil
	}), nil
}

// ImpliedVolatility inverts the mixture price. Where the price underflows
// or cannot be inverted, far in the wings, the volatility of the
// largest-weight component is returned.
func (m *Model) ImpliedVolatility(f, k, t float64) (float64, error) {
	if err := checkQuery("ImpliedVolatility", t, k); err != nil {
		return 0, err
	}
	fallback := m.sigmas[m.largest]
	price := m.Price(f, k, t)
	if !(price > 0) {
		m.logger.Debug("mixture price underflow, using largest-weight volatility", "t", t, "strike", k, "forward", f)
		return fallback, nil
	}
	vol, err := m.solver.ImpliedVolatilityOTM(price, f, k, t, fallback)
	if err != nil || !(vol > 0) {
		m.logger.Debug("mixture price not invertible, using largest-weight volatility", "t", t, "strike", k, "price", price, "err", err)
		return fallback, nil
	}
	return vol, nil
}

// ImpliedVolatilitySurface is the Black volatility of the mixture by
// absolute strike.
func (m *Model) ImpliedVolatilitySurface(fc forward.Curve) (*blackvol.StrikeSurface, error) {
	if fc == nil {
		return nil, volerr.Construction("ImpliedVolatilitySurface: nil forward curve")
	}
	return blackvol.NewStrikeSurface(surface.Func(func(t, k float64) (float64, error) {
		return m.ImpliedVolatility(fc.Forward(t), k, t)
	}))
}

// LocalVolatility is the Dupire volatility of the mixture at moneyness
// x = k/F(t). Below MinTime the query is rescaled self-similarly to
// (MinTime, x^√(MinTime/t)).
func (m *Model) LocalVolatility(t, x float64) (float64, error) {
	if !(t > 0) || !(x > 0) || math.IsInf(x, 0) {
		return 0, volerr.Domain("LocalVolatility: need t>0 and moneyness>0, got t=%v x=%v", t, x)
	}
	lnX := math.Log(x)
	if t < m.minTime {
		lnX *= math.Sqrt(m.minTime / t)
		t = m.minTime
	}
	v := m.localVariance(t, lnX)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, volerr.Numeric("LocalVolatility: local variance %v at t=%v x=%v", v, t, x)
	}
	return math.Sqrt(v), nil
}

// localVariance evaluates
//
//	σ²(t,x) = [Σ w_i σ_i φ(d2_i) + 2√t Σ w_i (μ_i-μ̄) F_i N(d1_i)/K] / Σ w_i φ(d2_i)/σ_i
//
// in log space. F_i N(±d1_i)/K = φ(d2_i)·R(±d1_i) with R the Mills ratio,
// and below the forward N(d1) is replaced by -N(-d1), which is exact
// because Σ w_i (μ_i-μ̄) F_i/F = 0.
func (m *Model) localVariance(t, lnX float64) float64 {
	n := len(m.weights)
	sqrtT := math.Sqrt(t)
	lnNorm, meanDrift := m.driftScale(t)
	complement := lnX < 0

	lnDen := make([]float64, n)
	lnDrift := make([]float64, n)
	maxLn := math.Inf(-1)
	for i, w := range m.weights {
		s := m.sigmas[i] * sqrtT
		lnA := m.drifts[i]*t - lnNorm
		d1 := (lnA-lnX)/s + 0.5*s
		d2 := d1 - s
		lnW := math.Log(w) - 0.5*d2*d2
		lnDen[i] = lnW - math.Log(m.sigmas[i])
		if complement {
			lnDrift[i] = lnW + lnMills(-d1)
		} else {
			lnDrift[i] = lnW + lnMills(d1)
		}
		maxLn = math.Max(maxLn, lnDen[i])
	}

	sign := 1.0
	if complement {
		sign = -1
	}
	den, num, drift := 0.0, 0.0, 0.0
	for i := range n {
		e := math.Exp(lnDen[i] - maxLn)
		den += e
		num += m.sigmas[i] * m.sigmas[i] * e
		if mu := m.drifts[i] - meanDrift; mu != 0 {
			drift += sign * mu * math.Exp(lnDrift[i]-maxLn)
		}
	}
	return (num + 2*sqrtT*drift) / den
}

// lnMills is ln(N(d)/φ(d)), asymptotic in the far left tail where N underflows.
func lnMills(d float64) float64 {
	if d < millsAsymptotic {
		d2 := 1 / (d * d)
		return math.Log((1 - d2*(1-d2*(3-d2*(15-105*d2)))) / -d)
	}
	return math.Log(0.5*math.Erfc(-d/math.Sqrt2)) + 0.5*d*d + halfLog2Pi
}

// LocalVolatilitySurface is the local volatility by (t, absolute strike).
func (m *Model) LocalVolatilitySurface(fc forward.Curve) (surface.Surface, error) {
	if fc == nil {
		return nil, volerr.Construction("LocalVolatilitySurface: nil forward curve")
	}
	return surface.Func(func(t, k float64) (float64, error) {
		if err := checkQuery("LocalVolatilitySurface", t, k); err != nil {
			return 0, err
		}
		return m.LocalVolatility(t, k/fc.Forward(t))
	}), nil
}
