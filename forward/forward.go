// Package forward provides forward curves F(t) consumed by the volatility
// surfaces and the smile data bundle.
package forward

import (
	"math"

	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/utils"
	"github.com/meenmo/volsurf/volerr"
)

// Curve returns the forward of the underlying for expiry t.
type Curve interface {
	Forward(t float64) float64
}

// ConstantCurve has the same forward at every expiry.
type ConstantCurve struct {
	f float64
}

func NewConstantCurve(f float64) (*ConstantCurve, error) {
	if !(f > 0) || math.IsInf(f, 0) {
		return nil, volerr.Construction("NewConstantCurve: forward %v must be positive", f)
	}
	return &ConstantCurve{f: f}, nil
}

func (c *ConstantCurve) Forward(float64) float64 { return c.f }

// DriftCurve grows a spot at a constant continuous drift: F(t) = S e^{μt}.
type DriftCurve struct {
	spot, drift float64
}

func NewDriftCurve(spot, drift float64) (*DriftCurve, error) {
	if !(spot > 0) || math.IsInf(spot, 0) || math.IsNaN(drift) {
		return nil, volerr.Construction("NewDriftCurve: spot %v must be positive and drift %v finite", spot, drift)
	}
	return &DriftCurve{spot: spot, drift: drift}, nil
}

func (d *DriftCurve) Forward(t float64) float64 { return d.spot * math.Exp(d.drift*t) }

// InterpolatedCurve interpolates forwards observed at option expiries.
type InterpolatedCurve struct {
	nodes  *interp1d.DataBundle
	interp interp1d.Interpolator
}

// NewInterpolatedCurve builds a curve through (expiry, forward) nodes. A
// nil interpolator selects linear interpolation, flat outside the nodes.
func NewInterpolatedCurve(expiries, forwards []float64, interp interp1d.Interpolator) (*InterpolatedCurve, error) {
	for _, f := range forwards {
		if !(f > 0) {
			return nil, volerr.Construction("NewInterpolatedCurve: forward %v must be positive", f)
		}
	}
	nodes, err := interp1d.NewDataBundle(expiries, forwards)
	if err != nil {
		return nil, err
	}
	if interp == nil {
		interp = interp1d.Linear{}
	}
	return &InterpolatedCurve{nodes: nodes, interp: interp}, nil
}

func (c *InterpolatedCurve) Forward(t float64) float64 {
	return c.interp.Interpolate(c.nodes, t)
}

// DiscountCurve derives forwards from a spot and carry discount factors,
// F(t) = S / DF(t), interpolating DF log-linearly between pillars and
// extrapolating at the nearest pillar pair's forward rate.
type DiscountCurve struct {
	spot  float64
	times []float64
	dfs   []float64
}

func NewDiscountCurve(spot float64, times, dfs []float64) (*DiscountCurve, error) {
	if !(spot > 0) {
		return nil, volerr.Construction("NewDiscountCurve: spot %v must be positive", spot)
	}
	if len(times) == 0 || len(times) != len(dfs) {
		return nil, volerr.Construction("NewDiscountCurve: need matching non-empty pillars, got %d and %d", len(times), len(dfs))
	}
	if !utils.IsStrictlyIncreasing(times) {
		return nil, volerr.Construction("NewDiscountCurve: pillar times must be strictly increasing")
	}
	for _, df := range dfs {
		if !(df > 0) {
			return nil, volerr.Construction("NewDiscountCurve: discount factor %v must be positive", df)
		}
	}
	c := &DiscountCurve{spot: spot}
	// Anchor DF(0) = 1 unless a pillar already sits at zero.
	if times[0] > 0 {
		c.times = append(c.times, 0)
		c.dfs = append(c.dfs, 1)
	}
	c.times = append(c.times, times...)
	c.dfs = append(c.dfs, dfs...)
	return c, nil
}

// DiscountFactor interpolates log-linearly.
func (c *DiscountCurve) DiscountFactor(t float64) float64 {
	if len(c.times) < 2 {
		return c.dfs[0]
	}
	i := utils.BracketIndex(c.times, t)
	t1, t2 := c.times[i], c.times[i+1]
	df1, df2 := c.dfs[i], c.dfs[i+1]

	forwardRate := math.Log(df1/df2) / (t2 - t1)
	return df1 * math.Exp(-forwardRate*(t-t1))
}

func (c *DiscountCurve) Forward(t float64) float64 {
	return c.spot / c.DiscountFactor(t)
}
