// Package market holds the immutable market smile data a volatility
// surface is built from.
package market

import (
	"math"

	"github.com/meenmo/volsurf/forward"
	"github.com/meenmo/volsurf/utils"
	"github.com/meenmo/volsurf/volerr"
)

// SmileSurfaceDataBundle is a set of per-expiry smiles: for each expiry a
// forward, strictly increasing strikes and the implied volatility at each.
// Accessors return copies.
type SmileSurfaceDataBundle struct {
	forwardCurve forward.Curve
	expiries     []float64
	forwards     []float64
	strikes      [][]float64
	vols         [][]float64
}

// NewSmileSurfaceDataBundle reads the forwards off the curve.
func NewSmileSurfaceDataBundle(fc forward.Curve, expiries []float64, strikes, vols [][]float64) (*SmileSurfaceDataBundle, error) {
	if fc == nil {
		return nil, volerr.Construction("NewSmileSurfaceDataBundle: nil forward curve")
	}
	forwards := make([]float64, len(expiries))
	for i, t := range expiries {
		forwards[i] = fc.Forward(t)
	}
	return newBundle(fc, expiries, forwards, strikes, vols)
}

// NewSmileSurfaceDataBundleFromForwards builds the forward curve by linear
// interpolation of the per-expiry forwards.
func NewSmileSurfaceDataBundleFromForwards(forwards, expiries []float64, strikes, vols [][]float64) (*SmileSurfaceDataBundle, error) {
	if len(forwards) != len(expiries) {
		return nil, volerr.Construction("NewSmileSurfaceDataBundleFromForwards: %d forwards for %d expiries", len(forwards), len(expiries))
	}
	fc, err := forward.NewInterpolatedCurve(expiries, forwards, nil)
	if err != nil {
		return nil, err
	}
	return newBundle(fc, expiries, forwards, strikes, vols)
}

func newBundle(fc forward.Curve, expiries, forwards []float64, strikes, vols [][]float64) (*SmileSurfaceDataBundle, error) {
	n := len(expiries)
	if n == 0 {
		return nil, volerr.Construction("SmileSurfaceDataBundle: no expiries")
	}
	if len(strikes) != n || len(vols) != n {
		return nil, volerr.Construction("SmileSurfaceDataBundle: %d expiries, %d strike rows, %d vol rows", n, len(strikes), len(vols))
	}
	if !(expiries[0] > 0) || !utils.IsStrictlyIncreasing(expiries) {
		return nil, volerr.Construction("SmileSurfaceDataBundle: expiries must be positive and strictly increasing")
	}

	b := &SmileSurfaceDataBundle{
		forwardCurve: fc,
		expiries:     append([]float64(nil), expiries...),
		forwards:     append([]float64(nil), forwards...),
		strikes:      make([][]float64, n),
		vols:         make([][]float64, n),
	}
	for i := range n {
		if !(forwards[i] > 0) {
			return nil, volerr.Construction("SmileSurfaceDataBundle: forward %v at expiry %d must be positive", forwards[i], i)
		}
		if len(strikes[i]) == 0 || len(strikes[i]) != len(vols[i]) {
			return nil, volerr.Construction("SmileSurfaceDataBundle: expiry %d has %d strikes and %d vols", i, len(strikes[i]), len(vols[i]))
		}
		if !(strikes[i][0] > 0) || !utils.IsStrictlyIncreasing(strikes[i]) {
			return nil, volerr.Construction("SmileSurfaceDataBundle: strikes at expiry %d must be positive and strictly increasing", i)
		}
		for j, v := range vols[i] {
			if !(v > 0) || math.IsInf(v, 0) {
				return nil, volerr.Construction("SmileSurfaceDataBundle: vol %v at (%d,%d) must be positive", v, i, j)
			}
		}
		b.strikes[i] = append([]float64(nil), strikes[i]...)
		b.vols[i] = append([]float64(nil), vols[i]...)
	}
	return b, nil
}

func (b *SmileSurfaceDataBundle) NumExpiries() int { return len(b.expiries) }

func (b *SmileSurfaceDataBundle) ForwardCurve() forward.Curve { return b.forwardCurve }

func (b *SmileSurfaceDataBundle) Expiries() []float64 { return append([]float64(nil), b.expiries...) }

func (b *SmileSurfaceDataBundle) Forwards() []float64 { return append([]float64(nil), b.forwards...) }

func (b *SmileSurfaceDataBundle) Strikes() [][]float64 { return clone2(b.strikes) }

func (b *SmileSurfaceDataBundle) Volatilities() [][]float64 { return clone2(b.vols) }

// Smile returns the strikes and vols of expiry i.
func (b *SmileSurfaceDataBundle) Smile(i int) (strikes, vols []float64) {
	return append([]float64(nil), b.strikes[i]...), append([]float64(nil), b.vols[i]...)
}

// WithBumpedPoint returns a copy with vol (i, j) moved by amount.
func (b *SmileSurfaceDataBundle) WithBumpedPoint(i, j int, amount float64) (*SmileSurfaceDataBundle, error) {
	if i < 0 || i >= len(b.expiries) || j < 0 || j >= len(b.strikes[i]) {
		return nil, volerr.Construction("WithBumpedPoint: index (%d,%d) out of range", i, j)
	}
	vols := clone2(b.vols)
	vols[i][j] += amount
	return newBundle(b.forwardCurve, b.expiries, b.forwards, b.strikes, vols)
}

func clone2(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	for i := range in {
		out[i] = append([]float64(nil), in[i]...)
	}
	return out
}
