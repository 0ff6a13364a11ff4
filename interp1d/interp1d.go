// Package interp1d adapts gonum's one-dimensional interpolators to the
// two operations the volatility code needs: a value at x and the
// sensitivity of that value to every node value.
package interp1d

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/meenmo/volsurf/utils"
	"github.com/meenmo/volsurf/volerr"
)

// DataBundle holds sorted, distinct nodes. It is immutable.
type DataBundle struct {
	xs []float64
	ys []float64
}

// NewDataBundle copies and sorts the nodes by x.
func NewDataBundle(xs, ys []float64) (*DataBundle, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return nil, volerr.Construction("NewDataBundle: need matching non-empty nodes, got %d x and %d y", len(xs), len(ys))
	}
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	b := &DataBundle{xs: make([]float64, len(xs)), ys: make([]float64, len(ys))}
	for i, j := range idx {
		if math.IsNaN(xs[j]) || math.IsInf(xs[j], 0) || math.IsNaN(ys[j]) || math.IsInf(ys[j], 0) {
			return nil, volerr.Construction("NewDataBundle: non-finite node (%v, %v)", xs[j], ys[j])
		}
		b.xs[i], b.ys[i] = xs[j], ys[j]
	}
	if !utils.IsStrictlyIncreasing(b.xs) {
		return nil, volerr.Construction("NewDataBundle: repeated x node")
	}
	return b, nil
}

func (b *DataBundle) Len() int { return len(b.xs) }

func (b *DataBundle) Xs() []float64 { return append([]float64(nil), b.xs...) }

func (b *DataBundle) Ys() []float64 { return append([]float64(nil), b.ys...) }

// Interpolator is the capability consumed by curves, surfaces and the fitter.
type Interpolator interface {
	Interpolate(b *DataBundle, x float64) float64
	// NodeSensitivities returns ∂Interpolate(b, x)/∂y_i for every node.
	NodeSensitivities(b *DataBundle, x float64) []float64
}

// Linear is piecewise-linear interpolation. Outside the nodes it is flat
// unless Extrapolate is set, in which case the end segments are extended.
type Linear struct {
	Extrapolate bool
}

func (l Linear) weight(b *DataBundle, x float64) (int, float64) {
	i := utils.BracketIndex(b.xs, x)
	w := (x - b.xs[i]) / (b.xs[i+1] - b.xs[i])
	if !l.Extrapolate {
		w = math.Max(0, math.Min(1, w))
	}
	return i, w
}

func (l Linear) Interpolate(b *DataBundle, x float64) float64 {
	if b.Len() == 1 {
		return b.ys[0]
	}
	if !l.Extrapolate {
		var pl interp.PiecewiseLinear
		if err := pl.Fit(b.xs, b.ys); err == nil {
			return pl.Predict(x)
		}
	}
	i, w := l.weight(b, x)
	return (1-w)*b.ys[i] + w*b.ys[i+1]
}

func (l Linear) NodeSensitivities(b *DataBundle, x float64) []float64 {
	sense := make([]float64, b.Len())
	if b.Len() == 1 {
		sense[0] = 1
		return sense
	}
	i, w := l.weight(b, x)
	sense[i] = 1 - w
	sense[i+1] = w
	return sense
}

// NaturalCubic is a natural cubic spline, flat outside the nodes. Fewer
// than three nodes fall back to Linear.
type NaturalCubic struct{}

func (NaturalCubic) fit(xs, ys []float64) (*interp.NaturalCubic, error) {
	var nc interp.NaturalCubic
	if err := nc.Fit(xs, ys); err != nil {
		return nil, err
	}
	return &nc, nil
}

func (c NaturalCubic) Interpolate(b *DataBundle, x float64) float64 {
	if b.Len() < 3 {
		return Linear{}.Interpolate(b, x)
	}
	nc, err := c.fit(b.xs, b.ys)
	if err != nil {
		return Linear{}.Interpolate(b, x)
	}
	return nc.Predict(x)
}

// NodeSensitivities exploits the linearity of the spline in its node
// values: the sensitivity to y_i is the spline through the i-th unit vector.
func (c NaturalCubic) NodeSensitivities(b *DataBundle, x float64) []float64 {
	if b.Len() < 3 {
		return Linear{}.NodeSensitivities(b, x)
	}
	n := b.Len()
	sense := make([]float64, n)
	unit := make([]float64, n)
	for i := range n {
		unit[i] = 1
		nc, err := c.fit(b.xs, unit)
		if err != nil {
			return Linear{}.NodeSensitivities(b, x)
		}
		sense[i] = nc.Predict(x)
		unit[i] = 0
	}
	return sense
}
