// Package surface provides opaque two-dimensional surfaces z = f(t, x).
// The first coordinate is always time; the meaning of x is up to the owner.
package surface

import (
	"math"
	"sort"

	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/volerr"
)

// Surface is evaluated lazily and may fail for a query it cannot answer.
type Surface interface {
	Value(t, x float64) (float64, error)
}

// Func is an ordinary function used as a Surface.
type Func func(t, x float64) (float64, error)

// Value calls f.
func (f Func) Value(t, x float64) (float64, error) {
	return f(t, x)
}

// FunctionalSurface evaluates a function on every query.
type FunctionalSurface struct {
	fn Func
}

// NewFunctional wraps fn, which must not be nil.
func NewFunctional(fn Func) (*FunctionalSurface, error) {
	if fn == nil {
		return nil, volerr.Construction("NewFunctional: nil function")
	}
	return &FunctionalSurface{fn: fn}, nil
}

// Value calls the wrapped function.
func (f *FunctionalSurface) Value(t, x float64) (float64, error) {
	return f.fn(t, x)
}

// ConstantSurface returns the same value everywhere.
type ConstantSurface struct {
	z float64
}

// NewConstant returns the flat surface z.
func NewConstant(z float64) *ConstantSurface {
	return &ConstantSurface{z: z}
}

// Value returns z for every (t, x).
func (c *ConstantSurface) Value(float64, float64) (float64, error) {
	return c.z, nil
}

// InterpolatedSurface interpolates scattered nodes grouped by time: each
// time slice is interpolated in x, then the slice values are interpolated
// in t.
type InterpolatedSurface struct {
	times   []float64
	slices  []*interp1d.DataBundle
	tInterp interp1d.Interpolator
	xInterp interp1d.Interpolator
}

// NewInterpolated builds the surface from parallel node slices.
func NewInterpolated(ts, xs, zs []float64, tInterp, xInterp interp1d.Interpolator) (*InterpolatedSurface, error) {
	if len(ts) == 0 || len(ts) != len(xs) || len(ts) != len(zs) {
		return nil, volerr.Construction("NewInterpolated: need matching non-empty nodes, got %d/%d/%d", len(ts), len(xs), len(zs))
	}
	if tInterp == nil || xInterp == nil {
		return nil, volerr.Construction("NewInterpolated: nil interpolator")
	}

	byTime := make(map[float64][2][]float64)
	for i, t := range ts {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, volerr.Construction("NewInterpolated: non-finite time %v", t)
		}
		nodes := byTime[t]
		nodes[0] = append(nodes[0], xs[i])
		nodes[1] = append(nodes[1], zs[i])
		byTime[t] = nodes
	}

	times := make([]float64, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	sort.Float64s(times)

	s := &InterpolatedSurface{times: times, tInterp: tInterp, xInterp: xInterp}
	for _, t := range times {
		b, err := interp1d.NewDataBundle(byTime[t][0], byTime[t][1])
		if err != nil {
			return nil, volerr.Construction("NewInterpolated: slice t=%v: %v", t, err)
		}
		s.slices = append(s.slices, b)
	}
	return s, nil
}

// Value interpolates every slice at x, then the slice values at t. A
// single slice is flat in t.
func (s *InterpolatedSurface) Value(t, x float64) (float64, error) {
	vals := make([]float64, len(s.slices))
	for i, b := range s.slices {
		vals[i] = s.xInterp.Interpolate(b, x)
	}
	if len(vals) == 1 {
		return vals[0], nil
	}
	b, err := interp1d.NewDataBundle(s.times, vals)
	if err != nil {
		return 0, err
	}
	return s.tInterp.Interpolate(b, t), nil
}

func (s *InterpolatedSurface) hasTime(t float64) bool {
	i := sort.SearchFloat64s(s.times, t)
	return i < len(s.times) && s.times[i] == t
}

// neighbour is the last slice before t, or the first slice when t precedes
// them all.
func (s *InterpolatedSurface) neighbour(t float64) *interp1d.DataBundle {
	i := sort.SearchFloat64s(s.times, t)
	if i > 0 {
		i--
	}
	return s.slices[i]
}

// Nodes returns copies of the node coordinates in (time, x) order.
func (s *InterpolatedSurface) Nodes() (ts, xs, zs []float64) {
	for i, b := range s.slices {
		for j, x := range b.Xs() {
			ts = append(ts, s.times[i])
			xs = append(xs, x)
			zs = append(zs, b.Ys()[j])
		}
	}
	return ts, xs, zs
}
