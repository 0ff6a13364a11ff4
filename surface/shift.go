package surface

import (
	"github.com/meenmo/volsurf/volerr"
)

// Shift is a perturbation of a surface. Additive shifts add Amount;
// multiplicative shifts scale by (1 + Amount).
type Shift interface {
	apply(s Surface) (Surface, error)
}

func shifted(z, amount float64, multiplicative bool) float64 {
	if multiplicative {
		return z * (1 + amount)
	}
	return z + amount
}

// ParallelShift moves the whole surface.
type ParallelShift struct {
	Amount         float64
	Multiplicative bool
}

// PointShift moves the surface at a single (T, X) node.
type PointShift struct {
	T, X           float64
	Amount         float64
	Multiplicative bool
}

// MultiPointShift moves several nodes at once.
type MultiPointShift struct {
	Ts, Xs, Amounts []float64
	Multiplicative  bool
}

// WithShift returns a shifted copy of s. Point shifts need node data and
// are only available on an InterpolatedSurface.
func WithShift(s Surface, shift Shift) (Surface, error) {
	if s == nil || shift == nil {
		return nil, volerr.Construction("WithShift: nil surface or shift")
	}
	return shift.apply(s)
}

func (p ParallelShift) apply(s Surface) (Surface, error) {
	switch src := s.(type) {
	case *ConstantSurface:
		return NewConstant(shifted(src.z, p.Amount, p.Multiplicative)), nil
	case *InterpolatedSurface:
		ts, xs, zs := src.Nodes()
		for i := range zs {
			zs[i] = shifted(zs[i], p.Amount, p.Multiplicative)
		}
		return NewInterpolated(ts, xs, zs, src.tInterp, src.xInterp)
	default:
		return NewFunctional(func(t, x float64) (float64, error) {
			z, err := s.Value(t, x)
			if err != nil {
				return 0, err
			}
			return shifted(z, p.Amount, p.Multiplicative), nil
		})
	}
}

func (p PointShift) apply(s Surface) (Surface, error) {
	return MultiPointShift{
		Ts:             []float64{p.T},
		Xs:             []float64{p.X},
		Amounts:        []float64{p.Amount},
		Multiplicative: p.Multiplicative,
	}.apply(s)
}

func (m MultiPointShift) apply(s Surface) (Surface, error) {
	if len(m.Ts) != len(m.Xs) || len(m.Ts) != len(m.Amounts) {
		return nil, volerr.Construction("MultiPointShift: %d times, %d xs and %d amounts", len(m.Ts), len(m.Xs), len(m.Amounts))
	}
	src, ok := s.(*InterpolatedSurface)
	if !ok {
		return nil, volerr.Construction("MultiPointShift: point shifts are not supported on %T", s)
	}

	ts, xs, zs := src.Nodes()
	// A shift at a new time gets a full slice sampled from the current
	// surface on the x nodes of the nearest earlier slice.
	sampled := make(map[float64]bool)
	for _, t := range m.Ts {
		if src.hasTime(t) || sampled[t] {
			continue
		}
		sampled[t] = true
		for _, x := range src.neighbour(t).Xs() {
			z, err := src.Value(t, x)
			if err != nil {
				return nil, err
			}
			ts = append(ts, t)
			xs = append(xs, x)
			zs = append(zs, z)
		}
	}

	for k := range m.Ts {
		found := false
		for i := range ts {
			if ts[i] == m.Ts[k] && xs[i] == m.Xs[k] {
				zs[i] = shifted(zs[i], m.Amounts[k], m.Multiplicative)
				found = true
				break
			}
		}
		if found {
			continue
		}
		// Off-node shift: insert a node carrying the shifted current value.
		z, err := src.Value(m.Ts[k], m.Xs[k])
		if err != nil {
			return nil, err
		}
		ts = append(ts, m.Ts[k])
		xs = append(xs, m.Xs[k])
		zs = append(zs, shifted(z, m.Amounts[k], m.Multiplicative))
	}
	return NewInterpolated(ts, xs, zs, src.tInterp, src.xInterp)
}
