package leastsquares

import (
	"math"

	"github.com/meenmo/volsurf/volerr"
)

// Transform maps a constrained model parameter to an unconstrained fitting
// parameter and back, so the optimizer can search all of ℝ.
type Transform interface {
	// Transform maps model space to fitting space.
	Transform(model float64) float64
	// Inverse maps fitting space to model space.
	Inverse(fit float64) float64
	// InverseGradient is d Inverse / d fit.
	InverseGradient(fit float64) float64
	// TransformGradient is d Transform / d model.
	TransformGradient(model float64) float64
}

// NullTransform leaves the parameter unconstrained.
type NullTransform struct{}

func (NullTransform) Transform(x float64) float64       { return x }
func (NullTransform) Inverse(y float64) float64         { return y }
func (NullTransform) InverseGradient(float64) float64   { return 1 }
func (NullTransform) TransformGradient(float64) float64 { return 1 }

// LimitType selects the side of a single-sided bound.
type LimitType int

const (
	GreaterThan LimitType = iota
	LessThan
)

const (
	expMax  = 50.0
	tanhMax = 25.0
)

// SingleRangeTransform bounds a parameter on one side through a softplus:
// model = limit ± ln(1 + e^fit).
type SingleRangeTransform struct {
	limit float64
	sign  float64
}

func NewSingleRangeTransform(limit float64, limitType LimitType) SingleRangeTransform {
	sign := 1.0
	if limitType == LessThan {
		sign = -1
	}
	return SingleRangeTransform{limit: limit, sign: sign}
}

// Transform clips values on or beyond the limit to the saturated end.
func (s SingleRangeTransform) Transform(x float64) float64 {
	r := s.sign * (x - s.limit)
	if r > expMax {
		return r
	}
	if r <= 0 {
		return -expMax
	}
	return math.Log(math.Expm1(r))
}

func (s SingleRangeTransform) Inverse(y float64) float64 {
	if y > expMax {
		return s.limit + s.sign*y
	}
	if y < -expMax {
		return s.limit + s.sign*math.Exp(y)
	}
	return s.limit + s.sign*math.Log1p(math.Exp(y))
}

func (s SingleRangeTransform) InverseGradient(y float64) float64 {
	if y > expMax {
		return s.sign
	}
	e := math.Exp(y)
	return s.sign * e / (e + 1)
}

func (s SingleRangeTransform) TransformGradient(x float64) float64 {
	r := s.sign * (x - s.limit)
	if r > expMax {
		return s.sign
	}
	e := math.Exp(r)
	return s.sign * e / (e - 1)
}

// DoubleRangeTransform bounds a parameter to (lower, upper) through tanh.
type DoubleRangeTransform struct {
	lower, upper float64
	mid, scale   float64
}

func NewDoubleRangeTransform(lower, upper float64) (DoubleRangeTransform, error) {
	if !(upper > lower) {
		return DoubleRangeTransform{}, volerr.Construction("NewDoubleRangeTransform: upper %v must exceed lower %v", upper, lower)
	}
	return DoubleRangeTransform{
		lower: lower,
		upper: upper,
		mid:   0.5 * (lower + upper),
		scale: 0.5 * (upper - lower),
	}, nil
}

// Transform clips values on or outside the range to ±tanhMax.
func (d DoubleRangeTransform) Transform(x float64) float64 {
	if x >= d.upper {
		return tanhMax
	}
	if x <= d.lower {
		return -tanhMax
	}
	return math.Atanh((x - d.mid) / d.scale)
}

func (d DoubleRangeTransform) Inverse(y float64) float64 {
	if y > tanhMax {
		return d.upper
	}
	if y < -tanhMax {
		return d.lower
	}
	return d.mid + d.scale*math.Tanh(y)
}

func (d DoubleRangeTransform) InverseGradient(y float64) float64 {
	if math.Abs(y) > tanhMax {
		return 0
	}
	t := math.Tanh(y)
	return d.scale * (1 - t*t)
}

func (d DoubleRangeTransform) TransformGradient(x float64) float64 {
	t := (x - d.mid) / d.scale
	return 1 / (d.scale * (1 - t*t))
}
