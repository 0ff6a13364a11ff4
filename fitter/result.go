package fitter

import (
	"gonum.org/v1/gonum/mat"

	"github.com/meenmo/volsurf/blackvol"
	"github.com/meenmo/volsurf/forward"
	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/surface"
	"github.com/meenmo/volsurf/volerr"
)

// Curve is one calibrated parameter term structure.
type Curve struct {
	Name   string
	bundle *interp1d.DataBundle
	interp interp1d.Interpolator
}

// Value is the parameter at expiry t.
func (c Curve) Value(t float64) float64 { return c.interp.Interpolate(c.bundle, t) }

// Nodes returns the node times and natural-space node values.
func (c Curve) Nodes() (ts, values []float64) { return c.bundle.Xs(), c.bundle.Ys() }

// Result is a converged calibration.
type Result[T any] struct {
	// Fitted is the solution in transformed space.
	Fitted []float64
	// Natural is Fitted mapped back through the limit transforms.
	Natural []float64
	Curves  []Curve
	// ChiSquare is the error-weighted sum of squared residuals.
	ChiSquare float64
	// ResidualNorm is the Euclidean norm of market minus model vols.
	ResidualNorm float64
	Iterations   int
	Covariance   *mat.Dense

	model SmileModel[T]
}

// Curve returns the calibrated curve of the named parameter.
func (r *Result[T]) Curve(name string) (Curve, error) {
	for _, c := range r.Curves {
		if c.Name == name {
			return c, nil
		}
	}
	return Curve{}, volerr.Domain("Result.Curve: no parameter %q", name)
}

// Parameters builds the model data at expiry t from the curves.
func (r *Result[T]) Parameters(t float64) (T, error) {
	params := make([]float64, len(r.Curves))
	for p, c := range r.Curves {
		params[p] = c.Value(t)
	}
	return r.model.NewData(params)
}

// ModelSurface is the lazily evaluated strike surface implied by the
// calibrated curves.
func ModelSurface[T any](model SmileModel[T], r *Result[T], fc forward.Curve) (*blackvol.StrikeSurface, error) {
	if model == nil || r == nil || fc == nil {
		return nil, volerr.Construction("ModelSurface: nil model, result or forward curve")
	}
	return blackvol.NewStrikeSurface(surface.Func(func(t, k float64) (float64, error) {
		if !(t > 0) {
			return 0, volerr.Domain("ModelSurface: time %v must be positive", t)
		}
		data, err := r.Parameters(t)
		if err != nil {
			return 0, err
		}
		return model.Volatility(fc.Forward(t), k, t, data), nil
	}))
}
