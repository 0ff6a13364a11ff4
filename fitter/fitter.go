// Package fitter calibrates term structures of smile-model parameters
// against a whole volatility surface in one least-squares solve.
//
// Every model parameter is a curve in expiry: its node values are the
// unknowns, its interpolator gives the parameter at each expiry and a
// limit transform keeps the node values inside the model's domain while
// the optimizer searches an unconstrained space.
package fitter

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/leastsquares"
	"github.com/meenmo/volsurf/utils"
	"github.com/meenmo/volsurf/volerr"
)

// SmileModel is a parametric smile at one expiry. ModelAdjoint returns
// ∂Volatility/∂parameter in ParameterNames order.
type SmileModel[T any] interface {
	ParameterNames() []string
	NewData(params []float64) (T, error)
	Volatility(forward, k, t float64, data T) float64
	ModelAdjoint(forward, k, t float64, data T) []float64
}

// Fitter holds the market points and the curve definitions. The unknown
// vector concatenates the node values of every parameter curve in
// (parameter, node) order.
type Fitter[T any] struct {
	model      SmileModel[T]
	names      []string
	forwards   []float64
	expiries   []float64
	strikes    [][]float64
	observed   []float64
	sigma      []float64
	nodes      [][]float64
	interps    []interp1d.Interpolator
	transforms []leastsquares.Transform
	offsets    []int
	nKnots     int
	solver     leastsquares.Solver
}

// New validates the shapes of the market data and of the per-parameter
// node points, interpolators and transforms, one entry per model parameter.
func New[T any](
	model SmileModel[T],
	forwards, expiries []float64,
	strikes, vols, errs [][]float64,
	nodePoints [][]float64,
	interps []interp1d.Interpolator,
	transforms []leastsquares.Transform,
	solver leastsquares.Solver,
) (*Fitter[T], error) {
	if model == nil {
		return nil, volerr.Construction("fitter.New: nil model")
	}
	n := len(expiries)
	if n == 0 || len(forwards) != n || len(strikes) != n || len(vols) != n || len(errs) != n {
		return nil, volerr.Construction("fitter.New: %d expiries, %d forwards, %d strike rows, %d vol rows, %d error rows",
			n, len(forwards), len(strikes), len(vols), len(errs))
	}

	f := &Fitter[T]{
		model:    model,
		names:    model.ParameterNames(),
		forwards: append([]float64(nil), forwards...),
		expiries: append([]float64(nil), expiries...),
		strikes:  make([][]float64, n),
		solver:   solver,
	}
	for i := range n {
		if !(forwards[i] > 0) || !(expiries[i] > 0) {
			return nil, volerr.Construction("fitter.New: forward %v and expiry %v at %d must be positive", forwards[i], expiries[i], i)
		}
		m := len(strikes[i])
		if m == 0 || len(vols[i]) != m || len(errs[i]) != m {
			return nil, volerr.Construction("fitter.New: expiry %d has %d strikes, %d vols, %d errors", i, m, len(vols[i]), len(errs[i]))
		}
		for j := range m {
			if !(strikes[i][j] > 0) || !(errs[i][j] > 0) {
				return nil, volerr.Construction("fitter.New: strike %v and error %v at (%d,%d) must be positive", strikes[i][j], errs[i][j], i, j)
			}
		}
		f.strikes[i] = append([]float64(nil), strikes[i]...)
		f.observed = append(f.observed, vols[i]...)
		f.sigma = append(f.sigma, errs[i]...)
	}

	nParams := len(f.names)
	if len(nodePoints) != nParams || len(interps) != nParams || len(transforms) != nParams {
		return nil, volerr.Construction("fitter.New: model has %d parameters; got %d node sets, %d interpolators, %d transforms",
			nParams, len(nodePoints), len(interps), len(transforms))
	}
	for p := range nParams {
		if len(nodePoints[p]) == 0 || !utils.IsStrictlyIncreasing(nodePoints[p]) {
			return nil, volerr.Construction("fitter.New: nodes of %s must be non-empty and strictly increasing", f.names[p])
		}
		if interps[p] == nil || transforms[p] == nil {
			return nil, volerr.Construction("fitter.New: missing interpolator or transform for %s", f.names[p])
		}
		f.offsets = append(f.offsets, f.nKnots)
		f.nKnots += len(nodePoints[p])
		f.nodes = append(f.nodes, append([]float64(nil), nodePoints[p]...))
	}
	f.interps = append([]interp1d.Interpolator(nil), interps...)
	f.transforms = append([]leastsquares.Transform(nil), transforms...)
	return f, nil
}

// NumKnots is the length of the unknown vector.
func (f *Fitter[T]) NumKnots() int { return f.nKnots }

// NumObservations is the number of market points.
func (f *Fitter[T]) NumObservations() int { return len(f.observed) }

func (f *Fitter[T]) checkLength(x []float64) error {
	if len(x) != f.nKnots {
		return volerr.Construction("fitter: %d values for %d knots", len(x), f.nKnots)
	}
	return nil
}

// bundles maps fitted-space knots to one natural-space node bundle per parameter.
func (f *Fitter[T]) bundles(fitted []float64) ([]*interp1d.DataBundle, error) {
	out := make([]*interp1d.DataBundle, len(f.names))
	for p := range f.names {
		ys := make([]float64, len(f.nodes[p]))
		for q := range ys {
			ys[q] = f.transforms[p].Inverse(fitted[f.offsets[p]+q])
		}
		b, err := interp1d.NewDataBundle(f.nodes[p], ys)
		if err != nil {
			return nil, err
		}
		out[p] = b
	}
	return out, nil
}

func (f *Fitter[T]) dataAt(bundles []*interp1d.DataBundle, t float64) (T, error) {
	params := make([]float64, len(f.names))
	for p, b := range bundles {
		params[p] = f.interps[p].Interpolate(b, t)
	}
	return f.model.NewData(params)
}

// ModelValues returns the model volatility at every market point for the
// given fitted-space knots, flattened expiry by expiry.
func (f *Fitter[T]) ModelValues(fitted []float64) ([]float64, error) {
	if err := f.checkLength(fitted); err != nil {
		return nil, err
	}
	bundles, err := f.bundles(fitted)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(f.observed))
	for i, t := range f.expiries {
		data, err := f.dataAt(bundles, t)
		if err != nil {
			return nil, err
		}
		for _, k := range f.strikes[i] {
			out = append(out, f.model.Volatility(f.forwards[i], k, t, data))
		}
	}
	return out, nil
}

// Jacobian is ∂ModelValues/∂fitted: the model adjoint times the inverse
// transform gradient times the curve's node sensitivity, one column block
// per parameter.
func (f *Fitter[T]) Jacobian(fitted []float64) (*mat.Dense, error) {
	if err := f.checkLength(fitted); err != nil {
		return nil, err
	}
	bundles, err := f.bundles(fitted)
	if err != nil {
		return nil, err
	}
	grad := make([]float64, f.nKnots)
	for p := range f.names {
		for q := range f.nodes[p] {
			c := f.offsets[p] + q
			grad[c] = f.transforms[p].InverseGradient(fitted[c])
		}
	}

	jac := mat.NewDense(len(f.observed), f.nKnots, nil)
	row := 0
	for i, t := range f.expiries {
		data, err := f.dataAt(bundles, t)
		if err != nil {
			return nil, err
		}
		sense := make([][]float64, len(f.names))
		for p, b := range bundles {
			sense[p] = f.interps[p].NodeSensitivities(b, t)
		}
		for _, k := range f.strikes[i] {
			adj := f.model.ModelAdjoint(f.forwards[i], k, t, data)
			for p := range f.names {
				for q, s := range sense[p] {
					c := f.offsets[p] + q
					jac.Set(row, c, adj[p]*grad[c]*s)
				}
			}
			row++
		}
	}
	return jac, nil
}

// Solve runs the least-squares fit from a natural-space starting vector.
func (f *Fitter[T]) Solve(start []float64) (*Result[T], error) {
	if err := f.checkLength(start); err != nil {
		return nil, err
	}
	fittedStart := make([]float64, f.nKnots)
	for p := range f.names {
		for q := range f.nodes[p] {
			c := f.offsets[p] + q
			fittedStart[c] = f.transforms[p].Transform(start[c])
		}
	}

	res, err := f.solver.Solve(f.observed, f.sigma, f.ModelValues, f.Jacobian, fittedStart)
	if err != nil {
		return nil, err
	}
	model, err := f.ModelValues(res.Parameters)
	if err != nil {
		return nil, err
	}
	residuals := make([]float64, len(model))
	floats.SubTo(residuals, f.observed, model)
	norm := floats.Norm(residuals, 2)
	if math.IsNaN(norm) {
		return nil, volerr.Numeric("fitter.Solve: non-finite residuals")
	}

	bundles, err := f.bundles(res.Parameters)
	if err != nil {
		return nil, err
	}
	natural := make([]float64, 0, f.nKnots)
	curves := make([]Curve, len(f.names))
	for p, b := range bundles {
		natural = append(natural, b.Ys()...)
		curves[p] = Curve{Name: f.names[p], bundle: b, interp: f.interps[p]}
	}
	return &Result[T]{
		Fitted:       res.Parameters,
		Natural:      natural,
		Curves:       curves,
		ChiSquare:    res.ChiSquare,
		ResidualNorm: norm,
		Iterations:   res.Iterations,
		Covariance:   res.Covariance,
		model:        f.model,
	}, nil
}
