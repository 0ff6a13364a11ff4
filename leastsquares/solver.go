// Package leastsquares solves weighted nonlinear least-squares problems
// with the Levenberg-Marquardt method and provides the parameter-limit
// transforms used to keep constrained parameters inside their domain.
package leastsquares

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/volerr"
)

// Func maps parameters to model values, one per observation.
type Func func(params []float64) ([]float64, error)

// JacobianFunc returns ∂model_i/∂param_j as an observations × parameters matrix.
type JacobianFunc func(params []float64) (*mat.Dense, error)

// Result is a converged fit.
type Result struct {
	Parameters []float64
	// ChiSquare is Σ((observed-model)/sigma)².
	ChiSquare  float64
	Iterations int
	// Covariance is (JᵀWJ)⁻¹ at the solution, nil when singular.
	Covariance *mat.Dense
}

// Solver holds the Levenberg-Marquardt settings.
type Solver struct {
	MaxIterations int
	// Tolerance is the relative chi-square improvement that ends the search.
	Tolerance float64
	Logger    *slog.Logger
}

// NewSolver reads iteration cap and tolerance from cfg.
func NewSolver(cfg config.Config) Solver {
	return Solver{MaxIterations: cfg.LMMaxIterations, Tolerance: cfg.LMTolerance}
}

const (
	initialLambda = 1e-3
	minLambda     = 1e-12
	maxLambda     = 1e12
	chiSquareZero = 1e-28
	// stallChiSquare is the per-observation chi-square below which a
	// stalled search counts as an exact fit.
	stallChiSquare = 1e-16
	// gradientTolerance bounds the cosine between each weighted Jacobian
	// column and the residual at an accepted stall.
	gradientTolerance = 1e-3
)

type problem struct {
	observed []float64
	sigma    []float64
	fn       Func
}

// weighted returns chi-square and the weighted residuals (observed-model)/sigma.
func (p problem) weighted(params []float64) (float64, *mat.VecDense, error) {
	model, err := p.fn(params)
	if err != nil {
		return 0, nil, err
	}
	if len(model) != len(p.observed) {
		return 0, nil, volerr.Construction("leastsquares: model returned %d values for %d observations", len(model), len(p.observed))
	}
	r := mat.NewVecDense(len(model), nil)
	for i, m := range model {
		r.SetVec(i, (p.observed[i]-m)/p.sigma[i])
	}
	chi2 := mat.Dot(r, r)
	if math.IsNaN(chi2) || math.IsInf(chi2, 0) {
		return 0, nil, volerr.Numeric("leastsquares: non-finite chi-square")
	}
	return chi2, r, nil
}

func finiteDifference(fn Func, nObs int) JacobianFunc {
	return func(params []float64) (*mat.Dense, error) {
		var evalErr error
		jac := mat.NewDense(nObs, len(params), nil)
		fd.Jacobian(jac, func(y, x []float64) {
			v, err := fn(x)
			if err != nil {
				if evalErr == nil {
					evalErr = err
				}
				return
			}
			copy(y, v)
		}, params, &fd.JacobianSettings{Formula: fd.Central})
		if evalErr != nil {
			return nil, evalErr
		}
		return jac, nil
	}
}

// Solve minimises Σ((observed_i - fn(p)_i)/sigma_i)² from start. A nil
// jac selects central finite differences. The search stops when the
// relative chi-square improvement falls below Tolerance or when
// chi-square is numerically zero. When no damping yields an improvement
// the point is kept only if it is stationary (see stationary); otherwise,
// as when iterations run out, the error is a volerr.ErrConvergence.
func (s Solver) Solve(observed, sigma []float64, fn Func, jac JacobianFunc, start []float64) (Result, error) {
	nObs, nParams := len(observed), len(start)
	if nObs == 0 || nParams == 0 {
		return Result{}, volerr.Construction("Solve: need observations and parameters, got %d and %d", nObs, nParams)
	}
	if len(sigma) != nObs {
		return Result{}, volerr.Construction("Solve: %d sigmas for %d observations", len(sigma), nObs)
	}
	for i, e := range sigma {
		if !(e > 0) {
			return Result{}, volerr.Construction("Solve: sigma[%d]=%v must be positive", i, e)
		}
	}
	if jac == nil {
		jac = finiteDifference(fn, nObs)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prob := problem{observed: observed, sigma: sigma, fn: fn}
	p := append([]float64(nil), start...)
	chi2, r, err := prob.weighted(p)
	if err != nil {
		return Result{}, err
	}

	lambda := initialLambda
	for iter := 1; iter <= s.MaxIterations; iter++ {
		if chi2 <= chiSquareZero {
			return s.result(prob, jac, p, chi2, iter-1)
		}
		a, g, err := normalEquations(jac, p, sigma, r)
		if err != nil {
			return Result{}, err
		}

		improved := false
		for lambda <= maxLambda {
			step, err := dampedStep(a, g, lambda)
			if err != nil {
				lambda *= 10
				continue
			}
			trial := make([]float64, nParams)
			floats.AddTo(trial, p, step)

			chiTrial, rTrial, err := prob.weighted(trial)
			if err != nil || chiTrial >= chi2 {
				lambda *= 10
				continue
			}

			improved = true
			done := chi2-chiTrial <= s.Tolerance*chiTrial
			p, chi2, r = trial, chiTrial, rTrial
			lambda = math.Max(lambda/10, minLambda)
			if done {
				logger.Debug("least squares converged", "iterations", iter, "chi2", chi2)
				return s.result(prob, jac, p, chi2, iter)
			}
			break
		}
		if !improved {
			if !stationary(a, g, chi2, nObs) {
				return Result{}, volerr.Convergence("Solve: stalled at a non-stationary point after %d iterations (chi2=%v)", iter, chi2)
			}
			logger.Debug("least squares at local minimum", "iterations", iter, "chi2", chi2)
			return s.result(prob, jac, p, chi2, iter)
		}
	}
	return Result{}, volerr.Convergence("Solve: no convergence after %d iterations (chi2=%v)", s.MaxIterations, chi2)
}

// normalEquations builds JᵀWJ and JᵀW r with W = diag(1/sigma²).
func normalEquations(jac JacobianFunc, p, sigma []float64, r *mat.VecDense) (*mat.Dense, *mat.VecDense, error) {
	j, err := jac(p)
	if err != nil {
		return nil, nil, err
	}
	rows, cols := j.Dims()
	if rows != len(sigma) || cols != len(p) {
		return nil, nil, volerr.Construction("leastsquares: jacobian is %dx%d, want %dx%d", rows, cols, len(sigma), len(p))
	}
	jw := mat.NewDense(rows, cols, nil)
	jw.Apply(func(i, _ int, v float64) float64 { return v / sigma[i] }, j)

	var a mat.Dense
	a.Mul(jw.T(), jw)
	var g mat.VecDense
	g.MulVec(jw.T(), r)
	return &a, &g, nil
}

// stationary reports whether a stalled point is a minimum: either the fit
// is exact to rounding, or every weighted Jacobian column c_j is
// orthogonal to the residual, |c_j·r| <= tol·|c_j|·|r|. A point where all
// columns vanish is not stationary.
func stationary(a *mat.Dense, g *mat.VecDense, chi2 float64, nObs int) bool {
	if chi2 <= math.Max(chiSquareZero, float64(nObs)*stallChiSquare) {
		return true
	}
	rNorm := math.Sqrt(chi2)
	n, _ := a.Dims()
	sensitive := false
	for j := 0; j < n; j++ {
		cNorm := math.Sqrt(a.At(j, j))
		if !(cNorm > 0) {
			continue
		}
		sensitive = true
		if math.Abs(g.AtVec(j)) > gradientTolerance*cNorm*rNorm {
			return false
		}
	}
	return sensitive
}

// dampedStep solves (A + λ diag(A)) δ = g.
func dampedStep(a *mat.Dense, g *mat.VecDense, lambda float64) ([]float64, error) {
	n, _ := a.Dims()
	m := mat.DenseCopyOf(a)
	for i := 0; i < n; i++ {
		d := a.At(i, i)
		if d <= 0 {
			d = 1e-12
		}
		m.Set(i, i, a.At(i, i)+lambda*d)
	}
	var step mat.VecDense
	if err := step.SolveVec(m, g); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = step.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, volerr.Numeric("leastsquares: non-finite step")
		}
	}
	return out, nil
}

func (s Solver) result(prob problem, jac JacobianFunc, p []float64, chi2 float64, iterations int) (Result, error) {
	res := Result{Parameters: p, ChiSquare: chi2, Iterations: iterations}
	_, r, err := prob.weighted(p)
	if err != nil {
		return Result{}, err
	}
	a, _, err := normalEquations(jac, p, prob.sigma, r)
	if err != nil {
		return res, nil
	}
	var cov mat.Dense
	if err := cov.Inverse(a); err == nil {
		res.Covariance = &cov
	}
	return res, nil
}
