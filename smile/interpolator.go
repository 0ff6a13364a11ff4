package smile

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/leastsquares"
	"github.com/meenmo/volsurf/volerr"
)

// Smile is the fitted volatility of one expiry as a function of absolute strike.
type Smile interface {
	Volatility(k float64) float64
}

// Interpolator fits a Smile through one expiry's market quotes.
type Interpolator interface {
	Fit(forward, t float64, strikes, vols []float64) (Smile, error)
}

func errParameterCount(n int) error {
	return volerr.Construction("SABRModel: want %d parameters, got %d", len(sabrParameterNames), n)
}

func checkSmileInput(forward, t float64, strikes, vols []float64) error {
	if !(forward > 0) || !(t > 0) {
		return volerr.Construction("Fit: need forward>0 and t>0, got %v and %v", forward, t)
	}
	if len(strikes) == 0 || len(strikes) != len(vols) {
		return volerr.Construction("Fit: %d strikes for %d vols", len(strikes), len(vols))
	}
	for i := range strikes {
		if !(strikes[i] > 0) || !(vols[i] > 0) {
			return volerr.Construction("Fit: strike %v vol %v at %d must be positive", strikes[i], vols[i], i)
		}
	}
	return nil
}

// SABRSmile is a calibrated SABR smile at one expiry.
type SABRSmile struct {
	Forward    float64
	Expiry     float64
	Parameters SABRFormulaData
}

func (s SABRSmile) Volatility(k float64) float64 {
	return HaganVolatility(s.Forward, k, s.Expiry, s.Parameters)
}

// SplineSmile is a natural cubic spline through the quotes, flat beyond
// the outermost strikes.
type SplineSmile struct {
	nodes *interp1d.DataBundle
}

func (s SplineSmile) Volatility(k float64) float64 {
	return interp1d.NaturalCubic{}.Interpolate(s.nodes, k)
}

// SplineInterpolator fits SplineSmile.
type SplineInterpolator struct{}

func (SplineInterpolator) Fit(forward, t float64, strikes, vols []float64) (Smile, error) {
	if err := checkSmileInput(forward, t, strikes, vols); err != nil {
		return nil, err
	}
	b, err := interp1d.NewDataBundle(strikes, vols)
	if err != nil {
		return nil, err
	}
	return SplineSmile{nodes: b}, nil
}

// SABRInterpolator calibrates alpha, rho and nu at a fixed beta by
// least squares. Smiles with fewer than three quotes are splined.
type SABRInterpolator struct {
	Beta   float64
	Solver leastsquares.Solver
	Logger *slog.Logger
}

func NewSABRInterpolator(cfg config.Config) SABRInterpolator {
	return SABRInterpolator{Beta: cfg.SABRBeta, Solver: leastsquares.NewSolver(cfg)}
}

const (
	startNu        = 0.3
	quoteTolerance = 1e-4
)

var (
	alphaTransform = leastsquares.NewSingleRangeTransform(0, leastsquares.GreaterThan)
	nuTransform    = leastsquares.NewSingleRangeTransform(0, leastsquares.GreaterThan)
	rhoTransform   = mustDoubleRange(-1, 1)
)

func mustDoubleRange(lo, hi float64) leastsquares.DoubleRangeTransform {
	tr, err := leastsquares.NewDoubleRangeTransform(lo, hi)
	if err != nil {
		panic(err)
	}
	return tr
}

func (s SABRInterpolator) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s SABRInterpolator) Fit(forward, t float64, strikes, vols []float64) (Smile, error) {
	if err := checkSmileInput(forward, t, strikes, vols); err != nil {
		return nil, err
	}
	if len(strikes) < 3 {
		s.logger().Debug("too few quotes for SABR, using spline smile", "expiry", t, "quotes", len(strikes))
		return SplineInterpolator{}.Fit(forward, t, strikes, vols)
	}

	data := func(p []float64) SABRFormulaData {
		return SABRFormulaData{
			Alpha: alphaTransform.Inverse(p[0]),
			Beta:  s.Beta,
			Rho:   rhoTransform.Inverse(p[1]),
			Nu:    nuTransform.Inverse(p[2]),
		}
	}
	model := func(p []float64) ([]float64, error) {
		d := data(p)
		out := make([]float64, len(strikes))
		for i, k := range strikes {
			out[i] = HaganVolatility(forward, k, t, d)
		}
		return out, nil
	}
	jac := func(p []float64) (*mat.Dense, error) {
		d := data(p)
		grad := []float64{alphaTransform.InverseGradient(p[0]), rhoTransform.InverseGradient(p[1]), nuTransform.InverseGradient(p[2])}
		j := mat.NewDense(len(strikes), 3, nil)
		for i, k := range strikes {
			adj := ModelAdjoint(forward, k, t, d)
			j.Set(i, 0, adj[0]*grad[0])
			j.Set(i, 1, adj[2]*grad[1])
			j.Set(i, 2, adj[3]*grad[2])
		}
		return j, nil
	}

	alpha := s.startAlpha(forward, t, strikes, vols)
	start := []float64{alphaTransform.Transform(alpha), rhoTransform.Transform(0), nuTransform.Transform(startNu)}
	sigma := make([]float64, len(vols))
	for i := range sigma {
		sigma[i] = quoteTolerance
	}

	solver := s.Solver
	if solver.Logger == nil {
		solver.Logger = s.Logger
	}
	res, err := solver.Solve(vols, sigma, model, jac, start)
	if err != nil {
		return nil, err
	}
	fitted := data(res.Parameters)
	s.logger().Debug("SABR smile fitted", "expiry", t, "alpha", fitted.Alpha, "rho", fitted.Rho, "nu", fitted.Nu, "chi2", res.ChiSquare)
	return SABRSmile{Forward: forward, Expiry: t, Parameters: fitted}, nil
}

// startAlpha matches the ATM level of the quote closest to the forward.
func (s SABRInterpolator) startAlpha(forward, t float64, strikes, vols []float64) float64 {
	atm := 0
	for i, k := range strikes {
		if math.Abs(k-forward) < math.Abs(strikes[atm]-forward) {
			atm = i
		}
	}
	alpha, err := CalibrateSABRATM(vols[atm], forward, t, s.Beta, 0, startNu)
	if err != nil {
		return vols[atm] * math.Pow(forward, 1-s.Beta)
	}
	return alpha
}
