package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/meenmo/volsurf/cmd/internal/smileio"
	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/fitter"
	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/leastsquares"
	"github.com/meenmo/volsurf/smile"
)

const defaultQuoteError = 1e-4

// fitInput is a SmileSet plus the curve definitions. Node times are year
// fractions per SABR parameter name and default to the smile expiries.
type fitInput struct {
	smileio.SmileSet

	Beta         *float64             `json:"beta,omitempty" validate:"omitempty,gte=0,lte=1"`
	DefaultError float64              `json:"default_error" validate:"gte=0"`
	Interpolator string               `json:"interpolator" validate:"omitempty,oneof=linear cubic"`
	NodeTimes    map[string][]float64 `json:"node_times" validate:"dive,keys,oneof=alpha beta rho nu,endkeys,min=1,dive,gt=0"`
}

type curveOutput struct {
	Name   string    `json:"name"`
	Times  []float64 `json:"times"`
	Values []float64 `json:"values"`
}

type fitOutput struct {
	Expiries     []float64     `json:"expiries,omitempty"`
	Curves       []curveOutput `json:"curves,omitempty"`
	ModelVols    [][]float64   `json:"model_vols,omitempty"`
	ChiSquare    float64       `json:"chi_square,omitempty"`
	ResidualNorm float64       `json:"residual_norm,omitempty"`
	Iterations   int           `json:"iterations,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sabrfit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inputPath := fs.String("input", "", "JSON input path (reads stdin if omitted)")
	configPath := fs.String("config", "", "YAML config path (optional)")
	help := fs.Bool("h", false, "Show help")
	fs.BoolVar(help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		usage(stderr)
		return 0
	}

	path := strings.TrimSpace(*inputPath)
	if path == "" && smileio.IsTerminal(stdin) {
		usage(stderr)
		return 2
	}

	cfg, logger, err := smileio.LoadConfig(*configPath, stderr)
	if err != nil {
		return writeError(stdout, err.Error())
	}
	raw, err := smileio.ReadInput(stdin, path)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("failed to read input: %v", err))
	}
	var in fitInput
	if err := smileio.Decode(raw, &in); err != nil {
		return writeError(stdout, err.Error())
	}
	out, err := calibrate(cfg, logger, in)
	if err != nil {
		return writeError(stdout, err.Error())
	}
	if err := smileio.WriteJSON(stdout, out); err != nil {
		logger.Error("writing output", "err", err)
		return 1
	}
	return 0
}

func calibrate(cfg config.Config, logger *slog.Logger, in fitInput) (*fitOutput, error) {
	res, err := in.Resolve()
	if err != nil {
		return nil, err
	}
	if in.Beta != nil {
		cfg.SABRBeta = *in.Beta
	}
	errs := res.Errors
	if errs == nil {
		quoteErr := in.DefaultError
		if quoteErr == 0 {
			quoteErr = defaultQuoteError
		}
		errs = make([][]float64, len(res.Strikes))
		for i, ks := range res.Strikes {
			errs[i] = make([]float64, len(ks))
			for j := range ks {
				errs[i][j] = quoteErr
			}
		}
	}

	var interp interp1d.Interpolator = interp1d.Linear{Extrapolate: true}
	if in.Interpolator == "cubic" {
		interp = interp1d.NaturalCubic{}
	}
	beta, err := leastsquares.NewDoubleRangeTransform(0, 2)
	if err != nil {
		return nil, err
	}
	rho, err := leastsquares.NewDoubleRangeTransform(-1, 1)
	if err != nil {
		return nil, err
	}
	positive := leastsquares.NewSingleRangeTransform(0, leastsquares.GreaterThan)
	transforms := []leastsquares.Transform{positive, beta, rho, positive}

	model := smile.SABRModel{}
	names := model.ParameterNames()
	nodes := make([][]float64, len(names))
	interps := make([]interp1d.Interpolator, len(names))
	for p, name := range names {
		nodes[p] = res.Expiries
		if ts, ok := in.NodeTimes[name]; ok {
			nodes[p] = ts
		}
		interps[p] = interp
	}

	solver := leastsquares.NewSolver(cfg)
	solver.Logger = logger
	f, err := fitter.New[smile.SABRFormulaData](model, res.Forwards, res.Expiries,
		res.Strikes, res.Vols, errs, nodes, interps, transforms, solver)
	if err != nil {
		return nil, err
	}

	start, err := startValues(cfg, logger, res, nodes)
	if err != nil {
		return nil, err
	}
	result, err := f.Solve(start)
	if err != nil {
		return nil, err
	}
	logger.Info("SABR surface calibrated", "knots", f.NumKnots(), "quotes", f.NumObservations(),
		"chi2", result.ChiSquare, "iterations", result.Iterations)

	out := &fitOutput{
		Expiries:     res.Expiries,
		ChiSquare:    result.ChiSquare,
		ResidualNorm: result.ResidualNorm,
		Iterations:   result.Iterations,
	}
	for _, c := range result.Curves {
		ts, vs := c.Nodes()
		out.Curves = append(out.Curves, curveOutput{Name: c.Name, Times: ts, Values: vs})
	}
	for i, t := range res.Expiries {
		d, err := result.Parameters(t)
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(res.Strikes[i]))
		for j, k := range res.Strikes[i] {
			row[j] = model.Volatility(res.Forwards[i], k, t, d)
		}
		out.ModelVols = append(out.ModelVols, row)
	}
	return out, nil
}

// startValues fits every expiry on its own at the configured beta and
// reads the per-expiry parameters off at each node, flat beyond the
// first and last expiry.
func startValues(cfg config.Config, logger *slog.Logger, res *smileio.Resolved, nodes [][]float64) ([]float64, error) {
	local := smile.NewSABRInterpolator(cfg)
	local.Logger = logger

	params := make([][]float64, 4)
	for i, t := range res.Expiries {
		d := smile.SABRFormulaData{Beta: cfg.SABRBeta, Nu: 0.3}
		fitted, err := local.Fit(res.Forwards[i], t, res.Strikes[i], res.Vols[i])
		if s, ok := fitted.(smile.SABRSmile); err == nil && ok {
			d = s.Parameters
		} else {
			logger.Debug("local SABR fit unavailable, starting from ATM level", "expiry", t, "err", err)
			atm := len(res.Strikes[i]) / 2
			alpha, aerr := smile.CalibrateSABRATM(res.Vols[i][atm], res.Forwards[i], t, d.Beta, 0, d.Nu)
			if aerr != nil {
				return nil, fmt.Errorf("start values at expiry %v: %w", t, aerr)
			}
			d.Alpha = alpha
		}
		for p, v := range d.Parameters() {
			params[p] = append(params[p], v)
		}
	}

	var start []float64
	for p := range params {
		b, err := interp1d.NewDataBundle(res.Expiries, params[p])
		if err != nil {
			return nil, err
		}
		for _, t := range nodes[p] {
			start = append(start, interp1d.Linear{}.Interpolate(b, t))
		}
	}
	return start, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: sabrfit [-config cfg.yaml] -input <path>")
	fmt.Fprintln(w, "Calibrate SABR alpha, beta, rho and nu term structures to every")
	fmt.Fprintln(w, "market smile at once and print the fitted curves.")
}

func writeError(stdout io.Writer, msg string) int {
	_ = smileio.WriteJSON(stdout, fitOutput{Error: msg})
	return 1
}
