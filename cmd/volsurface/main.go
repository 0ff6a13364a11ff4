package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/meenmo/volsurf/cmd/internal/smileio"
	"github.com/meenmo/volsurf/market"
	"github.com/meenmo/volsurf/smile"
	"github.com/meenmo/volsurf/surfaceinterp"
)

// surfaceInput is a SmileSet plus the interpolation options and the
// (time, moneyness) grid to evaluate. Times are year fractions.
type surfaceInput struct {
	smileio.SmileSet

	SmileModel            string `json:"smile_model" validate:"omitempty,oneof=sabr spline"`
	UseLogTime            bool   `json:"use_log_time"`
	UseIntegratedVariance bool   `json:"use_integrated_variance"`
	UseLogValue           bool   `json:"use_log_value"`

	Times     []float64 `json:"times" validate:"required,min=1,dive,gt=0"`
	Moneyness []float64 `json:"moneyness" validate:"required,min=1,dive,gt=0"`
}

type fitError struct {
	Index  int     `json:"index"`
	Expiry float64 `json:"expiry"`
	Error  string  `json:"error"`
}

type surfaceOutput struct {
	Expiries  []float64   `json:"expiries,omitempty"`
	Times     []float64   `json:"times,omitempty"`
	Moneyness []float64   `json:"moneyness,omitempty"`
	Vols      [][]float64 `json:"vols,omitempty"`
	FitErrors []fitError  `json:"fit_errors,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("volsurface", flag.ContinueOnError)
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
	var in surfaceInput
	if err := smileio.Decode(raw, &in); err != nil {
		return writeError(stdout, err.Error())
	}
	res, err := in.Resolve()
	if err != nil {
		return writeError(stdout, err.Error())
	}
	data, err := market.NewSmileSurfaceDataBundleFromForwards(res.Forwards, res.Expiries, res.Strikes, res.Vols)
	if err != nil {
		return writeError(stdout, err.Error())
	}

	opts := surfaceinterp.Options{
		UseLogTime:            in.UseLogTime,
		UseIntegratedVariance: in.UseIntegratedVariance,
		UseLogValue:           in.UseLogValue,
		Logger:                logger,
	}
	if in.SmileModel == "spline" {
		opts.SmileInterpolator = smile.SplineInterpolator{}
	}
	ip := surfaceinterp.New(cfg, opts)

	smiles, err := ip.FitSmiles(data)
	if err != nil {
		out := surfaceOutput{Expiries: res.Expiries, FitErrors: fitErrors(err), Error: "smile fit failed"}
		if err := smileio.WriteJSON(stdout, out); err != nil {
			logger.Error("writing output", "err", err)
		}
		return 1
	}
	surf, err := ip.CombineSmiles(smiles, data)
	if err != nil {
		return writeError(stdout, err.Error())
	}
	logger.Debug("surface built", "expiries", len(res.Expiries), "times", len(in.Times), "moneyness", len(in.Moneyness))

	out := surfaceOutput{
		Expiries:  res.Expiries,
		Times:     in.Times,
		Moneyness: in.Moneyness,
		Vols:      make([][]float64, len(in.Times)),
	}
	for i, t := range in.Times {
		out.Vols[i] = make([]float64, len(in.Moneyness))
		for j, m := range in.Moneyness {
			v, err := surf.VolatilityForMoneyness(t, m)
			if err != nil {
				return writeError(stdout, fmt.Sprintf("t=%v moneyness=%v: %v", t, m, err))
			}
			out.Vols[i][j] = v
		}
	}
	if err := smileio.WriteJSON(stdout, out); err != nil {
		logger.Error("writing output", "err", err)
		return 1
	}
	return 0
}

// fitErrors flattens the joined per-expiry failures of FitSmiles.
func fitErrors(err error) []fitError {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	out := make([]fitError, 0, len(errs))
	for _, e := range errs {
		var ee *surfaceinterp.ExpiryError
		if errors.As(e, &ee) {
			out = append(out, fitError{Index: ee.Index, Expiry: ee.Expiry, Error: ee.Err.Error()})
			continue
		}
		out = append(out, fitError{Index: -1, Error: e.Error()})
	}
	return out
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: volsurface [-config cfg.yaml] -input <path>")
	fmt.Fprintln(w, "Fit each market smile, join them across expiries and print the")
	fmt.Fprintln(w, "implied volatility on the requested (time, moneyness) grid.")
}

func writeError(stdout io.Writer, msg string) int {
	_ = smileio.WriteJSON(stdout, surfaceOutput{Error: msg})
	return 1
}
