// Package surfaceinterp builds a continuous moneyness volatility surface
// from sparse per-expiry market smiles: every expiry is fitted with a
// smile model and the smiles are then joined across time in a
// configurable variance space.
package surfaceinterp

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/meenmo/volsurf/blackvol"
	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/market"
	"github.com/meenmo/volsurf/smile"
	"github.com/meenmo/volsurf/surface"
	"github.com/meenmo/volsurf/utils"
	"github.com/meenmo/volsurf/volerr"
)

// Options selects the smile model and the space in which smiles are
// interpolated across expiries.
type Options struct {
	// SmileInterpolator fits each expiry. Nil selects SABR at the
	// configured beta.
	SmileInterpolator smile.Interpolator

	// UseLogTime interpolates against ln t instead of t.
	UseLogTime bool
	// UseIntegratedVariance interpolates σ²t instead of σ².
	UseIntegratedVariance bool
	// UseLogValue interpolates the log of the variance.
	UseLogValue bool

	// Concurrency caps simultaneous smile fits. Zero uses config.Concurrency,
	// and zero there means one goroutine per expiry.
	Concurrency int

	Logger *slog.Logger
}

// Interpolator is immutable and safe for concurrent use.
type Interpolator struct {
	opts Options
}

func New(cfg config.Config, opts Options) *Interpolator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SmileInterpolator == nil {
		sabr := smile.NewSABRInterpolator(cfg)
		sabr.Logger = opts.Logger
		opts.SmileInterpolator = sabr
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = cfg.Concurrency
	}
	if opts.UseIntegratedVariance && opts.UseLogTime != opts.UseLogValue {
		opts.Logger.Warn("integrated variance with mismatched time and value transforms gives oscillatory surfaces",
			"use_log_time", opts.UseLogTime, "use_log_value", opts.UseLogValue)
	}
	return &Interpolator{opts: opts}
}

func (ip *Interpolator) Options() Options { return ip.opts }

// ExpiryError is the smile fit failure of one expiry.
type ExpiryError struct {
	Index  int
	Expiry float64
	Err    error
}

func (e *ExpiryError) Error() string {
	return fmt.Sprintf("expiry %d (t=%v): %v", e.Index, e.Expiry, e.Err)
}

func (e *ExpiryError) Unwrap() error { return e.Err }

func (ip *Interpolator) fitSmile(data *market.SmileSurfaceDataBundle, i int) (smile.Smile, error) {
	strikes, vols := data.Smile(i)
	s, err := ip.opts.SmileInterpolator.Fit(data.Forwards()[i], data.Expiries()[i], strikes, vols)
	if err != nil {
		return nil, &ExpiryError{Index: i, Expiry: data.Expiries()[i], Err: err}
	}
	return s, nil
}

// FitSmiles fits every expiry independently. Failed expiries are left nil
// and reported together as *ExpiryError values joined into one error.
func (ip *Interpolator) FitSmiles(data *market.SmileSurfaceDataBundle) ([]smile.Smile, error) {
	if data == nil {
		return nil, volerr.Construction("FitSmiles: nil data bundle")
	}
	n := data.NumExpiries()
	smiles := make([]smile.Smile, n)
	errs := make([]error, n)

	var g errgroup.Group
	if ip.opts.Concurrency > 0 {
		g.SetLimit(ip.opts.Concurrency)
	}
	for i := range n {
		g.Go(func() error {
			smiles[i], errs[i] = ip.fitSmile(data, i)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return smiles, err
	}
	return smiles, nil
}

// CombineSmiles joins fitted smiles into a moneyness surface. With one
// expiry the surface is flat in time. Outside the expiry range, or with
// fewer than four expiries, the two bracketing expiries are joined
// linearly; otherwise a natural cubic runs through the four nearest.
// Expiry i is read at strike F_i·m^√(T_i/t).
func (ip *Interpolator) CombineSmiles(smiles []smile.Smile, data *market.SmileSurfaceDataBundle) (*blackvol.MoneynessSurface, error) {
	if data == nil {
		return nil, volerr.Construction("CombineSmiles: nil data bundle")
	}
	if len(smiles) != data.NumExpiries() {
		return nil, volerr.Construction("CombineSmiles: %d smiles for %d expiries", len(smiles), data.NumExpiries())
	}
	for i, s := range smiles {
		if s == nil {
			return nil, volerr.Construction("CombineSmiles: no smile at expiry %d", i)
		}
	}
	j := joiner{
		opts:     ip.opts,
		smiles:   append([]smile.Smile(nil), smiles...),
		expiries: data.Expiries(),
		forwards: data.Forwards(),
	}
	return blackvol.NewMoneynessSurface(surface.Func(j.volatility), data.ForwardCurve())
}

type joiner struct {
	opts     Options
	smiles   []smile.Smile
	expiries []float64
	forwards []float64
}

func (j joiner) volatility(t, m float64) (float64, error) {
	if !(m >= 0) || math.IsInf(m, 1) {
		return 0, volerr.Domain("surfaceinterp: moneyness %v must be non-negative", m)
	}
	n := len(j.expiries)
	if n == 1 {
		return j.smiles[0].Volatility(j.forwards[0] * m), nil
	}
	if !(t > 0) {
		return 0, volerr.Domain("surfaceinterp: time %v must be positive", t)
	}

	index := utils.BracketIndex(j.expiries, t)
	lower, count := index, 2
	if n >= 4 && t >= j.expiries[0] && t <= j.expiries[n-1] {
		count = 4
		switch {
		case index == 0:
			lower = 0
		case index == n-2:
			lower = n - 4
		default:
			lower = index - 1
		}
	}

	xs := make([]float64, count)
	ys := make([]float64, count)
	for p := range count {
		i := lower + p
		k := j.forwards[i] * math.Pow(m, math.Sqrt(j.expiries[i]/t))
		xs[p] = j.timeAxis(j.expiries[i])
		ys[p] = j.toValue(j.smiles[i].Volatility(k), j.expiries[i])
	}
	b, err := interp1d.NewDataBundle(xs, ys)
	if err != nil {
		return 0, volerr.Numeric("surfaceinterp: at (t=%v, m=%v): %v", t, m, err)
	}

	var y float64
	if count == 4 {
		y = interp1d.NaturalCubic{}.Interpolate(b, j.timeAxis(t))
	} else {
		y = interp1d.Linear{Extrapolate: true}.Interpolate(b, j.timeAxis(t))
	}

	variance := j.fromValue(y, t)
	if variance < 0 || math.IsNaN(variance) {
		lo := j.smileVariance(index, t, m)
		hi := j.smileVariance(index+1, t, m)
		j.opts.Logger.Debug("negative interpolated variance, using smaller bracketing variance", "t", t, "moneyness", m, "variance", variance)
		variance = math.Min(lo, hi)
	}
	return math.Sqrt(variance), nil
}

func (j joiner) smileVariance(i int, t, m float64) float64 {
	k := j.forwards[i] * math.Pow(m, math.Sqrt(j.expiries[i]/t))
	vol := j.smiles[i].Volatility(k)
	return vol * vol
}

func (j joiner) timeAxis(t float64) float64 {
	if j.opts.UseLogTime {
		return math.Log(t)
	}
	return t
}

func (j joiner) toValue(vol, t float64) float64 {
	v := vol * vol
	if j.opts.UseIntegratedVariance {
		v *= t
	}
	if j.opts.UseLogValue {
		return math.Log(v)
	}
	return v
}

func (j joiner) fromValue(y, t float64) float64 {
	if j.opts.UseLogValue {
		y = math.Exp(y)
	}
	if j.opts.UseIntegratedVariance {
		y /= t
	}
	return y
}

// VolatilitySurface fits every smile and joins them. Any failed expiry
// fails the surface with every expiry error attached.
func (ip *Interpolator) VolatilitySurface(data *market.SmileSurfaceDataBundle) (*GridSurface, error) {
	smiles, err := ip.FitSmiles(data)
	if err != nil {
		return nil, err
	}
	return ip.gridSurface(data, smiles)
}

func (ip *Interpolator) gridSurface(data *market.SmileSurfaceDataBundle, smiles []smile.Smile) (*GridSurface, error) {
	ms, err := ip.CombineSmiles(smiles, data)
	if err != nil {
		return nil, err
	}
	return &GridSurface{
		surface: ms,
		provenance: &Provenance{
			Data:         data,
			Interpolator: ip,
			smiles:       smiles,
		},
	}, nil
}

// BumpedVolatilitySurface rebuilds the whole surface from a copy of data
// with quote (i, j) moved by amount. data is not modified.
func (ip *Interpolator) BumpedVolatilitySurface(data *market.SmileSurfaceDataBundle, i, j int, amount float64) (*GridSurface, error) {
	if data == nil {
		return nil, volerr.Construction("BumpedVolatilitySurface: nil data bundle")
	}
	bumped, err := data.WithBumpedPoint(i, j, amount)
	if err != nil {
		return nil, err
	}
	return ip.VolatilitySurface(bumped)
}

// BumpedVolatilitySurfaces bumps every quote in turn, result[i][j]
// being the surface with quote (i, j) moved. The base smiles are fitted
// once and each bump refits a single expiry.
func (ip *Interpolator) BumpedVolatilitySurfaces(data *market.SmileSurfaceDataBundle, amount float64) ([][]*GridSurface, error) {
	base, err := ip.VolatilitySurface(data)
	if err != nil {
		return nil, err
	}
	strikes := data.Strikes()
	out := make([][]*GridSurface, len(strikes))

	var g errgroup.Group
	if ip.opts.Concurrency > 0 {
		g.SetLimit(ip.opts.Concurrency)
	}
	for i := range strikes {
		out[i] = make([]*GridSurface, len(strikes[i]))
		for j := range strikes[i] {
			g.Go(func() error {
				s, err := base.Bump(i, j, amount)
				if err != nil {
					return fmt.Errorf("bump (%d,%d): %w", i, j, err)
				}
				out[i][j] = s
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
