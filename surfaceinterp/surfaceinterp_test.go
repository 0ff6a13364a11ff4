package surfaceinterp_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/market"
	"github.com/meenmo/volsurf/smile"
	"github.com/meenmo/volsurf/surfaceinterp"
	"github.com/meenmo/volsurf/volerr"
)

var strikeRow = []float64{80, 90, 100, 110, 120}

// flatBundle has one flat smile per expiry at the given level.
func flatBundle(t *testing.T, expiries, forwards, levels []float64) *market.SmileSurfaceDataBundle {
	t.Helper()
	strikes := make([][]float64, len(expiries))
	vols := make([][]float64, len(expiries))
	for i := range expiries {
		strikes[i] = strikeRow
		vols[i] = []float64{levels[i], levels[i], levels[i], levels[i], levels[i]}
	}
	b, err := market.NewSmileSurfaceDataBundleFromForwards(forwards, expiries, strikes, vols)
	require.NoError(t, err)
	return b
}

func skewBundle(t *testing.T) *market.SmileSurfaceDataBundle {
	t.Helper()
	expiries := []float64{0.25, 0.5, 1, 2, 5}
	forwards := []float64{100, 101, 102, 104, 110}
	strikes := make([][]float64, len(expiries))
	vols := make([][]float64, len(expiries))
	for i, e := range expiries {
		strikes[i] = make([]float64, len(strikeRow))
		vols[i] = make([]float64, len(strikeRow))
		for j, m := range []float64{0.8, 0.9, 1, 1.1, 1.2} {
			strikes[i][j] = forwards[i] * m
			vols[i][j] = 0.2 + 0.02*e/5 - 0.15*(m-1) + 0.3*(m-1)*(m-1)
		}
	}
	b, err := market.NewSmileSurfaceDataBundleFromForwards(forwards, expiries, strikes, vols)
	require.NoError(t, err)
	return b
}

func splineOptions() surfaceinterp.Options {
	return surfaceinterp.Options{SmileInterpolator: smile.SplineInterpolator{}}
}

func TestSingleExpiryIsFlatInTime(t *testing.T) {
	t.Parallel()

	f := 100.0
	truth := smile.SABRFormulaData{Alpha: 0.3, Beta: 0.9, Rho: -0.25, Nu: 0.4}
	vols := make([]float64, len(strikeRow))
	for j, k := range strikeRow {
		vols[j] = smile.HaganVolatility(f, k, 1, truth)
	}
	data, err := market.NewSmileSurfaceDataBundleFromForwards([]float64{f}, []float64{1}, [][]float64{strikeRow}, [][]float64{vols})
	require.NoError(t, err)

	ip := surfaceinterp.New(config.DefaultConfig, surfaceinterp.Options{})
	grid, err := ip.VolatilitySurface(data)
	require.NoError(t, err)
	fitted := grid.Provenance().Smiles()[0]

	for _, tt := range []float64{0.1, 1, 3, 10} {
		for _, m := range []float64{0.85, 1, 1.15} {
			got, err := grid.VolatilityForMoneyness(tt, m)
			require.NoError(t, err)
			assert.Equal(t, fitted.Volatility(f*m), got, "t=%v m=%v", tt, m)
		}
	}
}

func TestTransformCombinations(t *testing.T) {
	t.Parallel()

	data := skewBundle(t)
	expiries, forwards := data.Expiries(), data.Forwards()
	flat := flatBundle(t, expiries, forwards, []float64{0.2, 0.2, 0.2, 0.2, 0.2})

	for _, logTime := range []bool{false, true} {
		for _, intVar := range []bool{false, true} {
			for _, logValue := range []bool{false, true} {
				name := fmt.Sprintf("logTime=%v/intVar=%v/logValue=%v", logTime, intVar, logValue)
				t.Run(name, func(t *testing.T) {
					opts := splineOptions()
					opts.UseLogTime, opts.UseIntegratedVariance, opts.UseLogValue = logTime, intVar, logValue
					opts.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
					ip := surfaceinterp.New(config.DefaultConfig, opts)

					grid, err := ip.VolatilitySurface(data)
					require.NoError(t, err)
					smiles := grid.Provenance().Smiles()
					for i, e := range expiries {
						for _, m := range []float64{0.85, 1, 1.1} {
							got, err := grid.VolatilityForMoneyness(e, m)
							require.NoError(t, err)
							assert.InDelta(t, smiles[i].Volatility(forwards[i]*m), got, 1e-12, "expiry %d m=%v", i, m)
						}
					}

					consistent := !intVar || logTime == logValue
					if !consistent {
						return
					}
					flatGrid, err := ip.VolatilitySurface(flat)
					require.NoError(t, err)
					for _, tt := range []float64{0.1, 0.3, 0.75, 1.5, 3, 8} {
						got, err := flatGrid.VolatilityForMoneyness(tt, 1.05)
						require.NoError(t, err)
						assert.InDelta(t, 0.2, got, 1e-10, "t=%v", tt)
					}
				})
			}
		}
	}
}

func TestCubicThroughFourNearestExpiries(t *testing.T) {
	t.Parallel()

	data := skewBundle(t)
	expiries, forwards := data.Expiries(), data.Forwards()
	const m = 1.07

	tests := []struct {
		name  string
		t     float64
		first int
	}{
		{"first interval", 0.3, 0},
		{"second interval", 0.75, 0},
		{"middle interval", 1.5, 1},
		{"last interval", 3, 1},
	}
	for _, transformed := range []bool{false, true} {
		opts := splineOptions()
		opts.UseLogTime, opts.UseIntegratedVariance, opts.UseLogValue = transformed, transformed, transformed
		grid, err := surfaceinterp.New(config.DefaultConfig, opts).VolatilitySurface(data)
		require.NoError(t, err)
		smiles := grid.Provenance().Smiles()

		axis := func(x float64) float64 {
			if transformed {
				return math.Log(x)
			}
			return x
		}
		for _, tt := range tests {
			xs := make([]float64, 4)
			ys := make([]float64, 4)
			for p := range 4 {
				i := tt.first + p
				vol := smiles[i].Volatility(forwards[i] * math.Pow(m, math.Sqrt(expiries[i]/tt.t)))
				xs[p] = axis(expiries[i])
				ys[p] = vol * vol
				if transformed {
					ys[p] = math.Log(ys[p] * expiries[i])
				}
			}
			b, err := interp1d.NewDataBundle(xs, ys)
			require.NoError(t, err)
			variance := interp1d.NaturalCubic{}.Interpolate(b, axis(tt.t))
			if transformed {
				variance = math.Exp(variance) / tt.t
			}

			got, err := grid.VolatilityForMoneyness(tt.t, m)
			require.NoError(t, err)
			assert.InDelta(t, math.Sqrt(variance), got, 1e-12, "%s transformed=%v", tt.name, transformed)
		}
	}
}

func TestLinearBetweenTwoExpiries(t *testing.T) {
	t.Parallel()

	data := flatBundle(t, []float64{1, 2}, []float64{100, 100}, []float64{0.2, 0.3})
	grid, err := surfaceinterp.New(config.DefaultConfig, splineOptions()).VolatilitySurface(data)
	require.NoError(t, err)

	got, err := grid.VolatilityForMoneyness(1.5, 1)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(0.065), got, 1e-12)
}

func TestNegativeVarianceFallsBackToSmallerBracket(t *testing.T) {
	t.Parallel()

	data := flatBundle(t, []float64{1, 2}, []float64{100, 100}, []float64{0.3, 0.1})
	grid, err := surfaceinterp.New(config.DefaultConfig, splineOptions()).VolatilitySurface(data)
	require.NoError(t, err)

	got, err := grid.VolatilityForMoneyness(5, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, got, 1e-12)
}

func TestQueryDomain(t *testing.T) {
	t.Parallel()

	data := flatBundle(t, []float64{1, 2}, []float64{100, 100}, []float64{0.2, 0.2})
	grid, err := surfaceinterp.New(config.DefaultConfig, splineOptions()).VolatilitySurface(data)
	require.NoError(t, err)

	_, err = grid.VolatilityForMoneyness(0, 1)
	assert.ErrorIs(t, err, volerr.ErrDomain)
	_, err = grid.VolatilityForMoneyness(1, -0.5)
	assert.ErrorIs(t, err, volerr.ErrDomain)

	vol, err := grid.Volatility(1.5, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, vol, 1e-12)
}

func TestInconsistentTransformsWarn(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	opts := splineOptions()
	opts.UseIntegratedVariance, opts.UseLogTime = true, true
	opts.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	surfaceinterp.New(config.DefaultConfig, opts)
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	opts.UseLogValue = true
	surfaceinterp.New(config.DefaultConfig, opts)
	assert.Empty(t, buf.String())
}

// failingAt fails the fit of one expiry and splines the rest.
type failingAt float64

func (f failingAt) Fit(forward, t float64, strikes, vols []float64) (smile.Smile, error) {
	if t == float64(f) {
		return nil, volerr.Convergence("test smile")
	}
	return smile.SplineInterpolator{}.Fit(forward, t, strikes, vols)
}

func TestFitSmilesIsolatesFailures(t *testing.T) {
	t.Parallel()

	data := flatBundle(t, []float64{1, 2, 3}, []float64{100, 100, 100}, []float64{0.2, 0.2, 0.2})
	ip := surfaceinterp.New(config.DefaultConfig, surfaceinterp.Options{SmileInterpolator: failingAt(2), Concurrency: 2})

	smiles, err := ip.FitSmiles(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, volerr.ErrConvergence)

	var expiryErr *surfaceinterp.ExpiryError
	require.True(t, errors.As(err, &expiryErr))
	assert.Equal(t, 1, expiryErr.Index)
	assert.Equal(t, 2.0, expiryErr.Expiry)

	assert.NotNil(t, smiles[0])
	assert.Nil(t, smiles[1])
	assert.NotNil(t, smiles[2])

	_, err = ip.VolatilitySurface(data)
	assert.ErrorIs(t, err, volerr.ErrConvergence)
}

func TestBumpMatchesFullRebuild(t *testing.T) {
	t.Parallel()

	data := skewBundle(t)
	ip := surfaceinterp.New(config.DefaultConfig, splineOptions())
	base, err := ip.VolatilitySurface(data)
	require.NoError(t, err)

	quick, err := base.Bump(2, 1, 0.01)
	require.NoError(t, err)
	full, err := ip.BumpedVolatilitySurface(data, 2, 1, 0.01)
	require.NoError(t, err)

	assert.Equal(t, data.Volatilities(), base.Provenance().Data.Volatilities())
	assert.InDelta(t, data.Volatilities()[2][1]+0.01, quick.Provenance().Data.Volatilities()[2][1], 1e-15)

	for _, tt := range []float64{0.3, 1, 1.7, 4} {
		for _, m := range []float64{0.9, 1, 1.1} {
			a, err := quick.VolatilityForMoneyness(tt, m)
			require.NoError(t, err)
			b, err := full.VolatilityForMoneyness(tt, m)
			require.NoError(t, err)
			assert.InDelta(t, b, a, 1e-14)
		}
	}

	moved, err := quick.VolatilityForMoneyness(1, 0.9)
	require.NoError(t, err)
	orig, err := base.VolatilityForMoneyness(1, 0.9)
	require.NoError(t, err)
	assert.Greater(t, moved, orig)

	_, err = base.Bump(9, 0, 0.01)
	assert.ErrorIs(t, err, volerr.ErrConstruction)
}

func TestBumpedVolatilitySurfaces(t *testing.T) {
	t.Parallel()

	data := skewBundle(t)
	ip := surfaceinterp.New(config.DefaultConfig, splineOptions())
	bumped, err := ip.BumpedVolatilitySurfaces(data, 0.001)
	require.NoError(t, err)

	vols := data.Volatilities()
	require.Len(t, bumped, len(vols))
	for i := range vols {
		require.Len(t, bumped[i], len(vols[i]))
		for j := range vols[i] {
			got := bumped[i][j].Provenance().Data.Volatilities()
			assert.InDelta(t, vols[i][j]+0.001, got[i][j], 1e-15)
		}
	}
}

func TestGridSurfaceWithoutProvenance(t *testing.T) {
	t.Parallel()

	data := flatBundle(t, []float64{1, 2}, []float64{100, 100}, []float64{0.2, 0.2})
	ip := surfaceinterp.New(config.DefaultConfig, splineOptions())
	smiles, err := ip.FitSmiles(data)
	require.NoError(t, err)
	ms, err := ip.CombineSmiles(smiles, data)
	require.NoError(t, err)

	grid, err := surfaceinterp.NewGridSurface(ms)
	require.NoError(t, err)
	assert.Nil(t, grid.Provenance())
	_, err = grid.Bump(0, 0, 0.01)
	assert.ErrorIs(t, err, volerr.ErrConstruction)

	_, err = ip.CombineSmiles(smiles[:1], data)
	assert.ErrorIs(t, err, volerr.ErrConstruction)
}
