package mixedlognormal_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/volsurf/black"
	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/forward"
	"github.com/meenmo/volsurf/mixedlognormal"
	"github.com/meenmo/volsurf/volerr"
)

func twoState(t *testing.T, drifts []float64) *mixedlognormal.Model {
	t.Helper()
	m, err := mixedlognormal.New(config.DefaultConfig, []float64{0.6, 0.4}, []float64{0.15, 0.35}, drifts)
	require.NoError(t, err)
	return m
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                    string
		weights, sigmas, drifts []float64
	}{
		{"empty", nil, nil, nil},
		{"weights do not sum to one", []float64{0.5, 0.4}, []float64{0.1, 0.2}, nil},
		{"non-positive weight", []float64{1.2, -0.2}, []float64{0.1, 0.2}, nil},
		{"non-positive sigma", []float64{0.5, 0.5}, []float64{0.1, 0}, nil},
		{"length mismatch", []float64{0.5, 0.5}, []float64{0.1}, nil},
		{"drift mismatch", []float64{0.5, 0.5}, []float64{0.1, 0.2}, []float64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mixedlognormal.New(config.DefaultConfig, tt.weights, tt.sigmas, tt.drifts)
			assert.ErrorIs(t, err, volerr.ErrConstruction)
		})
	}
}

func TestComponentForwardsRepriceForward(t *testing.T) {
	t.Parallel()

	m := twoState(t, []float64{0.02, -0.03})
	fs := m.ComponentForwards(100, 2)
	assert.InDelta(t, 100, 0.6*fs[0]+0.4*fs[1], 1e-12)
	assert.Greater(t, fs[0], fs[1])
}

func TestSingleComponentIsBlack(t *testing.T) {
	t.Parallel()

	m, err := mixedlognormal.New(config.DefaultConfig, []float64{1}, []float64{0.25}, []float64{0.05})
	require.NoError(t, err)
	fc, err := forward.NewDriftCurve(100, 0.01)
	require.NoError(t, err)
	iv, err := m.ImpliedVolatilitySurface(fc)
	require.NoError(t, err)
	lv, err := m.LocalVolatilitySurface(fc)
	require.NoError(t, err)

	for _, k := range []float64{60, 95, 100, 130} {
		vol, err := iv.Volatility(1, k)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, vol, 1e-8, "strike %v", k)

		local, err := lv.Value(1, k)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, local, 1e-12, "strike %v", k)
	}
}

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	t.Parallel()

	m := twoState(t, []float64{0.02, -0.03})
	fc, err := forward.NewDriftCurve(100, 0.01)
	require.NoError(t, err)
	prices, err := m.PriceSurface(fc)
	require.NoError(t, err)
	iv, err := m.ImpliedVolatilitySurface(fc)
	require.NoError(t, err)

	for _, tt := range []float64{0.25, 1, 3} {
		f := fc.Forward(tt)
		for _, k := range []float64{70, 90, 100, 110, 140} {
			price, err := prices.Value(tt, k)
			require.NoError(t, err)
			vol, err := iv.Volatility(tt, k)
			require.NoError(t, err)
			assert.Greater(t, vol, 0.1)
			assert.Less(t, vol, 0.5)
			assert.InEpsilon(t, price, black.Price(f, k, tt, vol, k >= f), 1e-7, "t=%v k=%v", tt, k)
		}
	}
}

func TestImpliedVolatilityStaysFiniteInTheWings(t *testing.T) {
	t.Parallel()

	m := twoState(t, nil)
	for _, k := range []float64{1e-8, 1e-3, 1e3, 1e10} {
		vol, err := m.ImpliedVolatility(1, k, 1)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(vol) || math.IsInf(vol, 0), "strike %v", k)
		assert.Greater(t, vol, 0.0)
	}
}

func TestLocalVolatilityMatchesDupire(t *testing.T) {
	t.Parallel()

	m := twoState(t, []float64{0.02, -0.03})
	fc, err := forward.NewConstantCurve(100)
	require.NoError(t, err)
	prices, err := m.PriceSurface(fc)
	require.NoError(t, err)
	lv, err := m.LocalVolatilitySurface(fc)
	require.NoError(t, err)

	price := func(tt, k float64) float64 {
		p, err := prices.Value(tt, k)
		require.NoError(t, err)
		return p
	}
	const ht, hk = 1e-4, 0.1
	for _, q := range []struct{ t, k float64 }{{1, 80}, {1, 125}, {0.5, 95}, {2, 110}} {
		ct := (price(q.t+ht, q.k) - price(q.t-ht, q.k)) / (2 * ht)
		ckk := (price(q.t, q.k+hk) - 2*price(q.t, q.k) + price(q.t, q.k-hk)) / (hk * hk)
		dupire := math.Sqrt(2 * ct / (q.k * q.k * ckk))

		local, err := lv.Value(q.t, q.k)
		require.NoError(t, err)
		assert.InEpsilon(t, dupire, local, 1e-5, "t=%v k=%v", q.t, q.k)
	}
}

func TestLocalVolatilityTails(t *testing.T) {
	t.Parallel()

	flat := twoState(t, nil)
	for _, x := range []float64{math.Exp(-8), math.Exp(8)} {
		v, err := flat.LocalVolatility(0.5, x)
		require.NoError(t, err)
		assert.InDelta(t, 0.35, v, 1e-9, "x=%v", x)
	}

	drifting := twoState(t, []float64{0.02, -0.03})
	for _, x := range []float64{math.Exp(-12), math.Exp(-8), 1, math.Exp(8), math.Exp(12)} {
		v, err := drifting.LocalVolatility(0.5, x)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "x=%v", x)
		assert.Greater(t, v, 0.0)
	}
}

func TestLocalVolatilityShortExpiryRescaling(t *testing.T) {
	t.Parallel()

	m := twoState(t, []float64{0.02, -0.03})
	minTime := config.DefaultConfig.MinTime

	atm, err := m.LocalVolatility(1e-6, 1)
	require.NoError(t, err)
	atMin, err := m.LocalVolatility(minTime, 1)
	require.NoError(t, err)
	assert.Equal(t, atMin, atm)

	short, err := m.LocalVolatility(minTime/100, 1.01)
	require.NoError(t, err)
	scaled, err := m.LocalVolatility(minTime, math.Pow(1.01, 10))
	require.NoError(t, err)
	assert.InDelta(t, scaled, short, 1e-12)
}

func TestQueriesOutsideDomain(t *testing.T) {
	t.Parallel()

	m := twoState(t, nil)
	fc, err := forward.NewConstantCurve(100)
	require.NoError(t, err)
	prices, err := m.PriceSurface(fc)
	require.NoError(t, err)

	_, err = prices.Value(0, 100)
	assert.ErrorIs(t, err, volerr.ErrDomain)
	_, err = prices.Value(1, -5)
	assert.ErrorIs(t, err, volerr.ErrDomain)
	_, err = m.LocalVolatility(-1, 1)
	assert.ErrorIs(t, err, volerr.ErrDomain)
	_, err = m.ImpliedVolatility(100, 0, 1)
	assert.ErrorIs(t, err, volerr.ErrDomain)

	_, err = m.PriceSurface(nil)
	assert.ErrorIs(t, err, volerr.ErrConstruction)
}
