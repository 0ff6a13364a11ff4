package smile_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/smile"
	"github.com/meenmo/volsurf/volerr"
)

func TestSABRFormulaDataValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                 string
		alpha, beta, rho, nu float64
		wantErr              bool
	}{
		{"valid", 0.2, 0.5, -0.3, 0.4, false},
		{"negative alpha", -0.1, 0.5, 0, 0.4, true},
		{"beta above range", 0.2, 2.5, 0, 0.4, true},
		{"rho below -1", 0.2, 0.5, -1.1, 0.4, true},
		{"negative nu", 0.2, 0.5, 0, -0.4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := smile.NewSABRFormulaData(tt.alpha, tt.beta, tt.rho, tt.nu)
			if tt.wantErr {
				assert.ErrorIs(t, err, volerr.ErrConstruction)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHaganLognormalWithoutVolOfVolIsFlat(t *testing.T) {
	t.Parallel()

	d := smile.SABRFormulaData{Alpha: 0.25, Beta: 1, Rho: -0.5, Nu: 0}
	for _, k := range []float64{50, 90, 100, 110, 200} {
		assert.InDelta(t, 0.25, smile.HaganVolatility(100, k, 2, d), 1e-14, "strike %v", k)
	}
}

func TestHaganContinuousAcrossSpecialCases(t *testing.T) {
	t.Parallel()

	const f, tt = 0.03, 1.5
	for _, beta := range []float64{0.3, 0.5, 0.9} {
		d := smile.SABRFormulaData{Alpha: 0.05, Beta: beta, Rho: -0.2, Nu: 0.45}
		atm := smile.HaganVolatility(f, f, tt, d)
		near := smile.HaganVolatility(f, f*(1+1e-6), tt, d)
		assert.InDelta(t, atm, near, 1e-6, "beta %v", beta)
	}

	general := smile.SABRFormulaData{Alpha: 0.2, Beta: 1 - 1e-6, Rho: 0.1, Nu: 0.3}
	lognormal := general
	lognormal.Beta = 1
	assert.InDelta(t,
		smile.HaganVolatility(100, 120, 1, lognormal),
		smile.HaganVolatility(100, 120, 1, general), 1e-5)
}

func TestHaganStrikeCutoff(t *testing.T) {
	t.Parallel()

	d := smile.SABRFormulaData{Alpha: 0.05, Beta: 0.5, Rho: 0, Nu: 0.3}
	zero := smile.HaganVolatility(0.03, 0, 1, d)
	assert.False(t, math.IsNaN(zero))
	assert.False(t, math.IsInf(zero, 0))
	assert.Equal(t, zero, smile.HaganVolatility(0.03, -1, 1, d))
	assert.Zero(t, smile.HaganVolatility(0.03, 0.02, 1, smile.SABRFormulaData{Beta: 0.5}))
}

func TestModelAdjointMatchesFiniteDifference(t *testing.T) {
	t.Parallel()

	const f, tt, h = 0.04, 2.0, 1e-6
	base := smile.SABRFormulaData{Alpha: 0.06, Beta: 0.5, Rho: -0.25, Nu: 0.5}
	bump := func(d smile.SABRFormulaData, i int, amt float64) smile.SABRFormulaData {
		switch i {
		case 0:
			d.Alpha += amt
		case 1:
			d.Beta += amt
		case 2:
			d.Rho += amt
		case 3:
			d.Nu += amt
		}
		return d
	}

	for _, k := range []float64{0.02, 0.035, 0.045, 0.07} {
		adj := smile.ModelAdjoint(f, k, tt, base)
		require.Len(t, adj, 4)
		for i := range adj {
			up := smile.HaganVolatility(f, k, tt, bump(base, i, h))
			down := smile.HaganVolatility(f, k, tt, bump(base, i, -h))
			fd := (up - down) / (2 * h)
			assert.InDelta(t, fd, adj[i], 1e-6*math.Max(1, math.Abs(fd)), "strike %v parameter %d", k, i)
		}
	}
}

func TestModelAdjointAtZeroAlpha(t *testing.T) {
	t.Parallel()

	d := smile.SABRFormulaData{Alpha: 0, Beta: 1, Rho: 0, Nu: 0}
	assert.Equal(t, []float64{1, 0, 0, 0}, smile.ModelAdjoint(100, 100, 1, d))
	assert.Equal(t, 1e7, smile.ModelAdjoint(100, 80, 1, d)[0])
}

func TestSABRModel(t *testing.T) {
	t.Parallel()

	m := smile.SABRModel{}
	assert.Equal(t, []string{"alpha", "beta", "rho", "nu"}, m.ParameterNames())

	d, err := m.NewData([]float64{0.2, 0.7, 0.1, 0.3})
	require.NoError(t, err)
	assert.Equal(t, smile.SABRFormulaData{Alpha: 0.2, Beta: 0.7, Rho: 0.1, Nu: 0.3}, d)
	assert.Equal(t, smile.HaganVolatility(1, 1.1, 1, d), m.Volatility(1, 1.1, 1, d))

	_, err = m.NewData([]float64{0.2, 0.7})
	assert.ErrorIs(t, err, volerr.ErrConstruction)
}

func TestCalibrateSABRATM(t *testing.T) {
	t.Parallel()

	// alpha = atmVol·F^(1-β) holds only when every t-correction vanishes:
	// with ν=0 that needs β=1, otherwise t=0. A β<1 smile keeps the
	// (1-β)²α²/(24F^(2-2β)) term.
	t.Run("closed form without corrections", func(t *testing.T) {
		tests := []struct {
			name      string
			t, beta   float64
			wantAlpha float64
		}{
			{"lognormal", 3, 1, 0.23},
			{"zero expiry", 0, 0.5, 2.3},
		}
		for _, tt := range tests {
			alpha, err := smile.CalibrateSABRATM(0.23, 100, tt.t, tt.beta, -0.4, 0)
			require.NoError(t, err, tt.name)
			assert.InDelta(t, tt.wantAlpha, alpha, 1e-15, tt.name)
		}

		alpha, err := smile.CalibrateSABRATM(0.23, 100, 3, 0.5, -0.4, 0)
		require.NoError(t, err)
		assert.Less(t, alpha, 2.3, "beta < 1 carries the expiry correction")
	})

	t.Run("reproduces the ATM volatility", func(t *testing.T) {
		const atmVol, f, tt = 0.3, 0.025, 5.0
		for _, beta := range []float64{0, 0.5, 0.9} {
			alpha, err := smile.CalibrateSABRATM(atmVol, f, tt, beta, -0.3, 0.4)
			require.NoError(t, err)
			d := smile.SABRFormulaData{Alpha: alpha, Beta: beta, Rho: -0.3, Nu: 0.4}
			assert.InDelta(t, atmVol, smile.HaganVolatility(f, f, tt, d), 1e-10, "beta %v", beta)
		}
	})

	t.Run("no positive root", func(t *testing.T) {
		_, err := smile.CalibrateSABRATM(0.2, 100, 10, 1, -1, 2)
		assert.ErrorIs(t, err, volerr.ErrDomain)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := smile.CalibrateSABRATM(-0.2, 100, 1, 0.5, 0, 0.3)
		assert.ErrorIs(t, err, volerr.ErrConstruction)
	})
}

func TestSABRInterpolatorRecoversSmile(t *testing.T) {
	t.Parallel()

	const f, tt = 100.0, 1.0
	truth := smile.SABRFormulaData{Alpha: 0.3, Beta: 0.9, Rho: -0.3, Nu: 0.5}
	strikes := []float64{70, 80, 90, 100, 110, 120, 135}
	vols := make([]float64, len(strikes))
	for i, k := range strikes {
		vols[i] = smile.HaganVolatility(f, k, tt, truth)
	}

	fitted, err := smile.NewSABRInterpolator(config.DefaultConfig).Fit(f, tt, strikes, vols)
	require.NoError(t, err)
	require.IsType(t, smile.SABRSmile{}, fitted)

	for _, k := range []float64{75, 95, 105, 130} {
		assert.InDelta(t, smile.HaganVolatility(f, k, tt, truth), fitted.Volatility(k), 1e-4, "strike %v", k)
	}
	p := fitted.(smile.SABRSmile).Parameters
	assert.Equal(t, 0.9, p.Beta)
	assert.InDelta(t, truth.Rho, p.Rho, 0.05)
}

func TestSABRInterpolatorFallsBackToSpline(t *testing.T) {
	t.Parallel()

	s, err := smile.NewSABRInterpolator(config.DefaultConfig).Fit(100, 1, []float64{90, 110}, []float64{0.25, 0.21})
	require.NoError(t, err)
	require.IsType(t, smile.SplineSmile{}, s)
	assert.InDelta(t, 0.23, s.Volatility(100), 1e-12)
	assert.InDelta(t, 0.25, s.Volatility(50), 1e-12)
}

func TestSplineInterpolator(t *testing.T) {
	t.Parallel()

	strikes := []float64{80, 90, 100, 110, 120}
	vols := []float64{0.3, 0.26, 0.24, 0.25, 0.27}
	s, err := smile.SplineInterpolator{}.Fit(100, 0.5, strikes, vols)
	require.NoError(t, err)
	for i, k := range strikes {
		assert.InDelta(t, vols[i], s.Volatility(k), 1e-12)
	}
	assert.InDelta(t, 0.27, s.Volatility(200), 1e-12)

	_, err = smile.SplineInterpolator{}.Fit(100, 0.5, strikes, vols[:3])
	assert.ErrorIs(t, err, volerr.ErrConstruction)
	_, err = smile.SplineInterpolator{}.Fit(100, 0, strikes, vols)
	assert.ErrorIs(t, err, volerr.ErrConstruction)
}
