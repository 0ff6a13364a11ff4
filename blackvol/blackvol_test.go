package blackvol_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/volsurf/black"
	"github.com/meenmo/volsurf/blackvol"
	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/forward"
	"github.com/meenmo/volsurf/interp1d"
	"github.com/meenmo/volsurf/rootfind"
	"github.com/meenmo/volsurf/strike"
	"github.com/meenmo/volsurf/surface"
	"github.com/meenmo/volsurf/volerr"
)

func flatForward(t *testing.T) *forward.DriftCurve {
	t.Helper()
	fc, err := forward.NewDriftCurve(100, 0.02)
	require.NoError(t, err)
	return fc
}

// smileLogMoneyness is a mild, arbitrage-free smile in log-moneyness.
func smileLogMoneyness(t *testing.T) *blackvol.LogMoneynessSurface {
	t.Helper()
	s, err := blackvol.NewLogMoneynessSurface(surface.Func(func(tt, x float64) (float64, error) {
		return 0.2 - 0.05*x + 0.1*x*x/(1+x*x) + 0.01*tt, nil
	}), flatForward(t))
	require.NoError(t, err)
	return s
}

func TestConstructorsRejectNil(t *testing.T) {
	t.Parallel()

	_, err := blackvol.NewStrikeSurface(nil)
	assert.ErrorIs(t, err, volerr.ErrConstruction)
	_, err = blackvol.NewDeltaSurface(surface.NewConstant(0.2), nil)
	assert.ErrorIs(t, err, volerr.ErrConstruction)
	_, err = blackvol.NewMoneynessSurface(nil, flatForward(t))
	assert.ErrorIs(t, err, volerr.ErrConstruction)
	_, err = blackvol.NewLogMoneynessSurface(nil, flatForward(t))
	assert.ErrorIs(t, err, volerr.ErrConstruction)
}

func TestVariantsReadTheirCoordinate(t *testing.T) {
	t.Parallel()

	fc := flatForward(t)
	echo := surface.Func(func(_, x float64) (float64, error) { return x, nil })

	m, _ := blackvol.NewMoneynessSurface(echo, fc)
	l, _ := blackvol.NewLogMoneynessSurface(echo, fc)
	s, _ := blackvol.NewStrikeSurface(echo)

	f := fc.Forward(1)
	got, err := m.Volatility(1, 110)
	require.NoError(t, err)
	assert.InDelta(t, 110/f, got, 1e-15)

	got, err = l.Volatility(1, 110)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(110/f), got, 1e-15)

	got, err = s.Volatility(1, 110)
	require.NoError(t, err)
	assert.Equal(t, 110.0, got)

	k, err := m.AbsoluteStrike(1, 1.1)
	require.NoError(t, err)
	assert.InDelta(t, 1.1*f, k, 1e-12)
	k, err = l.AbsoluteStrike(1, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, f*math.Exp(0.1), k, 1e-12)

	_, err = l.Volatility(1, 0)
	assert.ErrorIs(t, err, volerr.ErrDomain)

	x, _ := strike.NewLogMoneyness(0.25)
	got, err = l.VolatilityAt(1, x)
	require.NoError(t, err)
	assert.Equal(t, 0.25, got)
}

func TestDeltaHalfIsNearATMOnFlatSurface(t *testing.T) {
	t.Parallel()

	fc := flatForward(t)
	d, err := blackvol.NewDeltaSurface(surface.NewConstant(0.2), fc)
	require.NoError(t, err)

	const expiry = 1.0
	k, err := d.AbsoluteStrike(expiry, 0.5)
	require.NoError(t, err)
	// The zero-delta-straddle strike F·exp(σ²t/2).
	assert.InDelta(t, fc.Forward(expiry)*math.Exp(0.5*0.04*expiry), k, 1e-9)

	vol, err := d.Volatility(expiry, k)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, vol, 1e-12)

	delta, err := blackvol.DefaultConverter().DeltaForStrike(d, expiry, k)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, delta, 1e-9)
}

func TestDefaultConverterIsFreshEachCall(t *testing.T) {
	t.Parallel()

	loose := blackvol.DefaultConverter().WithFinder(rootfind.Brent{Tolerance: 1e-2, MaxIterations: 3})
	assert.NotEqual(t, loose, blackvol.DefaultConverter())
	assert.Equal(t, blackvol.NewConverter(config.DefaultConfig), blackvol.DefaultConverter())
}

func TestAbsoluteStrikeDecreasesWithDelta(t *testing.T) {
	t.Parallel()

	d := blackvol.DefaultConverter().LogMoneynessToDelta(smileLogMoneyness(t))
	prev := math.Inf(1)
	for _, delta := range []float64{0.05, 0.1, 0.25, 0.4, 0.5, 0.6, 0.75, 0.9, 0.95} {
		k, err := d.AbsoluteStrike(0.5, delta)
		require.NoError(t, err, "delta=%v", delta)
		assert.Less(t, k, prev, "delta=%v", delta)
		prev = k
	}
}

func TestStrikeDeltaRoundTrip(t *testing.T) {
	t.Parallel()

	conv := blackvol.DefaultConverter()
	src := smileLogMoneyness(t)
	d := conv.LogMoneynessToDelta(src)

	for _, expiry := range []float64{0.25, 1, 3} {
		for _, delta := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
			k, err := conv.StrikeForDelta(d, expiry, delta)
			require.NoError(t, err)

			back, err := conv.DeltaForStrike(d, expiry, k)
			require.NoError(t, err)
			assert.InDelta(t, delta, back, 1e-8, "t=%v delta=%v", expiry, delta)

			// The delta surface and its source agree at the matching strike.
			want, err := src.Volatility(expiry, k)
			require.NoError(t, err)
			got, err := d.VolatilityForDelta(expiry, delta)
			require.NoError(t, err)
			assert.InDelta(t, want, got, 1e-9)

			// And the strike really has that Black delta.
			assert.InDelta(t, delta, black.ForwardDelta(d.ForwardCurve().Forward(expiry), k, expiry, got, true), 1e-9)
		}
	}
}

func TestDeltaToLogMoneynessInvertsLogMoneynessToDelta(t *testing.T) {
	t.Parallel()

	conv := blackvol.DefaultConverter()
	src := smileLogMoneyness(t)
	back := conv.DeltaToLogMoneyness(conv.LogMoneynessToDelta(src))

	for _, x := range []float64{-0.5, -0.1, 0, 0.2, 0.6} {
		want, err := src.VolatilityForLogMoneyness(1, x)
		require.NoError(t, err)
		got, err := back.VolatilityForLogMoneyness(1, x)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-8, "x=%v", x)
	}
}

func TestAlgebraicConversionsAgree(t *testing.T) {
	t.Parallel()

	conv := blackvol.DefaultConverter()
	fc := flatForward(t)
	src, err := blackvol.NewStrikeSurface(surface.Func(func(tt, k float64) (float64, error) {
		return 0.2 + 0.001*(k-100) + 0.01*tt, nil
	}))
	require.NoError(t, err)

	m, err := conv.ToMoneyness(src, fc)
	require.NoError(t, err)
	l, err := conv.ToLogMoneyness(src, fc)
	require.NoError(t, err)
	back, err := conv.ToStrike(m)
	require.NoError(t, err)
	viaLog, err := conv.ToStrike(conv.MoneynessToLogMoneyness(m))
	require.NoError(t, err)
	viaMoneyness := conv.MoneynessToStrike(conv.LogMoneynessToMoneyness(l))

	for _, k := range []float64{60, 95, 100, 130} {
		want, _ := src.Volatility(2, k)
		for name, s := range map[string]blackvol.Surface{"moneyness": m, "log": l, "back": back, "viaLog": viaLog, "viaMoneyness": viaMoneyness} {
			got, err := s.Volatility(2, k)
			require.NoError(t, err, name)
			assert.InDelta(t, want, got, 1e-12, "%s k=%v", name, k)
		}
	}

	_, err = conv.ToMoneyness(src, nil)
	assert.ErrorIs(t, err, volerr.ErrConstruction)

	_, err = back.Volatility(1, -5)
	assert.ErrorIs(t, err, volerr.ErrDomain)
	_, err = conv.LogMoneynessToMoneyness(l).VolatilityForMoneyness(1, 0)
	assert.ErrorIs(t, err, volerr.ErrDomain)
}

func TestConversionFailsOnArbitrage(t *testing.T) {
	t.Parallel()

	// Variance grows so fast in |x| that no log-moneyness has delta 1/2.
	steep, err := blackvol.NewLogMoneynessSurface(surface.Func(func(_, x float64) (float64, error) {
		return 0.2 + 5*math.Abs(x), nil
	}), flatForward(t))
	require.NoError(t, err)

	d := blackvol.DefaultConverter().LogMoneynessToDelta(steep)
	_, err = d.VolatilityForDelta(1, 0.5)
	assert.ErrorIs(t, err, volerr.ErrDomain)
	assert.Contains(t, err.Error(), "arbitrage")
}

type kindCounter struct{}

func (kindCounter) VisitStrike(*blackvol.StrikeSurface) (string, error) { return "strike", nil }
func (kindCounter) VisitDelta(*blackvol.DeltaSurface) (string, error)   { return "delta", nil }
func (kindCounter) VisitMoneyness(*blackvol.MoneynessSurface) (string, error) {
	return "moneyness", nil
}
func (kindCounter) VisitLogMoneyness(*blackvol.LogMoneynessSurface) (string, error) {
	return "log-moneyness", nil
}

func TestVisitorDispatch(t *testing.T) {
	t.Parallel()

	fc := flatForward(t)
	c := surface.NewConstant(0.2)
	s, _ := blackvol.NewStrikeSurface(c)
	d, _ := blackvol.NewDeltaSurface(c, fc)
	m, _ := blackvol.NewMoneynessSurface(c, fc)
	l, _ := blackvol.NewLogMoneynessSurface(c, fc)

	for _, surf := range []blackvol.Surface{s, d, m, l} {
		name, err := blackvol.Accept[string](surf, kindCounter{})
		require.NoError(t, err)
		assert.Equal(t, surf.Kind().String(), name)
	}

	_, err := blackvol.Accept[string](nil, kindCounter{})
	assert.ErrorIs(t, err, volerr.ErrConstruction)
}

func TestWithShiftKeepsVariant(t *testing.T) {
	t.Parallel()

	fc := flatForward(t)
	grid, err := surface.NewInterpolated(
		[]float64{1, 1, 1}, []float64{0.9, 1, 1.1}, []float64{0.22, 0.2, 0.21},
		interp1d.Linear{}, interp1d.Linear{})
	require.NoError(t, err)
	m, _ := blackvol.NewMoneynessSurface(grid, fc)

	shifted, err := blackvol.WithShift(m, surface.PointShift{T: 1, X: 1, Amount: 0.01})
	require.NoError(t, err)
	require.Equal(t, m.Kind(), shifted.Kind())
	got, err := shifted.(*blackvol.MoneynessSurface).VolatilityForMoneyness(1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.21, got, 1e-15)

	d, _ := blackvol.NewDeltaSurface(surface.NewConstant(0.2), fc)
	_, err = blackvol.WithShift(d, surface.PointShift{T: 1, X: 0.5, Amount: 0.01})
	assert.ErrorIs(t, err, volerr.ErrConstruction)

	par, err := blackvol.WithShift(d, surface.ParallelShift{Amount: 0.1, Multiplicative: true})
	require.NoError(t, err)
	got, err = par.(*blackvol.DeltaSurface).VolatilityForDelta(1, 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 0.22, got, 1e-15)

	rebuilt, err := blackvol.WithSurface(m, surface.NewConstant(0.3))
	require.NoError(t, err)
	got, err = rebuilt.Volatility(1, 100)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got)
}
