package blackvol

import (
	"errors"
	"fmt"
	"math"

	"github.com/meenmo/volsurf/black"
	"github.com/meenmo/volsurf/config"
	"github.com/meenmo/volsurf/forward"
	"github.com/meenmo/volsurf/rootfind"
	"github.com/meenmo/volsurf/surface"
	"github.com/meenmo/volsurf/volerr"
)

// Converter re-expresses a surface in another strike parameterization.
// Every returned surface is lazy: each query runs the conversion, so a
// query can fail with volerr.ErrDomain when the source surface admits
// arbitrage there.
type Converter struct {
	finder      rootfind.Finder
	bracketer   rootfind.Bracketer
	bound       float64
	deltaCutoff float64
}

// NewConverter uses Brent's method and the bracketing policy from cfg.
func NewConverter(cfg config.Config) Converter {
	return Converter{
		finder:      rootfind.NewBrent(cfg),
		bracketer:   rootfind.NewBracketer(cfg),
		bound:       cfg.LogMoneynessBound,
		deltaCutoff: cfg.DeltaCutoff,
	}
}

// DefaultConverter returns a Converter built from config.DefaultConfig.
func DefaultConverter() Converter {
	return NewConverter(config.DefaultConfig)
}

// WithFinder returns a copy that solves with f.
func (c Converter) WithFinder(f rootfind.Finder) Converter {
	c.finder = f
	return c
}

// solve brackets the root of f starting from the estimate f(0) and widens
// the bracket 25% past it before handing over to the root finder.
func (c Converter) solve(f rootfind.Func) (float64, error) {
	if c.finder == nil {
		c = DefaultConverter()
	}
	estimate, err := f(0)
	if err != nil {
		return 0, err
	}
	if estimate == 0 {
		return 0, nil
	}
	lower, upper, err := c.bracketer.Bracket(f, 0, 1.25*estimate, -c.bound, c.bound)
	if err != nil {
		return 0, err
	}
	return c.finder.Root(f, lower, upper)
}

func arbitrageSide(highStrike bool) string {
	if highStrike {
		return "high-strike"
	}
	return "low-strike"
}

func wrapNoRoot(err error, highStrike bool, format string, args ...any) error {
	if errors.Is(err, volerr.ErrDomain) {
		return volerr.Domain("%s: no solution, the surface likely has %s arbitrage: %v",
			fmt.Sprintf(format, args...), arbitrageSide(highStrike), err)
	}
	return err
}

// volatilityAtLogMoneyness solves for d1 such that a delta surface read at
// N(d1) reproduces log-moneyness x, and returns the volatility there.
func (c Converter) volatilityAtLogMoneyness(deltaSurf surface.Surface, t, x float64) (float64, error) {
	if !(t > 0) {
		return 0, volerr.Domain("delta to log-moneyness: expiry %v must be positive", t)
	}
	rootT := math.Sqrt(t)
	target := func(d1 float64) (float64, error) {
		delta := black.Normal.CDF(d1)
		if delta < c.deltaCutoff || delta > 1-c.deltaCutoff {
			return -d1, nil
		}
		vol, err := deltaSurf.Value(t, delta)
		if err != nil {
			return 0, err
		}
		if !(vol > 0) {
			return 0, volerr.Domain("delta to log-moneyness: volatility %v at delta %v", vol, delta)
		}
		return (-x+0.5*vol*vol*t)/(vol*rootT) - d1, nil
	}
	d1, err := c.solve(target)
	if err != nil {
		return 0, wrapNoRoot(err, x > 0, "delta to log-moneyness at t=%v, x=%v", t, x)
	}
	delta := math.Min(math.Max(black.Normal.CDF(d1), c.deltaCutoff), 1-c.deltaCutoff)
	return deltaSurf.Value(t, delta)
}

// volatilityAtDelta solves σ(t,x)²t/2 - N⁻¹(δ)σ(t,x)√t - x = 0 for the
// log-moneyness x of a given delta and returns the volatility there.
func (c Converter) volatilityAtDelta(logSurf surface.Surface, t, delta float64) (float64, error) {
	if !(t > 0) {
		return 0, volerr.Domain("log-moneyness to delta: expiry %v must be positive", t)
	}
	if delta <= 0 {
		return logSurf.Value(t, c.bound)
	}
	if delta >= 1 {
		return logSurf.Value(t, -c.bound)
	}
	rootT := math.Sqrt(t)
	q := black.Normal.Quantile(delta)
	target := func(x float64) (float64, error) {
		vol, err := logSurf.Value(t, x)
		if err != nil {
			return 0, err
		}
		return 0.5*vol*vol*t - q*vol*rootT - x, nil
	}
	x, err := c.solve(target)
	if err != nil {
		return 0, wrapNoRoot(err, delta < 0.5, "log-moneyness to delta at t=%v, delta=%v", t, delta)
	}
	return logSurf.Value(t, x)
}

// ---------------------------------------------------------------------------
// Implicit conversions
// ---------------------------------------------------------------------------

// DeltaToLogMoneyness re-expresses a delta surface in log-moneyness.
func (c Converter) DeltaToLogMoneyness(d *DeltaSurface) *LogMoneynessSurface {
	under := d.surf
	return &LogMoneynessSurface{
		surf: surface.Func(func(t, x float64) (float64, error) {
			return c.volatilityAtLogMoneyness(under, t, x)
		}),
		fc: d.fc,
	}
}

// LogMoneynessToDelta re-expresses a log-moneyness surface in delta.
func (c Converter) LogMoneynessToDelta(l *LogMoneynessSurface) *DeltaSurface {
	under := l.surf
	return &DeltaSurface{
		surf: surface.Func(func(t, delta float64) (float64, error) {
			return c.volatilityAtDelta(under, t, delta)
		}),
		fc:   l.fc,
		conv: c,
	}
}

// DeltaForStrike is the call delta of strike k at t on a delta surface.
func (c Converter) DeltaForStrike(d *DeltaSurface, t, k float64) (float64, error) {
	vol, err := c.WithDeltaSurface(d).Volatility(t, k)
	if err != nil {
		return 0, err
	}
	return black.ForwardDelta(d.fc.Forward(t), k, t, vol, true), nil
}

// StrikeForDelta is the strike whose call delta at t is delta.
func (c Converter) StrikeForDelta(d *DeltaSurface, t, delta float64) (float64, error) {
	return d.AbsoluteStrike(t, delta)
}

// WithDeltaSurface binds d to this converter for strike lookups.
func (c Converter) WithDeltaSurface(d *DeltaSurface) *DeltaSurface {
	return d.WithConverter(c)
}

// ---------------------------------------------------------------------------
// Algebraic conversions
// ---------------------------------------------------------------------------

// MoneynessToLogMoneyness reads m at exp(x).
func (c Converter) MoneynessToLogMoneyness(m *MoneynessSurface) *LogMoneynessSurface {
	under := m.surf
	return &LogMoneynessSurface{
		surf: surface.Func(func(t, x float64) (float64, error) {
			return under.Value(t, math.Exp(x))
		}),
		fc: m.fc,
	}
}

// LogMoneynessToMoneyness reads l at ln(m). Non-positive moneyness is a
// volerr.ErrDomain.
func (c Converter) LogMoneynessToMoneyness(l *LogMoneynessSurface) *MoneynessSurface {
	under := l.surf
	return &MoneynessSurface{
		surf: surface.Func(func(t, m float64) (float64, error) {
			if !(m > 0) {
				return 0, volerr.Domain("log-moneyness to moneyness: moneyness %v must be positive", m)
			}
			return under.Value(t, math.Log(m))
		}),
		fc: l.fc,
	}
}

// StrikeToMoneyness reads s at m·F(t) on the forward curve fc.
func (c Converter) StrikeToMoneyness(s *StrikeSurface, fc forward.Curve) (*MoneynessSurface, error) {
	if fc == nil {
		return nil, volerr.Construction("StrikeToMoneyness: nil forward curve")
	}
	under := s.surf
	return &MoneynessSurface{
		surf: surface.Func(func(t, m float64) (float64, error) {
			if !(t >= 0) || !(m >= 0) {
				return 0, volerr.Domain("strike to moneyness: need t >= 0 and m >= 0, got %v, %v", t, m)
			}
			return under.Value(t, m*fc.Forward(t))
		}),
		fc: fc,
	}, nil
}

// MoneynessToStrike reads m at k/F(t) on m's forward curve.
func (c Converter) MoneynessToStrike(m *MoneynessSurface) *StrikeSurface {
	under, fc := m.surf, m.fc
	return &StrikeSurface{
		surf: surface.Func(func(t, k float64) (float64, error) {
			if !(t >= 0) || !(k >= 0) {
				return 0, volerr.Domain("moneyness to strike: need t >= 0 and k >= 0, got %v, %v", t, k)
			}
			return under.Value(t, k/fc.Forward(t))
		}),
	}
}

// StrikeToLogMoneyness reads s at F(t)·exp(x) on the forward curve fc.
func (c Converter) StrikeToLogMoneyness(s *StrikeSurface, fc forward.Curve) (*LogMoneynessSurface, error) {
	if fc == nil {
		return nil, volerr.Construction("StrikeToLogMoneyness: nil forward curve")
	}
	under := s.surf
	return &LogMoneynessSurface{
		surf: surface.Func(func(t, x float64) (float64, error) {
			return under.Value(t, fc.Forward(t)*math.Exp(x))
		}),
		fc: fc,
	}, nil
}

// LogMoneynessToStrike reads l at ln(k/F(t)). Non-positive strikes are a
// volerr.ErrDomain.
func (c Converter) LogMoneynessToStrike(l *LogMoneynessSurface) *StrikeSurface {
	under, fc := l.surf, l.fc
	return &StrikeSurface{
		surf: surface.Func(func(t, k float64) (float64, error) {
			if !(k > 0) {
				return 0, volerr.Domain("log-moneyness to strike: strike %v must be positive", k)
			}
			return under.Value(t, math.Log(k/fc.Forward(t)))
		}),
	}
}

// ---------------------------------------------------------------------------
// Compositions
// ---------------------------------------------------------------------------

// DeltaToStrike goes through log-moneyness.
func (c Converter) DeltaToStrike(d *DeltaSurface) *StrikeSurface {
	return c.LogMoneynessToStrike(c.DeltaToLogMoneyness(d))
}

// DeltaToMoneyness goes through log-moneyness.
func (c Converter) DeltaToMoneyness(d *DeltaSurface) *MoneynessSurface {
	return c.LogMoneynessToMoneyness(c.DeltaToLogMoneyness(d))
}

// MoneynessToDelta goes through log-moneyness.
func (c Converter) MoneynessToDelta(m *MoneynessSurface) *DeltaSurface {
	return c.LogMoneynessToDelta(c.MoneynessToLogMoneyness(m))
}

// StrikeToDelta goes through log-moneyness on the forward curve fc.
func (c Converter) StrikeToDelta(s *StrikeSurface, fc forward.Curve) (*DeltaSurface, error) {
	l, err := c.StrikeToLogMoneyness(s, fc)
	if err != nil {
		return nil, err
	}
	return c.LogMoneynessToDelta(l), nil
}

// ---------------------------------------------------------------------------
// Dispatch on any surface
// ---------------------------------------------------------------------------

type toStrike struct{ c Converter }

func (v toStrike) VisitStrike(s *StrikeSurface) (*StrikeSurface, error) { return s, nil }
func (v toStrike) VisitDelta(s *DeltaSurface) (*StrikeSurface, error) {
	return v.c.DeltaToStrike(s), nil
}
func (v toStrike) VisitMoneyness(s *MoneynessSurface) (*StrikeSurface, error) {
	return v.c.MoneynessToStrike(s), nil
}
func (v toStrike) VisitLogMoneyness(s *LogMoneynessSurface) (*StrikeSurface, error) {
	return v.c.LogMoneynessToStrike(s), nil
}

// ToStrike converts any surface to a strike surface.
func (c Converter) ToStrike(s Surface) (*StrikeSurface, error) {
	return Accept[*StrikeSurface](s, toStrike{c})
}

type toDelta struct{ c Converter }

func (v toDelta) VisitStrike(s *StrikeSurface, fc forward.Curve) (*DeltaSurface, error) {
	return v.c.StrikeToDelta(s, fc)
}
func (v toDelta) VisitDelta(s *DeltaSurface, _ forward.Curve) (*DeltaSurface, error) {
	return s, nil
}
func (v toDelta) VisitMoneyness(s *MoneynessSurface, _ forward.Curve) (*DeltaSurface, error) {
	return v.c.MoneynessToDelta(s), nil
}
func (v toDelta) VisitLogMoneyness(s *LogMoneynessSurface, _ forward.Curve) (*DeltaSurface, error) {
	return v.c.LogMoneynessToDelta(s), nil
}

// ToDelta converts any surface to a delta surface. fc is only read when s
// is a strike surface, which carries no forward curve of its own.
func (c Converter) ToDelta(s Surface, fc forward.Curve) (*DeltaSurface, error) {
	return AcceptWithData[forward.Curve, *DeltaSurface](s, toDelta{c}, fc)
}

type toMoneyness struct{ c Converter }

func (v toMoneyness) VisitStrike(s *StrikeSurface, fc forward.Curve) (*MoneynessSurface, error) {
	return v.c.StrikeToMoneyness(s, fc)
}
func (v toMoneyness) VisitDelta(s *DeltaSurface, _ forward.Curve) (*MoneynessSurface, error) {
	return v.c.DeltaToMoneyness(s), nil
}
func (v toMoneyness) VisitMoneyness(s *MoneynessSurface, _ forward.Curve) (*MoneynessSurface, error) {
	return s, nil
}
func (v toMoneyness) VisitLogMoneyness(s *LogMoneynessSurface, _ forward.Curve) (*MoneynessSurface, error) {
	return v.c.LogMoneynessToMoneyness(s), nil
}

// ToMoneyness converts any surface to a moneyness surface.
func (c Converter) ToMoneyness(s Surface, fc forward.Curve) (*MoneynessSurface, error) {
	return AcceptWithData[forward.Curve, *MoneynessSurface](s, toMoneyness{c}, fc)
}

type toLogMoneyness struct{ c Converter }

func (v toLogMoneyness) VisitStrike(s *StrikeSurface, fc forward.Curve) (*LogMoneynessSurface, error) {
	return v.c.StrikeToLogMoneyness(s, fc)
}
func (v toLogMoneyness) VisitDelta(s *DeltaSurface, _ forward.Curve) (*LogMoneynessSurface, error) {
	return v.c.DeltaToLogMoneyness(s), nil
}
func (v toLogMoneyness) VisitMoneyness(s *MoneynessSurface, _ forward.Curve) (*LogMoneynessSurface, error) {
	return v.c.MoneynessToLogMoneyness(s), nil
}
func (v toLogMoneyness) VisitLogMoneyness(s *LogMoneynessSurface, _ forward.Curve) (*LogMoneynessSurface, error) {
	return s, nil
}

// ToLogMoneyness converts any surface to a log-moneyness surface.
func (c Converter) ToLogMoneyness(s Surface, fc forward.Curve) (*LogMoneynessSurface, error) {
	return AcceptWithData[forward.Curve, *LogMoneynessSurface](s, toLogMoneyness{c}, fc)
}
