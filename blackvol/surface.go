// Package blackvol defines Black implied-volatility surfaces parameterized
// by absolute strike, forward delta, moneyness or log-moneyness, a closed
// visitor over that family, and the Converter that re-expresses one
// parameterization in another.
package blackvol

import (
	"math"

	"github.com/meenmo/volsurf/black"
	"github.com/meenmo/volsurf/forward"
	"github.com/meenmo/volsurf/strike"
	"github.com/meenmo/volsurf/surface"
	"github.com/meenmo/volsurf/volerr"
)

// Kind names the strike parameterization of a surface.
type Kind = strike.Kind

// Surface is implemented by StrikeSurface, DeltaSurface, MoneynessSurface
// and LogMoneynessSurface only.
type Surface interface {
	// Volatility is the Black volatility at expiry t and absolute strike k.
	Volatility(t, k float64) (float64, error)
	// AbsoluteStrike maps the surface's own coordinate x at t to a strike.
	AbsoluteStrike(t, x float64) (float64, error)
	// Surface is the underlying (t, x) surface.
	Surface() surface.Surface
	Kind() Kind

	sealed()
}

func checkVol(vol float64, t, x float64) (float64, error) {
	if math.IsNaN(vol) || math.IsInf(vol, 0) {
		return 0, volerr.Numeric("volatility %v at (t=%v, x=%v) is not finite", vol, t, x)
	}
	return vol, nil
}

// ---------------------------------------------------------------------------
// Strike
// ---------------------------------------------------------------------------

// StrikeSurface is σ(t, k).
type StrikeSurface struct {
	surf surface.Surface
}

// NewStrikeSurface wraps s, read directly at absolute strikes.
func NewStrikeSurface(s surface.Surface) (*StrikeSurface, error) {
	if s == nil {
		return nil, volerr.Construction("NewStrikeSurface: nil surface")
	}
	return &StrikeSurface{surf: s}, nil
}

// Volatility reads the surface at (t, k) and rejects negative or
// non-finite vols.
func (s *StrikeSurface) Volatility(t, k float64) (float64, error) {
	vol, err := s.surf.Value(t, k)
	if err != nil {
		return 0, err
	}
	return checkVol(vol, t, k)
}

// VolatilityAt reads the surface at a typed strike.
func (s *StrikeSurface) VolatilityAt(t float64, k strike.Strike) (float64, error) {
	return s.Volatility(t, k.Value())
}

// AbsoluteStrike is k itself.
func (s *StrikeSurface) AbsoluteStrike(_, k float64) (float64, error) { return k, nil }

// Surface is the underlying (t, x) surface.
func (s *StrikeSurface) Surface() surface.Surface { return s.surf }

// Kind names the coordinate.
func (s *StrikeSurface) Kind() Kind { return strike.KindStrike }
func (s *StrikeSurface) sealed()    {}

// WithSurface returns a strike surface over a different underlying surface.
func (s *StrikeSurface) WithSurface(under surface.Surface) (*StrikeSurface, error) {
	return NewStrikeSurface(under)
}

// WithShift shifts the underlying surface.
func (s *StrikeSurface) WithShift(shift surface.Shift) (*StrikeSurface, error) {
	under, err := surface.WithShift(s.surf, shift)
	if err != nil {
		return nil, err
	}
	return s.WithSurface(under)
}

// ---------------------------------------------------------------------------
// Moneyness
// ---------------------------------------------------------------------------

// MoneynessSurface is σ(t, k/F(t)).
type MoneynessSurface struct {
	surf surface.Surface
	fc   forward.Curve
}

// NewMoneynessSurface wraps s with the forward curve that defines moneyness.
func NewMoneynessSurface(s surface.Surface, fc forward.Curve) (*MoneynessSurface, error) {
	if s == nil || fc == nil {
		return nil, volerr.Construction("NewMoneynessSurface: nil surface or forward curve")
	}
	return &MoneynessSurface{surf: s, fc: fc}, nil
}

// Volatility reads the surface at moneyness k/F(t).
func (m *MoneynessSurface) Volatility(t, k float64) (float64, error) {
	if !(k >= 0) {
		return 0, volerr.Domain("MoneynessSurface.Volatility: strike %v must be non-negative", k)
	}
	return m.VolatilityForMoneyness(t, k/m.fc.Forward(t))
}

// VolatilityForMoneyness reads the surface in its own coordinate.
func (m *MoneynessSurface) VolatilityForMoneyness(t, x float64) (float64, error) {
	vol, err := m.surf.Value(t, x)
	if err != nil {
		return 0, err
	}
	return checkVol(vol, t, x)
}

// VolatilityAt reads the surface at a typed moneyness.
func (m *MoneynessSurface) VolatilityAt(t float64, x strike.Moneyness) (float64, error) {
	return m.VolatilityForMoneyness(t, x.Value())
}

// AbsoluteStrike is x·F(t).
func (m *MoneynessSurface) AbsoluteStrike(t, x float64) (float64, error) {
	return x * m.fc.Forward(t), nil
}

// ForwardCurve is the curve that defines the coordinate.
func (m *MoneynessSurface) ForwardCurve() forward.Curve { return m.fc }

// Surface is the underlying (t, x) surface.
func (m *MoneynessSurface) Surface() surface.Surface { return m.surf }

// Kind names the coordinate.
func (m *MoneynessSurface) Kind() Kind { return strike.KindMoneyness }
func (m *MoneynessSurface) sealed()    {}

// WithSurface keeps the forward curve.
func (m *MoneynessSurface) WithSurface(under surface.Surface) (*MoneynessSurface, error) {
	return NewMoneynessSurface(under, m.fc)
}

// WithShift shifts the underlying surface in moneyness coordinates.
func (m *MoneynessSurface) WithShift(shift surface.Shift) (*MoneynessSurface, error) {
	under, err := surface.WithShift(m.surf, shift)
	if err != nil {
		return nil, err
	}
	return m.WithSurface(under)
}

// ---------------------------------------------------------------------------
// Log-moneyness
// ---------------------------------------------------------------------------

// LogMoneynessSurface is σ(t, ln(k/F(t))).
type LogMoneynessSurface struct {
	surf surface.Surface
	fc   forward.Curve
}

// NewLogMoneynessSurface wraps s with the forward curve that defines
// log-moneyness.
func NewLogMoneynessSurface(s surface.Surface, fc forward.Curve) (*LogMoneynessSurface, error) {
	if s == nil || fc == nil {
		return nil, volerr.Construction("NewLogMoneynessSurface: nil surface or forward curve")
	}
	return &LogMoneynessSurface{surf: s, fc: fc}, nil
}

// Volatility reads the surface at ln(k/F(t)). The strike must be positive.
func (l *LogMoneynessSurface) Volatility(t, k float64) (float64, error) {
	if !(k > 0) {
		return 0, volerr.Domain("LogMoneynessSurface.Volatility: strike %v must be positive", k)
	}
	return l.VolatilityForLogMoneyness(t, math.Log(k/l.fc.Forward(t)))
}

// VolatilityForLogMoneyness reads the surface in its own coordinate.
func (l *LogMoneynessSurface) VolatilityForLogMoneyness(t, x float64) (float64, error) {
	vol, err := l.surf.Value(t, x)
	if err != nil {
		return 0, err
	}
	return checkVol(vol, t, x)
}

// VolatilityAt reads the surface at a typed log-moneyness.
func (l *LogMoneynessSurface) VolatilityAt(t float64, x strike.LogMoneyness) (float64, error) {
	return l.VolatilityForLogMoneyness(t, x.Value())
}

// AbsoluteStrike is F(t)·exp(x).
func (l *LogMoneynessSurface) AbsoluteStrike(t, x float64) (float64, error) {
	return l.fc.Forward(t) * math.Exp(x), nil
}

// ForwardCurve is the curve that defines the coordinate.
func (l *LogMoneynessSurface) ForwardCurve() forward.Curve { return l.fc }

// Surface is the underlying (t, x) surface.
func (l *LogMoneynessSurface) Surface() surface.Surface { return l.surf }

// Kind names the coordinate.
func (l *LogMoneynessSurface) Kind() Kind { return strike.KindLogMoneyness }
func (l *LogMoneynessSurface) sealed()    {}

// WithSurface keeps the forward curve.
func (l *LogMoneynessSurface) WithSurface(under surface.Surface) (*LogMoneynessSurface, error) {
	return NewLogMoneynessSurface(under, l.fc)
}

// WithShift shifts the underlying surface in log-moneyness coordinates.
func (l *LogMoneynessSurface) WithShift(shift surface.Shift) (*LogMoneynessSurface, error) {
	under, err := surface.WithShift(l.surf, shift)
	if err != nil {
		return nil, err
	}
	return l.WithSurface(under)
}

// ---------------------------------------------------------------------------
// Delta
// ---------------------------------------------------------------------------

// DeltaSurface is σ(t, δ) with δ the Black forward delta of a call. Reading
// it at an absolute strike solves the implicit delta equation with the
// surface's Converter.
type DeltaSurface struct {
	surf surface.Surface
	fc   forward.Curve
	conv Converter
}

// NewDeltaSurface uses DefaultConverter() for strike lookups.
func NewDeltaSurface(s surface.Surface, fc forward.Curve) (*DeltaSurface, error) {
	if s == nil || fc == nil {
		return nil, volerr.Construction("NewDeltaSurface: nil surface or forward curve")
	}
	return &DeltaSurface{surf: s, fc: fc, conv: DefaultConverter()}, nil
}

// WithConverter returns a copy that solves strike lookups with c.
func (d *DeltaSurface) WithConverter(c Converter) *DeltaSurface {
	return &DeltaSurface{surf: d.surf, fc: d.fc, conv: c}
}

// Volatility solves for the delta of strike k, then reads the surface there.
func (d *DeltaSurface) Volatility(t, k float64) (float64, error) {
	if !(k > 0) {
		return 0, volerr.Domain("DeltaSurface.Volatility: strike %v must be positive", k)
	}
	return d.conv.volatilityAtLogMoneyness(d.surf, t, math.Log(k/d.fc.Forward(t)))
}

// VolatilityForDelta reads the surface in its own coordinate.
func (d *DeltaSurface) VolatilityForDelta(t, delta float64) (float64, error) {
	vol, err := d.surf.Value(t, delta)
	if err != nil {
		return 0, err
	}
	return checkVol(vol, t, delta)
}

// VolatilityAt reads the surface at a typed delta.
func (d *DeltaSurface) VolatilityAt(t float64, delta strike.Delta) (float64, error) {
	return d.VolatilityForDelta(t, delta.Value())
}

// AbsoluteStrike is the strike whose call delta at the surface volatility
// equals delta.
func (d *DeltaSurface) AbsoluteStrike(t, delta float64) (float64, error) {
	vol, err := d.VolatilityForDelta(t, delta)
	if err != nil {
		return 0, err
	}
	return black.StrikeForDelta(d.fc.Forward(t), delta, t, vol, true)
}

// ForwardCurve is the curve that defines the coordinate.
func (d *DeltaSurface) ForwardCurve() forward.Curve { return d.fc }

// Surface is the underlying (t, x) surface.
func (d *DeltaSurface) Surface() surface.Surface { return d.surf }

// Kind names the coordinate.
func (d *DeltaSurface) Kind() Kind { return strike.KindDelta }
func (d *DeltaSurface) sealed()    {}

// WithSurface keeps the forward curve and converter.
func (d *DeltaSurface) WithSurface(under surface.Surface) (*DeltaSurface, error) {
	out, err := NewDeltaSurface(under, d.fc)
	if err != nil {
		return nil, err
	}
	out.conv = d.conv
	return out, nil
}

// WithShift shifts the underlying surface in delta coordinates.
func (d *DeltaSurface) WithShift(shift surface.Shift) (*DeltaSurface, error) {
	under, err := surface.WithShift(d.surf, shift)
	if err != nil {
		return nil, err
	}
	return d.WithSurface(under)
}
