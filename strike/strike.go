// Package strike defines the coordinates in which a smile can be quoted:
// absolute strike, Black delta, moneyness, log-moneyness and simple
// moneyness. Each variant validates its domain at construction.
package strike

import (
	"math"

	"github.com/meenmo/volsurf/volerr"
)

// Kind names a strike variant.
type Kind int

const (
	KindStrike Kind = iota
	KindDelta
	KindMoneyness
	KindLogMoneyness
	KindSimpleMoneyness
)

func (k Kind) String() string {
	switch k {
	case KindStrike:
		return "strike"
	case KindDelta:
		return "delta"
	case KindMoneyness:
		return "moneyness"
	case KindLogMoneyness:
		return "log-moneyness"
	case KindSimpleMoneyness:
		return "simple-moneyness"
	default:
		return "unknown"
	}
}

// Type is implemented by every strike variant.
type Type interface {
	Value() float64
	Kind() Kind
}

// Valued is a variant that can produce a copy of itself with a new value.
type Valued[T any] interface {
	Type
	With(v float64) (T, error)
}

// Add returns a + b. Both operands are the same variant by construction.
func Add[T Valued[T]](a, b T) (T, error) {
	return a.With(a.Value() + b.Value())
}

// Subtract returns a - b.
func Subtract[T Valued[T]](a, b T) (T, error) {
	return a.With(a.Value() - b.Value())
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Strike is an absolute strike, v >= 0.
type Strike struct{ v float64 }

func NewStrike(v float64) (Strike, error) {
	if !finite(v) || v < 0 {
		return Strike{}, volerr.Construction("NewStrike: value %v must be non-negative", v)
	}
	return Strike{v: v}, nil
}

func (s Strike) Value() float64                 { return s.v }
func (s Strike) Kind() Kind                     { return KindStrike }
func (s Strike) With(v float64) (Strike, error) { return NewStrike(v) }

// Delta is a Black forward delta in [0, 1].
type Delta struct{ v float64 }

func NewDelta(v float64) (Delta, error) {
	if !finite(v) || v < 0 || v > 1 {
		return Delta{}, volerr.Construction("NewDelta: value %v outside [0,1]", v)
	}
	return Delta{v: v}, nil
}

func (d Delta) Value() float64                { return d.v }
func (d Delta) Kind() Kind                    { return KindDelta }
func (d Delta) With(v float64) (Delta, error) { return NewDelta(v) }

// Moneyness is k/F, v >= 0.
type Moneyness struct{ v float64 }

func NewMoneyness(v float64) (Moneyness, error) {
	if !finite(v) || v < 0 {
		return Moneyness{}, volerr.Construction("NewMoneyness: value %v must be non-negative", v)
	}
	return Moneyness{v: v}, nil
}

// MoneynessFromStrike returns k/f; both must be positive.
func MoneynessFromStrike(k, f float64) (Moneyness, error) {
	if !(k > 0) || !(f > 0) {
		return Moneyness{}, volerr.Construction("MoneynessFromStrike: strike %v and forward %v must be positive", k, f)
	}
	return NewMoneyness(k / f)
}

func (m Moneyness) Value() float64                    { return m.v }
func (m Moneyness) Kind() Kind                        { return KindMoneyness }
func (m Moneyness) With(v float64) (Moneyness, error) { return NewMoneyness(v) }

// LogMoneyness is ln(k/F).
type LogMoneyness struct{ v float64 }

func NewLogMoneyness(v float64) (LogMoneyness, error) {
	if !finite(v) {
		return LogMoneyness{}, volerr.Construction("NewLogMoneyness: value %v must be finite", v)
	}
	return LogMoneyness{v: v}, nil
}

// LogMoneynessFromStrike returns ln(k/f); both must be positive.
func LogMoneynessFromStrike(k, f float64) (LogMoneyness, error) {
	if !(k > 0) || !(f > 0) {
		return LogMoneyness{}, volerr.Construction("LogMoneynessFromStrike: strike %v and forward %v must be positive", k, f)
	}
	return NewLogMoneyness(math.Log(k / f))
}

func (l LogMoneyness) Value() float64                       { return l.v }
func (l LogMoneyness) Kind() Kind                           { return KindLogMoneyness }
func (l LogMoneyness) With(v float64) (LogMoneyness, error) { return NewLogMoneyness(v) }

// SimpleMoneyness is k - F, as quoted for rate futures options.
type SimpleMoneyness struct{ v float64 }

func NewSimpleMoneyness(v float64) (SimpleMoneyness, error) {
	if !finite(v) {
		return SimpleMoneyness{}, volerr.Construction("NewSimpleMoneyness: value %v must be finite", v)
	}
	return SimpleMoneyness{v: v}, nil
}

// SimpleMoneynessFromStrike returns k - f.
func SimpleMoneynessFromStrike(k, f float64) (SimpleMoneyness, error) {
	return NewSimpleMoneyness(k - f)
}

func (s SimpleMoneyness) Value() float64                          { return s.v }
func (s SimpleMoneyness) Kind() Kind                              { return KindSimpleMoneyness }
func (s SimpleMoneyness) With(v float64) (SimpleMoneyness, error) { return NewSimpleMoneyness(v) }
