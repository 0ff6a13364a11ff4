package blackvol

import (
	"github.com/meenmo/volsurf/surface"
	"github.com/meenmo/volsurf/volerr"
)

// Visitor has one method per surface variant.
type Visitor[R any] interface {
	VisitStrike(s *StrikeSurface) (R, error)
	VisitDelta(s *DeltaSurface) (R, error)
	VisitMoneyness(s *MoneynessSurface) (R, error)
	VisitLogMoneyness(s *LogMoneynessSurface) (R, error)
}

// DataVisitor is a Visitor that receives an extra argument.
type DataVisitor[D, R any] interface {
	VisitStrike(s *StrikeSurface, data D) (R, error)
	VisitDelta(s *DeltaSurface, data D) (R, error)
	VisitMoneyness(s *MoneynessSurface, data D) (R, error)
	VisitLogMoneyness(s *LogMoneynessSurface, data D) (R, error)
}

// Accept dispatches s to the matching Visitor method.
func Accept[R any](s Surface, v Visitor[R]) (R, error) {
	switch s := s.(type) {
	case *StrikeSurface:
		return v.VisitStrike(s)
	case *DeltaSurface:
		return v.VisitDelta(s)
	case *MoneynessSurface:
		return v.VisitMoneyness(s)
	case *LogMoneynessSurface:
		return v.VisitLogMoneyness(s)
	}
	var zero R
	return zero, volerr.Construction("Accept: unsupported surface %T", s)
}

// AcceptWithData dispatches s and data to the matching DataVisitor method.
func AcceptWithData[D, R any](s Surface, v DataVisitor[D, R], data D) (R, error) {
	switch s := s.(type) {
	case *StrikeSurface:
		return v.VisitStrike(s, data)
	case *DeltaSurface:
		return v.VisitDelta(s, data)
	case *MoneynessSurface:
		return v.VisitMoneyness(s, data)
	case *LogMoneynessSurface:
		return v.VisitLogMoneyness(s, data)
	}
	var zero R
	return zero, volerr.Construction("AcceptWithData: unsupported surface %T", s)
}

// asSurface avoids wrapping a nil concrete pointer in a non-nil interface.
func asSurface[T Surface](s T, err error) (Surface, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

type shiftVisitor struct{}

func (shiftVisitor) VisitStrike(s *StrikeSurface, sh surface.Shift) (Surface, error) {
	return asSurface[*StrikeSurface](s.WithShift(sh))
}

func (shiftVisitor) VisitDelta(s *DeltaSurface, sh surface.Shift) (Surface, error) {
	return asSurface[*DeltaSurface](s.WithShift(sh))
}

func (shiftVisitor) VisitMoneyness(s *MoneynessSurface, sh surface.Shift) (Surface, error) {
	return asSurface[*MoneynessSurface](s.WithShift(sh))
}

func (shiftVisitor) VisitLogMoneyness(s *LogMoneynessSurface, sh surface.Shift) (Surface, error) {
	return asSurface[*LogMoneynessSurface](s.WithShift(sh))
}

// WithShift shifts any surface, keeping its variant.
func WithShift(s Surface, sh surface.Shift) (Surface, error) {
	return AcceptWithData[surface.Shift, Surface](s, shiftVisitor{}, sh)
}

type rebuildVisitor struct{}

func (rebuildVisitor) VisitStrike(s *StrikeSurface, under surface.Surface) (Surface, error) {
	return asSurface[*StrikeSurface](s.WithSurface(under))
}

func (rebuildVisitor) VisitDelta(s *DeltaSurface, under surface.Surface) (Surface, error) {
	return asSurface[*DeltaSurface](s.WithSurface(under))
}

func (rebuildVisitor) VisitMoneyness(s *MoneynessSurface, under surface.Surface) (Surface, error) {
	return asSurface[*MoneynessSurface](s.WithSurface(under))
}

func (rebuildVisitor) VisitLogMoneyness(s *LogMoneynessSurface, under surface.Surface) (Surface, error) {
	return asSurface[*LogMoneynessSurface](s.WithSurface(under))
}

// WithSurface rebuilds s over a different underlying surface.
func WithSurface(s Surface, under surface.Surface) (Surface, error) {
	return AcceptWithData[surface.Surface, Surface](s, rebuildVisitor{}, under)
}
