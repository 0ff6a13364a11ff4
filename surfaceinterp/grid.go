package surfaceinterp

import (
	"github.com/meenmo/volsurf/blackvol"
	"github.com/meenmo/volsurf/market"
	"github.com/meenmo/volsurf/smile"
	"github.com/meenmo/volsurf/volerr"
)

// Provenance records how a GridSurface was built.
type Provenance struct {
	Data         *market.SmileSurfaceDataBundle
	Interpolator *Interpolator
	smiles       []smile.Smile
}

// Smiles returns the fitted smile of every expiry.
func (p *Provenance) Smiles() []smile.Smile {
	return append([]smile.Smile(nil), p.smiles...)
}

// GridSurface is a moneyness surface built from market smiles. Provenance
// is nil for surfaces built directly from a MoneynessSurface.
type GridSurface struct {
	surface    *blackvol.MoneynessSurface
	provenance *Provenance
}

// NewGridSurface wraps a moneyness surface with no provenance.
func NewGridSurface(ms *blackvol.MoneynessSurface) (*GridSurface, error) {
	if ms == nil {
		return nil, volerr.Construction("NewGridSurface: nil surface")
	}
	return &GridSurface{surface: ms}, nil
}

func (g *GridSurface) MoneynessSurface() *blackvol.MoneynessSurface { return g.surface }

func (g *GridSurface) Provenance() *Provenance { return g.provenance }

// Volatility is σ at absolute strike k.
func (g *GridSurface) Volatility(t, k float64) (float64, error) {
	return g.surface.Volatility(t, k)
}

func (g *GridSurface) VolatilityForMoneyness(t, m float64) (float64, error) {
	return g.surface.VolatilityForMoneyness(t, m)
}

// Bump moves quote (i, j) by amount and refits only expiry i, reusing the
// other stored smiles.
func (g *GridSurface) Bump(i, j int, amount float64) (*GridSurface, error) {
	p := g.provenance
	if p == nil {
		return nil, volerr.Construction("GridSurface.Bump: surface has no provenance")
	}
	bumped, err := p.Data.WithBumpedPoint(i, j, amount)
	if err != nil {
		return nil, err
	}
	fitted, err := p.Interpolator.fitSmile(bumped, i)
	if err != nil {
		return nil, err
	}
	smiles := p.Smiles()
	smiles[i] = fitted
	return p.Interpolator.gridSurface(bumped, smiles)
}
