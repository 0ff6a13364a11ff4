// Package smile holds single-expiry smile models: the SABR Hagan
// expansion with its parameter sensitivities, the SABR ATM calibration and
// the smile interpolators used by the surface interpolator.
package smile

import (
	"math"

	"github.com/meenmo/volsurf/volerr"
)

const (
	cutoffMoneyness = 1e-12
	smallZ          = 1e-6
	largeNegZ       = -1e6
	largePosZ       = 1e8
	betaEps         = 1e-8
	rhoEps          = 1e-5
	rhoEpsNegative  = 1e-8
	atmEps          = 1e-7
)

// SABRFormulaData is one SABR parameter set.
type SABRFormulaData struct {
	Alpha float64
	Beta  float64
	Rho   float64
	Nu    float64
}

// NewSABRFormulaData validates alpha, nu >= 0, beta in [0,2] and rho in [-1,1].
func NewSABRFormulaData(alpha, beta, rho, nu float64) (SABRFormulaData, error) {
	d := SABRFormulaData{Alpha: alpha, Beta: beta, Rho: rho, Nu: nu}
	return d, d.Validate()
}

func (d SABRFormulaData) Validate() error {
	switch {
	case !(d.Alpha >= 0):
		return volerr.Construction("SABRFormulaData: alpha=%v must be non-negative", d.Alpha)
	case !(d.Beta >= 0 && d.Beta <= 2):
		return volerr.Construction("SABRFormulaData: beta=%v outside [0,2]", d.Beta)
	case !(d.Rho >= -1 && d.Rho <= 1):
		return volerr.Construction("SABRFormulaData: rho=%v outside [-1,1]", d.Rho)
	case !(d.Nu >= 0):
		return volerr.Construction("SABRFormulaData: nu=%v must be non-negative", d.Nu)
	}
	return nil
}

// Parameters returns (alpha, beta, rho, nu), the order used by ModelAdjoint.
func (d SABRFormulaData) Parameters() []float64 {
	return []float64{d.Alpha, d.Beta, d.Rho, d.Nu}
}

func closeTo(a, b, eps float64) bool { return math.Abs(a-b) < eps }

// cutoffStrike floors the strike at a tiny fraction of the forward.
func cutoffStrike(forward, k float64) float64 {
	return math.Max(k, forward*cutoffMoneyness)
}

// HaganVolatility is the Hagan et al. Black volatility expansion of SABR.
// The strike is floored at forward·1e-12. Beta within 1e-8 of 0 or 1 and
// strikes within 1e-7 of the forward use the reduced formulas.
func HaganVolatility(forward, k, t float64, d SABRFormulaData) float64 {
	alpha, beta, rho, nu := d.Alpha, d.Beta, d.Rho, d.Nu
	if alpha == 0 {
		return 0
	}
	k = cutoffStrike(forward, k)
	beta1 := 1 - beta
	nuTerm := nu * nu * (2 - 3*rho*rho) / 24

	if closeTo(forward, k, atmEps) {
		f1 := math.Pow(forward, beta1)
		return alpha * (1 + t*(beta1*beta1*alpha*alpha/24/f1/f1+rho*alpha*beta*nu/4/f1+nuTerm)) / f1
	}

	ln := math.Log(forward / k)
	switch {
	case closeTo(beta, 0, betaEps):
		z := nu * math.Sqrt(forward*k) * ln / alpha
		return alpha * ln * zOverChi(rho, z) * (1 + t*(alpha*alpha/forward/k+nu*nu*(2-3*rho*rho))/24) / (forward - k)
	case closeTo(beta, 1, betaEps):
		z := nu * ln / alpha
		return alpha * zOverChi(rho, z) * (1 + t*(rho*alpha*nu/4+nuTerm))
	}

	f1 := math.Pow(forward*k, beta1)
	f1Sqrt := math.Sqrt(f1)
	lnBetaSq := math.Pow(beta1*ln, 2)
	z := nu * f1Sqrt * ln / alpha
	first := alpha / (f1Sqrt * (1 + lnBetaSq/24 + lnBetaSq*lnBetaSq/1920))
	third := 1 + t*(beta1*beta1*alpha*alpha/24/f1+rho*nu*beta*alpha/4/f1Sqrt+nuTerm)
	return first * zOverChi(rho, z) * third
}

// ModelAdjoint returns ∂σ/∂(alpha, beta, rho, nu) of the general Hagan
// formula by algorithmic differentiation. At alpha=0 the alpha sensitivity
// is the ATM limit, or 1e7 away from the money where it is unbounded.
func ModelAdjoint(forward, k, t float64, d SABRFormulaData) []float64 {
	alpha, beta, rho, nu := d.Alpha, d.Beta, d.Rho, d.Nu
	adj := make([]float64, 4)
	k = cutoffStrike(forward, k)
	betaStar := 1 - beta

	if alpha == 0 {
		if closeTo(forward, k, atmEps) {
			adj[0] = (1 + (2-3*rho*rho)*nu*nu/24*t) / math.Pow(forward, betaStar)
		} else {
			adj[0] = 1e7
		}
		return adj
	}

	// forward sweep
	sfK := math.Pow(forward*k, betaStar/2)
	lnrfK := math.Log(forward / k)
	ln2, ln4 := lnrfK*lnrfK, math.Pow(lnrfK, 4)
	z := nu / alpha * sfK * lnrfK
	sf1 := sfK * (1 + betaStar*betaStar/24*ln2 + math.Pow(betaStar, 4)/1920*ln4)
	sf2 := 1 + (math.Pow(betaStar*alpha/sfK, 2)/24+rho*beta*nu*alpha/(4*sfK)+(2-3*rho*rho)*nu*nu/24)*t

	// backward sweep
	zoc, dzocRho, dzocZ := zOverChiWithDev(rho, z)
	sf2Bar := alpha / sf1 * zoc
	sf1Bar := -alpha / (sf1 * sf1) * zoc * sf2
	rzxzBar := alpha / sf1 * sf2
	zBar := dzocZ * rzxzBar
	sfKBar := nu/alpha*lnrfK*zBar + sf1/sfK*sf1Bar -
		(math.Pow(betaStar*alpha, 2)/math.Pow(sfK, 3)/12+rho*beta*nu*alpha/4/(sfK*sfK))*t*sf2Bar

	adj[0] = -nu/(alpha*alpha)*sfK*lnrfK*zBar +
		((betaStar*alpha/sfK)*(betaStar/sfK)/12+rho*beta*nu/(4*sfK))*t*sf2Bar +
		1/sf1*zoc*sf2
	adj[1] = -0.5*math.Log(forward*k)*sfK*sfKBar -
		sfK*(betaStar/12*ln2+math.Pow(betaStar, 3)/480*ln4)*sf1Bar +
		(-betaStar*alpha*alpha/sfK/sfK/12+rho*nu*alpha/4/sfK)*t*sf2Bar
	adj[2] = dzocRho*rzxzBar + (beta*nu*alpha/(4*sfK)-rho*nu*nu/4)*t*sf2Bar
	adj[3] = 1/alpha*sfK*lnrfK*zBar + (rho*beta*alpha/(4*sfK)+(2-3*rho*rho)*nu/12)*t*sf2Bar
	return adj
}

// zOverChi is z/χ(z) with χ(z) = ln((√(1-2ρz+z²)+z-ρ)/(1-ρ)).
func zOverChi(rho, z float64) float64 {
	if closeTo(z, 0, smallZ) {
		return 1 - rho*z/2
	}
	rhoStar := 1 - rho
	if closeTo(rhoStar, 0, rhoEps) {
		switch {
		case z > 1:
			if rhoStar == 0 {
				return 0
			}
			return z / (math.Log(2*(z-1)) - math.Log(rhoStar))
		case z < 1:
			return z / (-math.Log(1-z) - 0.5*math.Pow(z/(z-1), 2)*rhoStar)
		default:
			return 0
		}
	}
	rhoHat := 1 + rho
	if closeTo(rhoHat, 0, rhoEpsNegative) {
		switch {
		case z > -1:
			return z / math.Log(1+z)
		case z < -1:
			if rhoHat == 0 {
				return 0
			}
			return z / (math.Log(rhoHat) - math.Log(-(1+z)/rhoStar))
		default:
			return 0
		}
	}

	var arg float64
	switch {
	case z < largeNegZ:
		arg = (rho*rho - 1) / 2 / z
	case z > largePosZ:
		arg = 2 * (z - rho)
	default:
		arg = math.Sqrt(1-2*rho*z+z*z) + z - rho
		if arg <= 0 {
			return 0
		}
	}
	return z / (math.Log(arg) - math.Log(rhoStar))
}

// zOverChiWithDev returns z/χ(z) and its derivatives in rho and z.
func zOverChiWithDev(rho, z float64) (val, dRho, dZ float64) {
	if closeTo(z, 0, smallZ) {
		return 1 - rho*z/2, -z / 2, -rho / 2
	}
	rhoStar := 1 - rho
	if closeTo(rhoStar, 0, rhoEps) {
		switch {
		case z > 1:
			if rhoStar == 0 {
				return 0, math.Inf(-1), 0
			}
			chi := math.Log(2*(z-1)) - math.Log(rhoStar)
			return z / chi,
				-z / chi / chi * (1/rhoStar + (0.5-z)/math.Pow(z-1, 2)),
				1/chi - z/chi/chi/math.Sqrt(1-2*rho*z+z*z)
		case z < 1:
			r := z / (z - 1)
			chi := -math.Log(1-z) - 0.5*r*r*rhoStar
			return z / chi,
				-z / chi / chi * (0.5*r*r + (0.25*z-1)*r*r*r/(z-1)*rhoStar),
				1/chi - z/chi/chi/math.Sqrt(1-2*rho*z+z*z)
		default:
			return 0, math.NaN(), math.NaN()
		}
	}
	rhoHat := 1 + rho
	if closeTo(rhoHat, 0, rhoEpsNegative) {
		switch {
		case z > -1:
			chi := math.Log(1 + z)
			chi2 := chi * chi
			return z / chi,
				((2*z+1)/2/math.Pow(1+z, 2) - 1/rhoStar) * z / chi2,
				1/chi - z/(1+z)/chi2
		case z < -1:
			hat := rhoHat
			if hat == 0 {
				hat = rhoEpsNegative
			}
			chi := math.Log(hat) - math.Log(-(1+z)/rhoStar)
			chiRho := 1/hat + 1/rhoStar - math.Pow(z/(1+z), 2)
			if rhoHat == 0 {
				return 0, -chiRho * z / chi / chi, 0
			}
			return z / chi, -chiRho * z / chi / chi, 1/chi + z/chi/chi/(1+z)
		default:
			return 0, math.NaN(), math.NaN()
		}
	}

	var arg, argRho, argZ float64
	switch {
	case z < largeNegZ:
		arg = (rho*rho - 1) / 2 / z
		argRho = rho / z
		argZ = -arg / z
	case z > largePosZ:
		root := z - rho + 0.5/z
		arg = root + z - rho
		argRho = -2
		argZ = 2 - 0.5/z/z
	default:
		root := math.Sqrt(1 - 2*rho*z + z*z)
		arg = root + z - rho
		argRho = -(z/root + 1)
		argZ = (z-rho)/root + 1
	}
	if arg <= 0 {
		return 0, 0, 0
	}
	chi := math.Log(arg / rhoStar)
	zChi2 := z / chi / chi
	return z / chi, -(argRho/arg + 1/rhoStar) * zChi2, 1/chi - zChi2*argZ/arg
}
