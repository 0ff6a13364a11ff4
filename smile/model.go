package smile

// SABRModel exposes the Hagan formula and its parameter sensitivities to
// the surface fitter, with parameters in (alpha, beta, rho, nu) order.
type SABRModel struct{}

var sabrParameterNames = []string{"alpha", "beta", "rho", "nu"}

func (SABRModel) ParameterNames() []string {
	return append([]string(nil), sabrParameterNames...)
}

func (SABRModel) NewData(p []float64) (SABRFormulaData, error) {
	if len(p) != len(sabrParameterNames) {
		return SABRFormulaData{}, errParameterCount(len(p))
	}
	return NewSABRFormulaData(p[0], p[1], p[2], p[3])
}

func (SABRModel) Volatility(forward, k, t float64, d SABRFormulaData) float64 {
	return HaganVolatility(forward, k, t, d)
}

func (SABRModel) ModelAdjoint(forward, k, t float64, d SABRFormulaData) []float64 {
	return ModelAdjoint(forward, k, t, d)
}
