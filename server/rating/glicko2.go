package rating

import "math"

const (
	g2Scale = 173.7178 // r <-> mu
	pi2     = math.Pi * math.Pi
)

// Glicko2 holds public 1500-scale values, not mu/phi.
type Glicko2 struct {
	Rating     float64
	RD         float64
	Volatility float64
	Games      int // rating periods applied
}

func NewGlicko2() *Glicko2 {
	return &Glicko2{Rating: 1500, RD: 350, Volatility: 0.06}
}

func NewGlicko2With(r, rd, sigma float64) *Glicko2 {
	return &Glicko2{Rating: r, RD: rd, Volatility: sigma}
}

func (g *Glicko2) Copy() *Glicko2 {
	cp := *g
	return &cp
}

func toMuPhi(r, rd float64) (mu, phi float64)   { return (r - 1500.0) / g2Scale, rd / g2Scale }
func fromMuPhi(mu, phi float64) (r, rd float64) { return mu*g2Scale + 1500.0, phi * g2Scale }

func gPhi(phi float64) float64 { return 1.0 / math.Sqrt(1.0+3.0*phi*phi/pi2) }
func expected(mu, muj, phij float64) float64 {
	return 1.0 / (1.0 + math.Exp(-gPhi(phij)*(mu-muj)))
}

// OpponentResult is the score S in [0,1] against one opponent over a
// rating period.
type OpponentResult struct {
	Opp *Glicko2
	S   float64
}

// Age is the idle-period step: RD grows with volatility, rating stays.
func (a *Glicko2) Age() {
	mu, phi := toMuPhi(a.Rating, a.RD)
	phiStar := math.Sqrt(phi*phi + a.Volatility*a.Volatility)
	a.Rating, a.RD = fromMuPhi(mu, phiStar)
	a.Games++
}

// UpdateBatch is one Glicko-2 rating period. Opponents must carry their
// values from the start of the period. tau around 0.5 is typical.
func (a *Glicko2) UpdateBatch(results []OpponentResult, tau float64) {
	if len(results) == 0 {
		a.Age()
		return
	}

	muA, phiA := toMuPhi(a.Rating, a.RD)

	var sumG2E, sumGSE float64
	for _, r := range results {
		muB, phiB := toMuPhi(r.Opp.Rating, r.Opp.RD)
		gB := gPhi(phiB)
		e := expected(muA, muB, phiB)
		sumG2E += gB * gB * e * (1.0 - e)
		sumGSE += gB * (r.S - e)
	}
	// mu/phi scale throughout; no ln(10)/400 factors.
	v := 1.0 / sumG2E
	delta := v * sumGSE

	newVol := a.Volatility
	if math.Abs(delta) >= 1e-12 {
		newVol = solveVolatility(a.Volatility, phiA, v, delta, tau)
	}
	phiStar := math.Sqrt(phiA*phiA + newVol*newVol)
	phiNew := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muNew := muA + phiNew*phiNew*sumGSE

	a.Rating, a.RD = fromMuPhi(muNew, phiNew)
	a.Volatility = newVol
	a.Games++
}

// solveVolatility finds sigma' with the Illinois iteration from the paper.
func solveVolatility(sigma, phi, v, delta, tau float64) float64 {
	a2 := math.Log(sigma * sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta*delta - phi*phi - v - ex)
		den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
		return num/den - (x-a2)/(tau*tau)
	}

	A := a2
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a2-k*tau) < 0 && k < 1e6 {
			k++
		}
		B = a2 - k*tau
	}
	fA, fB := f(A), f(B)
	for it := 0; it < 100 && math.Abs(B-A) > 1e-6; it++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if math.IsNaN(fC) || math.IsInf(fC, 0) {
			break
		}
		if fC*fB < 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}
	return math.Exp(A / 2.0)
}

// UpdatePair is a single-opponent period.
func (a *Glicko2) UpdatePair(b *Glicko2, s, tau float64) {
	a.UpdateBatch([]OpponentResult{{Opp: b, S: s}}, tau)
}
