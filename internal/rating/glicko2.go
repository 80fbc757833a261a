// internal/rating/glicko2.go
package rating

import (
	"math"

	"github.com/jason-s-yu/lobbyd/internal/game"
)

const (
	// GlickoScale is the multiplier used for converting between the 1500-based scale and Glicko2's mu.
	GlickoScale = 173.7178
	// DefaultMu is the baseline rating (1500) in the 1500-based scale.
	DefaultMu = 1500.0
	// DefaultSigma is the volatility assumed for every player; it is not persisted.
	DefaultSigma = 0.06
	// MinDeviation keeps deviations from collapsing after many games.
	MinDeviation = 30.0
	// Tau is the constraint on volatility changes.
	Tau = 0.5
	// Epsilon is the tolerance used in iteration stopping conditions.
	Epsilon = 0.000001
)

// Glicko2Rating holds the transformed rating (Mu), rating deviation (Phi),
// and volatility (Sigma) for a single player in Glicko2 space.
type Glicko2Rating struct {
	Mu    float64
	Phi   float64
	Sigma float64
}

// NewGlicko2Rating converts a (mean, deviation) pair into Glicko2 space.
func NewGlicko2Rating(r game.Rating, sigma float64) Glicko2Rating {
	return Glicko2Rating{
		Mu:    (r.Mean - DefaultMu) / GlickoScale,
		Phi:   r.Deviation / GlickoScale,
		Sigma: sigma,
	}
}

// Rating converts back to the 1500-based scale.
func (r Glicko2Rating) Rating() game.Rating {
	return game.Rating{
		Mean:      r.Mu*GlickoScale + DefaultMu,
		Deviation: math.Max(r.Phi*GlickoScale, MinDeviation),
	}
}

// Update applies a single-match Glicko2 step for r against opp, given a score in [0..1].
func Update(r, opp game.Rating, score float64) game.Rating {
	return updateGlicko(NewGlicko2Rating(r, DefaultSigma), NewGlicko2Rating(opp, DefaultSigma), score).Rating()
}

// updateGlicko performs a single-match Glicko2 update with volatility for r
// against an opponent rOpp, given the final score in [0..1].
func updateGlicko(r, rOpp Glicko2Rating, score float64) Glicko2Rating {
	gVal := g(rOpp.Phi)
	EVal := E(r.Mu, rOpp.Mu, rOpp.Phi)

	v := 1.0 / (gVal * gVal * EVal * (1 - EVal))
	delta := v * gVal * (score - EVal)

	a := math.Log(r.Sigma * r.Sigma)
	A := a
	var B float64
	if delta*delta > r.Phi*r.Phi+v {
		B = math.Log(delta*delta - r.Phi*r.Phi - v)
	} else {
		k := 1.0
		for f(a-k*Tau, r.Phi, v, delta, a) < 0 {
			k++
		}
		B = a - k*Tau
	}

	fx := func(x float64) float64 {
		return f(x, r.Phi, v, delta, a)
	}

	fA, fB := fx(A), fx(B)
	for i := 0; i < 100 && math.Abs(B-A) > Epsilon; i++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := fx(C)
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}
	newSigma := math.Exp(A / 2)
	phiStar := math.Sqrt(r.Phi*r.Phi + newSigma*newSigma)
	phiPrime := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muPrime := r.Mu + phiPrime*phiPrime*gVal*(score-EVal)

	return Glicko2Rating{
		Mu:    muPrime,
		Phi:   phiPrime,
		Sigma: newSigma,
	}
}

// g is the G(phi) factor from Glicko2, applying the standard formula 1/sqrt(1+3phi^2/pi^2).
func g(phi float64) float64 {
	return 1.0 / math.Sqrt(1.0+3.0*phi*phi/math.Pi/math.Pi)
}

// E is the expected score formula in Glicko2 space, E(mu,mu2,phi2)=1/(1+exp[-g(phi2)*(mu-mu2)])
func E(mu, mu2, phi2 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phi2)*(mu-mu2)))
}

// f is the Glicko2 volatility root-finding function used in the iterative volatility update.
func f(x, phi, v, delta, a float64) float64 {
	ex := math.Exp(x)
	num := ex * (delta*delta - phi*phi - v - ex)
	den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
	return (num / den) - ((x - a) / (Tau * Tau))
}
