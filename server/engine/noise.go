package engine

// Float64er is satisfied by *math/rand.Rand.
type Float64er interface{ Float64() float64 }

// ApplyNoise flips m with probability p. Float64 is in [0,1), so p=0 never
// flips and p=1 always does.
func ApplyNoise(m Move, p float64, rng Float64er) Move {
	if p <= 0 {
		return m
	}
	if rng.Float64() < p {
		return m.Opposite()
	}
	return m
}
