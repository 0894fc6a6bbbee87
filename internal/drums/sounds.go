package drums

import (
	"math"
	"math/rand/v2"
)

// Procedural drum voices. Every hit is synthesized on trigger rather than
// drawn from sample files; velocities are pre-scaled so the kit sits under
// the instrument in the mix.

// Kick is a pitch-swept sine (60Hz down to 30Hz) with a sharp exponential
// decay and a short transient click for attack.
func Kick(sampleRate, velocity float64) []float64 {
	const duration = 0.5
	n := int(duration * sampleRate)
	out := make([]float64, n)
	phase := 0.0
	for i := range out {
		t := float64(i) / sampleRate
		freq := 60 + (30-60)*t/duration
		phase += 2 * math.Pi * freq / sampleRate
		env := math.Exp(-t*15) * velocity
		click := math.Exp(-t*100) * 0.3 * velocity
		out[i] = math.Sin(phase)*env + click
	}
	return out
}

// Snare mixes white noise with a short 200Hz tone and an 8kHz burst under a
// medium exponential decay.
func Snare(sampleRate, velocity float64) []float64 {
	const duration = 0.2
	n := int(duration * sampleRate)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / sampleRate
		noise := rand.NormFloat64() * 0.5
		tone := math.Sin(2*math.Pi*200*t) * 0.3
		burst := math.Sin(2*math.Pi*8000*t) * 0.1 * math.Exp(-t*50)
		env := math.Exp(-t*20) * velocity
		out[i] = (noise + tone + burst) * env
	}
	return out
}

// HiHat is differenced noise (a crude high-pass) with a very fast decay.
func HiHat(sampleRate, velocity float64) []float64 {
	const duration = 0.1
	n := int(duration * sampleRate)
	out := make([]float64, n)
	prev := 0.0
	for i := range out {
		t := float64(i) / sampleRate
		noise := rand.NormFloat64() * 0.3
		env := math.Exp(-t*80) * velocity
		out[i] = (noise - prev) * env
		prev = noise
	}
	return out
}
