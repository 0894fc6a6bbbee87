package synth

// ADSR is an attack/decay/sustain/release amplitude envelope. Times are in
// seconds, sustain is a level in [0,1].
type ADSR struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

// DefaultADSR matches a soft piano-ish pluck: fast attack, gentle decay to a
// clear sustain, and a tail long enough to avoid clicks on note-off.
func DefaultADSR() ADSR {
	return ADSR{Attack: 0.01, Decay: 0.1, Sustain: 0.7, Release: 0.3}
}

// Amplitude evaluates the envelope at sinceStart seconds into the note.
// If released, sinceRelease counts from the moment of release and the
// envelope ramps the sustain level down to zero over Release seconds.
func (e ADSR) Amplitude(sinceStart float64, released bool, sinceRelease float64) float64 {
	if released {
		if sinceRelease >= e.Release {
			return 0
		}
		return e.Sustain * (1.0 - sinceRelease/e.Release)
	}
	switch {
	case sinceStart < e.Attack:
		return sinceStart / e.Attack
	case sinceStart < e.Attack+e.Decay:
		progress := (sinceStart - e.Attack) / e.Decay
		return 1.0 - progress*(1.0-e.Sustain)
	default:
		return e.Sustain
	}
}
