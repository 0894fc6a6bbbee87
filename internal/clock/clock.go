package clock

import "time"

// BeatsPerBar is fixed at 4 for the whole engine; the session, the drum
// loop, and the phrase scheduler all count bars in 4/4.
const BeatsPerBar = 4

// downbeatEpsilon: if we are within this of a bar boundary we treat the
// boundary as "now" instead of waiting a whole bar.
const downbeatEpsilon = time.Millisecond

// SessionClock is the shared timing reference for a practice session: a
// wall-clock instant marking beat 1 of bar 1, plus the tempo. It is a value,
// passed explicitly into every component that needs beat positions.
type SessionClock struct {
	Anchor time.Time
	BPM    float64
}

// New returns a clock anchored at t.
func New(t time.Time, bpm float64) SessionClock {
	return SessionClock{Anchor: t, BPM: bpm}
}

// BeatDuration returns the length of one beat.
func (c SessionClock) BeatDuration() time.Duration {
	return time.Duration(60.0 / c.BPM * float64(time.Second))
}

// Beats returns the fractional number of beats elapsed at t since the anchor.
// Negative before the anchor.
func (c SessionClock) Beats(t time.Time) float64 {
	return t.Sub(c.Anchor).Seconds() * c.BPM / 60.0
}

// BarPosition returns the musical position within the current bar at t,
// in [1.0, 5.0): 1.0 is the downbeat, 2.5 is the "and" of beat 2.
func (c SessionClock) BarPosition(t time.Time) float64 {
	b := c.Beats(t)
	b -= float64(int(b/BeatsPerBar)) * BeatsPerBar
	if b < 0 {
		b += BeatsPerBar
	}
	return b + 1.0
}

// NextDownbeat returns the wall-clock time of the next bar boundary at or
// after t. If t is already on a boundary (within a millisecond), t itself is
// returned so aligned starts don't wait an extra bar.
func (c SessionClock) NextDownbeat(t time.Time) time.Time {
	beats := c.Beats(t)
	bar := int(beats / BeatsPerBar)
	if beats < 0 {
		// Before the anchor: the first downbeat is the anchor itself.
		return c.Anchor
	}
	boundary := c.Anchor.Add(time.Duration(float64(bar) * BeatsPerBar * 60.0 / c.BPM * float64(time.Second)))
	if t.Sub(boundary) <= downbeatEpsilon {
		return boundary
	}
	return c.Anchor.Add(time.Duration(float64(bar+1) * BeatsPerBar * 60.0 / c.BPM * float64(time.Second)))
}

// BeatsToDuration converts a beat count to wall-clock time at this tempo.
func (c SessionClock) BeatsToDuration(beats float64) time.Duration {
	return time.Duration(beats * 60.0 / c.BPM * float64(time.Second))
}
