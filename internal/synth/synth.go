// Package synth generates the engine's instrument audio: a polyphonic sine
// synthesizer with ADSR envelope shaping, driven one buffer at a time by the
// output driver.
package synth

import (
	"math"
	"sync"

	"github.com/eholly1/music-tutor/internal/phrase"
)

const defaultMasterGain = 0.3

// voice is one sounding note. Owned exclusively by the Synth; the phase
// advances per generated sample.
type voice struct {
	pitch     int
	frequency float64
	velocity  float64 // normalized 0-1
	startAt   float64 // synth time, seconds
	releaseAt float64 // synth time; valid once releasing
	phase     float64
}

// Synth is the note synthesis core. NoteOn/NoteOff may be called from any
// goroutine; Generate is called from the audio callback. The synth keeps its
// own sample-accurate clock (seconds of audio generated), so output depends
// only on the call sequence, never on wall time.
type Synth struct {
	sampleRate float64
	env        ADSR
	masterGain float64

	mu        sync.Mutex
	active    map[int]*voice
	releasing map[int]*voice
	now       float64 // seconds of audio generated so far
}

// New creates a synth for the given sample rate.
func New(sampleRate float64) *Synth {
	return &Synth{
		sampleRate: sampleRate,
		env:        DefaultADSR(),
		masterGain: defaultMasterGain,
		active:     make(map[int]*voice),
		releasing:  make(map[int]*voice),
	}
}

// NoteOn starts (or restarts) a voice for the pitch. Velocity is MIDI 0-127;
// out-of-range values are clamped.
func (s *Synth) NoteOn(pitch, velocity int) {
	if pitch < 0 || pitch > 127 {
		return
	}
	velocity = min(max(velocity, 0), 127)
	s.mu.Lock()
	delete(s.releasing, pitch)
	s.active[pitch] = &voice{
		pitch:     pitch,
		frequency: phrase.Frequency(pitch),
		velocity:  float64(velocity) / 127.0,
		startAt:   s.now,
	}
	s.mu.Unlock()
}

// NoteOff moves the pitch's voice into its release tail. No-op if the pitch
// is not sounding.
func (s *Synth) NoteOff(pitch int) {
	s.mu.Lock()
	if v, ok := s.active[pitch]; ok {
		delete(s.active, pitch)
		v.releaseAt = s.now
		s.releasing[pitch] = v
	}
	s.mu.Unlock()
}

// StopAll drops every voice immediately, release tails included.
func (s *Synth) StopAll() {
	s.mu.Lock()
	clear(s.active)
	clear(s.releasing)
	s.mu.Unlock()
}

// ActiveCount returns the number of sounding voices, release tails included.
func (s *Synth) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) + len(s.releasing)
}

// Generate fills out with the next len(out) mono samples, summing every
// sounding and releasing voice, applying the master gain and hard-clipping
// to [-1, 1]. It never blocks beyond the voice-map mutex and allocates
// nothing.
func (s *Synth) Generate(out []float64) {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()
	dt := 1.0 / s.sampleRate
	for _, v := range s.active {
		s.renderVoice(v, out, false, dt)
	}
	for pitch, v := range s.releasing {
		s.renderVoice(v, out, true, dt)
		if s.now+float64(len(out))*dt-v.releaseAt >= s.env.Release {
			delete(s.releasing, pitch)
		}
	}
	s.now += float64(len(out)) * dt
	gain := s.masterGain
	s.mu.Unlock()

	for i := range out {
		v := out[i] * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
}

// renderVoice adds one voice's samples into out. Mutex held by caller.
func (s *Synth) renderVoice(v *voice, out []float64, released bool, dt float64) {
	sinceStart := s.now - v.startAt
	sinceRelease := 0.0
	if released {
		sinceRelease = s.now - v.releaseAt
	}
	phaseStep := 2 * math.Pi * v.frequency * dt

	for i := range out {
		amp := s.env.Amplitude(sinceStart, released, sinceRelease)
		if released && amp <= 0 {
			break // tail fully decayed, purge happens in Generate
		}
		out[i] += math.Sin(v.phase) * v.velocity * amp

		v.phase += phaseStep
		if v.phase >= 2*math.Pi {
			v.phase -= 2 * math.Pi
		}
		sinceStart += dt
		if released {
			sinceRelease += dt
		}
	}
}

// SetMasterGain overrides the output gain; values outside (0, 1] are ignored.
func (s *Synth) SetMasterGain(g float64) {
	if g <= 0 || g > 1 {
		return
	}
	s.mu.Lock()
	s.masterGain = g
	s.mu.Unlock()
}

// SampleRate returns the synth's sample rate in Hz.
func (s *Synth) SampleRate() float64 { return s.sampleRate }
