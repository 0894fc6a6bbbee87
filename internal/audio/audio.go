// Package audio owns the output device. It pulls mono sample buffers from
// registered producers on the speaker's schedule, mixes them, and hands the
// result to the platform audio backend as stereo frames.
package audio

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const (
	DefaultSampleRate = 44100
	DefaultBufferSize = 512
)

// Producer fills out with the next len(out) mono samples. It is called from
// the speaker goroutine and must not block.
type Producer interface {
	Generate(out []float64)
}

// Instrument is a Producer that also accepts note events.
type Instrument interface {
	Producer
	NoteOn(pitch, velocity int)
	NoteOff(pitch int)
	StopAll()
}

// Info is a point-in-time snapshot of the engine for diagnostics.
type Info struct {
	SampleRate int
	BufferSize int
	Running    bool
	Chunks     uint64
	LastChunk  time.Time
}

// Engine drives the speaker. It implements beep.Streamer so the backend
// pulls audio instead of the producers pushing it; a missing or panicking
// producer yields silence, never a stopped stream.
type Engine struct {
	sampleRate int
	bufferSize int

	mu         sync.Mutex
	instrument Instrument
	aux        Producer
	running    bool
	chunks     uint64
	lastChunk  time.Time

	scratch []float64
	auxBuf  []float64
}

func New(sampleRate, bufferSize int) *Engine {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Engine{sampleRate: sampleRate, bufferSize: bufferSize}
}

// SetInstrument registers the melodic voice. Safe to call while running;
// the swap takes effect at the next buffer.
func (e *Engine) SetInstrument(in Instrument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instrument = in
}

// SetAux registers a secondary producer mixed under the instrument, such as
// percussion accompaniment. Pass nil to detach.
func (e *Engine) SetAux(p Producer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aux = p
}

// Start opens the platform device and begins pulling audio. Starting a
// running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	sr := beep.SampleRate(e.sampleRate)
	if err := speaker.Init(sr, e.bufferSize); err != nil {
		return fmt.Errorf("audio: opening speaker: %w", err)
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	speaker.Play(e)
	log.Printf("audio: started sampleRate=%d bufferSize=%d", e.sampleRate, e.bufferSize)
	return nil
}

// Stop silences any held notes and closes the device. Stopping a stopped
// engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	in := e.instrument
	e.mu.Unlock()

	if in != nil {
		in.StopAll()
	}
	speaker.Clear()
	speaker.Close()
	log.Printf("audio: stopped after %d chunks", e.Status().Chunks)
}

// NoteOn forwards a note event to the instrument. Events arriving while the
// engine is stopped are logged and dropped rather than queued.
func (e *Engine) NoteOn(pitch, velocity int) {
	e.mu.Lock()
	in, running := e.instrument, e.running
	e.mu.Unlock()
	if !running || in == nil {
		log.Printf("audio: dropping noteOn pitch=%d, engine not running", pitch)
		return
	}
	in.NoteOn(pitch, velocity)
}

// NoteOff forwards a note release to the instrument.
func (e *Engine) NoteOff(pitch int) {
	e.mu.Lock()
	in, running := e.instrument, e.running
	e.mu.Unlock()
	if !running || in == nil {
		log.Printf("audio: dropping noteOff pitch=%d, engine not running", pitch)
		return
	}
	in.NoteOff(pitch)
}

// Status returns a snapshot of engine state.
func (e *Engine) Status() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Info{
		SampleRate: e.sampleRate,
		BufferSize: e.bufferSize,
		Running:    e.running,
		Chunks:     e.chunks,
		LastChunk:  e.lastChunk,
	}
}

// Stream implements beep.Streamer. Mono producer output is duplicated to
// both channels. The stream never reports done; silence keeps the device
// warm between phrases.
func (e *Engine) Stream(samples [][2]float64) (int, bool) {
	e.mu.Lock()
	in, aux := e.instrument, e.aux
	if cap(e.scratch) < len(samples) {
		e.scratch = make([]float64, len(samples))
		e.auxBuf = make([]float64, len(samples))
	}
	scratch := e.scratch[:len(samples)]
	auxBuf := e.auxBuf[:len(samples)]
	e.chunks++
	e.lastChunk = time.Now()
	e.mu.Unlock()

	fill(scratch, in)
	if aux != nil {
		fill(auxBuf, aux)
		for i := range scratch {
			scratch[i] += auxBuf[i]
		}
	}

	for i := range samples {
		s := scratch[i]
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		samples[i][0] = s
		samples[i][1] = s
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (e *Engine) Err() error { return nil }

// fill runs a producer with panic isolation. A producer that panics gets
// one buffer of silence and a log line instead of taking down the device.
func fill(out []float64, p Producer) {
	for i := range out {
		out[i] = 0
	}
	if p == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("audio: producer panic: %v", r)
			for i := range out {
				out[i] = 0
			}
		}
	}()
	p.Generate(out)
}
