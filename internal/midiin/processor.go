// Package midiin turns raw MIDI input into timestamped capture events and
// forwards them to the instrument so the student hears themselves play.
package midiin

import (
	"log"
	"sync"
	"time"

	"github.com/eholly1/music-tutor/internal/phrase"
)

// NoteSink receives live note events for monitoring while they are being
// captured.
type NoteSink interface {
	NoteOn(pitch, velocity int)
	NoteOff(pitch int)
}

// Processor parses channel voice messages and accumulates a capture take.
// The capture clock starts lazily at the first event, so the student's
// first note always lands at offset zero regardless of when listening
// began.
type Processor struct {
	mu      sync.Mutex
	sink    NoteSink
	events  []phrase.CapturedEvent
	open    map[int]bool
	started bool
	startAt time.Time
	noteOns int
}

func NewProcessor() *Processor {
	return &Processor{open: make(map[int]bool)}
}

// SetSink attaches a live monitoring sink. Pass nil to mute monitoring.
func (p *Processor) SetSink(s NoteSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = s
}

// Process consumes one raw MIDI message stamped with its arrival time.
// Note-on with velocity zero is treated as note-off per the wire
// convention. Messages other than note-on/note-off are ignored.
func (p *Processor) Process(raw []byte, at time.Time) {
	if len(raw) < 3 {
		return
	}
	status := raw[0] & 0xF0
	pitch := int(raw[1])
	velocity := int(raw[2])

	switch {
	case status == 0x90 && velocity > 0:
		p.noteOn(pitch, velocity, at)
	case status == 0x80 || (status == 0x90 && velocity == 0):
		p.noteOff(pitch, at)
	}
}

func (p *Processor) noteOn(pitch, velocity int, at time.Time) {
	p.mu.Lock()
	if !p.started {
		p.started = true
		p.startAt = at
		log.Printf("midiin: capture started")
	}
	// Retrigger of a sounding pitch closes the previous note first so the
	// capture never holds two copies of the same pitch open.
	if p.open[pitch] {
		p.events = append(p.events, phrase.CapturedEvent{
			Pitch: pitch,
			At:    at.Sub(p.startAt),
		})
	}
	p.open[pitch] = true
	p.noteOns++
	p.events = append(p.events, phrase.CapturedEvent{
		On:       true,
		Pitch:    pitch,
		Velocity: velocity,
		At:       at.Sub(p.startAt),
	})
	sink := p.sink
	p.mu.Unlock()

	if sink != nil {
		sink.NoteOn(pitch, velocity)
	}
}

func (p *Processor) noteOff(pitch int, at time.Time) {
	p.mu.Lock()
	if !p.started || !p.open[pitch] {
		p.mu.Unlock()
		return
	}
	delete(p.open, pitch)
	p.events = append(p.events, phrase.CapturedEvent{
		Pitch: pitch,
		At:    at.Sub(p.startAt),
	})
	sink := p.sink
	p.mu.Unlock()

	if sink != nil {
		sink.NoteOff(pitch)
	}
}

// Finalize closes every note still sounding at the cutoff time and returns
// the completed take.
func (p *Processor) Finalize(at time.Time) []phrase.CapturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for pitch := range p.open {
		p.events = append(p.events, phrase.CapturedEvent{
			Pitch: pitch,
			At:    at.Sub(p.startAt),
		})
		delete(p.open, pitch)
	}
	out := make([]phrase.CapturedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Clear resets the processor for the next take.
func (p *Processor) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.open = make(map[int]bool)
	p.started = false
	p.noteOns = 0
}

// Started reports whether any input has arrived since the last Clear.
func (p *Processor) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// StartedAt returns the capture clock origin, valid only once Started.
func (p *Processor) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startAt
}

// NoteCount returns the number of note-on events captured so far.
func (p *Processor) NoteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.noteOns
}
