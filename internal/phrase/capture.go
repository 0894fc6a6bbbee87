package phrase

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// CapturedEvent is one raw instrument event recorded during a response
// window, timestamped relative to the window start.
type CapturedEvent struct {
	On       bool
	Pitch    int
	Velocity int
	At       time.Duration
}

const (
	// minCapturedBeats clamps very short played notes so reconstruction
	// never produces a zero-duration note.
	minCapturedBeats = 0.1
	// openNoteBeats is the fallback duration for notes still held when the
	// response window closed.
	openNoteBeats = 0.5
)

// FromCapture reconstructs a response phrase from recorded events by pairing
// note-ons with note-offs per pitch. Timestamps become beat positions at the
// session tempo. Returns false if the capture contains no playable notes.
func FromCapture(events []CapturedEvent, bpm float64) (*Phrase, bool) {
	if len(events) == 0 || bpm <= 0 {
		return nil, false
	}

	beatsPerSecond := bpm / 60.0
	open := make(map[int]CapturedEvent)
	var notes []Note

	for _, ev := range events {
		if ev.On {
			open[ev.Pitch] = ev
			continue
		}
		start, ok := open[ev.Pitch]
		if !ok {
			continue // off without a matching on
		}
		delete(open, ev.Pitch)
		startBeat := start.At.Seconds() * beatsPerSecond
		durBeats := (ev.At - start.At).Seconds() * beatsPerSecond
		n, err := NewNote(ev.Pitch, startBeat, max(minCapturedBeats, durBeats), start.Velocity)
		if err != nil {
			continue
		}
		notes = append(notes, n)
	}

	// Notes still held at window end get a fixed fallback duration.
	for _, start := range open {
		startBeat := start.At.Seconds() * beatsPerSecond
		n, err := NewNote(start.Pitch, startBeat, openNoteBeats, start.Velocity)
		if err != nil {
			continue
		}
		notes = append(notes, n)
	}

	if len(notes) == 0 {
		return nil, false
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Start < notes[j].Start })

	totalBeats := 0.0
	for _, n := range notes {
		if end := n.Start + n.Duration; end > totalBeats {
			totalBeats = end
		}
	}
	bars := int((totalBeats + 3.999) / 4)
	switch {
	case bars < 1:
		bars = 1
	case bars == 3, bars > 4:
		bars = 4
	}

	p, err := New(notes, Meta{
		ID:         "response-" + uuid.NewString(),
		Name:       "Student response",
		Style:      "student_response",
		Difficulty: 1,
		Key:        "unknown",
		Tempo:      bpm,
		Bars:       bars,
	})
	if err != nil {
		return nil, false
	}
	return p, true
}
