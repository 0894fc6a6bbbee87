package phrase

import (
	"fmt"
	"log"
	"math"
)

// TimeSignature is beats per bar over the beat unit, e.g. 4/4.
type TimeSignature struct {
	Beats int
	Unit  int
}

// Note is one note of a phrase: MIDI pitch, beat-relative start, length in
// beats, and velocity. Immutable once constructed.
type Note struct {
	Pitch    int
	Start    float64 // beat position within the phrase, 0.0 = phrase start
	Duration float64 // length in beats
	Velocity int
}

// NewNote validates the MIDI ranges and timing before constructing.
func NewNote(pitch int, start, duration float64, velocity int) (Note, error) {
	if pitch < 0 || pitch > 127 {
		return Note{}, fmt.Errorf("pitch must be 0-127, got %d", pitch)
	}
	if velocity < 0 || velocity > 127 {
		return Note{}, fmt.Errorf("velocity must be 0-127, got %d", velocity)
	}
	if start < 0 {
		return Note{}, fmt.Errorf("start must be >= 0, got %f", start)
	}
	if duration <= 0 {
		return Note{}, fmt.Errorf("duration must be > 0, got %f", duration)
	}
	return Note{Pitch: pitch, Start: start, Duration: duration, Velocity: velocity}, nil
}

// Phrase is an ordered sequence of notes plus the metadata the session and
// the evaluator care about. Read-only during playback.
type Phrase struct {
	ID         string
	Name       string
	Notes      []Note
	Style      string
	Difficulty int // 1-5
	Key        string
	Tempo      float64 // BPM
	Bars       int     // 1, 2 or 4
	TimeSig    TimeSignature
}

// Meta carries the optional metadata for New; zero fields get defaults
// matching the library conventions.
type Meta struct {
	ID         string
	Name       string
	Style      string
	Difficulty int
	Key        string
	Tempo      float64
	Bars       int
	TimeSig    TimeSignature
}

// New validates metadata, applies defaults, and warns (without failing) about
// notes that extend past the phrase boundary.
func New(notes []Note, meta Meta) (*Phrase, error) {
	p := &Phrase{
		ID:         meta.ID,
		Name:       meta.Name,
		Notes:      notes,
		Style:      meta.Style,
		Difficulty: meta.Difficulty,
		Key:        meta.Key,
		Tempo:      meta.Tempo,
		Bars:       meta.Bars,
		TimeSig:    meta.TimeSig,
	}
	if p.Style == "" {
		p.Style = "modal_jazz"
	}
	if p.Difficulty == 0 {
		p.Difficulty = 2
	}
	if p.Key == "" {
		p.Key = "D_dorian"
	}
	if p.Tempo == 0 {
		p.Tempo = 120
	}
	if p.Bars == 0 {
		p.Bars = 2
	}
	if p.TimeSig == (TimeSignature{}) {
		p.TimeSig = TimeSignature{Beats: 4, Unit: 4}
	}
	if p.Name == "" {
		p.Name = "Musical phrase"
	}

	if p.Difficulty < 1 || p.Difficulty > 5 {
		return nil, fmt.Errorf("difficulty must be 1-5, got %d", p.Difficulty)
	}
	if p.Bars != 1 && p.Bars != 2 && p.Bars != 4 {
		return nil, fmt.Errorf("bars must be 1, 2 or 4, got %d", p.Bars)
	}
	if p.Tempo <= 0 {
		return nil, fmt.Errorf("tempo must be > 0, got %f", p.Tempo)
	}

	p.CheckTiming()
	return p, nil
}

// DurationBeats returns the declared phrase length in beats.
func (p *Phrase) DurationBeats() float64 {
	return float64(p.Bars * p.TimeSig.Beats)
}

// DurationSeconds returns the phrase length in seconds at the given tempo;
// bpm <= 0 uses the phrase's own tempo.
func (p *Phrase) DurationSeconds(bpm float64) float64 {
	if bpm <= 0 {
		bpm = p.Tempo
	}
	return p.DurationBeats() * 60.0 / bpm
}

// CheckTiming reports whether every note fits inside the declared duration.
// Overruns are logged, not fatal: a held final note is musically fine.
func (p *Phrase) CheckTiming() bool {
	total := p.DurationBeats()
	ok := true
	for _, n := range p.Notes {
		if end := n.Start + n.Duration; end > total {
			log.Printf("Phrase %s: note at beat %.2f ends at %.2f, past phrase end %.0f", p.ID, n.Start, end, total)
			ok = false
		}
	}
	return ok
}

func (p *Phrase) String() string {
	return fmt.Sprintf("Phrase(%q, %d notes, difficulty %d, %d bars, %.0f BPM)",
		p.Name, len(p.Notes), p.Difficulty, p.Bars, p.Tempo)
}

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Frequency converts a MIDI pitch to Hz by equal temperament (A4 = 69 = 440Hz).
func Frequency(pitch int) float64 {
	return 440.0 * math.Pow(2, float64(pitch-69)/12.0)
}

// NoteName returns the conventional name for a MIDI pitch, e.g. 60 -> "C4".
func NoteName(pitch int) string {
	return fmt.Sprintf("%s%d", noteNames[pitch%12], pitch/12-1)
}
