package phrase

import (
	"log"
	"math/rand/v2"
	"sync"
)

// Library is an in-memory phrase store organized by style and difficulty.
// Loading phrases from files is a host concern; the library ships with a
// built-in seed set so a session always has material.
type Library struct {
	mu      sync.RWMutex
	phrases []*Phrase
}

// NewLibrary returns a library pre-seeded with the built-in phrases.
func NewLibrary() *Library {
	l := &Library{}
	for _, p := range builtinPhrases() {
		l.Add(p)
	}
	return l
}

// Add registers a phrase.
func (l *Library) Add(p *Phrase) {
	l.mu.Lock()
	l.phrases = append(l.phrases, p)
	l.mu.Unlock()
}

// Len returns the number of stored phrases.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.phrases)
}

// Filter returns phrases matching the style and difficulty. Empty style or
// difficulty 0 match everything.
func (l *Library) Filter(style string, difficulty int) []*Phrase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Phrase
	for _, p := range l.phrases {
		if style != "" && p.Style != style {
			continue
		}
		if difficulty != 0 && p.Difficulty != difficulty {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Select picks a random phrase for the style and difficulty. If nothing
// matches exactly it falls back to any difficulty within the style, so a
// session never stalls on a sparse library.
func (l *Library) Select(style string, difficulty int) (*Phrase, bool) {
	candidates := l.Filter(style, difficulty)
	if len(candidates) == 0 {
		candidates = l.Filter(style, 0)
		if len(candidates) == 0 {
			return nil, false
		}
		log.Printf("Library: no phrases for style=%s difficulty=%d, using any difficulty", style, difficulty)
	}
	return candidates[rand.IntN(len(candidates))], true
}

// scalePhrase builds an ascending one-note-per-beat phrase from intervals
// above a root pitch, slightly detached (0.8 beats per note).
func scalePhrase(id, name, style, key string, difficulty, root int, intervals []int) *Phrase {
	notes := make([]Note, 0, len(intervals))
	for i, iv := range intervals {
		n, err := NewNote(root+iv, float64(i), 0.8, 80)
		if err != nil {
			continue
		}
		notes = append(notes, n)
	}
	bars := max(1, len(intervals)/4)
	if bars == 3 {
		bars = 4
	}
	p, err := New(notes, Meta{
		ID:         id,
		Name:       name,
		Style:      style,
		Difficulty: difficulty,
		Key:        key,
		Bars:       bars,
	})
	if err != nil {
		log.Printf("Library: bad builtin phrase %s: %v", id, err)
		return nil
	}
	return p
}

func motifPhrase(id, name, style, key string, difficulty, bars int, notes []Note) *Phrase {
	p, err := New(notes, Meta{
		ID:         id,
		Name:       name,
		Style:      style,
		Difficulty: difficulty,
		Key:        key,
		Bars:       bars,
	})
	if err != nil {
		log.Printf("Library: bad builtin phrase %s: %v", id, err)
		return nil
	}
	return p
}

func mustNote(pitch int, start, duration float64, velocity int) Note {
	n, err := NewNote(pitch, start, duration, velocity)
	if err != nil {
		panic(err)
	}
	return n
}

// builtinPhrases covers three styles at difficulties 1-3; enough material
// for the recommendation loop to simplify and complexify within.
func builtinPhrases() []*Phrase {
	var out []*Phrase
	add := func(p *Phrase) {
		if p != nil {
			out = append(out, p)
		}
	}

	// Modal jazz: D dorian.
	add(scalePhrase("mj-1a", "Dorian steps up", "modal_jazz", "D_dorian", 1, 62, []int{0, 2, 3, 5}))
	add(scalePhrase("mj-1b", "Dorian steps down", "modal_jazz", "D_dorian", 1, 69, []int{0, -2, -4, -5}))
	add(motifPhrase("mj-2a", "Dorian skip motif", "modal_jazz", "D_dorian", 2, 2, []Note{
		mustNote(62, 0, 0.8, 80),
		mustNote(65, 1, 0.8, 80),
		mustNote(64, 2, 0.8, 75),
		mustNote(67, 3, 1.5, 85),
		mustNote(65, 5, 0.8, 75),
		mustNote(62, 6, 1.5, 80),
	}))
	add(motifPhrase("mj-3a", "So What answer", "modal_jazz", "D_dorian", 3, 2, []Note{
		mustNote(62, 0, 0.4, 80),
		mustNote(64, 0.5, 0.4, 75),
		mustNote(65, 1, 0.4, 80),
		mustNote(67, 1.5, 0.4, 80),
		mustNote(69, 2, 0.8, 90),
		mustNote(67, 3, 0.4, 75),
		mustNote(65, 3.5, 0.4, 75),
		mustNote(64, 4, 1.5, 80),
		mustNote(62, 6, 1.5, 85),
	}))

	// Blues: A minor pentatonic flavor.
	add(scalePhrase("bl-1a", "Pentatonic climb", "blues", "A_minor", 1, 57, []int{0, 3, 5, 7}))
	add(motifPhrase("bl-2a", "Blue note turn", "blues", "A_minor", 2, 2, []Note{
		mustNote(57, 0, 0.8, 85),
		mustNote(60, 1, 0.8, 80),
		mustNote(62, 2, 0.4, 80),
		mustNote(63, 2.5, 0.4, 90),
		mustNote(62, 3, 0.8, 80),
		mustNote(57, 4, 2.0, 85),
	}))
	add(motifPhrase("bl-3a", "Shuffle lick", "blues", "A_minor", 3, 2, []Note{
		mustNote(57, 0, 0.3, 85),
		mustNote(60, 0.5, 0.3, 80),
		mustNote(62, 1, 0.3, 80),
		mustNote(63, 1.5, 0.3, 90),
		mustNote(64, 2, 0.5, 95),
		mustNote(62, 2.5, 0.3, 80),
		mustNote(60, 3, 0.3, 75),
		mustNote(57, 3.5, 0.5, 80),
		mustNote(55, 4, 1.0, 75),
		mustNote(57, 5.5, 1.5, 85),
	}))

	// Folk: G major.
	add(scalePhrase("fk-1a", "Major steps", "folk", "G_major", 1, 67, []int{0, 2, 4, 5}))
	add(motifPhrase("fk-2a", "Campfire call", "folk", "G_major", 2, 2, []Note{
		mustNote(67, 0, 0.8, 80),
		mustNote(71, 1, 0.8, 80),
		mustNote(74, 2, 1.5, 85),
		mustNote(72, 4, 0.8, 75),
		mustNote(71, 5, 0.8, 75),
		mustNote(67, 6, 1.5, 80),
	}))

	return out
}
