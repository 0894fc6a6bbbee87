// Package eval grades a student's response against the target phrase and
// recommends what the session should do next.
package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/eholly1/music-tutor/internal/phrase"
)

// Recommendation is the evaluator's advice for the next exercise.
type Recommendation string

const (
	Repeat     Recommendation = "REPEAT"
	Simplify   Recommendation = "SIMPLIFY"
	Complexify Recommendation = "COMPLEXIFY"
	NewPhrase  Recommendation = "SAME_DIFFICULTY_NEW_PHRASE"
)

// Valid reports whether r is one of the defined recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case Repeat, Simplify, Complexify, NewPhrase:
		return true
	}
	return false
}

// Adjust applies the recommendation to a difficulty level, clamped to the
// library's 1..5 range.
func (r Recommendation) Adjust(difficulty int) int {
	switch r {
	case Simplify:
		if difficulty > 1 {
			return difficulty - 1
		}
	case Complexify:
		if difficulty < 5 {
			return difficulty + 1
		}
	}
	return difficulty
}

// Evaluation is one graded attempt. Positive always names something that
// went well; Improvement is the one thing to fix next.
type Evaluation struct {
	Grade          string
	Positive       string
	Improvement    string
	Recommendation Recommendation
	Confidence     float64
}

// Evaluator grades a response against its target.
type Evaluator interface {
	Evaluate(ctx context.Context, target, response *phrase.Phrase) (Evaluation, error)
}

// Fallback grades on note count alone. It is the evaluator of last resort:
// always available, never wrong by much, never insightful.
type Fallback struct{}

func (Fallback) Evaluate(_ context.Context, target, response *phrase.Phrase) (Evaluation, error) {
	targetN := len(target.Notes)
	respN := 0
	if response != nil {
		respN = len(response.Notes)
	}
	if targetN == 0 {
		return Evaluation{}, fmt.Errorf("eval: target phrase has no notes")
	}

	ratio := float64(respN) / float64(targetN)
	ev := Evaluation{Confidence: 0.5}
	switch {
	case ratio >= 0.8:
		ev.Grade = "B+"
		ev.Positive = fmt.Sprintf("Good coverage: you played %d of %d notes.", respN, targetN)
		ev.Improvement = "Try again and focus on timing."
		ev.Recommendation = Repeat
	case ratio >= 0.5:
		ev.Grade = "C+"
		ev.Positive = fmt.Sprintf("You caught %d of %d notes.", respN, targetN)
		ev.Improvement = "Listen once more and try to catch the rest."
		ev.Recommendation = Repeat
	default:
		ev.Grade = "C"
		ev.Positive = "You gave it a try."
		ev.Improvement = fmt.Sprintf("Only %d of %d notes came through, so let's simplify.", respN, targetN)
		ev.Recommendation = Simplify
	}
	return ev, nil
}

// Summary renders a phrase as a compact note list for prompts and logs:
// name, then "C4@0.00x1.00" per note (pitch at start-beat times duration).
func Summary(p *phrase.Phrase) string {
	if p == nil || len(p.Notes) == 0 {
		return "(no notes)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d notes over %d bars at %.0f BPM: ", len(p.Notes), p.Bars, p.Tempo)
	for i, n := range p.Notes {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s@%.2fx%.2f", phrase.NoteName(n.Pitch), n.Start, n.Duration)
	}
	return b.String()
}
