// Package session runs the call-and-response practice loop: play a phrase,
// listen for the student, record their response, grade it, and adjust
// difficulty before the next round.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/eholly1/music-tutor/internal/clock"
	"github.com/eholly1/music-tutor/internal/eval"
	"github.com/eholly1/music-tutor/internal/phrase"
	"github.com/eholly1/music-tutor/internal/player"
)

// State is the session's current phase.
type State string

const (
	StateIdle      State = "IDLE"
	StatePlayback  State = "PLAYBACK"
	StateListening State = "LISTENING"
	StateRecording State = "RECORDING_RESPONSE"
	StateFeedback  State = "FEEDBACK"
)

const (
	listenPoll           = 50 * time.Millisecond
	defaultInputTimeout  = 15 * time.Second
	defaultFeedbackPause = 2500 * time.Millisecond
)

// Config holds session parameters.
type Config struct {
	BPM           float64
	Style         string
	Difficulty    int
	InputTimeout  time.Duration // how long LISTENING waits for a first note
	FeedbackPause time.Duration // how long FEEDBACK stays on screen
}

// phrasePlayer is the slice of player.Player the session drives.
type phrasePlayer interface {
	Play(ctx context.Context, ph *phrase.Phrase, clk clock.SessionClock) player.Outcome
	Stop()
	OnFinished(func(*phrase.Phrase, bool))
}

// captureSource is the slice of midiin.Processor the session reads.
type captureSource interface {
	Clear()
	Started() bool
	StartedAt() time.Time
	NoteCount() int
	Finalize(at time.Time) []phrase.CapturedEvent
}

// Accompanist is an optional backing-rhythm engine.
type Accompanist interface {
	Start(ctx context.Context, clk clock.SessionClock)
	Stop()
}

// Attempt is one completed call-and-response round.
type Attempt struct {
	Target     *phrase.Phrase
	Response   *phrase.Phrase
	Evaluation eval.Evaluation
	At         time.Time
}

// Stats is a point-in-time snapshot for status display.
type Stats struct {
	State      State
	Cycles     int
	Attempts   int
	Difficulty int
	Style      string
	BPM        float64
	LastGrade  string
}

// Manager owns the session state machine. One practice loop goroutine walks
// IDLE -> PLAYBACK -> LISTENING -> RECORDING_RESPONSE -> FEEDBACK and back;
// everything else observes through events and Stats.
type Manager struct {
	cfg       Config
	library   *phrase.Library
	player    phrasePlayer
	capture   captureSource
	evaluator eval.Evaluator
	drums     Accompanist // nil when accompaniment is off
	events    *Broadcaster

	mu      sync.Mutex
	state   State
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	current    *phrase.Phrase
	difficulty int
	cycles     int
	history    []Attempt

	finishedCh chan bool
}

// New wires a session manager. drums may be nil.
func New(cfg Config, lib *phrase.Library, pl phrasePlayer, capture captureSource, ev eval.Evaluator, drums Accompanist) *Manager {
	if cfg.InputTimeout <= 0 {
		cfg.InputTimeout = defaultInputTimeout
	}
	if cfg.FeedbackPause <= 0 {
		cfg.FeedbackPause = defaultFeedbackPause
	}
	if cfg.Difficulty < 1 || cfg.Difficulty > 5 {
		cfg.Difficulty = 2
	}
	m := &Manager{
		cfg:        cfg,
		library:    lib,
		player:     pl,
		capture:    capture,
		evaluator:  ev,
		drums:      drums,
		events:     NewBroadcaster(),
		state:      StateIdle,
		difficulty: cfg.Difficulty,
		finishedCh: make(chan bool, 1),
	}
	pl.OnFinished(func(_ *phrase.Phrase, completed bool) {
		select {
		case m.finishedCh <- completed:
		default:
		}
	})
	return m
}

// Events returns the session's event broadcaster.
func (m *Manager) Events() *Broadcaster { return m.events }

// State returns the current phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of session progress.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		State:      m.state,
		Cycles:     m.cycles,
		Attempts:   len(m.history),
		Difficulty: m.difficulty,
		Style:      m.cfg.Style,
		BPM:        m.cfg.BPM,
	}
	if n := len(m.history); n > 0 {
		s.LastGrade = m.history[n-1].Evaluation.Grade
	}
	return s
}

// History returns a copy of all graded attempts.
func (m *Manager) History() []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attempt, len(m.history))
	copy(out, m.history)
	return out
}

// Start launches the practice loop. Starting a running session is an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("session: already running")
	}
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// Stop interrupts the loop wherever it is, stopping playback and
// accompaniment before returning.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	defer func() {
		m.player.Stop()
		if m.drums != nil {
			m.drums.Stop()
		}
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.setState(StateIdle)
		m.events.Publish(Event{Type: EventSessionStopped, State: StateIdle})
		log.Printf("session: stopped after %d cycles", m.Stats().Cycles)
	}()

	clk := clock.New(time.Now(), m.cfg.BPM)
	if m.drums != nil {
		m.drums.Start(ctx, clk)
	}
	m.events.Publish(Event{Type: EventSessionStarted, State: StateIdle})
	log.Printf("session: started style=%s difficulty=%d bpm=%.0f", m.cfg.Style, m.difficulty, m.cfg.BPM)

	for ctx.Err() == nil {
		if !m.runCycle(ctx, clk) {
			return
		}
		m.mu.Lock()
		m.cycles++
		m.mu.Unlock()
	}
}

// runCycle executes one full call-and-response round. It returns false when
// the session should end.
func (m *Manager) runCycle(ctx context.Context, clk clock.SessionClock) bool {
	target := m.nextPhrase()
	if target == nil {
		log.Printf("session: no phrase available for style=%q difficulty=%d", m.cfg.Style, m.currentDifficulty())
		return false
	}

	// PLAYBACK: play the call and wait for it to finish.
	m.setState(StatePlayback)

	drainBool(m.finishedCh)
	switch outcome := m.player.Play(ctx, target, clk); outcome {
	case player.Started:
		m.events.Publish(Event{Type: EventPhraseStarted, State: StatePlayback, Phrase: target})
	case player.Busy:
		log.Printf("session: player busy, skipping cycle")
		return sleepCtx(ctx, 500*time.Millisecond)
	case player.NoOutput:
		log.Printf("session: no instrument attached, ending session")
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case completed := <-m.finishedCh:
		if !completed {
			return false
		}
	}

	// LISTENING: poll for the student's first note.
	m.capture.Clear()
	m.setState(StateListening)
	m.events.Publish(Event{Type: EventListening, State: StateListening, Phrase: target})

	deadline := time.Now().Add(m.cfg.InputTimeout)
	for !m.capture.Started() {
		if time.Now().After(deadline) {
			// No response: replay the same phrase rather than grading
			// silence.
			log.Printf("session: no input within %v, replaying phrase", m.cfg.InputTimeout)
			m.events.Publish(Event{Type: EventNoResponse, State: StateListening, Phrase: target})
			return sleepCtx(ctx, m.cfg.FeedbackPause)
		}
		if !sleepCtx(ctx, listenPoll) {
			return false
		}
	}

	// RECORDING_RESPONSE: the window opens at the first note and spans the
	// target's length at the session tempo.
	m.setState(StateRecording)
	m.events.Publish(Event{Type: EventRecordingStarted, State: StateRecording, Phrase: target})

	window := clk.BeatsToDuration(target.DurationBeats())
	if !sleepCtx(ctx, time.Until(m.capture.StartedAt().Add(window))) {
		return false
	}

	events := m.capture.Finalize(time.Now())
	response, ok := phrase.FromCapture(events, m.cfg.BPM)
	if !ok {
		response = nil
	}
	m.events.Publish(Event{Type: EventRecordingFinished, State: StateRecording, Phrase: response})

	return m.giveFeedback(ctx, target, response)
}

// giveFeedback grades the response, publishes the result, applies the
// recommendation, and holds the feedback pause.
func (m *Manager) giveFeedback(ctx context.Context, target, response *phrase.Phrase) bool {
	m.setState(StateFeedback)

	evaluation, err := m.evaluator.Evaluate(ctx, target, response)
	if err != nil {
		log.Printf("session: evaluation failed: %v", err)
		evaluation = eval.Evaluation{
			Grade:          "C",
			Positive:       "You stayed with it.",
			Improvement:    "Let's try that one again.",
			Recommendation: eval.Repeat,
			Confidence:     0.0,
		}
	}
	log.Printf("session: grade=%s recommendation=%s (%s %s)", evaluation.Grade, evaluation.Recommendation, evaluation.Positive, evaluation.Improvement)

	m.mu.Lock()
	m.history = append(m.history, Attempt{
		Target:     target,
		Response:   response,
		Evaluation: evaluation,
		At:         time.Now(),
	})
	m.difficulty = evaluation.Recommendation.Adjust(m.difficulty)
	if evaluation.Recommendation != eval.Repeat {
		m.current = nil // pick a fresh phrase next round
	}
	m.mu.Unlock()

	m.events.Publish(Event{Type: EventEvaluated, State: StateFeedback, Phrase: target, Evaluation: &evaluation})

	return sleepCtx(ctx, m.cfg.FeedbackPause)
}

// nextPhrase returns the phrase for the coming round: the previous one when
// the evaluator asked for a repeat, otherwise a fresh selection at the
// current difficulty.
func (m *Manager) nextPhrase() *phrase.Phrase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current
	}
	ph, ok := m.library.Select(m.cfg.Style, m.difficulty)
	if !ok {
		return nil
	}
	m.current = ph
	return ph
}

func (m *Manager) currentDifficulty() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.difficulty
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	m.events.Publish(Event{Type: EventStateChanged, State: s})
}

// sleepCtx sleeps for d or until cancellation, reporting whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func drainBool(ch chan bool) {
	select {
	case <-ch:
	default:
	}
}
