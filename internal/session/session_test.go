package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eholly1/music-tutor/internal/clock"
	"github.com/eholly1/music-tutor/internal/eval"
	"github.com/eholly1/music-tutor/internal/phrase"
	"github.com/eholly1/music-tutor/internal/player"
)

type fakePlayer struct {
	mu         sync.Mutex
	outcome    player.Outcome
	played     []*phrase.Phrase
	onFinished func(*phrase.Phrase, bool)
}

func (f *fakePlayer) Play(_ context.Context, ph *phrase.Phrase, _ clock.SessionClock) player.Outcome {
	f.mu.Lock()
	f.played = append(f.played, ph)
	fn := f.onFinished
	out := f.outcome
	f.mu.Unlock()
	if out == player.Started && fn != nil {
		go func() {
			time.Sleep(2 * time.Millisecond)
			fn(ph, true)
		}()
	}
	return out
}

func (f *fakePlayer) Stop() {}

func (f *fakePlayer) OnFinished(fn func(*phrase.Phrase, bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFinished = fn
}

func (f *fakePlayer) playedPhrases() []*phrase.Phrase {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*phrase.Phrase, len(f.played))
	copy(out, f.played)
	return out
}

// fakeCapture simulates a student who starts playing the moment listening
// begins (autoStart) or never plays at all.
type fakeCapture struct {
	mu        sync.Mutex
	autoStart bool
	events    []phrase.CapturedEvent
	started   bool
	startAt   time.Time
}

func (f *fakeCapture) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	if f.autoStart {
		f.started = true
		f.startAt = time.Now()
	}
}

func (f *fakeCapture) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeCapture) StartedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startAt
}

func (f *fakeCapture) NoteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.On {
			n++
		}
	}
	return n
}

func (f *fakeCapture) Finalize(time.Time) []phrase.CapturedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

type fakeEvaluator struct {
	mu        sync.Mutex
	result    eval.Evaluation
	err       error
	responses []*phrase.Phrase
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _, response *phrase.Phrase) (eval.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response)
	return f.result, f.err
}

func (f *fakeEvaluator) seen() []*phrase.Phrase {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*phrase.Phrase, len(f.responses))
	copy(out, f.responses)
	return out
}

func testLibrary(t *testing.T, count int) *phrase.Library {
	t.Helper()
	lib := phrase.NewLibrary()
	for i := 0; i < count; i++ {
		n, err := phrase.NewNote(60+i, 0, 0.5, 90)
		if err != nil {
			t.Fatalf("NewNote: %v", err)
		}
		ph, err := phrase.New([]phrase.Note{n}, phrase.Meta{
			Name: "unit", Style: "unit_test", Difficulty: 2, Bars: 1,
		})
		if err != nil {
			t.Fatalf("phrase.New: %v", err)
		}
		lib.Add(ph)
	}
	return lib
}

func captureEvents() []phrase.CapturedEvent {
	return []phrase.CapturedEvent{
		{On: true, Pitch: 60, Velocity: 90, At: 0},
		{Pitch: 60, At: 200 * time.Millisecond},
	}
}

func testConfig() Config {
	return Config{
		BPM:           6000, // 10ms beats keep cycles short
		Style:         "unit_test",
		Difficulty:    2,
		InputTimeout:  200 * time.Millisecond,
		FeedbackPause: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionCompletesCycles(t *testing.T) {
	pl := &fakePlayer{}
	capture := &fakeCapture{autoStart: true, events: captureEvents()}
	ev := &fakeEvaluator{result: eval.Evaluation{Grade: "A", Recommendation: eval.Complexify, Confidence: 1}}
	m := New(testConfig(), testLibrary(t, 3), pl, capture, ev, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}

	waitFor(t, "two graded attempts", func() bool { return m.Stats().Attempts >= 2 })
	m.Stop()

	stats := m.Stats()
	if stats.State != StateIdle {
		t.Errorf("state after Stop = %s, want IDLE", stats.State)
	}
	if stats.LastGrade != "A" {
		t.Errorf("LastGrade = %q, want A", stats.LastGrade)
	}
	// Two COMPLEXIFY rounds raise difficulty 2 -> 4.
	if stats.Difficulty < 4 {
		t.Errorf("difficulty = %d, want at least 4", stats.Difficulty)
	}

	for i, resp := range ev.seen() {
		if resp == nil {
			t.Errorf("attempt %d graded with nil response", i)
		}
	}
	for _, a := range m.History() {
		if a.Target == nil || a.Response == nil {
			t.Errorf("history entry missing phrases: %+v", a)
		}
	}
}

func TestRepeatKeepsSamePhrase(t *testing.T) {
	pl := &fakePlayer{}
	capture := &fakeCapture{autoStart: true, events: captureEvents()}
	ev := &fakeEvaluator{result: eval.Evaluation{Grade: "B", Recommendation: eval.Repeat, Confidence: 1}}
	m := New(testConfig(), testLibrary(t, 5), pl, capture, ev, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "two playbacks", func() bool { return len(pl.playedPhrases()) >= 2 })
	m.Stop()

	played := pl.playedPhrases()
	if played[0] != played[1] {
		t.Errorf("REPEAT should replay the same phrase, got %q then %q", played[0].ID, played[1].ID)
	}
}

func TestInputTimeoutReplaysSamePhrase(t *testing.T) {
	pl := &fakePlayer{}
	capture := &fakeCapture{autoStart: false}
	ev := &fakeEvaluator{result: eval.Evaluation{Grade: "C", Recommendation: eval.Simplify, Confidence: 1}}

	cfg := testConfig()
	cfg.InputTimeout = 60 * time.Millisecond
	m := New(cfg, testLibrary(t, 3), pl, capture, ev, nil)

	sub := m.Events().Subscribe()
	defer m.Events().Unsubscribe(sub)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "two playbacks", func() bool { return len(pl.playedPhrases()) >= 2 })
	m.Stop()

	// Silence is not graded; the phrase just comes around again.
	if seen := ev.seen(); len(seen) != 0 {
		t.Errorf("timeout should not grade anything, got %d evaluations", len(seen))
	}
	played := pl.playedPhrases()
	if played[0] != played[1] {
		t.Errorf("timeout should replay the same phrase, got %q then %q", played[0].ID, played[1].ID)
	}

	sawNoResponse := false
	for {
		select {
		case e := <-sub.C:
			if e.Type == EventNoResponse {
				sawNoResponse = true
			}
			continue
		default:
		}
		break
	}
	if !sawNoResponse {
		t.Error("expected a no_response event")
	}
}

func TestEvaluatorErrorStillGradesAndContinues(t *testing.T) {
	pl := &fakePlayer{}
	capture := &fakeCapture{autoStart: true, events: captureEvents()}
	ev := &fakeEvaluator{err: errors.New("model unreachable")}
	m := New(testConfig(), testLibrary(t, 3), pl, capture, ev, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Two attempts prove the loop survives the first failure and reaches
	// playback again.
	waitFor(t, "two attempts despite evaluator errors", func() bool { return m.Stats().Attempts >= 2 })
	m.Stop()

	for i, a := range m.History() {
		if a.Evaluation.Grade == "" {
			t.Errorf("attempt %d has no grade", i)
		}
		if a.Evaluation.Positive == "" || a.Evaluation.Improvement == "" {
			t.Errorf("attempt %d missing feedback text: %+v", i, a.Evaluation)
		}
		if a.Evaluation.Recommendation != eval.Repeat {
			t.Errorf("attempt %d recommendation = %s, want REPEAT", i, a.Evaluation.Recommendation)
		}
	}
	if d := m.Stats().Difficulty; d != 2 {
		t.Errorf("degraded evaluations must not move difficulty, got %d", d)
	}
}

func TestNoOutputEndsSession(t *testing.T) {
	pl := &fakePlayer{outcome: player.NoOutput}
	capture := &fakeCapture{autoStart: true, events: captureEvents()}
	ev := &fakeEvaluator{result: eval.Evaluation{Grade: "A", Recommendation: eval.Repeat}}
	m := New(testConfig(), testLibrary(t, 1), pl, capture, ev, nil)

	sub := m.Events().Subscribe()
	defer m.Events().Unsubscribe(sub)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "session self-stop", func() bool {
		return len(pl.playedPhrases()) >= 1 && m.State() == StateIdle
	})
	if got := m.Stats().Attempts; got != 0 {
		t.Errorf("no attempts should be graded without output, got %d", got)
	}

	// Playback never started, so no phrase_started event may be announced.
	for {
		select {
		case e := <-sub.C:
			if e.Type == EventPhraseStarted {
				t.Error("phrase_started published for a cycle that never played")
			}
			continue
		default:
		}
		break
	}
}

func TestCycleEventOrdering(t *testing.T) {
	pl := &fakePlayer{}
	capture := &fakeCapture{autoStart: true, events: captureEvents()}
	ev := &fakeEvaluator{result: eval.Evaluation{Grade: "B+", Recommendation: eval.NewPhrase, Confidence: 0.8}}
	m := New(testConfig(), testLibrary(t, 3), pl, capture, ev, nil)

	sub := m.Events().Subscribe()
	defer m.Events().Unsubscribe(sub)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := []EventType{EventPhraseStarted, EventListening, EventRecordingStarted, EventRecordingFinished, EventEvaluated}
	got := make([]EventType, 0, len(want))
	deadline := time.After(3 * time.Second)
	for len(got) < len(want) {
		select {
		case e := <-sub.C:
			if e.Type == EventStateChanged || e.Type == EventSessionStarted {
				continue
			}
			got = append(got, e.Type)
		case <-deadline:
			t.Fatalf("timed out, saw %v", got)
		}
	}
	m.Stop()

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestBroadcasterDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < cap(sub.C)+10; i++ {
		b.Publish(Event{Type: EventStateChanged})
	}
	if got := len(sub.C); got != cap(sub.C) {
		t.Errorf("buffered events = %d, want full buffer %d", got, cap(sub.C))
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	if b.SubscriberCount() != 2 {
		t.Fatalf("count = %d, want 2", b.SubscriberCount())
	}
	b.Unsubscribe(s1)
	if b.SubscriberCount() != 1 {
		t.Errorf("count after unsubscribe = %d, want 1", b.SubscriberCount())
	}
	select {
	case <-s1.Done():
	default:
		t.Error("Done should be closed after Unsubscribe")
	}
	b.Unsubscribe(s2)
}
