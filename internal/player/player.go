// Package player schedules phrase playback against the session clock. Play
// waits for the next downbeat, then walks the phrase's note events in time
// order, sending note-on/note-off pairs to the instrument.
package player

import (
	"container/heap"
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/eholly1/music-tutor/internal/clock"
	"github.com/eholly1/music-tutor/internal/phrase"
)

// NoteSink receives scheduled note events.
type NoteSink interface {
	NoteOn(pitch, velocity int)
	NoteOff(pitch int)
}

// Outcome reports how a Play request was handled.
type Outcome int

const (
	// Started means playback was accepted and is running.
	Started Outcome = iota
	// Busy means another phrase is still playing.
	Busy
	// NoOutput means no instrument is attached.
	NoOutput
)

func (o Outcome) String() string {
	switch o {
	case Started:
		return "started"
	case Busy:
		return "busy"
	case NoOutput:
		return "no_output"
	default:
		return "unknown"
	}
}

// Player plays one phrase at a time. Callbacks fire from the playback
// goroutine; keep them short.
type Player struct {
	sink NoteSink

	mu      sync.Mutex
	playing bool
	current *phrase.Phrase
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	onStarted  func(*phrase.Phrase)
	onFinished func(*phrase.Phrase, bool)
}

func New(sink NoteSink) *Player {
	return &Player{sink: sink}
}

// OnStarted registers a callback fired when the downbeat arrives and the
// first events are about to be scheduled.
func (p *Player) OnStarted(fn func(*phrase.Phrase)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStarted = fn
}

// OnFinished registers a callback fired when playback ends. completed is
// false when playback was stopped early.
func (p *Player) OnFinished(fn func(*phrase.Phrase, bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFinished = fn
}

// Play begins phrase playback at the clock's next downbeat. It returns
// immediately; the outcome says whether playback actually started.
func (p *Player) Play(ctx context.Context, ph *phrase.Phrase, clk clock.SessionClock) Outcome {
	p.mu.Lock()
	if p.sink == nil {
		p.mu.Unlock()
		log.Printf("player: no instrument attached, skipping %q", ph.Name)
		return NoOutput
	}
	if p.playing {
		p.mu.Unlock()
		return Busy
	}
	p.playing = true
	p.current = ph
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, ph, clk)
	return Started
}

// Stop interrupts playback, releasing any sounding notes before returning.
// Stopping an idle player is a no-op.
func (p *Player) Stop() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// Playing reports whether a phrase is currently scheduled or sounding.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Current returns the phrase in flight, or nil when idle.
func (p *Player) Current() *phrase.Phrase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Player) run(ctx context.Context, ph *phrase.Phrase, clk clock.SessionClock) {
	defer p.wg.Done()

	completed := false
	defer func() {
		p.mu.Lock()
		p.playing = false
		p.current = nil
		fn := p.onFinished
		p.mu.Unlock()
		if fn != nil {
			fn(ph, completed)
		}
	}()

	start := clk.NextDownbeat(time.Now())
	if !sleepUntil(ctx, start) {
		return
	}

	p.mu.Lock()
	started := p.onStarted
	p.mu.Unlock()
	if started != nil {
		started(ph)
	}
	log.Printf("player: playing %q (%d notes, %d bars)", ph.Name, len(ph.Notes), ph.Bars)

	notes := make([]phrase.Note, len(ph.Notes))
	copy(notes, ph.Notes)
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Start < notes[j].Start })

	var offs offQueue
	next := 0
	for next < len(notes) || offs.Len() > 0 {
		// Pick whichever comes first: the next onset or the next release.
		// Releases win ties so a repeated pitch is re-struck cleanly.
		var at time.Time
		isOn := false
		if offs.Len() > 0 {
			at = offs[0].at
		}
		if next < len(notes) {
			onAt := start.Add(clk.BeatsToDuration(notes[next].Start))
			if offs.Len() == 0 || onAt.Before(offs[0].at) {
				at = onAt
				isOn = true
			}
		}

		if !sleepUntil(ctx, at) {
			// Interrupted: release everything still sounding.
			for offs.Len() > 0 {
				ev := heap.Pop(&offs).(offEvent)
				p.sink.NoteOff(ev.pitch)
			}
			return
		}

		if isOn {
			n := notes[next]
			next++
			p.sink.NoteOn(n.Pitch, n.Velocity)
			heap.Push(&offs, offEvent{
				at:    start.Add(clk.BeatsToDuration(n.Start + n.Duration)),
				pitch: n.Pitch,
			})
		} else {
			ev := heap.Pop(&offs).(offEvent)
			p.sink.NoteOff(ev.pitch)
		}
	}

	// Hold through the phrase's declared length so the trailing rest is part
	// of the call, not the student's turn.
	if !sleepUntil(ctx, start.Add(clk.BeatsToDuration(ph.DurationBeats()))) {
		return
	}
	completed = true
}

// sleepUntil blocks until the deadline or cancellation. It reports whether
// the deadline was reached.
func sleepUntil(ctx context.Context, at time.Time) bool {
	d := time.Until(at)
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
