// Package drums generates procedural percussion accompaniment locked to a
// session clock. A poll loop watches the clock for beat crossings and queues
// synthesized hit buffers, which the audio engine drains sample-accurately
// through Generate.
package drums

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/eholly1/music-tutor/internal/clock"
)

const (
	pollInterval = 10 * time.Millisecond

	// maxQueued bounds the number of in-flight hit buffers so a stalled
	// audio callback cannot grow the queue without limit.
	maxQueued = 10

	defaultMixGain = 0.6
)

// chunk is one synthesized hit part-way through playback. pos carries over
// between Generate calls so hits spanning buffer boundaries stay continuous.
type chunk struct {
	samples []float64
	pos     int
}

// Engine schedules and renders one bar of percussion in a loop. Start and
// Stop bracket the poll loop; Generate may be called at any time and yields
// silence when nothing is queued.
type Engine struct {
	sampleRate float64

	mu      sync.Mutex
	pattern Pattern
	style   string
	gain    float64
	active  []*chunk
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(sampleRate float64) *Engine {
	return &Engine{
		sampleRate: sampleRate,
		pattern:    PatternFor("modal_jazz"),
		style:      "modal_jazz",
		gain:       defaultMixGain,
	}
}

// SetGain adjusts how loud the kit sits in the mix, clamped to [0, 1].
func (e *Engine) SetGain(g float64) {
	if g < 0 {
		g = 0
	} else if g > 1 {
		g = 1
	}
	e.mu.Lock()
	e.gain = g
	e.mu.Unlock()
}

// SetStyle switches the looped pattern. Unknown styles fall back to the
// default pattern; the change takes effect at the next beat crossing.
func (e *Engine) SetStyle(style string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.style = style
	e.pattern = PatternFor(style)
}

// Start launches the poll loop against the given clock. Starting a running
// engine is a no-op.
func (e *Engine) Start(ctx context.Context, clk clock.SessionClock) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop(ctx, clk)
	log.Printf("drums: started style=%s bpm=%.1f", e.Style(), clk.BPM)
}

// Stop halts scheduling and discards any queued hits.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()
	log.Printf("drums: stopped")
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) Style() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.style
}

// loop polls the clock and fires every pattern hit whose absolute beat
// position was crossed since the previous tick. Crossings are computed by
// occurrence index, so a late tick fires the hit once rather than missing
// it or doubling it.
func (e *Engine) loop(ctx context.Context, clk clock.SessionClock) {
	defer e.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := clk.Beats(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := clk.Beats(time.Now())
			e.fireCrossings(last, now)
			last = now
		}
	}
}

// fireCrossings triggers each hit whose occurrence falls in (last, now].
// Occurrences of a hit at bar position b repeat every bar: b-1, b+3, b+7...
// in absolute beats from the clock anchor.
func (e *Engine) fireCrossings(last, now float64) {
	e.mu.Lock()
	p := e.pattern
	e.mu.Unlock()

	fire := func(hits []Hit, synth func(float64, float64) []float64) {
		for _, h := range hits {
			pos := h.Beat - 1 // absolute beats are zero-based
			// First occurrence index strictly after last.
			k := int(math.Floor((last-pos)/clock.BeatsPerBar)) + 1
			if k < 0 {
				k = 0
			}
			for {
				at := pos + float64(k)*clock.BeatsPerBar
				if at > now {
					break
				}
				if at > last {
					e.enqueue(synth(e.sampleRate, h.Velocity))
				}
				k++
			}
		}
	}
	fire(p.Kick, Kick)
	fire(p.Snare, Snare)
	fire(p.HiHat, HiHat)
}

func (e *Engine) enqueue(samples []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.active) >= maxQueued {
		e.active = e.active[1:]
		log.Printf("drums: hit queue full, dropping oldest")
	}
	e.active = append(e.active, &chunk{samples: samples})
}

// Generate mixes all in-flight hits into out at the accompaniment gain,
// carrying partial buffers over to the next call. Finished hits are dropped.
func (e *Engine) Generate(out []float64) {
	for i := range out {
		out[i] = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.active[:0]
	for _, c := range e.active {
		n := min(len(out), len(c.samples)-c.pos)
		for i := 0; i < n; i++ {
			out[i] += c.samples[c.pos+i] * e.gain
		}
		c.pos += n
		if c.pos < len(c.samples) {
			kept = append(kept, c)
		}
	}
	e.active = kept
}
