package drums

import (
	"math"
	"testing"
)

func TestPatternForFallsBack(t *testing.T) {
	got := PatternFor("zydeco")
	want := PatternFor("modal_jazz")
	if len(got.Kick) != len(want.Kick) || len(got.HiHat) != len(want.HiHat) {
		t.Errorf("unknown style should fall back to modal_jazz pattern")
	}
}

func TestFireCrossingsHitsEachBeatOnce(t *testing.T) {
	e := New(44100)
	e.SetStyle("folk") // 2 kicks, 2 snares, 4 hats per bar

	// Walk one full bar in coarse steps, stopping short of the next
	// downbeat; every hit must fire exactly once.
	step := 0.07
	last := -0.001
	for now := 0.0; now < 3.95; now += step {
		e.fireCrossings(last, now)
		last = now
	}
	if got := len(e.active); got != 8 {
		t.Errorf("expected 8 hits over one folk bar, got %d", got)
	}
}

func TestFireCrossingsSkipsBeatsBeforeAnchor(t *testing.T) {
	e := New(44100)
	e.fireCrossings(-0.5, -0.01)
	if len(e.active) != 0 {
		t.Errorf("no hits should fire before the clock anchor")
	}
}

func TestFireCrossingsCatchesLateTick(t *testing.T) {
	e := New(44100)
	e.SetStyle("folk")
	// A single late tick spanning beats 1 and 2 fires both downbeats.
	e.fireCrossings(-0.001, 1.2)
	// folk: kick@1, hat@1, kick absent@2? kick hits are beats 1 and 3;
	// snare@2, hat@1 and hat@2 -> kick1, hat1, snare2, hat2 = 4 hits.
	if got := len(e.active); got != 4 {
		t.Errorf("late tick should fire all crossed hits, got %d", got)
	}
}

func TestQueueCapDropsOldest(t *testing.T) {
	e := New(44100)
	for i := 0; i < maxQueued+3; i++ {
		e.enqueue([]float64{float64(i)})
	}
	if len(e.active) != maxQueued {
		t.Fatalf("queue length = %d, want %d", len(e.active), maxQueued)
	}
	if e.active[0].samples[0] != 3 {
		t.Errorf("oldest chunks should be dropped first")
	}
}

func TestGenerateCarriesChunksAcrossBuffers(t *testing.T) {
	e := New(44100)
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = 1
	}
	e.enqueue(samples)

	buf := make([]float64, 64)
	e.Generate(buf)
	if buf[0] != defaultMixGain || buf[63] != defaultMixGain {
		t.Errorf("first buffer should carry the hit at mix gain")
	}

	e.Generate(buf)
	if buf[35] != defaultMixGain {
		t.Errorf("remaining 36 samples should carry into the second buffer")
	}
	if buf[36] != 0 {
		t.Errorf("samples past the hit end should be silent, got %v", buf[36])
	}
	if len(e.active) != 0 {
		t.Errorf("finished chunks should be dropped")
	}
}

func TestSetGainScalesOutput(t *testing.T) {
	e := New(44100)
	e.SetGain(0.25)
	e.enqueue([]float64{1})
	buf := make([]float64, 2)
	e.Generate(buf)
	if buf[0] != 0.25 {
		t.Errorf("sample = %v, want 0.25", buf[0])
	}
	e.SetGain(3)
	e.SetGain(-1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gain != 0 {
		t.Errorf("gain should clamp to 0, got %v", e.gain)
	}
}

func TestGenerateMixesOverlappingHits(t *testing.T) {
	e := New(44100)
	e.enqueue([]float64{1, 1})
	e.enqueue([]float64{1, 1})
	buf := make([]float64, 4)
	e.Generate(buf)
	if math.Abs(buf[0]-2*defaultMixGain) > 1e-9 {
		t.Errorf("overlapping hits should sum, got %v", buf[0])
	}
}

func TestDrumVoicesDecay(t *testing.T) {
	for name, buf := range map[string][]float64{
		"kick":  Kick(44100, 0.8),
		"snare": Snare(44100, 0.8),
		"hihat": HiHat(44100, 0.8),
	} {
		if len(buf) == 0 {
			t.Fatalf("%s: empty buffer", name)
		}
		head, tail := peakRange(buf[:len(buf)/8]), peakRange(buf[len(buf)-len(buf)/8:])
		if tail >= head {
			t.Errorf("%s: tail peak %v not below head peak %v", name, tail, head)
		}
		for i, s := range buf {
			if math.IsNaN(s) || math.Abs(s) > 4 {
				t.Fatalf("%s: wild sample %v at %d", name, s, i)
			}
		}
	}
}

func TestKickStartsWithClickTransient(t *testing.T) {
	buf := Kick(44100, 1)
	if buf[0] < 0.29 {
		t.Errorf("kick sample 0 should carry the click transient, got %v", buf[0])
	}
}

func peakRange(buf []float64) float64 {
	p := 0.0
	for _, s := range buf {
		if a := math.Abs(s); a > p {
			p = a
		}
	}
	return p
}
