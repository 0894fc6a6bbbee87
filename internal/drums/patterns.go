package drums

// Hit places one drum voice at a beat position within a four-beat bar.
// Beat 1.0 is the downbeat; fractional positions are subdivisions.
type Hit struct {
	Beat     float64
	Velocity float64
}

// Pattern is one bar of accompaniment for a style, looped by the engine.
type Pattern struct {
	Kick  []Hit
	Snare []Hit
	HiHat []Hit
}

var patterns = map[string]Pattern{
	"modal_jazz": {
		Kick:  []Hit{{1, 0.8}, {3, 0.6}},
		Snare: []Hit{{2, 0.5}, {4, 0.5}},
		HiHat: []Hit{
			{1, 0.6}, {1.5, 0.3}, {2, 0.5}, {2.5, 0.3},
			{3, 0.6}, {3.5, 0.3}, {4, 0.5}, {4.5, 0.3},
		},
	},
	"blues": {
		Kick:  []Hit{{1, 0.9}, {3, 0.7}},
		Snare: []Hit{{2, 0.7}, {4, 0.7}},
		HiHat: []Hit{
			{1, 0.5}, {1.5, 0.25}, {2, 0.5}, {2.5, 0.25},
			{3, 0.5}, {3.5, 0.25}, {4, 0.5}, {4.5, 0.25},
		},
	},
	"folk": {
		Kick:  []Hit{{1, 0.8}, {3, 0.8}},
		Snare: []Hit{{2, 0.6}, {4, 0.6}},
		HiHat: []Hit{{1, 0.4}, {2, 0.4}, {3, 0.4}, {4, 0.4}},
	},
}

// PatternFor returns the one-bar pattern for a style, falling back to
// modal_jazz for styles without dedicated accompaniment.
func PatternFor(style string) Pattern {
	if p, ok := patterns[style]; ok {
		return p
	}
	return patterns["modal_jazz"]
}

// Styles lists the styles that have dedicated patterns.
func Styles() []string {
	out := make([]string, 0, len(patterns))
	for name := range patterns {
		out = append(out, name)
	}
	return out
}
