package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Audio output
	SampleRate int
	BufferSize int

	// Session behavior
	BPM           float64
	Style         string
	Difficulty    int
	InputTimeout  time.Duration // how long to wait for the student's first note
	FeedbackPause time.Duration // how long feedback stays up between rounds

	// MIDI input
	MIDIPort string // substring match against port names; empty = first port

	// Accompaniment
	DrumsEnabled bool
	DrumGain     float64

	// Evaluation
	OllamaURL   string // empty disables LLM grading
	OllamaModel string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		SampleRate: envInt("TUTOR_SAMPLE_RATE", 44100),
		BufferSize: envInt("TUTOR_BUFFER_SIZE", 512),

		BPM:           envFloat("TUTOR_BPM", 120),
		Style:         envStr("TUTOR_STYLE", "modal_jazz"),
		Difficulty:    envInt("TUTOR_DIFFICULTY", 2),
		InputTimeout:  time.Duration(envInt("TUTOR_INPUT_TIMEOUT", 15)) * time.Second,
		FeedbackPause: time.Duration(envInt("TUTOR_FEEDBACK_PAUSE_MS", 2500)) * time.Millisecond,

		MIDIPort: envStr("TUTOR_MIDI_PORT", ""),

		DrumsEnabled: envBool("TUTOR_DRUMS", true),
		DrumGain:     envFloat("TUTOR_DRUM_GAIN", 0.6),

		OllamaURL:   envStr("TUTOR_OLLAMA_URL", ""),
		OllamaModel: envStr("TUTOR_OLLAMA_MODEL", "llama3.2"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
