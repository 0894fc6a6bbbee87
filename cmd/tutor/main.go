package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eholly1/music-tutor/internal/audio"
	"github.com/eholly1/music-tutor/internal/config"
	"github.com/eholly1/music-tutor/internal/drums"
	"github.com/eholly1/music-tutor/internal/eval"
	"github.com/eholly1/music-tutor/internal/midiin"
	"github.com/eholly1/music-tutor/internal/phrase"
	"github.com/eholly1/music-tutor/internal/player"
	"github.com/eholly1/music-tutor/internal/session"
	"github.com/eholly1/music-tutor/internal/synth"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("music-tutor starting up...")

	// Audio output: synth voice plus optional drum accompaniment.
	engine := audio.New(cfg.SampleRate, cfg.BufferSize)
	engine.SetInstrument(synth.New(float64(cfg.SampleRate)))

	var kit *drums.Engine
	if cfg.DrumsEnabled {
		kit = drums.New(float64(cfg.SampleRate))
		kit.SetStyle(cfg.Style)
		kit.SetGain(cfg.DrumGain)
		engine.SetAux(kit)
	}

	if err := engine.Start(); err != nil {
		log.Fatalf("audio: %v", err)
	}
	defer engine.Stop()

	// MIDI input: capture the student's responses and let them hear
	// themselves through the synth.
	processor := midiin.NewProcessor()
	processor.SetSink(engine)

	input, err := midiin.NewInput()
	if err != nil {
		log.Fatalf("midi: %v", err)
	}
	defer input.Close()

	if ports, err := input.Ports(); err == nil {
		log.Printf("midi: %d input port(s) available: %v", len(ports), ports)
	}
	if err := input.Listen(cfg.MIDIPort, processor); err != nil {
		log.Printf("midi: %v (responses will time out until a device is connected)", err)
	}

	// Evaluator: LLM grading when Ollama is configured, note-count
	// grading otherwise.
	var evaluator eval.Evaluator = eval.Fallback{}
	if cfg.OllamaURL != "" {
		client := eval.NewClient(cfg.OllamaURL, cfg.OllamaModel)
		checkCtx, checkCancel := context.WithTimeout(ctx, 5*time.Second)
		if client.Available(checkCtx) {
			evaluator = eval.NewOllama(client)
			log.Printf("Ollama connected: %s (LLM grading enabled)", cfg.OllamaModel)
		} else {
			log.Println("Ollama not reachable, using note-count grading")
		}
		checkCancel()
	} else {
		log.Println("Ollama not configured (set TUTOR_OLLAMA_URL to enable LLM grading)")
	}

	// Session loop.
	library := phrase.NewLibrary()
	pl := player.New(engine)

	var accompanist session.Accompanist
	if kit != nil {
		accompanist = kit
	}
	mgr := session.New(session.Config{
		BPM:           cfg.BPM,
		Style:         cfg.Style,
		Difficulty:    cfg.Difficulty,
		InputTimeout:  cfg.InputTimeout,
		FeedbackPause: cfg.FeedbackPause,
	}, library, pl, processor, evaluator, accompanist)

	sub := mgr.Events().Subscribe()
	defer mgr.Events().Unsubscribe(sub)
	go logEvents(ctx, sub)

	if err := mgr.Start(ctx); err != nil {
		log.Fatalf("session: %v", err)
	}

	log.Printf("practice session live: style=%s bpm=%.0f difficulty=%d", cfg.Style, cfg.BPM, cfg.Difficulty)
	<-ctx.Done()

	log.Println("Shutting down...")
	mgr.Stop()
}

// logEvents mirrors the session's progress to the log so a terminal user can
// follow the exercise.
func logEvents(ctx context.Context, sub *session.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case ev := <-sub.C:
			switch ev.Type {
			case session.EventPhraseStarted:
				log.Printf(">> listen: %s", ev.Phrase)
			case session.EventListening:
				log.Println(">> your turn")
			case session.EventRecordingStarted:
				log.Println(">> recording...")
			case session.EventNoResponse:
				log.Println(">> no response heard")
			case session.EventEvaluated:
				if ev.Evaluation != nil {
					log.Printf(">> grade %s: %s %s", ev.Evaluation.Grade, ev.Evaluation.Positive, ev.Evaluation.Improvement)
				}
			}
		}
	}
}
