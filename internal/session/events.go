package session

import (
	"sync"
	"time"

	"github.com/eholly1/music-tutor/internal/eval"
	"github.com/eholly1/music-tutor/internal/phrase"
)

// EventType labels session lifecycle events.
type EventType string

const (
	EventSessionStarted    EventType = "session_started"
	EventSessionStopped    EventType = "session_stopped"
	EventStateChanged      EventType = "state_changed"
	EventPhraseStarted     EventType = "phrase_started"
	EventListening         EventType = "listening"
	EventRecordingStarted  EventType = "recording_started"
	EventRecordingFinished EventType = "recording_finished"
	EventEvaluated         EventType = "evaluated"
	EventNoResponse        EventType = "no_response"
)

// Event is one session lifecycle notification. Phrase and Evaluation are
// set only when relevant to the event type.
type Event struct {
	Type       EventType
	State      State
	Phrase     *phrase.Phrase
	Evaluation *eval.Evaluation
	At         time.Time
}

// Broadcaster fans out session events to N subscribers. Slow subscribers
// get events dropped rather than blocking the session loop.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
}

// Subscription receives events from the broadcaster.
type Subscription struct {
	C    chan Event
	done chan struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{
		C:    make(chan Event, 32),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and signals it to stop.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
	close(s.done)
}

// Done is closed when the subscription is removed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish fans an event out to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subscribers {
		select {
		case s.C <- ev:
		default:
			// subscriber too slow, drop to keep the session moving
		}
	}
}
