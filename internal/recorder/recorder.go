// Package recorder keeps the append-only event stream of one session.
package recorder

import (
	"sync"
	"time"

	"github.com/mpataki/foundry/internal/models"
)

type EventType string

const (
	EventIterationStarted EventType = "iteration_started"
	EventStageStarted     EventType = "stage_started"
	EventStageFinished    EventType = "stage_finished"
	EventSessionFinished  EventType = "session_finished"
)

// Event is one entry of a session stream. Index starts at 1 and strictly
// increases.
type Event struct {
	Index     int                  `json:"index"`
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id"`
	Iteration int                  `json:"iteration,omitempty"`
	Stage     models.Stage         `json:"stage,omitempty"`
	Success   bool                 `json:"success,omitempty"`
	Errors    []string             `json:"errors,omitempty"`
	Status    models.SessionStatus `json:"status,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Recorder stores every event of a session and fans them out to
// subscribers. Slow subscribers miss pushes rather than block the session;
// they can catch up with Events.
type Recorder struct {
	sessionID string

	mu          sync.RWMutex
	events      []Event
	subscribers map[int]chan Event
	nextSub     int
	closed      bool
}

func New(sessionID string) *Recorder {
	return &Recorder{
		sessionID:   sessionID,
		subscribers: make(map[int]chan Event),
	}
}

func (r *Recorder) SessionID() string { return r.sessionID }

// Emit appends an event, assigning its index and timestamp. Emits after
// Close are dropped.
func (r *Recorder) Emit(ev Event) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ev
	}
	ev.Index = len(r.events) + 1
	ev.SessionID = r.sessionID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	r.events = append(r.events, ev)

	// Sends never block, so holding the lock keeps channels open for them.
	for _, ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Events returns every event with an index greater than since.
func (r *Recorder) Events(since int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if since < 0 {
		since = 0
	}
	if since >= len(r.events) {
		return nil
	}
	out := make([]Event, len(r.events)-since)
	copy(out, r.events[since:])
	return out
}

// Subscribe returns a channel receiving future events and a function that
// removes the subscription. The channel is closed on unsubscribe or Close.
func (r *Recorder) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan Event, buffer)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if sub, ok := r.subscribers[id]; ok {
				delete(r.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close ends the stream and closes every subscriber channel.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
}
