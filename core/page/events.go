package page

import (
	"sync"
	"time"

	"github.com/trezcool/vitrine/core/block"
)

// EventKind names what happened in an editing session.
type EventKind string

const (
	EventBlock          EventKind = "block" // a block store change, see Event.Change
	EventUploadStarted  EventKind = "upload_started"
	EventUploadDone     EventKind = "upload_done"
	EventUploadFailed   EventKind = "upload_failed"
	EventUploadOrphaned EventKind = "upload_orphaned"
	EventSaved          EventKind = "saved"
	EventClosed         EventKind = "closed"
)

// Event is broadcast to the listeners of an editing session.
type Event struct {
	SessionID string        `json:"session_id"`
	PageID    string        `json:"page_id"`
	Kind      EventKind     `json:"kind"`
	Change    *block.Change `json:"change,omitempty"`
	Slot      *Slot         `json:"slot,omitempty"`
	Version   int64         `json:"version,omitempty"`
	Error     string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}

type subscriber struct {
	sessionID string
	ch        chan Event
}

// Emitter fans session events out to subscribers. Slow subscribers miss events rather than block editors,
// except EventClosed, which replaces their oldest pending event when their buffer is full.
type Emitter struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]subscriber)}
}

// Subscribe returns a channel receiving the events of sessionID (all sessions if empty),
// and a func to unsubscribe, which closes the channel. The buffer holds at least one event.
func (e *Emitter) Subscribe(sessionID string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.next
	e.next++
	ch := make(chan Event, buffer)
	e.subs[id] = subscriber{sessionID: sessionID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
}

func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sub := range e.subs {
		if sub.sessionID != "" && sub.sessionID != ev.SessionID {
			continue
		}
		if ev.Kind == EventClosed {
			deliver(sub.ch, ev)
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// deliver sends ev, dropping the oldest pending events until it fits.
func deliver(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
