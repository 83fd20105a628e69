package app

import (
	"sync"
	"time"
)

// Event types published after a change is committed.
const (
	EventModule   = "module"
	EventUser     = "userProgress"
	EventRestored = "restored"
	EventUnlocked = "unlocked"
)

// Event describes one committed change.
type Event struct {
	Type     string      `json:"type"`
	ModuleID string      `json:"moduleId,omitempty"`
	Module   *ModuleView `json:"module,omitempty"`
	Unlocked []string    `json:"unlocked,omitempty"`
	Warning  string      `json:"warning,omitempty"`
	At       time.Time   `json:"at"`
}

// broadcaster fans events out to subscribers. A slow subscriber loses its
// oldest pending event rather than blocking the publisher.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subscribers: make(map[chan Event]struct{})}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribe returns a channel receiving every committed change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ProgressService) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}
