package memory

import (
	"sync"

	"quiz-attempt-service/internal/domain"
)

const feedBuffer = 8

// AttemptFeed fans committed attempt states out to in-process subscribers.
// It implements app.AttemptPublisher.
type AttemptFeed struct {
	mu     sync.Mutex
	topics map[int64]map[chan domain.Attempt]struct{}
}

func NewAttemptFeed() *AttemptFeed {
	return &AttemptFeed{topics: make(map[int64]map[chan domain.Attempt]struct{})}
}

// Subscribe returns a channel of updates for one attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *AttemptFeed) Subscribe(attemptID int64) (<-chan domain.Attempt, func()) {
	ch := make(chan domain.Attempt, feedBuffer)

	f.mu.Lock()
	subs, ok := f.topics[attemptID]
	if !ok {
		subs = make(map[chan domain.Attempt]struct{})
		f.topics[attemptID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs, ok := f.topics[attemptID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(f.topics, attemptID)
		}
	}
	return ch, cancel
}

func (f *AttemptFeed) Publish(a domain.Attempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.topics[a.ID] {
		select {
		case ch <- a:
		default:
			// Slow reader: drop its oldest update instead of blocking the publisher.
			select {
			case <-ch:
			default:
			}
			ch <- a
		}
	}
}

// Subscribers reports how many subscribers an attempt has.
func (f *AttemptFeed) Subscribers(attemptID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics[attemptID])
}
