package capture

import (
	"context"
	"sync"
	"time"
)

// Utterance is one scripted turn for the mock recognizer.
type Utterance struct {
	Partials []string
	Final    string
}

// MockRecognizer replays a fixed script, one utterance per session. It is
// the fallback when no real speech input is wired.
type MockRecognizer struct {
	Interval time.Duration

	mu     sync.Mutex
	script []Utterance
	next   int
}

func NewMockRecognizer(script []Utterance) *MockRecognizer {
	return &MockRecognizer{script: script, Interval: 20 * time.Millisecond}
}

func (r *MockRecognizer) Available() bool { return true }

func (r *MockRecognizer) Start(ctx context.Context) (Session, <-chan Event, error) {
	r.mu.Lock()
	var u *Utterance
	if r.next < len(r.script) {
		u = &r.script[r.next]
		r.next++
	}
	r.mu.Unlock()

	events := make(chan Event, 16)
	s := &mockSession{done: make(chan struct{})}

	go func() {
		defer close(events)
		if u == nil {
			// Script exhausted; stay idle so continuous capture does not
			// spin reopening sessions.
			select {
			case <-ctx.Done():
			case <-s.done:
			}
			return
		}
		for _, p := range u.Partials {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-time.After(r.Interval):
			}
			events <- Event{Type: EventPartial, Text: p}
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-time.After(r.Interval):
		}
		events <- Event{Type: EventFinal, Text: u.Final}
	}()

	return s, events, nil
}

type mockSession struct {
	once sync.Once
	done chan struct{}
}

func (s *mockSession) Stop() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// DisabledRecognizer stands in when speech input is switched off. Start
// always fails and Available reports false.
type DisabledRecognizer struct{}

func (DisabledRecognizer) Available() bool { return false }

func (DisabledRecognizer) Start(context.Context) (Session, <-chan Event, error) {
	return nil, nil, ErrUnavailable
}
