package capture

import (
	"context"
	"log"
	"strings"
	"sync"
)

// Handlers receive recognition results. All callbacks are invoked from the
// capture's event goroutine, one at a time.
type Handlers struct {
	OnInterim func(text string)
	OnFinal   func(text string)
	OnError   func(code, detail string)
}

// Capture drives a Recognizer in single-shot or continuous mode. In
// continuous mode a session that ends on its own is restarted until Stop is
// called. Finalized utterances accumulate into a transcript that is read and
// cleared with DrainTranscript.
type Capture struct {
	rec      Recognizer
	handlers Handlers

	mu         sync.Mutex
	session    Session
	active     bool
	continuous bool
	stopping   bool
	transcript []string
}

func New(rec Recognizer, handlers Handlers) *Capture {
	return &Capture{rec: rec, handlers: handlers}
}

func (c *Capture) Available() bool {
	return c.rec != nil && c.rec.Available()
}

func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start begins a single recognition session. Starting while already active
// is a no-op.
func (c *Capture) Start(ctx context.Context) error {
	return c.start(ctx, false)
}

// StartContinuous begins capture that survives session end: each time the
// recognizer finishes on its own, a fresh session is opened.
func (c *Capture) StartContinuous(ctx context.Context) error {
	return c.start(ctx, true)
}

func (c *Capture) start(ctx context.Context, continuous bool) error {
	if c.rec == nil || !c.rec.Available() {
		return ErrUnavailable
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = true
	c.continuous = continuous
	c.stopping = false
	c.transcript = c.transcript[:0]
	c.mu.Unlock()

	if err := c.openSession(ctx); err != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// Stop ends capture and suppresses any pending restart. It is idempotent.
func (c *Capture) Stop() error {
	c.mu.Lock()
	c.continuous = false
	c.stopping = true
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Stop()
}

// DrainTranscript returns the finalized utterances captured so far, joined
// with single spaces, and clears the accumulator.
func (c *Capture) DrainTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := strings.Join(c.transcript, " ")
	c.transcript = c.transcript[:0]
	return out
}

func (c *Capture) openSession(ctx context.Context) error {
	session, events, err := c.rec.Start(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	go c.consume(ctx, events)
	return nil
}

func (c *Capture) consume(ctx context.Context, events <-chan Event) {
	for ev := range events {
		switch ev.Type {
		case EventPartial:
			if c.handlers.OnInterim != nil {
				c.handlers.OnInterim(ev.Text)
			}
		case EventFinal:
			text := strings.TrimSpace(ev.Text)
			if text == "" {
				continue
			}
			c.mu.Lock()
			c.transcript = append(c.transcript, text)
			c.mu.Unlock()
			if c.handlers.OnFinal != nil {
				c.handlers.OnFinal(text)
			}
		case EventError:
			if isBenignErrorCode(ev.Code) {
				continue
			}
			if c.handlers.OnError != nil {
				c.handlers.OnError(ev.Code, ev.Detail)
			}
		}
	}

	c.mu.Lock()
	c.session = nil
	restart := c.continuous && !c.stopping && ctx.Err() == nil
	if !restart {
		c.active = false
	}
	c.mu.Unlock()
	if !restart {
		return
	}

	if err := c.openSession(ctx); err != nil {
		log.Printf("capture: restart after session end failed: %v", err)
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		if c.handlers.OnError != nil {
			c.handlers.OnError("restart_failed", err.Error())
		}
	}
}
