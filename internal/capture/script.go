package capture

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// ScriptRecognizer turns lines read from r into finalized utterances, one
// line per session. Lines prefixed with "~" are emitted as interim results
// ahead of the next final line. It backs the interactive stdin mode of the
// client binary.
type ScriptRecognizer struct {
	Interval time.Duration

	mu      sync.Mutex
	scanner *bufio.Scanner
}

func NewScriptRecognizer(r io.Reader) *ScriptRecognizer {
	return &ScriptRecognizer{scanner: bufio.NewScanner(r)}
}

func (r *ScriptRecognizer) Available() bool { return true }

func (r *ScriptRecognizer) Start(ctx context.Context) (Session, <-chan Event, error) {
	events := make(chan Event, 16)
	s := &scriptSession{done: make(chan struct{})}

	go func() {
		defer close(events)
		for {
			r.mu.Lock()
			ok := r.scanner.Scan()
			line := ""
			if ok {
				line = r.scanner.Text()
			}
			r.mu.Unlock()
			if !ok {
				// Input exhausted; stay idle so continuous capture does
				// not spin reopening sessions.
				select {
				case <-ctx.Done():
				case <-s.done:
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			ev := Event{Type: EventFinal, Text: line}
			if rest, isPartial := strings.CutPrefix(line, "~"); isPartial {
				ev = Event{Type: EventPartial, Text: strings.TrimSpace(rest)}
			}

			if r.Interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-s.done:
					return
				case <-time.After(r.Interval):
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case events <- ev:
			}
			if ev.Type == EventFinal {
				// One utterance per session; continuous capture reopens.
				return
			}
		}
	}()

	return s, events, nil
}

type scriptSession struct {
	once sync.Once
	done chan struct{}
}

func (s *scriptSession) Stop() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
