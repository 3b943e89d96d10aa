package capture

import (
	"context"
	"errors"
)

type EventType string

const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventError   EventType = "error"
)

// Event is one speech recognition result. The event channel is closed when
// the underlying session ends, so there is no explicit "ended" event.
type Event struct {
	Type   EventType
	Text   string
	Code   string
	Detail string
}

// ErrUnavailable is returned by Start when the recognizer cannot run in the
// current environment.
var ErrUnavailable = errors.New("speech recognition unavailable")

type Session interface {
	Stop() error
}

type Recognizer interface {
	// Start opens one recognition session. The returned channel is closed
	// when the session ends for any reason.
	Start(ctx context.Context) (Session, <-chan Event, error)
	// Available reports whether Start has any chance of succeeding.
	Available() bool
}

// Benign recognizer error codes that end a session without meaning anything
// went wrong. They are filtered out before user-facing error handling.
func isBenignErrorCode(code string) bool {
	switch code {
	case "no_speech", "aborted":
		return true
	}
	return false
}
