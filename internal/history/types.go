package history

import (
	"context"
	"time"
)

// EntryRecord stores one persisted conversation entry from a call.
type EntryRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CallID    string    `json:"call_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Redacted  bool      `json:"redacted"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves conversation history across calls.
type Store interface {
	SaveEntry(ctx context.Context, record EntryRecord) error
	RecentEntries(ctx context.Context, userID string, limit int) ([]EntryRecord, error)
	Close() error
}
