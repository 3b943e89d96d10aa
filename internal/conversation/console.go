package conversation

import (
	"fmt"
	"io"
	"sync"
)

// ConsoleRenderer prints the conversation to w. Streamed assistant updates
// are rewritten in place on the same line; everything else gets its own.
type ConsoleRenderer struct {
	mu        sync.Mutex
	w         io.Writer
	updatedID string
}

func NewConsoleRenderer(w io.Writer) *ConsoleRenderer {
	return &ConsoleRenderer{w: w}
}

func (r *ConsoleRenderer) EntryAdded(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishUpdateLocked()
	if e.Content == "" {
		// Streamed entries open empty and print once text arrives.
		return
	}
	fmt.Fprintf(r.w, "[%s] %s\n", e.Sender, e.Content)
}

func (r *ConsoleRenderer) EntryUpdated(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Content == "" {
		return
	}
	r.updatedID = e.ID
	fmt.Fprintf(r.w, "\r[%s] %s", e.Sender, e.Content)
}

func (r *ConsoleRenderer) LiveTranscription(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishUpdateLocked()
	if text == "" {
		return
	}
	fmt.Fprintf(r.w, "(hearing) %s\n", text)
}

func (r *ConsoleRenderer) finishUpdateLocked() {
	if r.updatedID == "" {
		return
	}
	r.updatedID = ""
	fmt.Fprintln(r.w)
}
