package conversation

import (
	"sync"
	"testing"
)

type recordingRenderer struct {
	mu      sync.Mutex
	added   []Entry
	updated []Entry
	live    []string
}

func (r *recordingRenderer) EntryAdded(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, e)
}

func (r *recordingRenderer) EntryUpdated(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, e)
}

func (r *recordingRenderer) LiveTranscription(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = append(r.live, text)
}

func TestStreamedReplyStaysOneEntry(t *testing.T) {
	l := NewLog(nil)
	l.Append(SenderUser, "hi there")

	l.BeginStreamedEntry()
	l.UpdateStreamedEntry("A")
	l.UpdateStreamedEntry("AB")
	l.UpdateStreamedEntry("ABC")
	l.EndStreamedEntry("")

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	got := entries[1]
	if got.Sender != SenderAssistant {
		t.Fatalf("Sender = %q, want %q", got.Sender, SenderAssistant)
	}
	if got.Content != "ABC" {
		t.Fatalf("Content = %q, want %q", got.Content, "ABC")
	}
}

func TestUpdateWithoutBeginOpensEntry(t *testing.T) {
	l := NewLog(nil)
	l.UpdateStreamedEntry("partial text")

	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Content != "partial text" {
		t.Fatalf("Content = %q, want %q", entries[0].Content, "partial text")
	}
}

func TestEndStreamedEntryFinalContentWins(t *testing.T) {
	l := NewLog(nil)
	l.BeginStreamedEntry()
	l.UpdateStreamedEntry("partial")
	e, ok := l.EndStreamedEntry("the full reply")
	if !ok {
		t.Fatalf("EndStreamedEntry ok = false")
	}
	if e.Content != "the full reply" {
		t.Fatalf("Content = %q, want %q", e.Content, "the full reply")
	}

	// A second end with nothing streaming and no content is a no-op.
	if _, ok := l.EndStreamedEntry(""); ok {
		t.Fatalf("EndStreamedEntry on idle log ok = true")
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
}

func TestEndWithoutBeginAppendsCompleteReply(t *testing.T) {
	l := NewLog(nil)
	e, ok := l.EndStreamedEntry("whole reply at once")
	if !ok {
		t.Fatalf("EndStreamedEntry ok = false")
	}
	if e.Sender != SenderAssistant || e.Content != "whole reply at once" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestBeginSupersedesStrandedStream(t *testing.T) {
	l := NewLog(nil)
	l.BeginStreamedEntry()
	l.UpdateStreamedEntry("first reply cut off")
	l.BeginStreamedEntry()
	l.UpdateStreamedEntry("second reply")
	l.EndStreamedEntry("")

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Content != "first reply cut off" {
		t.Fatalf("stranded entry content = %q", entries[0].Content)
	}
	if entries[1].Content != "second reply" {
		t.Fatalf("second entry content = %q", entries[1].Content)
	}
}

func TestLiveTranscriptionSingleSlot(t *testing.T) {
	r := &recordingRenderer{}
	l := NewLog(r)

	l.ShowLiveTranscription("hel")
	l.ShowLiveTranscription("hello")
	if got := l.Live(); got != "hello" {
		t.Fatalf("Live() = %q, want %q", got, "hello")
	}

	l.ClearLiveTranscription()
	if got := l.Live(); got != "" {
		t.Fatalf("Live() after clear = %q, want empty", got)
	}
	// Clearing an empty slot notifies nothing.
	l.ClearLiveTranscription()

	want := []string{"hel", "hello", ""}
	if len(r.live) != len(want) {
		t.Fatalf("renderer notifications = %v, want %v", r.live, want)
	}
	for i := range want {
		if r.live[i] != want[i] {
			t.Fatalf("renderer notifications = %v, want %v", r.live, want)
		}
	}
}

func TestRendererSeesAddsAndUpdates(t *testing.T) {
	r := &recordingRenderer{}
	l := NewLog(r)

	l.Append(SenderSystem, "call started")
	l.BeginStreamedEntry()
	l.UpdateStreamedEntry("A")
	l.EndStreamedEntry("")

	if got := len(r.added); got != 2 {
		t.Fatalf("added notifications = %d, want 2", got)
	}
	if got := len(r.updated); got != 2 {
		t.Fatalf("updated notifications = %d, want 2", got)
	}
}
