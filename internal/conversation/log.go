package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
	SenderError     Sender = "error"
)

type Entry struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Renderer receives conversation updates. A nil renderer is allowed; the
// log still records everything.
type Renderer interface {
	EntryAdded(e Entry)
	EntryUpdated(e Entry)
	// LiveTranscription shows the in-progress utterance. An empty string
	// clears the slot.
	LiveTranscription(text string)
}

// Log is the ordered conversation record. While the assistant streams a
// reply, exactly one entry absorbs the cumulative text; there is likewise a
// single slot for the live transcription of the user's current utterance.
type Log struct {
	mu        sync.Mutex
	entries   []Entry
	streaming string
	live      string
	renderer  Renderer
}

func NewLog(r Renderer) *Log {
	return &Log{renderer: r}
}

// Append records a finished entry.
func (l *Log) Append(sender Sender, content string) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	r := l.renderer
	l.mu.Unlock()
	if r != nil {
		r.EntryAdded(e)
	}
	return e
}

// BeginStreamedEntry opens the single streamed assistant entry. An entry
// still streaming from a previous turn is finalized first.
func (l *Log) BeginStreamedEntry() Entry {
	l.mu.Lock()
	l.streaming = ""
	e := Entry{
		ID:        uuid.NewString(),
		Sender:    SenderAssistant,
		CreatedAt: time.Now().UTC(),
	}
	l.entries = append(l.entries, e)
	l.streaming = e.ID
	r := l.renderer
	l.mu.Unlock()
	if r != nil {
		r.EntryAdded(e)
	}
	return e
}

// UpdateStreamedEntry replaces the streamed entry's content with the
// cumulative text so far. If no entry is streaming, one is opened.
func (l *Log) UpdateStreamedEntry(fullText string) Entry {
	l.mu.Lock()
	if l.streaming == "" {
		l.mu.Unlock()
		l.BeginStreamedEntry()
		l.mu.Lock()
	}
	e := l.updateLocked(fullText)
	r := l.renderer
	l.mu.Unlock()
	if r != nil {
		r.EntryUpdated(e)
	}
	return e
}

// EndStreamedEntry closes the streamed entry. A non-empty finalContent
// replaces whatever accumulated, covering servers whose completion payload
// differs from the last chunk.
func (l *Log) EndStreamedEntry(finalContent string) (Entry, bool) {
	l.mu.Lock()
	if l.streaming == "" {
		l.mu.Unlock()
		if finalContent == "" {
			return Entry{}, false
		}
		return l.Append(SenderAssistant, finalContent), true
	}
	var e Entry
	if finalContent != "" {
		e = l.updateLocked(finalContent)
	} else {
		e = l.streamedLocked()
	}
	l.streaming = ""
	r := l.renderer
	l.mu.Unlock()
	if r != nil {
		r.EntryUpdated(e)
	}
	return e, true
}

// ShowLiveTranscription fills the live transcription slot, replacing any
// previous text.
func (l *Log) ShowLiveTranscription(text string) {
	l.mu.Lock()
	l.live = text
	r := l.renderer
	l.mu.Unlock()
	if r != nil {
		r.LiveTranscription(text)
	}
}

// ClearLiveTranscription empties the slot. Clearing an empty slot is a
// no-op and notifies nothing.
func (l *Log) ClearLiveTranscription() {
	l.mu.Lock()
	if l.live == "" {
		l.mu.Unlock()
		return
	}
	l.live = ""
	r := l.renderer
	l.mu.Unlock()
	if r != nil {
		r.LiveTranscription("")
	}
}

func (l *Log) Live() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

// Entries returns a snapshot of the conversation in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) updateLocked(content string) Entry {
	for i := range l.entries {
		if l.entries[i].ID == l.streaming {
			l.entries[i].Content = content
			return l.entries[i]
		}
	}
	return Entry{}
}

func (l *Log) streamedLocked() Entry {
	for i := range l.entries {
		if l.entries[i].ID == l.streaming {
			return l.entries[i]
		}
	}
	return Entry{}
}
