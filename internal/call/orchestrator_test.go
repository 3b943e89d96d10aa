package call

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxcall/voxcall/internal/capture"
	"github.com/voxcall/voxcall/internal/conversation"
	"github.com/voxcall/voxcall/internal/history"
	"github.com/voxcall/voxcall/internal/playback"
	"github.com/voxcall/voxcall/internal/protocol"
	"github.com/voxcall/voxcall/internal/transport"
)

type fakeConn struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 32), done: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.frames:
		return websocket.TextMessage, data, nil
	case <-f.done:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeConn) sentOfType(t protocol.MessageType) []protocol.UserSpeech {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.UserSpeech
	for _, raw := range f.writes {
		var msg protocol.UserSpeech
		if json.Unmarshal(raw, &msg) == nil && msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

type fakeRecognizer struct {
	mu       sync.Mutex
	sessions []*fakeRecSession
	onStop   func()
}

type fakeRecSession struct {
	once   sync.Once
	events chan capture.Event
	onStop func()
}

func (r *fakeRecognizer) Available() bool { return true }

func (r *fakeRecognizer) Start(context.Context) (capture.Session, <-chan capture.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &fakeRecSession{events: make(chan capture.Event, 16), onStop: r.onStop}
	r.sessions = append(r.sessions, s)
	return s, s.events, nil
}

func (r *fakeRecognizer) session(t *testing.T, n int) *fakeRecSession {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.sessions) > n {
			s := r.sessions[n]
			r.mu.Unlock()
			return s
		}
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("recognition session %d never opened", n)
	return nil
}

func (s *fakeRecSession) Stop() error {
	s.once.Do(func() {
		if s.onStop != nil {
			s.onStop()
		}
		close(s.events)
	})
	return nil
}

type recordingPlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *recordingPlayer) Play(ctx context.Context, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.played = append(p.played, string(data))
	p.mu.Unlock()
	return nil
}

func (p *recordingPlayer) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.played))
	copy(out, p.played)
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	entries []history.EntryRecord
}

func (s *fakeStore) SaveEntry(_ context.Context, r history.EntryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, r)
	return nil
}

func (s *fakeStore) RecentEntries(context.Context, string, int) ([]history.EntryRecord, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) snapshot() []history.EntryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.EntryRecord, len(s.entries))
	copy(out, s.entries)
	return out
}

type harness struct {
	conn   *fakeConn
	client *transport.Client
	rec    *fakeRecognizer
	player *recordingPlayer
	queue  *playback.Queue
	log    *conversation.Log
	store  *fakeStore
	orch   *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		conn:   newFakeConn(),
		rec:    &fakeRecognizer{},
		player: &recordingPlayer{},
		store:  &fakeStore{},
		log:    conversation.NewLog(nil),
	}
	h.client = transport.NewClient(transport.Options{
		Endpoint: "ws://example/chat",
		Dial: func(context.Context, string) (transport.Conn, error) {
			return h.conn, nil
		},
	})
	h.queue = playback.NewQueue(playback.Options{Player: h.player, Gap: 0})
	h.orch = New(Options{
		Transport:  h.client,
		Recognizer: h.rec,
		Queue:      h.queue,
		Log:        h.log,
		Store:      h.store,
		UserID:     "u1",
	})
	t.Cleanup(func() {
		h.orch.Close()
		h.queue.Close()
		h.client.Close()
	})
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	if err := h.client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func (h *harness) waitEntries(t *testing.T, n int) []conversation.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entries := h.log.Entries(); len(entries) >= n {
			return entries
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("conversation has %d entries, want %d: %+v", h.log.Len(), n, h.log.Entries())
	return nil
}

func findEntry(entries []conversation.Entry, sender conversation.Sender, content string) bool {
	for _, e := range entries {
		if e.Sender == sender && e.Content == content {
			return true
		}
	}
	return false
}

func TestCallTurnRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	if err := h.orch.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if h.orch.State() != StateActive {
		t.Fatalf("State() = %q, want %q", h.orch.State(), StateActive)
	}

	s := h.rec.session(t, 0)
	s.events <- capture.Event{Type: capture.EventPartial, Text: "hel"}
	s.events <- capture.Event{Type: capture.EventPartial, Text: "hello"}
	s.events <- capture.Event{Type: capture.EventFinal, Text: "hello world"}

	// Exactly one finalized utterance goes out.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.conn.sentOfType(protocol.TypeUserSpeech)) >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	sent := h.conn.sentOfType(protocol.TypeUserSpeech)
	if len(sent) != 1 || sent[0].Content != "hello world" {
		t.Fatalf("user_speech frames = %+v, want one with %q", sent, "hello world")
	}

	// Stream the assistant reply back.
	audio := base64.StdEncoding.EncodeToString([]byte("mp3 bytes"))
	h.conn.frames <- []byte(`{"type":"ai_response_start"}`)
	h.conn.frames <- []byte(`{"type":"ai_chunk","full_text":"Hi"}`)
	h.conn.frames <- []byte(`{"type":"ai_chunk","full_text":"Hi there"}`)
	h.conn.frames <- []byte(`{"type":"audio_chunk","content":"` + audio + `","text":"Hi there"}`)
	h.conn.frames <- []byte(`{"type":"ai_response_complete","content":"Hi there"}`)

	entries := h.waitEntries(t, 3)
	if !findEntry(entries, conversation.SenderUser, "hello world") {
		t.Fatalf("user entry missing: %+v", entries)
	}
	if !findEntry(entries, conversation.SenderAssistant, "Hi there") {
		t.Fatalf("assistant entry missing: %+v", entries)
	}
	assistants := 0
	for _, e := range entries {
		if e.Sender == conversation.SenderAssistant {
			assistants++
		}
	}
	if assistants != 1 {
		t.Fatalf("assistant entries = %d, want 1 (streamed chunks must collapse)", assistants)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.player.snapshot()) >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if played := h.player.snapshot(); len(played) != 1 || played[0] != "mp3 bytes" {
		t.Fatalf("played = %v, want [mp3 bytes]", played)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.store.snapshot()) >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	records := h.store.snapshot()
	if len(records) != 2 {
		t.Fatalf("persisted records = %d, want 2", len(records))
	}
	if records[0].Sender != "user" || records[1].Sender != "assistant" {
		t.Fatalf("persisted senders = %s, %s", records[0].Sender, records[1].Sender)
	}
	if records[0].CallID == "" || records[0].UserID != "u1" {
		t.Fatalf("persisted record incomplete: %+v", records[0])
	}
}

func TestStartCallRequiresConnection(t *testing.T) {
	h := newHarness(t)

	err := h.orch.StartCall(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("StartCall() error = %v, want ErrNotConnected", err)
	}
	if h.orch.State() != StateIdle {
		t.Fatalf("State() = %q, want %q", h.orch.State(), StateIdle)
	}
	entries := h.log.Entries()
	if len(entries) != 1 || entries[0].Sender != conversation.SenderSystem {
		t.Fatalf("expected one system notice, got %+v", entries)
	}
}

func TestStartCallRequiresRecognizer(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	orch := New(Options{
		Transport:  h.client,
		Recognizer: capture.DisabledRecognizer{},
		Queue:      h.queue,
		Log:        conversation.NewLog(nil),
	})
	defer orch.Close()

	if err := orch.StartCall(context.Background()); !errors.Is(err, capture.ErrUnavailable) {
		t.Fatalf("StartCall() error = %v, want ErrUnavailable", err)
	}
	if orch.State() != StateIdle {
		t.Fatalf("State() = %q, want %q", orch.State(), StateIdle)
	}
}

func TestEndCallTearsDownInOrder(t *testing.T) {
	h := newHarness(t)

	var order []string
	var orderMu sync.Mutex
	h.rec.onStop = func() {
		orderMu.Lock()
		order = append(order, "capture_stopped")
		orderMu.Unlock()
	}

	h.connect(t)
	if err := h.orch.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}

	h.rec.session(t, 0)
	h.log.ShowLiveTranscription("saying something")
	h.queue.Enqueue(playback.Fragment{ID: "x", AudioBase64: "not going to play"})

	h.orch.EndCall()

	if h.orch.State() != StateIdle {
		t.Fatalf("State() = %q, want %q", h.orch.State(), StateIdle)
	}
	orderMu.Lock()
	stopped := len(order) == 1 && order[0] == "capture_stopped"
	orderMu.Unlock()
	if !stopped {
		t.Fatalf("capture was not stopped during teardown")
	}
	if got := h.queue.Depth(); got != 0 {
		t.Fatalf("queue depth after EndCall = %d, want 0", got)
	}
	if got := h.log.Live(); got != "" {
		t.Fatalf("live transcription after EndCall = %q, want empty", got)
	}
}

func TestEndCallIdempotent(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	if err := h.orch.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	h.orch.EndCall()
	before := h.log.Len()
	h.orch.EndCall()
	if got := h.log.Len(); got != before {
		t.Fatalf("entries after second EndCall = %d, want %d", got, before)
	}
}

func TestStartCallWhileActiveIsNoop(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	ctx := context.Background()
	if err := h.orch.StartCall(ctx); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	firstID := h.orch.CallID()
	if err := h.orch.StartCall(ctx); err != nil {
		t.Fatalf("second StartCall() error = %v", err)
	}
	if got := h.orch.CallID(); got != firstID {
		t.Fatalf("CallID changed on repeated StartCall: %q -> %q", firstID, got)
	}
}

func TestImmediateAudioAndFinalMarker(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	audio := base64.StdEncoding.EncodeToString([]byte("single shot"))
	h.conn.frames <- []byte(`{"type":"ai_response_start"}`)
	h.conn.frames <- []byte(`{"type":"audio_response","content":"` + audio + `"}`)
	h.conn.frames <- []byte(`{"type":"audio_response","content":"","is_final":true}`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.player.snapshot()) >= 1 && !h.queue.Streaming() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if played := h.player.snapshot(); len(played) != 1 || played[0] != "single shot" {
		t.Fatalf("played = %v, want [single shot]", played)
	}
	if h.queue.Streaming() {
		t.Fatalf("Streaming() = true after final marker")
	}
}

func TestLiveTranscriptionFromServer(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.conn.frames <- []byte(`{"type":"live_transcription","content":"typing along"}`)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.log.Live() == "typing along" {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := h.log.Live(); got != "typing along" {
		t.Fatalf("Live() = %q, want %q", got, "typing along")
	}

	h.conn.frames <- []byte(`{"type":"transcription","content":"typed along"}`)
	entries := h.waitEntries(t, 1)
	if !findEntry(entries, conversation.SenderUser, "typed along") {
		t.Fatalf("transcription entry missing: %+v", entries)
	}
	if got := h.log.Live(); got != "" {
		t.Fatalf("Live() after transcription = %q, want empty", got)
	}
}
