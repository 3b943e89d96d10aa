package call

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxcall/voxcall/internal/capture"
	"github.com/voxcall/voxcall/internal/conversation"
	"github.com/voxcall/voxcall/internal/history"
	"github.com/voxcall/voxcall/internal/observability"
	"github.com/voxcall/voxcall/internal/playback"
	"github.com/voxcall/voxcall/internal/policy"
	"github.com/voxcall/voxcall/internal/protocol"
	"github.com/voxcall/voxcall/internal/transport"
)

type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// ErrNotConnected is returned by StartCall when the transport has no open
// channel.
var ErrNotConnected = errors.New("transport not connected")

type Options struct {
	Transport    *transport.Client
	Recognizer   capture.Recognizer
	Queue        *playback.Queue
	Log          *conversation.Log
	Store        history.Store
	Metrics      *observability.Metrics
	UserID       string
	PingInterval time.Duration
}

// Orchestrator ties transport, capture, playback and the conversation log
// into one call. It owns the call lifecycle and routes every inbound message
// type to its effect.
type Orchestrator struct {
	opts    Options
	capture *capture.Capture

	mu     sync.Mutex
	state  State
	callID string

	// Round-trip marks for the current turn. Display-only.
	sentAt     time.Time
	typingSeen bool
	chunkSeen  bool
	audioSeen  bool

	pingStop chan struct{}
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts:  opts,
		state: StateIdle,
	}
	o.capture = capture.New(opts.Recognizer, capture.Handlers{
		OnInterim: o.handleInterim,
		OnFinal:   o.handleUtterance,
		OnError:   o.handleCaptureError,
	})
	o.registerTransportHandlers()
	return o
}

func (o *Orchestrator) registerTransportHandlers() {
	t := o.opts.Transport
	t.OnMessage(protocol.TypeAITyping, func(msg any) { o.handleTyping() })
	t.OnMessage(protocol.TypeAIResponseStart, func(msg any) { o.handleResponseStart() })
	t.OnMessage(protocol.TypeAIChunk, func(msg any) { o.handleChunk(msg.(protocol.AIChunk)) })
	t.OnMessage(protocol.TypeAIResponseComplete, func(msg any) { o.handleResponseComplete(msg.(protocol.AIResponseComplete)) })
	t.OnMessage(protocol.TypeAudioChunk, func(msg any) { o.handleAudioChunk(msg.(protocol.AudioChunk)) })
	t.OnMessage(protocol.TypeAudioResponse, func(msg any) { o.handleAudioResponse(msg.(protocol.AudioResponse)) })
	t.OnMessage(protocol.TypeSystem, func(msg any) { o.opts.Log.Append(conversation.SenderSystem, msg.(protocol.SystemNotice).Content) })
	t.OnMessage(protocol.TypeError, func(msg any) { o.opts.Log.Append(conversation.SenderError, msg.(protocol.ErrorNotice).Content) })
	t.OnMessage(protocol.TypeTranscription, func(msg any) { o.handleTranscription(msg.(protocol.Transcription)) })
	t.OnMessage(protocol.TypeLiveTranscription, func(msg any) { o.opts.Log.ShowLiveTranscription(msg.(protocol.LiveTranscription).Content) })

	t.OnStateChange(func(s transport.State) {
		switch s {
		case transport.StateReconnecting:
			o.opts.Log.Append(conversation.SenderSystem, "connection lost, reconnecting")
		case transport.StateFailed:
			o.opts.Log.Append(conversation.SenderError, "connection failed, please restart the call")
		}
	})
}

// StartCall begins a call. It requires an open transport channel and an
// available recognizer; otherwise the conversation gets a system notice and
// the call state is unchanged. Starting while a call is active is a no-op.
func (o *Orchestrator) StartCall(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateActive {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if o.opts.Transport.State() != transport.StateConnected {
		o.opts.Log.Append(conversation.SenderSystem, "cannot start call: not connected to server")
		return ErrNotConnected
	}
	if !o.capture.Available() {
		o.opts.Log.Append(conversation.SenderSystem, "cannot start call: speech recognition unavailable")
		return capture.ErrUnavailable
	}

	if err := o.capture.StartContinuous(ctx); err != nil {
		o.opts.Log.Append(conversation.SenderSystem, "cannot start call: "+err.Error())
		return err
	}

	o.mu.Lock()
	o.state = StateActive
	o.callID = uuid.NewString()
	o.sentAt = time.Time{}
	o.pingStop = make(chan struct{})
	pingStop := o.pingStop
	o.mu.Unlock()

	if o.opts.PingInterval > 0 {
		go o.pingLoop(pingStop)
	}
	o.countCallEvent("start")
	o.opts.Log.Append(conversation.SenderSystem, "call started")
	return nil
}

// EndCall tears the call down: capture stops first so no new utterances
// arrive, then pending audio is flushed, then the live transcription slot is
// cleared. Ending an idle call is a no-op.
func (o *Orchestrator) EndCall() {
	o.mu.Lock()
	if o.state != StateActive {
		o.mu.Unlock()
		return
	}
	o.state = StateIdle
	o.callID = ""
	o.sentAt = time.Time{}
	pingStop := o.pingStop
	o.pingStop = nil
	o.mu.Unlock()

	if pingStop != nil {
		close(pingStop)
	}

	if err := o.capture.Stop(); err != nil {
		log.Printf("call: stop capture: %v", err)
	}
	if leftover := o.capture.DrainTranscript(); leftover != "" {
		log.Printf("call: discarding unsent transcript %q", leftover)
	}
	o.opts.Queue.Flush()
	o.opts.Log.ClearLiveTranscription()

	o.countCallEvent("end")
	o.opts.Log.Append(conversation.SenderSystem, "call ended")
}

// Close ends any active call. The transport and queue are owned by the
// caller and closed separately.
func (o *Orchestrator) Close() {
	o.EndCall()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) CallID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.callID
}

// Status is the diagnostics snapshot served over HTTP.
type Status struct {
	CallState     State           `json:"call_state"`
	CallID        string          `json:"call_id,omitempty"`
	Connection    transport.State `json:"connection_state"`
	Reconnects    int             `json:"reconnect_attempts"`
	CaptureActive bool            `json:"capture_active"`
	QueueDepth    int             `json:"queue_depth"`
	Playing       bool            `json:"playing"`
	Streaming     bool            `json:"streaming"`
	Entries       int             `json:"entries"`
	Live          string          `json:"live_transcription,omitempty"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	state, callID := o.state, o.callID
	o.mu.Unlock()
	return Status{
		CallState:     state,
		CallID:        callID,
		Connection:    o.opts.Transport.State(),
		Reconnects:    o.opts.Transport.ReconnectAttempts(),
		CaptureActive: o.capture.Active(),
		QueueDepth:    o.opts.Queue.Depth(),
		Playing:       o.opts.Queue.Playing(),
		Streaming:     o.opts.Queue.Streaming(),
		Entries:       o.opts.Log.Len(),
		Live:          o.opts.Log.Live(),
	}
}

func (o *Orchestrator) pingLoop(stop chan struct{}) {
	ticker := time.NewTicker(o.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.opts.Transport.Send(protocol.NewPing())
		}
	}
}

// handleUtterance forwards one finalized utterance to the server and
// records it in the conversation and history.
func (o *Orchestrator) handleUtterance(text string) {
	o.opts.Log.ClearLiveTranscription()
	o.opts.Log.Append(conversation.SenderUser, text)
	o.persist(conversation.SenderUser, text)

	if !o.opts.Transport.Send(protocol.NewUserSpeech(text)) {
		o.opts.Log.Append(conversation.SenderSystem, "message not sent: no connection")
		return
	}

	o.mu.Lock()
	o.sentAt = time.Now()
	o.typingSeen = false
	o.chunkSeen = false
	o.audioSeen = false
	o.mu.Unlock()
	o.countCallEvent("utterance_sent")
}

func (o *Orchestrator) handleInterim(text string) {
	o.opts.Log.ShowLiveTranscription(text)
}

func (o *Orchestrator) handleCaptureError(code, detail string) {
	o.opts.Log.Append(conversation.SenderError, "speech recognition error: "+code)
	log.Printf("call: capture error %s: %s", code, detail)
}

func (o *Orchestrator) handleTyping() {
	o.mu.Lock()
	mark := time.Time{}
	if !o.typingSeen && !o.sentAt.IsZero() {
		o.typingSeen = true
		mark = o.sentAt
	}
	o.mu.Unlock()
	if !mark.IsZero() && o.opts.Metrics != nil {
		o.opts.Metrics.ObserveRoundTripStage(observability.StageSendToTyping, time.Since(mark))
	}
}

func (o *Orchestrator) handleResponseStart() {
	o.opts.Log.BeginStreamedEntry()
	o.opts.Queue.BeginStream()
}

func (o *Orchestrator) handleChunk(msg protocol.AIChunk) {
	o.opts.Log.UpdateStreamedEntry(msg.FullText)

	o.mu.Lock()
	mark := time.Time{}
	if !o.chunkSeen && !o.sentAt.IsZero() {
		o.chunkSeen = true
		mark = o.sentAt
	}
	o.mu.Unlock()
	if !mark.IsZero() && o.opts.Metrics != nil {
		o.opts.Metrics.ObserveRoundTripStage(observability.StageSendToFirstChunk, time.Since(mark))
	}
}

func (o *Orchestrator) handleResponseComplete(msg protocol.AIResponseComplete) {
	entry, ok := o.opts.Log.EndStreamedEntry(msg.Content)
	if ok && entry.Content != "" {
		o.persist(conversation.SenderAssistant, entry.Content)
	}

	o.mu.Lock()
	mark := o.sentAt
	o.sentAt = time.Time{}
	o.mu.Unlock()
	if !mark.IsZero() && o.opts.Metrics != nil {
		o.opts.Metrics.ObserveRoundTripStage(observability.StageTurnTotal, time.Since(mark))
	}
}

func (o *Orchestrator) handleAudioChunk(msg protocol.AudioChunk) {
	o.opts.Queue.Enqueue(playback.Fragment{
		ID:          uuid.NewString(),
		AudioBase64: msg.Content,
		MIME:        "audio/mpeg",
		Text:        msg.Text,
	})

	o.mu.Lock()
	mark := time.Time{}
	if !o.audioSeen && !o.sentAt.IsZero() {
		o.audioSeen = true
		mark = o.sentAt
	}
	o.mu.Unlock()
	if !mark.IsZero() && o.opts.Metrics != nil {
		o.opts.Metrics.ObserveFirstAudioLatency(time.Since(mark))
	}
}

func (o *Orchestrator) handleAudioResponse(msg protocol.AudioResponse) {
	if msg.Content != "" {
		o.opts.Queue.PlayImmediate(playback.Fragment{
			ID:          uuid.NewString(),
			AudioBase64: msg.Content,
			MIME:        "audio/mpeg",
		})
	}
	if msg.IsFinal {
		o.opts.Queue.Finalize()
	}
}

// handleTranscription records a server-side transcription of the user's
// speech, replacing whatever interim text was showing.
func (o *Orchestrator) handleTranscription(msg protocol.Transcription) {
	o.opts.Log.ClearLiveTranscription()
	if msg.Content == "" {
		return
	}
	o.opts.Log.Append(conversation.SenderUser, msg.Content)
	o.persist(conversation.SenderUser, msg.Content)
}

func (o *Orchestrator) persist(sender conversation.Sender, content string) {
	if o.opts.Store == nil {
		return
	}
	o.mu.Lock()
	callID := o.callID
	o.mu.Unlock()

	redacted, changed := policy.RedactPII(content)
	rec := history.EntryRecord{
		UserID:   o.opts.UserID,
		CallID:   callID,
		Sender:   string(sender),
		Content:  redacted,
		Redacted: changed,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := o.opts.Store.SaveEntry(ctx, rec); err != nil {
		log.Printf("call: persist %s entry: %v", sender, err)
	}
}

func (o *Orchestrator) countCallEvent(event string) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.CallEvents.WithLabelValues(event).Inc()
	}
}
