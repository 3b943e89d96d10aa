package playback

import (
	"context"
	"encoding/base64"
	"log"
	"sync"
	"time"

	"github.com/voxcall/voxcall/internal/observability"
)

const DefaultFragmentGap = 40 * time.Millisecond

// Fragment is one base64-encoded slice of assistant speech.
type Fragment struct {
	ID          string
	AudioBase64 string
	MIME        string
	Text        string
}

type Options struct {
	Player  Player
	Gap     time.Duration
	Metrics *observability.Metrics
}

// Queue plays fragments strictly in enqueue order through a single playback
// loop, so at most one fragment is ever playing. A fragment whose payload
// fails to decode or play is skipped and the loop moves on. PlayImmediate
// bypasses the pending order for single-shot payloads without touching it.
type Queue struct {
	player  Player
	gap     time.Duration
	metrics *observability.Metrics

	mu         sync.Mutex
	pending    []Fragment
	immediate  *Fragment
	playing    bool
	streaming  bool
	closed     bool
	playCancel context.CancelFunc

	wake chan struct{}
	done chan struct{}
}

func NewQueue(opts Options) *Queue {
	if opts.Player == nil {
		opts.Player = DiscardPlayer{}
	}
	if opts.Gap < 0 {
		opts.Gap = 0
	}
	q := &Queue{
		player:  opts.Player,
		gap:     opts.Gap,
		metrics: opts.Metrics,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.loop()
	return q
}

// BeginStream marks the start of a chunked audio stream.
func (q *Queue) BeginStream() {
	q.mu.Lock()
	q.streaming = true
	q.mu.Unlock()
}

// Finalize marks the current stream complete. Fragments already pending
// still play out.
func (q *Queue) Finalize() {
	q.mu.Lock()
	q.streaming = false
	q.mu.Unlock()
}

// Enqueue appends one fragment behind everything already pending.
func (q *Queue) Enqueue(f Fragment) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, f)
	q.setDepthLocked()
	q.mu.Unlock()
	q.signal()
}

// PlayImmediate stops whatever is currently playing and starts f at once.
// The pending order is untouched; it resumes after f. A second immediate
// fragment replaces an unplayed first.
func (q *Queue) PlayImmediate(f Fragment) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.immediate = &f
	cancel := q.playCancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.signal()
}

// Flush discards everything pending and interrupts the fragment currently
// playing.
func (q *Queue) Flush() {
	q.mu.Lock()
	q.pending = nil
	q.immediate = nil
	q.streaming = false
	q.setDepthLocked()
	cancel := q.playCancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close flushes the queue and stops the playback loop.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.Flush()
	q.signal()
	<-q.done
}

func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.immediate != nil {
		n++
	}
	return n
}

func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

func (q *Queue) Streaming() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.streaming
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) setDepthLocked() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.pending)))
	}
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		var frag *Fragment
		if q.immediate != nil {
			frag = q.immediate
			q.immediate = nil
		} else if len(q.pending) > 0 {
			f := q.pending[0]
			q.pending = q.pending[1:]
			q.setDepthLocked()
			frag = &f
		}
		if frag == nil {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		q.playing = true
		q.mu.Unlock()

		played := q.play(*frag)

		q.mu.Lock()
		q.playing = false
		q.mu.Unlock()

		if played && q.gap > 0 {
			time.Sleep(q.gap)
		}
	}
}

// play decodes and renders one fragment, reporting whether it completed.
func (q *Queue) play(f Fragment) bool {
	data, err := base64.StdEncoding.DecodeString(f.AudioBase64)
	if err != nil {
		log.Printf("playback: skipping fragment %s: decode: %v", f.ID, err)
		if q.metrics != nil {
			q.metrics.FragmentsSkipped.Inc()
		}
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.playCancel = cancel
	q.mu.Unlock()
	err = q.player.Play(ctx, data, f.MIME)
	q.mu.Lock()
	q.playCancel = nil
	q.mu.Unlock()
	cancel()

	if err != nil {
		log.Printf("playback: skipping fragment %s: %v", f.ID, err)
		if q.metrics != nil {
			q.metrics.FragmentsSkipped.Inc()
		}
		return false
	}
	if q.metrics != nil {
		q.metrics.FragmentsPlayed.Inc()
	}
	return true
}
