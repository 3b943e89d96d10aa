// Command callprobe drives the voice-chat websocket endpoint with scripted
// utterances and reports round-trip latency per turn. It talks to the server
// directly so it can be pointed at any environment without a microphone.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxcall/voxcall/internal/protocol"
	"github.com/voxcall/voxcall/internal/transport"
)

type options struct {
	baseURL        string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

var defaultUtterances = []string{
	"Reply in three words: how are you?",
	"Reply in three words: what can you do?",
	"Reply in three words: say goodbye.",
}

type turnResult struct {
	text          string
	toFirstChunk  time.Duration
	toFirstAudio  time.Duration
	toComplete    time.Duration
	chunks        int
	audioChunks   int
	gotFirstChunk bool
	gotFirstAudio bool
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "callprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "callprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var texts string
	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8000", "server base URL")
	flag.IntVar(&cfg.turns, "turns", 3, "number of turns to send")
	flag.DurationVar(&cfg.interTurnDelay, "inter-turn-delay", 500*time.Millisecond, "pause between turns")
	flag.DurationVar(&cfg.turnTimeout, "turn-timeout", 30*time.Second, "per-turn timeout")
	flag.StringVar(&texts, "texts", "", "pipe-separated utterances (default: built-in set)")
	flag.BoolVar(&cfg.verbose, "v", false, "log every inbound message")
	flag.Parse()

	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("-turns must be positive")
	}
	cfg.texts = defaultUtterances
	if strings.TrimSpace(texts) != "" {
		cfg.texts = strings.Split(texts, "|")
	}
	return cfg, nil
}

func run(cfg options) error {
	endpoint, err := transport.ResolveEndpoint(cfg.baseURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	fmt.Printf("callprobe: endpoint=%s turns=%d\n", endpoint, cfg.turns)

	results := make([]turnResult, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		res, err := runTurn(conn, text, cfg.turnTimeout, cfg.verbose)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		results = append(results, res)
		fmt.Printf("turn %d/%d text=%q first_chunk=%s first_audio=%s complete=%s chunks=%d audio=%d\n",
			i+1, cfg.turns, res.text,
			formatLatency(res.toFirstChunk, res.gotFirstChunk),
			formatLatency(res.toFirstAudio, res.gotFirstAudio),
			res.toComplete.Round(time.Millisecond),
			res.chunks, res.audioChunks)

		if i < cfg.turns-1 && cfg.interTurnDelay > 0 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	printSummary(results)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	return nil
}

func runTurn(conn *websocket.Conn, text string, timeout time.Duration, verbose bool) (turnResult, error) {
	payload, err := json.Marshal(protocol.NewUserSpeech(text))
	if err != nil {
		return turnResult{}, err
	}
	start := time.Now()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return turnResult{}, fmt.Errorf("send user_speech: %w", err)
	}

	res := turnResult{text: text}
	deadline := start.Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return turnResult{}, err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return turnResult{}, fmt.Errorf("read: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "callprobe: <- %s\n", data)
		}

		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case protocol.AIChunk:
			res.chunks++
			if !res.gotFirstChunk {
				res.gotFirstChunk = true
				res.toFirstChunk = time.Since(start)
			}
		case protocol.AudioChunk:
			res.audioChunks++
			if !res.gotFirstAudio {
				res.gotFirstAudio = true
				res.toFirstAudio = time.Since(start)
			}
		case protocol.AudioResponse:
			if m.Content != "" {
				res.audioChunks++
				if !res.gotFirstAudio {
					res.gotFirstAudio = true
					res.toFirstAudio = time.Since(start)
				}
			}
		case protocol.AIResponseComplete:
			res.toComplete = time.Since(start)
			return res, nil
		case protocol.ErrorNotice:
			return turnResult{}, fmt.Errorf("server error: %s", m.Content)
		}
	}
}

func printSummary(results []turnResult) {
	if len(results) == 0 {
		return
	}
	var minC, maxC, sumC time.Duration
	for i, r := range results {
		if i == 0 || r.toComplete < minC {
			minC = r.toComplete
		}
		if r.toComplete > maxC {
			maxC = r.toComplete
		}
		sumC += r.toComplete
	}
	avg := sumC / time.Duration(len(results))
	fmt.Printf("summary: turns=%d complete min=%s avg=%s max=%s\n",
		len(results),
		minC.Round(time.Millisecond),
		avg.Round(time.Millisecond),
		maxC.Round(time.Millisecond))
}

func formatLatency(d time.Duration, seen bool) string {
	if !seen {
		return "n/a"
	}
	return d.Round(time.Millisecond).String()
}
