package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/voxcall/voxcall/internal/call"
	"github.com/voxcall/voxcall/internal/capture"
	"github.com/voxcall/voxcall/internal/config"
	"github.com/voxcall/voxcall/internal/conversation"
	"github.com/voxcall/voxcall/internal/history"
	"github.com/voxcall/voxcall/internal/httpapi"
	"github.com/voxcall/voxcall/internal/observability"
	"github.com/voxcall/voxcall/internal/playback"
	"github.com/voxcall/voxcall/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()

	endpoint, err := transport.ResolveEndpoint(cfg.ServerURL)
	if err != nil {
		log.Fatalf("server url error: %v", err)
	}

	var recognizer capture.Recognizer
	switch strings.ToLower(strings.TrimSpace(cfg.RecognizerMode)) {
	case "script", "":
		recognizer = capture.NewScriptRecognizer(os.Stdin)
		log.Printf("recognizer: script (stdin)")
	case "mock":
		recognizer = capture.NewMockRecognizer([]capture.Utterance{
			{Partials: []string{"hey", "hey there"}, Final: "hey there, can you hear me?"},
			{Partials: []string{"tell me"}, Final: "tell me something interesting"},
			{Final: "thanks, that is all for now"},
		})
		log.Printf("recognizer: mock script")
	case "none":
		recognizer = capture.DisabledRecognizer{}
		log.Printf("recognizer: disabled")
	default:
		log.Fatalf("invalid VOX_RECOGNIZER: %q (expected script|mock|none)", cfg.RecognizerMode)
	}

	var player playback.Player
	switch strings.ToLower(strings.TrimSpace(cfg.PlayerMode)) {
	case "discard", "":
		player = playback.DiscardPlayer{}
		log.Printf("player: discard")
	case "file":
		dir := cfg.RecordingDir
		if dir == "" {
			log.Fatalf("VOX_PLAYER=file requires VOX_RECORDING_DIR")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create recording dir: %v", err)
		}
		player = &playback.FilePlayer{Dir: dir}
		log.Printf("player: file (%s)", dir)
	default:
		log.Fatalf("invalid VOX_PLAYER: %q (expected discard|file)", cfg.PlayerMode)
	}

	queue := playback.NewQueue(playback.Options{
		Player:  player,
		Gap:     cfg.FragmentGap,
		Metrics: metrics,
	})
	defer queue.Close()

	convLog := conversation.NewLog(conversation.NewConsoleRenderer(os.Stdout))

	client := transport.NewClient(transport.Options{
		Endpoint:    endpoint,
		BaseDelay:   cfg.ReconnectBaseDelay,
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Metrics:     metrics,
	})
	defer client.Close()

	orch := call.New(call.Options{
		Transport:    client,
		Recognizer:   recognizer,
		Queue:        queue,
		Log:          convLog,
		Store:        store,
		Metrics:      metrics,
		UserID:       cfg.UserID,
		PingInterval: cfg.PingInterval,
	})
	defer orch.Close()

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	// The call starts as soon as a channel is up, including after a recovery.
	client.OnStateChange(func(s transport.State) {
		if s != transport.StateConnected {
			return
		}
		if err := orch.StartCall(runCtx); err != nil {
			log.Printf("start call: %v", err)
		}
	})

	if err := client.Connect(runCtx); err != nil {
		log.Printf("initial connect failed, retrying in background: %v", err)
	}

	api := httpapi.New(orch, store, metrics, cfg.UserID)
	httpServer := &http.Server{
		Addr:    cfg.DiagBindAddr,
		Handler: api.Router(),
	}
	go func() {
		log.Printf("diagnostics listening on %s", cfg.DiagBindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("diagnostics listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	orch.EndCall()
	runCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
