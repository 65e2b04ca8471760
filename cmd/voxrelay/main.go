package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/memory"
	"github.com/voxrelay/voxrelay/internal/observability"
	"github.com/voxrelay/voxrelay/internal/orchestrator"
	"github.com/voxrelay/voxrelay/internal/session"
	"github.com/voxrelay/voxrelay/internal/transport"
	"github.com/voxrelay/voxrelay/internal/upstream/responder"
	"github.com/voxrelay/voxrelay/internal/upstream/synthesizer"
	"github.com/voxrelay/voxrelay/internal/upstream/transcriber"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	audit, err := memory.NewAuditSink(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("audit sink init failed: %v", err)
	}
	defer audit.Close()

	store := memory.NewStore()

	trans, err := transcriber.New(transcriber.Config{
		Mode: cfg.TranscriberMode,
		WebsocketVAD: transcriber.WebsocketVADConfig{
			APIKey:    cfg.ElevenLabsAPIKey,
			WSBaseURL: cfg.ElevenLabsWSBaseURL,
			ModelID:   cfg.ElevenLabsSTTModel,
		},
		StreamDuplexPythonPath: cfg.STTDuplexPythonPath,
		StreamDuplexScript:     cfg.STTDuplexScript,
	})
	if err != nil {
		log.Fatalf("transcriber init failed: %v", err)
	}

	resp, err := responder.New(responder.Config{
		Mode:    cfg.ResponderMode,
		HTTPURL: cfg.ResponderHTTPURL,
		CLIPath: cfg.ResponderCLIPath,
	})
	if err != nil {
		log.Fatalf("responder init failed: %v", err)
	}

	synth, err := synthesizer.New(synthesizer.Config{
		Mode: cfg.SynthesizerMode,
		WebsocketStream: synthesizer.WebsocketStreamConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			WSBaseURL:    cfg.ElevenLabsWSBaseURL,
			ModelID:      cfg.ElevenLabsTTSModel,
			OutputFormat: cfg.ElevenLabsTTSOutputFormat,
		},
		StreamDuplexPythonPath: cfg.TTSDuplexPythonPath,
		StreamDuplexScript:     cfg.TTSDuplexScript,
	})
	if err != nil {
		log.Fatalf("synthesizer init failed: %v", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orch := orchestrator.New(orchestrator.Config{
		Sessions:      sessions,
		Store:         store,
		Audit:         audit,
		Transcriber:   trans,
		Responder:     resp,
		Synthesizer:   synth,
		Metrics:       metrics,
		VoiceID:       cfg.ElevenLabsTTSVoice,
		MinConfidence: cfg.TBICMinConfidence,
	})

	srv := transport.New(sessions, orch, metrics, cfg.AllowAnyOrigin)
	mux := http.NewServeMux()
	mux.Handle("/", srv.Router())
	mux.Handle("/metrics", observability.MetricsHandler())

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: mux,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("voxrelay listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
