package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsassist/voice-backend/internal/agent"
	"github.com/obsassist/voice-backend/internal/audio"
	"github.com/obsassist/voice-backend/internal/config"
	"github.com/obsassist/voice-backend/internal/listener"
	"github.com/obsassist/voice-backend/internal/observability"
	"github.com/obsassist/voice-backend/internal/session"
	"github.com/obsassist/voice-backend/internal/stt"
	"github.com/obsassist/voice-backend/internal/wake"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("stt_engine", cfg.STTEngine).
		Str("model", cfg.OllamaModel).
		Str("wake_word", cfg.WakeWord).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("OBS assistant backend starting")

	// The transcriber is shared across listeners: the Whisper model load is
	// expensive and the Deepgram client carries its circuit breaker state.
	transcriber, err := newTranscriber(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize speech-to-text engine")
	}
	defer transcriber.Close()

	gate, err := wake.NewGate(cfg.WakeWord)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid wake word")
	}

	deps := session.Deps{
		Config: cfg,
		NewExecutor: func(p agent.OBSProvider) (agent.Executor, error) {
			return agent.New(cfg.OllamaBaseURL, cfg.OllamaModel, p, logger)
		},
		NewListener: func(onTranscription func(string)) (session.VoiceListener, error) {
			return newListener(cfg, transcriber, onTranscription)
		},
		IsTransient: agent.IsTransient,
		Gate:        gate,
	}

	// Create HTTP server
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/chat", session.Handler(deps))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: the executor endpoint must answer; the transcriber is
	// validated at startup so its presence is enough here.
	checks := map[string]observability.HealthCheckFunc{
		"stt": func(ctx context.Context) (bool, error) {
			return transcriber != nil, nil
		},
		"ollama": func(ctx context.Context) (bool, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.OllamaBaseURL+"/models", nil)
			if err != nil {
				return false, err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return false, err
			}
			resp.Body.Close()
			return resp.StatusCode < 500, nil
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Port 0 asks the OS for an ephemeral port; the frontend reads the
	// PORT= line from stdout to find us.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to bind listen address")
	}
	port := ln.Addr().(*net.TCPAddr).Port
	fmt.Printf("PORT=%d\n", port)
	os.Stdout.Sync()

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: 0, // websocket sessions are long-lived
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Int("port", port).
			Str("endpoint", fmt.Sprintf("ws://127.0.0.1:%d/ws/chat", port)).
			Msg("Server listening")
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func newTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	switch cfg.STTEngine {
	case "whisper":
		return stt.NewWhisperTranscriber(cfg.WhisperModelPath, cfg.WhisperLanguage)
	case "deepgram":
		return stt.NewDeepgramTranscriber(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.DeepgramLanguage)
	default:
		return nil, fmt.Errorf("unknown STT engine %q", cfg.STTEngine)
	}
}

// newListener assembles a fresh mic pipeline. Listeners are single-use; the
// session creates one per voice_start and the capture source dies with it.
func newListener(cfg *config.Config, transcriber stt.Transcriber, onTranscription func(string)) (*listener.Listener, error) {
	source, err := audio.NewCaptureSource(cfg.SampleRate, cfg.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("open capture device: %w", err)
	}

	segmenter := audio.NewSegmenter(&audio.SegmenterConfig{
		SampleRate:          cfg.SampleRate,
		SilenceRMSThreshold: cfg.SilenceRMSThreshold,
		SilenceBlocks:       cfg.SilenceBlocks(),
		MinUtteranceSamples: int(cfg.MinUtteranceDuration.Seconds() * float64(cfg.SampleRate)),
	})

	return listener.New(listener.Config{
		Source:          source,
		Segmenter:       segmenter,
		Transcriber:     transcriber,
		SampleRate:      cfg.SampleRate,
		OnTranscription: onTranscription,
		Logger:          observability.GetLogger(),
	})
}
