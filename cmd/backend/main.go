package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pulseroad/pulse/backend/internal/aggregate"
	"github.com/pulseroad/pulse/backend/internal/capture"
	"github.com/pulseroad/pulse/backend/internal/pipeline"
	"github.com/pulseroad/pulse/backend/internal/registry"
	"github.com/pulseroad/pulse/backend/internal/ws"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	store := capture.NewStore(cfg.debugRoot)
	reg := registry.New()
	agg := aggregate.New(cfg.debugRoot, reg)

	vlm := newVLM(cfg)

	handler := ws.NewHandler(ws.HandlerConfig{
		Registry:       reg,
		Store:          store,
		CaptureEnabled: cfg.captureEnabled,
		SegmentLengthM: cfg.segmentLengthM,
		MaxConcurrent:  cfg.maxSessions,
		MaxTasks:       cfg.maxSegmentTasks,
		SegmentTimeout: cfg.segmentTimeout,
		VLM:            vlm,
		MaxVLMFrames:   cfg.maxVLMFrames,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:       cfg,
		registry:  reg,
		agg:       agg,
		wsHandler: handler,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig, "open_sessions", reg.Len())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("backend starting",
		"addr", addr,
		"debug_root", cfg.debugRoot,
		"segment_length_m", cfg.segmentLengthM,
		"vlm_engine", cfg.vlmEngine,
		"capture", cfg.captureEnabled)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("backend stopped")
}

// newVLM selects the vision backend. A nil client disables the vision
// stage; the sensor stages still run.
func newVLM(cfg config) pipeline.VLMClient {
	switch cfg.vlmEngine {
	case "ollama":
		return pipeline.NewOllamaVLM(cfg.vlmURL, cfg.vlmModel, cfg.vlmPoolSize, cfg.vlmTimeout)
	case "openai":
		if cfg.openaiAPIKey == "" {
			slog.Warn("VLM_ENGINE=openai but OPENAI_API_KEY unset, vision disabled")
			return nil
		}
		return pipeline.NewOpenAIVLM(cfg.openaiAPIKey, cfg.openaiBaseURL, cfg.vlmModel)
	case "off", "":
		return nil
	default:
		slog.Warn("unknown vlm engine, vision disabled", "engine", cfg.vlmEngine)
		return nil
	}
}
