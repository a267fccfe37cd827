package main

import (
	"time"

	"github.com/pulseroad/pulse/backend/internal/env"
)

type config struct {
	port            string
	debugRoot       string
	segmentLengthM  float64
	captureEnabled  bool
	maxSessions     int
	maxSegmentTasks int
	segmentTimeout  time.Duration
	vlmEngine       string
	vlmURL          string
	vlmModel        string
	vlmPoolSize     int
	vlmTimeout      time.Duration
	maxVLMFrames    int
	openaiAPIKey    string
	openaiBaseURL   string
}

func loadConfig() config {
	return config{
		port:            env.Str("PORT", "8000"),
		debugRoot:       env.Str("DEBUG_ROOT", "debug_output"),
		segmentLengthM:  env.Float("SEGMENT_LENGTH_M", 100),
		captureEnabled:  env.Bool("CAPTURE_ENABLED", true),
		maxSessions:     env.Int("MAX_CONCURRENT_SESSIONS", 100),
		maxSegmentTasks: env.Int("MAX_SEGMENT_TASKS", 8),
		segmentTimeout:  time.Duration(env.Int("SEGMENT_TIMEOUT_S", 120)) * time.Second,
		vlmEngine:       env.Str("VLM_ENGINE", "ollama"),
		vlmURL:          env.Str("VLM_URL", "http://localhost:11434"),
		vlmModel:        env.Str("VLM_MODEL", "qwen2.5vl:7b"),
		vlmPoolSize:     env.Int("VLM_POOL_SIZE", 10),
		vlmTimeout:      time.Duration(env.Int("VLM_TIMEOUT_S", 90)) * time.Second,
		maxVLMFrames:    env.Int("MAX_VLM_FRAMES", 4),
		openaiAPIKey:    env.Str("OPENAI_API_KEY", ""),
		openaiBaseURL:   env.Str("OPENAI_BASE_URL", ""),
	}
}
