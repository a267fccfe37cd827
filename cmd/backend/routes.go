package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulseroad/pulse/backend/internal/aggregate"
	"github.com/pulseroad/pulse/backend/internal/registry"
)

type deps struct {
	cfg       config
	registry  *registry.Registry
	agg       *aggregate.Service
	wsHandler http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/{session_id}", d.wsHandler)
	mux.HandleFunc("GET /health", handleHealth)

	mux.HandleFunc("GET /session/{id}/summary", d.handleSessionSummary)

	mux.HandleFunc("GET /api/live", d.handleLive)
	mux.HandleFunc("GET /api/sessions", d.handleSessions)
	mux.HandleFunc("GET /api/stats", d.handleStats)
	mux.HandleFunc("GET /api/sessions/{id}/segments", d.handleSessionSegments)
	mux.HandleFunc("GET /api/sessions/{id}/frames", d.handleSessionFrames)

	mux.HandleFunc("GET /debug/sessions", d.handleDebugSessions)
	mux.HandleFunc("GET /debug/{session}/{segment}", d.handleDebugArtifacts)
	mux.Handle("/debug-files/", http.StripPrefix("/debug-files/", http.FileServer(http.Dir(d.cfg.debugRoot))))

	mux.Handle("/metrics", promhttp.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleSessionSummary serves the live in-memory summary of an open
// session. Closed sessions are only reachable through the /api history
// endpoints.
func (d deps) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	sess := d.registry.Get(r.PathValue("id"))
	if sess == nil {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "Session not found or already closed."})
		return
	}
	writeJSON(w, sess.Pipeline.SessionSummary())
}

func (d deps) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"sessions": d.agg.LiveSessions()})
}

func (d deps) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"sessions": d.agg.Sessions()})
}

func (d deps) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.agg.Global())
}

func (d deps) handleSessionSegments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, map[string]any{"session_id": id, "segments": d.agg.SessionSegments(id)})
}

func (d deps) handleSessionFrames(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, map[string]any{"session_id": id, "frames": d.agg.SessionFrames(id)})
}

func (d deps) handleDebugSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"sessions": d.agg.RecordedSessions()})
}

func (d deps) handleDebugArtifacts(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	segment := r.PathValue("segment")
	files, ok := d.agg.DebugArtifacts(session, segment)
	if !ok {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, map[string]any{"session_id": session, "segment_id": segment, "files": files})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
