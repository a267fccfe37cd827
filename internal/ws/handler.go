package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulseroad/pulse/backend/internal/capture"
	"github.com/pulseroad/pulse/backend/internal/metrics"
	"github.com/pulseroad/pulse/backend/internal/pipeline"
	"github.com/pulseroad/pulse/backend/internal/registry"
	"github.com/pulseroad/pulse/backend/internal/segment"
	"github.com/pulseroad/pulse/backend/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared collaborators for all ingestion sessions.
type HandlerConfig struct {
	Registry       *registry.Registry
	Store          *capture.Store
	CaptureEnabled bool
	SegmentLengthM float64
	MaxConcurrent  int // open sessions across the process
	MaxTasks       int // in-flight segment tasks per session
	SegmentTimeout time.Duration
	VLM            pipeline.VLMClient
	MaxVLMFrames   int

	// newProcessor lets tests substitute the pipeline; nil uses
	// pipeline.New.
	NewProcessor func(sessionID string, rec *capture.Recorder) pipeline.Processor
}

// Handler manages websocket ingestion sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates the ingestion handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 100
	}
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = 8
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// ServeHTTP admits, registers, and upgrades one recording session.
// Returns 503 at capacity and 409 for a session id that is already open.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	rec := capture.NewRecorder(h.cfg.Store, sessionID, h.cfg.CaptureEnabled)
	proc := h.newProcessor(sessionID, rec)

	sess := registry.NewSession(sessionID, proc)
	if err := h.cfg.Registry.Open(sess); err != nil {
		http.Error(w, "session already open", http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "session_id", sessionID, "error", err)
		proc.Finalise()
		h.cfg.Registry.Close(sessionID)
		return
	}
	defer conn.Close()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()

	h.runSession(conn, sess)
}

func (h *Handler) newProcessor(sessionID string, rec *capture.Recorder) pipeline.Processor {
	if h.cfg.NewProcessor != nil {
		return h.cfg.NewProcessor(sessionID, rec)
	}
	return pipeline.New(pipeline.Config{
		SessionID:    sessionID,
		Recorder:     rec,
		VLM:          h.cfg.VLM,
		MaxVLMFrames: h.cfg.MaxVLMFrames,
	})
}

// runSession is the per-connection ingestion loop: strictly sequential
// packet consumption, segment dispatch, disconnect flush, teardown.
// Teardown always runs, whatever ends the loop, and does not wait for
// in-flight segment tasks (the pipeline's reference counting defers its
// release until the last task drops out).
func (h *Handler) runSession(conn *websocket.Conn, sess *registry.Session) {
	sessionID := sess.ID
	slog.Info("session started", "session_id", sessionID)

	asm := segment.NewDistanceAssembler(segment.DistanceConfig{SegmentLengthM: h.cfg.SegmentLengthM})
	send := newResultSender(conn)
	tasks := make(chan struct{}, h.cfg.MaxTasks)

	defer func() {
		send.shutdown()
		sess.Pipeline.Finalise()
		h.cfg.Registry.Close(sessionID)
		slog.Info("session ended", "session_id", sessionID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", sessionID, "error", err)
			break
		}

		pkt, err := telemetry.ParsePacket(data)
		if err != nil {
			slog.Error("malformed packet, ending session", "session_id", sessionID, "error", err)
			return
		}
		metrics.PacketsTotal.WithLabelValues(pkt.Type).Inc()

		if pkt.Type == telemetry.TypeLocation {
			if loc, lerr := pkt.Location(); lerr == nil {
				sess.UpdateTelemetry(registry.LiveTelemetry{
					Lat:       loc.Lat,
					Lon:       loc.Lon,
					SpeedKmh:  loc.SpeedMs * 3.6,
					UpdatedAt: time.Now().UTC(),
				})
			}
		}

		if err := asm.IngestPacket(pkt); err != nil {
			slog.Error("malformed packet payload, ending session", "session_id", sessionID, "error", err)
			return
		}

		h.dispatchReady(asm, sess, send, tasks)
	}

	// Disconnect: force out the trailing partial segment so a short
	// drive still yields a result.
	asm.Flush()
	h.dispatchReady(asm, sess, send, tasks)
}

// dispatchReady spawns one detached segment task per newly ready
// segment. Past the in-flight cap a segment is rejected with an error
// outcome rather than queued behind a possibly hung pipeline.
func (h *Handler) dispatchReady(asm segment.Assembler, sess *registry.Session, send *resultSender, tasks chan struct{}) {
	for _, seg := range asm.ReadySegments() {
		select {
		case tasks <- struct{}{}:
		default:
			metrics.TasksRejected.Inc()
			slog.Warn("segment task cap reached", "session_id", sess.ID, "segment_id", seg.ID)
			send.send(errorMessage{Type: "error", SegmentID: seg.ID, Message: "too many segments in flight"})
			continue
		}

		if !sess.Pipeline.Acquire() {
			// Session finalised between dispatch and start; nothing to do.
			<-tasks
			continue
		}

		metrics.SegmentsDispatched.Inc()
		slog.Info("processing segment", "session_id", sess.ID, "segment_id", seg.ID)
		go h.runSegmentTask(sess, seg, send, tasks)
	}
}
