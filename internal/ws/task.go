package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pulseroad/pulse/backend/internal/metrics"
	"github.com/pulseroad/pulse/backend/internal/pipeline"
	"github.com/pulseroad/pulse/backend/internal/registry"
	"github.com/pulseroad/pulse/backend/internal/segment"
)

// Server→client outcome messages. Exactly one per segment, or none if
// the connection closed before delivery.
type resultMessage struct {
	Type string                  `json:"type"`
	Data *pipeline.SegmentResult `json:"data"`
}

type errorMessage struct {
	Type      string `json:"type"`
	SegmentID string `json:"segment_id,omitempty"`
	Message   string `json:"message"`
}

// runSegmentTask processes one segment, isolated from its siblings: a
// failure (or panic) here produces an error outcome for this segment
// only and never touches the ingestion loop.
func (h *Handler) runSegmentTask(sess *registry.Session, seg *segment.Segment, send *resultSender, tasks chan struct{}) {
	defer func() {
		<-tasks
		sess.Pipeline.Release()
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("segment task panic", "session_id", sess.ID, "segment_id", seg.ID, "panic", r)
			h.deliverError(sess.ID, seg.ID, send, fmt.Errorf("internal error: %v", r))
		}
	}()

	ctx := context.Background()
	if h.cfg.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.SegmentTimeout)
		defer cancel()
	}

	result, err := sess.Pipeline.ProcessSegment(ctx, seg)
	if err != nil {
		slog.Error("pipeline error", "session_id", sess.ID, "segment_id", seg.ID, "error", err)
		h.deliverError(sess.ID, seg.ID, send, err)
		return
	}

	if send.send(resultMessage{Type: "segment_result", Data: result}) {
		metrics.SegmentOutcomes.WithLabelValues("result").Inc()
	} else {
		// Connection closed before delivery: a state-transition race,
		// not an error. The artifact store already has the result.
		metrics.SegmentOutcomes.WithLabelValues("dropped").Inc()
	}
}

func (h *Handler) deliverError(sessionID, segmentID string, send *resultSender, err error) {
	if send.send(errorMessage{Type: "error", SegmentID: segmentID, Message: err.Error()}) {
		metrics.SegmentOutcomes.WithLabelValues("error").Inc()
	} else {
		metrics.SegmentOutcomes.WithLabelValues("dropped").Inc()
	}
}

// resultSender serializes writes from concurrent segment tasks onto one
// websocket connection and refuses them after shutdown.
type resultSender struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newResultSender(conn *websocket.Conn) *resultSender {
	return &resultSender{conn: conn}
}

// send delivers one message; reports whether it actually went out.
func (s *resultSender) send(v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if err := s.conn.WriteJSON(v); err != nil {
		s.closed = true
		return false
	}
	return true
}

// shutdown stops all future sends; in-flight tasks outliving the
// session skip delivery silently from here on.
func (s *resultSender) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
