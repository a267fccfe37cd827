package registry

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulseroad/pulse/backend/internal/pipeline"
)

// ErrSessionOpen is returned by Open when the session id is already
// registered. Duplicate opens are rejected, not replaced: replacing
// would silently orphan the prior connection's assembler state.
var ErrSessionOpen = errors.New("session already open")

// LiveTelemetry is the last-observed position and speed for a session.
// Written only by the owning ingestion loop; readers tolerate staleness.
type LiveTelemetry struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	SpeedKmh  float64   `json:"speed_kmh"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is the live state for one open connection.
type Session struct {
	ID        string
	Pipeline  pipeline.Processor
	StartedAt time.Time

	telemetry atomic.Pointer[LiveTelemetry]
}

// NewSession creates session state for a freshly opened connection.
func NewSession(id string, proc pipeline.Processor) *Session {
	return &Session{ID: id, Pipeline: proc, StartedAt: time.Now().UTC()}
}

// UpdateTelemetry swaps in a new live snapshot.
func (s *Session) UpdateTelemetry(t LiveTelemetry) {
	s.telemetry.Store(&t)
}

// Telemetry returns the latest snapshot, or nil before the first fix.
func (s *Session) Telemetry() *LiveTelemetry {
	return s.telemetry.Load()
}

// Registry is the process-wide map of open sessions. All methods are
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Open registers a session. Returns ErrSessionOpen if the id is taken.
func (r *Registry) Open(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrSessionOpen
	}
	r.sessions[s.ID] = s
	return nil
}

// Close removes and returns the session for teardown. Calling it twice
// is a no-op; the second call returns nil.
func (r *Registry) Close(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	delete(r.sessions, id)
	return s
}

// Get returns the session for id, or nil if not open.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// List returns the ids of all open sessions, sorted for stable output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
