package aggregate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pulseroad/pulse/backend/internal/capture"
	"github.com/pulseroad/pulse/backend/internal/registry"
)

// Service computes rollups on demand by scanning the artifact store for
// completed segments and the session registry for live state. It holds
// no caches: the same store contents always produce the same answer.
//
// Tolerance policy: an artifact that fails to parse is skipped; a
// missing field contributes nothing to an average rather than a zero.
type Service struct {
	root string
	reg  *registry.Registry
}

// New creates the aggregation service over an artifact root.
func New(root string, reg *registry.Registry) *Service {
	return &Service{root: root, reg: reg}
}

// LiveSession is the current view of one open session.
type LiveSession struct {
	SessionID         string                  `json:"session_id"`
	StartedAt         time.Time               `json:"started_at"`
	Position          *registry.LiveTelemetry `json:"position,omitempty"`
	SegmentsRecorded  int                     `json:"segments_recorded"`
	AvgRoughness      *float64                `json:"avg_roughness,omitempty"`
	AvgConditionScore *float64                `json:"avg_condition_score,omitempty"`
}

// LiveSessions reports position/speed and best-known aggregates for
// every currently open session.
func (s *Service) LiveSessions() []LiveSession {
	out := make([]LiveSession, 0)
	for _, id := range s.reg.List() {
		sess := s.reg.Get(id)
		if sess == nil {
			continue // closed between List and Get
		}
		live := LiveSession{
			SessionID: id,
			StartedAt: sess.StartedAt,
			Position:  sess.Telemetry(),
		}
		agg := s.scanSession(id)
		live.SegmentsRecorded = agg.segments
		live.AvgRoughness = agg.rough.mean()
		live.AvgConditionScore = agg.cond.mean()
		out = append(out, live)
	}
	return out
}

// SessionRollup is the per-session historical view.
type SessionRollup struct {
	SessionID         string   `json:"session_id"`
	SegmentCount      int      `json:"segment_count"`
	TotalDistanceKm   float64  `json:"total_distance_km"`
	AvgRoughness      *float64 `json:"avg_roughness,omitempty"`
	AvgConditionScore *float64 `json:"avg_condition_score,omitempty"`
	DistressEvents    int      `json:"distress_events"`
	Active            bool     `json:"active"`
}

// Sessions lists every recorded session from disk, merged with any
// still-open session that has not produced artifacts yet.
func (s *Service) Sessions() []SessionRollup {
	active := make(map[string]bool)
	for _, id := range s.reg.List() {
		active[id] = true
	}

	seen := make(map[string]bool)
	out := make([]SessionRollup, 0)
	for _, id := range listDirs(s.root) {
		agg := s.scanSession(id)
		out = append(out, SessionRollup{
			SessionID:         id,
			SegmentCount:      agg.segments,
			TotalDistanceKm:   agg.distanceKm,
			AvgRoughness:      agg.rough.mean(),
			AvgConditionScore: agg.cond.mean(),
			DistressEvents:    agg.distresses,
			Active:            active[id],
		})
		seen[id] = true
	}

	for id := range active {
		if !seen[id] {
			out = append(out, SessionRollup{SessionID: id, Active: true})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// GlobalStats is the fleet-wide rollup.
type GlobalStats struct {
	SessionCount      int      `json:"session_count"`
	ActiveSessions    int      `json:"active_sessions"`
	SegmentCount      int      `json:"segment_count"`
	TotalDistanceKm   float64  `json:"total_distance_km"`
	AvgRoughness      *float64 `json:"avg_roughness,omitempty"`
	AvgConditionScore *float64 `json:"avg_condition_score,omitempty"`
	DistressEvents    int      `json:"distress_events"`
}

// Global computes fleet-wide statistics across all recorded sessions.
func (s *Service) Global() GlobalStats {
	sessions := s.Sessions()

	var stats GlobalStats
	var rough, cond runningMean
	stats.SessionCount = len(sessions)
	for _, sess := range sessions {
		if sess.Active {
			stats.ActiveSessions++
		}
		stats.SegmentCount += sess.SegmentCount
		stats.TotalDistanceKm += sess.TotalDistanceKm
		stats.DistressEvents += sess.DistressEvents
	}

	// Fleet averages weight every segment equally, so re-scan per
	// segment instead of averaging the per-session averages.
	for _, id := range listDirs(s.root) {
		agg := s.scanSession(id)
		rough.sum += agg.rough.sum
		rough.n += agg.rough.n
		cond.sum += agg.cond.sum
		cond.n += agg.cond.n
	}
	stats.AvgRoughness = rough.mean()
	stats.AvgConditionScore = cond.mean()
	return stats
}

// SegmentRecord is one completed segment in the historical listing.
type SegmentRecord struct {
	SegmentID      string   `json:"segment_id"`
	Timestamp      string   `json:"timestamp,omitempty"`
	RoughnessIndex *float64 `json:"roughness_index,omitempty"`
	ConditionScore *float64 `json:"condition_score,omitempty"`
	Condition      string   `json:"condition,omitempty"`
	LengthKm       *float64 `json:"length_km,omitempty"`
	Distresses     []string `json:"distresses,omitempty"`
}

// SessionSegments lists a session's completed segments in creation
// order (segment ids are zero-padded ordinals, so lexical order is
// creation order).
func (s *Service) SessionSegments(sessionID string) []SegmentRecord {
	out := make([]SegmentRecord, 0)
	for _, segID := range listDirs(filepath.Join(s.root, sessionID)) {
		rec := SegmentRecord{SegmentID: segID}
		if res, ok := s.readFinal(sessionID, segID); ok {
			rec.Timestamp = res.Get("timestamp").String()
			rec.RoughnessIndex = floatField(res, "roughness_index")
			rec.ConditionScore = floatField(res, "condition_score")
			rec.Condition = res.Get("condition").String()
			rec.LengthKm = floatField(res, "length_km")
			for _, d := range res.Get("distresses").Array() {
				rec.Distresses = append(rec.Distresses, d.String())
			}
		}
		out = append(out, rec)
	}
	return out
}

// FrameListing exposes one segment's image directory with stable
// relative addresses, so a client can fetch images via /debug-files/.
type FrameListing struct {
	SegmentID string   `json:"segment_id"`
	Dir       string   `json:"dir"`
	Count     int      `json:"count"`
	Files     []string `json:"files"`
	BaseURL   string   `json:"base_url"`
}

// SessionFrames enumerates all captured and model-input frames for a
// session.
func (s *Service) SessionFrames(sessionID string) []FrameListing {
	out := make([]FrameListing, 0)
	for _, segID := range listDirs(filepath.Join(s.root, sessionID)) {
		for _, dir := range []string{capture.DirCapturedFrames, capture.DirVLMInputFrames} {
			files := listImages(filepath.Join(s.root, sessionID, segID, dir))
			if len(files) == 0 {
				continue
			}
			out = append(out, FrameListing{
				SegmentID: segID,
				Dir:       dir,
				Count:     len(files),
				Files:     files,
				BaseURL:   "/debug-files/" + sessionID + "/" + segID + "/" + dir,
			})
		}
	}
	return out
}

// RecordedSession pairs a recorded session id with its segment ids.
type RecordedSession struct {
	SessionID string   `json:"session_id"`
	Segments  []string `json:"segments"`
}

// RecordedSessions lists everything the artifact store has seen.
func (s *Service) RecordedSessions() []RecordedSession {
	out := make([]RecordedSession, 0)
	for _, id := range listDirs(s.root) {
		out = append(out, RecordedSession{
			SessionID: id,
			Segments:  listDirs(filepath.Join(s.root, id)),
		})
	}
	return out
}

// DebugArtifacts returns every artifact recorded for one segment: JSON
// files parsed (with an explicit marker when unparseable), text files
// verbatim, image directories as listings.
func (s *Service) DebugArtifacts(sessionID, segmentID string) (map[string]any, bool) {
	segDir := filepath.Join(s.root, sessionID, segmentID)
	entries, err := os.ReadDir(segDir)
	if err != nil {
		return nil, false
	}

	files := make(map[string]any)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue // in-progress temp files
		}
		path := filepath.Join(segDir, name)
		switch {
		case e.IsDir():
			images := listImages(path)
			files[name] = map[string]any{
				"type":     "image_directory",
				"count":    len(images),
				"files":    images,
				"base_url": "/debug-files/" + sessionID + "/" + segmentID + "/" + name,
			}
		case strings.HasSuffix(name, ".json"):
			data, rerr := os.ReadFile(path)
			if rerr != nil || !gjson.ValidBytes(data) {
				files[name] = map[string]any{"error": "could not parse"}
				continue
			}
			files[name] = gjson.ParseBytes(data).Value()
		case strings.HasSuffix(name, ".txt"):
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				files[name] = map[string]any{"error": "could not read"}
				continue
			}
			files[name] = string(data)
		}
	}
	return files, true
}

// ---- scanning helpers ----

type runningMean struct {
	sum float64
	n   int
}

func (m runningMean) mean() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

type sessionAgg struct {
	segments   int
	distanceKm float64
	distresses int
	rough      runningMean
	cond       runningMean
}

// scanSession folds all final-result artifacts of one session. Segments
// whose result is missing or unparseable still count toward the segment
// total but contribute nothing else.
func (s *Service) scanSession(sessionID string) sessionAgg {
	var agg sessionAgg
	for _, segID := range listDirs(filepath.Join(s.root, sessionID)) {
		agg.segments++
		res, ok := s.readFinal(sessionID, segID)
		if !ok {
			continue
		}
		if v := floatField(res, "roughness_index"); v != nil {
			agg.rough.sum += *v
			agg.rough.n++
		}
		if v := floatField(res, "condition_score"); v != nil {
			agg.cond.sum += *v
			agg.cond.n++
		}
		if v := floatField(res, "length_km"); v != nil {
			agg.distanceKm += *v
		}
		agg.distresses += len(res.Get("distresses").Array())
	}
	return agg
}

// readFinal loads and validates one segment's pipeline_result.json.
func (s *Service) readFinal(sessionID, segmentID string) (gjson.Result, bool) {
	data, err := os.ReadFile(filepath.Join(s.root, sessionID, segmentID, capture.FileFinal))
	if err != nil || !gjson.ValidBytes(data) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(data), true
}

// floatField returns the numeric field at path, or nil when absent or
// non-numeric, never a fabricated zero.
func floatField(res gjson.Result, path string) *float64 {
	v := res.Get(path)
	if !v.Exists() || v.Type != gjson.Number {
		return nil
	}
	f := v.Float()
	return &f
}

func listDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func listImages(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".png") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
