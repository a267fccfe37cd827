package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Canonical artifact names inside <root>/<session_id>/<segment_id>/.
// The aggregation layer reads this layout back; it must stay stable.
const (
	FileRawStats    = "raw_sensor_stats.json"
	FilePrompt      = "vlm_prompt.json"
	FileRawResponse = "vlm_raw_response.txt"
	FileParsed      = "vlm_parsed.json"
	FileFinal       = "pipeline_result.json"

	DirCapturedFrames = "captured_frames"
	DirVLMInputFrames = "vlm_input_frames"
)

// Store writes debug artifacts under a per-session/per-segment directory
// tree. Every file is committed atomically (temp file + rename) so a
// concurrent reader never observes a partially written artifact; no two
// writers ever target the same path, so no locking is needed.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. The directory tree is created
// lazily on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the artifact root directory.
func (s *Store) Root() string {
	return s.root
}

// SegmentDir returns the directory for one (session, segment) pair.
func (s *Store) SegmentDir(sessionID, segmentID string) string {
	return filepath.Join(s.root, sessionID, segmentID)
}

// WriteJSON normalizes v and commits it as indented JSON. A normalization
// error does not abort the write; the converted document (with
// unsupported values marked) is still persisted, and the error is
// returned for the caller to log.
func (s *Store) WriteJSON(sessionID, segmentID, name string, v any) error {
	norm, normErr := Normalize(v)
	data, err := json.MarshalIndent(norm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := s.commit(filepath.Join(s.SegmentDir(sessionID, segmentID), name), data); err != nil {
		return err
	}
	return normErr
}

// WriteText commits a verbatim text artifact.
func (s *Store) WriteText(sessionID, segmentID, name, text string) error {
	return s.commit(filepath.Join(s.SegmentDir(sessionID, segmentID), name), []byte(text))
}

// WriteBinary commits a binary artifact under a subdirectory of the
// segment (e.g. captured_frames/frame_000.jpg).
func (s *Store) WriteBinary(sessionID, segmentID, subdir, name string, data []byte) error {
	return s.commit(filepath.Join(s.SegmentDir(sessionID, segmentID), subdir, name), data)
}

// commit writes data to a temporary file in the target directory and
// renames it into place. Rename within one directory is atomic on the
// platforms we run on, which is the all-or-nothing guarantee the
// aggregation reader depends on.
func (s *Store) commit(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}
