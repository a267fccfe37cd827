package capture_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseroad/pulse/backend/internal/capture"
)

func TestWriteJSONCommitsAtomically(t *testing.T) {
	store := capture.NewStore(t.TempDir())

	err := store.WriteJSON("drive_1", "segment_000", "stage.json", map[string]any{"value": 1.5})
	require.NoError(t, err)

	segDir := store.SegmentDir("drive_1", "segment_000")
	data, err := os.ReadFile(filepath.Join(segDir, "stage.json"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1.5, got["value"])

	// No temp files survive a successful commit.
	entries, err := os.ReadDir(segDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}

func TestWriteText(t *testing.T) {
	store := capture.NewStore(t.TempDir())
	raw := "```json\n{\"condition\": \"fair\"}\n```"

	require.NoError(t, store.WriteText("drive_1", "segment_000", capture.FileRawResponse, raw))

	data, err := os.ReadFile(filepath.Join(store.SegmentDir("drive_1", "segment_000"), capture.FileRawResponse))
	require.NoError(t, err)
	assert.Equal(t, raw, string(data), "raw response stored verbatim")
}

func TestWriteBinaryUnderSubdir(t *testing.T) {
	store := capture.NewStore(t.TempDir())
	require.NoError(t, store.WriteBinary("drive_1", "segment_000", capture.DirCapturedFrames, "frame_000.jpg", []byte{0xff, 0xd8}))

	data, err := os.ReadFile(filepath.Join(store.SegmentDir("drive_1", "segment_000"), capture.DirCapturedFrames, "frame_000.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, data)
}

func TestWriteJSONUnsupportedValueStillPersists(t *testing.T) {
	store := capture.NewStore(t.TempDir())

	err := store.WriteJSON("drive_1", "segment_000", "stage.json", map[string]any{"ch": make(chan int)})
	assert.Error(t, err, "normalization error is reported")

	// The document was written anyway, with the value marked.
	data, rerr := os.ReadFile(filepath.Join(store.SegmentDir("drive_1", "segment_000"), "stage.json"))
	require.NoError(t, rerr)
	assert.Contains(t, string(data), "unsupported_type")
}
