package corpus

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

func strptr(s string) *string { return &s }

func record(id string, responses ...harvest.AttachmentRef) harvest.AllegationRecord {
	return harvest.AllegationRecord{
		ID:        id,
		Title:     "Villagers allege pollution by " + id,
		Companies: []string{"Acme Mining"},
		Narrative: "original narrative for " + id,
		Date:      "2026-01-15",
		Responses: responses,
	}
}

func openEmpty(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.json")
	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	return s, path
}

func TestUpsertIsIdempotent(t *testing.T) {
	s, _ := openEmpty(t)
	ref := harvest.AttachmentRef{URL: "https://example.com/r1.pdf", Kind: harvest.KindPDF,
		Text: strptr("first extraction"), Method: harvest.MethodDirect}

	s.Upsert(record("story-1", ref))
	s.Upsert(record("story-1", ref))

	assert.Equal(t, 1, s.Len())
	got, ok := s.Get("story-1")
	require.True(t, ok)
	assert.Len(t, got.Responses, 1)
}

func TestUpsertMergesNewResponsesOnly(t *testing.T) {
	s, _ := openEmpty(t)
	first := harvest.AttachmentRef{URL: "https://example.com/r1.pdf", Kind: harvest.KindPDF,
		Text: strptr("first run text"), Method: harvest.MethodDirect}
	s.Upsert(record("story-1", first))

	// Second run sees the same story with an extra response, and a
	// re-extracted (different) text for the original one.
	changed := first
	changed.Text = strptr("re-extracted text")
	second := harvest.AttachmentRef{URL: "https://example.com/r2.html", Kind: harvest.KindHTML,
		Text: strptr("second response"), Method: harvest.MethodDirect}
	rerun := record("story-1", changed, second)
	rerun.Narrative = "rewritten narrative"
	s.Upsert(rerun)

	got, ok := s.Get("story-1")
	require.True(t, ok)
	assert.Equal(t, "original narrative for story-1", got.Narrative, "narrative is immutable after first insert")
	require.Len(t, got.Responses, 2)
	assert.Equal(t, "first run text", *got.Responses[0].Text, "existing response text is never overwritten")
	assert.Equal(t, "https://example.com/r2.html", got.Responses[1].URL)
}

func TestCursorIsMonotonic(t *testing.T) {
	s, _ := openEmpty(t)
	assert.Equal(t, 0, s.Cursor())

	s.AdvanceCursor(3)
	assert.Equal(t, 3, s.Cursor())

	s.AdvanceCursor(2)
	assert.Equal(t, 3, s.Cursor(), "cursor never moves backward")

	s.AdvanceCursor(7)
	assert.Equal(t, 7, s.Cursor())
}

func TestFlushAndReload(t *testing.T) {
	s, path := openEmpty(t)
	s.Upsert(record("story-1", harvest.AttachmentRef{URL: "https://example.com/r1.pdf",
		Kind: harvest.KindPDF, Text: strptr("text"), Method: harvest.MethodDirect}))
	s.Upsert(record("story-2"))
	s.AdvanceCursor(4)
	require.NoError(t, s.Flush())

	reloaded, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	assert.Equal(t, 4, reloaded.Cursor())
	got, ok := reloaded.Get("story-1")
	require.True(t, ok)
	assert.Equal(t, "Villagers allege pollution by story-1", got.Title)
	require.Len(t, got.Responses, 1)
	require.NotNil(t, got.Responses[0].Text)
	assert.Equal(t, "text", *got.Responses[0].Text)
}

func TestFlushPreservesInsertionOrder(t *testing.T) {
	s, path := openEmpty(t)
	for _, id := range []string{"zulu", "alpha", "mike"} {
		s.Upsert(record(id))
	}
	require.NoError(t, s.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, bytes.Index(data, []byte("zulu")), bytes.Index(data, []byte("alpha")))
	assert.Less(t, bytes.Index(data, []byte("alpha")), bytes.Index(data, []byte("mike")))
}

func TestFlushLeavesNoTempFiles(t *testing.T) {
	s, path := openEmpty(t)
	s.Upsert(record("story-1"))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestOpenRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path, zap.NewNop())
	assert.Error(t, err)
}
