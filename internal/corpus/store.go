// Package corpus persists harvested allegation records as a single
// JSON snapshot, keyed by record ID so reruns converge instead of
// duplicating.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

// snapshot is the on-disk layout. Records keep their first-insertion
// order so diffs between runs stay readable.
type snapshot struct {
	Cursor  int                        `json:"cursor"`
	Records []harvest.AllegationRecord `json:"records"`
}

// Store is the in-memory corpus with its backing file. All mutations
// happen in memory; Flush writes the whole snapshot atomically.
type Store struct {
	mu      sync.Mutex
	path    string
	cursor  int
	order   []string
	records map[string]harvest.AllegationRecord
	logger  *zap.Logger
}

// Open loads the snapshot at path, or starts an empty corpus when the
// file does not exist yet.
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]harvest.AllegationRecord),
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("starting empty corpus", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding corpus %s: %w", path, err)
	}
	s.cursor = snap.Cursor
	for _, rec := range snap.Records {
		if _, seen := s.records[rec.ID]; seen {
			continue
		}
		s.order = append(s.order, rec.ID)
		s.records[rec.ID] = rec
	}
	logger.Info("corpus loaded",
		zap.String("path", path),
		zap.Int("records", len(s.records)),
		zap.Int("cursor", s.cursor))
	return s, nil
}

// Has reports whether a record with this ID is already in the corpus.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok
}

// Upsert inserts a new record, or merges an existing one. A record's
// title, narrative and date are written once and never overwritten;
// only response attachments with previously unseen URLs are appended.
func (s *Store) Upsert(rec harvest.AllegationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok {
		s.order = append(s.order, rec.ID)
		s.records[rec.ID] = rec
		return
	}

	seen := make(map[string]struct{}, len(existing.Responses))
	for _, ref := range existing.Responses {
		seen[ref.URL] = struct{}{}
	}
	for _, ref := range rec.Responses {
		if _, dup := seen[ref.URL]; dup {
			continue
		}
		existing.Responses = append(existing.Responses, ref)
		seen[ref.URL] = struct{}{}
	}
	s.records[rec.ID] = existing
}

// Get returns the stored record for id.
func (s *Store) Get(id string) (harvest.AllegationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of records in the corpus.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Cursor returns the last fully processed listing page, 0 when no page
// has completed yet.
func (s *Store) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// AdvanceCursor moves the cursor forward to page. Moves backward are
// ignored, so a resumed run can never lose progress.
func (s *Store) AdvanceCursor(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page > s.cursor {
		s.cursor = page
	}
}

// Flush writes the snapshot to a temp file in the target directory and
// renames it into place, so a crash mid-write leaves the previous
// snapshot intact.
func (s *Store) Flush() error {
	s.mu.Lock()
	snap := snapshot{
		Cursor:  s.cursor,
		Records: make([]harvest.AllegationRecord, 0, len(s.order)),
	}
	for _, id := range s.order {
		snap.Records = append(snap.Records, s.records[id])
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding corpus: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating corpus dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating corpus temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing corpus temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing corpus temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing corpus file: %w", err)
	}

	s.logger.Debug("corpus flushed", zap.String("path", s.path), zap.Int("records", len(snap.Records)))
	return nil
}
