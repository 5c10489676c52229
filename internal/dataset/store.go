// Package dataset owns the on-disk state of the pipeline: the persisted raw
// dataset that records which events were ever accepted, and the generated
// site artifacts. All writes are atomic replaces so a crashed run leaves the
// previous state intact.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

const (
	datasetFile = "events.json"
	siteDir     = "site"
	imagesDir   = "images"
	logsDir     = "logs"

	processedFile  = "processed-events.json"
	cityEventsFile = "city-events.json"
	statisticsFile = "statistics.json"
	qualityFile    = "quality-report.json"
)

// Store is the system of record for accepted raw records. A single run owns
// it exclusively; it is not safe for concurrent use.
type Store struct {
	dir     string
	records []models.RawRecord
	known   map[string]struct{}
}

// Open loads the persisted dataset under dir, creating the directory layout
// on first use. A missing dataset file means an empty dataset, any other
// read problem is a setup failure.
func Open(dir string) (*Store, error) {
	for _, d := range []string{dir, filepath.Join(dir, siteDir), filepath.Join(dir, siteDir, imagesDir), filepath.Join(dir, logsDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	s := &Store{dir: dir, known: make(map[string]struct{})}

	data, err := os.ReadFile(s.datasetPath())
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", s.datasetPath(), err)
	}
	for _, rec := range s.records {
		s.known[rec.ID] = struct{}{}
	}

	return s, nil
}

// Records returns the persisted raw records in their stored order. The
// caller must not mutate them.
func (s *Store) Records() []models.RawRecord {
	return s.records
}

// Len reports how many records the dataset holds.
func (s *Store) Len() int {
	return len(s.records)
}

// Contains reports whether an identifier was accepted by any prior run.
func (s *Store) Contains(id string) bool {
	_, ok := s.known[id]
	return ok
}

// Commit marks identifiers as known without touching disk. Append calls it
// for every accepted record.
func (s *Store) Commit(newIDs []string) error {
	for _, id := range newIDs {
		if id != "" {
			s.known[id] = struct{}{}
		}
	}
	return nil
}

// Append adds the accepted records of one run and atomically replaces the
// dataset file with the full next state.
func (s *Store) Append(records []models.RawRecord) error {
	if len(records) == 0 {
		return nil
	}

	next := make([]models.RawRecord, 0, len(s.records)+len(records))
	next = append(next, s.records...)

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		next = append(next, rec)
		ids = append(ids, rec.ID)
	}

	if err := writeJSONAtomic(s.datasetPath(), next); err != nil {
		return fmt.Errorf("persisting dataset: %w", err)
	}

	s.records = next
	s.Commit(ids)
	return nil
}

// MaxSortRank returns the highest sort rank ever assigned, so a new walk can
// keep the listing order monotonic across runs.
func (s *Store) MaxSortRank() int {
	max := 0
	for _, rec := range s.records {
		if rec.SortRank > max {
			max = rec.SortRank
		}
	}
	return max
}

// FreshWithin reports whether the dataset was persisted within ttl. A
// missing dataset is never fresh.
func (s *Store) FreshWithin(ttl time.Duration) bool {
	info, err := os.Stat(s.datasetPath())
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < ttl
}

// WriteArtifacts atomically replaces the four site artifacts.
func (s *Store) WriteArtifacts(
	events []models.ProcessedEvent,
	cityEvents map[string][]models.ProcessedEvent,
	statistics models.Statistics,
	report models.QualityReport,
) error {
	site := filepath.Join(s.dir, siteDir)

	artifacts := []struct {
		name string
		data any
	}{
		{processedFile, events},
		{cityEventsFile, cityEvents},
		{statisticsFile, statistics},
		{qualityFile, report},
	}
	for _, a := range artifacts {
		if err := writeJSONAtomic(filepath.Join(site, a.name), a.data); err != nil {
			return fmt.Errorf("writing %s: %w", a.name, err)
		}
	}
	return nil
}

// Dir returns the root data directory.
func (s *Store) Dir() string {
	return s.dir
}

// SiteDir returns the directory the rendering layer reads artifacts from.
func (s *Store) SiteDir() string {
	return filepath.Join(s.dir, siteDir)
}

// ImageDir returns the local image mirror directory.
func (s *Store) ImageDir() string {
	return filepath.Join(s.dir, siteDir, imagesDir)
}

// LogPath names the append-only log file for a run started at t.
func (s *Store) LogPath(t time.Time) string {
	return filepath.Join(s.dir, logsDir, "eventsync-"+t.Format("20060102-150405")+".log")
}

func (s *Store) datasetPath() string {
	return filepath.Join(s.dir, datasetFile)
}

// writeJSONAtomic writes v as indented JSON to path via a temp file in the
// same directory and a rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
