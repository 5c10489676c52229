package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

func TestOpenCreatesLayout(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want empty", s.Len())
	}

	for _, sub := range []string{"site", filepath.Join("site", "images"), "logs"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("missing directory %s: %v", sub, err)
		}
	}

	if s.FreshWithin(time.Hour) {
		t.Error("an empty dataset must never be fresh")
	}
}

func TestAppendAndReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	records := []models.RawRecord{
		{ID: "e1", Title: "One", URL: "https://e.cn/1", SortRank: 1},
		{ID: "e2", Title: "Two", URL: "https://e.cn/2", SortRank: 2},
	}
	if err := s.Append(records); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if !s.Contains("e1") || !s.Contains("e2") {
		t.Error("appended ids must be known")
	}
	if s.MaxSortRank() != 2 {
		t.Errorf("MaxSortRank = %d, want 2", s.MaxSortRank())
	}
	if !s.FreshWithin(time.Hour) {
		t.Error("dataset written just now must be fresh")
	}

	// a second store sees the persisted state
	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("reopened Len = %d, want 2", reopened.Len())
	}
	if got := reopened.Records(); got[0].ID != "e1" || got[1].ID != "e2" {
		t.Errorf("records out of order: %+v", got)
	}
	if !reopened.Contains("e2") {
		t.Error("reopened store must know persisted ids")
	}

	// appending accumulates rather than replaces
	if err := reopened.Append([]models.RawRecord{{ID: "e3", Title: "Three", URL: "https://e.cn/3", SortRank: 3}}); err != nil {
		t.Fatal(err)
	}
	final, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if final.Len() != 3 || final.MaxSortRank() != 3 {
		t.Errorf("Len = %d, MaxSortRank = %d", final.Len(), final.MaxSortRank())
	}
}

func TestAppendNothingLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Append(nil); err != nil {
		t.Fatalf("Append(nil): %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "events.json")); !os.IsNotExist(err) {
		t.Error("an empty append must not create the dataset file")
	}
}

func TestCommitMarksWithoutPersisting(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Commit([]string{"e1", ""}); err != nil {
		t.Fatal(err)
	}
	if !s.Contains("e1") {
		t.Error("committed id must be known")
	}
	if s.Contains("") {
		t.Error("empty ids are never known")
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Contains("e1") {
		t.Error("Commit must not write to disk")
	}
}

func TestOpenRejectsCorruptDataset(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "events.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(dir); err == nil {
		t.Fatal("expected an error for a corrupt dataset")
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	events := []models.ProcessedEvent{{ID: "e1", Title: "One", URL: "https://e.cn/1"}}
	cityEvents := map[string][]models.ProcessedEvent{"beijing": events}
	statistics := models.Statistics{TotalEvents: 1, Monthly: map[string]int{"09": 1}}
	report := models.QualityReport{RunID: "run-1", QualityScore: 100}

	if err := s.WriteArtifacts(events, cityEvents, statistics, report); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}

	var gotEvents []models.ProcessedEvent
	readJSON(t, filepath.Join(s.SiteDir(), "processed-events.json"), &gotEvents)
	if len(gotEvents) != 1 || gotEvents[0].ID != "e1" {
		t.Errorf("processed events = %+v", gotEvents)
	}

	var gotCity map[string][]models.ProcessedEvent
	readJSON(t, filepath.Join(s.SiteDir(), "city-events.json"), &gotCity)
	if len(gotCity["beijing"]) != 1 {
		t.Errorf("city events = %+v", gotCity)
	}

	var gotStats models.Statistics
	readJSON(t, filepath.Join(s.SiteDir(), "statistics.json"), &gotStats)
	if gotStats.TotalEvents != 1 {
		t.Errorf("statistics = %+v", gotStats)
	}

	var gotReport models.QualityReport
	readJSON(t, filepath.Join(s.SiteDir(), "quality-report.json"), &gotReport)
	if gotReport.RunID != "run-1" {
		t.Errorf("report = %+v", gotReport)
	}

	// no temp files left behind
	entries, err := os.ReadDir(s.SiteDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestLogPath(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	got := s.LogPath(time.Date(2025, 9, 10, 8, 30, 0, 0, time.UTC))
	if filepath.Base(got) != "eventsync-20250910-083000.log" {
		t.Errorf("LogPath = %q", got)
	}
	if filepath.Base(filepath.Dir(got)) != "logs" {
		t.Errorf("LogPath = %q, want it under logs/", got)
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
}
