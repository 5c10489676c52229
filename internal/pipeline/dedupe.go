package pipeline

import (
	"strings"
	"unicode"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// Duplicate detection reasons, surfaced verbatim in the quality report.
const (
	ReasonDuplicateID      = "Duplicate ID"
	ReasonDuplicateURL     = "Duplicate URL"
	ReasonDuplicateContent = "Duplicate title, time and location"
)

// Duplicate is a dropped record with every reason it collided.
type Duplicate struct {
	Record  models.RawRecord
	Reasons []string
}

// Deduper drops records that collide with an already-accepted record on
// identifier, canonical URL, or normalized content key. First seen wins.
// Seed it with the persisted dataset before applying a new batch so records
// from prior runs participate in collision checks.
type Deduper struct {
	ids  map[string]struct{}
	urls map[string]struct{}
	keys map[string]struct{}
}

func NewDeduper() *Deduper {
	return &Deduper{
		ids:  make(map[string]struct{}),
		urls: make(map[string]struct{}),
		keys: make(map[string]struct{}),
	}
}

// Seed registers records accepted by prior runs.
func (d *Deduper) Seed(records []models.RawRecord) {
	for _, rec := range records {
		d.remember(rec.ID, rec.URL, rec.Title, rec.TimeText, rec.LocationText)
	}
}

func (d *Deduper) remember(id, rawURL, title, timeText, locationText string) {
	if id != "" {
		d.ids[id] = struct{}{}
	}
	if u := CanonicalizeURL(strings.TrimSpace(rawURL)); u != "" {
		d.urls[u] = struct{}{}
	}
	if strings.TrimSpace(title) != "" {
		d.keys[ContentKey(title, timeText, locationText)] = struct{}{}
	}
}

// Apply splits a batch into unique records and duplicates, in input order.
// The three collision checks run independently, so a duplicate can carry up
// to three reasons.
func (d *Deduper) Apply(records []models.RawRecord) ([]models.RawRecord, []Duplicate) {
	unique := make([]models.RawRecord, 0, len(records))
	var dups []Duplicate

	for _, rec := range records {
		var reasons []string

		if rec.ID != "" {
			if _, seen := d.ids[rec.ID]; seen {
				reasons = append(reasons, ReasonDuplicateID)
			}
		}

		canonicalURL := CanonicalizeURL(strings.TrimSpace(rec.URL))
		if canonicalURL != "" {
			if _, seen := d.urls[canonicalURL]; seen {
				reasons = append(reasons, ReasonDuplicateURL)
			}
		}

		contentKey := ""
		if strings.TrimSpace(rec.Title) != "" {
			contentKey = ContentKey(rec.Title, rec.TimeText, rec.LocationText)
			if _, seen := d.keys[contentKey]; seen {
				reasons = append(reasons, ReasonDuplicateContent)
			}
		}

		if len(reasons) > 0 {
			dups = append(dups, Duplicate{Record: rec, Reasons: reasons})
			continue
		}

		if rec.ID != "" {
			d.ids[rec.ID] = struct{}{}
		}
		if canonicalURL != "" {
			d.urls[canonicalURL] = struct{}{}
		}
		if contentKey != "" {
			d.keys[contentKey] = struct{}{}
		}
		unique = append(unique, rec)
	}

	return unique, dups
}

// SummarizeDuplicates folds a dedupe pass into the per-reason histogram.
func SummarizeDuplicates(input int, unique []models.RawRecord, dups []Duplicate) models.DedupeSummary {
	s := models.DedupeSummary{
		Input:      input,
		Unique:     len(unique),
		Duplicates: len(dups),
		Reasons:    make(map[string]int),
	}
	for _, d := range dups {
		for _, r := range d.Reasons {
			s.Reasons[r]++
		}
	}
	return s
}

// ContentKey builds the normalized title+time+location key used for
// content-based duplicate detection: case-folded, punctuation-stripped,
// whitespace-collapsed.
func ContentKey(title, timeText, locationText string) string {
	return normalizeKeyPart(title) + "|" + normalizeKeyPart(timeText) + "|" + normalizeKeyPart(locationText)
}

func normalizeKeyPart(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
	return normalizeSpace(mapped)
}
