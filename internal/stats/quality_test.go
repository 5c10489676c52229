package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

func cleanInput() QualityInput {
	return QualityInput{
		RunID:         "run-1",
		GeneratedAt:   time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC),
		OriginalCount: 100,
		FinalCount:    90,
		Dedupe:        models.DedupeSummary{Input: 100, Unique: 95, Duplicates: 5},
		Validation:    models.ValidationSummary{Valid: 85, Warning: 5, Invalid: 0, Score: 100},
		Mapping:       models.MappingSummary{Mapped: 85, Unmapped: 5},
		Issues: models.IssueSummary{
			Critical: map[string]int{},
			Warnings: map[string]int{},
		},
	}
}

func hasRecommendation(recs []models.Recommendation, priority, fragment string) bool {
	for _, r := range recs {
		if r.Priority == priority && strings.Contains(r.Message, fragment) {
			return true
		}
	}
	return false
}

func TestQualityReportCleanRun(t *testing.T) {
	r := BuildQualityReport(cleanInput())

	if r.QualityScore != 100 {
		t.Errorf("QualityScore = %d", r.QualityScore)
	}
	if len(r.Recommendations) != 1 || r.Recommendations[0].Priority != models.PriorityLow {
		t.Errorf("Recommendations = %+v, want a single low-priority no-op", r.Recommendations)
	}
}

func TestQualityReportLowScoreEscalates(t *testing.T) {
	in := cleanInput()
	in.Validation.Score = 72
	in.Validation.Invalid = 28

	r := BuildQualityReport(in)

	if !hasRecommendation(r.Recommendations, models.PriorityHigh, "below 80") {
		t.Errorf("Recommendations = %+v, want a high-priority score escalation", r.Recommendations)
	}
	if r.Recommendations[0].Priority != models.PriorityHigh {
		t.Error("high-priority recommendations must come first")
	}
}

func TestQualityReportAbortedWalk(t *testing.T) {
	in := cleanInput()
	in.WalkAborted = true

	r := BuildQualityReport(in)

	if !hasRecommendation(r.Recommendations, models.PriorityHigh, "last good state") {
		t.Errorf("Recommendations = %+v, want the degraded-run flag", r.Recommendations)
	}
}

func TestQualityReportDuplicateRate(t *testing.T) {
	in := cleanInput()
	in.Dedupe = models.DedupeSummary{Input: 100, Unique: 60, Duplicates: 40}

	r := BuildQualityReport(in)

	if !hasRecommendation(r.Recommendations, models.PriorityMedium, "duplicates") {
		t.Errorf("Recommendations = %+v, want a duplicate-rate warning", r.Recommendations)
	}
}

func TestQualityReportUnmappedRate(t *testing.T) {
	in := cleanInput()
	in.Mapping = models.MappingSummary{Mapped: 50, Unmapped: 40}

	r := BuildQualityReport(in)

	if !hasRecommendation(r.Recommendations, models.PriorityMedium, "no city mapping") {
		t.Errorf("Recommendations = %+v, want a coverage warning", r.Recommendations)
	}
}

func TestQualityReportMissingImages(t *testing.T) {
	in := cleanInput()
	in.Issues.Warnings[missingImageWarning] = 80

	r := BuildQualityReport(in)

	if !hasRecommendation(r.Recommendations, models.PriorityLow, "image") {
		t.Errorf("Recommendations = %+v, want an image-selector hint", r.Recommendations)
	}
}

func TestQualityReportPriorityOrder(t *testing.T) {
	in := cleanInput()
	in.Validation.Score = 50
	in.Dedupe = models.DedupeSummary{Input: 100, Unique: 50, Duplicates: 50}
	in.Issues.Warnings[missingImageWarning] = 80

	r := BuildQualityReport(in)

	last := -1
	for _, rec := range r.Recommendations {
		rank := priorityRank(rec.Priority)
		if rank < last {
			t.Fatalf("recommendations out of order: %+v", r.Recommendations)
		}
		last = rank
	}
}
