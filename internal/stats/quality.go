package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// escalation thresholds for the recommendation rules
const (
	lowScoreThreshold    = 80
	duplicateRateCeiling = 0.25
	unmappedRateCeiling  = 0.30
	missingImageCeiling  = 0.50
)

// QualityInput collects the per-stage summaries one run produced.
type QualityInput struct {
	RunID         string
	GeneratedAt   time.Time
	OriginalCount int // records entering the pipeline, persisted and new
	FinalCount    int // events published
	Dedupe        models.DedupeSummary
	Cleaning      models.CleaningSummary
	Validation    models.ValidationSummary
	Mapping       models.MappingSummary
	Issues        models.IssueSummary

	// WalkAborted marks a degraded run: the listing walk gave up on repeated
	// page failures and the published dataset falls back to the last good
	// state.
	WalkAborted bool
}

// BuildQualityReport assembles the quality artifact, including the
// prioritized recommendations derived from the run's numbers.
func BuildQualityReport(in QualityInput) models.QualityReport {
	report := models.QualityReport{
		RunID:           in.RunID,
		GeneratedAt:     in.GeneratedAt,
		OriginalCount:   in.OriginalCount,
		FinalCount:      in.FinalCount,
		QualityScore:    in.Validation.Score,
		Dedupe:          in.Dedupe,
		Cleaning:        in.Cleaning,
		Validation:      in.Validation,
		Mapping:         in.Mapping,
		Issues:          in.Issues,
		Recommendations: recommendations(in),
	}
	return report
}

func recommendations(in QualityInput) []models.Recommendation {
	var recs []models.Recommendation

	if in.Validation.Score < lowScoreThreshold {
		recs = append(recs, models.Recommendation{
			Priority: models.PriorityHigh,
			Message:  fmt.Sprintf("Quality score %d is below %d: review the extraction selectors against the current listing markup.", in.Validation.Score, lowScoreThreshold),
		})
	}

	if in.WalkAborted {
		recs = append(recs, models.Recommendation{
			Priority: models.PriorityHigh,
			Message:  "The listing walk aborted after repeated page failures; the published dataset is the last good state. Check whether the listing site is reachable.",
		})
	}

	if in.Dedupe.Input > 0 {
		if rate := float64(in.Dedupe.Duplicates) / float64(in.Dedupe.Input); rate > duplicateRateCeiling {
			recs = append(recs, models.Recommendation{
				Priority: models.PriorityMedium,
				Message:  fmt.Sprintf("%.0f%% of incoming records were duplicates; the walk may be re-reading already ingested pages.", rate*100),
			})
		}
	}

	if in.FinalCount > 0 {
		if rate := float64(in.Mapping.Unmapped) / float64(in.FinalCount); rate > unmappedRateCeiling {
			recs = append(recs, models.Recommendation{
				Priority: models.PriorityMedium,
				Message:  fmt.Sprintf("%d of %d published events have no city mapping; consider extending the city registry keywords.", in.Mapping.Unmapped, in.FinalCount),
			})
		}
		if missing := in.Issues.Warnings[missingImageWarning]; float64(missing)/float64(in.FinalCount) > missingImageCeiling {
			recs = append(recs, models.Recommendation{
				Priority: models.PriorityLow,
				Message:  fmt.Sprintf("%d events lack an image; verify the image selector still matches the listing markup.", missing),
			})
		}
	}

	if len(recs) == 0 {
		recs = append(recs, models.Recommendation{
			Priority: models.PriorityLow,
			Message:  "No action required.",
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank(recs[i].Priority) < priorityRank(recs[j].Priority)
	})
	return recs
}

// missingImageWarning mirrors the validator's warning message; the histogram
// is keyed by it.
const missingImageWarning = "Missing image"

func priorityRank(p string) int {
	switch p {
	case models.PriorityHigh:
		return 0
	case models.PriorityMedium:
		return 1
	default:
		return 2
	}
}
