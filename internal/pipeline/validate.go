package pipeline

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// Hard validation failures. A record carrying any of these is excluded from
// the published dataset.
const (
	IssueMissingID           = "Missing event ID"
	IssueMissingTitle        = "Missing event title"
	IssueMissingURL          = "Missing event URL"
	IssueMissingTime         = "Missing event time"
	IssueInvalidTime         = "Invalid time format"
	IssueTitleTooLong        = "Title too long"
	IssueLocationTooLong     = "Location too long"
	IssueViewsOutOfRange     = "View count out of range"
	IssueFavoritesOutOfRange = "Favorite count out of range"
	IssueMalformedURL        = "Malformed URL"
)

// Warnings. The record stays in the dataset but is flagged for review.
const (
	WarnMissingLocation     = "Missing location"
	WarnMissingImage        = "Missing image"
	WarnMissingCounters     = "Missing engagement counters"
	WarnShortTitle          = "Title too short"
	WarnPlaceholderLocation = "Placeholder location"
)

const (
	maxTitleRunes    = 300
	maxLocationRunes = 200
	minTitleRunes    = 4
)

var criticalIssues = map[string]bool{
	IssueMissingID:           true,
	IssueMissingTitle:        true,
	IssueMissingURL:          true,
	IssueMissingTime:         true,
	IssueInvalidTime:         true,
	IssueTitleTooLong:        true,
	IssueLocationTooLong:     true,
	IssueViewsOutOfRange:     true,
	IssueFavoritesOutOfRange: true,
	IssueMalformedURL:        true,
}

// canonicalTimeRe is the MM/DD HH:MM token the cleaner emits.
var canonicalTimeRe = regexp.MustCompile(`^(0[1-9]|1[0-2])/(0[1-9]|[12][0-9]|3[01]) ([01][0-9]|2[0-3]):([0-5][0-9])$`)

var placeholderLocations = []string{"待定", "待公布", "待通知"}

// Validate classifies one cleaned record. Hard failures come first in the
// issue list, warnings after.
func Validate(rec models.CleanedRecord) models.ValidatedRecord {
	var hard, warns []string

	if rec.ID == "" {
		hard = append(hard, IssueMissingID)
	}
	if rec.Title == "" {
		hard = append(hard, IssueMissingTitle)
	} else {
		n := utf8.RuneCountInString(rec.Title)
		if n > maxTitleRunes {
			hard = append(hard, IssueTitleTooLong)
		} else if n < minTitleRunes {
			warns = append(warns, WarnShortTitle)
		}
	}

	switch {
	case rec.URL == "":
		hard = append(hard, IssueMissingURL)
	case !isAbsoluteHTTP(rec.URL):
		hard = append(hard, IssueMalformedURL)
	}

	switch {
	case rec.TimeText == "":
		hard = append(hard, IssueMissingTime)
	case !canonicalTimeRe.MatchString(rec.TimeText):
		hard = append(hard, IssueInvalidTime)
	}

	if rec.LocationText == "" {
		warns = append(warns, WarnMissingLocation)
	} else if utf8.RuneCountInString(rec.LocationText) > maxLocationRunes {
		hard = append(hard, IssueLocationTooLong)
	} else if isPlaceholderLocation(rec.LocationText) {
		warns = append(warns, WarnPlaceholderLocation)
	}

	if rec.ViewCount < 0 || rec.ViewCount > maxCounter {
		hard = append(hard, IssueViewsOutOfRange)
	}
	if rec.FavoriteCount < 0 || rec.FavoriteCount > maxCounter {
		hard = append(hard, IssueFavoritesOutOfRange)
	}

	if rec.ImageURL == "" {
		warns = append(warns, WarnMissingImage)
	}
	if rec.ViewCount == 0 && rec.FavoriteCount == 0 {
		warns = append(warns, WarnMissingCounters)
	}

	out := models.ValidatedRecord{CleanedRecord: rec}
	switch {
	case len(hard) > 0:
		out.Status = models.StatusInvalid
	case len(warns) > 0:
		out.Status = models.StatusWarning
	default:
		out.Status = models.StatusValid
	}
	out.Issues = append(hard, warns...)

	return out
}

// ValidateAll classifies a batch and aggregates the counts the quality
// report needs. The score is the percentage of records that pass without a
// hard failure; an empty batch scores 100.
func ValidateAll(records []models.CleanedRecord) ([]models.ValidatedRecord, models.ValidationSummary, models.IssueSummary) {
	summary := models.ValidationSummary{}
	issues := models.IssueSummary{
		Critical: make(map[string]int),
		Warnings: make(map[string]int),
	}

	validated := make([]models.ValidatedRecord, 0, len(records))
	for _, rec := range records {
		v := Validate(rec)
		validated = append(validated, v)

		switch v.Status {
		case models.StatusInvalid:
			summary.Invalid++
		case models.StatusWarning:
			summary.Warning++
		default:
			summary.Valid++
		}

		for _, issue := range v.Issues {
			if criticalIssues[issue] {
				issues.Critical[issue]++
			} else {
				issues.Warnings[issue]++
			}
		}
	}

	summary.Score = qualityScore(len(records), summary.Invalid)
	return validated, summary, issues
}

// qualityScore reports 100 exactly when no record failed hard; rounding never
// masks a remaining invalid record.
func qualityScore(total, invalid int) int {
	if total == 0 || invalid == 0 {
		return 100
	}
	score := int(math.Round(100 * float64(total-invalid) / float64(total)))
	if score >= 100 {
		score = 99
	}
	return score
}

func isAbsoluteHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
}

func isPlaceholderLocation(loc string) bool {
	lower := strings.ToLower(loc)
	if lower == "tbd" || lower == "tba" || lower == "unknown" {
		return true
	}
	for _, p := range placeholderLocations {
		if strings.Contains(loc, p) {
			return true
		}
	}
	return false
}
