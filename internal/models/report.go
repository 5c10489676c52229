package models

import "time"

// CityStat is a per-city event count in the published statistics.
type CityStat struct {
	CityID string `json:"cityId"`
	Name   string `json:"name"`
	Events int    `json:"events"`
}

// EngagementStats aggregates view/favorite counters across events.
type EngagementStats struct {
	TotalViews       int     `json:"totalViews"`
	TotalFavorites   int     `json:"totalFavorites"`
	AverageViews     float64 `json:"averageViews"`
	AverageFavorites float64 `json:"averageFavorites"`
}

// TopEvent is a compact event reference for ranked lists.
type TopEvent struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	ViewCount     int    `json:"viewCount"`
	FavoriteCount int    `json:"favoriteCount"`
}

// CoverageStats reports how many events carry at least one city mapping.
// Mapped + Unmapped always equals the event total.
type CoverageStats struct {
	Mapped   int     `json:"mapped"`
	Unmapped int     `json:"unmapped"`
	Percent  float64 `json:"percent"`
}

// Statistics is the stats artifact consumed by the website.
type Statistics struct {
	GeneratedAt    time.Time       `json:"generatedAt"`
	TotalEvents    int             `json:"totalEvents"`
	UpcomingEvents int             `json:"upcomingEvents"`
	PastEvents     int             `json:"pastEvents"`
	Cities         []CityStat      `json:"cities"`
	Engagement     EngagementStats `json:"engagement"`
	TopByViews     []TopEvent      `json:"topByViews"`
	TopByFavorites []TopEvent      `json:"topByFavorites"`
	Coverage       CoverageStats   `json:"coverage"`
	Monthly        map[string]int  `json:"monthly"`
}

// DedupeSummary describes one deduplication pass.
type DedupeSummary struct {
	Input      int            `json:"input"`
	Unique     int            `json:"unique"`
	Duplicates int            `json:"duplicates"`
	Reasons    map[string]int `json:"reasons,omitempty"`
}

// CleaningSummary is the histogram of normalization actions applied.
type CleaningSummary struct {
	Records int            `json:"records"`
	Actions map[string]int `json:"actions,omitempty"`
}

// ValidationSummary counts validation outcomes. Score is the quality score
// in [0, 100]: the rounded share of records without a hard failure, 100 for
// an empty batch.
type ValidationSummary struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Warning int `json:"warning"`
	Score   int `json:"score"`
}

// MappingSummary counts city-mapping coverage for the published events.
type MappingSummary struct {
	Mapped   int `json:"mapped"`
	Unmapped int `json:"unmapped"`
}

// IssueSummary carries the per-issue histograms, keyed by issue message.
type IssueSummary struct {
	Critical map[string]int `json:"critical"`
	Warnings map[string]int `json:"warnings"`
}

// Recommendation is an actionable follow-up derived from run quality.
type Recommendation struct {
	Priority string `json:"priority"`
	Message  string `json:"message"`
}

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// QualityReport is the per-run quality artifact.
type QualityReport struct {
	RunID           string            `json:"runId"`
	GeneratedAt     time.Time         `json:"generatedAt"`
	OriginalCount   int               `json:"originalCount"`
	FinalCount      int               `json:"finalCount"`
	QualityScore    int               `json:"qualityScore"`
	Dedupe          DedupeSummary     `json:"dedupe"`
	Cleaning        CleaningSummary   `json:"cleaning"`
	Validation      ValidationSummary `json:"validation"`
	Mapping         MappingSummary    `json:"mapping"`
	Issues          IssueSummary      `json:"issues"`
	Recommendations []Recommendation  `json:"recommendations"`
}
