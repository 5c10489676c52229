package models

import "time"

// RawRecord is a single event as extracted from the listing site, before any
// cleaning. Field values are untrusted.
type RawRecord struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	TimeText      string    `json:"timeText"`
	LocationText  string    `json:"locationText"`
	URL           string    `json:"url"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	ViewCount     int       `json:"viewCount"`
	FavoriteCount int       `json:"favoriteCount"`
	DiscoveredAt  time.Time `json:"discoveredAt"`
	SortRank      int       `json:"sortRank"`
}

// CleanedRecord is a RawRecord after normalization. CanonicalURL is the
// deduplication identity for the URL field.
type CleanedRecord struct {
	RawRecord
	CanonicalURL string `json:"canonicalUrl,omitempty"`
}

// RecordStatus is the validation outcome for a cleaned record.
type RecordStatus string

const (
	StatusValid   RecordStatus = "valid"
	StatusInvalid RecordStatus = "invalid"
	StatusWarning RecordStatus = "warning"
)

// ValidatedRecord pairs a cleaned record with its validation outcome.
// Invalid records are excluded from published output but stay visible to the
// quality report.
type ValidatedRecord struct {
	CleanedRecord
	Status RecordStatus `json:"status"`
	Issues []string     `json:"issues,omitempty"`
}

// MatchType describes which kind of rule produced a city mapping.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchProvince MatchType = "province"
	MatchKeyword  MatchType = "keyword"
	MatchFuzzy    MatchType = "fuzzy"
)

// MappingResult is a single city candidate for a record's location text.
// Confidence is always within [0, 1].
type MappingResult struct {
	CityID      string    `json:"cityId"`
	Confidence  float64   `json:"confidence"`
	MatchType   MatchType `json:"matchType"`
	MatchedText string    `json:"matchedText,omitempty"`
}

// City is one entry of the reference registry used by the mapping engine.
type City struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	NameEN   string   `json:"nameEn,omitempty" yaml:"name_en"`
	Province string   `json:"province,omitempty" yaml:"province"`
	Active   bool     `json:"active" yaml:"active"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`
}

// ProcessedEvent is the publishable form of a record: cleaned, validated,
// enriched and mapped to at most three cities (highest confidence first).
type ProcessedEvent struct {
	ID            string          `json:"id"`
	Slug          string          `json:"slug"`
	Title         string          `json:"title"`
	TimeText      string          `json:"timeText"`
	FormattedDate string          `json:"formattedDate,omitempty"`
	LocationText  string          `json:"locationText,omitempty"`
	URL           string          `json:"url"`
	ImageURL      string          `json:"imageUrl,omitempty"`
	LocalImage    string          `json:"localImage,omitempty"`
	ViewCount     int             `json:"viewCount"`
	FavoriteCount int             `json:"favoriteCount"`
	Tags          []string        `json:"tags"`
	IsUpcoming    bool            `json:"isUpcoming"`
	CityMappings  []MappingResult `json:"cityMappings"`
	DiscoveredAt  time.Time       `json:"discoveredAt"`
	SortRank      int             `json:"sortRank"`
}
