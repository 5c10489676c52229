package citymap

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// Match tuning. Confidence values reproduce the historical rule table; the
// priority bonus coefficients are empirical, not derived.
const (
	// rule priorities
	priorityExactNative    = 100
	priorityExactSecondary = 99
	priorityProvinceFirst  = 90
	priorityProvinceSecond = 89
	priorityFuzzyPartial   = 60
	priorityKeyword        = 40

	// base confidence per match type
	baseExact    = 0.95
	baseProvince = 0.8
	baseKeyword  = 0.7
	baseFuzzy    = 0.6

	// an exact match at or above this confidence ends the rule scan
	exactStopConfidence = 0.9
	// below this best confidence the similarity fallback runs
	similarityTrigger = 0.7

	// DefaultSimilarityThreshold is the minimum normalized edit-distance
	// similarity for a fallback match.
	DefaultSimilarityThreshold = 0.6
	// ConfidenceFloor is the minimum confidence for a published mapping.
	ConfidenceFloor = 0.5
	// MaxMappings caps how many cities one record can map to.
	MaxMappings = 3
)

// matchRule is one compiled pattern. Rules are immutable after compilation
// and globally sorted by priority descending.
type matchRule struct {
	Pattern  string
	CityID   string
	Priority int
	Kind     models.MatchType
	fold     bool // pattern is lowercase ASCII, match case-insensitively
}

// nameEntry is a city name variant the similarity fallback compares against.
type nameEntry struct {
	cityID  string
	value   string // lowercased for ASCII names
	display string
	fold    bool
}

// Engine resolves free-text locations to canonical city identifiers. It is
// a greedy, explainable resolver: every result names the rule pattern or
// city name that produced it.
type Engine struct {
	cities []models.City
	rules  []matchRule
	names  []nameEntry

	// SimilarityThreshold can be raised to make the fallback stricter.
	SimilarityThreshold float64
}

// NewEngine compiles the rule table from the active cities in the registry.
func NewEngine(cities []models.City) *Engine {
	e := &Engine{
		cities:              cities,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}

	for _, c := range cities {
		if !c.Active {
			continue
		}

		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		e.rules = append(e.rules, matchRule{Pattern: name, CityID: c.ID, Priority: priorityExactNative, Kind: models.MatchExact})
		e.names = append(e.names, nameEntry{cityID: c.ID, value: name, display: name})

		if en := strings.ToLower(strings.TrimSpace(c.NameEN)); en != "" {
			e.rules = append(e.rules, matchRule{Pattern: en, CityID: c.ID, Priority: priorityExactSecondary, Kind: models.MatchExact, fold: true})
			e.names = append(e.names, nameEntry{cityID: c.ID, value: en, display: strings.TrimSpace(c.NameEN), fold: true})
		}

		if prov := strings.TrimSpace(c.Province); prov != "" {
			e.rules = append(e.rules, matchRule{Pattern: prov + name, CityID: c.ID, Priority: priorityProvinceFirst, Kind: models.MatchProvince})
			e.rules = append(e.rules, matchRule{Pattern: name + prov, CityID: c.ID, Priority: priorityProvinceSecond, Kind: models.MatchProvince})
		}

		if partial := trimLastRune(name); partial != "" {
			e.rules = append(e.rules, matchRule{Pattern: partial, CityID: c.ID, Priority: priorityFuzzyPartial, Kind: models.MatchFuzzy})
		}

		for _, kw := range c.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			e.rules = append(e.rules, matchRule{Pattern: kw, CityID: c.ID, Priority: priorityKeyword, Kind: models.MatchKeyword})
		}
	}

	sort.SliceStable(e.rules, func(i, j int) bool {
		a, b := e.rules[i], e.rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.CityID != b.CityID {
			return a.CityID < b.CityID
		}
		return a.Pattern < b.Pattern
	})

	return e
}

// Cities returns the full registry backing this engine, inactive entries
// included.
func (e *Engine) Cities() []models.City {
	return e.cities
}

// RuleCount reports the size of the compiled rule table.
func (e *Engine) RuleCount() int {
	return len(e.rules)
}

// Map resolves one location text to city candidates, best first. The rule
// scan stops early on a confident exact match; when no rule reaches the
// similarity trigger, a normalized edit-distance fallback against every city
// name runs as well. Per city only the best result survives.
func (e *Engine) Map(locationText string) []models.MappingResult {
	text := strings.TrimSpace(locationText)
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	best := make(map[string]models.MappingResult)
	bestConf := 0.0

	for _, r := range e.rules {
		haystack := text
		if r.fold {
			haystack = lower
		}
		if !strings.Contains(haystack, r.Pattern) {
			continue
		}

		conf := ruleConfidence(r.Kind, r.Priority)
		mergeBest(best, models.MappingResult{
			CityID:      r.CityID,
			Confidence:  conf,
			MatchType:   r.Kind,
			MatchedText: r.Pattern,
		})
		if conf > bestConf {
			bestConf = conf
		}
		if r.Kind == models.MatchExact && conf >= exactStopConfidence {
			break
		}
	}

	if bestConf < similarityTrigger {
		for _, n := range e.names {
			candidate := text
			if n.fold {
				candidate = lower
			}
			sim := similarity(candidate, n.value)
			if sim < e.SimilarityThreshold {
				continue
			}
			mergeBest(best, models.MappingResult{
				CityID:      n.cityID,
				Confidence:  sim,
				MatchType:   models.MatchFuzzy,
				MatchedText: n.display,
			})
		}
	}

	results := make([]models.MappingResult, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].CityID < results[j].CityID
	})
	return results
}

// Assign maps one location text and applies the publication policy: drop
// candidates below the confidence floor and keep at most MaxMappings.
func (e *Engine) Assign(locationText string) []models.MappingResult {
	results := e.Map(locationText)

	out := make([]models.MappingResult, 0, MaxMappings)
	for _, r := range results {
		if r.Confidence < ConfidenceFloor {
			continue
		}
		out = append(out, r)
		if len(out) == MaxMappings {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MapAll attaches mappings to every event in place and reports coverage.
// Events without a location are matched against their title instead, so an
// online meetup titled "深圳线上分享" still lands in a city bucket. Unmapped
// events keep an empty, non-nil slice for the JSON artifacts.
func (e *Engine) MapAll(events []models.ProcessedEvent) models.MappingSummary {
	var summary models.MappingSummary
	for i := range events {
		corpus := events[i].LocationText
		if strings.TrimSpace(corpus) == "" {
			corpus = events[i].Title
		}
		mappings := e.Assign(corpus)
		if len(mappings) == 0 {
			events[i].CityMappings = []models.MappingResult{}
			summary.Unmapped++
			continue
		}
		events[i].CityMappings = mappings
		summary.Mapped++
	}
	return summary
}

// ruleConfidence derives a match confidence from the rule type's base value
// plus a priority bonus, clamped to [0.1, 1.0].
func ruleConfidence(kind models.MatchType, priority int) float64 {
	var base float64
	switch kind {
	case models.MatchExact:
		base = baseExact
	case models.MatchProvince:
		base = baseProvince
	case models.MatchKeyword:
		base = baseKeyword
	case models.MatchFuzzy:
		base = baseFuzzy
	}

	conf := base + float64(priority-50)/100*0.1
	if conf < 0.1 {
		conf = 0.1
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// similarity is 1 - levenshtein/maxLen over runes, in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

func mergeBest(best map[string]models.MappingResult, r models.MappingResult) {
	if cur, ok := best[r.CityID]; ok && cur.Confidence >= r.Confidence {
		return
	}
	best[r.CityID] = r
}

// trimLastRune builds the fuzzy-partial pattern: the city name minus its
// final character. Names too short to leave a two-rune pattern get none, a
// single leading character would match nearly everything.
func trimLastRune(name string) string {
	runes := []rune(name)
	if len(runes) < 3 {
		return ""
	}
	return string(runes[:len(runes)-1])
}
