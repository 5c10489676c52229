package stats

import (
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// topN is how many events the ranked engagement lists carry.
const topN = 5

var monthPrefixRe = regexp.MustCompile(`^(\d{2})/`)

// Aggregate computes the statistics artifact from the published events. The
// city registry supplies display names and guarantees every active city
// appears, including those with zero events.
func Aggregate(events []models.ProcessedEvent, cities []models.City, now time.Time) models.Statistics {
	s := models.Statistics{
		GeneratedAt: now,
		TotalEvents: len(events),
		Monthly:     make(map[string]int),
	}

	perCity := make(map[string]int)
	for _, ev := range events {
		if ev.IsUpcoming {
			s.UpcomingEvents++
		}

		s.Engagement.TotalViews += ev.ViewCount
		s.Engagement.TotalFavorites += ev.FavoriteCount

		if len(ev.CityMappings) > 0 {
			s.Coverage.Mapped++
			perCity[ev.CityMappings[0].CityID]++
		} else {
			s.Coverage.Unmapped++
		}

		if m := monthPrefixRe.FindStringSubmatch(ev.TimeText); m != nil {
			s.Monthly[m[1]]++
		} else {
			s.Monthly["unknown"]++
		}
	}
	s.PastEvents = s.TotalEvents - s.UpcomingEvents

	if s.TotalEvents > 0 {
		s.Engagement.AverageViews = round2(float64(s.Engagement.TotalViews) / float64(s.TotalEvents))
		s.Engagement.AverageFavorites = round2(float64(s.Engagement.TotalFavorites) / float64(s.TotalEvents))
		s.Coverage.Percent = round2(100 * float64(s.Coverage.Mapped) / float64(s.TotalEvents))
	}

	s.Cities = cityStats(perCity, cities)
	s.TopByViews = topEvents(events, func(ev models.ProcessedEvent) int { return ev.ViewCount })
	s.TopByFavorites = topEvents(events, func(ev models.ProcessedEvent) int { return ev.FavoriteCount })

	return s
}

// cityStats turns the per-city tally into a sorted list covering every
// active registry city. Events mapped to cities outside the registry are
// still counted under their city id.
func cityStats(perCity map[string]int, cities []models.City) []models.CityStat {
	names := make(map[string]string, len(cities))
	out := make([]models.CityStat, 0, len(cities))

	for _, c := range cities {
		if !c.Active {
			continue
		}
		names[c.ID] = c.Name
		out = append(out, models.CityStat{CityID: c.ID, Name: c.Name, Events: perCity[c.ID]})
	}
	for id, n := range perCity {
		if _, known := names[id]; !known {
			out = append(out, models.CityStat{CityID: id, Name: id, Events: n})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Events != out[j].Events {
			return out[i].Events > out[j].Events
		}
		return out[i].CityID < out[j].CityID
	})
	return out
}

func topEvents(events []models.ProcessedEvent, metric func(models.ProcessedEvent) int) []models.TopEvent {
	ranked := make([]models.ProcessedEvent, len(events))
	copy(ranked, events)
	sort.Slice(ranked, func(i, j int) bool {
		if metric(ranked[i]) != metric(ranked[j]) {
			return metric(ranked[i]) > metric(ranked[j])
		}
		return ranked[i].ID < ranked[j].ID
	})

	n := topN
	if len(ranked) < n {
		n = len(ranked)
	}

	top := make([]models.TopEvent, 0, n)
	for _, ev := range ranked[:n] {
		top = append(top, models.TopEvent{
			ID:            ev.ID,
			Title:         ev.Title,
			ViewCount:     ev.ViewCount,
			FavoriteCount: ev.FavoriteCount,
		})
	}
	return top
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
