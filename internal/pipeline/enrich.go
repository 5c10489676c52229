package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// maxSlugBase bounds the readable part of a slug; the event ID appended
// after it keeps slugs unique.
const maxSlugBase = 32

// BuildEvents turns the records that survived validation into publishable
// events. Invalid records are dropped here; warnings pass through.
func BuildEvents(records []models.ValidatedRecord, now time.Time) []models.ProcessedEvent {
	events := make([]models.ProcessedEvent, 0, len(records))
	for _, v := range records {
		if v.Status == models.StatusInvalid {
			continue
		}
		events = append(events, BuildEvent(v, now))
	}
	return events
}

// BuildEvent derives the presentation fields (slug, tags, formatted date,
// upcoming flag) for one surviving record. City mappings are attached by the
// mapping engine afterwards.
func BuildEvent(v models.ValidatedRecord, now time.Time) models.ProcessedEvent {
	ev := models.ProcessedEvent{
		ID:            v.ID,
		Slug:          Slug(v.Title, v.ID),
		Title:         v.Title,
		TimeText:      v.TimeText,
		LocationText:  v.LocationText,
		URL:           v.URL,
		ImageURL:      v.ImageURL,
		ViewCount:     v.ViewCount,
		FavoriteCount: v.FavoriteCount,
		Tags:          Tags(v.Title, v.LocationText),
		DiscoveredAt:  v.DiscoveredAt,
		SortRank:      v.SortRank,
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}

	if ts, ok := parseTimeToken(v.TimeText, now); ok {
		ev.FormattedDate = fmt.Sprintf("%d月%d日 %02d:%02d", int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute())
		ev.IsUpcoming = ts.After(now)
	}

	return ev
}

// Slug builds a URL-safe identifier from the ASCII words of the title plus
// the event ID. Titles without ASCII words fall back to the ID alone.
func Slug(title, id string) string {
	var (
		parts []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	base := strings.Join(parts, "-")
	if len(base) > maxSlugBase {
		base = strings.Trim(base[:maxSlugBase], "-")
	}
	if base == "" {
		return "event-" + id
	}
	return base + "-" + id
}

// tagRules map bilingual keywords to event tags; checked in order so tag
// output is deterministic.
var tagRules = []struct {
	tag   string
	hints []string
}{
	{"meetup", []string{"meetup", "聚会", "见面会"}},
	{"workshop", []string{"workshop", "工作坊", "实战营", "动手实验"}},
	{"conference", []string{"conference", "summit", "大会", "峰会"}},
	{"hackathon", []string{"hackathon", "黑客马拉松", "编程马拉松"}},
	{"talk", []string{"talk", "讲座", "分享会", "沙龙"}},
	{"community", []string{"community", "user group", "社区", "用户组"}},
	{"online", []string{"online", "webinar", "线上", "直播"}},
}

// Tags derives keyword tags from the title and location text.
func Tags(title, locationText string) []string {
	haystack := strings.ToLower(title + " " + locationText)

	var tags []string
	for _, rule := range tagRules {
		for _, hint := range rule.hints {
			if strings.Contains(haystack, hint) {
				tags = append(tags, rule.tag)
				break
			}
		}
	}
	return tags
}

// parseTimeToken resolves a canonical MM/DD HH:MM token against a reference
// time. Tokens have no year: assume the reference year, rolling to the next
// one when the result would sit more than six months in the past.
func parseTimeToken(token string, now time.Time) (time.Time, bool) {
	m := canonicalTimeRe.FindStringSubmatch(token)
	if m == nil {
		return time.Time{}, false
	}
	month, day, hour, minute := atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4])

	ts := time.Date(now.Year(), time.Month(month), day, hour, minute, 0, 0, now.Location())
	if now.Sub(ts) > 182*24*time.Hour {
		ts = ts.AddDate(1, 0, 0)
	}
	return ts, true
}
