package pipeline

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// Counter clamp range. Listing counters above this are scrape artifacts.
const maxCounter = 9_999_999

// Cleaning action labels, counted per record for the quality report.
const (
	actionStrippedMarkup       = "stripped_markup"
	actionRemovedInvisible     = "removed_invisible_chars"
	actionFilteredCharacters   = "filtered_characters"
	actionNormalizedWhitespace = "normalized_whitespace"
	actionRewroteTime          = "rewrote_time"
	actionCanonicalizedURL     = "canonicalized_url"
	actionNormalizedImageURL   = "normalized_image_url"
	actionClampedViews         = "clamped_view_count"
	actionClampedFavorites     = "clamped_favorite_count"
)

var stripPolicy = bluemonday.StrictPolicy()

// Clean rewrites one raw record into canonical shape. It never fails:
// unrecognizable fields pass through unchanged and the validator classifies
// the result. The returned actions name what was rewritten.
func Clean(rec models.RawRecord) (models.CleanedRecord, []string) {
	var actions []string

	out := models.CleanedRecord{RawRecord: rec}

	out.Title, actions = cleanText(rec.Title, actions)
	out.LocationText, actions = cleanText(rec.LocationText, actions)

	timeText, acts := cleanText(rec.TimeText, nil)
	if rewritten, ok := rewriteTimeText(timeText); ok && rewritten != timeText {
		timeText = rewritten
		acts = appendUnique(acts, actionRewroteTime)
	}
	out.TimeText = timeText
	for _, a := range acts {
		actions = appendUnique(actions, a)
	}

	out.URL = strings.TrimSpace(rec.URL)
	out.CanonicalURL = CanonicalizeURL(out.URL)
	if out.CanonicalURL != out.URL && out.CanonicalURL != "" {
		out.URL = out.CanonicalURL
		actions = appendUnique(actions, actionCanonicalizedURL)
	}

	out.ImageURL = strings.TrimSpace(rec.ImageURL)
	if strings.HasPrefix(out.ImageURL, "//") {
		out.ImageURL = "https:" + out.ImageURL
		actions = appendUnique(actions, actionNormalizedImageURL)
	}

	if rec.ViewCount < 0 || rec.ViewCount > maxCounter {
		out.ViewCount = clampCounter(rec.ViewCount)
		actions = appendUnique(actions, actionClampedViews)
	}
	if rec.FavoriteCount < 0 || rec.FavoriteCount > maxCounter {
		out.FavoriteCount = clampCounter(rec.FavoriteCount)
		actions = appendUnique(actions, actionClampedFavorites)
	}

	return out, actions
}

// CleanAll cleans a batch and aggregates the per-action counts.
func CleanAll(records []models.RawRecord) ([]models.CleanedRecord, models.CleaningSummary) {
	summary := models.CleaningSummary{
		Records: len(records),
		Actions: make(map[string]int),
	}

	cleaned := make([]models.CleanedRecord, 0, len(records))
	for _, rec := range records {
		c, actions := Clean(rec)
		cleaned = append(cleaned, c)
		for _, a := range actions {
			summary.Actions[a]++
		}
	}
	return cleaned, summary
}

// cleanText runs the full text normalization chain on one field and merges
// the actions it took into acc.
func cleanText(s string, acc []string) (string, []string) {
	if s == "" {
		return "", acc
	}

	cur := s
	if strings.ContainsAny(cur, "<>&") {
		stripped := html.UnescapeString(stripPolicy.Sanitize(cur))
		if stripped != cur {
			cur = stripped
			acc = appendUnique(acc, actionStrippedMarkup)
		}
	}

	if dropped := dropInvisible(strings.ToValidUTF8(cur, "")); dropped != cur {
		cur = dropped
		acc = appendUnique(acc, actionRemovedInvisible)
	}

	if filtered := filterAllowed(cur); filtered != cur {
		cur = filtered
		acc = appendUnique(acc, actionFilteredCharacters)
	}

	if collapsed := normalizeSpace(cur); collapsed != cur {
		cur = collapsed
		acc = appendUnique(acc, actionNormalizedWhitespace)
	}

	return cur, acc
}

// normalizeSpace collapses runs of whitespace into one space and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// appendUnique appends v unless the slice already holds it.
func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// dropInvisible removes zero-width characters and maps remaining control
// characters to plain spaces so the whitespace pass can collapse them.
func dropInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\u200E', '\u200F', '\uFEFF', '\u2060':
			return -1
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// filterAllowed keeps letters of any script, digits, whitespace and common
// punctuation. Emoji and decorative symbols are dropped.
func filterAllowed(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || unicode.IsPunct(r) {
			return r
		}
		switch r {
		case '+', '¥', '$', '=', '~', '|':
			return r
		}
		return -1
	}, s)
}

var (
	// 2025-09-21 14:00, 2025/09/21 14:00:30, 2025.9.21T9:05
	isoDateTimeRe = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})[ T](\d{1,2})[:：](\d{2})(?:[:：]\d{2})?` + rangeSuffix)
	// 09/21 14:00 (already canonical, re-emitted zero-padded)
	shortDateTimeRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})\s+(\d{1,2})[:：](\d{2})` + rangeSuffix)
	// 2025年9月21日 周日 14:00, 9月21日14:00
	cnDateTimeRe = regexp.MustCompile(`^(?:\d{4}年)?(\d{1,2})月(\d{1,2})日\s*(?:(?:周|星期)[一二三四五六日天]\s*)?(\d{1,2})[:：点](\d{2})` + rangeSuffix)
)

// optional end-of-range tail such as "-17:00" or "~ 17:30"; the start wins
const rangeSuffix = `(?:\s*[-~—至]\s*\d{1,2}[:：]\d{2})?$`

// rewriteTimeText rewrites recognizable date-time variants into the canonical
// MM/DD HH:MM token. Unrecognized input is reported as-is with ok=false.
func rewriteTimeText(s string) (string, bool) {
	if m := isoDateTimeRe.FindStringSubmatch(s); m != nil {
		return formatTimeToken(m[2], m[3], m[4], m[5])
	}
	if m := shortDateTimeRe.FindStringSubmatch(s); m != nil {
		return formatTimeToken(m[1], m[2], m[3], m[4])
	}
	if m := cnDateTimeRe.FindStringSubmatch(s); m != nil {
		return formatTimeToken(m[1], m[2], m[3], m[4])
	}
	return s, false
}

func formatTimeToken(month, day, hour, minute string) (string, bool) {
	mo, d, h, mi := atoi(month), atoi(day), atoi(hour), atoi(minute)
	if mo < 1 || mo > 12 || d < 1 || d > 31 || h < 0 || h > 23 || mi < 0 || mi > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d %02d:%02d", mo, d, h, mi), true
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// Query parameters that never change which event a URL points to.
var (
	trackingParamPrefixes = []string{"utm_"}
	trackingParams        = []string{
		"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "ref", "session", "s_cid", "spm",
	}
)

// CanonicalizeURL re-serializes an absolute URL into a stable comparison
// form: lowercased scheme and host, no fragment, no default port, no tracking
// parameters. Unparseable input is returned unchanged.
func CanonicalizeURL(rawURL string) string {
	if rawURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		for _, prefix := range trackingParamPrefixes {
			if strings.HasPrefix(k, prefix) {
				q.Del(k)
			}
		}
	}
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func clampCounter(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxCounter {
		return maxCounter
	}
	return n
}
