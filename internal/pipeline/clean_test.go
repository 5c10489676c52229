package pipeline

import (
	"reflect"
	"sort"
	"testing"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

func TestRewriteTimeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-09-21 14:00", "09/21 14:00", true},
		{"2025-09-21 14:00:30", "09/21 14:00", true},
		{"2025/9/2 9:05", "09/02 09:05", true},
		{"2025.09.21T14:00", "09/21 14:00", true},
		{"2025-09-21 14:00-17:00", "09/21 14:00", true},
		{"2025年9月21日 周日 14:00", "09/21 14:00", true},
		{"9月21日14:00", "09/21 14:00", true},
		{"9月21日 星期日 14:00 ~ 17:30", "09/21 14:00", true},
		{"09/21 14:00", "09/21 14:00", true},
		{"9/21 14:00", "09/21 14:00", true},
		{"2025-13-45 99:99", "", false},
		{"时间待定", "时间待定", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := rewriteTimeText(tt.in)
		if ok != tt.ok {
			t.Errorf("rewriteTimeText(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("rewriteTimeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			"https://www.HuoDongXing.com/event/123?utm_source=wechat&spm=a.b.c#top",
			"https://www.huodongxing.com/event/123",
		},
		{
			"https://example.cn:443/list?page=2&fbclid=xyz",
			"https://example.cn/list?page=2",
		},
		{
			"http://example.cn:80/a",
			"http://example.cn/a",
		},
		{
			"https://example.cn/a?gclid=1&ref=home&keep=yes",
			"https://example.cn/a?keep=yes",
		},
		{"not a url", "not a url"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalizeURL(tt.in); got != tt.want {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanRecord(t *testing.T) {
	rec := models.RawRecord{
		ID:            "e1",
		Title:         "  <b>Go</b> &amp; Cloud​ Meetup 🎉 ",
		TimeText:      "2025-09-21 14:00",
		LocationText:  "北京 朝阳区\t望京",
		URL:           "https://www.HuoDongXing.com/event/e1?utm_source=wechat",
		ImageURL:      "//cdn.huodongxing.com/img/e1.png",
		ViewCount:     -3,
		FavoriteCount: 123_456_789,
	}

	out, actions := Clean(rec)

	if out.Title != "Go & Cloud Meetup" {
		t.Errorf("Title = %q", out.Title)
	}
	if out.TimeText != "09/21 14:00" {
		t.Errorf("TimeText = %q, want 09/21 14:00", out.TimeText)
	}
	if out.LocationText != "北京 朝阳区 望京" {
		t.Errorf("LocationText = %q", out.LocationText)
	}
	if out.URL != "https://www.huodongxing.com/event/e1" {
		t.Errorf("URL = %q", out.URL)
	}
	if out.CanonicalURL != out.URL {
		t.Errorf("CanonicalURL = %q, want same as URL", out.CanonicalURL)
	}
	if out.ImageURL != "https://cdn.huodongxing.com/img/e1.png" {
		t.Errorf("ImageURL = %q", out.ImageURL)
	}
	if out.ViewCount != 0 {
		t.Errorf("ViewCount = %d, want 0", out.ViewCount)
	}
	if out.FavoriteCount != maxCounter {
		t.Errorf("FavoriteCount = %d, want %d", out.FavoriteCount, maxCounter)
	}

	want := []string{
		actionStrippedMarkup,
		actionRemovedInvisible,
		actionFilteredCharacters,
		actionNormalizedWhitespace,
		actionRewroteTime,
		actionCanonicalizedURL,
		actionNormalizedImageURL,
		actionClampedViews,
		actionClampedFavorites,
	}
	sort.Strings(actions)
	sort.Strings(want)
	if !reflect.DeepEqual(actions, want) {
		t.Errorf("actions = %v, want %v", actions, want)
	}

	// the original record is never mutated
	if rec.Title != "  <b>Go</b> &amp; Cloud​ Meetup 🎉 " || rec.ViewCount != -3 {
		t.Error("Clean must not mutate its input")
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	rec := models.RawRecord{
		ID:           "e1",
		Title:        "云原生 Workshop",
		TimeText:     "2025-10-02 09:30",
		LocationText: "上海 浦东",
		URL:          "https://example.cn/event/e1?utm_campaign=x",
	}

	once, _ := Clean(rec)
	twice, actions := Clean(once.RawRecord)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second clean changed the record:\n once: %+v\ntwice: %+v", once, twice)
	}
	if len(actions) != 0 {
		t.Errorf("second clean reported actions %v, want none", actions)
	}
}

func TestCleanLeavesUnrecognizedFieldsAlone(t *testing.T) {
	rec := models.RawRecord{
		ID:       "e2",
		Title:    "TBD",
		TimeText: "时间待定",
		URL:      "not a url",
	}

	out, _ := Clean(rec)
	if out.TimeText != "时间待定" {
		t.Errorf("TimeText = %q, want unchanged", out.TimeText)
	}
	if out.URL != "not a url" {
		t.Errorf("URL = %q, want unchanged", out.URL)
	}
}

func TestCleanAllCountsActions(t *testing.T) {
	records := []models.RawRecord{
		{ID: "a", Title: "one  two", TimeText: "2025-09-21 14:00", URL: "https://e.cn/a"},
		{ID: "b", Title: "three", TimeText: "2025-10-01 10:00", URL: "https://e.cn/b"},
		{ID: "c", Title: "plain", TimeText: "09/21 14:00", URL: "https://e.cn/c"},
	}

	cleaned, summary := CleanAll(records)
	if len(cleaned) != 3 {
		t.Fatalf("cleaned %d records, want 3", len(cleaned))
	}
	if summary.Records != 3 {
		t.Errorf("Records = %d, want 3", summary.Records)
	}
	if summary.Actions[actionRewroteTime] != 2 {
		t.Errorf("rewrote_time count = %d, want 2", summary.Actions[actionRewroteTime])
	}
	if summary.Actions[actionNormalizedWhitespace] != 1 {
		t.Errorf("normalized_whitespace count = %d, want 1", summary.Actions[actionNormalizedWhitespace])
	}
}
