package pipeline

import (
	"reflect"
	"testing"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		title, id, want string
	}{
		{"AWS User Group Meetup", "e1", "aws-user-group-meetup-e1"},
		{"云原生工作坊", "e2", "event-e2"},
		{"云原生 Workshop 2025", "e3", "workshop-2025-e3"},
		{"", "e4", "event-e4"},
		{"Go!!!Go###Go", "e5", "go-go-go-e5"},
	}

	for _, tt := range tests {
		if got := Slug(tt.title, tt.id); got != tt.want {
			t.Errorf("Slug(%q, %q) = %q, want %q", tt.title, tt.id, got, tt.want)
		}
	}
}

func TestSlugTruncatesLongTitles(t *testing.T) {
	got := Slug("a very long community event title that keeps going and going", "e9")
	base := got[:len(got)-3] // strip "-e9"
	if len(base) > maxSlugBase {
		t.Errorf("slug base %q is %d bytes, want at most %d", base, len(base), maxSlugBase)
	}
	if got[len(got)-3:] != "-e9" {
		t.Errorf("slug %q must end with the event id", got)
	}
}

func TestTags(t *testing.T) {
	tests := []struct {
		title, location string
		want            []string
	}{
		{"Kubernetes Workshop", "北京社区中心", []string{"workshop", "community"}},
		{"Go 分享会", "线上直播", []string{"talk", "online"}},
		{"AWS User Group 聚会", "上海", []string{"meetup", "community"}},
		{"黑客马拉松 2025", "深圳", []string{"hackathon"}},
		{"产品发布", "广州", nil},
	}

	for _, tt := range tests {
		got := Tags(tt.title, tt.location)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tags(%q, %q) = %v, want %v", tt.title, tt.location, got, tt.want)
		}
	}
}

func TestParseTimeTokenYearInference(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		token    string
		wantYear int
		upcoming bool
	}{
		{"09/21 14:00", 2025, true},  // later this month
		{"07/01 10:00", 2025, false}, // two months back, same year
		{"01/15 10:00", 2026, true},  // over six months back rolls forward
	}

	for _, tt := range tests {
		ts, ok := parseTimeToken(tt.token, now)
		if !ok {
			t.Errorf("parseTimeToken(%q) not recognized", tt.token)
			continue
		}
		if ts.Year() != tt.wantYear {
			t.Errorf("parseTimeToken(%q) year = %d, want %d", tt.token, ts.Year(), tt.wantYear)
		}
		if got := ts.After(now); got != tt.upcoming {
			t.Errorf("parseTimeToken(%q) upcoming = %v, want %v", tt.token, got, tt.upcoming)
		}
	}

	if _, ok := parseTimeToken("not a token", now); ok {
		t.Error("unrecognized token must not parse")
	}
}

func TestBuildEvent(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	v := models.ValidatedRecord{
		CleanedRecord: models.CleanedRecord{
			RawRecord: models.RawRecord{
				ID:            "e1",
				Title:         "Cloud Native Meetup",
				TimeText:      "09/21 14:00",
				LocationText:  "北京朝阳",
				URL:           "https://e.cn/event/e1",
				ViewCount:     120,
				FavoriteCount: 8,
				SortRank:      42,
			},
		},
		Status: models.StatusValid,
	}

	ev := BuildEvent(v, now)

	if ev.Slug != "cloud-native-meetup-e1" {
		t.Errorf("Slug = %q", ev.Slug)
	}
	if ev.FormattedDate != "9月21日 14:00" {
		t.Errorf("FormattedDate = %q", ev.FormattedDate)
	}
	if !ev.IsUpcoming {
		t.Error("event later this month must be upcoming")
	}
	if !reflect.DeepEqual(ev.Tags, []string{"meetup"}) {
		t.Errorf("Tags = %v", ev.Tags)
	}
	if ev.SortRank != 42 {
		t.Errorf("SortRank = %d, want carried through", ev.SortRank)
	}
}

func TestBuildEventsDropsInvalid(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	records := []models.ValidatedRecord{
		{CleanedRecord: models.CleanedRecord{RawRecord: models.RawRecord{ID: "ok", Title: "Tech Talk", TimeText: "09/21 14:00", URL: "https://e.cn/1"}}, Status: models.StatusValid},
		{CleanedRecord: models.CleanedRecord{RawRecord: models.RawRecord{ID: "bad", Title: "No URL"}}, Status: models.StatusInvalid},
		{CleanedRecord: models.CleanedRecord{RawRecord: models.RawRecord{ID: "warn", Title: "Tech Salon", TimeText: "10/01 10:00", URL: "https://e.cn/2"}}, Status: models.StatusWarning},
	}

	events := BuildEvents(records, now)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "ok" || events[1].ID != "warn" {
		t.Errorf("events = %v, %v", events[0].ID, events[1].ID)
	}
}
