package stats

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// RenderStatistics writes a console summary of the statistics artifact.
func RenderStatistics(w io.Writer, s models.Statistics) {
	fmt.Fprintf(w, "Events: %d total, %d upcoming, %d past\n", s.TotalEvents, s.UpcomingEvents, s.PastEvents)
	fmt.Fprintf(w, "Engagement: %d views (avg %.2f), %d favorites (avg %.2f)\n",
		s.Engagement.TotalViews, s.Engagement.AverageViews,
		s.Engagement.TotalFavorites, s.Engagement.AverageFavorites)
	fmt.Fprintf(w, "City coverage: %d mapped, %d unmapped (%.2f%%)\n",
		s.Coverage.Mapped, s.Coverage.Unmapped, s.Coverage.Percent)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"City", "ID", "Events"})
	for _, c := range s.Cities {
		if c.Events == 0 {
			continue
		}
		t.AppendRow(table.Row{c.Name, c.CityID, c.Events})
	}
	t.Render()

	if len(s.TopByViews) > 0 {
		top := table.NewWriter()
		top.SetOutputMirror(w)
		top.AppendHeader(table.Row{"Top by views", "Views", "Favorites"})
		for _, ev := range s.TopByViews {
			top.AppendRow(table.Row{truncate(ev.Title, 40), ev.ViewCount, ev.FavoriteCount})
		}
		top.Render()
	}
}

// RenderQualityReport writes a console summary of the per-run quality report.
func RenderQualityReport(w io.Writer, r models.QualityReport) {
	fmt.Fprintf(w, "Run %s: %d records in, %d events published, quality score %d\n",
		r.RunID, r.OriginalCount, r.FinalCount, r.QualityScore)
	fmt.Fprintf(w, "Dedupe: %d unique / %d duplicates; validation: %d valid, %d warnings, %d invalid\n",
		r.Dedupe.Unique, r.Dedupe.Duplicates,
		r.Validation.Valid, r.Validation.Warning, r.Validation.Invalid)

	if len(r.Issues.Critical) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Critical issue", "Count"})
		for _, k := range sortedKeys(r.Issues.Critical) {
			t.AppendRow(table.Row{k, r.Issues.Critical[k]})
		}
		t.Render()
	}

	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "[%s] %s\n", rec.Priority, rec.Message)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
