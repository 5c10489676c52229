package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// Archive keeps run history and a mirror of the published events in
// Postgres. It is an optional collaborator; the pipeline itself never
// depends on it.
type Archive struct {
	pool *pgxpool.Pool
}

func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// RunRecord is one row of the sync_runs history.
type RunRecord struct {
	RunID        string
	Mode         string
	StartedAt    time.Time
	Duration     time.Duration
	Pages        int
	FailedPages  int
	StopReason   string
	NewRecords   int
	Duplicates   int
	Published    int
	DatasetLen   int
	QualityScore int
	Fallback     bool
}

// RecordRun inserts one finished run into the history.
func (a *Archive) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO sync_runs (
			run_id, mode, started_at, duration_ms, pages, failed_pages,
			stop_reason, new_records, duplicates, published, dataset_len,
			quality_score, fallback
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.RunID, run.Mode, run.StartedAt, run.Duration.Milliseconds(),
		run.Pages, run.FailedPages, run.StopReason, run.NewRecords,
		run.Duplicates, run.Published, run.DatasetLen, run.QualityScore,
		run.Fallback,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns the newest entries of the run history.
func (a *Archive) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := a.pool.Query(ctx, `
		SELECT run_id, mode, started_at, duration_ms, pages, failed_pages,
			stop_reason, new_records, duplicates, published, dataset_len,
			quality_score, fallback
		FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var durationMS int64
		if err := rows.Scan(&r.RunID, &r.Mode, &r.StartedAt, &durationMS, &r.Pages,
			&r.FailedPages, &r.StopReason, &r.NewRecords, &r.Duplicates,
			&r.Published, &r.DatasetLen, &r.QualityScore, &r.Fallback); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpsertEvents mirrors the published events into the events table, keyed by
// event id. Individual failures are logged and skipped so one bad row does
// not lose the rest; the count of saved rows comes back to the caller.
func (a *Archive) UpsertEvents(ctx context.Context, events []models.ProcessedEvent) int {
	saved := 0
	for _, ev := range events {
		cityIDs := make([]string, 0, len(ev.CityMappings))
		for _, m := range ev.CityMappings {
			cityIDs = append(cityIDs, m.CityID)
		}

		_, err := a.pool.Exec(ctx, `
			INSERT INTO events (
				id, slug, title, time_text, formatted_date, location_text,
				url, image_url, local_image, view_count, favorite_count,
				tags, is_upcoming, city_ids, discovered_at, sort_rank, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
			ON CONFLICT (id) DO UPDATE SET
				slug = EXCLUDED.slug,
				title = EXCLUDED.title,
				time_text = EXCLUDED.time_text,
				formatted_date = EXCLUDED.formatted_date,
				location_text = EXCLUDED.location_text,
				url = EXCLUDED.url,
				image_url = EXCLUDED.image_url,
				local_image = EXCLUDED.local_image,
				view_count = EXCLUDED.view_count,
				favorite_count = EXCLUDED.favorite_count,
				tags = EXCLUDED.tags,
				is_upcoming = EXCLUDED.is_upcoming,
				city_ids = EXCLUDED.city_ids,
				sort_rank = EXCLUDED.sort_rank,
				updated_at = NOW()`,
			ev.ID, ev.Slug, ev.Title, ev.TimeText, ev.FormattedDate, ev.LocationText,
			ev.URL, ev.ImageURL, ev.LocalImage, ev.ViewCount, ev.FavoriteCount,
			ev.Tags, ev.IsUpcoming, cityIDs, ev.DiscoveredAt, ev.SortRank,
		)
		if err != nil {
			log.Printf("[db] upsert %s: %v", ev.ID, err)
			continue
		}
		saved++
	}
	return saved
}
