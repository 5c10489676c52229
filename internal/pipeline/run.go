package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cnusergroup/cnusergroup-website/internal/citymap"
	"github.com/cnusergroup/cnusergroup-website/internal/crawl"
	"github.com/cnusergroup/cnusergroup-website/internal/dataset"
	"github.com/cnusergroup/cnusergroup-website/internal/models"
	"github.com/cnusergroup/cnusergroup-website/internal/stats"
)

// ErrFresh reports that the persisted dataset is younger than the freshness
// TTL and the run was skipped. Callers treat it as a successful no-op.
var ErrFresh = errors.New("dataset is fresh, skipping sync")

// Runner wires one sync run end to end: walk the listing, dedupe against the
// persisted dataset, clean, validate, map cities, mirror images and publish
// the site artifacts.
type Runner struct {
	Extractor crawl.PageExtractor
	Store     *dataset.Store
	Engine    *citymap.Engine
	Images    *crawl.ImageFetcher // nil skips the image mirror
	Walk      crawl.WalkConfig
	FreshTTL  time.Duration // 0 disables the freshness check
	Force     bool
	DryRun    bool

	now   func() time.Time
	runID func() string
}

func NewRunner(extractor crawl.PageExtractor, store *dataset.Store, engine *citymap.Engine) *Runner {
	return &Runner{
		Extractor: extractor,
		Store:     store,
		Engine:    engine,
		now:       func() time.Time { return time.Now().UTC() },
		runID:     uuid.NewString,
	}
}

// RunSummary is what one finished run reports back to the CLI.
type RunSummary struct {
	RunID      string
	Mode       crawl.Mode
	StartedAt  time.Time
	Duration   time.Duration
	Walk       crawl.WalkStats
	NewRecords int
	Duplicates int
	DatasetLen int
	Published  int
	Fallback   bool // walk aborted, artifacts rebuilt from the last good dataset
	DryRun     bool
	Validation models.ValidationSummary
	Mapping    models.MappingSummary
	Statistics models.Statistics
	Report     models.QualityReport
	Events     []models.ProcessedEvent
}

// Run executes the full pipeline once. The returned error is ErrFresh when
// the dataset is within its TTL, the context error when canceled, or an I/O
// failure while persisting results. Data-quality problems are never errors;
// they surface in the summary's quality report.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	started := r.now()

	mode := r.Walk.Mode
	if mode == "" {
		mode = crawl.ModeIncremental
	}
	summary := RunSummary{
		RunID:     r.runID(),
		Mode:      mode,
		StartedAt: started,
		DryRun:    r.DryRun,
	}

	if !r.Force && r.FreshTTL > 0 && r.Store.FreshWithin(r.FreshTTL) {
		return summary, ErrFresh
	}

	persisted := r.Store.Records()
	log.Printf("[pipeline] run %s: %s sync, %d records on file", summary.RunID, mode, len(persisted))

	walkCfg := r.Walk
	if walkCfg.StartRank <= 0 {
		walkCfg.StartRank = r.Store.MaxSortRank() + 1
	}
	walked, walkStats, err := crawl.NewWalker(r.Extractor, r.Store, walkCfg).Run(ctx)
	if err != nil {
		return summary, err
	}
	summary.Walk = walkStats

	deduper := NewDeduper()
	deduper.Seed(persisted)
	accepted, dups := deduper.Apply(walked)
	dedupeSummary := SummarizeDuplicates(len(walked), accepted, dups)

	fallback := walkStats.StopReason == crawl.StopFailures
	if fallback {
		log.Printf("[pipeline] run %s: walk aborted after repeated page failures, keeping the last good dataset (%d partial records discarded)",
			summary.RunID, len(accepted))
		accepted = nil
	}
	summary.NewRecords = len(accepted)
	summary.Duplicates = len(dups)
	summary.Fallback = fallback

	// artifacts always cover the whole dataset, not just this run's batch
	all := make([]models.RawRecord, 0, len(persisted)+len(accepted))
	all = append(all, persisted...)
	all = append(all, accepted...)

	cleaned, cleaningSummary := CleanAll(all)
	validated, validationSummary, issueSummary := ValidateAll(cleaned)
	events := BuildEvents(validated, started)
	mappingSummary := r.Engine.MapAll(events)

	if r.Images != nil && !r.DryRun {
		r.Images.MirrorAll(ctx, events)
	}

	statistics := stats.Aggregate(events, r.Engine.Cities(), started)
	report := stats.BuildQualityReport(stats.QualityInput{
		RunID:         summary.RunID,
		GeneratedAt:   started,
		OriginalCount: len(persisted) + len(walked),
		FinalCount:    len(events),
		Dedupe:        dedupeSummary,
		Cleaning:      cleaningSummary,
		Validation:    validationSummary,
		Mapping:       mappingSummary,
		Issues:        issueSummary,
		WalkAborted:   fallback,
	})

	if r.DryRun {
		log.Printf("[pipeline] run %s: dry run, skipping dataset and artifact writes", summary.RunID)
	} else {
		if err := r.Store.Append(accepted); err != nil {
			return summary, err
		}
		if err := r.Store.WriteArtifacts(events, CityEvents(events), statistics, report); err != nil {
			return summary, err
		}
	}

	summary.DatasetLen = r.Store.Len()
	summary.Published = len(events)
	summary.Validation = validationSummary
	summary.Mapping = mappingSummary
	summary.Statistics = statistics
	summary.Report = report
	summary.Events = events
	summary.Duration = r.now().Sub(started)

	log.Printf("[pipeline] run %s: done, %d new, %d duplicates, %d published, score %d",
		summary.RunID, summary.NewRecords, summary.Duplicates, summary.Published, report.QualityScore)
	return summary, nil
}

// CityEvents buckets events under every city they mapped to, keeping the
// input order inside each bucket.
func CityEvents(events []models.ProcessedEvent) map[string][]models.ProcessedEvent {
	out := make(map[string][]models.ProcessedEvent, 8)
	for _, ev := range events {
		for _, m := range ev.CityMappings {
			out[m.CityID] = append(out[m.CityID], ev)
		}
	}
	return out
}
