package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cnusergroup/cnusergroup-website/internal/citymap"
	"github.com/cnusergroup/cnusergroup-website/internal/crawl"
	"github.com/cnusergroup/cnusergroup-website/internal/dataset"
	"github.com/cnusergroup/cnusergroup-website/internal/db"
	"github.com/cnusergroup/cnusergroup-website/internal/pipeline"
	"github.com/cnusergroup/cnusergroup-website/internal/stats"
)

var (
	flagDataDir    string
	flagSiteConfig string
	flagCities     string
	flagMaxPages   int
	flagForce      bool
	flagDryRun     bool
	flagArchive    bool
)

func main() {
	// a missing .env is fine, real environment variables win anyway
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventsync [mode]",
		Short: "Sync community events from the listing site",
		Long: `eventsync walks the event listing page by page, deduplicates and cleans
what it finds, maps free-text locations to cities and publishes the JSON
artifacts the website renders from.

Modes: full (walk everything), incremental (stop after two pages without a
new record, the default) and quick (stop after one).`,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runSync,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&flagDataDir, "data-dir", envOr("EVENTSYNC_DATA_DIR", "data"), "directory for the dataset, artifacts and logs")
	cmd.Flags().StringVar(&flagSiteConfig, "site-config", os.Getenv("EVENTSYNC_SITE_CONFIG"), "listing selector config (default: embedded)")
	cmd.Flags().StringVar(&flagCities, "cities", os.Getenv("EVENTSYNC_CITIES"), "city registry file (default: embedded)")
	cmd.Flags().IntVar(&flagMaxPages, "max-pages", 0, "hard page cap for the walk (0 = site config)")
	cmd.Flags().BoolVar(&flagForce, "force", false, "run even when the dataset is fresh")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "walk and report without writing anything")
	cmd.Flags().BoolVar(&flagArchive, "archive", false, "record the run in Postgres (DATABASE_URL)")

	cmd.AddCommand(newRunsCmd())
	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	modeArg := ""
	if len(args) == 1 {
		modeArg = args[0]
	}
	mode, err := crawl.ParseMode(modeArg)
	if err != nil {
		return err
	}

	store, err := dataset.Open(flagDataDir)
	if err != nil {
		return err
	}

	logFile, err := os.Create(store.LogPath(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("creating run log: %w", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))

	siteCfg, err := crawl.LoadSiteConfig(flagSiteConfig)
	if err != nil {
		return err
	}
	extractor, err := crawl.NewListingExtractor(siteCfg)
	if err != nil {
		return err
	}

	cities, err := citymap.LoadCities(flagCities)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(extractor, store, citymap.NewEngine(cities))
	runner.Images = crawl.NewImageFetcher(store.ImageDir())
	runner.FreshTTL = freshTTL()
	runner.Force = flagForce
	runner.DryRun = flagDryRun

	backoff := crawl.DefaultBackoff()
	if siteCfg.Fetch.MaxRetries > 0 {
		backoff.MaxRetries = siteCfg.Fetch.MaxRetries
	}
	maxPages := flagMaxPages
	if maxPages <= 0 {
		maxPages = siteCfg.Pagination.MaxPages
	}
	delayMin, delayMax := siteCfg.DelayWindow()
	runner.Walk = crawl.WalkConfig{
		Mode:     mode,
		MaxPages: maxPages,
		DelayMin: delayMin,
		DelayMax: delayMax,
		Backoff:  backoff,
	}

	summary, err := runner.Run(cmd.Context())
	if errors.Is(err, pipeline.ErrFresh) {
		log.Printf("[cli] dataset is fresh (TTL %s), nothing to do; use --force to sync anyway", runner.FreshTTL)
		return nil
	}
	if err != nil {
		return err
	}

	renderSummary(os.Stdout, summary)
	stats.RenderStatistics(os.Stdout, summary.Statistics)
	stats.RenderQualityReport(os.Stdout, summary.Report)

	if flagArchive && !flagDryRun {
		archiveRun(cmd.Context(), summary)
	}
	return nil
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent sync runs from the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.Connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			runs, err := db.NewArchive(pool).RecentRuns(ctx, limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Run", "Mode", "Started", "Duration", "Pages", "New", "Dups", "Published", "Score", "Stop"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					shortID(r.RunID), r.Mode, r.StartedAt.Format("2006-01-02 15:04"),
					r.Duration.Round(time.Second), r.Pages, r.NewRecords,
					r.Duplicates, r.Published, r.QualityScore, r.StopReason,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "how many runs to list")
	return cmd
}

func renderSummary(w io.Writer, s pipeline.RunSummary) {
	if s.DryRun {
		fmt.Fprintln(w, "Dry run: dataset and artifacts untouched.")
	}
	if s.Fallback {
		fmt.Fprintln(w, "Walk aborted after repeated failures; artifacts reflect the last good dataset.")
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Run", "Mode", "Pages", "New", "Duplicates", "Published", "Dataset", "Score", "Duration"})
	t.AppendRow(table.Row{
		shortID(s.RunID), s.Mode, s.Walk.Pages, s.NewRecords, s.Duplicates,
		s.Published, s.DatasetLen, s.Report.QualityScore, s.Duration.Round(time.Millisecond),
	})
	t.Render()
}

// archiveRun records the run in Postgres. Archive problems are logged, never
// fatal: the artifacts on disk are already complete.
func archiveRun(ctx context.Context, summary pipeline.RunSummary) {
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Printf("[cli] archive skipped: %v", err)
		return
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Printf("[cli] archive skipped: %v", err)
		return
	}

	archive := db.NewArchive(pool)
	err = archive.RecordRun(ctx, db.RunRecord{
		RunID:        summary.RunID,
		Mode:         string(summary.Mode),
		StartedAt:    summary.StartedAt,
		Duration:     summary.Duration,
		Pages:        summary.Walk.Pages,
		FailedPages:  summary.Walk.FailedPages,
		StopReason:   string(summary.Walk.StopReason),
		NewRecords:   summary.NewRecords,
		Duplicates:   summary.Duplicates,
		Published:    summary.Published,
		DatasetLen:   summary.DatasetLen,
		QualityScore: summary.Report.QualityScore,
		Fallback:     summary.Fallback,
	})
	if err != nil {
		log.Printf("[cli] recording run: %v", err)
	}

	saved := archive.UpsertEvents(ctx, summary.Events)
	log.Printf("[cli] archived %d/%d events", saved, len(summary.Events))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func freshTTL() time.Duration {
	v := os.Getenv("EVENTSYNC_FRESH_TTL")
	if v == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[cli] invalid EVENTSYNC_FRESH_TTL %q, using 1h", v)
		return time.Hour
	}
	return d
}
