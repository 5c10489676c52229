package crawl

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// PageResult is the outcome of extracting one list page.
type PageResult struct {
	Records []models.RawRecord
	HasMore bool
}

// PageExtractor renders page N of the listing and extracts its records.
// Implementations may be retried with the same page number after an error.
type PageExtractor interface {
	NextPage(ctx context.Context, page int) (PageResult, error)
}

// KnownIDStore is the walker's view of previously ingested records.
type KnownIDStore interface {
	Contains(id string) bool
}

// Mode selects how aggressively a walk keeps paging once it stops finding
// new records.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeQuick       Mode = "quick"
)

// ParseMode validates a mode argument. The empty string means incremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeIncremental, nil
	case ModeFull, ModeIncremental, ModeQuick:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (expected full, incremental or quick)", s)
}

// NoNewPageLimit is how many consecutive pages without a single new record a
// walk tolerates before stopping. Zero means unlimited.
func (m Mode) NoNewPageLimit() int {
	switch m {
	case ModeQuick:
		return 1
	case ModeFull:
		return 0
	default:
		return 2
	}
}

type walkState int

const (
	stateWalking walkState = iota
	stateRetrying
	stateStopped
)

// StopReason explains why a walk ended.
type StopReason string

const (
	StopExhausted  StopReason = "no_more_pages"
	StopEmptyPages StopReason = "max_empty_pages"
	StopNoNew      StopReason = "no_new_records"
	StopFailures   StopReason = "consecutive_failures"
	StopMaxPages   StopReason = "max_pages"
	StopCanceled   StopReason = "canceled"
)

// WalkConfig tunes a single pagination walk.
type WalkConfig struct {
	Mode            Mode
	MaxEmptyPages   int // consecutive empty pages before stopping, default 3
	MaxPageFailures int // consecutive failed pages before stopping, default 3
	MaxPages        int // safety cap, 0 = unlimited
	StartRank       int // first sortRank to assign

	// inter-page politeness delay, drawn uniformly from [DelayMin, DelayMax]
	DelayMin time.Duration
	DelayMax time.Duration

	Backoff BackoffPolicy
}

// WalkStats summarizes a finished walk.
type WalkStats struct {
	Pages       int
	FailedPages int
	EmptyPages  int
	Seen        int
	Known       int
	New         int
	StopReason  StopReason
}

// Walker drives the page-by-page traversal of the listing. It is strictly
// sequential: one page in flight at any time.
type Walker struct {
	extractor PageExtractor
	known     KnownIDStore
	cfg       WalkConfig
	state     walkState
	now       func() time.Time
}

func NewWalker(extractor PageExtractor, known KnownIDStore, cfg WalkConfig) *Walker {
	if cfg.MaxEmptyPages <= 0 {
		cfg.MaxEmptyPages = 3
	}
	if cfg.MaxPageFailures <= 0 {
		cfg.MaxPageFailures = 3
	}
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeIncremental
	}
	return &Walker{
		extractor: extractor,
		known:     known,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run walks the listing until a stop condition fires and returns the new
// records in arrival order. Records collected before an early stop are kept.
// The returned error is non-nil only when the context is canceled.
func (w *Walker) Run(ctx context.Context) ([]models.RawRecord, WalkStats, error) {
	var (
		out      []models.RawRecord
		stats    WalkStats
		seen     = make(map[string]struct{})
		empty    int
		failures int
		noNew    int
	)

	w.state = stateWalking
	noNewLimit := w.cfg.Mode.NoNewPageLimit()
	discovered := w.now()

	for page := 1; w.state != stateStopped; page++ {
		if w.cfg.MaxPages > 0 && page > w.cfg.MaxPages {
			w.stop(&stats, page-1, StopMaxPages)
			break
		}

		if page > 1 {
			if err := sleepCtx(ctx, w.interPageDelay()); err != nil {
				stats.StopReason = StopCanceled
				return out, stats, err
			}
		}

		res, err := w.fetchPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				stats.StopReason = StopCanceled
				return out, stats, ctx.Err()
			}
			stats.FailedPages++
			failures++
			log.Printf("[walker] giving up on page %d: %v", page, err)
			if failures >= w.cfg.MaxPageFailures {
				w.stop(&stats, page, StopFailures)
				break
			}
			continue
		}
		failures = 0
		stats.Pages++

		if len(res.Records) == 0 {
			stats.EmptyPages++
			empty++
			log.Printf("[walker] page %d: empty (%d/%d)", page, empty, w.cfg.MaxEmptyPages)
			if empty >= w.cfg.MaxEmptyPages {
				w.stop(&stats, page, StopEmptyPages)
				break
			}
			if !res.HasMore {
				w.stop(&stats, page, StopExhausted)
				break
			}
			continue
		}
		empty = 0

		newOnPage := 0
		for _, rec := range res.Records {
			stats.Seen++
			if rec.ID == "" {
				continue
			}
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			if w.known != nil && w.known.Contains(rec.ID) {
				stats.Known++
				continue
			}
			rec.DiscoveredAt = discovered
			rec.SortRank = w.cfg.StartRank + len(out)
			out = append(out, rec)
			newOnPage++
		}
		stats.New += newOnPage
		log.Printf("[walker] page %d: %d records (%d new)", page, len(res.Records), newOnPage)

		if newOnPage == 0 {
			noNew++
			if noNewLimit > 0 && noNew >= noNewLimit {
				w.stop(&stats, page, StopNoNew)
				break
			}
		} else {
			noNew = 0
		}

		if !res.HasMore {
			w.stop(&stats, page, StopExhausted)
			break
		}
	}

	return out, stats, nil
}

// fetchPage retries a single page per the backoff policy before giving up.
func (w *Walker) fetchPage(ctx context.Context, page int) (PageResult, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.Backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			w.state = stateRetrying
			delay := w.cfg.Backoff.Delay(attempt - 1)
			log.Printf("[walker] page %d attempt %d/%d failed, retrying in %v: %v",
				page, attempt, w.cfg.Backoff.MaxRetries, delay, lastErr)
			if err := sleepCtx(ctx, delay); err != nil {
				return PageResult{}, err
			}
		}

		res, err := w.extractor.NextPage(ctx, page)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return PageResult{}, ctx.Err()
			}
			continue
		}
		w.state = stateWalking
		return res, nil
	}
	w.state = stateWalking
	return PageResult{}, fmt.Errorf("page %d: %w", page, lastErr)
}

func (w *Walker) stop(stats *WalkStats, page int, reason StopReason) {
	w.state = stateStopped
	stats.StopReason = reason
	log.Printf("[walker] stopping after page %d: %s", page, reason)
}

func (w *Walker) interPageDelay() time.Duration {
	min, max := w.cfg.DelayMin, w.cfg.DelayMax
	if max < min {
		max = min
	}
	if max <= 0 {
		return 0
	}
	if max == min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
