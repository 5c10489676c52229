package crawl

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// ListingExtractor fetches one list page at a time with Colly and turns the
// configured card selector into RawRecords. It implements PageExtractor.
type ListingExtractor struct {
	cfg       *SiteConfig
	collector *colly.Collector

	// per-visit scratch state; the collector runs synchronously with
	// Parallelism 1 so no locking is needed
	records []models.RawRecord
	hasMore bool
	lastErr error
}

// NewListingExtractor builds the collector once; NextPage reuses it for every
// page of the walk.
func NewListingExtractor(cfg *SiteConfig) (*ListingExtractor, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.UserAgent(userAgent),
		colly.DetectCharset(),
		// retries re-request the same page URL
		colly.AllowURLRevisit(),
	)

	// inter-page pacing is the walker's job, the collector only enforces
	// sequential fetching
	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	})
	collector.SetRequestTimeout(cfg.Timeout())

	e := &ListingExtractor{cfg: cfg, collector: collector}

	collector.OnHTML(cfg.Selectors.Card, func(el *colly.HTMLElement) {
		if rec, ok := e.parseCard(el); ok {
			e.records = append(e.records, rec)
		}
	})

	if cfg.Pagination.Next != "" {
		collector.OnHTML(cfg.Pagination.Next, func(el *colly.HTMLElement) {
			e.hasMore = true
		})
	}

	collector.OnError(func(r *colly.Response, err error) {
		e.lastErr = err
	})

	return e, nil
}

// NextPage fetches the given 1-based page. A transport or HTTP error is
// returned as-is so the walker can apply its retry policy; cards that lack a
// title or link are extraction failures and are silently dropped.
func (e *ListingExtractor) NextPage(ctx context.Context, page int) (PageResult, error) {
	if err := ctx.Err(); err != nil {
		return PageResult{}, err
	}

	e.records = nil
	e.hasMore = false
	e.lastErr = nil

	pageURL := e.cfg.PageURL(page)
	if err := e.collector.Visit(pageURL); err != nil {
		return PageResult{}, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	e.collector.Wait()

	if e.lastErr != nil {
		return PageResult{}, fmt.Errorf("fetch %s: %w", pageURL, e.lastErr)
	}

	res := PageResult{Records: e.records, HasMore: e.hasMore}
	if e.cfg.Pagination.Next == "" {
		// no next-link selector configured: assume more pages while cards keep coming
		res.HasMore = len(res.Records) > 0
	}
	return res, nil
}

func (e *ListingExtractor) parseCard(el *colly.HTMLElement) (models.RawRecord, bool) {
	sel := e.cfg.Selectors

	title := strings.TrimSpace(el.ChildText(sel.Title))

	linkAttr := sel.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}
	var link string
	if sel.Link == "" || sel.Link == "." {
		link = strings.TrimSpace(el.Attr(linkAttr))
	} else {
		link = strings.TrimSpace(el.ChildAttr(sel.Link, linkAttr))
	}

	if title == "" || link == "" {
		return models.RawRecord{}, false
	}
	fullURL := el.Request.AbsoluteURL(link)

	id := ""
	if sel.IDAttr != "" {
		id = strings.TrimSpace(el.Attr(sel.IDAttr))
	}
	if id == "" {
		// stable fallback identity derived from the link
		hash := sha1.Sum([]byte(fullURL))
		id = hex.EncodeToString(hash[:])
	}

	rec := models.RawRecord{
		ID:           id,
		Title:        title,
		TimeText:     strings.TrimSpace(el.ChildText(sel.Time)),
		LocationText: strings.TrimSpace(el.ChildText(sel.Location)),
		URL:          fullURL,
	}

	if sel.Image != "" {
		imageAttr := sel.ImageAttr
		if imageAttr == "" {
			imageAttr = "src"
		}
		if img := firstAttr(el.DOM.Find(sel.Image).First(), imageAttr, "data-src", "src"); img != "" {
			rec.ImageURL = el.Request.AbsoluteURL(img)
		}
	}

	if sel.Views != "" {
		rec.ViewCount = parseCount(el.ChildText(sel.Views))
	}
	if sel.Favorites != "" {
		rec.FavoriteCount = parseCount(el.ChildText(sel.Favorites))
	}

	return rec, true
}

// firstAttr returns the first attribute among names holding a non-empty
// value. Lazy-loaded images park the real URL in data-src, so callers put
// the configured attribute first and plain src last.
func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if v, ok := s.Attr(name); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

var countRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*(万|[wWkK])?`)

// parseCount reads a counter out of texts like "1234", "1.2万 浏览" or "3k".
// Anything unreadable counts as zero.
func parseCount(s string) int {
	m := countRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "万", "w":
		n *= 10000
	case "k":
		n *= 1000
	}
	return int(n)
}
