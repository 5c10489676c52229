package crawl

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/site.yaml
var siteYAML embed.FS

// SiteConfig describes the listing site: where it lives and which selectors
// extract an event card. Markup changes are absorbed here, not in code.
type SiteConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	PageParam string `yaml:"page_param,omitempty"` // query parameter carrying the page number, default "page"
	UserAgent string `yaml:"user_agent,omitempty"`

	Fetch      FetchConfig      `yaml:"fetch,omitempty"`
	Selectors  CardSelectors    `yaml:"selectors"`
	Pagination PaginationConfig `yaml:"pagination,omitempty"`
}

// FetchConfig defines HTTP fetching configuration for the listing site.
type FetchConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int `yaml:"max_retries,omitempty"`     // Default: 3
	DelayMinMs     int `yaml:"delay_min_ms,omitempty"`    // lower bound of the inter-page delay
	DelayMaxMs     int `yaml:"delay_max_ms,omitempty"`    // upper bound of the inter-page delay
}

// CardSelectors are the CSS selectors for one event card on a list page.
type CardSelectors struct {
	Card      string `yaml:"card"` // wrapper for a single event entry
	Title     string `yaml:"title"`
	Time      string `yaml:"time"`
	Location  string `yaml:"location"`
	Link      string `yaml:"link,omitempty"`
	LinkAttr  string `yaml:"link_attr,omitempty"` // default: href
	IDAttr    string `yaml:"id_attr,omitempty"`   // attribute on the card carrying the source event ID
	Image     string `yaml:"image,omitempty"`
	ImageAttr string `yaml:"image_attr,omitempty"` // default: src
	Views     string `yaml:"views,omitempty"`
	Favorites string `yaml:"favorites,omitempty"`
}

type PaginationConfig struct {
	Next     string `yaml:"next,omitempty"` // CSS selector for the enabled next-page link
	MaxPages int    `yaml:"max_pages,omitempty"`
}

// LoadSiteConfig reads the listing configuration. An explicit path wins over
// the embedded default; environment variables inside the YAML are expanded.
func LoadSiteConfig(path string) (*SiteConfig, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = siteYAML.ReadFile("config/site.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("reading site config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg SiteConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing site config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *SiteConfig) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("site config: base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("site config: base_url %q is not an absolute http(s) URL", c.BaseURL)
	}
	if c.Selectors.Card == "" {
		return fmt.Errorf("site config: selector 'card' is required")
	}
	if c.Selectors.Title == "" {
		return fmt.Errorf("site config: selector 'title' is required")
	}
	if c.PageParam == "" {
		c.PageParam = "page"
	}
	return nil
}

// Timeout returns the request timeout with the default applied.
func (c *SiteConfig) Timeout() time.Duration {
	if c.Fetch.TimeoutSeconds > 0 {
		return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// DelayWindow returns the randomized inter-page delay bounds. The walk always
// pauses inside this window between pages, even when the site answers fast.
func (c *SiteConfig) DelayWindow() (time.Duration, time.Duration) {
	min := time.Duration(c.Fetch.DelayMinMs) * time.Millisecond
	max := time.Duration(c.Fetch.DelayMaxMs) * time.Millisecond
	if min <= 0 {
		min = 800 * time.Millisecond
	}
	if max < min {
		max = min + 1500*time.Millisecond
	}
	return min, max
}

// PageURL builds the URL of the given 1-based listing page.
func (c *SiteConfig) PageURL(page int) string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL
	}
	q := u.Query()
	q.Set(c.PageParam, fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()
	return u.String()
}
