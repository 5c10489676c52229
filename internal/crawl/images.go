package crawl

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

// ImageFetcher mirrors event images into a local directory with a small
// bounded worker pool. Failures never fail the owning record; they only leave
// LocalImage empty.
type ImageFetcher struct {
	Dir     string
	Workers int
	Client  *http.Client
	Backoff BackoffPolicy
}

func NewImageFetcher(dir string) *ImageFetcher {
	return &ImageFetcher{
		Dir:     dir,
		Workers: 4,
		Client: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        16,
				IdleConnTimeout:     60 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		Backoff: BackoffPolicy{BaseDelay: 300 * time.Millisecond, MaxJitter: 100 * time.Millisecond, MaxRetries: 1},
	}
}

// MirrorAll downloads the images of every event that has an ImageURL and
// stamps LocalImage with the site-relative path. Events whose download fails
// keep their remote ImageURL and lose only the local reference.
func (f *ImageFetcher) MirrorAll(ctx context.Context, events []models.ProcessedEvent) {
	if f.Dir == "" || len(events) == 0 {
		return
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		log.Printf("[images] cannot create %s: %v", f.Dir, err)
		return
	}

	workers := f.Workers
	if workers <= 0 {
		workers = 4
	}

	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, workers)
		mirrored  int
		failed    int
		mu        sync.Mutex
	)

	for i := range events {
		if events[i].ImageURL == "" {
			continue
		}
		wg.Add(1)
		semaphore <- struct{}{}

		go func(ev *models.ProcessedEvent) {
			defer wg.Done()
			defer func() { <-semaphore }()

			local, err := f.mirror(ctx, ev.ID, ev.ImageURL)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				ev.LocalImage = ""
				log.Printf("[images] %s: %v", ev.ID, err)
				return
			}
			mirrored++
			ev.LocalImage = local
		}(&events[i])
	}
	wg.Wait()

	if mirrored+failed > 0 {
		log.Printf("[images] mirrored %d, failed %d", mirrored, failed)
	}
}

// mirror fetches a single image, retrying once on transient failure.
func (f *ImageFetcher) mirror(ctx context.Context, id, rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "data:") || strings.HasPrefix(rawURL, "blob:") {
		return "", fmt.Errorf("unsupported image URL scheme")
	}

	name := imageFileName(id, rawURL)
	dest := filepath.Join(f.Dir, name)
	if _, err := os.Stat(dest); err == nil {
		return path.Join("images", name), nil
	}

	var lastErr error
	for attempt := 0; attempt <= f.Backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, f.Backoff.Delay(attempt-1)); err != nil {
				return "", err
			}
		}
		if err := f.download(ctx, rawURL, dest); err != nil {
			lastErr = err
			continue
		}
		return path.Join("images", name), nil
	}
	return "", lastErr
}

func (f *ImageFetcher) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("bad image URL: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.Dir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, 8<<20)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func imageFileName(id, rawURL string) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(path.Base(rawURL), "?", 2)[0]))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
	default:
		ext = ".jpg"
	}
	return id + ext
}
