package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

func TestMirrorAll(t *testing.T) {
	pngBytes := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			w.Write(pngBytes)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := &ImageFetcher{
		Dir:     dir,
		Workers: 2,
		Client:  srv.Client(),
		Backoff: BackoffPolicy{BaseDelay: time.Millisecond},
	}

	events := []models.ProcessedEvent{
		{ID: "a1", ImageURL: srv.URL + "/ok.png", LocalImage: "stale"},
		{ID: "a2", ImageURL: srv.URL + "/gone.png", LocalImage: "stale"},
		{ID: "a3", ImageURL: "data:image/png;base64,AAAA", LocalImage: "stale"},
		{ID: "a4"},
	}

	f.MirrorAll(context.Background(), events)

	if events[0].LocalImage != "images/a1.png" {
		t.Errorf("LocalImage = %q, want images/a1.png", events[0].LocalImage)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a1.png"))
	if err != nil {
		t.Fatalf("mirrored file missing: %v", err)
	}
	if string(data) != string(pngBytes) {
		t.Error("mirrored file content differs from source")
	}

	if events[1].LocalImage != "" {
		t.Errorf("404 download must clear LocalImage, got %q", events[1].LocalImage)
	}
	if events[1].ImageURL == "" {
		t.Error("remote ImageURL must survive a failed mirror")
	}
	if events[2].LocalImage != "" {
		t.Errorf("data: URL must clear LocalImage, got %q", events[2].LocalImage)
	}
	if events[3].LocalImage != "" {
		t.Errorf("event without ImageURL must stay untouched, got %q", events[3].LocalImage)
	}

	// second pass hits the on-disk copy and keeps the reference
	events[0].LocalImage = ""
	f.MirrorAll(context.Background(), events)
	if events[0].LocalImage != "images/a1.png" {
		t.Errorf("cached mirror pass: LocalImage = %q", events[0].LocalImage)
	}
}

func TestImageFileName(t *testing.T) {
	tests := []struct {
		id, url, want string
	}{
		{"e1", "https://img.example.cn/a/b.png?size=2", "e1.png"},
		{"e2", "https://img.example.cn/photo", "e2.jpg"},
		{"e3", "https://img.example.cn/pic.WEBP", "e3.webp"},
		{"e4", "https://img.example.cn/vector.svg", "e4.jpg"},
		{"e5", "https://img.example.cn/shot.jpeg", "e5.jpeg"},
	}

	for _, tt := range tests {
		if got := imageFileName(tt.id, tt.url); got != tt.want {
			t.Errorf("imageFileName(%q, %q) = %q, want %q", tt.id, tt.url, got, tt.want)
		}
	}
}
