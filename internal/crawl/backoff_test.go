package crawl

import (
	"testing"
	"time"
)

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	p := BackoffPolicy{BaseDelay: 100 * time.Millisecond, MaxJitter: 0, MaxRetries: 3}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{-1, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	p := BackoffPolicy{BaseDelay: 100 * time.Millisecond, MaxJitter: 50 * time.Millisecond, MaxRetries: 3}

	for i := 0; i < 200; i++ {
		d := p.Delay(1)
		if d < 200*time.Millisecond || d >= 250*time.Millisecond {
			t.Fatalf("Delay(1) = %v, want within [200ms, 250ms)", d)
		}
	}
}

func TestBackoffHugeAttemptDoesNotOverflow(t *testing.T) {
	p := BackoffPolicy{BaseDelay: time.Second, MaxRetries: 3}
	if d := p.Delay(500); d <= 0 {
		t.Fatalf("Delay(500) = %v, want positive", d)
	}
}
