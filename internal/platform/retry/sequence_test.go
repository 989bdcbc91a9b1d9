package retry_test

import (
	"testing"
	"time"

	"github.com/AndrewBeshay/moblin/internal/platform/retry"
)

func TestSequence_Delay(t *testing.T) {
	s := retry.Sequence{1 * time.Second, 2 * time.Second, 5 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 1 * time.Second},
		{attempt: 1, want: 1 * time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 5 * time.Second},
		{attempt: 4, want: 5 * time.Second},
		{attempt: 100, want: 5 * time.Second},
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestSequence_Empty(t *testing.T) {
	var s retry.Sequence
	if got := s.Delay(1); got != 0 {
		t.Fatalf("expected zero delay, got %v", got)
	}
}

func TestDefaultReconnect_ClampsAtFifteenSeconds(t *testing.T) {
	if got := retry.DefaultReconnect.Delay(50); got != 15*time.Second {
		t.Fatalf("expected 15s clamp, got %v", got)
	}
}
