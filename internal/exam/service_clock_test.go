package exam

import (
	"strings"
	"testing"
	"time"
)

func TestRemainingSeconds(t *testing.T) {
	started := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		status  string
		minutes int
		elapsed time.Duration
		want    int64
	}{
		{name: "fresh", status: StatusInProgress, minutes: 30, elapsed: 0, want: 1800},
		{name: "mid exam", status: StatusInProgress, minutes: 30, elapsed: 10 * time.Minute, want: 1200},
		{name: "exactly expired", status: StatusInProgress, minutes: 30, elapsed: 30 * time.Minute, want: 0},
		{name: "overdue goes negative", status: StatusInProgress, minutes: 30, elapsed: 31 * time.Minute, want: -60},
		{name: "completed reports zero", status: StatusCompleted, minutes: 30, elapsed: time.Minute, want: 0},
		{name: "timed out reports zero", status: StatusTimedOut, minutes: 30, elapsed: 45 * time.Minute, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row := &submissionRow{
				Status:          tc.status,
				StartedAt:       started,
				DurationMinutes: tc.minutes,
			}
			got := remainingSeconds(row, started.Add(tc.elapsed))
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestClampSeconds(t *testing.T) {
	if got := clampSeconds(-5); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := clampSeconds(42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestGenerateAccessCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		code, err := generateAccessCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != accessCodeLength {
			t.Fatalf("expected length %d, got %q", accessCodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(accessCodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside alphabet", code, c)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("codes look constant: %v", seen)
	}
}
