package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justinbach/migration-pipeline/pkg/retry"
)

func TestBackoff(t *testing.T) {
	p := retry.Policy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDo(t *testing.T) {
	fast := retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")

	t.Run("succeeds after retries", func(t *testing.T) {
		calls := 0
		err := retry.Do(context.Background(), fast, nil, func(attempt int) error {
			calls++
			if attempt < 3 {
				return errTransient
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		err := retry.Do(context.Background(), fast, nil, func(int) error { return errTransient })
		if !errors.Is(err, retry.ErrMaxAttemptsExceeded) {
			t.Errorf("err = %v, want ErrMaxAttemptsExceeded", err)
		}
		if !errors.Is(err, errTransient) {
			t.Errorf("err = %v, want wrapped last error", err)
		}
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		calls := 0
		err := retry.Do(context.Background(), fast,
			func(err error) bool { return !errors.Is(err, errFatal) },
			func(int) error {
				calls++
				return errFatal
			},
		)
		if !errors.Is(err, errFatal) {
			t.Errorf("err = %v, want errFatal", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := retry.Do(ctx, fast, nil, func(int) error { return nil })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}
