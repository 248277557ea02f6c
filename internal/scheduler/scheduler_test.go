package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextRunLaterToday(t *testing.T) {
	now := time.Date(2025, 3, 10, 22, 40, 0, 0, time.UTC)
	next := nextRun(now, 23, 5)
	require.Equal(t, time.Date(2025, 3, 10, 23, 5, 0, 0, time.UTC), next)
}

func TestNextRunRollsToTomorrow(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	next := nextRun(now, 0, 5)
	require.Equal(t, time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC), next)

	next = nextRun(now.Add(time.Minute), 0, 5)
	require.Equal(t, time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC), next)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewSweeper(0, 5, func(context.Context) (int, error) {
		fired <- struct{}{}
		return 0, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	select {
	case <-fired:
		t.Fatal("sweep must not fire after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}
