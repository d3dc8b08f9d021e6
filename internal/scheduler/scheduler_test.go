package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC)

	next, err := nextRun(now, "07:15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 7, 15, 0, 0, time.UTC), next)

	next, err = nextRun(now, "06:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC), next)

	for _, bad := range []string{"7", "24:00", "07:60", "aa:bb"} {
		_, err := nextRun(now, bad)
		assert.Error(t, err, bad)
	}
}

func TestRunNow_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := New("06:00", 0, runnerFunc(func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background()) }()
	<-started

	assert.True(t, s.Snapshot().Running)
	assert.ErrorIs(t, s.RunNow(context.Background()), ErrBatchAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
	snap := s.Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, "manual", snap.LastSource)
	assert.Empty(t, snap.LastError)
}

func TestRunNow_CooldownAndError(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	calls := 0
	s := New("06:00", time.Minute, runnerFunc(func(context.Context) error {
		calls++
		return errors.New("2 of 3 campaigns failed")
	}))
	s.now = func() time.Time { return now }

	assert.EqualError(t, s.RunNow(context.Background()), "2 of 3 campaigns failed")
	assert.Equal(t, "2 of 3 campaigns failed", s.Snapshot().LastError)

	now = now.Add(30 * time.Second)
	assert.ErrorIs(t, s.RunNow(context.Background()), ErrBatchCooldown)
	assert.Equal(t, 1, calls)

	now = now.Add(time.Minute)
	assert.Error(t, s.RunNow(context.Background()))
	assert.Equal(t, 2, calls)
}
