package cron

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/internal/session"
	"tgrelay/pkg/gateway"
)

func TestNewJanitor_InvalidInterval(t *testing.T) {
	_, err := NewJanitor(Config{Interval: 10 * time.Millisecond}, nil, nil, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestJanitor_Sweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	ids := session.NewIdentityMap(24*time.Hour, clock)
	dedup := session.NewDeduplicator(time.Hour)
	limiter := session.NewRateLimiter(time.Second)

	user := gateway.UserIdentity{ID: 1, DisplayName: "@u"}
	ids.Record(10, user)
	dedup.TryClaim("cb-old", now)
	limiter.TryAdmit(1, now)

	now = now.Add(25 * time.Hour)
	ids.Record(11, user)
	dedup.TryClaim("cb-new", now)

	j, err := NewJanitor(Config{Interval: time.Hour, Retention: 24 * time.Hour, RateStateIdle: 24 * time.Hour}, ids, dedup, limiter, zerolog.Nop())
	require.NoError(t, err)
	j.now = clock

	res := j.Sweep()
	assert.Equal(t, 1, res.Identities)
	assert.Equal(t, 1, res.Interactions)
	assert.Equal(t, 1, res.RateStates)
	assert.Equal(t, res, j.LastSweep())

	_, err = ids.Resolve(10)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = ids.Resolve(11)
	assert.NoError(t, err)
}

func TestJanitor_RateStateEvictionDisabled(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := session.NewRateLimiter(time.Second)
	limiter.TryAdmit(1, now)

	j, err := NewJanitor(Config{}, nil, nil, limiter, zerolog.Nop())
	require.NoError(t, err)
	j.now = func() time.Time { return now.Add(48 * time.Hour) }

	assert.Equal(t, 0, j.Sweep().RateStates)
	assert.Equal(t, 1, limiter.Len())
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	j, err := NewJanitor(Config{Interval: time.Second}, nil, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	assert.ErrorIs(t, j.Start(), ErrJanitorRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitor_RetentionFollowsIdentityMap(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ids := session.NewIdentityMap(2*time.Hour, func() time.Time { return now })
	ids.Record(10, gateway.UserIdentity{ID: 1, DisplayName: "@u"})

	j, err := NewJanitor(Config{}, ids, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	now = now.Add(3 * time.Hour)

	assert.Equal(t, 2*time.Hour, j.cfg.Retention)
	assert.Equal(t, 1, j.Sweep().Identities)
}
