package otp_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/payflow-auth/internal/logging"
	"github.com/redmonkez12/payflow-auth/internal/metrics"
	"github.com/redmonkez12/payflow-auth/internal/otp"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, server
}

func TestRedisLock_SingleHolderPerTTL(t *testing.T) {
	ctx := context.Background()
	client, server := newTestRedis(t)

	a := otp.NewRedisLock(client, "")
	b := otp.NewRedisLock(client, "")

	ok, err := a.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	server.FastForward(time.Minute)

	ok, err = b.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ErrorWhenUnavailable(t *testing.T) {
	client, server := newTestRedis(t)
	server.Close()

	_, err := otp.NewRedisLock(client, "k").TryAcquire(context.Background(), time.Minute)
	assert.Error(t, err)
}

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	_, err = repo.Create(ctx, "jane@x.com", "111111", c.Now().Add(time.Minute))
	require.NoError(t, err)
	c.Advance(time.Hour)

	s := otp.NewSweeper(repo, time.Minute, logging.NewNopLogger(), otp.WithMetrics(m))
	swept, ran, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int64(1), swept)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OTPSwept))
}

func TestSweeper_OnlyLockHolderSweeps(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)
	client, _ := newTestRedis(t)

	_, err := repo.Create(ctx, "jane@x.com", "111111", c.Now().Add(time.Minute))
	require.NoError(t, err)
	c.Advance(time.Hour)

	first := otp.NewSweeper(repo, time.Minute, logging.NewNopLogger(), otp.WithLocker(otp.NewRedisLock(client, "")))
	second := otp.NewSweeper(repo, time.Minute, logging.NewNopLogger(), otp.WithLocker(otp.NewRedisLock(client, "")))

	swept, ran, err := first.SweepOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int64(1), swept)

	_, ran, err = second.SweepOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	repo, _ := newRepo(t)
	s := otp.NewSweeper(repo, 10*time.Millisecond, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	repo, _ := newRepo(t)
	s := otp.NewSweeper(repo, 0, logging.NewNopLogger())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return")
	}
}
