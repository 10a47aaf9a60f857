package otp_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/payflow-auth/internal/database/databasetest"
	"github.com/redmonkez12/payflow-auth/internal/otp"
)

// clock is a settable time source shared by a repository under test
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRepo(t *testing.T) (*otp.Repository, *clock) {
	t.Helper()
	c := newClock()
	return otp.NewRepository(databasetest.NewSQLite(t), c.Now), c
}

func TestRepository_CreateAndFindValid(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)

	created, err := repo.Create(ctx, " Jane@X.com ", "123456", c.Now().Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", created.Email)
	assert.False(t, created.Used)

	found, err := repo.FindValid(ctx, "JANE@x.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.ValidAt(c.Now()))

	_, err = repo.FindValid(ctx, "jane@x.com", "654321")
	assert.ErrorIs(t, err, otp.ErrNotFound)

	_, err = repo.FindValid(ctx, "other@x.com", "123456")
	assert.ErrorIs(t, err, otp.ErrNotFound)
}

func TestRepository_FindValidHonoursExpiry(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)

	_, err := repo.Create(ctx, "jane@x.com", "123456", c.Now().Add(10*time.Minute))
	require.NoError(t, err)

	c.Advance(10*time.Minute - time.Second)
	_, err = repo.FindValid(ctx, "jane@x.com", "123456")
	require.NoError(t, err)

	// Expiry is exclusive: at expiresAt the code is already dead
	c.Advance(time.Second)
	_, err = repo.FindValid(ctx, "jane@x.com", "123456")
	assert.ErrorIs(t, err, otp.ErrNotFound)
}

func TestRepository_FindValidPrefersNewest(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)

	_, err := repo.Create(ctx, "jane@x.com", "111111", c.Now().Add(10*time.Minute))
	require.NoError(t, err)
	c.Advance(time.Second)
	newer, err := repo.Create(ctx, "jane@x.com", "111111", c.Now().Add(10*time.Minute))
	require.NoError(t, err)

	found, err := repo.FindValid(ctx, "jane@x.com", "111111")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)
}

func TestRepository_InvalidateAllUnused(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)

	codes := []string{"111111", "222222", "333333"}
	for _, code := range codes {
		_, err := repo.Create(ctx, "jane@x.com", code, c.Now().Add(10*time.Minute))
		require.NoError(t, err)
	}
	other, err := repo.Create(ctx, "bob@x.com", "111111", c.Now().Add(10*time.Minute))
	require.NoError(t, err)

	n, err := repo.InvalidateAllUnused(ctx, "Jane@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, code := range codes {
		_, err := repo.FindValid(ctx, "jane@x.com", code)
		assert.ErrorIs(t, err, otp.ErrNotFound, code)
	}

	found, err := repo.FindValid(ctx, "bob@x.com", "111111")
	require.NoError(t, err)
	assert.Equal(t, other.ID, found.ID)

	n, err = repo.InvalidateAllUnused(ctx, "jane@x.com")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepository_MarkUsedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)

	rec, err := repo.Create(ctx, "jane@x.com", "123456", c.Now().Add(10*time.Minute))
	require.NoError(t, err)

	flipped, err := repo.MarkUsed(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = repo.MarkUsed(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, flipped)

	_, err = repo.FindValid(ctx, "jane@x.com", "123456")
	assert.ErrorIs(t, err, otp.ErrNotFound)

	flipped, err = repo.MarkUsed(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestRepository_MarkUsedConcurrentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)

	rec, err := repo.Create(ctx, "jane@x.com", "123456", c.Now().Add(10*time.Minute))
	require.NoError(t, err)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flipped, err := repo.MarkUsed(ctx, rec.ID)
			assert.NoError(t, err)
			if flipped {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestRepository_RunInTx(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)

	_, err := repo.Create(ctx, "jane@x.com", "111111", c.Now().Add(10*time.Minute))
	require.NoError(t, err)

	t.Run("rollback keeps prior state", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.RunInTx(ctx, func(ctx context.Context, tx otp.Store) error {
			if _, err := tx.InvalidateAllUnused(ctx, "jane@x.com"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = repo.FindValid(ctx, "jane@x.com", "111111")
		assert.NoError(t, err)
	})

	t.Run("commit", func(t *testing.T) {
		err := repo.RunInTx(ctx, func(ctx context.Context, tx otp.Store) error {
			if _, err := tx.InvalidateAllUnused(ctx, "jane@x.com"); err != nil {
				return err
			}
			_, err := tx.Create(ctx, "jane@x.com", "222222", c.Now().Add(10*time.Minute))
			return err
		})
		require.NoError(t, err)

		_, err = repo.FindValid(ctx, "jane@x.com", "111111")
		assert.ErrorIs(t, err, otp.ErrNotFound)
		_, err = repo.FindValid(ctx, "jane@x.com", "222222")
		assert.NoError(t, err)
	})
}

func TestRepository_SweepExpired(t *testing.T) {
	ctx := context.Background()
	repo, c := newRepo(t)

	_, err := repo.Create(ctx, "jane@x.com", "111111", c.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = repo.Create(ctx, "jane@x.com", "222222", c.Now().Add(time.Hour))
	require.NoError(t, err)

	c.Advance(2 * time.Minute)
	n, err := repo.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindValid(ctx, "jane@x.com", "222222")
	assert.NoError(t, err)
}
