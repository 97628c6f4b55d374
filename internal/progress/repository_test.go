package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/funnel/pkg/database/databasetest"
)

func TestApplyCompletesOnceUnderConcurrency(t *testing.T) {
	pool := databasetest.Pool(t)
	f := databasetest.Seed(t, pool)
	repo := NewRepository(pool)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	const callers, quantum = 16, 10
	var (
		wg        sync.WaitGroup
		completed atomic.Int32
		errs      = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, just, err := repo.Apply(ctx, f.LeadID, f.LessonID, Snapshot{WatchedSeconds: 600, PercentWatched: 95}, DefaultCompletionThreshold, quantum, now)
			if err != nil {
				errs <- err
				return
			}
			if just {
				completed.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), completed.Load())

	rows, err := repo.ListByLead(ctx, f.LeadID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsCompleted)
	require.NotNil(t, rows[0].CompletedAt)
	assert.True(t, rows[0].CompletedAt.Equal(now))

	var total int
	require.NoError(t, pool.QueryRow(ctx, `SELECT total_watch_time FROM leads WHERE id = $1`, f.LeadID).Scan(&total))
	assert.Equal(t, callers*quantum, total)

	rec, just, err := repo.Apply(ctx, f.LeadID, f.LessonID, Snapshot{WatchedSeconds: 30, PercentWatched: 5}, DefaultCompletionThreshold, quantum, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, just)
	assert.True(t, rec.IsCompleted)
	assert.True(t, rec.CompletedAt.Equal(now))
	assert.Equal(t, 600, rec.WatchedSeconds)
	assert.Equal(t, 95.0, rec.PercentWatched)
}

func TestApplyUnknownReferences(t *testing.T) {
	pool := databasetest.Pool(t)
	f := databasetest.Seed(t, pool)
	repo := NewRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := repo.Apply(ctx, uuid.New(), f.LessonID, Snapshot{PercentWatched: 10}, DefaultCompletionThreshold, 10, now)
	assert.ErrorIs(t, err, ErrLeadNotFound)

	_, _, err = repo.Apply(ctx, f.LeadID, uuid.New(), Snapshot{PercentWatched: 10}, DefaultCompletionThreshold, 10, now)
	assert.ErrorIs(t, err, ErrLessonNotFound)

	var total int
	require.NoError(t, pool.QueryRow(ctx, `SELECT total_watch_time FROM leads WHERE id = $1`, f.LeadID).Scan(&total))
	assert.Zero(t, total, "a failed merge rolls back the watch time")
}
