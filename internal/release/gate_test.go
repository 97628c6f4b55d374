package release

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/funnel/internal/models"
)

type unknownPolicy struct{ models.Immediate }

func (unknownPolicy) Kind() models.ReleaseKind { return "mystery" }

func lesson(pos int, policy models.ReleasePolicy) models.Lesson {
	return models.Lesson{ID: uuid.New(), Position: pos, IsActive: true, Release: policy}
}

func completedAt(t time.Time) *models.LeadProgress {
	return &models.LeadProgress{IsCompleted: true, CompletedAt: &t, PercentWatched: 95}
}

func TestImmediateAvailableWhenActive(t *testing.T) {
	now := time.Now()
	l := lesson(0, models.Immediate{})
	assert.Equal(t, Available, Evaluate(l, nil, nil, now).Status)

	l.IsActive = false
	assert.Equal(t, Locked, Evaluate(l, nil, nil, now).Status)
}

func TestScheduledFlipsExactlyAtReleaseAt(t *testing.T) {
	releaseAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := lesson(0, models.Scheduled{ReleaseAt: releaseAt})

	before := Evaluate(l, nil, nil, releaseAt.Add(-time.Nanosecond))
	assert.Equal(t, Locked, before.Status)
	require.NotNil(t, before.AvailableAt)
	assert.True(t, before.AvailableAt.Equal(releaseAt))

	assert.Equal(t, Available, Evaluate(l, nil, nil, releaseAt).Status)
	assert.Equal(t, Available, Evaluate(l, nil, nil, releaseAt.Add(time.Hour)).Status)
}

func TestSequentialWaitsForPredecessorCompletion(t *testing.T) {
	done := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	first := lesson(0, models.Immediate{})
	second := lesson(1, models.Sequential{ReleaseAfterHours: 24})

	assert.Equal(t, Locked, Evaluate(second, &first, nil, done).Status)
	assert.Equal(t, Locked, Evaluate(second, &first, &models.LeadProgress{PercentWatched: 50}, done).Status)

	d := Evaluate(second, &first, completedAt(done), done.Add(23*time.Hour+59*time.Minute))
	assert.Equal(t, Locked, d.Status)
	require.NotNil(t, d.AvailableAt)
	assert.True(t, d.AvailableAt.Equal(done.Add(24*time.Hour)))

	assert.Equal(t, Available, Evaluate(second, &first, completedAt(done), done.Add(24*time.Hour)).Status)
}

func TestSequentialFirstLessonAlwaysAvailable(t *testing.T) {
	l := lesson(0, models.Sequential{ReleaseAfterHours: 48})
	assert.Equal(t, Available, Evaluate(l, nil, nil, time.Now()).Status)
}

func TestUnknownPolicyLocked(t *testing.T) {
	l := lesson(0, unknownPolicy{})
	assert.Equal(t, Locked, Evaluate(l, nil, nil, time.Now()).Status)
	l.Release = nil
	assert.Equal(t, Locked, Evaluate(l, nil, nil, time.Now()).Status)
}

func TestAnnotateSkipsInactiveAndUsesActivePredecessor(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	a := lesson(0, models.Immediate{})
	hidden := lesson(1, models.Immediate{})
	hidden.IsActive = false
	c := lesson(2, models.Sequential{ReleaseAfterHours: 0})
	d := lesson(3, models.Sequential{ReleaseAfterHours: 24})

	progress := map[uuid.UUID]*models.LeadProgress{
		a.ID: completedAt(now.Add(-time.Hour)),
		c.ID: completedAt(now.Add(-time.Hour)),
	}
	// shuffled input; Annotate orders by position
	got := Annotate([]models.Lesson{d, hidden, c, a}, progress, now)
	require.Len(t, got, 3)
	assert.Equal(t, a.ID, got[0].Lesson.ID)
	assert.Equal(t, c.ID, got[1].Lesson.ID)
	assert.Equal(t, d.ID, got[2].Lesson.ID)

	assert.False(t, got[0].Decision.IsLocked())
	assert.False(t, got[1].Decision.IsLocked(), "predecessor of c is a, not the inactive lesson")
	assert.True(t, got[2].Decision.IsLocked())
}

func TestAnnotateAnonymousVisitor(t *testing.T) {
	a := lesson(0, models.Immediate{})
	b := lesson(1, models.Sequential{ReleaseAfterHours: 0})
	got := Annotate([]models.Lesson{a, b}, nil, time.Now())
	require.Len(t, got, 2)
	assert.False(t, got[0].Decision.IsLocked())
	assert.True(t, got[1].Decision.IsLocked())
}
