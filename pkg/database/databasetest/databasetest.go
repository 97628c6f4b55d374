// Package databasetest opens a migrated Postgres pool for repository tests.
package databasetest

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/pkg/database"
)

// Pool connects to DATABASE_URL and applies the schema. The test is skipped
// when the variable is unset.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool, nil))
	return pool
}

// Funnel is a webinar with one lesson and one lead.
type Funnel struct {
	WebinarID uuid.UUID
	LessonID  uuid.UUID
	LeadID    uuid.UUID
}

// Seed inserts a fresh funnel under unique keys and removes it when the test ends.
func Seed(t *testing.T, pool *pgxpool.Pool) Funnel {
	t.Helper()
	ctx := context.Background()
	key := uuid.NewString()

	var f Funnel
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO webinars (slug, name) VALUES ($1, 'Test') RETURNING id`, "test-"+key).Scan(&f.WebinarID))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM webinars WHERE id = $1`, f.WebinarID)
	})
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO lessons (webinar_id, slug, title, video_url, position)
		 VALUES ($1, 'intro', 'Intro', 'https://www.youtube.com/watch?v=dQw4w9WgXcQ', 0) RETURNING id`,
		f.WebinarID).Scan(&f.LessonID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO leads (webinar_id, email, name, access_token) VALUES ($1, $2, 'Test Lead', $3) RETURNING id`,
		f.WebinarID, key+"@example.com", key).Scan(&f.LeadID))
	return f
}
