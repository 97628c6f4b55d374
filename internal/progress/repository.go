package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/database"
)

var (
	// ErrLeadNotFound is returned when the session's lead no longer exists.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrLessonNotFound is returned when the lesson vanished between validation and write.
	ErrLessonNotFound = errors.New("lesson not found")
)

const progressColumns = `p.id, p.lead_id, p.lesson_id, p.watched_seconds, p.percent_watched, p.is_completed, p.completed_at,
	p.offer_shown, p.offer_shown_at, p.offer_clicked, p.offer_clicked_at, p.offer_click_count,
	p.last_watched_at, p.created_at, p.updated_at`

// Repository persists lead progress.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a progress repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanProgress(row pgx.Row, extra ...any) (*models.LeadProgress, error) {
	var p models.LeadProgress
	dest := []any{
		&p.ID, &p.LeadID, &p.LessonID, &p.WatchedSeconds, &p.PercentWatched, &p.IsCompleted, &p.CompletedAt,
		&p.OfferShown, &p.OfferShownAt, &p.OfferClicked, &p.OfferClickedAt, &p.OfferClickCount,
		&p.LastWatchedAt, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

// Apply merges in into the (lead, lesson) record and, in the same
// transaction, adds quantum seconds to the lead's watch time and refreshes its
// last access. The merge upsert takes the row lock; completion is then flipped
// by a conditional update that only matches an uncompleted row, so among
// concurrent callers exactly one sees justCompleted.
func (r *Repository) Apply(ctx context.Context, leadID, lessonID uuid.UUID, in Snapshot, threshold float64, quantum int, now time.Time) (*models.LeadProgress, bool, error) {
	var (
		rec           *models.LeadProgress
		justCompleted bool
	)
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE leads SET total_watch_time = total_watch_time + $2, last_access_at = $3, updated_at = NOW() WHERE id = $1`,
			leadID, quantum, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrLeadNotFound
		}

		const merge = `INSERT INTO lead_progress AS p (lead_id, lesson_id, watched_seconds, percent_watched, last_watched_at)
			VALUES ($1, $2, $3, LEAST(100, $4::float8), $5)
			ON CONFLICT (lead_id, lesson_id) DO UPDATE SET
				watched_seconds = GREATEST(p.watched_seconds, EXCLUDED.watched_seconds),
				percent_watched = LEAST(100, GREATEST(p.percent_watched, EXCLUDED.percent_watched)),
				last_watched_at = $5,
				updated_at = NOW()
			RETURNING p.id`
		var id uuid.UUID
		err = tx.QueryRow(ctx, merge, leadID, lessonID, in.WatchedSeconds, in.PercentWatched, now).Scan(&id)
		if database.IsForeignKeyViolation(err) {
			return ErrLessonNotFound
		}
		if err != nil {
			return err
		}

		const complete = `UPDATE lead_progress AS p SET is_completed = TRUE, completed_at = $3, updated_at = NOW()
			WHERE p.id = $1 AND NOT p.is_completed AND p.percent_watched >= $2::float8
			RETURNING ` + progressColumns
		rec, err = scanProgress(tx.QueryRow(ctx, complete, id, threshold, now))
		if err == nil {
			justCompleted = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		rec, err = scanProgress(tx.QueryRow(ctx, `SELECT `+progressColumns+` FROM lead_progress p WHERE p.id = $1`, id))
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return rec, justCompleted, nil
}

// ListByLead returns a lead's progress rows ordered by lesson position.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.LeadProgress, error) {
	q := `SELECT ` + progressColumns + ` FROM lead_progress p
		JOIN lessons l ON l.id = p.lesson_id
		WHERE p.lead_id = $1 ORDER BY l.position`
	rows, err := r.pool.Query(ctx, q, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.LeadProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}
