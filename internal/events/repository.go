package events

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

// ErrUnknownReference is returned when an event names a lead or lesson that does not exist.
var ErrUnknownReference = errors.New("event references a missing lead or lesson")

// Repository appends to the lead event ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends e using q, which may be a transaction. ID and CreatedAt are filled in.
func Insert(ctx context.Context, q database.Querier, e *models.LeadEvent) error {
	const stmt = `INSERT INTO lead_events (lead_id, lesson_id, event_type, video_time, data, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING id, created_at`
	var data any
	if len(e.Data) > 0 {
		data = string(e.Data)
	}
	err := q.QueryRow(ctx, stmt, e.LeadID, e.LessonID, e.EventType, e.VideoTime, data, e.UserAgent, e.IPAddress).
		Scan(&e.ID, &e.CreatedAt)
	if database.IsForeignKeyViolation(err) {
		return ErrUnknownReference
	}
	return err
}

// Record appends e and, for offer events tied to a lesson, flips the lead's
// one-way offer flags in the same transaction.
func (r *Repository) Record(ctx context.Context, e *models.LeadEvent, now time.Time) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := Insert(ctx, tx, e); err != nil {
			return err
		}
		if e.LessonID == nil {
			return nil
		}
		var stmt string
		switch e.EventType {
		case models.EventOfferShown:
			stmt = `INSERT INTO lead_progress (lead_id, lesson_id, offer_shown, offer_shown_at)
				VALUES ($1, $2, TRUE, $3)
				ON CONFLICT (lead_id, lesson_id) DO UPDATE SET
					offer_shown = TRUE,
					offer_shown_at = COALESCE(lead_progress.offer_shown_at, EXCLUDED.offer_shown_at),
					updated_at = NOW()`
		case models.EventOfferClicked:
			stmt = `INSERT INTO lead_progress (lead_id, lesson_id, offer_clicked, offer_clicked_at, offer_click_count)
				VALUES ($1, $2, TRUE, $3, 1)
				ON CONFLICT (lead_id, lesson_id) DO UPDATE SET
					offer_clicked = TRUE,
					offer_clicked_at = COALESCE(lead_progress.offer_clicked_at, EXCLUDED.offer_clicked_at),
					offer_click_count = lead_progress.offer_click_count + 1,
					updated_at = NOW()`
		default:
			return nil
		}
		_, err := tx.Exec(ctx, stmt, e.LeadID, *e.LessonID, now)
		if database.IsForeignKeyViolation(err) {
			return ErrUnknownReference
		}
		return err
	})
}

// ListByLead returns a lead's most recent events, newest first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID, limit int) ([]models.LeadEvent, error) {
	const q = `SELECT id, lead_id, lesson_id, event_type, video_time, data, COALESCE(user_agent, ''), COALESCE(ip_address, ''), created_at
		FROM lead_events WHERE lead_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.LeadEvent
	for rows.Next() {
		var (
			e    models.LeadEvent
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.LeadID, &e.LessonID, &e.EventType, &e.VideoTime, &data, &e.UserAgent, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = data
		list = append(list, e)
	}
	return list, rows.Err()
}
