package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/funnel/internal/models"
)

// ErrSessionNotFound is returned when no binding exists for the browser key and webinar.
var ErrSessionNotFound = errors.New("session not found")

// Repository persists lead session bindings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert binds browserKey to leadID inside webinarID, replacing any previous
// binding for that pair and pushing its expiry out.
func (r *Repository) Upsert(ctx context.Context, browserKey string, webinarID, leadID uuid.UUID, expiresAt time.Time) (*models.LeadSession, error) {
	const q = `INSERT INTO lead_sessions (browser_key, webinar_id, lead_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (browser_key, webinar_id) DO UPDATE
		SET lead_id = EXCLUDED.lead_id, expires_at = EXCLUDED.expires_at
		RETURNING id, created_at`
	s := &models.LeadSession{BrowserKey: browserKey, WebinarID: webinarID, LeadID: leadID, ExpiresAt: expiresAt}
	if err := r.pool.QueryRow(ctx, q, browserKey, webinarID, leadID, expiresAt).Scan(&s.ID, &s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the binding for browserKey in webinarID, expired or not.
func (r *Repository) Get(ctx context.Context, browserKey string, webinarID uuid.UUID) (*models.LeadSession, error) {
	const q = `SELECT id, lead_id, expires_at, created_at FROM lead_sessions WHERE browser_key = $1 AND webinar_id = $2`
	s := &models.LeadSession{BrowserKey: browserKey, WebinarID: webinarID}
	err := r.pool.QueryRow(ctx, q, browserKey, webinarID).Scan(&s.ID, &s.LeadID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes the binding for one webinar.
func (r *Repository) Delete(ctx context.Context, browserKey string, webinarID uuid.UUID) error {
	const q = `DELETE FROM lead_sessions WHERE browser_key = $1 AND webinar_id = $2`
	_, err := r.pool.Exec(ctx, q, browserKey, webinarID)
	return err
}

// DeleteAll removes every binding held by browserKey and returns the webinars they covered.
func (r *Repository) DeleteAll(ctx context.Context, browserKey string) ([]uuid.UUID, error) {
	const q = `DELETE FROM lead_sessions WHERE browser_key = $1 RETURNING webinar_id`
	rows, err := r.pool.Query(ctx, q, browserKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExpired removes bindings that expired at or before now.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM lead_sessions WHERE expires_at <= $1`
	tag, err := r.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
