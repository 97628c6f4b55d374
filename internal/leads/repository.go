package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/funnel/internal/events"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/database"
)

var (
	// ErrLeadNotFound is returned when no lead matches the credential inside the webinar.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrLeadExists is returned when (webinar, email) is already registered.
	ErrLeadExists = errors.New("lead already exists")
)

// NewLead is the write model for Create and Upsert. Email and Phone must
// already be normalized.
type NewLead struct {
	WebinarID          uuid.UUID
	Email              string
	Name               string
	Phone              string
	AccessToken        string
	UTM                models.UTM
	ExternalCampaignID string
	Source             string // recorded on the LEAD_REGISTERED event
	StampAccess        bool   // set first/last access to now on insert
}

const leadColumns = `id, webinar_id, email, name, COALESCE(phone, ''), access_token,
	first_access_at, last_access_at, total_watch_time,
	COALESCE(utm_source, ''), COALESCE(utm_medium, ''), COALESCE(utm_campaign, ''),
	COALESCE(external_campaign_id, ''), created_at, updated_at`

// Repository persists leads and their identity-side ledger rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a lead repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanLead(row pgx.Row, extra ...any) (*models.Lead, error) {
	var l models.Lead
	dest := []any{
		&l.ID, &l.WebinarID, &l.Email, &l.Name, &l.Phone, &l.AccessToken,
		&l.FirstAccessAt, &l.LastAccessAt, &l.TotalWatchTime,
		&l.UTM.Source, &l.UTM.Medium, &l.UTM.Campaign,
		&l.ExternalCampaignID, &l.CreatedAt, &l.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return &l, nil
}

// FindByToken returns the lead holding token inside webinarID.
func (r *Repository) FindByToken(ctx context.Context, webinarID uuid.UUID, token string) (*models.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE access_token = $1 AND webinar_id = $2`
	return scanLead(r.pool.QueryRow(ctx, q, token, webinarID))
}

// FindByEmail returns the lead registered with email inside webinarID.
func (r *Repository) FindByEmail(ctx context.Context, webinarID uuid.UUID, email string) (*models.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE webinar_id = $1 AND email = $2`
	return scanLead(r.pool.QueryRow(ctx, q, webinarID, email))
}

// FindByPhone returns the oldest lead with phone inside webinarID. Phones are not unique.
func (r *Repository) FindByPhone(ctx context.Context, webinarID uuid.UUID, phone string) (*models.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE webinar_id = $1 AND phone = $2 ORDER BY created_at LIMIT 1`
	return scanLead(r.pool.QueryRow(ctx, q, webinarID, phone))
}

// GetByID returns a lead by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return scanLead(r.pool.QueryRow(ctx, q, id))
}

// TouchAccess stamps first_access_at once and last_access_at always, and
// appends WEBINAR_ACCESSED tagged with the resolution method.
func (r *Repository) TouchAccess(ctx context.Context, leadID uuid.UUID, method Method, now time.Time) (*models.Lead, error) {
	data, err := json.Marshal(map[string]string{"method": string(method)})
	if err != nil {
		return nil, fmt.Errorf("encode access data: %w", err)
	}
	var lead *models.Lead
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := `UPDATE leads SET first_access_at = COALESCE(first_access_at, $2), last_access_at = $2, updated_at = NOW()
			WHERE id = $1 RETURNING ` + leadColumns
		l, err := scanLead(tx.QueryRow(ctx, q, leadID, now))
		if err != nil {
			return err
		}
		lead = l
		return events.Insert(ctx, tx, &models.LeadEvent{
			LeadID:    leadID,
			EventType: models.EventWebinarAccessed,
			Data:      data,
		})
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// Create inserts a lead and its LEAD_REGISTERED event atomically. The
// (webinar, email) conflict is decided by the insert itself.
func (r *Repository) Create(ctx context.Context, in NewLead, now time.Time) (*models.Lead, error) {
	data, err := registeredData(in)
	if err != nil {
		return nil, err
	}
	var lead *models.Lead
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := `INSERT INTO leads (webinar_id, email, name, phone, access_token, first_access_at, last_access_at,
				utm_source, utm_medium, utm_campaign, external_campaign_id)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
			ON CONFLICT (webinar_id, email) DO NOTHING
			RETURNING ` + leadColumns
		var stamp *time.Time
		if in.StampAccess {
			stamp = &now
		}
		l, err := scanLead(tx.QueryRow(ctx, q, in.WebinarID, in.Email, in.Name, in.Phone, in.AccessToken, stamp,
			in.UTM.Source, in.UTM.Medium, in.UTM.Campaign, in.ExternalCampaignID))
		if errors.Is(err, ErrLeadNotFound) {
			return ErrLeadExists
		}
		if err != nil {
			return err
		}
		lead = l
		return events.Insert(ctx, tx, &models.LeadEvent{LeadID: l.ID, EventType: models.EventLeadRegistered, Data: data})
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// Upsert creates the lead or refreshes it in one statement. Empty incoming
// fields keep the stored value; the access token is always replaced. The
// LEAD_REGISTERED event is appended only when the row was inserted.
func (r *Repository) Upsert(ctx context.Context, in NewLead, now time.Time) (*models.Lead, bool, error) {
	data, err := registeredData(in)
	if err != nil {
		return nil, false, err
	}
	var (
		lead     *models.Lead
		inserted bool
	)
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := `INSERT INTO leads (webinar_id, email, name, phone, access_token, first_access_at, last_access_at,
				utm_source, utm_medium, utm_campaign, external_campaign_id)
			VALUES ($1, $2, COALESCE(NULLIF($3, ''), split_part($2, '@', 1)), NULLIF($4, ''), $5, $6, $6,
				NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
			ON CONFLICT (webinar_id, email) DO UPDATE SET
				name = COALESCE(NULLIF($3, ''), leads.name),
				phone = COALESCE(NULLIF($4, ''), leads.phone),
				access_token = EXCLUDED.access_token,
				utm_source = COALESCE(NULLIF($7, ''), leads.utm_source),
				utm_medium = COALESCE(NULLIF($8, ''), leads.utm_medium),
				utm_campaign = COALESCE(NULLIF($9, ''), leads.utm_campaign),
				external_campaign_id = COALESCE(NULLIF($10, ''), leads.external_campaign_id),
				updated_at = NOW()
			RETURNING ` + leadColumns + `, (xmax = 0)`
		var stamp *time.Time
		if in.StampAccess {
			stamp = &now
		}
		l, err := scanLead(tx.QueryRow(ctx, q, in.WebinarID, in.Email, in.Name, in.Phone, in.AccessToken, stamp,
			in.UTM.Source, in.UTM.Medium, in.UTM.Campaign, in.ExternalCampaignID), &inserted)
		if err != nil {
			return err
		}
		lead = l
		if !inserted {
			return nil
		}
		return events.Insert(ctx, tx, &models.LeadEvent{LeadID: l.ID, EventType: models.EventLeadRegistered, Data: data})
	})
	if err != nil {
		return nil, false, err
	}
	return lead, inserted, nil
}

// ListByWebinar returns a page of a webinar's leads, newest first.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID uuid.UUID, limit, offset int) ([]models.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE webinar_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, webinarID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

func registeredData(in NewLead) ([]byte, error) {
	payload := map[string]string{"source": in.Source}
	if in.UTM.Source != "" {
		payload["utm_source"] = in.UTM.Source
	}
	if in.UTM.Medium != "" {
		payload["utm_medium"] = in.UTM.Medium
	}
	if in.UTM.Campaign != "" {
		payload["utm_campaign"] = in.UTM.Campaign
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode registration data: %w", err)
	}
	return data, nil
}
