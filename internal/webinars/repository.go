package webinars

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/database"
)

var (
	// ErrWebinarNotFound is returned when no webinar matches the id or slug.
	ErrWebinarNotFound = errors.New("webinar not found")
	// ErrLessonNotFound is returned when no lesson matches within the webinar.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrReorderMismatch is returned when a reorder request does not list every lesson exactly once.
	ErrReorderMismatch = errors.New("lesson ids do not match the webinar's lessons")
)

// Repository reads webinar and lesson configuration. Lessons are written by
// the admin back office; the only mutation here is reordering.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webinar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const webinarColumns = `id, slug, name, COALESCE(description, ''), status, COALESCE(logo_url, ''),
	COALESCE(banner_url, ''), COALESCE(primary_color, ''), COALESCE(event_webhook_url, ''), created_at, updated_at`

const lessonColumns = `id, webinar_id, slug, title, COALESCE(description, ''), video_url, video_duration,
	COALESCE(thumbnail_url, ''), position, is_active, release_type, release_at, release_after_hours,
	offer_url, offer_button_text, offer_show_at, created_at, updated_at`

func scanWebinar(row pgx.Row) (*models.Webinar, error) {
	var w models.Webinar
	err := row.Scan(&w.ID, &w.Slug, &w.Name, &w.Description, &w.Status, &w.LogoURL,
		&w.BannerURL, &w.PrimaryColor, &w.EventWebhookURL, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWebinarNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanLesson(row pgx.Row) (*models.Lesson, error) {
	var (
		l                 models.Lesson
		releaseType       string
		releaseAt         *time.Time
		releaseAfterHours *int
		offerURL          *string
		offerText         *string
		offerShowAt       *int
	)
	err := row.Scan(&l.ID, &l.WebinarID, &l.Slug, &l.Title, &l.Description, &l.VideoURL, &l.VideoDuration,
		&l.ThumbnailURL, &l.Position, &l.IsActive, &releaseType, &releaseAt, &releaseAfterHours,
		&offerURL, &offerText, &offerShowAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	policy, err := models.NewReleasePolicy(releaseType, releaseAt, releaseAfterHours)
	if err != nil {
		return nil, fmt.Errorf("lesson %s: %w", l.ID, err)
	}
	l.Release = policy
	if offerURL != nil && *offerURL != "" {
		l.Offer = &models.Offer{URL: *offerURL, ShowAt: offerShowAt}
		if offerText != nil {
			l.Offer.ButtonText = *offerText
		}
	}
	return &l, nil
}

// GetByID returns a webinar by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	q := `SELECT ` + webinarColumns + ` FROM webinars WHERE id = $1`
	return scanWebinar(r.pool.QueryRow(ctx, q, id))
}

// GetBySlug returns a webinar by its public slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Webinar, error) {
	q := `SELECT ` + webinarColumns + ` FROM webinars WHERE slug = $1`
	return scanWebinar(r.pool.QueryRow(ctx, q, slug))
}

// ListLessons returns every lesson of a webinar, active or not, ordered by position.
func (r *Repository) ListLessons(ctx context.Context, webinarID uuid.UUID) ([]models.Lesson, error) {
	q := `SELECT ` + lessonColumns + ` FROM lessons WHERE webinar_id = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

// GetLesson returns a lesson by id, scoped to its webinar.
func (r *Repository) GetLesson(ctx context.Context, webinarID, lessonID uuid.UUID) (*models.Lesson, error) {
	q := `SELECT ` + lessonColumns + ` FROM lessons WHERE webinar_id = $1 AND id = $2`
	l, err := scanLesson(r.pool.QueryRow(ctx, q, webinarID, lessonID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLessonNotFound
	}
	return l, err
}

// ReorderLessons renumbers a webinar's lessons 0..n-1 in the given order.
// orderedIDs must contain every lesson of the webinar exactly once.
func (r *Repository) ReorderLessons(ctx context.Context, webinarID uuid.UUID, orderedIDs []uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM lessons WHERE webinar_id = $1 FOR UPDATE`, webinarID)
		if err != nil {
			return err
		}
		existing := make(map[uuid.UUID]bool)
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			existing[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !sameLessonSet(existing, orderedIDs) {
			return ErrReorderMismatch
		}

		// position uniqueness is deferred to commit, so intermediate duplicates are fine
		const q = `UPDATE lessons SET position = $1, updated_at = NOW() WHERE id = $2 AND webinar_id = $3`
		batch := &pgx.Batch{}
		for i, id := range orderedIDs {
			batch.Queue(q, i, id, webinarID)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func sameLessonSet(existing map[uuid.UUID]bool, ordered []uuid.UUID) bool {
	if len(existing) != len(ordered) {
		return false
	}
	seen := make(map[uuid.UUID]bool, len(ordered))
	for _, id := range ordered {
		if !existing[id] || seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}
