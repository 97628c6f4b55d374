package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aura-webinar/funnel/internal/models"
)

const cacheKeyPrefix = "lead_session:"

// RedisCache keeps a short-lived copy of session bindings so authenticated
// telemetry calls skip Postgres.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed session cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

type cachedSession struct {
	ID        uuid.UUID `json:"id"`
	LeadID    uuid.UUID `json:"lead_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func cacheKey(browserKey string, webinarID uuid.UUID) string {
	return cacheKeyPrefix + browserKey + ":" + webinarID.String()
}

// Get returns the cached binding, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, browserKey string, webinarID uuid.UUID) (*models.LeadSession, error) {
	raw, err := c.client.Get(ctx, cacheKey(browserKey, webinarID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cs cachedSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("decode cached session: %w", err)
	}
	return &models.LeadSession{
		ID:         cs.ID,
		BrowserKey: browserKey,
		WebinarID:  webinarID,
		LeadID:     cs.LeadID,
		ExpiresAt:  cs.ExpiresAt,
		CreatedAt:  cs.CreatedAt,
	}, nil
}

// Set stores s for ttl.
func (c *RedisCache) Set(ctx context.Context, s *models.LeadSession, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(cachedSession{ID: s.ID, LeadID: s.LeadID, ExpiresAt: s.ExpiresAt, CreatedAt: s.CreatedAt})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(s.BrowserKey, s.WebinarID), raw, ttl).Err()
}

// Delete drops the cached bindings of browserKey for the given webinars.
func (c *RedisCache) Delete(ctx context.Context, browserKey string, webinarIDs ...uuid.UUID) error {
	if len(webinarIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(webinarIDs))
	for _, id := range webinarIDs {
		keys = append(keys, cacheKey(browserKey, id))
	}
	return c.client.Del(ctx, keys...).Err()
}
