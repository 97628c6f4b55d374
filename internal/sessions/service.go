// Package sessions binds an opaque browser key to a lead within one webinar.
//
// The browser carries only the key (cookie or header). The server owns the
// (browser key, webinar) -> lead mapping, so logout can be scoped to a single
// webinar or swept across every webinar the key is bound in.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/metrics"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/pkg/apperr"
	"github.com/aura-webinar/funnel/pkg/utils"
)

// BrowserKeyBytes is the entropy of a freshly minted browser key.
const BrowserKeyBytes = 32

// Store is the durable side of session bindings.
type Store interface {
	Upsert(ctx context.Context, browserKey string, webinarID, leadID uuid.UUID, expiresAt time.Time) (*models.LeadSession, error)
	Get(ctx context.Context, browserKey string, webinarID uuid.UUID) (*models.LeadSession, error)
	Delete(ctx context.Context, browserKey string, webinarID uuid.UUID) error
	DeleteAll(ctx context.Context, browserKey string) ([]uuid.UUID, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cache is an optional read-through copy of bindings. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, browserKey string, webinarID uuid.UUID) (*models.LeadSession, error)
	Set(ctx context.Context, s *models.LeadSession, ttl time.Duration) error
	Delete(ctx context.Context, browserKey string, webinarIDs ...uuid.UUID) error
}

// Service issues, resolves and revokes session bindings.
type Service struct {
	store    Store
	cache    Cache
	ttl      time.Duration
	cacheTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a session service. cache may be nil.
func NewService(store Store, cache Cache, ttl, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cache: cache, ttl: ttl, cacheTTL: cacheTTL, now: time.Now, logger: logger}
}

// TTL is how long an issued binding stays valid.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue binds browserKey to leadID in webinarID for the configured TTL. An
// empty browserKey mints a new one, returned on the binding.
func (s *Service) Issue(ctx context.Context, browserKey string, webinarID, leadID uuid.UUID) (*models.LeadSession, error) {
	if browserKey == "" {
		key, err := utils.GenerateToken(BrowserKeyBytes)
		if err != nil {
			return nil, apperr.Internal("mint browser key", err)
		}
		browserKey = key
	}
	sess, err := s.store.Upsert(ctx, browserKey, webinarID, leadID, s.now().Add(s.ttl))
	if err != nil {
		return nil, apperr.Internal("store session", err)
	}
	s.remember(ctx, sess)
	return sess, nil
}

// Resolve returns the live binding for browserKey in webinarID.
func (s *Service) Resolve(ctx context.Context, browserKey string, webinarID uuid.UUID) (*models.LeadSession, error) {
	if browserKey == "" {
		return nil, apperr.Unauthenticated("session required")
	}
	now := s.now()
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, browserKey, webinarID)
		if err != nil {
			s.logger.Warn("session cache read failed", zap.Error(err))
		}
		if cached != nil && !cached.Expired(now) {
			metrics.SessionCacheHits.Inc()
			return cached, nil
		}
		metrics.SessionCacheMisses.Inc()
	}

	sess, err := s.store.Get(ctx, browserKey, webinarID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apperr.Unauthenticated("session required")
	}
	if err != nil {
		return nil, apperr.Internal("load session", err)
	}
	if sess.Expired(now) {
		return nil, apperr.Unauthenticated("session expired")
	}
	s.remember(ctx, sess)
	return sess, nil
}

// Revoke drops the binding for webinarID, or every binding of browserKey when webinarID is nil.
func (s *Service) Revoke(ctx context.Context, browserKey string, webinarID *uuid.UUID) error {
	if browserKey == "" {
		return nil
	}
	var cleared []uuid.UUID
	if webinarID != nil {
		if err := s.store.Delete(ctx, browserKey, *webinarID); err != nil {
			return apperr.Internal("delete session", err)
		}
		cleared = []uuid.UUID{*webinarID}
	} else {
		ids, err := s.store.DeleteAll(ctx, browserKey)
		if err != nil {
			return apperr.Internal("delete sessions", err)
		}
		cleared = ids
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, browserKey, cleared...); err != nil {
			s.logger.Warn("session cache delete failed", zap.Error(err))
		}
	}
	return nil
}

// Sweep deletes expired bindings and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.SessionsSwept.Add(float64(n))
	return n, nil
}

func (s *Service) remember(ctx context.Context, sess *models.LeadSession) {
	if s.cache == nil {
		return
	}
	ttl := s.cacheTTL
	if left := sess.ExpiresAt.Sub(s.now()); left < ttl {
		ttl = left
	}
	if err := s.cache.Set(ctx, sess, ttl); err != nil {
		s.logger.Warn("session cache write failed", zap.Error(err))
	}
}
