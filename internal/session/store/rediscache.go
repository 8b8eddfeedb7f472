package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"namegate/internal/session/models"
	id "namegate/pkg/domain"
)

// Store is the session persistence port the cache decorates.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error)
	RevokeActiveByUser(ctx context.Context, userID id.UserID, clientID *id.ClientID, now time.Time) (int, error)
}

const cacheKeyPrefix = "namegate:session:"

// CachedStore layers a Redis lookaside cache over a session store. Token
// lookups are the hot path (every Resolve); everything else passes through.
// Cache failures degrade to the backing store, never to an error.
type CachedStore struct {
	backing Store
	redis   redis.Cmdable
	logger  *slog.Logger
	ttl     time.Duration
}

func NewCached(backing Store, rdb redis.Cmdable, logger *slog.Logger, ttl time.Duration) *CachedStore {
	return &CachedStore{backing: backing, redis: rdb, logger: logger, ttl: ttl}
}

type cachedSession struct {
	Session models.Session `json:"session"`
	Token   string         `json:"token"`
}

func (s *CachedStore) Create(ctx context.Context, session *models.Session) error {
	if err := s.backing.Create(ctx, session); err != nil {
		return err
	}
	s.set(ctx, session)
	return nil
}

func (s *CachedStore) Update(ctx context.Context, session *models.Session) error {
	if err := s.backing.Update(ctx, session); err != nil {
		return err
	}
	s.set(ctx, session)
	return nil
}

func (s *CachedStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	raw, err := s.redis.Get(ctx, cacheKeyPrefix+token).Result()
	if err == nil {
		var cached cachedSession
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			cached.Session.Token = cached.Token
			return &cached.Session, nil
		}
		// poisoned entry: fall through to the store and rewrite
	} else if !errors.Is(err, redis.Nil) && s.logger != nil {
		s.logger.WarnContext(ctx, "session cache read failed", "error", err)
	}

	session, err := s.backing.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.set(ctx, session)
	return session, nil
}

func (s *CachedStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error) {
	return s.backing.ListByUser(ctx, userID)
}

// RevokeActiveByUser passes through and then drops the user's cached tokens,
// so a revoked session cannot be resolved from the cache.
func (s *CachedStore) RevokeActiveByUser(ctx context.Context, userID id.UserID, clientID *id.ClientID, now time.Time) (int, error) {
	n, err := s.backing.RevokeActiveByUser(ctx, userID, clientID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidateUser(ctx, userID)
	}
	return n, nil
}

func (s *CachedStore) set(ctx context.Context, session *models.Session) {
	ttl := time.Until(session.ExpiresAt)
	if s.ttl > 0 && s.ttl < ttl {
		ttl = s.ttl
	}
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(cachedSession{Session: *session, Token: session.Token})
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKeyPrefix+session.Token, payload, ttl).Err(); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "session cache write failed", "error", err)
	}
}

func (s *CachedStore) invalidateUser(ctx context.Context, userID id.UserID) {
	sessions, err := s.backing.ListByUser(ctx, userID)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "session cache invalidation skipped", "error", err)
		}
		return
	}
	keys := make([]string, 0, len(sessions))
	for _, session := range sessions {
		keys = append(keys, cacheKeyPrefix+session.Token)
	}
	if len(keys) == 0 {
		return
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "session cache invalidation failed", "error", err)
	}
}
