package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/authsvc/internal/models"
)

const maxWatchRetries = 16

// RedisSessions keeps refresh sessions in redis: one key per user holding the token digest,
// plus one hash per digest pointing back at the user. Both expire with the token.
type RedisSessions struct {
	Client *redis.Client
	Prefix string
}

func NewRedisSessions(client *redis.Client) *RedisSessions {
	return &RedisSessions{Client: client, Prefix: "authsvc:session:"}
}

func (s *RedisSessions) userKey(userID uuid.UUID) string { return s.Prefix + "user:" + userID.String() }
func (s *RedisSessions) tokenKey(hash string) string     { return s.Prefix + "token:" + hash }

func (s *RedisSessions) UpsertSession(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) error {
	userKey := s.userKey(userID)
	hash := TokenHash(refreshToken)

	return s.watch(ctx, func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		return s.write(ctx, tx, userID, old, hash, expiresAt)
	}, userKey)
}

func (s *RedisSessions) RotateSession(ctx context.Context, userID uuid.UUID, oldToken, newToken string, expiresAt time.Time) error {
	userKey := s.userKey(userID)
	oldHash := TokenHash(oldToken)

	return s.watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, userKey).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current != oldHash {
			return ErrNotFound
		}
		return s.write(ctx, tx, userID, oldHash, TokenHash(newToken), expiresAt)
	}, userKey)
}

func (s *RedisSessions) write(ctx context.Context, tx *redis.Tx, userID uuid.UUID, oldHash, newHash string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redis session: expiry %s is in the past", expiresAt)
	}

	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if oldHash != "" && oldHash != newHash {
			pipe.Del(ctx, s.tokenKey(oldHash))
		}
		pipe.Set(ctx, s.userKey(userID), newHash, ttl)
		pipe.HSet(ctx, s.tokenKey(newHash), "user_id", userID.String(), "expires_at", expiresAt.Unix())
		pipe.Expire(ctx, s.tokenKey(newHash), ttl)
		return nil
	})
	return err
}

func (s *RedisSessions) FindSessionByToken(ctx context.Context, refreshToken string) (*models.RefreshSession, error) {
	hash := TokenHash(refreshToken)

	vals, err := s.Client.HGetAll(ctx, s.tokenKey(hash)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	userID, err := uuid.Parse(vals["user_id"])
	if err != nil {
		return nil, fmt.Errorf("redis session: bad user_id: %w", err)
	}
	exp, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis session: bad expires_at: %w", err)
	}

	current, err := s.Client.Get(ctx, s.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && current != hash) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &models.RefreshSession{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: time.Unix(exp, 0).UTC(),
	}, nil
}

func (s *RedisSessions) DeleteSessionByToken(ctx context.Context, refreshToken string) (int64, error) {
	hash := TokenHash(refreshToken)
	tokenKey := s.tokenKey(hash)

	uid, err := s.Client.HGet(ctx, tokenKey, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	userID, err := uuid.Parse(uid)
	if err != nil {
		return 0, fmt.Errorf("redis session: bad user_id: %w", err)
	}
	userKey := s.userKey(userID)

	var removed int64
	err = s.watch(ctx, func(tx *redis.Tx) error {
		removed = 0
		current, err := tx.Get(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != hash {
			// Superseded: only the stale reverse entry is left.
			return tx.Del(ctx, tokenKey).Err()
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, tokenKey)
			pipe.Del(ctx, userKey)
			return nil
		})
		if err == nil {
			removed = 1
		}
		return err
	}, userKey, tokenKey)
	return removed, err
}

func (s *RedisSessions) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.Client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis session: %w after %d attempts", redis.TxFailedErr, maxWatchRetries)
}
