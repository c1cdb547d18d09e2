package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/intellitest/server/internal/model"
)

const (
	refreshTokenKeyPrefix = "refresh:token:"
	refreshUserKeyPrefix  = "refresh:user:"
)

// redisRefreshRecord is the stored JSON payload for one refresh token
type redisRefreshRecord struct {
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// replaceScript drops the user's previous token record (if any) and
// installs the new one. Runs atomically server-side.
// KEYS[1] = user pointer key
// ARGV[1] = new jti, ARGV[2] = record JSON, ARGV[3] = TTL millis, ARGV[4] = token key prefix
var replaceScript = redis.NewScript(`
local prev = redis.call("GET", KEYS[1])
if prev then
  redis.call("DEL", ARGV[4] .. prev)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", ARGV[4] .. ARGV[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// consumeScript returns the record JSON and deletes it together with the
// user pointer, so only one concurrent caller ever sees the record.
// KEYS[1] = token key
// ARGV[1] = user key prefix, ARGV[2] = jti
var consumeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
  return false
end
redis.call("DEL", KEYS[1])
local rec = cjson.decode(v)
local userKey = ARGV[1] .. rec["user_id"]
if redis.call("GET", userKey) == ARGV[2] then
  redis.call("DEL", userKey)
end
return v
`)

type redisRefreshRepo struct {
	client *redis.Client
}

// NewRedisRefreshRepo creates a Redis-backed RefreshRepo. Key TTLs track
// the record expiry, so stale records vanish without a sweep.
func NewRedisRefreshRepo(client *redis.Client) RefreshRepo {
	return &redisRefreshRepo{client: client}
}

func (r *redisRefreshRepo) Replace(ctx context.Context, rec model.RefreshToken) error {
	payload, err := json.Marshal(redisRefreshRecord{
		UserID:    rec.UserID.String(),
		Token:     rec.Token,
		ExpiresAt: rec.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Millisecond
	}

	userKey := refreshUserKeyPrefix + rec.UserID.String()
	err = replaceScript.Run(ctx, r.client,
		[]string{userKey},
		rec.ID.String(), string(payload), ttl.Milliseconds(), refreshTokenKeyPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("replace refresh token: %w", err)
	}
	return nil
}

func (r *redisRefreshRepo) FindByID(ctx context.Context, jti uuid.UUID) (model.RefreshToken, error) {
	val, err := r.client.Get(ctx, refreshTokenKeyPrefix+jti.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}
	return decodeRefreshRecord(jti, val)
}

func (r *redisRefreshRepo) Consume(ctx context.Context, jti uuid.UUID) (model.RefreshToken, error) {
	val, err := consumeScript.Run(ctx, r.client,
		[]string{refreshTokenKeyPrefix + jti.String()},
		refreshUserKeyPrefix, jti.String(),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("consume refresh token: %w", err)
	}
	return decodeRefreshRecord(jti, val)
}

func (r *redisRefreshRepo) Delete(ctx context.Context, jti uuid.UUID) error {
	_, err := r.Consume(ctx, jti)
	return err
}

func decodeRefreshRecord(jti uuid.UUID, val string) (model.RefreshToken, error) {
	var stored redisRefreshRecord
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return model.RefreshToken{}, fmt.Errorf("unmarshal refresh record: %w", err)
	}
	userID, err := uuid.Parse(stored.UserID)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("parse user ID: %w", err)
	}
	return model.RefreshToken{
		ID:        jti,
		UserID:    userID,
		Token:     stored.Token,
		ExpiresAt: time.Unix(stored.ExpiresAt, 0),
	}, nil
}
