package auth

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
)

// RedisInterface defines the Redis operations needed for credential storage.
// It abstracts the Redis client so tests can substitute a mock and the
// wrapper in internal/redis stays swappable.
type RedisInterface interface {
	// Get retrieves a value by key from Redis
	Get(ctx context.Context, key string) (string, error)
	// Set stores a key-value pair in Redis with optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Delete removes a key from Redis
	Delete(ctx context.Context, key string) error
}

// RedisTokenStore persists the credential in Redis so multiple hosts can
// share one MYOB connection. The entry expires on its own once the refresh
// token is long dead.
type RedisTokenStore struct {
	client RedisInterface
	key    string
	ttl    time.Duration
}

// NewRedisTokenStore creates a Redis-backed credential store with the
// default key "myob:credential" and a 30 day ceiling TTL.
func NewRedisTokenStore(client RedisInterface) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		key:    "myob:credential",
		ttl:    30 * 24 * time.Hour,
	}
}

// Save serializes the credential to JSON and stores it with a TTL of the
// access token expiry plus a 24 hour buffer, capped at the default ceiling.
// The buffer keeps the refresh token available well past access expiry.
func (s *RedisTokenStore) Save(ctx context.Context, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return errors.InternalError("failed to serialize credential", err)
	}

	ttl := s.ttl
	if !cred.Expiry.IsZero() {
		credTTL := time.Until(cred.Expiry) + 24*time.Hour
		if credTTL > 0 && credTTL < ttl {
			ttl = credTTL
		}
	}

	if err := s.client.Set(ctx, s.key, string(data), ttl); err != nil {
		return errors.ConnectionError("failed to store credential in Redis", err)
	}
	return nil
}

// Load retrieves the credential from Redis. Expired or missing entries
// return nil without error.
func (s *RedisTokenStore) Load(ctx context.Context) (*Credential, error) {
	data, err := s.client.Get(ctx, s.key)
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, errors.ConnectionError("failed to load credential from Redis", err)
	}

	if data == "" {
		return nil, nil
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, errors.InternalError("stored credential is corrupt", err)
	}

	return &cred, nil
}

// Delete removes the credential from Redis. Idempotent.
func (s *RedisTokenStore) Delete(ctx context.Context) error {
	if err := s.client.Delete(ctx, s.key); err != nil {
		return errors.ConnectionError("failed to delete credential from Redis", err)
	}
	return nil
}
