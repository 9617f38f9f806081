// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
)

// # Session Cache

// RedisSessionCache implements SessionCache on Redis. It keeps a JSON snapshot
// of each active session keyed by token hash, so the per-request session check
// usually skips Postgres entirely. The cache entry TTL mirrors the session's
// sliding deadline.
type RedisSessionCache struct {
	client *redis.Client
}

// NewSessionCache creates a new Redis-backed SessionCache.
func NewSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

func sessionKey(tokenHash string) string {
	return fmt.Sprintf("auth:session:%s", tokenHash)
}

/*
Put stores a session snapshot under its token hash.

Description: The entry expires when the session would, so a cache hit is always
a live session.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Serialization or storage failures
*/
func (cache *RedisSessionCache) Put(context context.Context, session *Session) error {

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis_session_cache_encode_failed: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := cache.client.Set(context, sessionKey(session.TokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis_session_cache_set_failed: %w", err)
	}

	return nil
}

/*
Get retrieves the cached session for a token hash.

Description: A miss returns (nil, nil); the caller falls through to Postgres.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Cached snapshot, or nil on a miss
  - error: Connectivity failures
*/
func (cache *RedisSessionCache) Get(context context.Context, tokenHash string) (*Session, error) {

	payload, err := cache.client.Get(context, sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis_session_cache_get_failed: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal(payload, session); err != nil {
		return nil, fmt.Errorf("redis_session_cache_decode_failed: %w", err)
	}

	return session, nil
}

/*
Drop evicts the cached session for a token hash.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - error: Eviction failures
*/
func (cache *RedisSessionCache) Drop(context context.Context, tokenHash string) error {
	if err := cache.client.Del(context, sessionKey(tokenHash)).Err(); err != nil {
		return fmt.Errorf("redis_session_cache_drop_failed: %w", err)
	}
	return nil
}

// # Reset Token Repository

// RedisResetTokenRepository implements ResetTokenRepository using Redis.
type RedisResetTokenRepository struct {
	client *redis.Client
}

// NewResetTokenRepository creates a new Redis-backed ResetTokenRepository.
func NewResetTokenRepository(client *redis.Client) *RedisResetTokenRepository {
	return &RedisResetTokenRepository{client: client}
}

/*
Set stores a reset token with its associated accountID and TTL.

Parameters:
  - context: context.Context
  - token: string
  - accountID: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisResetTokenRepository) Set(context context.Context, token string, accountID string, ttl time.Duration) error {

	key := fmt.Sprintf("auth:reset_token:%s", token)

	if err := repository.client.Set(context, key, accountID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_set_failed: %w", err)
	}

	return nil
}

/*
Get retrieves the accountID for a given token.

Description: Returns apperr.NotFound if the token is absent or expired.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - string: Original AccountID
  - error: apperr.NotFound or connectivity errors
*/
func (repository *RedisResetTokenRepository) Get(context context.Context, token string) (string, error) {

	key := fmt.Sprintf("auth:reset_token:%s", token)

	accountID, err := repository.client.Get(context, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("Reset token is invalid or expired")
		}
		return "", fmt.Errorf("redis_reset_token_get_failed: %w", err)
	}

	return accountID, nil
}

/*
Delete removes the token from Redis.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisResetTokenRepository) Delete(context context.Context, token string) error {

	key := fmt.Sprintf("auth:reset_token:%s", token)

	if err := repository.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_delete_failed: %w", err)
	}

	return nil
}
