// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package reader

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tankobonhq/tankobon/internal/platform/constants"
)

// # Chapter View Cache

// Cache is the short-TTL read-through cache over rendered chapter views.
//
// Only fully public payloads are ever stored, so a cache hit can be served
// to any caller without re-checking visibility. Entries are purged on every
// reconcile and chapter edit; the TTL is just the backstop.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache wraps a Redis client for chapter view caching.
func NewCache(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// key builds the cache key for one chapter view. The nick is lowercased so
// mixed-case request paths share one entry.
func (cache *Cache) key(nick, chapterNo string) string {
	return constants.RedisPrefixChapter + strings.ToLower(nick) + ":" + chapterNo
}

// Get returns the cached view, or nil on miss. Cache failures degrade to a
// miss; the read path must keep working without Redis.
func (cache *Cache) Get(ctx context.Context, nick, chapterNo string) *ChapterView {
	payload, err := cache.client.Get(ctx, cache.key(nick, chapterNo)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			cache.logger.Warn("chapter_cache_read_failed", slog.String("error", err.Error()))
		}
		return nil
	}

	view := &ChapterView{}
	if err := json.Unmarshal(payload, view); err != nil {
		cache.logger.Warn("chapter_cache_decode_failed", slog.String("error", err.Error()))
		return nil
	}

	return view
}

// Set stores one rendered view under the chapter TTL.
func (cache *Cache) Set(ctx context.Context, nick, chapterNo string, view *ChapterView) {
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}

	if err := cache.client.Set(ctx, cache.key(nick, chapterNo), payload, constants.ChapterCacheTTL).Err(); err != nil {
		cache.logger.Warn("chapter_cache_write_failed", slog.String("error", err.Error()))
	}
}

// InvalidateChapter purges one chapter's cached view. It satisfies the
// cache-invalidation hooks of the catalog and ingest services.
func (cache *Cache) InvalidateChapter(ctx context.Context, nick, chapterNo string) {
	if err := cache.client.Del(ctx, cache.key(nick, chapterNo)).Err(); err != nil {
		cache.logger.Warn("chapter_cache_purge_failed",
			slog.String("nick", nick),
			slog.String("chapter_no", chapterNo),
			slog.String("error", err.Error()),
		)
	}
}
