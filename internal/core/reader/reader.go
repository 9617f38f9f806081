// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
Package reader implements the chapter read path.

It resolves a (series, chapter) pair, enforces visibility at every level the
catalog carries it, and derives the ordered page URLs deterministically from
the chapter's authoritative page count — storage is never re-listed on read.
A short-TTL Redis cache short-circuits repeat reads of public chapters.

Architecture:

  - Visibility: series, chapter, and release flags are checked
    independently; the non-transactional reconciliation means they are not
    guaranteed to agree, and any private flag blocks non-staff callers.
  - Cache: only all-public payloads are stored, keyed by (nick, chapterNo),
    purged by the ingest/edit invalidation hooks.
*/
package reader

import (
	"context"
	"log/slog"

	"github.com/tankobonhq/tankobon/internal/core/series"
	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/storage/blob"
)

// SeriesDetails is the series summary embedded in a chapter view.
type SeriesDetails struct {
	UID       string `json:"id"`
	Nick      string `json:"nick"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Thumbnail string `json:"thumbnail"`
}

// ChapterView is the rendered payload of one chapter read.
type ChapterView struct {
	Series    SeriesDetails `json:"series_details"`
	ChapterNo string        `json:"chapter_no"`
	Name      string        `json:"name"`
	PageCount int           `json:"page_count"`
	Pages     []string      `json:"pages"`
}

// # Service Layer

// ViewCache is the read-through cache over rendered chapter views.
// [Cache] satisfies it; a nil cache disables caching.
type ViewCache interface {
	Get(ctx context.Context, nick, chapterNo string) *ChapterView
	Set(ctx context.Context, nick, chapterNo string, view *ChapterView)
}

// Service resolves and renders chapter reads.
type Service struct {
	catalog  series.Repository
	releases series.ReleaseRepository
	store    blob.Store
	cache    ViewCache
	logger   *slog.Logger
}

// NewService constructs the read-path [Service].
func NewService(catalog series.Repository, releases series.ReleaseRepository, store blob.Store, cache ViewCache, logger *slog.Logger) *Service {
	return &Service{
		catalog:  catalog,
		releases: releases,
		store:    store,
		cache:    cache,
		logger:   logger,
	}
}

/*
GetChapter renders one chapter for reading.

Description: Visibility is enforced independently at the series, chapter,
and release level — any private flag blocks non-staff callers, because the
three sources are only eventually consistent. Public chapters are served
from the read-through cache when possible; on a miss the page URLs are
derived from the chapter's authoritative pageCount, 1-indexed.

Parameters:
  - context: context.Context
  - identifier: string (Series UID or nick)
  - nick: string (Slug from the URL, used for cache keys and page paths)
  - chapterNo: string (Opaque chapter key, matched exactly)
  - viewerIsStaff: bool

Returns:
  - *ChapterView: Series summary plus ordered page URLs
  - error: apperr.NotFound / apperr.Forbidden
*/
func (service *Service) GetChapter(context context.Context, identifier, nick, chapterNo string, viewerIsStaff bool) (*ChapterView, error) {

	// Cached payloads are always fully public, safe for any caller.
	if service.cache != nil {
		if cached := service.cache.Get(context, nick, chapterNo); cached != nil {
			return cached, nil
		}
	}

	entity, err := service.resolve(context, identifier, nick)
	if err != nil {
		return nil, err
	}

	chapter, err := service.catalog.FindChapter(context, entity.ID, chapterNo)
	if err != nil {
		return nil, err
	}

	release, err := service.releases.FindBySeriesChapter(context, entity.ID, chapterNo)
	if err != nil {
		return nil, err
	}

	allPublic := entity.Visibility == series.VisibilityPublic &&
		chapter.Visibility == series.VisibilityPublic &&
		(release == nil || release.Visibility == series.VisibilityPublic)

	if !allPublic && !viewerIsStaff {
		return nil, apperr.Forbidden("This chapter is not public")
	}

	if chapter.PageCount < 1 {
		return nil, apperr.NotFound("Chapter")
	}

	// Pages derive from the authoritative count, never from re-listing.
	pages := make([]string, 0, chapter.PageCount)
	for page := 1; page <= chapter.PageCount; page++ {
		url, err := service.store.PublicURL(context, blob.PageKey(entity.Nick, chapterNo, page))
		if err != nil {
			return nil, err
		}
		pages = append(pages, url)
	}

	view := &ChapterView{
		Series: SeriesDetails{
			UID:       entity.UID,
			Nick:      entity.Nick,
			Title:     entity.Title,
			Author:    entity.Author,
			Thumbnail: entity.Thumbnail,
		},
		ChapterNo: chapter.ChapterNo,
		Name:      chapter.Name,
		PageCount: chapter.PageCount,
		Pages:     pages,
	}

	if allPublic && service.cache != nil {
		service.cache.Set(context, entity.Nick, chapterNo, view)
	}

	service.logger.Info("chapter_read",
		slog.String("nick", entity.Nick),
		slog.String("chapter_no", chapterNo),
		slog.Int("pages", chapter.PageCount),
	)

	return view, nil
}

// resolve prefers the UID identifier and falls back to the URL nick, so
// stale bookmarks with a renamed series code still resolve.
func (service *Service) resolve(context context.Context, identifier, nick string) (*series.Series, error) {
	entity, err := service.catalog.FindByUID(context, identifier)
	if err == nil {
		return entity, nil
	}

	if ae := apperr.As(err); ae != nil && ae.HTTPStatus == 404 {
		return service.catalog.FindByNick(context, nick)
	}

	return nil, err
}
