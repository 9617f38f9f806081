// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package reader_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tankobonhq/tankobon/internal/core/reader"
	"github.com/tankobonhq/tankobon/internal/core/series"
	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/storage/blob"
)

// # Test Stubs

// catalogStub is a minimal series.Repository; handlers left nil panic so a
// test cannot silently depend on a call it never configured.
type catalogStub struct {
	findByUID   func(uid string) (*series.Series, error)
	findByNick  func(nick string) (*series.Series, error)
	findChapter func(seriesID, chapterNo string) (*series.Chapter, error)
}

func (stub *catalogStub) Create(ctx context.Context, entity *series.Series) error { panic("unused") }

func (stub *catalogStub) FindByUID(ctx context.Context, uid string) (*series.Series, error) {
	return stub.findByUID(uid)
}

func (stub *catalogStub) FindByNick(ctx context.Context, nick string) (*series.Series, error) {
	return stub.findByNick(nick)
}

func (stub *catalogStub) List(ctx context.Context, includePrivate bool, limit, offset int) ([]*series.Series, int, error) {
	panic("unused")
}

func (stub *catalogStub) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	panic("unused")
}

func (stub *catalogStub) AddStats(ctx context.Context, id string, views, likes int64) error {
	panic("unused")
}

func (stub *catalogStub) ListChapters(ctx context.Context, seriesID string, includePrivate bool) ([]*series.Chapter, error) {
	panic("unused")
}

func (stub *catalogStub) FindChapter(ctx context.Context, seriesID, chapterNo string) (*series.Chapter, error) {
	return stub.findChapter(seriesID, chapterNo)
}

func (stub *catalogStub) UpsertChapter(ctx context.Context, chapter *series.Chapter) error {
	panic("unused")
}

func (stub *catalogStub) UpdateChapterFields(ctx context.Context, seriesID, chapterNo string, fields map[string]any) error {
	panic("unused")
}

func (stub *catalogStub) AdvanceChapterCount(ctx context.Context, seriesID string, n int) error {
	panic("unused")
}

// releasesStub answers the single feed lookup the read path performs.
type releasesStub struct {
	findByKey func(seriesID, chapterNo string) (*series.Release, error)
}

func (stub *releasesStub) Upsert(ctx context.Context, release *series.Release) error {
	panic("unused")
}

func (stub *releasesStub) Latest(ctx context.Context, limit int, includePrivate bool) ([]*series.Release, error) {
	panic("unused")
}

func (stub *releasesStub) FindBySeriesChapter(ctx context.Context, seriesID, chapterNo string) (*series.Release, error) {
	return stub.findByKey(seriesID, chapterNo)
}

func (stub *releasesStub) ListBySeries(ctx context.Context, seriesID string, includePrivate bool) ([]*series.Release, error) {
	panic("unused")
}

// viewCacheFake is an in-memory reader.ViewCache.
type viewCacheFake struct {
	views map[string]*reader.ChapterView
	sets  int
}

func newViewCacheFake() *viewCacheFake {
	return &viewCacheFake{views: make(map[string]*reader.ChapterView)}
}

func (cache *viewCacheFake) Get(ctx context.Context, nick, chapterNo string) *reader.ChapterView {
	return cache.views[nick+"/"+chapterNo]
}

func (cache *viewCacheFake) Set(ctx context.Context, nick, chapterNo string, view *reader.ChapterView) {
	cache.sets++
	cache.views[nick+"/"+chapterNo] = view
}

// # Fixtures

func publicSeries() *series.Series {
	return &series.Series{
		ID:         "0198a6e2-0000-7000-8000-0000000000bb",
		UID:        "84120",
		Nick:       "iron-widow",
		Title:      "Iron Widow",
		Author:     "X. Zhao",
		Thumbnail:  "https://assets.tankobon.test/iron-widow/1/1.png",
		Visibility: series.VisibilityPublic,
	}
}

func publicChapter(entity *series.Series, chapterNo string, pages int) *series.Chapter {
	return &series.Chapter{
		SeriesID:   entity.ID,
		ChapterNo:  chapterNo,
		Name:       "Chapter " + chapterNo,
		PageCount:  pages,
		IsComplete: true,
		Visibility: series.VisibilityPublic,
	}
}

func fixtureService(entity *series.Series, chapter *series.Chapter, release *series.Release, cache reader.ViewCache) *reader.Service {
	catalog := &catalogStub{
		findByUID: func(uid string) (*series.Series, error) {
			if entity != nil && uid == entity.UID {
				return entity, nil
			}
			return nil, apperr.NotFound("Series")
		},
		findByNick: func(nick string) (*series.Series, error) {
			if entity != nil && nick == entity.Nick {
				return entity, nil
			}
			return nil, apperr.NotFound("Series")
		},
		findChapter: func(seriesID, chapterNo string) (*series.Chapter, error) {
			if chapter != nil && chapterNo == chapter.ChapterNo {
				return chapter, nil
			}
			return nil, apperr.NotFound("Chapter")
		},
	}
	releases := &releasesStub{
		findByKey: func(seriesID, chapterNo string) (*series.Release, error) {
			return release, nil
		},
	}

	return reader.NewService(catalog, releases, blob.NewMemStore(), cache, slog.New(slog.DiscardHandler))
}

// # Chapter Reads

/*
TestGetChapter_RendersPageURLs checks the full render: page URLs derived
1-indexed from the authoritative page count, the series summary attached,
and the all-public payload written through to the cache.
*/
func TestGetChapter_RendersPageURLs(t *testing.T) {
	entity := publicSeries()
	cache := newViewCacheFake()
	service := fixtureService(entity, publicChapter(entity, "4", 3), nil, cache)

	view, err := service.GetChapter(context.Background(), "84120", "iron-widow", "4", false)
	require.NoError(t, err)

	assert.Equal(t, "84120", view.Series.UID)
	assert.Equal(t, "Iron Widow", view.Series.Title)
	assert.Equal(t, 3, view.PageCount)
	assert.Equal(t, []string{
		"https://assets.tankobon.test/iron-widow/4/1.png",
		"https://assets.tankobon.test/iron-widow/4/2.png",
		"https://assets.tankobon.test/iron-widow/4/3.png",
	}, view.Pages)

	assert.Equal(t, 1, cache.sets)
	assert.Same(t, view, cache.Get(context.Background(), "iron-widow", "4"))
}

/*
TestGetChapter_CacheHitShortCircuits pre-seeds the cache and verifies the
catalog is never consulted on a hit.
*/
func TestGetChapter_CacheHitShortCircuits(t *testing.T) {
	cached := &reader.ChapterView{ChapterNo: "4", PageCount: 3}
	cache := newViewCacheFake()
	cache.views["iron-widow/4"] = cached

	// No catalog handlers are configured: any lookup would panic.
	service := reader.NewService(&catalogStub{}, &releasesStub{}, blob.NewMemStore(), cache, slog.New(slog.DiscardHandler))

	view, err := service.GetChapter(context.Background(), "84120", "iron-widow", "4", false)
	require.NoError(t, err)
	assert.Same(t, cached, view)
}

/*
TestGetChapter_VisibilityMatrix flips one visibility flag at a time: any
private flag blocks readers, staff passes everywhere, and non-public views
never reach the cache.
*/
func TestGetChapter_VisibilityMatrix(t *testing.T) {
	tests := []struct {
		name              string
		seriesVisibility  series.Visibility
		chapterVisibility series.Visibility
		releaseVisibility series.Visibility
	}{
		{name: "private_series", seriesVisibility: series.VisibilityPrivate, chapterVisibility: series.VisibilityPublic, releaseVisibility: series.VisibilityPublic},
		{name: "private_chapter", seriesVisibility: series.VisibilityPublic, chapterVisibility: series.VisibilityPrivate, releaseVisibility: series.VisibilityPublic},
		{name: "private_release", seriesVisibility: series.VisibilityPublic, chapterVisibility: series.VisibilityPublic, releaseVisibility: series.VisibilityPrivate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity := publicSeries()
			entity.Visibility = tt.seriesVisibility
			chapter := publicChapter(entity, "4", 3)
			chapter.Visibility = tt.chapterVisibility
			release := &series.Release{
				SeriesID:   entity.ID,
				ChapterNo:  "4",
				Visibility: tt.releaseVisibility,
			}

			cache := newViewCacheFake()
			service := fixtureService(entity, chapter, release, cache)

			_, err := service.GetChapter(context.Background(), "84120", "iron-widow", "4", false)
			require.Error(t, err)
			ae := apperr.As(err)
			require.NotNil(t, ae)
			assert.Equal(t, "FORBIDDEN", ae.Code)

			// Staff reads pass but the mixed-visibility view stays out of
			// the cache.
			view, err := service.GetChapter(context.Background(), "84120", "iron-widow", "4", true)
			require.NoError(t, err)
			assert.Len(t, view.Pages, 3)
			assert.Zero(t, cache.sets)
		})
	}
}

/*
TestGetChapter_MissingReleaseRowIsPublic reads a chapter whose feed row has
not landed yet; the read succeeds because only present private flags block.
*/
func TestGetChapter_MissingReleaseRowIsPublic(t *testing.T) {
	entity := publicSeries()
	service := fixtureService(entity, publicChapter(entity, "4", 2), nil, nil)

	view, err := service.GetChapter(context.Background(), "84120", "iron-widow", "4", false)
	require.NoError(t, err)
	assert.Len(t, view.Pages, 2)
}

/*
TestGetChapter_ZeroPagesIsNotFound treats an unreconciled page count as a
missing chapter rather than serving an empty reader.
*/
func TestGetChapter_ZeroPagesIsNotFound(t *testing.T) {
	entity := publicSeries()
	service := fixtureService(entity, publicChapter(entity, "4", 0), nil, nil)

	_, err := service.GetChapter(context.Background(), "84120", "iron-widow", "4", false)
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "NOT_FOUND", ae.Code)
}

/*
TestGetChapter_FallsBackToNick resolves via the URL slug when the numeric
identifier no longer matches any series.
*/
func TestGetChapter_FallsBackToNick(t *testing.T) {
	entity := publicSeries()
	service := fixtureService(entity, publicChapter(entity, "1", 1), nil, nil)

	view, err := service.GetChapter(context.Background(), "00000", "iron-widow", "1", false)
	require.NoError(t, err)
	assert.Equal(t, "iron-widow", view.Series.Nick)
}
