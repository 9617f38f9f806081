// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package ingest_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tankobonhq/tankobon/internal/core/ingest"
	"github.com/tankobonhq/tankobon/internal/core/series"
	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/storage/blob"
)

// # Test Fakes

// fakeCatalog is an in-memory series.Repository.
type fakeCatalog struct {
	mu       sync.Mutex
	series   map[string]*series.Series  // keyed by lowercase nick
	chapters map[string]*series.Chapter // keyed by seriesID/chapterNo
	counters map[string]int             // seriesID -> chapter count
}

func newFakeCatalog(entities ...*series.Series) *fakeCatalog {
	catalog := &fakeCatalog{
		series:   make(map[string]*series.Series),
		chapters: make(map[string]*series.Chapter),
		counters: make(map[string]int),
	}
	for _, entity := range entities {
		catalog.series[strings.ToLower(entity.Nick)] = entity
	}
	return catalog
}

func chapterKey(seriesID, chapterNo string) string {
	return seriesID + "/" + chapterNo
}

func (catalog *fakeCatalog) Create(ctx context.Context, entity *series.Series) error {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	catalog.series[strings.ToLower(entity.Nick)] = entity
	return nil
}

func (catalog *fakeCatalog) FindByUID(ctx context.Context, uid string) (*series.Series, error) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	for _, entity := range catalog.series {
		if entity.UID == uid {
			return entity, nil
		}
	}
	return nil, apperr.NotFound("Series not found")
}

func (catalog *fakeCatalog) FindByNick(ctx context.Context, nick string) (*series.Series, error) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if entity, ok := catalog.series[strings.ToLower(nick)]; ok {
		return entity, nil
	}
	return nil, apperr.NotFound("Series not found")
}

func (catalog *fakeCatalog) List(ctx context.Context, includePrivate bool, limit, offset int) ([]*series.Series, int, error) {
	return nil, 0, nil
}

func (catalog *fakeCatalog) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	return nil
}

func (catalog *fakeCatalog) AddStats(ctx context.Context, id string, views, likes int64) error {
	return nil
}

func (catalog *fakeCatalog) ListChapters(ctx context.Context, seriesID string, includePrivate bool) ([]*series.Chapter, error) {
	return nil, nil
}

func (catalog *fakeCatalog) FindChapter(ctx context.Context, seriesID, chapterNo string) (*series.Chapter, error) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if chapter, ok := catalog.chapters[chapterKey(seriesID, chapterNo)]; ok {
		return chapter, nil
	}
	return nil, apperr.NotFound("Chapter not found")
}

func (catalog *fakeCatalog) UpsertChapter(ctx context.Context, chapter *series.Chapter) error {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	catalog.chapters[chapterKey(chapter.SeriesID, chapter.ChapterNo)] = chapter
	return nil
}

func (catalog *fakeCatalog) UpdateChapterFields(ctx context.Context, seriesID, chapterNo string, fields map[string]any) error {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	chapter, ok := catalog.chapters[chapterKey(seriesID, chapterNo)]
	if !ok {
		return apperr.NotFound("Chapter not found")
	}
	if pages, ok := fields["pagecount"].(int); ok {
		chapter.PageCount = pages
	}
	return nil
}

func (catalog *fakeCatalog) AdvanceChapterCount(ctx context.Context, seriesID string, n int) error {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if n > catalog.counters[seriesID] {
		catalog.counters[seriesID] = n
	}
	return nil
}

// fakeReleases is an in-memory series.ReleaseRepository keyed by
// (seriesID, chapterNo), mirroring the feed's upsert semantics.
type fakeReleases struct {
	mu       sync.Mutex
	releases map[string]*series.Release
}

func newFakeReleases() *fakeReleases {
	return &fakeReleases{releases: make(map[string]*series.Release)}
}

func (feed *fakeReleases) Upsert(ctx context.Context, release *series.Release) error {
	feed.mu.Lock()
	defer feed.mu.Unlock()
	feed.releases[chapterKey(release.SeriesID, release.ChapterNo)] = release
	return nil
}

func (feed *fakeReleases) Latest(ctx context.Context, limit int, includePrivate bool) ([]*series.Release, error) {
	return nil, nil
}

func (feed *fakeReleases) FindBySeriesChapter(ctx context.Context, seriesID, chapterNo string) (*series.Release, error) {
	feed.mu.Lock()
	defer feed.mu.Unlock()
	return feed.releases[chapterKey(seriesID, chapterNo)], nil
}

func (feed *fakeReleases) ListBySeries(ctx context.Context, seriesID string, includePrivate bool) ([]*series.Release, error) {
	return nil, nil
}

// fakeInvalidator records cache purges.
type fakeInvalidator struct {
	mu     sync.Mutex
	purged []string
}

func (cache *fakeInvalidator) InvalidateChapter(ctx context.Context, nick, chapterNo string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.purged = append(cache.purged, nick+"/"+chapterNo)
}

// # Fixtures

func testSeries() *series.Series {
	return &series.Series{
		ID:         "0198a6e2-0000-7000-8000-000000000001",
		UID:        "51423",
		Nick:       "solo-max",
		Title:      "Solo Max",
		Visibility: series.VisibilityPublic,
	}
}

func pageFiles(pages ...int) []ingest.PageFile {
	files := make([]ingest.PageFile, 0, len(pages))
	for _, page := range pages {
		files = append(files, ingest.PageFile{
			Name:        fmt.Sprintf("%03d.png", page),
			ContentType: "image/png",
			Data:        []byte{0x89, 0x50, byte(page)},
		})
	}
	return files
}

func newTestService(store blob.Store, catalog series.Repository, releases series.ReleaseRepository, cache ingest.CacheInvalidator) (*ingest.Service, *ingest.Reconciler) {
	logger := slog.New(slog.DiscardHandler)
	reconciler := ingest.NewReconciler(catalog, releases, store, cache, logger)
	return ingest.NewService(store, catalog, reconciler, logger), reconciler
}

// # Batch Ingestion

/*
TestIngestBatch_CompleteSingleBatch covers the happy path: a single batch
carrying every declared page completes the chapter and schedules reconciliation.
*/
func TestIngestBatch_CompleteSingleBatch(t *testing.T) {
	store := blob.NewMemStore()
	catalog := newFakeCatalog(testSeries())
	service, _ := newTestService(store, catalog, newFakeReleases(), nil)

	result, err := service.IngestBatch(context.Background(), ingest.BatchInput{
		Nick:          "solo-max",
		ChapterNo:     "1",
		DeclaredPages: 3,
		BatchIndex:    1,
		BatchTotal:    1,
		Files:         pageFiles(1, 2, 3),
	})

	require.NoError(t, err)
	assert.Equal(t, ingest.StatusComplete, result.Status)
	assert.Equal(t, 3, result.UploadedPages)
	assert.Equal(t, 0, result.Remaining)
	assert.True(t, result.ReconcileScheduled)
	assert.Empty(t, result.Failures)

	// Pages land at deterministic 1-indexed paths.
	objects, err := store.List(context.Background(), "solo-max/1/")
	require.NoError(t, err)
	require.Len(t, objects, 3)
	assert.Equal(t, "solo-max/1/1.png", objects[0].Key)
	assert.Equal(t, "solo-max/1/3.png", objects[2].Key)
}

/*
TestIngestBatch_OutOfOrderBatches verifies that completion is derived from
the storage listing, not from batch coordinates: the chapter completes when
the last declared page lands, even though the final-indexed batch arrived first.
*/
func TestIngestBatch_OutOfOrderBatches(t *testing.T) {
	store := blob.NewMemStore()
	catalog := newFakeCatalog(testSeries())
	service, _ := newTestService(store, catalog, newFakeReleases(), nil)

	// Batch 2/2 arrives first.
	result, err := service.IngestBatch(context.Background(), ingest.BatchInput{
		Nick:          "solo-max",
		ChapterNo:     "4",
		DeclaredPages: 5,
		BatchIndex:    2,
		BatchTotal:    2,
		Files:         pageFiles(3, 4, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusInProgress, result.Status)
	assert.Equal(t, 3, result.UploadedPages)
	assert.Equal(t, 2, result.Remaining)

	// Batch 1/2 lands the remaining pages; the listing now satisfies the
	// declaration, so the chapter completes.
	result, err = service.IngestBatch(context.Background(), ingest.BatchInput{
		Nick:          "solo-max",
		ChapterNo:     "4",
		DeclaredPages: 5,
		BatchIndex:    1,
		BatchTotal:    2,
		Files:         pageFiles(1, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusComplete, result.Status)
	assert.Equal(t, 5, result.UploadedPages)
	assert.True(t, result.ReconcileScheduled)
}

/*
TestIngestBatch_RetryIsIdempotent re-sends an identical batch and checks that
overwrite-by-path keeps the page count stable.
*/
func TestIngestBatch_RetryIsIdempotent(t *testing.T) {
	store := blob.NewMemStore()
	catalog := newFakeCatalog(testSeries())
	service, _ := newTestService(store, catalog, newFakeReleases(), nil)

	input := ingest.BatchInput{
		Nick:          "solo-max",
		ChapterNo:     "2",
		DeclaredPages: 4,
		BatchIndex:    1,
		BatchTotal:    2,
		Files:         pageFiles(1, 2),
	}

	first, err := service.IngestBatch(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, first.UploadedPages)

	retried, err := service.IngestBatch(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, retried.UploadedPages)
	assert.Equal(t, ingest.StatusInProgress, retried.Status)

	objects, err := store.List(context.Background(), "solo-max/2/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}

/*
TestIngestBatch_PartialFailure injects an upload failure for one page and
verifies the siblings still persist while the failure is reported per file.
*/
func TestIngestBatch_PartialFailure(t *testing.T) {
	store := blob.NewMemStore()
	store.FailPut = func(key string) error {
		if key == "solo-max/3/2.png" {
			return fmt.Errorf("connection reset")
		}
		return nil
	}

	catalog := newFakeCatalog(testSeries())
	service, _ := newTestService(store, catalog, newFakeReleases(), nil)

	result, err := service.IngestBatch(context.Background(), ingest.BatchInput{
		Nick:          "solo-max",
		ChapterNo:     "3",
		DeclaredPages: 3,
		BatchIndex:    1,
		BatchTotal:    1,
		Files:         pageFiles(1, 2, 3),
	})

	require.NoError(t, err)
	assert.Equal(t, ingest.StatusPartialFailure, result.Status)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].Page)
	assert.Contains(t, result.Failures[0].Reason, "connection reset")
	assert.False(t, result.ReconcileScheduled)

	// The failed page is missing; its siblings landed.
	objects, err := store.List(context.Background(), "solo-max/3/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	// A clean retry heals the chapter.
	store.FailPut = nil
	result, err = service.IngestBatch(context.Background(), ingest.BatchInput{
		Nick:          "solo-max",
		ChapterNo:     "3",
		DeclaredPages: 3,
		BatchIndex:    1,
		BatchTotal:    1,
		Files:         pageFiles(1, 2, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusComplete, result.Status)
}

/*
TestIngestBatch_Validation exercises the rejection paths: unknown series,
missing chapter number, non-image payloads, and duplicate page claims.
*/
func TestIngestBatch_Validation(t *testing.T) {
	store := blob.NewMemStore()
	catalog := newFakeCatalog(testSeries())
	service, _ := newTestService(store, catalog, newFakeReleases(), nil)

	tests := []struct {
		name  string
		input ingest.BatchInput
		code  string
	}{
		{
			name: "unknown_series",
			input: ingest.BatchInput{
				Nick: "ghost", ChapterNo: "1", DeclaredPages: 1, Files: pageFiles(1),
			},
			code: "NOT_FOUND",
		},
		{
			name: "missing_chapter_no",
			input: ingest.BatchInput{
				Nick: "solo-max", ChapterNo: "  ", DeclaredPages: 1, Files: pageFiles(1),
			},
			code: "VALIDATION_ERROR",
		},
		{
			name: "no_files",
			input: ingest.BatchInput{
				Nick: "solo-max", ChapterNo: "1", DeclaredPages: 1,
			},
			code: "VALIDATION_ERROR",
		},
		{
			name: "not_an_image",
			input: ingest.BatchInput{
				Nick: "solo-max", ChapterNo: "1", DeclaredPages: 1,
				Files: []ingest.PageFile{{Name: "001.txt", ContentType: "text/plain", Data: []byte("x")}},
			},
			code: "VALIDATION_ERROR",
		},
		{
			name: "duplicate_page_number",
			input: ingest.BatchInput{
				Nick: "solo-max", ChapterNo: "1", DeclaredPages: 2,
				Files: []ingest.PageFile{
					{Name: "01.png", ContentType: "image/png", Data: []byte("a")},
					{Name: "1_cover.png", ContentType: "image/png", Data: []byte("b")},
				},
			},
			code: "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.IngestBatch(context.Background(), tt.input)
			require.Error(t, err)
			ae := apperr.As(err)
			require.NotNil(t, ae)
			assert.Equal(t, tt.code, ae.Code)
		})
	}
}

// # Image Replacement

/*
TestReplaceChapterImages_ShrinkingReplacement replaces a five-page chapter
with three pages and verifies trailing pages are trimmed, the stored page
count is corrected, and the cached read view is purged.
*/
func TestReplaceChapterImages_ShrinkingReplacement(t *testing.T) {
	store := blob.NewMemStore()
	entity := testSeries()
	catalog := newFakeCatalog(entity)
	invalidator := &fakeInvalidator{}
	service, _ := newTestService(store, catalog, newFakeReleases(), invalidator)

	require.NoError(t, catalog.UpsertChapter(context.Background(), &series.Chapter{
		SeriesID:  entity.ID,
		ChapterNo: "7",
		PageCount: 5,
	}))
	for page := 1; page <= 5; page++ {
		_, err := service.IngestBatch(context.Background(), ingest.BatchInput{
			Nick: "solo-max", ChapterNo: "7", DeclaredPages: 5,
			Files: pageFiles(page),
		})
		require.NoError(t, err)
	}

	result, err := service.ReplaceChapterImages(context.Background(), "solo-max", "7", pageFiles(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, result.UploadedPages)
	assert.Empty(t, result.Failures)

	objects, err := store.List(context.Background(), "solo-max/7/")
	require.NoError(t, err)
	assert.Len(t, objects, 3)

	chapter, err := catalog.FindChapter(context.Background(), entity.ID, "7")
	require.NoError(t, err)
	assert.Equal(t, 3, chapter.PageCount)

	assert.Contains(t, invalidator.purged, "solo-max/7")
}

/*
TestReplaceChapterImages_SparseSetRejected rejects a replacement with a gap
in its page numbers before any upload happens.

Description: Overwrite only touches the paths it is given, so pages 1 and 3
over an old three-page chapter would keep serving the old page 2 as if it
belonged to the new set. The whole chapter in storage must stay untouched.
*/
func TestReplaceChapterImages_SparseSetRejected(t *testing.T) {
	store := blob.NewMemStore()
	entity := testSeries()
	catalog := newFakeCatalog(entity)
	service, _ := newTestService(store, catalog, newFakeReleases(), nil)

	require.NoError(t, catalog.UpsertChapter(context.Background(), &series.Chapter{
		SeriesID:  entity.ID,
		ChapterNo: "4",
		PageCount: 3,
	}))
	_, err := service.IngestBatch(context.Background(), ingest.BatchInput{
		Nick: "solo-max", ChapterNo: "4", DeclaredPages: 3,
		Files: pageFiles(1, 2, 3),
	})
	require.NoError(t, err)
	before, err := store.List(context.Background(), "solo-max/4/")
	require.NoError(t, err)

	_, err = service.ReplaceChapterImages(context.Background(), "solo-max", "4", pageFiles(1, 3))
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)

	after, err := store.List(context.Background(), "solo-max/4/")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

/*
TestReplaceChapterImages_UnknownChapter rejects replacement for chapters the
catalog has never reconciled.
*/
func TestReplaceChapterImages_UnknownChapter(t *testing.T) {
	store := blob.NewMemStore()
	catalog := newFakeCatalog(testSeries())
	service, _ := newTestService(store, catalog, newFakeReleases(), nil)

	_, err := service.ReplaceChapterImages(context.Background(), "solo-max", "99", pageFiles(1))
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "NOT_FOUND", ae.Code)
}
