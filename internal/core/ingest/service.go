// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tankobonhq/tankobon/internal/core/series"
	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/constants"
	"github.com/tankobonhq/tankobon/internal/storage/blob"
)

// pageNumPattern extracts the first decimal run from a filename.
var pageNumPattern = regexp.MustCompile(`\d+`)

// # Service Layer

// Service is the batch-upload state machine for chapter ingestion.
type Service struct {
	store      blob.Store
	catalog    series.Repository
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewService constructs the ingest [Service].
func NewService(store blob.Store, catalog series.Repository, reconciler *Reconciler, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		catalog:    catalog,
		reconciler: reconciler,
		logger:     logger,
	}
}

/*
IngestBatch accepts one batch of page images for a (series, chapter) pair.

Description: Pages are uploaded concurrently to deterministic page-numbered
paths; per-file failures are collected independently and never abort their
siblings. Progress is then recomputed by re-listing the storage prefix — the
listing, not the client's batch coordinates, decides completion. When every
declared page exists and the client marks this batch final, a reconcile job
is queued and the response returns immediately.

Parameters:
  - context: context.Context
  - input: BatchInput (Files plus client-declared batch coordinates)

Returns:
  - *BatchResult: Progress, completion, or partial-failure report
  - error: Validation, NotFound, or storage-exhaustion errors
*/
func (service *Service) IngestBatch(context context.Context, input BatchInput) (*BatchResult, error) {
	entity, err := service.catalog.FindByNick(context, input.Nick)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.ChapterNo) == "" {
		return nil, apperr.ValidationError("chapterNo is required")
	}
	if input.DeclaredPages < 1 {
		return nil, apperr.ValidationError("totalPageNo must be at least 1")
	}

	ordered, err := orderPages(input.Files)
	if err != nil {
		return nil, err
	}

	visibility := series.Visibility(input.Visibility)
	if visibility == "" {
		visibility = entity.Visibility
	}
	if !visibility.IsValid() {
		return nil, apperr.ValidationError("visibility must be public or private")
	}

	// Uploads use the stored nick so mixed-case client input cannot split
	// one chapter across two prefixes.
	failures := service.uploadPages(context, entity.Nick, input.ChapterNo, ordered)

	// Listing-derived progress: the only authority on how many pages exist.
	uploaded, err := service.countPages(context, entity.Nick, input.ChapterNo)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		ChapterNo:     input.ChapterNo,
		UploadedPages: uploaded,
		DeclaredPages: input.DeclaredPages,
		Remaining:     max(input.DeclaredPages-uploaded, 0),
		BatchIndex:    input.BatchIndex,
		BatchTotal:    input.BatchTotal,
		Failures:      failures,
	}

	if len(failures) > 0 {
		result.Status = StatusPartialFailure

		service.logger.Warn("chapter_batch_partial_failure",
			slog.String("nick", entity.Nick),
			slog.String("chapter_no", input.ChapterNo),
			slog.Int("failed_pages", len(failures)),
		)
		return result, nil
	}

	// Completion is decided by the listing alone. Batch coordinates are
	// reported back but never consulted: batches that arrive out of order
	// complete the chapter the moment the last declared page lands.
	if uploaded >= input.DeclaredPages {
		result.Status = StatusComplete
		result.ReconcileScheduled = service.reconciler.Enqueue(Job{
			SeriesNick:    entity.Nick,
			ChapterNo:     input.ChapterNo,
			ChapterName:   input.ChapterName,
			ObservedPages: uploaded,
			Visibility:    visibility,
		})

		service.logger.Info("chapter_batch_complete",
			slog.String("nick", entity.Nick),
			slog.String("chapter_no", input.ChapterNo),
			slog.Int("pages", uploaded),
			slog.Bool("reconcile_scheduled", result.ReconcileScheduled),
		)
		return result, nil
	}

	result.Status = StatusInProgress

	service.logger.Info("chapter_batch_ingested",
		slog.String("nick", entity.Nick),
		slog.String("chapter_no", input.ChapterNo),
		slog.Int("uploaded", uploaded),
		slog.Int("declared", input.DeclaredPages),
	)
	return result, nil
}

/*
ReplaceChapterImages re-uploads a chapter's pages wholesale.

Description: Same sorted, fanned-out, overwrite-by-path upload as ingestion,
against an existing chapter only. The page set must be contiguous from 1,
and pages beyond it are removed, so a sparse or shorter replacement cannot
leave a stale page from the previous upload in service. No reconciliation is
triggered; the cached read view is purged by the caller via the reconciler's
cache hook on edit paths.

Parameters:
  - context: context.Context
  - nick: string (Series slug)
  - chapterNo: string
  - files: []PageFile

Returns:
  - *ReplaceResult: Upload summary with per-page failures
  - error: Validation or NotFound errors
*/
func (service *Service) ReplaceChapterImages(context context.Context, nick, chapterNo string, files []PageFile) (*ReplaceResult, error) {
	entity, err := service.catalog.FindByNick(context, nick)
	if err != nil {
		return nil, err
	}

	// Replacement only applies to chapters the catalog already knows.
	chapter, err := service.catalog.FindChapter(context, entity.ID, chapterNo)
	if err != nil {
		return nil, err
	}

	ordered, err := orderPages(files)
	if err != nil {
		return nil, err
	}

	// A replacement is the whole chapter. A gap in the page numbers would
	// leave the previous upload's page visible in the hole, since overwrite
	// only touches the paths it is given.
	for index, numbered := range ordered {
		if numbered.page != index+1 {
			return nil, apperr.ValidationError("Replacement pages must be contiguous starting at page 1")
		}
	}

	failures := service.uploadPages(context, entity.Nick, chapterNo, ordered)

	// Trim pages past the new page set (shrinking replacement).
	if len(failures) == 0 {
		newTop := ordered[len(ordered)-1].page
		for page := newTop + 1; page <= chapter.PageCount; page++ {
			if err := service.store.Delete(context, blob.PageKey(entity.Nick, chapterNo, page)); err != nil {
				return nil, err
			}
		}

		if chapter.PageCount != len(ordered) {
			fields := map[string]any{"pagecount": len(ordered)}
			if err := service.catalog.UpdateChapterFields(context, entity.ID, chapterNo, fields); err != nil {
				return nil, err
			}
		}
	}

	service.reconciler.InvalidateChapter(context, entity.Nick, chapterNo)

	service.logger.Info("chapter_images_replaced",
		slog.String("nick", entity.Nick),
		slog.String("chapter_no", chapterNo),
		slog.Int("pages", len(ordered)),
		slog.Int("failed_pages", len(failures)),
	)

	return &ReplaceResult{
		ChapterNo:     chapterNo,
		UploadedPages: len(ordered) - len(failures),
		Failures:      failures,
	}, nil
}

// # Upload Internals

// numberedPage pairs one file with its extracted page number.
type numberedPage struct {
	page int
	file PageFile
}

// orderPages validates a batch and sorts it by embedded page number.
func orderPages(files []PageFile) ([]numberedPage, error) {
	if len(files) == 0 {
		return nil, apperr.ValidationError("At least one page image is required")
	}

	seen := make(map[int]string, len(files))
	ordered := make([]numberedPage, 0, len(files))

	for _, file := range files {
		if !strings.HasPrefix(file.ContentType, "image/") {
			return nil, apperr.ValidationError(
				fmt.Sprintf("%s is not an image (%s)", file.Name, file.ContentType))
		}

		match := pageNumPattern.FindString(file.Name)
		if match == "" {
			return nil, apperr.ValidationError(
				fmt.Sprintf("%s carries no page number", file.Name))
		}
		page, err := strconv.Atoi(match)
		if err != nil || page < 1 {
			return nil, apperr.ValidationError(
				fmt.Sprintf("%s carries an invalid page number", file.Name))
		}

		if other, dup := seen[page]; dup {
			return nil, apperr.ValidationError(
				fmt.Sprintf("%s and %s both claim page %d", other, file.Name, page))
		}
		seen[page] = file.Name

		ordered = append(ordered, numberedPage{page: page, file: file})
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].page < ordered[j].page })
	return ordered, nil
}

// uploadPages fans the batch out to storage with bounded concurrency,
// capturing failures per page. One page's failure never aborts its siblings.
func (service *Service) uploadPages(context context.Context, nick, chapterNo string, pages []numberedPage) []PageFailure {
	var group errgroup.Group
	group.SetLimit(constants.IngestUploadConcurrency)

	var mu sync.Mutex
	var failures []PageFailure

	for _, item := range pages {
		group.Go(func() error {
			key := blob.PageKey(nick, chapterNo, item.page)
			body := bytes.NewReader(item.file.Data)

			err := service.store.Put(context, key, body, int64(len(item.file.Data)), item.file.ContentType)
			if err != nil {
				mu.Lock()
				failures = append(failures, PageFailure{
					Page:   item.page,
					Name:   item.file.Name,
					Reason: err.Error(),
				})
				mu.Unlock()
			}
			return nil
		})
	}

	// Errors are captured per page; Wait only joins the fan-out.
	_ = group.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Page < failures[j].Page })
	return failures
}

// countPages lists the chapter prefix and counts well-formed page objects.
func (service *Service) countPages(context context.Context, nick, chapterNo string) (int, error) {
	objects, err := service.store.List(context, blob.ChapterPrefix(nick, chapterNo))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, object := range objects {
		if _, ok := blob.PageNumber(object.Key); ok {
			count++
		}
	}
	return count, nil
}
