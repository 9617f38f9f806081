// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tankobonhq/tankobon/internal/core/series"
	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/constants"
	"github.com/tankobonhq/tankobon/internal/storage/blob"
	"github.com/tankobonhq/tankobon/pkg/pointer"
)

// CacheInvalidator purges cached chapter views once a reconcile lands.
// The reader cache satisfies this; a nil invalidator disables purging.
type CacheInvalidator interface {
	InvalidateChapter(ctx context.Context, nick, chapterNo string)
}

// Job is one queued chapter-completion event.
type Job struct {
	SeriesNick    string
	ChapterNo     string
	ChapterName   string
	ObservedPages int
	Visibility    series.Visibility
}

// perJobTimeout bounds one reconcile attempt cycle end to end.
const perJobTimeout = 5 * time.Minute

// # Background Reconciler

// Reconciler applies chapter-completion events to the catalog and the
// release feed on a supervised background worker.
//
// Completion is decoupled from the HTTP response: IngestBatch queues a [Job]
// and returns immediately, while the worker drains the queue with bounded
// per-job retries. A job that exhausts its retries is logged as a
// reconcile_failed event — the accepted durability boundary.
type Reconciler struct {
	catalog  series.Repository
	releases series.ReleaseRepository
	store    blob.Store
	cache    CacheInvalidator
	logger   *slog.Logger

	jobs chan Job
	wg   sync.WaitGroup
}

// NewReconciler constructs the reconciler with a bounded job queue.
func NewReconciler(catalog series.Repository, releases series.ReleaseRepository, store blob.Store, cache CacheInvalidator, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		catalog:  catalog,
		releases: releases,
		store:    store,
		cache:    cache,
		logger:   logger,
		jobs:     make(chan Job, constants.ReconcileQueueSize),
	}
}

// Start launches the worker goroutine. Call once at wiring time.
func (reconciler *Reconciler) Start() {
	reconciler.wg.Add(1)

	go func() {
		defer reconciler.wg.Done()

		for job := range reconciler.jobs {
			reconciler.run(job)
		}
	}()
}

// Stop drains the queue and waits for in-flight work. Call after the HTTP
// server has finished shutting down, so no new jobs can arrive.
func (reconciler *Reconciler) Stop() {
	close(reconciler.jobs)
	reconciler.wg.Wait()
}

// Enqueue queues one completion event. It never blocks the request path:
// when the queue is full the job is dropped and reported, returning false.
func (reconciler *Reconciler) Enqueue(job Job) bool {
	select {
	case reconciler.jobs <- job:
		return true
	default:
		reconciler.logger.Error("reconcile_queue_full",
			slog.String("nick", job.SeriesNick),
			slog.String("chapter_no", job.ChapterNo),
		)
		return false
	}
}

// InvalidateChapter exposes the cache hook to the ingest service's edit paths.
func (reconciler *Reconciler) InvalidateChapter(ctx context.Context, nick, chapterNo string) {
	if reconciler.cache != nil {
		reconciler.cache.InvalidateChapter(ctx, nick, chapterNo)
	}
}

// run executes one job under the bounded retry policy.
func (reconciler *Reconciler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), perJobTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = constants.ReconcileMaxElapsed

	err := backoff.Retry(func() error {
		if err := reconciler.reconcile(ctx, job); err != nil {
			// A missing series cannot heal by waiting.
			if ae := apperr.As(err); ae != nil && ae.HTTPStatus == 404 {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		reconciler.logger.Error("reconcile_failed",
			slog.String("nick", job.SeriesNick),
			slog.String("chapter_no", job.ChapterNo),
			slog.String("error", err.Error()),
		)
		return
	}

	reconciler.logger.Info("chapter_reconciled",
		slog.String("nick", job.SeriesNick),
		slog.String("chapter_no", job.ChapterNo),
		slog.Int("pages", job.ObservedPages),
	)
}

/*
reconcile applies one completion event.

Description: Upserts the chapter row (the idempotency boundary — repeated
events land on the same row), advances the monotonic counters when the
chapter key is numeric, upserts the release-feed row keyed by
(series, chapterNo), and finally purges the cached read view. The chapter
write and the feed write are separate statements; a crash between them
leaves the feed stale until the next completion event, which is accepted.

Parameters:
  - ctx: context.Context
  - job: Job

Returns:
  - error: NotFound when the series vanished, otherwise repository errors
*/
func (reconciler *Reconciler) reconcile(ctx context.Context, job Job) error {
	entity, err := reconciler.catalog.FindByNick(ctx, job.SeriesNick)
	if err != nil {
		return err
	}

	thumbnail, err := reconciler.store.PublicURL(ctx, blob.PageKey(entity.Nick, job.ChapterNo, 1))
	if err != nil {
		return err
	}

	chapter := &series.Chapter{
		SeriesID:   entity.ID,
		ChapterNo:  job.ChapterNo,
		Name:       job.ChapterName,
		IsComplete: true,
		PageCount:  job.ObservedPages,
		Thumbnail:  thumbnail,
		Visibility: job.Visibility,
	}
	if err := reconciler.catalog.UpsertChapter(ctx, chapter); err != nil {
		return err
	}

	// Counters advance only for numeric chapter keys.
	var previous *string
	if number, convErr := strconv.Atoi(job.ChapterNo); convErr == nil {
		if err := reconciler.catalog.AdvanceChapterCount(ctx, entity.ID, number); err != nil {
			return err
		}
		if number > 1 {
			previous = pointer.To(strconv.Itoa(number - 1))
		}
	}

	release := &series.Release{
		SeriesID:        entity.ID,
		SeriesUID:       entity.UID,
		SeriesTitle:     entity.Title,
		Nick:            entity.Nick,
		ChapterNo:       job.ChapterNo,
		PreviousChapter: previous,
		Thumbnail:       thumbnail,
		PageCount:       job.ObservedPages,
		IsComplete:      true,
		Visibility:      job.Visibility,
		ReleasedAt:      time.Now(),
	}
	if err := reconciler.releases.Upsert(ctx, release); err != nil {
		return err
	}

	// Readers must not keep serving the pre-completion view.
	reconciler.InvalidateChapter(ctx, entity.Nick, job.ChapterNo)

	return nil
}
