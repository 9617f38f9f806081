// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package series

import "context"

// # Catalog Data Access

// Repository defines the data access contract for series and their chapters.
type Repository interface {

	/*
		Create persists a new series.

		Parameters:
		  - context: context.Context
		  - series: *Series (Metadata and initial state; ID/UID pre-generated)

		Returns:
		  - error: Conflict on duplicate title, nick, or UID
	*/
	Create(context context.Context, series *Series) error

	/*
		FindByUID returns the series with the given 5-digit public code.

		Returns:
		  - *Series: The hydrated entity, chapters not included
		  - error: ErrNotFound if missing
	*/
	FindByUID(context context.Context, uid string) (*Series, error)

	/*
		FindByNick returns the series matching nick, compared case-insensitively.

		Returns:
		  - *Series: The hydrated entity, chapters not included
		  - error: ErrNotFound if missing
	*/
	FindByNick(context context.Context, nick string) (*Series, error)

	/*
		List returns all series ordered by last update, paginated.

		Parameters:
		  - includePrivate: bool (false filters visibility=private rows)

		Returns:
		  - []*Series: Page of series
		  - int: Total count after visibility filtering
		  - error: Database retrieval failures
	*/
	List(context context.Context, includePrivate bool, limit, offset int) ([]*Series, int, error)

	/*
		UpdateFields applies a whitelisted column/value map to one series.
		Used by the field-map edit endpoint; the service layer is responsible for
		validating keys before they reach the store.

		Returns:
		  - error: ErrNotFound if the series row is missing
	*/
	UpdateFields(context context.Context, id string, fields map[string]any) error

	/*
		AddStats atomically increments the engagement counters.

		Parameters:
		  - views, likes: int64 (Deltas, may be zero)
	*/
	AddStats(context context.Context, id string, views, likes int64) error

	/*
		ListChapters returns the chapters of a series ordered by creation,
		optionally filtered to public visibility.
	*/
	ListChapters(context context.Context, seriesID string, includePrivate bool) ([]*Chapter, error)

	/*
		FindChapter returns the chapter matching chapterNo by exact equality.

		Returns:
		  - *Chapter: The chapter row
		  - error: ErrNotFound if no such chapter exists
	*/
	FindChapter(context context.Context, seriesID, chapterNo string) (*Chapter, error)

	/*
		UpsertChapter inserts the chapter or, when (series_id, chapter_no)
		already exists, updates the existing row in place. This is the
		idempotency boundary for reconciliation: re-reconciling a chapter
		never duplicates it, and the latest call's data wins.
	*/
	UpsertChapter(context context.Context, chapter *Chapter) error

	/*
		UpdateChapterFields applies a whitelisted column/value map to one
		chapter, keyed by (series_id, chapter_no).

		Returns:
		  - error: ErrNotFound if the chapter row is missing
	*/
	UpdateChapterFields(context context.Context, seriesID, chapterNo string, fields map[string]any) error

	/*
		AdvanceChapterCount lifts both completion counters to at least n.
		The update is monotonic at the SQL level (GREATEST), so concurrent
		completions for different chapters cannot regress either counter.
	*/
	AdvanceChapterCount(context context.Context, seriesID string, n int) error
}

// # Release Feed Data Access

// ReleaseRepository defines the data access contract for the release feed.
type ReleaseRepository interface {

	/*
		Upsert inserts the release or updates the existing row keyed by
		(series_id, chapter_no). Repeated completion signals for the same
		chapter must never produce duplicate feed rows.
	*/
	Upsert(context context.Context, release *Release) error

	/*
		Latest returns the most recent releases ordered by release time.

		Parameters:
		  - limit: int (Feed window, 10 for the public endpoint)
		  - includePrivate: bool (false filters private rows)
	*/
	Latest(context context.Context, limit int, includePrivate bool) ([]*Release, error)

	/*
		FindBySeriesChapter returns the feed row for one chapter.

		Returns:
		  - *Release: The row, or nil with no error when absent (a missing
		    feed row is an eventual-consistency state, not a failure)
	*/
	FindBySeriesChapter(context context.Context, seriesID, chapterNo string) (*Release, error)

	/*
		ListBySeries returns a series' releases newest-first, optionally
		filtered to public visibility.
	*/
	ListBySeries(context context.Context, seriesID string, includePrivate bool) ([]*Release, error)
}
