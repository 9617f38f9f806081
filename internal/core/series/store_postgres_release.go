// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tankobonhq/tankobon/pkg/uuidv7"
)

// # Release Repository

// PostgresReleaseRepository implements the [ReleaseRepository] interface using pgx.
type PostgresReleaseRepository struct {
	pool *pgxpool.Pool
}

var _ ReleaseRepository = (*PostgresReleaseRepository)(nil)

// NewPostgresReleaseRepository creates a new PostgreSQL release store.
func NewPostgresReleaseRepository(pool *pgxpool.Pool) *PostgresReleaseRepository {
	return &PostgresReleaseRepository{pool: pool}
}

const releaseColumns = `
	r.id, r.seriesid, s.uid, r.seriestitle, r.nick, r.chapterno,
	r.previouschapter, r.thumbnail, r.pagecount, r.iscomplete, r.visibility,
	r.releasedat`

// scanRelease hydrates one joined release row.
func scanRelease(row pgx.Row) (*Release, error) {
	release := &Release{}
	err := row.Scan(
		&release.ID,
		&release.SeriesID,
		&release.SeriesUID,
		&release.SeriesTitle,
		&release.Nick,
		&release.ChapterNo,
		&release.PreviousChapter,
		&release.Thumbnail,
		&release.PageCount,
		&release.IsComplete,
		&release.Visibility,
		&release.ReleasedAt,
	)
	if err != nil {
		return nil, err
	}
	return release, nil
}

/*
Upsert inserts or refreshes the feed row keyed by (seriesid, chapterno).

Description: Repeated completion signals for the same chapter (a retried
final batch, a manual re-reconcile) land on the same row; releasedat is
bumped so the chapter resurfaces at the top of the feed.

Parameters:
  - context: context.Context
  - release: *Release

Returns:
  - error: Execution errors
*/
func (repository *PostgresReleaseRepository) Upsert(context context.Context, release *Release) error {
	const query = `
		INSERT INTO core.release (
			id, seriesid, seriestitle, nick, chapterno, previouschapter,
			thumbnail, pagecount, iscomplete, visibility, releasedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (seriesid, chapterno) DO UPDATE SET
			seriestitle     = EXCLUDED.seriestitle,
			previouschapter = EXCLUDED.previouschapter,
			thumbnail       = EXCLUDED.thumbnail,
			pagecount       = EXCLUDED.pagecount,
			iscomplete      = EXCLUDED.iscomplete,
			visibility      = EXCLUDED.visibility,
			releasedat      = EXCLUDED.releasedat`

	if release.ID == "" {
		release.ID = uuidv7.New()
	}
	if release.ReleasedAt.IsZero() {
		release.ReleasedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		release.ID,
		release.SeriesID,
		release.SeriesTitle,
		release.Nick,
		release.ChapterNo,
		release.PreviousChapter,
		release.Thumbnail,
		release.PageCount,
		release.IsComplete,
		release.Visibility,
		release.ReleasedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_release_repo_upsert_failed: %w", err)
	}

	return nil
}

/*
Latest returns the most recent feed rows ordered by release time.

Parameters:
  - context: context.Context
  - limit: int (Feed window)
  - includePrivate: bool

Returns:
  - []*Release: Newest-first feed rows
  - error: Execution errors
*/
func (repository *PostgresReleaseRepository) Latest(context context.Context, limit int, includePrivate bool) ([]*Release, error) {
	query := "SELECT " + releaseColumns + " FROM core.release r JOIN core.series s ON s.id = r.seriesid"
	if !includePrivate {
		query += " WHERE r.visibility = 'public' AND s.visibility = 'public'"
	}
	query += " ORDER BY r.releasedat DESC LIMIT $1"

	rows, err := repository.pool.Query(context, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres_release_repo_latest_failed: %w", err)
	}
	defer rows.Close()

	return collectReleases(rows)
}

/*
FindBySeriesChapter returns the feed row for one chapter, or nil when absent.

Description: A missing feed row is a normal eventual-consistency state (the
catalog write and the feed write are separate), so absence is not an error.

Parameters:
  - context: context.Context
  - seriesID: string (UUID primary key)
  - chapterNo: string

Returns:
  - *Release: The row or nil
  - error: Execution errors only
*/
func (repository *PostgresReleaseRepository) FindBySeriesChapter(context context.Context, seriesID, chapterNo string) (*Release, error) {
	query := "SELECT " + releaseColumns +
		" FROM core.release r JOIN core.series s ON s.id = r.seriesid" +
		" WHERE r.seriesid = $1 AND r.chapterno = $2"

	release, err := scanRelease(repository.pool.QueryRow(context, query, seriesID, chapterNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres_release_repo_find_failed: %w", err)
	}

	return release, nil
}

/*
ListBySeries returns one series' feed rows newest-first.

Parameters:
  - context: context.Context
  - seriesID: string (UUID primary key)
  - includePrivate: bool

Returns:
  - []*Release: Visibility-filtered feed rows
  - error: Execution errors
*/
func (repository *PostgresReleaseRepository) ListBySeries(context context.Context, seriesID string, includePrivate bool) ([]*Release, error) {
	query := "SELECT " + releaseColumns + " FROM core.release r JOIN core.series s ON s.id = r.seriesid WHERE r.seriesid = $1"
	if !includePrivate {
		query += " AND r.visibility = 'public'"
	}
	query += " ORDER BY r.releasedat DESC"

	rows, err := repository.pool.Query(context, query, seriesID)
	if err != nil {
		return nil, fmt.Errorf("postgres_release_repo_list_by_series_failed: %w", err)
	}
	defer rows.Close()

	return collectReleases(rows)
}

// collectReleases drains a release row set.
func collectReleases(rows pgx.Rows) ([]*Release, error) {
	var result []*Release
	for rows.Next() {
		release, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_release_repo_scan_failed: %w", err)
		}
		result = append(result, release)
	}
	return result, rows.Err()
}
