// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
PostgreSQL implementation of the catalog's data access.

It leans on Postgres primitives to honour the catalog's concurrency contract:
  - ON CONFLICT upserts: per-chapter and per-release idempotency without
    read-modify-write cycles on an aggregate document.
  - GREATEST: monotonic counter advancement safe under concurrent completions.
  - Case-insensitive unique index on nick for storage-path resolution.
*/
package series

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/dberr"
	"github.com/tankobonhq/tankobon/pkg/uuidv7"
)

// # Series Repository

// PostgresRepository implements the [Repository] interface using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL implementation of [Repository].
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const seriesColumns = `
	id, uid, nick, title, description, status, thumbnail, genre, author,
	anilistid, malid, releasedate, visibility, chaptercount,
	maxchaptersuploaded, viewcount, likecount, createdat, updatedat`

// scanSeries hydrates one series row from any pgx row source.
func scanSeries(row pgx.Row) (*Series, error) {
	entity := &Series{}
	err := row.Scan(
		&entity.ID,
		&entity.UID,
		&entity.Nick,
		&entity.Title,
		&entity.Description,
		&entity.Status,
		&entity.Thumbnail,
		&entity.Genre,
		&entity.Author,
		&entity.AniListID,
		&entity.MALID,
		&entity.ReleaseDate,
		&entity.Visibility,
		&entity.ChapterCount,
		&entity.MaxChaptersUploaded,
		&entity.ViewCount,
		&entity.LikeCount,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

/*
Create persists a new series record into the core.series table.

Description: Relies on the unique indexes over title, uid, and lower(nick);
violations surface as 409 Conflict via dberr.

Parameters:
  - context: context.Context
  - series: *Series (Entity to persist; ID/UID pre-generated by the service)

Returns:
  - error: Conflict or connectivity errors
*/
func (repository *PostgresRepository) Create(context context.Context, series *Series) error {
	const query = `
		INSERT INTO core.series (
			id, uid, nick, title, description, status, thumbnail, genre, author,
			anilistid, malid, releasedate, visibility, chaptercount,
			maxchaptersuploaded, viewcount, likecount, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	now := time.Now()
	if series.CreatedAt.IsZero() {
		series.CreatedAt = now
	}
	series.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		series.ID,
		series.UID,
		series.Nick,
		series.Title,
		series.Description,
		series.Status,
		series.Thumbnail,
		series.Genre,
		series.Author,
		series.AniListID,
		series.MALID,
		series.ReleaseDate,
		series.Visibility,
		series.ChapterCount,
		series.MaxChaptersUploaded,
		series.ViewCount,
		series.LikeCount,
		series.CreatedAt,
		series.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "series_create")
	}

	return nil
}

/*
FindByUID retrieves a series by its 5-digit public code.

Parameters:
  - context: context.Context
  - uid: string (Public code)

Returns:
  - *Series: Hydrated catalog entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByUID(context context.Context, uid string) (*Series, error) {
	query := "SELECT " + seriesColumns + " FROM core.series WHERE uid = $1"

	entity, err := scanSeries(repository.pool.QueryRow(context, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Series")
		}
		return nil, fmt.Errorf("postgres_series_repo_find_by_uid_failed: %w", err)
	}

	return entity, nil
}

/*
FindByNick retrieves a series by its storage slug, compared case-insensitively.

Parameters:
  - context: context.Context
  - nick: string

Returns:
  - *Series: Hydrated catalog entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByNick(context context.Context, nick string) (*Series, error) {
	query := "SELECT " + seriesColumns + " FROM core.series WHERE LOWER(nick) = LOWER($1)"

	entity, err := scanSeries(repository.pool.QueryRow(context, query, nick))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Series")
		}
		return nil, fmt.Errorf("postgres_series_repo_find_by_nick_failed: %w", err)
	}

	return entity, nil
}

/*
List returns all series ordered by last update with a windowed total count.

Parameters:
  - context: context.Context
  - includePrivate: bool (false appends a visibility filter)
  - limit, offset: int

Returns:
  - []*Series: Page of catalog entities
  - int: Total count after visibility filtering
  - error: Execution errors
*/
func (repository *PostgresRepository) List(context context.Context, includePrivate bool, limit, offset int) ([]*Series, int, error) {
	query := "SELECT " + seriesColumns + ", COUNT(*) OVER() AS totalcount FROM core.series"
	if !includePrivate {
		query += " WHERE visibility = 'public'"
	}
	query += " ORDER BY updatedat DESC LIMIT $1 OFFSET $2"

	rows, err := repository.pool.Query(context, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_series_repo_list_failed: %w", err)
	}
	defer rows.Close()

	var result []*Series
	var total int

	for rows.Next() {
		entity := &Series{}
		err := rows.Scan(
			&entity.ID,
			&entity.UID,
			&entity.Nick,
			&entity.Title,
			&entity.Description,
			&entity.Status,
			&entity.Thumbnail,
			&entity.Genre,
			&entity.Author,
			&entity.AniListID,
			&entity.MALID,
			&entity.ReleaseDate,
			&entity.Visibility,
			&entity.ChapterCount,
			&entity.MaxChaptersUploaded,
			&entity.ViewCount,
			&entity.LikeCount,
			&entity.CreatedAt,
			&entity.UpdatedAt,
			&total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres_series_repo_list_scan_failed: %w", err)
		}
		result = append(result, entity)
	}

	return result, total, rows.Err()
}

/*
UpdateFields applies a column/value map to one series row.

Description: Keys must already be whitelisted column names; the store only
assembles the parameterised SET clause and refreshes updatedat.

Parameters:
  - context: context.Context
  - id: string (UUID primary key)
  - fields: map[string]any (column -> new value)

Returns:
  - error: apperr.NotFound when the row is missing
*/
func (repository *PostgresRepository) UpdateFields(context context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	var builder strings.Builder
	builder.WriteString("UPDATE core.series SET updatedat = NOW()")

	args := []any{id}
	argID := 2
	for column, value := range fields {
		builder.WriteString(fmt.Sprintf(", %s = $%d", column, argID))
		args = append(args, value)
		argID++
	}
	builder.WriteString(" WHERE id = $1")

	tag, err := repository.pool.Exec(context, builder.String(), args...)
	if err != nil {
		return dberr.Wrap(err, "series_update_fields")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Series")
	}

	return nil
}

/*
AddStats atomically increments the engagement counters on one series.

Parameters:
  - context: context.Context
  - id: string (UUID primary key)
  - views, likes: int64 (Deltas)

Returns:
  - error: apperr.NotFound when the row is missing
*/
func (repository *PostgresRepository) AddStats(context context.Context, id string, views, likes int64) error {
	const query = `
		UPDATE core.series
		SET viewcount = viewcount + $2, likecount = likecount + $3
		WHERE id = $1`

	tag, err := repository.pool.Exec(context, query, id, views, likes)
	if err != nil {
		return fmt.Errorf("postgres_series_repo_add_stats_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Series")
	}

	return nil
}

// # Chapter Access

const chapterColumns = `
	id, seriesid, chapterno, name, iscomplete, pagecount, thumbnail,
	visibility, createdat, updatedat`

/*
ListChapters returns the chapters of a series in creation order.

Parameters:
  - context: context.Context
  - seriesID: string (UUID primary key)
  - includePrivate: bool

Returns:
  - []*Chapter: Visibility-filtered chapter rows
  - error: Execution errors
*/
func (repository *PostgresRepository) ListChapters(context context.Context, seriesID string, includePrivate bool) ([]*Chapter, error) {
	query := "SELECT " + chapterColumns + " FROM core.chapter WHERE seriesid = $1"
	if !includePrivate {
		query += " AND visibility = 'public'"
	}
	query += " ORDER BY createdat ASC"

	rows, err := repository.pool.Query(context, query, seriesID)
	if err != nil {
		return nil, fmt.Errorf("postgres_series_repo_list_chapters_failed: %w", err)
	}
	defer rows.Close()

	var result []*Chapter
	for rows.Next() {
		chapter := &Chapter{}
		err := rows.Scan(
			&chapter.ID,
			&chapter.SeriesID,
			&chapter.ChapterNo,
			&chapter.Name,
			&chapter.IsComplete,
			&chapter.PageCount,
			&chapter.Thumbnail,
			&chapter.Visibility,
			&chapter.CreatedAt,
			&chapter.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres_series_repo_list_chapters_scan_failed: %w", err)
		}
		result = append(result, chapter)
	}

	return result, rows.Err()
}

/*
FindChapter retrieves one chapter by exact chapterNo equality.

Parameters:
  - context: context.Context
  - seriesID: string (UUID primary key)
  - chapterNo: string (Opaque chapter key)

Returns:
  - *Chapter: The chapter row
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindChapter(context context.Context, seriesID, chapterNo string) (*Chapter, error) {
	query := "SELECT " + chapterColumns + " FROM core.chapter WHERE seriesid = $1 AND chapterno = $2"

	chapter := &Chapter{}
	err := repository.pool.QueryRow(context, query, seriesID, chapterNo).Scan(
		&chapter.ID,
		&chapter.SeriesID,
		&chapter.ChapterNo,
		&chapter.Name,
		&chapter.IsComplete,
		&chapter.PageCount,
		&chapter.Thumbnail,
		&chapter.Visibility,
		&chapter.CreatedAt,
		&chapter.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Chapter")
		}
		return nil, fmt.Errorf("postgres_series_repo_find_chapter_failed: %w", err)
	}

	return chapter, nil
}

/*
UpsertChapter inserts or updates one chapter row keyed by (seriesid, chapterno).

Description: The ON CONFLICT clause is the reconciliation idempotency
boundary. Re-reconciling a chapter updates the existing row in place with
the latest completion data; the unique index guarantees no duplicates under
concurrent completion signals.

Parameters:
  - context: context.Context
  - chapter: *Chapter (Target series, chapter key, and completion data)

Returns:
  - error: Execution errors
*/
func (repository *PostgresRepository) UpsertChapter(context context.Context, chapter *Chapter) error {
	const query = `
		INSERT INTO core.chapter (
			id, seriesid, chapterno, name, iscomplete, pagecount, thumbnail,
			visibility, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (seriesid, chapterno) DO UPDATE SET
			name       = EXCLUDED.name,
			iscomplete = EXCLUDED.iscomplete,
			pagecount  = EXCLUDED.pagecount,
			thumbnail  = EXCLUDED.thumbnail,
			visibility = EXCLUDED.visibility,
			updatedat  = EXCLUDED.updatedat`

	if chapter.ID == "" {
		chapter.ID = uuidv7.New()
	}

	_, err := repository.pool.Exec(context, query,
		chapter.ID,
		chapter.SeriesID,
		chapter.ChapterNo,
		chapter.Name,
		chapter.IsComplete,
		chapter.PageCount,
		chapter.Thumbnail,
		chapter.Visibility,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("postgres_series_repo_upsert_chapter_failed: %w", err)
	}

	return nil
}

/*
UpdateChapterFields applies a column/value map to one chapter row.

Parameters:
  - context: context.Context
  - seriesID: string (UUID primary key)
  - chapterNo: string (Opaque chapter key)
  - fields: map[string]any (whitelisted column -> new value)

Returns:
  - error: apperr.NotFound when the row is missing
*/
func (repository *PostgresRepository) UpdateChapterFields(context context.Context, seriesID, chapterNo string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	var builder strings.Builder
	builder.WriteString("UPDATE core.chapter SET updatedat = NOW()")

	args := []any{seriesID, chapterNo}
	argID := 3
	for column, value := range fields {
		builder.WriteString(fmt.Sprintf(", %s = $%d", column, argID))
		args = append(args, value)
		argID++
	}
	builder.WriteString(" WHERE seriesid = $1 AND chapterno = $2")

	tag, err := repository.pool.Exec(context, builder.String(), args...)
	if err != nil {
		return dberr.Wrap(err, "chapter_update_fields")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Chapter")
	}

	return nil
}

/*
AdvanceChapterCount lifts both completion counters to at least n.

Description: GREATEST keeps the update monotonic at the SQL level, so two
chapters completing out of order (e.g. "3" then "1") leave the counters at 3.

Parameters:
  - context: context.Context
  - seriesID: string (UUID primary key)
  - n: int (Numeric value of the completing chapter)

Returns:
  - error: Execution errors
*/
func (repository *PostgresRepository) AdvanceChapterCount(context context.Context, seriesID string, n int) error {
	const query = `
		UPDATE core.series
		SET chaptercount        = GREATEST(chaptercount, $2),
		    maxchaptersuploaded = GREATEST(maxchaptersuploaded, $2),
		    updatedat           = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, seriesID, n)
	if err != nil {
		return fmt.Errorf("postgres_series_repo_advance_count_failed: %w", err)
	}

	return nil
}
