// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/dberr"
)

// The account profile itself is persisted by the auth package's repository;
// this file covers the tables owned by the account domain:
//   - users.bookmark: per-(account, series) reading state.
//   - users.session:  read-only auditing view plus targeted revocation.

// # Bookmark Repository

// PostgresBookmarkRepository implements [BookmarkRepository] using pgx.
type PostgresBookmarkRepository struct {
	pool *pgxpool.Pool
}

// NewBookmarkRepository creates a new Postgres implementation for bookmarks.
func NewBookmarkRepository(pool *pgxpool.Pool) *PostgresBookmarkRepository {
	return &PostgresBookmarkRepository{pool: pool}
}

const bookmarkColumns = "id, accountid, seriesuid, thumbnail, rating, lastread, likedchapters, createdat, updatedat"

// scanBookmark hydrates a single bookmark entity from a row.
func scanBookmark(row pgx.Row) (*Bookmark, error) {
	bookmark := &Bookmark{}
	err := row.Scan(
		&bookmark.ID,
		&bookmark.AccountID,
		&bookmark.SeriesUID,
		&bookmark.Thumbnail,
		&bookmark.Rating,
		&bookmark.LastRead,
		&bookmark.LikedChapters,
		&bookmark.CreatedAt,
		&bookmark.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return bookmark, nil
}

/*
Upsert saves a bookmark, replacing any existing row for the same
(account, series) pair.

Description: Keyed on the (accountid, seriesuid) unique constraint so repeated
saves from the reader never produce duplicate rows.

Parameters:
  - context: context.Context
  - bookmark: *Bookmark

Returns:
  - error: Constraint or execution failures
*/
func (repository *PostgresBookmarkRepository) Upsert(context context.Context, bookmark *Bookmark) error {
	const query = `
		INSERT INTO users.bookmark (
			id, accountid, seriesuid, thumbnail, rating, lastread, likedchapters, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (accountid, seriesuid) DO UPDATE SET
			thumbnail = EXCLUDED.thumbnail,
			rating = EXCLUDED.rating,
			lastread = EXCLUDED.lastread,
			likedchapters = EXCLUDED.likedchapters,
			updatedat = EXCLUDED.updatedat`

	_, err := repository.pool.Exec(context, query,
		bookmark.ID,
		bookmark.AccountID,
		bookmark.SeriesUID,
		bookmark.Thumbnail,
		bookmark.Rating,
		bookmark.LastRead,
		bookmark.LikedChapters,
		bookmark.CreatedAt,
		bookmark.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "postgres_bookmark_repo_upsert_failed")
	}

	return nil
}

/*
ListByAccount returns every bookmark belonging to an account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - []*Bookmark: Most recently updated first
  - error: Retrieval failures
*/
func (repository *PostgresBookmarkRepository) ListByAccount(context context.Context, accountID string) ([]*Bookmark, error) {
	const query = `
		SELECT ` + bookmarkColumns + `
		FROM users.bookmark
		WHERE accountid = $1
		ORDER BY updatedat DESC`

	rows, err := repository.pool.Query(context, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres_bookmark_repo_list_failed: %w", err)
	}
	defer rows.Close()

	bookmarks := make([]*Bookmark, 0)
	for rows.Next() {
		bookmark, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_bookmark_repo_scan_failed: %w", err)
		}
		bookmarks = append(bookmarks, bookmark)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_bookmark_repo_rows_failed: %w", err)
	}

	return bookmarks, nil
}

/*
FindBySeries returns the account's bookmark for one series.

Parameters:
  - context: context.Context
  - accountID: string
  - seriesUID: string

Returns:
  - *Bookmark: Hydrated bookmark
  - error: apperr.NotFound if none exists
*/
func (repository *PostgresBookmarkRepository) FindBySeries(context context.Context, accountID, seriesUID string) (*Bookmark, error) {
	const query = `
		SELECT ` + bookmarkColumns + `
		FROM users.bookmark
		WHERE accountid = $1 AND seriesuid = $2`

	bookmark, err := scanBookmark(repository.pool.QueryRow(context, query, accountID, seriesUID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Bookmark not found")
		}
		return nil, fmt.Errorf("postgres_bookmark_repo_find_failed: %w", err)
	}

	return bookmark, nil
}

/*
Delete removes the account's bookmark for one series.

Description: Idempotent; deleting an absent bookmark is not an error.

Parameters:
  - context: context.Context
  - accountID: string
  - seriesUID: string

Returns:
  - error: Execution failures
*/
func (repository *PostgresBookmarkRepository) Delete(context context.Context, accountID, seriesUID string) error {
	const query = "DELETE FROM users.bookmark WHERE accountid = $1 AND seriesuid = $2"
	_, err := repository.pool.Exec(context, query, accountID, seriesUID)
	if err != nil {
		return fmt.Errorf("postgres_bookmark_repo_delete_failed: %w", err)
	}
	return nil
}

// # Session View Repository

// PostgresSessionRepository implements [SessionRepository] using pgx.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new Postgres implementation for session auditing.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
FindActiveByAccountID lists all valid, non-expired sessions for an account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - []SessionInfo: List of active devices
  - error: Retrieval errors
*/
func (repository *PostgresSessionRepository) FindActiveByAccountID(context context.Context, accountID string) ([]SessionInfo, error) {
	const query = `
		SELECT id, useragent, ipaddress, createdat, expiresat
		FROM users.session
		WHERE accountid = $1 AND isrevoked = FALSE AND expiresat > NOW()
		ORDER BY createdat DESC`

	rows, err := repository.pool.Query(context, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_view_repo_list_failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]SessionInfo, 0)
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.DeviceName, &info.IPAddress, &info.CreatedAt, &info.ExpiresAt); err != nil {
			return nil, fmt.Errorf("postgres_session_view_repo_scan_failed: %w", err)
		}
		sessions = append(sessions, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_view_repo_rows_failed: %w", err)
	}

	return sessions, nil
}

/*
Revoke marks a specific session as revoked, constrained to the owning account.

Parameters:
  - context: context.Context
  - accountID: string
  - sessionID: string

Returns:
  - string: Token hash of the revoked session
  - error: apperr.NotFound if the session does not belong to the account
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, accountID, sessionID string) (string, error) {
	const query = "UPDATE users.session SET isrevoked = TRUE WHERE id = $1 AND accountid = $2 RETURNING tokenhash"

	var tokenHash string
	err := repository.pool.QueryRow(context, query, sessionID, accountID).Scan(&tokenHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("Session not found")
		}
		return "", fmt.Errorf("postgres_session_view_repo_revoke_failed: %w", err)
	}
	return tokenHash, nil
}

/*
RevokeAll terminates every session for an account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - []string: Token hashes of the revoked sessions
  - error: Batch revocation failures
*/
func (repository *PostgresSessionRepository) RevokeAll(context context.Context, accountID string) ([]string, error) {
	const query = "UPDATE users.session SET isrevoked = TRUE WHERE accountid = $1 AND isrevoked = FALSE RETURNING tokenhash"

	rows, err := repository.pool.Query(context, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_view_repo_revoke_all_failed: %w", err)
	}

	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres_session_view_repo_revoke_all_scan_failed: %w", err)
	}
	return hashes, nil
}
