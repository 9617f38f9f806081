// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
Package account handles user profile management, bookmarks, and security settings.

It provides functionalities for users to view and update their private identity
data, track their reading progress per series, and manage their active device
sessions.

# Architecture

  - Entities: Bookmark, SessionInfo (DTO).
  - Domain: This package depends on the auth package for the Account entity.
  - Security: Provides session transparency and revocation mechanisms.
*/
package account

import (
	"context"
	"time"

	"github.com/tankobonhq/tankobon/internal/users/auth"
)

// # Domain Entities

// Bookmark tracks one account's relationship with one series: where they left
// off, how they rated it, and which chapters they liked. At most one bookmark
// exists per (account, series) pair; saves are upserts.
type Bookmark struct {
	ID            string    `json:"-"`
	AccountID     string    `json:"-"`
	SeriesUID     string    `json:"series_id"`
	Thumbnail     string    `json:"thumbnail,omitempty"`
	Rating        int       `json:"rating"`    // 0 means unrated; 1-10 otherwise.
	LastRead      string    `json:"last_read"` // Chapter number the reader last opened.
	LikedChapters []string  `json:"liked_chapters"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SessionInfo provides a safety-mapped view of an active account session.
// It omits sensitive token hashes for transport.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"device_name"` // e.g. "Chrome on Windows"
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsCurrent  bool      `json:"is_current"` // True if this session belongs to the current request
}

// # Repository Contracts

// AccountRepository defines the persistence contract for account profiles.
type AccountRepository interface {
	/*
		FindByID retrieves an account record by its unique ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *auth.Account: Loaded account entity
		  - error: apperr.NotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*auth.Account, error)

	/*
		Update modifies the mutable profile fields of an existing account.

		Parameters:
		  - context: context.Context
		  - account: *auth.Account (Hydrated entity with changes)

		Returns:
		  - error: Storage or constraint failures
	*/
	Update(context context.Context, account *auth.Account) error

	/*
		SoftDelete flags an account as logically deleted.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Execution failures
	*/
	SoftDelete(context context.Context, id string) error
}

// BookmarkRepository defines the persistence contract for reading bookmarks.
type BookmarkRepository interface {
	/*
		Upsert saves a bookmark, replacing any existing one for the same
		(account, series) pair.

		Parameters:
		  - context: context.Context
		  - bookmark: *Bookmark

		Returns:
		  - error: Storage failure errors
	*/
	Upsert(context context.Context, bookmark *Bookmark) error

	/*
		ListByAccount returns every bookmark belonging to an account, most
		recently updated first.

		Parameters:
		  - context: context.Context
		  - accountID: string

		Returns:
		  - []*Bookmark: Hydrated bookmarks
		  - error: Retrieval errors
	*/
	ListByAccount(context context.Context, accountID string) ([]*Bookmark, error)

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
	FindBySeries(context context.Context, accountID, seriesUID string) (*Bookmark, error)

	/*
		Delete removes the account's bookmark for one series.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - seriesUID: string

		Returns:
		  - error: Deletion failures
	*/
	Delete(context context.Context, accountID, seriesUID string) error
}

// SessionRepository defines the visibility and revocation contract for account sessions.
type SessionRepository interface {
	/*
		FindActiveByAccountID lists all valid, non-expired sessions for an account.

		Parameters:
		  - context: context.Context
		  - accountID: string

		Returns:
		  - []SessionInfo: List of active devices
		  - error: Retrieval errors
	*/
	FindActiveByAccountID(context context.Context, accountID string) ([]SessionInfo, error)

	/*
		Revoke marks a specific session as revoked.

		Parameters:
		  - context: context.Context
		  - accountID: string (Security constraint: owner validation)
		  - sessionID: string

		Returns:
		  - string: Token hash of the revoked session, for cache eviction
		  - error: Revocation failures
	*/
	Revoke(context context.Context, accountID, sessionID string) (string, error)

	/*
		RevokeAll terminates every session for an account.

		Parameters:
		  - context: context.Context
		  - accountID: string

		Returns:
		  - []string: Token hashes of the revoked sessions, for cache eviction
		  - error: Revocation failures
	*/
	RevokeAll(context context.Context, accountID string) ([]string, error)
}

// SessionCache evicts cached sessions once their rows are revoked. The auth
// package's Redis cache satisfies it.
type SessionCache interface {
	Drop(context context.Context, tokenHash string) error
}
