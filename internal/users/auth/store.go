// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package auth

import (
	"context"
	"time"
)

// # Account Data Access

// AccountRepository defines the data access contract for accounts of any kind.
type AccountRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Account: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Account, error)

	/*
		FindByEmail returns the registered account with the given email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *Account: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*Account, error)

	/*
		FindByUsername returns the account with the given username, regardless
		of kind. Guest restoration resolves through this single lookup.

		Parameters:
		  - context: context.Context
		  - username: string

		Returns:
		  - *Account: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByUsername(context context.Context, username string) (*Account, error)

	/*
		Create persists a brand-new account to the storage.

		Parameters:
		  - context: context.Context
		  - account: *Account

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, account *Account) error

	/*
		Update persists changes to mutable profile fields.

		Parameters:
		  - context: context.Context
		  - account: *Account

		Returns:
		  - error: Persistence failures
	*/
	Update(context context.Context, account *Account) error

	/*
		UpdatePassword replaces only the account's password hash.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, accountID, newHash string) error

	/*
		SoftDelete marks the account as deleted without removing the row.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	SoftDelete(context context.Context, id string) error
}

// # Session Data Access

// SessionRepository defines the data access contract for sliding-expiry sessions.
type SessionRepository interface {

	/*
		Create persists a new tracking session for an authenticated login.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByTokenHash returns the active session matching the given token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	/*
		Touch pushes the session deadline forward. Called on every authenticated
		use of the session to implement the sliding-expiry policy.

		Parameters:
		  - context: context.Context
		  - sessionID: string
		  - expiresAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	Touch(context context.Context, sessionID string, expiresAt time.Time) error

	/*
		Revoke marks a specific session as permanently invalidated.

		Parameters:
		  - context: context.Context
		  - sessionID: string

		Returns:
		  - error: Persistence failures
	*/
	Revoke(context context.Context, sessionID string) error

	/*
		RevokeAll revokes every active session belonging to the accountID.

		Parameters:
		  - context: context.Context
		  - accountID: string

		Returns:
		  - []string: Token hashes of the revoked sessions, so callers can
		    evict their cache entries
		  - error: Persistence failures
	*/
	RevokeAll(context context.Context, accountID string) ([]string, error)

	/*
		RevokeOthers revokes all sessions belonging to the accountID except for the current session.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - currentSessionID: string

		Returns:
		  - []string: Token hashes of the revoked sessions, so callers can
		    evict their cache entries
		  - error: Persistence failures
	*/
	RevokeOthers(context context.Context, accountID, currentSessionID string) ([]string, error)

	/*
		DeleteExpired physically removes sessions whose ExpiresAt is in the past.

		Parameters:
		  - context: context.Context

		Returns:
		  - error: Persistence failures
	*/
	DeleteExpired(context context.Context) error
}

// SessionCache fronts the session table with a volatile lookup keyed by token
// hash, so the hot path of every authenticated request avoids a Postgres
// round-trip. Entries expire alongside the session they mirror.
type SessionCache interface {

	/*
		Put stores a session snapshot under its token hash.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Storage failures
	*/
	Put(context context.Context, session *Session) error

	/*
		Get retrieves the cached session for a token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Cached snapshot, or nil on a miss
		  - error: Connectivity failures
	*/
	Get(context context.Context, tokenHash string) (*Session, error)

	/*
		Drop evicts the cached session for a token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - error: Eviction failures
	*/
	Drop(context context.Context, tokenHash string) error
}

// # Volatile Data Access

// ResetTokenRepository defines the contract for storing volatile password reset tokens.
type ResetTokenRepository interface {

	/*
		Set stores a reset token associated with an accountID for a limited duration.

		Parameters:
		  - context: context.Context
		  - token: string
		  - accountID: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, token string, accountID string, ttl time.Duration) error

	/*
		Get retrieves the accountID associated with a given reset token.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - string: AccountID
		  - error: Retrieval failures
	*/
	Get(context context.Context, token string) (string, error)

	/*
		Delete removes a reset token after successful use.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, token string) error
}
