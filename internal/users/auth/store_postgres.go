// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/dberr"
)

// # Account Repository

const accountColumns = "id, kind, username, email, passwordhash, displayname, avatarurl, role, createdat, updatedat"

// PostgresAccountRepository implements the AccountRepository interface using pgx.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new PostgreSQL implementation of the AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// scanAccount hydrates a single account entity from a row.
func scanAccount(row pgx.Row) (*Account, error) {
	account := &Account{}
	err := row.Scan(
		&account.ID,
		&account.Kind,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.DisplayName,
		&account.AvatarURL,
		&account.Role,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

/*
Create persists a new account record into the users.account table.

Description: Deep-persists account metadata of either kind, ensuring timestamps
are initialized if not provided.

Parameters:
  - context: context.Context
  - account: *Account (Entity to persist)

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresAccountRepository) Create(context context.Context, account *Account) error {
	const query = `
		INSERT INTO users.account (
			id, kind, username, email, passwordhash, displayname, avatarurl, role, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		account.ID,
		account.Kind,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		account.AvatarURL,
		account.Role,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "postgres_account_repo_create_failed")
	}

	return nil
}

/*
FindByEmail retrieves a registered account by its unique email address.

Description: Performs a lookup on the account table, filtering out soft-deleted
accounts. Anonymous accounts never match because their email column is empty.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Account: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresAccountRepository) FindByEmail(context context.Context, email string) (*Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM users.account
		WHERE email = $1 AND email != '' AND deletedat IS NULL`

	account, err := scanAccount(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account not found with this email")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_email_failed: %w", err)
	}

	return account, nil
}

/*
FindByUsername retrieves an account by its unique username.

Description: Single lookup serving both member login and guest restoration;
the caller inspects Kind when the distinction matters.

Parameters:
  - context: context.Context
  - username: string

Returns:
  - *Account: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresAccountRepository) FindByUsername(context context.Context, username string) (*Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM users.account
		WHERE username = $1 AND deletedat IS NULL`

	account, err := scanAccount(repository.pool.QueryRow(context, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account not found with this username")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_username_failed: %w", err)
	}

	return account, nil
}

/*
FindByID retrieves an account record by its unique ID.

Description: Primary key resolution for accounts.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Account: Hydrated account entity
  - error: Not found or execution errors
*/
func (repository *PostgresAccountRepository) FindByID(context context.Context, id string) (*Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM users.account
		WHERE id = $1 AND deletedat IS NULL`

	account, err := scanAccount(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account not found")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_id_failed: %w", err)
	}

	return account, nil
}

/*
Update persists changes to an account's mutable profile fields.

Description: Synchronizes the in-memory account state with the database,
refreshing the updatedat timestamp. Kind and credentials are immutable here.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - error: Update failures
*/
func (repository *PostgresAccountRepository) Update(context context.Context, account *Account) error {
	const query = `
		UPDATE users.account
		SET username = $2, displayname = $3, avatarurl = $4, updatedat = $5
		WHERE id = $1 AND deletedat IS NULL`

	account.UpdatedAt = time.Now()
	_, err := repository.pool.Exec(context, query,
		account.ID,
		account.Username,
		account.DisplayName,
		account.AvatarURL,
		account.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "postgres_account_repo_update_failed")
	}

	return nil
}

/*
UpdatePassword updates only the password hash for a specific account.

Parameters:
  - context: context.Context
  - accountID: string
  - newHash: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresAccountRepository) UpdatePassword(context context.Context, accountID, newHash string) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	_, err := repository.pool.Exec(context, query, accountID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_account_repo_update_password_failed: %w", err)
	}

	return nil
}

/*
SoftDelete marks an account as deleted using its ID.

Description: Retention-friendly deletion by setting deletedat.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Side-effect failures
*/
func (repository *PostgresAccountRepository) SoftDelete(context context.Context, id string) error {
	const query = "UPDATE users.account SET deletedat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_account_repo_soft_delete_failed: %w", err)
	}
	return nil
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
Create persists a new session record into the users.session table.

Description: Records a successful authentication session in persistent storage.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO users.session (
			id, accountid, tokenhash, useragent, ipaddress, expiresat, isrevoked, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.AccountID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.IsRevoked,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByTokenHash retrieves an active session by its unique token hash.

Description: Securely resolves a refresh token hash into an active session.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated session metadata
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT id, accountid, tokenhash, useragent, ipaddress, expiresat, isrevoked, createdat
		FROM users.session
		WHERE tokenhash = $1 AND isrevoked = FALSE AND expiresat > NOW()`

	session := &Session{}
	err := repository.pool.QueryRow(context, query, tokenHash).Scan(
		&session.ID,
		&session.AccountID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session not found or expired")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

/*
Touch pushes the session deadline forward to implement sliding expiry.

Parameters:
  - context: context.Context
  - sessionID: string
  - expiresAt: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) Touch(context context.Context, sessionID string, expiresAt time.Time) error {
	const query = "UPDATE users.session SET expiresat = $2 WHERE id = $1 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(context, query, sessionID, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_touch_failed: %w", err)
	}
	return nil
}

/*
Revoke marks a specific session as revoked.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - error: Revocation failures
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, sessionID string) error {
	const query = "UPDATE users.session SET isrevoked = TRUE WHERE id = $1"
	_, err := repository.pool.Exec(context, query, sessionID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}
	return nil
}

/*
RevokeAll marks all active sessions for an account as revoked.

Description: Security nuking of all active sessions for an account. The
token hashes of the revoked rows are returned so the session cache can be
evicted; a revocation that only touched Postgres would leave the cached
sessions usable until their TTL.

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
		return nil, fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}

	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_revoke_all_scan_failed: %w", err)
	}
	return hashes, nil
}

/*
RevokeOthers marks all active sessions for an account as revoked, except for one.

Parameters:
  - context: context.Context
  - accountID: string
  - currentSessionID: string

Returns:
  - []string: Token hashes of the revoked sessions
  - error: Filtered revocation failures
*/
func (repository *PostgresSessionRepository) RevokeOthers(context context.Context, accountID, currentSessionID string) ([]string, error) {
	const query = "UPDATE users.session SET isrevoked = TRUE WHERE accountid = $1 AND id != $2 AND isrevoked = FALSE RETURNING tokenhash"

	rows, err := repository.pool.Query(context, query, accountID, currentSessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_revoke_others_failed: %w", err)
	}

	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_revoke_others_scan_failed: %w", err)
	}
	return hashes, nil
}

/*
DeleteExpired permanently removes all sessions that have passed their expiration.

Description: Cleanup task to reclaim storage from stale sessions.

Parameters:
  - context: context.Context

Returns:
  - error: Cleanup failures
*/
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context) error {
	const query = "DELETE FROM users.session WHERE expiresat <= NOW()"
	_, err := repository.pool.Exec(context, query)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return nil
}
