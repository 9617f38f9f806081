// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tankobonhq/tankobon/internal/users/auth"
	"github.com/tankobonhq/tankobon/pkg/pointer"
	"github.com/tankobonhq/tankobon/pkg/uuidv7"
)

// # Service Layer

// Service orchestrates business logic for account profiles and bookmarks.
//
// It ensures that profile updates, bookmark persistence, and session
// security cleanup follow established business constraints.
type Service struct {
	accountRepository  AccountRepository
	bookmarkRepository BookmarkRepository
	sessionRepository  SessionRepository
	sessionCache       SessionCache
	logger             *slog.Logger
}

// NewService constructs a new [Service] with its repository dependencies.
// A nil sessionCache disables cache eviction on revocation.
func NewService(
	accountRepo AccountRepository,
	bookmarkRepo BookmarkRepository,
	sessionRepo SessionRepository,
	sessionCache SessionCache,
	logger *slog.Logger,
) *Service {
	return &Service{
		accountRepository:  accountRepo,
		bookmarkRepository: bookmarkRepo,
		sessionRepository:  sessionRepo,
		sessionCache:       sessionCache,
		logger:             logger,
	}
}

// dropCached evicts one revoked session from the cache.
func (service *Service) dropCached(context context.Context, tokenHash string) {
	if service.sessionCache != nil && tokenHash != "" {
		_ = service.sessionCache.Drop(context, tokenHash)
	}
}

// # Profile Management

/*
GetProfile retrieves the full private identity of an account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - *auth.Account: The hydrated profile
  - error: Not found or execution failures
*/
func (service *Service) GetProfile(context context.Context, accountID string) (*auth.Account, error) {
	account, err := service.accountRepository.FindByID(context, accountID)
	if err != nil {
		return nil, fmt.Errorf("account_service_get_profile_failed: %w", err)
	}
	return account, nil
}

// UpdateProfileInput defines the mutable subset of profile fields.
type UpdateProfileInput struct {
	DisplayName *string
	AvatarURL   *string
}

/*
UpdateProfile applies a partial set of changes to an account's metadata.

Description: Fetches the existing account state, overrides provided fields, and
synchronizes the change to persistent storage. Works identically for registered
members and anonymous guests.

Parameters:
  - context: context.Context
  - accountID: string
  - input: UpdateProfileInput

Returns:
  - *auth.Account: The updated profile
  - error: Update or storage failures
*/
func (service *Service) UpdateProfile(context context.Context, accountID string, input UpdateProfileInput) (*auth.Account, error) {

	account, err := service.accountRepository.FindByID(context, accountID)
	if err != nil {
		return nil, fmt.Errorf("account_service_update_lookup_failed: %w", err)
	}

	// Apply delta updates
	if input.DisplayName != nil {
		account.DisplayName = *input.DisplayName
	}

	// Apply delta updates
	if input.AvatarURL != nil {
		account.AvatarURL = *input.AvatarURL
	}

	// Persist changes
	if err := service.accountRepository.Update(context, account); err != nil {
		return nil, fmt.Errorf("account_service_update_failed: %w", err)
	}

	service.logger.Info("account_profile_updated", slog.String("account_id", accountID))

	return account, nil
}

/*
DeleteAccount performs an idempotent soft-deletion of an account.

Description: Flags the account as deleted and immediately terminates all active
security sessions to force a global sign-out.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - error: Execution failures
*/
func (service *Service) DeleteAccount(context context.Context, accountID string) error {

	if err := service.accountRepository.SoftDelete(context, accountID); err != nil {
		return fmt.Errorf("account_service_delete_failed: %w", err)
	}

	// Force global revocation of sessions for the deleted account
	if hashes, err := service.sessionRepository.RevokeAll(context, accountID); err == nil {
		for _, hash := range hashes {
			service.dropCached(context, hash)
		}
	}

	service.logger.Warn("account_deleted", slog.String("account_id", accountID))

	return nil
}

// # Bookmark Management

// SaveBookmarkInput carries a bookmark save; absent fields keep their stored values.
type SaveBookmarkInput struct {
	SeriesUID     string
	Thumbnail     *string
	Rating        *int
	LastRead      *string
	LikedChapters []string
}

/*
SaveBookmark creates or updates the account's bookmark for a series.

Description: At most one bookmark exists per (account, series) pair. A repeat
save merges the provided fields over the stored state and upserts the result,
so clients can report reading progress without resending the whole bookmark.

Parameters:
  - context: context.Context
  - accountID: string
  - input: SaveBookmarkInput

Returns:
  - *Bookmark: The persisted bookmark
  - error: Storage failures
*/
func (service *Service) SaveBookmark(context context.Context, accountID string, input SaveBookmarkInput) (*Bookmark, error) {

	// Start from the stored bookmark so partial saves do not erase fields.
	bookmark, err := service.bookmarkRepository.FindBySeries(context, accountID, input.SeriesUID)
	if err != nil {
		bookmark = &Bookmark{
			ID:        uuidv7.New(),
			AccountID: accountID,
			SeriesUID: input.SeriesUID,
			CreatedAt: time.Now(),
		}
	}

	bookmark.Thumbnail = pointer.Fallback(input.Thumbnail, bookmark.Thumbnail)
	bookmark.Rating = pointer.Fallback(input.Rating, bookmark.Rating)
	bookmark.LastRead = pointer.Fallback(input.LastRead, bookmark.LastRead)
	if input.LikedChapters != nil {
		bookmark.LikedChapters = input.LikedChapters
	}
	bookmark.UpdatedAt = time.Now()

	if err := service.bookmarkRepository.Upsert(context, bookmark); err != nil {
		return nil, fmt.Errorf("account_service_save_bookmark_failed: %w", err)
	}

	service.logger.Info("bookmark_saved",
		slog.String("account_id", accountID),
		slog.String("series_id", input.SeriesUID),
	)

	return bookmark, nil
}

/*
ListBookmarks returns every bookmark belonging to the account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - []*Bookmark: Most recently updated first
  - error: Retrieval failures
*/
func (service *Service) ListBookmarks(context context.Context, accountID string) ([]*Bookmark, error) {
	bookmarks, err := service.bookmarkRepository.ListByAccount(context, accountID)
	if err != nil {
		return nil, fmt.Errorf("account_service_list_bookmarks_failed: %w", err)
	}
	return bookmarks, nil
}

/*
RemoveBookmark deletes the account's bookmark for one series.

Parameters:
  - context: context.Context
  - accountID: string
  - seriesUID: string

Returns:
  - error: Deletion failures
*/
func (service *Service) RemoveBookmark(context context.Context, accountID, seriesUID string) error {
	if err := service.bookmarkRepository.Delete(context, accountID, seriesUID); err != nil {
		return fmt.Errorf("account_service_remove_bookmark_failed: %w", err)
	}

	service.logger.Info("bookmark_removed",
		slog.String("account_id", accountID),
		slog.String("series_id", seriesUID),
	)

	return nil
}

// # Session Security

/*
ListSessions provides a list of all active device sessions for the account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - []SessionInfo: List of active devices
  - error: Retrieval failures
*/
func (service *Service) ListSessions(context context.Context, accountID string) ([]SessionInfo, error) {

	sessions, err := service.sessionRepository.FindActiveByAccountID(context, accountID)
	if err != nil {
		return nil, fmt.Errorf("account_service_list_sessions_failed: %w", err)
	}

	return sessions, nil
}

/*
RevokeSession terminates a specific account session by its ID.

Parameters:
  - context: context.Context
  - accountID: string
  - sessionID: string

Returns:
  - error: Revocation failures
*/
func (service *Service) RevokeSession(context context.Context, accountID, sessionID string) error {
	tokenHash, err := service.sessionRepository.Revoke(context, accountID, sessionID)
	if err != nil {
		return fmt.Errorf("account_service_revoke_session_failed: %w", err)
	}
	service.dropCached(context, tokenHash)

	service.logger.Info("account_session_revoked",
		slog.String("account_id", accountID),
		slog.String("session_id", sessionID),
	)

	return nil
}
