// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package account_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/users/account"
	"github.com/tankobonhq/tankobon/internal/users/auth"
)

// # Test Fakes

type fakeAccounts struct {
	accounts map[string]*auth.Account
	deleted  []string
}

func newFakeAccounts(entities ...*auth.Account) *fakeAccounts {
	repo := &fakeAccounts{accounts: make(map[string]*auth.Account)}
	for _, entity := range entities {
		repo.accounts[entity.ID] = entity
	}
	return repo
}

func (repo *fakeAccounts) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	if entity, ok := repo.accounts[id]; ok {
		return entity, nil
	}
	return nil, apperr.NotFound("Account")
}

func (repo *fakeAccounts) Update(ctx context.Context, entity *auth.Account) error {
	repo.accounts[entity.ID] = entity
	return nil
}

func (repo *fakeAccounts) SoftDelete(ctx context.Context, id string) error {
	repo.deleted = append(repo.deleted, id)
	return nil
}

type fakeBookmarks struct {
	bookmarks map[string]*account.Bookmark // keyed by accountID/seriesUID
}

func newFakeBookmarks() *fakeBookmarks {
	return &fakeBookmarks{bookmarks: make(map[string]*account.Bookmark)}
}

func bookmarkKey(accountID, seriesUID string) string {
	return accountID + "/" + seriesUID
}

func (repo *fakeBookmarks) Upsert(ctx context.Context, bookmark *account.Bookmark) error {
	repo.bookmarks[bookmarkKey(bookmark.AccountID, bookmark.SeriesUID)] = bookmark
	return nil
}

func (repo *fakeBookmarks) ListByAccount(ctx context.Context, accountID string) ([]*account.Bookmark, error) {
	var result []*account.Bookmark
	for _, bookmark := range repo.bookmarks {
		if bookmark.AccountID == accountID {
			result = append(result, bookmark)
		}
	}
	return result, nil
}

func (repo *fakeBookmarks) FindBySeries(ctx context.Context, accountID, seriesUID string) (*account.Bookmark, error) {
	if bookmark, ok := repo.bookmarks[bookmarkKey(accountID, seriesUID)]; ok {
		return bookmark, nil
	}
	return nil, apperr.NotFound("Bookmark")
}

func (repo *fakeBookmarks) Delete(ctx context.Context, accountID, seriesUID string) error {
	delete(repo.bookmarks, bookmarkKey(accountID, seriesUID))
	return nil
}

// fakeSessionViews answers the session security surface. Sessions carry
// their token hash so revocations can report it back.
type fakeSessionViews struct {
	infos  []account.SessionInfo
	hashes map[string]string // sessionID -> tokenhash
}

func newFakeSessionViews() *fakeSessionViews {
	return &fakeSessionViews{hashes: make(map[string]string)}
}

func (repo *fakeSessionViews) FindActiveByAccountID(ctx context.Context, accountID string) ([]account.SessionInfo, error) {
	return repo.infos, nil
}

func (repo *fakeSessionViews) Revoke(ctx context.Context, accountID, sessionID string) (string, error) {
	hash, ok := repo.hashes[sessionID]
	if !ok {
		return "", apperr.NotFound("Session not found")
	}
	delete(repo.hashes, sessionID)
	return hash, nil
}

func (repo *fakeSessionViews) RevokeAll(ctx context.Context, accountID string) ([]string, error) {
	var hashes []string
	for _, hash := range repo.hashes {
		hashes = append(hashes, hash)
	}
	repo.hashes = make(map[string]string)
	return hashes, nil
}

// dropRecorder records cache evictions.
type dropRecorder struct {
	dropped []string
}

func (recorder *dropRecorder) Drop(ctx context.Context, tokenHash string) error {
	recorder.dropped = append(recorder.dropped, tokenHash)
	return nil
}

func fixtureAccount() *auth.Account {
	return &auth.Account{
		ID:          "0198a6e2-0000-7000-8000-0000000000cc",
		Kind:        auth.KindRegistered,
		Username:    "rika",
		Email:       "rika@example.com",
		DisplayName: "Rika",
	}
}

func ptr[T any](value T) *T { return &value }

// # Profile

/*
TestUpdateProfile applies a partial patch and leaves absent fields alone.
*/
func TestUpdateProfile(t *testing.T) {
	entity := fixtureAccount()
	accounts := newFakeAccounts(entity)
	service := account.NewService(accounts, newFakeBookmarks(), newFakeSessionViews(), nil, slog.New(slog.DiscardHandler))

	updated, err := service.UpdateProfile(context.Background(), entity.ID, account.UpdateProfileInput{
		AvatarURL: ptr("https://assets.tankobon.test/avatars/rika.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://assets.tankobon.test/avatars/rika.png", updated.AvatarURL)
	assert.Equal(t, "Rika", updated.DisplayName)
}

/*
TestDeleteAccount soft-deletes the profile and kills every session, cache
entries included.
*/
func TestDeleteAccount(t *testing.T) {
	entity := fixtureAccount()
	accounts := newFakeAccounts(entity)
	sessions := newFakeSessionViews()
	sessions.hashes["sess-1"] = "hash-1"
	sessions.hashes["sess-2"] = "hash-2"
	recorder := &dropRecorder{}
	service := account.NewService(accounts, newFakeBookmarks(), sessions, recorder, slog.New(slog.DiscardHandler))

	require.NoError(t, service.DeleteAccount(context.Background(), entity.ID))

	assert.Equal(t, []string{entity.ID}, accounts.deleted)
	assert.Empty(t, sessions.hashes)
	assert.ElementsMatch(t, []string{"hash-1", "hash-2"}, recorder.dropped)
}

// # Bookmarks

/*
TestSaveBookmark covers creation and the merge-over-stored-state semantics
of repeat saves: one bookmark per (account, series), partial saves never
erase fields.
*/
func TestSaveBookmark(t *testing.T) {
	entity := fixtureAccount()

	t.Run("creates_on_first_save", func(t *testing.T) {
		bookmarks := newFakeBookmarks()
		service := account.NewService(newFakeAccounts(entity), bookmarks, newFakeSessionViews(), nil, slog.New(slog.DiscardHandler))

		saved, err := service.SaveBookmark(context.Background(), entity.ID, account.SaveBookmarkInput{
			SeriesUID: "51423",
			Rating:    ptr(8),
			LastRead:  ptr("12"),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.Equal(t, 8, saved.Rating)
		assert.Equal(t, "12", saved.LastRead)
		assert.Len(t, bookmarks.bookmarks, 1)
	})

	t.Run("repeat_save_merges", func(t *testing.T) {
		bookmarks := newFakeBookmarks()
		service := account.NewService(newFakeAccounts(entity), bookmarks, newFakeSessionViews(), nil, slog.New(slog.DiscardHandler))

		first, err := service.SaveBookmark(context.Background(), entity.ID, account.SaveBookmarkInput{
			SeriesUID:     "51423",
			Rating:        ptr(8),
			LikedChapters: []string{"3", "7"},
		})
		require.NoError(t, err)

		// Progress-only update: rating and liked chapters must survive.
		second, err := service.SaveBookmark(context.Background(), entity.ID, account.SaveBookmarkInput{
			SeriesUID: "51423",
			LastRead:  ptr("14"),
		})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 8, second.Rating)
		assert.Equal(t, []string{"3", "7"}, second.LikedChapters)
		assert.Equal(t, "14", second.LastRead)
		assert.Len(t, bookmarks.bookmarks, 1)
	})
}

func TestRemoveBookmark(t *testing.T) {
	entity := fixtureAccount()
	bookmarks := newFakeBookmarks()
	service := account.NewService(newFakeAccounts(entity), bookmarks, newFakeSessionViews(), nil, slog.New(slog.DiscardHandler))

	_, err := service.SaveBookmark(context.Background(), entity.ID, account.SaveBookmarkInput{SeriesUID: "51423"})
	require.NoError(t, err)

	require.NoError(t, service.RemoveBookmark(context.Background(), entity.ID, "51423"))
	assert.Empty(t, bookmarks.bookmarks)

	// Removing a bookmark that is already gone stays silent.
	require.NoError(t, service.RemoveBookmark(context.Background(), entity.ID, "51423"))
}

// # Sessions

/*
TestRevokeSession verifies targeted revocation evicts the cached session and
that revoking a foreign or unknown session is an error.
*/
func TestRevokeSession(t *testing.T) {
	entity := fixtureAccount()
	sessions := newFakeSessionViews()
	sessions.hashes["sess-1"] = "hash-1"
	recorder := &dropRecorder{}
	service := account.NewService(newFakeAccounts(entity), newFakeBookmarks(), sessions, recorder, slog.New(slog.DiscardHandler))

	require.NoError(t, service.RevokeSession(context.Background(), entity.ID, "sess-1"))
	assert.Equal(t, []string{"hash-1"}, recorder.dropped)

	err := service.RevokeSession(context.Background(), entity.ID, "sess-1")
	require.Error(t, err)
}
