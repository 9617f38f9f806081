// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package auth_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/sec"
	"github.com/tankobonhq/tankobon/internal/users/auth"
)

// # Test Fakes

// fakeAccounts is an in-memory auth.AccountRepository.
type fakeAccounts struct {
	accounts map[string]*auth.Account // keyed by ID
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[string]*auth.Account)}
}

func (repo *fakeAccounts) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	if account, ok := repo.accounts[id]; ok {
		return account, nil
	}
	return nil, apperr.NotFound("Account")
}

func (repo *fakeAccounts) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	for _, account := range repo.accounts {
		if account.Email != "" && account.Email == email {
			return account, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (repo *fakeAccounts) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	for _, account := range repo.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (repo *fakeAccounts) Create(ctx context.Context, account *auth.Account) error {
	if _, err := repo.FindByUsername(ctx, account.Username); err == nil {
		return apperr.Conflict("Username is already taken")
	}
	repo.accounts[account.ID] = account
	return nil
}

func (repo *fakeAccounts) Update(ctx context.Context, account *auth.Account) error {
	repo.accounts[account.ID] = account
	return nil
}

func (repo *fakeAccounts) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	account, ok := repo.accounts[id]
	if !ok {
		return apperr.NotFound("Account")
	}
	account.PasswordHash = passwordHash
	return nil
}

func (repo *fakeAccounts) SoftDelete(ctx context.Context, id string) error {
	delete(repo.accounts, id)
	return nil
}

// fakeSessions is an in-memory auth.SessionRepository with the same
// liveness filter the Postgres implementation applies.
type fakeSessions struct {
	sessions map[string]*auth.Session // keyed by ID
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*auth.Session)}
}

func (repo *fakeSessions) Create(ctx context.Context, session *auth.Session) error {
	repo.sessions[session.ID] = session
	return nil
}

func (repo *fakeSessions) FindByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	for _, session := range repo.sessions {
		if session.TokenHash == tokenHash && !session.IsRevoked && session.ExpiresAt.After(time.Now()) {
			return session, nil
		}
	}
	return nil, apperr.NotFound("Session")
}

func (repo *fakeSessions) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	session, ok := repo.sessions[sessionID]
	if !ok || session.IsRevoked {
		return apperr.NotFound("Session")
	}
	session.ExpiresAt = expiresAt
	return nil
}

func (repo *fakeSessions) Revoke(ctx context.Context, sessionID string) error {
	session, ok := repo.sessions[sessionID]
	if !ok {
		return apperr.NotFound("Session")
	}
	session.IsRevoked = true
	return nil
}

func (repo *fakeSessions) RevokeAll(ctx context.Context, accountID string) ([]string, error) {
	var hashes []string
	for _, session := range repo.sessions {
		if session.AccountID == accountID && !session.IsRevoked {
			session.IsRevoked = true
			hashes = append(hashes, session.TokenHash)
		}
	}
	return hashes, nil
}

func (repo *fakeSessions) RevokeOthers(ctx context.Context, accountID, keepSessionID string) ([]string, error) {
	var hashes []string
	for _, session := range repo.sessions {
		if session.AccountID == accountID && session.ID != keepSessionID && !session.IsRevoked {
			session.IsRevoked = true
			hashes = append(hashes, session.TokenHash)
		}
	}
	return hashes, nil
}

func (repo *fakeSessions) DeleteExpired(ctx context.Context) error {
	return nil
}

// fakeSessionCache stores copies, mirroring the serialization boundary of
// the Redis cache.
type fakeSessionCache struct {
	entries map[string]auth.Session // keyed by token hash
}

func newFakeSessionCache() *fakeSessionCache {
	return &fakeSessionCache{entries: make(map[string]auth.Session)}
}

func (cache *fakeSessionCache) Put(ctx context.Context, session *auth.Session) error {
	cache.entries[session.TokenHash] = *session
	return nil
}

func (cache *fakeSessionCache) Get(ctx context.Context, tokenHash string) (*auth.Session, error) {
	if entry, ok := cache.entries[tokenHash]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (cache *fakeSessionCache) Drop(ctx context.Context, tokenHash string) error {
	delete(cache.entries, tokenHash)
	return nil
}

// fakeResetTokens is an in-memory auth.ResetTokenRepository.
type fakeResetTokens struct {
	tokens map[string]string
}

func newFakeResetTokens() *fakeResetTokens {
	return &fakeResetTokens{tokens: make(map[string]string)}
}

func (repo *fakeResetTokens) Set(ctx context.Context, token, accountID string, ttl time.Duration) error {
	repo.tokens[token] = accountID
	return nil
}

func (repo *fakeResetTokens) Get(ctx context.Context, token string) (string, error) {
	if accountID, ok := repo.tokens[token]; ok {
		return accountID, nil
	}
	return "", apperr.NotFound("Reset token")
}

func (repo *fakeResetTokens) Delete(ctx context.Context, token string) error {
	delete(repo.tokens, token)
	return nil
}

// stubTokens mints predictable access tokens.
type stubTokens struct{}

func (stubTokens) GenerateAccessToken(userID, username, role string, timeToLive time.Duration) (string, error) {
	return fmt.Sprintf("jwt.%s.%s", userID, role), nil
}

// harness bundles the service with its fakes for assertions.
type harness struct {
	service  *auth.Service
	accounts *fakeAccounts
	sessions *fakeSessions
	cache    *fakeSessionCache
	resets   *fakeResetTokens
}

func newHarness() *harness {
	accounts := newFakeAccounts()
	sessions := newFakeSessions()
	cache := newFakeSessionCache()
	resets := newFakeResetTokens()

	return &harness{
		service:  auth.NewService(accounts, sessions, cache, resets, stubTokens{}),
		accounts: accounts,
		sessions: sessions,
		cache:    cache,
		resets:   resets,
	}
}

func (h *harness) register(t *testing.T) *auth.Account {
	t.Helper()
	account, err := h.service.Register(context.Background(), auth.RegisterInput{
		Username:    "rika",
		Email:       "rika@example.com",
		Password:    "correct-horse",
		DisplayName: "Rika",
	})
	require.NoError(t, err)
	return account
}

// # Registration

/*
TestRegister covers member enrollment: kind and role tagging, password
hashing, and the uniqueness conflicts.
*/
func TestRegister(t *testing.T) {
	t.Run("enrolls_member", func(t *testing.T) {
		h := newHarness()

		account := h.register(t)
		assert.Equal(t, auth.KindRegistered, account.Kind)
		assert.Equal(t, sec.RoleMember, account.Role)
		assert.NotEmpty(t, account.ID)
		assert.NotEqual(t, "correct-horse", account.PasswordHash)
		assert.True(t, sec.CheckPasswordHash("correct-horse", account.PasswordHash))
	})

	t.Run("duplicate_email_conflicts", func(t *testing.T) {
		h := newHarness()
		h.register(t)

		_, err := h.service.Register(context.Background(), auth.RegisterInput{
			Username: "other", Email: "rika@example.com", Password: "pw",
		})
		require.Error(t, err)
		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, "CONFLICT", ae.Code)
	})

	t.Run("duplicate_username_conflicts", func(t *testing.T) {
		h := newHarness()
		h.register(t)

		_, err := h.service.Register(context.Background(), auth.RegisterInput{
			Username: "rika", Email: "other@example.com", Password: "pw",
		})
		require.Error(t, err)
		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, "CONFLICT", ae.Code)
	})
}

// # Login

/*
TestLogin exercises the flexible email-or-username lookup and the generic
rejection that prevents account enumeration.
*/
func TestLogin(t *testing.T) {
	t.Run("by_email_and_by_username", func(t *testing.T) {
		h := newHarness()
		h.register(t)

		for _, login := range []string{"rika@example.com", "rika"} {
			session, err := h.service.Login(context.Background(), auth.LoginInput{
				Login: login, Password: "correct-horse",
			})
			require.NoError(t, err)
			assert.NotEmpty(t, session.AccessToken)
			assert.NotEmpty(t, session.RefreshToken)
			assert.WithinDuration(t, time.Now().Add(auth.SessionTTL), session.RefreshTokenExpiresAt, 5*time.Second)
		}
	})

	t.Run("session_persisted_and_cache_warmed", func(t *testing.T) {
		h := newHarness()
		h.register(t)

		session, err := h.service.Login(context.Background(), auth.LoginInput{
			Login: "rika", Password: "correct-horse", UserAgent: "ios/3.2",
		})
		require.NoError(t, err)

		tokenHash := sec.HashToken(session.RefreshToken)
		stored, err := h.sessions.FindByTokenHash(context.Background(), tokenHash)
		require.NoError(t, err)
		assert.Equal(t, "ios/3.2", stored.UserAgent)

		cached, err := h.cache.Get(context.Background(), tokenHash)
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, stored.ID, cached.ID)
	})

	t.Run("bad_credentials_are_generic", func(t *testing.T) {
		h := newHarness()
		h.register(t)

		tests := []struct {
			name     string
			login    string
			password string
		}{
			{name: "wrong_password", login: "rika", password: "nope"},
			{name: "unknown_account", login: "nobody", password: "correct-horse"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.service.Login(context.Background(), auth.LoginInput{
					Login: tt.login, Password: tt.password,
				})
				require.Error(t, err)
				ae := apperr.As(err)
				require.NotNil(t, ae)
				assert.Equal(t, "UNAUTHORIZED", ae.Code)
				assert.Equal(t, "Invalid login credentials", ae.Message)
			})
		}
	})
}

// # Guest Flow

/*
TestGuest covers anonymous enrollment — generated identity, one-time
credential disclosure — and restoration of a previously enrolled guest.
*/
func TestGuest(t *testing.T) {
	t.Run("enrollment_mints_identity", func(t *testing.T) {
		h := newHarness()

		session, err := h.service.Guest(context.Background(), auth.GuestInput{})
		require.NoError(t, err)

		account := session.Account
		assert.Equal(t, auth.KindAnonymous, account.Kind)
		assert.Equal(t, sec.RoleGuest, account.Role)
		assert.True(t, strings.HasPrefix(account.Username, "guest-"))
		assert.Empty(t, account.Email)

		// The minted credential is disclosed exactly once and verifies
		// against the stored hash.
		require.NotEmpty(t, session.GuestPassword)
		assert.True(t, sec.CheckPasswordHash(session.GuestPassword, account.PasswordHash))
		assert.NotEmpty(t, session.RefreshToken)
	})

	t.Run("restore_reopens_session", func(t *testing.T) {
		h := newHarness()

		enrolled, err := h.service.Guest(context.Background(), auth.GuestInput{})
		require.NoError(t, err)

		restored, err := h.service.Guest(context.Background(), auth.GuestInput{
			Username: enrolled.Account.Username,
			Password: enrolled.GuestPassword,
		})
		require.NoError(t, err)
		assert.Equal(t, enrolled.Account.ID, restored.Account.ID)
		assert.Empty(t, restored.GuestPassword)
		assert.NotEqual(t, enrolled.RefreshToken, restored.RefreshToken)
	})

	t.Run("restore_rejects_bad_pair", func(t *testing.T) {
		h := newHarness()

		enrolled, err := h.service.Guest(context.Background(), auth.GuestInput{})
		require.NoError(t, err)

		_, err = h.service.Guest(context.Background(), auth.GuestInput{
			Username: enrolled.Account.Username,
			Password: "wrong",
		})
		require.Error(t, err)
		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, "UNAUTHORIZED", ae.Code)
	})

	t.Run("restore_refuses_registered_accounts", func(t *testing.T) {
		h := newHarness()
		h.register(t)

		// A member's credentials must not work through the guest door.
		_, err := h.service.Guest(context.Background(), auth.GuestInput{
			Username: "rika",
			Password: "correct-horse",
		})
		require.Error(t, err)
		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, "UNAUTHORIZED", ae.Code)
	})
}

// # Session Refresh

/*
TestRefreshSession verifies the sliding-expiry policy: the same refresh
token survives with its deadline pushed forward in both stores.
*/
func TestRefreshSession(t *testing.T) {
	t.Run("slides_the_deadline", func(t *testing.T) {
		h := newHarness()
		h.register(t)

		login, err := h.service.Login(context.Background(), auth.LoginInput{
			Login: "rika", Password: "correct-horse",
		})
		require.NoError(t, err)

		// Age the session so the slide is observable.
		tokenHash := sec.HashToken(login.RefreshToken)
		stored, err := h.sessions.FindByTokenHash(context.Background(), tokenHash)
		require.NoError(t, err)
		aged := time.Now().Add(time.Hour)
		stored.ExpiresAt = aged
		require.NoError(t, h.cache.Put(context.Background(), stored))

		refreshed, err := h.service.RefreshSession(context.Background(), login.RefreshToken)
		require.NoError(t, err)

		// Same token, later deadline, both stores updated.
		assert.Equal(t, login.RefreshToken, refreshed.RefreshToken)
		assert.True(t, refreshed.RefreshTokenExpiresAt.After(aged))
		assert.True(t, stored.ExpiresAt.After(aged))

		cached, err := h.cache.Get(context.Background(), tokenHash)
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, stored.ExpiresAt, cached.ExpiresAt)
	})

	t.Run("cache_miss_falls_through_and_rewarms", func(t *testing.T) {
		h := newHarness()
		h.register(t)

		login, err := h.service.Login(context.Background(), auth.LoginInput{
			Login: "rika", Password: "correct-horse",
		})
		require.NoError(t, err)

		tokenHash := sec.HashToken(login.RefreshToken)
		require.NoError(t, h.cache.Drop(context.Background(), tokenHash))

		_, err = h.service.RefreshSession(context.Background(), login.RefreshToken)
		require.NoError(t, err)

		cached, err := h.cache.Get(context.Background(), tokenHash)
		require.NoError(t, err)
		assert.NotNil(t, cached)
	})

	t.Run("unknown_token_rejected", func(t *testing.T) {
		h := newHarness()

		_, err := h.service.RefreshSession(context.Background(), "forged")
		require.Error(t, err)
		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, "UNAUTHORIZED", ae.Code)
	})
}

// # Logout

/*
TestLogout verifies revocation, cache eviction, and idempotency.
*/
func TestLogout(t *testing.T) {
	h := newHarness()
	h.register(t)

	login, err := h.service.Login(context.Background(), auth.LoginInput{
		Login: "rika", Password: "correct-horse",
	})
	require.NoError(t, err)

	require.NoError(t, h.service.Logout(context.Background(), login.RefreshToken))

	// The token is dead for refresh purposes and gone from the cache.
	_, err = h.service.RefreshSession(context.Background(), login.RefreshToken)
	require.Error(t, err)

	cached, err := h.cache.Get(context.Background(), sec.HashToken(login.RefreshToken))
	require.NoError(t, err)
	assert.Nil(t, cached)

	// Logging out again is a no-op, not an error.
	require.NoError(t, h.service.Logout(context.Background(), login.RefreshToken))
}

// # Password Recovery

/*
TestPasswordReset walks the forgot-password flow end to end, including the
silent response for unknown emails and single-use token consumption.
*/
func TestPasswordReset(t *testing.T) {
	t.Run("unknown_email_is_silent", func(t *testing.T) {
		h := newHarness()

		token, err := h.service.RequestPasswordReset(context.Background(), "ghost@example.com")
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("reset_updates_password_and_revokes_sessions", func(t *testing.T) {
		h := newHarness()
		account := h.register(t)

		login, err := h.service.Login(context.Background(), auth.LoginInput{
			Login: "rika", Password: "correct-horse",
		})
		require.NoError(t, err)

		token, err := h.service.RequestPasswordReset(context.Background(), "rika@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		require.NoError(t, h.service.ResetPassword(context.Background(), token, "new-stable"))

		assert.True(t, sec.CheckPasswordHash("new-stable", h.accounts.accounts[account.ID].PasswordHash))

		// Every session died with the old password.
		_, err = h.service.RefreshSession(context.Background(), login.RefreshToken)
		require.Error(t, err)

		// The token is single-use.
		err = h.service.ResetPassword(context.Background(), token, "again")
		require.Error(t, err)
	})
}

/*
TestChangePassword verifies the current-password gate and that every other
device is logged out while the caller's session survives.
*/
func TestChangePassword(t *testing.T) {
	t.Run("wrong_current_password_rejected", func(t *testing.T) {
		h := newHarness()
		account := h.register(t)

		err := h.service.ChangePassword(context.Background(), account.ID, "wrong", "new", "")
		require.Error(t, err)
		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, "UNAUTHORIZED", ae.Code)
	})

	t.Run("revokes_other_sessions", func(t *testing.T) {
		h := newHarness()
		account := h.register(t)

		current, err := h.service.Login(context.Background(), auth.LoginInput{Login: "rika", Password: "correct-horse"})
		require.NoError(t, err)
		other, err := h.service.Login(context.Background(), auth.LoginInput{Login: "rika", Password: "correct-horse"})
		require.NoError(t, err)

		require.NoError(t, h.service.ChangePassword(context.Background(),
			account.ID, "correct-horse", "new-stable", current.RefreshToken))

		// The caller's session is still alive; the other device is out.
		_, err = h.service.RefreshSession(context.Background(), current.RefreshToken)
		require.NoError(t, err)
		_, err = h.service.RefreshSession(context.Background(), other.RefreshToken)
		require.Error(t, err)
	})
}
