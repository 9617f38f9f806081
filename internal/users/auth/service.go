// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/sec"
	"github.com/tankobonhq/tankobon/pkg/uid"
	"github.com/tankobonhq/tankobon/pkg/uuidv7"
)

// # Contracts & Types

// TokenProvider defines the contract for generating security tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string for the given account.
	//
	// # Parameters
	//   - userID: The ID of the account.
	//   - username: The username of the account.
	//   - role: The role of the account.
	//   - timeToLive: The duration before the token expires.
	//
	// # Returns
	//   - A signed JWT string, or an err if signing fails.
	GenerateAccessToken(userID, username, role string, timeToLive time.Duration) (string, error)
}

// Service implements identity and session use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// or session logic must be reviewed by the security team.
type Service struct {
	accountRepository    AccountRepository
	sessionRepository    SessionRepository
	sessionCache         SessionCache
	resetTokenRepository ResetTokenRepository
	tokenProvider        TokenProvider
}

// NewService constructs a new auth [Service] with necessary dependencies.
func NewService(
	accountRepo AccountRepository,
	sessionRepo SessionRepository,
	sessionCache SessionCache,
	resetRepo ResetTokenRepository,
	tokenProv TokenProvider,
) *Service {
	return &Service{
		accountRepository:    accountRepo,
		sessionRepository:    sessionRepo,
		sessionCache:         sessionCache,
		resetTokenRepository: resetRepo,
		tokenProvider:        tokenProv,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

/*
Register validates, hashes, and persists a brand new registered account.

Description: Deep-enrollment of a new member, handling password hashing and
kind tagging.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *Account: Created entity
  - err: Conflict (if identity exists) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*Account, error) {

	// Verify email uniqueness. Return a client-safe Conflict err.
	_, err := service.accountRepository.FindByEmail(context, input.Email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Verify username uniqueness. Return a client-safe Conflict err.
	_, err = service.accountRepository.FindByUsername(context, input.Username)
	if err == nil {
		return nil, apperr.Conflict("Username is already taken")
	}

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// Construct the new Account entity. Time-sortable ID to prevent PG index fragmentation.
	account := &Account{
		ID:           uuidv7.New(),
		Kind:         KindRegistered,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hashedPassword,
		DisplayName:  input.DisplayName,
		Role:         sec.RoleMember,
	}

	if err := service.accountRepository.Create(context, account); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	return account, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Login     string // Can be Username or Email
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Account               *Account
}

/*
Login validates credentials and issues security tokens.

Description: Verifies identity, performs constant-time password comparison,
and initializes a new sliding-expiry session. Registered members and restored
guests authenticate through the same path.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - err: Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	var account *Account
	var err error
	// Flexible login: look up by Email or Username
	account, err = service.accountRepository.FindByEmail(context, input.Login)
	if err != nil {
		account, err = service.accountRepository.FindByUsername(context, input.Login)
	}

	// If (err != nil) the account does not exist. Generic message to prevent enumeration.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Verify password hash using constant-time comparison in bcrypt to prevent timing attacks
	if !sec.CheckPasswordHash(input.Password, account.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	return service.openSession(context, account, input.UserAgent, input.IPAddress)
}

// # Guest Flow

// GuestInput defines an anonymous enrollment or restoration attempt. A blank
// Username enrolls a brand new guest; otherwise the pair restores an existing one.
type GuestInput struct {
	Username  string
	Password  string
	UserAgent string
	IPAddress string
}

// GuestSession extends LoginSession with the minted credential, which is
// disclosed exactly once at enrollment so the client can restore the guest later.
type GuestSession struct {
	LoginSession
	GuestPassword string
}

/*
Guest enrolls a new anonymous account or restores an existing one.

Description: New guests receive a generated username and a random password;
both are returned to the client once and never disclosed again. Restoration
re-authenticates the stored pair and opens a fresh session.

Parameters:
  - context: context.Context
  - input: GuestInput

Returns:
  - *GuestSession: Session plus the minted credential (enrollment only)
  - err: Unauthorized (bad restore pair) or storage failures
*/
func (service *Service) Guest(context context.Context, input GuestInput) (*GuestSession, error) {

	// Restoration path: the client presents the credential pair it was handed
	// at enrollment.
	if input.Username != "" {
		account, err := service.accountRepository.FindByUsername(context, input.Username)
		if err != nil || !account.IsAnonymous() {
			return nil, apperr.Unauthorized("Invalid guest credentials")
		}
		if !sec.CheckPasswordHash(input.Password, account.PasswordHash) {
			return nil, apperr.Unauthorized("Invalid guest credentials")
		}

		session, err := service.openSession(context, account, input.UserAgent, input.IPAddress)
		if err != nil {
			return nil, err
		}
		return &GuestSession{LoginSession: *session}, nil
	}

	// Enrollment path: mint a username and a random credential.
	password, err := sec.GenerateSecureToken(GuestPasswordLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_guest_password_failed: %w", err)
	}

	hashedPassword, err := sec.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_guest_hash_failed: %w", err)
	}

	account := &Account{
		ID:           uuidv7.New(),
		Kind:         KindAnonymous,
		Username:     fmt.Sprintf("guest-%s", uid.NewNumeric()),
		PasswordHash: hashedPassword,
		DisplayName:  "Guest",
		Role:         sec.RoleGuest,
	}

	// A generated username can collide; one retry with a fresh suffix covers it.
	if err := service.accountRepository.Create(context, account); err != nil {
		account.Username = fmt.Sprintf("guest-%s", uid.NewNumeric())
		if err := service.accountRepository.Create(context, account); err != nil {
			return nil, fmt.Errorf("auth_service_guest_create_failed: %w", err)
		}
	}

	session, err := service.openSession(context, account, input.UserAgent, input.IPAddress)
	if err != nil {
		return nil, err
	}

	return &GuestSession{LoginSession: *session, GuestPassword: password}, nil
}

// # Session Management

// openSession mints the token pair and persists the tracking session for an
// already-authenticated account.
func (service *Service) openSession(context context.Context, account *Account, userAgent, ipAddress string) (*LoginSession, error) {

	// Generate short-lived Access Token
	accessToken, err := service.tokenProvider.GenerateAccessToken(account.ID, account.Username, string(account.Role), AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	// Generate long-lived Refresh Token
	refreshToken, err := sec.GenerateSecureToken(SessionTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	// Create and persist the tracking session
	expiresAt := time.Now().Add(SessionTTL)
	session := &Session{
		ID:        uuidv7.New(),
		AccountID: account.ID,
		TokenHash: sec.HashToken(refreshToken),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: expiresAt,
		IsRevoked: false,
	}

	if err := service.sessionRepository.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	// Warm the cache; a failure here only costs one Postgres round-trip later.
	_ = service.sessionCache.Put(context, session)

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: expiresAt,
		Account:               account,
	}, nil
}

/*
RefreshSession extends the session and issues a fresh access token.

Description: Implements the sliding-expiry policy: the presented refresh token
stays valid and its deadline moves forward, rather than being rotated. An
active client therefore never gets logged out.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *LoginSession: Renewed credentials (same refresh token, new deadline)
  - err: Unauthorized or storage failures
*/
func (service *Service) RefreshSession(context context.Context, refreshToken string) (*LoginSession, error) {

	tokenHash := sec.HashToken(refreshToken)
	session, err := service.resolveSession(context, tokenHash)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	account, err := service.accountRepository.FindByID(context, session.AccountID)
	if err != nil {
		return nil, apperr.Unauthorized("Account not found or suspended")
	}

	// Slide the deadline forward in both stores.
	session.ExpiresAt = time.Now().Add(SessionTTL)
	if err := service.sessionRepository.Touch(context, session.ID, session.ExpiresAt); err != nil {
		return nil, fmt.Errorf("auth_service_session_touch_failed: %w", err)
	}
	_ = service.sessionCache.Put(context, session)

	accessToken, err := service.tokenProvider.GenerateAccessToken(account.ID, account.Username, string(account.Role), AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_access_token_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: session.ExpiresAt,
		Account:               account,
	}, nil
}

// resolveSession checks the cache first and falls through to Postgres,
// re-warming the cache on a miss.
func (service *Service) resolveSession(context context.Context, tokenHash string) (*Session, error) {

	cached, err := service.sessionCache.Get(context, tokenHash)
	if err == nil && cached != nil && !cached.IsRevoked && cached.ExpiresAt.After(time.Now()) {
		return cached, nil
	}

	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)
	if err != nil {
		return nil, err
	}

	_ = service.sessionCache.Put(context, session)
	return session, nil
}

/*
Logout permanently revokes the caller's active session.

Description: Ensures that a tracked refresh token can never be used again.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - err: Revocation failures
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {

	tokenHash := sec.HashToken(refreshToken)

	// Evict the cache entry first so a racing request cannot hit a revoked
	// session through the cache.
	_ = service.sessionCache.Drop(context, tokenHash)

	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)

	// If (err != nil) session is already gone or invalid, we consider logout successful (idempotent operation).
	if err != nil {
		return nil
	}

	if err := service.sessionRepository.Revoke(context, session.ID); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	return nil
}

// # Password Recovery

/*
RequestPasswordReset initiates the forgot-password flow.

Description: Generates a secure token and saves it to Redis. Anonymous
accounts have no email and therefore never enter this flow.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - string: Discovery token
  - err: Generation errors
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) (string, error) {
	// Look up account.
	// NOTE: We don't return NOT_FOUND if the email doesn't exist to prevent user enumeration.
	account, err := service.accountRepository.FindByEmail(context, email)
	if err != nil {
		return "", nil
	}

	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return "", fmt.Errorf("auth_service_generate_reset_token_failed: %w", err)
	}

	if err := service.resetTokenRepository.Set(context, token, account.ID, ResetTokenTTL); err != nil {
		return "", fmt.Errorf("auth_service_save_reset_token_failed: %w", err)
	}

	return token, nil
}

/*
ResetPassword completes the forgot-password flow.

Description: Verifies the token, hashes the new password, updates the DB,
and revokes all active sessions for security cleanup.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - err: Validation or update failures
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) error {

	accountID, err := service.resetTokenRepository.Get(context, token)
	if err != nil {
		return err
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	if err := service.accountRepository.UpdatePassword(context, accountID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_reset_password_update_failed: %w", err)
	}

	// Security Cleanup: Revoke EVERY active session for this account, in
	// Postgres and in the cache — a cached session must not outlive its row.
	if hashes, err := service.sessionRepository.RevokeAll(context, accountID); err == nil {
		for _, hash := range hashes {
			_ = service.sessionCache.Drop(context, hash)
		}
	}

	// Delete the used token from Redis
	_ = service.resetTokenRepository.Delete(context, token)

	return nil
}

/*
ChangePassword allows an authenticated account to update its credentials.

Description: Verifies the current password and then revokes all OTHER refresh
sessions to ensure high security across devices.

Parameters:
  - context: context.Context
  - accountID: string
  - currentPassword: string
  - newPassword: string
  - currentRefreshToken: string

Returns:
  - err: Unauthorized or storage failures
*/
func (service *Service) ChangePassword(context context.Context, accountID, currentPassword, newPassword, currentRefreshToken string) error {

	account, err := service.accountRepository.FindByID(context, accountID)
	if err != nil {
		return err
	}

	// Verify the current password before allowing change
	if !sec.CheckPasswordHash(currentPassword, account.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.accountRepository.UpdatePassword(context, accountID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	// Security Side Effect: Revoke all other sessions to force re-login on other devices
	tokenHash := sec.HashToken(currentRefreshToken)
	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)
	if err == nil {
		if hashes, err := service.sessionRepository.RevokeOthers(context, accountID, session.ID); err == nil {
			for _, hash := range hashes {
				_ = service.sessionCache.Drop(context, hash)
			}
		}
	}

	return nil
}
