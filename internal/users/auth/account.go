// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
Package auth implements the identity and session management layer.

It defines the core domain entities (Account, Session) and the logic for
registration, guest enrollment, authentication and session lifecycle.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to identity.
*/
package auth

import (
	"time"

	"github.com/tankobonhq/tankobon/internal/platform/sec"
)

// # Domain Entities

// Kind discriminates the account union. Every account row carries exactly one
// kind; lookups never branch on which optional columns happen to be populated.
type Kind string

const (
	// KindRegistered is a member who signed up with an email and password.
	KindRegistered Kind = "registered"

	// KindAnonymous is a generated guest identity. It has no email; its
	// username and password were minted by the server and handed to the
	// client once, so the same guest can be restored on a later visit.
	KindAnonymous Kind = "anonymous"
)

// IsValid reports whether the kind is a known discriminant.
func (kind Kind) IsValid() bool {
	return kind == KindRegistered || kind == KindAnonymous
}

// Account represents any authenticatable identity on the Tankobon platform,
// registered member or anonymous guest alike. Both kinds share the same
// capability surface: ID, Username and PasswordHash.
type Account struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind"`
	Username     string       `json:"username"`
	Email        string       `json:"email,omitempty"` // Empty for anonymous accounts.
	PasswordHash string       `json:"-"`               // Explicitly omitted from JSON for security.
	DisplayName  string       `json:"display_name"`
	AvatarURL    string       `json:"avatar_url,omitempty"`
	Role         sec.UserRole `json:"role"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsAnonymous reports whether the account is a generated guest.
func (account *Account) IsAnonymous() bool {
	return account.Kind == KindAnonymous
}

// Session represents an active refresh-token session.
//
// Expiry is sliding: every authenticated use of the session pushes ExpiresAt
// forward, so an active client is never logged out mid-read.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	TokenHash string    `json:"-"` // Hashed value of the refresh token. Omitted for security.
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldDisplayName     = "display_name"
	FieldLogin           = "login"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldAccount         = "account"
	FieldMessage         = "message"
)
