// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package auth

import "time"

// # Authentication Constraints

const (
	// AccessTokenTTL is the duration a JWT access token remains valid.
	// We keep it short (15m) to minimize the impact of a leaked token.
	AccessTokenTTL = 15 * time.Minute

	// SessionTTL is the sliding window a session remains valid without use.
	// Every authenticated request pushes the deadline forward by this much,
	// so an active session is effectively unbounded.
	SessionTTL = 30 * 24 * time.Hour

	// SessionTokenLength is the byte length of the random secure session token.
	SessionTokenLength = 32

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset token.
	ResetTokenLength = 32

	// GuestPasswordLength is the byte length of the generated guest credential.
	// The plain value is returned to the client exactly once at enrollment.
	GuestPasswordLength = 24
)
