// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
Package uid generates short numeric public identifiers.

Series are addressed publicly by a 5-digit numeric code rather than their
UUID primary key. The short code is what appears in reader-facing URLs and
is what clients pass to the catalog endpoints.
*/
package uid

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Length is the number of digits in a public series code.
const Length = 5

var max = big.NewInt(90000)

// NewNumeric returns a random 5-digit numeric code in [10000, 99999].
//
// Uniqueness is not guaranteed here; callers insert under a unique
// constraint and regenerate on conflict.
func NewNumeric() string {
	n, err := rand.Int(rand.Reader, max)

	// entropy failure is an unrecoverable system-level error
	if err != nil {
		panic("uid: failed to read random source: " + err.Error())
	}

	return fmt.Sprintf("%05d", n.Int64()+10000)
}

// Valid reports whether s is a well-formed public series code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s[0] != '0'
}
