// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tankobonhq/tankobon/internal/platform/constants"
)

// resetClients empties the shared limiter table between tests.
func resetClients() {
	mu.Lock()
	defer mu.Unlock()
	clients = make(map[string]*rateLimitClient)
}

/*
TestSweepStaleClients verifies that idle limiter entries are evicted while
active ones survive.

Description: The sweep is what keeps the per-IP table bounded, and it must
run for the whole server lifetime — a cleanup goroutine tied to a context
that expires after startup leaves every entry in the map forever.
*/
func TestSweepStaleClients(t *testing.T) {
	resetClients()
	defer resetClients()

	mu.Lock()
	clients["10.0.0.1"] = &rateLimitClient{lastSeen: time.Now()}
	clients["10.0.0.2"] = &rateLimitClient{lastSeen: time.Now().Add(-10 * time.Minute)}
	mu.Unlock()

	sweepStaleClients(constants.RateLimitClientTTL)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, clients, "10.0.0.1")
	assert.NotContains(t, clients, "10.0.0.2")
}

/*
TestRateLimit_BurstExceeded verifies that a single IP hammering the server
eventually receives 429 responses.
*/
func TestRateLimit_BurstExceeded(t *testing.T) {
	resetClients()
	defer resetClients()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimit(ctx)(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}))

	fire := func() int {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.RemoteAddr = "192.0.2.7:4242"
		handler.ServeHTTP(recorder, request)
		return recorder.Code
	}

	require.Equal(t, http.StatusOK, fire())

	limited := 0
	for i := 0; i < 2*constants.DefaultRateLimitBurst; i++ {
		if fire() == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Positive(t, limited)

	// A different IP gets its own bucket and is unaffected.
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "192.0.2.8:4242"
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
}
