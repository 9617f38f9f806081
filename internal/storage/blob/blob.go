// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
Package blob abstracts the object store that holds page images.

Tankobon keeps every page of every chapter in an S3-compatible bucket
(Backblaze B2 in production) under a deterministic key layout:

	{seriesNick}/{chapterNo}/{page}.png

The bucket listing under a chapter prefix is the authority on ingest
progress: the catalog is reconciled FROM storage, never the other way
around.

Architecture:

  - Store: The interface the ingest/reader services depend on.
  - S3Store: Production implementation with cached, expiring authorization
    and a bounded retry cycle around every call.
  - Refresh: A stale or rejected authorization is rebuilt at most once per
    retry via singleflight, so concurrent uploads share one refresh.
*/
package blob

import (
	"context"
	"io"
)

// Object describes a single stored page image.
type Object struct {
	// Key is the full object key, e.g. "10234/12/4.png".
	Key string
	// Size is the object size in bytes.
	Size int64
}

// Store is the object-storage surface used by the ingest and read paths.
//
// All methods honour context cancellation and return [apperr.StorageUnavailable]
// once the internal retry cycle is exhausted.
type Store interface {

	// Put uploads one object under key. The reader is consumed exactly once
	// per attempt, so callers must hand over a rewindable body.
	//
	// Parameters:
	//   - key: full object key ("{nick}/{chapterNo}/{page}.png").
	//   - body: the image bytes.
	//   - size: exact content length in bytes.
	//   - contentType: MIME type persisted with the object.
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error

	// List returns every object whose key starts with prefix, in key order.
	//
	// Returns:
	//   - The matching objects. An empty slice means the prefix holds nothing,
	//     which is a normal answer, not an error.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Delete removes a single object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under prefix. Used when a chapter's
	// pages are replaced wholesale.
	DeletePrefix(ctx context.Context, prefix string) error

	// PublicURL returns a client-fetchable URL for key. Depending on bucket
	// configuration this is either a CDN URL or a presigned GET link.
	PublicURL(ctx context.Context, key string) (string, error)

	// Healthy verifies the bucket is reachable with the current authorization.
	Healthy(ctx context.Context) error
}
