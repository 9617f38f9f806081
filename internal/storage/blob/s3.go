// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/constants"
)

// Options configures the production S3-compatible store.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// PublicBase, when set, short-circuits PublicURL to "{PublicBase}/{key}"
	// instead of presigning. Used with public buckets behind a CDN.
	PublicBase string
}

// session bundles one authorized client pair with its creation time.
// It is replaced wholesale on refresh, never mutated.
type session struct {
	client    *s3.Client
	presigner *s3.PresignClient
	fetchedAt time.Time
}

// S3Store implements [Store] against Backblaze B2's S3-compatible API.
//
// # Authorization lifecycle
//
// Bucket authorizations are treated as expiring: the session is rebuilt
// once it is older than [constants.StorageAuthTTL] so requests never run
// into a mid-flight expiry, and any call rejected with an auth-class error
// forces an immediate rebuild before the next retry. Concurrent callers
// needing a rebuild share a single refresh via singleflight.
type S3Store struct {
	opts   Options
	logger *slog.Logger

	mu    sync.RWMutex
	sess  *session
	group singleflight.Group
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds the store and eagerly establishes the first session so
// misconfiguration surfaces at boot rather than on the first upload.
func NewS3Store(ctx context.Context, opts Options, logger *slog.Logger) (*S3Store, error) {
	store := &S3Store{
		opts:   opts,
		logger: logger,
	}

	if _, err := store.refresh(ctx); err != nil {
		return nil, fmt.Errorf("blob: initial authorization failed: %w", err)
	}

	return store, nil
}

// # Session Management

// current returns a usable session, refreshing first when none exists, the
// cached one has gone stale, or force is set.
func (store *S3Store) current(ctx context.Context, force bool) (*session, error) {
	store.mu.RLock()
	cached := store.sess
	store.mu.RUnlock()

	if !force && cached != nil && time.Since(cached.fetchedAt) < constants.StorageAuthTTL {
		return cached, nil
	}

	return store.refresh(ctx)
}

// refresh rebuilds the authorized client pair. All concurrent callers are
// collapsed into one rebuild.
func (store *S3Store) refresh(ctx context.Context) (*session, error) {
	value, err, _ := store.group.Do("auth", func() (any, error) {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(store.opts.Region),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(store.opts.AccessKey, store.opts.SecretKey, ""),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("blob: load aws config: %w", err)
		}

		client := s3.NewFromConfig(cfg, func(options *s3.Options) {
			if store.opts.Endpoint != "" {
				options.BaseEndpoint = aws.String(store.opts.Endpoint)
			}
			options.UsePathStyle = true
		})

		fresh := &session{
			client:    client,
			presigner: s3.NewPresignClient(client),
			fetchedAt: time.Now(),
		}

		store.mu.Lock()
		store.sess = fresh
		store.mu.Unlock()

		store.logger.Debug("storage_auth_refreshed", slog.String("bucket", store.opts.Bucket))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}

	return value.(*session), nil
}

// # Retry Cycle

// withRetry runs one storage call under the bounded retry policy. An
// auth-class rejection forces a session rebuild before the next attempt;
// the exhausted cycle surfaces as a 502 [apperr.AppError].
func (store *S3Store) withRetry(ctx context.Context, op string, call func(sess *session) error) error {
	forceRefresh := false
	attempt := 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), constants.StorageMaxAttempts-1),
		ctx,
	)

	err := backoff.Retry(func() error {
		attempt++

		sess, err := store.current(ctx, forceRefresh)
		if err != nil {
			return err
		}
		forceRefresh = false

		if err := call(sess); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if isAuthError(err) {
				forceRefresh = true
			}

			store.logger.Warn("storage_call_failed",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Bool("auth_error", forceRefresh),
				slog.String("error", err.Error()),
			)
			return err
		}

		return nil
	}, policy)

	if err != nil {
		return apperr.StorageUnavailable(fmt.Errorf("blob: %s failed after %d attempts: %w", op, attempt, err))
	}

	return nil
}

// isAuthError classifies rejections that indicate a dead or revoked
// authorization rather than a transient network fault.
func isAuthError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.ErrorCode() {
	case "AccessDenied", "ExpiredToken", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "TokenRefreshRequired", "Unauthorized":
		return true
	}

	return false
}

// # Store Implementation

// Put uploads one object, rewinding the body before each retry attempt.
func (store *S3Store) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error {
	return store.withRetry(ctx, "put", func(sess *session) error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(fmt.Errorf("blob: rewind body: %w", err))
		}

		_, err := sess.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(store.opts.Bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType),
		})
		return err
	})
}

// List pages through every object under prefix in key order.
func (store *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	err := store.withRetry(ctx, "list", func(sess *session) error {
		objects = objects[:0]

		paginator := s3.NewListObjectsV2Paginator(sess.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(store.opts.Bucket),
			Prefix: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}

			for _, item := range page.Contents {
				objects = append(objects, Object{
					Key:  aws.ToString(item.Key),
					Size: aws.ToInt64(item.Size),
				})
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return objects, nil
}

// Delete removes one object. S3 treats deleting a missing key as success,
// which matches the Store contract.
func (store *S3Store) Delete(ctx context.Context, key string) error {
	return store.withRetry(ctx, "delete", func(sess *session) error {
		_, err := sess.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(store.opts.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

// DeletePrefix lists and batch-deletes everything under prefix.
func (store *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return nil
	}

	// DeleteObjects accepts at most 1000 keys per call.
	const batchSize = 1000

	for start := 0; start < len(objects); start += batchSize {
		end := min(start+batchSize, len(objects))

		identifiers := make([]types.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			identifiers = append(identifiers, types.ObjectIdentifier{Key: aws.String(obj.Key)})
		}

		err := store.withRetry(ctx, "delete_prefix", func(sess *session) error {
			_, err := sess.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(store.opts.Bucket),
				Delete: &types.Delete{
					Objects: identifiers,
					Quiet:   aws.Bool(true),
				},
			})
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// PublicURL prefers the CDN base when configured, otherwise presigns a GET
// valid for [constants.StorageURLExpiry].
func (store *S3Store) PublicURL(ctx context.Context, key string) (string, error) {
	if store.opts.PublicBase != "" {
		return strings.TrimSuffix(store.opts.PublicBase, "/") + "/" + key, nil
	}

	var url string
	err := store.withRetry(ctx, "presign", func(sess *session) error {
		signed, err := sess.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(store.opts.Bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(constants.StorageURLExpiry))
		if err != nil {
			return err
		}

		url = signed.URL
		return nil
	})
	if err != nil {
		return "", err
	}

	return url, nil
}

// Healthy checks bucket reachability with a single non-retried HEAD.
func (store *S3Store) Healthy(ctx context.Context) error {
	sess, err := store.current(ctx, false)
	if err != nil {
		return err
	}

	_, err = sess.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(store.opts.Bucket),
	})
	return err
}
