// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package blob

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory [Store] used in development mode and in tests.
// It mirrors the S3 listing contract: List returns keys in lexical order.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailPut, when set, is consulted before each Put so tests can inject
	// per-key upload failures.
	FailPut func(key string) error
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func (store *MemStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error {
	if store.FailPut != nil {
		if err := store.FailPut(key); err != nil {
			return err
		}
	}

	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	store.objects[key] = data

	return nil
}

func (store *MemStore) List(ctx context.Context, prefix string) ([]Object, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	var result []Object
	for key, data := range store.objects {
		if strings.HasPrefix(key, prefix) {
			result = append(result, Object{Key: key, Size: int64(len(data))})
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (store *MemStore) Delete(ctx context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.objects, key)

	return nil
}

func (store *MemStore) DeletePrefix(ctx context.Context, prefix string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for key := range store.objects {
		if strings.HasPrefix(key, prefix) {
			delete(store.objects, key)
		}
	}

	return nil
}

func (store *MemStore) PublicURL(ctx context.Context, key string) (string, error) {
	return "https://assets.tankobon.test/" + key, nil
}

func (store *MemStore) Healthy(ctx context.Context) error { return nil }
