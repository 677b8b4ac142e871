// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

// Package mem implements an in-memory blob store for tests and small
// deployments.
package mem

import (
	"context"
	"sync"

	"kbase.us/workspace/blobstore"
)

type blob struct {
	data   []byte
	sorted bool
}

// Store is an in-memory blobstore.Store.
type Store struct {
	mu    sync.Mutex
	blobs map[string]blob
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{blobs: make(map[string]blob)}
}

// PutBlob implements blobstore.Store.
func (s *Store) PutBlob(ctx context.Context, checksum string, data []byte, sorted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.blobs[checksum]; ok {
		if existing.sorted || !sorted {
			return nil
		}
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[checksum] = blob{data: stored, sorted: sorted}
	return nil
}

// GetBlob implements blobstore.Store.
func (s *Store) GetBlob(ctx context.Context, checksum string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[checksum]
	if !ok {
		return nil, blobstore.ErrNoSuchBlob.New("no blob stored with checksum %s", checksum)
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// RemoveBlob implements blobstore.Store.
func (s *Store) RemoveBlob(ctx context.Context, checksum string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, checksum)
	return nil
}

// Status implements blobstore.Store.
func (s *Store) Status(ctx context.Context) (blobstore.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return blobstore.Status{Backend: "mem", OK: true}, nil
}

// TestingCount returns the number of stored blobs.
func (s *Store) TestingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
