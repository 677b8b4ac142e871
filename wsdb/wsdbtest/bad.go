// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdbtest

import (
	"context"
	"sync"
	"time"

	"kbase.us/workspace/blobstore"
	"kbase.us/workspace/wsdb"
)

// BadAdapter wraps an adapter and injects failures into selected calls.
type BadAdapter struct {
	wsdb.Adapter

	mu sync.Mutex
	// metaConflicts is the number of metadata compare-and-set calls left
	// to report as lost races. Negative means every call loses.
	metaConflicts int
}

// NewBadAdapter wraps the given adapter. Without configuration it forwards
// every call unchanged.
func NewBadAdapter(adapter wsdb.Adapter) *BadAdapter {
	return &BadAdapter{Adapter: adapter}
}

// SetMetaConflicts makes the next n metadata compare-and-set calls report a
// lost race without touching the store. Negative n means all of them.
func (bad *BadAdapter) SetMetaConflicts(n int) {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	bad.metaConflicts = n
}

func (bad *BadAdapter) takeConflict() bool {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	if bad.metaConflicts == 0 {
		return false
	}
	if bad.metaConflicts > 0 {
		bad.metaConflicts--
	}
	return true
}

// CompareAndSetWorkspaceMeta implements wsdb.Adapter.
func (bad *BadAdapter) CompareAndSetWorkspaceMeta(ctx context.Context, id int64, expected, updated wsdb.Metadata, t time.Time) (bool, error) {
	if bad.takeConflict() {
		return false, nil
	}
	return bad.Adapter.CompareAndSetWorkspaceMeta(ctx, id, expected, updated, t)
}

// CompareAndSetAdminMeta implements wsdb.Adapter.
func (bad *BadAdapter) CompareAndSetAdminMeta(ctx context.Context, ref wsdb.Reference, expected, updated wsdb.Metadata) (bool, error) {
	if bad.takeConflict() {
		return false, nil
	}
	return bad.Adapter.CompareAndSetAdminMeta(ctx, ref, expected, updated)
}

// BadBlobs wraps a blob store and fails every call with a configured error.
type BadBlobs struct {
	blobstore.Store

	mu  sync.Mutex
	err error
}

// NewBadBlobs wraps the given blob store. Without a configured error it
// forwards every call unchanged.
func NewBadBlobs(store blobstore.Store) *BadBlobs {
	return &BadBlobs{Store: store}
}

// SetError makes every subsequent call fail with err. A nil err restores
// normal operation.
func (bad *BadBlobs) SetError(err error) {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	bad.err = err
}

func (bad *BadBlobs) takeError() error {
	bad.mu.Lock()
	defer bad.mu.Unlock()
	return bad.err
}

// PutBlob implements blobstore.Store.
func (bad *BadBlobs) PutBlob(ctx context.Context, checksum string, data []byte, sorted bool) error {
	if err := bad.takeError(); err != nil {
		return err
	}
	return bad.Store.PutBlob(ctx, checksum, data, sorted)
}

// GetBlob implements blobstore.Store.
func (bad *BadBlobs) GetBlob(ctx context.Context, checksum string) ([]byte, error) {
	if err := bad.takeError(); err != nil {
		return nil, err
	}
	return bad.Store.GetBlob(ctx, checksum)
}

// RemoveBlob implements blobstore.Store.
func (bad *BadBlobs) RemoveBlob(ctx context.Context, checksum string) error {
	if err := bad.takeError(); err != nil {
		return err
	}
	return bad.Store.RemoveBlob(ctx, checksum)
}
