// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"kbase.us/workspace/blobstore"
)

// fetchError tags a blob backend failure with the checksum it occurred on,
// so the failure can be reported against an affected object.
type fetchError struct {
	checksum string
	err      error
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

// AddDataToObjects fetches the payloads for a batch of retrieval handles
// from the blob backend and attaches them, extracting subsets where a handle
// asks for one.
//
// Handles are grouped by checksum so each distinct payload is fetched at
// most once, and fetches fan out across up to backend-scaling concurrent
// workers (a dynamic configuration value). On any failure every payload
// fetched or derived during the call is released before the error
// propagates, and nothing stays attached to any handle.
func (db *DB) AddDataToObjects(ctx context.Context, objects []*ObjectData, extractor SubsetExtractor) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(objects) == 0 {
		return nil
	}
	cfg, err := db.GetConfig(ctx)
	if err != nil {
		return err
	}
	scaling := cfg.BackendScalingOrDefault()

	groups := make(map[string][]*ObjectData)
	for _, obj := range objects {
		groups[obj.Info.Checksum] = append(groups[obj.Info.Checksum], obj)
	}

	var (
		mu      sync.Mutex
		fetched = make(map[string][]byte, len(groups))
	)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(scaling)
	for checksum, handles := range groups {
		checksum, handles := checksum, handles
		group.Go(func() error {
			data, err := db.blobs.GetBlob(gctx, checksum)
			if err != nil {
				return &fetchError{checksum: checksum, err: err}
			}
			mu.Lock()
			fetched[checksum] = data
			mu.Unlock()
			for _, h := range handles {
				if h.SubsetPath != "" {
					sub, err := extractor.Extract(data, h.SubsetPath)
					if err != nil {
						return err
					}
					h.Data = sub
				} else {
					h.Data = data
				}
			}
			return nil
		})
	}
	err = group.Wait()
	if err == nil {
		return nil
	}

	// cleanup always precedes propagation, whatever the error kind
	db.releaseObjectData(objects, fetched)

	var fe *fetchError
	if errors.As(err, &fe) {
		switch {
		case blobstore.ErrNoSuchBlob.Has(fe.err):
			info := groups[fe.checksum][0].Info
			return ErrNoObjectData.New("No data present for object %d/%d/%d",
				info.Workspace, info.ID, info.Version)
		case blobstore.ErrAuthorization.Has(fe.err):
			return ErrCommunication.New(
				"Authorization error communicating with the backend storage system")
		default:
			return ErrCommunication.Wrap(fe.err)
		}
	}
	// extraction errors pass through untouched
	return err
}

// releaseObjectData detaches every payload from the handles and releases
// each fetched buffer exactly once, shared handles notwithstanding.
func (db *DB) releaseObjectData(objects []*ObjectData, fetched map[string][]byte) {
	for _, obj := range objects {
		obj.Data = nil
	}
	for checksum := range fetched {
		if db.testReleaseData != nil {
			db.testReleaseData(checksum)
		}
		delete(fetched, checksum)
	}
}
