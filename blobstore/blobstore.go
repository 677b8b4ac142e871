// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

// Package blobstore defines the interface to the backends that hold object
// payloads. Payloads are keyed by their MD5 checksum, so storing the same
// content twice is always a no-op.
package blobstore

import (
	"context"

	"github.com/zeebo/errs"
)

var (
	// Error is the default blobstore error class.
	Error = errs.Class("blobstore")
	// ErrNoSuchBlob is returned when no blob exists for a checksum.
	ErrNoSuchBlob = errs.Class("no such blob")
	// ErrAuthorization is returned when the backend rejects credentials.
	ErrAuthorization = errs.Class("blobstore authorization")
	// ErrCommunication is returned on backend I/O failures.
	ErrCommunication = errs.Class("blobstore communication")
)

// Status describes backend health.
type Status struct {
	Backend string
	OK      bool
	Info    string
}

// Store is a content-addressed payload store.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// PutBlob stores data under its checksum. Storing an existing
	// checksum is a no-op, except that an unsorted blob is replaced when
	// the new copy is flagged sorted.
	PutBlob(ctx context.Context, checksum string, data []byte, sorted bool) error
	// GetBlob fetches the payload stored under the checksum. Returns an
	// ErrNoSuchBlob class error when no blob exists.
	GetBlob(ctx context.Context, checksum string) ([]byte, error)
	// RemoveBlob deletes the blob. Removing an absent blob succeeds.
	RemoveBlob(ctx context.Context, checksum string) error
	// Status reports backend health.
	Status(ctx context.Context) (Status, error)
}
