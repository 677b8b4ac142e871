// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

// Package wsdb implements the versioned, reference-counted workspace object
// store over a document database.
//
// Multiple service processes may operate on the same backing store
// concurrently without a shared lock manager or multi-document transactions.
// All cross-writer coordination happens through single-document atomic
// operations on the Adapter plus optimistic retry, so the engine tolerates,
// and precisely defines, the visibility windows those primitives leave open.
package wsdb

import (
	"context"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"kbase.us/workspace/blobstore"
)

var mon = monkit.Package()

// Config is the static engine configuration. Runtime-tunable settings live in
// the dynamic configuration (see DynamicConfig).
type Config struct {
	// ApplicationName is reported to the document store.
	ApplicationName string
	// Database is the Mongo database name. Defaults to "workspace".
	Database string
}

// DB implements the workspace object store.
type DB struct {
	log     *zap.Logger
	adapter Adapter
	blobs   blobstore.Store
	config  Config

	// now is the clock; replaceable by tests.
	now func() time.Time

	testCleanup func(context.Context) error
	// testReleaseData observes payload buffer releases during bulk data
	// materialization. For tests.
	testReleaseData func(checksum string)
}

// Open connects to the backing store. Supported connection strings are
// "mongodb://..." (incl. mongodb+srv) and "mem://" for the in-memory adapter.
// The blob store holds object payloads; the document store only ever holds
// their checksums.
func Open(ctx context.Context, log *zap.Logger, connstr string, blobs blobstore.Store, config Config) (*DB, error) {
	if config.Database == "" {
		config.Database = "workspace"
	}
	switch {
	case connstr == "mem://":
		return OpenWithAdapter(log, newMemAdapter(), blobs, config), nil
	case strings.HasPrefix(connstr, "mongodb://"), strings.HasPrefix(connstr, "mongodb+srv://"):
		opts := options.Client().ApplyURI(connstr)
		if config.ApplicationName != "" {
			opts = opts.SetAppName(config.ApplicationName)
		}
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, ErrCommunication.Wrap(err)
		}
		adapter := NewMongoAdapter(client.Database(config.Database))
		if err := adapter.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		db := OpenWithAdapter(log, adapter, blobs, config)
		db.testCleanup = client.Disconnect
		return db, nil
	default:
		return nil, Error.New("unsupported connection string: %s", connstr)
	}
}

// OpenWithAdapter wraps an existing adapter. Used by tests to inject
// failure-injecting or in-memory adapters.
func OpenWithAdapter(log *zap.Logger, adapter Adapter, blobs blobstore.Store, config Config) *DB {
	log.Debug("connected", zap.String("adapter", adapter.Name()))
	return &DB{
		log:         log,
		adapter:     adapter,
		blobs:       blobs,
		config:      config,
		now:         time.Now,
		testCleanup: func(context.Context) error { return nil },
	}
}

// NewMemAdapter creates a fresh in-memory adapter. Useful together with
// OpenWithAdapter to wrap the store in failure-injecting tests.
func NewMemAdapter() Adapter { return newMemAdapter() }

// Close releases the underlying store connection.
func (db *DB) Close(ctx context.Context) error {
	return Error.Wrap(db.testCleanup(ctx))
}

// Adapter exposes the underlying adapter. Intended for tests and migration
// tooling, not for normal callers.
func (db *DB) Adapter() Adapter { return db.adapter }

// BlobStore exposes the payload backend.
func (db *DB) BlobStore() blobstore.Store { return db.blobs }

// TestingObserveReleases registers an observer called once per released
// payload buffer during bulk data materialization cleanup. For tests.
func (db *DB) TestingObserveReleases(fn func(checksum string)) {
	db.testReleaseData = fn
}

// TestingSetClock replaces the engine clock. For tests.
func (db *DB) TestingSetClock(now func() time.Time) { db.now = now }

// TestingDeleteAll removes all stored state. For tests.
func (db *DB) TestingDeleteAll(ctx context.Context) error {
	return db.adapter.TestingDeleteAll(ctx)
}

// TestingRawWorkspaces returns every stored workspace record. For tests.
func (db *DB) TestingRawWorkspaces(ctx context.Context) ([]RawWorkspace, error) {
	return db.adapter.TestingRawWorkspaces(ctx)
}

// TestingRawObjects returns every stored object record. For tests.
func (db *DB) TestingRawObjects(ctx context.Context) ([]RawObject, error) {
	return db.adapter.TestingRawObjects(ctx)
}

// TestingRawVersions returns every stored version record. For tests.
func (db *DB) TestingRawVersions(ctx context.Context) ([]RawVersion, error) {
	return db.adapter.TestingRawVersions(ctx)
}
