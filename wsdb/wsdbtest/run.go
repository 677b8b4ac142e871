// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

// Package wsdbtest implements testing helpers for the workspace store.
package wsdbtest

import (
	"os"
	"testing"

	"go.uber.org/zap/zaptest"

	"kbase.us/workspace/blobstore"
	"kbase.us/workspace/blobstore/mem"
	"kbase.us/workspace/internal/testcontext"
	"kbase.us/workspace/internal/testrand"
	"kbase.us/workspace/wsdb"
)

type dbinfo struct {
	name    string
	connstr string
}

// databases returns the backing stores to run tests against. The in-memory
// adapter always runs; a real document store is added when the
// WORKSPACE_TEST_MONGODB environment variable holds a connection string.
func databases() []dbinfo {
	infos := []dbinfo{
		{name: "Mem", connstr: "mem://"},
	}
	if connstr := os.Getenv("WORKSPACE_TEST_MONGODB"); connstr != "" {
		infos = append(infos, dbinfo{name: "Mongo", connstr: connstr})
	}
	return infos
}

// Run runs the test against all configured backing stores with a fresh
// in-memory blob store.
func Run(t *testing.T, fn func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB)) {
	RunWithBlobs(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB, _ *mem.Store) {
		fn(ctx, t, db)
	})
}

// RunWithBlobs is Run with direct access to the in-memory blob store backing
// the engine. Only the in-memory blob store is used; payloads never hit a
// real backend in tests.
func RunWithBlobs(t *testing.T, fn func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB, blobs *mem.Store)) {
	for _, info := range databases() {
		info := info
		t.Run(info.name, func(t *testing.T) {
			ctx := testcontext.New(t)
			defer ctx.Cleanup()

			blobs := mem.New()
			db, err := wsdb.Open(ctx, zaptest.NewLogger(t), info.connstr, blobs, wsdb.Config{
				ApplicationName: "workspace-test",
				Database:        testrand.Name("workspace_test"),
			})
			if err != nil {
				t.Fatal(err)
			}
			defer ctx.Check(func() error { return db.Close(ctx) })

			if err := db.TestingDeleteAll(ctx); err != nil {
				t.Fatal(err)
			}

			fn(ctx, t, db, blobs)
		})
	}
}

// RunWithAdapter runs the test against the in-memory adapter wrapped by
// wrap, for injecting failures underneath the engine.
func RunWithAdapter(t *testing.T, wrap func(wsdb.Adapter) wsdb.Adapter, fn func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB)) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := wsdb.OpenWithAdapter(zaptest.NewLogger(t), wrap(wsdb.NewMemAdapter()), mem.New(), wsdb.Config{
		ApplicationName: "workspace-test",
		Database:        "workspace_test",
	})
	defer ctx.Check(func() error { return db.Close(ctx) })

	fn(ctx, t, db)
}

// RunWithStore runs the test against the in-memory adapter with a caller
// supplied blob store.
func RunWithStore(t *testing.T, blobs blobstore.Store, fn func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB)) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := wsdb.OpenWithAdapter(zaptest.NewLogger(t), wsdb.NewMemAdapter(), blobs, wsdb.Config{
		ApplicationName: "workspace-test",
		Database:        "workspace_test",
	})
	defer ctx.Check(func() error { return db.Close(ctx) })

	fn(ctx, t, db)
}
