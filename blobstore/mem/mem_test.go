// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package mem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kbase.us/workspace/blobstore"
	"kbase.us/workspace/blobstore/mem"
	"kbase.us/workspace/internal/testcontext"
	"kbase.us/workspace/internal/testrand"
)

func TestStore(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := mem.New()
	checksum := testrand.Checksum()
	data := testrand.BytesN(64)

	_, err := store.GetBlob(ctx, checksum)
	require.True(t, blobstore.ErrNoSuchBlob.Has(err))

	require.NoError(t, store.PutBlob(ctx, checksum, data, false))
	got, err := store.GetBlob(ctx, checksum)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, 1, store.TestingCount())

	// the store keeps its own copy
	got[0]++
	again, err := store.GetBlob(ctx, checksum)
	require.NoError(t, err)
	require.Equal(t, data, again)

	require.NoError(t, store.RemoveBlob(ctx, checksum))
	require.NoError(t, store.RemoveBlob(ctx, checksum))
	require.Equal(t, 0, store.TestingCount())

	status, err := store.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.OK)
	require.Equal(t, "mem", status.Backend)
}

func TestStoreSortedUpgrade(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := mem.New()
	checksum := testrand.Checksum()
	unsorted := []byte(`{"b":2,"a":1}`)
	sorted := []byte(`{"a":1,"b":2}`)

	require.NoError(t, store.PutBlob(ctx, checksum, unsorted, false))

	// an unsorted duplicate is ignored
	require.NoError(t, store.PutBlob(ctx, checksum, []byte("other"), false))
	got, err := store.GetBlob(ctx, checksum)
	require.NoError(t, err)
	require.Equal(t, unsorted, got)

	// a sorted copy replaces the unsorted one
	require.NoError(t, store.PutBlob(ctx, checksum, sorted, true))
	got, err = store.GetBlob(ctx, checksum)
	require.NoError(t, err)
	require.Equal(t, sorted, got)

	// and after that nothing replaces it
	require.NoError(t, store.PutBlob(ctx, checksum, []byte("other"), true))
	got, err = store.GetBlob(ctx, checksum)
	require.NoError(t, err)
	require.Equal(t, sorted, got)
}
