// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"kbase.us/workspace/internal/testcontext"
	"kbase.us/workspace/wsdb"
	"kbase.us/workspace/wsdb/wsdbtest"
)

func TestGetObjectInformation(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		saved := wsdbtest.CreateObjectVersions(ctx, t, db, "auser", wsi, "obj", 2)

		// latest by default
		info := wsdbtest.GetObjectInformation{
			Workspace: wsi,
			Object:    wsdb.ObjectIdentifier{Name: "obj"},
		}.Check(ctx, t, db)
		require.Equal(t, 2, info.Version)
		require.Equal(t, saved[1].Checksum, info.Checksum)

		// pinned version
		info = wsdbtest.GetObjectInformation{
			Workspace: wsi,
			Object:    wsdb.ObjectIdentifier{ID: saved[0].ID, Version: 1},
		}.Check(ctx, t, db)
		require.Equal(t, 1, info.Version)
		require.Equal(t, saved[0].Checksum, info.Checksum)

		wsdbtest.GetObjectInformation{
			Workspace: wsi,
			Object:    wsdb.ObjectIdentifier{Name: "obj", Version: 3},
			ErrClass:  &wsdb.ErrNoSuchObject,
			ErrText: fmt.Sprintf(
				"No object with id %d (name obj) and version 3 exists in workspace %d (name %s)",
				saved[0].ID, ws.ID, ws.Name),
		}.Check(ctx, t, db)

		wsdbtest.GetObjectInformation{
			Workspace: wsi,
			Object:    wsdb.ObjectIdentifier{Name: "nothere"},
			ErrClass:  &wsdb.ErrNoSuchObject,
			ErrText: fmt.Sprintf(
				"No object with name nothere exists in workspace %d (name %s)", ws.ID, ws.Name),
		}.Check(ctx, t, db)
	})
}

func TestResolveWorkspaceErrors(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		_, err := db.ResolveWorkspace(ctx, wsdb.WorkspaceIdentifier{})
		require.True(t, wsdb.ErrInvalidRequest.Has(err))

		_, err = db.ResolveWorkspace(ctx, wsdb.WorkspaceIdentifier{ID: 1, Name: "both"})
		require.True(t, wsdb.ErrInvalidRequest.Has(err))

		_, err = db.ResolveWorkspace(ctx, wsdb.WorkspaceIdentifier{ID: 42})
		require.EqualError(t, err, wsdb.ErrNoSuchWorkspace.New(
			"No workspace with id 42 exists").Error())

		_, err = db.ResolveWorkspace(ctx, wsdb.WorkspaceIdentifier{Name: "nothere"})
		require.EqualError(t, err, wsdb.ErrNoSuchWorkspace.New(
			"No workspace with name nothere exists").Error())

		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		_, err = db.SetWorkspaceDeleted(ctx, wsdb.WorkspaceIdentifier{ID: ws.ID}, true)
		require.NoError(t, err)

		_, err = db.ResolveWorkspace(ctx, wsdb.WorkspaceIdentifier{ID: ws.ID})
		require.EqualError(t, err, wsdb.ErrNoSuchWorkspace.New(
			"Workspace %d is deleted", ws.ID).Error())

		resolved, err := db.ResolveWorkspaceAllowDeleted(ctx, wsdb.WorkspaceIdentifier{ID: ws.ID})
		require.NoError(t, err)
		require.True(t, resolved.Deleted)
	})
}

func TestVersionlessObjectInvisible(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}

		// an object record exists but its version counter never moved; it
		// must look exactly like a missing object
		err := db.Adapter().InsertObject(ctx, wsdb.RawObject{
			WorkspaceID: ws.ID,
			ID:          1,
			Name:        "halfborn",
			Refcounts:   []int{},
		})
		require.NoError(t, err)

		wsdbtest.GetObjectInformation{
			Workspace: wsi,
			Object:    wsdb.ObjectIdentifier{Name: "halfborn"},
			ErrClass:  &wsdb.ErrNoSuchObject,
			ErrText: fmt.Sprintf(
				"No object with name halfborn exists in workspace %d (name %s)", ws.ID, ws.Name),
		}.Check(ctx, t, db)

		exists, err := db.CheckObjectsExist(ctx, []wsdb.ObjectVersionTarget{
			{Workspace: wsi, Object: wsdb.ObjectIdentifier{Name: "halfborn"}},
		})
		require.NoError(t, err)
		require.Equal(t, []bool{false}, exists)
	})
}

func TestCheckObjectsExist(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		obj := wsdbtest.CreateObject(ctx, t, db, "auser", wsi, "obj")

		exists, err := db.CheckObjectsExist(ctx, []wsdb.ObjectVersionTarget{
			{Workspace: wsi, Object: wsdb.ObjectIdentifier{Name: "obj"}},
			{Workspace: wsi, Object: wsdb.ObjectIdentifier{ID: obj.ID, Version: 1}},
			{Workspace: wsi, Object: wsdb.ObjectIdentifier{ID: obj.ID, Version: 2}},
			{Workspace: wsi, Object: wsdb.ObjectIdentifier{Name: "nothere"}},
			{Workspace: wsdb.WorkspaceIdentifier{ID: 9999}, Object: wsdb.ObjectIdentifier{Name: "obj"}},
		})
		require.NoError(t, err)
		require.Equal(t, []bool{true, true, false, false, false}, exists)
	})
}

func TestGetObjectProvenance(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}

		obj := wsdbtest.RandSaveObject("obj")
		obj.Provenance = []byte(`{"actions":[{"service":"assembly"}]}`)
		wsdbtest.SaveObjects{
			Opts: wsdb.SaveObjects{User: "auser", Workspace: wsi, Objects: []wsdb.SaveObject{obj}},
		}.Check(ctx, t, db)

		prov, err := db.GetObjectProvenance(ctx, wsi, wsdb.ObjectIdentifier{Name: "obj"})
		require.NoError(t, err)
		require.Equal(t, obj.Provenance, prov)
	})
}
