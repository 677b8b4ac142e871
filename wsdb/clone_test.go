// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kbase.us/workspace/internal/testcontext"
	"kbase.us/workspace/internal/testrand"
	"kbase.us/workspace/wsdb"
	"kbase.us/workspace/wsdb/wsdbtest"
)

func TestCloneWorkspace(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		from := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		fromID := wsdb.WorkspaceIdentifier{ID: from.ID}
		versioned := wsdbtest.CreateObjectVersions(ctx, t, db, "auser", fromID, "versioned", 2)

		hidden := wsdbtest.RandSaveObject("hidden")
		hidden.Hidden = true
		wsdbtest.SaveObjects{
			Opts: wsdb.SaveObjects{User: "auser", Workspace: fromID, Objects: []wsdb.SaveObject{hidden}},
		}.Check(ctx, t, db)

		name := testrand.Name("clone")
		meta := wsdb.Metadata{{Key: "cloned", Value: "yes"}}
		clone := wsdbtest.CloneWorkspace{
			Opts: wsdb.CloneWorkspace{
				User:          "buser",
				FromWorkspace: fromID,
				NewName:       name,
				GlobalRead:    true,
				Description:   "the clone",
				Meta:          meta,
			},
		}.Check(ctx, t, db)
		require.NotEqual(t, from.ID, clone.ID)
		require.Equal(t, name, clone.Name)
		require.Equal(t, wsdb.User("buser"), clone.Owner)
		require.Equal(t, int64(2), clone.MaxObjectID)

		got, err := db.GetWorkspaceInformation(ctx, wsdb.WorkspaceIdentifier{ID: clone.ID})
		require.NoError(t, err)
		require.Equal(t, name, got.Name)
		require.True(t, got.GlobalRead)
		require.Equal(t, meta, got.Meta)
		require.Equal(t, int64(2), got.MaxObjectID)

		desc, err := db.GetWorkspaceDescription(ctx, wsdb.WorkspaceIdentifier{ID: clone.ID})
		require.NoError(t, err)
		require.Equal(t, "the clone", desc)

		// object ids carry over from the source
		cloneID := wsdb.WorkspaceIdentifier{ID: clone.ID}
		info, err := db.GetObjectInformation(ctx, cloneID, wsdb.ObjectIdentifier{Name: "versioned"})
		require.NoError(t, err)
		require.Equal(t, versioned[0].ID, info.ID)
		require.Equal(t, 2, info.Version)
		require.Equal(t, versioned[1].Checksum, info.Checksum)
		require.Equal(t, wsdb.User("buser"), info.SavedBy)

		objects, err := db.TestingRawObjects(ctx)
		require.NoError(t, err)
		for _, obj := range objects {
			if obj.WorkspaceID != clone.ID {
				continue
			}
			// hidden flags carry over, reference counts start fresh
			require.Equal(t, obj.Name == "hidden", obj.Hidden)
			for _, count := range obj.Refcounts {
				require.Zero(t, count)
			}
		}

		// every cloned version is tagged with its source
		versions, err := db.TestingRawVersions(ctx)
		require.NoError(t, err)
		for _, ver := range versions {
			if ver.WorkspaceID != clone.ID {
				continue
			}
			src := wsdb.Reference{
				Workspace: from.ID, Object: ver.ObjectID, Version: ver.Version,
			}
			require.Equal(t, src.String(), ver.CopiedFrom)
			require.Zero(t, ver.RevertedFrom)
		}
	})
}

func TestCloneWorkspaceExclude(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		from := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		fromID := wsdb.WorkspaceIdentifier{ID: from.ID}
		wsdbtest.CreateObject(ctx, t, db, "auser", fromID, "keep")
		skipped := wsdbtest.CreateObject(ctx, t, db, "auser", fromID, "skip")

		clone := wsdbtest.CloneWorkspace{
			Opts: wsdb.CloneWorkspace{
				User:          "auser",
				FromWorkspace: fromID,
				NewName:       testrand.Name("clone"),
				Exclude:       []wsdb.ObjectIdentifier{{Name: "skip"}},
			},
		}.Check(ctx, t, db)

		cloneID := wsdb.WorkspaceIdentifier{ID: clone.ID}
		_, err := db.GetObjectInformation(ctx, cloneID, wsdb.ObjectIdentifier{Name: "keep"})
		require.NoError(t, err)
		_, err = db.GetObjectInformation(ctx, cloneID, wsdb.ObjectIdentifier{Name: "skip"})
		require.True(t, wsdb.ErrNoSuchObject.Has(err))

		// the excluded object's id was never claimed in the clone, so a
		// fresh save may reuse it
		saved := wsdbtest.CreateObject(ctx, t, db, "auser", cloneID, "fresh")
		require.Equal(t, skipped.ID, saved.ID)
	})
}

func TestCloneWorkspaceSkipsDeleted(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		from := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		fromID := wsdb.WorkspaceIdentifier{ID: from.ID}
		wsdbtest.CreateObject(ctx, t, db, "auser", fromID, "keep")
		wsdbtest.CreateObject(ctx, t, db, "auser", fromID, "gone")
		wsdbtest.SetObjectsDeleted{
			Targets: []wsdb.ObjectTarget{{Workspace: fromID, Object: wsdb.ObjectIdentifier{Name: "gone"}}},
			Deleted: true,
		}.Check(ctx, t, db)

		clone := wsdbtest.CloneWorkspace{
			Opts: wsdb.CloneWorkspace{
				User:          "auser",
				FromWorkspace: fromID,
				NewName:       testrand.Name("clone"),
			},
		}.Check(ctx, t, db)

		cloneID := wsdb.WorkspaceIdentifier{ID: clone.ID}
		_, err := db.GetObjectInformation(ctx, cloneID, wsdb.ObjectIdentifier{Name: "keep"})
		require.NoError(t, err)
		_, err = db.GetObjectInformation(ctx, cloneID, wsdb.ObjectIdentifier{Name: "gone"})
		require.True(t, wsdb.ErrNoSuchObject.Has(err))
	})
}

func TestCloneWorkspaceNameInUse(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		from := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		taken := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")

		wsdbtest.CloneWorkspace{
			Opts: wsdb.CloneWorkspace{
				User:          "auser",
				FromWorkspace: wsdb.WorkspaceIdentifier{ID: from.ID},
				NewName:       taken.Name,
			},
			ErrClass: &wsdb.ErrPreExistingWorkspace,
			ErrText:  "Workspace name " + taken.Name + " is already in use",
		}.Check(ctx, t, db)
	})
}

func TestCloneWorkspaceBogusExclusion(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		from := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")

		_, err := db.CloneWorkspace(ctx, wsdb.CloneWorkspace{
			User:          "auser",
			FromWorkspace: wsdb.WorkspaceIdentifier{ID: from.ID},
			NewName:       testrand.Name("clone"),
			Exclude:       []wsdb.ObjectIdentifier{{Name: "nothere"}},
		})
		require.True(t, wsdb.ErrNoSuchObject.Has(err))

		// nothing was created
		_, err = db.GetWorkspaceInformation(ctx, wsdb.WorkspaceIdentifier{ID: from.ID + 1})
		require.True(t, wsdb.ErrNoSuchWorkspace.Has(err))
	})
}

func TestCloneWorkspaceSkipsVersionlessObjects(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		from := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		fromID := wsdb.WorkspaceIdentifier{ID: from.ID}
		wsdbtest.CreateObject(ctx, t, db, "auser", fromID, "real")

		// an object record whose version counter never advanced, as left
		// behind by a saver that died mid-write
		err := db.Adapter().InsertObject(ctx, wsdb.RawObject{
			WorkspaceID: from.ID,
			ID:          7,
			Name:        "halfborn",
			Refcounts:   []int{},
		})
		require.NoError(t, err)

		clone := wsdbtest.CloneWorkspace{
			Opts: wsdb.CloneWorkspace{
				User:          "auser",
				FromWorkspace: fromID,
				NewName:       testrand.Name("clone"),
			},
		}.Check(ctx, t, db)

		cloneID := wsdb.WorkspaceIdentifier{ID: clone.ID}
		_, err = db.GetObjectInformation(ctx, cloneID, wsdb.ObjectIdentifier{Name: "real"})
		require.NoError(t, err)
		_, err = db.GetObjectInformation(ctx, cloneID, wsdb.ObjectIdentifier{Name: "halfborn"})
		require.True(t, wsdb.ErrNoSuchObject.Has(err))
	})
}
