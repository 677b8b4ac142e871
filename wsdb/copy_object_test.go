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

func TestCopyObjectAllVersions(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		source := wsdbtest.CreateObjectVersions(ctx, t, db, "auser", wsi, "source", 3)

		result := wsdbtest.CopyObject{
			Opts: wsdb.CopyObject{
				User:          "buser",
				FromWorkspace: wsi,
				From:          wsdb.ObjectIdentifier{Name: "source"},
				ToWorkspace:   wsi,
				To:            wsdb.ObjectIdentifier{Name: "dest"},
			},
		}.Check(ctx, t, db)
		require.True(t, result.AllVersionsCopied)
		require.Equal(t, "dest", result.Name)
		require.Equal(t, 3, result.Version)
		require.Equal(t, source[2].Checksum, result.Checksum)
		require.Equal(t, wsdb.User("buser"), result.SavedBy)

		versions, err := db.TestingRawVersions(ctx)
		require.NoError(t, err)
		var copied []wsdb.RawVersion
		for _, ver := range versions {
			if ver.ObjectID == result.ID {
				copied = append(copied, ver)
			}
		}
		require.Len(t, copied, 3)
		for _, ver := range copied {
			from := wsdb.Reference{
				Workspace: ws.ID, Object: source[0].ID, Version: ver.Version,
			}
			require.Equal(t, from.String(), ver.CopiedFrom)
			require.Zero(t, ver.RevertedFrom)
			require.Equal(t, wsdb.User("buser"), ver.SavedBy)
		}
	})
}

func TestCopyObjectSingleVersion(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		source := wsdbtest.CreateObjectVersions(ctx, t, db, "auser", wsi, "source", 3)

		// a pinned version copies only that version, even to a new object
		result := wsdbtest.CopyObject{
			Opts: wsdb.CopyObject{
				User:          "auser",
				FromWorkspace: wsi,
				From:          wsdb.ObjectIdentifier{Name: "source", Version: 2},
				ToWorkspace:   wsi,
				To:            wsdb.ObjectIdentifier{Name: "dest"},
			},
		}.Check(ctx, t, db)
		require.False(t, result.AllVersionsCopied)
		require.Equal(t, 1, result.Version)
		require.Equal(t, source[1].Checksum, result.Checksum)
	})
}

func TestCopyObjectToExisting(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		source := wsdbtest.CreateObjectVersions(ctx, t, db, "auser", wsi, "source", 2)
		dest := wsdbtest.CreateObject(ctx, t, db, "auser", wsi, "dest")

		// only the latest source version lands on an existing destination
		result := wsdbtest.CopyObject{
			Opts: wsdb.CopyObject{
				User:          "auser",
				FromWorkspace: wsi,
				From:          wsdb.ObjectIdentifier{Name: "source"},
				ToWorkspace:   wsi,
				To:            wsdb.ObjectIdentifier{ID: dest.ID},
			},
		}.Check(ctx, t, db)
		require.False(t, result.AllVersionsCopied)
		require.Equal(t, dest.ID, result.ID)
		require.Equal(t, 2, result.Version)
		require.Equal(t, source[1].Checksum, result.Checksum)
	})
}

func TestCopyObjectAcrossWorkspaces(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		from := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		to := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		fromID := wsdb.WorkspaceIdentifier{ID: from.ID}
		source := wsdbtest.CreateObject(ctx, t, db, "auser", fromID, "source")

		result := wsdbtest.CopyObject{
			Opts: wsdb.CopyObject{
				User:          "auser",
				FromWorkspace: fromID,
				From:          wsdb.ObjectIdentifier{ID: source.ID},
				ToWorkspace:   wsdb.WorkspaceIdentifier{ID: to.ID},
				To:            wsdb.ObjectIdentifier{Name: "copy"},
			},
		}.Check(ctx, t, db)
		require.Equal(t, to.ID, result.Workspace)
		require.Equal(t, source.Checksum, result.Checksum)

		info, err := db.GetObjectInformation(ctx,
			wsdb.WorkspaceIdentifier{ID: to.ID}, wsdb.ObjectIdentifier{Name: "copy"})
		require.NoError(t, err)
		require.Equal(t, result.ID, info.ID)
	})
}

func TestCopyObjectMissingDestinationID(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		wsdbtest.CreateObject(ctx, t, db, "auser", wsi, "source")

		wsdbtest.CopyObject{
			Opts: wsdb.CopyObject{
				User:          "auser",
				FromWorkspace: wsi,
				From:          wsdb.ObjectIdentifier{Name: "source"},
				ToWorkspace:   wsi,
				To:            wsdb.ObjectIdentifier{ID: 42},
			},
			ErrClass: &wsdb.ErrNoSuchObject,
			ErrText: fmt.Sprintf(
				"Copy destination is specified as object id 42 in workspace %d which does not exist.", ws.ID),
		}.Check(ctx, t, db)
	})
}

func TestCopyObjectReferenceCounts(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		target := wsdbtest.CreateObject(ctx, t, db, "auser", wsi, "target")

		pointer := wsdbtest.RandSaveObject("pointer")
		pointer.Refs = []wsdb.Reference{{Workspace: ws.ID, Object: target.ID, Version: 1}}
		wsdbtest.SaveObjects{
			Opts: wsdb.SaveObjects{User: "auser", Workspace: wsi, Objects: []wsdb.SaveObject{pointer}},
		}.Check(ctx, t, db)

		targetCount := func() int {
			objects, err := db.TestingRawObjects(ctx)
			require.NoError(t, err)
			for _, obj := range objects {
				if obj.WorkspaceID == ws.ID && obj.ID == target.ID {
					return obj.Refcounts[0]
				}
			}
			t.Fatal("target object missing")
			return 0
		}
		require.Equal(t, 1, targetCount())

		// copying the pointer counts its references again
		wsdbtest.CopyObject{
			Opts: wsdb.CopyObject{
				User:          "auser",
				FromWorkspace: wsi,
				From:          wsdb.ObjectIdentifier{Name: "pointer"},
				ToWorkspace:   wsi,
				To:            wsdb.ObjectIdentifier{Name: "pointer2"},
			},
		}.Check(ctx, t, db)
		require.Equal(t, 2, targetCount())

		// and so does reverting it
		wsdbtest.RevertObject{
			Opts: wsdb.RevertObject{
				User:      "auser",
				Workspace: wsi,
				Object:    wsdb.ObjectIdentifier{Name: "pointer", Version: 1},
			},
		}.Check(ctx, t, db)
		require.Equal(t, 3, targetCount())

		// and so does cloning the workspace, once per replayed version
		wsdbtest.CloneWorkspace{
			Opts: wsdb.CloneWorkspace{
				User:          "auser",
				FromWorkspace: wsi,
				NewName:       "refclone",
			},
		}.Check(ctx, t, db)
		require.Equal(t, 6, targetCount())
	})
}

func TestRevertObject(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		source := wsdbtest.CreateObjectVersions(ctx, t, db, "auser", wsi, "obj", 3)

		info := wsdbtest.RevertObject{
			Opts: wsdb.RevertObject{
				User:      "buser",
				Workspace: wsi,
				Object:    wsdb.ObjectIdentifier{Name: "obj", Version: 1},
			},
		}.Check(ctx, t, db)
		require.Equal(t, 4, info.Version)
		require.Equal(t, source[0].Checksum, info.Checksum)
		require.Equal(t, wsdb.User("buser"), info.SavedBy)

		versions, err := db.TestingRawVersions(ctx)
		require.NoError(t, err)
		for _, ver := range versions {
			if ver.ObjectID == source[0].ID && ver.Version == 4 {
				require.Equal(t, 1, ver.RevertedFrom)
				require.Empty(t, ver.CopiedFrom)
			}
		}
	})
}

func TestRevertCopiedObjectKeepsCopyTag(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		source := wsdbtest.CreateObject(ctx, t, db, "auser", wsi, "source")

		copied := wsdbtest.CopyObject{
			Opts: wsdb.CopyObject{
				User:          "auser",
				FromWorkspace: wsi,
				From:          wsdb.ObjectIdentifier{Name: "source"},
				ToWorkspace:   wsi,
				To:            wsdb.ObjectIdentifier{Name: "copy"},
			},
		}.Check(ctx, t, db)

		wsdbtest.RevertObject{
			Opts: wsdb.RevertObject{
				User:      "auser",
				Workspace: wsi,
				Object:    wsdb.ObjectIdentifier{ID: copied.ID, Version: 1},
			},
		}.Check(ctx, t, db)

		sourceRef := wsdb.Reference{Workspace: ws.ID, Object: source.ID, Version: 1}
		versions, err := db.TestingRawVersions(ctx)
		require.NoError(t, err)
		for _, ver := range versions {
			if ver.ObjectID == copied.ID && ver.Version == 2 {
				// the revert preserves where the content was copied from
				require.Equal(t, sourceRef.String(), ver.CopiedFrom)
				require.Equal(t, 1, ver.RevertedFrom)
			}
		}
	})
}
