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

func TestCreateWorkspace(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		t.Run("invalid requests", func(t *testing.T) {
			wsdbtest.CreateWorkspace{
				Opts:     wsdb.CreateWorkspace{Name: "a"},
				ErrClass: &wsdb.ErrInvalidRequest,
				ErrText:  "owner required",
			}.Check(ctx, t, db)

			wsdbtest.CreateWorkspace{
				Opts:     wsdb.CreateWorkspace{Owner: "auser"},
				ErrClass: &wsdb.ErrInvalidRequest,
				ErrText:  "workspace name required",
			}.Check(ctx, t, db)
		})

		t.Run("create and read back", func(t *testing.T) {
			name := testrand.Name("ws")
			meta := wsdb.Metadata{{Key: "env", Value: "test"}}
			info := wsdbtest.CreateWorkspace{
				Opts: wsdb.CreateWorkspace{
					Owner:       "auser",
					Name:        name,
					GlobalRead:  true,
					Description: "a workspace",
					Meta:        meta,
				},
			}.Check(ctx, t, db)
			require.NotZero(t, info.ID)
			require.Equal(t, name, info.Name)
			require.Equal(t, wsdb.User("auser"), info.Owner)
			require.True(t, info.GlobalRead)
			require.False(t, info.ModDate.IsZero())

			got, err := db.GetWorkspaceInformation(ctx, wsdb.WorkspaceIdentifier{Name: name})
			require.NoError(t, err)
			require.Equal(t, info.ID, got.ID)
			require.Equal(t, name, got.Name)
			require.Equal(t, wsdb.User("auser"), got.Owner)
			require.True(t, got.GlobalRead)
			require.False(t, got.Locked)
			require.Zero(t, got.MaxObjectID)
			require.Equal(t, meta, got.Meta)

			desc, err := db.GetWorkspaceDescription(ctx, wsdb.WorkspaceIdentifier{ID: info.ID})
			require.NoError(t, err)
			require.Equal(t, "a workspace", desc)
		})

		t.Run("permission rows", func(t *testing.T) {
			info := wsdbtest.CreateWorkspace{
				Opts: wsdb.CreateWorkspace{Owner: "auser", Name: testrand.Name("ws"), GlobalRead: true},
			}.Check(ctx, t, db)

			acls, err := db.GetPermissions(ctx, wsdb.WorkspaceIdentifier{ID: info.ID})
			require.NoError(t, err)
			require.ElementsMatch(t, []wsdb.RawACL{
				{WorkspaceID: info.ID, User: "auser", Perm: wsdb.PermOwner},
				{WorkspaceID: info.ID, User: wsdb.AllUsers, Perm: wsdb.PermRead},
			}, acls)
		})
	})
}

func TestCreateWorkspaceDuplicateName(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		name := testrand.Name("ws")
		wsdbtest.CreateWorkspace{
			Opts: wsdb.CreateWorkspace{Owner: "auser", Name: name},
		}.Check(ctx, t, db)

		wsdbtest.CreateWorkspace{
			Opts:     wsdb.CreateWorkspace{Owner: "buser", Name: name},
			ErrClass: &wsdb.ErrPreExistingWorkspace,
			ErrText:  "Workspace name " + name + " is already in use",
		}.Check(ctx, t, db)

		_, err := db.SetWorkspaceDeleted(ctx, wsdb.WorkspaceIdentifier{Name: name}, true)
		require.NoError(t, err)

		// the owner of the deleted workspace gets told it still holds the name
		wsdbtest.CreateWorkspace{
			Opts:     wsdb.CreateWorkspace{Owner: "auser", Name: name},
			ErrClass: &wsdb.ErrPreExistingWorkspace,
			ErrText:  "Workspace name " + name + " is already in use by a deleted workspace",
		}.Check(ctx, t, db)

		wsdbtest.CreateWorkspace{
			Opts:     wsdb.CreateWorkspace{Owner: "buser", Name: name},
			ErrClass: &wsdb.ErrPreExistingWorkspace,
			ErrText:  "Workspace name " + name + " is already in use",
		}.Check(ctx, t, db)
	})
}

func TestRenameWorkspace(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		first := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		second := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")

		_, err := db.RenameWorkspace(ctx, wsdb.WorkspaceIdentifier{ID: first.ID}, first.Name)
		require.True(t, wsdb.ErrInvalidRequest.Has(err))
		require.EqualError(t, err, wsdb.ErrInvalidRequest.New(
			"Workspace is already named %s", first.Name).Error())

		_, err = db.RenameWorkspace(ctx, wsdb.WorkspaceIdentifier{ID: first.ID}, second.Name)
		require.True(t, wsdb.ErrInvalidRequest.Has(err))
		require.EqualError(t, err, wsdb.ErrInvalidRequest.New(
			"There is already a workspace named %s", second.Name).Error())

		newName := testrand.Name("ws")
		moddate, err := db.RenameWorkspace(ctx, wsdb.WorkspaceIdentifier{ID: first.ID}, newName)
		require.NoError(t, err)
		require.False(t, moddate.IsZero())

		got, err := db.GetWorkspaceInformation(ctx, wsdb.WorkspaceIdentifier{Name: newName})
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)

		// the old name is free again
		wsdbtest.CreateWorkspace{
			Opts: wsdb.CreateWorkspace{Owner: "auser", Name: first.Name},
		}.Check(ctx, t, db)
	})
}

func TestRenameObject(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		obj := wsdbtest.CreateObject(ctx, t, db, "auser", wsi, "one")
		wsdbtest.CreateObject(ctx, t, db, "auser", wsi, "two")

		_, _, err := db.RenameObject(ctx, wsi, wsdb.ObjectIdentifier{Name: "one"}, "one")
		require.EqualError(t, err, wsdb.ErrInvalidRequest.New(
			"Object is already named one").Error())

		_, _, err = db.RenameObject(ctx, wsi, wsdb.ObjectIdentifier{Name: "one"}, "two")
		require.EqualError(t, err, wsdb.ErrInvalidRequest.New(
			"There is already an object in the workspace named two").Error())

		renamed, moddate, err := db.RenameObject(ctx, wsi, wsdb.ObjectIdentifier{Name: "one"}, "three")
		require.NoError(t, err)
		require.False(t, moddate.IsZero())
		require.Equal(t, obj.ID, renamed.ID)
		require.Equal(t, "three", renamed.Name)

		info, err := db.GetObjectInformation(ctx, wsi, wsdb.ObjectIdentifier{Name: "three"})
		require.NoError(t, err)
		require.Equal(t, obj.ID, info.ID)
	})
}

func TestLockWorkspace(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")

		_, err := db.LockWorkspace(ctx, wsdb.WorkspaceIdentifier{ID: ws.ID})
		require.NoError(t, err)

		got, err := db.GetWorkspaceInformation(ctx, wsdb.WorkspaceIdentifier{ID: ws.ID})
		require.NoError(t, err)
		require.True(t, got.Locked)
	})
}

func TestSetWorkspaceDescription(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}

		_, err := db.SetWorkspaceDescription(ctx, wsi, "new description")
		require.NoError(t, err)

		desc, err := db.GetWorkspaceDescription(ctx, wsi)
		require.NoError(t, err)
		require.Equal(t, "new description", desc)
	})
}

func TestSetWorkspaceOwner(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		newName := testrand.Name("ws")

		_, err := db.SetWorkspaceOwner(ctx, wsdb.SetWorkspaceOwner{
			Workspace: wsi,
			Owner:     "auser",
			NewOwner:  "buser",
			NewName:   newName,
		})
		require.NoError(t, err)

		got, err := db.GetWorkspaceInformation(ctx, wsi)
		require.NoError(t, err)
		require.Equal(t, wsdb.User("buser"), got.Owner)
		require.Equal(t, newName, got.Name)

		acls, err := db.GetPermissions(ctx, wsi)
		require.NoError(t, err)
		require.ElementsMatch(t, []wsdb.RawACL{
			{WorkspaceID: ws.ID, User: "auser", Perm: wsdb.PermAdmin},
			{WorkspaceID: ws.ID, User: "buser", Perm: wsdb.PermOwner},
		}, acls)
	})
}

func TestSetPermissions(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}

		_, err := db.SetPermissions(ctx, wsdb.SetPermissions{
			Workspace: wsi,
			Users:     []wsdb.User{"buser", "cuser"},
			Perm:      wsdb.PermWrite,
		})
		require.NoError(t, err)

		// the owner's row survives attempts to change it through this path
		_, err = db.SetPermissions(ctx, wsdb.SetPermissions{
			Workspace: wsi,
			Users:     []wsdb.User{"auser"},
			Perm:      wsdb.PermRead,
		})
		require.NoError(t, err)

		acls, err := db.GetPermissions(ctx, wsi)
		require.NoError(t, err)
		require.ElementsMatch(t, []wsdb.RawACL{
			{WorkspaceID: ws.ID, User: "auser", Perm: wsdb.PermOwner},
			{WorkspaceID: ws.ID, User: "buser", Perm: wsdb.PermWrite},
			{WorkspaceID: ws.ID, User: "cuser", Perm: wsdb.PermWrite},
		}, acls)

		// a none row deletes, a global read row reports as global
		_, err = db.SetPermissions(ctx, wsdb.SetPermissions{
			Workspace: wsi,
			Users:     []wsdb.User{"cuser"},
			Perm:      wsdb.PermNone,
		})
		require.NoError(t, err)
		_, err = db.SetGlobalPermission(ctx, wsi, wsdb.PermRead)
		require.NoError(t, err)

		got, err := db.GetWorkspaceInformation(ctx, wsi)
		require.NoError(t, err)
		require.True(t, got.GlobalRead)

		acls, err = db.GetPermissions(ctx, wsi)
		require.NoError(t, err)
		require.ElementsMatch(t, []wsdb.RawACL{
			{WorkspaceID: ws.ID, User: "auser", Perm: wsdb.PermOwner},
			{WorkspaceID: ws.ID, User: "buser", Perm: wsdb.PermWrite},
			{WorkspaceID: ws.ID, User: wsdb.AllUsers, Perm: wsdb.PermRead},
		}, acls)
	})
}

func TestSetWorkspaceDeleted(t *testing.T) {
	wsdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *wsdb.DB) {
		ws := wsdbtest.CreateRandomWorkspace(ctx, t, db, "auser")
		wsi := wsdb.WorkspaceIdentifier{ID: ws.ID}
		wsdbtest.CreateObject(ctx, t, db, "auser", wsi, "obj")

		_, err := db.SetWorkspaceDeleted(ctx, wsi, true)
		require.NoError(t, err)

		_, err = db.GetWorkspaceInformation(ctx, wsi)
		require.True(t, wsdb.ErrNoSuchWorkspace.Has(err))

		// deleting the workspace deletes its objects too
		objects, err := db.TestingRawObjects(ctx)
		require.NoError(t, err)
		for _, obj := range objects {
			if obj.WorkspaceID == ws.ID {
				require.True(t, obj.Deleted)
			}
		}

		_, err = db.SetWorkspaceDeleted(ctx, wsi, false)
		require.NoError(t, err)

		_, err = db.GetObjectInformation(ctx, wsi, wsdb.ObjectIdentifier{Name: "obj"})
		require.NoError(t, err)
	})
}
