// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"fmt"
	"time"

	"github.com/zeebo/errs"
)

// SetWorkspaceMeta contains the arguments for changing the user metadata of
// a workspace.
type SetWorkspaceMeta struct {
	Workspace WorkspaceIdentifier
	Update    MetadataUpdate
}

// SetWorkspaceMeta merges a metadata update into a workspace's metadata.
// The returned timestamp is the new workspace modification date, or nil when
// the update was a no-op, in which case the modification date is untouched.
func (db *DB) SetWorkspaceMeta(ctx context.Context, opts SetWorkspaceMeta) (_ *time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, opts.Workspace)
	if err != nil {
		return nil, err
	}
	return db.applyMetadataUpdate(ctx, opts.Update,
		func(ctx context.Context) (Metadata, error) {
			raw, found, err := db.adapter.GetWorkspace(ctx, ws.ID)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, ErrCorruptDB.New(
					"Workspace %d was unexpectedly deleted from the database", ws.ID)
			}
			return raw.Meta, nil
		},
		func(ctx context.Context, expected, updated Metadata, t time.Time) (bool, error) {
			return db.adapter.CompareAndSetWorkspaceMeta(ctx, ws.ID, expected, updated, t)
		})
}

// SetAdminObjectMeta contains the arguments for changing the administrative
// metadata of a single object version. A zero Version targets the latest
// version.
type SetAdminObjectMeta struct {
	Workspace WorkspaceIdentifier
	Object    ObjectIdentifier
	Update    MetadataUpdate
}

// SetAdminObjectMeta merges a metadata update into the administrative
// metadata of an object version. Admin metadata is mutable regardless of the
// workspace lock state and its writes never alter any modification date.
// Returns the object resolved to concrete ids and version.
func (db *DB) SetAdminObjectMeta(ctx context.Context, opts SetAdminObjectMeta) (_ ResolvedObject, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspaceAllowDeleted(ctx, opts.Workspace)
	if err != nil {
		return ResolvedObject{}, err
	}
	ro, err := db.resolveObject(ctx, ws, opts.Object)
	if err != nil {
		return ResolvedObject{}, err
	}
	_, err = db.applyMetadataUpdate(ctx, opts.Update,
		func(ctx context.Context) (Metadata, error) {
			ver, err := db.getVersion(ctx, ro)
			if err != nil {
				return nil, err
			}
			return ver.AdminMeta, nil
		},
		func(ctx context.Context, expected, updated Metadata, _ time.Time) (bool, error) {
			return db.adapter.CompareAndSetAdminMeta(ctx, ro.Reference(), expected, updated)
		})
	if err != nil {
		if ErrInvalidRequest.Has(err) {
			version := "latest version"
			if opts.Object.Version != 0 {
				version = fmt.Sprintf("version %d", opts.Object.Version)
			}
			return ResolvedObject{}, ErrInvalidRequest.New(
				"Error setting metadata on workspace %s id %d, object %s, %s: %s",
				ws.Name, ws.ID, opts.Object.identifierString(), version,
				errs.Unwrap(err).Error())
		}
		return ResolvedObject{}, err
	}
	return ro, nil
}
