// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
)

// ResolvedWorkspace is a workspace reference resolved to its immutable
// numeric id. Resolutions are never cached; identifiers are re-resolved
// immediately before use so no operation acts on stale existence assumptions.
type ResolvedWorkspace struct {
	ID      int64
	Name    string
	Locked  bool
	Deleted bool
}

// ResolvedObject is an object reference resolved to immutable numeric ids
// and a concrete version.
type ResolvedObject struct {
	Workspace ResolvedWorkspace
	ID        int64
	Name      string
	Version   int
	Deleted   bool
}

// Reference returns the UPA of the resolved object.
func (ro ResolvedObject) Reference() Reference {
	return Reference{Workspace: ro.Workspace.ID, Object: ro.ID, Version: ro.Version}
}

// ResolveWorkspace resolves a workspace name-or-id. Deleted workspaces and
// cloning placeholders resolve as missing.
func (db *DB) ResolveWorkspace(ctx context.Context, wsi WorkspaceIdentifier) (_ ResolvedWorkspace, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.resolveWorkspace(ctx, wsi, false)
}

// ResolveWorkspaceAllowDeleted resolves a workspace name-or-id, permitting a
// deleted workspace. Cloning placeholders still resolve as missing.
func (db *DB) ResolveWorkspaceAllowDeleted(ctx context.Context, wsi WorkspaceIdentifier) (_ ResolvedWorkspace, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.resolveWorkspace(ctx, wsi, true)
}

func (db *DB) resolveWorkspace(ctx context.Context, wsi WorkspaceIdentifier, allowDeleted bool) (ResolvedWorkspace, error) {
	if err := wsi.Verify(); err != nil {
		return ResolvedWorkspace{}, err
	}
	var (
		ws    RawWorkspace
		found bool
		err   error
	)
	if wsi.ID != 0 {
		ws, found, err = db.adapter.GetWorkspace(ctx, wsi.ID)
	} else {
		ws, found, err = db.adapter.GetWorkspaceByName(ctx, wsi.Name)
	}
	if err != nil {
		return ResolvedWorkspace{}, err
	}
	// A cloning placeholder is indistinguishable from an unused id until
	// the clone completes.
	if !found || ws.Cloning {
		return ResolvedWorkspace{}, ErrNoSuchWorkspace.New("No workspace with %s exists", wsi.errorID())
	}
	if ws.Deleted && !allowDeleted {
		return ResolvedWorkspace{}, ErrNoSuchWorkspace.New("Workspace %s is deleted", wsi.identifierString())
	}
	var name string
	if ws.Name != nil {
		name = *ws.Name
	}
	return ResolvedWorkspace{ID: ws.ID, Name: name, Locked: ws.Locked, Deleted: ws.Deleted}, nil
}

// resolveObjects resolves object name-or-id(-version) references within a
// resolved workspace. An object whose version counter is still zero is
// reported exactly as a missing object: partially constructed objects are
// never partially visible.
func (db *DB) resolveObjects(
	ctx context.Context,
	ws ResolvedWorkspace,
	objs []ObjectIdentifier,
	exceptIfDeleted, includeDeleted, exceptIfMissing bool,
) (map[ObjectIdentifier]ResolvedObject, error) {
	ret := make(map[ObjectIdentifier]ResolvedObject, len(objs))
	for _, oi := range objs {
		if err := oi.Verify(); err != nil {
			return nil, err
		}
		var (
			obj   RawObject
			found bool
			err   error
		)
		if oi.ID != 0 {
			obj, found, err = db.adapter.GetObject(ctx, ws.ID, oi.ID)
		} else {
			obj, found, err = db.adapter.GetObjectByName(ctx, ws.ID, oi.Name)
		}
		if err != nil {
			return nil, err
		}
		if !found || obj.VersionCount == 0 {
			if exceptIfMissing {
				return nil, ErrNoSuchObject.New(
					"No object with %s %s exists in workspace %d (name %s)",
					oi.errorKind(), oi.identifierString(), ws.ID, ws.Name)
			}
			continue
		}
		if obj.Deleted {
			if exceptIfDeleted {
				return nil, ErrNoSuchObject.New(
					"Object %d (name %s) in workspace %d (name %s) has been deleted",
					obj.ID, obj.Name, ws.ID, ws.Name)
			}
			if !includeDeleted {
				continue
			}
		}
		version := oi.Version
		if version == 0 {
			version = obj.VersionCount
		}
		if version > obj.VersionCount {
			if exceptIfMissing {
				return nil, ErrNoSuchObject.New(
					"No object with id %d (name %s) and version %d exists in workspace %d (name %s)",
					obj.ID, obj.Name, version, ws.ID, ws.Name)
			}
			continue
		}
		ret[oi] = ResolvedObject{
			Workspace: ws,
			ID:        obj.ID,
			Name:      obj.Name,
			Version:   version,
			Deleted:   obj.Deleted,
		}
	}
	return ret, nil
}

// resolveObject is the single-object form of resolveObjects with strict
// missing and deleted handling.
func (db *DB) resolveObject(ctx context.Context, ws ResolvedWorkspace, oi ObjectIdentifier) (ResolvedObject, error) {
	res, err := db.resolveObjects(ctx, ws, []ObjectIdentifier{oi}, true, true, true)
	if err != nil {
		return ResolvedObject{}, err
	}
	return res[oi], nil
}

// getVersion fetches the version record of a resolved object. A version that
// is covered by the object's version counter but whose record is missing is
// treated as not found: the counter bump may have happened before the record
// write, or the writer may have died in between.
func (db *DB) getVersion(ctx context.Context, ro ResolvedObject) (RawVersion, error) {
	ver, found, err := db.adapter.GetVersion(ctx, ro.Reference())
	if err != nil {
		return RawVersion{}, err
	}
	if !found {
		return RawVersion{}, ErrNoSuchObject.New(
			"No object with id %d (name %s) and version %d exists in workspace %d (name %s)",
			ro.ID, ro.Name, ro.Version, ro.Workspace.ID, ro.Workspace.Name)
	}
	return ver, nil
}
