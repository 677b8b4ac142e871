// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"time"
)

// ObjectTarget names one object within a workspace, without a version.
type ObjectTarget struct {
	Workspace WorkspaceIdentifier
	Object    ObjectIdentifier
}

// ObjectIdentity is a fully resolved (workspace, object) pair without a
// version.
type ObjectIdentity struct {
	Workspace int64
	Object    int64
}

// SetObjectsHidden flips the hidden flag on a batch of objects, possibly
// spanning workspaces. Hidden state cannot be changed on deleted objects.
// Returns the modification timestamp written per object; all objects of one
// workspace share a single timestamp per call. The workspace modification
// date is left alone, since hiding does not change workspace contents.
func (db *DB) SetObjectsHidden(ctx context.Context, targets []ObjectTarget, hidden bool) (_ map[ObjectIdentity]time.Time, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.setObjectsFlag(ctx, targets, true, false, func(ctx context.Context, wsid int64, ids []int64, t time.Time) error {
		return db.adapter.SetObjectsHidden(ctx, wsid, ids, hidden, t)
	})
}

// SetObjectsDeleted flips the deletion flag on a batch of objects, possibly
// spanning workspaces. Deleting an already deleted object fails; undeleting
// requires the object to be deleted-visible. Per-object timestamps behave as
// in SetObjectsHidden, and each touched workspace also gets a fresh
// modification date. Version records and reference counts are untouched.
func (db *DB) SetObjectsDeleted(ctx context.Context, targets []ObjectTarget, deleted bool) (_ map[ObjectIdentity]time.Time, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.setObjectsFlag(ctx, targets, deleted, true, func(ctx context.Context, wsid int64, ids []int64, t time.Time) error {
		return db.adapter.SetObjectsDeleted(ctx, wsid, ids, deleted, t)
	})
}

// setObjectsFlag resolves the batch, groups it per workspace and applies one
// flag write and one shared timestamp per workspace.
func (db *DB) setObjectsFlag(
	ctx context.Context,
	targets []ObjectTarget,
	exceptIfDeleted, stampWorkspace bool,
	apply func(ctx context.Context, wsid int64, ids []int64, t time.Time) error,
) (map[ObjectIdentity]time.Time, error) {
	ret := make(map[ObjectIdentity]time.Time, len(targets))

	// group the batch per workspace identifier, preserving first-seen order
	var wsOrder []WorkspaceIdentifier
	byWS := make(map[WorkspaceIdentifier][]ObjectIdentifier)
	for _, t := range targets {
		if _, ok := byWS[t.Workspace]; !ok {
			wsOrder = append(wsOrder, t.Workspace)
		}
		byWS[t.Workspace] = append(byWS[t.Workspace], t.Object)
	}

	for _, wsi := range wsOrder {
		ws, err := db.ResolveWorkspace(ctx, wsi)
		if err != nil {
			return nil, err
		}
		resolved, err := db.resolveObjects(ctx, ws, byWS[wsi], exceptIfDeleted, true, true)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(resolved))
		seen := make(map[int64]bool, len(resolved))
		for _, oi := range byWS[wsi] {
			ro := resolved[oi]
			if !seen[ro.ID] {
				seen[ro.ID] = true
				ids = append(ids, ro.ID)
			}
		}
		now := db.now()
		if err := apply(ctx, ws.ID, ids, now); err != nil {
			return nil, err
		}
		if stampWorkspace {
			if err := db.adapter.SetWorkspaceModDate(ctx, ws.ID, db.now()); err != nil {
				return nil, err
			}
		}
		for _, oi := range byWS[wsi] {
			ret[ObjectIdentity{Workspace: ws.ID, Object: resolved[oi].ID}] = now
		}
	}
	return ret, nil
}
