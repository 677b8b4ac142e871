// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CloneWorkspace contains the arguments for cloning a workspace.
type CloneWorkspace struct {
	User          User
	FromWorkspace WorkspaceIdentifier
	NewName       string
	GlobalRead    bool
	Description   string
	Meta          Metadata
	// Exclude lists objects to leave out of the clone.
	Exclude []ObjectIdentifier
}

// CloneWorkspace copies a whole workspace in three phases: a placeholder
// workspace record, per-object version copies, and a single completion
// write.
//
// The placeholder stores no name key at all. The unique index on workspace
// names is sparse, so any number of in-flight clones coexist; a null name
// would make the index serialize them. Until the completion write lands, the
// new workspace is indistinguishable from an unused id for every operation,
// so a clone that dies mid-flight strands nothing visible.
func (db *DB) CloneWorkspace(ctx context.Context, opts CloneWorkspace) (_ WorkspaceInformation, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.User == "" {
		return WorkspaceInformation{}, ErrInvalidRequest.New("user required")
	}
	fromWS, err := db.ResolveWorkspace(ctx, opts.FromWorkspace)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	// resolve exclusions before creating anything, in case one is bogus
	excluded, err := db.resolveObjects(ctx, fromWS, opts.Exclude, true, true, true)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	excludeIDs := make([]int64, 0, len(excluded))
	for _, ro := range excluded {
		excludeIDs = append(excludeIDs, ro.ID)
	}

	wsinfo, err := db.createWorkspace(ctx, CreateWorkspace{
		Owner:       opts.User,
		Name:        opts.NewName,
		GlobalRead:  opts.GlobalRead,
		Description: opts.Description,
		Meta:        opts.Meta,
	}, true)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	toWS := ResolvedWorkspace{ID: wsinfo.ID}

	objects, err := db.adapter.ListCloneableObjects(ctx, fromWS.ID, excludeIDs)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	var maxID int64
	for _, obj := range objects {
		if obj.ID > maxID {
			maxID = obj.ID
		}
		versions, err := db.adapter.GetVersions(ctx, fromWS.ID, obj.ID)
		if err != nil {
			return WorkspaceInformation{}, err
		}
		if len(versions) == 0 {
			// counter bumped but no version documents; a dead or
			// in-flight saver
			db.log.Warn("skipping object with no stored versions during clone",
				zap.Int64("workspace_id", fromWS.ID),
				zap.Int64("object_id", obj.ID))
			continue
		}
		for i := range versions {
			versions[i].SavedBy = opts.User
			versions[i].RevertedFrom = 0
			versions[i].CopiedFrom = Reference{
				Workspace: fromWS.ID, Object: obj.ID, Version: versions[i].Version,
			}.String()
		}
		var refs []Reference
		for _, v := range versions {
			vrefs, err := versionReferences(v)
			if err != nil {
				return WorkspaceInformation{}, err
			}
			refs = append(refs, vrefs...)
		}
		if err := db.recordReferences(ctx, refs); err != nil {
			return WorkspaceInformation{}, err
		}
		hidden := obj.Hidden
		objid, _, err := db.saveWorkspaceObject(ctx, toWS, obj.ID, obj.Name)
		if err != nil {
			return WorkspaceInformation{}, err
		}
		if _, _, err := db.saveVersions(ctx, toWS.ID, objid, versions, &hidden); err != nil {
			return WorkspaceInformation{}, err
		}
	}
	if maxID > 0 {
		if _, err := db.adapter.IncrementObjectCounter(ctx, toWS.ID, maxID); err != nil {
			return WorkspaceInformation{}, err
		}
	}

	moddate, err := db.finalizeClone(ctx, opts.User, opts.GlobalRead, toWS.ID, opts.NewName)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	wsinfo.Name = opts.NewName
	wsinfo.ModDate = moddate
	wsinfo.MaxObjectID = maxID
	return wsinfo, nil
}

// finalizeClone is clone phase 3: one document write that sets the name and
// modification date and drops the cloning marker, making the workspace
// exist. Panics if the workspace id does not exist, since only this package
// can hold an unfinalized clone id.
func (db *DB) finalizeClone(ctx context.Context, user User, globalRead bool, id int64, name string) (moddate time.Time, err error) {
	moddate = db.now()
	applied, err := db.adapter.FinalizeClone(ctx, id, name, moddate)
	if err != nil {
		if errDuplicateKey.Has(err) {
			return time.Time{}, ErrPreExistingWorkspace.New(
				"Workspace name %s is already in use", name)
		}
		return time.Time{}, err
	}
	if !applied {
		panic(fmt.Sprintf(
			"A programming error occurred: there is no workspace with ID %d", id))
	}
	if err := db.setCreatedWorkspacePermissions(ctx, id, user, globalRead); err != nil {
		return time.Time{}, err
	}
	return moddate, nil
}
