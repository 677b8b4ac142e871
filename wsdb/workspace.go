// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"time"
)

// WorkspaceInformation describes a workspace.
type WorkspaceInformation struct {
	ID          int64
	Name        string
	Owner       User
	ModDate     time.Time
	MaxObjectID int64
	GlobalRead  bool
	Locked      bool
	Meta        Metadata
}

// CreateWorkspace contains the arguments for creating a workspace.
type CreateWorkspace struct {
	Owner       User
	Name        string
	GlobalRead  bool
	Description string
	Meta        Metadata
}

// Verify checks the request shape.
func (opts CreateWorkspace) Verify() error {
	if opts.Owner == "" {
		return ErrInvalidRequest.New("owner required")
	}
	if opts.Name == "" {
		return ErrInvalidRequest.New("workspace name required")
	}
	return opts.Meta.CheckSize()
}

// CreateWorkspace creates a workspace owned by the given user, with its
// owner permission row and, when global read is requested, the world-read
// row.
func (db *DB) CreateWorkspace(ctx context.Context, opts CreateWorkspace) (_ WorkspaceInformation, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.createWorkspace(ctx, opts, false)
}

// createWorkspace also backs clone phase 1. A cloning placeholder stores no
// name and no modification date at all; the chosen final name is only
// pre-checked here as a courtesy, the authoritative check is the unique
// index at completion time.
func (db *DB) createWorkspace(ctx context.Context, opts CreateWorkspace, cloning bool) (WorkspaceInformation, error) {
	if err := opts.Verify(); err != nil {
		return WorkspaceInformation{}, err
	}
	// avoid burning a counter value when the name is known to be taken
	existing, found, err := db.adapter.GetWorkspaceByName(ctx, opts.Name)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	if found {
		msg := "Workspace name " + opts.Name + " is already in use"
		if existing.Deleted && existing.Owner == opts.Owner {
			msg += " by a deleted workspace"
		}
		return WorkspaceInformation{}, ErrPreExistingWorkspace.New("%s", msg)
	}

	id, err := db.adapter.NextWorkspaceID(ctx)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	moddate := db.now()
	ws := RawWorkspace{
		ID:          id,
		Owner:       opts.Owner,
		Description: opts.Description,
		CreatedDate: moddate,
		NumObjects:  0,
		Meta:        opts.Meta,
	}
	if cloning {
		ws.Cloning = true
	} else {
		name := opts.Name
		ws.Name = &name
		ws.ModDate = &moddate
	}
	if err := db.adapter.InsertWorkspace(ctx, ws); err != nil {
		if errDuplicateKey.Has(err) {
			return WorkspaceInformation{}, ErrPreExistingWorkspace.New(
				"Workspace name %s is already in use", opts.Name)
		}
		return WorkspaceInformation{}, err
	}
	if !cloning {
		if err := db.setCreatedWorkspacePermissions(ctx, id, opts.Owner, opts.GlobalRead); err != nil {
			return WorkspaceInformation{}, err
		}
	}
	return WorkspaceInformation{
		ID:         id,
		Name:       opts.Name,
		Owner:      opts.Owner,
		ModDate:    moddate,
		GlobalRead: opts.GlobalRead,
		Meta:       opts.Meta,
	}, nil
}

func (db *DB) setCreatedWorkspacePermissions(ctx context.Context, wsid int64, owner User, globalRead bool) error {
	if err := db.adapter.UpsertPermission(ctx, wsid, owner, PermOwner); err != nil {
		return err
	}
	if globalRead {
		if err := db.adapter.UpsertPermission(ctx, wsid, AllUsers, PermRead); err != nil {
			return err
		}
	}
	return nil
}

// SetPermissions contains the arguments for writing permission rows. This
// package only persists the rows; it never decides access.
type SetPermissions struct {
	Workspace WorkspaceIdentifier
	Users     []User
	Perm      Permission
}

// SetPermissions writes the (workspace, user) permission rows, deleting rows
// set to PermNone. The owner's row is never changed through this path. The
// workspace modification date is not stamped.
func (db *DB) SetPermissions(ctx context.Context, opts SetPermissions) (_ time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, opts.Workspace)
	if err != nil {
		return time.Time{}, err
	}
	return db.setPermissions(ctx, ws.ID, opts.Users, opts.Perm, true)
}

// SetGlobalPermission writes the world-read row. Only PermNone and PermRead
// are meaningful globally.
func (db *DB) SetGlobalPermission(ctx context.Context, wsi WorkspaceIdentifier, perm Permission) (_ time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return time.Time{}, err
	}
	return db.setPermissions(ctx, ws.ID, []User{AllUsers}, perm, false)
}

func (db *DB) setPermissions(ctx context.Context, wsid int64, users []User, perm Permission, checkOwner bool) (time.Time, error) {
	var owner User
	if checkOwner {
		ws, found, err := db.adapter.GetWorkspace(ctx, wsid)
		if err != nil {
			return time.Time{}, err
		}
		if !found {
			return time.Time{}, ErrCorruptDB.New(
				"Workspace %d was unexpectedly deleted from the database", wsid)
		}
		owner = ws.Owner
	}
	for _, user := range users {
		if checkOwner && user == owner {
			continue
		}
		if err := db.adapter.UpsertPermission(ctx, wsid, user, perm); err != nil {
			return time.Time{}, err
		}
	}
	return db.now(), nil
}

// GetPermissions returns all permission rows of a workspace, including the
// world-read row if present.
func (db *DB) GetPermissions(ctx context.Context, wsi WorkspaceIdentifier) (_ []RawACL, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspaceAllowDeleted(ctx, wsi)
	if err != nil {
		return nil, err
	}
	return db.adapter.GetPermissions(ctx, ws.ID)
}

// LockWorkspace marks a workspace as permanently locked. The modification
// date is not changed.
func (db *DB) LockWorkspace(ctx context.Context, wsi WorkspaceIdentifier) (_ time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return time.Time{}, err
	}
	if err := db.adapter.SetWorkspaceLocked(ctx, ws.ID, true); err != nil {
		return time.Time{}, err
	}
	return db.now(), nil
}

// RenameWorkspace renames a workspace and stamps its modification date.
func (db *DB) RenameWorkspace(ctx context.Context, wsi WorkspaceIdentifier, newName string) (_ time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	if newName == "" {
		return time.Time{}, ErrInvalidRequest.New("workspace name required")
	}
	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return time.Time{}, err
	}
	if newName == ws.Name {
		return time.Time{}, ErrInvalidRequest.New("Workspace is already named %s", newName)
	}
	now := db.now()
	if err := db.adapter.SetWorkspaceName(ctx, ws.ID, newName, now); err != nil {
		if errDuplicateKey.Has(err) {
			return time.Time{}, ErrInvalidRequest.New(
				"There is already a workspace named %s", newName)
		}
		return time.Time{}, err
	}
	return now, nil
}

// RenameObject renames an object within its workspace, stamping the object
// and workspace modification dates.
func (db *DB) RenameObject(ctx context.Context, wsi WorkspaceIdentifier, oi ObjectIdentifier, newName string) (_ ResolvedObject, _ time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	if newName == "" {
		return ResolvedObject{}, time.Time{}, ErrInvalidRequest.New("object name required")
	}
	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return ResolvedObject{}, time.Time{}, err
	}
	ro, err := db.resolveObject(ctx, ws, oi)
	if err != nil {
		return ResolvedObject{}, time.Time{}, err
	}
	if newName == ro.Name {
		return ResolvedObject{}, time.Time{}, ErrInvalidRequest.New(
			"Object is already named %s", newName)
	}
	now := db.now()
	if err := db.adapter.SetObjectName(ctx, ws.ID, ro.ID, newName, now); err != nil {
		if errDuplicateKey.Has(err) {
			return ResolvedObject{}, time.Time{}, ErrInvalidRequest.New(
				"There is already an object in the workspace named %s", newName)
		}
		return ResolvedObject{}, time.Time{}, err
	}
	if err := db.adapter.SetWorkspaceModDate(ctx, ws.ID, db.now()); err != nil {
		return ResolvedObject{}, time.Time{}, err
	}
	ro.Name = newName
	return ro, now, nil
}

// GetWorkspaceDescription returns the workspace description.
func (db *DB) GetWorkspaceDescription(ctx context.Context, wsi WorkspaceIdentifier) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return "", err
	}
	raw, found, err := db.adapter.GetWorkspace(ctx, ws.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrCorruptDB.New(
			"Workspace %d was unexpectedly deleted from the database", ws.ID)
	}
	return raw.Description, nil
}

// SetWorkspaceDescription replaces the description and stamps the
// modification date.
func (db *DB) SetWorkspaceDescription(ctx context.Context, wsi WorkspaceIdentifier, description string) (_ time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return time.Time{}, err
	}
	now := db.now()
	if err := db.adapter.SetWorkspaceDescription(ctx, ws.ID, description, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// SetWorkspaceOwner contains the arguments for transferring workspace
// ownership.
type SetWorkspaceOwner struct {
	Workspace WorkspaceIdentifier
	Owner     User
	NewOwner  User
	// NewName optionally renames the workspace in the same call.
	NewName string
}

// SetWorkspaceOwner transfers ownership. The old owner keeps an admin row,
// the new owner gets the owner row.
func (db *DB) SetWorkspaceOwner(ctx context.Context, opts SetWorkspaceOwner) (_ time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.NewOwner == "" {
		return time.Time{}, ErrInvalidRequest.New("new owner required")
	}
	ws, err := db.ResolveWorkspace(ctx, opts.Workspace)
	if err != nil {
		return time.Time{}, err
	}
	now := db.now()
	if err := db.adapter.SetWorkspaceOwner(ctx, ws.ID, opts.NewOwner, now); err != nil {
		return time.Time{}, err
	}
	if opts.NewName != "" && opts.NewName != ws.Name {
		if err := db.adapter.SetWorkspaceName(ctx, ws.ID, opts.NewName, now); err != nil {
			if errDuplicateKey.Has(err) {
				return time.Time{}, ErrInvalidRequest.New(
					"There is already a workspace named %s", opts.NewName)
			}
			return time.Time{}, err
		}
	}
	if opts.Owner != "" {
		if _, err := db.setPermissions(ctx, ws.ID, []User{opts.Owner}, PermAdmin, false); err != nil {
			return time.Time{}, err
		}
	}
	if _, err := db.setPermissions(ctx, ws.ID, []User{opts.NewOwner}, PermOwner, false); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// SetWorkspaceDeleted deletes or undeletes a workspace. Objects are flipped
// first on delete and last on undelete, so a deleted workspace never holds
// an undeleted object.
func (db *DB) SetWorkspaceDeleted(ctx context.Context, wsi WorkspaceIdentifier, delete bool) (_ time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspaceAllowDeleted(ctx, wsi)
	if err != nil {
		return time.Time{}, err
	}
	if delete {
		if err := db.adapter.SetObjectsDeleted(ctx, ws.ID, nil, true, db.now()); err != nil {
			return time.Time{}, err
		}
	}
	now := db.now()
	if err := db.adapter.SetWorkspaceDeleted(ctx, ws.ID, delete, now); err != nil {
		return time.Time{}, err
	}
	if !delete {
		if err := db.adapter.SetObjectsDeleted(ctx, ws.ID, nil, false, db.now()); err != nil {
			return time.Time{}, err
		}
	}
	return now, nil
}

// GetWorkspaceInformation returns the workspace description record.
func (db *DB) GetWorkspaceInformation(ctx context.Context, wsi WorkspaceIdentifier) (_ WorkspaceInformation, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	raw, found, err := db.adapter.GetWorkspace(ctx, ws.ID)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	if !found {
		return WorkspaceInformation{}, ErrCorruptDB.New(
			"Workspace %d was unexpectedly deleted from the database", ws.ID)
	}
	acls, err := db.adapter.GetPermissions(ctx, ws.ID)
	if err != nil {
		return WorkspaceInformation{}, err
	}
	globalRead := false
	for _, acl := range acls {
		if acl.User == AllUsers && acl.Perm >= PermRead {
			globalRead = true
		}
	}
	var (
		name    string
		moddate time.Time
	)
	if raw.Name != nil {
		name = *raw.Name
	}
	if raw.ModDate != nil {
		moddate = *raw.ModDate
	}
	return WorkspaceInformation{
		ID:          raw.ID,
		Name:        name,
		Owner:       raw.Owner,
		ModDate:     moddate,
		MaxObjectID: raw.NumObjects,
		GlobalRead:  globalRead,
		Locked:      raw.Locked,
		Meta:        raw.Meta,
	}, nil
}
