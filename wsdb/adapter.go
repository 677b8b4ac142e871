// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

// errDuplicateKey is returned by adapter insert and rename methods when a
// unique index rejects the write.
var errDuplicateKey = errs.Class("duplicate key")

// Adapter abstracts the document store. Every method is a single-document
// atomic operation; the engine never requires multi-document transactions.
// Cross-writer coordination happens only through the atomic counters
// (NextWorkspaceID, IncrementObjectCounter, PushVersions) and the conditional
// compare-and-set writes, so an implementation over a different store must
// preserve those semantics exactly.
type Adapter interface {
	// Name reports the adapter implementation, for logging.
	Name() string

	// NextWorkspaceID atomically increments the global workspace counter
	// and returns the new value.
	NextWorkspaceID(ctx context.Context) (int64, error)
	// InsertWorkspace inserts a workspace record. Returns errDuplicateKey
	// if the name is taken. A record with a nil Name (cloning placeholder)
	// never collides; the name index is sparse.
	InsertWorkspace(ctx context.Context, ws RawWorkspace) error
	// GetWorkspace fetches a workspace by id. The second return is false
	// if no record exists.
	GetWorkspace(ctx context.Context, id int64) (RawWorkspace, bool, error)
	// GetWorkspaceByName fetches a workspace by name. Cloning placeholders
	// have no name and are therefore never returned.
	GetWorkspaceByName(ctx context.Context, name string) (RawWorkspace, bool, error)
	// SetWorkspaceModDate stamps the workspace modification date.
	SetWorkspaceModDate(ctx context.Context, id int64, t time.Time) error
	// SetWorkspaceDeleted flips the workspace deletion flag and stamps the
	// modification date.
	SetWorkspaceDeleted(ctx context.Context, id int64, deleted bool, t time.Time) error
	// SetWorkspaceLocked sets the lock flag. The modification date is not
	// changed.
	SetWorkspaceLocked(ctx context.Context, id int64, locked bool) error
	// SetWorkspaceName renames the workspace. Returns errDuplicateKey if
	// the name is taken.
	SetWorkspaceName(ctx context.Context, id int64, name string, t time.Time) error
	// SetWorkspaceOwner changes the workspace owner.
	SetWorkspaceOwner(ctx context.Context, id int64, owner User, t time.Time) error
	// SetWorkspaceDescription replaces the workspace description.
	SetWorkspaceDescription(ctx context.Context, id int64, description string, t time.Time) error
	// IncrementObjectCounter atomically adds n to the workspace object
	// counter and returns the counter value after the increment. The
	// counter is the sole authority for object id uniqueness.
	IncrementObjectCounter(ctx context.Context, id int64, n int64) (int64, error)
	// FinalizeClone sets the name and modification date on a cloning
	// placeholder and clears the cloning flag, all in one document write.
	// Returns false if no workspace with the id exists and errDuplicateKey
	// if the name is taken.
	FinalizeClone(ctx context.Context, id int64, name string, t time.Time) (bool, error)
	// CompareAndSetWorkspaceMeta replaces the workspace metadata only if
	// the stored metadata still equals expected. Returns whether the write
	// was applied. The modification date is stamped on success.
	CompareAndSetWorkspaceMeta(ctx context.Context, id int64, expected, updated Metadata, t time.Time) (bool, error)

	// UpsertPermission writes the (workspace, user) permission row,
	// deleting it when perm is PermNone.
	UpsertPermission(ctx context.Context, wsid int64, user User, perm Permission) error
	// GetPermissions returns all permission rows for a workspace.
	GetPermissions(ctx context.Context, wsid int64) ([]RawACL, error)

	// InsertObject inserts an object record. Returns errDuplicateKey if an
	// object with the name already exists in the workspace.
	InsertObject(ctx context.Context, obj RawObject) error
	// GetObject fetches an object by workspace and object id.
	GetObject(ctx context.Context, wsid, id int64) (RawObject, bool, error)
	// GetObjectByName fetches an object by workspace id and object name.
	GetObjectByName(ctx context.Context, wsid int64, name string) (RawObject, bool, error)
	// ListCloneableObjects returns the non-deleted objects of a workspace
	// that have at least one visible version, ascending by id, skipping
	// the excluded ids.
	ListCloneableObjects(ctx context.Context, wsid int64, exclude []int64) ([]RawObject, error)
	// PushVersions atomically adds count to the object version counter,
	// appends count zeroed refcount slots, clears the deletion flag and
	// stamps the modification date; hidden is additionally set when
	// non-nil. It returns the first newly covered version number. This
	// increment is what makes the versions exist for readers.
	PushVersions(ctx context.Context, wsid, objid int64, count int, hidden *bool, t time.Time) (int, error)
	// SetObjectsHidden flips the hidden flag on the given objects of one
	// workspace and stamps their modification dates.
	SetObjectsHidden(ctx context.Context, wsid int64, ids []int64, hidden bool, t time.Time) error
	// SetObjectsDeleted flips the deletion flag on the given objects of
	// one workspace and stamps their modification dates. An empty ids list
	// targets every object in the workspace.
	SetObjectsDeleted(ctx context.Context, wsid int64, ids []int64, deleted bool, t time.Time) error
	// SetObjectName renames an object. Returns errDuplicateKey if the name
	// is taken within the workspace.
	SetObjectName(ctx context.Context, wsid, id int64, name string, t time.Time) error
	// IncrementRefcounts adds delta to the refcount slot of the given
	// version on every listed object, grouped as workspace id -> object
	// ids.
	IncrementRefcounts(ctx context.Context, version, delta int, targets map[int64][]int64) error
	// CompareAndSetAdminMeta replaces the admin metadata of a version only
	// if the stored metadata still equals expected. Returns whether the
	// write was applied. No modification date exists on versions.
	CompareAndSetAdminMeta(ctx context.Context, ref Reference, expected, updated Metadata) (bool, error)

	// InsertVersions writes version records. Each record carries both the
	// decomposed and the legacy combined type representation.
	InsertVersions(ctx context.Context, vers []RawVersion) error
	// GetVersion fetches a single version record.
	GetVersion(ctx context.Context, ref Reference) (RawVersion, bool, error)
	// GetVersions returns all version records of an object ascending by
	// version number.
	GetVersions(ctx context.Context, wsid, objid int64) ([]RawVersion, error)

	// InsertProvenance writes a provenance record.
	InsertProvenance(ctx context.Context, prov RawProvenance) error
	// GetProvenance fetches a provenance record by id.
	GetProvenance(ctx context.Context, id string) (RawProvenance, bool, error)

	// UpsertConfigKey writes a dynamic configuration row. When overwrite
	// is false an existing value is kept.
	UpsertConfigKey(ctx context.Context, key string, value interface{}, overwrite bool) error
	// DeleteConfigKey removes a dynamic configuration row.
	DeleteConfigKey(ctx context.Context, key string) error
	// GetConfigItems returns all dynamic configuration rows.
	GetConfigItems(ctx context.Context) ([]RawConfigItem, error)

	// TestingDeleteAll removes all stored state. For tests.
	TestingDeleteAll(ctx context.Context) error
	// TestingRawWorkspaces returns every workspace record. For tests.
	TestingRawWorkspaces(ctx context.Context) ([]RawWorkspace, error)
	// TestingRawObjects returns every object record. For tests.
	TestingRawObjects(ctx context.Context) ([]RawObject, error)
	// TestingRawVersions returns every version record. For tests.
	TestingRawVersions(ctx context.Context) ([]RawVersion, error)
}
