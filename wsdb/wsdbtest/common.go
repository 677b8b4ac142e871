// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdbtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"

	"kbase.us/workspace/internal/testcontext"
	"kbase.us/workspace/wsdb"
)

func checkError(t require.TestingT, err error, errClass *errs.Class, errText string) {
	if errClass != nil {
		require.True(t, errClass.Has(err), "expected an error %v got %v", *errClass, err)
	}
	if errText != "" {
		require.EqualError(t, err, errClass.New("%s", errText).Error())
	}
	if errClass == nil && errText == "" {
		require.NoError(t, err)
	}
}

// DeleteAll deletes all data from the store.
type DeleteAll struct{}

// Check runs the step.
func (step DeleteAll) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) {
	err := db.TestingDeleteAll(ctx)
	require.NoError(t, err)
}

// CreateWorkspace is a workspace creation step.
type CreateWorkspace struct {
	Opts wsdb.CreateWorkspace

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step CreateWorkspace) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) wsdb.WorkspaceInformation {
	info, err := db.CreateWorkspace(ctx, step.Opts)
	checkError(t, err, step.ErrClass, step.ErrText)
	return info
}

// SaveObjects is an object save step.
type SaveObjects struct {
	Opts wsdb.SaveObjects

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step SaveObjects) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) []wsdb.ObjectInformation {
	infos, err := db.SaveObjects(ctx, step.Opts)
	checkError(t, err, step.ErrClass, step.ErrText)
	return infos
}

// CopyObject is an object copy step.
type CopyObject struct {
	Opts wsdb.CopyObject

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step CopyObject) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) wsdb.CopyResult {
	result, err := db.CopyObject(ctx, step.Opts)
	checkError(t, err, step.ErrClass, step.ErrText)
	return result
}

// RevertObject is an object revert step.
type RevertObject struct {
	Opts wsdb.RevertObject

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step RevertObject) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) wsdb.ObjectInformation {
	info, err := db.RevertObject(ctx, step.Opts)
	checkError(t, err, step.ErrClass, step.ErrText)
	return info
}

// CloneWorkspace is a workspace clone step.
type CloneWorkspace struct {
	Opts wsdb.CloneWorkspace

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step CloneWorkspace) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) wsdb.WorkspaceInformation {
	info, err := db.CloneWorkspace(ctx, step.Opts)
	checkError(t, err, step.ErrClass, step.ErrText)
	return info
}

// SetObjectsHidden is an object hide step.
type SetObjectsHidden struct {
	Targets []wsdb.ObjectTarget
	Hidden  bool

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step SetObjectsHidden) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) map[wsdb.ObjectIdentity]time.Time {
	times, err := db.SetObjectsHidden(ctx, step.Targets, step.Hidden)
	checkError(t, err, step.ErrClass, step.ErrText)
	return times
}

// SetObjectsDeleted is an object delete step.
type SetObjectsDeleted struct {
	Targets []wsdb.ObjectTarget
	Deleted bool

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step SetObjectsDeleted) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) map[wsdb.ObjectIdentity]time.Time {
	times, err := db.SetObjectsDeleted(ctx, step.Targets, step.Deleted)
	checkError(t, err, step.ErrClass, step.ErrText)
	return times
}

// SetWorkspaceMeta is a workspace metadata update step.
type SetWorkspaceMeta struct {
	Opts wsdb.SetWorkspaceMeta

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step SetWorkspaceMeta) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) *time.Time {
	moddate, err := db.SetWorkspaceMeta(ctx, step.Opts)
	checkError(t, err, step.ErrClass, step.ErrText)
	return moddate
}

// SetAdminObjectMeta is an administrative object metadata update step.
type SetAdminObjectMeta struct {
	Opts wsdb.SetAdminObjectMeta

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step SetAdminObjectMeta) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) wsdb.ResolvedObject {
	resolved, err := db.SetAdminObjectMeta(ctx, step.Opts)
	checkError(t, err, step.ErrClass, step.ErrText)
	return resolved
}

// GetObjectInformation is an object lookup step.
type GetObjectInformation struct {
	Workspace wsdb.WorkspaceIdentifier
	Object    wsdb.ObjectIdentifier

	ErrClass *errs.Class
	ErrText  string
}

// Check runs the step.
func (step GetObjectInformation) Check(ctx *testcontext.Context, t testing.TB, db *wsdb.DB) wsdb.ObjectInformation {
	info, err := db.GetObjectInformation(ctx, step.Workspace, step.Object)
	checkError(t, err, step.ErrClass, step.ErrText)
	return info
}
