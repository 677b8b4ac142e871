// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
)

// CopyObject contains the arguments for copying an object version, or all
// its versions, into a destination object.
type CopyObject struct {
	User          User
	FromWorkspace WorkspaceIdentifier
	// From names the source object. A zero version selects the latest
	// version, or every version when the destination object is new.
	From        ObjectIdentifier
	ToWorkspace WorkspaceIdentifier
	// To names the destination. A numeric id must refer to an existing
	// object; a name may create a new object.
	To ObjectIdentifier
}

// CopyResult is the outcome of a copy.
type CopyResult struct {
	ObjectInformation
	// AllVersionsCopied reports that the whole version history of the
	// source was copied into a fresh destination object.
	AllVersionsCopied bool
}

// CopyObject duplicates a source version onto the destination object as a
// new version. The payload is not revalidated or duplicated in the blob
// store; the new version shares the source's checksum, provenance record
// and reference lists, and its references are counted again exactly as an
// original save of the same content would have counted them.
//
// When the destination is a new object name and the source version is
// unspecified, the source's entire version history is copied in order.
func (db *DB) CopyObject(ctx context.Context, opts CopyObject) (_ CopyResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.User == "" {
		return CopyResult{}, ErrInvalidRequest.New("user required")
	}
	if err := opts.To.Verify(); err != nil {
		return CopyResult{}, err
	}
	fromWS, err := db.ResolveWorkspace(ctx, opts.FromWorkspace)
	if err != nil {
		return CopyResult{}, err
	}
	toWS, err := db.ResolveWorkspace(ctx, opts.ToWorkspace)
	if err != nil {
		return CopyResult{}, err
	}
	return db.copyOrRevert(ctx, opts.User, fromWS, opts.From, toWS, opts.To, false)
}

// RevertObject contains the arguments for reverting an object to a prior
// version.
type RevertObject struct {
	User      User
	Workspace WorkspaceIdentifier
	// Object names the object and the version to revert to. A zero
	// version reverts to the latest version.
	Object ObjectIdentifier
}

// RevertObject appends a new version whose content equals the named prior
// version, tagged with the version it was reverted from. Reference counts
// of everything the reverted version points at are incremented again.
func (db *DB) RevertObject(ctx context.Context, opts RevertObject) (_ ObjectInformation, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.User == "" {
		return ObjectInformation{}, ErrInvalidRequest.New("user required")
	}
	ws, err := db.ResolveWorkspace(ctx, opts.Workspace)
	if err != nil {
		return ObjectInformation{}, err
	}
	res, err := db.copyOrRevert(ctx, opts.User, ws, opts.Object, ws, opts.Object, true)
	if err != nil {
		return ObjectInformation{}, err
	}
	return res.ObjectInformation, nil
}

func (db *DB) copyOrRevert(
	ctx context.Context,
	user User,
	fromWS ResolvedWorkspace, from ObjectIdentifier,
	toWS ResolvedWorkspace, to ObjectIdentifier,
	revert bool,
) (CopyResult, error) {
	rfrom, err := db.resolveObject(ctx, fromWS, from)
	if err != nil {
		return CopyResult{}, err
	}

	var (
		rto      ResolvedObject
		toExists bool
	)
	if revert {
		rto, toExists = rfrom, true
	} else {
		toNoVer := ObjectIdentifier{ID: to.ID, Name: to.Name}
		res, err := db.resolveObjects(ctx, toWS, []ObjectIdentifier{toNoVer}, false, true, false)
		if err != nil {
			return CopyResult{}, err
		}
		rto, toExists = res[toNoVer]
	}
	if !toExists && to.ID != 0 {
		return CopyResult{}, ErrNoSuchObject.New(
			"Copy destination is specified as object id %d in workspace %d which does not exist.",
			to.ID, toWS.ID)
	}

	var versions []RawVersion
	copyAll := !toExists && from.Version == 0
	if copyAll {
		versions, err = db.adapter.GetVersions(ctx, fromWS.ID, rfrom.ID)
		if err != nil {
			return CopyResult{}, err
		}
	} else {
		ver, err := db.getVersion(ctx, rfrom)
		if err != nil {
			return CopyResult{}, err
		}
		versions = []RawVersion{ver}
	}

	// Rewrite the provenance tags. Reverts record the source version and
	// keep any copy tag the source already had; copies record the source
	// UPA. Both type representations travel along untouched.
	for i := range versions {
		sourceVer := versions[i].Version
		versions[i].SavedBy = user
		if revert {
			versions[i].RevertedFrom = sourceVer
		} else {
			versions[i].RevertedFrom = 0
			versions[i].CopiedFrom = Reference{
				Workspace: fromWS.ID, Object: rfrom.ID, Version: sourceVer,
			}.String()
		}
	}

	// The new versions hold the same references as the source, so they get
	// counted again. A failure after this point leaves the counts high by
	// one pass; the counter is only ever a conservative upper bound.
	var refs []Reference
	for _, v := range versions {
		vrefs, err := versionReferences(v)
		if err != nil {
			return CopyResult{}, err
		}
		refs = append(refs, vrefs...)
	}
	if err := db.recordReferences(ctx, refs); err != nil {
		return CopyResult{}, err
	}

	objid, name := rto.ID, rto.Name
	if !toExists {
		counter, err := db.adapter.IncrementObjectCounter(ctx, toWS.ID, 1)
		if err != nil {
			return CopyResult{}, err
		}
		objid, name, err = db.saveWorkspaceObject(ctx, toWS, counter, to.Name)
		if err != nil {
			return CopyResult{}, err
		}
	}
	first, saved, err := db.saveVersions(ctx, toWS.ID, objid, versions, nil)
	if err != nil {
		return CopyResult{}, err
	}
	if err := db.adapter.SetWorkspaceModDate(ctx, toWS.ID, db.now()); err != nil {
		return CopyResult{}, err
	}

	last := versions[len(versions)-1]
	return CopyResult{
		ObjectInformation: ObjectInformation{
			Workspace:     toWS.ID,
			WorkspaceName: toWS.Name,
			ID:            objid,
			Name:          name,
			Version:       first + len(versions) - 1,
			Type:          TypeDef{Name: last.TypeName, Major: last.TypeMajor, Minor: last.TypeMinor},
			Checksum:      last.Checksum,
			Size:          last.Size,
			SavedBy:       user,
			SavedDate:     saved,
			Meta:          last.Meta,
		},
		AllVersionsCopied: copyAll,
	}, nil
}
