// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
)

// ObjectVersionTarget names one object version for retrieval.
type ObjectVersionTarget struct {
	Workspace WorkspaceIdentifier
	// Object may pin a version; zero means latest.
	Object ObjectIdentifier
	// SubsetPath optionally selects part of the payload. Extraction
	// happens during materialization.
	SubsetPath string
}

// ObjectData is a retrieval handle for one object version. Data stays nil
// until the handle is passed through AddDataToObjects.
type ObjectData struct {
	Info       ObjectInformation
	CopiedFrom string
	SubsetPath string
	Data       []byte
}

// GetObjectInformation returns the description of one object version.
func (db *DB) GetObjectInformation(ctx context.Context, wsi WorkspaceIdentifier, oi ObjectIdentifier) (_ ObjectInformation, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return ObjectInformation{}, err
	}
	ro, err := db.resolveObject(ctx, ws, oi)
	if err != nil {
		return ObjectInformation{}, err
	}
	ver, err := db.getVersion(ctx, ro)
	if err != nil {
		return ObjectInformation{}, err
	}
	return db.objectInformation(ws, ro, ver), nil
}

func (db *DB) objectInformation(ws ResolvedWorkspace, ro ResolvedObject, ver RawVersion) ObjectInformation {
	return ObjectInformation{
		Workspace:     ws.ID,
		WorkspaceName: ws.Name,
		ID:            ro.ID,
		Name:          ro.Name,
		Version:       ver.Version,
		Type:          TypeDef{Name: ver.TypeName, Major: ver.TypeMajor, Minor: ver.TypeMinor},
		Checksum:      ver.Checksum,
		Size:          ver.Size,
		SavedBy:       ver.SavedBy,
		SavedDate:     ver.SavedDate,
		Meta:          ver.Meta,
	}
}

// GetObjects resolves a batch of version targets into retrieval handles,
// without payloads. Handles are returned in input order.
func (db *DB) GetObjects(ctx context.Context, targets []ObjectVersionTarget) (_ []*ObjectData, err error) {
	defer mon.Task()(&ctx)(&err)

	ret := make([]*ObjectData, 0, len(targets))
	for _, t := range targets {
		ws, err := db.ResolveWorkspace(ctx, t.Workspace)
		if err != nil {
			return nil, err
		}
		ro, err := db.resolveObject(ctx, ws, t.Object)
		if err != nil {
			return nil, err
		}
		ver, err := db.getVersion(ctx, ro)
		if err != nil {
			return nil, err
		}
		ret = append(ret, &ObjectData{
			Info:       db.objectInformation(ws, ro, ver),
			CopiedFrom: ver.CopiedFrom,
			SubsetPath: t.SubsetPath,
		})
	}
	return ret, nil
}

// GetObjectProvenance returns the stored provenance document of an object
// version.
func (db *DB) GetObjectProvenance(ctx context.Context, wsi WorkspaceIdentifier, oi ObjectIdentifier) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	ws, err := db.ResolveWorkspace(ctx, wsi)
	if err != nil {
		return nil, err
	}
	ro, err := db.resolveObject(ctx, ws, oi)
	if err != nil {
		return nil, err
	}
	ver, err := db.getVersion(ctx, ro)
	if err != nil {
		return nil, err
	}
	if ver.Provenance == "" {
		return nil, nil
	}
	prov, found, err := db.adapter.GetProvenance(ctx, ver.Provenance)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCorruptDB.New(
			"provenance record %s referenced by object %d/%d/%d is missing",
			ver.Provenance, ro.Workspace.ID, ro.ID, ro.Version)
	}
	return prov.Data, nil
}

// CheckObjectsExist reports, per target, whether the named object version
// exists and is visible: deleted objects, mid-save objects and versions not
// yet covered by the version counter all report false.
func (db *DB) CheckObjectsExist(ctx context.Context, targets []ObjectVersionTarget) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)

	ret := make([]bool, len(targets))
	for i, t := range targets {
		ws, err := db.resolveWorkspace(ctx, t.Workspace, false)
		if err != nil {
			if ErrNoSuchWorkspace.Has(err) {
				continue
			}
			return nil, err
		}
		res, err := db.resolveObjects(ctx, ws, []ObjectIdentifier{t.Object}, false, false, false)
		if err != nil {
			return nil, err
		}
		_, ret[i] = res[t.Object]
	}
	return ret, nil
}
