// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"kbase.us/workspace/blobstore"
)

// ObjectInformation describes one saved object version.
type ObjectInformation struct {
	Workspace     int64
	WorkspaceName string
	ID            int64
	Name          string
	Version       int
	Type          TypeDef
	Checksum      string
	Size          int64
	SavedBy       User
	SavedDate     time.Time
	Meta          Metadata
}

// SaveObjects contains the arguments for saving a batch of pre-validated
// objects into one workspace.
type SaveObjects struct {
	User      User
	Workspace WorkspaceIdentifier
	Objects   []SaveObject
}

// Verify checks the request shape. Individual objects are checked in batch
// order so error messages can name the offending position.
func (opts SaveObjects) Verify() error {
	if opts.User == "" {
		return ErrInvalidRequest.New("user required")
	}
	if len(opts.Objects) == 0 {
		return ErrInvalidRequest.New("no objects provided")
	}
	for n, o := range opts.Objects {
		if err := o.Verify(n + 1); err != nil {
			return err
		}
	}
	return nil
}

// savePackage is the per-object working state of one save batch.
type savePackage struct {
	obj    SaveObject
	name   string // final object name, once known
	provID string
}

// SaveObjects writes a batch of objects, preserving batch order in the
// returned information. Saving the same object several times in one batch
// produces consecutive versions in batch order.
//
// Each persistence step is a single-document write. A crash mid-batch can
// leave an object with an allocated id and name whose version counter never
// advanced; such an object does not exist as far as any reader is concerned.
func (db *DB) SaveObjects(ctx context.Context, opts SaveObjects) (_ []ObjectInformation, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := opts.Verify(); err != nil {
		return nil, err
	}
	ws, err := db.ResolveWorkspace(ctx, opts.Workspace)
	if err != nil {
		return nil, err
	}

	packages := make([]*savePackage, len(opts.Objects))
	idents := make([]ObjectIdentifier, 0, len(opts.Objects))
	seenIdent := make(map[ObjectIdentifier]bool)
	for i, o := range opts.Objects {
		packages[i] = &savePackage{obj: o}
		if !seenIdent[o.Object] {
			seenIdent[o.Object] = true
			idents = append(idents, o.Object)
		}
	}

	// Confirm id targets exist and translate name targets to ids where the
	// name is already taken. Deleted objects are legal targets; saving over
	// one undeletes it.
	resolved, err := db.resolveObjects(ctx, ws, idents, false, true, false)
	if err != nil {
		return nil, err
	}
	newObjects := int64(0)
	for _, ident := range idents {
		res, ok := resolved[ident]
		switch {
		case ok:
			for _, p := range packages {
				if p.obj.Object == ident {
					p.name = res.Name
				}
			}
		case ident.ID != 0:
			return nil, ErrNoSuchObject.New("There is no object with id %d", ident.ID)
		default:
			for _, p := range packages {
				if p.obj.Object == ident {
					p.name = ident.Name
				}
			}
			newObjects++
		}
	}

	// Payloads and provenance go in before anything becomes visible; both
	// are content-addressed or freestanding, so a failure here leaves no
	// observable state.
	if err := db.saveData(ctx, packages); err != nil {
		return nil, err
	}
	if err := db.saveProvenance(ctx, opts.User, packages); err != nil {
		return nil, err
	}
	if err := db.updateReferenceCounts(ctx, packages); err != nil {
		return nil, err
	}

	counter, err := db.adapter.IncrementObjectCounter(ctx, ws.ID, newObjects)
	if err != nil {
		return nil, err
	}
	nextID := counter - newObjects + 1

	ret := make([]ObjectInformation, 0, len(packages))
	seenNames := make(map[string]int64)
	for _, p := range packages {
		var objid int64
		switch {
		case p.obj.Object.ID != 0:
			objid = p.obj.Object.ID
		case resolved[p.obj.Object].ID != 0:
			objid = resolved[p.obj.Object].ID
		case seenNames[p.name] != 0:
			objid = seenNames[p.name]
		default:
			id, name, err := db.saveWorkspaceObject(ctx, ws, nextID, p.name)
			nextID++
			if err != nil {
				return nil, err
			}
			p.name = name
			seenNames[name] = id
			objid = id
		}
		info, err := db.saveObjectVersion(ctx, opts.User, ws, objid, p)
		if err != nil {
			return nil, err
		}
		ret = append(ret, info)
	}
	if err := db.adapter.SetWorkspaceModDate(ctx, ws.ID, db.now()); err != nil {
		return nil, err
	}
	return ret, nil
}

// saveData stores every payload in the blob backend. Blobs are keyed by
// checksum, so re-saving known content is a no-op.
func (db *DB) saveData(ctx context.Context, packages []*savePackage) error {
	for _, p := range packages {
		err := db.blobs.PutBlob(ctx, p.obj.Data.Checksum, p.obj.Data.Payload, true)
		if err != nil {
			return translateBlobError(err)
		}
	}
	return nil
}

func translateBlobError(err error) error {
	if blobstore.ErrAuthorization.Has(err) {
		return ErrCommunication.New(
			"Authorization error communicating with the backend storage system")
	}
	return ErrCommunication.Wrap(err)
}

// saveProvenance writes one provenance record per package and remembers its
// id for the version record.
func (db *DB) saveProvenance(ctx context.Context, user User, packages []*savePackage) error {
	for _, p := range packages {
		prov := RawProvenance{
			ID:   primitive.NewObjectID().Hex(),
			User: user,
			Data: p.obj.Provenance,
		}
		if err := db.adapter.InsertProvenance(ctx, prov); err != nil {
			return err
		}
		p.provID = prov.ID
	}
	return nil
}

// updateReferenceCounts bumps the refcount slot of every reference held by
// the batch. Duplicate references each count.
func (db *DB) updateReferenceCounts(ctx context.Context, packages []*savePackage) error {
	var refs []Reference
	for _, p := range packages {
		refs = append(refs, p.obj.Refs...)
		refs = append(refs, p.obj.ProvRefs...)
	}
	return db.recordReferences(ctx, refs)
}

// saveWorkspaceObject inserts a fresh object record under the given id and
// name, with its version counter at zero. If a concurrent saver just claimed
// the name, the existing object's id is used instead and the allocated id is
// abandoned; if the record disappears again before it can be read back, the
// insert is retried.
func (db *DB) saveWorkspaceObject(ctx context.Context, ws ResolvedWorkspace, objid int64, name string) (int64, string, error) {
	for {
		err := db.adapter.InsertObject(ctx, RawObject{
			WorkspaceID: ws.ID,
			ID:          objid,
			Name:        name,
			ModDate:     db.now(),
			Refcounts:   []int{},
		})
		if err == nil {
			return objid, name, nil
		}
		if !errDuplicateKey.Has(err) {
			return 0, "", err
		}
		existing, found, err := db.adapter.GetObjectByName(ctx, ws.ID, name)
		if err != nil {
			return 0, "", err
		}
		if found {
			return existing.ID, existing.Name, nil
		}
		// name freed between the insert and the read, try again
	}
}

// saveObjectVersion makes one new version of an existing object record
// visible and writes its version document.
func (db *DB) saveObjectVersion(ctx context.Context, user User, ws ResolvedWorkspace, objid int64, p *savePackage) (ObjectInformation, error) {
	ver := RawVersion{
		TypeName:     p.obj.Data.Type.Name,
		TypeMajor:    p.obj.Data.Type.Major,
		TypeMinor:    p.obj.Data.Type.Minor,
		TypeFull:     p.obj.Data.Type.String(),
		Checksum:     p.obj.Data.Checksum,
		Size:         p.obj.Data.Size,
		SavedBy:      user,
		Provenance:   p.provID,
		Refs:         referencesToStrings(p.obj.Refs),
		ProvRefs:     referencesToStrings(p.obj.ProvRefs),
		ExtractedIDs: p.obj.Data.ExtractedIDs,
		Meta:         p.obj.Meta,
	}
	hidden := p.obj.Hidden
	first, saved, err := db.saveVersions(ctx, ws.ID, objid, []RawVersion{ver}, &hidden)
	if err != nil {
		return ObjectInformation{}, err
	}
	return ObjectInformation{
		Workspace:     ws.ID,
		WorkspaceName: ws.Name,
		ID:            objid,
		Name:          p.name,
		Version:       first,
		Type:          p.obj.Data.Type,
		Checksum:      p.obj.Data.Checksum,
		Size:          p.obj.Data.Size,
		SavedBy:       user,
		SavedDate:     saved,
		Meta:          p.obj.Meta,
	}, nil
}

// saveVersions is the visibility step shared by save, copy, revert and
// clone. It atomically extends the object's version counter by len(vers),
// then writes the version documents numbered from the first new version.
// The counter bump is what makes the versions exist for readers; a reader
// racing ahead of the document insert must treat the version as not found.
func (db *DB) saveVersions(ctx context.Context, wsid, objid int64, vers []RawVersion, hidden *bool) (int, time.Time, error) {
	saved := db.now()
	first, err := db.adapter.PushVersions(ctx, wsid, objid, len(vers), hidden, saved)
	if err != nil {
		return 0, time.Time{}, err
	}
	for i := range vers {
		vers[i].WorkspaceID = wsid
		vers[i].ObjectID = objid
		vers[i].Version = first + i
		vers[i].SavedDate = saved
	}
	if err := db.adapter.InsertVersions(ctx, vers); err != nil {
		return 0, time.Time{}, err
	}
	return first, saved, nil
}

func referencesToStrings(refs []Reference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}
