// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memAdapter is an in-memory Adapter with the same single-document atomicity
// guarantees as the Mongo adapter: every method holds the store mutex for its
// full duration, so each call is atomic with respect to every other call.
// Used by tests and available via the "mem://" connection string.
type memAdapter struct {
	mu sync.Mutex

	wsCounter  int64
	workspaces map[int64]*RawWorkspace
	acls       map[int64]map[User]Permission
	objects    map[int64]map[int64]*RawObject
	versions   map[int64]map[int64][]RawVersion
	provenance map[string]RawProvenance
	config     map[string]interface{}
}

func newMemAdapter() *memAdapter {
	m := &memAdapter{}
	m.reset()
	return m
}

func (m *memAdapter) reset() {
	m.wsCounter = 0
	m.workspaces = make(map[int64]*RawWorkspace)
	m.acls = make(map[int64]map[User]Permission)
	m.objects = make(map[int64]map[int64]*RawObject)
	m.versions = make(map[int64]map[int64][]RawVersion)
	m.provenance = make(map[string]RawProvenance)
	m.config = make(map[string]interface{})
}

func (m *memAdapter) Name() string { return "mem" }

func (m *memAdapter) NextWorkspaceID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wsCounter++
	return m.wsCounter, nil
}

func (m *memAdapter) nameTakenLocked(name string, excludeID int64) bool {
	for _, ws := range m.workspaces {
		if ws.ID != excludeID && ws.Name != nil && *ws.Name == name {
			return true
		}
	}
	return false
}

func (m *memAdapter) InsertWorkspace(ctx context.Context, ws RawWorkspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws.Name != nil && m.nameTakenLocked(*ws.Name, ws.ID) {
		return errDuplicateKey.New("workspace name %s", *ws.Name)
	}
	cp := ws
	cp.Meta = append(Metadata(nil), ws.Meta...)
	m.workspaces[ws.ID] = &cp
	return nil
}

func (m *memAdapter) GetWorkspace(ctx context.Context, id int64) (RawWorkspace, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return RawWorkspace{}, false, nil
	}
	return copyWorkspace(ws), true, nil
}

func (m *memAdapter) GetWorkspaceByName(ctx context.Context, name string) (RawWorkspace, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.workspaces {
		if ws.Name != nil && *ws.Name == name {
			return copyWorkspace(ws), true, nil
		}
	}
	return RawWorkspace{}, false, nil
}

func (m *memAdapter) SetWorkspaceModDate(ctx context.Context, id int64, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[id]; ok {
		ws.ModDate = &t
	}
	return nil
}

func (m *memAdapter) SetWorkspaceDeleted(ctx context.Context, id int64, deleted bool, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[id]; ok {
		ws.Deleted = deleted
		ws.ModDate = &t
	}
	return nil
}

func (m *memAdapter) SetWorkspaceLocked(ctx context.Context, id int64, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[id]; ok {
		ws.Locked = locked
	}
	return nil
}

func (m *memAdapter) SetWorkspaceName(ctx context.Context, id int64, name string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTakenLocked(name, id) {
		return errDuplicateKey.New("workspace name %s", name)
	}
	if ws, ok := m.workspaces[id]; ok {
		ws.Name = &name
		ws.ModDate = &t
	}
	return nil
}

func (m *memAdapter) SetWorkspaceOwner(ctx context.Context, id int64, owner User, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[id]; ok {
		ws.Owner = owner
		ws.ModDate = &t
	}
	return nil
}

func (m *memAdapter) SetWorkspaceDescription(ctx context.Context, id int64, description string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[id]; ok {
		ws.Description = description
		ws.ModDate = &t
	}
	return nil
}

func (m *memAdapter) IncrementObjectCounter(ctx context.Context, id int64, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return 0, Error.New("no workspace with id %d", id)
	}
	ws.NumObjects += n
	return ws.NumObjects, nil
}

func (m *memAdapter) FinalizeClone(ctx context.Context, id int64, name string, t time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return false, nil
	}
	if m.nameTakenLocked(name, id) {
		return false, errDuplicateKey.New("workspace name %s", name)
	}
	ws.Name = &name
	ws.ModDate = &t
	ws.Cloning = false
	return true, nil
}

func (m *memAdapter) CompareAndSetWorkspaceMeta(ctx context.Context, id int64, expected, updated Metadata, t time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok || !metadataEqual(ws.Meta, expected) {
		return false, nil
	}
	ws.Meta = append(Metadata(nil), updated...)
	ws.ModDate = &t
	return true, nil
}

func (m *memAdapter) UpsertPermission(ctx context.Context, wsid int64, user User, perm Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acls[wsid] == nil {
		m.acls[wsid] = make(map[User]Permission)
	}
	if perm == PermNone {
		delete(m.acls[wsid], user)
	} else {
		m.acls[wsid][user] = perm
	}
	return nil
}

func (m *memAdapter) GetPermissions(ctx context.Context, wsid int64) ([]RawACL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []RawACL
	for user, perm := range m.acls[wsid] {
		ret = append(ret, RawACL{WorkspaceID: wsid, User: user, Perm: perm})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].User < ret[j].User })
	return ret, nil
}

func (m *memAdapter) InsertObject(ctx context.Context, obj RawObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.objects[obj.WorkspaceID] {
		if o.Name == obj.Name || o.ID == obj.ID {
			return errDuplicateKey.New("object name %s", obj.Name)
		}
	}
	if m.objects[obj.WorkspaceID] == nil {
		m.objects[obj.WorkspaceID] = make(map[int64]*RawObject)
	}
	cp := obj
	cp.Refcounts = append([]int(nil), obj.Refcounts...)
	m.objects[obj.WorkspaceID][obj.ID] = &cp
	return nil
}

func (m *memAdapter) GetObject(ctx context.Context, wsid, id int64) (RawObject, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[wsid][id]
	if !ok {
		return RawObject{}, false, nil
	}
	return copyObject(obj), true, nil
}

func (m *memAdapter) GetObjectByName(ctx context.Context, wsid int64, name string) (RawObject, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range m.objects[wsid] {
		if obj.Name == name {
			return copyObject(obj), true, nil
		}
	}
	return RawObject{}, false, nil
}

func (m *memAdapter) ListCloneableObjects(ctx context.Context, wsid int64, exclude []int64) ([]RawObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	excluded := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	var ret []RawObject
	for _, obj := range m.objects[wsid] {
		if obj.Deleted || obj.VersionCount == 0 || excluded[obj.ID] {
			continue
		}
		ret = append(ret, copyObject(obj))
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

func (m *memAdapter) PushVersions(ctx context.Context, wsid, objid int64, count int, hidden *bool, t time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[wsid][objid]
	if !ok {
		return 0, Error.New("no object with id %d in workspace %d", objid, wsid)
	}
	obj.VersionCount += count
	obj.Refcounts = append(obj.Refcounts, make([]int, count)...)
	obj.Deleted = false
	obj.ModDate = t
	if hidden != nil {
		obj.Hidden = *hidden
	}
	return obj.VersionCount - count + 1, nil
}

func (m *memAdapter) SetObjectsHidden(ctx context.Context, wsid int64, ids []int64, hidden bool, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if obj, ok := m.objects[wsid][id]; ok {
			obj.Hidden = hidden
			obj.ModDate = t
		}
	}
	return nil
}

func (m *memAdapter) SetObjectsDeleted(ctx context.Context, wsid int64, ids []int64, deleted bool, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		for _, obj := range m.objects[wsid] {
			if obj.Deleted != deleted {
				obj.Deleted = deleted
				obj.ModDate = t
			}
		}
		return nil
	}
	for _, id := range ids {
		if obj, ok := m.objects[wsid][id]; ok {
			obj.Deleted = deleted
			obj.ModDate = t
		}
	}
	return nil
}

func (m *memAdapter) SetObjectName(ctx context.Context, wsid, id int64, name string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.objects[wsid] {
		if o.ID != id && o.Name == name {
			return errDuplicateKey.New("object name %s", name)
		}
	}
	if obj, ok := m.objects[wsid][id]; ok {
		obj.Name = name
		obj.ModDate = t
	}
	return nil
}

func (m *memAdapter) IncrementRefcounts(ctx context.Context, version, delta int, targets map[int64][]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for wsid, objids := range targets {
		for _, objid := range objids {
			obj, ok := m.objects[wsid][objid]
			if !ok {
				continue
			}
			for len(obj.Refcounts) < version {
				obj.Refcounts = append(obj.Refcounts, 0)
			}
			obj.Refcounts[version-1] += delta
		}
	}
	return nil
}

func (m *memAdapter) CompareAndSetAdminMeta(ctx context.Context, ref Reference, expected, updated Metadata) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vers := m.versions[ref.Workspace][ref.Object]
	for i := range vers {
		if vers[i].Version == ref.Version {
			if !metadataEqual(vers[i].AdminMeta, expected) {
				return false, nil
			}
			vers[i].AdminMeta = append(Metadata(nil), updated...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memAdapter) InsertVersions(ctx context.Context, vers []RawVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vers {
		if m.versions[v.WorkspaceID] == nil {
			m.versions[v.WorkspaceID] = make(map[int64][]RawVersion)
		}
		cp := v
		cp.Refs = append([]string(nil), v.Refs...)
		cp.ProvRefs = append([]string(nil), v.ProvRefs...)
		cp.Meta = append(Metadata(nil), v.Meta...)
		cp.AdminMeta = append(Metadata(nil), v.AdminMeta...)
		m.versions[v.WorkspaceID][v.ObjectID] = append(m.versions[v.WorkspaceID][v.ObjectID], cp)
	}
	return nil
}

func (m *memAdapter) GetVersion(ctx context.Context, ref Reference) (RawVersion, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions[ref.Workspace][ref.Object] {
		if v.Version == ref.Version {
			return v, true, nil
		}
	}
	return RawVersion{}, false, nil
}

func (m *memAdapter) GetVersions(ctx context.Context, wsid, objid int64) ([]RawVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := append([]RawVersion(nil), m.versions[wsid][objid]...)
	sort.Slice(ret, func(i, j int) bool { return ret[i].Version < ret[j].Version })
	return ret, nil
}

func (m *memAdapter) InsertProvenance(ctx context.Context, prov RawProvenance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provenance[prov.ID] = prov
	return nil
}

func (m *memAdapter) GetProvenance(ctx context.Context, id string) (RawProvenance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prov, ok := m.provenance[id]
	return prov, ok, nil
}

func (m *memAdapter) UpsertConfigKey(ctx context.Context, key string, value interface{}, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.config[key]; ok && !overwrite {
		return nil
	}
	m.config[key] = value
	return nil
}

func (m *memAdapter) DeleteConfigKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.config, key)
	return nil
}

func (m *memAdapter) GetConfigItems(ctx context.Context) ([]RawConfigItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []RawConfigItem
	for k, v := range m.config {
		ret = append(ret, RawConfigItem{Key: k, Value: v})
	}
	return ret, nil
}

func (m *memAdapter) TestingDeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *memAdapter) TestingRawWorkspaces(ctx context.Context) ([]RawWorkspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []RawWorkspace
	for _, ws := range m.workspaces {
		ret = append(ret, copyWorkspace(ws))
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

func (m *memAdapter) TestingRawObjects(ctx context.Context) ([]RawObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []RawObject
	for _, objs := range m.objects {
		for _, obj := range objs {
			ret = append(ret, copyObject(obj))
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].WorkspaceID != ret[j].WorkspaceID {
			return ret[i].WorkspaceID < ret[j].WorkspaceID
		}
		return ret[i].ID < ret[j].ID
	})
	return ret, nil
}

func (m *memAdapter) TestingRawVersions(ctx context.Context) ([]RawVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []RawVersion
	for _, objs := range m.versions {
		for _, vers := range objs {
			ret = append(ret, vers...)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		a, b := ret[i], ret[j]
		if a.WorkspaceID != b.WorkspaceID {
			return a.WorkspaceID < b.WorkspaceID
		}
		if a.ObjectID != b.ObjectID {
			return a.ObjectID < b.ObjectID
		}
		return a.Version < b.Version
	})
	return ret, nil
}

func copyWorkspace(ws *RawWorkspace) RawWorkspace {
	cp := *ws
	if ws.Name != nil {
		name := *ws.Name
		cp.Name = &name
	}
	if ws.ModDate != nil {
		t := *ws.ModDate
		cp.ModDate = &t
	}
	cp.Meta = append(Metadata(nil), ws.Meta...)
	return cp
}

func copyObject(obj *RawObject) RawObject {
	cp := *obj
	cp.Refcounts = append([]int(nil), obj.Refcounts...)
	return cp
}
