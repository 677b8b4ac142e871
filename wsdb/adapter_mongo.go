// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	colCounters    = "wsCounter"
	colWorkspaces  = "workspaces"
	colACLs        = "workspaceACLs"
	colObjects     = "workspaceObjects"
	colVersions    = "workspaceObjVersions"
	colProvenance  = "provenance"
	colConfig      = "dyncfg"
	counterIDValue = "wscounter"
)

// MongoAdapter implements Adapter over a Mongo database. All coordination
// between concurrent writers relies on Mongo's per-document atomicity:
// findAndModify increments for counters, conditional updateOne for
// compare-and-set writes, and unique indexes for name reservations.
type MongoAdapter struct {
	db *mongo.Database
}

// NewMongoAdapter wraps a Mongo database handle.
func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{db: db}
}

// Name implements Adapter.
func (a *MongoAdapter) Name() string { return "mongo" }

// EnsureIndexes creates the index set the engine relies on. The workspace
// name index must be sparse: cloning placeholders have no name field and a
// non-sparse unique index would allow at most one in-flight clone.
func (a *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	sparseUnique := options.Index().SetUnique(true).SetSparse(true)

	type colIndexes struct {
		col     string
		indexes []mongo.IndexModel
	}
	for _, ci := range []colIndexes{
		{colWorkspaces, []mongo.IndexModel{
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: sparseUnique},
		}},
		{colACLs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "id", Value: 1}, {Key: "user", Value: 1}}, Options: unique},
		}},
		{colObjects, []mongo.IndexModel{
			{Keys: bson.D{{Key: "ws", Value: 1}, {Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "ws", Value: 1}, {Key: "name", Value: 1}}, Options: unique},
		}},
		{colVersions, []mongo.IndexModel{
			{Keys: bson.D{{Key: "ws", Value: 1}, {Key: "id", Value: 1}, {Key: "ver", Value: 1}}, Options: unique},
		}},
		{colConfig, []mongo.IndexModel{
			{Keys: bson.D{{Key: "key", Value: 1}}, Options: unique},
		}},
	} {
		if _, err := a.db.Collection(ci.col).Indexes().CreateMany(ctx, ci.indexes); err != nil {
			return ErrCommunication.Wrap(err)
		}
	}
	return nil
}

func (a *MongoAdapter) translate(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return errDuplicateKey.Wrap(err)
	}
	return ErrCommunication.Wrap(err)
}

// NextWorkspaceID implements Adapter.
func (a *MongoAdapter) NextWorkspaceID(ctx context.Context) (int64, error) {
	var res struct {
		Num int64 `bson:"num"`
	}
	err := a.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"id": counterIDValue},
		bson.M{"$inc": bson.M{"num": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After).
			SetProjection(bson.M{"num": 1, "_id": 0}),
	).Decode(&res)
	if err != nil {
		return 0, a.translate(err)
	}
	return res.Num, nil
}

// InsertWorkspace implements Adapter.
func (a *MongoAdapter) InsertWorkspace(ctx context.Context, ws RawWorkspace) error {
	_, err := a.db.Collection(colWorkspaces).InsertOne(ctx, ws)
	return a.translate(err)
}

// GetWorkspace implements Adapter.
func (a *MongoAdapter) GetWorkspace(ctx context.Context, id int64) (RawWorkspace, bool, error) {
	return a.findWorkspace(ctx, bson.M{"id": id})
}

// GetWorkspaceByName implements Adapter.
func (a *MongoAdapter) GetWorkspaceByName(ctx context.Context, name string) (RawWorkspace, bool, error) {
	return a.findWorkspace(ctx, bson.M{"name": name})
}

func (a *MongoAdapter) findWorkspace(ctx context.Context, filter bson.M) (RawWorkspace, bool, error) {
	var ws RawWorkspace
	err := a.db.Collection(colWorkspaces).FindOne(ctx, filter).Decode(&ws)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return RawWorkspace{}, false, nil
	}
	if err != nil {
		return RawWorkspace{}, false, a.translate(err)
	}
	return ws, true, nil
}

func (a *MongoAdapter) updateWorkspace(ctx context.Context, id int64, update bson.M) error {
	_, err := a.db.Collection(colWorkspaces).UpdateOne(ctx, bson.M{"id": id}, update)
	return a.translate(err)
}

// SetWorkspaceModDate implements Adapter.
func (a *MongoAdapter) SetWorkspaceModDate(ctx context.Context, id int64, t time.Time) error {
	return a.updateWorkspace(ctx, id, bson.M{"$set": bson.M{"moddate": t}})
}

// SetWorkspaceDeleted implements Adapter.
func (a *MongoAdapter) SetWorkspaceDeleted(ctx context.Context, id int64, deleted bool, t time.Time) error {
	return a.updateWorkspace(ctx, id, bson.M{"$set": bson.M{"del": deleted, "moddate": t}})
}

// SetWorkspaceLocked implements Adapter.
func (a *MongoAdapter) SetWorkspaceLocked(ctx context.Context, id int64, locked bool) error {
	return a.updateWorkspace(ctx, id, bson.M{"$set": bson.M{"lock": locked}})
}

// SetWorkspaceName implements Adapter.
func (a *MongoAdapter) SetWorkspaceName(ctx context.Context, id int64, name string, t time.Time) error {
	return a.updateWorkspace(ctx, id, bson.M{"$set": bson.M{"name": name, "moddate": t}})
}

// SetWorkspaceOwner implements Adapter.
func (a *MongoAdapter) SetWorkspaceOwner(ctx context.Context, id int64, owner User, t time.Time) error {
	return a.updateWorkspace(ctx, id, bson.M{"$set": bson.M{"owner": owner, "moddate": t}})
}

// SetWorkspaceDescription implements Adapter.
func (a *MongoAdapter) SetWorkspaceDescription(ctx context.Context, id int64, description string, t time.Time) error {
	return a.updateWorkspace(ctx, id, bson.M{"$set": bson.M{"desc": description, "moddate": t}})
}

// IncrementObjectCounter implements Adapter.
func (a *MongoAdapter) IncrementObjectCounter(ctx context.Context, id int64, n int64) (int64, error) {
	var res struct {
		NumObjects int64 `bson:"numobj"`
	}
	err := a.db.Collection(colWorkspaces).FindOneAndUpdate(ctx,
		bson.M{"id": id},
		bson.M{"$inc": bson.M{"numobj": n}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"numobj": 1, "_id": 0}),
	).Decode(&res)
	if err != nil {
		return 0, a.translate(err)
	}
	return res.NumObjects, nil
}

// FinalizeClone implements Adapter.
func (a *MongoAdapter) FinalizeClone(ctx context.Context, id int64, name string, t time.Time) (bool, error) {
	res, err := a.db.Collection(colWorkspaces).UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{
			"$set":   bson.M{"name": name, "moddate": t},
			"$unset": bson.M{"cloning": ""},
		})
	if err != nil {
		return false, a.translate(err)
	}
	return res.ModifiedCount == 1, nil
}

// CompareAndSetWorkspaceMeta implements Adapter. The filter matches the
// metadata array read moments earlier, so an interleaving metadata change
// makes the write a no-op instead of clobbering it.
func (a *MongoAdapter) CompareAndSetWorkspaceMeta(ctx context.Context, id int64, expected, updated Metadata, t time.Time) (bool, error) {
	res, err := a.db.Collection(colWorkspaces).UpdateOne(ctx,
		bson.M{"id": id, "meta": metaArray(expected)},
		bson.M{"$set": bson.M{"meta": metaArray(updated), "moddate": t}})
	if err != nil {
		return false, a.translate(err)
	}
	return res.ModifiedCount == 1, nil
}

// UpsertPermission implements Adapter.
func (a *MongoAdapter) UpsertPermission(ctx context.Context, wsid int64, user User, perm Permission) error {
	if perm == PermNone {
		_, err := a.db.Collection(colACLs).DeleteOne(ctx, bson.M{"id": wsid, "user": user})
		return a.translate(err)
	}
	_, err := a.db.Collection(colACLs).UpdateOne(ctx,
		bson.M{"id": wsid, "user": user},
		bson.M{"$set": bson.M{"perm": perm}},
		options.Update().SetUpsert(true))
	return a.translate(err)
}

// GetPermissions implements Adapter.
func (a *MongoAdapter) GetPermissions(ctx context.Context, wsid int64) (acls []RawACL, err error) {
	cur, err := a.db.Collection(colACLs).Find(ctx, bson.M{"id": wsid},
		options.Find().SetSort(bson.M{"user": 1}))
	if err != nil {
		return nil, a.translate(err)
	}
	if err := cur.All(ctx, &acls); err != nil {
		return nil, a.translate(err)
	}
	return acls, nil
}

// InsertObject implements Adapter.
func (a *MongoAdapter) InsertObject(ctx context.Context, obj RawObject) error {
	_, err := a.db.Collection(colObjects).InsertOne(ctx, obj)
	return a.translate(err)
}

// GetObject implements Adapter.
func (a *MongoAdapter) GetObject(ctx context.Context, wsid, id int64) (RawObject, bool, error) {
	return a.findObject(ctx, bson.M{"ws": wsid, "id": id})
}

// GetObjectByName implements Adapter.
func (a *MongoAdapter) GetObjectByName(ctx context.Context, wsid int64, name string) (RawObject, bool, error) {
	return a.findObject(ctx, bson.M{"ws": wsid, "name": name})
}

func (a *MongoAdapter) findObject(ctx context.Context, filter bson.M) (RawObject, bool, error) {
	var obj RawObject
	err := a.db.Collection(colObjects).FindOne(ctx, filter).Decode(&obj)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return RawObject{}, false, nil
	}
	if err != nil {
		return RawObject{}, false, a.translate(err)
	}
	return obj, true, nil
}

// ListCloneableObjects implements Adapter.
func (a *MongoAdapter) ListCloneableObjects(ctx context.Context, wsid int64, exclude []int64) (objs []RawObject, err error) {
	filter := bson.M{"ws": wsid, "del": false, "numver": bson.M{"$gt": 0}}
	if len(exclude) > 0 {
		filter["id"] = bson.M{"$nin": exclude}
	}
	cur, err := a.db.Collection(colObjects).Find(ctx, filter,
		options.Find().SetSort(bson.M{"id": 1}))
	if err != nil {
		return nil, a.translate(err)
	}
	if err := cur.All(ctx, &objs); err != nil {
		return nil, a.translate(err)
	}
	return objs, nil
}

// PushVersions implements Adapter.
func (a *MongoAdapter) PushVersions(ctx context.Context, wsid, objid int64, count int, hidden *bool, t time.Time) (int, error) {
	set := bson.M{"del": false, "moddate": t}
	if hidden != nil {
		set["hide"] = *hidden
	}
	var res struct {
		VersionCount int `bson:"numver"`
	}
	err := a.db.Collection(colObjects).FindOneAndUpdate(ctx,
		bson.M{"ws": wsid, "id": objid},
		bson.M{
			"$inc":  bson.M{"numver": count},
			"$set":  set,
			"$push": bson.M{"refcnt": bson.M{"$each": make([]int, count)}},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"numver": 1, "_id": 0}),
	).Decode(&res)
	if err != nil {
		return 0, a.translate(err)
	}
	return res.VersionCount - count + 1, nil
}

// SetObjectsHidden implements Adapter.
func (a *MongoAdapter) SetObjectsHidden(ctx context.Context, wsid int64, ids []int64, hidden bool, t time.Time) error {
	_, err := a.db.Collection(colObjects).UpdateMany(ctx,
		bson.M{"ws": wsid, "id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"hide": hidden, "moddate": t}})
	return a.translate(err)
}

// SetObjectsDeleted implements Adapter.
func (a *MongoAdapter) SetObjectsDeleted(ctx context.Context, wsid int64, ids []int64, deleted bool, t time.Time) error {
	filter := bson.M{"ws": wsid, "del": !deleted}
	if len(ids) > 0 {
		filter["id"] = bson.M{"$in": ids}
	}
	_, err := a.db.Collection(colObjects).UpdateMany(ctx,
		filter,
		bson.M{"$set": bson.M{"del": deleted, "moddate": t}})
	return a.translate(err)
}

// SetObjectName implements Adapter.
func (a *MongoAdapter) SetObjectName(ctx context.Context, wsid, id int64, name string, t time.Time) error {
	_, err := a.db.Collection(colObjects).UpdateOne(ctx,
		bson.M{"ws": wsid, "id": id},
		bson.M{"$set": bson.M{"name": name, "moddate": t}})
	return a.translate(err)
}

// IncrementRefcounts implements Adapter. One updateMany covers every target
// object that gets the same (version, delta) increment.
func (a *MongoAdapter) IncrementRefcounts(ctx context.Context, version, delta int, targets map[int64][]int64) error {
	var or []bson.M
	for wsid, objids := range targets {
		or = append(or, bson.M{"ws": wsid, "id": bson.M{"$in": objids}})
	}
	if len(or) == 0 {
		return nil
	}
	field := "refcnt." + strconv.Itoa(version-1)
	_, err := a.db.Collection(colObjects).UpdateMany(ctx,
		bson.M{"$or": or},
		bson.M{"$inc": bson.M{field: delta}})
	return a.translate(err)
}

// CompareAndSetAdminMeta implements Adapter.
func (a *MongoAdapter) CompareAndSetAdminMeta(ctx context.Context, ref Reference, expected, updated Metadata) (bool, error) {
	res, err := a.db.Collection(colVersions).UpdateOne(ctx,
		bson.M{"ws": ref.Workspace, "id": ref.Object, "ver": ref.Version, "adminmeta": metaArray(expected)},
		bson.M{"$set": bson.M{"adminmeta": metaArray(updated)}})
	if err != nil {
		return false, a.translate(err)
	}
	return res.ModifiedCount == 1, nil
}

// InsertVersions implements Adapter.
func (a *MongoAdapter) InsertVersions(ctx context.Context, vers []RawVersion) error {
	docs := make([]interface{}, 0, len(vers))
	for _, v := range vers {
		docs = append(docs, v)
	}
	_, err := a.db.Collection(colVersions).InsertMany(ctx, docs)
	return a.translate(err)
}

// GetVersion implements Adapter.
func (a *MongoAdapter) GetVersion(ctx context.Context, ref Reference) (RawVersion, bool, error) {
	var ver RawVersion
	err := a.db.Collection(colVersions).FindOne(ctx,
		bson.M{"ws": ref.Workspace, "id": ref.Object, "ver": ref.Version}).Decode(&ver)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return RawVersion{}, false, nil
	}
	if err != nil {
		return RawVersion{}, false, a.translate(err)
	}
	return ver, true, nil
}

// GetVersions implements Adapter.
func (a *MongoAdapter) GetVersions(ctx context.Context, wsid, objid int64) (vers []RawVersion, err error) {
	cur, err := a.db.Collection(colVersions).Find(ctx,
		bson.M{"ws": wsid, "id": objid},
		options.Find().SetSort(bson.M{"ver": 1}))
	if err != nil {
		return nil, a.translate(err)
	}
	if err := cur.All(ctx, &vers); err != nil {
		return nil, a.translate(err)
	}
	return vers, nil
}

// InsertProvenance implements Adapter.
func (a *MongoAdapter) InsertProvenance(ctx context.Context, prov RawProvenance) error {
	_, err := a.db.Collection(colProvenance).InsertOne(ctx, prov)
	return a.translate(err)
}

// GetProvenance implements Adapter.
func (a *MongoAdapter) GetProvenance(ctx context.Context, id string) (RawProvenance, bool, error) {
	var prov RawProvenance
	err := a.db.Collection(colProvenance).FindOne(ctx, bson.M{"_id": id}).Decode(&prov)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return RawProvenance{}, false, nil
	}
	if err != nil {
		return RawProvenance{}, false, a.translate(err)
	}
	return prov, true, nil
}

// UpsertConfigKey implements Adapter.
func (a *MongoAdapter) UpsertConfigKey(ctx context.Context, key string, value interface{}, overwrite bool) error {
	op := "$setOnInsert"
	if overwrite {
		op = "$set"
	}
	_, err := a.db.Collection(colConfig).UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{op: bson.M{"value": value}},
		options.Update().SetUpsert(true))
	return a.translate(err)
}

// DeleteConfigKey implements Adapter.
func (a *MongoAdapter) DeleteConfigKey(ctx context.Context, key string) error {
	_, err := a.db.Collection(colConfig).DeleteOne(ctx, bson.M{"key": key})
	return a.translate(err)
}

// GetConfigItems implements Adapter.
func (a *MongoAdapter) GetConfigItems(ctx context.Context) (items []RawConfigItem, err error) {
	cur, err := a.db.Collection(colConfig).Find(ctx, bson.M{})
	if err != nil {
		return nil, a.translate(err)
	}
	if err := cur.All(ctx, &items); err != nil {
		return nil, a.translate(err)
	}
	return items, nil
}

// TestingDeleteAll implements Adapter.
func (a *MongoAdapter) TestingDeleteAll(ctx context.Context) error {
	for _, col := range []string{colCounters, colWorkspaces, colACLs, colObjects, colVersions, colProvenance, colConfig} {
		if _, err := a.db.Collection(col).DeleteMany(ctx, bson.M{}); err != nil {
			return a.translate(err)
		}
	}
	return nil
}

// TestingRawWorkspaces implements Adapter.
func (a *MongoAdapter) TestingRawWorkspaces(ctx context.Context) (ret []RawWorkspace, err error) {
	cur, err := a.db.Collection(colWorkspaces).Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"id": 1}))
	if err != nil {
		return nil, a.translate(err)
	}
	if err := cur.All(ctx, &ret); err != nil {
		return nil, a.translate(err)
	}
	return ret, nil
}

// TestingRawObjects implements Adapter.
func (a *MongoAdapter) TestingRawObjects(ctx context.Context) (ret []RawObject, err error) {
	cur, err := a.db.Collection(colObjects).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "ws", Value: 1}, {Key: "id", Value: 1}}))
	if err != nil {
		return nil, a.translate(err)
	}
	if err := cur.All(ctx, &ret); err != nil {
		return nil, a.translate(err)
	}
	return ret, nil
}

// TestingRawVersions implements Adapter.
func (a *MongoAdapter) TestingRawVersions(ctx context.Context) (ret []RawVersion, err error) {
	cur, err := a.db.Collection(colVersions).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "ws", Value: 1}, {Key: "id", Value: 1}, {Key: "ver", Value: 1}}))
	if err != nil {
		return nil, a.translate(err)
	}
	if err := cur.All(ctx, &ret); err != nil {
		return nil, a.translate(err)
	}
	return ret, nil
}

// metaArray renders metadata as the stored array-of-pairs form for use in
// query filters, where nil and empty must both match an empty stored array.
func metaArray(meta Metadata) []MetaItem {
	if meta == nil {
		return []MetaItem{}
	}
	return []MetaItem(meta)
}
