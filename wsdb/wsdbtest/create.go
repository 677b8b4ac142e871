// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdbtest

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"kbase.us/workspace/internal/testcontext"
	"kbase.us/workspace/internal/testrand"
	"kbase.us/workspace/wsdb"
)

// DefaultType is the object type used by generated test objects.
var DefaultType = wsdb.TypeDef{Name: "Empty.AType", Major: 0, Minor: 1}

// RandPayload generates a random payload together with its checksum.
func RandPayload() (data []byte, checksum string) {
	data = testrand.BytesN(64)
	sum := md5.Sum(data)
	return data, hex.EncodeToString(sum[:])
}

// RandSaveObject builds a save request for a fresh random object under the
// given name.
func RandSaveObject(name string) wsdb.SaveObject {
	payload, checksum := RandPayload()
	return wsdb.SaveObject{
		Object: wsdb.ObjectIdentifier{Name: name},
		Data: wsdb.ValidatedObject{
			Type:     DefaultType,
			Checksum: checksum,
			Size:     int64(len(payload)),
			Payload:  payload,
		},
		Provenance: []byte(`{"actions":[]}`),
	}
}

// CreateRandomWorkspace creates a workspace with a generated name and
// returns its description.
func CreateRandomWorkspace(ctx *testcontext.Context, t testing.TB, db *wsdb.DB, owner wsdb.User) wsdb.WorkspaceInformation {
	info, err := db.CreateWorkspace(ctx, wsdb.CreateWorkspace{
		Owner: owner,
		Name:  testrand.Name("ws"),
	})
	require.NoError(t, err)
	return info
}

// CreateObject saves a single random object into the workspace and returns
// its description.
func CreateObject(ctx *testcontext.Context, t testing.TB, db *wsdb.DB, user wsdb.User, ws wsdb.WorkspaceIdentifier, name string) wsdb.ObjectInformation {
	infos, err := db.SaveObjects(ctx, wsdb.SaveObjects{
		User:      user,
		Workspace: ws,
		Objects:   []wsdb.SaveObject{RandSaveObject(name)},
	})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	return infos[0]
}

// CreateObjectVersions saves count random versions of one object and returns
// their descriptions in version order.
func CreateObjectVersions(ctx *testcontext.Context, t testing.TB, db *wsdb.DB, user wsdb.User, ws wsdb.WorkspaceIdentifier, name string, count int) []wsdb.ObjectInformation {
	infos := make([]wsdb.ObjectInformation, 0, count)
	for i := 0; i < count; i++ {
		infos = append(infos, CreateObject(ctx, t, db, user, ws, name))
	}
	return infos
}
