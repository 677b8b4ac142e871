// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"time"
)

// RawWorkspace is the full workspace record as stored in the database. It
// should be rarely used directly.
//
// Name and ModDate are pointers because both fields must be entirely absent
// from the stored document while the workspace is a cloning placeholder. The
// unique index on the name field is sparse, so any number of in-flight clones
// may coexist; a null (rather than absent) name would collide.
type RawWorkspace struct {
	ID          int64      `bson:"id"`
	Name        *string    `bson:"name,omitempty"`
	Owner       User       `bson:"owner"`
	Description string     `bson:"desc"`
	CreatedDate time.Time  `bson:"createdate"`
	ModDate     *time.Time `bson:"moddate,omitempty"`
	NumObjects  int64      `bson:"numobj"`
	Deleted     bool       `bson:"del"`
	Locked      bool       `bson:"lock"`
	Cloning     bool       `bson:"cloning,omitempty"`
	Meta        Metadata   `bson:"meta"`
}

// RawACL is a single workspace permission row. One row exists per
// (workspace, user) pair; the AllUsers user denotes the global row.
type RawACL struct {
	WorkspaceID int64      `bson:"id"`
	User        User       `bson:"user"`
	Perm        Permission `bson:"perm"`
}

// RawObject is the full object record as stored in the database.
//
// VersionCount is the per-object version counter; incrementing it is the
// single atomic operation that makes new versions visible to readers.
// Refcounts always has exactly VersionCount slots after a completed write.
type RawObject struct {
	WorkspaceID  int64     `bson:"ws"`
	ID           int64     `bson:"id"`
	Name         string    `bson:"name"`
	Deleted      bool      `bson:"del"`
	Hidden       bool      `bson:"hide"`
	ModDate      time.Time `bson:"moddate"`
	VersionCount int       `bson:"numver"`
	Refcounts    []int     `bson:"refcnt"`
}

// RawVersion is the full object version record as stored in the database.
// Version records are immutable once written.
//
// TypeName/TypeMajor/TypeMinor and TypeFull are two representations of the
// same type identifier. They are always written together in the same call so
// older readers that only understand the combined form keep working.
type RawVersion struct {
	WorkspaceID int64     `bson:"ws"`
	ObjectID    int64     `bson:"id"`
	Version     int       `bson:"ver"`
	TypeName    string    `bson:"tyname"`
	TypeMajor   int       `bson:"tymaj"`
	TypeMinor   int       `bson:"tymin"`
	TypeFull    string    `bson:"type"`
	Checksum    string    `bson:"chksum"`
	Size        int64     `bson:"size"`
	SavedBy     User      `bson:"savedby"`
	SavedDate   time.Time `bson:"savedate"`
	Provenance  string    `bson:"provenance"`

	// Refs and ProvRefs are the references embedded in the payload and in
	// the provenance, in the "ws/obj/ver" string form. They are kept
	// separate because provenance references are reported per provenance
	// action.
	Refs     []string `bson:"refs"`
	ProvRefs []string `bson:"provrefs"`

	// CopiedFrom is the UPA of the source version when this version was
	// created by copy or clone, empty otherwise.
	CopiedFrom string `bson:"copied,omitempty"`
	// RevertedFrom is the source version number when this version was
	// created by revert, zero otherwise.
	RevertedFrom int `bson:"revert,omitempty"`

	ExtractedIDs map[string][]string `bson:"extids,omitempty"`
	Meta         Metadata            `bson:"meta"`
	AdminMeta    Metadata            `bson:"adminmeta"`
}

// RawProvenance is a stored provenance record. The payload is opaque to this
// engine; version records point at it by id.
type RawProvenance struct {
	ID   string `bson:"_id"`
	User User   `bson:"user"`
	Data []byte `bson:"data"`
}

// RawConfigItem is a single dynamic configuration row.
type RawConfigItem struct {
	Key   string      `bson:"key"`
	Value interface{} `bson:"value"`
}
