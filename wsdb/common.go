// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for the wsdb package.
	Error = errs.Class("wsdb")

	// ErrNoSuchWorkspace is returned when a workspace is missing, deleted
	// when deletion is not permitted, or mid-clone.
	ErrNoSuchWorkspace = errs.Class("no such workspace")
	// ErrNoSuchObject is returned when an object or object version is
	// missing, deleted when deletion is not permitted, or mid-save.
	ErrNoSuchObject = errs.Class("no such object")
	// ErrPreExistingWorkspace is returned on a workspace name collision
	// during create or clone completion.
	ErrPreExistingWorkspace = errs.Class("preexisting workspace")
	// ErrCorruptDB is returned when persisted state violates an invariant.
	ErrCorruptDB = errs.Class("corrupt workspace database")
	// ErrCommunication is returned on document store or blob backend I/O
	// failures, blob backend authorization failures, and optimistic retry
	// exhaustion.
	ErrCommunication = errs.Class("workspace communication")
	// ErrNoObjectData is returned when the blob for an otherwise valid
	// object version is missing from the backend.
	ErrNoObjectData = errs.Class("no object data")
	// ErrInvalidRequest is returned for malformed caller input.
	ErrInvalidRequest = errs.Class("invalid request")
)

const (
	// MaxMetadataSize is the maximum encoded size of a metadata set in bytes.
	MaxMetadataSize = 16000
	// MaxProvenanceSize is the maximum encoded size of a provenance record
	// in bytes.
	MaxProvenanceSize = 1000000
)

// User identifies a workspace user.
type User string

// AllUsers is the pseudo-user denoting the global permission row.
const AllUsers User = "*"

// Permission is a raw ACL permission level. This package only persists
// permissions; it never makes access decisions.
type Permission int

// Permission levels in increasing order of access.
const (
	PermNone Permission = iota
	PermRead
	PermWrite
	PermAdmin
	PermOwner
)

// WorkspaceIdentifier addresses a workspace by name or by id. Exactly one of
// the fields must be set.
type WorkspaceIdentifier struct {
	ID   int64
	Name string
}

// Verify checks that exactly one of id and name is set.
func (wsi WorkspaceIdentifier) Verify() error {
	switch {
	case wsi.ID < 0:
		return ErrInvalidRequest.New("workspace id must be > 0")
	case wsi.ID == 0 && wsi.Name == "":
		return ErrInvalidRequest.New("workspace id or name required")
	case wsi.ID != 0 && wsi.Name != "":
		return ErrInvalidRequest.New("workspace id and name are mutually exclusive")
	}
	return nil
}

func (wsi WorkspaceIdentifier) errorID() string {
	if wsi.ID != 0 {
		return fmt.Sprintf("id %d", wsi.ID)
	}
	return fmt.Sprintf("name %s", wsi.Name)
}

func (wsi WorkspaceIdentifier) identifierString() string {
	if wsi.ID != 0 {
		return strconv.FormatInt(wsi.ID, 10)
	}
	return wsi.Name
}

// ObjectIdentifier addresses an object within a workspace by name or by id,
// optionally pinned to a version. A zero Version means the latest version.
type ObjectIdentifier struct {
	ID      int64
	Name    string
	Version int
}

// Verify checks that exactly one of id and name is set and the version, if
// present, is positive.
func (oi ObjectIdentifier) Verify() error {
	switch {
	case oi.ID < 0:
		return ErrInvalidRequest.New("object id must be > 0")
	case oi.ID == 0 && oi.Name == "":
		return ErrInvalidRequest.New("object id or name required")
	case oi.ID != 0 && oi.Name != "":
		return ErrInvalidRequest.New("object id and name are mutually exclusive")
	case oi.Version < 0:
		return ErrInvalidRequest.New("object version must be > 0")
	}
	return nil
}

func (oi ObjectIdentifier) identifierString() string {
	if oi.ID != 0 {
		return strconv.FormatInt(oi.ID, 10)
	}
	return oi.Name
}

// errorKind returns "id" or "name" depending on how the object was addressed.
func (oi ObjectIdentifier) errorKind() string {
	if oi.ID != 0 {
		return "id"
	}
	return "name"
}

// Reference is a fully resolved (workspace, object, version) triple, the UPA
// form of an object address.
type Reference struct {
	Workspace int64
	Object    int64
	Version   int
}

// ParseReference parses the "ws/obj/ver" string form of a reference.
func ParseReference(s string) (Reference, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Reference{}, ErrInvalidRequest.New("illegal reference %q", s)
	}
	ws, err1 := strconv.ParseInt(parts[0], 10, 64)
	obj, err2 := strconv.ParseInt(parts[1], 10, 64)
	ver, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || ws < 1 || obj < 1 || ver < 1 {
		return Reference{}, ErrInvalidRequest.New("illegal reference %q", s)
	}
	return Reference{Workspace: ws, Object: obj, Version: ver}, nil
}

// String returns the "ws/obj/ver" form of the reference.
func (r Reference) String() string {
	return fmt.Sprintf("%d/%d/%d", r.Workspace, r.Object, r.Version)
}

// IsZero returns whether the reference is unset.
func (r Reference) IsZero() bool {
	return r == Reference{}
}

// TypeDef is the decomposed representation of an object type.
type TypeDef struct {
	Name  string
	Major int
	Minor int
}

// ParseTypeDef parses the legacy combined "Module.Type-major.minor" form.
func ParseTypeDef(s string) (TypeDef, error) {
	name, vers, ok := strings.Cut(s, "-")
	if !ok || name == "" {
		return TypeDef{}, ErrInvalidRequest.New("illegal type string %q", s)
	}
	maj, min, ok := strings.Cut(vers, ".")
	if !ok {
		return TypeDef{}, ErrInvalidRequest.New("illegal type string %q", s)
	}
	major, err1 := strconv.Atoi(maj)
	minor, err2 := strconv.Atoi(min)
	if err1 != nil || err2 != nil || major < 0 || minor < 0 {
		return TypeDef{}, ErrInvalidRequest.New("illegal type string %q", s)
	}
	return TypeDef{Name: name, Major: major, Minor: minor}, nil
}

// String returns the legacy combined form, e.g. "Mod.Type-5.1".
func (t TypeDef) String() string {
	return fmt.Sprintf("%s-%d.%d", t.Name, t.Major, t.Minor)
}

// IsZero returns whether the type is unset.
func (t TypeDef) IsZero() bool {
	return t == TypeDef{}
}

// MetaItem is a single metadata key/value pair. Metadata is persisted as an
// ordered list of pairs rather than a document so that keys may contain
// characters the document store forbids in field names.
type MetaItem struct {
	Key   string `bson:"k"`
	Value string `bson:"v"`
}

// Metadata is an ordered set of key/value pairs. Keys are unique.
type Metadata []MetaItem

// MetadataFromMap converts a plain map into Metadata with sorted-insertion
// order left to the caller; map iteration order is not preserved.
func MetadataFromMap(m map[string]string) Metadata {
	meta := make(Metadata, 0, len(m))
	for k, v := range m {
		meta = append(meta, MetaItem{Key: k, Value: v})
	}
	return meta
}

// Map converts the metadata to a plain map.
func (m Metadata) Map() map[string]string {
	ret := make(map[string]string, len(m))
	for _, item := range m {
		ret[item.Key] = item.Value
	}
	return ret
}

// encodedSize returns the size in bytes of the metadata encoded as a JSON
// map, which is the representation the size ceiling is defined against.
func (m Metadata) encodedSize() (int, error) {
	b, err := json.Marshal(m.Map())
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return len(b), nil
}

// CheckSize verifies the metadata is within the allowed size ceiling.
func (m Metadata) CheckSize() error {
	size, err := m.encodedSize()
	if err != nil {
		return err
	}
	if size > MaxMetadataSize {
		return ErrInvalidRequest.New("metadata exceeds maximum of %dB", MaxMetadataSize)
	}
	return nil
}

func metadataEqual(a, b Metadata) bool {
	if len(a) != len(b) {
		return false
	}
	am := a.Map()
	for _, item := range b {
		v, ok := am[item.Key]
		if !ok || v != item.Value {
			return false
		}
	}
	return true
}
