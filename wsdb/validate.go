// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"fmt"
)

// ValidatedObject is the output of the typed-object validator and the data
// half of a save request. The payload has already been checksummed, sized
// and key-sorted; this engine never re-validates it.
type ValidatedObject struct {
	Type     TypeDef
	Checksum string
	Size     int64
	Payload  []byte

	// ExtractedIDs maps an id type to the remapped ids the validator
	// pulled out of the payload.
	ExtractedIDs map[string][]string
}

// Validator validates a payload against a registered type and produces the
// checksummed, sorted form plus the references embedded in it. The
// implementation is external; the engine only consumes its output.
type Validator interface {
	Validate(ctx context.Context, payload []byte, typeID TypeDef) (ValidatedObject, []Reference, error)
}

// SubsetExtractor extracts the sub-document named by a path expression from
// a full payload. Used by object retrieval when the caller asks for part of
// an object.
type SubsetExtractor interface {
	Extract(payload []byte, path string) ([]byte, error)
}

// SaveObject is one pre-validated save request. The target is named by
// Object: a numeric id must refer to an existing object, a name may refer to
// an existing object or create a new one. Object.Version must be zero.
type SaveObject struct {
	Object ObjectIdentifier
	Data   ValidatedObject

	// Provenance is the serialized provenance document. Stored in its own
	// collection and referenced from the version record.
	Provenance []byte

	Meta   Metadata
	Hidden bool

	// Refs and ProvRefs are the resolved references extracted from the
	// payload and from the provenance. They are kept separate because
	// provenance references are reported per provenance action.
	Refs     []Reference
	ProvRefs []Reference
}

// objectErrorID renders the identifier of the n-th object of a save batch
// for error messages, counting from 1.
func objectErrorID(oi ObjectIdentifier, n int) string {
	return fmt.Sprintf("#%d, %s", n, oi.identifierString())
}

// Verify checks a save request before the pipeline touches the store.
func (o SaveObject) Verify(n int) error {
	if err := o.Object.Verify(); err != nil {
		return err
	}
	if o.Object.Version != 0 {
		return ErrInvalidRequest.New(
			"Object %s: save requests cannot specify a version", objectErrorID(o.Object, n))
	}
	if o.Data.Checksum == "" {
		return ErrInvalidRequest.New(
			"Object %s: save requests require a checksummed payload", objectErrorID(o.Object, n))
	}
	if _, err := ParseTypeDef(o.Data.Type.String()); err != nil {
		return ErrInvalidRequest.New(
			"Object %s: invalid type %q", objectErrorID(o.Object, n), o.Data.Type.String())
	}
	if len(o.Provenance) > MaxProvenanceSize {
		return ErrInvalidRequest.New(
			"Object %s provenance size %d exceeds limit of %d",
			objectErrorID(o.Object, n), len(o.Provenance), MaxProvenanceSize)
	}
	if err := o.Meta.CheckSize(); err != nil {
		return ErrInvalidRequest.New(
			"Object %s: The user-provided metadata exceeds the allowed maximum of %dB",
			objectErrorID(o.Object, n), MaxMetadataSize)
	}
	return nil
}
