// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"time"
)

// maxMetaUpdateAttempts bounds the optimistic retry loop for metadata writes.
const maxMetaUpdateAttempts = 5

// MetadataUpdate describes a change to a metadata set: keys to add or
// replace, and keys to remove. Removal wins when a key appears in both.
type MetadataUpdate struct {
	Set    Metadata
	Remove []string
}

// HasUpdate returns whether the update contains any change request.
func (u MetadataUpdate) HasUpdate() bool {
	return len(u.Set) > 0 || len(u.Remove) > 0
}

// apply merges the update into existing metadata. Stored order is kept for
// surviving keys; new keys append in update order.
func (u MetadataUpdate) apply(existing Metadata) Metadata {
	removed := make(map[string]bool, len(u.Remove))
	for _, k := range u.Remove {
		removed[k] = true
	}
	replace := make(map[string]string, len(u.Set))
	for _, item := range u.Set {
		replace[item.Key] = item.Value
	}

	merged := make(Metadata, 0, len(existing)+len(u.Set))
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		if removed[item.Key] {
			continue
		}
		if v, ok := replace[item.Key]; ok {
			item.Value = v
		}
		seen[item.Key] = true
		merged = append(merged, item)
	}
	for _, item := range u.Set {
		if !seen[item.Key] && !removed[item.Key] {
			merged = append(merged, item)
		}
	}
	return merged
}

// metaFetch reads the current metadata of the target document.
type metaFetch func(ctx context.Context) (Metadata, error)

// metaCAS conditionally replaces the metadata of the target document,
// succeeding only if the stored value still equals expected. The timestamp is
// what the implementation should stamp into the document's modification date
// field, if it has one.
type metaCAS func(ctx context.Context, expected, updated Metadata, t time.Time) (bool, error)

// applyMetadataUpdate runs the optimistic read-merge-conditional-write-retry
// protocol. It returns the modification timestamp written, or nil when the
// merge produced no observable change, in which case nothing is written and
// any modification date stays untouched. After maxMetaUpdateAttempts
// consecutive conditional-write failures the update surfaces as a
// communication error with no partial effect.
func (db *DB) applyMetadataUpdate(ctx context.Context, update MetadataUpdate, fetch metaFetch, cas metaCAS) (_ *time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	if !update.HasUpdate() {
		return nil, ErrInvalidRequest.New("No metadata changes provided")
	}
	for attempt := 1; ; attempt++ {
		existing, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		merged := update.apply(existing)
		if metadataEqual(existing, merged) {
			return nil, nil
		}
		size, err := merged.encodedSize()
		if err != nil {
			return nil, err
		}
		if size > MaxMetadataSize {
			return nil, ErrInvalidRequest.New(
				"Updated metadata exceeds allowed size of %dB", MaxMetadataSize)
		}
		t := db.now()
		applied, err := cas(ctx, existing, merged, t)
		if err != nil {
			return nil, err
		}
		if applied {
			return &t, nil
		}
		if attempt >= maxMetaUpdateAttempts {
			return nil, ErrCommunication.New("Failed to update metadata %d times", attempt)
		}
	}
}
