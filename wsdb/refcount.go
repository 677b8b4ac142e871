// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
)

// recordReferences increments the refcount slot of every referenced version,
// once per occurrence. Invoked for every reference discovered in newly saved
// data and re-invoked by copy, clone and revert, since each of those
// materializes a new version whose payload still points at the same targets.
//
// There is no decrement: removal of zero-referenced versions is an external
// garbage collection concern that would consume these counts.
//
// Version numbers and occurrence counts are both heavily skewed towards 1,
// so increments are batched per (version, count) pair to minimize the number
// of store round trips.
func (db *DB) recordReferences(ctx context.Context, refs []Reference) (err error) {
	defer mon.Task()(&ctx)(&err)

	counts := make(map[Reference]int)
	for _, ref := range refs {
		counts[ref]++
	}

	type verCount struct {
		version int
		count   int
	}
	batches := make(map[verCount]map[int64][]int64)
	for ref, count := range counts {
		vc := verCount{version: ref.Version, count: count}
		if batches[vc] == nil {
			batches[vc] = make(map[int64][]int64)
		}
		batches[vc][ref.Workspace] = append(batches[vc][ref.Workspace], ref.Object)
	}

	for vc, targets := range batches {
		if err := db.adapter.IncrementRefcounts(ctx, vc.version, vc.count, targets); err != nil {
			return err
		}
	}
	return nil
}

// versionReferences collects the payload and provenance references of a raw
// version record for re-counting during copy, clone and revert. A target
// appearing in both the payload and the provenance of one version counts
// once for that version.
func versionReferences(ver RawVersion) ([]Reference, error) {
	seen := make(map[Reference]bool, len(ver.Refs)+len(ver.ProvRefs))
	var refs []Reference
	for _, s := range append(append([]string(nil), ver.Refs...), ver.ProvRefs...) {
		ref, err := ParseReference(s)
		if err != nil {
			return nil, ErrCorruptDB.New("invalid reference %q on version %d/%d/%d",
				s, ver.WorkspaceID, ver.ObjectID, ver.Version)
		}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs, nil
}
