// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataUpdateApply(t *testing.T) {
	existing := Metadata{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
		{Key: "c", Value: "3"},
	}

	// surviving keys keep stored order, new keys append in update order
	merged := MetadataUpdate{
		Set: Metadata{
			{Key: "d", Value: "4"},
			{Key: "b", Value: "20"},
		},
		Remove: []string{"a"},
	}.apply(existing)
	require.Equal(t, Metadata{
		{Key: "b", Value: "20"},
		{Key: "c", Value: "3"},
		{Key: "d", Value: "4"},
	}, merged)

	// removal wins over a set of the same key
	merged = MetadataUpdate{
		Set:    Metadata{{Key: "a", Value: "9"}},
		Remove: []string{"a"},
	}.apply(existing)
	require.Equal(t, existing[1:], merged)

	// removing an absent key changes nothing
	merged = MetadataUpdate{Remove: []string{"zzz"}}.apply(existing)
	require.Equal(t, existing, merged)
	require.True(t, metadataEqual(existing, merged))
}

func TestMetadataUpdateHasUpdate(t *testing.T) {
	require.False(t, MetadataUpdate{}.HasUpdate())
	require.True(t, MetadataUpdate{Set: Metadata{{Key: "a"}}}.HasUpdate())
	require.True(t, MetadataUpdate{Remove: []string{"a"}}.HasUpdate())
}
