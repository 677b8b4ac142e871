// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

package wsdb

import (
	"context"
	"sort"
)

// KeyBackendScaling is the dynamic configuration key controlling how many
// simultaneous blob store requests a single object retrieval call may make.
const KeyBackendScaling = "backend-scaling"

const defaultBackendScaling = 1

// DynamicConfig is the runtime-updatable part of the workspace
// configuration, stored in the database so all service instances observe
// updates without a restart.
type DynamicConfig struct {
	// BackendScaling is 0 when the database holds no value for the key.
	BackendScaling int
}

// Map returns the configuration as a key-value map, omitting unset items.
func (c DynamicConfig) Map() map[string]interface{} {
	ret := make(map[string]interface{})
	if c.BackendScaling > 0 {
		ret[KeyBackendScaling] = c.BackendScaling
	}
	return ret
}

// BackendScalingOrDefault returns the backend scaling parameter, falling
// back to the default when no value is set.
func (c DynamicConfig) BackendScalingOrDefault() int {
	if c.BackendScaling > 0 {
		return c.BackendScaling
	}
	return defaultBackendScaling
}

// DynamicConfigFromMap validates a key-value map and converts it to a
// DynamicConfig. Unknown keys and non-positive or non-integer values are
// rejected.
func DynamicConfigFromMap(items map[string]interface{}) (DynamicConfig, error) {
	var cfg DynamicConfig
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		switch key {
		case KeyBackendScaling:
			n, ok := asPositiveInt(items[key])
			if !ok {
				return DynamicConfig{}, ErrInvalidRequest.New(
					"%s must be an integer > 0", key)
			}
			cfg.BackendScaling = n
		default:
			return DynamicConfig{}, ErrInvalidRequest.New(
				"Unexpected key in configuration map: %s", key)
		}
	}
	return cfg, nil
}

// asPositiveInt accepts the integer shapes a bson decode can produce.
func asPositiveInt(v interface{}) (int, bool) {
	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	default:
		return 0, false
	}
	if n < 1 {
		return 0, false
	}
	return int(n), true
}

// DynamicConfigUpdate is an update to the stored dynamic configuration.
// Keys with zero values are left untouched.
type DynamicConfigUpdate struct {
	BackendScaling int
}

// DefaultDynamicConfig returns the update that installs the default
// configuration.
func DefaultDynamicConfig() DynamicConfigUpdate {
	return DynamicConfigUpdate{BackendScaling: defaultBackendScaling}
}

func (u DynamicConfigUpdate) toSet() map[string]interface{} {
	ret := make(map[string]interface{})
	if u.BackendScaling > 0 {
		ret[KeyBackendScaling] = u.BackendScaling
	}
	return ret
}

// toRemove lists keys the update deletes. Nothing is removable yet.
func (u DynamicConfigUpdate) toRemove() []string {
	return nil
}

// SetConfig writes a dynamic configuration update. With overwrite false,
// keys that already have a value keep it; this is how startup installs
// defaults without clobbering operator settings.
func (db *DB) SetConfig(ctx context.Context, update DynamicConfigUpdate, overwrite bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	set := update.toSet()
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := db.adapter.UpsertConfigKey(ctx, key, set[key], overwrite); err != nil {
			return err
		}
	}
	for _, key := range update.toRemove() {
		if err := db.adapter.DeleteConfigKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// GetConfig reads the dynamic configuration from the database.
func (db *DB) GetConfig(ctx context.Context) (_ DynamicConfig, err error) {
	defer mon.Task()(&ctx)(&err)

	items, err := db.adapter.GetConfigItems(ctx)
	if err != nil {
		return DynamicConfig{}, err
	}
	m := make(map[string]interface{}, len(items))
	for _, item := range items {
		m[item.Key] = item.Value
	}
	cfg, err := DynamicConfigFromMap(m)
	if err != nil {
		return DynamicConfig{}, ErrCorruptDB.New(
			"Illegal configuration values found in database")
	}
	return cfg, nil
}
