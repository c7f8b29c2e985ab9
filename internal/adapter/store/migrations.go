package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current collection file schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

var keySchemaVersion = []byte("schema_version")

// SchemaInfo stores the schema version of a collection file.
type SchemaInfo struct {
	Version int `json:"version"`
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	Unsupported    bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// schemaInfo retrieves the schema info of the collection file.
func (c *collectionDB) schemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}

		versionData := b.Get(keySchemaVersion)
		if versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		}
		return nil
	})
	return &info, err
}

// checkMigration reports whether the file needs migrating before use.
func (c *collectionDB) checkMigration() (*MigrationResult, error) {
	info, err := c.schemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.Unsupported = true
		result.Reason = fmt.Sprintf("collection created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	}

	return result, nil
}

// migrate brings the file to CurrentSchemaVersion.
func (c *collectionDB) migrate() (*MigrationResult, error) {
	result, err := c.checkMigration()
	if err != nil {
		return nil, err
	}
	if result.Unsupported {
		return result, fmt.Errorf("%s", result.Reason)
	}
	if !result.NeedsMigration {
		return result, nil
	}

	return result, c.db.Update(func(tx *bbolt.Tx) error {
		for v := result.OldVersion; v < CurrentSchemaVersion; v++ {
			if err := runMigration(tx, v, v+1); err != nil {
				return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
			}
		}

		versionData, err := json.Marshal(CurrentSchemaVersion)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, versionData)
	})
}

// runMigration runs a specific version migration.
func runMigration(tx *bbolt.Tx, from, to int) error {
	switch {
	case from == 0 && to == 1:
		// Fresh file; buckets are created on open.
		return nil
	case from == 1 && to == 2:
		// v1 stored records without a dimension key; infer it from the first vector.
		meta := tx.Bucket(bucketMeta)
		if meta.Get(keyDimension) != nil {
			return nil
		}
		vectors := tx.Bucket(bucketVectors)
		if vectors == nil {
			return nil
		}
		_, v := vectors.Cursor().First()
		if v == nil {
			return nil
		}
		return writeDimension(tx, len(v)/4)
	default:
		return nil
	}
}
