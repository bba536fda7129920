package cache

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/jawala/errors"
)

// SchemaVersion describes the layout of cached rows. A cache written under a
// different major version is wiped on open; the next sync repopulates it.
const SchemaVersion = "1.1.0"

// CheckCompatibility reports whether a cache written under stored can be read
// by this build.
func CheckCompatibility(stored string) (bool, error) {
	current, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return false, errors.Wrap(err, "parse current schema version")
	}
	v, err := semver.NewVersion(stored)
	if err != nil {
		return false, errors.Wrapf(err, "parse stored schema version %q", stored)
	}
	constraint, err := semver.NewConstraint(fmt.Sprintf("^%d.0.0", current.Major()))
	if err != nil {
		return false, errors.Wrap(err, "build schema constraint")
	}
	return constraint.Check(v), nil
}

// ensureSchema records SchemaVersion on first use and wipes caches written by
// an incompatible build.
func (s *Store) ensureSchema(ctx context.Context) error {
	stored, ok := s.readMeta(ctx, keySchemaVersion)
	if ok {
		compatible, err := CheckCompatibility(stored)
		if err != nil {
			s.logger.Warnw("Unreadable cache schema version, resetting cache", "stored", stored, "error", err)
		}
		if compatible {
			if stored != SchemaVersion {
				return s.writeMeta(ctx, keySchemaVersion, SchemaVersion)
			}
			return nil
		}
		s.logger.Infow("Cache schema changed, resetting cache", "stored", stored, "current", SchemaVersion)
		if err := s.wipe(ctx); err != nil {
			return err
		}
	}
	return s.writeMeta(ctx, keySchemaVersion, SchemaVersion)
}

// wipe clears the snapshot and its fingerprint; device-local values survive
func (s *Store) wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(err, "begin wipe")
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM categories",
		"DELETE FROM businesses",
		"DELETE FROM metadata WHERE key = '" + keyDataVersion + "'",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storageErr(err, "wipe cache")
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err, "commit wipe")
	}
	s.logger.Debugw("Cache wiped")
	return nil
}
