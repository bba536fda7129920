// Package cache is the durable local copy of the directory.
//
// The store keeps the last-known snapshot (categories and businesses), the
// dataset fingerprint it was populated from, and small device-local values
// (device id, rated businesses) in one SQLite file. When the file cannot be
// opened the store runs disabled: reads behave as a cache miss and writes
// return errors marked ErrStorageUnavailable. Nothing in here panics on I/O.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/teranos/jawala/db"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
)

// Metadata keys
const (
	keyDataVersion   = "data_version"
	keySchemaVersion = "cache_schema_version"

	// LocalNamespace prefixes device-local values stored through Meta/SetMeta
	LocalNamespace = "jawala."
)

// Store is the local cache. The zero value is not usable; use Open, New or Disabled.
type Store struct {
	db     *sqlx.DB
	logger *zap.SugaredLogger

	// mu serialises the mutation entry points (ReplaceAll, ApplyChange, metadata writes)
	mu  sync.Mutex
	now func() time.Time
}

// Open opens (creating if needed) the cache at path, applies migrations and
// checks schema compatibility. On failure it returns a disabled store together
// with the cause, so callers can log and carry on.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	conn, err := db.OpenWithMigrations(path, logger)
	if err != nil {
		return Disabled(logger), errors.Mark(errors.Wrapf(err, "open cache %s", path), errors.ErrStorageUnavailable)
	}

	s := New(conn, logger)
	if err := s.ensureSchema(context.Background()); err != nil {
		conn.Close()
		return Disabled(logger), errors.Mark(err, errors.ErrStorageUnavailable)
	}
	return s, nil
}

// New wraps an already migrated database
func New(conn *sql.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		db:     sqlx.NewDb(conn, "sqlite3"),
		logger: logger,
		now:    time.Now,
	}
}

// Disabled returns a store with no backing database
func Disabled(logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{logger: logger, now: time.Now}
}

// Available reports whether the store has a backing database
func (s *Store) Available() bool {
	return s.db != nil
}

// Close releases the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func unavailable(op string) error {
	return errors.Wrapf(errors.ErrStorageUnavailable, "%s", op)
}

func storageErr(err error, op string) error {
	return errors.Mark(errors.Wrap(err, op), errors.ErrStorageUnavailable)
}

// Get returns the last-known snapshot. It never fails: when the store is
// disabled or a read errors, the result is empty.
func (s *Store) Get(ctx context.Context) types.Snapshot {
	if s.db == nil {
		return types.Snapshot{}
	}

	// One read transaction so a concurrent ReplaceAll is seen entirely or not at all
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Warnw("Cache read failed, treating as miss", "error", err)
		return types.Snapshot{}
	}
	defer tx.Rollback()

	var cats []categoryRow
	if err := tx.SelectContext(ctx, &cats, selectCategories); err != nil {
		s.logger.Warnw("Cache read failed, treating as miss", "table", types.TableCategories, "error", err)
		return types.Snapshot{}
	}

	var rows []businessRow
	if err := tx.SelectContext(ctx, &rows, selectBusinesses); err != nil {
		s.logger.Warnw("Cache read failed, treating as miss", "table", types.TableBusinesses, "error", err)
		return types.Snapshot{}
	}

	snap := types.Snapshot{
		Categories: make([]types.Category, 0, len(cats)),
		Businesses: make([]types.Business, 0, len(rows)),
	}
	for _, c := range cats {
		snap.Categories = append(snap.Categories, c.toCategory())
	}
	for _, r := range rows {
		b, err := r.toBusiness()
		if err != nil {
			s.logger.Warnw("Skipping unreadable cached business", "business_id", r.ID, "error", err)
			continue
		}
		snap.Businesses = append(snap.Businesses, b)
	}
	return snap
}

// ReplaceAll atomically replaces both tables. Every business row gets the same synced_at.
func (s *Store) ReplaceAll(ctx context.Context, categories []types.Category, businesses []types.Business) error {
	if s.db == nil {
		return unavailable("replace cached snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	syncedAt := s.now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(err, "begin replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM categories"); err != nil {
		return storageErr(err, "clear categories")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM businesses"); err != nil {
		return storageErr(err, "clear businesses")
	}

	for _, c := range categories {
		row := fromCategory(c, syncedAt)
		if _, err := tx.NamedExecContext(ctx, insertCategory, row); err != nil {
			return storageErr(err, "insert category "+c.ID)
		}
	}
	for _, b := range businesses {
		row, err := fromBusiness(b, syncedAt)
		if err != nil {
			return errors.Wrapf(err, "encode business %s", b.ID)
		}
		if _, err := tx.NamedExecContext(ctx, upsertBusiness, row); err != nil {
			return storageErr(err, "insert business "+b.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr(err, "commit replace")
	}

	s.logger.Debugw("Cache replaced", "categories", len(categories), "businesses", len(businesses))
	return nil
}

// ApplyChange applies one business row change. Rating events are not cached
// and are rejected here.
func (s *Store) ApplyChange(ctx context.Context, ev types.ChangeEvent) error {
	if ev.Table != types.TableBusinesses {
		return errors.NewInvalidRequestError("cache only stores %s changes, got %q", types.TableBusinesses, ev.Table)
	}
	if s.db == nil {
		return unavailable("apply cached change")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case types.ChangeInsert, types.ChangeUpdate:
		if ev.Business == nil || ev.Business.ID == "" {
			return errors.NewInvalidRequestError("%s change without a business record", ev.Type)
		}
		row, err := fromBusiness(*ev.Business, s.now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return errors.Wrapf(err, "encode business %s", ev.Business.ID)
		}
		if _, err := s.db.NamedExecContext(ctx, upsertBusiness, row); err != nil {
			return storageErr(err, "upsert business "+ev.Business.ID)
		}
	case types.ChangeDelete:
		if ev.ID == "" {
			return errors.NewInvalidRequestError("DELETE change without an id")
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM businesses WHERE id = ?", ev.ID); err != nil {
			return storageErr(err, "delete business "+ev.ID)
		}
	default:
		return errors.NewInvalidRequestError("unknown change type %q", ev.Type)
	}
	return nil
}

// VersionMetadata returns the fingerprint stored by the last full sync
func (s *Store) VersionMetadata(ctx context.Context) (types.DataVersion, bool) {
	raw, ok := s.readMeta(ctx, keyDataVersion)
	if !ok {
		return types.DataVersion{}, false
	}
	var v types.DataVersion
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Warnw("Discarding unreadable data version", "error", err)
		return types.DataVersion{}, false
	}
	return v, true
}

// SetVersionMetadata stores the dataset fingerprint
func (s *Store) SetVersionMetadata(ctx context.Context, v types.DataVersion) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode data version")
	}
	return s.writeMeta(ctx, keyDataVersion, string(raw))
}

// Meta reads a device-local value stored under LocalNamespace
func (s *Store) Meta(ctx context.Context, key string) (string, bool) {
	return s.readMeta(ctx, LocalNamespace+key)
}

// SetMeta writes a device-local value under LocalNamespace
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.writeMeta(ctx, LocalNamespace+key, value)
}

func (s *Store) readMeta(ctx context.Context, key string) (string, bool) {
	if s.db == nil {
		return "", false
	}
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM metadata WHERE key = ?", key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warnw("Metadata read failed", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

func (s *Store) writeMeta(ctx context.Context, key, value string) error {
	if s.db == nil {
		return unavailable("write metadata " + key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storageErr(err, "write metadata "+key)
	}
	return nil
}

// Stats summarises the cache contents
type Stats struct {
	Path          string
	Available     bool
	Categories    int
	Businesses    int
	LastSyncedAt  string
	SchemaVersion string
	Version       types.DataVersion
	HasVersion    bool
}

// Stats reports row counts and sync bookkeeping
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Available: s.db != nil}
	if s.db == nil {
		return st, nil
	}
	if err := s.db.GetContext(ctx, &st.Categories, "SELECT COUNT(*) FROM categories"); err != nil {
		return st, storageErr(err, "count categories")
	}
	if err := s.db.GetContext(ctx, &st.Businesses, "SELECT COUNT(*) FROM businesses"); err != nil {
		return st, storageErr(err, "count businesses")
	}
	var last sql.NullString
	if err := s.db.GetContext(ctx, &last, "SELECT MAX(synced_at) FROM businesses"); err != nil {
		return st, storageErr(err, "read synced_at")
	}
	st.LastSyncedAt = last.String
	st.SchemaVersion, _ = s.readMeta(ctx, keySchemaVersion)
	st.Version, st.HasVersion = s.VersionMetadata(ctx)
	return st, nil
}
