package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
)

// Action is what SmartSync did
type Action string

const (
	ActionNoChange Action = "no_change"
	ActionFullSync Action = "full_sync"
)

// Cache is the part of the local store the engine needs
type Cache interface {
	Get(ctx context.Context) types.Snapshot
	ReplaceAll(ctx context.Context, categories []types.Category, businesses []types.Business) error
	VersionMetadata(ctx context.Context) (types.DataVersion, bool)
	SetVersionMetadata(ctx context.Context, v types.DataVersion) error
}

// VersionFunc returns the remote fingerprint
type VersionFunc func(ctx context.Context) (types.DataVersion, error)

// FetchFunc returns the full remote dataset
type FetchFunc func(ctx context.Context) (types.Snapshot, error)

// Result is the outcome of one SmartSync call. Err records a failure the
// engine recovered from; it is informational and callers should not surface it.
type Result struct {
	Businesses []types.Business
	Categories []types.Category
	FromCache  bool
	Action     Action
	Remote     types.DataVersion
	Err        error
}

// Engine keeps the local cache in step with the backend
type Engine struct {
	store  Cache
	logger *zap.SugaredLogger
	now    func() time.Time

	// mu serialises SmartSync calls from the same process
	mu gosync.Mutex
}

// NewEngine creates an engine over store
func NewEngine(store Cache, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{store: store, logger: log, now: time.Now}
}

// SmartSync returns the directory, fetching the full dataset only when the
// remote fingerprint differs from the one stored with the cache.
//
// Backend failures never fail the call: the cached snapshot (possibly empty)
// is served instead and Result.Err carries the cause.
func (e *Engine) SmartSync(ctx context.Context, fetchVersion VersionFunc, fetchAll FetchFunc) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.now()

	remote, err := fetchVersion(ctx)
	if err != nil {
		e.logger.Warnw("Version check failed, serving cache",
			logger.FieldError, err,
		)
		return e.fromCache(ctx, types.DataVersion{}, errors.Wrap(err, "version check"))
	}

	local, hasLocal := e.store.VersionMetadata(ctx)
	if hasLocal && local.Matches(remote) {
		snap := e.store.Get(ctx)
		if !snap.Empty() {
			e.logger.Debugw("Fingerprint unchanged, serving cache",
				logger.FieldAction, string(ActionNoChange),
				logger.FieldCount, len(snap.Businesses),
				logger.FieldDurationMS, e.now().Sub(start).Milliseconds(),
			)
			return Result{
				Businesses: snap.Businesses,
				Categories: snap.Categories,
				FromCache:  true,
				Action:     ActionNoChange,
				Remote:     remote,
			}
		}
		e.logger.Infow("Fingerprint unchanged but cache is empty, refetching")
	} else if hasLocal {
		e.logger.Infow("Fingerprint changed",
			"local_count", local.BusinessCount,
			"remote_count", remote.BusinessCount,
			"local_updated", local.LastUpdated,
			"remote_updated", remote.LastUpdated,
		)
	} else {
		e.logger.Infow("No local fingerprint, running first sync")
	}

	snap, err := fetchAll(ctx)
	if err != nil {
		e.logger.Warnw("Full fetch failed, serving cache",
			logger.FieldError, err,
		)
		return e.fromCache(ctx, remote, errors.Wrap(err, "full fetch"))
	}

	if remote.ContentHash != "" {
		if local := SnapshotHash(snap.Businesses); local != remote.ContentHash {
			e.logger.Warnw("Fetched dataset does not match remote content hash",
				"remote_hash", remote.ContentHash,
				"local_hash", local,
			)
		}
	}

	result := Result{
		Businesses: snap.Businesses,
		Categories: snap.Categories,
		FromCache:  false,
		Action:     ActionFullSync,
		Remote:     remote,
	}

	if err := e.store.ReplaceAll(ctx, snap.Categories, snap.Businesses); err != nil {
		// The fingerprint must describe what the cache holds, so it is not written
		e.logger.Warnw("Failed to persist fetched dataset",
			logger.FieldError, err,
		)
		result.Err = err
		return result
	}

	stored := remote
	stored.LastSync = e.now().UTC()
	if err := e.store.SetVersionMetadata(ctx, stored); err != nil {
		e.logger.Warnw("Failed to persist data version",
			logger.FieldError, err,
		)
		result.Err = err
	}

	e.logger.Infow("Directory synced",
		logger.FieldAction, string(ActionFullSync),
		logger.FieldCount, len(snap.Businesses),
		"categories", len(snap.Categories),
		logger.FieldDurationMS, e.now().Sub(start).Milliseconds(),
	)
	return result
}

// fromCache serves the cached snapshot. The read ignores cancellation of ctx
// so a cancelled or timed-out sync still returns what the cache holds.
func (e *Engine) fromCache(ctx context.Context, remote types.DataVersion, cause error) Result {
	snap := e.store.Get(context.WithoutCancel(ctx))
	return Result{
		Businesses: snap.Businesses,
		Categories: snap.Categories,
		FromCache:  true,
		Action:     ActionNoChange,
		Remote:     remote,
		Err:        cause,
	}
}
