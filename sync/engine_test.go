package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/jawala/cache"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	jawalatest "github.com/teranos/jawala/internal/testing"
)

// fakeBackend counts calls so tests can assert the full fetch was skipped
type fakeBackend struct {
	snap         types.Snapshot
	version      types.DataVersion
	versionErr   error
	fetchErr     error
	versionCalls int
	fetchCalls   int
}

func (f *fakeBackend) FetchVersion(ctx context.Context) (types.DataVersion, error) {
	f.versionCalls++
	return f.version, f.versionErr
}

func (f *fakeBackend) FetchAll(ctx context.Context) (types.Snapshot, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return types.Snapshot{}, f.fetchErr
	}
	return f.snap, nil
}

func newBackend(businesses ...types.Business) *fakeBackend {
	return &fakeBackend{
		snap: types.Snapshot{
			Categories: []types.Category{{ID: "grocery", Name: "Grocery", Icon: "🛒"}},
			Businesses: businesses,
		},
		version: types.DataVersion{BusinessCount: len(businesses), LastUpdated: "2026-03-01T10:00:00.000Z"},
	}
}

func business(id, name string) types.Business {
	return types.Business{
		ID:             id,
		Category:       "grocery",
		ShopName:       name,
		OwnerName:      "Owner " + id,
		ContactNumber:  "9876543210",
		Services:       []string{},
		PaymentOptions: []string{},
	}
}

func newTestEngine(t *testing.T) (*Engine, *cache.Store) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	store := cache.New(jawalatest.CreateTestDB(t), log)
	return NewEngine(store, log), store
}

func TestSmartSync_FirstRun(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	backend := newBackend(business("b1", "Alpha"), business("b2", "Beta"))

	res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)

	assert.Equal(t, ActionFullSync, res.Action)
	assert.False(t, res.FromCache)
	assert.NoError(t, res.Err)
	assert.Len(t, res.Businesses, 2)
	assert.Equal(t, 1, backend.fetchCalls)

	v, ok := store.VersionMetadata(ctx)
	require.True(t, ok)
	assert.True(t, v.Matches(backend.version))
	assert.False(t, v.LastSync.IsZero())
	assert.Len(t, store.Get(ctx).Businesses, 2)
}

func TestSmartSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	backend := newBackend(business("b1", "Alpha"))

	first := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	require.Equal(t, ActionFullSync, first.Action)

	second := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	assert.Equal(t, ActionNoChange, second.Action)
	assert.True(t, second.FromCache)
	assert.NoError(t, second.Err)
	assert.Equal(t, first.Businesses, second.Businesses)
	assert.Equal(t, first.Categories, second.Categories)
	assert.Equal(t, 1, backend.fetchCalls, "unchanged fingerprint skips the full fetch")
	assert.Equal(t, 2, backend.versionCalls)
}

func TestSmartSync_ConvergesUnderStaleness(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	backend := newBackend(business("b1", "Alpha"))

	engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)

	tests := []struct {
		name   string
		mutate func(*fakeBackend)
	}{
		{"business added", func(f *fakeBackend) {
			f.snap.Businesses = append(f.snap.Businesses, business("b2", "Beta"))
			f.version.BusinessCount = 2
			f.version.LastUpdated = "2026-03-02T10:00:00.000Z"
		}},
		{"business edited", func(f *fakeBackend) {
			f.snap.Businesses[0].ShopName = "Alpha Stores"
			f.version.LastUpdated = "2026-03-03T10:00:00.000Z"
		}},
		{"rating added", func(f *fakeBackend) {
			f.snap.Businesses[0].AvgRating = 5
			f.snap.Businesses[0].RatingCount = 1
			f.version.LastUpdated = "2026-03-04T10:00:00.000Z"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mutate(backend)
			res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
			assert.Equal(t, ActionFullSync, res.Action)
			assert.Equal(t, backend.snap.Businesses, store.Get(ctx).Businesses)

			again := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
			assert.Equal(t, ActionNoChange, again.Action)
		})
	}
}

func TestSmartSync_ContentHashCatchesSilentEdit(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	backend := newBackend(business("b1", "Alpha"))
	backend.version.ContentHash = SnapshotHash(backend.snap.Businesses)

	engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)

	// Count and timestamp unchanged, content differs
	backend.snap.Businesses[0].OwnerName = "New Owner"
	backend.version.ContentHash = SnapshotHash(backend.snap.Businesses)

	res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	assert.Equal(t, ActionFullSync, res.Action)
	assert.Equal(t, "New Owner", store.Get(ctx).Businesses[0].OwnerName)
}

func TestSmartSync_VersionFailureServesCache(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	backend := newBackend(business("b1", "Alpha"))
	engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)

	backend.versionErr = errors.Wrap(errors.ErrServiceUnavailable, "dial tcp")
	res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)

	assert.Equal(t, ActionNoChange, res.Action)
	assert.True(t, res.FromCache)
	assert.Len(t, res.Businesses, 1)
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, errors.ErrServiceUnavailable))
	assert.Equal(t, 1, backend.fetchCalls)
}

func TestSmartSync_FetchFailureServesCache(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	backend := newBackend(business("b1", "Alpha"))
	engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	before, _ := store.VersionMetadata(ctx)

	backend.version.BusinessCount = 5
	backend.fetchErr = errors.New("connection reset")
	res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)

	assert.Equal(t, ActionNoChange, res.Action)
	assert.True(t, res.FromCache)
	assert.Len(t, res.Businesses, 1)
	assert.Error(t, res.Err)

	after, _ := store.VersionMetadata(ctx)
	assert.Equal(t, before.BusinessCount, after.BusinessCount, "fingerprint untouched by failed fetch")
}

func TestSmartSync_CancelledContextServesCache(t *testing.T) {
	engine, _ := newTestEngine(t)
	backend := newBackend(business("b1", "Alpha"), business("b2", "Beta"))
	require.Equal(t, ActionFullSync, engine.SmartSync(context.Background(), backend.FetchVersion, backend.FetchAll).Action)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend.versionErr = ctx.Err()

	res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	assert.Equal(t, ActionNoChange, res.Action)
	assert.True(t, res.FromCache)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Len(t, res.Businesses, 2)
	assert.Len(t, res.Categories, 1)

	// a deadline that expires during the full fetch falls back the same way
	backend.versionErr = nil
	backend.version.BusinessCount = 3
	backend.fetchErr = context.DeadlineExceeded
	dctx, dcancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer dcancel()
	res = engine.SmartSync(dctx, backend.FetchVersion, backend.FetchAll)
	assert.True(t, res.FromCache)
	assert.Len(t, res.Businesses, 2)
}

func TestSmartSync_OfflineFirstRunIsEmpty(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	backend := newBackend()
	backend.versionErr = errors.New("no network")

	res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	assert.True(t, res.FromCache)
	assert.Empty(t, res.Businesses)
	assert.Empty(t, res.Categories)
	assert.Error(t, res.Err)
}

func TestSmartSync_MatchingFingerprintWithEmptyCache(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	backend := newBackend(business("b1", "Alpha"))

	// Fingerprint survived but rows did not
	require.NoError(t, store.SetVersionMetadata(ctx, backend.version))

	res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	assert.Equal(t, ActionFullSync, res.Action)
	assert.Len(t, store.Get(ctx).Businesses, 1)
}

func TestSmartSync_StorageDisabled(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()
	engine := NewEngine(cache.Disabled(log), log)
	backend := newBackend(business("b1", "Alpha"))

	res := engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	assert.Equal(t, ActionFullSync, res.Action)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Businesses, 1, "fetched data is still served")
	assert.True(t, errors.Is(res.Err, errors.ErrStorageUnavailable))

	// Every call refetches since nothing persists
	engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)
	assert.Equal(t, 2, backend.fetchCalls)
}

func TestSmartSync_LastSyncFromClock(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	fixed := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }
	backend := newBackend(business("b1", "Alpha"))

	engine.SmartSync(ctx, backend.FetchVersion, backend.FetchAll)

	v, ok := store.VersionMetadata(ctx)
	require.True(t, ok)
	assert.True(t, fixed.Equal(v.LastSync))
}
