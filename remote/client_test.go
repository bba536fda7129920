package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/httpclient"
	jawalatest "github.com/teranos/jawala/internal/testing"
	"github.com/teranos/jawala/internal/util"
)

func seededBackend() *jawalatest.FakeBackend {
	f := jawalatest.NewFakeBackend()
	f.Categories = []types.Category{
		{ID: "tailor", Name: "Tailor", Icon: "🧵"},
		{ID: "grocery", Name: "Grocery", Icon: "🛒"},
	}
	f.Businesses = []types.Business{
		{ID: "b1", Category: "grocery", ShopName: "Sharma Kirana", OwnerName: "Ramesh", ContactNumber: "9876543210",
			Address: util.Ptr("Main Bazaar"), Services: []string{"Atta"}, PaymentOptions: []string{"UPI"},
			CreatedAt: "2026-01-01T00:00:00.000Z", UpdatedAt: "2026-01-05T00:00:00.000Z"},
		{ID: "b2", Category: "tailor", ShopName: "Apna Tailors", OwnerName: "Salim", ContactNumber: "9812345678",
			CreatedAt: "2026-01-02T00:00:00.000Z", UpdatedAt: "2026-01-02T00:00:00.000Z"},
	}
	f.Users = []jawalatest.FakeUser{
		{ID: "u-admin", Email: "admin@example.com", Password: "secret", Admin: true},
		{ID: "u-plain", Email: "plain@example.com", Password: "secret"},
	}
	return f
}

func newTestClient(t *testing.T, url string, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		URL:        url,
		AnonKey:    jawalatest.TestAnonKey,
		Logger:     zaptest.NewLogger(t).Sugar(),
		HTTPClient: httpclient.WrapClient(&http.Client{Timeout: 5 * time.Second}),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	c.retryDelay = time.Millisecond
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{AnonKey: "k"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.NotEmpty(t, errors.GetAllHints(err))

	_, err = NewClient(Config{URL: "https://example.supabase.co"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = NewClient(Config{URL: "ftp://example.com", AnonKey: "k"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = NewClient(Config{URL: "http://127.0.0.1:5432", AnonKey: "k", BlockPrivateIP: true})
	assert.Error(t, err)
}

func TestRealtimeURL(t *testing.T) {
	c, err := NewClient(Config{URL: "https://abc.supabase.co/", AnonKey: "key 1"})
	require.NoError(t, err)
	assert.Equal(t, "wss://abc.supabase.co/realtime/v1/websocket?apikey=key+1&vsn=1.0.0", c.RealtimeURL())

	c, err = NewClient(Config{URL: "http://localhost:54321", AnonKey: "k"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.RealtimeURL(), "ws://localhost:54321/realtime/v1/websocket?"))
}

func TestFetchVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("empty tables", func(t *testing.T) {
		srv := jawalatest.NewFakeBackend().Server(t)
		v, err := newTestClient(t, srv.URL).FetchVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, v.BusinessCount)
		assert.Equal(t, types.Epoch, v.LastUpdated)
	})

	t.Run("business update is latest", func(t *testing.T) {
		srv := seededBackend().Server(t)
		v, err := newTestClient(t, srv.URL).FetchVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, v.BusinessCount)
		assert.Equal(t, "2026-01-05T00:00:00.000Z", v.LastUpdated)
	})

	t.Run("rating is latest", func(t *testing.T) {
		f := seededBackend()
		f.Ratings = []jawalatest.FakeRating{{BusinessID: "b1", DeviceID: "d", Rating: 4, CreatedAt: "2026-02-01T12:00:00.000Z"}}
		v, err := newTestClient(t, f.Server(t).URL).FetchVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2026-02-01T12:00:00.000Z", v.LastUpdated)
	})

	t.Run("backend down", func(t *testing.T) {
		f := seededBackend()
		f.FailAll = true
		_, err := newTestClient(t, f.Server(t).URL).FetchVersion(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
	})
}

func TestFetchVersionRPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/get_data_version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"business_count": 7, "last_updated": "2026-03-01T10:00:00.123456+00:00", "content_hash": "abc"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.VersionRPC = "get_data_version" })
	v, err := c.FetchVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v.BusinessCount)
	assert.Equal(t, "2026-03-01T10:00:00.123Z", v.LastUpdated)
	assert.Equal(t, "abc", v.ContentHash)
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0-24/3573", 3573, false},
		{"*/0", 0, false},
		{"0-0/*", 0, true},
		{"", 0, true},
		{"0-1/x", 0, true},
	}
	for _, tt := range tests {
		got, err := parseContentRange(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFetchAll(t *testing.T) {
	ctx := context.Background()
	f := seededBackend()
	f.Ratings = []jawalatest.FakeRating{
		{BusinessID: "b1", DeviceID: "d1", Rating: 4, CreatedAt: "2026-01-06T00:00:00.000Z"},
		{BusinessID: "b1", DeviceID: "d2", Rating: 5, CreatedAt: "2026-01-07T00:00:00.000Z"},
	}
	srv := f.Server(t)
	c := newTestClient(t, srv.URL)

	snap, err := c.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Categories, 2)
	assert.Equal(t, "grocery", snap.Categories[0].ID, "ordered by name")

	require.Len(t, snap.Businesses, 2)
	byID := map[string]types.Business{}
	for _, b := range snap.Businesses {
		byID[b.ID] = b
	}
	assert.Equal(t, 4.5, byID["b1"].AvgRating)
	assert.Equal(t, 2, byID["b1"].RatingCount)
	assert.Equal(t, []string{}, byID["b2"].Services, "missing lists become empty")
	assert.Equal(t, []string{}, byID["b2"].PaymentOptions)
}

func TestFetchAllFallsBackWithoutAggregates(t *testing.T) {
	f := seededBackend()
	f.FailAggregateRPC = true
	f.Ratings = []jawalatest.FakeRating{{BusinessID: "b1", DeviceID: "d1", Rating: 4, CreatedAt: "2026-01-06T00:00:00.000Z"}}
	c := newTestClient(t, f.Server(t).URL)

	snap, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Businesses, 2)
	assert.Equal(t, "Apna Tailors", snap.Businesses[0].ShopName, "table order is shop_name")
	assert.Zero(t, snap.Businesses[1].RatingCount)
	assert.Contains(t, f.Requests(), "GET /rest/v1/businesses")
}

func TestSubmitRating(t *testing.T) {
	ctx := context.Background()
	f := seededBackend()
	c := newTestClient(t, f.Server(t).URL)

	agg, err := c.SubmitRating(ctx, types.RatingInput{BusinessID: "b1", Rating: 4, DeviceID: "dev-1", UserName: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, types.Aggregate{BusinessID: "b1", AvgRating: 4, RatingCount: 1}, agg)

	t.Run("second insert from device is a duplicate", func(t *testing.T) {
		_, err := c.SubmitRating(ctx, types.RatingInput{BusinessID: "b1", Rating: 2, DeviceID: "dev-1"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrDuplicateRating))
		assert.True(t, errors.Is(err, errors.ErrConflict))
		assert.Equal(t, DuplicateRatingHint, errors.UserMessage(err))
		assert.Len(t, f.Ratings, 1, "at most one rating per device")
	})

	t.Run("edit updates in place", func(t *testing.T) {
		agg, err := c.SubmitRating(ctx, types.RatingInput{BusinessID: "b1", Rating: 2, DeviceID: "dev-1", Edit: true})
		require.NoError(t, err)
		assert.Equal(t, 2.0, agg.AvgRating)
		assert.Equal(t, 1, agg.RatingCount)
	})

	t.Run("edit without existing row", func(t *testing.T) {
		_, err := c.SubmitRating(ctx, types.RatingInput{BusinessID: "b2", Rating: 3, DeviceID: "dev-1", Edit: true})
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := c.SubmitRating(ctx, types.RatingInput{BusinessID: "b1", Rating: 6, DeviceID: "dev-1"})
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})
}

func TestDeviceRating(t *testing.T) {
	ctx := context.Background()
	f := seededBackend()
	f.Ratings = []jawalatest.FakeRating{{BusinessID: "b1", DeviceID: "dev-1", Rating: 3}}
	c := newTestClient(t, f.Server(t).URL)

	score, found, err := c.DeviceRating(ctx, "b1", "dev-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, score)

	rated, err := c.CheckDeviceRated(ctx, "b1", "dev-2")
	require.NoError(t, err)
	assert.False(t, rated)
}

func TestFetchAggregateNoRatings(t *testing.T) {
	c := newTestClient(t, seededBackend().Server(t).URL)
	agg, err := c.FetchAggregate(context.Background(), "b2")
	require.NoError(t, err)
	assert.Equal(t, types.Aggregate{BusinessID: "b2"}, agg)
}

func TestFetchBusiness(t *testing.T) {
	ctx := context.Background()
	f := seededBackend()
	f.Ratings = []jawalatest.FakeRating{{BusinessID: "b1", DeviceID: "dev-1", Rating: 5}}
	c := newTestClient(t, f.Server(t).URL)

	b, err := c.FetchBusiness(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Sharma Kirana", b.ShopName)
	assert.Equal(t, 1, b.RatingCount)

	_, err = c.FetchBusiness(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRetriesTransientReads(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	cats, err := c.FetchCategories(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cats)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.SubmitRating(context.Background(), types.RatingInput{BusinessID: "b1", Rating: 4, DeviceID: "d"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := seededBackend().Server(t)
	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RequestsPerSecond = 0.001
		cfg.Burst = 1
	})

	_, err := c.FetchCategories(context.Background())
	require.NoError(t, err, "burst allows the first request")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.FetchCategories(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
}

func TestStatusErrorMapping(t *testing.T) {
	req := request{method: http.MethodGet, path: "/rest/v1/x"}
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{409, `{}`, errors.ErrConflict},
		{400, `{"code":"23505","message":"dup"}`, errors.ErrConflict},
		{403, `{}`, errors.ErrForbidden},
		{401, `{"message":"JWT expired"}`, errors.ErrUnauthorized},
		{404, ``, errors.ErrNotFound},
		{504, ``, errors.ErrTimeout},
		{429, ``, errors.ErrServiceUnavailable},
		{500, `not json`, errors.ErrServiceUnavailable},
		{422, `{}`, errors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		err := statusError(req, tt.status, []byte(tt.body))
		assert.True(t, errors.Is(err, tt.want), "status %d body %s: %v", tt.status, tt.body, err)
	}
}
