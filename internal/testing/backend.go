package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teranos/jawala/directory/types"
)

// TestAnonKey is the API key the fake backend accepts
const TestAnonKey = "test-anon-key"

// FakeRating is one stored rating row
type FakeRating struct {
	BusinessID string `json:"business_id"`
	DeviceID   string `json:"device_id"`
	Rating     int    `json:"rating"`
	UserName   string `json:"user_name,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// FakeUser is an account the fake auth endpoint accepts
type FakeUser struct {
	ID       string
	Email    string
	Password string
	Admin    bool
}

// FakeBackend is an in-memory stand-in for the hosted backend's REST, RPC and
// auth endpoints. Fields may be set directly before serving; use Lock/Unlock
// when mutating while requests are in flight.
type FakeBackend struct {
	mu sync.Mutex

	Categories []types.Category
	Businesses []types.Business // aggregates are computed from Ratings
	Ratings    []FakeRating
	Users      []FakeUser

	// FailAggregateRPC makes get_businesses_with_ratings answer 404
	FailAggregateRPC bool
	// FailAll makes every endpoint answer 503
	FailAll bool
	// OnChange is called after each successful write
	OnChange func(types.ChangeEvent)

	requests []string
	clock    time.Time
}

// NewFakeBackend returns an empty backend whose clock starts at 2026-01-01
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Server starts an httptest server closed on test cleanup
func (f *FakeBackend) Server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

// Lock guards direct field access while serving
func (f *FakeBackend) Lock() { f.mu.Lock() }

// Unlock releases Lock
func (f *FakeBackend) Unlock() { f.mu.Unlock() }

// Requests returns "METHOD /path" for every request served so far
func (f *FakeBackend) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// Tick advances the clock by one second and returns it formatted
func (f *FakeBackend) Tick() string {
	f.clock = f.clock.Add(time.Second)
	return types.FormatTimestamp(f.clock)
}

// Aggregate computes the rating summary of a business
func (f *FakeBackend) Aggregate(id string) types.Aggregate {
	agg := types.Aggregate{BusinessID: id}
	sum := 0
	for _, r := range f.Ratings {
		if r.BusinessID == id {
			sum += r.Rating
			agg.RatingCount++
		}
	}
	if agg.RatingCount > 0 {
		agg.AvgRating = float64(sum) / float64(agg.RatingCount)
	}
	return agg
}

func (f *FakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if f.FailAll {
		writeError(w, http.StatusServiceUnavailable, "", "backend unavailable")
		return
	}
	if r.Header.Get("apikey") != TestAnonKey {
		writeError(w, http.StatusUnauthorized, "", "invalid api key")
		return
	}

	body, _ := io.ReadAll(r.Body)
	q := r.URL.Query()
	user := f.bearerUser(r)

	switch {
	case r.URL.Path == "/auth/v1/token":
		f.signIn(w, body)

	case r.URL.Path == "/rest/v1/categories" && r.Method == http.MethodGet:
		cats := append([]types.Category(nil), f.Categories...)
		sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
		writeJSON(w, http.StatusOK, nonNil(cats))

	case r.URL.Path == "/rest/v1/businesses":
		f.businesses(w, r, q, body, user)

	case r.URL.Path == "/rest/v1/business_ratings":
		f.ratings(w, r, q, body)

	case r.URL.Path == "/rest/v1/admin_profiles" && r.Method == http.MethodGet:
		id := strings.TrimPrefix(q.Get("id"), "eq.")
		rows := []map[string]string{}
		if user != nil && user.ID == id && user.Admin {
			rows = append(rows, map[string]string{"id": id})
		}
		writeJSON(w, http.StatusOK, rows)

	case r.URL.Path == "/rest/v1/rpc/get_businesses_with_ratings":
		if f.FailAggregateRPC {
			writeError(w, http.StatusNotFound, "PGRST202", "function not found")
			return
		}
		out := make([]types.Business, 0, len(f.Businesses))
		for _, b := range f.Businesses {
			out = append(out, f.withAggregate(b))
		}
		writeJSON(w, http.StatusOK, out)

	case r.URL.Path == "/rest/v1/rpc/get_business_rating":
		var args struct {
			ID string `json:"p_business_id"`
		}
		_ = json.Unmarshal(body, &args)
		agg := f.Aggregate(args.ID)
		writeJSON(w, http.StatusOK, []map[string]interface{}{{
			"avg_rating":   agg.AvgRating,
			"rating_count": agg.RatingCount,
		}})

	default:
		writeError(w, http.StatusNotFound, "", fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	}
}

func (f *FakeBackend) withAggregate(b types.Business) types.Business {
	agg := f.Aggregate(b.ID)
	b.AvgRating, b.RatingCount = agg.AvgRating, agg.RatingCount
	return b
}

func (f *FakeBackend) bearerUser(r *http.Request) *FakeUser {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	for i := range f.Users {
		if tok == "token-"+f.Users[i].ID {
			return &f.Users[i]
		}
	}
	return nil
}

func (f *FakeBackend) signIn(w http.ResponseWriter, body []byte) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.Unmarshal(body, &creds)
	for _, u := range f.Users {
		if u.Email == creds.Email && u.Password == creds.Password {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token":  "token-" + u.ID,
				"refresh_token": "refresh-" + u.ID,
				"expires_in":    3600,
				"user":          map[string]string{"id": u.ID, "email": u.Email},
			})
			return
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             "invalid_grant",
		"error_description": "Invalid login credentials",
	})
}

func (f *FakeBackend) businesses(w http.ResponseWriter, r *http.Request, q map[string][]string, body []byte, user *FakeUser) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	id := strings.TrimPrefix(get("id"), "eq.")

	switch r.Method {
	case http.MethodHead:
		n := len(f.Businesses)
		if n == 0 {
			w.Header().Set("Content-Range", "*/0")
		} else {
			w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", n-1, n))
		}
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		if get("select") == "updated_at" {
			latest := ""
			for _, b := range f.Businesses {
				if b.UpdatedAt > latest {
					latest = b.UpdatedAt
				}
			}
			rows := []map[string]string{}
			if latest != "" {
				rows = append(rows, map[string]string{"updated_at": latest})
			}
			writeJSON(w, http.StatusOK, rows)
			return
		}
		out := []types.Business{}
		for _, b := range f.Businesses {
			if id == "" || b.ID == id {
				// the table itself carries no aggregates
				b.AvgRating, b.RatingCount = 0, 0
				out = append(out, b)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ShopName < out[j].ShopName })
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost, http.MethodPatch, http.MethodDelete:
		if user == nil || !user.Admin {
			if r.Method == http.MethodDelete {
				// row-level security hides the row
				writeJSON(w, http.StatusOK, []types.Business{})
				return
			}
			writeError(w, http.StatusForbidden, "42501", "new row violates row-level security policy")
			return
		}
		f.writeBusiness(w, r.Method, id, body)
	}
}

func (f *FakeBackend) writeBusiness(w http.ResponseWriter, method, id string, body []byte) {
	switch method {
	case http.MethodPost:
		var rows []types.Business
		if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 1 {
			writeError(w, http.StatusBadRequest, "PGRST102", "expected one row")
			return
		}
		b := rows[0]
		if b.ID == "" {
			b.ID = fmt.Sprintf("srv-%d", len(f.Businesses)+1)
		}
		b.CreatedAt = f.Tick()
		b.UpdatedAt = b.CreatedAt
		f.Businesses = append(f.Businesses, b)
		f.emit(types.ChangeEvent{Table: types.TableBusinesses, Type: types.ChangeInsert, ID: b.ID, Business: &b, CommitTimestamp: b.UpdatedAt})
		writeJSON(w, http.StatusCreated, []types.Business{b})

	case http.MethodPatch:
		for i := range f.Businesses {
			if f.Businesses[i].ID == id {
				b := f.Businesses[i]
				if err := json.Unmarshal(body, &b); err != nil {
					writeError(w, http.StatusBadRequest, "PGRST102", err.Error())
					return
				}
				b.ID = id
				b.UpdatedAt = f.Tick()
				f.Businesses[i] = b
				f.emit(types.ChangeEvent{Table: types.TableBusinesses, Type: types.ChangeUpdate, ID: id, Business: &b, CommitTimestamp: b.UpdatedAt})
				writeJSON(w, http.StatusOK, []types.Business{b})
				return
			}
		}
		writeJSON(w, http.StatusOK, []types.Business{})

	case http.MethodDelete:
		for i := range f.Businesses {
			if f.Businesses[i].ID == id {
				b := f.Businesses[i]
				f.Businesses = append(f.Businesses[:i], f.Businesses[i+1:]...)
				f.emit(types.ChangeEvent{Table: types.TableBusinesses, Type: types.ChangeDelete, ID: id, CommitTimestamp: f.Tick()})
				writeJSON(w, http.StatusOK, []types.Business{b})
				return
			}
		}
		writeJSON(w, http.StatusOK, []types.Business{})
	}
}

func (f *FakeBackend) ratings(w http.ResponseWriter, r *http.Request, q map[string][]string, body []byte) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	businessID := strings.TrimPrefix(get("business_id"), "eq.")
	deviceID := strings.TrimPrefix(get("device_id"), "eq.")

	switch r.Method {
	case http.MethodGet:
		if get("select") == "created_at" {
			latest := ""
			for _, rt := range f.Ratings {
				if rt.CreatedAt > latest {
					latest = rt.CreatedAt
				}
			}
			rows := []map[string]string{}
			if latest != "" {
				rows = append(rows, map[string]string{"created_at": latest})
			}
			writeJSON(w, http.StatusOK, rows)
			return
		}
		rows := []FakeRating{}
		for _, rt := range f.Ratings {
			if rt.BusinessID == businessID && rt.DeviceID == deviceID {
				rows = append(rows, rt)
			}
		}
		writeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		var rows []FakeRating
		if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 1 {
			writeError(w, http.StatusBadRequest, "PGRST102", "expected one row")
			return
		}
		in := rows[0]
		for _, rt := range f.Ratings {
			if rt.BusinessID == in.BusinessID && rt.DeviceID == in.DeviceID {
				writeError(w, http.StatusConflict, "23505",
					`duplicate key value violates unique constraint "business_ratings_business_id_device_id_key"`)
				return
			}
		}
		in.CreatedAt = f.Tick()
		f.Ratings = append(f.Ratings, in)
		f.emit(types.ChangeEvent{Table: types.TableRatings, Type: types.ChangeInsert, ID: in.BusinessID, CommitTimestamp: in.CreatedAt})
		w.WriteHeader(http.StatusCreated)

	case http.MethodPatch:
		var patch struct {
			Rating   int    `json:"rating"`
			UserName string `json:"user_name"`
		}
		_ = json.Unmarshal(body, &patch)
		rows := []FakeRating{}
		for i := range f.Ratings {
			if f.Ratings[i].BusinessID == businessID && f.Ratings[i].DeviceID == deviceID {
				f.Ratings[i].Rating = patch.Rating
				if patch.UserName != "" {
					f.Ratings[i].UserName = patch.UserName
				}
				rows = append(rows, f.Ratings[i])
				f.emit(types.ChangeEvent{Table: types.TableRatings, Type: types.ChangeUpdate, ID: businessID, CommitTimestamp: f.Tick()})
			}
		}
		writeJSON(w, http.StatusOK, rows)

	default:
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
	}
}

func (f *FakeBackend) emit(ev types.ChangeEvent) {
	if f.OnChange != nil {
		f.OnChange(ev)
	}
}

func nonNil(cats []types.Category) []types.Category {
	if cats == nil {
		return []types.Category{}
	}
	return cats
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "message": msg})
}
