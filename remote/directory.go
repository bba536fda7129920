package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
)

// FetchVersion returns the remote dataset fingerprint: the exact business
// count and the later of the newest business update and the newest rating.
// With a version RPC configured the fingerprint comes from that function.
func (c *Client) FetchVersion(ctx context.Context) (types.DataVersion, error) {
	if c.versionRPC != "" {
		return c.fetchVersionRPC(ctx)
	}

	count, err := c.count(ctx, types.TableBusinesses)
	if err != nil {
		return types.DataVersion{}, errors.Wrap(err, "count businesses")
	}

	lastBusiness, err := c.latest(ctx, types.TableBusinesses, "updated_at")
	if err != nil {
		return types.DataVersion{}, errors.Wrap(err, "latest business update")
	}
	lastRating, err := c.latest(ctx, types.TableRatings, "created_at")
	if err != nil {
		return types.DataVersion{}, errors.Wrap(err, "latest rating")
	}

	// TimestampLayout is fixed-width UTC, so string order is time order
	last := types.Epoch
	for _, ts := range []string{lastBusiness, lastRating} {
		if ts != "" && ts > last {
			last = ts
		}
	}

	return types.DataVersion{BusinessCount: count, LastUpdated: last}, nil
}

type versionRPCResult struct {
	BusinessCount int    `json:"business_count"`
	LastUpdated   string `json:"last_updated"`
	ContentHash   string `json:"content_hash"`
}

func (c *Client) fetchVersionRPC(ctx context.Context) (types.DataVersion, error) {
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/rest/v1/rpc/" + c.versionRPC, body: struct{}{}})
	if err != nil {
		return types.DataVersion{}, errors.Wrapf(err, "version rpc %s", c.versionRPC)
	}
	var out versionRPCResult
	if err := decodeOne(resp, &out); err != nil {
		return types.DataVersion{}, errors.Wrapf(err, "version rpc %s", c.versionRPC)
	}
	last := types.Epoch
	if out.LastUpdated != "" {
		last = types.NormalizeTimestamp(out.LastUpdated)
	}
	return types.DataVersion{
		BusinessCount: out.BusinessCount,
		LastUpdated:   last,
		ContentHash:   out.ContentHash,
	}, nil
}

// count returns the exact row count of table from the Content-Range header
func (c *Client) count(ctx context.Context, table string) (int, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodHead,
		path:   "/rest/v1/" + table,
		query:  url.Values{"select": {"*"}},
		prefer: []string{"count=exact"},
	})
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.header.Get("Content-Range"))
}

// parseContentRange extracts the total from "0-24/3573" or "*/0"
func parseContentRange(h string) (int, error) {
	i := strings.LastIndex(h, "/")
	if i < 0 || i == len(h)-1 {
		return 0, errors.Newf("malformed Content-Range %q", h)
	}
	total := h[i+1:]
	if total == "*" {
		return 0, errors.Newf("Content-Range %q carries no exact count", h)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed Content-Range %q", h)
	}
	return n, nil
}

// latest returns the newest value of column in table, normalised, or "" when
// the table is empty
func (c *Client) latest(ctx context.Context, table, column string) (string, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + table,
		query: url.Values{
			"select": {column},
			"order":  {column + ".desc.nullslast"},
			"limit":  {"1"},
		},
	})
	if err != nil {
		return "", err
	}
	var rows []map[string]*string
	if err := resp.decode(&rows); err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0][column] == nil {
		return "", nil
	}
	return types.NormalizeTimestamp(*rows[0][column]), nil
}

// FetchAll returns every category and business. Businesses come with rating
// aggregates from the aggregate RPC; when that function fails they are read
// from the table directly, without aggregates.
func (c *Client) FetchAll(ctx context.Context) (types.Snapshot, error) {
	categories, err := c.FetchCategories(ctx)
	if err != nil {
		return types.Snapshot{}, err
	}

	businesses, err := c.fetchBusinessesWithRatings(ctx)
	if err != nil {
		c.logger.Warnw("Aggregate RPC failed, fetching businesses without ratings",
			logger.FieldError, err,
		)
		businesses, err = c.fetchBusinessesWithoutRatings(ctx)
		if err != nil {
			return types.Snapshot{}, errors.Wrap(err, "fetch businesses")
		}
	}

	return types.Snapshot{Categories: categories, Businesses: businesses}, nil
}

// FetchCategories returns every category ordered by name
func (c *Client) FetchCategories(ctx context.Context) ([]types.Category, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + types.TableCategories,
		query:  url.Values{"select": {"*"}, "order": {"name.asc"}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetch categories")
	}
	var out []types.Category
	if err := resp.decode(&out); err != nil {
		return nil, errors.Wrap(err, "fetch categories")
	}
	if out == nil {
		out = []types.Category{}
	}
	return out, nil
}

func (c *Client) fetchBusinessesWithRatings(ctx context.Context) ([]types.Business, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + RPCBusinessesWithRatings,
		body:   struct{}{},
	})
	if err != nil {
		return nil, err
	}
	var out []types.Business
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return normalizeBusinesses(out), nil
}

func (c *Client) fetchBusinessesWithoutRatings(ctx context.Context) ([]types.Business, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + types.TableBusinesses,
		query:  url.Values{"select": {"*"}, "order": {"shop_name.asc"}},
	})
	if err != nil {
		return nil, err
	}
	var out []types.Business
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return normalizeBusinesses(out), nil
}

// FetchBusiness returns one business with its current aggregate
func (c *Client) FetchBusiness(ctx context.Context, id string) (types.Business, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + types.TableBusinesses,
		query:  url.Values{"select": {"*"}, "id": {eq(id)}, "limit": {"1"}},
	})
	if err != nil {
		return types.Business{}, errors.Wrapf(err, "fetch business %s", id)
	}
	var out []types.Business
	if err := resp.decode(&out); err != nil {
		return types.Business{}, errors.Wrapf(err, "fetch business %s", id)
	}
	if len(out) == 0 {
		return types.Business{}, errors.NewNotFoundError("business %s", id)
	}
	b := normalizeBusinesses(out)[0]

	agg, err := c.FetchAggregate(ctx, id)
	if err != nil {
		c.logger.Debugw("Aggregate unavailable for business",
			logger.FieldBusinessID, id,
			logger.FieldError, err,
		)
		return b, nil
	}
	b.AvgRating, b.RatingCount = agg.AvgRating, agg.RatingCount
	return b, nil
}

func normalizeBusinesses(in []types.Business) []types.Business {
	if in == nil {
		return []types.Business{}
	}
	for i := range in {
		in[i] = types.NormalizeBusiness(in[i])
	}
	return in
}

// decodeOne accepts either a single object or a one-element array, as
// Postgres functions return either depending on their declared result
func decodeOne(resp *response, v interface{}) error {
	body := bytes.TrimSpace(resp.body)
	if len(body) > 0 && body[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(body, &rows); err != nil {
			return errors.Wrap(err, "failed to decode response")
		}
		if len(rows) == 0 {
			return errors.NewNotFoundError("function returned no rows")
		}
		body = rows[0]
	}
	return (&response{body: body}).decode(v)
}
