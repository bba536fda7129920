package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
)

// DuplicateRatingHint is the user-facing message for a second rating from one device
const DuplicateRatingHint = "You have already rated this business from this device."

type ratingRow struct {
	BusinessID string  `json:"business_id"`
	Rating     int     `json:"rating"`
	DeviceID   string  `json:"device_id"`
	UserName   *string `json:"user_name,omitempty"`
}

type ratingPatch struct {
	Rating   int     `json:"rating"`
	UserName *string `json:"user_name,omitempty"`
}

// SubmitRating records a rating and returns the recomputed aggregate.
//
// A fresh submission inserts; the unique (business_id, device_id) constraint
// turns a second insert into ErrDuplicateRating. With in.Edit set the
// device's existing row is updated instead, and a missing row is ErrNotFound.
func (c *Client) SubmitRating(ctx context.Context, in types.RatingInput) (types.Aggregate, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return types.Aggregate{}, errors.NewInvalidRequestError("rating must be between 1 and 5, got %d", in.Rating)
	}
	if in.BusinessID == "" || in.DeviceID == "" {
		return types.Aggregate{}, errors.NewInvalidRequestError("rating needs a business id and a device id")
	}

	var userName *string
	if in.UserName != "" {
		userName = &in.UserName
	}

	if in.Edit {
		resp, err := c.do(ctx, request{
			method: http.MethodPatch,
			path:   "/rest/v1/" + types.TableRatings,
			query: url.Values{
				"business_id": {eq(in.BusinessID)},
				"device_id":   {eq(in.DeviceID)},
			},
			body:   ratingPatch{Rating: in.Rating, UserName: userName},
			prefer: []string{"return=representation"},
		})
		if err != nil {
			return types.Aggregate{}, errors.Wrap(err, "update rating")
		}
		var rows []ratingRow
		if err := resp.decode(&rows); err != nil {
			return types.Aggregate{}, errors.Wrap(err, "update rating")
		}
		if len(rows) == 0 {
			return types.Aggregate{}, errors.WithHint(
				errors.NewNotFoundError("no rating from device for business %s", in.BusinessID),
				"Your earlier rating could not be found. Try rating again.",
			)
		}
	} else {
		_, err := c.do(ctx, request{
			method: http.MethodPost,
			path:   "/rest/v1/" + types.TableRatings,
			body:   []ratingRow{{BusinessID: in.BusinessID, Rating: in.Rating, DeviceID: in.DeviceID, UserName: userName}},
			prefer: []string{"return=minimal"},
		})
		if err != nil {
			if errors.Is(err, errors.ErrConflict) {
				return types.Aggregate{}, errors.WithHint(
					errors.WithSecondaryError(errors.Wrap(errors.ErrDuplicateRating, in.BusinessID), err),
					DuplicateRatingHint,
				)
			}
			return types.Aggregate{}, errors.Wrap(err, "insert rating")
		}
	}

	c.logger.Debugw("Rating stored",
		logger.FieldBusinessID, in.BusinessID,
		logger.FieldRating, in.Rating,
		"edit", in.Edit,
	)

	agg, err := c.FetchAggregate(ctx, in.BusinessID)
	if err != nil {
		return types.Aggregate{}, errors.Wrap(err, "rating stored but aggregate unavailable")
	}
	return agg, nil
}

// DeviceRating returns the score this device gave a business, if any
func (c *Client) DeviceRating(ctx context.Context, businessID, deviceID string) (int, bool, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + types.TableRatings,
		query: url.Values{
			"select":      {"rating"},
			"business_id": {eq(businessID)},
			"device_id":   {eq(deviceID)},
			"limit":       {"1"},
		},
	})
	if err != nil {
		return 0, false, errors.Wrapf(err, "check rating for business %s", businessID)
	}
	var rows []ratingRow
	if err := resp.decode(&rows); err != nil {
		return 0, false, errors.Wrapf(err, "check rating for business %s", businessID)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Rating, true, nil
}

// CheckDeviceRated reports whether this device has rated the business
func (c *Client) CheckDeviceRated(ctx context.Context, businessID, deviceID string) (bool, error) {
	_, found, err := c.DeviceRating(ctx, businessID, deviceID)
	return found, err
}

type aggregateResult struct {
	AvgRating   *float64 `json:"avg_rating"`
	RatingCount int      `json:"rating_count"`
}

// FetchAggregate returns the server-computed average and count for a business
func (c *Client) FetchAggregate(ctx context.Context, businessID string) (types.Aggregate, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + RPCBusinessRating,
		body:   map[string]string{"p_business_id": businessID},
	})
	if err != nil {
		return types.Aggregate{}, errors.Wrapf(err, "fetch aggregate for business %s", businessID)
	}
	var out aggregateResult
	if err := decodeOne(resp, &out); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return types.Aggregate{BusinessID: businessID}, nil
		}
		return types.Aggregate{}, errors.Wrapf(err, "fetch aggregate for business %s", businessID)
	}
	agg := types.Aggregate{BusinessID: businessID, RatingCount: out.RatingCount}
	if out.AvgRating != nil {
		agg.AvgRating = *out.AvgRating
	}
	return agg, nil
}
