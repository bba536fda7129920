package remote

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
)

// Session is a signed-in backend user
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"-"`
	UserID       string    `json:"-"`
	Email        string    `json:"-"`
}

// Expired reports whether the access token has lapsed
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges email and password for a session (password grant)
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, errors.NewInvalidRequestError("email and password are required")
	}
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		if errors.IsAny(err, errors.ErrInvalidRequest, errors.ErrUnauthorized) {
			return Session{}, errors.WithHint(errors.Mark(errors.Wrap(err, "sign in"), errors.ErrUnauthorized),
				"Invalid email or password.")
		}
		return Session{}, errors.Wrap(err, "sign in")
	}
	var tok tokenResponse
	if err := resp.decode(&tok); err != nil {
		return Session{}, errors.Wrap(err, "sign in")
	}
	if tok.AccessToken == "" || tok.User.ID == "" {
		return Session{}, errors.Newf("sign in: incomplete token response")
	}
	s := Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		UserID:       tok.User.ID,
		Email:        tok.User.Email,
	}
	if tok.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return s, nil
}

// IsAdmin reports whether userID has an admin profile. The check runs with
// the client's credentials; row-level security hides other users' profiles.
func (c *Client) IsAdmin(ctx context.Context, userID string) (bool, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/admin_profiles",
		query:  url.Values{"select": {"id"}, "id": {eq(userID)}, "limit": {"1"}},
	})
	if err != nil {
		return false, errors.Wrap(err, "check admin profile")
	}
	var rows []struct {
		ID string `json:"id"`
	}
	if err := resp.decode(&rows); err != nil {
		return false, errors.Wrap(err, "check admin profile")
	}
	return len(rows) > 0, nil
}

// businessPayload is the writable part of a business row
type businessPayload struct {
	ID             string   `json:"id,omitempty"`
	Category       string   `json:"category"`
	ShopName       string   `json:"shop_name"`
	OwnerName      string   `json:"owner_name"`
	ContactNumber  string   `json:"contact_number"`
	Address        *string  `json:"address"`
	OpeningHours   *string  `json:"opening_hours"`
	Services       []string `json:"services"`
	PaymentOptions []string `json:"payment_options"`
	HomeDelivery   bool     `json:"home_delivery"`
}

func payloadOf(b types.Business) businessPayload {
	p := businessPayload{
		ID:             b.ID,
		Category:       b.Category,
		ShopName:       b.ShopName,
		OwnerName:      b.OwnerName,
		ContactNumber:  b.ContactNumber,
		Address:        b.Address,
		OpeningHours:   b.OpeningHours,
		Services:       b.Services,
		PaymentOptions: b.PaymentOptions,
		HomeDelivery:   b.HomeDelivery,
	}
	if p.Services == nil {
		p.Services = []string{}
	}
	if p.PaymentOptions == nil {
		p.PaymentOptions = []string{}
	}
	return p
}

// CreateBusiness inserts a business and returns the stored row. Requires a
// session with admin rights.
func (c *Client) CreateBusiness(ctx context.Context, b types.Business) (types.Business, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/" + types.TableBusinesses,
		body:   []businessPayload{payloadOf(b)},
		prefer: []string{"return=representation"},
	})
	if err != nil {
		return types.Business{}, errors.Wrap(err, "create business")
	}
	return singleBusiness(resp, "create business")
}

// UpdateBusiness replaces the writable fields of b.ID and returns the stored row
func (c *Client) UpdateBusiness(ctx context.Context, b types.Business) (types.Business, error) {
	if b.ID == "" {
		return types.Business{}, errors.NewInvalidRequestError("update needs a business id")
	}
	p := payloadOf(b)
	p.ID = ""
	resp, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/rest/v1/" + types.TableBusinesses,
		query:  url.Values{"id": {eq(b.ID)}},
		body:   p,
		prefer: []string{"return=representation"},
	})
	if err != nil {
		return types.Business{}, errors.Wrapf(err, "update business %s", b.ID)
	}
	return singleBusiness(resp, "update business "+b.ID)
}

// DeleteBusiness removes a business. Deleting a row the session cannot see
// (missing, or hidden by row-level security) is ErrNotFound.
func (c *Client) DeleteBusiness(ctx context.Context, id string) error {
	if id == "" {
		return errors.NewInvalidRequestError("delete needs a business id")
	}
	resp, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/rest/v1/" + types.TableBusinesses,
		query:  url.Values{"id": {eq(id)}},
		prefer: []string{"return=representation"},
	})
	if err != nil {
		return errors.Wrapf(err, "delete business %s", id)
	}
	var rows []types.Business
	if err := resp.decode(&rows); err != nil {
		return errors.Wrapf(err, "delete business %s", id)
	}
	if len(rows) == 0 {
		return errors.NewNotFoundError("business %s", id)
	}
	return nil
}

func singleBusiness(resp *response, op string) (types.Business, error) {
	var rows []types.Business
	if err := resp.decode(&rows); err != nil {
		return types.Business{}, errors.Wrap(err, op)
	}
	if len(rows) == 0 {
		return types.Business{}, errors.Wrap(errors.NewNotFoundError("no row returned"), op)
	}
	return normalizeBusinesses(rows)[0], nil
}
