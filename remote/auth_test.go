package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/util"
)

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, seededBackend().Server(t).URL)

	s, err := c.SignIn(ctx, "admin@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u-admin", s.UserID)
	assert.Equal(t, "token-u-admin", s.AccessToken)
	assert.False(t, s.Expired(time.Now()))
	assert.True(t, s.Expired(time.Now().Add(2*time.Hour)))

	_, err = c.SignIn(ctx, "admin@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	assert.Equal(t, "Invalid email or password.", errors.UserMessage(err))

	_, err = c.SignIn(ctx, "", "")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestIsAdmin(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, seededBackend().Server(t).URL)

	admin, err := c.SignIn(ctx, "admin@example.com", "secret")
	require.NoError(t, err)
	ok, err := c.WithSession(admin).IsAdmin(ctx, admin.UserID)
	require.NoError(t, err)
	assert.True(t, ok)

	plain, err := c.SignIn(ctx, "plain@example.com", "secret")
	require.NoError(t, err)
	ok, err = c.WithSession(plain).IsAdmin(ctx, plain.UserID)
	require.NoError(t, err)
	assert.False(t, ok)

	// anonymous access sees no profiles
	ok, err = c.IsAdmin(ctx, admin.UserID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBusinessCRUD(t *testing.T) {
	ctx := context.Background()
	f := seededBackend()
	c := newTestClient(t, f.Server(t).URL)

	s, err := c.SignIn(ctx, "admin@example.com", "secret")
	require.NoError(t, err)
	admin := c.WithSession(s)

	created, err := admin.CreateBusiness(ctx, types.Business{
		ID:            "b3",
		Category:      "grocery",
		ShopName:      "Gupta Stores",
		OwnerName:     "Gupta",
		ContactNumber: "9000000000",
		OpeningHours:  util.Ptr("9am-9pm"),
	})
	require.NoError(t, err)
	assert.Equal(t, "b3", created.ID)
	assert.NotEmpty(t, created.UpdatedAt)
	assert.Equal(t, []string{}, created.Services)

	created.ShopName = "Gupta General Stores"
	created.OpeningHours = nil
	updated, err := admin.UpdateBusiness(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "Gupta General Stores", updated.ShopName)
	assert.Nil(t, updated.OpeningHours)
	assert.Greater(t, updated.UpdatedAt, created.UpdatedAt)

	require.NoError(t, admin.DeleteBusiness(ctx, "b3"))
	err = admin.DeleteBusiness(ctx, "b3")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	t.Run("anonymous writes are forbidden", func(t *testing.T) {
		_, err := c.CreateBusiness(ctx, types.Business{Category: "grocery", ShopName: "X"})
		assert.True(t, errors.Is(err, errors.ErrForbidden))

		err = c.DeleteBusiness(ctx, "b1")
		assert.True(t, errors.Is(err, errors.ErrNotFound), "row-level security hides the row")
	})

	t.Run("update needs id", func(t *testing.T) {
		_, err := admin.UpdateBusiness(ctx, types.Business{ShopName: "X"})
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})
}
