package commands

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/jawala/am"
	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
)

func testState() *directory.State {
	s := directory.NewState()
	s.Replace(
		[]types.Category{{ID: "grocery", Name: "किराणा", Icon: "🛒"}, {ID: "tailor", Name: "शिंपी", Icon: "🧵"}},
		[]types.Business{
			{ID: "b1", Category: "grocery", ShopName: "Sharma Kirana", OwnerName: "Ramesh", ContactNumber: "9876543210", AvgRating: 4.3, RatingCount: 4},
			{ID: "b2", Category: "tailor", ShopName: "Patil Tailors", OwnerName: "Sunita", ContactNumber: "9123456780"},
			{ID: "b3", Category: "unknown", ShopName: "Mystery", OwnerName: "X", ContactNumber: "9000000000"},
		},
	)
	return s
}

func TestParseScore(t *testing.T) {
	for _, in := range []string{"1", "3", "5"} {
		n, err := parseScore(in)
		require.NoError(t, err)
		assert.Equal(t, int(in[0]-'0'), n)
	}
	for _, in := range []string{"0", "6", "four", "", "-1"} {
		_, err := parseScore(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
		assert.Equal(t, "Give a score from 1 to 5.", errors.UserMessage(err))
	}
}

func TestBusinessRows(t *testing.T) {
	s := testState()
	rows := businessRows(s, s.Filter(""))

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"ID", "Shop", "Owner", "Category", "Phone", "Rating"}, rows[0])

	byID := map[string][]string{}
	for _, r := range rows[1:] {
		byID[r[0]] = r
	}
	assert.Equal(t, "किराणा", byID["b1"][3])
	assert.Equal(t, "4.3 ★ (4)", byID["b1"][5])
	assert.Equal(t, directory.FormatPhoneNumber("9876543210"), byID["b1"][4])
	assert.Equal(t, "no ratings", byID["b2"][5])
	assert.Equal(t, "unknown", byID["b3"][3], "unknown categories fall back to the id")
}

func TestFilterCategory(t *testing.T) {
	s := testState()
	list := filterCategory(s.Filter(""), "tailor")
	require.Len(t, list, 1)
	assert.Equal(t, "b2", list[0].ID)
	assert.Empty(t, filterCategory(s.Filter(""), "barber"))
}

func TestDescribeChange(t *testing.T) {
	s := testState()

	assert.Equal(t, "★ Sharma Kirana now 4.3 ★ (4)", describeChange(s, types.ChangeEvent{
		Table: types.TableRatings, Type: types.ChangeInsert, ID: "b1",
	}))
	assert.Equal(t, "▣ removed b2", describeChange(s, types.ChangeEvent{
		Table: types.TableBusinesses, Type: types.ChangeDelete, ID: "b2",
	}))
	assert.Equal(t, "▣ added New Shop", describeChange(s, types.ChangeEvent{
		Table: types.TableBusinesses, Type: types.ChangeInsert, ID: "b9",
		Business: &types.Business{ID: "b9", ShopName: "New Shop"},
	}))
	assert.Equal(t, "▣ updated b1", describeChange(s, types.ChangeEvent{
		Table: types.TableBusinesses, Type: types.ChangeUpdate, ID: "b1",
	}))
}

func TestApplyBusinessFlags(t *testing.T) {
	f := pflag.NewFlagSet("edit", pflag.ContinueOnError)
	f.String("shop", "", "")
	f.String("owner", "", "")
	f.String("category", "", "")
	f.String("contact", "", "")
	f.String("address", "", "")
	f.String("hours", "", "")
	f.StringSlice("services", nil, "")
	f.StringSlice("payment", nil, "")
	f.Bool("delivery", false, "")
	require.NoError(t, f.Parse([]string{"--shop", "  Sharma General ", "--services", "Atta,Rice", "--delivery", "--address", ""}))

	addr := "Main road"
	in := types.Business{ID: "b1", ShopName: "Sharma Kirana", OwnerName: "Ramesh", Address: &addr, PaymentOptions: []string{"Cash"}}
	out := applyBusinessFlags(f, in)

	assert.Equal(t, "Sharma General", out.ShopName)
	assert.Equal(t, "Ramesh", out.OwnerName, "unset flags keep the current value")
	assert.Equal(t, []string{"Atta", "Rice"}, out.Services)
	assert.Equal(t, []string{"Cash"}, out.PaymentOptions)
	assert.True(t, out.HomeDelivery)
	assert.Nil(t, out.Address, "an explicitly empty address clears it")
}

func TestRedactedHidesAPIKey(t *testing.T) {
	cfg := am.Config{}
	cfg.Assistant.APIKey = "sk-secret"
	assert.Equal(t, "********", redacted(cfg).Assistant.APIKey)
	assert.Equal(t, "sk-secret", cfg.Assistant.APIKey)
	assert.Empty(t, redacted(am.Config{}).Assistant.APIKey)
}
