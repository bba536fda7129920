package directory

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/util"
)

func fixture() *State {
	s := NewState()
	s.Replace(
		[]types.Category{
			{ID: "grocery", Name: "Grocery", Icon: "🛒"},
			{ID: "tailor", Name: "Tailor", Icon: "🧵"},
			{ID: "dairy", Name: "Dairy", Icon: "🥛"},
		},
		[]types.Business{
			{ID: "b1", Category: "grocery", ShopName: "Sharma Kirana", OwnerName: "Ramesh Sharma", Services: []string{"Atta", "Dal"}, AvgRating: 4.5, RatingCount: 2},
			{ID: "b2", Category: "tailor", ShopName: "apna Tailors", OwnerName: "Salim", Services: []string{"Blouse stitching"}},
			{ID: "b3", Category: "grocery", ShopName: "Gupta General", OwnerName: "Anil Gupta", Services: []string{"Rice", "Dal"}},
			{ID: "b4", Category: "orphan", ShopName: "Lost Shop", OwnerName: "Nobody"},
		},
	)
	return s
}

func ids(list []types.Business) []string {
	out := []string{}
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}

func TestStateOrderAndFilter(t *testing.T) {
	s := fixture()
	assert.Equal(t, []string{"b2", "b3", "b4", "b1"}, ids(s.Filter("")), "case-insensitive shop name order")
	assert.Equal(t, []string{"b3", "b1"}, ids(s.Filter("grocery")))
	assert.Empty(t, s.Filter("dairy"))
	assert.Equal(t, 4, s.Len())
}

func TestStateCounts(t *testing.T) {
	counts := fixture().Counts()
	assert.Equal(t, 2, counts["grocery"])
	assert.Equal(t, 1, counts["tailor"])
	assert.Zero(t, counts["dairy"])
}

func TestStateSearch(t *testing.T) {
	s := fixture()
	tests := []struct {
		query string
		want  []string
	}{
		{"kirana", []string{"b1"}},
		{"SALIM", []string{"b2"}},
		{"dal", []string{"b3", "b1"}},
		{"dal gupta", []string{"b3"}},
		{"blouse stitch", []string{"b2"}},
		{"nothing matches", []string{}},
		{"   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(s.Search(tt.query)))
		})
	}
}

func TestStateGrouped(t *testing.T) {
	groups := fixture().Grouped()
	require.Len(t, groups, 2, "empty and unknown categories are skipped")
	assert.Equal(t, "grocery", groups[0].Category.ID)
	assert.Equal(t, []string{"b3", "b1"}, ids(groups[0].Businesses))
	assert.Equal(t, "tailor", groups[1].Category.ID)
}

func TestStateApply(t *testing.T) {
	s := fixture()

	nb := types.Business{ID: "b5", Category: "dairy", ShopName: "Amul Parlour"}
	s.Apply(types.ChangeEvent{Table: types.TableBusinesses, Type: types.ChangeInsert, ID: "b5", Business: &nb})
	assert.Equal(t, "b5", s.Filter("")[0].ID)

	upd := types.Business{ID: "b1", Category: "grocery", ShopName: "Sharma Kirana & Sons", OwnerName: "Ramesh Sharma"}
	s.Apply(types.ChangeEvent{Table: types.TableBusinesses, Type: types.ChangeUpdate, ID: "b1", Business: &upd})
	got, ok := s.Lookup("b1")
	require.True(t, ok)
	assert.Equal(t, "Sharma Kirana & Sons", got.ShopName)
	assert.Equal(t, 2, got.RatingCount, "aggregates survive a row update")
	assert.Equal(t, 4.5, got.AvgRating)

	before, _ := s.Lookup("b3")
	s.Apply(types.ChangeEvent{Table: types.TableBusinesses, Type: types.ChangeDelete, ID: "b2"})
	_, ok = s.Lookup("b2")
	assert.False(t, ok)
	after, _ := s.Lookup("b3")
	assert.Equal(t, before, after)

	// rating events are not directory rows
	s.Apply(types.ChangeEvent{Table: types.TableRatings, Type: types.ChangeDelete, ID: "b3"})
	_, ok = s.Lookup("b3")
	assert.True(t, ok)
}

func TestStatePatchAggregate(t *testing.T) {
	s := fixture()
	b, ok := s.PatchAggregate(types.Aggregate{BusinessID: "b3", AvgRating: 3.5, RatingCount: 4})
	require.True(t, ok)
	assert.Equal(t, 3.5, b.AvgRating)
	got, _ := s.Lookup("b3")
	assert.Equal(t, 4, got.RatingCount)

	_, ok = s.PatchAggregate(types.Aggregate{BusinessID: "missing"})
	assert.False(t, ok)
}

func TestStateSnapshotIsCopy(t *testing.T) {
	s := fixture()
	snap := s.Snapshot()
	snap.Businesses[0].ShopName = "mutated"
	got, _ := s.Lookup(snap.Businesses[0].ID)
	assert.NotEqual(t, "mutated", got.ShopName)
}

func TestStateConcurrentAccess(t *testing.T) {
	s := fixture()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.PatchAggregate(types.Aggregate{BusinessID: "b1", AvgRating: float64(j % 5), RatingCount: j})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Search("dal")
				s.Counts()
			}
		}()
	}
	wg.Wait()
}

func TestFormatPhoneNumber(t *testing.T) {
	assert.Equal(t, "+91 98765 43210", FormatPhoneNumber("9876543210"))
	assert.Equal(t, "12345", FormatPhoneNumber("12345"))
	assert.Equal(t, "+919876543210", FormatPhoneNumber("+919876543210"))
	assert.Equal(t, "98765-4321", FormatPhoneNumber("98765-4321"))
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Rahul किराणा Wholesale": "rahul-किराणा-wholesale",
		"  Sharma & Sons  ":      "sharma-sons",
		"A -- B":                 "a-b",
		"":                       "",
		"Shop_No_5!":             "shop_no_5",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}

func TestShareText(t *testing.T) {
	b := types.Business{
		ID:            "b1",
		ShopName:      "Sharma Kirana",
		OwnerName:     "Ramesh",
		ContactNumber: "9876543210",
		Address:       util.Ptr("Main Bazaar"),
		Services:      []string{"Atta", "Dal"},
	}
	text := ShareText(b)
	assert.Contains(t, text, "*Sharma Kirana*")
	assert.Contains(t, text, "📞 +91 98765 43210")
	assert.Contains(t, text, "📍 Main Bazaar")
	assert.Contains(t, text, "सेवा: Atta, Dal")

	b.Address = nil
	b.Services = nil
	text = ShareText(b)
	assert.NotContains(t, text, "📍")
	assert.NotContains(t, text, "सेवा")

	assert.Equal(t, "https://jawala.example/?businessId=b1", ShareURL("https://jawala.example/", b))
	assert.Contains(t, WhatsAppURL(b), "https://wa.me/919876543210?text=")
}

func TestRatingSummary(t *testing.T) {
	assert.Equal(t, "no ratings", RatingSummary(types.Business{}))
	assert.Equal(t, "4.3 ★ (3)", RatingSummary(types.Business{AvgRating: 4.333, RatingCount: 3}))
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`businesses:
  - category: grocery
    shop_name: Sharma Kirana
    owner_name: Ramesh Sharma
    contact_number: "9876543210"
    address: Main Bazaar
    services: [Atta, Dal]
    home_delivery: true
  - category: tailor
    shop_name: Apna Tailors
    owner_name: Salim
    contact_number: "9812345678"
`), 0644))

	seed, err := LoadSeed(yamlPath)
	require.NoError(t, err)
	require.Len(t, seed.Businesses, 2)
	assert.Equal(t, "Main Bazaar", *seed.Businesses[0].Address)
	assert.True(t, seed.Businesses[0].HomeDelivery)
	assert.Equal(t, []string{}, seed.Businesses[1].Services)

	tomlPath := filepath.Join(dir, "seed.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[[businesses]]
category = "dairy"
shop_name = "Amul Parlour"
owner_name = "Patil"
contact_number = "9000000000"
payment_options = ["Cash", "UPI"]
`), 0644))

	seed, err = LoadSeed(tomlPath)
	require.NoError(t, err)
	require.Len(t, seed.Businesses, 1)
	assert.Equal(t, []string{"Cash", "UPI"}, seed.Businesses[0].PaymentOptions)

	t.Run("unknown keys rejected", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("businesses:\n  - shopname: typo\n"), 0644))
		_, err := LoadSeed(bad)
		assert.Error(t, err)

		badToml := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(badToml, []byte("[[businesses]]\nshopname = \"typo\"\n"), 0644))
		_, err = LoadSeed(badToml)
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadSeed(filepath.Join(dir, "seed.csv"))
		assert.Error(t, err, "missing file fails before format check")

		csv := filepath.Join(dir, "seed.csv")
		require.NoError(t, os.WriteFile(csv, []byte("a,b"), 0644))
		_, err = LoadSeed(csv)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})
}
