package sync

import (
	"testing"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/internal/util"
)

func baseBusiness() types.Business {
	return types.Business{
		ID:             "b1",
		Category:       "grocery",
		ShopName:       "Sharma Kirana",
		OwnerName:      "Ramesh Sharma",
		ContactNumber:  "9876543210",
		Address:        util.Ptr("Main Bazaar"),
		Services:       []string{"Atta", "Dal"},
		PaymentOptions: []string{"Cash", "UPI"},
		HomeDelivery:   true,
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	b := baseBusiness()
	if ContentHash(b) != ContentHash(b) {
		t.Fatal("same business produced different hashes")
	}
}

func TestContentHash_ListOrderIndependent(t *testing.T) {
	a := baseBusiness()
	b := baseBusiness()
	b.Services = []string{"Dal", "Atta"}
	b.PaymentOptions = []string{"UPI", "Cash"}

	if ContentHash(a) != ContentHash(b) {
		t.Fatal("identical listings with different list order produced different hashes")
	}
}

func TestContentHash_DifferentContent(t *testing.T) {
	base := baseBusiness()

	tests := []struct {
		name   string
		mutate func(*types.Business)
	}{
		{"different id", func(b *types.Business) { b.ID = "b2" }},
		{"different category", func(b *types.Business) { b.Category = "dairy" }},
		{"different shop name", func(b *types.Business) { b.ShopName = "Sharma Stores" }},
		{"different owner", func(b *types.Business) { b.OwnerName = "Suresh Sharma" }},
		{"different contact", func(b *types.Business) { b.ContactNumber = "9876543211" }},
		{"address removed", func(b *types.Business) { b.Address = nil }},
		{"address emptied", func(b *types.Business) { b.Address = util.Ptr("") }},
		{"hours added", func(b *types.Business) { b.OpeningHours = util.Ptr("9-9") }},
		{"service added", func(b *types.Business) { b.Services = append(b.Services, "Rice") }},
		{"payment changed", func(b *types.Business) { b.PaymentOptions = []string{"Cash"} }},
		{"delivery toggled", func(b *types.Business) { b.HomeDelivery = false }},
	}

	baseHash := ContentHash(base)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modified := baseBusiness()
			tt.mutate(&modified)
			if ContentHash(modified) == baseHash {
				t.Fatalf("different listing produced same hash")
			}
		})
	}
}

func TestContentHash_IgnoresAggregatesAndTimestamps(t *testing.T) {
	a := baseBusiness()
	b := baseBusiness()
	b.AvgRating = 4.5
	b.RatingCount = 10
	b.CreatedAt = "2026-01-01T00:00:00.000Z"
	b.UpdatedAt = "2026-02-01T00:00:00.000Z"

	if ContentHash(a) != ContentHash(b) {
		t.Fatal("aggregates and timestamps should not affect content hash")
	}
}

func TestContentHash_FieldBoundaries(t *testing.T) {
	a := baseBusiness()
	a.ShopName = "Sharma"
	a.OwnerName = "Kirana"
	b := baseBusiness()
	b.ShopName = "Sharma\nown:Kirana"
	b.OwnerName = ""

	if ContentHash(a) == ContentHash(b) {
		t.Fatal("field separator collision")
	}
}

func TestSnapshotHash_OrderIndependent(t *testing.T) {
	b1 := baseBusiness()
	b2 := baseBusiness()
	b2.ID = "b2"

	if SnapshotHash([]types.Business{b1, b2}) != SnapshotHash([]types.Business{b2, b1}) {
		t.Fatal("snapshot hash depends on record order")
	}
	if SnapshotHash([]types.Business{b1}) == SnapshotHash([]types.Business{b1, b2}) {
		t.Fatal("added record did not change snapshot hash")
	}
	if len(SnapshotHash(nil)) != 64 {
		t.Fatalf("expected hex sha256, got %q", SnapshotHash(nil))
	}
}

func TestCanonical_DoesNotMutateInput(t *testing.T) {
	input := []string{"c", "a", "b"}
	canonical(input)
	if input[0] != "c" || input[1] != "a" || input[2] != "b" {
		t.Fatalf("canonical mutated input: got %v", input)
	}
}
