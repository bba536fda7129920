package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDataVersionMatches(t *testing.T) {
	base := DataVersion{BusinessCount: 12, LastUpdated: "2026-03-01T10:00:00.000Z"}

	tests := []struct {
		name  string
		other DataVersion
		want  bool
	}{
		{"identical", base, true},
		{"last sync is ignored", DataVersion{BusinessCount: 12, LastUpdated: base.LastUpdated, LastSync: time.Now()}, true},
		{"count differs", DataVersion{BusinessCount: 13, LastUpdated: base.LastUpdated}, false},
		{"timestamp differs", DataVersion{BusinessCount: 12, LastUpdated: "2026-03-01T10:00:00.001Z"}, false},
		{"hash on one side only", DataVersion{BusinessCount: 12, LastUpdated: base.LastUpdated, ContentHash: "abc"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Matches(tt.other))
			assert.Equal(t, tt.want, tt.other.Matches(base))
		})
	}

	withHash := base
	withHash.ContentHash = "abc"
	other := base
	other.ContentHash = "def"
	assert.False(t, withHash.Matches(other), "hashes compared when both sides carry one")
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-03-01T10:00:00Z", "2026-03-01T10:00:00.000Z"},
		{"2026-03-01T10:00:00.123456+00:00", "2026-03-01T10:00:00.123Z"},
		{"2026-03-01T15:30:00+05:30", "2026-03-01T10:00:00.000Z"},
		{"2026-03-01 10:00:00.5+00", "2026-03-01T10:00:00.500Z"},
		{"not a time", "not a time"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTimestamp(tt.in), tt.in)
	}
	assert.Equal(t, "1970-01-01T00:00:00.000Z", Epoch)
}

func TestSnapshotEmpty(t *testing.T) {
	assert.True(t, Snapshot{}.Empty())
	assert.False(t, Snapshot{Categories: []Category{{ID: "grocery"}}}.Empty())
}

func TestNormalizeBusiness(t *testing.T) {
	b := NormalizeBusiness(Business{ID: "b1", UpdatedAt: "2026-03-01T10:00:00+00:00"})
	assert.Equal(t, []string{}, b.Services)
	assert.Equal(t, []string{}, b.PaymentOptions)
	assert.Equal(t, "2026-03-01T10:00:00.000Z", b.UpdatedAt)
	assert.Empty(t, b.CreatedAt)
}
