// Package types holds the directory data model shared by the cache, the
// remote client, the sync engine and the realtime reconciler.
package types

import (
	"time"
)

// Remote table names, as they appear in change events and REST paths
const (
	TableBusinesses = "businesses"
	TableCategories = "categories"
	TableRatings    = "business_ratings"
)

// TimestampLayout is the canonical ISO8601 form used for DataVersion.LastUpdated.
// Remote timestamps are normalised to it so that comparison can stay verbatim.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Business is one directory listing. AvgRating and RatingCount are derived
// server-side from business_ratings.
type Business struct {
	ID             string   `json:"id" yaml:"id" toml:"id"`
	Category       string   `json:"category" yaml:"category" toml:"category" validate:"required"`
	ShopName       string   `json:"shop_name" yaml:"shop_name" toml:"shop_name" validate:"required,min=2,max=120"`
	OwnerName      string   `json:"owner_name" yaml:"owner_name" toml:"owner_name" validate:"required,max=120"`
	ContactNumber  string   `json:"contact_number" yaml:"contact_number" toml:"contact_number" validate:"required,contact"`
	Address        *string  `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty"`
	OpeningHours   *string  `json:"opening_hours,omitempty" yaml:"opening_hours,omitempty" toml:"opening_hours,omitempty"`
	Services       []string `json:"services" yaml:"services" toml:"services" validate:"dive,required"`
	PaymentOptions []string `json:"payment_options" yaml:"payment_options" toml:"payment_options" validate:"dive,required"`
	HomeDelivery   bool     `json:"home_delivery" yaml:"home_delivery" toml:"home_delivery"`
	AvgRating      float64  `json:"avg_rating" yaml:"-" toml:"-"`
	RatingCount    int      `json:"rating_count" yaml:"-" toml:"-"`
	CreatedAt      string   `json:"created_at,omitempty" yaml:"-" toml:"-"`
	UpdatedAt      string   `json:"updated_at,omitempty" yaml:"-" toml:"-"`
}

// Category groups businesses. ID is a short slug such as "grocery".
type Category struct {
	ID   string `json:"id" yaml:"id" toml:"id"`
	Name string `json:"name" yaml:"name" toml:"name"`
	Icon string `json:"icon" yaml:"icon" toml:"icon"`
}

// Snapshot is a complete view of the directory
type Snapshot struct {
	Categories []Category `json:"categories"`
	Businesses []Business `json:"businesses"`
}

// Empty reports whether the snapshot carries no data at all
func (s Snapshot) Empty() bool {
	return len(s.Categories) == 0 && len(s.Businesses) == 0
}

// DataVersion is the cheap fingerprint of the remote dataset.
//
// BusinessCount and LastUpdated (and ContentHash when both sides carry one)
// form the fingerprint. LastSync is local wall-clock bookkeeping and never
// takes part in comparison.
type DataVersion struct {
	BusinessCount int       `json:"business_count"`
	LastUpdated   string    `json:"last_updated"`
	LastSync      time.Time `json:"last_sync"`
	ContentHash   string    `json:"content_hash,omitempty"`
}

// Matches reports whether two fingerprints describe the same dataset
func (v DataVersion) Matches(other DataVersion) bool {
	if v.BusinessCount != other.BusinessCount || v.LastUpdated != other.LastUpdated {
		return false
	}
	if v.ContentHash != "" && other.ContentHash != "" {
		return v.ContentHash == other.ContentHash
	}
	return true
}

// Aggregate is the server-computed rating summary of one business
type Aggregate struct {
	BusinessID  string  `json:"business_id"`
	AvgRating   float64 `json:"avg_rating"`
	RatingCount int     `json:"rating_count"`
}

// RatingInput is one rating submission. Edit selects update-in-place of the
// device's existing row instead of an insert.
type RatingInput struct {
	BusinessID string `json:"business_id" validate:"required"`
	Rating     int    `json:"rating" validate:"min=1,max=5"`
	DeviceID   string `json:"device_id" validate:"required"`
	UserName   string `json:"user_name,omitempty"`
	Edit       bool   `json:"-"`
}

// ChangeType is the kind of row change carried by a realtime event
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one row change delivered by the realtime feed.
//
// For business events Business carries the new record (INSERT/UPDATE) and ID
// the affected business id. For rating events ID is the rated business id and
// Business is nil.
type ChangeEvent struct {
	Table           string     `json:"table"`
	Type            ChangeType `json:"type"`
	ID              string     `json:"id"`
	Business        *Business  `json:"business,omitempty"`
	CommitTimestamp string     `json:"commit_timestamp"`
}

// FormatTimestamp renders t in TimestampLayout (UTC, millisecond precision)
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NormalizeTimestamp parses an ISO8601/RFC3339 timestamp as produced by
// Postgres and returns it in TimestampLayout. Unparseable input is returned
// unchanged.
func NormalizeTimestamp(s string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07", "2006-01-02 15:04:05.999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return FormatTimestamp(t)
		}
	}
	return s
}

// Epoch is LastUpdated when neither table has any rows
var Epoch = FormatTimestamp(time.Unix(0, 0))

// NormalizeBusiness gives list fields a non-nil value and brings timestamps
// into TimestampLayout
func NormalizeBusiness(b Business) Business {
	if b.Services == nil {
		b.Services = []string{}
	}
	if b.PaymentOptions == nil {
		b.PaymentOptions = []string{}
	}
	if b.CreatedAt != "" {
		b.CreatedAt = NormalizeTimestamp(b.CreatedAt)
	}
	if b.UpdatedAt != "" {
		b.UpdatedAt = NormalizeTimestamp(b.UpdatedAt)
	}
	return b
}
