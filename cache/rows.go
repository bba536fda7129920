package cache

import (
	"database/sql"
	"encoding/json"

	"github.com/teranos/jawala/directory/types"
)

const selectCategories = `SELECT id, name, icon FROM categories ORDER BY name, id`

const selectBusinesses = `SELECT id, category, shop_name, owner_name, contact_number, address,
	opening_hours, services, payment_options, home_delivery, avg_rating, rating_count,
	created_at, updated_at
	FROM businesses ORDER BY shop_name COLLATE NOCASE, id`

const insertCategory = `INSERT INTO categories (id, name, icon, synced_at)
	VALUES (:id, :name, :icon, :synced_at)`

const upsertBusiness = `INSERT INTO businesses (id, category, shop_name, owner_name, contact_number,
	address, opening_hours, services, payment_options, home_delivery, avg_rating, rating_count,
	created_at, updated_at, synced_at)
	VALUES (:id, :category, :shop_name, :owner_name, :contact_number, :address, :opening_hours,
	:services, :payment_options, :home_delivery, :avg_rating, :rating_count, :created_at,
	:updated_at, :synced_at)
	ON CONFLICT(id) DO UPDATE SET
		category = excluded.category,
		shop_name = excluded.shop_name,
		owner_name = excluded.owner_name,
		contact_number = excluded.contact_number,
		address = excluded.address,
		opening_hours = excluded.opening_hours,
		services = excluded.services,
		payment_options = excluded.payment_options,
		home_delivery = excluded.home_delivery,
		avg_rating = excluded.avg_rating,
		rating_count = excluded.rating_count,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		synced_at = excluded.synced_at`

type categoryRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Icon     string `db:"icon"`
	SyncedAt string `db:"synced_at"`
}

func fromCategory(c types.Category, syncedAt string) categoryRow {
	return categoryRow{ID: c.ID, Name: c.Name, Icon: c.Icon, SyncedAt: syncedAt}
}

func (r categoryRow) toCategory() types.Category {
	return types.Category{ID: r.ID, Name: r.Name, Icon: r.Icon}
}

// businessRow is the stored form. List fields are JSON arrays; synced_at is
// written but never selected back.
type businessRow struct {
	ID             string         `db:"id"`
	Category       string         `db:"category"`
	ShopName       string         `db:"shop_name"`
	OwnerName      string         `db:"owner_name"`
	ContactNumber  string         `db:"contact_number"`
	Address        sql.NullString `db:"address"`
	OpeningHours   sql.NullString `db:"opening_hours"`
	Services       string         `db:"services"`
	PaymentOptions string         `db:"payment_options"`
	HomeDelivery   bool           `db:"home_delivery"`
	AvgRating      float64        `db:"avg_rating"`
	RatingCount    int            `db:"rating_count"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
	SyncedAt       string         `db:"synced_at"`
}

func fromBusiness(b types.Business, syncedAt string) (businessRow, error) {
	services, err := encodeList(b.Services)
	if err != nil {
		return businessRow{}, err
	}
	payments, err := encodeList(b.PaymentOptions)
	if err != nil {
		return businessRow{}, err
	}
	return businessRow{
		ID:             b.ID,
		Category:       b.Category,
		ShopName:       b.ShopName,
		OwnerName:      b.OwnerName,
		ContactNumber:  b.ContactNumber,
		Address:        nullable(b.Address),
		OpeningHours:   nullable(b.OpeningHours),
		Services:       services,
		PaymentOptions: payments,
		HomeDelivery:   b.HomeDelivery,
		AvgRating:      b.AvgRating,
		RatingCount:    b.RatingCount,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		SyncedAt:       syncedAt,
	}, nil
}

func (r businessRow) toBusiness() (types.Business, error) {
	b := types.Business{
		ID:            r.ID,
		Category:      r.Category,
		ShopName:      r.ShopName,
		OwnerName:     r.OwnerName,
		ContactNumber: r.ContactNumber,
		HomeDelivery:  r.HomeDelivery,
		AvgRating:     r.AvgRating,
		RatingCount:   r.RatingCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Address.Valid {
		v := r.Address.String
		b.Address = &v
	}
	if r.OpeningHours.Valid {
		v := r.OpeningHours.String
		b.OpeningHours = &v
	}
	if err := json.Unmarshal([]byte(r.Services), &b.Services); err != nil {
		return types.Business{}, err
	}
	if err := json.Unmarshal([]byte(r.PaymentOptions), &b.PaymentOptions); err != nil {
		return types.Business{}, err
	}
	return b, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	return string(raw), err
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
