package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type DevelopmentRepository struct {
	c conn
}

const developmentColumns = `id, slug, name, developer_id, status, description, short_description, main_image,
	address, city, county, eircode, latitude, longitude, total_units, features, published, created_at, updated_at`

func scanDevelopment(row scanner) (Development, error) {
	var (
		d        Development
		lat, lng sql.NullFloat64
		features string
	)
	err := row.Scan(&d.ID, &d.Slug, &d.Name, &d.DeveloperID, &d.Status, &d.Description, &d.ShortDescription, &d.MainImage,
		&d.Address, &d.City, &d.County, &d.Eircode, &lat, &lng, &d.TotalUnits, &features, &d.Published, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Development{}, err
	}
	if lat.Valid {
		d.Latitude = &lat.Float64
	}
	if lng.Valid {
		d.Longitude = &lng.Float64
	}
	d.Features = decodeList(features)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

func (r *DevelopmentRepository) Create(ctx context.Context, d Development) (Development, error) {
	ts := now()
	d.CreatedAt, d.UpdatedAt = ts, ts
	_, err := r.c.exec(ctx, `
		INSERT INTO developments (`+developmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, d.ID, d.Slug, d.Name, d.DeveloperID, d.Status, d.Description, d.ShortDescription, d.MainImage,
		d.Address, d.City, d.County, d.Eircode, d.Latitude, d.Longitude, d.TotalUnits, encodeList(d.Features), d.Published,
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Development{}, fmt.Errorf("create development: %w", ErrConflict)
		}
		return Development{}, fmt.Errorf("create development: %w", err)
	}
	if d.Features == nil {
		d.Features = []string{}
	}
	return d, nil
}

func (r *DevelopmentRepository) Get(ctx context.Context, id string) (Development, error) {
	row := r.c.queryRow(ctx, `SELECT `+developmentColumns+` FROM developments WHERE id=$1`, id)
	d, err := scanDevelopment(row)
	if err != nil {
		return Development{}, notFound(err)
	}
	return d, nil
}

func (r *DevelopmentRepository) GetBySlug(ctx context.Context, slug string) (Development, error) {
	row := r.c.queryRow(ctx, `SELECT `+developmentColumns+` FROM developments WHERE slug=$1`, slug)
	d, err := scanDevelopment(row)
	if err != nil {
		return Development{}, notFound(err)
	}
	return d, nil
}

func (r *DevelopmentRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM developments WHERE slug=$1`, slug).Scan(&n); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

// List returns one page of developments and the total number matching the filter.
func (r *DevelopmentRepository) List(ctx context.Context, filter DevelopmentFilter) ([]Development, int, error) {
	var w where
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.County != "" {
		w.add("LOWER(county) = ?", strings.ToLower(filter.County))
	}
	if filter.DeveloperID != "" {
		w.add("developer_id = ?", filter.DeveloperID)
	}
	if filter.PublishedOnly {
		w.add("published = ?", true)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		w.add("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	var total int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM developments`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count developments: %w", err)
	}

	limit, offset := limitOffset(filter.Limit, filter.Offset, 50)
	query := fmt.Sprintf(`SELECT %s FROM developments%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		developmentColumns, w.sql(), limit, offset)
	rows, err := r.c.query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list developments: %w", err)
	}
	defer rows.Close()

	items := make([]Development, 0)
	for rows.Next() {
		d, err := scanDevelopment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan development: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate developments: %w", err)
	}
	return items, total, nil
}

// All returns every development, oldest first. Used by reindexing.
func (r *DevelopmentRepository) All(ctx context.Context) ([]Development, error) {
	rows, err := r.c.query(ctx, `SELECT `+developmentColumns+` FROM developments ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list developments: %w", err)
	}
	defer rows.Close()

	items := make([]Development, 0)
	for rows.Next() {
		d, err := scanDevelopment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan development: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *DevelopmentRepository) Update(ctx context.Context, id string, patch DevelopmentPatch) (Development, error) {
	var a assignments
	if patch.Name != nil {
		a.set("name", *patch.Name)
	}
	if patch.Status != nil {
		a.set("status", *patch.Status)
	}
	if patch.Description != nil {
		a.set("description", *patch.Description)
	}
	if patch.ShortDescription != nil {
		a.set("short_description", *patch.ShortDescription)
	}
	if patch.MainImage != nil {
		a.set("main_image", *patch.MainImage)
	}
	if patch.Address != nil {
		a.set("address", *patch.Address)
	}
	if patch.City != nil {
		a.set("city", *patch.City)
	}
	if patch.County != nil {
		a.set("county", *patch.County)
	}
	if patch.Eircode != nil {
		a.set("eircode", *patch.Eircode)
	}
	if patch.Latitude != nil {
		a.set("latitude", *patch.Latitude)
	}
	if patch.Longitude != nil {
		a.set("longitude", *patch.Longitude)
	}
	if patch.TotalUnits != nil {
		a.set("total_units", *patch.TotalUnits)
	}
	if patch.Features != nil {
		a.set("features", encodeList(*patch.Features))
	}
	if patch.Published != nil {
		a.set("published", *patch.Published)
	}
	if a.empty() {
		return r.Get(ctx, id)
	}
	a.set("updated_at", now())

	query, args := a.update("developments", id)
	res, err := r.c.exec(ctx, query, args...)
	if err != nil {
		return Development{}, fmt.Errorf("update development: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return Development{}, err
	}
	return r.Get(ctx, id)
}

func (r *DevelopmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.c.exec(ctx, `DELETE FROM developments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete development: %w", err)
	}
	return affectedOne(res)
}

// Counts tallies the development's units by status.
func (r *DevelopmentRepository) Counts(ctx context.Context, id string) (UnitCounts, error) {
	rows, err := r.c.query(ctx, `SELECT status, COUNT(*) FROM units WHERE development_id=$1 GROUP BY status`, id)
	if err != nil {
		return UnitCounts{}, fmt.Errorf("count units: %w", err)
	}
	defer rows.Close()

	var counts UnitCounts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return UnitCounts{}, fmt.Errorf("scan unit count: %w", err)
		}
		counts.Total += n
		switch status {
		case "AVAILABLE":
			counts.Available = n
		case "RESERVED":
			counts.Reserved = n
		case "SALE_AGREED":
			counts.SaleAgreed = n
		case "SOLD":
			counts.Sold = n
		case "UNAVAILABLE":
			counts.Unavailable = n
		}
	}
	return counts, rows.Err()
}

// PriceRange returns the lowest and highest unit base price, or nil when the
// development has no units.
func (r *DevelopmentRepository) PriceRange(ctx context.Context, id string) (*PriceRange, error) {
	var lo, hi decimal.NullDecimal
	err := r.c.queryRow(ctx, `
		SELECT MIN(CAST(base_price AS NUMERIC)), MAX(CAST(base_price AS NUMERIC))
		FROM units WHERE development_id=$1
	`, id).Scan(&lo, &hi)
	if err != nil {
		return nil, fmt.Errorf("price range: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return nil, nil
	}
	return &PriceRange{Min: lo.Decimal, Max: hi.Decimal}, nil
}
