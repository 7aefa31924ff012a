package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type UnitRepository struct {
	c conn
}

const unitColumns = `id, development_id, unit_number, name, type, bedrooms, bathrooms, size_sqm, base_price,
	status, ber_rating, block, floor, features, created_at, updated_at`

func scanUnit(row scanner) (Unit, error) {
	var (
		u        Unit
		features string
	)
	err := row.Scan(&u.ID, &u.DevelopmentID, &u.UnitNumber, &u.Name, &u.Type, &u.Bedrooms, &u.Bathrooms, &u.SizeSqm, &u.BasePrice,
		&u.Status, &u.BERRating, &u.Block, &u.Floor, &features, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return Unit{}, err
	}
	u.Features = decodeList(features)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *UnitRepository) Create(ctx context.Context, u Unit) (Unit, error) {
	ts := now()
	u.CreatedAt, u.UpdatedAt = ts, ts
	_, err := r.c.exec(ctx, `
		INSERT INTO units (`+unitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, u.ID, u.DevelopmentID, u.UnitNumber, u.Name, u.Type, u.Bedrooms, u.Bathrooms, u.SizeSqm, u.BasePrice.StringFixed(2),
		u.Status, u.BERRating, u.Block, u.Floor, encodeList(u.Features), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Unit{}, fmt.Errorf("create unit: %w", ErrConflict)
		}
		return Unit{}, fmt.Errorf("create unit: %w", err)
	}
	if u.Features == nil {
		u.Features = []string{}
	}
	return u, nil
}

func (r *UnitRepository) Get(ctx context.Context, id string) (Unit, error) {
	u, err := scanUnit(r.c.queryRow(ctx, `SELECT `+unitColumns+` FROM units WHERE id=$1`, id))
	if err != nil {
		return Unit{}, notFound(err)
	}
	return u, nil
}

func (r *UnitRepository) List(ctx context.Context, filter UnitFilter) ([]Unit, int, error) {
	var w where
	if filter.DevelopmentID != "" {
		w.add("development_id = ?", filter.DevelopmentID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}
	if filter.MinBedrooms > 0 {
		w.add("bedrooms >= ?", filter.MinBedrooms)
	}
	if filter.MaxBedrooms > 0 {
		w.add("bedrooms <= ?", filter.MaxBedrooms)
	}
	if filter.MinPrice != nil {
		w.add("CAST(base_price AS NUMERIC) >= ?", filter.MinPrice.StringFixed(2))
	}
	if filter.MaxPrice != nil {
		w.add("CAST(base_price AS NUMERIC) <= ?", filter.MaxPrice.StringFixed(2))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		w.add("(LOWER(unit_number) LIKE ? OR LOWER(name) LIKE ?)", "%"+strings.ToLower(q)+"%")
	}
	if filter.PublishedOnly {
		w.add("development_id IN (SELECT id FROM developments WHERE published = ?)", true)
	}

	var total int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM units`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count units: %w", err)
	}

	limit, offset := limitOffset(filter.Limit, filter.Offset, 200)
	query := fmt.Sprintf(`SELECT %s FROM units%s ORDER BY unit_number, id LIMIT %d OFFSET %d`, unitColumns, w.sql(), limit, offset)
	rows, err := r.c.query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	items := make([]Unit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan unit: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate units: %w", err)
	}
	return items, total, nil
}

// All returns every unit. Used by reindexing.
func (r *UnitRepository) All(ctx context.Context) ([]Unit, error) {
	rows, err := r.c.query(ctx, `SELECT `+unitColumns+` FROM units ORDER BY development_id, unit_number`)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	items := make([]Unit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *UnitRepository) Update(ctx context.Context, id string, patch UnitPatch) (Unit, error) {
	var a assignments
	if patch.Name != nil {
		a.set("name", *patch.Name)
	}
	if patch.Type != nil {
		a.set("type", *patch.Type)
	}
	if patch.Bedrooms != nil {
		a.set("bedrooms", *patch.Bedrooms)
	}
	if patch.Bathrooms != nil {
		a.set("bathrooms", *patch.Bathrooms)
	}
	if patch.SizeSqm != nil {
		a.set("size_sqm", *patch.SizeSqm)
	}
	if patch.BasePrice != nil {
		a.set("base_price", patch.BasePrice.StringFixed(2))
	}
	if patch.Status != nil {
		a.set("status", *patch.Status)
	}
	if patch.BERRating != nil {
		a.set("ber_rating", *patch.BERRating)
	}
	if patch.Block != nil {
		a.set("block", *patch.Block)
	}
	if patch.Floor != nil {
		a.set("floor", *patch.Floor)
	}
	if patch.Features != nil {
		a.set("features", encodeList(*patch.Features))
	}
	if a.empty() {
		return r.Get(ctx, id)
	}
	a.set("updated_at", now())

	query, args := a.update("units", id)
	res, err := r.c.exec(ctx, query, args...)
	if err != nil {
		return Unit{}, fmt.Errorf("update unit: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return Unit{}, err
	}
	return r.Get(ctx, id)
}

// IDsByDevelopment returns the id of every unit in the development.
func (r *UnitRepository) IDsByDevelopment(ctx context.Context, developmentID string) ([]string, error) {
	rows, err := r.c.query(ctx, `SELECT id FROM units WHERE development_id=$1 ORDER BY unit_number`, developmentID)
	if err != nil {
		return nil, fmt.Errorf("list unit ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimStatus moves the unit to status only while it is still in from.
// A unit in any other status yields ErrConflict.
func (r *UnitRepository) ClaimStatus(ctx context.Context, id, from, status string) error {
	res, err := r.c.exec(ctx, `UPDATE units SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4`, status, now(), id, from)
	if err != nil {
		return fmt.Errorf("claim unit status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim unit status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("claim unit %s: %w", id, ErrConflict)
	}
	return nil
}

// SetStatus changes one unit's status. Missing units yield ErrNotFound.
func (r *UnitRepository) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.c.exec(ctx, `UPDATE units SET status=$1, updated_at=$2 WHERE id=$3`, status, now(), id)
	if err != nil {
		return fmt.Errorf("set unit status: %w", err)
	}
	return affectedOne(res)
}

func (r *UnitRepository) SetPrice(ctx context.Context, id string, price decimal.Decimal) error {
	res, err := r.c.exec(ctx, `UPDATE units SET base_price=$1, updated_at=$2 WHERE id=$3`, price.StringFixed(2), now(), id)
	if err != nil {
		return fmt.Errorf("set unit price: %w", err)
	}
	return affectedOne(res)
}

func (r *UnitRepository) Delete(ctx context.Context, id string) error {
	res, err := r.c.exec(ctx, `DELETE FROM units WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	return affectedOne(res)
}

func (r *UnitRepository) CountByDevelopment(ctx context.Context, developmentID string) (int, error) {
	var n int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM units WHERE development_id=$1`, developmentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return n, nil
}
