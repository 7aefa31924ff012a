package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type SaleRepository struct {
	c conn
}

const saleColumns = `id, unit_id, buyer_id, agent_id, status, agreed_price, deposit, mortgage_amount, enquiry_date,
	reservation_date, contract_date, completion_date, notes, tags, created_at, updated_at`

// terminalSaleStatuses end the pipeline; everything else counts as active.
var terminalSaleStatuses = map[string]bool{
	"COMPLETED": true,
	"CANCELLED": true,
	"EXPIRED":   true,
}

func scanSale(row scanner) (Sale, error) {
	var (
		s                                 Sale
		reservation, contract, completion sql.NullTime
		tags                              string
	)
	err := row.Scan(&s.ID, &s.UnitID, &s.BuyerID, &s.AgentID, &s.Status, &s.AgreedPrice, &s.Deposit, &s.MortgageAmount, &s.EnquiryDate,
		&reservation, &contract, &completion, &s.Notes, &tags, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Sale{}, err
	}
	s.ReservationDate = nullTime(reservation)
	s.ContractDate = nullTime(contract)
	s.CompletionDate = nullTime(completion)
	s.Tags = decodeList(tags)
	s.EnquiryDate = s.EnquiryDate.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func nullAmount(value decimal.NullDecimal) any {
	if !value.Valid {
		return nil
	}
	return value.Decimal.StringFixed(2)
}

func (r *SaleRepository) Create(ctx context.Context, s Sale) (Sale, error) {
	ts := now()
	s.CreatedAt, s.UpdatedAt = ts, ts
	if s.EnquiryDate.IsZero() {
		s.EnquiryDate = ts
	}
	_, err := r.c.exec(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, s.ID, s.UnitID, s.BuyerID, s.AgentID, s.Status, nullAmount(s.AgreedPrice), nullAmount(s.Deposit), nullAmount(s.MortgageAmount),
		s.EnquiryDate.UTC(), s.ReservationDate, s.ContractDate, s.CompletionDate, s.Notes, encodeList(s.Tags), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Sale{}, fmt.Errorf("create sale: %w", ErrConflict)
		}
		return Sale{}, fmt.Errorf("create sale: %w", err)
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	return s, nil
}

func (r *SaleRepository) Get(ctx context.Context, id string) (Sale, error) {
	s, err := scanSale(r.c.queryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id))
	if err != nil {
		return Sale{}, notFound(err)
	}
	return s, nil
}

func saleWhere(filter SaleFilter) where {
	var w where
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.BuyerID != "" {
		w.add("buyer_id = ?", filter.BuyerID)
	}
	if filter.AgentID != "" {
		w.add("agent_id = ?", filter.AgentID)
	}
	if filter.UnitID != "" {
		w.add("unit_id = ?", filter.UnitID)
	}
	if filter.DevelopmentID != "" {
		w.add("unit_id IN (SELECT id FROM units WHERE development_id = ?)", filter.DevelopmentID)
	}
	if filter.MinPrice != nil {
		w.add("CAST(agreed_price AS NUMERIC) >= ?", filter.MinPrice.StringFixed(2))
	}
	if filter.MaxPrice != nil {
		w.add("CAST(agreed_price AS NUMERIC) <= ?", filter.MaxPrice.StringFixed(2))
	}
	return w
}

// List returns one page of sales and the total matching the filter.
func (r *SaleRepository) List(ctx context.Context, filter SaleFilter) ([]Sale, int, error) {
	w := saleWhere(filter)

	var total int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM sales`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}

	limit, offset := limitOffset(filter.Limit, filter.Offset, 50)
	query := fmt.Sprintf(`SELECT %s FROM sales%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, saleColumns, w.sql(), limit, offset)
	rows, err := r.c.query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	items := make([]Sale, 0)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sale: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sales: %w", err)
	}
	return items, total, nil
}

// ActiveForUnit reports whether a non-terminal sale other than exceptID holds the unit.
func (r *SaleRepository) ActiveForUnit(ctx context.Context, unitID, exceptID string) (bool, error) {
	var n int
	err := r.c.queryRow(ctx, `
		SELECT COUNT(*) FROM sales
		WHERE unit_id=$1 AND id<>$2 AND status IN ('RESERVATION', 'DEPOSIT_PAID', 'CONTRACT_SIGNED', 'MORTGAGE_APPROVED', 'COMPLETION_SCHEDULED')
	`, unitID, exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check unit sales: %w", err)
	}
	return n > 0, nil
}

func (r *SaleRepository) Update(ctx context.Context, id string, patch SalePatch) (Sale, error) {
	var a assignments
	if patch.AgreedPrice != nil {
		a.set("agreed_price", patch.AgreedPrice.StringFixed(2))
	}
	if patch.Deposit != nil {
		a.set("deposit", patch.Deposit.StringFixed(2))
	}
	if patch.MortgageAmount != nil {
		a.set("mortgage_amount", patch.MortgageAmount.StringFixed(2))
	}
	if patch.Notes != nil {
		a.set("notes", *patch.Notes)
	}
	if patch.Tags != nil {
		a.set("tags", encodeList(*patch.Tags))
	}
	if a.empty() {
		return r.Get(ctx, id)
	}
	a.set("updated_at", now())

	query, args := a.update("sales", id)
	res, err := r.c.exec(ctx, query, args...)
	if err != nil {
		return Sale{}, fmt.Errorf("update sale: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return Sale{}, err
	}
	return r.Get(ctx, id)
}

// milestoneColumn names the date column a status stamps, if any.
func milestoneColumn(status string) string {
	switch status {
	case "RESERVATION":
		return "reservation_date"
	case "CONTRACT_SIGNED":
		return "contract_date"
	case "COMPLETED":
		return "completion_date"
	}
	return ""
}

// SetStatus moves a sale to status and stamps the matching milestone date.
func (r *SaleRepository) SetStatus(ctx context.Context, id, status string, at time.Time) error {
	at = at.UTC().Truncate(time.Microsecond)
	var a assignments
	a.set("status", status)
	if col := milestoneColumn(status); col != "" {
		a.set(col, at)
	}
	a.set("updated_at", at)

	query, args := a.update("sales", id)
	res, err := r.c.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set sale status: %w", err)
	}
	return affectedOne(res)
}

func (r *SaleRepository) AddHistory(ctx context.Context, change SaleStatusChange) error {
	if change.ChangedAt.IsZero() {
		change.ChangedAt = now()
	}
	_, err := r.c.exec(ctx, `
		INSERT INTO sale_status_history (id, sale_id, previous_status, new_status, changed_by, note, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, change.ID, change.SaleID, change.PreviousStatus, change.NewStatus, change.ChangedBy, change.Note,
		change.ChangedAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("insert sale history: %w", err)
	}
	return nil
}

// History returns the sale's status changes, newest first.
func (r *SaleRepository) History(ctx context.Context, saleID string) ([]SaleStatusChange, error) {
	rows, err := r.c.query(ctx, `
		SELECT id, sale_id, previous_status, new_status, changed_by, note, changed_at
		FROM sale_status_history
		WHERE sale_id=$1
		ORDER BY changed_at DESC, id DESC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sale history: %w", err)
	}
	defer rows.Close()

	items := make([]SaleStatusChange, 0)
	for rows.Next() {
		var c SaleStatusChange
		if err := rows.Scan(&c.ID, &c.SaleID, &c.PreviousStatus, &c.NewStatus, &c.ChangedBy, &c.Note, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan sale history: %w", err)
		}
		c.ChangedAt = c.ChangedAt.UTC()
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale history: %w", err)
	}
	return items, nil
}

// Summary aggregates the sales matching filter. Limit and offset are ignored.
// Amounts are summed in Go so both backends agree on decimal precision.
func (r *SaleRepository) Summary(ctx context.Context, filter SaleFilter) (SalesSummary, error) {
	w := saleWhere(filter)
	rows, err := r.c.query(ctx, `SELECT status, agreed_price FROM sales`+w.sql(), w.args...)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("summarise sales: %w", err)
	}
	defer rows.Close()

	summary := SalesSummary{
		TotalValue:      decimal.Zero,
		CompletedValue:  decimal.Zero,
		StatusBreakdown: map[string]int{},
	}
	for rows.Next() {
		var (
			status string
			price  decimal.NullDecimal
		)
		if err := rows.Scan(&status, &price); err != nil {
			return SalesSummary{}, fmt.Errorf("scan sale summary: %w", err)
		}
		summary.TotalSales++
		summary.StatusBreakdown[status]++
		if price.Valid {
			summary.TotalValue = summary.TotalValue.Add(price.Decimal)
		}
		if status == "COMPLETED" {
			summary.CompletedSales++
			if price.Valid {
				summary.CompletedValue = summary.CompletedValue.Add(price.Decimal)
			}
		}
		if !terminalSaleStatuses[status] {
			summary.ActiveSales++
		}
	}
	if err := rows.Err(); err != nil {
		return SalesSummary{}, fmt.Errorf("iterate sale summary: %w", err)
	}
	return summary, nil
}
