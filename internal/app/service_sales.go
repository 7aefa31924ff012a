package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"propie/api/internal/audit"
	"propie/api/internal/email"
	"propie/api/internal/export"
	"propie/api/internal/rbac"
	"propie/api/internal/store"
	"propie/api/internal/util"
)

// saleTransitions lists the statuses each status may move to. COMPLETED,
// CANCELLED and EXPIRED are terminal.
var saleTransitions = map[string][]string{
	"ENQUIRY":              {"VIEWING", "OFFER", "CANCELLED", "EXPIRED"},
	"VIEWING":              {"OFFER", "CANCELLED", "EXPIRED"},
	"OFFER":                {"OFFER_ACCEPTED", "CANCELLED", "EXPIRED"},
	"OFFER_ACCEPTED":       {"RESERVATION", "CANCELLED"},
	"RESERVATION":          {"DEPOSIT_PAID", "CANCELLED", "EXPIRED"},
	"DEPOSIT_PAID":         {"CONTRACT_SIGNED", "CANCELLED"},
	"CONTRACT_SIGNED":      {"MORTGAGE_APPROVED", "COMPLETION_SCHEDULED", "CANCELLED"},
	"MORTGAGE_APPROVED":    {"COMPLETION_SCHEDULED", "CANCELLED"},
	"COMPLETION_SCHEDULED": {"COMPLETED", "CANCELLED"},
	"COMPLETED":            {},
	"CANCELLED":            {},
	"EXPIRED":              {},
}

// unitHoldingStatuses keep the unit off the market.
var unitHoldingStatuses = map[string]bool{
	"RESERVATION":          true,
	"DEPOSIT_PAID":         true,
	"CONTRACT_SIGNED":      true,
	"MORTGAGE_APPROVED":    true,
	"COMPLETION_SCHEDULED": true,
}

func validSaleStatus(status string) bool {
	_, ok := saleTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	for _, next := range saleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isTerminalSale(status string) bool {
	return validSaleStatus(status) && len(saleTransitions[status]) == 0
}

// unitStatusFor returns the unit status a sale moving from -> to implies, or
// "" when the unit stays as it is.
func unitStatusFor(from, to, unitStatus string) (string, error) {
	switch to {
	case "RESERVATION":
		if unitStatus != "AVAILABLE" {
			return "", domainError(http.StatusConflict, "UNIT_NOT_AVAILABLE", "Unit is not available for reservation",
				map[string]string{"unitStatus": unitStatus})
		}
		return "RESERVED", nil
	case "CONTRACT_SIGNED":
		return "SALE_AGREED", nil
	case "COMPLETED":
		return "SOLD", nil
	case "CANCELLED", "EXPIRED":
		if unitHoldingStatuses[from] {
			return "AVAILABLE", nil
		}
	}
	return "", nil
}

func positiveAmount(errs fieldErrors, field string, value *decimal.Decimal) {
	if value != nil && !value.IsPositive() {
		errs.add(field, "must be greater than 0")
	}
}

type SaleInput struct {
	UnitID         string           `json:"unitId"`
	BuyerID        string           `json:"buyerId"`
	AgentID        string           `json:"agentId"`
	AgreedPrice    *decimal.Decimal `json:"agreedPrice"`
	Deposit        *decimal.Decimal `json:"deposit"`
	MortgageAmount *decimal.Decimal `json:"mortgageAmount"`
	Notes          string           `json:"notes"`
	Tags           []string         `json:"tags"`
}

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *value, Valid: true}
}

// CreateSale opens an ENQUIRY. Buyers always enquire for themselves.
func (s *Service) CreateSale(ctx context.Context, actor Session, in SaleInput) (store.Sale, error) {
	if err := s.authorize(ctx, actor, rbac.ActionViewSales); err != nil {
		return store.Sale{}, err
	}
	if !s.Can(actor.Role, rbac.ActionManageSales) {
		in.BuyerID = actor.UserID
		in.AgentID = ""
	} else if in.AgentID == "" && rbac.Normalize(actor.Role) == rbac.RoleAgent {
		in.AgentID = actor.UserID
	}

	errs := fieldErrors{}
	if strings.TrimSpace(in.UnitID) == "" {
		errs.add("unitId", "is required")
	}
	if strings.TrimSpace(in.BuyerID) == "" {
		errs.add("buyerId", "is required")
	}
	positiveAmount(errs, "agreedPrice", in.AgreedPrice)
	positiveAmount(errs, "deposit", in.Deposit)
	positiveAmount(errs, "mortgageAmount", in.MortgageAmount)
	if err := errs.err(); err != nil {
		return store.Sale{}, err
	}

	unit, err := s.GetUnit(ctx, actor, in.UnitID)
	if err != nil {
		return store.Sale{}, err
	}
	if unit.Status == "SOLD" {
		return store.Sale{}, conflictError("UNIT_SOLD", "Unit has already been sold")
	}
	if _, err := s.repo.Users.GetUserByID(ctx, in.BuyerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Sale{}, fieldErrors{"buyerId": "does not match a user"}.err()
		}
		return store.Sale{}, err
	}

	var sale store.Sale
	err = s.repo.WithTx(ctx, func(tx *store.Repository) error {
		created, err := tx.Sales.Create(ctx, store.Sale{
			ID:             util.NewID("sale"),
			UnitID:         unit.ID,
			BuyerID:        in.BuyerID,
			AgentID:        in.AgentID,
			Status:         "ENQUIRY",
			AgreedPrice:    nullDecimal(in.AgreedPrice),
			Deposit:        nullDecimal(in.Deposit),
			MortgageAmount: nullDecimal(in.MortgageAmount),
			Notes:          in.Notes,
			Tags:           in.Tags,
		})
		if err != nil {
			return err
		}
		sale = created
		return tx.Sales.AddHistory(ctx, store.SaleStatusChange{
			ID:        util.NewID("ssh"),
			SaleID:    created.ID,
			NewStatus: "ENQUIRY",
			ChangedBy: actor.UserID,
			Note:      "Sale enquiry initiated",
			ChangedAt: created.CreatedAt,
		})
	})
	if err != nil {
		return store.Sale{}, err
	}
	s.record(ctx, actor, audit.ActionSaleCreated, "sale", sale.ID, map[string]any{"unitId": unit.ID, "buyerId": in.BuyerID})
	return sale, nil
}

// GetSale hides other buyers' sales.
func (s *Service) GetSale(ctx context.Context, actor Session, id string) (store.Sale, error) {
	if err := s.authorize(ctx, actor, rbac.ActionViewSales); err != nil {
		return store.Sale{}, err
	}
	sale, err := s.repo.Sales.Get(ctx, id)
	if err != nil {
		return store.Sale{}, orNotFound(err, "Sale not found")
	}
	if rbac.Normalize(actor.Role) == rbac.RoleBuyer && sale.BuyerID != actor.UserID {
		return store.Sale{}, notFoundError("Sale not found")
	}
	return sale, nil
}

// scopeSales restricts buyers to their own sales.
func (s *Service) scopeSales(actor Session, filter store.SaleFilter) store.SaleFilter {
	if rbac.Normalize(actor.Role) == rbac.RoleBuyer {
		filter.BuyerID = actor.UserID
	}
	return filter
}

func (s *Service) ListSales(ctx context.Context, actor Session, filter store.SaleFilter) ([]store.Sale, int, error) {
	if err := s.authorize(ctx, actor, rbac.ActionViewSales); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !validSaleStatus(filter.Status) {
		return nil, 0, validationError("Unknown sale status")
	}
	return s.repo.Sales.List(ctx, s.scopeSales(actor, filter))
}

func (s *Service) SalesSummary(ctx context.Context, actor Session, filter store.SaleFilter) (store.SalesSummary, error) {
	if err := s.authorize(ctx, actor, rbac.ActionViewSales); err != nil {
		return store.SalesSummary{}, err
	}
	return s.repo.Sales.Summary(ctx, s.scopeSales(actor, filter))
}

func (s *Service) SaleHistory(ctx context.Context, actor Session, id string) ([]store.SaleStatusChange, error) {
	if _, err := s.GetSale(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.Sales.History(ctx, id)
}

func (s *Service) UpdateSale(ctx context.Context, actor Session, id string, patch store.SalePatch) (store.Sale, error) {
	if err := s.authorize(ctx, actor, rbac.ActionManageSales); err != nil {
		return store.Sale{}, err
	}
	errs := fieldErrors{}
	positiveAmount(errs, "agreedPrice", patch.AgreedPrice)
	positiveAmount(errs, "deposit", patch.Deposit)
	positiveAmount(errs, "mortgageAmount", patch.MortgageAmount)
	if err := errs.err(); err != nil {
		return store.Sale{}, err
	}
	current, err := s.GetSale(ctx, actor, id)
	if err != nil {
		return store.Sale{}, err
	}
	if isTerminalSale(current.Status) {
		return store.Sale{}, conflictError("SALE_CLOSED", "Sale is "+strings.ToLower(current.Status)+" and can no longer change")
	}
	sale, err := s.repo.Sales.Update(ctx, id, patch)
	return sale, orNotFound(err, "Sale not found")
}

// TransitionSale moves a sale along the pipeline and applies the unit side
// effect in the same transaction.
func (s *Service) TransitionSale(ctx context.Context, actor Session, id, to, note string) (store.Sale, error) {
	if err := s.authorize(ctx, actor, rbac.ActionManageSales); err != nil {
		return store.Sale{}, err
	}
	to = strings.ToUpper(strings.TrimSpace(to))
	if !validSaleStatus(to) {
		return store.Sale{}, validationError("Unknown sale status")
	}

	var (
		sale       store.Sale
		from       string
		unitStatus string
	)
	at := s.now().UTC()
	err := s.repo.WithTx(ctx, func(tx *store.Repository) error {
		current, err := tx.Sales.Get(ctx, id)
		if err != nil {
			return orNotFound(err, "Sale not found")
		}
		from = current.Status
		if !CanTransition(from, to) {
			return domainError(http.StatusUnprocessableEntity, "INVALID_TRANSITION",
				fmt.Sprintf("Cannot move a sale from %s to %s", from, to),
				map[string]any{"from": from, "to": to, "allowed": saleTransitions[from]})
		}
		unit, err := tx.Units.Get(ctx, current.UnitID)
		if err != nil {
			return orNotFound(err, "Unit not found")
		}
		if unitStatus, err = unitStatusFor(from, to, unit.Status); err != nil {
			return err
		}
		if to == "RESERVATION" {
			if err := claimUnit(ctx, tx, unit.ID, id); err != nil {
				return err
			}
		} else if unitStatus != "" && unitStatus != unit.Status {
			if err := tx.Units.SetStatus(ctx, unit.ID, unitStatus); err != nil {
				return err
			}
		}
		if err := tx.Sales.SetStatus(ctx, id, to, at); err != nil {
			return err
		}
		if err := tx.Sales.AddHistory(ctx, store.SaleStatusChange{
			ID:             util.NewID("ssh"),
			SaleID:         id,
			PreviousStatus: from,
			NewStatus:      to,
			ChangedBy:      actor.UserID,
			Note:           strings.TrimSpace(note),
			ChangedAt:      at,
		}); err != nil {
			return err
		}
		sale, err = tx.Sales.Get(ctx, id)
		return err
	})
	if err != nil {
		return store.Sale{}, err
	}

	metadata := map[string]any{"from": from, "to": to}
	if unitStatus != "" {
		metadata["unitStatus"] = unitStatus
	}
	s.record(ctx, actor, audit.ActionSaleTransition, "sale", id, metadata)
	if unitStatus != "" {
		s.reindexUnit(ctx, sale.UnitID)
	}
	s.notifyBuyer(ctx, sale, note)
	return sale, nil
}

// claimUnit reserves the unit for saleID. The status write only succeeds
// while the unit is still AVAILABLE, so concurrent reservations cannot both
// hold it.
func claimUnit(ctx context.Context, tx *store.Repository, unitID, saleID string) error {
	held, err := tx.Sales.ActiveForUnit(ctx, unitID, saleID)
	if err != nil {
		return err
	}
	if held {
		return domainError(http.StatusConflict, "UNIT_NOT_AVAILABLE", "Unit is held by another sale",
			map[string]string{"unitId": unitID})
	}
	if err := tx.Units.ClaimStatus(ctx, unitID, "AVAILABLE", "RESERVED"); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domainError(http.StatusConflict, "UNIT_NOT_AVAILABLE", "Unit is not available for reservation",
				map[string]string{"unitId": unitID})
		}
		return err
	}
	return nil
}

func (s *Service) reindexUnit(ctx context.Context, unitID string) {
	u, err := s.repo.Units.Get(ctx, unitID)
	if err != nil {
		return
	}
	d, err := s.repo.Developments.Get(ctx, u.DevelopmentID)
	if err != nil {
		return
	}
	s.search.IndexUnits(d, u)
}

// notifyBuyer emails the buyer about a status change. Failures are logged only.
func (s *Service) notifyBuyer(ctx context.Context, sale store.Sale, note string) {
	if !s.email.IsConfigured() {
		return
	}
	buyer, err := s.repo.Users.GetUserByID(ctx, sale.BuyerID)
	if err != nil {
		return
	}
	unit, err := s.repo.Units.Get(ctx, sale.UnitID)
	if err != nil {
		return
	}
	d, err := s.repo.Developments.Get(ctx, unit.DevelopmentID)
	if err != nil {
		return
	}
	err = s.email.SendSaleStatusEmail(buyer.Email, email.SaleStatusData{
		UserName:    buyer.DisplayName,
		Development: d.Name,
		Unit:        unit.Name,
		Status:      sale.Status,
		Note:        strings.TrimSpace(note),
	})
	if err != nil {
		s.logger.Warn("send sale status email", zap.String("sale_id", sale.ID), zap.Error(err))
	}
}

// AddSaleNote appends "[RFC3339] author: text" to the sale notes.
func (s *Service) AddSaleNote(ctx context.Context, actor Session, id, text string) (store.Sale, error) {
	if err := s.authorize(ctx, actor, rbac.ActionManageSales); err != nil {
		return store.Sale{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Sale{}, fieldErrors{"note": "is required"}.err()
	}
	current, err := s.GetSale(ctx, actor, id)
	if err != nil {
		return store.Sale{}, err
	}
	author := actor.UserName
	if author == "" {
		author = actor.UserID
	}
	line := fmt.Sprintf("[%s] %s: %s", s.now().UTC().Format(time.RFC3339), author, text)
	notes := line
	if strings.TrimSpace(current.Notes) != "" {
		notes = current.Notes + "\n" + line
	}
	sale, err := s.repo.Sales.Update(ctx, id, store.SalePatch{Notes: &notes})
	return sale, orNotFound(err, "Sale not found")
}

// CancelSale moves the sale to CANCELLED with note "Sale cancelled: <reason>".
func (s *Service) CancelSale(ctx context.Context, actor Session, id, reason string) (store.Sale, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return store.Sale{}, fieldErrors{"reason": "is required"}.err()
	}
	return s.TransitionSale(ctx, actor, id, "CANCELLED", "Sale cancelled: "+reason)
}

func (s *Service) ExportSale(ctx context.Context, actor Session, id string, format export.Format) (*export.Result, error) {
	if _, err := s.GetSale(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.export.SaleSummary(ctx, id, format)
}
