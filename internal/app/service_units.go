package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"propie/api/internal/audit"
	"propie/api/internal/rbac"
	"propie/api/internal/store"
	"propie/api/internal/util"
)

var unitTypes = map[string]bool{
	"APARTMENT":     true,
	"DUPLEX":        true,
	"TERRACED":      true,
	"SEMI_DETACHED": true,
	"DETACHED":      true,
}

var unitStatuses = map[string]bool{
	"AVAILABLE":   true,
	"RESERVED":    true,
	"SALE_AGREED": true,
	"SOLD":        true,
	"UNAVAILABLE": true,
}

type UnitInput struct {
	UnitNumber string          `json:"unitNumber"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Bedrooms   int             `json:"bedrooms"`
	Bathrooms  int             `json:"bathrooms"`
	SizeSqm    float64         `json:"sizeSqm"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	Status     string          `json:"status"`
	BERRating  string          `json:"berRating"`
	Block      string          `json:"block"`
	Floor      int             `json:"floor"`
	Features   []string        `json:"features"`
}

func (in UnitInput) validate() error {
	errs := fieldErrors{}
	if strings.TrimSpace(in.UnitNumber) == "" {
		errs.add("unitNumber", "is required")
	}
	if !unitTypes[in.Type] {
		errs.add("type", "is not a valid unit type")
	}
	if in.Bedrooms < 0 {
		errs.add("bedrooms", "cannot be negative")
	}
	if in.Bathrooms < 0 {
		errs.add("bathrooms", "cannot be negative")
	}
	if in.SizeSqm < 0 {
		errs.add("sizeSqm", "cannot be negative")
	}
	if !in.BasePrice.IsPositive() {
		errs.add("basePrice", "must be greater than 0")
	}
	if in.Status != "" && !unitStatuses[in.Status] {
		errs.add("status", "is not a valid unit status")
	}
	return errs.err()
}

func (s *Service) CreateUnit(ctx context.Context, actor Session, developmentID string, in UnitInput) (store.Unit, error) {
	d, err := s.ownedDevelopment(ctx, actor, developmentID, rbac.ActionManageUnits)
	if err != nil {
		return store.Unit{}, err
	}
	if err := in.validate(); err != nil {
		return store.Unit{}, err
	}
	status := in.Status
	if status == "" {
		status = "AVAILABLE"
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Unit " + strings.TrimSpace(in.UnitNumber)
	}

	u, err := s.repo.Units.Create(ctx, store.Unit{
		ID:            util.NewID("unit"),
		DevelopmentID: d.ID,
		UnitNumber:    strings.TrimSpace(in.UnitNumber),
		Name:          name,
		Type:          in.Type,
		Bedrooms:      in.Bedrooms,
		Bathrooms:     in.Bathrooms,
		SizeSqm:       in.SizeSqm,
		BasePrice:     in.BasePrice,
		Status:        status,
		BERRating:     in.BERRating,
		Block:         in.Block,
		Floor:         in.Floor,
		Features:      in.Features,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Unit{}, conflictError("UNIT_NUMBER_TAKEN", "Unit number already exists in this development")
		}
		return store.Unit{}, err
	}
	s.search.IndexUnits(d, u)
	return u, nil
}

// GetUnit returns the unit when its development is visible to the actor.
func (s *Service) GetUnit(ctx context.Context, actor Session, id string) (store.Unit, error) {
	u, err := s.repo.Units.Get(ctx, id)
	if err != nil {
		return store.Unit{}, orNotFound(err, "Unit not found")
	}
	if _, err := s.GetDevelopment(ctx, actor, u.DevelopmentID); err != nil {
		return store.Unit{}, notFoundError("Unit not found")
	}
	return u, nil
}

func (s *Service) ListUnits(ctx context.Context, actor Session, filter store.UnitFilter) ([]store.Unit, int, error) {
	if filter.DevelopmentID != "" {
		if _, err := s.GetDevelopment(ctx, actor, filter.DevelopmentID); err != nil {
			return nil, 0, err
		}
	}
	if filter.Status != "" && !unitStatuses[filter.Status] {
		return nil, 0, validationError("Unknown unit status")
	}
	// Unscoped listings drop units of unpublished developments.
	if filter.DevelopmentID == "" && !canSeeDrafts(actor) {
		filter.PublishedOnly = true
	}
	return s.repo.Units.List(ctx, filter)
}

func (s *Service) unitForChange(ctx context.Context, actor Session, id string) (store.Unit, store.Development, error) {
	if err := s.authorize(ctx, actor, rbac.ActionManageUnits); err != nil {
		return store.Unit{}, store.Development{}, err
	}
	u, err := s.repo.Units.Get(ctx, id)
	if err != nil {
		return store.Unit{}, store.Development{}, orNotFound(err, "Unit not found")
	}
	d, err := s.ownedDevelopment(ctx, actor, u.DevelopmentID, rbac.ActionManageUnits)
	if err != nil {
		return store.Unit{}, store.Development{}, err
	}
	return u, d, nil
}

func (s *Service) UpdateUnit(ctx context.Context, actor Session, id string, patch store.UnitPatch) (store.Unit, error) {
	_, d, err := s.unitForChange(ctx, actor, id)
	if err != nil {
		return store.Unit{}, err
	}
	errs := fieldErrors{}
	if patch.Type != nil && !unitTypes[*patch.Type] {
		errs.add("type", "is not a valid unit type")
	}
	if patch.Status != nil && !unitStatuses[*patch.Status] {
		errs.add("status", "is not a valid unit status")
	}
	if patch.BasePrice != nil && !patch.BasePrice.IsPositive() {
		errs.add("basePrice", "must be greater than 0")
	}
	if patch.Bedrooms != nil && *patch.Bedrooms < 0 {
		errs.add("bedrooms", "cannot be negative")
	}
	if patch.Bathrooms != nil && *patch.Bathrooms < 0 {
		errs.add("bathrooms", "cannot be negative")
	}
	if patch.SizeSqm != nil && *patch.SizeSqm < 0 {
		errs.add("sizeSqm", "cannot be negative")
	}
	if err := errs.err(); err != nil {
		return store.Unit{}, err
	}

	u, err := s.repo.Units.Update(ctx, id, patch)
	if err != nil {
		return store.Unit{}, orNotFound(err, "Unit not found")
	}
	s.search.IndexUnits(d, u)
	return u, nil
}

// DeleteUnit removes AVAILABLE or UNAVAILABLE units that no sale references.
func (s *Service) DeleteUnit(ctx context.Context, actor Session, id string) error {
	u, _, err := s.unitForChange(ctx, actor, id)
	if err != nil {
		return err
	}
	if u.Status != "AVAILABLE" && u.Status != "UNAVAILABLE" {
		return conflictError("UNIT_NOT_DELETABLE", "Only available or unavailable units can be deleted")
	}
	_, sales, err := s.repo.Sales.List(ctx, store.SaleFilter{UnitID: id, Limit: 1})
	if err != nil {
		return err
	}
	if sales > 0 {
		return conflictError("UNIT_HAS_SALES", "Cannot delete a unit with recorded sales")
	}
	if err := s.repo.Units.Delete(ctx, id); err != nil {
		return orNotFound(err, "Unit not found")
	}
	s.search.DeleteUnit(id)
	return nil
}

// errNotOwner aborts a bulk transaction when a unit belongs to someone else's development.
var errNotOwner = errors.New("unit belongs to another developer")

// bulkTarget loads a unit inside tx and checks the actor owns its development.
func bulkTarget(ctx context.Context, tx *store.Repository, actor Session, id string, devs map[string]store.Development) (store.Unit, error) {
	u, err := tx.Units.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Unit{}, domainError(http.StatusNotFound, "NOT_FOUND", "Unit not found", map[string]string{"unitId": id})
		}
		return store.Unit{}, err
	}
	d, ok := devs[u.DevelopmentID]
	if !ok {
		if d, err = tx.Developments.Get(ctx, u.DevelopmentID); err != nil {
			return store.Unit{}, err
		}
		devs[u.DevelopmentID] = d
	}
	if !ownsDevelopment(actor, d) {
		return store.Unit{}, errNotOwner
	}
	return u, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// BulkUpdateStatus sets status on every unit in one transaction; a missing
// unit rolls the whole batch back.
func (s *Service) BulkUpdateStatus(ctx context.Context, actor Session, ids []string, status string) ([]store.Unit, error) {
	if err := s.authorize(ctx, actor, rbac.ActionManageUnits); err != nil {
		return nil, err
	}
	ids = dedupe(ids)
	errs := fieldErrors{}
	if len(ids) == 0 {
		errs.add("unitIds", "at least one unit id is required")
	}
	if !unitStatuses[status] {
		errs.add("status", "is not a valid unit status")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	devs := map[string]store.Development{}
	updated := make([]store.Unit, 0, len(ids))
	err := s.repo.WithTx(ctx, func(tx *store.Repository) error {
		for _, id := range ids {
			if _, err := bulkTarget(ctx, tx, actor, id, devs); err != nil {
				return err
			}
			if err := tx.Units.SetStatus(ctx, id, status); err != nil {
				return err
			}
			u, err := tx.Units.Get(ctx, id)
			if err != nil {
				return err
			}
			updated = append(updated, u)
		}
		return nil
	})
	if err != nil {
		return nil, s.bulkError(ctx, actor, err)
	}

	s.record(ctx, actor, audit.ActionUnitBulkStatus, "unit", "", map[string]any{"unitIds": ids, "status": status, "count": len(updated)})
	s.reindexUnits(devs, updated)
	return updated, nil
}

// BulkUpdatePrice applies every price in one transaction. All prices are
// checked before anything is written.
func (s *Service) BulkUpdatePrice(ctx context.Context, actor Session, updates []store.PriceUpdate) ([]store.Unit, error) {
	if err := s.authorize(ctx, actor, rbac.ActionManageUnits); err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	if len(updates) == 0 {
		errs.add("updates", "at least one price update is required")
	}
	seen := map[string]bool{}
	for _, up := range updates {
		switch {
		case strings.TrimSpace(up.UnitID) == "":
			errs.add("unitId", "is required")
		case !up.Price.IsPositive():
			errs.add(up.UnitID, "price must be greater than 0")
		case seen[up.UnitID]:
			errs.add(up.UnitID, "appears more than once")
		}
		seen[up.UnitID] = true
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	devs := map[string]store.Development{}
	updated := make([]store.Unit, 0, len(updates))
	err := s.repo.WithTx(ctx, func(tx *store.Repository) error {
		for _, up := range updates {
			if _, err := bulkTarget(ctx, tx, actor, up.UnitID, devs); err != nil {
				return err
			}
			if err := tx.Units.SetPrice(ctx, up.UnitID, up.Price); err != nil {
				return err
			}
			u, err := tx.Units.Get(ctx, up.UnitID)
			if err != nil {
				return err
			}
			updated = append(updated, u)
		}
		return nil
	})
	if err != nil {
		return nil, s.bulkError(ctx, actor, err)
	}

	prices := make(map[string]string, len(updated))
	for _, u := range updated {
		prices[u.ID] = u.BasePrice.StringFixed(2)
	}
	s.record(ctx, actor, audit.ActionUnitBulkPrice, "unit", "", map[string]any{"prices": prices, "count": len(updated)})
	s.reindexUnits(devs, updated)
	return updated, nil
}

// bulkError runs after rollback, so auditing cannot contend with the transaction.
func (s *Service) bulkError(ctx context.Context, actor Session, err error) error {
	if errors.Is(err, errNotOwner) {
		s.denied(ctx, actor, "development_owner", "unit", "")
		return forbiddenError()
	}
	return err
}

func (s *Service) reindexUnits(devs map[string]store.Development, units []store.Unit) {
	byDev := map[string][]store.Unit{}
	for _, u := range units {
		byDev[u.DevelopmentID] = append(byDev[u.DevelopmentID], u)
	}
	for id, us := range byDev {
		s.search.IndexUnits(devs[id], us...)
	}
}
