package app

import (
	"context"
	"fmt"
	"strings"

	"propie/api/internal/audit"
	"propie/api/internal/money"
	"propie/api/internal/rbac"
	"propie/api/internal/store"
	"propie/api/internal/util"
)

var developmentStatuses = map[string]bool{
	"PLANNING":           true,
	"CONSTRUCTION":       true,
	"SALES":              true,
	"NEARING_COMPLETION": true,
	"COMPLETED":          true,
}

type DevelopmentInput struct {
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Status           string   `json:"status"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"shortDescription"`
	MainImage        string   `json:"mainImage"`
	Address          string   `json:"address"`
	City             string   `json:"city"`
	County           string   `json:"county"`
	Eircode          string   `json:"eircode"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	TotalUnits       int      `json:"totalUnits"`
	Features         []string `json:"features"`
	Published        bool     `json:"published"`
	// DeveloperID lets an admin create on behalf of a developer.
	DeveloperID string `json:"developerId"`
}

func (in DevelopmentInput) validate() error {
	errs := fieldErrors{}
	required := []struct{ field, value string }{
		{"name", in.Name},
		{"description", in.Description},
		{"mainImage", in.MainImage},
		{"address", in.Address},
		{"city", in.City},
		{"county", in.County},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs.add(r.field, "is required")
		}
	}
	if in.TotalUnits <= 0 {
		errs.add("totalUnits", "must be greater than 0")
	}
	if in.Status != "" && !developmentStatuses[in.Status] {
		errs.add("status", "is not a valid development status")
	}
	validateCoordinates(errs, in.Latitude, in.Longitude)
	return errs.err()
}

func validateCoordinates(errs fieldErrors, lat, lon *float64) {
	if lat != nil && (*lat < -90 || *lat > 90) {
		errs.add("latitude", "must be between -90 and 90")
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		errs.add("longitude", "must be between -180 and 180")
	}
}

func (s *Service) CreateDevelopment(ctx context.Context, actor Session, in DevelopmentInput) (store.Development, error) {
	if err := s.authorize(ctx, actor, rbac.ActionManageDevelopments); err != nil {
		return store.Development{}, err
	}
	if err := in.validate(); err != nil {
		return store.Development{}, err
	}

	developerID := actor.UserID
	if actor.isAdmin() && in.DeveloperID != "" {
		developerID = in.DeveloperID
	}
	base := util.Slugify(in.Slug)
	if base == "" {
		base = util.Slugify(in.Name)
	}
	slug, err := s.uniqueSlug(ctx, base)
	if err != nil {
		return store.Development{}, err
	}
	status := in.Status
	if status == "" {
		status = "PLANNING"
	}

	d, err := s.repo.Developments.Create(ctx, store.Development{
		ID:               util.NewID("dev"),
		Slug:             slug,
		Name:             strings.TrimSpace(in.Name),
		DeveloperID:      developerID,
		Status:           status,
		Description:      in.Description,
		ShortDescription: in.ShortDescription,
		MainImage:        in.MainImage,
		Address:          in.Address,
		City:             in.City,
		County:           in.County,
		Eircode:          in.Eircode,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		TotalUnits:       in.TotalUnits,
		Features:         in.Features,
		Published:        in.Published,
	})
	if err != nil {
		return store.Development{}, err
	}
	s.search.IndexDevelopment(d)
	return d, nil
}

// uniqueSlug appends -2, -3, ... to base until no development uses it.
func (s *Service) uniqueSlug(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = "development"
	}
	slug := base
	for i := 2; ; i++ {
		exists, err := s.repo.Developments.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// visibleDevelopment hides drafts from callers who may not see them.
func (s *Service) visibleDevelopment(actor Session, d store.Development, err error) (store.Development, error) {
	if err != nil {
		return store.Development{}, orNotFound(err, "Development not found")
	}
	if !d.Published && !canSeeDrafts(actor) {
		return store.Development{}, notFoundError("Development not found")
	}
	return d, nil
}

func (s *Service) GetDevelopment(ctx context.Context, actor Session, id string) (store.Development, error) {
	d, err := s.repo.Developments.Get(ctx, id)
	return s.visibleDevelopment(actor, d, err)
}

func (s *Service) GetDevelopmentBySlug(ctx context.Context, actor Session, slug string) (store.Development, error) {
	d, err := s.repo.Developments.GetBySlug(ctx, slug)
	return s.visibleDevelopment(actor, d, err)
}

func (s *Service) ListDevelopments(ctx context.Context, actor Session, filter store.DevelopmentFilter) ([]store.Development, int, error) {
	if !canSeeDrafts(actor) {
		filter.PublishedOnly = true
	}
	return s.repo.Developments.List(ctx, filter)
}

// ownedDevelopment loads a development the actor may change.
func (s *Service) ownedDevelopment(ctx context.Context, actor Session, id string, action rbac.Action) (store.Development, error) {
	if err := s.authorize(ctx, actor, action); err != nil {
		return store.Development{}, err
	}
	d, err := s.repo.Developments.Get(ctx, id)
	if err != nil {
		return store.Development{}, orNotFound(err, "Development not found")
	}
	if !ownsDevelopment(actor, d) {
		s.denied(ctx, actor, "development_owner", "development", d.ID)
		return store.Development{}, forbiddenError()
	}
	return d, nil
}

func (s *Service) UpdateDevelopment(ctx context.Context, actor Session, id string, patch store.DevelopmentPatch) (store.Development, error) {
	if _, err := s.ownedDevelopment(ctx, actor, id, rbac.ActionManageDevelopments); err != nil {
		return store.Development{}, err
	}

	errs := fieldErrors{}
	for field, value := range map[string]*string{
		"name":        patch.Name,
		"description": patch.Description,
		"mainImage":   patch.MainImage,
		"address":     patch.Address,
		"city":        patch.City,
		"county":      patch.County,
	} {
		if value != nil && strings.TrimSpace(*value) == "" {
			errs.add(field, "cannot be empty")
		}
	}
	if patch.Status != nil && !developmentStatuses[*patch.Status] {
		errs.add("status", "is not a valid development status")
	}
	if patch.TotalUnits != nil && *patch.TotalUnits <= 0 {
		errs.add("totalUnits", "must be greater than 0")
	}
	validateCoordinates(errs, patch.Latitude, patch.Longitude)
	if err := errs.err(); err != nil {
		return store.Development{}, err
	}

	d, err := s.repo.Developments.Update(ctx, id, patch)
	if err != nil {
		return store.Development{}, orNotFound(err, "Development not found")
	}
	s.search.IndexDevelopment(d)
	return d, nil
}

// DeleteDevelopment refuses while any unit is held or sold, or any sale
// references one of its units.
func (s *Service) DeleteDevelopment(ctx context.Context, actor Session, id string) error {
	d, err := s.ownedDevelopment(ctx, actor, id, rbac.ActionManageDevelopments)
	if err != nil {
		return err
	}
	counts, err := s.repo.Developments.Counts(ctx, id)
	if err != nil {
		return err
	}
	if counts.Sold+counts.Reserved+counts.SaleAgreed > 0 {
		return conflictError("DEVELOPMENT_HAS_SOLD_UNITS", "Cannot delete a development with sold or reserved units")
	}
	_, sales, err := s.repo.Sales.List(ctx, store.SaleFilter{DevelopmentID: id, Limit: 1})
	if err != nil {
		return err
	}
	if sales > 0 {
		return conflictError("DEVELOPMENT_HAS_SALES", "Cannot delete a development with recorded sales")
	}
	unitIDs, err := s.repo.Units.IDsByDevelopment(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Developments.Delete(ctx, id); err != nil {
		return orNotFound(err, "Development not found")
	}
	s.search.DeleteDevelopment(id)
	for _, unitID := range unitIDs {
		s.search.DeleteUnit(unitID)
	}
	s.record(ctx, actor, audit.ActionDevelopmentDeleted, "development", id, map[string]any{"name": d.Name, "slug": d.Slug})
	return nil
}

type DevelopmentStatistics struct {
	TotalUnits      int     `json:"totalUnits"`
	AvailableUnits  int     `json:"availableUnits"`
	ReservedUnits   int     `json:"reservedUnits"`
	SaleAgreedUnits int     `json:"saleAgreedUnits"`
	SoldUnits       int     `json:"soldUnits"`
	OccupancyRate   float64 `json:"occupancyRate"`
}

func statisticsFrom(c store.UnitCounts) DevelopmentStatistics {
	stats := DevelopmentStatistics{
		TotalUnits:      c.Total,
		AvailableUnits:  c.Available,
		ReservedUnits:   c.Reserved,
		SaleAgreedUnits: c.SaleAgreed,
		SoldUnits:       c.Sold,
	}
	if c.Total > 0 {
		stats.OccupancyRate = float64(c.Sold+c.Reserved) / float64(c.Total) * 100
	}
	return stats
}

func (s *Service) DevelopmentStatistics(ctx context.Context, actor Session, id string) (DevelopmentStatistics, error) {
	if _, err := s.GetDevelopment(ctx, actor, id); err != nil {
		return DevelopmentStatistics{}, err
	}
	counts, err := s.repo.Developments.Counts(ctx, id)
	if err != nil {
		return DevelopmentStatistics{}, err
	}
	return statisticsFrom(counts), nil
}

type DevelopmentSummary struct {
	Development    store.Development
	AvailableUnits int
	PriceRange     string
}

func (s *Service) DevelopmentSummary(ctx context.Context, actor Session, id string) (DevelopmentSummary, error) {
	d, err := s.GetDevelopment(ctx, actor, id)
	if err != nil {
		return DevelopmentSummary{}, err
	}
	counts, err := s.repo.Developments.Counts(ctx, id)
	if err != nil {
		return DevelopmentSummary{}, err
	}
	summary := DevelopmentSummary{Development: d, AvailableUnits: counts.Available, PriceRange: money.FormatRange(nil, nil)}
	pr, err := s.repo.Developments.PriceRange(ctx, id)
	if err != nil {
		return DevelopmentSummary{}, err
	}
	if pr != nil {
		summary.PriceRange = money.FormatRange(&pr.Min, &pr.Max)
	}
	return summary, nil
}

