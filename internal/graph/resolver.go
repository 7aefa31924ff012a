package graph

import (
	"context"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/shopspring/decimal"

	"propie/api/internal/app"
	"propie/api/internal/rbac"
	"propie/api/internal/store"
)

// Resolver is the root for both Query and Mutation.
type Resolver struct {
	service *app.Service
}

func page(limit, offset *int32) (int, int) {
	var l, o int
	if limit != nil {
		l = int(*limit)
	}
	if offset != nil {
		o = int(*offset)
	}
	return l, o
}

func str(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func id(value *graphql.ID) string {
	if value == nil {
		return ""
	}
	return string(*value)
}

// amount parses an optional decimal argument.
func amount(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, &Error{Code: "VALIDATION_ERROR", Message: field + " must be a decimal amount"}
	}
	return &d, nil
}

func (r *Resolver) Me(ctx context.Context) (*userResolver, error) {
	session, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	u, err := r.service.Me(ctx, session)
	if err != nil {
		return nil, err
	}
	return &userResolver{u: u}, nil
}

func (r *Resolver) Development(ctx context.Context, args struct{ ID graphql.ID }) (*developmentResolver, error) {
	d, err := r.service.GetDevelopment(ctx, sessionFrom(ctx), string(args.ID))
	if err != nil {
		return nil, err
	}
	return &developmentResolver{root: r, d: d}, nil
}

func (r *Resolver) DevelopmentBySlug(ctx context.Context, args struct{ Slug string }) (*developmentResolver, error) {
	d, err := r.service.GetDevelopmentBySlug(ctx, sessionFrom(ctx), args.Slug)
	if err != nil {
		return nil, err
	}
	return &developmentResolver{root: r, d: d}, nil
}

type developmentFilterInput struct {
	Status      *string
	County      *string
	DeveloperID *graphql.ID
	Query       *string
}

func (r *Resolver) Developments(ctx context.Context, args struct {
	Filter *developmentFilterInput
	Limit  *int32
	Offset *int32
}) (*developmentPageResolver, error) {
	filter := store.DevelopmentFilter{}
	if f := args.Filter; f != nil {
		filter.Status = str(f.Status)
		filter.County = str(f.County)
		filter.DeveloperID = id(f.DeveloperID)
		filter.Query = str(f.Query)
	}
	filter.Limit, filter.Offset = page(args.Limit, args.Offset)
	items, total, err := r.service.ListDevelopments(ctx, sessionFrom(ctx), filter)
	if err != nil {
		return nil, err
	}
	out := make([]*developmentResolver, 0, len(items))
	for _, d := range items {
		out = append(out, &developmentResolver{root: r, d: d})
	}
	return &developmentPageResolver{items: out, total: total}, nil
}

func (r *Resolver) DevelopmentStatistics(ctx context.Context, args struct{ ID graphql.ID }) (*statisticsResolver, error) {
	stats, err := r.service.DevelopmentStatistics(ctx, sessionFrom(ctx), string(args.ID))
	if err != nil {
		return nil, err
	}
	return &statisticsResolver{s: stats}, nil
}

func (r *Resolver) Unit(ctx context.Context, args struct{ ID graphql.ID }) (*unitResolver, error) {
	u, err := r.service.GetUnit(ctx, sessionFrom(ctx), string(args.ID))
	if err != nil {
		return nil, err
	}
	return &unitResolver{root: r, u: u}, nil
}

type unitFilterInput struct {
	DevelopmentID *graphql.ID
	Status        *string
	Type          *string
	MinBedrooms   *int32
	MaxBedrooms   *int32
	MinPrice      *string
	MaxPrice      *string
	Query         *string
}

func (r *Resolver) Units(ctx context.Context, args struct {
	Filter *unitFilterInput
	Limit  *int32
	Offset *int32
}) (*unitPageResolver, error) {
	filter := store.UnitFilter{}
	if f := args.Filter; f != nil {
		filter.DevelopmentID = id(f.DevelopmentID)
		filter.Status = str(f.Status)
		filter.Type = str(f.Type)
		filter.Query = str(f.Query)
		if f.MinBedrooms != nil {
			filter.MinBedrooms = int(*f.MinBedrooms)
		}
		if f.MaxBedrooms != nil {
			filter.MaxBedrooms = int(*f.MaxBedrooms)
		}
		var err error
		if filter.MinPrice, err = amount("minPrice", f.MinPrice); err != nil {
			return nil, err
		}
		if filter.MaxPrice, err = amount("maxPrice", f.MaxPrice); err != nil {
			return nil, err
		}
	}
	filter.Limit, filter.Offset = page(args.Limit, args.Offset)
	items, total, err := r.service.ListUnits(ctx, sessionFrom(ctx), filter)
	if err != nil {
		return nil, err
	}
	return &unitPageResolver{items: r.units(items), total: total}, nil
}

func (r *Resolver) units(items []store.Unit) []*unitResolver {
	out := make([]*unitResolver, 0, len(items))
	for _, u := range items {
		out = append(out, &unitResolver{root: r, u: u})
	}
	return out
}

func (r *Resolver) Sale(ctx context.Context, args struct{ ID graphql.ID }) (*saleResolver, error) {
	session, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	s, err := r.service.GetSale(ctx, session, string(args.ID))
	if err != nil {
		return nil, err
	}
	return &saleResolver{root: r, s: s}, nil
}

type saleFilterInput struct {
	Status        *string
	DevelopmentID *graphql.ID
	UnitID        *graphql.ID
	BuyerID       *graphql.ID
	AgentID       *graphql.ID
}

func (r *Resolver) Sales(ctx context.Context, args struct {
	Filter *saleFilterInput
	Limit  *int32
	Offset *int32
}) (*salePageResolver, error) {
	session, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	filter := store.SaleFilter{}
	if f := args.Filter; f != nil {
		filter.Status = str(f.Status)
		filter.DevelopmentID = id(f.DevelopmentID)
		filter.UnitID = id(f.UnitID)
		filter.BuyerID = id(f.BuyerID)
		filter.AgentID = id(f.AgentID)
	}
	filter.Limit, filter.Offset = page(args.Limit, args.Offset)
	items, total, err := r.service.ListSales(ctx, session, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*saleResolver, 0, len(items))
	for _, s := range items {
		out = append(out, &saleResolver{root: r, s: s})
	}
	return &salePageResolver{items: out, total: total}, nil
}

func (r *Resolver) SalesSummary(ctx context.Context, args struct{ DevelopmentID *graphql.ID }) (*summaryResolver, error) {
	session, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := r.service.SalesSummary(ctx, session, store.SaleFilter{DevelopmentID: id(args.DevelopmentID)})
	if err != nil {
		return nil, err
	}
	return &summaryResolver{s: summary}, nil
}

type createDevelopmentInput struct {
	Name             string
	Slug             *string
	Status           *string
	Description      string
	ShortDescription *string
	MainImage        string
	Address          string
	City             string
	County           string
	Eircode          *string
	Latitude         *float64
	Longitude        *float64
	TotalUnits       int32
	Features         *[]string
	Published        *bool
	DeveloperID      *graphql.ID
}

func (r *Resolver) CreateDevelopment(ctx context.Context, args struct{ Input createDevelopmentInput }) (*developmentResolver, error) {
	session, err := requireRole(ctx, rbac.RoleDeveloper, rbac.RoleAdmin)
	if err != nil {
		return nil, err
	}
	in := args.Input
	input := app.DevelopmentInput{
		Name:             in.Name,
		Slug:             str(in.Slug),
		Status:           str(in.Status),
		Description:      in.Description,
		ShortDescription: str(in.ShortDescription),
		MainImage:        in.MainImage,
		Address:          in.Address,
		City:             in.City,
		County:           in.County,
		Eircode:          str(in.Eircode),
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		TotalUnits:       int(in.TotalUnits),
		DeveloperID:      id(in.DeveloperID),
	}
	if in.Features != nil {
		input.Features = *in.Features
	}
	if in.Published != nil {
		input.Published = *in.Published
	}
	d, err := r.service.CreateDevelopment(ctx, session, input)
	if err != nil {
		return nil, err
	}
	return &developmentResolver{root: r, d: d}, nil
}

func (r *Resolver) BulkUpdateUnitStatus(ctx context.Context, args struct {
	UnitIDs []graphql.ID
	Status  string
}) ([]*unitResolver, error) {
	session, err := requireRole(ctx, rbac.RoleDeveloper, rbac.RoleAdmin)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(args.UnitIDs))
	for _, unitID := range args.UnitIDs {
		ids = append(ids, string(unitID))
	}
	units, err := r.service.BulkUpdateStatus(ctx, session, ids, args.Status)
	if err != nil {
		return nil, err
	}
	return r.units(units), nil
}

type createSaleInput struct {
	UnitID         graphql.ID
	BuyerID        *graphql.ID
	AgentID        *graphql.ID
	AgreedPrice    *string
	Deposit        *string
	MortgageAmount *string
	Notes          *string
	Tags           *[]string
}

func (r *Resolver) CreateSale(ctx context.Context, args struct{ Input createSaleInput }) (*saleResolver, error) {
	session, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	in := args.Input
	input := app.SaleInput{
		UnitID:  string(in.UnitID),
		BuyerID: id(in.BuyerID),
		AgentID: id(in.AgentID),
		Notes:   str(in.Notes),
	}
	if input.AgreedPrice, err = amount("agreedPrice", in.AgreedPrice); err != nil {
		return nil, err
	}
	if input.Deposit, err = amount("deposit", in.Deposit); err != nil {
		return nil, err
	}
	if input.MortgageAmount, err = amount("mortgageAmount", in.MortgageAmount); err != nil {
		return nil, err
	}
	if in.Tags != nil {
		input.Tags = *in.Tags
	}
	s, err := r.service.CreateSale(ctx, session, input)
	if err != nil {
		return nil, err
	}
	return &saleResolver{root: r, s: s}, nil
}

func (r *Resolver) TransitionSale(ctx context.Context, args struct {
	ID     graphql.ID
	Status string
	Note   *string
}) (*saleResolver, error) {
	session, err := requireRole(ctx, rbac.RoleAgent, rbac.RoleDeveloper, rbac.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s, err := r.service.TransitionSale(ctx, session, string(args.ID), args.Status, str(args.Note))
	if err != nil {
		return nil, err
	}
	return &saleResolver{root: r, s: s}, nil
}
