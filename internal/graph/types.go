package graph

import (
	"context"
	"sort"
	"strings"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/shopspring/decimal"

	"propie/api/internal/app"
	"propie/api/internal/money"
	"propie/api/internal/store"
)

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timestamp(*t)
	return &s
}

func optionalAmount(value decimal.NullDecimal) *string {
	if !value.Valid {
		return nil
	}
	s := value.Decimal.StringFixed(2)
	return &s
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

type userResolver struct {
	u store.User
}

func (r *userResolver) ID() graphql.ID      { return graphql.ID(r.u.ID) }
func (r *userResolver) Email() string       { return r.u.Email }
func (r *userResolver) DisplayName() string { return r.u.DisplayName }
func (r *userResolver) Role() string        { return strings.ToUpper(r.u.Role) }
func (r *userResolver) EmailVerified() bool { return r.u.IsEmailVerified }
func (r *userResolver) CreatedAt() string   { return timestamp(r.u.CreatedAt) }

type developmentResolver struct {
	root *Resolver
	d    store.Development
}

func (r *developmentResolver) ID() graphql.ID           { return graphql.ID(r.d.ID) }
func (r *developmentResolver) Slug() string             { return r.d.Slug }
func (r *developmentResolver) Name() string             { return r.d.Name }
func (r *developmentResolver) DeveloperID() graphql.ID  { return graphql.ID(r.d.DeveloperID) }
func (r *developmentResolver) Status() string           { return r.d.Status }
func (r *developmentResolver) Description() string      { return r.d.Description }
func (r *developmentResolver) ShortDescription() string { return r.d.ShortDescription }
func (r *developmentResolver) MainImage() string        { return r.d.MainImage }
func (r *developmentResolver) Address() string          { return r.d.Address }
func (r *developmentResolver) City() string             { return r.d.City }
func (r *developmentResolver) County() string           { return r.d.County }
func (r *developmentResolver) Eircode() string          { return r.d.Eircode }
func (r *developmentResolver) Latitude() *float64       { return r.d.Latitude }
func (r *developmentResolver) Longitude() *float64      { return r.d.Longitude }
func (r *developmentResolver) TotalUnits() int32        { return int32(r.d.TotalUnits) }
func (r *developmentResolver) Features() []string       { return nonNil(r.d.Features) }
func (r *developmentResolver) Published() bool          { return r.d.Published }
func (r *developmentResolver) CreatedAt() string        { return timestamp(r.d.CreatedAt) }
func (r *developmentResolver) UpdatedAt() string        { return timestamp(r.d.UpdatedAt) }

func (r *developmentResolver) Statistics(ctx context.Context) (*statisticsResolver, error) {
	stats, err := r.root.service.DevelopmentStatistics(ctx, sessionFrom(ctx), r.d.ID)
	if err != nil {
		return nil, err
	}
	return &statisticsResolver{s: stats}, nil
}

func (r *developmentResolver) PriceRange(ctx context.Context) (string, error) {
	summary, err := r.root.service.DevelopmentSummary(ctx, sessionFrom(ctx), r.d.ID)
	if err != nil {
		return "", err
	}
	return summary.PriceRange, nil
}

func (r *developmentResolver) Units(ctx context.Context, args struct{ Status *string }) ([]*unitResolver, error) {
	units, _, err := r.root.service.ListUnits(ctx, sessionFrom(ctx), store.UnitFilter{
		DevelopmentID: r.d.ID,
		Status:        str(args.Status),
		Limit:         500,
	})
	if err != nil {
		return nil, err
	}
	return r.root.units(units), nil
}

type statisticsResolver struct {
	s app.DevelopmentStatistics
}

func (r *statisticsResolver) TotalUnits() int32      { return int32(r.s.TotalUnits) }
func (r *statisticsResolver) AvailableUnits() int32  { return int32(r.s.AvailableUnits) }
func (r *statisticsResolver) ReservedUnits() int32   { return int32(r.s.ReservedUnits) }
func (r *statisticsResolver) SaleAgreedUnits() int32 { return int32(r.s.SaleAgreedUnits) }
func (r *statisticsResolver) SoldUnits() int32       { return int32(r.s.SoldUnits) }
func (r *statisticsResolver) OccupancyRate() float64 { return r.s.OccupancyRate }

type developmentPageResolver struct {
	items []*developmentResolver
	total int
}

func (r *developmentPageResolver) Items() []*developmentResolver { return r.items }
func (r *developmentPageResolver) Total() int32                  { return int32(r.total) }

type unitResolver struct {
	root *Resolver
	u    store.Unit
}

func (r *unitResolver) ID() graphql.ID            { return graphql.ID(r.u.ID) }
func (r *unitResolver) DevelopmentID() graphql.ID { return graphql.ID(r.u.DevelopmentID) }
func (r *unitResolver) UnitNumber() string        { return r.u.UnitNumber }
func (r *unitResolver) Name() string              { return r.u.Name }
func (r *unitResolver) Type() string              { return r.u.Type }
func (r *unitResolver) Bedrooms() int32           { return int32(r.u.Bedrooms) }
func (r *unitResolver) Bathrooms() int32          { return int32(r.u.Bathrooms) }
func (r *unitResolver) SizeSqm() float64          { return r.u.SizeSqm }
func (r *unitResolver) BasePrice() string         { return r.u.BasePrice.StringFixed(2) }
func (r *unitResolver) PriceLabel() string        { return money.FormatEUR(r.u.BasePrice) }
func (r *unitResolver) Status() string            { return r.u.Status }
func (r *unitResolver) BerRating() string         { return r.u.BERRating }
func (r *unitResolver) Block() string             { return r.u.Block }
func (r *unitResolver) Floor() int32              { return int32(r.u.Floor) }
func (r *unitResolver) Features() []string        { return nonNil(r.u.Features) }

func (r *unitResolver) Development(ctx context.Context) (*developmentResolver, error) {
	d, err := r.root.service.GetDevelopment(ctx, sessionFrom(ctx), r.u.DevelopmentID)
	if err != nil {
		return nil, err
	}
	return &developmentResolver{root: r.root, d: d}, nil
}

type unitPageResolver struct {
	items []*unitResolver
	total int
}

func (r *unitPageResolver) Items() []*unitResolver { return r.items }
func (r *unitPageResolver) Total() int32           { return int32(r.total) }

type saleResolver struct {
	root *Resolver
	s    store.Sale
}

func (r *saleResolver) ID() graphql.ID      { return graphql.ID(r.s.ID) }
func (r *saleResolver) UnitID() graphql.ID  { return graphql.ID(r.s.UnitID) }
func (r *saleResolver) BuyerID() graphql.ID { return graphql.ID(r.s.BuyerID) }

func (r *saleResolver) AgentID() *graphql.ID {
	if r.s.AgentID == "" {
		return nil
	}
	agent := graphql.ID(r.s.AgentID)
	return &agent
}

func (r *saleResolver) Status() string           { return r.s.Status }
func (r *saleResolver) AgreedPrice() *string     { return optionalAmount(r.s.AgreedPrice) }
func (r *saleResolver) Deposit() *string         { return optionalAmount(r.s.Deposit) }
func (r *saleResolver) MortgageAmount() *string  { return optionalAmount(r.s.MortgageAmount) }
func (r *saleResolver) EnquiryDate() string      { return timestamp(r.s.EnquiryDate) }
func (r *saleResolver) ReservationDate() *string { return optionalTimestamp(r.s.ReservationDate) }
func (r *saleResolver) ContractDate() *string    { return optionalTimestamp(r.s.ContractDate) }
func (r *saleResolver) CompletionDate() *string  { return optionalTimestamp(r.s.CompletionDate) }
func (r *saleResolver) Notes() string            { return r.s.Notes }
func (r *saleResolver) Tags() []string           { return nonNil(r.s.Tags) }

func (r *saleResolver) Unit(ctx context.Context) (*unitResolver, error) {
	u, err := r.root.service.GetUnit(ctx, sessionFrom(ctx), r.s.UnitID)
	if err != nil {
		return nil, err
	}
	return &unitResolver{root: r.root, u: u}, nil
}

func (r *saleResolver) History(ctx context.Context) ([]*historyResolver, error) {
	changes, err := r.root.service.SaleHistory(ctx, sessionFrom(ctx), r.s.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*historyResolver, 0, len(changes))
	for _, c := range changes {
		out = append(out, &historyResolver{c: c})
	}
	return out, nil
}

type historyResolver struct {
	c store.SaleStatusChange
}

func (r *historyResolver) ID() graphql.ID { return graphql.ID(r.c.ID) }

func (r *historyResolver) PreviousStatus() *string {
	if r.c.PreviousStatus == "" {
		return nil
	}
	previous := r.c.PreviousStatus
	return &previous
}

func (r *historyResolver) NewStatus() string     { return r.c.NewStatus }
func (r *historyResolver) ChangedBy() graphql.ID { return graphql.ID(r.c.ChangedBy) }
func (r *historyResolver) Note() string          { return r.c.Note }
func (r *historyResolver) ChangedAt() string     { return timestamp(r.c.ChangedAt) }

type salePageResolver struct {
	items []*saleResolver
	total int
}

func (r *salePageResolver) Items() []*saleResolver { return r.items }
func (r *salePageResolver) Total() int32           { return int32(r.total) }

type summaryResolver struct {
	s store.SalesSummary
}

func (r *summaryResolver) TotalSales() int32      { return int32(r.s.TotalSales) }
func (r *summaryResolver) TotalValue() string     { return r.s.TotalValue.StringFixed(2) }
func (r *summaryResolver) CompletedSales() int32  { return int32(r.s.CompletedSales) }
func (r *summaryResolver) CompletedValue() string { return r.s.CompletedValue.StringFixed(2) }
func (r *summaryResolver) ActiveSales() int32     { return int32(r.s.ActiveSales) }

// StatusBreakdown lists counts in status name order.
func (r *summaryResolver) StatusBreakdown() []*statusCountResolver {
	statuses := make([]string, 0, len(r.s.StatusBreakdown))
	for status := range r.s.StatusBreakdown {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	out := make([]*statusCountResolver, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, &statusCountResolver{status: status, count: r.s.StatusBreakdown[status]})
	}
	return out
}

type statusCountResolver struct {
	status string
	count  int
}

func (r *statusCountResolver) Status() string { return r.status }
func (r *statusCountResolver) Count() int32   { return int32(r.count) }
