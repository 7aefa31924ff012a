package search

import (
	"github.com/shopspring/decimal"

	"propie/api/internal/money"
	"propie/api/internal/store"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDevelopment ResultType = "development"
	ResultUnit        ResultType = "unit"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type          ResultType `json:"type"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Snippet       string     `json:"snippet"`
	DevelopmentID string     `json:"developmentId"`
	Slug          string     `json:"slug,omitempty"`
	Status        string     `json:"status"`
	Price         string     `json:"price,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	DevelopmentID string
	PublishedOnly bool
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// DevelopmentRecord is the data we index for a development.
type DevelopmentRecord struct {
	ID               string `json:"id"`
	Slug             string `json:"slug"`
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
	City             string `json:"city"`
	County           string `json:"county"`
	Status           string `json:"status"`
	Published        bool   `json:"published"`
}

// UnitRecord is the data we index for a unit.
type UnitRecord struct {
	ID              string  `json:"id"`
	DevelopmentID   string  `json:"developmentId"`
	DevelopmentName string  `json:"developmentName"`
	UnitNumber      string  `json:"unitNumber"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Bedrooms        int     `json:"bedrooms"`
	Status          string  `json:"status"`
	Price           float64 `json:"price"`
	PriceLabel      string  `json:"priceLabel"`
	Published       bool    `json:"published"`
}

func DevelopmentRecordFrom(d store.Development) DevelopmentRecord {
	return DevelopmentRecord{
		ID:               d.ID,
		Slug:             d.Slug,
		Name:             d.Name,
		ShortDescription: d.ShortDescription,
		City:             d.City,
		County:           d.County,
		Status:           d.Status,
		Published:        d.Published,
	}
}

func UnitRecordFrom(u store.Unit, d store.Development) UnitRecord {
	price, _ := u.BasePrice.Float64()
	return UnitRecord{
		ID:              u.ID,
		DevelopmentID:   u.DevelopmentID,
		DevelopmentName: d.Name,
		UnitNumber:      u.UnitNumber,
		Name:            unitTitle(u.Name, u.UnitNumber),
		Type:            u.Type,
		Bedrooms:        u.Bedrooms,
		Status:          u.Status,
		Price:           price,
		PriceLabel:      money.FormatEUR(u.BasePrice),
		Published:       d.Published,
	}
}

func unitTitle(name, number string) string {
	if name != "" {
		return name
	}
	return "Unit " + number
}

func formatPrice(value float64) string {
	if value <= 0 {
		return ""
	}
	return money.FormatEUR(decimal.NewFromFloat(value))
}
