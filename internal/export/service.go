package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"propie/api/internal/money"
	"propie/api/internal/store"
)

// DataStore defines the reads a sale summary needs.
type DataStore interface {
	GetSale(ctx context.Context, id string) (store.Sale, error)
	GetUnit(ctx context.Context, id string) (store.Unit, error)
	GetDevelopment(ctx context.Context, id string) (store.Development, error)
	GetUser(ctx context.Context, id string) (store.User, error)
	SaleHistory(ctx context.Context, saleID string) ([]store.SaleStatusChange, error)
}

type repositoryStore struct {
	repo *store.Repository
}

// RepositoryStore adapts a repository to DataStore.
func RepositoryStore(repo *store.Repository) DataStore {
	return repositoryStore{repo: repo}
}

func (r repositoryStore) GetSale(ctx context.Context, id string) (store.Sale, error) {
	return r.repo.Sales.Get(ctx, id)
}

func (r repositoryStore) GetUnit(ctx context.Context, id string) (store.Unit, error) {
	return r.repo.Units.Get(ctx, id)
}

func (r repositoryStore) GetDevelopment(ctx context.Context, id string) (store.Development, error) {
	return r.repo.Developments.Get(ctx, id)
}

func (r repositoryStore) GetUser(ctx context.Context, id string) (store.User, error) {
	return r.repo.Users.GetUserByID(ctx, id)
}

func (r repositoryStore) SaleHistory(ctx context.Context, saleID string) ([]store.SaleStatusChange, error) {
	return r.repo.Sales.History(ctx, saleID)
}

// Service renders sale summaries.
type Service struct {
	store DataStore
	pdf   func(ctx context.Context, html string) ([]byte, error)
	now   func() time.Time
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store, pdf: renderPDF, now: time.Now}
}

// SaleSummary generates the summary of one sale in the requested format.
func (s *Service) SaleSummary(ctx context.Context, saleID string, format Format) (*Result, error) {
	if format != FormatPDF && format != FormatHTML {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	data, err := s.summaryData(ctx, saleID)
	if err != nil {
		return nil, err
	}
	html, err := RenderSaleSummaryHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	filename := sanitizeFilename("sale " + data.DevelopmentName + " " + data.UnitLabel)

	if format == FormatHTML {
		return &Result{Data: []byte(html), Filename: filename + ".html", MimeType: "text/html; charset=utf-8"}, nil
	}
	pdf, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{Data: pdf, Filename: filename + ".pdf", MimeType: "application/pdf"}, nil
}

func (s *Service) summaryData(ctx context.Context, saleID string) (SaleSummaryData, error) {
	sale, err := s.store.GetSale(ctx, saleID)
	if err != nil {
		return SaleSummaryData{}, fmt.Errorf("get sale: %w", err)
	}
	unit, err := s.store.GetUnit(ctx, sale.UnitID)
	if err != nil {
		return SaleSummaryData{}, fmt.Errorf("get unit: %w", err)
	}
	development, err := s.store.GetDevelopment(ctx, unit.DevelopmentID)
	if err != nil {
		return SaleSummaryData{}, fmt.Errorf("get development: %w", err)
	}
	history, err := s.store.SaleHistory(ctx, sale.ID)
	if err != nil {
		return SaleSummaryData{}, fmt.Errorf("get history: %w", err)
	}

	buyerName, buyerEmail, err := s.person(ctx, sale.BuyerID)
	if err != nil {
		return SaleSummaryData{}, err
	}
	agentName := ""
	if sale.AgentID != "" {
		if agentName, _, err = s.person(ctx, sale.AgentID); err != nil {
			return SaleSummaryData{}, err
		}
	}

	enquiry := sale.EnquiryDate
	data := SaleSummaryData{
		SaleID:          sale.ID,
		Status:          sale.Status,
		DevelopmentName: development.Name,
		Address:         joinAddress(development.Address, development.City, development.County, development.Eircode),
		UnitLabel:       unitLabel(unit),
		UnitType:        unit.Type,
		Bedrooms:        unit.Bedrooms,
		Bathrooms:       unit.Bathrooms,
		SizeSqm:         unit.SizeSqm,
		BasePrice:       money.FormatEUR(unit.BasePrice),
		AgreedPrice:     formatAmount(sale.AgreedPrice),
		Deposit:         formatAmount(sale.Deposit),
		MortgageAmount:  formatAmount(sale.MortgageAmount),
		BuyerName:       buyerName,
		BuyerEmail:      buyerEmail,
		AgentName:       agentName,
		EnquiryDate:     &enquiry,
		ReservationDate: sale.ReservationDate,
		ContractDate:    sale.ContractDate,
		CompletionDate:  sale.CompletionDate,
		Notes:           sale.Notes,
		GeneratedAt:     s.now().UTC(),
	}
	// Oldest first reads as a timeline.
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		data.History = append(data.History, HistoryRow{
			At:        h.ChangedAt,
			From:      h.PreviousStatus,
			To:        h.NewStatus,
			ChangedBy: h.ChangedBy,
			Note:      h.Note,
		})
	}
	return data, nil
}

// person resolves a user id to a display name and email; unknown ids print as-is.
func (s *Service) person(ctx context.Context, userID string) (string, string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return userID, "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("get user: %w", err)
	}
	name := user.DisplayName
	if name == "" {
		name = user.Email
	}
	return name, user.Email, nil
}

func unitLabel(u store.Unit) string {
	if u.Name != "" {
		return u.Name
	}
	return "Unit " + u.UnitNumber
}

func formatAmount(value decimal.NullDecimal) string {
	if !value.Valid {
		return "-"
	}
	return money.FormatEUR(value.Decimal)
}

func joinAddress(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}
