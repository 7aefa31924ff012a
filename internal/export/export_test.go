package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propie/api/internal/store"
)

type fakeStore struct {
	sale    store.Sale
	unit    store.Unit
	dev     store.Development
	users   map[string]store.User
	history []store.SaleStatusChange
}

func (f *fakeStore) GetSale(_ context.Context, id string) (store.Sale, error) {
	if id != f.sale.ID {
		return store.Sale{}, store.ErrNotFound
	}
	return f.sale, nil
}

func (f *fakeStore) GetUnit(context.Context, string) (store.Unit, error) { return f.unit, nil }

func (f *fakeStore) GetDevelopment(context.Context, string) (store.Development, error) {
	return f.dev, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) SaleHistory(context.Context, string) ([]store.SaleStatusChange, error) {
	return f.history, nil
}

func newFakeStore() *fakeStore {
	reserved := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return &fakeStore{
		sale: store.Sale{
			ID:              "sale_1",
			UnitID:          "unit_1",
			BuyerID:         "buyer_1",
			AgentID:         "agent_missing",
			Status:          "RESERVATION",
			AgreedPrice:     decimal.NewNullDecimal(decimal.RequireFromString("385000")),
			Deposit:         decimal.NewNullDecimal(decimal.RequireFromString("10000")),
			EnquiryDate:     time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
			ReservationDate: &reserved,
			Notes:           "Buyer prefers a May completion",
		},
		unit: store.Unit{
			ID: "unit_1", DevelopmentID: "dev_1", UnitNumber: "14", Type: "SEMI_DETACHED",
			Bedrooms: 3, Bathrooms: 2, SizeSqm: 112, BasePrice: decimal.RequireFromString("395000"),
		},
		dev: store.Development{
			ID: "dev_1", Name: "Fitzgerald Gardens", Address: "Rathmullan Road", City: "Drogheda", County: "Louth",
		},
		users: map[string]store.User{
			"buyer_1": {ID: "buyer_1", DisplayName: "Aoife Byrne", Email: "aoife@example.ie"},
		},
		history: []store.SaleStatusChange{
			{PreviousStatus: "OFFER_ACCEPTED", NewStatus: "RESERVATION", ChangedBy: "agent", ChangedAt: reserved},
			{NewStatus: "ENQUIRY", ChangedBy: "buyer_1", Note: "Sale enquiry initiated", ChangedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)},
		},
	}
}

func TestSaleSummaryHTML(t *testing.T) {
	svc := NewService(newFakeStore())
	svc.now = func() time.Time { return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC) }

	res, err := svc.SaleSummary(context.Background(), "sale_1", FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", res.MimeType)
	assert.Equal(t, "sale-Fitzgerald-Gardens-Unit-14.html", res.Filename)

	html := string(res.Data)
	for _, want := range []string{
		"Fitzgerald Gardens",
		"Rathmullan Road, Drogheda, Louth",
		"Aoife Byrne (aoife@example.ie)",
		"agent_missing",
		"€385,000",
		"€10,000",
		"€395,000",
		"4 Mar 2026",
		"semi detached",
		"Sale enquiry initiated",
		"Buyer prefers a May completion",
	} {
		assert.Contains(t, html, want)
	}
	// Timeline runs oldest first.
	assert.Less(t, strings.Index(html, "Sale enquiry initiated"), strings.Index(html, "offer accepted &rarr;"))
}

func TestSaleSummaryPDFUsesRenderer(t *testing.T) {
	svc := NewService(newFakeStore())
	var rendered string
	svc.pdf = func(_ context.Context, html string) ([]byte, error) {
		rendered = html
		return []byte("%PDF-1.4"), nil
	}

	res, err := svc.SaleSummary(context.Background(), "sale_1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", res.MimeType)
	assert.True(t, strings.HasSuffix(res.Filename, ".pdf"))
	assert.Equal(t, []byte("%PDF-1.4"), res.Data)
	assert.Contains(t, rendered, "<!DOCTYPE html>")
}

func TestSaleSummaryErrors(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.SaleSummary(context.Background(), "missing", FormatHTML)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.SaleSummary(context.Background(), "sale_1", Format("docx"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRenderPDFWithoutChrome(t *testing.T) {
	if chromeAvailable() {
		t.Skip("chrome installed; dependency error path not reachable")
	}
	_, err := renderPDF(context.Background(), "<html><body>x</body></html>")
	assert.True(t, errors.Is(err, ErrPDFDependencyMissing))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = ParseFormat("html")
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, f)

	_, err = ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Simple Title", "Simple-Title"},
		{"Unit 14 / Block A", "Unit-14--Block-A"},
		{"Ráth Gardens", "Rth-Gardens"},
		{"", "sale-summary"},
		{"!!!", "sale-summary"},
		{strings.Repeat("a", 80), strings.Repeat("a", 60)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"€", "%E2%82%AC"},
		{"normal-text.txt", "normal-text.txt"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, percentEncodeForDataURL(tt.input))
		})
	}
}
