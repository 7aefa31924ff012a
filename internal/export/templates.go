package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var saleSummaryTemplate = template.Must(
	template.New("sale_summary.html").Funcs(template.FuncMap{
		"lower": strings.ToLower,
		"humanize": func(status string) string {
			return strings.ReplaceAll(strings.ToLower(status), "_", " ")
		},
		"formatDate": func(t *time.Time, layout string) string {
			if t == nil || t.IsZero() {
				return "-"
			}
			return t.Format(layout)
		},
	}).ParseFS(templateFS, "templates/sale_summary.html"),
)

// SaleSummaryData holds everything the sale summary template prints.
type SaleSummaryData struct {
	SaleID          string
	Status          string
	DevelopmentName string
	Address         string
	UnitLabel       string
	UnitType        string
	Bedrooms        int
	Bathrooms       int
	SizeSqm         float64
	BasePrice       string
	AgreedPrice     string
	Deposit         string
	MortgageAmount  string
	BuyerName       string
	BuyerEmail      string
	AgentName       string
	EnquiryDate     *time.Time
	ReservationDate *time.Time
	ContractDate    *time.Time
	CompletionDate  *time.Time
	Notes           string
	History         []HistoryRow
	GeneratedAt     time.Time
}

// HistoryRow is one status change in the summary's timeline.
type HistoryRow struct {
	At        time.Time
	From      string
	To        string
	ChangedBy string
	Note      string
}

// RenderSaleSummaryHTML renders the sale summary template with provided data.
func RenderSaleSummaryHTML(data SaleSummaryData) (string, error) {
	var buf bytes.Buffer
	if err := saleSummaryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
