package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"propie/api/internal/app"
	"propie/api/internal/config"
	"propie/api/internal/store"
)

const password = "correct-horse-battery"

type env struct {
	svc    *app.Service
	repo   *store.Repository
	server http.Handler
}

func newEnv(t *testing.T, environment string) *env {
	t.Helper()
	repo, err := store.Open(context.Background(), store.Options{
		Backend:    store.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "propie.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := app.New(app.Deps{
		Config: config.Config{
			Environment: environment,
			JWTSecret:   "graph-secret",
			AccessTTL:   time.Hour,
			RefreshTTL:  24 * time.Hour,
		},
		Repo:         repo,
		PasswordCost: bcrypt.MinCost,
	})
	handler, err := NewHandler(svc, nil)
	require.NoError(t, err)
	server := app.NewHTTPServer(svc, "*", nil)
	server.MountGraphQL(handler)
	return &env{svc: svc, repo: repo, server: server.Handler()}
}

// login provisions an account and returns its session.
func (e *env) login(t *testing.T, email, name, role string) app.Session {
	t.Helper()
	ctx := context.Background()
	_, err := e.svc.ProvisionUser(ctx, email, password, name, role)
	require.NoError(t, err)
	result, err := e.svc.SignIn(ctx, email, password, nil)
	require.NoError(t, err)
	return result.Session
}

type gqlError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

type gqlResponse struct {
	Data   map[string]any `json:"data"`
	Errors []gqlError     `json:"errors"`
}

func (e *env) query(t *testing.T, token, query string, variables map[string]any) (int, gqlResponse) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)

	var resp gqlResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return rr.Code, resp
}

func (e *env) catalogue(t *testing.T, owner app.Session) (store.Development, store.Unit) {
	t.Helper()
	ctx := context.Background()
	dev, err := e.svc.CreateDevelopment(ctx, owner, app.DevelopmentInput{
		Name:        "Fitzwilliam Gardens",
		Status:      "SALES",
		Description: "Family homes beside the park",
		MainImage:   "/images/fitzwilliam.jpg",
		Address:     "Station Road",
		City:        "Naas",
		County:      "Kildare",
		TotalUnits:  24,
		Published:   true,
	})
	require.NoError(t, err)
	_, err = e.svc.CreateDevelopment(ctx, owner, app.DevelopmentInput{
		Name:        "Hidden Acres",
		Description: "Not launched yet",
		MainImage:   "/images/hidden.jpg",
		Address:     "Back Lane",
		City:        "Naas",
		County:      "Kildare",
		TotalUnits:  10,
	})
	require.NoError(t, err)

	unit, err := e.svc.CreateUnit(ctx, owner, dev.ID, app.UnitInput{
		UnitNumber: "FG-1",
		Type:       "SEMI_DETACHED",
		Bedrooms:   3,
		Bathrooms:  2,
		SizeSqm:    110,
		BasePrice:  decimal.RequireFromString("345000"),
	})
	require.NoError(t, err)
	_, err = e.svc.CreateUnit(ctx, owner, dev.ID, app.UnitInput{
		UnitNumber: "FG-2",
		Type:       "DETACHED",
		Bedrooms:   4,
		Bathrooms:  3,
		SizeSqm:    150,
		BasePrice:  decimal.RequireFromString("495000"),
	})
	require.NoError(t, err)
	return dev, unit
}

func TestAnonymousCatalogueQueries(t *testing.T) {
	e := newEnv(t, "development")
	owner := e.login(t, "dev@example.ie", "Aoife Developer", "developer")
	dev, _ := e.catalogue(t, owner)

	code, resp := e.query(t, "", `{
		developments { total items { name priceRange statistics { totalUnits availableUnits } units { unitNumber priceLabel } } }
	}`, nil)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, resp.Errors)

	page := resp.Data["developments"].(map[string]any)
	require.EqualValues(t, 1, page["total"])
	items := page["items"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	require.Equal(t, "Fitzwilliam Gardens", first["name"])
	require.Equal(t, "€345,000 - €495,000", first["priceRange"])
	require.EqualValues(t, 2, first["statistics"].(map[string]any)["availableUnits"])
	require.Len(t, first["units"], 2)

	_, resp = e.query(t, "", `query($slug: String!) { developmentBySlug(slug: $slug) { id county } }`,
		map[string]any{"slug": dev.Slug})
	require.Empty(t, resp.Errors)
	require.Equal(t, dev.ID, resp.Data["developmentBySlug"].(map[string]any)["id"])

	_, resp = e.query(t, "", `{ developmentBySlug(slug: "hidden-acres") { id } }`, nil)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "NOT_FOUND", resp.Errors[0].Extensions["code"])
	require.Nil(t, resp.Data["developmentBySlug"])

	_, resp = e.query(t, "", `{ units(filter: {minBedrooms: 4}) { total items { unitNumber basePrice development { name } } } }`, nil)
	require.Empty(t, resp.Errors)
	units := resp.Data["units"].(map[string]any)
	require.EqualValues(t, 1, units["total"])
	unit := units["items"].([]any)[0].(map[string]any)
	require.Equal(t, "FG-2", unit["unitNumber"])
	require.Equal(t, "495000.00", unit["basePrice"])
}

func TestMeRequiresAuthentication(t *testing.T) {
	e := newEnv(t, "development")

	code, resp := e.query(t, "", `{ me { email } }`, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Extensions["code"])
	require.Equal(t, []any{"me"}, resp.Errors[0].Path)

	session := e.login(t, "Admin@Example.ie", "Site Admin", "admin")
	_, resp = e.query(t, session.Token, `{ me { email role emailVerified } }`, nil)
	require.Empty(t, resp.Errors)
	me := resp.Data["me"].(map[string]any)
	require.Equal(t, "admin@example.ie", me["email"])
	require.Equal(t, "ADMIN", me["role"])
	require.Equal(t, true, me["emailVerified"])

	code, resp = e.query(t, "not-a-token", `{ me { email } }`, nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Extensions["code"])
}

func TestCreateDevelopmentChecksRole(t *testing.T) {
	e := newEnv(t, "development")
	buyer := e.login(t, "buyer@example.ie", "Ciara Buyer", "buyer")
	developer := e.login(t, "dev@example.ie", "Aoife Developer", "developer")

	mutation := `mutation($input: CreateDevelopmentInput!) { createDevelopment(input: $input) { slug status published features } }`
	input := map[string]any{
		"name":        "Riverside Quarter",
		"description": "Apartments on the quays",
		"mainImage":   "/images/riverside.jpg",
		"address":     "North Quay",
		"city":        "Waterford",
		"county":      "Waterford",
		"totalUnits":  60,
		"features":    []string{"Lift", "Bike store"},
	}

	_, resp := e.query(t, buyer.Token, mutation, map[string]any{"input": input})
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "FORBIDDEN", resp.Errors[0].Extensions["code"])

	_, resp = e.query(t, developer.Token, mutation, map[string]any{"input": input})
	require.Empty(t, resp.Errors)
	created := resp.Data["createDevelopment"].(map[string]any)
	require.Equal(t, "riverside-quarter", created["slug"])
	require.Equal(t, "PLANNING", created["status"])
	require.Equal(t, false, created["published"])
	require.Equal(t, []any{"Lift", "Bike store"}, created["features"])

	input["totalUnits"] = 0
	_, resp = e.query(t, developer.Token, mutation, map[string]any{"input": input})
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "VALIDATION_ERROR", resp.Errors[0].Extensions["code"])
	details := resp.Errors[0].Extensions["details"].(map[string]any)
	require.Equal(t, "must be greater than 0", details["totalUnits"])
}

func TestBulkUpdateUnitStatus(t *testing.T) {
	e := newEnv(t, "development")
	owner := e.login(t, "dev@example.ie", "Aoife Developer", "developer")
	_, unit := e.catalogue(t, owner)

	mutation := `mutation($ids: [ID!]!) { bulkUpdateUnitStatus(unitIds: $ids, status: UNAVAILABLE) { id status } }`
	_, resp := e.query(t, owner.Token, mutation, map[string]any{"ids": []string{unit.ID}})
	require.Empty(t, resp.Errors)
	updated := resp.Data["bulkUpdateUnitStatus"].([]any)
	require.Len(t, updated, 1)
	require.Equal(t, "UNAVAILABLE", updated[0].(map[string]any)["status"])

	_, resp = e.query(t, owner.Token, mutation, map[string]any{"ids": []string{unit.ID, "unit_missing"}})
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "NOT_FOUND", resp.Errors[0].Extensions["code"])
}

func TestSaleLifecycle(t *testing.T) {
	e := newEnv(t, "development")
	owner := e.login(t, "dev@example.ie", "Aoife Developer", "developer")
	agent := e.login(t, "agent@example.ie", "Eoin Agent", "agent")
	buyer := e.login(t, "buyer@example.ie", "Ciara Buyer", "buyer")
	_, unit := e.catalogue(t, owner)

	_, resp := e.query(t, "", `{ sales { total } }`, nil)
	require.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Extensions["code"])

	_, resp = e.query(t, buyer.Token, `mutation($input: CreateSaleInput!) { createSale(input: $input) { id status buyerId agentId agreedPrice } }`,
		map[string]any{"input": map[string]any{"unitId": unit.ID, "agreedPrice": "340000"}})
	require.Empty(t, resp.Errors)
	sale := resp.Data["createSale"].(map[string]any)
	require.Equal(t, "ENQUIRY", sale["status"])
	require.Equal(t, buyer.UserID, sale["buyerId"])
	require.Nil(t, sale["agentId"])
	require.Equal(t, "340000.00", sale["agreedPrice"])
	saleID := sale["id"].(string)

	transition := `mutation($id: ID!, $status: SaleStatus!, $note: String) {
		transitionSale(id: $id, status: $status, note: $note) { status history { previousStatus newStatus note } }
	}`
	_, resp = e.query(t, buyer.Token, transition, map[string]any{"id": saleID, "status": "VIEWING"})
	require.Equal(t, "FORBIDDEN", resp.Errors[0].Extensions["code"])

	_, resp = e.query(t, agent.Token, transition, map[string]any{"id": saleID, "status": "VIEWING", "note": "Saturday 11am"})
	require.Empty(t, resp.Errors)
	moved := resp.Data["transitionSale"].(map[string]any)
	require.Equal(t, "VIEWING", moved["status"])
	history := moved["history"].([]any)
	require.Len(t, history, 2)
	latest := history[0].(map[string]any)
	require.Equal(t, "ENQUIRY", latest["previousStatus"])
	require.Equal(t, "Saturday 11am", latest["note"])

	_, resp = e.query(t, agent.Token, transition, map[string]any{"id": saleID, "status": "COMPLETED"})
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "INVALID_TRANSITION", resp.Errors[0].Extensions["code"])

	_, resp = e.query(t, buyer.Token, `{ salesSummary { totalSales totalValue activeSales statusBreakdown { status count } } }`, nil)
	require.Empty(t, resp.Errors)
	summary := resp.Data["salesSummary"].(map[string]any)
	require.EqualValues(t, 1, summary["totalSales"])
	require.Equal(t, "340000.00", summary["totalValue"])
	require.EqualValues(t, 1, summary["activeSales"])
	require.Equal(t, []any{map[string]any{"status": "VIEWING", "count": float64(1)}}, summary["statusBreakdown"])

	_, resp = e.query(t, buyer.Token, `query($id: ID!) { sale(id: $id) { unit { unitNumber } } }`, map[string]any{"id": saleID})
	require.Empty(t, resp.Errors)
	require.Equal(t, "FG-1", resp.Data["sale"].(map[string]any)["unit"].(map[string]any)["unitNumber"])
}

func TestInvalidAmountIsValidationError(t *testing.T) {
	e := newEnv(t, "development")
	buyer := e.login(t, "buyer@example.ie", "Ciara Buyer", "buyer")

	_, resp := e.query(t, buyer.Token, `mutation { createSale(input: {unitId: "unit_x", deposit: "lots"}) { id } }`, nil)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "VALIDATION_ERROR", resp.Errors[0].Extensions["code"])
	require.Equal(t, "deposit must be a decimal amount", resp.Errors[0].Message)
}

func TestInternalErrorsMaskedInProduction(t *testing.T) {
	for _, tc := range []struct {
		environment string
		masked      bool
	}{
		{environment: "production", masked: true},
		{environment: "development", masked: false},
	} {
		t.Run(tc.environment, func(t *testing.T) {
			e := newEnv(t, tc.environment)
			require.NoError(t, e.repo.Close())

			_, resp := e.query(t, "", `{ developments { total } }`, nil)
			require.Len(t, resp.Errors, 1)
			require.Equal(t, "INTERNAL_SERVER_ERROR", resp.Errors[0].Extensions["code"])
			if tc.masked {
				require.Equal(t, "Internal server error", resp.Errors[0].Message)
			} else {
				require.NotEqual(t, "Internal server error", resp.Errors[0].Message)
			}
		})
	}
}

func TestRejectsMalformedRequests(t *testing.T) {
	e := newEnv(t, "development")

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(`{"query": ""}`))
	rr = httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	code, resp := e.query(t, "", `{ developments { nope } }`, nil)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, resp.Errors)
	require.Nil(t, resp.Errors[0].Extensions)
}
