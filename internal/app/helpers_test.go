package app

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

	"propie/api/internal/config"
	"propie/api/internal/objectstore"
	"propie/api/internal/store"
	"propie/api/internal/util"
)

const testPassword = "correct-horse-battery"

type testEnv struct {
	svc     *Service
	repo    *store.Repository
	objects *objectstore.Memory
	server  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	objects := objectstore.NewMemory()
	return newTestEnvWithObjects(t, objects, objects)
}

// newTestEnvWithObjects wires objects into the service; mem is the memory
// store behind it, kept for assertions.
func newTestEnvWithObjects(t *testing.T, objects objectstore.Store, mem *objectstore.Memory) *testEnv {
	t.Helper()
	repo, err := store.Open(context.Background(), store.Options{
		Backend:    store.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "propie.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := New(Deps{
		Config: config.Config{
			Environment:    "development",
			JWTSecret:      "test-secret",
			AccessTTL:      time.Hour,
			RefreshTTL:     24 * time.Hour,
			DocumentURLTTL: 10 * time.Minute,
			AppBaseURL:     "http://localhost:3000",
		},
		Repo:         repo,
		Objects:      objects,
		PasswordCost: bcrypt.MinCost,
	})
	return &testEnv{
		svc:     svc,
		repo:    repo,
		objects: mem,
		server:  NewHTTPServer(svc, "*", nil).Handler(),
	}
}

// user creates a verified account with testPassword and returns a live session for it.
func (e *testEnv) user(t *testing.T, role, name string) Session {
	t.Helper()
	hash, err := e.svc.passwords.HashPassword(testPassword)
	require.NoError(t, err)
	u := store.User{
		ID:              util.NewID("usr"),
		Email:           util.Slugify(name) + "@example.ie",
		DisplayName:     name,
		PasswordHash:    hash,
		Role:            role,
		IsEmailVerified: true,
	}
	require.NoError(t, e.repo.Users.CreateUser(context.Background(), u))
	session, err := e.svc.issueSession(context.Background(), u)
	require.NoError(t, err)
	return session
}

func (e *testEnv) development(t *testing.T, owner Session, name string, published bool) store.Development {
	t.Helper()
	d, err := e.svc.CreateDevelopment(context.Background(), owner, DevelopmentInput{
		Name:        name,
		Status:      "SALES",
		Description: "New homes close to the town centre",
		MainImage:   "/images/" + util.Slugify(name) + ".jpg",
		Address:     "Dublin Road",
		City:        "Drogheda",
		County:      "Louth",
		TotalUnits:  40,
		Published:   published,
	})
	require.NoError(t, err)
	return d
}

func (e *testEnv) unit(t *testing.T, owner Session, developmentID, number, price string) store.Unit {
	t.Helper()
	u, err := e.svc.CreateUnit(context.Background(), owner, developmentID, UnitInput{
		UnitNumber: number,
		Type:       "SEMI_DETACHED",
		Bedrooms:   3,
		Bathrooms:  2,
		SizeSqm:    112.5,
		BasePrice:  decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) auditEntries(t *testing.T, action string) []store.AuditEntry {
	t.Helper()
	entries, err := e.repo.Audit.List(context.Background(), store.AuditFilter{Action: action})
	require.NoError(t, err)
	return entries
}

// do sends a JSON request through the full handler chain.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)

	payload := map[string]any{}
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	}
	return rr, payload
}

func requireDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	require.Error(t, err)
	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, status, domainErr.Status, domainErr.Message)
	require.Equal(t, code, domainErr.Code)
	return domainErr
}
