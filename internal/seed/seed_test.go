package seed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"propie/api/internal/app"
	"propie/api/internal/config"
	"propie/api/internal/store"
)

func newService(t *testing.T) (*app.Service, *store.Repository) {
	t.Helper()
	repo, err := store.Open(context.Background(), store.Options{
		Backend:    store.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "propie.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	svc := app.New(app.Deps{
		Config:       config.Config{Environment: "development", JWTSecret: "seed-secret", AccessTTL: time.Hour, RefreshTTL: time.Hour},
		Repo:         repo,
		PasswordCost: bcrypt.MinCost,
	})
	return svc, repo
}

func TestEmbeddedFixtureParses(t *testing.T) {
	f, err := Load()
	require.NoError(t, err)
	require.Len(t, f.Users, 5)
	require.Len(t, f.Developments, 3)
	require.Len(t, f.Professionals, 3)

	gardens := f.Developments[2]
	require.Equal(t, "Fitzgerald Gardens", gardens.Name)
	require.NotNil(t, gardens.Latitude)
	require.InDelta(t, 53.716, *gardens.Latitude, 0.0001)
	require.Len(t, gardens.Units, 4)
}

func TestRunSeedsThroughService(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	f, err := Load()
	require.NoError(t, err)

	result, err := Run(ctx, svc, f, "demo-password-2024", nil)
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Equal(t, 5, result.Users)
	require.Equal(t, 3, result.Developments)
	require.Equal(t, 20, result.Units)
	require.Equal(t, 3, result.Professionals)
	require.Equal(t, 4, result.Appointments)

	signIn, err := svc.SignIn(ctx, "buyer@example.com", "demo-password-2024", nil)
	require.NoError(t, err)
	require.Equal(t, "buyer", signIn.Session.Role)

	gardens, err := svc.GetDevelopmentBySlug(ctx, app.Session{}, "fitzgerald-gardens")
	require.NoError(t, err)
	stats, err := svc.DevelopmentStatistics(ctx, app.Session{}, gardens.ID)
	require.NoError(t, err)
	require.Equal(t, app.DevelopmentStatistics{
		TotalUnits:     13,
		AvailableUnits: 8,
		ReservedUnits:  4,
		SoldUnits:      1,
		OccupancyRate:  float64(5) / float64(13) * 100,
	}, stats)

	summary, err := svc.DevelopmentSummary(ctx, app.Session{}, gardens.ID)
	require.NoError(t, err)
	require.Equal(t, "€235,000 - €399,950", summary.PriceRange)

	team, err := svc.ListTeam(ctx, app.Session{}, gardens.ID)
	require.NoError(t, err)
	require.Len(t, team, 3)
	for _, m := range team {
		require.Equal(t, "VERIFIED", m.Professional.Status)
	}

	verified, err := repo.Audit.List(ctx, store.AuditFilter{ResourceType: "professional"})
	require.NoError(t, err)
	require.NotEmpty(t, verified)
}

func TestRunIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	f, err := Load()
	require.NoError(t, err)

	_, err = Run(ctx, svc, f, "demo-password-2024", nil)
	require.NoError(t, err)

	again, err := Run(ctx, svc, f, "demo-password-2024", nil)
	require.NoError(t, err)
	require.True(t, again.Skipped)

	_, total, err := svc.ListDevelopments(ctx, app.Session{}, store.DevelopmentFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, total)
}

func TestRunReusesExistingAccounts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	existing, err := svc.ProvisionUser(ctx, "kevin@prop.ie", "an-older-password", "Kevin Fitzgerald", "admin")
	require.NoError(t, err)

	f, err := Parse([]byte(`
users:
  - email: kevin@prop.ie
    name: Kevin Fitzgerald
    role: admin
  - email: dev@example.ie
    name: Demo Developer
    role: developer
developments:
  - name: Demo Park
    owner: dev@example.ie
    description: Demo homes
    mainImage: /images/demo.jpg
    address: Main Street
    city: Navan
    county: Meath
    totalUnits: 2
    units:
      - prefix: DP
        type: TERRACED
        bedrooms: 2
        bathrooms: 1
        price: "280000"
        count: 2
`))
	require.NoError(t, err)

	result, err := Run(ctx, svc, f, "demo-password-2024", nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Users)
	require.Equal(t, 2, result.Units)

	u, err := svc.UserByEmail(ctx, "kevin@prop.ie")
	require.NoError(t, err)
	require.Equal(t, existing.ID, u.ID)
}

func TestRunRejectsUnknownOwner(t *testing.T) {
	svc, _ := newService(t)
	f := Fixture{Developments: []Development{{Name: "Orphan", Owner: "nobody@example.ie"}}}
	_, err := Run(context.Background(), svc, f, "demo-password-2024", nil)
	require.ErrorContains(t, err, "unknown owner")
}
