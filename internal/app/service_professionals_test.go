package app

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propie/api/internal/audit"
	"propie/api/internal/store"
)

func validProfessional() ProfessionalInput {
	return ProfessionalInput{
		Name:               "Fiona Gallagher",
		Email:              "Fiona@Gallagher-Law.ie",
		Phone:              "+353 1 555 0101",
		Profession:         "solicitor",
		Organisation:       "Gallagher Law",
		RegistrationNumber: "LSI-4421",
	}
}

func TestRegisterProfessional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.RegisterProfessional(ctx, ProfessionalInput{Email: "not-an-email", Profession: "WIZARD"})
	de := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	fields := de.Details.(map[string]string)
	for _, field := range []string{"name", "email", "profession", "registrationNumber"} {
		assert.Contains(t, fields, field)
	}

	p, err := env.svc.RegisterProfessional(ctx, validProfessional())
	require.NoError(t, err)
	assert.Equal(t, "PENDING", p.Status)
	assert.Equal(t, "SOLICITOR", p.Profession)
	assert.Equal(t, "fiona@gallagher-law.ie", p.Email)

	_, err = env.svc.RegisterProfessional(ctx, validProfessional())
	requireDomainError(t, err, http.StatusConflict, "EMAIL_EXISTS")
}

func TestAppointRequiresVerifiedProfessional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.user(t, "developer", "Team Builders")
	admin := env.user(t, "admin", "Verifier Admin")
	d := env.development(t, dev, "Team Site", true)
	p, err := env.svc.RegisterProfessional(ctx, validProfessional())
	require.NoError(t, err)

	_, err = env.svc.AppointToDevelopment(ctx, dev, d.ID, p.ID, "Conveyancing solicitor")
	requireDomainError(t, err, http.StatusConflict, "PROFESSIONAL_NOT_VERIFIED")

	_, err = env.svc.VerifyProfessional(ctx, dev, p.ID)
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	verified, err := env.svc.VerifyProfessional(ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "VERIFIED", verified.Status)
	assert.Equal(t, admin.UserID, verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedAt)
	assert.Len(t, env.auditEntries(t, audit.ActionProfessionalStatus), 1)

	_, err = env.svc.AppointToDevelopment(ctx, dev, d.ID, p.ID, "")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	member, err := env.svc.AppointToDevelopment(ctx, dev, d.ID, p.ID, "Conveyancing solicitor")
	require.NoError(t, err)
	assert.Equal(t, "APPOINTED", member.Status)
	assert.Equal(t, "Fiona Gallagher", member.Professional.Name)

	_, err = env.svc.AppointToDevelopment(ctx, dev, d.ID, p.ID, "Conveyancing solicitor")
	requireDomainError(t, err, http.StatusConflict, "ALREADY_APPOINTED")

	require.NoError(t, env.svc.UpdateTeamMemberStatus(ctx, dev, d.ID, p.ID, "active"))
	err = env.svc.UpdateTeamMemberStatus(ctx, dev, d.ID, p.ID, "RETIRED")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	team, err := env.svc.ListTeam(ctx, Session{}, d.ID)
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, "ACTIVE", team[0].Status)
	assert.Equal(t, "Gallagher Law", team[0].Professional.Organisation)
}

func TestListProfessionalsFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "admin", "Filter Admin")
	agent := env.user(t, "agent", "Filter Agent")

	solicitor, err := env.svc.RegisterProfessional(ctx, validProfessional())
	require.NoError(t, err)
	_, err = env.svc.RegisterProfessional(ctx, ProfessionalInput{
		Name: "Paddy Architect", Email: "paddy@arch.ie", Profession: "ARCHITECT", RegistrationNumber: "RIAI-9",
	})
	require.NoError(t, err)
	_, err = env.svc.SuspendProfessional(ctx, admin, solicitor.ID)
	require.NoError(t, err)

	items, err := env.svc.ListProfessionals(ctx, agent, store.ProfessionalFilter{Profession: "ARCHITECT"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Paddy Architect", items[0].Name)

	items, err = env.svc.ListProfessionals(ctx, agent, store.ProfessionalFilter{Status: "SUSPENDED"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, solicitor.ID, items[0].ID)

	_, err = env.svc.ListProfessionals(ctx, agent, store.ProfessionalFilter{Status: "RETIRED"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestProfessionalEndpoints(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "admin", "Endpoint Admin")

	rr, payload := env.do(t, http.MethodPost, "/api/professionals", "", validProfessional())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := payload["professional"].(map[string]any)["id"].(string)

	rr, _ = env.do(t, http.MethodGet, "/api/professionals", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, payload = env.do(t, http.MethodPost, "/api/professionals/"+id+"/verify", admin.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "VERIFIED", payload["professional"].(map[string]any)["status"])
}
