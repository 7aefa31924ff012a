package app

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propie/api/internal/audit"
	"propie/api/internal/store"
)

func TestCreateUnitValidationAndDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.user(t, "developer", "Ballymore Homes")
	d := env.development(t, dev, "Fitzwilliam Quarter", true)

	_, err := env.svc.CreateUnit(ctx, dev, d.ID, UnitInput{Type: "CASTLE", BasePrice: decimal.Zero, Bedrooms: -1})
	de := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	fields := de.Details.(map[string]string)
	assert.Contains(t, fields, "unitNumber")
	assert.Contains(t, fields, "type")
	assert.Contains(t, fields, "basePrice")
	assert.Contains(t, fields, "bedrooms")

	u := env.unit(t, dev, d.ID, "12", "385000")
	assert.Equal(t, "Unit 12", u.Name)
	assert.Equal(t, "AVAILABLE", u.Status)
	assert.True(t, u.BasePrice.Equal(decimal.RequireFromString("385000")))

	_, err = env.svc.CreateUnit(ctx, dev, d.ID, UnitInput{UnitNumber: "12", Type: "APARTMENT", BasePrice: decimal.NewFromInt(1)})
	requireDomainError(t, err, http.StatusConflict, "UNIT_NUMBER_TAKEN")

	other := env.user(t, "developer", "Cairn Homes")
	_, err = env.svc.CreateUnit(ctx, other, d.ID, UnitInput{UnitNumber: "13", Type: "APARTMENT", BasePrice: decimal.NewFromInt(1)})
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")
}

func TestBulkUpdateStatusRollsBackOnMissingUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.user(t, "developer", "Glenveagh Homes")
	d := env.development(t, dev, "Oak Park", true)
	u1 := env.unit(t, dev, d.ID, "1", "300000")
	u2 := env.unit(t, dev, d.ID, "2", "310000")

	_, err := env.svc.BulkUpdateStatus(ctx, dev, []string{u1.ID, "unit_missing", u2.ID}, "UNAVAILABLE")
	de := requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
	assert.Equal(t, map[string]string{"unitId": "unit_missing"}, de.Details)

	for _, id := range []string{u1.ID, u2.ID} {
		u, err := env.repo.Units.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "AVAILABLE", u.Status)
	}
	assert.Empty(t, env.auditEntries(t, audit.ActionUnitBulkStatus))

	updated, err := env.svc.BulkUpdateStatus(ctx, dev, []string{u1.ID, u2.ID, u1.ID}, "UNAVAILABLE")
	require.NoError(t, err)
	require.Len(t, updated, 2)
	for _, u := range updated {
		assert.Equal(t, "UNAVAILABLE", u.Status)
	}
	entries := env.auditEntries(t, audit.ActionUnitBulkStatus)
	require.Len(t, entries, 1)
	assert.Equal(t, dev.UserID, entries[0].ActorID)
	assert.EqualValues(t, 2, entries[0].Metadata["count"])
}

func TestBulkUpdateStatusRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	dev := env.user(t, "developer", "Durkan Residential")

	_, err := env.svc.BulkUpdateStatus(context.Background(), dev, nil, "DEMOLISHED")
	de := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	fields := de.Details.(map[string]string)
	assert.Contains(t, fields, "unitIds")
	assert.Contains(t, fields, "status")
}

func TestBulkUpdatePriceChecksEveryPriceFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.user(t, "developer", "Sherry FitzGerald New Homes")
	d := env.development(t, dev, "Harbour View", true)
	u1 := env.unit(t, dev, d.ID, "A1", "295000")
	u2 := env.unit(t, dev, d.ID, "A2", "305000")

	_, err := env.svc.BulkUpdatePrice(ctx, dev, []store.PriceUpdate{
		{UnitID: u1.ID, Price: decimal.RequireFromString("299000")},
		{UnitID: u2.ID, Price: decimal.RequireFromString("-5")},
	})
	de := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	assert.Contains(t, de.Details.(map[string]string), u2.ID)

	unchanged, err := env.repo.Units.Get(ctx, u1.ID)
	require.NoError(t, err)
	assert.True(t, unchanged.BasePrice.Equal(decimal.RequireFromString("295000")))

	updated, err := env.svc.BulkUpdatePrice(ctx, dev, []store.PriceUpdate{
		{UnitID: u1.ID, Price: decimal.RequireFromString("299000")},
		{UnitID: u2.ID, Price: decimal.RequireFromString("309500.50")},
	})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assert.Equal(t, "309500.50", updated[1].BasePrice.StringFixed(2))

	entries := env.auditEntries(t, audit.ActionUnitBulkPrice)
	require.Len(t, entries, 1)
	prices := entries[0].Metadata["prices"].(map[string]any)
	assert.Equal(t, "299000.00", prices[u1.ID])
}

func TestBulkUpdateDeniedForOtherDevelopersUnits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "developer", "Owner Homes")
	intruder := env.user(t, "developer", "Intruder Homes")
	d := env.development(t, owner, "Riverside", true)
	u := env.unit(t, owner, d.ID, "7", "350000")

	_, err := env.svc.BulkUpdateStatus(ctx, intruder, []string{u.ID}, "SOLD")
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	stored, err := env.repo.Units.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "AVAILABLE", stored.Status)

	denials := env.auditEntries(t, audit.ActionAccessDenied)
	require.Len(t, denials, 1)
	assert.Equal(t, intruder.UserID, denials[0].ActorID)

	buyer := env.user(t, "buyer", "Curious Buyer")
	_, err = env.svc.BulkUpdateStatus(ctx, buyer, []string{u.ID}, "SOLD")
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")
}

func TestDeleteUnitRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.user(t, "developer", "Quintain Developments")
	buyer := env.user(t, "buyer", "Orla Ryan")
	d := env.development(t, dev, "Seapoint", true)
	reserved := env.unit(t, dev, d.ID, "1", "400000")
	withSale := env.unit(t, dev, d.ID, "2", "410000")
	free := env.unit(t, dev, d.ID, "3", "420000")

	_, err := env.svc.BulkUpdateStatus(ctx, dev, []string{reserved.ID}, "RESERVED")
	require.NoError(t, err)
	err = env.svc.DeleteUnit(ctx, dev, reserved.ID)
	requireDomainError(t, err, http.StatusConflict, "UNIT_NOT_DELETABLE")

	_, err = env.svc.CreateSale(ctx, buyer, SaleInput{UnitID: withSale.ID})
	require.NoError(t, err)
	err = env.svc.DeleteUnit(ctx, dev, withSale.ID)
	requireDomainError(t, err, http.StatusConflict, "UNIT_HAS_SALES")

	require.NoError(t, env.svc.DeleteUnit(ctx, dev, free.ID))
	_, err = env.svc.GetUnit(ctx, dev, free.ID)
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestListUnitsHidesDraftDevelopmentsFromBuyers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.user(t, "developer", "Lioncor")
	live := env.development(t, dev, "Live Scheme", true)
	draft := env.development(t, dev, "Draft Scheme", false)
	env.unit(t, dev, live.ID, "1", "250000")
	env.unit(t, dev, draft.ID, "1", "260000")

	units, total, err := env.svc.ListUnits(ctx, Session{}, store.UnitFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, units, 1)
	assert.Equal(t, live.ID, units[0].DevelopmentID)

	_, _, err = env.svc.ListUnits(ctx, Session{}, store.UnitFilter{DevelopmentID: draft.ID})
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	units, total, err = env.svc.ListUnits(ctx, dev, store.UnitFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, units, 2)
}

func TestListUnitsPagesOverPublishedUnitsOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.user(t, "developer", "Glenveagh")
	buyer := env.user(t, "buyer", "Paging Buyer")
	live := env.development(t, dev, "Open Scheme", true)
	draft := env.development(t, dev, "Closed Scheme", false)
	env.unit(t, dev, draft.ID, "A1", "260000")
	env.unit(t, dev, draft.ID, "A2", "260000")
	env.unit(t, dev, live.ID, "B1", "250000")

	page, total, err := env.svc.ListUnits(ctx, buyer, store.UnitFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, live.ID, page[0].DevelopmentID)

	page, total, err = env.svc.ListUnits(ctx, buyer, store.UnitFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, page)
}

func TestUnitBulkEndpoints(t *testing.T) {
	env := newTestEnv(t)
	dev := env.user(t, "developer", "Bulk Builder")
	d := env.development(t, dev, "Millbrook", true)
	u1 := env.unit(t, dev, d.ID, "10", "330000")
	u2 := env.unit(t, dev, d.ID, "11", "335000")

	rr, payload := env.do(t, http.MethodPost, "/api/units/bulk/status", dev.Token, map[string]any{
		"unitIds": []string{u1.ID, u2.ID}, "status": "RESERVED",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, payload["units"], 2)

	rr, payload = env.do(t, http.MethodPut, "/api/units/bulk/price", dev.Token, map[string]any{
		"updates": []map[string]any{{"unitId": u1.ID, "price": "340000"}, {"unitId": "unit_nope", "price": "1"}},
	})
	require.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
	assert.Equal(t, map[string]any{"unitId": "unit_nope"}, payload["details"])

	rr, payload = env.do(t, http.MethodGet, "/api/units/"+u1.ID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	unit := payload["unit"].(map[string]any)
	assert.Equal(t, "RESERVED", unit["status"])
	assert.Equal(t, "330000.00", unit["basePrice"])
}
