package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger-api/internal/model"
)

func TestPolicy(t *testing.T) {
	var p Policy
	one := int64(1)
	admin := &model.Identity{UserID: 1, Role: model.RoleAdmin}
	employee := &model.Identity{UserID: 2, Role: model.RoleEmployee, WarehouseID: &one}
	unassigned := &model.Identity{UserID: 3, Role: model.RoleEmployee}

	requireKind(t, p.Authenticate(nil), KindUnauthenticated)
	requireKind(t, p.Authenticate(&model.Identity{Role: model.RoleAdmin}), KindUnauthenticated)
	requireKind(t, p.Authenticate(&model.Identity{UserID: 9, Role: "guest"}), KindAuthorization)

	assert.NoError(t, p.CheckWarehouse(admin, 2))
	assert.NoError(t, p.CheckWarehouse(employee, 1))
	requireKind(t, p.CheckWarehouse(employee, 2), KindAuthorization)
	requireKind(t, p.CheckWarehouse(unassigned, 1), KindAuthorization)

	assert.NoError(t, p.CheckItem(employee, &model.Item{WarehouseID: 1}))
	requireKind(t, p.CheckItem(employee, &model.Item{WarehouseID: 2}), KindAuthorization)

	assert.NoError(t, p.RequireAdmin(admin))
	requireKind(t, p.RequireAdmin(employee), KindAuthorization)

	assert.NoError(t, p.CheckHistory(employee, 2))
	assert.NoError(t, p.CheckHistory(admin, 2))
	requireKind(t, p.CheckHistory(employee, 1), KindAuthorization)
}

func TestScopeWarehouse(t *testing.T) {
	var p Policy
	one, two := int64(1), int64(2)
	admin := &model.Identity{UserID: 1, Role: model.RoleAdmin}
	employee := &model.Identity{UserID: 2, Role: model.RoleEmployee, WarehouseID: &one}

	scope, err := p.ScopeWarehouse(admin, nil)
	require.NoError(t, err)
	assert.Nil(t, scope)

	scope, err = p.ScopeWarehouse(admin, &two)
	require.NoError(t, err)
	assert.Equal(t, &two, scope)

	scope, err = p.ScopeWarehouse(employee, nil)
	require.NoError(t, err)
	require.NotNil(t, scope)
	assert.Equal(t, int64(1), *scope)

	_, err = p.ScopeWarehouse(employee, &two)
	requireKind(t, err, KindAuthorization)

	_, err = p.ScopeWarehouse(&model.Identity{UserID: 3, Role: model.RoleEmployee}, nil)
	requireKind(t, err, KindAuthorization)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "validation error: quantity: must be greater than zero", requirePositive("quantity", 0).Error())
	assert.Equal(t, "not found error: item 7 not found", notFound("item", 7).Error())

	rerr := &ReconciliationError{Op: "exchange", GroupID: "g", Legs: 2, Completed: 1, RolledBack: true, Err: assert.AnError}
	assert.Contains(t, rerr.Error(), "exchange g failed after 1/2 legs (rolled back)")
	assert.ErrorIs(t, rerr, assert.AnError)
}
