package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation with field", &service.Error{Kind: service.KindValidation, Field: "quantity", Message: "must be positive"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"validation without field", &service.Error{Kind: service.KindValidation, Message: "bad"}, http.StatusBadRequest, "BAD_REQUEST"},
		{"unauthenticated", &service.Error{Kind: service.KindUnauthenticated, Message: "no"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"authorization", &service.Error{Kind: service.KindAuthorization, Message: "no"}, http.StatusForbidden, "FORBIDDEN"},
		{"not found", fmt.Errorf("wrapped: %w", &service.Error{Kind: service.KindNotFound, Message: "item 9 not found"}), http.StatusNotFound, "NOT_FOUND"},
		{"api error passes through", apierror.BadRequest("x"), http.StatusBadRequest, "BAD_REQUEST"},
		{"rolled back", &service.ReconciliationError{Op: "exchange", GroupID: "g-1", RolledBack: true, Err: errors.New("boom")}, http.StatusInternalServerError, "RECONCILIATION_REQUIRED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAPIError(tt.err)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestToAPIErrorReconciliationReference(t *testing.T) {
	got := toAPIError(&service.ReconciliationError{Op: "transfer", GroupID: "g-42", Err: errors.New("commit failed")})
	assert.Equal(t, "g-42", got.Reference)
	assert.Contains(t, got.Message, "unknown")

	details := toAPIError(&service.Error{Kind: service.KindValidation, Field: "quantity", Message: "must be positive"}).Details
	require.Len(t, details, 1)
	assert.Equal(t, "quantity", details[0].Field)
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset int
	}{
		{"", defaultPageSize, 0},
		{"?limit=10&page=3", 10, 20},
		{"?limit=10000", maxPageSize, 0},
		{"?limit=-1&page=0", defaultPageSize, 0},
	}
	for _, tt := range tests {
		limit, offset := pagination(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
		assert.Equal(t, tt.limit, limit, tt.query)
		assert.Equal(t, tt.offset, offset, tt.query)
	}
}

func TestQueryTime(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2024-03-01&to=2024-03-02T10:00:00Z&bad=yesterday", nil)

	from, err := queryTime(req, "from")
	require.NoError(t, err)
	assert.Equal(t, 2024, from.Year())

	to, err := queryTime(req, "to")
	require.NoError(t, err)
	assert.Equal(t, 10, to.Hour())

	missing, err := queryTime(req, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = queryTime(req, "bad")
	assert.Error(t, err)
}
