package handler

import (
	"net/http"

	"go.uber.org/zap"

	"stockledger-api/internal/service"
	"stockledger-api/pkg/response"
)

// UserHandler handles user administration.
type UserHandler struct {
	catalog *service.CatalogService
	log     *zap.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(catalog *service.CatalogService, log *zap.Logger) *UserHandler {
	return &UserHandler{catalog: catalog, log: log}
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.catalog.ListUsers(r.Context(), caller(r))
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, users)
}

// Create handles POST /api/v1/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.UserInput
	if err := decode(r, &in); err != nil {
		fail(w, r, h.log, err)
		return
	}
	u, err := h.catalog.CreateUser(r.Context(), caller(r), in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.Created(w, u)
}

// Get handles GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	u, err := h.catalog.GetUser(r.Context(), caller(r), id)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, u)
}
