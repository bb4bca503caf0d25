package handler

import (
	"net/http"

	"go.uber.org/zap"

	"stockledger-api/internal/service"
	"stockledger-api/pkg/response"
)

// WarehouseHandler handles warehouse and category requests.
type WarehouseHandler struct {
	catalog *service.CatalogService
	log     *zap.Logger
}

// NewWarehouseHandler creates a new warehouse handler.
func NewWarehouseHandler(catalog *service.CatalogService, log *zap.Logger) *WarehouseHandler {
	return &WarehouseHandler{catalog: catalog, log: log}
}

// List handles GET /api/v1/warehouses
func (h *WarehouseHandler) List(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.catalog.ListWarehouses(r.Context(), caller(r))
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, warehouses)
}

// Create handles POST /api/v1/warehouses
func (h *WarehouseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.WarehouseInput
	if err := decode(r, &in); err != nil {
		fail(w, r, h.log, err)
		return
	}
	wh, err := h.catalog.CreateWarehouse(r.Context(), caller(r), in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.Created(w, wh)
}

// Get handles GET /api/v1/warehouses/{id}
func (h *WarehouseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	wh, err := h.catalog.GetWarehouse(r.Context(), caller(r), id)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, wh)
}

// Update handles PUT /api/v1/warehouses/{id}
func (h *WarehouseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	var in service.WarehouseInput
	if err := decode(r, &in); err != nil {
		fail(w, r, h.log, err)
		return
	}
	wh, err := h.catalog.UpdateWarehouse(r.Context(), caller(r), id, in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, wh)
}

// Delete handles DELETE /api/v1/warehouses/{id}
func (h *WarehouseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	if err := h.catalog.DeleteWarehouse(r.Context(), caller(r), id); err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.NoContent(w)
}

// ListCategories handles GET /api/v1/categories
func (h *WarehouseHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context(), caller(r))
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, categories)
}

// CreateCategory handles POST /api/v1/categories
func (h *WarehouseHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := decode(r, &in); err != nil {
		fail(w, r, h.log, err)
		return
	}
	c, err := h.catalog.CreateCategory(r.Context(), caller(r), in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.Created(w, c)
}
