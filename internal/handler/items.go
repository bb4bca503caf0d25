package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"stockledger-api/internal/model"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/response"
)

// ItemHandler handles item master data requests.
type ItemHandler struct {
	catalog *service.CatalogService
	log     *zap.Logger
}

// NewItemHandler creates a new item handler.
func NewItemHandler(catalog *service.CatalogService, log *zap.Logger) *ItemHandler {
	return &ItemHandler{catalog: catalog, log: log}
}

// List handles GET /api/v1/items
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	var f model.ItemFilter
	var err error
	if f.WarehouseID, err = queryInt64(r, "warehouse_id"); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if f.CategoryID, err = queryInt64(r, "category_id"); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if f.MaxQuantity, err = queryInt64(r, "max_quantity"); err != nil {
		fail(w, r, h.log, err)
		return
	}
	f.Search = strings.TrimSpace(r.URL.Query().Get("search"))
	f.Limit, f.Offset = pagination(r)

	items, err := h.catalog.ListItems(r.Context(), caller(r), f)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.List(w, items, f.Limit, f.Offset)
}

// Create handles POST /api/v1/items
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.ItemInput
	if err := decode(r, &in); err != nil {
		fail(w, r, h.log, err)
		return
	}
	item, err := h.catalog.CreateItem(r.Context(), caller(r), in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.Created(w, item)
}

// Get handles GET /api/v1/items/{id}
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	item, err := h.catalog.GetItem(r.Context(), caller(r), id)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, item)
}

// Update handles PUT /api/v1/items/{id}
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	var in service.ItemInput
	if err := decode(r, &in); err != nil {
		fail(w, r, h.log, err)
		return
	}
	item, err := h.catalog.UpdateItem(r.Context(), caller(r), id, in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, item)
}

// Delete handles DELETE /api/v1/items/{id}
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	if err := h.catalog.DeleteItem(r.Context(), caller(r), id); err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.NoContent(w)
}
