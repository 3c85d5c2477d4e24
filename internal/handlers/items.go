package handlers

import (
	"cmp"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seagull-retail/api/internal/platform/httpx"
	"github.com/seagull-retail/api/internal/platform/pagination"
	"github.com/seagull-retail/api/internal/services"
)

const maxItemBodySize = 8 * 1024

var itemListOptions = pagination.Options{
	DefaultPageSize:    pagination.DefaultPageSize,
	MaxPageSize:        pagination.DefaultMaxPageSize,
	AllowedOrderFields: []string{"id", "name", "price", "rating", "stock"},
}

// ItemHandlers exposes catalog reads and admin-only catalog maintenance.
type ItemHandlers struct {
	catalog  services.CatalogService
	currency string
	authn    *AdminAuthenticator
}

// NewItemHandlers constructs catalog handlers. Maintenance routes are guarded by authn.
func NewItemHandlers(catalog services.CatalogService, currency string, authn *AdminAuthenticator) *ItemHandlers {
	return &ItemHandlers{catalog: catalog, currency: currency, authn: authn}
}

// Routes wires the /items endpoints onto the provided router.
func (h *ItemHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listItems)
	r.Get("/on-sale", h.listOnSale)
	r.Get("/{itemId}", h.getItem)
	r.Get("/{itemId}/components", h.listComponents)

	admin := r
	if h.authn != nil {
		admin = r.With(h.authn.RequireAdmin())
	}
	admin.Post("/", h.addItem)
	admin.Post("/{itemId}/components", h.addComponent)
	admin.Put("/{itemId}/sale", h.setOnSale)
}

type itemPayload struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	CategoryID string       `json:"category_id,omitempty"`
	MSRP       moneyPayload `json:"msrp"`
	SalePrice  moneyPayload `json:"sale_price"`
	Price      moneyPayload `json:"price"`
	Rating     float64      `json:"rating"`
	Stock      int          `json:"stock"`
	IsBundle   bool         `json:"is_bundle"`
	OnSale     bool         `json:"on_sale"`
}

type itemResponse struct {
	Item itemPayload `json:"item"`
}

type itemListResponse struct {
	Items         []itemPayload `json:"items"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type componentListResponse struct {
	BundleID   string   `json:"bundle_id"`
	Components []string `json:"components"`
}

type addItemRequest struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	CategoryID string  `json:"category_id"`
	MSRP       int64   `json:"msrp"`
	SalePrice  int64   `json:"sale_price"`
	Rating     float64 `json:"rating"`
	Stock      int     `json:"stock"`
	IsBundle   bool    `json:"is_bundle"`
	OnSale     bool    `json:"on_sale"`
}

type addComponentRequest struct {
	ComponentID string `json:"component_id"`
}

type setOnSaleRequest struct {
	OnSale *bool `json:"on_sale"`
}

func (h *ItemHandlers) buildItemPayload(item services.Item) itemPayload {
	return itemPayload{
		ID:         item.ID,
		Name:       item.Name,
		CategoryID: item.CategoryID,
		MSRP:       newMoney(item.MSRP, h.currency),
		SalePrice:  newMoney(item.SalePrice, h.currency),
		Price:      newMoney(item.UnitPrice(), h.currency),
		Rating:     item.Rating,
		Stock:      item.Stock,
		IsBundle:   item.IsBundle,
		OnSale:     item.OnSale,
	}
}

// writeItems orders and pages a listing according to pageSize, pageToken and orderBy.
// Item id always breaks ties so page tokens stay stable.
func (h *ItemHandlers) writeItems(w http.ResponseWriter, r *http.Request, items []services.Item) {
	params, err := pagination.FromRequest(r, itemListOptions)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	sortItems(items, params.Orders)

	page, next, err := pagination.Slice(items, params, func(item services.Item) string { return item.ID })
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	payload := itemListResponse{Items: make([]itemPayload, 0, len(page)), NextPageToken: next}
	for _, item := range page {
		payload.Items = append(payload.Items, h.buildItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func sortItems(items []services.Item, orders []pagination.Order) {
	slices.SortStableFunc(items, func(a, b services.Item) int {
		for _, order := range orders {
			var c int
			switch order.Field {
			case "id":
				c = cmp.Compare(a.ID, b.ID)
			case "name":
				c = cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
			case "price":
				c = cmp.Compare(a.UnitPrice(), b.UnitPrice())
			case "rating":
				c = cmp.Compare(a.Rating, b.Rating)
			case "stock":
				c = cmp.Compare(a.Stock, b.Stock)
			}
			if order.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (h *ItemHandlers) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	items, err := h.catalog.ListItems(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.writeItems(w, r, items)
}

func (h *ItemHandlers) listOnSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	items, err := h.catalog.ListOnSaleItems(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.writeItems(w, r, items)
}

func (h *ItemHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	item, err := h.catalog.GetItem(ctx, chi.URLParam(r, "itemId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, itemResponse{Item: h.buildItemPayload(item)})
}

func (h *ItemHandlers) listComponents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	bundleID := chi.URLParam(r, "itemId")
	components, err := h.catalog.ListBundleComponents(ctx, bundleID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := componentListResponse{BundleID: bundleID, Components: make([]string, 0, len(components))}
	for _, component := range components {
		payload.Components = append(payload.Components, component.ComponentID)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *ItemHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req addItemRequest
	if !decodeJSONBody(w, r, maxItemBodySize, &req) {
		return
	}
	item, err := h.catalog.AddItem(ctx, services.AddItemCommand{
		ID:         req.ID,
		Name:       req.Name,
		CategoryID: req.CategoryID,
		MSRP:       req.MSRP,
		SalePrice:  req.SalePrice,
		Rating:     req.Rating,
		Stock:      req.Stock,
		IsBundle:   req.IsBundle,
		OnSale:     req.OnSale,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+item.ID)
	writeJSONResponse(w, http.StatusCreated, itemResponse{Item: h.buildItemPayload(item)})
}

func (h *ItemHandlers) addComponent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req addComponentRequest
	if !decodeJSONBody(w, r, maxItemBodySize, &req) {
		return
	}
	bundleID := chi.URLParam(r, "itemId")
	if err := h.catalog.AddBundleComponent(ctx, bundleID, strings.TrimSpace(req.ComponentID)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ItemHandlers) setOnSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req setOnSaleRequest
	if !decodeJSONBody(w, r, maxItemBodySize, &req) {
		return
	}
	if req.OnSale == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "on_sale is required", http.StatusBadRequest))
		return
	}
	item, err := h.catalog.SetOnSale(ctx, chi.URLParam(r, "itemId"), *req.OnSale)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, itemResponse{Item: h.buildItemPayload(item)})
}
