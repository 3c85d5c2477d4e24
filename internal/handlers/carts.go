package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seagull-retail/api/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes cart lifecycle, line mutation and pricing endpoints.
type CartHandlers struct {
	carts   services.CartService
	pricing services.PricingEngine
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(carts services.CartService, pricing services.PricingEngine) *CartHandlers {
	return &CartHandlers{carts: carts, pricing: pricing}
}

// Routes wires the /carts endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCart)
	r.Get("/{cartId}", h.getCart)
	r.Delete("/{cartId}", h.deleteCart)
	r.Post("/{cartId}/lines", h.addLine)
	r.Delete("/{cartId}/lines/{itemId}", h.removeLine)
	r.Get("/{cartId}/totals", h.getTotals)
}

type createCartRequest struct {
	Name string `json:"name"`
}

type addLineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	LineCount int               `json:"line_count"`
	Lines     []cartLinePayload `json:"lines"`
	CreatedAt string            `json:"created_at,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

type cartLinePayload struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type lineResponse struct {
	CartID string          `json:"cart_id"`
	Line   cartLinePayload `json:"line"`
}

type totalsResponse struct {
	Totals totalsPayload `json:"totals"`
}

type totalsPayload struct {
	CartID             string             `json:"cart_id"`
	Currency           string             `json:"currency"`
	RegularTotal       moneyPayload       `json:"regular_total"`
	BundleTotal        moneyPayload       `json:"bundle_total"`
	Subtotal           moneyPayload       `json:"subtotal"`
	TaxRateBasisPoints int64              `json:"tax_rate_basis_points"`
	Tax                moneyPayload       `json:"tax"`
	TotalWithTax       moneyPayload       `json:"total_with_tax"`
	Lines              []lineTotalPayload `json:"lines"`
}

type lineTotalPayload struct {
	ItemID    string       `json:"item_id"`
	Class     string       `json:"class"`
	Quantity  int          `json:"quantity"`
	UnitPrice moneyPayload `json:"unit_price"`
	Total     moneyPayload `json:"total"`
}

func (h *CartHandlers) createCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	var req createCartRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	cart, err := h.carts.CreateCart(ctx, services.CreateCartCommand{Name: req.Name})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setCartResponseHeaders(w, cart)
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+cart.ID)
	writeJSONResponse(w, http.StatusCreated, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	cart, err := h.carts.GetCart(ctx, chi.URLParam(r, "cartId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) deleteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	if err := h.carts.DeleteCart(ctx, chi.URLParam(r, "cartId")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) addLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	var req addLineRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	line, err := h.carts.AddLine(ctx, services.AddLineCommand{
		CartID:   chi.URLParam(r, "cartId"),
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, lineResponse{
		CartID: line.CartID,
		Line:   cartLinePayload{ItemID: line.ItemID, Quantity: line.Quantity},
	})
}

func (h *CartHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	line, err := h.carts.RemoveLine(ctx, chi.URLParam(r, "cartId"), chi.URLParam(r, "itemId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, lineResponse{
		CartID: line.CartID,
		Line:   cartLinePayload{ItemID: line.ItemID, Quantity: line.Quantity},
	})
}

func (h *CartHandlers) getTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		writeUnavailable(ctx, w, "pricing")
		return
	}
	totals, err := h.pricing.ComputeTotals(ctx, chi.URLParam(r, "cartId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, totalsResponse{Totals: buildTotalsPayload(totals)})
}

func setCartResponseHeaders(w http.ResponseWriter, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

// buildCartETag hashes the cart id, update time and line quantities into a weak validator.
func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.ID) == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d", cart.ID, cart.UpdatedAt.UTC().UnixNano())
	for _, line := range cart.Lines {
		fmt.Fprintf(&b, ";%s=%d", line.ItemID, line.Quantity)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:        cart.ID,
		Name:      cart.Name,
		LineCount: len(cart.Lines),
		Lines:     make([]cartLinePayload, 0, len(cart.Lines)),
		CreatedAt: formatTime(cart.CreatedAt),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, line := range cart.Lines {
		payload.Lines = append(payload.Lines, cartLinePayload{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return payload
}

func buildTotalsPayload(totals services.CartTotals) totalsPayload {
	currency := totals.Currency
	payload := totalsPayload{
		CartID:             totals.CartID,
		Currency:           currency,
		RegularTotal:       newMoney(totals.RegularTotal, currency),
		BundleTotal:        newMoney(totals.BundleTotal, currency),
		Subtotal:           newMoney(totals.Subtotal, currency),
		TaxRateBasisPoints: totals.TaxRateBasisPoints,
		Tax:                newMoney(totals.Tax, currency),
		TotalWithTax:       newMoney(totals.TotalWithTax, currency),
		Lines:              make([]lineTotalPayload, 0, len(totals.Lines)),
	}
	for _, line := range totals.Lines {
		payload.Lines = append(payload.Lines, lineTotalPayload{
			ItemID:    line.ItemID,
			Class:     string(line.Class),
			Quantity:  line.Quantity,
			UnitPrice: newMoney(line.UnitPrice, currency),
			Total:     newMoney(line.Total, currency),
		})
	}
	return payload
}
