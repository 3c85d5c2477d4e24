package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seagull-retail/api/internal/services"
)

// CheckoutHandlers exposes cart checkout.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout under the /carts router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{cartId}/checkout", h.checkoutCart)
}

type checkoutResponse struct {
	Receipt receiptPayload `json:"receipt"`
}

type receiptPayload struct {
	CartID        string               `json:"cart_id"`
	Totals        totalsPayload        `json:"totals"`
	Authorization authorizationPayload `json:"authorization"`
	EventID       string               `json:"event_id,omitempty"`
	CompletedAt   string               `json:"completed_at"`
}

func (h *CheckoutHandlers) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeUnavailable(ctx, w, "checkout")
		return
	}
	var req cardRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	receipt, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		CartID:     chi.URLParam(r, "cartId"),
		Instrument: req.instrument(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{Receipt: receiptPayload{
		CartID:        receipt.CartID,
		Totals:        buildTotalsPayload(receipt.Totals),
		Authorization: buildAuthorizationPayload(receipt.Authorization),
		EventID:       receipt.EventID,
		CompletedAt:   formatTime(receipt.CompletedAt),
	}})
}
