package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seagull-retail/api/internal/services"
)

const maxPaymentBodySize = 4 * 1024

// PaymentHandlers exposes standalone card authorization.
type PaymentHandlers struct {
	payments services.PaymentValidator
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(payments services.PaymentValidator) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/authorize", h.authorize)
}

type cardRequest struct {
	CardNumber  string `json:"card_number"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	HolderName  string `json:"holder_name"`
	CVV         string `json:"cvv"`
}

func (c cardRequest) instrument() services.PaymentInstrument {
	return services.PaymentInstrument{
		CardNumber: c.CardNumber,
		Expiry:     services.CardExpiry{Year: c.ExpiryYear, Month: c.ExpiryMonth},
		HolderName: c.HolderName,
		CVV:        c.CVV,
	}
}

type authorizationPayload struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Code      string `json:"code,omitempty"`
	DecidedAt string `json:"decided_at"`
}

type authorizationResponse struct {
	Authorization authorizationPayload `json:"authorization"`
}

func buildAuthorizationPayload(auth services.Authorization) authorizationPayload {
	return authorizationPayload{
		Status:    string(auth.Status),
		Reason:    string(auth.Reason),
		Code:      auth.Code,
		DecidedAt: formatTime(auth.DecidedAt),
	}
}

// authorize always answers 200; a decline is a result, not an error.
func (h *PaymentHandlers) authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	var req cardRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	auth := h.payments.Authorize(ctx, req.instrument())
	writeJSONResponse(w, http.StatusOK, authorizationResponse{Authorization: buildAuthorizationPayload(auth)})
}
