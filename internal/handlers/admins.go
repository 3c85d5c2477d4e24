package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seagull-retail/api/internal/platform/httpx"
	"github.com/seagull-retail/api/internal/services"
)

const maxAdminBodySize = 4 * 1024

// AdminHandlers exposes administrator authentication and provisioning.
type AdminHandlers struct {
	admins services.AdminService
	authn  *AdminAuthenticator
}

// NewAdminHandlers constructs admin handlers. authn throttles failed logins and guards listing.
func NewAdminHandlers(admins services.AdminService, authn *AdminAuthenticator) *AdminHandlers {
	if authn == nil && admins != nil {
		authn = NewAdminAuthenticator(admins)
	}
	return &AdminHandlers{admins: admins, authn: authn}
}

// Routes wires the /admins endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/authenticate", h.authenticate)
	r.Post("/", h.addAdmin)
	if h.authn != nil {
		r.With(h.authn.RequireAdmin()).Get("/", h.listAdmins)
		return
	}
	r.Get("/", h.listAdmins)
}

type authenticateRequest struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

type authenticateResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username"`
}

// addAdminRequest accepts either the structured fields or the legacy compound
// "credentials" string of the form "requesterDigest;newDigest".
type addAdminRequest struct {
	RequesterUsername   string  `json:"requester_username"`
	RequesterCredential string  `json:"requester_credential"`
	Username            string  `json:"username"`
	Credential          string  `json:"credential"`
	Credentials         *string `json:"credentials"`
}

type addAdminResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

type adminListResponse struct {
	Admins []adminPayload `json:"admins"`
}

type adminPayload struct {
	Username  string `json:"username"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (h *AdminHandlers) authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.authn == nil {
		writeUnavailable(ctx, w, "admin")
		return
	}
	var req authenticateRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	if err := h.authn.Authenticate(ctx, req.Username, req.Credential); err != nil {
		if errors.Is(err, errAdminLockedOut) {
			writeAuthError(ctx, w, err)
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, authenticateResponse{Authenticated: true, Username: strings.TrimSpace(req.Username)})
}

func (h *AdminHandlers) addAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admins == nil {
		writeUnavailable(ctx, w, "admin")
		return
	}
	var req addAdminRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}

	cmd := services.AddAdminCommand{
		RequesterUsername:   req.RequesterUsername,
		RequesterCredential: req.RequesterCredential,
		NewUsername:         req.Username,
		NewCredential:       req.Credential,
	}
	if req.Credentials != nil {
		if req.RequesterCredential != "" || req.Credential != "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "credentials cannot be combined with requester_credential or credential", http.StatusBadRequest))
			return
		}
		requester, newCredential, err := services.ParseCombinedCredential(*req.Credentials)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		cmd.RequesterCredential = requester
		cmd.NewCredential = newCredential
	}

	var message string
	err := h.authn.Attempt(cmd.RequesterUsername, func() error {
		var err error
		message, err = h.admins.AddAdmin(ctx, cmd)
		return err
	})
	if err != nil {
		if errors.Is(err, errAdminLockedOut) {
			writeAuthError(ctx, w, err)
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, addAdminResponse{Message: message, Username: strings.TrimSpace(cmd.NewUsername)})
}

func (h *AdminHandlers) listAdmins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admins == nil {
		writeUnavailable(ctx, w, "admin")
		return
	}
	admins, err := h.admins.ListAdmins(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := adminListResponse{Admins: make([]adminPayload, 0, len(admins))}
	for _, admin := range admins {
		payload.Admins = append(payload.Admins, adminPayload{Username: admin.Username, CreatedAt: formatTime(admin.CreatedAt)})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
