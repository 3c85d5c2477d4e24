package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/seagull-retail/api/internal/platform/httpx"
	"github.com/seagull-retail/api/internal/services"
)

const (
	// AdminUsernameHeader names the administrator making the request.
	AdminUsernameHeader = "X-Admin-Username"
	// AdminCredentialHeader carries the hex SHA-256 digest of the administrator's password.
	AdminCredentialHeader = "X-Admin-Credential"

	defaultAuthFailureLimit  = 5
	defaultAuthFailureWindow = 5 * time.Minute
)

var errAdminLockedOut = errors.New("too many failed attempts")

type adminContextKey struct{}

// AdminFromContext returns the authenticated administrator stored by RequireAdmin.
func AdminFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(adminContextKey{}).(string)
	return name, ok && name != ""
}

// AdminAuthenticator verifies administrator header credentials and throttles repeated failures
// per username.
type AdminAuthenticator struct {
	admins  services.AdminService
	limiter *failureLimiter
}

// AdminAuthOption customises AdminAuthenticator.
type AdminAuthOption func(*adminAuthConfig)

type adminAuthConfig struct {
	limit  int
	window time.Duration
	clock  func() time.Time
}

// WithAuthFailureLimit sets how many failures within window lock a username out.
// A zero limit disables throttling.
func WithAuthFailureLimit(limit int, window time.Duration) AdminAuthOption {
	return func(cfg *adminAuthConfig) {
		cfg.limit = limit
		cfg.window = window
	}
}

// WithAuthClock overrides the limiter clock.
func WithAuthClock(clock func() time.Time) AdminAuthOption {
	return func(cfg *adminAuthConfig) {
		cfg.clock = clock
	}
}

// NewAdminAuthenticator constructs the authenticator.
func NewAdminAuthenticator(admins services.AdminService, opts ...AdminAuthOption) *AdminAuthenticator {
	cfg := adminAuthConfig{limit: defaultAuthFailureLimit, window: defaultAuthFailureWindow}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &AdminAuthenticator{
		admins:  admins,
		limiter: newFailureLimiter(cfg.limit, cfg.window, cfg.clock),
	}
}

// Authenticate checks the credential, counting failures toward the lockout.
func (a *AdminAuthenticator) Authenticate(ctx context.Context, username, credential string) error {
	if a == nil || a.admins == nil {
		return services.ErrAdminUnavailable
	}
	return a.Attempt(username, func() error {
		return a.admins.Authenticate(ctx, username, credential)
	})
}

// Attempt runs op on behalf of username under the failure lockout. Unauthorized and
// not-found results count as failures; success clears the counter.
func (a *AdminAuthenticator) Attempt(username string, op func() error) error {
	if a == nil {
		return op()
	}
	if a.limiter.Locked(username) {
		return errAdminLockedOut
	}
	err := op()
	switch {
	case err == nil:
		a.limiter.Succeed(username)
	case errors.Is(err, services.ErrUnauthorized), errors.Is(err, services.ErrNotFound):
		a.limiter.Fail(username)
	}
	return err
}

// RequireAdmin rejects requests whose admin headers do not authenticate.
func (a *AdminAuthenticator) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			username := strings.TrimSpace(r.Header.Get(AdminUsernameHeader))
			credential := strings.TrimSpace(r.Header.Get(AdminCredentialHeader))
			if username == "" || credential == "" {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "admin credentials required", http.StatusUnauthorized))
				return
			}
			if err := a.Authenticate(ctx, username, credential); err != nil {
				writeAuthError(ctx, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, adminContextKey{}, username)))
		})
	}
}

// writeAuthError hides which check failed behind a single 401.
func writeAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errAdminLockedOut):
		httpx.WriteError(ctx, w, httpx.NewError("too_many_attempts", "too many failed attempts; retry later", http.StatusTooManyRequests))
	case errors.Is(err, services.ErrUnauthorized), errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "invalid admin credentials", http.StatusUnauthorized))
	default:
		writeServiceError(ctx, w, err)
	}
}
