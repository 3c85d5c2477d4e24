package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seagull-retail/api/internal/platform/httpx"
)

const (
	defaultHeaderName   = "Idempotency-Key"
	replayHeaderName    = "X-Idempotent-Replay"
	requesterHeaderName = "X-Admin-Username"
	anonymousRequester  = "anonymous"
	defaultMaxBodyBytes = 1 << 20
)

// Logger receives persistence failures that cannot be reported to the client.
type Logger interface {
	Printf(format string, args ...any)
}

// Option configures a Guard.
type Option func(*Guard)

// WithHeader changes the request header carrying the key.
func WithHeader(name string) Option {
	return func(g *Guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMaxBodyBytes caps the request body read for fingerprinting.
func WithMaxBodyBytes(n int64) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxBody = n
		}
	}
}

func WithLogger(logger Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// Guard makes mutating requests safe to retry. The first request carrying a key runs; later
// requests with the same key, requester and payload receive the stored response. Server
// errors are not stored, so a retry after a 5xx runs the handler again.
type Guard struct {
	store   Store
	header  string
	ttl     time.Duration
	maxBody int64
	clock   func() time.Time
	logger  Logger
}

// NewGuard returns a Guard backed by store.
func NewGuard(store Store, opts ...Option) *Guard {
	g := &Guard{
		store:   store,
		header:  defaultHeaderName,
		ttl:     DefaultTTL,
		maxBody: defaultMaxBodyBytes,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Middleware wraps handlers with a Guard. A nil store disables the check.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return NewGuard(store, opts...).Wrap
}

// Wrap guards next. Safe methods pass straight through.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		g.serve(w, r, next)
	})
}

func (g *Guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(g.header))
	if key == "" {
		g.fail(w, r, "idempotency_key_required", g.header+" header is required", http.StatusBadRequest)
		return
	}

	body, err := g.bufferBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.fail(w, r, "request_too_large", "request body exceeds the idempotency limit", http.StatusRequestEntityTooLarge)
			return
		}
		g.fail(w, r, "idempotency_read_body_failed", "unable to read request body", http.StatusBadRequest)
		return
	}

	requester := requesterOf(r)
	scope := scopedKey(key, requester)
	fp := fingerprint(r, body, requester)

	reservation, err := g.store.Reserve(ctx, scope, fp, g.now(), g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		g.fail(w, r, "idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict)
		return
	case err != nil:
		g.logf("idempotency: reserve %s for %s: %v", key, requester, err)
		g.fail(w, r, "idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError)
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		g.fail(w, r, "idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict)
		return
	}

	captured := newCapture()
	next.ServeHTTP(captured, r)

	if captured.status() >= http.StatusInternalServerError {
		if err := g.store.Release(ctx, scope, fp); err != nil {
			g.logf("idempotency: release %s after %d: %v", key, captured.status(), err)
		}
		g.flush(w, captured, key)
		return
	}

	if err := g.store.SaveResponse(ctx, scope, fp, captured.response(), g.now(), g.ttl); err != nil {
		g.logf("idempotency: persist %s for %s: %v", key, requester, err)
		if err := g.store.Release(ctx, scope, fp); err != nil {
			g.logf("idempotency: release %s after save failure: %v", key, err)
		}
		g.fail(w, r, "idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError)
		return
	}
	g.flush(w, captured, key)
}

func (g *Guard) bufferBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.maxBody))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func (g *Guard) flush(w http.ResponseWriter, c *capture, key string) {
	if err := c.writeTo(w); err != nil {
		g.logf("idempotency: write response for %s: %v", key, err)
	}
}

func (g *Guard) fail(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

func (g *Guard) now() time.Time { return g.clock().UTC() }

func (g *Guard) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// requesterOf scopes keys per administrator; shoppers share the anonymous scope.
func requesterOf(r *http.Request) string {
	if name := strings.TrimSpace(r.Header.Get(requesterHeaderName)); name != "" {
		return name
	}
	return anonymousRequester
}

func scopedKey(key, requester string) string {
	return strings.TrimSpace(key) + "|" + requester
}

// fingerprint binds a key to the request it was first used with.
func fingerprint(r *http.Request, body []byte, requester string) string {
	var b strings.Builder
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, requester} {
		b.WriteString(part)
		b.WriteByte('\n')
	}
	if len(body) > 0 {
		b.WriteString(digest(body))
	}
	return digest([]byte(b.String()))
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range record.ResponseHeaders {
		header[name] = append([]string(nil), values...)
	}
	header.Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}
