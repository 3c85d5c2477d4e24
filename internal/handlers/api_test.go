package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/platform/idempotency"
	"github.com/seagull-retail/api/internal/repositories/memory"
	"github.com/seagull-retail/api/internal/services"
)

var apiNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	router         chi.Router
	store          *memory.Store
	rootCredential string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return apiNow }

	store := memory.NewStore()
	for _, item := range []domain.Item{
		{ID: "000001", Name: "Seagull Drink", MSRP: 175, SalePrice: 150, Stock: 20},
		{ID: "000002", Name: "Seagull Chips", MSRP: 599, SalePrice: 499, Stock: 25, OnSale: true},
		{ID: "100020", Name: "Food Bundle", MSRP: 600, SalePrice: 500, Stock: 20, IsBundle: true},
	} {
		if err := store.InsertItem(ctx, item); err != nil {
			t.Fatalf("InsertItem(%s): %v", item.ID, err)
		}
	}
	if err := store.InsertCart(ctx, domain.Cart{ID: "cart-1", Name: "Stella", CreatedAt: apiNow, UpdatedAt: apiNow}); err != nil {
		t.Fatalf("InsertCart: %v", err)
	}

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{Items: store.Items()})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	carts, err := services.NewCartService(services.CartServiceDeps{
		Repository:  store.Carts(),
		Clock:       clock,
		IDGenerator: func() string { return "cart-new" },
	})
	if err != nil {
		t.Fatalf("carts: %v", err)
	}
	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Carts:              store.Carts(),
		Items:              store.Items(),
		TaxRateBasisPoints: 800,
		Currency:           "USD",
	})
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	payments, err := services.NewPaymentValidator(services.PaymentValidatorDeps{
		Clock:       clock,
		IDGenerator: func() string { return "AUTH-1" },
	})
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	admins, err := services.NewAdminService(services.AdminServiceDeps{Repository: store.Admins(), Clock: clock})
	if err != nil {
		t.Fatalf("admins: %v", err)
	}
	if _, err := admins.EnsureBootstrapAdmin(ctx, "root", "hunter2"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:    carts,
		Pricing:  pricing,
		Payments: payments,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	authn := NewAdminAuthenticator(admins, WithAuthFailureLimit(3, time.Minute), WithAuthClock(clock))
	router := NewRouter(
		WithItemRoutes(NewItemHandlers(catalog, pricing.Currency(), authn).Routes),
		WithCartRoutes(NewCartHandlers(carts, pricing).Routes),
		WithCheckoutRoutes(NewCheckoutHandlers(checkout).Routes),
		WithCheckoutMiddlewares(idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithClock(clock))),
		WithPaymentRoutes(NewPaymentHandlers(payments).Routes),
		WithAdminRoutes(NewAdminHandlers(admins, authn).Routes),
	)
	return &testAPI{router: router, store: store, rootCredential: services.HashCredential("hunter2")}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) adminHeaders() map[string]string {
	return map[string]string{AdminUsernameHeader: "root", AdminCredentialHeader: a.rootCredential}
}

func (a *testAPI) stock(t *testing.T, itemID string) int {
	t.Helper()
	item, err := a.store.GetItem(context.Background(), itemID)
	if err != nil {
		t.Fatalf("GetItem(%s): %v", itemID, err)
	}
	return item.Stock
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeBody(t, rr, &body)
	code, _ := body["error"].(string)
	return code
}

const validCardBody = `{"card_number":"5105 1051 0510 5100","expiry_month":10,"expiry_year":2030,"holder_name":"Stella Gull","cvv":"123"}`

func TestRouterMountsHealthAndFallbacks(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for unconfigured group, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRouterServesMetricsHandler(t *testing.T) {
	router := NewRouter(WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("seagull_up 1\n"))
	})))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "seagull_up") {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}
}

func TestItemListings(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/v1/items", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list itemListResponse
	decodeBody(t, rr, &list)
	if len(list.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(list.Items))
	}

	rr = api.do(t, http.MethodGet, "/api/v1/items/on-sale", "", nil)
	decodeBody(t, rr, &list)
	if len(list.Items) != 1 || list.Items[0].ID != "000002" {
		t.Fatalf("unexpected on-sale items %+v", list.Items)
	}
	if list.Items[0].Price.Amount != 499 || list.Items[0].Price.Display != "4.99" {
		t.Fatalf("unexpected on-sale price %+v", list.Items[0].Price)
	}

	rr = api.do(t, http.MethodGet, "/api/v1/items/999999", "", nil)
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "item_not_found" {
		t.Fatalf("expected item_not_found 404, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestItemListingPagesAndOrders(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/v1/items?orderBy=price+desc&pageSize=2", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var list itemListResponse
	decodeBody(t, rr, &list)
	if len(list.Items) != 2 || list.Items[0].ID != "100020" || list.Items[1].ID != "000002" {
		t.Fatalf("unexpected first page %+v", list.Items)
	}
	if list.NextPageToken == "" {
		t.Fatal("expected next page token")
	}

	rr = api.do(t, http.MethodGet, "/api/v1/items?orderBy=price+desc&pageSize=2&pageToken="+list.NextPageToken, "", nil)
	var second itemListResponse
	decodeBody(t, rr, &second)
	if len(second.Items) != 1 || second.Items[0].ID != "000001" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", second)
	}

	rr = api.do(t, http.MethodGet, "/api/v1/items?orderBy=colour", "", nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_request" {
		t.Fatalf("expected invalid_request 400, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestItemMaintenanceRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	body := `{"id":"000003","name":"Seagull Cereal","msrp":599,"sale_price":599,"stock":25}`

	rr := api.do(t, http.MethodPost, "/api/v1/items", body, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without headers, got %d", rr.Code)
	}

	rr = api.do(t, http.MethodPost, "/api/v1/items", body, api.adminHeaders())
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = api.do(t, http.MethodPost, "/api/v1/items", body, api.adminHeaders())
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "already_exists" {
		t.Fatalf("expected 409 already_exists, got %d %s", rr.Code, rr.Body.String())
	}

	rr = api.do(t, http.MethodPut, "/api/v1/items/000003/sale", `{"on_sale":true}`, api.adminHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp itemResponse
	decodeBody(t, rr, &resp)
	if !resp.Item.OnSale {
		t.Fatalf("expected item on sale")
	}

	rr = api.do(t, http.MethodPut, "/api/v1/items/000003/sale", `{}`, api.adminHeaders())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing on_sale, got %d", rr.Code)
	}
}

func TestBundleComponentRoutes(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/items/100020/components", `{"component_id":"000001"}`, api.adminHeaders())
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = api.do(t, http.MethodGet, "/api/v1/items/100020/components", "", nil)
	var resp componentListResponse
	decodeBody(t, rr, &resp)
	if len(resp.Components) != 1 || resp.Components[0] != "000001" {
		t.Fatalf("unexpected components %+v", resp)
	}
}

func TestCartLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/carts", `{"name":"  Gull  "}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created cartResponse
	decodeBody(t, rr, &created)
	if created.Cart.ID != "cart-new" || created.Cart.Name != "Gull" {
		t.Fatalf("unexpected cart %+v", created.Cart)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/carts/cart-new" {
		t.Fatalf("unexpected Location %q", loc)
	}

	rr = api.do(t, http.MethodPost, "/api/v1/carts/cart-new/lines", `{"item_id":"000001","quantity":4}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := api.stock(t, "000001"); got != 16 {
		t.Fatalf("expected stock 16, got %d", got)
	}

	rr = api.do(t, http.MethodGet, "/api/v1/carts/cart-new", "", nil)
	var fetched cartResponse
	decodeBody(t, rr, &fetched)
	if fetched.Cart.LineCount != 1 || fetched.Cart.Lines[0].Quantity != 4 {
		t.Fatalf("unexpected lines %+v", fetched.Cart.Lines)
	}
	if rr.Header().Get("ETag") == "" {
		t.Fatalf("expected ETag header")
	}

	rr = api.do(t, http.MethodDelete, "/api/v1/carts/cart-new", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := api.stock(t, "000001"); got != 20 {
		t.Fatalf("expected stock restored to 20, got %d", got)
	}
	rr = api.do(t, http.MethodGet, "/api/v1/carts/cart-new", "", nil)
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "cart_not_found" {
		t.Fatalf("expected cart_not_found, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAddLineErrors(t *testing.T) {
	api := newTestAPI(t)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"insufficient stock", "/api/v1/carts/cart-1/lines", `{"item_id":"000001","quantity":21}`, http.StatusConflict, "insufficient_stock"},
		{"zero quantity", "/api/v1/carts/cart-1/lines", `{"item_id":"000001","quantity":0}`, http.StatusBadRequest, "invalid_request"},
		{"unknown item", "/api/v1/carts/cart-1/lines", `{"item_id":"nope","quantity":1}`, http.StatusNotFound, "item_not_found"},
		{"unknown cart", "/api/v1/carts/ghost/lines", `{"item_id":"000001","quantity":1}`, http.StatusNotFound, "cart_not_found"},
		{"unknown field", "/api/v1/carts/cart-1/lines", `{"item":"000001"}`, http.StatusBadRequest, "invalid_request"},
		{"empty body", "/api/v1/carts/cart-1/lines", ` `, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, tc.path, tc.body, nil)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if code := errorCode(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
	if got := api.stock(t, "000001"); got != 20 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestRemoveLine(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodDelete, "/api/v1/carts/cart-1/lines/000001", "", nil)
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "line_not_found" {
		t.Fatalf("expected line_not_found, got %d %s", rr.Code, rr.Body.String())
	}

	api.do(t, http.MethodPost, "/api/v1/carts/cart-1/lines", `{"item_id":"000001","quantity":2}`, nil)
	rr = api.do(t, http.MethodDelete, "/api/v1/carts/cart-1/lines/000001", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp lineResponse
	decodeBody(t, rr, &resp)
	if resp.Line.Quantity != 2 {
		t.Fatalf("expected removed quantity 2, got %d", resp.Line.Quantity)
	}
	if got := api.stock(t, "000001"); got != 20 {
		t.Fatalf("expected stock 20, got %d", got)
	}
}

func TestCartTotals(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/v1/carts/cart-1/lines", `{"item_id":"000001","quantity":1}`, nil)
	api.do(t, http.MethodPost, "/api/v1/carts/cart-1/lines", `{"item_id":"100020","quantity":1}`, nil)

	rr := api.do(t, http.MethodGet, "/api/v1/carts/cart-1/totals", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp totalsResponse
	decodeBody(t, rr, &resp)
	totals := resp.Totals
	if totals.RegularTotal.Amount != 175 || totals.BundleTotal.Amount != 600 {
		t.Fatalf("unexpected split %+v / %+v", totals.RegularTotal, totals.BundleTotal)
	}
	if totals.Tax.Amount != 62 || totals.TotalWithTax.Amount != 837 || totals.TotalWithTax.Display != "8.37" {
		t.Fatalf("unexpected tax totals %+v %+v", totals.Tax, totals.TotalWithTax)
	}
	if totals.Currency != "USD" || len(totals.Lines) != 2 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestCheckoutRequiresIdempotencyKeyAndReplays(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/v1/carts/cart-1/lines", `{"item_id":"000001","quantity":1}`, nil)

	rr := api.do(t, http.MethodPost, "/api/v1/carts/cart-1/checkout", validCardBody, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", rr.Code)
	}

	headers := map[string]string{"Idempotency-Key": "checkout-1"}
	rr = api.do(t, http.MethodPost, "/api/v1/carts/cart-1/checkout", validCardBody, headers)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp checkoutResponse
	decodeBody(t, rr, &resp)
	if resp.Receipt.Authorization.Status != "authorized" || resp.Receipt.Authorization.Code != "AUTH-1" {
		t.Fatalf("unexpected authorization %+v", resp.Receipt.Authorization)
	}
	if resp.Receipt.Totals.TotalWithTax.Amount != 189 {
		t.Fatalf("expected total 189, got %+v", resp.Receipt.Totals.TotalWithTax)
	}

	replay := api.do(t, http.MethodPost, "/api/v1/carts/cart-1/checkout", validCardBody, headers)
	if replay.Code != http.StatusOK || replay.Body.String() != rr.Body.String() {
		t.Fatalf("expected identical replay, got %d %s", replay.Code, replay.Body.String())
	}

	cart, err := api.store.GetCart(context.Background(), "cart-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected finalized cart, got %+v", cart.Lines)
	}
	if got := api.stock(t, "000001"); got != 19 {
		t.Fatalf("expected consumed stock to stay at 19, got %d", got)
	}
}

func TestCheckoutDeclineLeavesCart(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/v1/carts/cart-1/lines", `{"item_id":"000001","quantity":1}`, nil)

	body := `{"card_number":"5105105105105100","expiry_month":10,"expiry_year":2030,"holder_name":"Stella Gull","cvv":"12"}`
	rr := api.do(t, http.MethodPost, "/api/v1/carts/cart-1/checkout", body, map[string]string{"Idempotency-Key": "k"})
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	decodeBody(t, rr, &payload)
	if payload["reason"] != string(domain.DeclineInvalidCVV) {
		t.Fatalf("expected invalid_cvv reason, got %v", payload["reason"])
	}
	cart, err := api.store.GetCart(context.Background(), "cart-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected cart untouched, got %+v", cart.Lines)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodPost, "/api/v1/carts/cart-1/checkout", validCardBody, map[string]string{"Idempotency-Key": "k"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPaymentAuthorize(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/payments/authorize", validCardBody, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp authorizationResponse
	decodeBody(t, rr, &resp)
	if resp.Authorization.Status != "authorized" || resp.Authorization.Code != "AUTH-1" {
		t.Fatalf("unexpected authorization %+v", resp.Authorization)
	}

	expired := `{"card_number":"5105105105105100","expiry_month":2,"expiry_year":2026,"holder_name":"Stella Gull","cvv":"123"}`
	rr = api.do(t, http.MethodPost, "/api/v1/payments/authorize", expired, nil)
	var declined authorizationResponse
	decodeBody(t, rr, &declined)
	if declined.Authorization.Status != "declined" || declined.Authorization.Reason != string(domain.DeclineCardExpired) {
		t.Fatalf("expected card_expired decline, got %+v", declined.Authorization)
	}
	if declined.Authorization.Code != "" {
		t.Fatalf("declined authorization must not carry a code")
	}
}

func TestAdminAuthenticate(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/admins/authenticate", `{"username":"root","credential":"`+api.rootCredential+`"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = api.do(t, http.MethodPost, "/api/v1/admins/authenticate", `{"username":"ghost","credential":"`+api.rootCredential+`"}`, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown admin, got %d", rr.Code)
	}

	wrong := `{"username":"root","credential":"` + services.HashCredential("nope") + `"}`
	for i := 0; i < 3; i++ {
		rr = api.do(t, http.MethodPost, "/api/v1/admins/authenticate", wrong, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rr.Code)
		}
	}
	rr = api.do(t, http.MethodPost, "/api/v1/admins/authenticate", `{"username":"root","credential":"`+api.rootCredential+`"}`, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", rr.Code)
	}
}

func TestAddAdminStructuredAndLegacy(t *testing.T) {
	api := newTestAPI(t)
	stella := services.HashCredential("gull")

	structured := `{"requester_username":"root","requester_credential":"` + api.rootCredential + `","username":"stella","credential":"` + stella + `"}`
	rr := api.do(t, http.MethodPost, "/api/v1/admins", structured, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp addAdminResponse
	decodeBody(t, rr, &resp)
	if resp.Message != "admin stella added" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	rr = api.do(t, http.MethodPost, "/api/v1/admins", structured, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rr.Code)
	}

	legacy := `{"requester_username":"root","username":"gull","credentials":"` + api.rootCredential + `;` + stella + `"}`
	rr = api.do(t, http.MethodPost, "/api/v1/admins", legacy, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for legacy form, got %d: %s", rr.Code, rr.Body.String())
	}

	malformed := `{"requester_username":"root","username":"tern","credentials":"a;b;c"}`
	rr = api.do(t, http.MethodPost, "/api/v1/admins", malformed, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed compound, got %d", rr.Code)
	}

	badRequester := `{"requester_username":"root","requester_credential":"` + stella + `","username":"tern","credential":"` + stella + `"}`
	rr = api.do(t, http.MethodPost, "/api/v1/admins", badRequester, nil)
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "no admin was added") {
		t.Fatalf("expected 401 no admin was added, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAddAdminCountsRequesterFailuresTowardLockout(t *testing.T) {
	api := newTestAPI(t)
	stella := services.HashCredential("gull")
	wrong := `{"requester_username":"root","requester_credential":"` + stella + `","username":"tern","credential":"` + stella + `"}`

	for i := 0; i < 3; i++ {
		rr := api.do(t, http.MethodPost, "/api/v1/admins", wrong, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rr.Code)
		}
	}

	rr := api.do(t, http.MethodPost, "/api/v1/admins", wrong, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the requester is locked out, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "too_many_attempts" {
		t.Fatalf("expected too_many_attempts, got %q", code)
	}

	correct := `{"requester_username":"root","requester_credential":"` + api.rootCredential + `","username":"tern","credential":"` + stella + `"}`
	rr = api.do(t, http.MethodPost, "/api/v1/admins", correct, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("locked requester must not provision admins, got %d", rr.Code)
	}
	rr = api.do(t, http.MethodPost, "/api/v1/admins/authenticate", `{"username":"root","credential":"`+api.rootCredential+`"}`, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("lockout must apply to authenticate as well, got %d", rr.Code)
	}
	if _, err := api.store.FindAdmin(context.Background(), "tern"); err == nil {
		t.Fatalf("no admin should have been added")
	}
}

func TestListAdminsRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/v1/admins", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = api.do(t, http.MethodGet, "/api/v1/admins", "", api.adminHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp adminListResponse
	decodeBody(t, rr, &resp)
	if len(resp.Admins) != 1 || resp.Admins[0].Username != "root" {
		t.Fatalf("unexpected admins %+v", resp.Admins)
	}
	if strings.Contains(rr.Body.String(), api.rootCredential) {
		t.Fatalf("digest leaked in listing")
	}
}
