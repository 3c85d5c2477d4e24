package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seagull-retail/api/internal/platform/requestctx"
)

const sampleTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

func TestParseCloudTrace(t *testing.T) {
	sc, ok := ParseCloudTrace(sampleTraceID + "/123;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != sampleTraceID || !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("unexpected span context %+v", sc)
	}
	if got := FormatCloudTrace(sc); got != sampleTraceID+"/123;o=1" {
		t.Fatalf("expected round trip, got %q", got)
	}

	for _, bad := range []string{"", "abc/1", sampleTraceID, sampleTraceID + "/0", sampleTraceID + "/xyz;o=1"} {
		if _, ok := ParseCloudTrace(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestTraceMiddlewarePropagatesParent(t *testing.T) {
	cases := map[string]http.Header{
		"cloud trace": {CloudTraceHeader: {sampleTraceID + "/42;o=1"}},
		"traceparent": {"Traceparent": {"00-" + sampleTraceID + "-00f067aa0ba902b7-01"}},
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			var seen requestctx.TraceInfo
			handler := TraceMiddleware("seagull-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = requestctx.Trace(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
			req.Header = header
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if seen.TraceID != sampleTraceID || seen.ProjectID != "seagull-prod" {
				t.Fatalf("unexpected trace info %+v", seen)
			}
			if rr.Header().Get(CloudTraceHeader) == "" {
				t.Fatalf("expected trace header on response")
			}
		})
	}
}

func TestTraceMiddlewareWithoutParent(t *testing.T) {
	var found bool
	handler := TraceMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found = requestctx.Trace(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if found {
		t.Fatalf("no trace info expected without a parent or exporter")
	}
}
