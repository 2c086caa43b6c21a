package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/kyc/policies":                "/v1/kyc/policies",
		"/v1/kyc/policies/agency":         "/v1/kyc/policies/:role",
		"/v1/kyc/cases/me":                "/v1/kyc/cases/me",
		"/v1/kyc/cases/me?role=OWNER":     "/v1/kyc/cases/me",
		"/v1/kyc/cases/01HX":              "/v1/kyc/cases/:id",
		"/v1/kyc/cases?status=PENDING":    "/v1/kyc/cases",
		"/v1/kyc/submissions":             "/v1/kyc/submissions",
		"/v1/kyc/policies/agency/extra":   "/v1/kyc/policies/agency/extra",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestKYCCounters(t *testing.T) {
	Init()
	before := testutil.ToFloat64(kycSubmissions.WithLabelValues("OWNER", "accepted"))
	ObserveSubmission("owner", "accepted")
	if got := testutil.ToFloat64(kycSubmissions.WithLabelValues("OWNER", "accepted")); got != before+1 {
		t.Fatalf("submission counter=%v, want %v", got, before+1)
	}
	ObserveDecision("agency", "rejected")
	if got := testutil.ToFloat64(kycDecisions.WithLabelValues("AGENCY", "REJECTED")); got < 1 {
		t.Fatalf("decision counter=%v", got)
	}
	SetPendingCases(7)
	if got := testutil.ToFloat64(kycPending); got != 7 {
		t.Fatalf("pending gauge=%v", got)
	}
}

func TestSetBuildInfoKeepsOneSeries(t *testing.T) {
	Init()
	SetBuildInfo("v1", "aaa")
	SetBuildInfo("v2", "bbb")
	if n := testutil.CollectAndCount(buildInfo); n != 1 {
		t.Fatalf("expected 1 build_info series, got %d", n)
	}
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("v2", "bbb")); got != 1 {
		t.Fatalf("build_info=%v", got)
	}
}

func TestReadyFlag(t *testing.T) {
	SetReady(true)
	if !Ready() || testutil.ToFloat64(serviceReady) != 1 {
		t.Fatal("expected ready")
	}
	SetReady(false)
	if Ready() {
		t.Fatal("expected not ready")
	}
}

func TestInstrumentUsesCanonicalPath(t *testing.T) {
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/kyc/policies/guest", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/kyc/policies/:role", "418"))
	if got != 1 {
		t.Fatalf("expected one request under canonical path, got %v", got)
	}
	if strings.Contains(CanonicalPath("/v1/kyc/policies/guest"), "guest") {
		t.Fatal("role leaked into label")
	}
}
