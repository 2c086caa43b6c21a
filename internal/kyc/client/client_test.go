package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"akwaba.app/internal/kyc"
	"akwaba.app/internal/session"
)

type fakeServer struct {
	calls  atomic.Int32
	submit http.HandlerFunc
	fetch  http.HandlerFunc
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/kyc/submissions":
		f.submit(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/kyc/cases/me":
		f.fetch(w, r)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithBearerToken("tok"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClientSubmitSuccess(t *testing.T) {
	fs := &fakeServer{submit: func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Role != kyc.RoleOwner || req.DocumentNumber != "" {
			t.Errorf("unexpected request %+v", req)
		}
		writeJSON(w, http.StatusOK, SubmitResult{Status: kyc.StatusPending, Case: kyc.CaseView{State: kyc.State{Status: kyc.StatusPending}, ID: "c1", Role: kyc.RoleOwner}})
	}}
	c := newTestClient(t, fs)
	res, err := c.Submit(context.Background(), SubmitRequest{Role: kyc.RoleOwner, DocumentURL: "https://x/doc.pdf", Consent: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != kyc.StatusPending || res.Case.ID != "c1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClientSubmitTypedErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   any
		check  func(t *testing.T, err error)
	}{
		{"validation", http.StatusUnprocessableEntity, map[string]string{"error": "document number too short"}, func(t *testing.T, err error) {
			var ve *ValidationError
			if !errors.As(err, &ve) || !errors.Is(err, kyc.ErrPolicyViolation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		}},
		{"conflict", http.StatusConflict, map[string]string{"error": "already pending", "status": "PENDING"}, func(t *testing.T, err error) {
			var ce *ConflictError
			if !errors.As(err, &ce) || ce.Status != kyc.StatusPending || !errors.Is(err, kyc.ErrAlreadyPending) {
				t.Fatalf("expected pending ConflictError, got %v", err)
			}
		}},
		{"server error", http.StatusInternalServerError, map[string]string{"error": "boom"}, func(t *testing.T, err error) {
			var te *TransportError
			if !errors.As(err, &te) || te.StatusCode != http.StatusInternalServerError {
				t.Fatalf("expected TransportError, got %v", err)
			}
		}},
		{"success with wrong status", http.StatusOK, map[string]string{"status": "VERIFIED"}, func(t *testing.T, err error) {
			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransportError, got %v", err)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeServer{submit: func(w http.ResponseWriter, r *http.Request) { writeJSON(w, tc.status, tc.body) }}
			c := newTestClient(t, fs)
			_, err := c.Submit(context.Background(), SubmitRequest{Role: kyc.RoleGuest, DocumentURL: "https://x/p.pdf", Consent: true})
			tc.check(t, err)
		})
	}
}

func TestClientSubmitNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c, err := New(url, WithHTTPClient(&http.Client{Timeout: time.Second}))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Submit(context.Background(), SubmitRequest{Role: kyc.RoleGuest})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestClientFetchRejectsUnknownStatus(t *testing.T) {
	fs := &fakeServer{fetch: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "APPROVED", "role": r.URL.Query().Get("role")})
	}}
	c := newTestClient(t, fs)
	if _, err := c.Fetch(context.Background(), kyc.RoleAgent); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func newWorkflow(t *testing.T, api API, role kyc.Role) (*Workflow, *session.Tracker) {
	t.Helper()
	tr := session.NewTracker(session.NewMemoryCache(), "subject-1", role)
	w, err := NewWorkflow(api, tr)
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	return w, tr
}

func TestWorkflowBlockedMakesNoNetworkCall(t *testing.T) {
	fs := &fakeServer{submit: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SubmitResult{Status: kyc.StatusPending})
	}}
	c := newTestClient(t, fs)
	w, tr := newWorkflow(t, c, kyc.RoleAgency)

	w.SetDocumentURL("https://x/rccm.pdf")
	w.SetDocumentNumber("CI-A")
	w.SetConsent(true)
	if w.CanSubmit() {
		t.Fatal("short number must block the gate")
	}
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrSubmissionBlocked) {
		t.Fatalf("expected ErrSubmissionBlocked, got %v", err)
	}

	w.SetDocumentNumber("CI-AB1")
	w.SetConsent(false)
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrSubmissionBlocked) {
		t.Fatalf("expected ErrSubmissionBlocked without consent, got %v", err)
	}

	if n := fs.calls.Load(); n != 0 {
		t.Fatalf("expected no network calls, got %d", n)
	}
	if v := tr.View(context.Background()); v.Status != kyc.StatusNone {
		t.Fatalf("session changed: %+v", v)
	}
	if f := w.Form(); f.DocumentNumber != "CI-AB1" || f.DocumentType != kyc.DocRCCM {
		t.Fatalf("form not preserved: %+v", f)
	}
}

func TestWorkflowResubmitAfterRejection(t *testing.T) {
	fs := &fakeServer{submit: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SubmitResult{Status: kyc.StatusPending, Case: kyc.CaseView{State: kyc.State{Status: kyc.StatusPending}, Role: kyc.RoleArtisan, Attempt: 2}})
	}}
	c := newTestClient(t, fs)
	w, tr := newWorkflow(t, c, kyc.RoleArtisan)
	ctx := context.Background()
	if _, err := tr.Reconcile(ctx, session.Snapshot{Status: kyc.StatusRejected, Reason: "Illegible document"}); err != nil {
		t.Fatal(err)
	}

	w.SetDocumentURL("https://x/a-v2.pdf")
	w.SetDocumentNumber("RM-123456")
	w.SetConsent(true)
	snap, err := w.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap.Status != kyc.StatusPending || snap.Reason != "" {
		t.Fatalf("expected PENDING with cleared reason, got %+v", snap)
	}
	if v := tr.View(ctx); v.Status != kyc.StatusPending {
		t.Fatalf("tracker not updated: %+v", v)
	}
}

func TestWorkflowConflictReconciles(t *testing.T) {
	fs := &fakeServer{
		submit: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "case already verified", "status": "VERIFIED"})
		},
		fetch: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, kyc.CaseView{State: kyc.State{Status: kyc.StatusVerified}, Role: kyc.RoleGuest})
		},
	}
	c := newTestClient(t, fs)
	w, tr := newWorkflow(t, c, kyc.RoleGuest)
	w.SetDocumentURL("https://x/p.pdf")
	w.SetConsent(true)

	snap, err := w.Submit(context.Background())
	if !errors.Is(err, kyc.ErrAlreadyVerified) {
		t.Fatalf("expected verified conflict, got %v", err)
	}
	if snap.Status != kyc.StatusVerified {
		t.Fatalf("expected reconciled VERIFIED, got %+v", snap)
	}
	if v := tr.View(context.Background()); v.Status != kyc.StatusVerified {
		t.Fatalf("tracker not reconciled: %+v", v)
	}
}

func TestWorkflowMinimalAcceptanceOverridesStaleCache(t *testing.T) {
	fs := &fakeServer{submit: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"PENDING"}`))
	}}
	c := newTestClient(t, fs)
	w, tr := newWorkflow(t, c, kyc.RoleOwner)
	ctx := context.Background()
	if _, err := tr.Reconcile(ctx, session.Snapshot{Status: kyc.StatusVerified}); err != nil {
		t.Fatal(err)
	}

	w.SetDocumentURL("https://x/title.pdf")
	w.SetConsent(true)
	snap, err := w.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap.Status != kyc.StatusPending || snap.Role != kyc.RoleOwner {
		t.Fatalf("expected PENDING for owner, got %+v", snap)
	}
	if v := tr.View(ctx); v.Status != kyc.StatusPending {
		t.Fatalf("stale cache survived: %+v", v)
	}
}

type storeFailingCache struct{ *session.MemoryCache }

func (storeFailingCache) Store(context.Context, string, []byte) error { return errors.New("cache down") }

func TestWorkflowCacheWriteFailureKeepsAcceptance(t *testing.T) {
	fs := &fakeServer{submit: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SubmitResult{Status: kyc.StatusPending})
	}}
	c := newTestClient(t, fs)
	tr := session.NewTracker(storeFailingCache{session.NewMemoryCache()}, "subject-1", kyc.RoleGuest)
	w, err := NewWorkflow(c, tr)
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}

	w.SetDocumentURL("https://x/p.pdf")
	w.SetConsent(true)
	snap, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("accepted submission reported as failure: %v", err)
	}
	if snap.Status != kyc.StatusPending {
		t.Fatalf("expected PENDING, got %+v", snap)
	}
	if n := fs.calls.Load(); n != 1 {
		t.Fatalf("expected 1 server call, got %d", n)
	}
	if w.InFlight() {
		t.Fatal("in-flight flag not released")
	}
}

func TestWorkflowTransportFailureKeepsForm(t *testing.T) {
	fs := &fakeServer{submit: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream"})
	}}
	c := newTestClient(t, fs)
	w, tr := newWorkflow(t, c, kyc.RoleAgent)
	w.SetDocumentURL("https://x/c.pdf")
	w.SetDocumentNumber("CP-998877")
	w.SetConsent(true)

	_, err := w.Submit(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if v := tr.View(context.Background()); v.Status != kyc.StatusNone {
		t.Fatalf("transport failure must not look like success: %+v", v)
	}
	f := w.Form()
	if f.DocumentNumber != "CP-998877" || f.DocumentURL != "https://x/c.pdf" || !f.Consent {
		t.Fatalf("form lost: %+v", f)
	}
	if w.InFlight() {
		t.Fatal("in-flight flag not cleared")
	}
}

type blockingAPI struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAPI) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	close(b.entered)
	<-b.release
	return SubmitResult{Status: kyc.StatusPending, Case: kyc.CaseView{State: kyc.State{Status: kyc.StatusPending}, Role: req.Role}}, nil
}

func (b *blockingAPI) Fetch(context.Context, kyc.Role) (kyc.CaseView, error) {
	return kyc.CaseView{}, errors.New("unused")
}

func TestWorkflowSingleFlight(t *testing.T) {
	api := &blockingAPI{entered: make(chan struct{}), release: make(chan struct{})}
	w, _ := newWorkflow(t, api, kyc.RoleOwner)
	w.SetDocumentURL("https://x/d.pdf")
	w.SetConsent(true)

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-api.entered

	if w.CanSubmit() {
		t.Fatal("CanSubmit must be false while in flight")
	}
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	close(api.release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
}

func TestWorkflowRejectsUnacceptedDocumentType(t *testing.T) {
	w, _ := newWorkflow(t, &blockingAPI{}, kyc.RoleInvestor)
	if w.Form().DocumentType != kyc.DocPassport {
		t.Fatalf("expected investor default PASSPORT, got %s", w.Form().DocumentType)
	}
	if w.SetDocumentType(kyc.DocKBISArtisan) {
		t.Fatal("artisan registry must not be accepted for investors")
	}
	if !w.SetDocumentType(kyc.DocRCCM) || w.Form().DocumentType != kyc.DocRCCM {
		t.Fatal("RCCM must be accepted for investors")
	}
}
