package client

import (
	"context"
	"errors"
	"strings"
	"sync"

	"akwaba.app/internal/kyc"
	"akwaba.app/internal/obs"
	"akwaba.app/internal/session"
)

// API is the subset of Client a Workflow needs.
type API interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	Fetch(ctx context.Context, role kyc.Role) (kyc.CaseView, error)
}

// Form holds what the user has entered so far.
type Form struct {
	DocumentURL    string
	DocumentType   kyc.DocumentType
	DocumentNumber string
	Consent        bool
}

// Workflow drives one role's submission form. The same type serves every role;
// the policy decides what differs.
type Workflow struct {
	api     API
	tracker *session.Tracker
	policy  kyc.Policy

	mu       sync.Mutex
	form     Form
	inFlight bool
}

// NewWorkflow builds a workflow for the tracker's role.
func NewWorkflow(api API, tracker *session.Tracker) (*Workflow, error) {
	if api == nil || tracker == nil {
		return nil, errors.New("kyc client: api and tracker are required")
	}
	policy, err := kyc.PolicyFor(tracker.Role())
	if err != nil {
		return nil, err
	}
	return &Workflow{
		api:     api,
		tracker: tracker,
		policy:  policy,
		form:    Form{DocumentType: policy.DefaultDocumentType},
	}, nil
}

func (w *Workflow) Policy() kyc.Policy { return w.policy }

// Form returns a copy of the current field values.
func (w *Workflow) Form() Form {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form
}

func (w *Workflow) SetDocumentURL(u string) {
	w.mu.Lock()
	w.form.DocumentURL = strings.TrimSpace(u)
	w.mu.Unlock()
}

// SetDocumentType ignores types the role does not accept.
func (w *Workflow) SetDocumentType(dt kyc.DocumentType) bool {
	if !w.policy.Accepts(dt) {
		return false
	}
	w.mu.Lock()
	w.form.DocumentType = dt
	w.mu.Unlock()
	return true
}

func (w *Workflow) SetDocumentNumber(n string) {
	w.mu.Lock()
	w.form.DocumentNumber = n
	w.mu.Unlock()
}

func (w *Workflow) SetConsent(v bool) {
	w.mu.Lock()
	w.form.Consent = v
	w.mu.Unlock()
}

// InFlight reports whether a submission is running.
func (w *Workflow) InFlight() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}

// CanSubmit reports whether Submit would reach the network.
func (w *Workflow) CanSubmit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.inFlight && w.gateLocked()
}

func (w *Workflow) gateLocked() bool {
	return w.form.DocumentURL != "" && kyc.IsSubmissionAllowed(w.policy, w.form.Consent, w.form.DocumentNumber)
}

// Submit sends the form. Field values survive every failure. On success the
// session moves to PENDING; on a conflict it is reconciled with the server.
func (w *Workflow) Submit(ctx context.Context) (session.Snapshot, error) {
	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		return w.tracker.View(ctx), ErrInFlight
	}
	if !w.gateLocked() {
		w.mu.Unlock()
		return w.tracker.View(ctx), ErrSubmissionBlocked
	}
	w.inFlight = true
	form := w.form
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.inFlight = false
		w.mu.Unlock()
	}()

	req := SubmitRequest{
		Role:         w.policy.Role,
		DocumentURL:  form.DocumentURL,
		DocumentType: form.DocumentType,
		Consent:      form.Consent,
	}
	if n := strings.TrimSpace(form.DocumentNumber); n != "" {
		req.DocumentNumber = n
	}

	res, err := w.api.Submit(ctx, req)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			snap, _ := w.Refresh(ctx)
			return snap, err
		}
		return w.tracker.View(ctx), err
	}

	accepted := session.Snapshot{Role: w.policy.Role, Status: res.Status}
	if res.Case.Status != "" {
		accepted = session.FromView(res.Case)
	}
	return w.record(ctx, accepted), nil
}

// Refresh fetches the server's case and reconciles the session with it.
func (w *Workflow) Refresh(ctx context.Context) (session.Snapshot, error) {
	view, err := w.api.Fetch(ctx, w.policy.Role)
	if err != nil {
		return w.tracker.View(ctx), err
	}
	return w.record(ctx, session.FromView(view)), nil
}

// record stores the server's answer in the session. A failed cache write
// leaves the answer intact; the cache is only a hint.
func (w *Workflow) record(ctx context.Context, server session.Snapshot) session.Snapshot {
	snap, err := w.tracker.Reconcile(ctx, server)
	if err != nil {
		obs.Warn("kyc session cache write failed", map[string]any{
			"role":   string(w.policy.Role),
			"status": string(snap.Status),
			"error":  err.Error(),
		})
	}
	return snap
}
