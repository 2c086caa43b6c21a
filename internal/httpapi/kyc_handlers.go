package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"akwaba.app/internal/auth"
	"akwaba.app/internal/capture"
	"akwaba.app/internal/kyc"
	"akwaba.app/internal/obs"
)

type submissionRequest struct {
	Role           string `json:"role" validate:"required,max=32"`
	DocumentURL    string `json:"documentUrl" validate:"required,max=2048"`
	DocumentType   string `json:"documentType" validate:"max=32"`
	DocumentNumber string `json:"documentNumber" validate:"max=256"`
	Consent        bool   `json:"consent"`
}

type submissionResponse struct {
	Status kyc.Status   `json:"status"`
	Case   kyc.CaseView `json:"case"`
}

type decisionRequest struct {
	CaseID  string `json:"caseId" validate:"required,max=64"`
	Outcome string `json:"outcome" validate:"required,max=16"`
	Reason  string `json:"reason" validate:"max=1024"`
}

type uploadRequest struct {
	Role        string `json:"role" validate:"required,max=32"`
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required,max=128"`
}

type caseList struct {
	Cases []kyc.CaseView `json:"cases"`
}

func (a *API) submitKYC(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())

	var req submissionRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		obs.ObserveSubmission("unknown", "invalid")
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := kyc.ParseRole(req.Role)
	if err != nil {
		obs.ObserveSubmission("unknown", "invalid")
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.kyc.Submit(r.Context(), kyc.Submission{
		SubjectID:      subject,
		Role:           role,
		DocumentURL:    req.DocumentURL,
		DocumentType:   kyc.DocumentType(strings.ToUpper(strings.TrimSpace(req.DocumentType))),
		DocumentNumber: req.DocumentNumber,
		Consent:        req.Consent,
	})
	if err != nil {
		obs.ObserveSubmission(string(role), submissionResult(err))
		a.handleKYCError(w, r, err, "")
		return
	}
	obs.ObserveSubmission(string(role), "accepted")
	writeJSON(w, http.StatusOK, submissionResponse{Status: c.Status, Case: c.View()})
}

func (a *API) getOwnCase(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	role, err := kyc.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.kyc.Get(r.Context(), subject, role)
	if err != nil {
		a.handleKYCError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

func (a *API) listCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := kyc.StatusPending
	if raw := q.Get("status"); raw != "" {
		s, err := kyc.ParseStatus(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		status = s
	}
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit: "+err.Error())
		return
	}

	cases, err := a.kyc.List(r.Context(), status, limit)
	if err != nil {
		a.handleKYCError(w, r, err, "")
		return
	}
	out := caseList{Cases: make([]kyc.CaseView, 0, len(cases))}
	for _, c := range cases {
		out.Cases = append(out.Cases, c.View())
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := a.kyc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleKYCError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

func (a *API) decideKYC(w http.ResponseWriter, r *http.Request) {
	reviewer, _ := auth.SubjectFromContext(r.Context())

	var req decisionRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := kyc.ParseOutcome(req.Outcome)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.kyc.Decide(r.Context(), kyc.Decision{
		CaseID:     req.CaseID,
		Outcome:    outcome,
		Reason:     req.Reason,
		ReviewerID: reviewer,
	})
	if err != nil {
		a.handleKYCError(w, r, err, req.CaseID)
		return
	}
	obs.ObserveDecision(string(c.Role), string(outcome))
	writeJSON(w, http.StatusOK, c.View())
}

func (a *API) listPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"policies": kyc.Policies()})
}

func (a *API) getPolicy(w http.ResponseWriter, r *http.Request) {
	role, err := kyc.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, kyc.MustPolicyFor(role))
}

func (a *API) presignUpload(w http.ResponseWriter, r *http.Request) {
	if a.opts.Uploads == nil {
		writeError(w, r, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	subject, _ := auth.SubjectFromContext(r.Context())

	var req uploadRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := kyc.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	up, err := a.opts.Uploads.PresignUpload(r.Context(), subject, role, req.FileName, req.ContentType)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, up)
	case errors.Is(err, capture.ErrUnsupportedContentType):
		writeError(w, r, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, capture.ErrInvalidFileName):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.Error("presign upload failed", map[string]any{"error": err.Error(), "role": string(role)})
		writeError(w, r, http.StatusBadGateway, "upload presign failed")
	}
}

// handleKYCError maps service errors to responses. Conflicts carry the case's
// current status so clients can reconcile.
func (a *API) handleKYCError(w http.ResponseWriter, r *http.Request, err error, caseID string) {
	switch {
	case errors.Is(err, kyc.ErrInvalidRole),
		errors.Is(err, kyc.ErrInvalidStatus),
		errors.Is(err, kyc.ErrInvalidOutcome),
		errors.Is(err, kyc.ErrReasonRequired):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, kyc.ErrPolicyViolation):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, kyc.ErrAlreadyPending):
		writeErrorBody(w, r, http.StatusConflict, map[string]any{"error": err.Error(), "status": kyc.StatusPending})
	case errors.Is(err, kyc.ErrAlreadyVerified):
		writeErrorBody(w, r, http.StatusConflict, map[string]any{"error": err.Error(), "status": kyc.StatusVerified})
	case errors.Is(err, kyc.ErrNotPending):
		payload := map[string]any{"error": err.Error()}
		if c, lookupErr := a.kyc.GetByID(r.Context(), caseID); lookupErr == nil {
			payload["status"] = c.Status
		}
		writeErrorBody(w, r, http.StatusConflict, payload)
	case errors.Is(err, kyc.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		obs.Error("kyc request failed", map[string]any{"error": err.Error(), "path": r.URL.Path})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func submissionResult(err error) string {
	switch {
	case errors.Is(err, kyc.ErrPolicyViolation), errors.Is(err, kyc.ErrInvalidRole):
		return "invalid"
	case kyc.IsConflict(err):
		return "conflict"
	default:
		return "error"
	}
}
