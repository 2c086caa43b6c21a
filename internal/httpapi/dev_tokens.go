package httpapi

import (
	"net/http"
	"strings"
	"time"

	"akwaba.app/internal/audit"
)

// devTokenRequest names the subject a development token is minted for.
type devTokenRequest struct {
	User  string   `json:"user" validate:"required,max=128"`
	Roles []string `json:"roles" validate:"max=8,dive,max=32"`
}

// claims trims the request down to the subject and its non-blank roles.
func (r devTokenRequest) claims() (string, []string) {
	roles := r.Roles[:0:0]
	for _, role := range r.Roles {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return strings.TrimSpace(r.User), roles
}

type devTokenResponse struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// issueDevToken is routed only when DevTokens is set.
func (a *API) issueDevToken(w http.ResponseWriter, r *http.Request) {
	if a.issuer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "token issuance is not configured")
		return
	}
	var req devTokenRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	subject, roles := req.claims()
	if subject == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}

	token, exp, err := a.issuer.GenerateToken(subject, roles, a.opts.TokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.dev_token.issued", map[string]any{
		"subject":    subject,
		"roles":      roles,
		"expires_at": exp.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, devTokenResponse{Token: token, Subject: subject, ExpiresAt: exp})
}
