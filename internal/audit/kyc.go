package audit

import (
	"context"

	"akwaba.app/internal/kyc"
)

const (
	EventKYCSubmitted = "kyc.submitted"
	EventKYCDecided   = "kyc.decided"
)

// CaseLogger writes an audit line for every committed case transition.
type CaseLogger struct{}

var _ kyc.Notifier = CaseLogger{}

// CaseChanged logs c without its document number.
func (CaseLogger) CaseChanged(ctx context.Context, c kyc.Case) {
	_ = LogEvent(ctx, EventFor(c), CaseFields(c))
}

// EventFor names the transition that produced c.
func EventFor(c kyc.Case) string {
	if c.Status == kyc.StatusPending {
		return EventKYCSubmitted
	}
	return EventKYCDecided
}

// CaseFields lists what may be recorded about a case.
func CaseFields(c kyc.Case) map[string]any {
	f := map[string]any{
		"case_id":       c.ID,
		"subject_id":    c.SubjectID,
		"role":          string(c.Role),
		"status":        string(c.Status),
		"attempt":       c.Attempt,
		"document_type": string(c.DocumentType),
	}
	if c.RejectionReason != "" {
		f["reason"] = c.RejectionReason
	}
	if c.DecidedBy != "" {
		f["decided_by"] = c.DecidedBy
	}
	return f
}
