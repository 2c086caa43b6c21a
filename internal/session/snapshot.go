// Package session keeps the client-side copy of a subject's KYC status. The copy is
// a hint for rendering; the server record always wins.
package session

import (
	"encoding/json"
	"strings"

	"akwaba.app/internal/kyc"
)

// Snapshot is the cached shape of one (subject, role) case.
type Snapshot struct {
	Role   kyc.Role   `json:"role"`
	Status kyc.Status `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// None is the fail-closed snapshot for role.
func None(role kyc.Role) Snapshot {
	return Snapshot{Role: role, Status: kyc.StatusNone}
}

// FromView builds a snapshot from a server view.
func FromView(v kyc.CaseView) Snapshot {
	s := Snapshot{Role: v.Role, Status: v.Status, Reason: v.RejectionReason}
	return normalize(s)
}

// State returns the snapshot as a machine state.
func (s Snapshot) State() kyc.State {
	return kyc.State{Status: s.Status, RejectionReason: s.Reason}
}

// legacySnapshot carries the ad hoc keys older clients persisted.
type legacySnapshot struct {
	Role            string `json:"role"`
	Status          string `json:"status"`
	Reason          string `json:"reason"`
	KycStatus       string `json:"kycStatus"`
	KycRejection    string `json:"kycRejectionReason"`
	AgencyKycStatus string `json:"agencyKycStatus"`
	AgencyKycReason string `json:"agencyKycRejectionReason"`
}

// Hydrate decodes a persisted snapshot. Empty, corrupt or unrecognised input
// yields NONE; it never yields PENDING or VERIFIED by accident.
func Hydrate(raw []byte) Snapshot {
	var l legacySnapshot
	if len(raw) == 0 || json.Unmarshal(raw, &l) != nil {
		return Snapshot{Status: kyc.StatusNone}
	}
	role, _ := kyc.ParseRole(l.Role)

	status := firstNonEmpty(l.Status, l.KycStatus)
	reason := firstNonEmpty(l.Reason, l.KycRejection)
	if status == "" && l.AgencyKycStatus != "" {
		status = l.AgencyKycStatus
		reason = firstNonEmpty(reason, l.AgencyKycReason)
		if role == "" {
			role = kyc.RoleAgency
		}
	}
	parsed, err := kyc.ParseStatus(status)
	if err != nil {
		return None(role)
	}
	return normalize(Snapshot{Role: role, Status: parsed, Reason: strings.TrimSpace(reason)})
}

// Encode renders the normalized shape.
func Encode(s Snapshot) ([]byte, error) {
	return json.Marshal(normalize(s))
}

// ApplyLocalTransition applies an event optimistically. On error the input is
// returned unchanged.
func ApplyLocalTransition(s Snapshot, ev kyc.Event) (Snapshot, error) {
	next, err := s.State().Apply(ev)
	if err != nil {
		return s, err
	}
	return normalize(Snapshot{Role: s.Role, Status: next.Status, Reason: next.RejectionReason}), nil
}

// Reconcile merges a local snapshot with the server's. The server wins.
func Reconcile(local, server Snapshot) Snapshot {
	out := normalize(server)
	if out.Role == "" {
		out.Role = local.Role
	}
	return out
}

func normalize(s Snapshot) Snapshot {
	if s.Status == "" {
		s.Status = kyc.StatusNone
	}
	if s.Status != kyc.StatusRejected {
		s.Reason = ""
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
