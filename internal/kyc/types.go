package kyc

import (
	"strings"
	"time"
)

// Role is the kind of account a case belongs to. It selects the document policy.
type Role string

const (
	RoleAgency   Role = "AGENCY"
	RoleAgent    Role = "AGENT"
	RoleArtisan  Role = "ARTISAN"
	RoleGuest    Role = "GUEST"
	RoleOwner    Role = "OWNER"
	RoleInvestor Role = "INVESTOR"
)

// Roles lists every known role in display order.
var Roles = []Role{RoleAgency, RoleAgent, RoleArtisan, RoleGuest, RoleOwner, RoleInvestor}

// ParseRole accepts any casing and surrounding whitespace.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch r {
	case RoleAgency, RoleAgent, RoleArtisan, RoleGuest, RoleOwner, RoleInvestor:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// Status is the verification state of a case.
type Status string

const (
	StatusNone     Status = "NONE"
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusRejected Status = "REJECTED"
)

// ParseStatus accepts any casing. Unknown values are an error, never a default.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusNone, StatusPending, StatusVerified, StatusRejected:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Outcome is a review decision.
type Outcome string

const (
	OutcomeVerified Outcome = "VERIFIED"
	OutcomeRejected Outcome = "REJECTED"
)

func ParseOutcome(raw string) (Outcome, error) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(raw)))
	switch o {
	case OutcomeVerified, OutcomeRejected:
		return o, nil
	default:
		return "", ErrInvalidOutcome
	}
}

// DocumentType tags the evidence attached to a submission.
type DocumentType string

const (
	DocRCCM            DocumentType = "RCCM"
	DocNINEA           DocumentType = "NINEA"
	DocKBIS            DocumentType = "KBIS"
	DocKBISArtisan     DocumentType = "KBIS_ARTISAN"
	DocCartePro        DocumentType = "CARTE_PRO"
	DocCNI             DocumentType = "CNI"
	DocPassport        DocumentType = "PASSPORT"
	DocDrivingLicense  DocumentType = "DRIVING_LICENSE"
	DocResidencePermit DocumentType = "RESIDENCE_PERMIT"
)

// State is the part of a case the state machine owns.
type State struct {
	Status          Status `json:"status"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// Case is the authoritative record for one (subject, role) pair. A fresh ID is
// assigned on every submission so decisions always target a single attempt.
type Case struct {
	State

	ID             string
	SubjectID      string
	Role           Role
	DocumentType   DocumentType
	DocumentNumber string
	DocumentURL    string
	Attempt        int
	SubmittedAt    time.Time
	DecidedAt      time.Time
	DecidedBy      string
	UpdatedAt      time.Time
}

// CaseView is what leaves the service. The document number only appears masked.
type CaseView struct {
	State

	ID           string       `json:"id,omitempty"`
	SubjectID    string       `json:"subjectId,omitempty"`
	Role         Role         `json:"role"`
	DocumentType DocumentType `json:"documentType,omitempty"`
	NumberHint   string       `json:"documentNumberHint,omitempty"`
	DocumentURL  string       `json:"documentUrl,omitempty"`
	Attempt      int          `json:"attempt,omitempty"`
	SubmittedAt  *time.Time   `json:"submittedAt,omitempty"`
	DecidedAt    *time.Time   `json:"decidedAt,omitempty"`
}

// View projects the case for clients.
func (c Case) View() CaseView {
	v := CaseView{
		State:        c.State,
		ID:           c.ID,
		SubjectID:    c.SubjectID,
		Role:         c.Role,
		DocumentType: c.DocumentType,
		NumberHint:   MaskNumber(c.DocumentNumber),
		DocumentURL:  c.DocumentURL,
		Attempt:      c.Attempt,
	}
	if v.Status == "" {
		v.Status = StatusNone
	}
	if !c.SubmittedAt.IsZero() {
		t := c.SubmittedAt.UTC()
		v.SubmittedAt = &t
	}
	if !c.DecidedAt.IsZero() {
		t := c.DecidedAt.UTC()
		v.DecidedAt = &t
	}
	return v
}

// MaskNumber keeps the last two characters of a document number.
func MaskNumber(n string) string {
	n = strings.TrimSpace(n)
	if n == "" {
		return ""
	}
	r := []rune(n)
	if len(r) <= 2 {
		return "****"
	}
	return "****" + string(r[len(r)-2:])
}
