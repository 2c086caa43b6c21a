package kyc

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// MaxNumberLength bounds stored document numbers. It is a storage limit, not a format rule.
const MaxNumberLength = 64

// DocumentOption is one selectable document type.
type DocumentOption struct {
	Code  DocumentType `json:"code"`
	Label string       `json:"label"`
}

// Policy is the per-role submission configuration.
type Policy struct {
	Role                   Role             `json:"role"`
	AcceptedDocumentTypes  []DocumentOption `json:"acceptedDocumentTypes"`
	RequiresDocumentNumber bool             `json:"requiresDocumentNumber"`
	MinNumberLength        int              `json:"minNumberLength"`
	DefaultDocumentType    DocumentType     `json:"defaultDocumentType"`
	ConsentText            string           `json:"consentText"`
}

const (
	consentBusiness = "I certify that the registration documents provided are authentic and that I am authorised to represent this business."
	consentPerson   = "I certify that the identity document provided is authentic and belongs to me."
)

var policies = map[Role]Policy{
	RoleAgency: {
		Role: RoleAgency,
		AcceptedDocumentTypes: []DocumentOption{
			{Code: DocRCCM, Label: "Registre du commerce (RCCM)"},
			{Code: DocNINEA, Label: "NINEA"},
			{Code: DocKBIS, Label: "Extrait Kbis"},
		},
		RequiresDocumentNumber: true,
		MinNumberLength:        6,
		DefaultDocumentType:    DocRCCM,
		ConsentText:            consentBusiness,
	},
	RoleAgent: {
		Role: RoleAgent,
		AcceptedDocumentTypes: []DocumentOption{
			{Code: DocCartePro, Label: "Carte professionnelle"},
			{Code: DocCNI, Label: "Carte nationale d'identité"},
			{Code: DocPassport, Label: "Passeport"},
		},
		RequiresDocumentNumber: true,
		MinNumberLength:        6,
		DefaultDocumentType:    DocCartePro,
		ConsentText:            consentPerson,
	},
	RoleArtisan: {
		Role: RoleArtisan,
		AcceptedDocumentTypes: []DocumentOption{
			{Code: DocKBISArtisan, Label: "Registre des métiers"},
			{Code: DocCNI, Label: "Carte nationale d'identité"},
			{Code: DocPassport, Label: "Passeport"},
		},
		RequiresDocumentNumber: true,
		MinNumberLength:        6,
		DefaultDocumentType:    DocKBISArtisan,
		ConsentText:            consentBusiness,
	},
	RoleGuest: {
		Role: RoleGuest,
		AcceptedDocumentTypes: []DocumentOption{
			{Code: DocCNI, Label: "Carte nationale d'identité"},
			{Code: DocPassport, Label: "Passeport"},
			{Code: DocDrivingLicense, Label: "Permis de conduire"},
		},
		DefaultDocumentType: DocCNI,
		ConsentText:         consentPerson,
	},
	RoleOwner: {
		Role: RoleOwner,
		AcceptedDocumentTypes: []DocumentOption{
			{Code: DocCNI, Label: "Carte nationale d'identité"},
			{Code: DocPassport, Label: "Passeport"},
			{Code: DocResidencePermit, Label: "Titre de séjour"},
		},
		DefaultDocumentType: DocCNI,
		ConsentText:         consentPerson,
	},
	RoleInvestor: {
		Role: RoleInvestor,
		AcceptedDocumentTypes: []DocumentOption{
			{Code: DocPassport, Label: "Passeport"},
			{Code: DocCNI, Label: "Carte nationale d'identité"},
			{Code: DocRCCM, Label: "Registre du commerce (RCCM)"},
		},
		DefaultDocumentType: DocPassport,
		ConsentText:         consentPerson,
	},
}

// PolicyFor returns the policy for role. The returned value is a copy.
func PolicyFor(role Role) (Policy, error) {
	p, ok := policies[role]
	if !ok {
		return Policy{}, ErrInvalidRole
	}
	p.AcceptedDocumentTypes = append([]DocumentOption(nil), p.AcceptedDocumentTypes...)
	return p, nil
}

// MustPolicyFor panics on an unknown role. Roles come from the closed Role set, so a
// miss is a programming error.
func MustPolicyFor(role Role) Policy {
	p, err := PolicyFor(role)
	if err != nil {
		panic(fmt.Sprintf("kyc: no policy for role %q", role))
	}
	return p
}

// Policies returns every policy in Roles order.
func Policies() []Policy {
	out := make([]Policy, 0, len(Roles))
	for _, r := range Roles {
		out = append(out, MustPolicyFor(r))
	}
	return out
}

// IsSubmissionAllowed is the consent gate shared by every role surface.
func IsSubmissionAllowed(p Policy, consentGiven bool, documentNumber string) bool {
	if !consentGiven {
		return false
	}
	if !p.RequiresDocumentNumber {
		return true
	}
	return numberLength(documentNumber) >= p.MinNumberLength
}

// Accepts reports whether dt is one of the policy's document types.
func (p Policy) Accepts(dt DocumentType) bool {
	for _, opt := range p.AcceptedDocumentTypes {
		if opt.Code == dt {
			return true
		}
	}
	return false
}

// Validate re-checks a submission server side. Every failure wraps ErrPolicyViolation.
func (p Policy) Validate(consentGiven bool, dt DocumentType, documentNumber, documentURL string) error {
	if !consentGiven {
		return fmt.Errorf("%w: consent not given", ErrPolicyViolation)
	}
	if !p.Accepts(dt) {
		return fmt.Errorf("%w: document type %q not accepted for %s", ErrPolicyViolation, dt, p.Role)
	}
	if !IsSubmissionAllowed(p, consentGiven, documentNumber) {
		return fmt.Errorf("%w: document number must be at least %d characters", ErrPolicyViolation, p.MinNumberLength)
	}
	if numberLength(documentNumber) > MaxNumberLength {
		return fmt.Errorf("%w: document number exceeds %d characters", ErrPolicyViolation, MaxNumberLength)
	}
	if err := validateDocumentURL(documentURL); err != nil {
		return err
	}
	return nil
}

func validateDocumentURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: document url is required", ErrPolicyViolation)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: document url must be an absolute http(s) url", ErrPolicyViolation)
	}
	return nil
}

func numberLength(n string) int {
	return utf8.RuneCountInString(strings.TrimSpace(n))
}
