package kyc

import (
	"errors"
	"testing"
)

func TestIsSubmissionAllowed(t *testing.T) {
	p := Policy{RequiresDocumentNumber: true, MinNumberLength: 6}

	cases := []struct {
		name    string
		consent bool
		number  string
		want    bool
	}{
		{"too short", true, "12345", false},
		{"exact minimum", true, "123456", true},
		{"no consent", false, "123456789", false},
		{"no consent empty", false, "", false},
		{"whitespace padding ignored", true, "  12345  ", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if got := IsSubmissionAllowed(p, tc.consent, tc.number); got != tc.want {
					t.Fatalf("IsSubmissionAllowed(%v, %q)=%v, want %v", tc.consent, tc.number, got, tc.want)
				}
			}
		})
	}

	optional := Policy{}
	if !IsSubmissionAllowed(optional, true, "") {
		t.Fatal("expected submission without number to be allowed when not required")
	}
	if IsSubmissionAllowed(optional, false, "") {
		t.Fatal("consent is always required")
	}
}

func TestPolicyTableCoversEveryRole(t *testing.T) {
	for _, role := range Roles {
		p, err := PolicyFor(role)
		if err != nil {
			t.Fatalf("PolicyFor(%s): %v", role, err)
		}
		if !p.Accepts(p.DefaultDocumentType) {
			t.Fatalf("%s default %s not in accepted set", role, p.DefaultDocumentType)
		}
		if p.RequiresDocumentNumber && p.MinNumberLength != 6 {
			t.Fatalf("%s: expected unified minimum length 6, got %d", role, p.MinNumberLength)
		}
		if p.ConsentText == "" {
			t.Fatalf("%s: consent text missing", role)
		}
	}
	if _, err := PolicyFor(Role("LANDLORD")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestPolicyForReturnsCopy(t *testing.T) {
	p := MustPolicyFor(RoleAgency)
	p.AcceptedDocumentTypes[0].Code = "HACKED"
	if MustPolicyFor(RoleAgency).AcceptedDocumentTypes[0].Code != DocRCCM {
		t.Fatal("policy table mutated through returned copy")
	}
}

func TestMustPolicyForPanicsOnUnknownRole(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustPolicyFor(Role("NOPE"))
}

func TestPolicyValidate(t *testing.T) {
	agency := MustPolicyFor(RoleAgency)
	const doc = "https://files.example.com/rccm.pdf"

	if err := agency.Validate(true, DocRCCM, "CI-AB1", doc); err != nil {
		t.Fatalf("expected valid submission, got %v", err)
	}
	bad := []struct {
		name    string
		consent bool
		dt      DocumentType
		number  string
		url     string
	}{
		{"consent", false, DocRCCM, "CI-AB1", doc},
		{"type", true, DocPassport, "CI-AB1", doc},
		{"short number", true, DocRCCM, "CI-A", doc},
		{"long number", true, DocRCCM, string(make([]byte, MaxNumberLength+1)) + "x", doc},
		{"missing url", true, DocRCCM, "CI-AB1", ""},
		{"relative url", true, DocRCCM, "CI-AB1", "/tmp/doc.pdf"},
		{"ftp url", true, DocRCCM, "CI-AB1", "ftp://x/doc.pdf"},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			if err := agency.Validate(tc.consent, tc.dt, tc.number, tc.url); !errors.Is(err, ErrPolicyViolation) {
				t.Fatalf("expected ErrPolicyViolation, got %v", err)
			}
		})
	}
}

func TestMaskNumber(t *testing.T) {
	cases := map[string]string{
		"":         "",
		"7":        "****",
		"CI-AB1":   "****B1",
		" 12345 ":  "****45",
		"ÉÈÊËÀÂ":   "****ÀÂ",
	}
	for in, want := range cases {
		if got := MaskNumber(in); got != want {
			t.Fatalf("MaskNumber(%q)=%q, want %q", in, got, want)
		}
	}
}
