package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

const testSecret = "test-secret-0123456789"

func TestIssuerGenerateAndValidate(t *testing.T) {
	iss, err := NewIssuer(testSecret, WithIssuerName("test-issuer"))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, expiresAt, err := iss.GenerateToken("user-42", []string{"Reviewer", "user", "reviewer"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	claims, err := iss.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" || claims.Issuer != "test-issuer" || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 2 || !slices.Contains(claims.Roles, "reviewer") {
		t.Fatalf("roles were not normalized: %v", claims.Roles)
	}
}

func TestIssuerRejectsForeignAndExpiredTokens(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	iss, _ := NewIssuer(testSecret, WithClock(func() time.Time { return now }))
	other, _ := NewIssuer("another-secret-abcdefgh")

	foreign, _, err := other.GenerateToken("u", nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.ParseAndValidate(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	token, _, err := iss.GenerateToken("u", nil, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := iss.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
	if _, err := iss.ParseAndValidate("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(""); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := NewIssuer("short"); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestPrincipalPermissions(t *testing.T) {
	subject := NewPrincipal("u1", []string{"user"})
	if !subject.HasPermission(PermKYCSubmit) || !subject.HasPermission(PermKYCRead) {
		t.Fatal("every subject may submit and read its own case")
	}
	if subject.HasPermission(PermKYCReview) {
		t.Fatal("plain users must not review")
	}
	for _, role := range []string{"Reviewer", "admin", "SUPERADMIN"} {
		if !NewPrincipal("r", []string{role}).HasPermission(PermKYCReview) {
			t.Fatalf("%s should hold %s", role, PermKYCReview)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := SubjectFromContext(ctx); ok {
		t.Fatal("empty context has no subject")
	}
	ctx = ContextWithPrincipal(ctx, NewPrincipal("user-7", []string{"Admin", "admin", "viewer"}))
	id, ok := SubjectFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected subject: %s, ok=%v", id, ok)
	}
	if !HasRole(ctx, "viewer") || !HasRole(ctx, "ADMIN") {
		t.Fatal("HasRole missing expected roles")
	}
	if HasRole(ctx, "operator") {
		t.Fatal("unexpected role found")
	}
}

func TestSubjectOf(t *testing.T) {
	iss, err := NewIssuer(testSecret)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, _, err := iss.GenerateToken("user-9", []string{"user"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if sub, err := SubjectOf(token); err != nil || sub != "user-9" {
		t.Fatalf("SubjectOf = %q, %v", sub, err)
	}
	if _, err := SubjectOf("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
