package sealer

import (
	"errors"
	"strings"
	"testing"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSealOpen(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("CI-AB1", "case-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(sealed, "CI-AB1") {
		t.Fatal("plaintext visible in sealed value")
	}
	got, err := s.Open(sealed, "case-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "CI-AB1" {
		t.Fatalf("Open()=%q", got)
	}

	if _, err := s.Open(sealed, "case-2"); !errors.Is(err, ErrAuthenticated) {
		t.Fatalf("expected ErrAuthenticated for wrong binding, got %v", err)
	}
}

func TestSealEmptyAndMalformed(t *testing.T) {
	s := newTestSealer(t)
	if v, err := s.Seal("", "x"); err != nil || v != "" {
		t.Fatalf("empty seal: %q %v", v, err)
	}
	if v, err := s.Open("", "x"); err != nil || v != "" {
		t.Fatalf("empty open: %q %v", v, err)
	}
	for _, bad := range []string{"plain", "v1:!!!", "v1:AAAA"} {
		if _, err := s.Open(bad, "x"); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Open(%q): expected ErrMalformed, got %v", bad, err)
		}
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "short", "AAAA"} {
		if _, err := New(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("New(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}
