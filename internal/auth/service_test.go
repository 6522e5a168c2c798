package auth

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizeUsername(t *testing.T) {
	tests := map[string]string{
		"  Ana.Maria ": "ana.maria",
		"__bob__":      "bob",
		"x y!z":        "xyz",
		"---":          "",
	}
	for in, want := range tests {
		if got := normalizeUsername(in); got != want {
			t.Fatalf("normalizeUsername(%q)=%q want %q", in, got, want)
		}
	}
}

func TestHashTokenStable(t *testing.T) {
	a := hashToken("token")
	if a != hashToken("token") || a == hashToken("other") {
		t.Fatalf("hashToken must be deterministic and distinct")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex length, got %d", len(a))
	}
}

func TestSecureEqual(t *testing.T) {
	if !secureEqual("abc", "abc") || secureEqual("abc", "abd") {
		t.Fatalf("secureEqual mismatch")
	}
}

func TestBootstrapDeniedWithoutConfiguredToken(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	_, err := svc.BootstrapStaff(context.Background(), BootstrapInput{Token: "", Username: "root", Password: "password123"})
	if !errors.Is(err, ErrBootstrapDenied) {
		t.Fatalf("expected ErrBootstrapDenied, got %v", err)
	}

	svc = NewService(nil, ServiceConfig{BootstrapToken: "s3cret"})
	_, err = svc.BootstrapStaff(context.Background(), BootstrapInput{Token: "wrong", Username: "root", Password: "password123"})
	if !errors.Is(err, ErrBootstrapDenied) {
		t.Fatalf("expected ErrBootstrapDenied for wrong token, got %v", err)
	}

	_, err = svc.BootstrapStaff(context.Background(), BootstrapInput{Token: "s3cret", Username: "root", Password: "short"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestRegisterValidatesBeforeDB(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	if _, err := svc.Register(context.Background(), RegisterInput{Username: "!!", Password: "password123"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty username, got %v", err)
	}
	if _, err := svc.Register(context.Background(), RegisterInput{Username: "ana", Password: "short"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestGetSessionUserEmptyToken(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	if _, err := svc.GetSessionUser(context.Background(), "  "); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
