package security

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// ─── Issue / Verify ─────────────────────────────────────────────────────────

func TestIssueToken_RoundTrip(t *testing.T) {
	issued, err := IssueToken("u1", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}
	if !strings.HasPrefix(issued.Token, "u1.") {
		t.Errorf("token %q should start with user id", issued.Token)
	}

	user, secret, err := ParseToken(issued.Token)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if user != "u1" {
		t.Errorf("user = %q, want u1", user)
	}
	if !VerifySecret(issued.Hash, secret) {
		t.Error("VerifySecret() should accept the issued secret")
	}
	if VerifySecret(issued.Hash, secret+"x") {
		t.Error("VerifySecret() should reject a different secret")
	}
}

func TestIssueToken_Unique(t *testing.T) {
	a, _ := IssueToken("u1", bcrypt.MinCost)
	b, _ := IssueToken("u1", bcrypt.MinCost)
	if a.Token == b.Token {
		t.Error("two issued tokens should differ")
	}
}

func TestIssueToken_RejectsDottedID(t *testing.T) {
	if _, err := IssueToken("a.b", bcrypt.MinCost); err == nil {
		t.Error("expected error for user id containing '.'")
	}
}

// ─── Parse ──────────────────────────────────────────────────────────────────

func TestParseToken_Malformed(t *testing.T) {
	for _, tok := range []string{"", "nodot", ".secret", "user.", "   "} {
		if _, _, err := ParseToken(tok); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("ParseToken(%q) err = %v, want ErrMalformedToken", tok, err)
		}
	}
}
