package internal

import (
	"strings"
	"testing"
)

func TestNumericCodeLengthAndAlphabet(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NumericCode(digits)
		if err != nil {
			t.Fatalf("NumericCode(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-numeric rune %q in code %q", r, code)
			}
		}
	}
}

func TestNumericCodeRejectsBadLengths(t *testing.T) {
	for _, digits := range []int{0, 3, 11, -1} {
		if _, err := NumericCode(digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestNumericCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := NumericCode(6)
		if err != nil {
			t.Fatalf("NumericCode failed: %v", err)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected distinct codes across generations")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	var accountID [16]byte
	copy(accountID[:], "0123456789abcdef")

	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}

	token := EncodeRefreshToken(accountID, secret)
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token %q is not raw base64url", token)
	}

	gotID, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken failed: %v", err)
	}
	if gotID != accountID {
		t.Fatal("account id round trip mismatch")
	}
	if gotSecret != secret {
		t.Fatal("secret round trip mismatch")
	}
}

func TestDecodeRefreshTokenRejectsMalformed(t *testing.T) {
	for _, token := range []string{"", "not-base64!!!", "c2hvcnQ", strings.Repeat("A", 200)} {
		if _, _, err := DecodeRefreshToken(token); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}

func TestHashRefreshSecretStable(t *testing.T) {
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}
	if HashRefreshSecret(secret) != HashRefreshSecret(secret) {
		t.Fatal("hash not deterministic")
	}

	other, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}
	if HashRefreshSecret(secret) == HashRefreshSecret(other) {
		t.Fatal("distinct secrets hashed identically")
	}
}
