package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"auth-gateway/internal/identity/domain"
)

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	p := NewTestTokenIssuer()
	ref := domain.Reference{Kind: domain.KindLocal, ID: 7}

	token, exp, err := p.Issue(ref, "a@x.io")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("token empty")
	}
	if d := time.Until(exp); d < DefaultTokenTTL-time.Minute || d > DefaultTokenTTL {
		t.Errorf("expiry %v from now, want about 7 days", d)
	}
	claims, err := p.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	got, err := claims.Reference()
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if got != ref || claims.Email != "a@x.io" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("jti should be set")
	}
}

func TestTokenIssuer_KeyPair(t *testing.T) {
	p, err := NewTestKeyPairTokenIssuer()
	if err != nil {
		t.Fatalf("NewTestKeyPairTokenIssuer: %v", err)
	}
	ref := domain.Reference{Kind: domain.KindUser, ID: 1}
	token, _, err := p.Issue(ref, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := p.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got, _ := claims.Reference(); got != ref {
		t.Errorf("ref = %v, want %v", got, ref)
	}
	// An HS256 token must not pass an RS256 verifier.
	hs, _, _ := NewTestTokenIssuer().Issue(ref, "")
	if _, err := p.Verify(hs); err != ErrTokenBadSignature {
		t.Errorf("cross-algorithm token: want ErrTokenBadSignature, got %v", err)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	p := NewTestTokenIssuer(WithClock(clock))
	token, _, err := p.Issue(domain.Reference{Kind: domain.KindLocal, ID: 1}, "a@x.io")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	now = now.Add(DefaultTokenTTL + time.Second)
	if _, err := p.Verify(token); err != ErrTokenExpired {
		t.Errorf("want ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_BadSignature(t *testing.T) {
	p := NewTestTokenIssuer()
	token, _, _ := p.Issue(domain.Reference{Kind: domain.KindLocal, ID: 1}, "a@x.io")

	other, _ := NewHMACTokenIssuer([]byte("another-secret-another-secret-1234"), "test-issuer", "test-audience", time.Hour)
	if _, err := other.Verify(token); err != ErrTokenBadSignature {
		t.Errorf("foreign key: want ErrTokenBadSignature, got %v", err)
	}

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := p.Verify(tampered); err != ErrTokenBadSignature {
		t.Errorf("tampered signature: want ErrTokenBadSignature, got %v", err)
	}

	wrongAud, _ := NewHMACTokenIssuer([]byte(TestSecret), "test-issuer", "someone-else", time.Hour)
	if _, err := wrongAud.Verify(token); err != ErrTokenBadSignature {
		t.Errorf("audience mismatch: want ErrTokenBadSignature, got %v", err)
	}
}

func TestTokenIssuer_Malformed(t *testing.T) {
	p := NewTestTokenIssuer()
	for _, s := range []string{"", "invalid-token", "a.b.c"} {
		if _, err := p.Verify(s); err != ErrTokenMalformed {
			t.Errorf("Verify(%q): want ErrTokenMalformed, got %v", s, err)
		}
	}

	// Correctly signed but carrying no usable reference.
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "not-a-number",
		Issuer:    "test-issuer",
		Audience:  jwt.ClaimStrings{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, Kind: domain.KindLocal}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := p.Verify(token); err != ErrTokenMalformed {
		t.Errorf("bad subject: want ErrTokenMalformed, got %v", err)
	}
}

func TestTokenIssuer_RejectsZeroReference(t *testing.T) {
	if _, _, err := NewTestTokenIssuer().Issue(domain.Reference{}, ""); err == nil {
		t.Fatal("Issue with zero reference should fail")
	}
}

func TestNewHMACTokenIssuer_EmptySecret(t *testing.T) {
	if _, err := NewHMACTokenIssuer(nil, "i", "a", time.Hour); err != ErrInvalidKey {
		t.Errorf("want ErrInvalidKey, got %v", err)
	}
}
