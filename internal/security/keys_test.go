package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPEM_Inline(t *testing.T) {
	b, err := LoadPEM(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if !strings.HasPrefix(string(b), "-----BEGIN") {
		t.Error("LoadPEM did not return PEM content")
	}
}

func TestLoadPEM_EscapedNewlines(t *testing.T) {
	escaped := strings.ReplaceAll(testPublicKeyPEM, "\n", `\n`)
	b, err := LoadPEM(escaped)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if strings.Contains(string(b), `\n`) {
		t.Error("escaped newlines were not expanded")
	}
	if _, err := ParsePublicKey(escaped); err != nil {
		t.Fatalf("ParsePublicKey(escaped): %v", err)
	}
}

func TestLoadPEM_FilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(testPrivateKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ParsePrivateKey(path); err != nil {
		t.Fatalf("ParsePrivateKey(file): %v", err)
	}
}

func TestLoadPEM_Empty(t *testing.T) {
	for _, s := range []string{"", "   \n\t"} {
		if _, err := LoadPEM(s); err != ErrInvalidKey {
			t.Errorf("LoadPEM(%q): want ErrInvalidKey, got %v", s, err)
		}
	}
}

func TestLoadPEM_MissingFile(t *testing.T) {
	if _, err := LoadPEM(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Fatal("LoadPEM of a missing file should fail")
	}
}

func TestParseKeys_RSA(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if KeyAlg(pub) != "RS256" || KeyAlg(signer.Public()) != "RS256" {
		t.Errorf("KeyAlg want RS256, got %q", KeyAlg(pub))
	}
}

func TestParseKeys_ECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, _ := x509.MarshalECPrivateKey(key)
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	pubDER, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	signer, err := ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if KeyAlg(pub) != "ES256" || KeyAlg(signer.Public()) != "ES256" {
		t.Errorf("KeyAlg want ES256, got %q", KeyAlg(pub))
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	bogus := "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----"
	if _, err := ParsePrivateKey(bogus); err == nil {
		t.Error("ParsePrivateKey should reject a certificate block")
	}
	if _, err := ParsePublicKey(bogus); err == nil {
		t.Error("ParsePublicKey should reject a certificate block")
	}
	if _, err := ParsePrivateKey("-----BEGIN nothing"); err != ErrInvalidKey {
		t.Errorf("ParsePrivateKey(undecodable): want ErrInvalidKey, got %v", err)
	}
	if KeyAlg("not a key") != "" {
		t.Error("KeyAlg of unsupported type should be empty")
	}
}
