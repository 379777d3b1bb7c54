package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"auth-gateway/internal/identity/domain"
)

// Verification failures. All three mean "unauthenticated"; they are kept
// apart so callers can log the reason.
var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenMalformed    = errors.New("token malformed")
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// DefaultTokenTTL is the validity of an issued token.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims is the token payload: the canonical reference split into sub/kind,
// plus the email for display.
type Claims struct {
	jwt.RegisteredClaims
	Kind  domain.Kind `json:"kind"`
	Email string      `json:"email"`
}

// Reference rebuilds the identity reference carried by the claims.
func (c *Claims) Reference() (domain.Reference, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return domain.Reference{}, domain.ErrInvalidReference
	}
	ref := domain.Reference{Kind: c.Kind, ID: id}
	return ref, ref.Validate()
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(p *TokenIssuer) { p.now = now }
}

// TokenIssuer signs and verifies bearer tokens. It holds the process-wide
// signing key and is safe for concurrent use.
type TokenIssuer struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	audience  string
	ttl       time.Duration
	now       func() time.Time
}

// NewHMACTokenIssuer returns an issuer signing with HS256 over secret.
func NewHMACTokenIssuer(secret []byte, issuer, audience string, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	return newTokenIssuer(jwt.SigningMethodHS256, secret, secret, issuer, audience, ttl, opts), nil
}

// NewKeyPairTokenIssuer returns an issuer signing with RS256 or ES256 depending on the key type.
func NewKeyPairTokenIssuer(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return nil, ErrInvalidKey
	}
	return newTokenIssuer(method, privateKey, publicKey, issuer, audience, ttl, opts), nil
}

func newTokenIssuer(method jwt.SigningMethod, signKey, verifyKey any, issuer, audience string, ttl time.Duration, opts []TokenOption) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	p := &TokenIssuer{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Issue signs a token for ref. It returns the token and its expiry.
func (p *TokenIssuer) Issue(ref domain.Reference, email string) (token string, expiresAt time.Time, err error) {
	if err := ref.Validate(); err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(ref.ID, 10),
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:  ref.Kind,
		Email: email,
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify checks signature, expiry, issuer and audience and returns the
// claims. Failures are one of ErrTokenExpired, ErrTokenBadSignature or
// ErrTokenMalformed.
func (p *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return p.verifyKey, nil },
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	if _, err := claims.Reference(); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrTokenBadSignature
	default:
		return ErrTokenMalformed
	}
}
