// Package session holds the short-lived server-side record that carries an
// OAuth handshake across the provider redirect.
package session

import (
	"context"
	"errors"
	"time"

	"auth-gateway/internal/identity/domain"
)

var (
	// ErrSessionNotFound is returned when the handshake is unknown or has expired.
	ErrSessionNotFound = errors.New("session: not found or expired")
	// ErrNoIdentity is returned by Resolve before an identity has been attached.
	ErrNoIdentity = errors.New("session: no identity attached")
	// ErrIdentityGone is returned by Resolve when the attached identity no longer exists.
	ErrIdentityGone = errors.New("session: attached identity no longer exists")
)

// Session is one handshake. It stores only opaque values and, once
// reconciled, the minimal identity reference; never profile data.
type Session struct {
	ID           string            `json:"id"`
	Provider     string            `json:"provider"`
	State        string            `json:"state"`
	CodeVerifier string            `json:"code_verifier"`
	Ref          *domain.Reference `json:"ref,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// Store persists handshakes until ExpiresAt. Get returns (nil, nil) for
// unknown or expired ids.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
