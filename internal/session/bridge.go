package session

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/security"
)

// DefaultTTL bounds a handshake when none is configured.
const DefaultTTL = 10 * time.Minute

// ProfileResolver re-reads the current profile for a reference.
type ProfileResolver interface {
	FetchCanonical(ctx context.Context, ref domain.Reference) (*domain.ProfileView, error)
}

// Bridge spans the two legs of the OAuth redirect. It is never used for API
// authorization; the session is discarded once a token has been issued.
type Bridge struct {
	store    Store
	resolver ProfileResolver
	ttl      time.Duration
	now      func() time.Time
}

// NewBridge returns a Bridge over store. A non-positive ttl selects DefaultTTL.
func NewBridge(store Store, resolver ProfileResolver, ttl time.Duration) *Bridge {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Bridge{store: store, resolver: resolver, ttl: ttl, now: time.Now}
}

// TTL is the lifetime given to new handshakes.
func (b *Bridge) TTL() time.Duration { return b.ttl }

// Begin starts a handshake for provider with a fresh id, state and PKCE verifier.
func (b *Bridge) Begin(ctx context.Context, provider string) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}
	state, err := security.RandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("session: failed to generate state: %w", err)
	}
	now := b.now().UTC()
	s := &Session{
		ID:           id,
		Provider:     provider,
		State:        state,
		CodeVerifier: oauth2.GenerateVerifier(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(b.ttl),
	}
	if err := b.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("session: save: %w", err)
	}
	return s, nil
}

// Load returns the live handshake for id, or ErrSessionNotFound.
func (b *Bridge) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	s, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	if s == nil || !s.ExpiresAt.After(b.now()) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Attach records the reconciled identity on the handshake. Only the
// reference is serialized.
func (b *Bridge) Attach(ctx context.Context, s *Session, ref domain.Reference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	s.Ref = &ref
	if err := b.store.Save(ctx, s); err != nil {
		return fmt.Errorf("session: attach: %w", err)
	}
	return nil
}

// Resolve deserializes the attached reference and returns a freshly read profile.
func (b *Bridge) Resolve(ctx context.Context, id string) (*domain.ProfileView, error) {
	s, err := b.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Ref == nil {
		return nil, ErrNoIdentity
	}
	view, err := b.resolver.FetchCanonical(ctx, *s.Ref)
	if err != nil {
		return nil, fmt.Errorf("session: resolve: %w", err)
	}
	if view == nil {
		return nil, ErrIdentityGone
	}
	return view, nil
}

// Discard deletes the handshake.
func (b *Bridge) Discard(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return b.store.Delete(ctx, id)
}
