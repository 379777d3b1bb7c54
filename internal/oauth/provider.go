// Package oauth defines the contract for external identity providers used
// by the redirect flow. Providers return identity facts only; they never
// create, link or look up local accounts.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"auth-gateway/internal/identity/domain"
)

var (
	// ErrUnknownProvider is returned by Registry.Get for names that are not configured.
	ErrUnknownProvider = errors.New("oauth: unknown provider")
	// ErrExchange wraps every failure to turn an authorization code into a profile.
	ErrExchange = errors.New("oauth: code exchange failed")
)

// Provider is one configured external identity provider.
type Provider interface {
	// Name is the path segment and the provider column value, e.g. "github".
	Name() string

	// AuthCodeURL returns the authorization URL. The S256 challenge is
	// derived from verifier.
	AuthCodeURL(state, verifier string) string

	// Exchange trades code for tokens and returns the normalized profile.
	Exchange(ctx context.Context, code, verifier string) (*domain.ExternalProfile, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers the given providers by name. A later provider with
// the same name replaces an earlier one.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[string]Provider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered provider names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Exchangef wraps err with ErrExchange and a provider-scoped message.
func Exchangef(provider, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", provider, ErrExchange, fmt.Sprintf(format, args...))
}
