package oauth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-gateway/internal/identity/domain"
)

type namedProvider string

func (n namedProvider) Name() string                      { return string(n) }
func (n namedProvider) AuthCodeURL(string, string) string { return "https://example.com/" + string(n) }
func (n namedProvider) Exchange(context.Context, string, string) (*domain.ExternalProfile, error) {
	return &domain.ExternalProfile{Provider: string(n)}, nil
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(namedProvider("github"), namedProvider("oidc"))

	p, err := r.Get("github")
	require.NoError(t, err)
	assert.Equal(t, "github", p.Name())

	_, err = r.Get("gitlab")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Equal(t, []string{"github", "oidc"}, r.Names())
}

func TestExchangef(t *testing.T) {
	err := Exchangef("github", "status %d", 502)
	assert.True(t, errors.Is(err, ErrExchange))
	assert.Contains(t, err.Error(), "github")
	assert.Contains(t, err.Error(), "status 502")
}
