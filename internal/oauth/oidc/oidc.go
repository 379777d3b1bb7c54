// Package oidc implements a generic OpenID Connect provider using discovery.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/oauth"
)

const defaultName = "oidc"

// Config configures the provider. Name defaults to "oidc" and becomes the
// provider path segment and stored provider value.
type Config struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

type Provider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *gooidc.IDTokenVerifier
	httpClient  *http.Client
}

var _ oauth.Provider = (*Provider)(nil)

// New discovers the issuer's endpoints and signing keys.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc config missing required fields")
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = defaultName
	}
	if cfg.HTTPClient != nil {
		ctx = gooidc.ClientContext(ctx, cfg.HTTPClient)
	}
	discovered, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider %s: %w", cfg.Issuer, err)
	}
	return &Provider{
		name: name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     discovered.Endpoint(),
			Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
		},
		verifier:   discovered.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		httpClient: cfg.HTTPClient,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL builds the authorization URL with an S256 code challenge.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*domain.ExternalProfile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, oauth.Exchangef(p.name, "token exchange: %v", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, oauth.Exchangef(p.name, "no id_token in token response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, oauth.Exchangef(p.name, "id_token verification: %v", err)
	}
	var raw json.RawMessage
	if err := idToken.Claims(&raw); err != nil {
		return nil, oauth.Exchangef(p.name, "id_token claims: %v", err)
	}
	profile, err := profileFromClaims(p.name, raw)
	if err != nil {
		return nil, err
	}
	profile.AccessToken = token.AccessToken
	return profile, nil
}

type claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     *bool  `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

func profileFromClaims(provider string, raw json.RawMessage) (*domain.ExternalProfile, error) {
	var c claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, oauth.Exchangef(provider, "decode claims: %v", err)
	}
	if c.Subject == "" {
		return nil, oauth.Exchangef(provider, "id_token missing sub")
	}
	profile := &domain.ExternalProfile{
		Provider:    provider,
		SubjectID:   c.Subject,
		DisplayName: c.Name,
		Username:    c.PreferredUsername,
		Raw:         raw,
	}
	if c.Email != "" {
		profile.Emails = []domain.ProfileEmail{{
			Value:    c.Email,
			Verified: c.EmailVerified != nil && *c.EmailVerified,
			Primary:  true,
		}}
	}
	if c.Picture != "" {
		profile.Photos = []string{c.Picture}
	}
	return profile, nil
}
