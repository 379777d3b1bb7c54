// Package github implements the GitHub OAuth app flow with PKCE.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	githubendpoint "golang.org/x/oauth2/github"

	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/oauth"
)

const (
	providerName      = "github"
	defaultAPIBaseURL = "https://api.github.com"
	maxBodyBytes      = 1 << 20
)

// Config configures the GitHub provider. AuthURL, TokenURL and APIBaseURL
// default to github.com and exist for GitHub Enterprise and tests.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	HTTPClient   *http.Client
}

type Provider struct {
	oauthConfig *oauth2.Config
	apiBaseURL  string
	httpClient  *http.Client
}

var _ oauth.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("github oauth config missing required fields")
	}
	endpoint := githubendpoint.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	api := strings.TrimRight(cfg.APIBaseURL, "/")
	if api == "" {
		api = defaultAPIBaseURL
	}
	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"user:email"},
		},
		apiBaseURL: api,
		httpClient: cfg.HTTPClient,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the authorization URL with an S256 code challenge.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*domain.ExternalProfile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, oauth.Exchangef(providerName, "token exchange: %v", err)
	}
	client := p.oauthConfig.Client(ctx, token)

	raw, err := p.get(ctx, client, "/user")
	if err != nil {
		return nil, err
	}
	var u githubUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, oauth.Exchangef(providerName, "decode user: %v", err)
	}
	if u.ID == 0 {
		return nil, oauth.Exchangef(providerName, "user response missing id")
	}

	// /user/emails needs the user:email scope; without it only the public
	// address (unverified) is known.
	var emails []githubEmail
	if body, err := p.get(ctx, client, "/user/emails"); err == nil {
		_ = json.Unmarshal(body, &emails)
	}

	profile := &domain.ExternalProfile{
		Provider:    providerName,
		SubjectID:   strconv.FormatInt(u.ID, 10),
		Emails:      orderEmails(emails, u.Email),
		DisplayName: u.Name,
		Username:    u.Login,
		Raw:         json.RawMessage(raw),
		AccessToken: token.AccessToken,
	}
	if u.AvatarURL != "" {
		profile.Photos = []string{u.AvatarURL}
	}
	return profile, nil
}

func (p *Provider) get(ctx context.Context, client *http.Client, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return nil, oauth.Exchangef(providerName, "build request: %v", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, oauth.Exchangef(providerName, "GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, oauth.Exchangef(providerName, "read %s: %v", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, oauth.Exchangef(providerName, "GET %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}

// orderEmails puts the primary verified address first, then other verified
// ones, then the rest. The public profile address is used only when the
// emails endpoint returned nothing.
func orderEmails(list []githubEmail, public string) []domain.ProfileEmail {
	if len(list) == 0 {
		if public == "" {
			return nil
		}
		return []domain.ProfileEmail{{Value: public}}
	}
	rank := func(e githubEmail) int {
		switch {
		case e.Primary && e.Verified:
			return 0
		case e.Verified:
			return 1
		case e.Primary:
			return 2
		default:
			return 3
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return rank(list[i]) < rank(list[j]) })
	out := make([]domain.ProfileEmail, 0, len(list))
	for _, e := range list {
		if e.Email == "" {
			continue
		}
		out = append(out, domain.ProfileEmail{Value: e.Email, Verified: e.Verified, Primary: e.Primary})
	}
	return out
}
