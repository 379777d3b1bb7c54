package domain

import (
	"encoding/json"
	"strings"
)

// ProfileEmail is one address asserted by a provider.
type ProfileEmail struct {
	Value    string `json:"value"`
	Verified bool   `json:"verified"`
	Primary  bool   `json:"primary"`
}

// ExternalProfile is what a provider hands back after a successful code
// exchange. Providers order Emails and Photos so the first entry is the
// authoritative one.
type ExternalProfile struct {
	Provider    string
	SubjectID   string
	Emails      []ProfileEmail
	DisplayName string
	Username    string
	Photos      []string
	Raw         json.RawMessage
	AccessToken string
}

// PrimaryEmail returns the first asserted address, lowercased. When the
// provider gives none and a username is known, a placeholder of the form
// "<username>@<provider>.user" is returned with verified=false.
func (p *ExternalProfile) PrimaryEmail() (email string, verified bool) {
	for _, e := range p.Emails {
		if v := strings.ToLower(strings.TrimSpace(e.Value)); v != "" {
			return v, e.Verified
		}
	}
	if p.Username != "" {
		return strings.ToLower(p.Username) + "@" + p.Provider + ".user", false
	}
	return "", false
}

// FullName prefers the display name and falls back to the username.
func (p *ExternalProfile) FullName() string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	return p.Username
}

// AvatarURL returns the first photo, if any.
func (p *ExternalProfile) AvatarURL() string {
	for _, ph := range p.Photos {
		if ph != "" {
			return ph
		}
	}
	return ""
}

// Blob is the verbatim provider payload stored beside the link.
type Blob struct {
	Profile     json.RawMessage `json:"profile"`
	AccessToken string          `json:"access_token,omitempty"`
}

// Blob serializes the raw profile together with the provider access token.
func (p *ExternalProfile) Blob() (json.RawMessage, error) {
	raw := p.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return json.Marshal(Blob{Profile: raw, AccessToken: p.AccessToken})
}
