package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Model is the storage shape chosen once per deployment.
type Model string

const (
	// ModelJoined keeps one users table with provider links beside it.
	ModelJoined Model = "joined"
	// ModelPartitioned keeps local and external identities in disjoint tables.
	ModelPartitioned Model = "partitioned"
)

// ParseModel validates s as a storage model name.
func ParseModel(s string) (Model, error) {
	switch m := Model(strings.ToLower(strings.TrimSpace(s))); m {
	case ModelJoined, ModelPartitioned:
		return m, nil
	default:
		return "", fmt.Errorf("unknown identity model %q", s)
	}
}

// Kind says which identity space a Reference points into.
type Kind string

const (
	KindUser     Kind = "user" // joined model
	KindLocal    Kind = "local"
	KindExternal Kind = "external"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindLocal || k == KindExternal
}

// ErrInvalidReference is returned when a reference string cannot be parsed.
var ErrInvalidReference = errors.New("invalid identity reference")

// Reference is the canonical, immutable handle on an identity. It is the only
// identity value carried in tokens and session state.
type Reference struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// IsZero reports whether r is unset.
func (r Reference) IsZero() bool { return r.Kind == "" && r.ID == 0 }

func (r Reference) String() string {
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

// Validate returns ErrInvalidReference unless r has a known kind and a positive id.
func (r Reference) Validate() error {
	if !r.Kind.Valid() || r.ID <= 0 {
		return ErrInvalidReference
	}
	return nil
}

// ParseReference parses the "kind:id" form produced by String.
func ParseReference(s string) (Reference, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return Reference{}, ErrInvalidReference
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Reference{}, ErrInvalidReference
	}
	r := Reference{Kind: Kind(kind), ID: n}
	if err := r.Validate(); err != nil {
		return Reference{}, err
	}
	return r, nil
}

// LocalIdentity is a password-backed account. In the joined model it is a
// users row whose password hash is set.
type LocalIdentity struct {
	Ref          Reference
	Email        string
	PasswordHash string
	FullName     string
	AvatarURL    string
	CreatedAt    time.Time
}

// ExternalIdentity is an account asserted by one OAuth provider. In the
// joined model Ref points at the users row the link belongs to.
type ExternalIdentity struct {
	Ref        Reference
	Provider   string
	SubjectID  string
	Email      string
	FullName   string
	AvatarURL  string
	RawProfile json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProfileView is the read-only projection returned to callers. It never
// carries a password hash.
type ProfileView struct {
	Ref       Reference `json:"-"`
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LocalView projects a local identity.
func LocalView(l *LocalIdentity) *ProfileView {
	return &ProfileView{
		Ref: l.Ref, ID: l.Ref.ID, Kind: l.Ref.Kind,
		Email: l.Email, FullName: l.FullName, AvatarURL: l.AvatarURL, CreatedAt: l.CreatedAt,
	}
}

// ExternalView projects an external identity.
func ExternalView(e *ExternalIdentity) *ProfileView {
	return &ProfileView{
		Ref: e.Ref, ID: e.Ref.ID, Kind: e.Ref.Kind,
		Email: e.Email, FullName: e.FullName, AvatarURL: e.AvatarURL, CreatedAt: e.CreatedAt,
	}
}
