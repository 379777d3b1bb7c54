package repository

import (
	"context"
	"errors"

	"auth-gateway/internal/identity/domain"
)

var (
	// ErrConflict is returned when a storage uniqueness constraint rejects a write.
	ErrConflict = errors.New("identity conflict")
	// ErrUnsupported is returned for operations the configured model does not have.
	ErrUnsupported = errors.New("operation not supported by identity model")
)

// Repository is the single persistence capability for identities. Each
// implementation serves exactly one domain.Model.
//
// Finders return (nil, nil) when nothing matches; errors are reserved for
// storage failures and constraint violations.
type Repository interface {
	Model() domain.Model

	FindLocalByEmail(ctx context.Context, email string) (*domain.LocalIdentity, error)
	// CreateLocal inserts a password-backed identity. Returns ErrConflict when the email is taken.
	CreateLocal(ctx context.Context, email, passwordHash string) (*domain.LocalIdentity, error)

	FindExternalByProvider(ctx context.Context, provider, subjectID string) (*domain.ExternalIdentity, error)
	// UpsertExternal inserts or refreshes the identity keyed by (provider, subject) in one
	// atomic step. Only full name, avatar and raw profile change on update.
	UpsertExternal(ctx context.Context, p *domain.ExternalProfile) (ext *domain.ExternalIdentity, created bool, err error)

	// FindLocalByEmailForMerge looks up the account an email merge would attach to,
	// preferring a password-backed one. Only the joined model supports it.
	FindLocalByEmailForMerge(ctx context.Context, email string) (*domain.LocalIdentity, error)
	// LinkExternal attaches a provider link to ref and refreshes its profile fields.
	// Only the joined model supports it. Returns ErrConflict when ref already has
	// a different link for the same provider.
	LinkExternal(ctx context.Context, ref domain.Reference, p *domain.ExternalProfile) (*domain.ExternalIdentity, error)

	// FindExternalByReference returns the provider link owned by ref, if any.
	FindExternalByReference(ctx context.Context, ref domain.Reference, provider string) (*domain.ExternalIdentity, error)
	// FetchCanonical returns the current profile behind ref.
	FetchCanonical(ctx context.Context, ref domain.Reference) (*domain.ProfileView, error)
}

// profileFields extracts the stored columns from a provider profile.
func profileFields(p *domain.ExternalProfile) (email, fullName, avatarURL string, blob []byte, err error) {
	email, _ = p.PrimaryEmail()
	blob, err = p.Blob()
	return email, p.FullName(), p.AvatarURL(), blob, err
}
