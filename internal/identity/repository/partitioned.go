package repository

import (
	"context"
	"database/sql"
	"errors"

	"auth-gateway/internal/identity/domain"
)

// PartitionedRepository keeps local_identities and external_identities in
// disjoint tables with disjoint id spaces. Nothing crosses between them.
type PartitionedRepository struct {
	db *sql.DB
}

// NewPartitionedRepository returns a partitioned-model repository backed by db.
func NewPartitionedRepository(db *sql.DB) *PartitionedRepository {
	return &PartitionedRepository{db: db}
}

func (r *PartitionedRepository) Model() domain.Model { return domain.ModelPartitioned }

const partitionedLocalColumns = `id, email, password_hash, COALESCE(full_name, ''), COALESCE(avatar_url, ''), created_at`

func scanPartitionedLocal(row rowScanner) (*domain.LocalIdentity, error) {
	var l domain.LocalIdentity
	err := row.Scan(&l.Ref.ID, &l.Email, &l.PasswordHash, &l.FullName, &l.AvatarURL, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	l.Ref.Kind = domain.KindLocal
	return &l, nil
}

// FindLocalByEmail returns the local identity with email, or nil if not found.
func (r *PartitionedRepository) FindLocalByEmail(ctx context.Context, email string) (*domain.LocalIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+partitionedLocalColumns+` FROM local_identities WHERE LOWER(email) = LOWER($1)`, email)
	return scanPartitionedLocal(row)
}

// CreateLocal inserts a local identity; ErrConflict when the email is taken.
func (r *PartitionedRepository) CreateLocal(ctx context.Context, email, passwordHash string) (*domain.LocalIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO local_identities (email, password_hash) VALUES ($1, $2) RETURNING `+partitionedLocalColumns,
		email, passwordHash)
	l, err := scanPartitionedLocal(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return l, nil
}

func (r *PartitionedRepository) FindLocalByEmailForMerge(context.Context, string) (*domain.LocalIdentity, error) {
	return nil, ErrUnsupported
}

func (r *PartitionedRepository) LinkExternal(context.Context, domain.Reference, *domain.ExternalProfile) (*domain.ExternalIdentity, error) {
	return nil, ErrUnsupported
}

const partitionedExternalColumns = `id, provider, provider_subject_id, email, COALESCE(full_name, ''),
	COALESCE(avatar_url, ''), raw_profile, created_at, updated_at`

func scanPartitionedExternal(row rowScanner, extra ...any) (*domain.ExternalIdentity, error) {
	var e domain.ExternalIdentity
	var raw []byte
	dest := append([]any{&e.Ref.ID, &e.Provider, &e.SubjectID, &e.Email, &e.FullName, &e.AvatarURL, &raw, &e.CreatedAt, &e.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Ref.Kind = domain.KindExternal
	e.RawProfile = raw
	return &e, nil
}

// FindExternalByProvider returns the external identity for (provider, subjectID), or nil.
func (r *PartitionedRepository) FindExternalByProvider(ctx context.Context, provider, subjectID string) (*domain.ExternalIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+partitionedExternalColumns+` FROM external_identities WHERE provider = $1 AND provider_subject_id = $2`,
		provider, subjectID)
	return scanPartitionedExternal(row)
}

// FindExternalByReference returns the external identity ref points at when it belongs to provider.
func (r *PartitionedRepository) FindExternalByReference(ctx context.Context, ref domain.Reference, provider string) (*domain.ExternalIdentity, error) {
	if ref.Kind != domain.KindExternal {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+partitionedExternalColumns+` FROM external_identities WHERE id = $1 AND provider = $2`,
		ref.ID, provider)
	return scanPartitionedExternal(row)
}

// UpsertExternal is a single INSERT ... ON CONFLICT statement; xmax = 0 marks a fresh insert.
// Email is written once at creation and never updated.
func (r *PartitionedRepository) UpsertExternal(ctx context.Context, p *domain.ExternalProfile) (*domain.ExternalIdentity, bool, error) {
	email, fullName, avatarURL, blob, err := profileFields(p)
	if err != nil {
		return nil, false, err
	}
	var inserted bool
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO external_identities (provider, provider_subject_id, email, full_name, avatar_url, raw_profile)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		 ON CONFLICT (provider, provider_subject_id) DO UPDATE SET
		   full_name = COALESCE(EXCLUDED.full_name, external_identities.full_name),
		   avatar_url = COALESCE(EXCLUDED.avatar_url, external_identities.avatar_url),
		   raw_profile = EXCLUDED.raw_profile,
		   updated_at = now()
		 RETURNING `+partitionedExternalColumns+`, (xmax = 0)`,
		p.Provider, p.SubjectID, email, fullName, avatarURL, string(blob))
	ext, err := scanPartitionedExternal(row, &inserted)
	if err != nil {
		return nil, false, err
	}
	return ext, inserted, nil
}

// FetchCanonical reads from the table ref.Kind names.
func (r *PartitionedRepository) FetchCanonical(ctx context.Context, ref domain.Reference) (*domain.ProfileView, error) {
	switch ref.Kind {
	case domain.KindLocal:
		l, err := scanPartitionedLocal(r.db.QueryRowContext(ctx,
			`SELECT `+partitionedLocalColumns+` FROM local_identities WHERE id = $1`, ref.ID))
		if err != nil || l == nil {
			return nil, err
		}
		return domain.LocalView(l), nil
	case domain.KindExternal:
		e, err := scanPartitionedExternal(r.db.QueryRowContext(ctx,
			`SELECT `+partitionedExternalColumns+` FROM external_identities WHERE id = $1`, ref.ID))
		if err != nil || e == nil {
			return nil, err
		}
		return domain.ExternalView(e), nil
	default:
		return nil, nil
	}
}
