package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auth-gateway/internal/identity/domain"
)

// upsertAttempts bounds the retries UpsertExternal makes after losing an insert race.
const upsertAttempts = 3

var errLostRace = errors.New("lost insert race")

// JoinedRepository stores every account in users with provider links in
// user_providers. References are always of kind user.
type JoinedRepository struct {
	db *sql.DB
}

// NewJoinedRepository returns a joined-model repository backed by db.
func NewJoinedRepository(db *sql.DB) *JoinedRepository {
	return &JoinedRepository{db: db}
}

func (r *JoinedRepository) Model() domain.Model { return domain.ModelJoined }

const joinedLocalColumns = `id, email, password_hash, COALESCE(full_name, ''), COALESCE(avatar_url, ''), created_at`

func scanJoinedLocal(row rowScanner) (*domain.LocalIdentity, error) {
	var l domain.LocalIdentity
	err := row.Scan(&l.Ref.ID, &l.Email, &l.PasswordHash, &l.FullName, &l.AvatarURL, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	l.Ref.Kind = domain.KindUser
	return &l, nil
}

// FindLocalByEmail returns the password-backed user with email, or nil if not found.
func (r *JoinedRepository) FindLocalByEmail(ctx context.Context, email string) (*domain.LocalIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+joinedLocalColumns+` FROM users WHERE LOWER(email) = LOWER($1) AND password_hash IS NOT NULL`, email)
	return scanJoinedLocal(row)
}

// FindLocalByEmailForMerge returns the account that claims email: the local
// account when there is one, else the oldest account created through
// another provider login. PasswordHash is empty for the latter.
func (r *JoinedRepository) FindLocalByEmailForMerge(ctx context.Context, email string) (*domain.LocalIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, COALESCE(password_hash, ''), COALESCE(full_name, ''), COALESCE(avatar_url, ''), created_at
		 FROM users WHERE LOWER(email) = LOWER($1)
		 ORDER BY password_hash IS NULL, id LIMIT 1`, email)
	return scanJoinedLocal(row)
}

// CreateLocal inserts a users row with a password hash.
func (r *JoinedRepository) CreateLocal(ctx context.Context, email, passwordHash string) (*domain.LocalIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING `+joinedLocalColumns, email, passwordHash)
	l, err := scanJoinedLocal(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return l, nil
}

const joinedExternalSelect = `SELECT up.user_id, up.provider, up.provider_subject_id, u.email,
	COALESCE(u.full_name, ''), COALESCE(u.avatar_url, ''), up.provider_data, up.created_at, up.updated_at
	FROM user_providers up JOIN users u ON u.id = up.user_id`

func scanJoinedExternal(row rowScanner) (*domain.ExternalIdentity, error) {
	var e domain.ExternalIdentity
	var raw []byte
	err := row.Scan(&e.Ref.ID, &e.Provider, &e.SubjectID, &e.Email, &e.FullName, &e.AvatarURL, &raw, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Ref.Kind = domain.KindUser
	e.RawProfile = raw
	return &e, nil
}

// FindExternalByProvider returns the link for (provider, subjectID) joined with its user, or nil if not found.
func (r *JoinedRepository) FindExternalByProvider(ctx context.Context, provider, subjectID string) (*domain.ExternalIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		joinedExternalSelect+` WHERE up.provider = $1 AND up.provider_subject_id = $2`, provider, subjectID)
	return scanJoinedExternal(row)
}

// FindExternalByReference returns the link ref holds for provider, or nil.
func (r *JoinedRepository) FindExternalByReference(ctx context.Context, ref domain.Reference, provider string) (*domain.ExternalIdentity, error) {
	if ref.Kind != domain.KindUser {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		joinedExternalSelect+` WHERE up.user_id = $1 AND up.provider = $2`, ref.ID, provider)
	return scanJoinedExternal(row)
}

// UpsertExternal refreshes an existing link or creates a password-less user
// plus link. The insert keys on the subject constraint; a transaction that
// loses the race rolls back its user row and retries through the update path.
func (r *JoinedRepository) UpsertExternal(ctx context.Context, p *domain.ExternalProfile) (*domain.ExternalIdentity, bool, error) {
	email, fullName, avatarURL, blob, err := profileFields(p)
	if err != nil {
		return nil, false, err
	}
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		var created bool
		err := withTx(ctx, r.db, func(tx *sql.Tx) error {
			var userID int64
			err := tx.QueryRowContext(ctx,
				`UPDATE user_providers SET provider_data = $3, updated_at = now()
				 WHERE provider = $1 AND provider_subject_id = $2 RETURNING user_id`,
				p.Provider, p.SubjectID, string(blob)).Scan(&userID)
			switch {
			case err == nil:
				return refreshUser(ctx, tx, userID, fullName, avatarURL)
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}

			if err := tx.QueryRowContext(ctx,
				`INSERT INTO users (email, full_name, avatar_url) VALUES ($1, NULLIF($2, ''), NULLIF($3, '')) RETURNING id`,
				email, fullName, avatarURL).Scan(&userID); err != nil {
				return err
			}
			var linkID int64
			err = tx.QueryRowContext(ctx,
				`INSERT INTO user_providers (user_id, provider, provider_subject_id, provider_data)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (provider, provider_subject_id) DO NOTHING RETURNING id`,
				userID, p.Provider, p.SubjectID, string(blob)).Scan(&linkID)
			if errors.Is(err, sql.ErrNoRows) {
				return errLostRace
			}
			if err != nil {
				return err
			}
			created = true
			return nil
		})
		if errors.Is(err, errLostRace) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		ext, err := r.FindExternalByProvider(ctx, p.Provider, p.SubjectID)
		if err != nil {
			return nil, false, err
		}
		if ext == nil {
			return nil, false, fmt.Errorf("link %s/%s vanished after upsert", p.Provider, p.SubjectID)
		}
		return ext, created, nil
	}
	return nil, false, fmt.Errorf("upsert %s/%s: %w", p.Provider, p.SubjectID, errLostRace)
}

// LinkExternal attaches the provider link to ref (or refreshes it if the
// subject is already linked) and updates the user's display fields.
func (r *JoinedRepository) LinkExternal(ctx context.Context, ref domain.Reference, p *domain.ExternalProfile) (*domain.ExternalIdentity, error) {
	if ref.Kind != domain.KindUser {
		return nil, ErrUnsupported
	}
	_, fullName, avatarURL, blob, err := profileFields(p)
	if err != nil {
		return nil, err
	}
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		var userID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO user_providers (user_id, provider, provider_subject_id, provider_data)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (provider, provider_subject_id)
			 DO UPDATE SET provider_data = EXCLUDED.provider_data, updated_at = now()
			 RETURNING user_id`,
			ref.ID, p.Provider, p.SubjectID, string(blob)).Scan(&userID)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		return refreshUser(ctx, tx, userID, fullName, avatarURL)
	})
	if err != nil {
		return nil, err
	}
	return r.FindExternalByProvider(ctx, p.Provider, p.SubjectID)
}

func refreshUser(ctx context.Context, tx *sql.Tx, userID int64, fullName, avatarURL string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET full_name = COALESCE(NULLIF($2, ''), full_name),
		 avatar_url = COALESCE(NULLIF($3, ''), avatar_url), updated_at = now() WHERE id = $1`,
		userID, fullName, avatarURL)
	return err
}

// FetchCanonical returns the users row behind ref, or nil.
func (r *JoinedRepository) FetchCanonical(ctx context.Context, ref domain.Reference) (*domain.ProfileView, error) {
	if ref.Kind != domain.KindUser {
		return nil, nil
	}
	var v domain.ProfileView
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, COALESCE(full_name, ''), COALESCE(avatar_url, ''), created_at FROM users WHERE id = $1`,
		ref.ID).Scan(&v.ID, &v.Email, &v.FullName, &v.AvatarURL, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	v.Kind = domain.KindUser
	v.Ref = domain.Reference{Kind: domain.KindUser, ID: v.ID}
	return &v, nil
}
