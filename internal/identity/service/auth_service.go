package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"auth-gateway/internal/audit"
	auditdomain "auth-gateway/internal/audit/domain"
	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/identity/repository"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/security"
)

// AuthResult is the outcome of Register, Login and IssueFor.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.ProfileView
}

// AuthService implements local-account registration and login and issues
// tokens for identities resolved elsewhere.
type AuthService struct {
	repo   repository.Repository
	hasher *security.Hasher
	tokens *security.TokenIssuer
	audit  audit.AuditLogger
	log    *zap.Logger
}

// NewAuthService returns an AuthService with the given dependencies. auditLogger and log may be nil.
func NewAuthService(repo repository.Repository, hasher *security.Hasher, tokens *security.TokenIssuer, auditLogger audit.AuditLogger, log *zap.Logger) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AuthService{repo: repo, hasher: hasher, tokens: tokens, audit: auditLogger, log: logger.OrNop(log)}
}

// Register creates a local identity and returns it with a token. Input is
// validated before any storage access.
func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if err := validateRegistration(email, password); err != nil {
		return nil, err
	}
	existing, err := s.repo.FindLocalByEmail(ctx, email)
	if err != nil {
		return nil, storageError("find local identity", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	local, err := s.repo.CreateLocal(ctx, email, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, storageError("create local identity", err)
	}
	s.audit.LogEvent(ctx, local.Ref.String(), auditdomain.ActionRegister, "local", nil)
	return s.IssueFor(domain.LocalView(local))
}

// Login verifies a local account's password. Unknown email and wrong
// password both return ErrInvalidCredentials after one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if err := validateLogin(email, password); err != nil {
		return nil, err
	}
	local, err := s.repo.FindLocalByEmail(ctx, email)
	if err != nil {
		return nil, storageError("find local identity", err)
	}
	if local == nil {
		s.hasher.Burn([]byte(password))
		s.audit.LogEvent(ctx, email, auditdomain.ActionLoginFailure, "local", map[string]any{"reason": "unknown_email"})
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify([]byte(password), local.PasswordHash) {
		s.audit.LogEvent(ctx, local.Ref.String(), auditdomain.ActionLoginFailure, "local", map[string]any{"reason": "wrong_password"})
		return nil, ErrInvalidCredentials
	}
	s.audit.LogEvent(ctx, local.Ref.String(), auditdomain.ActionLoginSuccess, "local", nil)
	return s.IssueFor(domain.LocalView(local))
}

// IssueFor signs a token for a resolved profile.
func (s *AuthService) IssueFor(view *domain.ProfileView) (*AuthResult, error) {
	token, exp, err := s.tokens.Issue(view.Ref, view.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: exp, User: view}, nil
}

// Me returns the current profile behind ref; ErrNotFound once the record is gone.
func (s *AuthService) Me(ctx context.Context, ref domain.Reference) (*domain.ProfileView, error) {
	view, err := s.repo.FetchCanonical(ctx, ref)
	if err != nil {
		return nil, storageError("fetch profile", err)
	}
	if view == nil {
		return nil, ErrNotFound
	}
	return view, nil
}

// Connection returns ref's link to provider; ErrNotFound when there is none.
func (s *AuthService) Connection(ctx context.Context, ref domain.Reference, provider string) (*domain.ExternalIdentity, error) {
	ext, err := s.repo.FindExternalByReference(ctx, ref, provider)
	if err != nil {
		return nil, storageError("find provider link", err)
	}
	if ext == nil {
		return nil, ErrNotFound
	}
	return ext, nil
}
