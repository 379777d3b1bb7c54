package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"auth-gateway/internal/audit"
	auditdomain "auth-gateway/internal/audit/domain"
	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/identity/repository"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/policy/engine"
)

const instrumentationName = "auth-gateway/internal/identity/service"

// Outcome says which branch a reconciliation took.
type Outcome string

const (
	OutcomeReturning Outcome = "returning" // known (provider, subject)
	OutcomeMerged    Outcome = "merged"    // linked to an account found by email
	OutcomeCreated   Outcome = "created"   // new identity
)

// Reconciler maps a verified provider profile onto a canonical identity
// reference. It is written once against repository.Repository; the model
// the repository serves selects merge-by-email or partitioned behavior.
type Reconciler struct {
	repo         repository.Repository
	policy       engine.MergePolicy
	mergeByEmail bool
	audit        audit.AuditLogger
	log          *zap.Logger
	tracer       trace.Tracer
	outcomes     metric.Int64Counter
}

// NewReconciler returns a Reconciler. policy may be nil, which disables merging.
func NewReconciler(repo repository.Repository, policy engine.MergePolicy, mergeByEmail bool, auditLogger audit.AuditLogger, log *zap.Logger) *Reconciler {
	if policy == nil {
		policy = engine.StaticMergePolicy(false)
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	l := logger.OrNop(log)
	outcomes, err := otel.Meter(instrumentationName).Int64Counter("gateway.reconcile.outcomes",
		metric.WithDescription("OAuth reconciliations by outcome"))
	if err != nil {
		l.Warn("reconciler: outcome counter unavailable", zap.Error(err))
	}
	return &Reconciler{
		repo:         repo,
		policy:       policy,
		mergeByEmail: mergeByEmail,
		audit:        auditLogger,
		log:          l,
		tracer:       otel.Tracer(instrumentationName),
		outcomes:     outcomes,
	}
}

// Reconcile returns the canonical reference for p, creating or linking an
// identity when needed. It never deletes and is safe to replay with the same
// subject. Errors match ErrProviderAuthFailed or ErrStorage.
func (r *Reconciler) Reconcile(ctx context.Context, p *domain.ExternalProfile) (domain.Reference, error) {
	if p == nil {
		return domain.Reference{}, ErrProviderAuthFailed
	}
	ctx, span := r.tracer.Start(ctx, "Reconciler.Reconcile", trace.WithAttributes(
		attribute.String("identity.model", string(r.repo.Model())),
		attribute.String("oauth.provider", p.Provider),
	))
	defer span.End()

	ref, outcome, err := r.reconcile(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return domain.Reference{}, err
	}
	span.SetAttributes(attribute.String("reconcile.outcome", string(outcome)), attribute.String("identity.ref", ref.String()))
	if r.outcomes != nil {
		r.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(outcome)),
			attribute.String("model", string(r.repo.Model())),
		))
	}
	action := auditdomain.ActionOAuthLogin
	switch outcome {
	case OutcomeCreated:
		action = auditdomain.ActionOAuthCreate
	case OutcomeMerged:
		action = auditdomain.ActionOAuthMerge
	}
	r.audit.LogEvent(ctx, ref.String(), action, p.Provider, map[string]any{"subject_id": p.SubjectID})
	return ref, nil
}

func (r *Reconciler) reconcile(ctx context.Context, p *domain.ExternalProfile) (domain.Reference, Outcome, error) {
	if p.Provider == "" || p.SubjectID == "" {
		return domain.Reference{}, "", ErrProviderAuthFailed
	}
	if r.repo.Model() == domain.ModelJoined {
		if ref, ok, err := r.tryMerge(ctx, p); err != nil || ok {
			return ref, OutcomeMerged, err
		}
	}
	ext, created, err := r.repo.UpsertExternal(ctx, p)
	if err != nil {
		return domain.Reference{}, "", storageError("upsert external identity", err)
	}
	if created {
		return ext.Ref, OutcomeCreated, nil
	}
	return ext.Ref, OutcomeReturning, nil
}

// tryMerge attaches an unseen subject to the account that already claims its
// email. ok is false when the subject is known, the policy refuses, or no
// account qualifies; the caller then upserts.
func (r *Reconciler) tryMerge(ctx context.Context, p *domain.ExternalProfile) (ref domain.Reference, ok bool, err error) {
	known, err := r.repo.FindExternalByProvider(ctx, p.Provider, p.SubjectID)
	if err != nil {
		return ref, false, storageError("find provider link", err)
	}
	if known != nil {
		return ref, false, nil
	}
	email, verified := p.PrimaryEmail()
	allowed, err := r.policy.AllowMerge(ctx, engine.MergeInput{
		Model:         r.repo.Model(),
		MergeByEmail:  r.mergeByEmail,
		Provider:      p.Provider,
		Email:         email,
		EmailVerified: verified,
	})
	if err != nil {
		r.log.Warn("reconciler: merge policy failed, creating separate identity",
			zap.String("provider", p.Provider), zap.Error(err))
		return ref, false, nil
	}
	if !allowed {
		return ref, false, nil
	}
	target, err := r.repo.FindLocalByEmailForMerge(ctx, email)
	if err != nil {
		return ref, false, storageError("find merge target", err)
	}
	if target == nil {
		return ref, false, nil
	}
	ext, err := r.repo.LinkExternal(ctx, target.Ref, p)
	if errors.Is(err, repository.ErrConflict) {
		r.log.Info("reconciler: merge target already linked to this provider",
			zap.String("provider", p.Provider), zap.Stringer("target", target.Ref))
		return ref, false, nil
	}
	if err != nil {
		return ref, false, storageError("link external identity", err)
	}
	return ext.Ref, true, nil
}
