package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auth-gateway/internal/audit/domain"
	auditrepo "auth-gateway/internal/audit/repository"
	"auth-gateway/internal/logger"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. LogEvent is best-effort: failures
// are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, subject, action, resource string, metadata map[string]any)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. A nil repo makes
// LogEvent a no-op; a nil ipExtractor records the IP as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: logger.OrNop(log), now: time.Now}
}

// LogEvent writes one audit entry.
func (l *Logger) LogEvent(ctx context.Context, subject, action, resource string, metadata map[string]any) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	meta := ""
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			l.log.Warn("audit: metadata not serializable", zap.String("action", action), zap.Error(err))
		} else {
			meta = string(b)
		}
	}
	entry := &domain.Event{
		ID:        uuid.New().String(),
		Subject:   subject,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  meta,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", action), zap.String("resource", resource), zap.Error(err))
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, map[string]any) {}

// Multi fans each event out to every non-nil logger in order.
func Multi(loggers ...AuditLogger) AuditLogger {
	out := make(multi, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

type multi []AuditLogger

func (m multi) LogEvent(ctx context.Context, subject, action, resource string, metadata map[string]any) {
	for _, l := range m {
		l.LogEvent(ctx, subject, action, resource, metadata)
	}
}
