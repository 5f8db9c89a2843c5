// Package audit records security-relevant auth events. Recording is best-effort:
// failures are logged and never affect the caller.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"blueprint-auth/internal/audit/domain"
	auditrepo "blueprint-auth/internal/audit/repository"
	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/telemetry"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. Used by the auth and token services.
type AuditLogger interface {
	LogEvent(ctx context.Context, subjectID, action, resource string, metadata map[string]string)
}

// Logger implements AuditLogger. Events are written to slog, persisted to repo
// when set, and fanned out asynchronously to emitter when set.
type Logger struct {
	repo        auditrepo.Repository
	emitter     telemetry.EventEmitter
	logger      *slog.Logger
	ipExtractor IPExtractor
	now         func() time.Time
}

// NewLogger returns a Logger. repo, emitter and ipExtractor may be nil; without
// an extractor the IP is taken from the request context (see WithClientIP).
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter, logger *slog.Logger, ipExtractor IPExtractor) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ipExtractor == nil {
		ipExtractor = ClientIP
	}
	return &Logger{repo: repo, emitter: emitter, logger: logger, ipExtractor: ipExtractor, now: time.Now}
}

// LogEvent records one audit event. Metadata values under sensitive keys are redacted.
func (l *Logger) LogEvent(ctx context.Context, subjectID, action, resource string, metadata map[string]string) {
	if l == nil {
		return
	}
	entry := &domain.Event{
		ID:        uuid.NewString(),
		Action:    action,
		Resource:  resource,
		SubjectID: subjectID,
		IP:        l.ipExtractor(ctx),
		Metadata:  redact(metadata),
		CreatedAt: l.now().UTC(),
	}

	level := slog.LevelInfo
	if action == domain.ActionRefreshReplay || action == domain.ActionLoginFailure || action == domain.ActionIssuanceDenied {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "audit",
		"event_id", entry.ID,
		"action", action,
		"resource", resource,
		"subject_id", subjectID,
		"client_ip", entry.IP,
	)

	if l.repo != nil {
		if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
			l.logger.WarnContext(ctx, "audit: failed to persist event", "action", action, "error", err)
		}
	}
	telemetry.EmitAsync(l.emitter, entry)
}

func redact(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if autherr.IsSensitiveKey(k) {
			v = "[redacted]"
		}
		out[k] = v
	}
	return out
}

type clientIPKey struct{}

// WithClientIP returns a context carrying the caller's IP for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the IP set by WithClientIP, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}
