package logging

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"blueprint-auth/internal/autherr"
)

// LogError logs err at error level. oops errors contribute their code and
// redacted context; other errors are logged as-is.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"error", err.Error(), "code", autherr.CodeOf(err)}
	if oopsErr, ok := oops.AsOops(err); ok {
		if domain := oopsErr.Domain(); domain != "" {
			attrs = append(attrs, "domain", domain)
		}
		if details := autherr.Redact(oopsErr.Context()); len(details) > 0 {
			attrs = append(attrs, "context", details)
		}
	}
	logger.ErrorContext(ctx, msg, attrs...)
}
