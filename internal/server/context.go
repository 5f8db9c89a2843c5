package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

type contextKey struct{ name string }

var (
	subjectKey   = contextKey{"subject_id"}
	requestIDKey = contextKey{"request_id"}
)

// WithSubject returns a context carrying the authenticated subject id.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFrom returns the authenticated subject id and true if set.
func SubjectFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	return v, ok && v != ""
}

// RequestIDFrom returns the request id set by the request id middleware.
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func withUserContext(c *fiber.Ctx, fn func(context.Context) context.Context) {
	c.SetUserContext(fn(c.UserContext()))
}
