// Package autherr defines the error taxonomy surfaced by the auth core.
// Every error returned to a transport carries exactly one of the codes below;
// anything else is reported as INTERNAL.
package autherr

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/samber/oops"
)

// Error codes as seen by callers.
const (
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeMalformedToken          = "MALFORMED_TOKEN"
	CodeSessionRevokedOrExpired = "SESSION_REVOKED_OR_EXPIRED"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeDuplicateResource       = "DUPLICATE_RESOURCE"
	CodeUserNotFound            = "USER_NOT_FOUND"
	CodeTokenIssuanceForbidden  = "TOKEN_ISSUANCE_FORBIDDEN"
	CodeInvalidMagicLink        = "INVALID_OR_EXPIRED_MAGIC_LINK"
	CodeValidation              = "VALIDATION_ERROR"
	CodeConflict                = "CONFLICT"
	CodeDeliveryFailed          = "DELIVERY_FAILED"
	CodeInternal                = "INTERNAL"
)

// Sentinel errors, one per code. Use errors.Is to test for a kind.
var (
	ErrInvalidToken            = errors.New("token is invalid or expired")
	ErrMalformedToken          = errors.New("token is missing required claims")
	ErrSessionRevokedOrExpired = errors.New("session revoked or expired")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrDuplicateResource       = errors.New("resource already exists")
	ErrUserNotFound            = errors.New("user not found")
	ErrTokenIssuanceForbidden  = errors.New("token issuance blocked by policy")
	ErrInvalidMagicLink        = errors.New("invalid or expired magic link")
	ErrValidation              = errors.New("validation failed")
	ErrConflict                = errors.New("conflicting record")
	ErrDeliveryFailed          = errors.New("delivery failed")
)

type kind struct {
	err    error
	code   string
	status int
}

var kinds = []kind{
	{ErrInvalidToken, CodeInvalidToken, http.StatusUnauthorized},
	{ErrMalformedToken, CodeMalformedToken, http.StatusUnauthorized},
	{ErrSessionRevokedOrExpired, CodeSessionRevokedOrExpired, http.StatusUnauthorized},
	{ErrInvalidCredentials, CodeInvalidCredentials, http.StatusUnauthorized},
	{ErrDuplicateResource, CodeDuplicateResource, http.StatusConflict},
	{ErrUserNotFound, CodeUserNotFound, http.StatusNotFound},
	{ErrTokenIssuanceForbidden, CodeTokenIssuanceForbidden, http.StatusForbidden},
	{ErrInvalidMagicLink, CodeInvalidMagicLink, http.StatusUnauthorized},
	{ErrValidation, CodeValidation, http.StatusBadRequest},
	{ErrConflict, CodeConflict, http.StatusConflict},
	{ErrDeliveryFailed, CodeDeliveryFailed, http.StatusBadGateway},
}

func lookup(err error) (kind, bool) {
	if err == nil {
		return kind{}, false
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k, true
		}
	}
	return kind{}, false
}

// New returns an oops error tagged with the code of sentinel and wrapping it,
// so errors.Is(err, sentinel) holds. kv are context key/value pairs.
func New(sentinel error, kv ...any) error {
	return oops.Code(CodeOf(sentinel)).With(kv...).Wrap(sentinel)
}

// Wrap attaches cause to a sentinel-tagged error. The returned error matches
// both sentinel and cause with errors.Is.
func Wrap(sentinel, cause error, kv ...any) error {
	return oops.Code(CodeOf(sentinel)).With(kv...).Wrap(errors.Join(sentinel, cause))
}

// CodeOf returns the taxonomy code for err, or CodeInternal.
func CodeOf(err error) string {
	if k, ok := lookup(err); ok {
		return k.code
	}
	return CodeInternal
}

// Message returns the caller-safe message for err. Internal errors never expose
// their underlying text.
func Message(err error) string {
	if k, ok := lookup(err); ok {
		return k.err.Error()
	}
	return "internal error"
}

// HTTPStatus maps a taxonomy code to a transport status.
func HTTPStatus(code string) int {
	for _, k := range kinds {
		if k.code == code {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

var sensitiveKey = regexp.MustCompile(`(?i)password|secret|token|hash|authorization|cookie`)

// IsSensitiveKey reports whether a metadata key names secret material.
func IsSensitiveKey(key string) bool {
	return sensitiveKey.MatchString(key)
}

// Redact returns a copy of meta with values of sensitive keys replaced.
func Redact(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if IsSensitiveKey(k) {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}

// Details returns the redacted oops context of err for codes whose context is
// meant for the caller. Other codes return nil.
func Details(err error) map[string]any {
	switch CodeOf(err) {
	case CodeValidation, CodeDuplicateResource:
	default:
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return Redact(oopsErr.Context())
}
