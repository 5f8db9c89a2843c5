package server

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/logging"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// errorHandler maps autherr codes to statuses. Unknown errors are logged and
// reported as INTERNAL without their text.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorBody{Error: httpCode(fe.Code), Message: fe.Message})
	}

	code := autherr.CodeOf(err)
	body := errorBody{Error: code, Message: autherr.Message(err), Details: autherr.Details(err)}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		if body.Details == nil {
			body.Details = map[string]any{}
		}
		fields := make(map[string]string, len(verrs))
		for k, v := range verrs {
			fields[k] = v.Error()
		}
		body.Details["fields"] = fields
	}
	if code == autherr.CodeInternal {
		logging.LogError(c.UserContext(), s.logger, "request failed", err)
	}
	return c.Status(autherr.HTTPStatus(code)).JSON(body)
}

func httpCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusUnauthorized:
		return autherr.CodeInvalidToken
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return autherr.CodeValidation
	default:
		return autherr.CodeInternal
	}
}
