package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"equiploan/internal/adapters/export"
	"equiploan/pkg/domain"
)

// Error codes carried in the JSON error body.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeValidation      = "VALIDATION_FAILED"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeRuleViolation   = "RULE_VIOLATION"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL"
)

type errorDTO struct {
	Error struct {
		Code       string             `json:"code"`
		Message    string             `json:"message"`
		Field      string             `json:"field,omitempty"`
		Violations []domain.Violation `json:"violations,omitempty"`
	} `json:"error"`
}

func errorBody(code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// statusFor maps domain errors onto HTTP semantics.
func statusFor(err error) (int, errorDTO) {
	var (
		notFound   domain.NotFoundError
		invalid    domain.InvalidStateError
		reference  domain.ReferenceError
		validation domain.ValidationError
		violation  domain.RuleViolationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorBody(CodeNotFound, err.Error())
	case errors.As(err, &validation):
		body := errorBody(CodeValidation, err.Error())
		body.Error.Field = validation.Field
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &violation):
		body := errorBody(CodeRuleViolation, err.Error())
		body.Error.Violations = violation.Result.Violations
		return http.StatusConflict, body
	case errors.As(err, &invalid), errors.As(err, &reference):
		return http.StatusConflict, errorBody(CodeConflict, err.Error())
	case errors.Is(err, export.ErrQueueFull):
		return http.StatusServiceUnavailable, errorBody(CodeUnavailable, err.Error())
	}
	return http.StatusInternalServerError, errorBody(CodeInternal, err.Error())
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// errAborted signals that a helper already wrote the response.
var errAborted = errors.New("request aborted")

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, msg))
}
