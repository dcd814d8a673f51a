package app

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/opsdesk/opsdesk-go/internal/apperr"
)

// Error represents a structured error response.
type Error struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Envelope wraps successful data or an error.
type Envelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

// AbortError records an error and aborts the handler. The response will be
// rendered by the Errors middleware.
func AbortError(c *gin.Context, status int, code, message string, fields map[string]string) {
	c.Set("app_error", &Error{Code: code, Message: message, FieldErrors: fields})
	c.AbortWithStatus(status)
}

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.StorageUnavailable:
		return http.StatusServiceUnavailable
	case apperr.InvalidReference, apperr.InvalidState, apperr.InvalidPriority,
		apperr.InvalidFormat, apperr.EmptyComment:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Fail renders a domain error as its HTTP equivalent. The error kind becomes
// the response code string so clients can switch on it.
func Fail(c *gin.Context, err error) {
	k := apperr.KindOf(err)
	code := string(k)
	if code == "" {
		code = "internal"
	}
	AbortError(c, statusFor(k), code, err.Error(), nil)
}

// ParamID parses a positive integer path parameter, failing the request with
// InvalidFormat otherwise.
func ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		Fail(c, apperr.New(apperr.InvalidFormat, "invalid %s", name))
		return 0, false
	}
	return id, true
}

// Errors emits a JSON error envelope and structured log entry when an error
// was recorded via AbortError.
func Errors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		v, ok := c.Get("app_error")
		if !ok {
			return
		}
		err, ok := v.(*Error)
		if !ok {
			return
		}
		status := c.Writer.Status()
		logger := log.Ctx(c.Request.Context()).Error().Str("code", err.Code)
		if err.FieldErrors != nil {
			for k, v := range err.FieldErrors {
				logger = logger.Str("field_"+k, v)
			}
		}
		logger.Msg(err.Message)
		c.JSON(status, Envelope{Error: err})
	}
}
