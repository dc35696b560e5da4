package web

// errors.go turns handler errors into JSON responses.
//
// The technical error is logged with the request id; the client receives the
// coded message from core.MapError:
//
//	{"error": "...", "message": "...", "action": "...", "code": "VAL003"}

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/testcatalog/internal/blob"
	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

var errPublishDisabled = errors.New("export publishing is not configured")

// statusFor picks the HTTP status for an error.
func statusFor(err error) int {
	var fieldErrs core.FieldErrors
	var verrs validator.ValidationErrors
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrEmptyFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrRecordNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, blob.ErrExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnknownFormat), errors.Is(err, errBadRequest),
		errors.As(err, &fieldErrs), errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, errPublishDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its mapped message with the status
// derived from statusFor.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorStatus(w, r, err, statusFor(err))
}

func respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", args...)
	} else {
		log.Warn("request error", args...)
	}

	body := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if status < http.StatusInternalServerError {
		body.Details = err.Error()
	}
	writeJSONStatus(w, status, body)
}

// rejectRateLimited is the body writer for the rate limiter.
func rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	respondErrorStatus(w, r, errors.New("rate limit exceeded"), http.StatusTooManyRequests)
}
