package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls s.respondError(w, r, err)
//  3. statusFor picks the HTTP status from the error taxonomy
//  4. core.MapError supplies the user-facing message, action and code
//  5. The technical error is logged with the request id for correlation

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/interchange"
	"github.com/JonMunkholm/tablekit/internal/docstore"
	"github.com/JonMunkholm/tablekit/internal/logging"
	"github.com/JonMunkholm/tablekit/internal/web/middleware"
)

// errNoFile is returned when a multipart upload has no file part.
var errNoFile = errors.New("no file provided")

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Action  string            `json:"action,omitempty"`
	Code    string            `json:"code"`
	Batch   *core.BatchResult `json:"batch,omitempty"`
}

// respondError logs the technical error server-side and returns the mapped
// user message as JSON. Errors without a specific mapping are logged at
// Error level whatever their status.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ue := core.NewUserError(err)

	logger := logging.FromContext(r.Context())
	log := logger.Warn
	if status >= http.StatusInternalServerError || !core.IsUserFacing(err) {
		log = logger.Error
	}
	log("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", ue.Technical.Error(),
		"code", ue.User.Code,
	)

	resp := ErrorResponse{
		Error:   ue.Error(),
		Message: ue.User.Message,
		Action:  ue.User.Action,
		Code:    ue.User.Code,
	}
	var partial *core.PartialBatchFailure
	if errors.As(err, &partial) {
		resp.Batch = &partial.Result
	}
	if errors.Is(err, core.ErrTooManyImports) {
		w.Header().Set("Retry-After", "5")
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	var (
		validation  *core.ValidationError
		notFound    *core.NotFoundError
		permission  *core.PermissionError
		format      *core.FormatError
		unsupported *core.UnsupportedFormatError
		partial     *core.PartialBatchFailure
		storeErr    *docstore.Error
		tooLarge    *http.MaxBytesError
	)

	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, middleware.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, interchange.ErrFileTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.As(err, &partial):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &permission):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &format):
		return http.StatusUnprocessableEntity
	case errors.As(err, &storeErr):
		return storeStatus(storeErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func storeStatus(code docstore.Code) int {
	switch code {
	case docstore.CodePermissionDenied:
		return http.StatusForbidden
	case docstore.CodeUnauthenticated:
		return http.StatusUnauthorized
	case docstore.CodeNotFound:
		return http.StatusNotFound
	case docstore.CodeAlreadyExists:
		return http.StatusConflict
	case docstore.CodeUnavailable, docstore.CodeOffline, docstore.CodeQuotaExceeded, docstore.CodeTimeout:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
