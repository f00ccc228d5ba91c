package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tasklist/tasklist/internal/core"
	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/observability"
	"github.com/tasklist/tasklist/internal/server/middleware"
)

// Error codes carried in API error envelopes.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeValidation       = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeInternal         = "INTERNAL_ERROR"
	CodeDatabase         = "DATABASE_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeConfigInvalid    = "CONFIG_INVALID"
)

// statusByCode maps envelope codes to HTTP statuses. Unlisted codes are 500.
var statusByCode = map[string]int{
	CodeInvalidInput:     http.StatusBadRequest,
	CodeValidation:       http.StatusBadRequest,
	CodeNotFound:         http.StatusNotFound,
	CodeUnauthorized:     http.StatusUnauthorized,
	CodeMethodNotAllowed: http.StatusMethodNotAllowed,
	CodeTooManyRequests:  http.StatusTooManyRequests,
	CodeTimeout:          http.StatusGatewayTimeout,
	CodeExternalService:  http.StatusBadGateway,
	CodeUnavailable:      http.StatusServiceUnavailable,
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func NewUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnavailable, message)
}

// The Wrap helpers tag the envelope with the request ID found in ctx and keep
// err in the envelope context for logging.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapValidationError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeValidation, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

// WrapDatabaseError reports a store failure at high severity.
func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := wrap(ctx, CodeDatabase, err, message)
	if updated, sevErr := envelope.WithSeverity(errors.SeverityHigh); sevErr == nil {
		return updated
	}
	return envelope
}

// WrapExternalService reports a failed call to a dependency such as the
// Prometheus exporter.
func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeExternalService, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

// FromTaskError classifies an error returned by the task store.
func FromTaskError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	switch {
	case stderrors.Is(err, core.ErrInvalidID):
		return WrapInvalidInput(ctx, err, err.Error())
	case stderrors.Is(err, core.ErrTitleRequired), stderrors.Is(err, core.ErrEmptyPatch):
		return WrapValidationError(ctx, err, err.Error())
	case stderrors.Is(err, context.DeadlineExceeded):
		return wrap(ctx, CodeTimeout, err, message)
	default:
		return WrapDatabaseError(ctx, err, message)
	}
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := middleware.GetRequestID(ctx)
	if id == "" {
		id = uuid.New().String()
	}

	envelope := errors.NewErrorEnvelope(code, message).
		WithCorrelationID(id).
		WithTraceID(id)
	if err == nil {
		return envelope
	}
	return withContext(envelope, map[string]interface{}{"wrapped_error": err.Error()})
}

func withContext(envelope *errors.ErrorEnvelope, data map[string]interface{}) *errors.ErrorEnvelope {
	if updated, err := envelope.WithContext(data); err == nil {
		return updated
	}
	return envelope
}

// EnsureEnvelope returns the envelope inside err, or an INTERNAL_ERROR
// envelope describing it.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		envelope, _ := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error").WithSeverity(errors.SeverityCritical)
		return envelope
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	envelope = withContext(errors.NewErrorEnvelope(CodeInternal, "unexpected error"),
		map[string]interface{}{"wrapped_error": err.Error()})
	if updated, sevErr := envelope.WithSeverity(errors.SeverityHigh); sevErr == nil {
		envelope = updated
	}
	return envelope
}

// EnsureCorrelationID fills in a missing correlation ID from ctx, or a
// generated fallback.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil || envelope.CorrelationID != "" {
		return envelope
	}

	id := middleware.GetRequestID(ctx)
	if id == "" {
		id = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(id)
}

func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

func HTTPStatusFromCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPErrorDetail is the client-visible part of an envelope.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse is the JSON body of every API error.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

func newHTTPErrorResponse(envelope *errors.ErrorEnvelope) HTTPErrorResponse {
	detail := HTTPErrorDetail{
		Code:      envelope.Code,
		Message:   envelope.Message,
		RequestID: envelope.CorrelationID,
	}
	// Context holds wrapped errors and stays in the logs.
	if len(envelope.Details) > 0 {
		detail.Details = make(map[string]interface{}, len(envelope.Details))
		for k, v := range envelope.Details {
			detail.Details[k] = v
		}
	}
	return HTTPErrorResponse{Error: detail}
}

// RespondWithError writes err as a JSON error response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope writes envelope with its mapped status, logs it and
// counts it.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}
	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}

	var ctx context.Context
	path := ""
	if r != nil {
		ctx = r.Context()
		path = r.URL.Path
	}
	envelope = EnsureCorrelationID(envelope, ctx)
	status := HTTPStatusFromEnvelope(envelope)

	logEnvelope(envelope, status)
	metrics.RecordError(envelope.Code, status)
	if path != "" {
		metrics.RecordErrorByEndpoint(path, envelope.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(newHTTPErrorResponse(envelope))
}

func logEnvelope(envelope *errors.ErrorEnvelope, status int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := make([]zap.Field, 0, len(envelope.Context)+4)
	fields = append(fields,
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("request_id", envelope.CorrelationID),
	)
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for k, v := range envelope.Context {
		fields = append(fields, zap.Any(k, v))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}
