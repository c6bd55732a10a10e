package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrBadRequest          = errors.New("bad request")
	ErrConflict            = errors.New("conflict")
	ErrInternal            = errors.New("internal error")
	ErrValidation          = errors.New("validation error")
	ErrUnsupportedDisease  = errors.New("unsupported disease")
	ErrInvalidPopulation   = errors.New("invalid population")
	ErrNoHistoricalData    = errors.New("no historical data")
	ErrForecastSubprocess  = errors.New("forecast subprocess failed")
	ErrPersistence         = errors.New("persistence failure")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// UnsupportedDisease signals a simulation request for a disease with no
// registered epidemic parameters.
func UnsupportedDisease(disease string) *AppError {
	return &AppError{
		Err:        ErrUnsupportedDisease,
		Message:    fmt.Sprintf("no epidemic parameters registered for disease %q", disease),
		Code:       "UNSUPPORTED_DISEASE",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]string{"disease": disease},
	}
}

// InvalidPopulation signals a non-positive population input.
func InvalidPopulation(population int) *AppError {
	return &AppError{
		Err:        ErrInvalidPopulation,
		Message:    "population must be greater than zero",
		Code:       "INVALID_POPULATION",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]string{"population": fmt.Sprintf("%d", population)},
	}
}

// NoHistoricalData signals an empty aggregate series for a forecast request.
func NoHistoricalData(disease string) *AppError {
	msg := "no historical case data available; aggregates must be backfilled first"
	return &AppError{
		Err:        ErrNoHistoricalData,
		Message:    msg,
		Code:       "NO_HISTORICAL_DATA",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"disease": disease},
	}
}

// subprocessExcerptLimit bounds how much raw forecaster output is carried in
// errors surfaced to callers.
const subprocessExcerptLimit = 512

// ForecastSubprocess signals a failed external forecaster invocation. The raw
// combined output is retained as a truncated excerpt for diagnosis.
func ForecastSubprocess(message string, rawOutput []byte) *AppError {
	return &AppError{
		Err:        ErrForecastSubprocess,
		Message:    message,
		Code:       "FORECAST_SUBPROCESS",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]string{"output": Truncate(string(rawOutput), subprocessExcerptLimit)},
	}
}

// Persistence wraps a storage failure that must be logged but never surfaced
// as a caller-visible failure.
func Persistence(err error) *AppError {
	return &AppError{
		Err:        ErrPersistence,
		Message:    fmt.Sprintf("persistence failure: %v", err),
		Code:       "PERSISTENCE",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Truncate bounds s to max bytes, marking the cut.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
