// Package errors defines the sentinel errors shared by the services and
// maps them to HTTP status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrRunNotFound        = errors.New("expansion run not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRetrieval          = errors.New("retrieval failed")
	ErrVocabularyTooLarge = errors.New("vocabulary too large")
	ErrUnknownSmoothing   = errors.New("unknown smoothing strategy")
	ErrEmptyCollection    = errors.New("collection is empty")
	ErrCacheDisabled      = errors.New("cache disabled")
	ErrShardUnavailable   = errors.New("shard unavailable")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownSmoothing):
		return http.StatusBadRequest
	case errors.Is(err, ErrVocabularyTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrRetrieval):
		return http.StatusBadGateway
	case errors.Is(err, ErrShardUnavailable), errors.Is(err, ErrCacheDisabled),
		errors.Is(err, ErrEmptyCollection):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
