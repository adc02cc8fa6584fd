package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrNotFound marks a video, playlist or channel that does not exist remotely
// or is private. Non-retryable; callers propagate it.
var ErrNotFound = errors.New("not found on youtube")

// ErrInput marks an invalid id, alias or URL supplied by the caller.
var ErrInput = errors.New("invalid input")

// statusError carries an HTTP status from the non-API endpoints (watch page,
// timedtext) so classification can treat 429/5xx as transient.
type statusError struct {
	code int
	what string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s", e.what, http.StatusText(e.code))
}

// ErrorClass represents whether an error should be retried or not.
type ErrorClass int

const (
	// ErrorClassRetryable indicates the operation should be retried (transient errors).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates the operation should not be retried (permanent errors).
	ErrorClassFatal
)

// Classify sorts request errors into retryable vs fatal.
//
// Fatal: not-found / private content, invalid input, auth and quota errors,
// context cancellation.
// Retryable: network-level failures (timeouts, connection resets, DNS) and
// server errors (429, 5xx).
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassFatal
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInput) {
		return ErrorClassFatal
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 429 || gerr.Code >= 500 {
			return ErrorClassRetryable
		}
		return ErrorClassFatal
	}
	var serr *statusError
	if errors.As(err, &serr) {
		if serr.code == 429 || serr.code >= 500 {
			return ErrorClassRetryable
		}
		return ErrorClassFatal
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return ErrorClassRetryable
	}
	lower := strings.ToLower(err.Error())
	for _, pat := range []string{"connection reset", "connection refused", "broken pipe", "timeout", "temporary failure", "no such host", "eof"} {
		if strings.Contains(lower, pat) {
			return ErrorClassRetryable
		}
	}
	return ErrorClassFatal
}

// mapStatus converts an API error for a lookup into the package taxonomy:
// 404, and 403 whose message mentions private content, read as "does not
// exist or is private". Other 403s (auth, quota) pass through unchanged.
func mapStatus(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 404 || gerr.Code == 403 && strings.Contains(strings.ToLower(gerr.Message), "private") {
			return ErrNotFound
		}
	}
	return err
}
