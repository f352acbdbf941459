package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedPlatform indicates a platform outside the supported set.
	ErrUnsupportedPlatform = errors.New("credentials: unsupported platform")
	// ErrInvalidState indicates the authorize state is missing or mismatched.
	ErrInvalidState = errors.New("credentials: invalid authorize state")
	// ErrWorkspaceNotFound signals an unknown workspace.
	ErrWorkspaceNotFound = errors.New("credentials: workspace not found")
	// ErrVersionConflict signals a lost optimistic write in the store.
	ErrVersionConflict = errors.New("credentials: version conflict")
)

// ErrorKind classifies credential failures into the caller-facing vocabulary.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindNotConnected        ErrorKind = "not_connected"
	KindExpiredRefreshToken ErrorKind = "expired_refresh_token"
	KindRevokedByUser       ErrorKind = "revoked_by_user"
	KindRateLimited         ErrorKind = "rate_limited"
	KindTransient           ErrorKind = "transient"
	KindUnavailable         ErrorKind = "unavailable"
	KindMalformed           ErrorKind = "malformed"
	KindPkceMismatch        ErrorKind = "pkce_mismatch"
)

// RefreshError is the only error shape surfaced past the facade. Raw
// transport causes stay wrapped inside for logging.
type RefreshError struct {
	Kind     ErrorKind
	Platform Platform
	Message  string
	// RetryAfter carries the platform's advertised delay for rate limits.
	RetryAfter time.Duration
	Err        error
}

func (e *RefreshError) Error() string {
	if e.Platform != "" {
		return fmt.Sprintf("%s: %s: %s", e.Platform, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *RefreshError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// Terminal reports whether the credential requires re-authorization.
func (e *RefreshError) Terminal() bool {
	return e.Kind == KindExpiredRefreshToken || e.Kind == KindRevokedByUser
}

// NewRefreshError builds a classified error without an underlying cause.
func NewRefreshError(kind ErrorKind, platform Platform, message string) *RefreshError {
	return &RefreshError{Kind: kind, Platform: platform, Message: message}
}

// WrapRefreshError attaches an underlying cause for logging.
func WrapRefreshError(kind ErrorKind, platform Platform, message string, err error) *RefreshError {
	return &RefreshError{Kind: kind, Platform: platform, Message: message, Err: err}
}

// AsRefreshError coerces err into a RefreshError, defaulting unknown
// causes to Transient so no raw error leaks past the coordinator.
func AsRefreshError(err error, platform Platform) *RefreshError {
	var rerr *RefreshError
	if errors.As(err, &rerr) {
		return rerr
	}
	return WrapRefreshError(KindTransient, platform, "unclassified failure", err)
}

// KindOf extracts the error kind, or empty when err is not a RefreshError.
func KindOf(err error) ErrorKind {
	var rerr *RefreshError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}
