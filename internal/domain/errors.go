package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every failure an acquisition can end with
type ErrorKind string

const (
	KindInvalidLocator ErrorKind = "invalid_locator"
	KindTooLarge       ErrorKind = "too_large"
	KindRemoteRejected ErrorKind = "remote_rejected"
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindEngineFailure  ErrorKind = "engine_failure"
	KindSwarmError     ErrorKind = "swarm_error"
	KindNotFound       ErrorKind = "not_found"
	KindCancelled      ErrorKind = "cancelled"
	KindAlreadyActive  ErrorKind = "already_active"
	KindCoolingDown    ErrorKind = "cooling_down"
	KindInternal       ErrorKind = "internal"
)

// EngineSubkind refines KindEngineFailure
type EngineSubkind string

const (
	EngineAccessDenied   EngineSubkind = "access_denied"
	EngineContentRemoved EngineSubkind = "content_removed"
	EngineUnknown        EngineSubkind = "unknown"
)

// Kind sentinels for errors.Is comparisons.
var (
	ErrInvalidLocator = &AcquisitionError{Kind: KindInvalidLocator}
	ErrTooLarge       = &AcquisitionError{Kind: KindTooLarge}
	ErrRemoteRejected = &AcquisitionError{Kind: KindRemoteRejected}
	ErrNetwork        = &AcquisitionError{Kind: KindNetwork}
	ErrTimeout        = &AcquisitionError{Kind: KindTimeout}
	ErrEngineFailure  = &AcquisitionError{Kind: KindEngineFailure}
	ErrSwarm          = &AcquisitionError{Kind: KindSwarmError}
	ErrNotFound       = &AcquisitionError{Kind: KindNotFound}
	ErrCancelled      = &AcquisitionError{Kind: KindCancelled}
	ErrAlreadyActive  = &AcquisitionError{Kind: KindAlreadyActive}
	ErrCoolingDown    = &AcquisitionError{Kind: KindCoolingDown}
)

// AcquisitionError is the single error type returned across the acquisition core
type AcquisitionError struct {
	Kind    ErrorKind     `json:"kind"`
	Subkind EngineSubkind `json:"subkind,omitempty"`
	Message string        `json:"message"`
	Locator string        `json:"locator,omitempty"`
	Phase   string        `json:"phase,omitempty"`
	// StatusCode is set for KindRemoteRejected.
	StatusCode int   `json:"status_code,omitempty"`
	Err        error `json:"-"`
}

// NewError creates an error of the given kind
func NewError(kind ErrorKind, format string, args ...interface{}) *AcquisitionError {
	return &AcquisitionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps a cause under the given kind
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *AcquisitionError {
	return &AcquisitionError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewEngineError creates an engine failure with a subkind
func NewEngineError(subkind EngineSubkind, err error, message string) *AcquisitionError {
	return &AcquisitionError{Kind: KindEngineFailure, Subkind: subkind, Message: message, Err: err}
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Subkind != "" {
		b.WriteString("/")
		b.WriteString(string(e.Subkind))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Is matches any AcquisitionError of the same kind, and the same subkind when the
// target sets one.
func (e *AcquisitionError) Is(target error) bool {
	t, ok := target.(*AcquisitionError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Subkind == "" || t.Subkind == e.Subkind
}

// WithContext records the locator and phase if not already set
func (e *AcquisitionError) WithContext(locator, phase string) *AcquisitionError {
	if e.Locator == "" {
		e.Locator = locator
	}
	if e.Phase == "" {
		e.Phase = phase
	}
	return e
}

// UserMessage returns a message suitable for direct display
func (e *AcquisitionError) UserMessage() string {
	switch e.Kind {
	case KindInvalidLocator:
		return "That doesn't look like a link I can download."
	case KindTooLarge:
		return "The file is too large. " + e.Message
	case KindRemoteRejected:
		return fmt.Sprintf("The server refused the request (HTTP %d).", e.StatusCode)
	case KindNetwork:
		return "Network error while downloading. Please try again."
	case KindTimeout:
		return "The download timed out. " + e.Message
	case KindEngineFailure:
		switch e.Subkind {
		case EngineAccessDenied:
			return "This video is private or not available in this region."
		case EngineContentRemoved:
			return "This video has been removed or does not exist."
		}
		return "Could not extract the video from this page."
	case KindSwarmError:
		return "The torrent download failed. " + e.Message
	case KindNotFound:
		return "The download finished but the file was not found."
	case KindCancelled:
		return "Download cancelled."
	case KindAlreadyActive:
		return "You already have a download in progress. Use cancel to stop it."
	case KindCoolingDown:
		return "Please wait before starting another download. " + e.Message
	}
	return "Unexpected error: " + e.Message
}

// KindOf returns the kind of err. Errors outside the taxonomy are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// AsAcquisitionError normalizes err into the taxonomy, wrapping foreign errors as KindInternal
func AsAcquisitionError(err error) *AcquisitionError {
	if err == nil {
		return nil
	}
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae
	}
	return WrapError(KindInternal, err, "unexpected failure")
}
