package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a session operation failed.
type ErrorKind string

const (
	ErrorFileTooLarge       ErrorKind = "FILE_TOO_LARGE"
	ErrorInvalidType        ErrorKind = "INVALID_TYPE"
	ErrorNoImageSelected    ErrorKind = "NO_IMAGE_SELECTED"
	ErrorServiceUnreachable ErrorKind = "SERVICE_UNREACHABLE"
	ErrorTimeout            ErrorKind = "TIMEOUT"
	ErrorServiceError       ErrorKind = "SERVICE_ERROR"
	ErrorMalformedResponse  ErrorKind = "MALFORMED_RESPONSE"
	ErrorAnalysisInProgress ErrorKind = "ANALYSIS_IN_PROGRESS"
)

// Sentinels for errors.Is matching against an *AnalysisError of the same kind.
var (
	ErrFileTooLarge       = &AnalysisError{Kind: ErrorFileTooLarge, Message: "file is too large: maximum size is 15MB"}
	ErrInvalidType        = &AnalysisError{Kind: ErrorInvalidType, Message: "please select a valid image (JPG, PNG, etc.)"}
	ErrNoImageSelected    = &AnalysisError{Kind: ErrorNoImageSelected, Message: "please select an image first"}
	ErrServiceUnreachable = &AnalysisError{Kind: ErrorServiceUnreachable, Message: "analysis service is unreachable"}
	ErrTimeout            = &AnalysisError{Kind: ErrorTimeout, Message: "analysis timed out"}
	ErrServiceError       = &AnalysisError{Kind: ErrorServiceError, Message: "analysis service returned an error"}
	ErrMalformedResponse  = &AnalysisError{Kind: ErrorMalformedResponse, Message: "analysis service returned a malformed response"}
	ErrAnalysisInProgress = &AnalysisError{Kind: ErrorAnalysisInProgress, Message: "an analysis is already running"}
)

// AnalysisError is the single error type surfaced to the session error slot.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	return e.Message
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *AnalysisError of the same kind.
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewAnalysisError builds an error of kind with a human readable message.
func NewAnalysisError(kind ErrorKind, message string, cause error) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: message, Err: cause}
}

// FileTooLargeError reports the configured size cap in the message.
func FileTooLargeError(maxBytes int64) *AnalysisError {
	return &AnalysisError{
		Kind:    ErrorFileTooLarge,
		Message: fmt.Sprintf("file is too large: maximum size is %dMB", maxBytes/(1024*1024)),
	}
}

// ServiceErrorf builds a ServiceError carrying the server-provided message.
func ServiceErrorf(format string, args ...interface{}) *AnalysisError {
	return &AnalysisError{Kind: ErrorServiceError, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not an *AnalysisError.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
