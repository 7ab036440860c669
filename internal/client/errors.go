package client

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why the provider did not return an image.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindRejected      ErrorKind = "rejected"
	KindTransport     ErrorKind = "transport"
	KindMalformed     ErrorKind = "malformed"
)

// ProviderError is the structured failure of one Transform call.
type ProviderError struct {
	Kind    ErrorKind
	Message string
	// Code is the provider-assigned code, zero when none was given.
	Code int
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError extracts a *ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsKind reports whether err is a ProviderError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Kind == kind
}

func configurationError(msg string) *ProviderError {
	return &ProviderError{Kind: KindConfiguration, Message: msg}
}

func rejectedError(msg string, code int) *ProviderError {
	return &ProviderError{Kind: KindRejected, Message: msg, Code: code}
}

func transportError(msg string, code int, err error) *ProviderError {
	return &ProviderError{Kind: KindTransport, Message: msg, Code: code, Err: err}
}

func malformedError(msg string, err error) *ProviderError {
	return &ProviderError{Kind: KindMalformed, Message: msg, Err: err}
}
