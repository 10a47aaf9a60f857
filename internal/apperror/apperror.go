// Package apperror defines the error taxonomy that crosses the service boundary.
// Stores and security primitives return their own sentinels or wrapped driver
// errors; the auth service maps everything onto one of these kinds before it
// reaches a handler.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindAuthorization
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Error is a classified error. Message is safe to show to clients; Err holds
// the underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "; %s: %s", k, e.Fields[k])
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed or missing input.
func Validation(code, message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Fields: fields}
}

// Conflict reports a duplicate identity.
func Conflict(code, message string, cause error) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Err: cause}
}

// Authentication reports wrong credentials or an unusable OTP.
func Authentication(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

// Authorization reports a missing, expired or malformed bearer token.
func Authorization(code, message string, cause error) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message, Err: cause}
}

// Infrastructure wraps a store, hashing or signing failure. The message is
// generic; cause is kept for server-side logs.
func Infrastructure(message string, cause error) *Error {
	return &Error{Kind: KindInfrastructure, Code: CodeInternalError, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
