package registry

import (
	"errors"
	"fmt"
)

// ErrNotValidated is returned when optimization is requested without a successful validation.
var ErrNotValidated = errors.New("registry: cannot optimize without validation")

// Kind classifies build-time failures.
type Kind int

// Failure kinds.
const (
	KindMalformed Kind = iota
	KindNotSubscriber
	KindMissingMethod
	KindDirectRegistration
	KindPositionalClosure
	KindUnresolvedType
)

func (k Kind) String() string {
	switch k {
	case KindNotSubscriber:
		return "not-subscriber"
	case KindMissingMethod:
		return "missing-method"
	case KindDirectRegistration:
		return "direct-registration"
	case KindPositionalClosure:
		return "positional-closure"
	case KindUnresolvedType:
		return "unresolved-type"
	default:
		return "malformed"
	}
}

// ValidationError names the offending service, type, event or method.
type ValidationError struct {
	Kind    Kind
	Service string
	Type    string
	Event   string
	Method  string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches ValidationErrors of the same kind, so callers can test against
// the Kind sentinels below with errors.Is.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels usable with errors.Is.
var (
	ErrMalformed          = &ValidationError{Kind: KindMalformed}
	ErrNotSubscriber      = &ValidationError{Kind: KindNotSubscriber}
	ErrMissingMethod      = &ValidationError{Kind: KindMissingMethod}
	ErrDirectRegistration = &ValidationError{Kind: KindDirectRegistration}
	ErrPositionalClosure  = &ValidationError{Kind: KindPositionalClosure}
	ErrUnresolvedType     = &ValidationError{Kind: KindUnresolvedType}
)

func missingMethod(service, typ, event, method string) *ValidationError {
	return &ValidationError{
		Kind:    KindMissingMethod,
		Service: service,
		Type:    typ,
		Event:   event,
		Method:  method,
		Message: fmt.Sprintf("Event listener %s::%s() is not implemented.", typ, method),
	}
}
