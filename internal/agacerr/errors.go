// Package agacerr defines the error taxonomy shared by every AGAC
// component: a single typed error carrying a machine-tractable kind tag
// plus enough context (method, xpath, cause) to act on without parsing
// strings.
package agacerr

import "fmt"

// Kind tags a failure by what kind of thing went wrong, not by which
// Go type raised it.
type Kind string

const (
	NotInitialized      Kind = "not_initialized"
	CDPError            Kind = "cdp_error"
	Timeout             Kind = "timeout"
	ElementNotFound     Kind = "element_not_found"
	ActionFailed        Kind = "action_failed"
	LLMResponseInvalid  Kind = "llm_response_invalid"
	SchemaValidationErr Kind = "schema_validation_error"
	Unsupported         Kind = "unsupported"
)

// Error is the single error type used across the core. Construct with
// the New* helpers below rather than a literal, so Kind and Message stay
// in sync.
type Error struct {
	Kind    Kind
	Message string
	Method  string
	XPath   string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

func NewNotInitialized(msg string) *Error { return newErr(NotInitialized, msg, nil) }

func NewCDPError(method string, cause error) *Error {
	e := newErr(CDPError, fmt.Sprintf("CDP call %s failed", method), cause)
	e.Method = method
	return e
}

func NewTimeout(msg string) *Error { return newErr(Timeout, msg, nil) }

func NewElementNotFound(msg string) *Error { return newErr(ElementNotFound, msg, nil) }

func NewActionFailed(method, xpath string, cause error) *Error {
	e := newErr(ActionFailed, fmt.Sprintf("%s: action failed", method), cause)
	e.Method = method
	e.XPath = xpath
	return e
}

func NewLLMResponseInvalid(msg string, cause error) *Error {
	return newErr(LLMResponseInvalid, msg, cause)
}

func NewSchemaValidationError(msg string, cause error) *Error {
	return newErr(SchemaValidationErr, msg, cause)
}

func NewUnsupported(method string) *Error {
	e := newErr(Unsupported, fmt.Sprintf("method %q is not in the supported set", method), nil)
	e.Method = method
	return e
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
