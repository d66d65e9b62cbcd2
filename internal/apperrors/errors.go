// Package apperrors holds the error kinds shared by the services and the
// REST layer. Services wrap one of these sentinels with fmt.Errorf and %w,
// handlers classify with errors.Is.
package apperrors

import "errors"

var (
	// ErrValidation means the input is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrConflict means a unique field is already taken.
	ErrConflict = errors.New("conflict")
	// ErrNotFound means no matching record exists.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials means the password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized means a session token is missing, malformed or forged.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream means the model service answered with a failure.
	ErrUpstream = errors.New("upstream error")
	// ErrTransport means the model service could not be reached.
	ErrTransport = errors.New("transport error")
)

// PublicError carries a message that is safe to show to the client while
// still matching its kind through errors.Is.
type PublicError struct {
	Kind    error
	Message string
}

func (e *PublicError) Error() string {
	return e.Message
}

func (e *PublicError) Unwrap() error {
	return e.Kind
}

// New returns a PublicError of the given kind.
func New(kind error, message string) error {
	return &PublicError{Kind: kind, Message: message}
}

// Message returns the client-facing message of err, or fallback if err
// carries none.
func Message(err error, fallback string) string {
	var pe *PublicError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return fallback
}
