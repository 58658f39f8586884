package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Validation
	ErrInvalidAmount      = errors.New("xp amount out of range")
	ErrNoFreezesAvailable = errors.New("no streak freezes available")
	ErrUnknownChallenge   = errors.New("challenge not found")
	ErrEmptyAnswers       = errors.New("challenge submission has no answers")

	// Gateway
	ErrGatewayUnavailable = errors.New("stats gateway unavailable")
	ErrUnauthorized       = errors.New("session is not authorized")

	// Reference server
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// ErrorClass is the coarse failure taxonomy surfaced to callers.
type ErrorClass string

const (
	ClassNone           ErrorClass = ""
	ClassValidation     ErrorClass = "validation_rejection"
	ClassTransient      ErrorClass = "transient_network_failure"
	ClassAuthentication ErrorClass = "authentication_failure"
)

// Classify maps err onto the taxonomy. Unrecognized errors are transient.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrNoFreezesAvailable),
		errors.Is(err, ErrUnknownChallenge),
		errors.Is(err, ErrEmptyAnswers):
		return ClassValidation
	case errors.Is(err, ErrUnauthorized):
		return ClassAuthentication
	}
	return ClassTransient
}
