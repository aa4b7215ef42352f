package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is the root of every business-rule rejection.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden is returned when the acting user may not perform an operation.
	ErrForbidden = errors.New("operation not permitted")
	// ErrConcurrentUpdate is returned when the document kept changing between
	// read and write for every allowed attempt.
	ErrConcurrentUpdate = errors.New("document changed concurrently")
)

// GuardCode identifies which consistency guard rejected a mutation.
type GuardCode string

// Guard codes surfaced to callers.
const (
	CodeDuplicateNight    GuardCode = "duplicate_night"
	CodeDuplicateBedClaim GuardCode = "duplicate_bed_claim"
	CodeBedFull           GuardCode = "bed_full"
	CodeRideAlreadyJoined GuardCode = "ride_already_joined"
	CodeRideFull          GuardCode = "ride_full"
	CodeInvalidInput      GuardCode = "invalid_input"
)

// GuardError is a validation failure raised before a write is attempted.
type GuardError struct {
	Code    GuardCode
	Message string
}

func (e *GuardError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is(err, ErrValidation) match every guard rejection.
func (e *GuardError) Unwrap() error {
	return ErrValidation
}

// NewGuardError builds a GuardError with a formatted message.
func NewGuardError(code GuardCode, format string, args ...any) *GuardError {
	return &GuardError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// GuardCodeOf extracts the guard code from err, if any.
func GuardCodeOf(err error) (GuardCode, bool) {
	var ge *GuardError
	if errors.As(err, &ge) {
		return ge.Code, true
	}
	return "", false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}

// Unwrap classifies rule violations as validation failures.
func (e RuleViolationError) Unwrap() error {
	return ErrValidation
}

// ErrNotFound is returned when reference validation fails within transactional
// helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Unwrap classifies dangling references as validation failures.
func (e ErrNotFound) Unwrap() error {
	return ErrValidation
}
