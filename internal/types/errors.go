package types

import "errors"

// Error categories shared across packages. Callers wrap them with %w and the
// CLI maps them to exit codes with errors.Is.
var (
	// ErrPrecondition covers missing config or credentials, empty input,
	// bad index ranges and wrong run states. Reported before side effects.
	ErrPrecondition = errors.New("precondition failed")

	// ErrValidation covers candidates or generator output that cannot be
	// accepted as-is.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a run or transcript does not exist
	ErrNotFound = errors.New("not found")

	// ErrApprovalRequired is returned when apply is called without the
	// approval literal
	ErrApprovalRequired = errors.New("approval required")

	// ErrConsentRequired is returned when remote generation is requested
	// without the explicit opt-in flag
	ErrConsentRequired = errors.New("remote generation requires explicit consent")
)
