package model

import "errors"

// Error taxonomy shared by every layer. Wrap with fmt.Errorf("%w: ...") and
// match with errors.Is.
var (
	// ErrNotFound is returned when a referenced exam, session or participation is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when a record's state forbids the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrExternalService is returned when the proof service or mail transport fails.
	ErrExternalService = errors.New("external service failure")
	// ErrValidation is returned for malformed input such as a missing payout address.
	ErrValidation = errors.New("validation failure")
)
