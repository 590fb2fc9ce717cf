package contract

import (
	"errors"
	"fmt"
)

var (
	// ErrModelInvoke covers oracle transport failures: timeouts, rate
	// limits, broken connections. Users see a short apology; the detail
	// goes to the log.
	ErrModelInvoke = errors.New("model invoke failed")

	// ErrSchemaViolation means the oracle answered but the structured
	// output could not be used. Synthesis failures wrap this; callers
	// must not fall back to an unvalidated guess.
	ErrSchemaViolation = errors.New("model response violates schema")

	// ErrValidationRejected marks a query plan the validator refused.
	// The verdict reason is user-visible; the rejected query is not.
	ErrValidationRejected = errors.New("query validation rejected")

	// ErrExecution marks a data-store failure while running a validated
	// query.
	ErrExecution = errors.New("query execution failed")

	ErrValidation = errors.New("validation failed")
)

// APIError is the platform's error response for an action call. Message
// is surfaced to the user essentially verbatim, but briefly.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("action api status=%d: %s", e.Status, e.Message)
}
