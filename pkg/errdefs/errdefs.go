package errdefs

import (
	"errors"
	"fmt"
)

// NotFoundError reports an absent referenced entity
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// UnauthorizedError reports a cross-organization access attempt
type UnauthorizedError struct {
	Resource string
	ID       string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("not authorized to access %s %s", e.Resource, e.ID)
}

// IsUnauthorized checks if an error is an authorization error
func IsUnauthorized(err error) bool {
	var unauthorized *UnauthorizedError
	return errors.As(err, &unauthorized)
}

// ValidationError reports malformed input, rejected before any side effect
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// TransactionFailedError reports an aborted relational transaction.
// No partial relational mutation survives, but object-storage work outside
// the transaction may already have completed.
type TransactionFailedError struct {
	Op  string
	Err error
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction failed during %s: %v", e.Op, e.Err)
}

func (e *TransactionFailedError) Unwrap() error {
	return e.Err
}

// IsTransactionFailed checks if an error is a transaction failure
func IsTransactionFailed(err error) bool {
	var txErr *TransactionFailedError
	return errors.As(err, &txErr)
}

// TimeoutError reports an operation exceeding its time bound. The bounded
// transaction rolls back automatically, so no partial mutation survives.
type TimeoutError struct {
	Op    string
	Limit string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded %s", e.Op, e.Limit)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}
