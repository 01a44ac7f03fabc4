package domain

import "errors"

var (
	// ErrValidation marks input that violates a domain invariant.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup that matched no record.
	ErrNotFound = errors.New("not found")

	// ErrPaymentExists is returned when a payment attempt is created for a
	// (hash, backend) pair whose record is not retryable.
	ErrPaymentExists = errors.New("payment exists already")

	// ErrAlreadyResolved is returned when a status write targets a record
	// that has already reached a terminal state.
	ErrAlreadyResolved = errors.New("payment already resolved")

	// ErrNoAvailableClient is returned when no connected Lightning client
	// exists for a currency.
	ErrNoAvailableClient = errors.New("no available lightning client")
)
