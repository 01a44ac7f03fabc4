package cln

import (
	"errors"
	"strings"
)

// ErrPaymentPending is raised when a pay attempt for the hash is still in
// flight on the node. It must never be recorded as a payment failure.
var ErrPaymentPending = errors.New("payment already pending")

// IsIncorrectPaymentDetails matches the wire error the receiver raises when
// it rejects the payment details. The message surfaces either as the raw
// wire name or lower-cased, depending on which CLN subsystem reports it.
func IsIncorrectPaymentDetails(message string) bool {
	return strings.Contains(message, "WIRE_INCORRECT_OR_UNKNOWN_PAYMENT_DETAILS") ||
		strings.Contains(message, "incorrect_or_unknown_payment_details")
}

func IsInvoiceExpired(message string) bool {
	return strings.Contains(message, "InvoiceExpired")
}

// IsPermanentError reports whether the failure can never resolve by
// retrying: the receiver rejected the details or the invoice expired.
func IsPermanentError(message string) bool {
	return IsIncorrectPaymentDetails(message) || IsInvoiceExpired(message)
}

func IsPaymentPending(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPaymentPending) ||
		strings.Contains(err.Error(), ErrPaymentPending.Error())
}
