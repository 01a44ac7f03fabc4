package lnd

import (
	"strings"

	"github.com/lightningnetwork/lnd/lnrpc"
)

// PaymentFailureError carries lnd's failure reason for a settled-failed
// payment. The formatted message is what gets persisted and surfaced.
type PaymentFailureError struct {
	Reason lnrpc.PaymentFailureReason
}

func (e *PaymentFailureError) Error() string {
	return FormatPaymentFailureReason(e.Reason)
}

func FormatPaymentFailureReason(reason lnrpc.PaymentFailureReason) string {
	switch reason {
	case lnrpc.PaymentFailureReason_FAILURE_REASON_TIMEOUT:
		return "timeout"
	case lnrpc.PaymentFailureReason_FAILURE_REASON_NO_ROUTE:
		return "no route"
	case lnrpc.PaymentFailureReason_FAILURE_REASON_INSUFFICIENT_BALANCE:
		return "insufficient balance"
	case lnrpc.PaymentFailureReason_FAILURE_REASON_INCORRECT_PAYMENT_DETAILS:
		return "incorrect payment details"
	default:
		return reason.String()
	}
}

// IsPermanentError reports whether a failed lnd payment can never succeed
// by retrying: the receiver rejected the details or the invoice expired.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	if failure, ok := err.(*PaymentFailureError); ok {
		return failure.Reason == lnrpc.PaymentFailureReason_FAILURE_REASON_INCORRECT_PAYMENT_DETAILS
	}

	message := err.Error()
	return strings.Contains(message, FormatPaymentFailureReason(lnrpc.PaymentFailureReason_FAILURE_REASON_INCORRECT_PAYMENT_DETAILS)) ||
		strings.Contains(message, "invoice expired")
}
