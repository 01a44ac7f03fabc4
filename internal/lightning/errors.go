package lightning

import "strings"

// IsConnectionDropped matches transport errors raised while a payment may
// still be in flight on the backend. Such errors say nothing about the
// payment's real outcome, so they must never be recorded as failures.
func IsConnectionDropped(message string) bool {
	return strings.Contains(message, "Connection dropped") ||
		strings.Contains(message, "connection refused") ||
		strings.Contains(message, "broken pipe") ||
		strings.Contains(message, "transport is closing")
}
