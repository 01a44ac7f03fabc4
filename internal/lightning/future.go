package lightning

import "sync"

// PaymentFuture carries the eventual outcome of an already-dispatched
// payment RPC. The race-timeout path hands the future to a background
// tracker instead of discarding the in-flight call, so the loser of the
// race is still observed to completion.
type PaymentFuture struct {
	once sync.Once
	done chan struct{}

	result *PaymentResult
	err    error
}

func NewPaymentFuture() *PaymentFuture {
	return &PaymentFuture{done: make(chan struct{})}
}

// Resolve records the outcome. Only the first call wins.
func (f *PaymentFuture) Resolve(result *PaymentResult, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

// Done is closed once the underlying RPC settled.
func (f *PaymentFuture) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome; only valid after Done is closed.
func (f *PaymentFuture) Result() (*PaymentResult, error) {
	return f.result, f.err
}
