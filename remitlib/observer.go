package remitlib

import "time"

// Observer receives the payment counters. Implementations must be safe for
// concurrent use; the pipeline only ever adds to them.
type Observer interface {
	TransactionAttempted()
	TransactionSucceeded()
	TransactionFailed()
	ObserveSubmission(time.Duration)
}

type NopObserver struct{}

func (NopObserver) TransactionAttempted()           {}
func (NopObserver) TransactionSucceeded()           {}
func (NopObserver) TransactionFailed()              {}
func (NopObserver) ObserveSubmission(time.Duration) {}
