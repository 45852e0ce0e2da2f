package remitlib

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAmount = errors.New("amount must be a positive number of stroops")
	ErrInvalidMemo   = errors.New("invalid memo")
	ErrInvalidFee    = errors.New("fee is below the network minimum")

	// ErrGatewayTimeout is a 504 from the gateway. The request may still be
	// processed after the gateway gave up waiting for it.
	ErrGatewayTimeout = errors.New("gateway timed out")
)

// ConfigError reports a missing or malformed setting.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config: %s is required", e.Field)
	}
	return fmt.Sprintf("config: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CryptoError reports a key that does not decode, e.g. a bad secret seed.
type CryptoError struct {
	Key string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Key, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return "signing failed: " + e.Err.Error()
}

func (e *SigningError) Unwrap() error { return e.Err }

type TransportKind int

const (
	TransportConnection TransportKind = iota
	TransportTimeout
	TransportCanceled
)

func (k TransportKind) String() string {
	switch k {
	case TransportTimeout:
		return "timeout"
	case TransportCanceled:
		return "canceled"
	}
	return "connection"
}

// TransportError means no response was received from the gateway.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind(), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Kind() TransportKind { return transportKind(e.Err) }

// HTTPStatusError is a non-2xx answer to a read request.
type HTTPStatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Status, abbreviate(e.Body))
}

// Transient reports whether waiting may fix the failure.
func (e *HTTPStatusError) Transient() bool { return e.Status >= 500 }

// RetryExhaustedError wraps the last transient failure once the retry budget
// is spent. It is fatal.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// ParseError means the gateway answered but the body is not what the
// contract promises.
type ParseError struct {
	What string
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LedgerRejection is a rejection carrying a result code we know how to act on.
type LedgerRejection struct {
	Status         int
	Code           string
	OperationCodes []string
	Action         string
	// Retryable is true when re-running the whole payment, starting with a
	// fresh sequence number, can succeed.
	Retryable bool
}

func (e *LedgerRejection) Error() string {
	codes := e.Code
	if len(e.OperationCodes) > 0 {
		codes += " [" + strings.Join(e.OperationCodes, ", ") + "]"
	}
	return fmt.Sprintf("ledger rejected transaction: %s (%s)", e.Action, codes)
}

// UnclassifiedRejection is a non-2xx submission answer without a result code
// we recognize. Code holds the verbatim code when the gateway sent one.
type UnclassifiedRejection struct {
	Status         int
	Code           string
	OperationCodes []string
	Body           string
}

func (e *UnclassifiedRejection) Error() string {
	if e.Code != "" {
		msg := fmt.Sprintf("ledger rejected transaction with code %s (status %d)", e.Code, e.Status)
		if len(e.OperationCodes) > 0 {
			msg += ", operations: " + strings.Join(e.OperationCodes, ", ")
		}
		return msg
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, abbreviate(e.Body))
}

// StageError is what a failed payment run returns. Reached is the last state
// the run got to before failing; Err is the originating error.
type StageError struct {
	Reached State
	Step    string
	Err     error
}

func (e *StageError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Retryable reports whether err is a rejection that a fresh run of the whole
// pipeline can fix. It never means "resend the same envelope".
func Retryable(err error) bool {
	var lr *LedgerRejection
	return errors.As(err, &lr) && lr.Retryable
}

// IsNotFound reports whether err is a 404 from the gateway.
func IsNotFound(err error) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && se.Status == 404
}

func isTransient(err error) bool {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	var te *TransportError
	return errors.As(err, &te) && te.Kind() != TransportCanceled
}

func abbreviate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
