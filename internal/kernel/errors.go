package kernel

import "errors"

// ErrorKind is the closed set of error categories the engine ever produces.
type ErrorKind string

const (
	ErrKindInvalidQuote        ErrorKind = "invalid_quote"
	ErrKindUnknownSymbol       ErrorKind = "unknown_symbol"
	ErrKindTransientNetwork    ErrorKind = "transient_network"
	ErrKindRejected            ErrorKind = "rejected"
	ErrKindInsufficientBalance ErrorKind = "insufficient_balance"
	ErrKindCancelled           ErrorKind = "cancelled"
	ErrKindFatal               ErrorKind = "fatal"
)

// KindError wraps an underlying error with one of the closed ErrorKind values
// so callers can classify failures without string matching.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() error { return e.Err }

func NewKindError(kind ErrorKind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

// ErrInvalidQuote is returned by NetEdge when any input quote is non-positive.
var ErrInvalidQuote = NewKindError(ErrKindInvalidQuote, errors.New("quote must be strictly positive"))

// KindOf extracts the ErrorKind from err, or "" if err does not carry one.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}
