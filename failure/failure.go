package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the CLI can report it and pick an exit code.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindState
	KindValidation
	KindChain
	KindDecode
	KindVerify
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration error"
	case KindState:
		return "persisted state error"
	case KindValidation:
		return "validation error"
	case KindChain:
		return "chain error"
	case KindDecode:
		return "decoding anomaly"
	case KindVerify:
		return "verification failure"
	default:
		return "error"
	}
}

// ExitCode returns the process exit status used for this kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 2
	case KindState:
		return 3
	case KindValidation:
		return 4
	case KindChain:
		return 5
	case KindDecode:
		return 6
	case KindVerify:
		return 7
	default:
		return 1
	}
}

// Error is a classified failure from one workflow step.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and the operation that failed.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Config(op string, err error) error     { return New(KindConfig, op, err) }
func State(op string, err error) error      { return New(KindState, op, err) }
func Validation(op string, err error) error { return New(KindValidation, op, err) }
func Chain(op string, err error) error      { return New(KindChain, op, err) }
func Decode(op string, err error) error     { return New(KindDecode, op, err) }
func Verify(op string, err error) error     { return New(KindVerify, op, err) }

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

type sentError struct{ error }

func (e *sentError) Unwrap() error { return e.error }

// Sent marks err as happening after a transaction was broadcast. Such
// failures are never retried since the transaction may still land.
func Sent(err error) error {
	if err == nil {
		return nil
	}
	return &sentError{err}
}

// WasSent reports whether err was marked with Sent.
func WasSent(err error) bool {
	var s *sentError
	return errors.As(err, &s)
}

// Retryable reports whether repeating the failed step is safe: a chain or
// unclassified error raised before anything was broadcast.
func Retryable(err error) bool {
	if err == nil || WasSent(err) {
		return false
	}
	switch KindOf(err) {
	case KindChain, KindUnknown:
		return true
	}
	return false
}
