package store

import "errors"

// Class distinguishes retryable adapter failures from ones that should fail
// fast, per spec §4.B ("all adapters return typed errors classified as
// transient or permanent").
type Class string

const (
	ClassTransient Class = "transient"
	ClassPermanent Class = "permanent"
)

// AdapterError wraps an underlying error with its retry classification.
type AdapterError struct {
	Class Class
	Op    string
	Err   error
}

func (e *AdapterError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Class: ClassTransient, Op: op, Err: err}
}

func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Class: ClassPermanent, Op: op, Err: err}
}

// IsTransient reports whether err (or a wrapped AdapterError within it) is
// classified as retryable.
func IsTransient(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Class == ClassTransient
	}
	return false
}

var ErrNotFound = errors.New("wallpaper not found")
