package spidev

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"
)

// Kind is the coarse class of a spidev failure.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate in this package.
	KindUnknown Kind = iota
	// KindType means the argument had the wrong shape, such as an empty payload or a non-integer.
	KindType
	// KindValue means the argument was well formed but outside its allowed range.
	KindValue
	// KindOverflow means a payload or segment count exceeded what one call can carry.
	KindOverflow
	// KindBounds means a read window did not fit inside the destination buffer.
	KindBounds
	// KindIO means the device was not open or the kernel rejected a call.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindValue:
		return "value"
	case KindOverflow:
		return "overflow"
	case KindBounds:
		return "bounds"
	case KindIO:
		return "io"
	case KindUnknown:
	}
	return "unknown"
}

// ErrNotOpen is matched by every NotOpenError through errors.Is.
var ErrNotOpen = errors.New("spidev device is not open")

// ValidationError is returned when an argument is rejected before reaching the driver.
type ValidationError struct {
	Kind  Kind
	Field string
	Value interface{}
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newTypeError(field string, value interface{}, err error) error {
	return &ValidationError{Kind: KindType, Field: field, Value: value, Err: err}
}

func newValueError(field string, value interface{}, format string, args ...interface{}) error {
	return &ValidationError{Kind: KindValue, Field: field, Value: value, Err: errors.Errorf(format, args...)}
}

// SizeError is returned for empty payloads (KindType) and for payloads or segment lists that are
// too large for a single call (KindOverflow).
type SizeError struct {
	Kind Kind
	What string
	Size int
	Max  int
}

func (e *SizeError) Error() string {
	if e.Size == 0 {
		return fmt.Sprintf("%s must not be empty", e.What)
	}
	return fmt.Sprintf("%s of %d exceeds the maximum of %d", e.What, e.Size, e.Max)
}

func errEmpty(what string) error {
	return &SizeError{Kind: KindType, What: what}
}

func errTooLarge(what string, size, limit int) error {
	return &SizeError{Kind: KindOverflow, What: what, Size: size, Max: limit}
}

// BoundsError is returned when a read window of Length bytes at Offset does not fit in a buffer
// of BufLen bytes.
type BoundsError struct {
	Length int
	Offset int
	BufLen int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("window of %d bytes at offset %d is outside a buffer of %d bytes",
		e.Length, e.Offset, e.BufLen)
}

// NotOpenError is returned by operations on a device that was never opened or is already closed.
type NotOpenError struct {
	Op    string
	State State
}

func (e *NotOpenError) Error() string {
	return fmt.Sprintf("%s: spidev device is %s", e.Op, e.State)
}

// Is reports ErrNotOpen as a match.
func (e *NotOpenError) Is(target error) bool {
	return target == ErrNotOpen
}

// DriverError is a failed system call on the device node.
type DriverError struct {
	Op   string
	Path string
	Err  error
}

func (e *DriverError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("spidev %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("spidev %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// Errno returns the OS error number behind the failure, or 0 when there is none.
func (e *DriverError) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

func newDriverError(op, path string, err error) error {
	var already *DriverError
	if errors.As(err, &already) {
		return err
	}
	return &DriverError{Op: op, Path: path, Err: err}
}

// Classify maps err, or anything it wraps, onto the fixed set of kinds.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Kind
	}
	var sizeErr *SizeError
	if errors.As(err, &sizeErr) {
		return sizeErr.Kind
	}
	var boundsErr *BoundsError
	if errors.As(err, &boundsErr) {
		return KindBounds
	}
	var notOpenErr *NotOpenError
	if errors.As(err, &notOpenErr) {
		return KindIO
	}
	var driverErr *DriverError
	if errors.As(err, &driverErr) {
		return KindIO
	}
	return KindUnknown
}
