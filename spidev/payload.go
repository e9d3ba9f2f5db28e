package spidev

import (
	"math"

	"github.com/pkg/errors"
)

// A Payload is something that can be clocked out: Values, ReadOnly or Mutable.
type Payload interface {
	payloadBytes() ([]byte, error)
}

// Values is a sequence of byte values held as ints. Every element must be in 0..255; anything
// else is rejected before the driver is called.
type Values []int

func (v Values) payloadBytes() ([]byte, error) {
	out := make([]byte, len(v))
	for i, val := range v {
		if val < 0 || val > math.MaxUint8 {
			return nil, newTypeError("payload element", val, errors.Errorf("element %d is not a byte value", i))
		}
		out[i] = byte(val)
	}
	return out, nil
}

func toValues(b []byte) []int {
	out := make([]int, len(b))
	for i, c := range b {
		out[i] = int(c)
	}
	return out
}

// Buffer is a byte payload whose variant, ReadOnly or Mutable, decides where received bytes go.
type Buffer interface {
	Payload
	// Bytes returns the underlying slice without copying.
	Bytes() []byte
	inPlace() bool
}

// ReadOnly is a buffer that is only ever read. Transfers return received bytes in a new slice.
type ReadOnly []byte

// Bytes returns the buffer.
func (b ReadOnly) Bytes() []byte { return b }

func (b ReadOnly) inPlace() bool { return false }

func (b ReadOnly) payloadBytes() ([]byte, error) { return b, nil }

// Mutable is a buffer that transfers overwrite in place with the received bytes.
type Mutable []byte

// Bytes returns the buffer.
func (b Mutable) Bytes() []byte { return b }

func (b Mutable) inPlace() bool { return true }

func (b Mutable) payloadBytes() ([]byte, error) { return b, nil }
