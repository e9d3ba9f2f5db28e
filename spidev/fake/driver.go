// Package fake implements an in-memory spidev driver whose data out line is wired back to its
// data in line, so every full-duplex transfer receives exactly what it sent.
package fake

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/spidev/spidev"
)

// Operation names accepted by FailNext and Calls.
const (
	OpMode           = "mode"
	OpSetMode        = "set_mode"
	OpBitsPerWord    = "bits_per_word"
	OpSetBitsPerWord = "set_bits_per_word"
	OpMaxSpeedHz     = "max_speed_hz"
	OpSetMaxSpeedHz  = "set_max_speed_hz"
	OpMessage        = "message"
	OpRead           = "read"
	OpWrite          = "write"
	OpClose          = "close"
)

// DefaultMaxSpeedHz is the clock speed a new Driver reports.
const DefaultMaxSpeedHz = 500000

// Driver is a loop-wired spidev.Driver. It is safe for concurrent use.
type Driver struct {
	mu sync.Mutex

	path        string
	mode        uint8
	bitsPerWord uint8
	maxSpeedHz  uint32
	modeMask    uint8
	maxBits     uint8

	calls    map[string]int
	failures map[string]error
	messages [][]spidev.Transfer
	written  []byte
	readData []byte
	closed   bool
}

// NewDriver returns a driver in mode 0 with 8 bit words at DefaultMaxSpeedHz.
func NewDriver() *Driver {
	return &Driver{
		bitsPerWord: 8,
		maxSpeedHz:  DefaultMaxSpeedHz,
		modeMask:    0xff,
		maxBits:     32,
		calls:       map[string]int{},
		failures:    map[string]error{},
	}
}

// Opener returns an opener that hands out this driver for any path.
func (d *Driver) Opener() spidev.Opener {
	return func(path string) (spidev.Driver, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			return nil, errors.New("fake driver already closed")
		}
		d.path = path
		return d, nil
	}
}

// Path is the device path the driver was opened with.
func (d *Driver) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// SetModeMask limits which mode bits stick when set, like a controller that ignores some flags.
func (d *Driver) SetModeMask(mask uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modeMask = mask
}

// SetMaxBitsPerWord clamps word sizes the driver accepts to bits.
func (d *Driver) SetMaxBitsPerWord(bits uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxBits = bits
}

// QueueRead appends bytes that half-duplex reads return before falling back to zeros.
func (d *Driver) QueueRead(data ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readData = append(d.readData, data...)
}

// FailNext makes the next call of op return err.
func (d *Driver) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

// Calls returns how many times op was called.
func (d *Driver) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// TotalCalls returns how many driver calls were made of any kind.
func (d *Driver) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.calls {
		total += n
	}
	return total
}

// Messages returns copies of every transfer list passed to Message.
func (d *Driver) Messages() [][]spidev.Transfer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]spidev.Transfer(nil), d.messages...)
}

// Written returns everything passed to Write.
func (d *Driver) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...)
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// enter records a call of op and returns its queued failure, if any. d.mu must be held.
func (d *Driver) enter(op string) error {
	d.calls[op]++
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	if d.closed {
		return errors.Errorf("%s on closed fake driver", op)
	}
	return nil
}

// Mode returns the current mode.
func (d *Driver) Mode() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpMode); err != nil {
		return 0, err
	}
	return d.mode, nil
}

// SetMode stores the bits of mode allowed by the mode mask.
func (d *Driver) SetMode(mode uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetMode); err != nil {
		return err
	}
	d.mode = mode & d.modeMask
	return nil
}

// BitsPerWord returns the word size.
func (d *Driver) BitsPerWord() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpBitsPerWord); err != nil {
		return 0, err
	}
	return d.bitsPerWord, nil
}

// SetBitsPerWord stores bits, clamped to the configured maximum.
func (d *Driver) SetBitsPerWord(bits uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetBitsPerWord); err != nil {
		return err
	}
	if bits > d.maxBits {
		bits = d.maxBits
	}
	d.bitsPerWord = bits
	return nil
}

// MaxSpeedHz returns the clock speed.
func (d *Driver) MaxSpeedHz() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpMaxSpeedHz); err != nil {
		return 0, err
	}
	return d.maxSpeedHz, nil
}

// SetMaxSpeedHz stores the clock speed.
func (d *Driver) SetMaxSpeedHz(hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetMaxSpeedHz); err != nil {
		return err
	}
	d.maxSpeedHz = hz
	return nil
}

// Message loops each transfer's Tx back into its Rx. A transfer without Tx receives zeros.
func (d *Driver) Message(transfers []spidev.Transfer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpMessage); err != nil {
		return err
	}

	recorded := make([]spidev.Transfer, len(transfers))
	for i, t := range transfers {
		recorded[i] = t
		recorded[i].Tx = append([]byte(nil), t.Tx...)
		if t.Rx == nil {
			continue
		}
		if t.Tx == nil {
			clear(t.Rx)
			continue
		}
		copy(t.Rx, t.Tx)
	}
	d.messages = append(d.messages, recorded)
	return nil
}

// Read fills p from the queued read data, then zeros.
func (d *Driver) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpRead); err != nil {
		return 0, err
	}
	n := copy(p, d.readData)
	d.readData = d.readData[n:]
	clear(p[n:])
	return len(p), nil
}

// Write records p.
func (d *Driver) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpWrite); err != nil {
		return 0, err
	}
	d.written = append(d.written, p...)
	return len(p), nil
}

// Fd returns a placeholder descriptor.
func (d *Driver) Fd() uintptr {
	return 3
}

// Close marks the driver closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpClose); err != nil {
		return err
	}
	d.closed = true
	return nil
}
