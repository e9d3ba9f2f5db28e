// Package spidev drives SPI peripherals through the Linux spidev character devices
// (/dev/spidevB.D): opening a handle, mirroring its configuration and marshaling transfers.
package spidev

import (
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"

	"go.viam.com/spidev/logging"
)

// State is the lifecycle stage of a Device.
type State int

const (
	// StateUnopened is the zero value: the handle never held a descriptor.
	StateUnopened State = iota
	// StateOpen means the handle owns an open descriptor.
	StateOpen
	// StateClosed means the descriptor was released. A closed handle is never reopened.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Device is a handle on one /dev/spidevB.D node. A Device is not safe for concurrent use; callers
// sharing one must serialise access, for example through buses.SPI.
type Device struct {
	driver Driver
	bus    int
	cs     int
	path   string
	state  State

	mode        uint8
	bitsPerWord uint8
	maxSpeedHz  uint32

	maxTransferSize int
	logger          logging.Logger
	stats           stats
}

// Open opens /dev/spidev{bus}.{cs} and reads back its current configuration.
func Open(bus, cs int, logger logging.Logger, opts ...Option) (*Device, error) {
	if bus < 0 {
		return nil, newValueError("bus", bus, "must not be negative")
	}
	if cs < 0 {
		return nil, newValueError("chip select", cs, "must not be negative")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	maxTransferSize := o.maxTransferSize
	switch {
	case maxTransferSize == 0:
		maxTransferSize = ReadBufSiz(o.bufSizPath)
	case maxTransferSize < 0 || maxTransferSize > MaxBlockSize:
		return nil, newValueError("max transfer size", maxTransferSize, "must be in 1..%d", MaxBlockSize)
	}

	name := fmt.Sprintf("spidev%d.%d", bus, cs)
	path := filepath.Join(o.devRoot, name)
	if logger == nil {
		logger = logging.NewBlankLogger("")
	}

	driver, err := o.opener(path)
	if err != nil {
		return nil, newDriverError("open", path, err)
	}

	dev := &Device{
		driver:          driver,
		bus:             bus,
		cs:              cs,
		path:            path,
		state:           StateOpen,
		maxTransferSize: maxTransferSize,
		logger:          logger.Sublogger(name),
	}
	if err := dev.readBack(); err != nil {
		return nil, multierr.Combine(err, driver.Close())
	}

	dev.logger.Debugw("opened",
		"path", path,
		"mode", dev.mode,
		"bits_per_word", dev.bitsPerWord,
		"max_speed_hz", dev.maxSpeedHz,
		"max_transfer_size", maxTransferSize)
	return dev, nil
}

// readBack refreshes the whole configuration cache from the driver.
func (d *Device) readBack() error {
	mode, err := d.driver.Mode()
	if err != nil {
		return d.driverError("read mode", err)
	}
	bits, err := d.driver.BitsPerWord()
	if err != nil {
		return d.driverError("read bits per word", err)
	}
	hz, err := d.driver.MaxSpeedHz()
	if err != nil {
		return d.driverError("read max speed", err)
	}
	d.mode, d.bitsPerWord, d.maxSpeedHz = mode, bits, hz
	return nil
}

// Close releases the descriptor. Closing an unopened or already closed handle does nothing.
func (d *Device) Close() error {
	if d.state != StateOpen {
		return nil
	}
	d.state = StateClosed
	driver := d.driver
	d.driver = nil
	if err := driver.Close(); err != nil {
		return d.driverError("close", err)
	}
	d.logger.Debug("closed")
	return nil
}

func (d *Device) checkOpen(op string) error {
	if d.state != StateOpen {
		return &NotOpenError{Op: op, State: d.state}
	}
	return nil
}

func (d *Device) driverError(op string, err error) error {
	d.stats.driverErrors.Inc()
	return newDriverError(op, d.path, err)
}

// Fd returns the underlying file descriptor.
func (d *Device) Fd() (uintptr, error) {
	if err := d.checkOpen("fd"); err != nil {
		return 0, err
	}
	return d.driver.Fd(), nil
}

// Path is the device node this handle was opened on.
func (d *Device) Path() string {
	return d.path
}

// Bus is the SPI bus index.
func (d *Device) Bus() int {
	return d.bus
}

// ChipSelect is the chip-select index on the bus.
func (d *Device) ChipSelect() int {
	return d.cs
}

// State returns the lifecycle stage of the handle.
func (d *Device) State() State {
	return d.state
}

// MaxTransferSize is the largest payload a single bounded transfer accepts.
func (d *Device) MaxTransferSize() int {
	return d.maxTransferSize
}

// Stats returns a snapshot of the traffic counters.
func (d *Device) Stats() Stats {
	return d.stats.snapshot()
}
