package spidev

import (
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type transferOptions struct {
	speedHz     int
	delay       time.Duration
	bitsPerWord int
}

// A TransferOption overrides a device default for one call.
type TransferOption func(*transferOptions)

// WithSpeedHz clocks the transfer at hz instead of the device's max speed.
func WithSpeedHz(hz int) TransferOption {
	return func(o *transferOptions) {
		o.speedHz = hz
	}
}

// WithDelay holds chip select for d after the transfer before the next one starts. The kernel
// takes whole microseconds up to 65535.
func WithDelay(d time.Duration) TransferOption {
	return func(o *transferOptions) {
		o.delay = d
	}
}

// WithBitsPerWord overrides the word size for the transfer.
func WithBitsPerWord(bits int) TransferOption {
	return func(o *transferOptions) {
		o.bitsPerWord = bits
	}
}

// Segment is one link of a chained full-duplex transfer.
//
// Tx is clocked out; a nil Tx clocks out zeros. Received bytes go to Rx when it is set. When Rx is
// nil and Tx is Mutable the segment runs in place and Tx is overwritten. When both are set they
// must be the same length. The overrides apply to this segment only; zero keeps the device
// default.
type Segment struct {
	Tx          Buffer
	Rx          []byte
	SpeedHz     int
	BitsPerWord int
	Delay       time.Duration
	CSChange    bool
}

// descriptor validates the per-transfer overrides and fills in device defaults.
func (d *Device) descriptor(tx, rx []byte, o transferOptions, csChange bool) (Transfer, error) {
	if o.speedHz < 0 || uint64(o.speedHz) > math.MaxUint32 {
		return Transfer{}, newValueError("speed", o.speedHz, "must be in 0..%d", uint64(math.MaxUint32))
	}
	if o.bitsPerWord != 0 && (o.bitsPerWord < minBitsPerWord || o.bitsPerWord > maxBitsPerWord) {
		return Transfer{}, newValueError(AttrBitsPerWord, o.bitsPerWord,
			"must be 0 or in %d..%d", minBitsPerWord, maxBitsPerWord)
	}
	delay := o.delay / time.Microsecond
	if delay < 0 || delay > math.MaxUint16 {
		return Transfer{}, newValueError("delay", o.delay, "must be in 0..%dµs", math.MaxUint16)
	}

	t := Transfer{
		Tx:          tx,
		Rx:          rx,
		SpeedHz:     uint32(o.speedHz),
		DelayUsecs:  uint16(delay),
		BitsPerWord: uint8(o.bitsPerWord),
		CSChange:    csChange,
	}
	if t.SpeedHz == 0 {
		t.SpeedHz = d.maxSpeedHz
	}
	if t.BitsPerWord == 0 {
		t.BitsPerWord = d.bitsPerWord
	}
	return t, nil
}

func resolveOptions(opts []TransferOption) transferOptions {
	var o transferOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// boundedPayload converts p for a call limited to MaxTransferSize bytes.
func (d *Device) boundedPayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, errEmpty("payload")
	}
	if v, ok := p.(Values); ok {
		// Checked before conversion so an oversized payload is never walked.
		if len(v) > d.maxTransferSize {
			return nil, errTooLarge("payload", len(v), d.maxTransferSize)
		}
	}
	b, err := p.payloadBytes()
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errEmpty("payload")
	}
	if len(b) > d.maxTransferSize {
		return nil, errTooLarge("payload", len(b), d.maxTransferSize)
	}
	return b, nil
}

// unboundedPayload converts p for the chunked calls, which accept any non-empty length.
func unboundedPayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, errEmpty("payload")
	}
	b, err := p.payloadBytes()
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errEmpty("payload")
	}
	return b, nil
}

func (d *Device) message(op string, transfers []Transfer) error {
	if err := d.driver.Message(transfers); err != nil {
		return d.driverError(op, err)
	}
	d.stats.recordMessage(transfers)
	return nil
}

// releaseCSHigh issues a zero-length read, which is what makes the driver drop an active-high
// chip select after a transfer.
func (d *Device) releaseCSHigh() {
	if d.mode&FlagCSHigh == 0 {
		return
	}
	if _, err := d.driver.Read(nil); err != nil {
		d.logger.Debugw("chip select release read failed", "error", err)
	}
}

func (d *Device) xfer(op string, values Values, opts []TransferOption) ([]byte, error) {
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	tx, err := d.boundedPayload(values)
	if err != nil {
		return nil, err
	}
	rx := make([]byte, len(tx))
	t, err := d.descriptor(tx, rx, resolveOptions(opts), false)
	if err != nil {
		return nil, err
	}
	if err := d.message(op, []Transfer{t}); err != nil {
		return nil, err
	}
	d.releaseCSHigh()
	return rx, nil
}

// Xfer clocks values out in one transfer and returns the bytes clocked in.
func (d *Device) Xfer(values Values, opts ...TransferOption) ([]int, error) {
	rx, err := d.xfer("xfer", values, opts)
	if err != nil {
		return nil, err
	}
	return toValues(rx), nil
}

// Xfer2 is Xfer with chip select held for the whole payload.
func (d *Device) Xfer2(values Values, opts ...TransferOption) ([]int, error) {
	rx, err := d.xfer("xfer2", values, opts)
	if err != nil {
		return nil, err
	}
	return toValues(rx), nil
}

// XferBytes is Xfer2 returning the received bytes packed in a byte slice.
func (d *Device) XferBytes(values Values, opts ...TransferOption) ([]byte, error) {
	return d.xfer("xfer2", values, opts)
}

// Xfer2Buffer clocks buf out in one transfer. A ReadOnly buffer is left alone and the received
// bytes are returned in a new slice; a Mutable buffer is overwritten with them and returned.
func (d *Device) Xfer2Buffer(buf Buffer, opts ...TransferOption) ([]byte, error) {
	if err := d.checkOpen("xfer2"); err != nil {
		return nil, err
	}
	tx, err := d.boundedPayload(buf)
	if err != nil {
		return nil, err
	}
	rx := tx
	if !buf.inPlace() {
		rx = make([]byte, len(tx))
	}
	t, err := d.descriptor(tx, rx, resolveOptions(opts), false)
	if err != nil {
		return nil, err
	}
	if err := d.message("xfer2", []Transfer{t}); err != nil {
		return nil, err
	}
	d.releaseCSHigh()
	return rx, nil
}

// Xfer3 accepts a payload of any length and clocks it out in MaxTransferSize blocks, one
// transfer per block.
func (d *Device) Xfer3(values Values, opts ...TransferOption) ([]int, error) {
	if err := d.checkOpen("xfer3"); err != nil {
		return nil, err
	}
	tx, err := unboundedPayload(values)
	if err != nil {
		return nil, err
	}
	o := resolveOptions(opts)
	if _, err := d.descriptor(nil, nil, o, false); err != nil {
		return nil, err
	}

	rx := make([]int, 0, len(tx))
	for _, block := range lo.Chunk(tx, d.maxTransferSize) {
		in := make([]byte, len(block))
		t, err := d.descriptor(block, in, o, false)
		if err != nil {
			return nil, err
		}
		if err := d.message("xfer3", []Transfer{t}); err != nil {
			return nil, err
		}
		rx = append(rx, toValues(in)...)
	}
	d.releaseCSHigh()
	return rx, nil
}

// Transfer issues every segment in one SPI_IOC_MESSAGE call, in order.
func (d *Device) Transfer(segments []Segment) error {
	if err := d.checkOpen("transfer"); err != nil {
		return err
	}
	if len(segments) == 0 {
		return errEmpty("segments")
	}
	if len(segments) > MaxSegments {
		return errTooLarge("segments", len(segments), MaxSegments)
	}

	transfers := make([]Transfer, 0, len(segments))
	total := 0
	for i, seg := range segments {
		var tx []byte
		if seg.Tx != nil {
			b, err := seg.Tx.payloadBytes()
			if err != nil {
				return err
			}
			tx = b
		}
		rx := seg.Rx
		if rx == nil && seg.Tx != nil && seg.Tx.inPlace() {
			rx = tx
		}
		if len(tx) != 0 && len(rx) != 0 && len(tx) != len(rx) {
			return newValueError("segment rx", len(rx),
				"segment %d: rx length must match tx length %d", i, len(tx))
		}
		t, err := d.descriptor(tx, rx, transferOptions{
			speedHz:     seg.SpeedHz,
			delay:       seg.Delay,
			bitsPerWord: seg.BitsPerWord,
		}, seg.CSChange)
		if err != nil {
			return err
		}
		if t.Len() == 0 {
			return errEmpty("segment")
		}
		total += t.Len()
		transfers = append(transfers, t)
	}
	if total > d.maxTransferSize {
		return errTooLarge("message", total, d.maxTransferSize)
	}
	return d.message("transfer", transfers)
}

func (d *Device) readLength(length int) error {
	switch {
	case length < 0:
		return newValueError("length", length, "must not be negative")
	case length == 0:
		return errEmpty("read")
	case length > d.maxTransferSize:
		return errTooLarge("read", length, d.maxTransferSize)
	}
	return nil
}

func (d *Device) read(op string, p []byte) error {
	n, err := d.driver.Read(p)
	if err != nil {
		return d.driverError(op, err)
	}
	d.stats.bytesIn.Add(uint64(n))
	if n != len(p) {
		return d.driverError(op, errors.Wrapf(io.ErrUnexpectedEOF, "read %d of %d bytes", n, len(p)))
	}
	return nil
}

// ReadBytes reads n bytes half-duplex, clocking out zeros.
func (d *Device) ReadBytes(n int) ([]int, error) {
	b, err := d.ReadBytesB(n)
	if err != nil {
		return nil, err
	}
	return toValues(b), nil
}

// ReadBytesB is ReadBytes returning a byte slice.
func (d *Device) ReadBytesB(n int) ([]byte, error) {
	if err := d.checkOpen("readbytes"); err != nil {
		return nil, err
	}
	if err := d.readLength(n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := d.read("readbytes", buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInto fills buf with a half-duplex read.
func (d *Device) ReadInto(buf []byte) error {
	return d.ReadIntoWindow(buf, len(buf), 0)
}

// ReadIntoWindow reads length bytes into buf[offset:offset+length]. The rest of buf is not
// touched.
func (d *Device) ReadIntoWindow(buf []byte, length, offset int) error {
	if err := d.checkOpen("readinto"); err != nil {
		return err
	}
	if offset < 0 || length < 0 || offset > len(buf) || length > len(buf)-offset {
		return &BoundsError{Length: length, Offset: offset, BufLen: len(buf)}
	}
	if err := d.readLength(length); err != nil {
		return err
	}
	return d.read("readinto", buf[offset:offset+length])
}

func (d *Device) write(op string, p []byte) error {
	n, err := d.driver.Write(p)
	if err != nil {
		return d.driverError(op, err)
	}
	d.stats.bytesOut.Add(uint64(n))
	if n != len(p) {
		return d.driverError(op, errors.Wrapf(io.ErrShortWrite, "wrote %d of %d bytes", n, len(p)))
	}
	return nil
}

// WriteBytes writes values half-duplex, discarding what is clocked in.
func (d *Device) WriteBytes(values Values) error {
	if err := d.checkOpen("writebytes"); err != nil {
		return err
	}
	tx, err := d.boundedPayload(values)
	if err != nil {
		return err
	}
	return d.write("writebytes", tx)
}

// WriteBytes2 writes a payload of any length half-duplex in MaxTransferSize blocks.
func (d *Device) WriteBytes2(p Payload) error {
	if err := d.checkOpen("writebytes2"); err != nil {
		return err
	}
	tx, err := unboundedPayload(p)
	if err != nil {
		return err
	}
	for _, block := range lo.Chunk(tx, d.maxTransferSize) {
		if err := d.write("writebytes2", block); err != nil {
			return err
		}
	}
	return nil
}
