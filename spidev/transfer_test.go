package spidev_test

import (
	"bytes"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/spidev/spidev"
	"go.viam.com/spidev/spidev/fake"
)

func sequence(n int) spidev.Values {
	values := make(spidev.Values, n)
	for i := range values {
		values[i] = i % 255
	}
	return values
}

func TestLoopback(t *testing.T) {
	dev, drv := openFake(t)

	values := sequence(255)
	got, err := dev.Xfer(values)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []int(values))

	got, err = dev.Xfer2(values)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []int(values))

	raw, err := dev.XferBytes(spidev.Values{0xde, 0xad, 0xbe, 0xef})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw, test.ShouldResemble, []byte{0xde, 0xad, 0xbe, 0xef})

	// One descriptor per call, filled with the device defaults.
	messages := drv.Messages()
	test.That(t, messages, test.ShouldHaveLength, 3)
	for _, msg := range messages {
		test.That(t, msg, test.ShouldHaveLength, 1)
		test.That(t, msg[0].SpeedHz, test.ShouldEqual, uint32(fake.DefaultMaxSpeedHz))
		test.That(t, msg[0].BitsPerWord, test.ShouldEqual, uint8(8))
	}

	stats := dev.Stats()
	test.That(t, stats.Messages, test.ShouldEqual, uint64(3))
	test.That(t, stats.BytesOut, test.ShouldEqual, uint64(255+255+4))
	test.That(t, stats.BytesIn, test.ShouldEqual, uint64(255+255+4))
}

func TestTransferOptions(t *testing.T) {
	dev, drv := openFake(t)

	_, err := dev.Xfer(spidev.Values{1, 2},
		spidev.WithSpeedHz(250000),
		spidev.WithDelay(10*time.Microsecond),
		spidev.WithBitsPerWord(16))
	test.That(t, err, test.ShouldBeNil)
	msg := drv.Messages()[0][0]
	test.That(t, msg.SpeedHz, test.ShouldEqual, uint32(250000))
	test.That(t, msg.DelayUsecs, test.ShouldEqual, uint16(10))
	test.That(t, msg.BitsPerWord, test.ShouldEqual, uint8(16))

	before := drv.TotalCalls()
	for _, opt := range []spidev.TransferOption{
		spidev.WithSpeedHz(-1),
		spidev.WithDelay(time.Second),
		spidev.WithBitsPerWord(4),
	} {
		_, err := dev.Xfer2(spidev.Values{1}, opt)
		test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindValue)
	}
	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)
}

func TestEmptyPayload(t *testing.T) {
	dev, drv := openFake(t)
	before := drv.TotalCalls()

	for name, call := range map[string]func() error{
		"xfer":  func() error { _, err := dev.Xfer(spidev.Values{}); return err },
		"xfer2": func() error { _, err := dev.Xfer2(nil); return err },
		"xfer3": func() error { _, err := dev.Xfer3(spidev.Values{}); return err },
		"xfer2 buffer": func() error {
			_, err := dev.Xfer2Buffer(spidev.ReadOnly{})
			return err
		},
		"nil buffer": func() error {
			_, err := dev.Xfer2Buffer(nil)
			return err
		},
		"writebytes":  func() error { return dev.WriteBytes(spidev.Values{}) },
		"writebytes2": func() error { return dev.WriteBytes2(spidev.ReadOnly(nil)) },
		"readbytes":   func() error { _, err := dev.ReadBytes(0); return err },
		"transfer":    func() error { return dev.Transfer(nil) },
	} {
		t.Run(name, func(t *testing.T) {
			err := call()
			var sizeErr *spidev.SizeError
			test.That(t, errors.As(err, &sizeErr), test.ShouldBeTrue)
			test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindType)
		})
	}
	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)
}

func TestElementValidation(t *testing.T) {
	dev, drv := openFake(t)
	before := drv.TotalCalls()

	for _, values := range []spidev.Values{{256}, {1, -1}, {0, 1, 2, 1000}} {
		_, err := dev.Xfer(values)
		test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindType)
		_, err = dev.Xfer3(values)
		test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindType)
		test.That(t, spidev.Classify(dev.WriteBytes(values)), test.ShouldEqual, spidev.KindType)
	}
	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)
}

func TestSizeBound(t *testing.T) {
	dev, drv := openFake(t, spidev.WithMaxTransferSize(128))
	limit := dev.MaxTransferSize()

	got, err := dev.Xfer2(sequence(limit))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldHaveLength, limit)

	before := drv.TotalCalls()
	_, err = dev.Xfer2(sequence(limit + 1))
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindOverflow)
	_, err = dev.Xfer(sequence(limit + 1))
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindOverflow)
	_, err = dev.Xfer2Buffer(spidev.ReadOnly(make([]byte, limit+1)))
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindOverflow)
	test.That(t, spidev.Classify(dev.WriteBytes(sequence(limit+1))), test.ShouldEqual, spidev.KindOverflow)
	_, err = dev.ReadBytes(limit + 1)
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindOverflow)
	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)

	var sizeErr *spidev.SizeError
	test.That(t, errors.As(err, &sizeErr), test.ShouldBeTrue)
	test.That(t, sizeErr.Max, test.ShouldEqual, limit)
}

func TestXfer3Chunks(t *testing.T) {
	dev, drv := openFake(t, spidev.WithMaxTransferSize(16))
	values := sequence(40)

	got, err := dev.Xfer3(values)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []int(values))

	messages := drv.Messages()
	test.That(t, messages, test.ShouldHaveLength, 3)
	test.That(t, messages[0][0].Len(), test.ShouldEqual, 16)
	test.That(t, messages[1][0].Len(), test.ShouldEqual, 16)
	test.That(t, messages[2][0].Len(), test.ShouldEqual, 8)
}

func TestXfer2Buffer(t *testing.T) {
	dev, drv := openFake(t)

	readOnly := spidev.ReadOnly{1, 2, 3}
	rx, err := dev.Xfer2Buffer(readOnly)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rx, test.ShouldResemble, []byte{1, 2, 3})
	rx[0] = 9
	test.That(t, readOnly[0], test.ShouldEqual, byte(1))

	// A mutable buffer is both source and destination.
	mutable := spidev.Mutable{4, 5, 6}
	rx, err = dev.Xfer2Buffer(mutable)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rx, test.ShouldResemble, []byte{4, 5, 6})
	test.That(t, &rx[0], test.ShouldEqual, &mutable[0])

	msg := drv.Messages()[1][0]
	test.That(t, msg.Tx, test.ShouldResemble, []byte{4, 5, 6})
}

func TestTransferChain(t *testing.T) {
	dev, drv := openFake(t)

	inPlace := spidev.Mutable{0x10, 0x20}
	cmd := spidev.ReadOnly{0x03, 0x00}
	rx := make([]byte, 2)
	response := make([]byte, 4)

	err := dev.Transfer([]spidev.Segment{
		{Tx: inPlace},
		{Tx: cmd, Rx: rx, SpeedHz: 1000, CSChange: true},
		{Rx: response, BitsPerWord: 16, Delay: 5 * time.Microsecond},
	})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, []byte(inPlace), test.ShouldResemble, []byte{0x10, 0x20})
	test.That(t, rx, test.ShouldResemble, []byte{0x03, 0x00})
	test.That(t, response, test.ShouldResemble, []byte{0, 0, 0, 0})

	messages := drv.Messages()
	test.That(t, messages, test.ShouldHaveLength, 1)
	chain := messages[0]
	test.That(t, chain, test.ShouldHaveLength, 3)

	// Overrides apply to their own segment only.
	test.That(t, chain[0].SpeedHz, test.ShouldEqual, uint32(fake.DefaultMaxSpeedHz))
	test.That(t, chain[1].SpeedHz, test.ShouldEqual, uint32(1000))
	test.That(t, chain[1].CSChange, test.ShouldBeTrue)
	test.That(t, chain[2].SpeedHz, test.ShouldEqual, uint32(fake.DefaultMaxSpeedHz))
	test.That(t, chain[2].BitsPerWord, test.ShouldEqual, uint8(16))
	test.That(t, chain[2].DelayUsecs, test.ShouldEqual, uint16(5))
	test.That(t, chain[2].Tx, test.ShouldBeEmpty)
}

func TestTransferValidation(t *testing.T) {
	dev, drv := openFake(t, spidev.WithMaxTransferSize(8))
	before := drv.TotalCalls()

	err := dev.Transfer([]spidev.Segment{{Tx: spidev.ReadOnly{1, 2}, Rx: make([]byte, 3)}})
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindValue)

	err = dev.Transfer([]spidev.Segment{{Tx: spidev.ReadOnly{1}}, {}})
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindType)

	err = dev.Transfer([]spidev.Segment{{Tx: spidev.ReadOnly(make([]byte, 5))}, {Rx: make([]byte, 5)}})
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindOverflow)

	err = dev.Transfer(make([]spidev.Segment, spidev.MaxSegments+1))
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindOverflow)

	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)
}

func TestReadIntoWindow(t *testing.T) {
	dev, drv := openFake(t)
	drv.QueueRead(1, 2, 3, 4, 5)

	buf := bytes.Repeat([]byte{0xaa}, 20)
	test.That(t, dev.ReadIntoWindow(buf, 5, 10), test.ShouldBeNil)
	test.That(t, buf[10:15], test.ShouldResemble, []byte{1, 2, 3, 4, 5})
	test.That(t, buf[:10], test.ShouldResemble, bytes.Repeat([]byte{0xaa}, 10))
	test.That(t, buf[15:], test.ShouldResemble, bytes.Repeat([]byte{0xaa}, 5))

	before := drv.TotalCalls()
	for _, window := range [][2]int{{5, 16}, {21, 0}, {-1, 0}, {1, -1}, {1, 20}} {
		err := dev.ReadIntoWindow(buf, window[0], window[1])
		test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindBounds)
		var boundsErr *spidev.BoundsError
		test.That(t, errors.As(err, &boundsErr), test.ShouldBeTrue)
	}
	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)

	drv.QueueRead(7, 7, 7)
	small := make([]byte, 3)
	test.That(t, dev.ReadInto(small), test.ShouldBeNil)
	test.That(t, small, test.ShouldResemble, []byte{7, 7, 7})
}

func TestHalfDuplex(t *testing.T) {
	dev, drv := openFake(t, spidev.WithMaxTransferSize(4))

	drv.QueueRead(0x12, 0x34)
	got, err := dev.ReadBytes(3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []int{0x12, 0x34, 0})

	raw, err := dev.ReadBytesB(2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw, test.ShouldResemble, []byte{0, 0})

	test.That(t, dev.WriteBytes(spidev.Values{1, 2, 3}), test.ShouldBeNil)
	test.That(t, dev.WriteBytes2(spidev.Values{4, 5, 6, 7, 8, 9}), test.ShouldBeNil)
	test.That(t, dev.WriteBytes2(spidev.ReadOnly{10}), test.ShouldBeNil)
	test.That(t, drv.Written(), test.ShouldResemble, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	test.That(t, drv.Calls(fake.OpWrite), test.ShouldEqual, 4)

	_, err = dev.ReadBytes(-1)
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindValue)
}

func TestCSHighRelease(t *testing.T) {
	dev, drv := openFake(t)

	_, err := dev.Xfer(spidev.Values{1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, drv.Calls(fake.OpRead), test.ShouldEqual, 0)

	test.That(t, dev.SetCSHigh(true), test.ShouldBeNil)
	_, err = dev.Xfer2(spidev.Values{1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, drv.Calls(fake.OpRead), test.ShouldEqual, 1)

	// A failing release read does not fail the transfer.
	drv.FailNext(fake.OpRead, syscall.EIO)
	_, err = dev.Xfer3(spidev.Values{1, 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, drv.Calls(fake.OpRead), test.ShouldEqual, 2)
}

func TestTransferDriverError(t *testing.T) {
	dev, drv := openFake(t)

	drv.FailNext(fake.OpMessage, syscall.EMSGSIZE)
	_, err := dev.Xfer2(spidev.Values{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindIO)

	var driverErr *spidev.DriverError
	test.That(t, errors.As(err, &driverErr), test.ShouldBeTrue)
	test.That(t, driverErr.Errno(), test.ShouldEqual, syscall.EMSGSIZE)
	test.That(t, driverErr.Path, test.ShouldEqual, "/dev/spidev0.0")

	stats := dev.Stats()
	test.That(t, stats.DriverErrors, test.ShouldEqual, uint64(1))
	test.That(t, stats.Messages, test.ShouldEqual, uint64(0))

	drv.FailNext(fake.OpWrite, syscall.EIO)
	test.That(t, spidev.Classify(dev.WriteBytes(spidev.Values{1})), test.ShouldEqual, spidev.KindIO)
}
