package spidev_test

import (
	"math"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spidev"
	"go.viam.com/spidev/spidev/fake"
)

func TestModeRoundTrip(t *testing.T) {
	dev, drv := openFake(t)
	for mode := 0; mode <= 3; mode++ {
		test.That(t, dev.SetMode(mode), test.ShouldBeNil)
		got, err := dev.Mode()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, mode)
	}
	// One set and one read back per change, plus the read on open.
	test.That(t, drv.Calls(fake.OpSetMode), test.ShouldEqual, 4)
	test.That(t, drv.Calls(fake.OpMode), test.ShouldEqual, 5)
}

func TestSetModePreservesFlags(t *testing.T) {
	dev, _ := openFake(t)
	test.That(t, dev.SetCSHigh(true), test.ShouldBeNil)
	test.That(t, dev.SetLoop(true), test.ShouldBeNil)
	test.That(t, dev.SetMode(3), test.ShouldBeNil)

	raw, err := dev.RawMode()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw, test.ShouldEqual, spidev.FlagCSHigh|spidev.FlagLoop|spidev.FlagCPOL|spidev.FlagCPHA)

	test.That(t, dev.SetMode(1), test.ShouldBeNil)
	cshigh, err := dev.CSHigh()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cshigh, test.ShouldBeTrue)
	mode, err := dev.Mode()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldEqual, 1)
}

func TestFlags(t *testing.T) {
	dev, _ := openFake(t)
	for _, tc := range []struct {
		name string
		set  func(bool) error
		get  func() (bool, error)
		flag uint8
	}{
		{"lsbfirst", dev.SetLSBFirst, dev.LSBFirst, spidev.FlagLSBFirst},
		{"threewire", dev.SetThreeWire, dev.ThreeWire, spidev.FlagThreeWire},
		{"loop", dev.SetLoop, dev.Loop, spidev.FlagLoop},
		{"cshigh", dev.SetCSHigh, dev.CSHigh, spidev.FlagCSHigh},
		{"no_cs", dev.SetNoCS, dev.NoCS, spidev.FlagNoCS},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, tc.set(true), test.ShouldBeNil)
			on, err := tc.get()
			test.That(t, err, test.ShouldBeNil)
			test.That(t, on, test.ShouldBeTrue)

			settings, err := dev.Settings()
			test.That(t, err, test.ShouldBeNil)
			test.That(t, settings.Has(tc.flag), test.ShouldBeTrue)
			test.That(t, settings.Flags(), test.ShouldContain, tc.name)

			attr, err := dev.Attribute(tc.name)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, attr, test.ShouldEqual, true)

			test.That(t, tc.set(false), test.ShouldBeNil)
			on, err = tc.get()
			test.That(t, err, test.ShouldBeNil)
			test.That(t, on, test.ShouldBeFalse)
		})
	}
}

func TestPartiallyAppliedSettings(t *testing.T) {
	drv := fake.NewDriver()
	drv.SetModeMask(0x0f)
	drv.SetMaxBitsPerWord(16)
	logger, observed := logging.NewObservedTestLogger(t)
	dev, err := spidev.Open(0, 0, logger, spidev.WithOpener(drv.Opener()))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, dev.Close(), test.ShouldBeNil)
	}()

	// The driver drops the loop bit; the cache follows what it applied.
	test.That(t, dev.SetLoop(true), test.ShouldBeNil)
	loop, err := dev.Loop()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loop, test.ShouldBeFalse)
	test.That(t, observed.FilterMessage("mode partially applied").Len(), test.ShouldEqual, 1)

	test.That(t, dev.SetBitsPerWord(24), test.ShouldBeNil)
	bits, err := dev.BitsPerWord()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bits, test.ShouldEqual, 16)
}

func TestSettersValidateRange(t *testing.T) {
	dev, drv := openFake(t)
	before := drv.TotalCalls()

	for _, err := range []error{
		dev.SetMode(-1),
		dev.SetMode(4),
		dev.SetRawMode(256),
		dev.SetBitsPerWord(7),
		dev.SetBitsPerWord(33),
		dev.SetMaxSpeedHz(0),
		dev.SetMaxSpeedHz(math.MaxUint32 + 1),
	} {
		test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindValue)
	}
	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)

	test.That(t, dev.SetBitsPerWord(16), test.ShouldBeNil)
	test.That(t, dev.SetMaxSpeedHz(math.MaxUint32), test.ShouldBeNil)
	hz, err := dev.MaxSpeedHz()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, hz, test.ShouldEqual, math.MaxUint32)
}

func TestSetAttributeTypeStrictness(t *testing.T) {
	dev, drv := openFake(t)
	before := drv.TotalCalls()

	for _, tc := range []struct {
		name  string
		value interface{}
	}{
		{spidev.AttrMode, 1.5},
		{spidev.AttrMode, "1"},
		{spidev.AttrMode, nil},
		{spidev.AttrMode, true},
		{spidev.AttrBitsPerWord, 8.0},
		{spidev.AttrBitsPerWord, []int{8}},
		{spidev.AttrMaxSpeedHz, "fast"},
		{spidev.AttrLoop, 1},
		{spidev.AttrCSHigh, "yes"},
	} {
		err := dev.SetAttribute(tc.name, tc.value)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindType)

		var validationErr *spidev.ValidationError
		test.That(t, errors.As(err, &validationErr), test.ShouldBeTrue)
		test.That(t, validationErr.Field, test.ShouldEqual, tc.name)
	}
	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)

	err := dev.SetAttribute("speed", 10)
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindValue)
	err = dev.SetAttribute(spidev.AttrMode, uint64(math.MaxUint64))
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindValue)
	test.That(t, drv.TotalCalls(), test.ShouldEqual, before)
}

func TestSetAttribute(t *testing.T) {
	dev, _ := openFake(t)

	test.That(t, dev.SetAttribute(spidev.AttrMode, int8(2)), test.ShouldBeNil)
	test.That(t, dev.SetAttribute(spidev.AttrBitsPerWord, uint16(16)), test.ShouldBeNil)
	test.That(t, dev.SetAttribute(spidev.AttrMaxSpeedHz, int64(1000000)), test.ShouldBeNil)
	test.That(t, dev.SetAttribute(spidev.AttrNoCS, true), test.ShouldBeNil)

	for name, expected := range map[string]interface{}{
		spidev.AttrMode:        2,
		spidev.AttrBitsPerWord: 16,
		spidev.AttrMaxSpeedHz:  1000000,
		spidev.AttrNoCS:        true,
		spidev.AttrLSBFirst:    false,
	} {
		got, err := dev.Attribute(name)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, expected)
	}

	_, err := dev.Attribute("speed")
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindValue)
}

func TestSetterDriverError(t *testing.T) {
	dev, drv := openFake(t)

	drv.FailNext(fake.OpSetMaxSpeedHz, syscall.EINVAL)
	err := dev.SetMaxSpeedHz(1000)
	test.That(t, spidev.Classify(err), test.ShouldEqual, spidev.KindIO)
	var driverErr *spidev.DriverError
	test.That(t, errors.As(err, &driverErr), test.ShouldBeTrue)
	test.That(t, driverErr.Errno(), test.ShouldEqual, syscall.EINVAL)
	test.That(t, errors.Is(err, syscall.EINVAL), test.ShouldBeTrue)

	// A failed read back is also a driver error.
	drv.FailNext(fake.OpMode, syscall.EIO)
	err = dev.SetMode(2)
	test.That(t, errors.As(err, &driverErr), test.ShouldBeTrue)
	test.That(t, driverErr.Errno(), test.ShouldEqual, syscall.EIO)
	test.That(t, dev.Stats().DriverErrors, test.ShouldEqual, uint64(2))
}
