package spidev

import (
	"math"
	"reflect"

	"github.com/pkg/errors"

	"go.viam.com/spidev/utils"
)

// Attribute names accepted by SetAttribute and Attribute.
const (
	AttrMode        = "mode"
	AttrBitsPerWord = "bits_per_word"
	AttrMaxSpeedHz  = "max_speed_hz"
	AttrLSBFirst    = "lsbfirst"
	AttrThreeWire   = "threewire"
	AttrLoop        = "loop"
	AttrCSHigh      = "cshigh"
	AttrNoCS        = "no_cs"
)

// Attributes lists every attribute name in the order they are applied from a config.
var Attributes = []string{
	AttrMode, AttrBitsPerWord, AttrMaxSpeedHz,
	AttrLSBFirst, AttrThreeWire, AttrLoop, AttrCSHigh, AttrNoCS,
}

var flagAttributes = map[string]uint8{
	AttrLSBFirst:  FlagLSBFirst,
	AttrThreeWire: FlagThreeWire,
	AttrLoop:      FlagLoop,
	AttrCSHigh:    FlagCSHigh,
	AttrNoCS:      FlagNoCS,
}

const (
	minBitsPerWord = 8
	maxBitsPerWord = 32
)

// Settings returns the cached configuration.
func (d *Device) Settings() (Settings, error) {
	if err := d.checkOpen("settings"); err != nil {
		return Settings{}, err
	}
	return Settings{RawMode: d.mode, BitsPerWord: int(d.bitsPerWord), MaxSpeedHz: int(d.maxSpeedHz)}, nil
}

// Mode returns the clock mode 0..3.
func (d *Device) Mode() (int, error) {
	if err := d.checkOpen("mode"); err != nil {
		return 0, err
	}
	return int(d.mode & clockModeMask), nil
}

// SetMode sets the clock mode 0..3, leaving the other mode flags untouched.
func (d *Device) SetMode(mode int) error {
	if err := d.checkOpen("set mode"); err != nil {
		return err
	}
	if mode < 0 || mode > 3 {
		return newValueError(AttrMode, mode, "must be in 0..3")
	}
	return d.writeMode(d.mode&^clockModeMask | uint8(mode))
}

// RawMode returns the whole 8-bit mode byte.
func (d *Device) RawMode() (uint8, error) {
	if err := d.checkOpen("raw mode"); err != nil {
		return 0, err
	}
	return d.mode, nil
}

// SetRawMode writes the whole mode byte: clock mode in the low two bits plus any Flag bits.
func (d *Device) SetRawMode(mode int) error {
	if err := d.checkOpen("set raw mode"); err != nil {
		return err
	}
	if mode < 0 || mode > math.MaxUint8 {
		return newValueError("raw mode", mode, "must only use the 8 mode bits")
	}
	return d.writeMode(uint8(mode))
}

// writeMode issues the set and re-reads what the driver applied.
func (d *Device) writeMode(mode uint8) error {
	if err := d.driver.SetMode(mode); err != nil {
		return d.driverError("set mode", err)
	}
	applied, err := d.driver.Mode()
	if err != nil {
		return d.driverError("read mode", err)
	}
	if applied != mode {
		d.logger.Debugw("mode partially applied", "requested", mode, "applied", applied)
	}
	d.mode = applied
	return nil
}

func (d *Device) flag(op string, flag uint8) (bool, error) {
	if err := d.checkOpen(op); err != nil {
		return false, err
	}
	return d.mode&flag != 0, nil
}

func (d *Device) setFlag(op string, flag uint8, on bool) error {
	if err := d.checkOpen(op); err != nil {
		return err
	}
	mode := d.mode &^ flag
	if on {
		mode |= flag
	}
	return d.writeMode(mode)
}

// LSBFirst reports whether words are sent least significant bit first.
func (d *Device) LSBFirst() (bool, error) { return d.flag("lsbfirst", FlagLSBFirst) }

// SetLSBFirst selects least significant bit first.
func (d *Device) SetLSBFirst(on bool) error { return d.setFlag("set lsbfirst", FlagLSBFirst, on) }

// ThreeWire reports whether SI/SO share one line.
func (d *Device) ThreeWire() (bool, error) { return d.flag("threewire", FlagThreeWire) }

// SetThreeWire enables shared SI/SO mode.
func (d *Device) SetThreeWire(on bool) error { return d.setFlag("set threewire", FlagThreeWire, on) }

// Loop reports whether loopback is enabled.
func (d *Device) Loop() (bool, error) { return d.flag("loop", FlagLoop) }

// SetLoop enables loopback.
func (d *Device) SetLoop(on bool) error { return d.setFlag("set loop", FlagLoop, on) }

// CSHigh reports whether chip select is active high.
func (d *Device) CSHigh() (bool, error) { return d.flag("cshigh", FlagCSHigh) }

// SetCSHigh makes chip select active high.
func (d *Device) SetCSHigh(on bool) error { return d.setFlag("set cshigh", FlagCSHigh, on) }

// NoCS reports whether chip select is disabled.
func (d *Device) NoCS() (bool, error) { return d.flag("no_cs", FlagNoCS) }

// SetNoCS disables chip select.
func (d *Device) SetNoCS(on bool) error { return d.setFlag("set no_cs", FlagNoCS, on) }

// BitsPerWord returns the word size.
func (d *Device) BitsPerWord() (int, error) {
	if err := d.checkOpen("bits per word"); err != nil {
		return 0, err
	}
	return int(d.bitsPerWord), nil
}

// SetBitsPerWord sets the word size, 8..32.
func (d *Device) SetBitsPerWord(bits int) error {
	if err := d.checkOpen("set bits per word"); err != nil {
		return err
	}
	if bits < minBitsPerWord || bits > maxBitsPerWord {
		return newValueError(AttrBitsPerWord, bits, "must be in %d..%d", minBitsPerWord, maxBitsPerWord)
	}
	if err := d.driver.SetBitsPerWord(uint8(bits)); err != nil {
		return d.driverError("set bits per word", err)
	}
	applied, err := d.driver.BitsPerWord()
	if err != nil {
		return d.driverError("read bits per word", err)
	}
	if int(applied) != bits {
		d.logger.Debugw("bits per word partially applied", "requested", bits, "applied", applied)
	}
	d.bitsPerWord = applied
	return nil
}

// MaxSpeedHz returns the default clock speed.
func (d *Device) MaxSpeedHz() (int, error) {
	if err := d.checkOpen("max speed"); err != nil {
		return 0, err
	}
	return int(d.maxSpeedHz), nil
}

// SetMaxSpeedHz sets the default clock speed in Hz.
func (d *Device) SetMaxSpeedHz(hz int) error {
	if err := d.checkOpen("set max speed"); err != nil {
		return err
	}
	if hz < 1 || uint64(hz) > math.MaxUint32 {
		return newValueError(AttrMaxSpeedHz, hz, "must be in 1..%d", uint64(math.MaxUint32))
	}
	if err := d.driver.SetMaxSpeedHz(uint32(hz)); err != nil {
		return d.driverError("set max speed", err)
	}
	applied, err := d.driver.MaxSpeedHz()
	if err != nil {
		return d.driverError("read max speed", err)
	}
	if int(applied) != hz {
		d.logger.Debugw("max speed partially applied", "requested", hz, "applied", applied)
	}
	d.maxSpeedHz = applied
	return nil
}

// SetAttribute sets a configuration attribute by name. Numeric attributes take any Go integer
// type and flags take a bool; any other value is rejected before the driver is called.
func (d *Device) SetAttribute(name string, value interface{}) error {
	if err := d.checkOpen("set " + name); err != nil {
		return err
	}
	if flag, ok := flagAttributes[name]; ok {
		on, err := utils.AssertType[bool](value)
		if err != nil {
			return newTypeError(name, value, err)
		}
		return d.setFlag("set "+name, flag, on)
	}

	var set func(int) error
	switch name {
	case AttrMode:
		set = d.SetMode
	case AttrBitsPerWord:
		set = d.SetBitsPerWord
	case AttrMaxSpeedHz:
		set = d.SetMaxSpeedHz
	default:
		return newValueError("attribute", name, "unknown attribute")
	}
	n, err := toInt(name, value)
	if err != nil {
		return err
	}
	return set(n)
}

// Attribute returns a configuration attribute by name: an int for numeric attributes and a bool
// for flags.
func (d *Device) Attribute(name string) (interface{}, error) {
	if err := d.checkOpen(name); err != nil {
		return nil, err
	}
	if flag, ok := flagAttributes[name]; ok {
		return d.mode&flag != 0, nil
	}
	switch name {
	case AttrMode:
		return int(d.mode & clockModeMask), nil
	case AttrBitsPerWord:
		return int(d.bitsPerWord), nil
	case AttrMaxSpeedHz:
		return int(d.maxSpeedHz), nil
	}
	return nil, newValueError("attribute", name, "unknown attribute")
}

// toInt accepts exactly the Go integer kinds.
func toInt(name string, value interface{}) (int, error) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n < math.MinInt || n > math.MaxInt {
			return 0, newValueError(name, value, "out of range")
		}
		return int(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := v.Uint()
		if n > math.MaxInt {
			return 0, newValueError(name, value, "out of range")
		}
		return int(n), nil
	default:
		return 0, newTypeError(name, value, errors.Wrap(utils.NewUnexpectedTypeError(0, value), "integer required"))
	}
}
