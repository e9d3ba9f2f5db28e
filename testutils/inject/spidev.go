package inject

import (
	"go.viam.com/spidev/spidev"
)

// Driver is an injected spidev driver.
type Driver struct {
	spidev.Driver
	ModeFunc           func() (uint8, error)
	SetModeFunc        func(mode uint8) error
	BitsPerWordFunc    func() (uint8, error)
	SetBitsPerWordFunc func(bits uint8) error
	MaxSpeedHzFunc     func() (uint32, error)
	SetMaxSpeedHzFunc  func(hz uint32) error
	MessageFunc        func(transfers []spidev.Transfer) error
	ReadFunc           func(p []byte) (int, error)
	WriteFunc          func(p []byte) (int, error)
	CloseFunc          func() error
}

// Opener returns an opener that hands out d for any path.
func (d *Driver) Opener() spidev.Opener {
	return func(path string) (spidev.Driver, error) {
		return d, nil
	}
}

// Mode calls the injected Mode or the real version.
func (d *Driver) Mode() (uint8, error) {
	if d.ModeFunc == nil {
		return d.Driver.Mode()
	}
	return d.ModeFunc()
}

// SetMode calls the injected SetMode or the real version.
func (d *Driver) SetMode(mode uint8) error {
	if d.SetModeFunc == nil {
		return d.Driver.SetMode(mode)
	}
	return d.SetModeFunc(mode)
}

// BitsPerWord calls the injected BitsPerWord or the real version.
func (d *Driver) BitsPerWord() (uint8, error) {
	if d.BitsPerWordFunc == nil {
		return d.Driver.BitsPerWord()
	}
	return d.BitsPerWordFunc()
}

// SetBitsPerWord calls the injected SetBitsPerWord or the real version.
func (d *Driver) SetBitsPerWord(bits uint8) error {
	if d.SetBitsPerWordFunc == nil {
		return d.Driver.SetBitsPerWord(bits)
	}
	return d.SetBitsPerWordFunc(bits)
}

// MaxSpeedHz calls the injected MaxSpeedHz or the real version.
func (d *Driver) MaxSpeedHz() (uint32, error) {
	if d.MaxSpeedHzFunc == nil {
		return d.Driver.MaxSpeedHz()
	}
	return d.MaxSpeedHzFunc()
}

// SetMaxSpeedHz calls the injected SetMaxSpeedHz or the real version.
func (d *Driver) SetMaxSpeedHz(hz uint32) error {
	if d.SetMaxSpeedHzFunc == nil {
		return d.Driver.SetMaxSpeedHz(hz)
	}
	return d.SetMaxSpeedHzFunc(hz)
}

// Message calls the injected Message or the real version.
func (d *Driver) Message(transfers []spidev.Transfer) error {
	if d.MessageFunc == nil {
		return d.Driver.Message(transfers)
	}
	return d.MessageFunc(transfers)
}

// Read calls the injected Read or the real version.
func (d *Driver) Read(p []byte) (int, error) {
	if d.ReadFunc == nil {
		return d.Driver.Read(p)
	}
	return d.ReadFunc(p)
}

// Write calls the injected Write or the real version.
func (d *Driver) Write(p []byte) (int, error) {
	if d.WriteFunc == nil {
		return d.Driver.Write(p)
	}
	return d.WriteFunc(p)
}

// Close calls the injected Close or the real version.
func (d *Driver) Close() error {
	if d.CloseFunc == nil {
		return d.Driver.Close()
	}
	return d.CloseFunc()
}
