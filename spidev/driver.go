package spidev

// Driver is the kernel surface of one opened spidev character device. The Linux implementation
// issues ioctls on the device node; tests substitute the loop-wired fake or an injected double.
type Driver interface {
	// Mode reads the 8-bit SPI mode (SPI_IOC_RD_MODE).
	Mode() (uint8, error)
	// SetMode writes the 8-bit SPI mode (SPI_IOC_WR_MODE).
	SetMode(mode uint8) error
	BitsPerWord() (uint8, error)
	SetBitsPerWord(bits uint8) error
	MaxSpeedHz() (uint32, error)
	SetMaxSpeedHz(hz uint32) error

	// Message submits every transfer in a single SPI_IOC_MESSAGE call. Transfers are clocked in
	// order and each Rx buffer is filled before Message returns.
	Message(transfers []Transfer) error

	// Read is a half-duplex read(2); zeros are clocked out.
	Read(p []byte) (int, error)
	// Write is a half-duplex write(2); incoming bits are discarded.
	Write(p []byte) (int, error)

	Fd() uintptr
	Close() error
}

// Transfer is one kernel transfer descriptor. Tx or Rx may be nil but not both; when both are
// set they have the same length. Zero SpeedHz and BitsPerWord select the device defaults.
type Transfer struct {
	Tx          []byte
	Rx          []byte
	SpeedHz     uint32
	DelayUsecs  uint16
	BitsPerWord uint8
	CSChange    bool
}

// Len is the number of bytes clocked by the transfer.
func (t Transfer) Len() int {
	if len(t.Tx) != 0 {
		return len(t.Tx)
	}
	return len(t.Rx)
}

// An Opener opens the device node at path for reading and writing.
type Opener func(path string) (Driver, error)
