// Package periphconn exposes a spidev Device as a periph.io SPI port, so drivers written against
// periph.io/x/conn can talk to it.
package periphconn

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spidev"
)

// Port is a spi.PortCloser over one spidev Device. The port owns the device and closes it.
type Port struct {
	mu        sync.Mutex
	dev       *spidev.Device
	limit     physic.Frequency
	connected bool
}

var _ spi.PortCloser = (*Port)(nil)

// New wraps dev.
func New(dev *spidev.Device) *Port {
	return &Port{dev: dev}
}

func (p *Port) String() string {
	return fmt.Sprintf("spidev%d.%d", p.dev.Bus(), p.dev.ChipSelect())
}

// LimitSpeed caps the frequency later Connect calls may ask for.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return errors.Errorf("invalid speed limit %s", f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = f
	return nil
}

// Connect configures the device and returns the connection. It can only be called once.
// A zero frequency keeps the device's current max speed.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil, errors.New("spidev port already connected")
	}
	if f < 0 {
		return nil, errors.Errorf("invalid speed %s", f)
	}
	if p.limit != 0 && (f == 0 || f > p.limit) {
		f = p.limit
	}

	known := spi.Mode3 | spi.HalfDuplex | spi.NoCS | spi.LSBFirst
	if mode&^known != 0 {
		return nil, errors.Errorf("unsupported spi mode %#x", int(mode))
	}
	if err := p.dev.SetMode(int(mode & spi.Mode3)); err != nil {
		return nil, err
	}
	if err := p.dev.SetThreeWire(mode&spi.HalfDuplex != 0); err != nil {
		return nil, err
	}
	if err := p.dev.SetNoCS(mode&spi.NoCS != 0); err != nil {
		return nil, err
	}
	if err := p.dev.SetLSBFirst(mode&spi.LSBFirst != 0); err != nil {
		return nil, err
	}
	if err := p.dev.SetBitsPerWord(bits); err != nil {
		return nil, err
	}
	if f != 0 {
		if err := p.dev.SetMaxSpeedHz(int(f / physic.Hertz)); err != nil {
			return nil, err
		}
	}

	p.connected = true
	return &Conn{port: p, halfDuplex: mode&spi.HalfDuplex != 0}, nil
}

// Close closes the device.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.Close()
}

// Conn is a connected spidev port.
type Conn struct {
	port       *Port
	halfDuplex bool
}

var _ spi.Conn = (*Conn)(nil)

func (c *Conn) String() string {
	return c.port.String()
}

// Duplex is conn.Half when the port was connected with spi.HalfDuplex.
func (c *Conn) Duplex() conn.Duplex {
	if c.halfDuplex {
		return conn.Half
	}
	return conn.Full
}

// Tx clocks w out and r in. Either may be empty; when both are set they must be the same length.
func (c *Conn) Tx(w, r []byte) error {
	return c.TxPackets([]spi.Packet{{W: w, R: r}})
}

// TxPackets issues all packets as one chained transfer. KeepCS on a packet keeps chip select
// asserted after it; without it chip select is released between packets.
func (c *Conn) TxPackets(packets []spi.Packet) error {
	segments := make([]spidev.Segment, len(packets))
	for i, pkt := range packets {
		if len(pkt.W) != 0 && len(pkt.R) != 0 && len(pkt.W) != len(pkt.R) {
			return errors.Errorf("packet %d: w and r must have the same length, got %d and %d", i, len(pkt.W), len(pkt.R))
		}
		seg := spidev.Segment{BitsPerWord: int(pkt.BitsPerWord)}
		if len(pkt.W) != 0 {
			seg.Tx = spidev.ReadOnly(pkt.W)
		}
		if len(pkt.R) != 0 {
			seg.Rx = pkt.R
		}
		// The kernel's cs_change means the opposite on the last transfer of a message.
		if i == len(packets)-1 {
			seg.CSChange = pkt.KeepCS
		} else {
			seg.CSChange = !pkt.KeepCS
		}
		segments[i] = seg
	}

	c.port.mu.Lock()
	defer c.port.mu.Unlock()
	return c.port.dev.Transfer(segments)
}

// Register adds bus.cs to periph's SPI registry as "SPI{bus}.{cs}". Every spireg.Open of that
// name opens the device with the given options.
func Register(bus, cs int, logger logging.Logger, opts ...spidev.Option) error {
	name := fmt.Sprintf("SPI%d.%d", bus, cs)
	return spireg.Register(name, nil, -1, func() (spi.PortCloser, error) {
		dev, err := spidev.Open(bus, cs, logger, opts...)
		if err != nil {
			return nil, err
		}
		return New(dev), nil
	})
}

// Unregister removes a port added by Register.
func Unregister(bus, cs int) error {
	return spireg.Unregister(fmt.Sprintf("SPI%d.%d", bus, cs))
}
