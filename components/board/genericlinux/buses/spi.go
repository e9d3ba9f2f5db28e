package buses

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spidev"
)

type spiBus struct {
	mu         sync.Mutex
	openHandle *spiHandle
	bus        int
	logger     logging.Logger
	opts       []spidev.Option
}

type spiHandle struct {
	bus      *spiBus
	isClosed bool
}

// NewSpiBus returns the shared SPI bus /dev/spidev{bus}.*. The options are passed to every
// spidev.Open the bus performs.
func NewSpiBus(bus int, logger logging.Logger, opts ...spidev.Option) SPI {
	return &spiBus{bus: bus, logger: logger, opts: opts}
}

func (sb *spiBus) OpenHandle() (SPIHandle, error) {
	sb.mu.Lock()
	sb.openHandle = &spiHandle{bus: sb, isClosed: false}
	return sb.openHandle, nil
}

// Close does nothing: devices are opened and closed per transfer.
func (sb *spiBus) Close(ctx context.Context) error {
	return nil
}

func (sh *spiHandle) Xfer(ctx context.Context, baud uint, chipSelect string, mode uint, tx []byte) (rx []byte, err error) {
	if sh.isClosed {
		return nil, errors.New("can't use Xfer() on an already closed SPIHandle")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cs, err := strconv.Atoi(chipSelect)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid chip select %q", chipSelect)
	}

	dev, err := spidev.Open(sh.bus.bus, cs, sh.bus.logger, sh.bus.opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()

	if err := dev.SetMode(int(mode)); err != nil {
		return nil, err
	}
	if err := dev.SetMaxSpeedHz(int(baud)); err != nil {
		return nil, err
	}

	buf := make([]byte, len(tx))
	copy(buf, tx)
	return dev.Xfer2Buffer(spidev.Mutable(buf))
}

// Close releases the bus. Closing an already closed handle does nothing.
func (sh *spiHandle) Close() error {
	if sh.isClosed {
		return nil
	}
	sh.isClosed = true
	sh.bus.mu.Unlock()
	return nil
}
