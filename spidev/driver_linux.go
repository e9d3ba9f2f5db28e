//go:build linux

package spidev

import (
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// See Linux "include/uapi/linux/spi/spidev.h" and "Documentation/spi/spidev.rst".
const (
	iocRdMode        = 0x80016b01
	iocWrMode        = 0x40016b01
	iocRdBitsPerWord = 0x80016b03
	iocWrBitsPerWord = 0x40016b03
	iocRdMaxSpeedHz  = 0x80046b04
	iocWrMaxSpeedHz  = 0x40046b04
)

// iocTransfer mirrors struct spi_ioc_transfer.
type iocTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Length         uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

const iocTransferSize = int(unsafe.Sizeof(iocTransfer{}))

// MaxSegments is the most transfers one SPI_IOC_MESSAGE call can carry; the ioctl size field is
// 14 bits wide.
const MaxSegments = (1<<14 - 1) / iocTransferSize

// iocMessage is the ioctl number for n transfers.
func iocMessage(n int) uintptr {
	const sizeShift = 16
	return uintptr(0x40006b00 | (uint32(n*iocTransferSize) << sizeShift))
}

type linuxDriver struct {
	f *os.File
}

func openLinux(path string) (Driver, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &linuxDriver{f: f}, nil
}

var defaultOpener Opener = openLinux

func (d *linuxDriver) ioctl(request, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), request, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *linuxDriver) Mode() (uint8, error) {
	var mode uint8
	err := d.ioctl(iocRdMode, uintptr(unsafe.Pointer(&mode)))
	return mode, err
}

func (d *linuxDriver) SetMode(mode uint8) error {
	return d.ioctl(iocWrMode, uintptr(unsafe.Pointer(&mode)))
}

func (d *linuxDriver) BitsPerWord() (uint8, error) {
	var bits uint8
	err := d.ioctl(iocRdBitsPerWord, uintptr(unsafe.Pointer(&bits)))
	return bits, err
}

func (d *linuxDriver) SetBitsPerWord(bits uint8) error {
	return d.ioctl(iocWrBitsPerWord, uintptr(unsafe.Pointer(&bits)))
}

func (d *linuxDriver) MaxSpeedHz() (uint32, error) {
	var hz uint32
	err := d.ioctl(iocRdMaxSpeedHz, uintptr(unsafe.Pointer(&hz)))
	return hz, err
}

func (d *linuxDriver) SetMaxSpeedHz(hz uint32) error {
	return d.ioctl(iocWrMaxSpeedHz, uintptr(unsafe.Pointer(&hz)))
}

func (d *linuxDriver) Message(transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	// The kernel dereferences the buffer addresses during the call, so the Go buffers must not
	// move until it returns.
	var pinner runtime.Pinner
	defer pinner.Unpin()

	descs := make([]iocTransfer, len(transfers))
	for i, t := range transfers {
		desc := &descs[i]
		desc.Length = uint32(t.Len())
		desc.SpeedHz = t.SpeedHz
		desc.DelayUsecs = t.DelayUsecs
		desc.BitsPerWord = t.BitsPerWord
		if t.CSChange {
			desc.CSChange = 1
		}
		if len(t.Tx) != 0 {
			pinner.Pin(&t.Tx[0])
			desc.TxBuf = uint64(uintptr(unsafe.Pointer(&t.Tx[0])))
		}
		if len(t.Rx) != 0 {
			pinner.Pin(&t.Rx[0])
			desc.RxBuf = uint64(uintptr(unsafe.Pointer(&t.Rx[0])))
		}
	}

	return d.ioctl(iocMessage(len(descs)), uintptr(unsafe.Pointer(&descs[0])))
}

func (d *linuxDriver) Read(p []byte) (int, error) {
	return unix.Read(int(d.f.Fd()), p)
}

func (d *linuxDriver) Write(p []byte) (int, error) {
	return unix.Write(int(d.f.Fd()), p)
}

func (d *linuxDriver) Fd() uintptr {
	return d.f.Fd()
}

func (d *linuxDriver) Close() error {
	return d.f.Close()
}
