//go:build !linux

package spidev

import (
	"runtime"

	"github.com/pkg/errors"
)

// MaxSegments is the most transfers one SPI_IOC_MESSAGE call can carry.
const MaxSegments = 511

func openUnsupported(path string) (Driver, error) {
	return nil, errors.Errorf("spidev is not supported on %s", runtime.GOOS)
}

var defaultOpener Opener = openUnsupported
