package spidev

import (
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultBufSizPath is where the spidev module exposes its per-message buffer size.
	DefaultBufSizPath = "/sys/module/spidev/parameters/bufsiz"
	// DefaultMaxTransferSize is used when the buffer size cannot be discovered.
	DefaultMaxTransferSize = 4096
	// MaxBlockSize caps the discovered buffer size.
	MaxBlockSize = 65535
)

// ReadBufSiz returns the spidev buffer size advertised at path, falling back to
// DefaultMaxTransferSize when it is missing or not a positive integer, and capping at
// MaxBlockSize.
func ReadBufSiz(path string) int {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultMaxTransferSize
	}
	size, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || size <= 0 {
		return DefaultMaxTransferSize
	}
	if size > MaxBlockSize {
		return MaxBlockSize
	}
	return size
}
