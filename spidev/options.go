package spidev

type options struct {
	opener          Opener
	maxTransferSize int
	devRoot         string
	bufSizPath      string
}

func defaultOptions() options {
	return options{
		opener:     defaultOpener,
		devRoot:    "/dev",
		bufSizPath: DefaultBufSizPath,
	}
}

// An Option changes how Open finds and opens a device.
type Option func(*options)

// WithOpener replaces the function used to open the device node.
func WithOpener(opener Opener) Option {
	return func(o *options) {
		o.opener = opener
	}
}

// WithMaxTransferSize fixes the per-call payload bound instead of discovering it from sysfs.
func WithMaxTransferSize(n int) Option {
	return func(o *options) {
		o.maxTransferSize = n
	}
}

// WithDevRoot sets the directory holding the spidevB.D nodes.
func WithDevRoot(dir string) Option {
	return func(o *options) {
		o.devRoot = dir
	}
}

// WithBufSizPath sets the file the buffer size is discovered from.
func WithBufSizPath(path string) Option {
	return func(o *options) {
		o.bufSizPath = path
	}
}
