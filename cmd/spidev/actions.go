package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/spidev/config"
	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spidev"
)

type runner struct {
	opts []spidev.Option
}

// open builds the device config from --config, lets --bus and --cs override it, and opens the
// device.
func (r *runner) open(c *cli.Context) (*spidev.Device, error) {
	logger := logging.NewLogger("spidev")
	if c.Bool(debugFlag) {
		logger = logging.NewDebugLogger("spidev")
	} else {
		level, err := logging.LevelFromString(c.String(levelFlag))
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}

	conf := &config.Config{}
	if path := c.String(configFlag); path != "" {
		var err error
		if conf, err = config.Read(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(busFlag) {
		conf.Bus = c.Int(busFlag)
	}
	if c.IsSet(csFlag) {
		conf.ChipSelect = c.Int(csFlag)
	}
	return conf.Open(logger, r.opts...)
}

// withDevice opens the device, runs fn and closes the device.
func (r *runner) withDevice(c *cli.Context, fn func(dev *spidev.Device) error) (err error) {
	dev, err := r.open(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()
	return fn(dev)
}

// InfoAction prints the device settings, its transfer limit and the traffic of this handle.
func (r *runner) InfoAction(c *cli.Context) error {
	return r.withDevice(c, func(dev *spidev.Device) error {
		settings, err := dev.Settings()
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", dev.Path())
		printf(c.App.Writer, "%s", settings)

		stats := dev.Stats()
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Limit", "Value"})
		t.AppendRow(table.Row{"max_transfer_size", dev.MaxTransferSize()})
		t.AppendRow(table.Row{"max_segments", spidev.MaxSegments})
		t.AppendRow(table.Row{"messages", stats.Messages})
		t.AppendRow(table.Row{"driver_errors", stats.DriverErrors})
		printf(c.App.Writer, "%s", t.Render())
		return nil
	})
}

// XferAction runs one full duplex transfer of the hex arguments.
func (r *runner) XferAction(c *cli.Context) error {
	values, err := parseHex(c.Args().Slice())
	if err != nil {
		return err
	}
	var opts []spidev.TransferOption
	if c.IsSet(speedFlag) {
		opts = append(opts, spidev.WithSpeedHz(c.Int(speedFlag)))
	}
	if c.IsSet(delayFlag) {
		opts = append(opts, spidev.WithDelay(c.Duration(delayFlag)))
	}

	return r.withDevice(c, func(dev *spidev.Device) error {
		var xfer func(spidev.Values, ...spidev.TransferOption) ([]int, error)
		switch chain := c.String(chainFlag); chain {
		case chainXfer:
			xfer = dev.Xfer
		case chainXfer2:
			xfer = dev.Xfer2
		case chainXfer3:
			xfer = dev.Xfer3
		default:
			return errors.Errorf("unknown --%s %q, expected one of %s, %s or %s",
				chainFlag, chain, chainXfer, chainXfer2, chainXfer3)
		}
		rx, err := xfer(values, opts...)
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", formatHex(rx))
		return nil
	})
}

// ReadAction reads N bytes and prints them as hex.
func (r *runner) ReadAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("read takes exactly one argument: the number of bytes")
	}
	n, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return errors.Wrapf(err, "invalid byte count %q", c.Args().First())
	}
	return r.withDevice(c, func(dev *spidev.Device) error {
		rx, err := dev.ReadBytes(n)
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", formatHex(rx))
		return nil
	})
}

// WriteAction writes the hex arguments.
func (r *runner) WriteAction(c *cli.Context) error {
	values, err := parseHex(c.Args().Slice())
	if err != nil {
		return err
	}
	return r.withDevice(c, func(dev *spidev.Device) error {
		return dev.WriteBytes(values)
	})
}

// SetAction applies name=value settings in order and prints the resulting settings.
func (r *runner) SetAction(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return errors.New("set needs at least one name=value argument")
	}
	return r.withDevice(c, func(dev *spidev.Device) error {
		for _, arg := range c.Args().Slice() {
			name, raw, ok := strings.Cut(arg, "=")
			if !ok {
				return errors.Errorf("invalid setting %q, expected name=value", arg)
			}
			current, err := dev.Attribute(name)
			if err != nil {
				return err
			}
			value, err := parseAttribute(name, raw, current)
			if err != nil {
				return err
			}
			if err := dev.SetAttribute(name, value); err != nil {
				return err
			}
		}
		settings, err := dev.Settings()
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", settings)
		return nil
	})
}

// parseAttribute parses raw the way the attribute's current value is typed. Flags take true or
// false; everything else must be a base 10 integer.
func parseAttribute(name, raw string, current interface{}) (interface{}, error) {
	if _, isFlag := current.(bool); isFlag {
		switch raw {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, errors.Errorf("%s must be true or false, got %q", name, raw)
		}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "%s must be an integer", name)
	}
	return v, nil
}

// parseHex turns arguments like "0xde", "ad" or "beef" into byte values. Each argument must
// hold a whole number of bytes.
func parseHex(args []string) (spidev.Values, error) {
	var values spidev.Values
	for _, arg := range args {
		digits := strings.TrimPrefix(strings.ToLower(arg), "0x")
		b, err := hex.DecodeString(digits)
		if err != nil || len(b) == 0 {
			return nil, errors.Errorf("invalid hex bytes %q", arg)
		}
		for _, v := range b {
			values = append(values, int(v))
		}
	}
	return values, nil
}

func formatHex(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}
