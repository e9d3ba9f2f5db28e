package main

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/spidev/spidev"
)

// CLI flags.
const (
	busFlag    = "bus"
	csFlag     = "cs"
	configFlag = "config"
	debugFlag  = "debug"
	levelFlag  = "log-level"
	chainFlag  = "chain"
	speedFlag  = "speed"
	delayFlag  = "delay"
)

// Transfer chains selectable with --chain.
const (
	chainXfer  = "xfer"
	chainXfer2 = "xfer2"
	chainXfer3 = "xfer3"
)

// NewApp returns the spidev CLI writing to out and errOut. Every command opens the device with
// opts appended to whatever the flags and config file ask for.
func NewApp(out, errOut io.Writer, opts ...spidev.Option) *cli.App {
	r := &runner{opts: opts}
	transferFlags := []cli.Flag{
		&cli.IntFlag{
			Name:  speedFlag,
			Usage: "override the clock speed in Hz for this transfer",
		},
		&cli.DurationFlag{
			Name:  delayFlag,
			Usage: "delay after the transfer before chip select changes",
		},
	}
	return &cli.App{
		Name:            "spidev",
		Usage:           "talk to a Linux spidev device",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    busFlag,
				Aliases: []string{"b"},
				Usage:   "SPI bus number",
			},
			&cli.IntFlag{
				Name:    csFlag,
				Aliases: []string{"d"},
				Usage:   "chip select (device) number on the bus",
			},
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "load device configuration from JSON5 `FILE`",
			},
			&cli.BoolFlag{
				Name:    debugFlag,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  levelFlag,
				Value: "info",
				Usage: "minimum log `LEVEL`: debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "print the device settings and limits",
				Action: r.InfoAction,
			},
			{
				Name:      "xfer",
				Usage:     "clock hex bytes out and print what came back",
				ArgsUsage: "<hex>...",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  chainFlag,
						Value: chainXfer2,
						Usage: "transfer to use: xfer, xfer2 or xfer3 (payloads larger than one block)",
					},
				}, transferFlags...),
				Action: r.XferAction,
			},
			{
				Name:      "read",
				Usage:     "read N bytes half duplex",
				ArgsUsage: "<N>",
				Action:    r.ReadAction,
			},
			{
				Name:      "write",
				Usage:     "write hex bytes half duplex",
				ArgsUsage: "<hex>...",
				Action:    r.WriteAction,
			},
			{
				Name:      "set",
				Usage:     "change device settings",
				ArgsUsage: "<name>=<value>...",
				Action:    r.SetAction,
			},
		},
	}
}
