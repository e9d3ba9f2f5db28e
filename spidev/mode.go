package spidev

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Bits of the 8-bit SPI mode byte.
const (
	FlagCPHA uint8 = 1 << iota
	FlagCPOL
	FlagCSHigh
	FlagLSBFirst
	FlagThreeWire
	FlagLoop
	FlagNoCS
	FlagReady
)

// clockModeMask selects CPOL and CPHA, which together form the clock mode 0..3.
const clockModeMask = FlagCPOL | FlagCPHA

var flagNames = []struct {
	flag uint8
	name string
}{
	{FlagCSHigh, "cshigh"},
	{FlagLSBFirst, "lsbfirst"},
	{FlagThreeWire, "threewire"},
	{FlagLoop, "loop"},
	{FlagNoCS, "no_cs"},
	{FlagReady, "ready"},
}

// Settings is a snapshot of a device's configuration as last read back from the driver.
type Settings struct {
	RawMode     uint8
	BitsPerWord int
	MaxSpeedHz  int
}

// Mode is the clock mode 0..3 (CPOL<<1 | CPHA).
func (s Settings) Mode() int {
	return int(s.RawMode & clockModeMask)
}

// Has returns whether the given mode flag is set.
func (s Settings) Has(flag uint8) bool {
	return s.RawMode&flag != 0
}

// Flags lists the names of the set mode flags.
func (s Settings) Flags() []string {
	var names []string
	for _, f := range flagNames {
		if s.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	return names
}

// String renders the settings as a table.
func (s Settings) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRow(table.Row{"mode", s.Mode()})
	t.AppendRow(table.Row{"raw mode", fmt.Sprintf("0x%02x", s.RawMode)})
	t.AppendRow(table.Row{"bits_per_word", s.BitsPerWord})
	t.AppendRow(table.Row{"max_speed_hz", s.MaxSpeedHz})
	flags := strings.Join(s.Flags(), ",")
	if flags == "" {
		flags = "-"
	}
	t.AppendRow(table.Row{"flags", flags})
	return t.Render()
}
