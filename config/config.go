// Package config describes how to open and configure a spidev device from a file or an
// attribute map.
package config

import (
	"math"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/spidev/logging"
	"go.viam.com/spidev/spidev"
	"go.viam.com/spidev/utils"
)

// A Config describes a spidev device and the settings to push to it once opened. Unset settings
// are left as the driver reports them.
type Config struct {
	Bus             int    `json:"bus"`
	ChipSelect      int    `json:"chip_select"`
	Mode            *int   `json:"mode,omitempty"`
	BitsPerWord     *int   `json:"bits_per_word,omitempty"`
	MaxSpeedHz      *int   `json:"max_speed_hz,omitempty"`
	LSBFirst        *bool  `json:"lsbfirst,omitempty"`
	ThreeWire       *bool  `json:"threewire,omitempty"`
	Loop            *bool  `json:"loop,omitempty"`
	CSHigh          *bool  `json:"cshigh,omitempty"`
	NoCS            *bool  `json:"no_cs,omitempty"`
	MaxTransferSize int    `json:"max_transfer_size,omitempty"`
	DevRoot         string `json:"dev_root,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Bus < 0 {
		return goutils.NewConfigValidationError(path, errors.New("bus must not be negative"))
	}
	if conf.ChipSelect < 0 {
		return goutils.NewConfigValidationError(path, errors.New("chip_select must not be negative"))
	}
	if conf.Mode != nil && (*conf.Mode < 0 || *conf.Mode > 3) {
		return goutils.NewConfigValidationError(path, errors.Errorf("mode must be in 0..3, got %d", *conf.Mode))
	}
	if conf.BitsPerWord != nil && (*conf.BitsPerWord < 8 || *conf.BitsPerWord > 32) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("bits_per_word must be in 8..32, got %d", *conf.BitsPerWord))
	}
	if conf.MaxSpeedHz != nil && (*conf.MaxSpeedHz < 1 || uint64(*conf.MaxSpeedHz) > math.MaxUint32) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("max_speed_hz must be in 1..%d, got %d", uint64(math.MaxUint32), *conf.MaxSpeedHz))
	}
	if conf.MaxTransferSize < 0 || conf.MaxTransferSize > spidev.MaxBlockSize {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("max_transfer_size must be in 0..%d, got %d", spidev.MaxBlockSize, conf.MaxTransferSize))
	}
	return nil
}

// Attributes returns the settings that are set, keyed by spidev attribute name.
func (conf *Config) Attributes() utils.AttributeMap {
	attrs := utils.AttributeMap{}
	for name, v := range map[string]*int{
		spidev.AttrMode:        conf.Mode,
		spidev.AttrBitsPerWord: conf.BitsPerWord,
		spidev.AttrMaxSpeedHz:  conf.MaxSpeedHz,
	} {
		if v != nil {
			attrs[name] = *v
		}
	}
	for name, v := range map[string]*bool{
		spidev.AttrLSBFirst:  conf.LSBFirst,
		spidev.AttrThreeWire: conf.ThreeWire,
		spidev.AttrLoop:      conf.Loop,
		spidev.AttrCSHigh:    conf.CSHigh,
		spidev.AttrNoCS:      conf.NoCS,
	} {
		if v != nil {
			attrs[name] = *v
		}
	}
	return attrs
}

// Options returns the spidev open options the config implies.
func (conf *Config) Options() []spidev.Option {
	var opts []spidev.Option
	if conf.MaxTransferSize != 0 {
		opts = append(opts, spidev.WithMaxTransferSize(conf.MaxTransferSize))
	}
	if conf.DevRoot != "" {
		opts = append(opts, spidev.WithDevRoot(conf.DevRoot))
	}
	return opts
}

// Open validates the config, opens the device and applies every set attribute. If any step
// fails the device is closed again.
func (conf *Config) Open(logger logging.Logger, opts ...spidev.Option) (*spidev.Device, error) {
	if err := conf.Validate("spidev"); err != nil {
		return nil, err
	}
	dev, err := spidev.Open(conf.Bus, conf.ChipSelect, logger, append(conf.Options(), opts...)...)
	if err != nil {
		return nil, err
	}
	attrs := conf.Attributes()
	for _, name := range spidev.Attributes {
		if !attrs.Has(name) {
			continue
		}
		if err := dev.SetAttribute(name, attrs[name]); err != nil {
			return nil, multierr.Combine(errors.Wrapf(err, "applying %s", name), dev.Close())
		}
	}
	return dev, nil
}

// FromAttributes decodes a config from an attribute map. Unknown attributes are an error.
func FromAttributes(attributes utils.AttributeMap) (*Config, error) {
	var conf Config
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &conf,
		Metadata:   &md,
		DecodeHook: integralFloatHook,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return nil, err
	}
	if len(md.Unused) != 0 {
		unknown := lo.Filter(attributes.Keys(), func(name string, _ int) bool {
			return lo.Contains(md.Unused, name)
		})
		return nil, errors.Errorf("unknown attributes %q", unknown)
	}
	return &conf, nil
}

// integralFloatHook lets whole-number floats, which is how JSON numbers decode, fill integer
// fields. Fractional values are rejected rather than truncated.
func integralFloatHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	for to.Kind() == reflect.Ptr {
		to = to.Elem()
	}
	if to.Kind() != reflect.Int {
		return data, nil
	}
	var f float64
	switch v := data.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return data, nil
	}
	if f != math.Trunc(f) || f >= 1<<63 || f < -(1<<63) {
		return nil, errors.Errorf("expected an integer but got %v", f)
	}
	return int(f), nil
}
