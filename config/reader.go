package config

import (
	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/spidev/utils"
)

// Read reads a config from the given JSON5 file. Environment variables such as $SPI_BUS are
// substituted before parsing.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromBytes(buf)
}

// FromBytes parses a JSON5 config.
func FromBytes(data []byte) (*Config, error) {
	var attrs utils.AttributeMap
	if err := json5.Unmarshal(data, &attrs); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	conf, err := FromAttributes(attrs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := conf.Validate("spidev"); err != nil {
		return nil, err
	}
	return conf, nil
}
