package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ViperProvider serves the settings of a viper instance.
type ViperProvider struct {
	v    *viper.Viper
	vals Map
}

// NewViperProvider creates a new ViperProvider instance.
func NewViperProvider(v *viper.Viper) *ViperProvider {
	return &ViperProvider{v: v}
}

// LoadFile reads a YAML, TOML or JSON file of option keys. The format
// follows the file extension.
func LoadFile(path string) (*ViperProvider, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return NewViperProvider(v), nil
}

func (vp *ViperProvider) init() {
	vp.vals = Map(vp.v.AllSettings())
}

func (vp *ViperProvider) LookupPath(selector string) (*Value, bool) {
	if vp.vals == nil {
		vp.init()
	}
	if !vp.vals.Has(selector) {
		return nil, false
	}
	return vp.vals.Get(selector), true
}

func (vp *ViperProvider) Data() Map {
	if vp.vals == nil {
		vp.init()
	}
	return vp.vals
}
