// Package config turns generator options from a plugin parameter string,
// a config file and command line flags into gen.Options.
package config

import (
	"fmt"
	"strings"

	"github.com/hysios/protomx/gen"
	"github.com/hysios/protomx/naming"
	"github.com/stretchr/objx"
)

type (
	Map   = objx.Map
	Value = objx.Value
)

// Option keys, shared by the plugin parameter and config files.
const (
	KeyValidatedVariant      = "validated_variant"
	KeyIncludeWellKnownTypes = "include_well_known_types"
	KeyNamingConvention      = "naming_convention"
	KeyImportPrefix          = "import_prefix"
	KeyRootPackage           = "root_package"
	KeyTargets               = "targets"
)

var boolKeys = map[string]bool{
	KeyValidatedVariant:      true,
	KeyIncludeWellKnownTypes: true,
}

var knownKeys = map[string]bool{
	KeyValidatedVariant:      true,
	KeyIncludeWellKnownTypes: true,
	KeyNamingConvention:      true,
	KeyImportPrefix:          true,
	KeyRootPackage:           true,
	KeyTargets:               true,
}

type Config struct {
	defaults  Map
	providers []Provider
}

// NewConfig returns a config reading providers in order over defaults.
func NewConfig(defaults map[string]interface{}, providers ...Provider) *Config {
	if defaults == nil {
		defaults = map[string]interface{}{}
	}
	return &Config{
		defaults:  objx.New(defaults),
		providers: providers,
	}
}

// Get returns the value of selector from the last provider holding it.
func (c *Config) Get(selector string) (val *Value, ok bool) {
	for i := len(c.providers) - 1; i >= 0; i-- {
		if val, ok = c.providers[i].LookupPath(selector); ok {
			return
		}
	}
	if !c.defaults.Has(selector) {
		return nil, false
	}
	return c.defaults.Get(selector), true
}

// Str returns the string value of the given selector.
func (c *Config) Str(selector string) string {
	val, ok := c.Get(selector)
	if !ok {
		return ""
	}
	return val.String()
}

// Bool accepts real booleans and their string forms.
func (c *Config) Bool(selector string) bool {
	val, ok := c.Get(selector)
	if !ok {
		return false
	}
	switch x := val.Data().(type) {
	case bool:
		return x
	case string:
		return x == "true"
	}
	return false
}

// StringSlice reads a list, or a string of ':' separated items.
func (c *Config) StringSlice(selector string) []string {
	val, ok := c.Get(selector)
	if !ok {
		return nil
	}
	switch x := val.Data().(type) {
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, v := range x {
			out = append(out, fmt.Sprint(v))
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return strings.Split(x, ":")
	}
	return nil
}

// All merges every provider over the defaults.
func (c *Config) All() Map {
	m := objx.New(map[string]interface{}{}).MergeHere(c.defaults)
	for _, p := range c.providers {
		m.MergeHere(p.Data())
	}
	return m
}

// Options builds generator options. Unknown keys are rejected so a typo
// in a parameter never passes silently.
func (c *Config) Options() (gen.Options, error) {
	for k := range c.All() {
		if !knownKeys[k] {
			return gen.Options{}, fmt.Errorf("config: unknown option %q", k)
		}
	}

	conv, err := naming.ParseConvention(c.Str(KeyNamingConvention))
	if err != nil {
		return gen.Options{}, err
	}
	return gen.Options{
		ValidatedVariant:      c.Bool(KeyValidatedVariant),
		IncludeWellKnownTypes: c.Bool(KeyIncludeWellKnownTypes),
		Naming:                conv,
		ImportPrefix:          c.Str(KeyImportPrefix),
		RootPackage:           c.Str(KeyRootPackage),
		Targets:               c.StringSlice(KeyTargets),
	}, nil
}
