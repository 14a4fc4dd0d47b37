package config

import (
	"fmt"
	"strings"

	"github.com/hysios/protomx/gen"
)

// ParseParameter reads the protoc plugin parameter syntax: comma separated
// keys, each optionally followed by "=value". A bare key is true.
func ParseParameter(param string) (Map, error) {
	vals := make(map[string]interface{})
	for _, item := range strings.Split(param, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, hasValue := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !knownKeys[key] {
			return nil, fmt.Errorf("config: unknown parameter %q", key)
		}
		switch {
		case !hasValue:
			vals[key] = true
		case boolKeys[key]:
			switch value {
			case "true", "1":
				vals[key] = true
			case "false", "0":
				vals[key] = false
			default:
				return nil, fmt.Errorf("config: parameter %s wants a boolean, got %q", key, value)
			}
		default:
			vals[key] = value
		}
	}
	return Map(vals), nil
}

// ParseOptions is ParseParameter followed by Config.Options.
func ParseOptions(param string) (gen.Options, error) {
	vals, err := ParseParameter(param)
	if err != nil {
		return gen.Options{}, err
	}
	return NewConfig(nil, NewMapProvider(vals)).Options()
}
