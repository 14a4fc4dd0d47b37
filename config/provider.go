package config

// Provider is one source of option values. Later providers override
// earlier ones.
type Provider interface {
	LookupPath(selector string) (val *Value, ok bool)
	Data() Map
}

// MapProvider serves values already held in memory, such as a parsed
// plugin parameter.
type MapProvider struct {
	vals Map
}

func NewMapProvider(vals map[string]interface{}) *MapProvider {
	return &MapProvider{vals: Map(vals)}
}

func (p *MapProvider) LookupPath(selector string) (*Value, bool) {
	if !p.vals.Has(selector) {
		return nil, false
	}
	return p.vals.Get(selector), true
}

func (p *MapProvider) Data() Map { return p.vals }
