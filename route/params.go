package route

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Reserved parameter keys written during resolution.
const (
	// KeyRawURI holds the URI a request was built from.
	KeyRawURI = "routerx.raw_uri"

	// KeyAutoInject holds the sorted names of the parameters the route declares.
	KeyAutoInject = "routerx.auto_inject"
)

// Params is the key/value bag carried by a Request.
type Params map[string]any

// Get returns the raw value under key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// String returns the value under key when it is a string.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Int returns the value under key widened to int64 when it is any integer type.
func (p Params) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// Bool returns the value under key when it is a bool.
func (p Params) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

// Keys returns all keys in sorted order.
func (p Params) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Bind decodes the bag into target, a pointer to a struct whose fields carry
// `param:"name"` tags. Values are weakly typed, so "42" binds to an int field.
func (p Params) Bind(target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "param",
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return fmt.Errorf("create param decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(p)); err != nil {
		return fmt.Errorf("bind params: %w", err)
	}
	return nil
}

// ParamsReceiver is implemented by components that accept the request bag
// when they are instantiated, such as fragments.
type ParamsReceiver interface {
	SetParams(Params)
}
