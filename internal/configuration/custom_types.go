package configuration

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Optional is a generic container for optional configuration values.
type Optional[T any] struct {
	// Value holds the actual as unmarshalled.
	Value T
	// Present indicates if the value was present in the configuration.
	Present bool
	// RuntimeOverride indicates if the value was overridden at runtime.
	RuntimeOverride bool
}

// Get returns the value as unmarshalled or overridden.
func (o *Optional[T]) Get() T {
	return o.Value
}

// SetOverride sets the value and marks it as overridden at runtime.
func (o *Optional[T]) SetOverride(value T) {
	o.RuntimeOverride = true
	o.Value = value
}

// DefaultTrueBool is a boolean type that defaults to true if not present and not overridden.
type DefaultTrueBool struct {
	Optional[bool]
}

// Get returns the boolean value, defaulting to true if not present and not overridden.
func (b *DefaultTrueBool) Get() bool {
	if !b.Present && !b.RuntimeOverride {
		return true
	}
	return b.Value
}

// DefaultTrueBoolHookFunc returns a mapstructure decode hook function for DefaultTrueBool.
func DefaultTrueBoolHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{}) (interface{}, error) {

		// Only target our specific named type
		if t != reflect.TypeOf(DefaultTrueBool{}) {
			return data, nil
		}

		var val bool
		switch v := data.(type) {
		case bool:
			val = v
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return data, nil
			}
			val = parsed
		default:
			return data, nil
		}

		return DefaultTrueBool{
			Optional: Optional[bool]{
				Value:   val,
				Present: true,
			},
		}, nil
	}
}

// Component is the value of a passive component in its base unit (ohms or
// farads). In the configuration it may be written with an SI prefix, like
// "47k", "2.2nF" or "4k7".
type Component float64

func (c Component) Float() float64 {
	return float64(c)
}

func (c Component) String() string {
	value := float64(c)
	for _, p := range siPrefixes {
		if value >= p.factor {
			return strconv.FormatFloat(value/p.factor, 'g', 4, 64) + p.symbol
		}
	}
	return strconv.FormatFloat(value, 'g', 4, 64)
}

var siPrefixes = []struct {
	symbol string
	factor float64
}{
	{"G", 1e9},
	{"M", 1e6},
	{"k", 1e3},
	{"", 1},
	{"m", 1e-3},
	{"u", 1e-6},
	{"n", 1e-9},
	{"p", 1e-12},
}

var units = []string{"ohms", "ohm", "Ω", "R", "F"}

// ParseComponent parses a component value with an optional SI prefix and
// unit. The prefix may also replace the decimal point ("4k7").
func ParseComponent(text string) (Component, error) {
	s := strings.TrimSpace(text)
	for _, unit := range units {
		if strings.HasSuffix(s, unit) && len(s) > len(unit) {
			s = strings.TrimSpace(strings.TrimSuffix(s, unit))
			break
		}
	}
	s = strings.ReplaceAll(s, "µ", "u")

	for _, p := range siPrefixes {
		if p.symbol == "" {
			continue
		}
		idx := strings.Index(s, p.symbol)
		if idx < 0 {
			continue
		}
		mantissa := s[:idx]
		if fraction := s[idx+len(p.symbol):]; fraction != "" {
			if strings.Contains(mantissa, ".") {
				return 0, fmt.Errorf("invalid component value: %s", text)
			}
			mantissa += "." + fraction
		}
		value, err := strconv.ParseFloat(mantissa, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid component value: %s", text)
		}
		return Component(value * p.factor), nil
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid component value: %s", text)
	}
	return Component(value), nil
}

// ComponentHookFunc returns a mapstructure decode hook parsing Component
// values given as strings.
func ComponentHookFunc() mapstructure.DecodeHookFuncType {
	componentType := reflect.TypeOf(Component(0))
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{}) (interface{}, error) {

		if t != componentType || f.Kind() != reflect.String {
			return data, nil
		}
		return ParseComponent(data.(string))
	}
}
