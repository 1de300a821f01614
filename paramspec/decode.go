package paramspec

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
)

// Decoder converts a single wire-format string into a reflect.Value
// assignable to the parameter's declared type, implementing the
// "(custom decoder) > (structural validator) > (scalar coercion) >
// (identity)" priority from §4.2.
type Decoder func(raw string) (reflect.Value, error)

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// ScalarDecoder returns the default decoder for t: encoding.TextUnmarshaler
// when implemented, otherwise built-in coercion for string/bool/the
// integer and float kinds, else an error at decode time.
func ScalarDecoder(t reflect.Type) Decoder {
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return func(raw string) (reflect.Value, error) {
			v := reflect.New(t)
			if err := v.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw)); err != nil {
				return reflect.Value{}, err
			}
			return v.Elem(), nil
		}
	}

	switch t.Kind() {
	case reflect.String:
		return func(raw string) (reflect.Value, error) {
			v := reflect.New(t).Elem()
			v.SetString(raw)
			return v, nil
		}
	case reflect.Bool:
		return func(raw string) (reflect.Value, error) {
			b, ok := parseBool(raw)
			if !ok {
				return reflect.Value{}, fmt.Errorf("invalid bool %q", raw)
			}
			v := reflect.New(t).Elem()
			v.SetBool(b)
			return v, nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(raw string) (reflect.Value, error) {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return reflect.Value{}, err
			}
			v := reflect.New(t).Elem()
			v.SetInt(n)
			return v, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(raw string) (reflect.Value, error) {
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return reflect.Value{}, err
			}
			v := reflect.New(t).Elem()
			v.SetUint(n)
			return v, nil
		}
	case reflect.Float32, reflect.Float64:
		return func(raw string) (reflect.Value, error) {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return reflect.Value{}, err
			}
			v := reflect.New(t).Elem()
			v.SetFloat(f)
			return v, nil
		}
	default:
		return func(raw string) (reflect.Value, error) {
			return reflect.Value{}, fmt.Errorf("no scalar decoder for %s", t)
		}
	}
}

// parseBool distinguishes explicit false spellings ("0", "false", "no")
// from everything else, per §4.2's "boolean query presence" subtlety:
// absence (never reaching this decoder) uses the default instead.
func parseBool(raw string) (bool, bool) {
	switch raw {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
