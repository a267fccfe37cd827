package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Normalize converts v into plain JSON-native values: bools, integers,
// floats, strings, nested slices, and string-keyed maps. time.Time
// becomes RFC3339. Structs go through one json round trip.
//
// The conversion set is closed on purpose: a value outside it is a
// capture bug upstream, so it is replaced by an explicit
// {"unsupported_type": ...} marker and reported through the returned
// error instead of being silently stringified.
func Normalize(v any) (any, error) {
	var errs []error
	out := normalizeValue(reflect.ValueOf(v), &errs)
	return out, errors.Join(errs...)
}

func normalizeValue(rv reflect.Value, errs *[]error) any {
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem(), errs)

	case reflect.Bool:
		return rv.Bool()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()

	case reflect.Float32, reflect.Float64:
		return rv.Float()

	case reflect.String:
		return rv.String()

	case reflect.Slice, reflect.Array:
		// []byte keeps its json base64 encoding.
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes()
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalizeValue(rv.Index(i), errs)
		}
		return out

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return unsupported(rv.Type(), errs)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalizeValue(iter.Value(), errs)
		}
		return out

	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return t.Format(time.RFC3339Nano)
		}
		return normalizeStruct(rv, errs)

	default:
		return unsupported(rv.Type(), errs)
	}
}

// normalizeStruct round-trips the struct through encoding/json so its
// field tags decide the document shape, then normalizes the result.
func normalizeStruct(rv reflect.Value, errs *[]error) any {
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return unsupported(rv.Type(), errs)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return unsupported(rv.Type(), errs)
	}
	return out
}

func unsupported(t reflect.Type, errs *[]error) any {
	*errs = append(*errs, fmt.Errorf("unsupported value type %s", t))
	return map[string]any{"unsupported_type": t.String()}
}
