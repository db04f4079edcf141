package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Options customises Decode.
type Options struct {
	// WeaklyTypedInput allows "123" -> int, 42 -> "42" and similar conversions (default true).
	WeaklyTypedInput bool
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

// DecodeMap decodes a dynamic JSON object into T using `json` tags.
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("map is nil")
	}

	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			jsonNumberHook(),
			floatToIntHook(),
			floatToStringHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return &out, nil
}

// DecodeRaw unmarshals raw into a generic object and decodes it into T.
// Numbers stay json.Number so ids beyond 2^53 keep every digit.
// A JSON null or a non-object payload is an error.
func DecodeRaw[T any](raw json.RawMessage, opts ...Options) (*T, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("payload not an object: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("payload not an object: null")
	}
	return DecodeMap[T](m, opts...)
}

var numberType = reflect.TypeOf(json.Number(""))

// jsonNumberHook keeps the literal digits of a json.Number for string
// fields and parses it for int and float fields.
func jsonNumberHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from != numberType {
			return data, nil
		}
		n := data.(json.Number)
		switch to.Kind() {
		case reflect.String:
			return n.String(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return n.Int64()
		case reflect.Float32, reflect.Float64:
			return n.Float64()
		}
		return data, nil
	}
}

// floatToIntHook converts float64 (all JSON numbers) to int kinds.
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}

// floatToStringHook renders integral JSON numbers without an exponent, so a
// numeric id such as 1717171717171 decodes to "1717171717171".
func floatToStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 || to != reflect.String {
			return data, nil
		}
		f := data.(float64)
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
}
