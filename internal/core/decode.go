package core

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeDocument decodes schemaless document data into a tagged struct.
// Backends disagree on scalar kinds (JSONB returns float64 and RFC 3339
// strings, Firestore returns int64 and time.Time), so decoding is weakly
// typed and accepts either time form.
func DecodeDocument(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			timeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return fmt.Errorf("create document decoder: %w", err)
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// timeHook passes time.Time values through untouched and tolerates a nil
// timestamp by leaving the zero time.
func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case time.Time:
		return v, nil
	case nil:
		return time.Time{}, nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}
	}
	return data, nil
}
