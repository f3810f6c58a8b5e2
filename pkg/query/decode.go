package query

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is returned when cached data cannot be read as the requested type.
var ErrDecode = errors.New("cannot decode cached data")

// As reads cached data as T. Values already of type T are returned as is,
// raw JSON is unmarshalled, and anything else goes through a JSON round trip.
// Nil data yields the zero value.
func As[T any](data any) (T, error) {
	var zero T

	switch v := data.(type) {
	case nil:
		return zero, nil
	case T:
		return v, nil
	case json.RawMessage:
		return unmarshal[T](v)
	case []byte:
		return unmarshal[T](v)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return unmarshal[T](raw)
}

func unmarshal[T any](raw []byte) (T, error) {
	var out T

	if len(raw) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return out, nil
}
