package redisstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/formulary/internal/ir"
)

// AttributesToArgs flattens attributes into field/value pairs in sorted key
// order, each value JSON-encoded. Nulls are written as "null".
func AttributesToArgs(attrs ir.Attributes) ([]any, error) {
	args := make([]any, 0, 2*len(attrs))
	for _, key := range attrs.SortedKeys() {
		data, err := ir.MarshalCanonical(attrs[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		args = append(args, key, string(data))
	}
	return args, nil
}

// HashToAttributes decodes a record hash read with HGETALL.
func HashToAttributes(hash map[string]string) (ir.Attributes, error) {
	attrs := make(ir.Attributes, len(hash))
	for key, raw := range hash {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		attrs[key] = v
	}
	return attrs, nil
}

func decodeValue(raw string) (ir.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", raw, err)
	}
	return ir.ValueOf(v)
}
