package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/formulary/internal/ir"
)

// marshalAttributes converts Attributes to canonical JSON TEXT for storage.
// Null values are written as JSON null and survive a round trip.
func marshalAttributes(attrs ir.Attributes) (string, error) {
	if attrs == nil {
		attrs = ir.Attributes{}
	}
	data, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attributes: %w", err)
	}
	return string(data), nil
}

// unmarshalAttributes parses canonical JSON TEXT to Attributes.
func unmarshalAttributes(data string) (ir.Attributes, error) {
	if data == "" || data == "{}" {
		return ir.Attributes{}, nil
	}
	var attrs ir.Attributes
	if err := json.Unmarshal([]byte(data), &attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	return attrs, nil
}
