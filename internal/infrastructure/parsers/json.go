package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeJSON decodes a JSON array. Items are numbered by array index (1-indexed).
func decodeJSON[T any](data []byte, setLine func(*T, int)) ([]T, error) {
	var items []T

	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&items); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	for i := range items {
		setLine(&items[i], i+1)
	}

	return items, nil
}
