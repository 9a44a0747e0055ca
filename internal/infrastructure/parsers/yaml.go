package parsers

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// decodeYAML decodes a YAML sequence, numbering items by source line.
func decodeYAML[T any](data []byte, setLine func(*T, int)) ([]T, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	seq := root.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("parsing YAML: expected a list at line %d", seq.Line)
	}

	items := make([]T, 0, len(seq.Content))
	for _, node := range seq.Content {
		var item T
		if err := node.Decode(&item); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		setLine(&item, node.Line)
		items = append(items, item)
	}

	return items, nil
}
