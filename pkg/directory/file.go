package directory

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile builds a static directory from a JSON file mapping actor ids to
// role lists. An empty path yields an empty directory, which grants no roles
// and therefore only passes transitions without role restrictions.
func LoadFile(path string) (*StaticDirectory, error) {
	dir := NewStaticDirectory()

	if path == "" {
		return dir, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}

	var grants map[string][]string
	if err := json.Unmarshal(raw, &grants); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}

	for actor, roles := range grants {
		dir.Grant(actor, roles...)
	}

	return dir, nil
}
