package types

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes the canonical JSON form of the schema. Two schemas with the same
// tables, columns, indexes and functions in the same order share a fingerprint.
func (s *SchemaDefinition) Fingerprint() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode schema: %w", err)
	}
	return fmt.Sprintf("%016x", xxh3.Hash(data)), nil
}
