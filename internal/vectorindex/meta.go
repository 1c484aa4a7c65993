package vectorindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Version is recorded in every meta file as backend_version
const Version = "1.0.0"

// BackendVersion identifies the writer of an index
func BackendVersion() string {
	return "kraken-vectorindex/" + Version
}

// Meta is the content of <name>.meta.json
type Meta struct {
	IndexName      string    `json:"index_name"`
	EmbeddingDim   int       `json:"embedding_dim"`
	BackendVersion string    `json:"backend_version"`
	IndexType      string    `json:"index_type"`
	Count          int       `json:"count"`
	ModelID        string    `json:"model_id,omitempty"`
	BuiltAt        time.Time `json:"built_at"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

func readMeta(path string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, ErrIndexNotFound
	}
	if err != nil {
		return m, fmt.Errorf("read meta %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%w: meta %s: %v", ErrCorruptIndex, path, err)
	}
	return m, nil
}

func readIDs(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ids %s: %w", path, err)
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("%w: ids %s: %v", ErrCorruptIndex, path, err)
	}
	return ids, nil
}
