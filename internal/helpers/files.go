package helpers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveJSON saves data as JSON to a file
func SaveJSON(data interface{}, path string) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// EnsureDir ensures a directory exists
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
