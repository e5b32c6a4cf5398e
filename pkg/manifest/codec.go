package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Encode serializes a forest with 2-space indentation and a trailing newline.
func Encode(nodes []*Node) ([]byte, error) {
	if nodes == nil {
		nodes = []*Node{}
	}
	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a manifest document. A JSON null decodes to an empty forest.
func Decode(data []byte) ([]*Node, error) {
	var nodes []*Node
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("decode manifest: empty document")
	}
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if nodes == nil {
		nodes = []*Node{}
	}
	return nodes, nil
}

// Read decodes a manifest from r.
func Read(r io.Reader) ([]*Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Decode(data)
}

// WriteFile writes the manifest atomically (temp file then rename).
func WriteFile(path string, nodes []*Node) error {
	data, err := Encode(nodes)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}
