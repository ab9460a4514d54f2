package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a schema file. .yaml and .yml files are decoded as YAML, anything
// else as JSON. The result is checked before it is returned.
func Load(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema: %w", err)
	}
	var s Schema
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		s, err = DecodeYAML(data)
	default:
		s, err = DecodeJSON(data)
	}
	if err != nil {
		return Schema{}, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Check(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// DecodeJSON decodes a schema document, rejecting unknown fields.
func DecodeJSON(data []byte) (Schema, error) {
	var s Schema
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Schema{}, fmt.Errorf("decode schema json: %w", err)
	}
	return s, nil
}

// DecodeYAML decodes a schema document, rejecting unknown fields.
func DecodeYAML(data []byte) (Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Schema{}, fmt.Errorf("decode schema yaml: %w", err)
	}
	return s, nil
}
