package neolink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseSchema decodes a YAML schema document. Unknown fields are rejected.
func ParseSchema(data []byte) (SchemaDefinition, error) {
	var def SchemaDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return SchemaDefinition{}, ErrInvalidSchemaSetup.WithMessage("parse schema").WithErr(err)
	}
	return def, nil
}

// LoadSchema reads and decodes a YAML schema file.
func LoadSchema(path string) (SchemaDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SchemaDefinition{}, fmt.Errorf("read schema %s: %w", path, err)
	}
	return ParseSchema(data)
}

// LoadRegistry loads the schema file at path and builds its registry.
func LoadRegistry(path string, opts ...RegistryOption) (*Registry, error) {
	def, err := LoadSchema(path)
	if err != nil {
		return nil, err
	}
	return Build(def, opts...)
}

// MarshalSchema encodes def as YAML.
func MarshalSchema(def SchemaDefinition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return buf.Bytes(), nil
}
