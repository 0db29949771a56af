package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDefinitions reads a definitions file. JSON input is accepted since it
// is valid YAML.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file %s: %w", path, err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse definitions file %s: %w", path, err)
	}
	return defs, nil
}

// ParseDefinitions decodes definitions and canonicalizes enum spellings.
// Unknown keys are rejected so typos surface instead of silently dropping
// constraints.
func ParseDefinitions(data []byte) (*Definitions, error) {
	var defs Definitions
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		return nil, err
	}
	for i := range defs.Properties {
		defs.Properties[i].Normalize()
	}
	for i := range defs.SynonymTypes {
		defs.SynonymTypes[i].Normalize()
	}
	for i := range defs.Validators {
		defs.Validators[i].Normalize()
	}
	return &defs, nil
}
