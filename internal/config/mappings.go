package config

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/satishbabariya/relq/mapping"
)

// SchemaConfiguration is the configuration name the schema built from m
// carries: Configuration when set, else Type.
func (m MappingFile) SchemaConfiguration() string {
	if m.Configuration != "" {
		return m.Configuration
	}
	return m.Type
}

// Load parses the mapping file from fs.
func (m MappingFile) Load(fs afero.Fs) (*mapping.MappingSchema, error) {
	ms, err := mapping.LoadSchemaFile(fs, m.SchemaConfiguration(), m.Path)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", m.Type, err)
	}
	return ms, nil
}

// RegisterMappings parses every mapping file and registers each as a
// mapping schema type. Nothing is registered if any file fails.
func RegisterMappings(fs afero.Fs, files []MappingFile) error {
	schemas := make([]*mapping.MappingSchema, len(files))
	for i, m := range files {
		ms, err := m.Load(fs)
		if err != nil {
			return err
		}
		schemas[i] = ms
	}
	for i, m := range files {
		mapping.RegisterSchema(m.Type, schemas[i])
	}
	return nil
}
