package mapping

import (
	"fmt"

	"github.com/satishbabariya/relq/internal/registry"
)

// SchemaConstructor creates a fresh mapping schema instance.
type SchemaConstructor func() (*MappingSchema, error)

// SchemaTypes is the process-wide registry of mapping schema types that a
// remote service may report by name.
var SchemaTypes = registry.New[SchemaConstructor]("mapping schema")

// DefaultSchemaType is the name of the empty built-in schema.
const DefaultSchemaType = "default"

func init() {
	RegisterSchemaType(DefaultSchemaType, func() (*MappingSchema, error) {
		return NewMappingSchema(""), nil
	})
}

// RegisterSchemaType registers a schema constructor under name.
func RegisterSchemaType(name string, ctor SchemaConstructor) {
	SchemaTypes.Register(name, ctor)
}

// RegisterSchema registers a prebuilt schema under name. Every
// instantiation returns a fresh schema layered over it.
func RegisterSchema(name string, schema *MappingSchema) {
	RegisterSchemaType(name, func() (*MappingSchema, error) {
		return NewMappingSchema("", schema), nil
	})
}

// NewSchemaByName late-binds and instantiates the schema type registered
// under name.
func NewSchemaByName(name string) (*MappingSchema, error) {
	ctor, err := SchemaTypes.Lookup(name)
	if err != nil {
		return nil, err
	}
	ms, err := ctor()
	if err != nil {
		return nil, fmt.Errorf("instantiate mapping schema %q: %w", name, err)
	}
	if ms == nil {
		return nil, fmt.Errorf("instantiate mapping schema %q: constructor returned nil", name)
	}
	return ms, nil
}
