// Package dialect provides the SQL builder and optimizer strategies a
// remote data context instantiates by the type names its service reports.
package dialect

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/relq/internal/registry"
	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/builder"
)

// SqlBuilder renders query shapes as SQL for one provider.
type SqlBuilder interface {
	Name() string
	Flags() ProviderFlags
	MappingSchema() *mapping.MappingSchema
	QuoteIdentifier(name string) string
	// Placeholder returns the parameter marker for the 1-based index.
	Placeholder(index int) string
	BuildSelect(q *builder.SelectQuery) (string, error)
	// InlineParameters replaces parameter markers in sql with literals.
	InlineParameters(sql string, args []any) (string, error)
}

// SqlOptimizer rewrites query shapes before rendering.
type SqlOptimizer interface {
	Flags() ProviderFlags
	Optimize(q *builder.SelectQuery) *builder.SelectQuery
}

// BuilderConstructor is the shape every registered builder constructor
// must have.
type BuilderConstructor func(schema *mapping.MappingSchema, optimizer SqlOptimizer, flags ProviderFlags) SqlBuilder

// OptimizerConstructor is the shape every registered optimizer
// constructor must have.
type OptimizerConstructor func(flags ProviderFlags) SqlOptimizer

// ErrConstructorShape is returned when a registered constructor does not
// have the expected signature.
var ErrConstructorShape = errors.New("constructor has unexpected shape")

// Builders and Optimizers hold raw constructors keyed by type name.
// Entries are untyped so that the signature is checked where the
// constructor is used.
var (
	Builders   = registry.New[any]("sql builder")
	Optimizers = registry.New[any]("sql optimizer")
)

// RegisterBuilder registers a builder constructor under name.
func RegisterBuilder(name string, ctor any) {
	Builders.Register(name, ctor)
}

// RegisterOptimizer registers an optimizer constructor under name.
func RegisterOptimizer(name string, ctor any) {
	Optimizers.Register(name, ctor)
}

// LookupBuilder resolves name and checks the constructor shape.
func LookupBuilder(name string) (BuilderConstructor, error) {
	raw, err := Builders.Lookup(name)
	if err != nil {
		return nil, err
	}
	switch ctor := raw.(type) {
	case BuilderConstructor:
		return ctor, nil
	case func(*mapping.MappingSchema, SqlOptimizer, ProviderFlags) SqlBuilder:
		return ctor, nil
	}
	return nil, fmt.Errorf("sql builder %q is %T: %w", name, raw, ErrConstructorShape)
}

// LookupOptimizer resolves name and checks the constructor shape.
func LookupOptimizer(name string) (OptimizerConstructor, error) {
	raw, err := Optimizers.Lookup(name)
	if err != nil {
		return nil, err
	}
	switch ctor := raw.(type) {
	case OptimizerConstructor:
		return ctor, nil
	case func(ProviderFlags) SqlOptimizer:
		return ctor, nil
	}
	return nil, fmt.Errorf("sql optimizer %q is %T: %w", name, raw, ErrConstructorShape)
}

func init() {
	RegisterBuilder("postgres", BuilderConstructor(NewPostgresBuilder))
	RegisterBuilder("postgresql", BuilderConstructor(NewPostgresBuilder))
	RegisterBuilder("mysql", BuilderConstructor(NewMySQLBuilder))
	RegisterBuilder("sqlite", BuilderConstructor(NewSQLiteBuilder))
	RegisterBuilder("sqlite3", BuilderConstructor(NewSQLiteBuilder))
	RegisterOptimizer(BasicOptimizerType, OptimizerConstructor(NewBasicOptimizer))
}
