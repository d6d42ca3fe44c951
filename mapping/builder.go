package mapping

import (
	"errors"
	"fmt"
)

// Builder registers entity descriptor tables into a MappingSchema.
//
//	b := mapping.NewBuilder(schema)
//	b.Entity("Order").Table("orders").
//		HasOne("Customer", "Customer", []string{"CustomerID"}, []string{"ID"}, mapping.Nullable(true))
//	if err := b.Build(); err != nil { ... }
type Builder struct {
	schema   *MappingSchema
	entities []*EntityBuilder
	index    map[string]*EntityBuilder
	errs     []error
}

// EntityBuilder collects the declarations of one entity type.
type EntityBuilder struct {
	b            *Builder
	typ          string
	table        string
	base         string
	associations []*AssociationDescriptor
	methods      []*AssociationDescriptor
}

// NewBuilder creates a builder targeting schema.
func NewBuilder(schema *MappingSchema) *Builder {
	return &Builder{
		schema: schema,
		index:  make(map[string]*EntityBuilder),
	}
}

// Entity returns the builder for typ, creating it on first use.
func (b *Builder) Entity(typ string) *EntityBuilder {
	if eb, ok := b.index[typ]; ok {
		return eb
	}
	eb := &EntityBuilder{b: b, typ: typ}
	b.entities = append(b.entities, eb)
	b.index[typ] = eb
	return eb
}

// Table sets the table name.
func (e *EntityBuilder) Table(name string) *EntityBuilder {
	e.table = name
	return e
}

// Extends declares base as the parent type. Associations of the base are
// inherited, and the base lists this type in its inheritance mapping.
func (e *EntityBuilder) Extends(base string) *EntityBuilder {
	e.base = base
	return e
}

// HasOne declares a to-one association carried by a property.
func (e *EntityBuilder) HasOne(member, target string, thisKey, otherKey []string, opts ...AssociationOption) *EntityBuilder {
	return e.add(Property(e.typ, member), target, thisKey, otherKey, opts)
}

// HasMany declares a collection-valued association carried by a property.
func (e *EntityBuilder) HasMany(member, target string, thisKey, otherKey []string, opts ...AssociationOption) *EntityBuilder {
	return e.add(Property(e.typ, member), target, thisKey, otherKey, append(opts, AsList()))
}

// Association declares an association carried by an arbitrary member.
func (e *EntityBuilder) Association(member MemberInfo, target string, thisKey, otherKey []string, opts ...AssociationOption) *EntityBuilder {
	return e.add(member, target, thisKey, otherKey, opts)
}

// Method declares an instance method projecting a to-one association.
func (e *EntityBuilder) Method(name, target string, thisKey, otherKey []string, opts ...AssociationOption) *EntityBuilder {
	return e.add(Method(e.typ, name), target, thisKey, otherKey, opts)
}

func (e *EntityBuilder) add(member MemberInfo, target string, thisKey, otherKey []string, opts []AssociationOption) *EntityBuilder {
	d, err := NewAssociationDescriptor(e.typ, member, target, thisKey, otherKey, opts...)
	if err != nil {
		e.b.errs = append(e.b.errs, fmt.Errorf("entity %s: %w", e.typ, err))
		return e
	}
	if member.IsMethod() {
		e.methods = append(e.methods, d)
	} else {
		e.associations = append(e.associations, d)
	}
	return e
}

// Build validates the declarations and installs them into the schema.
// Nothing is installed when any declaration is invalid.
func (b *Builder) Build() error {
	if len(b.errs) > 0 {
		return errors.Join(b.errs...)
	}

	resolved := make(map[string]*EntityDescriptor, len(b.entities))
	var resolve func(typ string, path []string) (*EntityDescriptor, error)
	resolve = func(typ string, path []string) (*EntityDescriptor, error) {
		if ed, ok := resolved[typ]; ok {
			return ed, nil
		}
		for _, p := range path {
			if p == typ {
				return nil, fmt.Errorf("entity %s: inheritance cycle %v", typ, append(path, typ))
			}
		}

		eb, ok := b.index[typ]
		if !ok {
			if existing := b.schema.lookupEntity(typ); existing != nil {
				return existing.clone(), nil
			}
			return nil, fmt.Errorf("entity %s: unknown base type", typ)
		}

		ed := newEntityDescriptor(eb.typ)
		ed.baseType = eb.base
		ed.associations = append(ed.associations, eb.associations...)

		if eb.base != "" {
			base, err := resolve(eb.base, append(path, typ))
			if err != nil {
				return nil, err
			}
			if eb.table == "" {
				ed.tableName = base.tableName
			}
			for _, a := range base.associations {
				if ed.FindAssociation(a.member) == nil {
					ed.associations = append(ed.associations, a)
				}
			}
		}
		if eb.table != "" {
			ed.tableName = eb.table
		}

		resolved[typ] = ed
		return ed, nil
	}

	ordered := make([]*EntityDescriptor, 0, len(b.entities))
	var methods []*AssociationDescriptor
	for _, eb := range b.entities {
		ed, err := resolve(eb.typ, nil)
		if err != nil {
			return err
		}
		ordered = append(ordered, ed)
		methods = append(methods, eb.methods...)
	}

	// Every ancestor lists all of its descendants.
	extra := make(map[string]*EntityDescriptor)
	for _, eb := range b.entities {
		for base := eb.base; base != ""; {
			anc := resolved[base]
			if anc == nil {
				anc = extra[base]
				if anc == nil {
					var err error
					if anc, err = resolve(base, nil); err != nil {
						return err
					}
					extra[base] = anc
				}
			}
			anc.inheritance = append(anc.inheritance, InheritanceMapping{Type: eb.typ})
			base = anc.baseType
		}
	}
	for _, ed := range extra {
		ordered = append(ordered, ed)
	}

	b.schema.install(ordered, methods)
	return nil
}
