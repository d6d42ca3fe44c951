package mapping

import "slices"

// InheritanceMapping names a type derived from an entity.
type InheritanceMapping struct {
	Type string
}

// EntityDescriptor is the descriptor table of one mapped type.
type EntityDescriptor struct {
	objectType   string
	tableName    string
	baseType     string
	associations []*AssociationDescriptor
	inheritance  []InheritanceMapping
}

func newEntityDescriptor(objectType string) *EntityDescriptor {
	return &EntityDescriptor{
		objectType: objectType,
		tableName:  objectType,
	}
}

// ObjectType returns the mapped type name.
func (e *EntityDescriptor) ObjectType() string { return e.objectType }

// TableName returns the table the type is stored in.
func (e *EntityDescriptor) TableName() string { return e.tableName }

// BaseType returns the type this entity extends, if any.
func (e *EntityDescriptor) BaseType() string { return e.baseType }

// Associations returns the associations in declared order, own
// declarations first, then those inherited from base types.
func (e *EntityDescriptor) Associations() []*AssociationDescriptor {
	return slices.Clone(e.associations)
}

// InheritanceMapping returns the types derived from this entity.
func (e *EntityDescriptor) InheritanceMapping() []InheritanceMapping {
	return slices.Clone(e.inheritance)
}

// FindAssociation returns the association declared for member.
func (e *EntityDescriptor) FindAssociation(member MemberInfo) *AssociationDescriptor {
	for _, a := range e.associations {
		if a.member.EqualsTo(member) {
			return a
		}
	}
	return nil
}

func (e *EntityDescriptor) clone() *EntityDescriptor {
	c := *e
	c.associations = slices.Clone(e.associations)
	c.inheritance = slices.Clone(e.inheritance)
	return &c
}
