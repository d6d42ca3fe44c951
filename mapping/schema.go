package mapping

import (
	"sort"
	"sync"
)

// MappingSchema holds the descriptor tables of a set of mapped types.
// Schemas may be layered: lookups that miss fall through to parents in
// order.
type MappingSchema struct {
	configuration string
	parents       []*MappingSchema

	mu       sync.RWMutex
	entities map[string]*EntityDescriptor
	methods  map[memberKey]*AssociationDescriptor
	members  map[memberKey]struct{}
}

// NewMappingSchema creates a schema identified by configuration and
// layered over parents.
func NewMappingSchema(configuration string, parents ...*MappingSchema) *MappingSchema {
	return &MappingSchema{
		configuration: configuration,
		parents:       parents,
		entities:      make(map[string]*EntityDescriptor),
		methods:       make(map[memberKey]*AssociationDescriptor),
		members:       make(map[memberKey]struct{}),
	}
}

// Configuration returns the schema's own configuration name.
func (s *MappingSchema) Configuration() string {
	return s.configuration
}

// ConfigurationList returns this schema's configuration followed by those
// of its parents, without duplicates or empty names.
func (s *MappingSchema) ConfigurationList() []string {
	seen := make(map[string]bool)
	var list []string
	var walk func(*MappingSchema)
	walk = func(ms *MappingSchema) {
		if ms.configuration != "" && !seen[ms.configuration] {
			seen[ms.configuration] = true
			list = append(list, ms.configuration)
		}
		for _, p := range ms.parents {
			walk(p)
		}
	}
	walk(s)
	return list
}

// GetEntityDescriptor returns the descriptor table of typ. Unknown types
// get an empty descriptor mapped to a table of the same name.
func (s *MappingSchema) GetEntityDescriptor(typ string) *EntityDescriptor {
	if ed := s.lookupEntity(typ); ed != nil {
		return ed
	}
	return newEntityDescriptor(typ)
}

// HasEntity reports whether typ has been registered.
func (s *MappingSchema) HasEntity(typ string) bool {
	return s.lookupEntity(typ) != nil
}

func (s *MappingSchema) lookupEntity(typ string) *EntityDescriptor {
	s.mu.RLock()
	ed, ok := s.entities[typ]
	s.mu.RUnlock()
	if ok {
		return ed
	}
	for _, p := range s.parents {
		if ed := p.lookupEntity(typ); ed != nil {
			return ed
		}
	}
	return nil
}

// IsAssociation reports whether member is declared as a relationship on
// any type known to the schema.
func (s *MappingSchema) IsAssociation(member MemberInfo) bool {
	s.mu.RLock()
	_, ok := s.members[keyOf(member)]
	s.mu.RUnlock()
	if ok {
		return true
	}
	for _, p := range s.parents {
		if p.IsAssociation(member) {
			return true
		}
	}
	return false
}

// MethodAssociation returns the relationship projected by method, owned
// by objectType, or nil when the method is not declared as one.
func (s *MappingSchema) MethodAssociation(method MemberInfo, objectType string) *AssociationDescriptor {
	s.mu.RLock()
	d, ok := s.methods[keyOf(method)]
	s.mu.RUnlock()
	if ok {
		return d.withObjectType(objectType)
	}
	for _, p := range s.parents {
		if d := p.MethodAssociation(method, objectType); d != nil {
			return d
		}
	}
	return nil
}

// EntityTypes returns the registered type names (sorted), parents included.
func (s *MappingSchema) EntityTypes() []string {
	seen := make(map[string]bool)
	var walk func(*MappingSchema)
	walk = func(ms *MappingSchema) {
		ms.mu.RLock()
		for name := range ms.entities {
			seen[name] = true
		}
		ms.mu.RUnlock()
		for _, p := range ms.parents {
			walk(p)
		}
	}
	walk(s)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// install publishes finished descriptors. Called by Builder.Build.
func (s *MappingSchema) install(entities []*EntityDescriptor, methods []*AssociationDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ed := range entities {
		s.entities[ed.objectType] = ed
		for _, a := range ed.associations {
			s.members[keyOf(a.member)] = struct{}{}
		}
	}
	for _, m := range methods {
		k := keyOf(m.member)
		s.methods[k] = m
		s.members[k] = struct{}{}
	}
}
