package mapping

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrKeyArity is returned when this-side and other-side keys differ in length.
var ErrKeyArity = errors.New("association key arity mismatch")

// AssociationDescriptor describes one navigation relationship.
// It is immutable once constructed.
type AssociationDescriptor struct {
	objectType string
	member     MemberInfo
	targetType string
	thisKey    []string
	otherKey   []string
	predicate  string
	storage    string
	canBeNull  bool
	aliasName  string
	isList     bool
}

// KeyPair is one this-side / other-side column correspondence.
type KeyPair struct {
	ThisKey  string
	OtherKey string
}

// AssociationOption configures optional parts of a descriptor.
type AssociationOption func(*AssociationDescriptor)

// Nullable marks the association as optional, which yields an outer join.
func Nullable(canBeNull bool) AssociationOption {
	return func(d *AssociationDescriptor) { d.canBeNull = canBeNull }
}

// WithAlias sets the table alias used for the joined entity.
func WithAlias(alias string) AssociationOption {
	return func(d *AssociationDescriptor) { d.aliasName = alias }
}

// WithPredicate adds an extra SQL condition on the associated table.
func WithPredicate(predicate string) AssociationOption {
	return func(d *AssociationDescriptor) { d.predicate = predicate }
}

// WithStorage names the backing field that stores the loaded value.
func WithStorage(storage string) AssociationOption {
	return func(d *AssociationDescriptor) { d.storage = storage }
}

// AsList marks the association as collection-valued (one-to-many).
func AsList() AssociationOption {
	return func(d *AssociationDescriptor) { d.isList = true }
}

// NewAssociationDescriptor creates a descriptor for member on objectType.
func NewAssociationDescriptor(
	objectType string,
	member MemberInfo,
	targetType string,
	thisKey, otherKey []string,
	opts ...AssociationOption,
) (*AssociationDescriptor, error) {
	if objectType == "" {
		return nil, fmt.Errorf("association %s: owner type is required", member)
	}
	if targetType == "" {
		return nil, fmt.Errorf("association %s: target type is required", member)
	}
	if len(thisKey) == 0 {
		return nil, fmt.Errorf("association %s: at least one key column is required", member)
	}
	if len(thisKey) != len(otherKey) {
		return nil, fmt.Errorf("association %s: %w (%d this keys, %d other keys)",
			member, ErrKeyArity, len(thisKey), len(otherKey))
	}

	d := &AssociationDescriptor{
		objectType: objectType,
		member:     member,
		targetType: targetType,
		thisKey:    slices.Clone(thisKey),
		otherKey:   slices.Clone(otherKey),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// withObjectType returns a copy owned by a different entity type.
func (d *AssociationDescriptor) withObjectType(objectType string) *AssociationDescriptor {
	c := *d
	c.objectType = objectType
	return &c
}

// ObjectType returns the owning entity type.
func (d *AssociationDescriptor) ObjectType() string { return d.objectType }

// Member returns the accessor carrying the association.
func (d *AssociationDescriptor) Member() MemberInfo { return d.member }

// TargetType returns the associated entity type.
func (d *AssociationDescriptor) TargetType() string { return d.targetType }

// ThisKey returns a copy of the owner-side key columns.
func (d *AssociationDescriptor) ThisKey() []string { return slices.Clone(d.thisKey) }

// OtherKey returns a copy of the target-side key columns.
func (d *AssociationDescriptor) OtherKey() []string { return slices.Clone(d.otherKey) }

// Predicate returns the extra join condition, if any.
func (d *AssociationDescriptor) Predicate() string { return d.predicate }

// Storage returns the backing storage member name, if any.
func (d *AssociationDescriptor) Storage() string { return d.storage }

// CanBeNull reports whether the associated entity may be missing.
func (d *AssociationDescriptor) CanBeNull() bool { return d.canBeNull }

// AliasName returns the configured alias, if any.
func (d *AssociationDescriptor) AliasName() string { return d.aliasName }

// IsList reports whether the association is collection-valued.
func (d *AssociationDescriptor) IsList() bool { return d.isList }

// KeyPairs returns the key correspondences in declared order.
func (d *AssociationDescriptor) KeyPairs() []KeyPair {
	pairs := make([]KeyPair, len(d.thisKey))
	for i := range d.thisKey {
		pairs[i] = KeyPair{ThisKey: d.thisKey[i], OtherKey: d.otherKey[i]}
	}
	return pairs
}

// GenerateAlias returns the alias for the joined table: the configured
// alias or the lower-cased member name.
func (d *AssociationDescriptor) GenerateAlias() string {
	if d.aliasName != "" {
		return d.aliasName
	}
	return strings.ToLower(d.member.Name)
}

func (d *AssociationDescriptor) String() string {
	arity := "one"
	if d.isList {
		arity = "many"
	}
	return fmt.Sprintf("%s %s -> %s (%s = %s)", arity, d.member, d.targetType,
		strings.Join(d.thisKey, ", "), strings.Join(d.otherKey, ", "))
}
