// Package mapping holds the relationship metadata of mapped entity types.
//
// Entities and their associations are registered once per mapping schema,
// either through the fluent Builder or by loading a mapping file, and are
// afterwards queried by (type, member) while queries are being built.
package mapping

import "fmt"

// MemberKind distinguishes the accessor shapes that can carry an association.
type MemberKind int

const (
	// MemberProperty is a property-style accessor.
	MemberProperty MemberKind = iota
	// MemberField is a plain field accessor.
	MemberField
	// MemberMethod is a method returning the associated entity.
	MemberMethod
)

// String returns the string representation of the kind.
func (k MemberKind) String() string {
	switch k {
	case MemberProperty:
		return "property"
	case MemberField:
		return "field"
	case MemberMethod:
		return "method"
	default:
		return fmt.Sprintf("MemberKind(%d)", int(k))
	}
}

// MemberInfo identifies one member of a mapped type.
type MemberInfo struct {
	DeclaringType string
	Name          string
	Kind          MemberKind
	// Static marks extension-style methods whose receiver is the first
	// call argument rather than the call target.
	Static bool
}

// Property returns the MemberInfo of a property declared on typ.
func Property(typ, name string) MemberInfo {
	return MemberInfo{DeclaringType: typ, Name: name, Kind: MemberProperty}
}

// Field returns the MemberInfo of a field declared on typ.
func Field(typ, name string) MemberInfo {
	return MemberInfo{DeclaringType: typ, Name: name, Kind: MemberField}
}

// Method returns the MemberInfo of an instance method declared on typ.
func Method(typ, name string) MemberInfo {
	return MemberInfo{DeclaringType: typ, Name: name, Kind: MemberMethod}
}

// StaticMethod returns the MemberInfo of an extension-style method.
func StaticMethod(typ, name string) MemberInfo {
	return MemberInfo{DeclaringType: typ, Name: name, Kind: MemberMethod, Static: true}
}

// IsMethod reports whether the member is a method.
func (m MemberInfo) IsMethod() bool {
	return m.Kind == MemberMethod
}

// EqualsTo reports whether two members denote the same accessor.
// Properties and fields with the same name are interchangeable.
func (m MemberInfo) EqualsTo(other MemberInfo) bool {
	if m.DeclaringType != other.DeclaringType || m.Name != other.Name {
		return false
	}
	return m.IsMethod() == other.IsMethod() && m.Static == other.Static
}

func (m MemberInfo) String() string {
	if m.IsMethod() {
		return m.DeclaringType + "." + m.Name + "()"
	}
	return m.DeclaringType + "." + m.Name
}

type memberKey struct {
	typ    string
	name   string
	method bool
}

func keyOf(m MemberInfo) memberKey {
	return memberKey{typ: m.DeclaringType, name: m.Name, method: m.IsMethod()}
}
