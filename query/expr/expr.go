// Package expr provides the expression graph that query building rewrites.
//
// Nodes are immutable. Update methods return the receiver itself when
// nothing changed, so callers can detect rewrites by pointer comparison.
package expr

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/relq/mapping"
)

// Kind identifies the shape of a node.
type Kind int

const (
	// KindParameter is a lambda/query parameter.
	KindParameter Kind = iota
	// KindConstant is a literal value.
	KindConstant
	// KindMember is a property or field access.
	KindMember
	// KindCall is a method call.
	KindCall
	// KindBinary is a binary operation.
	KindBinary
	// KindExtension is a node defined outside this package.
	KindExtension
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindParameter:
		return "Parameter"
	case KindConstant:
		return "Constant"
	case KindMember:
		return "Member"
	case KindCall:
		return "Call"
	case KindBinary:
		return "Binary"
	case KindExtension:
		return "Extension"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Expr is a node of the expression graph.
//
// String returns a canonical rendering of the node's structure: two nodes
// are structurally equal exactly when their String results are equal.
type Expr interface {
	Kind() Kind
	Type() string
	String() string
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b || a.String() == b.String()
}

// ParameterExpr is a named parameter of the query.
type ParameterExpr struct {
	name string
	typ  string
}

// Parameter creates a parameter node.
func Parameter(name, typ string) *ParameterExpr {
	return &ParameterExpr{name: name, typ: typ}
}

func (p *ParameterExpr) Kind() Kind     { return KindParameter }
func (p *ParameterExpr) Type() string   { return p.typ }
func (p *ParameterExpr) Name() string   { return p.name }
func (p *ParameterExpr) String() string { return "$" + p.name + ":" + p.typ }

// ConstantExpr is a literal value.
type ConstantExpr struct {
	value any
	typ   string
}

// Constant creates a constant node.
func Constant(value any, typ string) *ConstantExpr {
	return &ConstantExpr{value: value, typ: typ}
}

func (c *ConstantExpr) Kind() Kind   { return KindConstant }
func (c *ConstantExpr) Type() string { return c.typ }
func (c *ConstantExpr) Value() any   { return c.value }
func (c *ConstantExpr) String() string {
	return fmt.Sprintf("const(%#v:%s)", c.value, c.typ)
}

// MemberExpr is an access of member on Target.
type MemberExpr struct {
	target Expr
	member mapping.MemberInfo
	typ    string
}

// Member creates a member access node. typ is the static type of the
// accessed member.
func Member(target Expr, member mapping.MemberInfo, typ string) *MemberExpr {
	return &MemberExpr{target: target, member: member, typ: typ}
}

func (m *MemberExpr) Kind() Kind                 { return KindMember }
func (m *MemberExpr) Type() string               { return m.typ }
func (m *MemberExpr) Target() Expr               { return m.target }
func (m *MemberExpr) Member() mapping.MemberInfo { return m.member }

// Update returns a node accessing the same member on target, or m itself
// when target is unchanged.
func (m *MemberExpr) Update(target Expr) *MemberExpr {
	if target == m.target {
		return m
	}
	return &MemberExpr{target: target, member: m.member, typ: m.typ}
}

func (m *MemberExpr) String() string {
	target := "<static>"
	if m.target != nil {
		target = m.target.String()
	}
	return target + "." + m.member.String() + ":" + m.typ
}

// CallExpr is a method call. Object is nil for static methods, whose
// receiver is the first argument.
type CallExpr struct {
	object Expr
	method mapping.MemberInfo
	args   []Expr
	typ    string
}

// Call creates a method call node.
func Call(object Expr, method mapping.MemberInfo, typ string, args ...Expr) *CallExpr {
	return &CallExpr{object: object, method: method, args: args, typ: typ}
}

func (c *CallExpr) Kind() Kind                 { return KindCall }
func (c *CallExpr) Type() string               { return c.typ }
func (c *CallExpr) Object() Expr               { return c.object }
func (c *CallExpr) Method() mapping.MemberInfo { return c.method }

// Args returns the call arguments.
func (c *CallExpr) Args() []Expr {
	return append([]Expr(nil), c.args...)
}

// Update returns a call with the given object and arguments, or c itself
// when nothing changed.
func (c *CallExpr) Update(object Expr, args []Expr) *CallExpr {
	if object == c.object && sameExprs(args, c.args) {
		return c
	}
	return &CallExpr{object: object, method: c.method, args: append([]Expr(nil), args...), typ: c.typ}
}

func (c *CallExpr) String() string {
	var sb strings.Builder
	if c.object != nil {
		sb.WriteString(c.object.String())
		sb.WriteString(".")
	}
	sb.WriteString(c.method.DeclaringType)
	sb.WriteString(".")
	sb.WriteString(c.method.Name)
	sb.WriteString("(")
	for i, a := range c.args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteString("):")
	sb.WriteString(c.typ)
	return sb.String()
}

// BinaryExpr is a binary operation such as a comparison.
type BinaryExpr struct {
	op    string
	left  Expr
	right Expr
	typ   string
}

// Binary creates a binary node.
func Binary(op string, left, right Expr, typ string) *BinaryExpr {
	return &BinaryExpr{op: op, left: left, right: right, typ: typ}
}

func (b *BinaryExpr) Kind() Kind   { return KindBinary }
func (b *BinaryExpr) Type() string { return b.typ }
func (b *BinaryExpr) Op() string   { return b.op }
func (b *BinaryExpr) Left() Expr   { return b.left }
func (b *BinaryExpr) Right() Expr  { return b.right }

// Update returns a node with new operands, or b itself when unchanged.
func (b *BinaryExpr) Update(left, right Expr) *BinaryExpr {
	if left == b.left && right == b.right {
		return b
	}
	return &BinaryExpr{op: b.op, left: left, right: right, typ: b.typ}
}

func (b *BinaryExpr) String() string {
	return "(" + b.left.String() + " " + b.op + " " + b.right.String() + "):" + b.typ
}

func sameExprs(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
